package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rl1809/versioned-store/internal/core/brand"
	"github.com/rl1809/versioned-store/internal/core/domain"
	"github.com/rl1809/versioned-store/internal/core/service"
)

// maxBodyBytes bounds request bodies; a document body is at most 20000 runes.
const maxBodyBytes = 1 << 20

type HTTPHandler struct {
	documents *service.DocumentService
}

type CreateDocumentHTTPRequest struct {
	RequestID       string `json:"request_id"`
	ID              string `json:"id"`
	Title           string `json:"title"`
	Body            string `json:"body"`
	ModifiedBy      string `json:"modified_by"`
	WhatChangedLine string `json:"what_changed_line"`
}

type UpdateDocumentHTTPRequest struct {
	ExpectedVersion int64   `json:"expected_version"`
	Title           *string `json:"title"`
	Body            *string `json:"body"`
	ModifiedBy      string  `json:"modified_by"`
	WhatChangedLine string  `json:"what_changed_line"`
}

type HTTPResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func NewHTTPHandler(documents *service.DocumentService) *HTTPHandler {
	return &HTTPHandler{documents: documents}
}

// Routes registers every endpoint on a new ServeMux.
func (h *HTTPHandler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("POST /api/documents", h.Create)
	mux.HandleFunc("GET /api/documents/{id}", h.Get)
	mux.HandleFunc("PUT /api/documents/{id}", h.Update)
	mux.HandleFunc("DELETE /api/documents/{id}", h.Delete)
	mux.HandleFunc("GET /api/documents/{id}/versions", h.History)
	mux.HandleFunc("GET /api/documents/{id}/versions/{version}", h.GetVersion)
	return mux
}

func (h *HTTPHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentHTTPRequest
	if !decodeBody(w, r, &req) {
		return
	}

	doc, err := h.documents.Create(r.Context(), service.CreateDocumentRequest{
		RequestID:       req.RequestID,
		ID:              req.ID,
		Title:           req.Title,
		Body:            req.Body,
		ModifiedBy:      req.ModifiedBy,
		WhatChangedLine: req.WhatChangedLine,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, HTTPResponse{
		Success: true,
		Message: "document created",
		Data:    doc,
	})
}

func (h *HTTPHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.documents.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, HTTPResponse{Success: true, Message: "ok", Data: doc})
}

func (h *HTTPHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateDocumentHTTPRequest
	if !decodeBody(w, r, &req) {
		return
	}

	doc, err := h.documents.Update(r.Context(), service.UpdateDocumentRequest{
		ID:              r.PathValue("id"),
		ExpectedVersion: req.ExpectedVersion,
		Title:           req.Title,
		Body:            req.Body,
		ModifiedBy:      req.ModifiedBy,
		WhatChangedLine: req.WhatChangedLine,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, HTTPResponse{Success: true, Message: "document updated", Data: doc})
}

func (h *HTTPHandler) Delete(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	expected, err := brand.ParseVersionNumber(query.Get("expected_version"), true)
	if err != nil {
		writeError(w, err)
		return
	}

	err = h.documents.Delete(r.Context(), service.DeleteDocumentRequest{
		ID:              r.PathValue("id"),
		ExpectedVersion: expected.Int64(),
		ModifiedBy:      query.Get("modified_by"),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, HTTPResponse{Success: true, Message: "document deleted"})
}

func (h *HTTPHandler) History(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var (
		rng domain.HistoryRange
		err error
	)
	if raw := query.Get("from"); raw != "" {
		if rng.From, err = brand.ParseVersionNumber(raw, true); err != nil {
			writeError(w, err)
			return
		}
	}
	if raw := query.Get("to"); raw != "" {
		if rng.To, err = brand.ParseVersionNumber(raw, true); err != nil {
			writeError(w, err)
			return
		}
	}
	if raw := query.Get("limit"); raw != "" {
		if rng.Limit, err = strconv.Atoi(raw); err != nil || rng.Limit < 1 {
			writeJSON(w, http.StatusBadRequest, HTTPResponse{Message: "limit must be a positive integer"})
			return
		}
	}

	versions, err := h.documents.History(r.Context(), r.PathValue("id"), rng)
	if err != nil {
		writeError(w, err)
		return
	}
	if versions == nil {
		versions = []domain.DocumentVersion{}
	}

	writeJSON(w, http.StatusOK, HTTPResponse{Success: true, Message: "ok", Data: versions})
}

func (h *HTTPHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	v, err := brand.ParseVersionNumber(r.PathValue("version"), true)
	if err != nil {
		writeError(w, err)
		return
	}

	version, err := h.documents.GetVersion(r.Context(), r.PathValue("id"), v.Int64())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, HTTPResponse{Success: true, Message: "ok", Data: version})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, HTTPResponse{
			Success: false,
			Message: "invalid request body",
		})
		return false
	}
	return true
}

// httpStatus maps the domain error taxonomy onto status codes.
func httpStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrFormat):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrOptimisticConcurrency):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "document not found"
	case errors.Is(err, service.ErrDuplicateRequest):
		return http.StatusConflict, "duplicate request"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "document already exists"
	case errors.Is(err, domain.ErrTransaction):
		return http.StatusServiceUnavailable, "storage unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, message := httpStatus(err)
	writeJSON(w, status, HTTPResponse{
		Success: false,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
