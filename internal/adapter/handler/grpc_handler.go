package handler

import (
	"context"
	"encoding/json"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/rl1809/versioned-store/internal/core/brand"
	"github.com/rl1809/versioned-store/internal/core/domain"
	"github.com/rl1809/versioned-store/internal/core/service"
)

const (
	// CodecName is the content-subtype clients select with grpc.CallContentSubtype.
	CodecName = "json"

	documentServiceName = "versionstore.v1.DocumentService"
)

// jsonCodec carries the plain Go message structs below; the service has no .proto.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type CreateRequest struct {
	RequestId       string `json:"request_id,omitempty"`
	Id              string `json:"id,omitempty"`
	Title           string `json:"title"`
	Body            string `json:"body"`
	ModifiedBy      string `json:"modified_by"`
	WhatChangedLine string `json:"what_changed_line,omitempty"`
}

type GetRequest struct {
	Id string `json:"id"`
}

type UpdateRequest struct {
	Id              string  `json:"id"`
	ExpectedVersion int64   `json:"expected_version"`
	Title           *string `json:"title,omitempty"`
	Body            *string `json:"body,omitempty"`
	ModifiedBy      string  `json:"modified_by"`
	WhatChangedLine string  `json:"what_changed_line"`
}

type DeleteRequest struct {
	Id              string `json:"id"`
	ExpectedVersion int64  `json:"expected_version"`
	ModifiedBy      string `json:"modified_by"`
}

type HistoryRequest struct {
	Id    string `json:"id"`
	From  int64  `json:"from,omitempty"`
	To    int64  `json:"to,omitempty"`
	Limit int32  `json:"limit,omitempty"`
}

type DocumentResponse struct {
	Document *domain.Document `json:"document"`
}

type DeleteResponse struct{}

type HistoryResponse struct {
	Versions []domain.DocumentVersion `json:"versions"`
}

type DocumentServiceServer interface {
	Create(context.Context, *CreateRequest) (*DocumentResponse, error)
	Get(context.Context, *GetRequest) (*DocumentResponse, error)
	Update(context.Context, *UpdateRequest) (*DocumentResponse, error)
	Delete(context.Context, *DeleteRequest) (*DeleteResponse, error)
	History(context.Context, *HistoryRequest) (*HistoryResponse, error)
}

type GRPCHandler struct {
	documents *service.DocumentService
}

var _ DocumentServiceServer = (*GRPCHandler)(nil)

func NewGRPCHandler(documents *service.DocumentService) *GRPCHandler {
	return &GRPCHandler{documents: documents}
}

func RegisterDocumentServiceServer(s grpc.ServiceRegistrar, srv DocumentServiceServer) {
	s.RegisterService(&DocumentServiceDesc, srv)
}

func (h *GRPCHandler) Create(ctx context.Context, req *CreateRequest) (*DocumentResponse, error) {
	doc, err := h.documents.Create(ctx, service.CreateDocumentRequest{
		RequestID:       req.RequestId,
		ID:              req.Id,
		Title:           req.Title,
		Body:            req.Body,
		ModifiedBy:      req.ModifiedBy,
		WhatChangedLine: req.WhatChangedLine,
	})
	if err != nil {
		return nil, grpcError(err)
	}
	return &DocumentResponse{Document: doc}, nil
}

func (h *GRPCHandler) Get(ctx context.Context, req *GetRequest) (*DocumentResponse, error) {
	doc, err := h.documents.Get(ctx, req.Id)
	if err != nil {
		return nil, grpcError(err)
	}
	return &DocumentResponse{Document: doc}, nil
}

func (h *GRPCHandler) Update(ctx context.Context, req *UpdateRequest) (*DocumentResponse, error) {
	doc, err := h.documents.Update(ctx, service.UpdateDocumentRequest{
		ID:              req.Id,
		ExpectedVersion: req.ExpectedVersion,
		Title:           req.Title,
		Body:            req.Body,
		ModifiedBy:      req.ModifiedBy,
		WhatChangedLine: req.WhatChangedLine,
	})
	if err != nil {
		return nil, grpcError(err)
	}
	return &DocumentResponse{Document: doc}, nil
}

func (h *GRPCHandler) Delete(ctx context.Context, req *DeleteRequest) (*DeleteResponse, error) {
	err := h.documents.Delete(ctx, service.DeleteDocumentRequest{
		ID:              req.Id,
		ExpectedVersion: req.ExpectedVersion,
		ModifiedBy:      req.ModifiedBy,
	})
	if err != nil {
		return nil, grpcError(err)
	}
	return &DeleteResponse{}, nil
}

func (h *GRPCHandler) History(ctx context.Context, req *HistoryRequest) (*HistoryResponse, error) {
	var (
		rng = domain.HistoryRange{Limit: int(req.Limit)}
		err error
	)
	if req.From != 0 {
		if rng.From, err = brand.ToVersionNumber(req.From, true); err != nil {
			return nil, grpcError(err)
		}
	}
	if req.To != 0 {
		if rng.To, err = brand.ToVersionNumber(req.To, true); err != nil {
			return nil, grpcError(err)
		}
	}

	versions, err := h.documents.History(ctx, req.Id, rng)
	if err != nil {
		return nil, grpcError(err)
	}
	return &HistoryResponse{Versions: versions}, nil
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, domain.ErrFormat):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrOptimisticConcurrency):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, "document not found")
	case errors.Is(err, service.ErrDuplicateRequest):
		return status.Error(codes.AlreadyExists, "duplicate request")
	case errors.Is(err, domain.ErrConflict):
		return status.Error(codes.AlreadyExists, "document already exists")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, domain.ErrTransaction):
		return status.Error(codes.Unavailable, "storage unavailable")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func unaryHandler[Req any, Resp any](
	method string,
	call func(DocumentServiceServer, context.Context, *Req) (*Resp, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(DocumentServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + documentServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(DocumentServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var DocumentServiceDesc = grpc.ServiceDesc{
	ServiceName: documentServiceName,
	HandlerType: (*DocumentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Create", Handler: unaryHandler("Create", DocumentServiceServer.Create)},
		{MethodName: "Get", Handler: unaryHandler("Get", DocumentServiceServer.Get)},
		{MethodName: "Update", Handler: unaryHandler("Update", DocumentServiceServer.Update)},
		{MethodName: "Delete", Handler: unaryHandler("Delete", DocumentServiceServer.Delete)},
		{MethodName: "History", Handler: unaryHandler("History", DocumentServiceServer.History)},
	},
	Streams: []grpc.StreamDesc{},
}

// DocumentServiceClient calls the service over a connection using the JSON codec.
type DocumentServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewDocumentServiceClient(cc grpc.ClientConnInterface) *DocumentServiceClient {
	return &DocumentServiceClient{cc: cc}
}

func (c *DocumentServiceClient) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+documentServiceName+"/"+method, in, out, opts...)
}

func (c *DocumentServiceClient) Create(ctx context.Context, in *CreateRequest, opts ...grpc.CallOption) (*DocumentResponse, error) {
	out := new(DocumentResponse)
	if err := c.invoke(ctx, "Create", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DocumentServiceClient) Get(ctx context.Context, in *GetRequest, opts ...grpc.CallOption) (*DocumentResponse, error) {
	out := new(DocumentResponse)
	if err := c.invoke(ctx, "Get", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DocumentServiceClient) Update(ctx context.Context, in *UpdateRequest, opts ...grpc.CallOption) (*DocumentResponse, error) {
	out := new(DocumentResponse)
	if err := c.invoke(ctx, "Update", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DocumentServiceClient) Delete(ctx context.Context, in *DeleteRequest, opts ...grpc.CallOption) (*DeleteResponse, error) {
	out := new(DeleteResponse)
	if err := c.invoke(ctx, "Delete", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DocumentServiceClient) History(ctx context.Context, in *HistoryRequest, opts ...grpc.CallOption) (*HistoryResponse, error) {
	out := new(HistoryResponse)
	if err := c.invoke(ctx, "History", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
