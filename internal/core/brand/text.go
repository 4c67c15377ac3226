package brand

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/rl1809/versioned-store/internal/core/compactid"
)

type tag interface {
	contract() Contract
}

// Text is a string that passed the contract of its tag B.
type Text[B tag] struct {
	value string
}

type (
	titleTag           struct{}
	bodyTag            struct{}
	whatChangedLineTag struct{}
	userIDTag          struct{}
	documentIDTag      struct{}
)

var (
	titleContract = Contract{
		Field:                 "title",
		MinLength:             1,
		MaxLength:             120,
		SingleLine:            true,
		Trimmed:               true,
		NoInternalDoubleSpace: true,
		Printable:             true,
	}
	bodyContract = Contract{
		Field:     "body",
		MaxLength: 20000,
		Printable: true,
	}
	whatChangedLineContract = Contract{
		Field:                 "what_changed_line",
		MinLength:             1,
		MaxLength:             200,
		SingleLine:            true,
		Trimmed:               true,
		NoInternalDoubleSpace: true,
		Printable:             true,
	}
	userIDContract = Contract{
		Field:     "modified_by",
		MinLength: compactid.Length,
		MaxLength: compactid.Length,
		Format:    "compactid",
	}
	documentIDContract = Contract{
		Field:     "id",
		MinLength: compactid.Length,
		MaxLength: compactid.Length,
		Format:    "compactid",
	}
)

func (titleTag) contract() Contract           { return titleContract }
func (bodyTag) contract() Contract            { return bodyContract }
func (whatChangedLineTag) contract() Contract { return whatChangedLineContract }
func (userIDTag) contract() Contract          { return userIDContract }
func (documentIDTag) contract() Contract      { return documentIDContract }

type (
	Title           = Text[titleTag]
	Body            = Text[bodyTag]
	WhatChangedLine = Text[whatChangedLineTag]
	UserID          = Text[userIDTag]
	DocumentID      = Text[documentIDTag]
)

func ToTitle(raw string, safely bool) (Title, error) {
	return toText[titleTag](raw, safely)
}

func ToBody(raw string, safely bool) (Body, error) {
	return toText[bodyTag](raw, safely)
}

func ToWhatChangedLine(raw string, safely bool) (WhatChangedLine, error) {
	return toText[whatChangedLineTag](raw, safely)
}

func ToUserID(raw string, safely bool) (UserID, error) {
	return toText[userIDTag](raw, safely)
}

func ToDocumentID(raw string, safely bool) (DocumentID, error) {
	return toText[documentIDTag](raw, safely)
}

// NewDocumentID mints a fresh identifier. Codec output is well-formed by construction.
func NewDocumentID(codec *compactid.Codec) DocumentID {
	return DocumentID{value: codec.New()}
}

func toText[B tag](raw string, safely bool) (Text[B], error) {
	var b B
	if err := b.contract().Check(raw, safely); err != nil {
		return Text[B]{}, err
	}
	return Text[B]{value: raw}, nil
}

func (t Text[B]) String() string {
	return t.value
}

func (t Text[B]) IsZero() bool {
	return t.value == ""
}

func (t Text[B]) Value() (driver.Value, error) {
	return t.value, nil
}

func (t Text[B]) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.value)
}

// UnmarshalJSON re-validates with the lenient check; JSON decoding is only used for
// values this service wrote itself.
func (t *Text[B]) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := toText[B](raw, false)
	if err != nil {
		return err
	}
	*t = v
	return nil
}
