// Package brand turns raw input into validated wrapper types.
//
// A branded value can only be produced by its constructor, so holding one is proof
// that its contract was checked. Constructors take a safely flag: true runs every
// rule and is meant for external input, false skips the per-rune Unicode scan and is
// meant for values that were already validated once, such as rows read back from
// storage.
package brand

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"

	"github.com/rl1809/versioned-store/internal/core/compactid"
)

var ErrFormat = errors.New("invalid format")

// ValidationError names the field whose contract was violated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrFormat
}

// Contract lists the rules a raw string must satisfy. Zero-valued rules are off.
type Contract struct {
	Field                 string
	MinLength             int
	MaxLength             int
	SingleLine            bool
	Trimmed               bool
	NoInternalDoubleSpace bool
	Printable             bool
	// Format is a validator tag, e.g. "email" or "hexadecimal,len=64".
	Format string
}

const lineBreaks = "\r\n\t\v\f\u0085\u2028\u2029"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("compactid", func(fl validator.FieldLevel) bool {
		return compactid.Default().IsWellFormed(fl.Field().String())
	})
	return v
}

func (c Contract) Check(raw string, safely bool) error {
	// Bound the byte length before counting runes.
	if c.MaxLength > 0 && len(raw) > c.MaxLength*utf8.UTFMax {
		return c.fail("must be at most %d characters", c.MaxLength)
	}

	n := utf8.RuneCountInString(raw)
	if n < c.MinLength {
		if c.MinLength == 1 {
			return c.fail("must not be empty")
		}
		return c.fail("must be at least %d characters", c.MinLength)
	}
	if c.MaxLength > 0 && n > c.MaxLength {
		return c.fail("must be at most %d characters", c.MaxLength)
	}

	if c.SingleLine && strings.ContainsAny(raw, lineBreaks) {
		return c.fail("must be a single line")
	}
	if c.Trimmed && strings.TrimSpace(raw) != raw {
		return c.fail("must not have leading or trailing whitespace")
	}
	if c.NoInternalDoubleSpace && strings.Contains(raw, "  ") {
		return c.fail("must not contain consecutive spaces")
	}

	if safely && c.Printable {
		if err := c.checkPrintable(raw); err != nil {
			return err
		}
	}

	if c.Format != "" && raw != "" {
		if err := validate.Var(raw, c.Format); err != nil {
			return c.fail("must match format %s", c.Format)
		}
	}

	return nil
}

func (c Contract) checkPrintable(raw string) error {
	if !utf8.ValidString(raw) {
		return c.fail("must be valid UTF-8")
	}
	for _, r := range raw {
		if unicode.IsPrint(r) {
			continue
		}
		if !c.SingleLine && (r == '\n' || r == '\r' || r == '\t') {
			continue
		}
		return c.fail("must contain printable characters only (found %U)", r)
	}
	if !norm.NFC.IsNormalString(raw) {
		return c.fail("must be NFC normalized")
	}
	return nil
}

func (c Contract) fail(format string, args ...any) error {
	return &ValidationError{Field: c.Field, Reason: fmt.Sprintf(format, args...)}
}
