// Package compactid maps 128-bit UUIDs to 22-character URL-safe identifiers.
//
// The 128-bit value is re-based into 22 digits of radix 64, most significant digit
// first, left-padded with the zero symbol. 22 digits hold 132 bits, so the leading
// digit only ever carries the top 2 bits and is one of A, B, C or D.
package compactid

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

const (
	// Length is the fixed number of symbols in every identifier.
	Length = 22

	alphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	bitsPerSym  = 6
	symMask     = 1<<bitsPerSym - 1
	maxLeadWord = 4 // leading digit < 4 keeps the value within 128 bits
)

// ErrFormat is returned by Decode for input that is not a well-formed identifier.
var ErrFormat = errors.New("malformed compact id")

// Codec holds the precomputed lookup tables. It is read-only after NewCodec returns
// and may be shared between goroutines.
type Codec struct {
	digits [64]byte
	values [256]int8
}

// NewCodec builds a codec with the alphabet lookup tables filled in.
func NewCodec() *Codec {
	c := &Codec{}
	for i := range c.values {
		c.values[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		c.digits[i] = alphabet[i]
		c.values[alphabet[i]] = int8(i)
	}
	return c
}

var defaultCodec = sync.OnceValue(NewCodec)

// Default returns the process-wide codec, built on first use.
func Default() *Codec {
	return defaultCodec()
}

func (c *Codec) Encode(id uuid.UUID) string {
	hi, lo := split(id)

	var out [Length]byte
	for i := Length - 1; i >= 0; i-- {
		out[i] = c.digits[lo&symMask]
		lo = lo>>bitsPerSym | hi<<(64-bitsPerSym)
		hi >>= bitsPerSym
	}
	return string(out[:])
}

func (c *Codec) Decode(s string) (uuid.UUID, error) {
	if !c.IsWellFormed(s) {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrFormat, truncate(s))
	}

	var hi, lo uint64
	for i := 0; i < Length; i++ {
		d := uint64(c.values[s[i]])
		hi = hi<<bitsPerSym | lo>>(64-bitsPerSym)
		lo = lo<<bitsPerSym | d
	}
	return join(hi, lo), nil
}

// IsWellFormed reports whether s is a valid identifier. Length is checked before any
// symbol is read, so arbitrarily long input costs a single comparison.
func (c *Codec) IsWellFormed(s string) bool {
	if len(s) != Length {
		return false
	}
	if v := c.values[s[0]]; v < 0 || v >= maxLeadWord {
		return false
	}
	for i := 1; i < Length; i++ {
		if c.values[s[i]] < 0 {
			return false
		}
	}
	return true
}

// New mints an identifier from a random UUID.
func (c *Codec) New() string {
	return c.Encode(uuid.New())
}

// FromString encodes the canonical text form of a UUID.
func (c *Codec) FromString(text string) (string, error) {
	id, err := uuid.Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse uuid: %w", err)
	}
	return c.Encode(id), nil
}

func split(id uuid.UUID) (hi, lo uint64) {
	for i := 0; i < 8; i++ {
		hi = hi<<8 | uint64(id[i])
		lo = lo<<8 | uint64(id[i+8])
	}
	return hi, lo
}

func join(hi, lo uint64) uuid.UUID {
	var id uuid.UUID
	for i := 7; i >= 0; i-- {
		id[i] = byte(hi)
		id[i+8] = byte(lo)
		hi >>= 8
		lo >>= 8
	}
	return id
}

func truncate(s string) string {
	if len(s) > Length+8 {
		return s[:Length+8] + "..."
	}
	return s
}
