package compactid

import (
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_Boundaries(t *testing.T) {
	c := NewCodec()

	zero := c.Encode(uuid.Nil)
	assert.Equal(t, strings.Repeat("A", Length), zero)

	var full uuid.UUID
	for i := range full {
		full[i] = 0xff
	}
	maxID := c.Encode(full)
	assert.Equal(t, "D"+strings.Repeat("_", Length-1), maxID)

	one := uuid.UUID{15: 1}
	assert.Equal(t, strings.Repeat("A", Length-1)+"B", c.Encode(one))
}

func TestEncode_FixedWidth(t *testing.T) {
	c := NewCodec()
	for i := 0; i < 1000; i++ {
		id := c.Encode(uuid.New())
		require.Len(t, id, Length)
		require.True(t, c.IsWellFormed(id), "encoded id %q not well-formed", id)
	}
}

func TestRoundTrip_UUIDToID(t *testing.T) {
	c := NewCodec()
	for i := 0; i < 1000; i++ {
		want := uuid.New()
		got, err := c.Decode(c.Encode(want))
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestRoundTrip_IDToUUID(t *testing.T) {
	c := NewCodec()
	samples := []string{
		strings.Repeat("A", Length),
		"D" + strings.Repeat("_", Length-1),
		"B" + strings.Repeat("-", Length-1),
		"CzY0_aB9-qwertyUIOPas1",
		"AAAAAAAAAAAAAAAAAAAAAz",
	}
	for _, s := range samples {
		require.True(t, c.IsWellFormed(s), s)
		id, err := c.Decode(s)
		require.NoError(t, err)
		assert.Equal(t, s, c.Encode(id))
	}
}

func TestEncode_StableAcrossCodecs(t *testing.T) {
	id := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")
	a := NewCodec().Encode(id)
	b := NewCodec().Encode(id)
	assert.Equal(t, a, b)
	assert.Equal(t, a, Default().Encode(id))
}

func TestEncode_CarryIntoNextDigit(t *testing.T) {
	c := NewCodec()
	low := uuid.MustParse("00000000-0000-0000-0000-0000000000ff")
	high := uuid.MustParse("00000000-0000-0000-0000-000000000100")

	a, b := c.Encode(low), c.Encode(high)
	assert.Equal(t, strings.Repeat("A", Length-2)+"D_", a)
	assert.Equal(t, strings.Repeat("A", Length-2)+"EA", b)
}

func TestIsWellFormed_Rejects(t *testing.T) {
	c := NewCodec()
	cases := map[string]string{
		"empty":          "",
		"too short":      strings.Repeat("A", Length-1),
		"too long":       strings.Repeat("A", Length+1),
		"huge":           strings.Repeat("A", 1<<20),
		"plus sign":      strings.Repeat("A", Length-1) + "+",
		"slash":          "/" + strings.Repeat("A", Length-1),
		"padding":        strings.Repeat("A", Length-2) + "==",
		"space":          strings.Repeat("A", Length-1) + " ",
		"overflow lead":  "E" + strings.Repeat("A", Length-1),
		"lowercase lead": "a" + strings.Repeat("A", Length-1),
		"non ascii":      "é" + strings.Repeat("A", Length-2),
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			assert.False(t, c.IsWellFormed(s))
			_, err := c.Decode(s)
			assert.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestDecode_ErrorMessageTruncatesInput(t *testing.T) {
	_, err := NewCodec().Decode(strings.Repeat("x", 4096))
	require.Error(t, err)
	assert.Less(t, len(err.Error()), 100)
}

func TestFromString(t *testing.T) {
	c := NewCodec()

	id, err := c.FromString("00000000-0000-0000-0000-000000000000")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("A", Length), id)

	_, err = c.FromString("not-a-uuid")
	assert.Error(t, err)
}

func TestCodec_ConcurrentUse(t *testing.T) {
	c := NewCodec()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				want := uuid.New()
				got, err := c.Decode(c.Encode(want))
				if err != nil || got != want {
					t.Errorf("round trip mismatch: %v != %v (%v)", got, want, err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
