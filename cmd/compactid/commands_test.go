package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/versioned-store/internal/core/compactid"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"encode", "decode", "new", "check"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	out, err := run(t, "encode", "00000000-0000-0000-0000-000000000001")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	assert.Equal(t, strings.Repeat("A", compactid.Length-1)+"B", id)

	out, err = run(t, "decode", id)
	require.NoError(t, err)
	assert.Equal(t, "00000000-0000-0000-0000-000000000001", strings.TrimSpace(out))

	_, err = run(t, "decode", "E"+id[1:])
	assert.ErrorIs(t, err, compactid.ErrFormat)

	_, err = run(t, "encode", "not-a-uuid")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	out, err := run(t, "new", "-n", "3")
	require.NoError(t, err)
	lines := strings.Fields(out)
	require.Len(t, lines, 3)
	for _, id := range lines {
		assert.True(t, compactid.Default().IsWellFormed(id))
	}

	out, err = run(t, "new", "--json")
	require.NoError(t, err)
	var ids []string
	require.NoError(t, json.Unmarshal([]byte(out), &ids))
	assert.Len(t, ids, 1)

	_, err = run(t, "new", "-n", "0")
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	out, err := run(t, "check", compactid.Default().New())
	require.NoError(t, err)
	assert.Equal(t, "valid", strings.TrimSpace(out))

	out, err = run(t, "check", "--json", "short")
	assert.ErrorIs(t, err, compactid.ErrFormat)
	assert.JSONEq(t, `{"id":"short","valid":false}`, out)
}
