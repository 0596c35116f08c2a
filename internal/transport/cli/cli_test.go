package cli_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invofox/internal/transport/cli"
)

func memoryEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("KAFKA_ENABLED", "false")
	t.Setenv("DOCUMENTS_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "error")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCmdForTest()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestCommandsHaveHelp(t *testing.T) {
	for _, args := range [][]string{
		{"serve"},
		{"mcp", "serve"},
		{"migrate", "up"},
		{"migrate", "status"},
		{"counter", "peek"},
		{"counter", "allocate"},
		{"invoice", "show"},
		{"invoice", "list"},
		{"documents", "status"},
		{"documents", "retry"},
	} {
		out, err := run(t, append(args, "--help")...)
		require.NoError(t, err, args)
		assert.Contains(t, out, "Usage:", args)
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "invofox dev")
}

func TestCounterAllocate_Memory(t *testing.T) {
	memoryEnv(t)

	out, err := run(t, "counter", "allocate", "c1", "invoice_receipt", "--year", "2031")
	require.NoError(t, err)
	assert.Equal(t, "IR-2031-1\n", out)
}

func TestCounterPeek_NothingIssued(t *testing.T) {
	memoryEnv(t)

	out, err := run(t, "counter", "peek", "c1", "2026", "receipt")
	require.NoError(t, err)
	assert.Contains(t, out, "no numbers issued")
}

func TestArgumentErrors(t *testing.T) {
	memoryEnv(t)

	_, err := run(t, "counter", "peek", "c1", "twenty", "invoice")
	assert.ErrorContains(t, err, "invalid year")

	_, err = run(t, "counter", "allocate", "c1", "quote")
	assert.ErrorContains(t, err, "unknown document type")

	_, err = run(t, "invoice", "list", "c1", "--status", "overdue")
	assert.ErrorContains(t, err, "unknown payment status")

	_, err = run(t, "invoice", "show", "I-2026-1")
	assert.Error(t, err)

	_, err = run(t, "migrate", "up")
	assert.ErrorContains(t, err, "postgres")

	_, err = run(t, "documents", "retry")
	assert.ErrorContains(t, err, "disabled")
}
