package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adminhttp "github.com/offertesting/outreach_services/internal/scheduler_service/adapters/http"
)

func runHashAPIKey(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"hash-api-key"}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestHashAPIKeyCmd(t *testing.T) {
	fromArg, err := runHashAPIKey(t, "", "s3cret-key")
	require.NoError(t, err)
	assert.Len(t, fromArg, 64)
	assert.Equal(t, adminhttp.HashAPIKey("s3cret-key"), fromArg)

	fromStdin, err := runHashAPIKey(t, "s3cret-key\n")
	require.NoError(t, err)
	assert.Equal(t, fromArg, fromStdin, "argument and stdin give the same hash")

	other, err := runHashAPIKey(t, "", "another-key")
	require.NoError(t, err)
	assert.NotEqual(t, fromArg, other)

	_, err = runHashAPIKey(t, "\n")
	assert.ErrorContains(t, err, "must not be empty")
}
