package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"holidaysync/internal/auth"
	"holidaysync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "holidaysync dev")
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-test-secret")

	out, err := run(t, "token", "--user-id", "admin", "--role", models.RoleAdmin)
	require.NoError(t, err)

	caller, err := auth.NewTokens("cli-test-secret", time.Hour).Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "admin", caller.UserID)
	assert.True(t, caller.IsAdmin())

	_, err = run(t, "token", "--user-id", "u1", "--role", "ROOT")
	assert.Error(t, err)

	_, err = run(t, "token")
	assert.Error(t, err)
}

func TestServeRejectsZeroDecimalCurrency(t *testing.T) {
	t.Setenv("PAYMENT_CURRENCY", "jpy")

	_, err := run(t, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PAYMENT_CURRENCY")
}
