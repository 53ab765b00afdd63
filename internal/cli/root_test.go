package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwttoken "enrollment/internal/jwt_token"
	id "enrollment/pkg/domain"
)

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestHelpListsOperatorCommands(t *testing.T) {
	out, err := executeCommand(t, "--help")
	require.NoError(t, err)
	for _, name := range []string{"token", "admin", "reindex", "sweep", "retry-notifications", "outbox"} {
		assert.Contains(t, out, name)
	}
}

func TestTokenIsSignedWithConfiguredKey(t *testing.T) {
	t.Setenv("JWT_SIGNING_KEY", "cli-test-key")
	t.Setenv("JWT_ISSUER", "cli-issuer")
	t.Setenv("JWT_AUDIENCE", "cli-audience")
	adminID := id.NewAdminID()

	out, err := executeCommand(t, "token", "--admin-id", adminID.String(), "--role", "superadmin", "--ttl", "10m")
	require.NoError(t, err)

	svc := jwttoken.NewJWTService("cli-test-key", "cli-issuer", "cli-audience", time.Hour)
	claims, err := svc.ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, adminID.String(), claims.Subject)
	assert.Equal(t, "superadmin", claims.Role)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), claims.ExpiresAt.Time, time.Minute)
}

func TestTokenJSONOutput(t *testing.T) {
	t.Setenv("JWT_SIGNING_KEY", "cli-test-key")
	adminID := id.NewAdminID()

	out, err := executeCommand(t, "token", "--admin-id", adminID.String(), "--json")
	require.NoError(t, err)

	var got tokenOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.NotEmpty(t, got.Token)
	assert.Equal(t, adminID.String(), got.AdminID)
	assert.Equal(t, "admin", got.Role)
}

func TestTokenRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing admin id", args: []string{"token"}, want: "admin-id"},
		{name: "malformed admin id", args: []string{"token", "--admin-id", "nope"}, want: "invalid --admin-id"},
		{name: "system role", args: []string{"token", "--admin-id", id.NewAdminID().String(), "--role", "system"}, want: "invalid --role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestOutboxPruneRejectsNonPositiveAge(t *testing.T) {
	_, err := executeCommand(t, "outbox", "prune", "--older-than", "0s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--older-than")
}
