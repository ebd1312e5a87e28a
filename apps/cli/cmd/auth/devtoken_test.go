package auth

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	platformauth "github.com/zenGate-Global/palmyra-tenancy/platform/go/auth"
)

func TestDevTokenCommand(t *testing.T) {
	t.Parallel()

	cmd := Command()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"devtoken", "--project-id", "palmyra-dev", "--user-id", "u-1", "--email", "ada@example.test", "--tenant-id", "acme", "--admin"})
	require.NoError(t, cmd.Execute())

	token := strings.TrimSpace(out.String())
	claims, err := platformauth.UnsignedTokenVerifier()(context.Background(), token)
	require.NoError(t, err)

	creds, err := platformauth.CredentialsFromClaims(claims)
	require.NoError(t, err)
	require.Equal(t, "u-1", creds.UserID)
	require.True(t, creds.IsAdmin)
	require.NotNil(t, creds.TenantID)
	require.Equal(t, "acme", *creds.TenantID)
}

func TestDevTokenRequiresFlags(t *testing.T) {
	t.Parallel()

	cmd := Command()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"devtoken", "--project-id", "palmyra-dev"})
	require.Error(t, cmd.Execute())
}
