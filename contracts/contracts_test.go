package contracts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAll(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"registration", "subdomains", "tenants", "users"}, Names())
	for _, name := range Names() {
		spec, err := Load(name)
		require.NoError(t, err, name)
		require.NotEmpty(t, spec.Paths.Map(), name)
	}
}

func TestLoadUnknown(t *testing.T) {
	t.Parallel()

	_, err := Load("missing")
	require.ErrorContains(t, err, `unknown contract "missing"`)
}

func TestSecuredOperations(t *testing.T) {
	t.Parallel()

	spec, err := Load("subdomains")
	require.NoError(t, err)

	update := spec.Paths.Find("/api/subdomain/update").Post
	require.NotNil(t, update.Security)
	require.Contains(t, (*update.Security)[0], "bearerAuth")

	check := spec.Paths.Find("/api/subdomain/check").Post
	require.Nil(t, check.Security)
}
