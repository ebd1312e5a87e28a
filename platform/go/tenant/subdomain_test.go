package tenant

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateSubdomain(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input string
		valid bool
	}{
		{input: "acme", valid: true},
		{input: "a", valid: true},
		{input: "9", valid: true},
		{input: "acme-co", valid: true},
		{input: "a1-b2-c3", valid: true},
		{input: strings.Repeat("a", 63), valid: true},
		{input: strings.Repeat("a", 64), valid: false},
		{input: "", valid: false},
		{input: "Foo_Bar", valid: false},
		{input: "Acme", valid: false},
		{input: "-acme", valid: false},
		{input: "acme-", valid: false},
		{input: "ac.me", valid: false},
		{input: "acme co", valid: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.input, func(t *testing.T) {
			t.Parallel()
			err := ValidateSubdomain(tc.input)
			if tc.valid {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidSubdomain)
		})
	}
}

func TestConfigValidateSubdomain(t *testing.T) {
	t.Parallel()

	cfg := Config{DatabasePrefix: "tenant_", BaseDomain: "localhost"}
	require.Equal(t, 56, cfg.SubdomainLimit())
	require.Equal(t, MaxSubdomainLength, Config{}.SubdomainLimit())

	require.NoError(t, cfg.ValidateSubdomain(strings.Repeat("a", 56)))
	require.ErrorIs(t, cfg.ValidateSubdomain("-acme"), ErrInvalidSubdomain)

	err := cfg.ValidateSubdomain(strings.Repeat("a", 60))
	require.ErrorIs(t, err, ErrSubdomainTooLong)
	require.ErrorIs(t, err, ErrInvalidSubdomain)

	withID := Config{DatabasePrefix: "tenant_", IDPrefix: "t-"}
	require.ErrorIs(t, withID.ValidateSubdomain(strings.Repeat("a", 56)), ErrSubdomainTooLong)
}
