package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractJWTToken(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		want      string
		wantFound bool
	}{
		{"Bearer token", "Bearer abc.def", "abc.def", true},
		{"Lowercase scheme", "bearer abc.def", "abc.def", true},
		{"Padded token", "Bearer   abc.def  ", "abc.def", true},
		{"Basic scheme", "Basic dXNlcjpwYXNz", "", false},
		{"Missing header", "", "", false},
		{"Truncated", "Bear", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/subdomain/current", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, found := ExtractJWTToken(r)
			if got != tt.want || found != tt.wantFound {
				t.Errorf("ExtractJWTToken() = (%q, %v), want (%q, %v)", got, found, tt.want, tt.wantFound)
			}
		})
	}
}
