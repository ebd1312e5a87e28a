package devtoken

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestBuildUnsignedFirebaseToken(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()

	token, err := BuildUnsignedFirebaseToken(Params{
		ProjectID:     "local-tenancy",
		TenantID:      "acme",
		UserID:        "owner-123",
		Email:         "owner@acme.test",
		Name:          "Acme Owner",
		EmailVerified: true,
		Roles:         []string{"owner"},
		ExpiresIn:     30 * time.Minute,
	}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(token, ".") {
		t.Fatalf("unsigned token must end with an empty signature: %q", token)
	}

	header, payload := splitToken(t, token)
	if got, want := header["alg"], "none"; got != want {
		t.Fatalf("header alg = %v, want %v", got, want)
	}

	if got, want := payload["iss"], "https://securetoken.google.com/local-tenancy"; got != want {
		t.Errorf("iss = %v, want %v", got, want)
	}
	if got, want := payload["aud"], "local-tenancy"; got != want {
		t.Errorf("aud = %v, want %v", got, want)
	}
	if got, want := payload["sub"], "owner-123"; got != want {
		t.Errorf("sub = %v, want %v", got, want)
	}
	if got, want := payload["tenantId"], "acme"; got != want {
		t.Errorf("tenantId = %v, want %v", got, want)
	}
	if got, want := payload["exp"], float64(now.Add(30*time.Minute).Unix()); got != want {
		t.Errorf("exp = %v, want %v", got, want)
	}

	firebaseClaim, ok := payload["firebase"].(map[string]interface{})
	if !ok {
		t.Fatalf("firebase claim missing or invalid type: %T", payload["firebase"])
	}
	if _, present := firebaseClaim["tenant"]; present {
		t.Errorf("firebase.tenant should be omitted without FirebaseTenant")
	}
	if got, want := firebaseClaim["sign_in_provider"], "password"; got != want {
		t.Errorf("firebase.sign_in_provider = %v, want %v", got, want)
	}

	roles, ok := payload["roles"].([]interface{})
	if !ok || len(roles) != 1 || roles[0] != "owner" {
		t.Errorf("roles = %v, want [\"owner\"]", payload["roles"])
	}
}

func TestBuildUnsignedFirebaseTokenRequiresIdentity(t *testing.T) {
	_, err := BuildUnsignedFirebaseToken(Params{ProjectID: "local-tenancy"}, time.Time{})
	if err == nil {
		t.Fatal("expected error for missing user id and email")
	}
	if !strings.Contains(err.Error(), "userID, email") {
		t.Errorf("error = %v, want both missing fields named", err)
	}
}

func splitToken(t *testing.T, token string) (map[string]interface{}, map[string]interface{}) {
	t.Helper()
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		t.Fatalf("invalid token format: %q", token)
	}
	return decodeSegment(t, parts[0]), decodeSegment(t, parts[1])
}

func decodeSegment(t *testing.T, segment string) map[string]interface{} {
	t.Helper()
	raw, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		t.Fatalf("decode segment: %v", err)
	}

	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal segment: %v", err)
	}
	return out
}
