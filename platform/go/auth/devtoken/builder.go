// Package devtoken mints unsigned Firebase-shaped ID tokens for AUTH_PROVIDER=dev.
package devtoken

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Params captures the claims of an unsigned dev token. Nothing is read from the
// environment so the builder stays deterministic for tooling.
type Params struct {
	ProjectID string // used for aud and iss
	// TenantID is emitted as the top-level tenantId claim; the subdomain API uses it to
	// find the caller's domain. Optional: registration-less admin tokens omit it.
	TenantID string
	// FirebaseTenant fills firebase.tenant for Identity Platform multi-tenancy.
	FirebaseTenant         string
	UserID                 string
	Email                  string
	Name                   string
	EmailVerified          bool
	IsAdmin                bool
	Roles                  []string
	FirebaseSignInProvider string        // default "password"
	ExpiresIn              time.Duration // default 1h
	Audience               string        // defaults to ProjectID
	Issuer                 string        // defaults to https://securetoken.google.com/<projectId>
}

func (p Params) validate() error {
	var missing []string
	if strings.TrimSpace(p.ProjectID) == "" {
		missing = append(missing, "projectID")
	}
	if strings.TrimSpace(p.UserID) == "" {
		missing = append(missing, "userID")
	}
	if strings.TrimSpace(p.Email) == "" {
		missing = append(missing, "email")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s required", strings.Join(missing, ", "))
	}
	if p.ExpiresIn < 0 {
		return errors.New("expiresIn must not be negative")
	}
	return nil
}

// BuildUnsignedFirebaseToken returns a JWT string with alg "none" and no signature.
func BuildUnsignedFirebaseToken(p Params, now time.Time) (string, error) {
	if err := p.validate(); err != nil {
		return "", err
	}

	if now.IsZero() {
		now = time.Now().UTC()
	}

	expiresIn := p.ExpiresIn
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	issuer := strings.TrimSpace(p.Issuer)
	if issuer == "" {
		issuer = fmt.Sprintf("https://securetoken.google.com/%s", p.ProjectID)
	}

	audience := strings.TrimSpace(p.Audience)
	if audience == "" {
		audience = p.ProjectID
	}

	signInProvider := strings.TrimSpace(p.FirebaseSignInProvider)
	if signInProvider == "" {
		signInProvider = "password"
	}

	firebaseClaim := map[string]interface{}{
		"identities":       map[string]interface{}{"email": []string{p.Email}},
		"sign_in_provider": signInProvider,
	}
	if p.FirebaseTenant != "" {
		firebaseClaim["tenant"] = p.FirebaseTenant
	}

	payload := map[string]interface{}{
		"iss":            issuer,
		"aud":            audience,
		"auth_time":      now.Unix(),
		"user_id":        p.UserID,
		"sub":            p.UserID,
		"iat":            now.Unix(),
		"exp":            now.Add(expiresIn).Unix(),
		"email":          p.Email,
		"email_verified": p.EmailVerified,
		"isAdmin":        p.IsAdmin,
		"firebase":       firebaseClaim,
	}
	if p.Name != "" {
		payload["name"] = p.Name
	}
	if p.TenantID != "" {
		payload["tenantId"] = p.TenantID
	}
	if len(p.Roles) > 0 {
		payload["roles"] = p.Roles
	}

	headerSegment, err := encodeSegment(map[string]interface{}{"alg": "none", "typ": "JWT"})
	if err != nil {
		return "", err
	}
	payloadSegment, err := encodeSegment(payload)
	if err != nil {
		return "", err
	}

	return headerSegment + "." + payloadSegment + ".", nil
}

func encodeSegment(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
