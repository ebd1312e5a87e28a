package auth

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// FirebaseConfig locates the service account used to verify ID tokens. With an empty
// CredentialsFile the application default credentials are used.
type FirebaseConfig struct {
	CredentialsFile string `env:"FIREBASE_CONFIG"`
	ProjectID       string `env:"GCLOUD_PROJECT"`
}

// InitFirebaseAuth initializes the Firebase App and returns an Auth client.
func InitFirebaseAuth(ctx context.Context, cfg FirebaseConfig) (*firebaseauth.Client, error) {
	var appCfg *firebase.Config
	if strings.TrimSpace(cfg.ProjectID) != "" {
		appCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, appCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app [%w]", err)
	}

	fbAuth, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase auth [%w]", err)
	}
	return fbAuth, nil
}

// FirebaseTokenVerifier verifies ID tokens with Firebase Auth. The Firebase tenant, when
// the project uses multi-tenancy, is exposed under claims["firebase"]["tenant"].
func FirebaseTokenVerifier(client *firebaseauth.Client) VerifyFunc {
	return func(ctx context.Context, token string) (Claims, error) {
		t, err := client.VerifyIDToken(ctx, token)
		if err != nil {
			return nil, err
		}

		claims := make(Claims, len(t.Claims)+3)
		for k, v := range t.Claims {
			claims[k] = v
		}
		claims["uid"] = t.UID
		claims["sub"] = t.Subject
		if t.Firebase.Tenant != "" {
			nested, _ := claims["firebase"].(map[string]any)
			if nested == nil {
				nested = map[string]any{}
			}
			nested["tenant"] = t.Firebase.Tenant
			claims["firebase"] = nested
		}
		return claims, nil
	}
}
