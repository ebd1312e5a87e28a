// Package config holds the env-driven settings shared by the API server and the CLI.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	platformauth "github.com/zenGate-Global/palmyra-tenancy/platform/go/auth"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// DefaultConnection selects Database.URL in Resolve.
const DefaultConnection = "default"

// Database configures the central catalog connection.
type Database struct {
	URL string `env:"DATABASE_URL,required,notEmpty"`
	// Connections names alternative DSNs for the CLI --database selector,
	// e.g. DB_CONNECTIONS="reporting|postgres://...;staging|postgres://...".
	Connections         map[string]string `env:"DB_CONNECTIONS" envSeparator:";" envKeyValSeparator:"|"`
	MaxConns            int32             `env:"DB_MAX_CONNS" envDefault:"10"`
	MinConns            int32             `env:"DB_MIN_CONNS" envDefault:"0"`
	MaxConnLifetime     time.Duration     `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	MaxConnIdleTime     time.Duration     `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"10m"`
	HealthCheckInterval time.Duration     `env:"DB_HEALTH_CHECK_INTERVAL"`
	LockTimeout         time.Duration     `env:"DB_LOCK_TIMEOUT" envDefault:"30s"`
}

// Resolve returns the DSN for a named connection. Empty and "default" map to URL.
func (d Database) Resolve(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == DefaultConnection {
		return d.URL, nil
	}
	if dsn, ok := d.Connections[name]; ok && strings.TrimSpace(dsn) != "" {
		return dsn, nil
	}

	known := make([]string, 0, len(d.Connections)+1)
	known = append(known, DefaultConnection)
	for k := range d.Connections {
		known = append(known, k)
	}
	sort.Strings(known[1:])
	return "", fmt.Errorf("unknown database connection %q (known: %s)", name, strings.Join(known, ", "))
}

// ConnConfig builds the catalog connection settings for a named connection. application
// tags the sessions so API and CLI work can be told apart on the server.
func (d Database) ConnConfig(name, application string) (persistence.ConnConfig, error) {
	dsn, err := d.Resolve(name)
	if err != nil {
		return persistence.ConnConfig{}, err
	}
	return persistence.ConnConfig{
		DSN:               dsn,
		ApplicationName:   application,
		LockTimeout:       d.LockTimeout,
		MaxConns:          d.MaxConns,
		MinConns:          d.MinConns,
		MaxConnLifetime:   d.MaxConnLifetime,
		MaxConnIdleTime:   d.MaxConnIdleTime,
		HealthCheckPeriod: d.HealthCheckInterval,
	}, nil
}

// Migrations configures the CLI migration runner.
type Migrations struct {
	// BasePath resolves relative --path values unless --realpath is given.
	BasePath string `env:"MIGRATIONS_BASE_PATH" envDefault:"."`
}

// API is the full API server configuration.
type API struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	AuthProvider    string        `env:"AUTH_PROVIDER" envDefault:"firebase"` // firebase | dev
	CORSOrigins     []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	RedisURL        string        `env:"REDIS_URL"`
	DomainCacheTTL  time.Duration `env:"DOMAIN_CACHE_TTL" envDefault:"5m"`

	Database Database
	Tenancy  tenant.Config
	Firebase platformauth.FirebaseConfig
}

// CLI is the configuration of the admin CLI. DATABASE_URL stays required so a
// misconfigured shell never points destructive commands at a default server.
type CLI struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	Database   Database
	Tenancy    tenant.Config
	Migrations Migrations
}

// LoadAPI parses the API configuration from the environment.
func LoadAPI() (API, error) {
	return env.ParseAs[API]()
}

// LoadCLI parses the CLI configuration from the environment.
func LoadCLI() (CLI, error) {
	return env.ParseAs[CLI]()
}
