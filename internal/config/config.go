// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Session store drivers.
const (
	SessionStorePostgres = "postgres"
	SessionStoreBolt     = "bolt"
)

// Role policy engines.
const (
	PolicyEngineBuiltin = "builtin"
	PolicyEngineOPA     = "opa"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health server (e.g. :9090).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// JWTPrivateKey is the PEM-encoded private key or path to file. Only needed to issue tokens (worklinectl seed).
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file. When empty, bearer JWTs are not accepted.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`

	// SessionCookieName is the cookie carrying the opaque session token.
	SessionCookieName string `mapstructure:"SESSION_COOKIE_NAME"`
	// SessionTTL is the lifetime of sessions created by worklinectl seed (e.g. "168h").
	SessionTTL string `mapstructure:"SESSION_TTL"`
	// SessionStore selects the session driver: postgres or bolt.
	SessionStore string `mapstructure:"SESSION_STORE"`
	// SessionBoltPath is the bbolt file used when SessionStore is bolt.
	SessionBoltPath string `mapstructure:"SESSION_BOLT_PATH"`

	// RolePolicyEngine selects the tier policy: builtin or opa.
	RolePolicyEngine string `mapstructure:"ROLE_POLICY_ENGINE"`
	// RolePolicyFile is an optional Rego file overriding the embedded policy when the engine is opa.
	RolePolicyFile string `mapstructure:"ROLE_POLICY_FILE"`

	// InvitationTTL is how long an invitation stays acceptable (e.g. "48h").
	InvitationTTL string `mapstructure:"INVITATION_TTL"`

	// TrustedOrigins is a comma-separated list of origins allowed to make credentialed requests.
	TrustedOrigins string `mapstructure:"TRUSTED_ORIGINS"`
	// TrustedProxies is a comma-separated list of proxy IPs or CIDRs whose X-Forwarded-For and
	// X-Real-IP headers are honored. Empty keys clients by their remote address.
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`
	// RateLimitRPS is the sustained request rate per client IP. Zero disables rate limiting.
	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	// OTLPEndpoint is the OTLP gRPC collector. Empty disables export.
	OTLPEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTELServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "workline-auth")
	v.SetDefault("JWT_AUDIENCE", "workline-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("SESSION_COOKIE_NAME", "workline.session_token")
	v.SetDefault("SESSION_TTL", "168h") // 7d
	v.SetDefault("SESSION_STORE", SessionStorePostgres)
	v.SetDefault("SESSION_BOLT_PATH", "workline-sessions.db")
	v.SetDefault("ROLE_POLICY_ENGINE", PolicyEngineBuiltin)
	v.SetDefault("ROLE_POLICY_FILE", "")
	v.SetDefault("INVITATION_TTL", "48h")
	v.SetDefault("TRUSTED_ORIGINS", "")
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "workline-backend")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	switch c.SessionStore {
	case SessionStorePostgres:
	case SessionStoreBolt:
		if c.SessionBoltPath == "" {
			return errors.New("config: SESSION_BOLT_PATH must be set when SESSION_STORE=bolt")
		}
	default:
		return fmt.Errorf("config: SESSION_STORE must be postgres or bolt, got %q", c.SessionStore)
	}
	if c.RolePolicyEngine != PolicyEngineBuiltin && c.RolePolicyEngine != PolicyEngineOPA {
		return fmt.Errorf("config: ROLE_POLICY_ENGINE must be builtin or opa, got %q", c.RolePolicyEngine)
	}
	if c.RateLimitRPS < 0 {
		return errors.New("config: RATE_LIMIT_RPS must not be negative")
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return errors.New("config: RATE_LIMIT_BURST must be at least 1")
	}
	if _, err := c.slogLevel(); err != nil {
		return err
	}
	for _, p := range c.TrustedProxyList() {
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			return fmt.Errorf("config: TRUSTED_PROXIES entry %q is not an IP or CIDR", p)
		}
	}
	if c.Env == "production" && len(c.TrustedOriginList()) == 0 {
		return errors.New("config: TRUSTED_ORIGINS must be set when APP_ENV=production")
	}
	return nil
}

func parseTTL(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// AccessTTL parses JWTAccessTTL. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseTTL(c.JWTAccessTTL, 15*time.Minute)
}

// SessionLifetime parses SessionTTL. Returns 168h if unset or invalid.
func (c *Config) SessionLifetime() time.Duration {
	return parseTTL(c.SessionTTL, 168*time.Hour)
}

// InvitationLifetime parses InvitationTTL. Returns 48h if unset or invalid.
func (c *Config) InvitationLifetime() time.Duration {
	return parseTTL(c.InvitationTTL, 48*time.Hour)
}

// TrustedOriginList returns the origins from the comma-separated config.
func (c *Config) TrustedOriginList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.TrustedOrigins)
}

// TrustedProxyList returns the proxy addresses from the comma-separated config.
func (c *Config) TrustedProxyList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.TrustedProxies)
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) slogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	return lvl, nil
}

// Level returns the configured slog level. Load has already validated it.
func (c *Config) Level() slog.Level {
	lvl, _ := c.slogLevel()
	return lvl
}
