package config

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/text/language"

	"github.com/BlackMission/idpauth/internal/auth"
	"github.com/BlackMission/idpauth/internal/domain"
)

const defaultAPIBaseURL = "https://identitytoolkit.googleapis.com"

// Config is the top-level application configuration.
type Config struct {
	App       AppConfig
	Channel   ChannelConfig
	Timeouts  TimeoutConfig
	Log       LogConfig
	Tracing   TracingConfig
	Providers []ProviderConfig
}

// AppConfig holds the auth instance settings.
type AppConfig struct {
	Name        string
	APIKey      string
	AuthDomain  string
	APIBaseURL  string
	RedirectURL string
	SDKVersion  string
	Language    string
	TenantID    string
}

// ChannelConfig holds the loopback listener settings.
type ChannelConfig struct {
	Host string
	Port int
}

// TimeoutConfig holds operation time limits.
type TimeoutConfig struct {
	Popup   time.Duration
	HTTP    time.Duration
	Settled time.Duration
}

// LogConfig holds logger settings.
type LogConfig struct {
	Env   string
	Level string
}

// TracingConfig holds the span export settings.
type TracingConfig struct {
	Endpoint string
	Disabled bool
}

// ProviderConfig holds one configured identity provider.
type ProviderConfig struct {
	Key              string
	ID               string
	Scopes           []string
	CustomParameters map[string]string
}

// LoadDotEnv loads .env files into the environment without overriding
// variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrInvalidConfig, p, err)
		}
	}
	return nil
}

// rawEnv holds the scalar settings parsed from environment variables.
type rawEnv struct {
	AppName      string        `env:"IDPAUTH_APP_NAME"`
	APIKey       string        `env:"IDPAUTH_API_KEY"`
	AuthDomain   string        `env:"IDPAUTH_AUTH_DOMAIN"`
	APIBaseURL   string        `env:"IDPAUTH_API_URL"`
	RedirectURL  string        `env:"IDPAUTH_REDIRECT_URL"`
	SDKVersion   string        `env:"IDPAUTH_SDK_VERSION"`
	Language     string        `env:"IDPAUTH_LANGUAGE"`
	TenantID     string        `env:"IDPAUTH_TENANT_ID"`
	ChannelHost  string        `env:"IDPAUTH_CHANNEL_HOST"  envDefault:"127.0.0.1"`
	ChannelPort  int           `env:"IDPAUTH_CHANNEL_PORT"  envDefault:"0"`
	PopupTimeout time.Duration `env:"IDPAUTH_POPUP_TIMEOUT" envDefault:"5m"`
	HTTPTimeout  time.Duration `env:"IDPAUTH_HTTP_TIMEOUT"  envDefault:"10s"`
	SettledTTL   time.Duration `env:"IDPAUTH_SETTLED_TTL"   envDefault:"10m"`
	LogEnv       string        `env:"IDPAUTH_LOG_ENV"       envDefault:"dev"`
	LogLevel     string        `env:"IDPAUTH_LOG_LEVEL"     envDefault:"info"`
	OTelEndpoint string        `env:"IDPAUTH_OTEL_ENDPOINT"`
	OTelDisabled bool          `env:"IDPAUTH_OTEL_DISABLED"`
}

// LoadFromEnv reads configuration purely from environment variables.
func LoadFromEnv() (*Config, error) {
	var raw rawEnv
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:        valueOr(raw.AppName, domain.DefaultAppName),
			APIKey:      raw.APIKey,
			AuthDomain:  raw.AuthDomain,
			APIBaseURL:  strings.TrimSuffix(valueOr(raw.APIBaseURL, defaultAPIBaseURL), "/"),
			RedirectURL: raw.RedirectURL,
			SDKVersion:  valueOr(raw.SDKVersion, domain.SDKVersion),
			Language:    raw.Language,
			TenantID:    raw.TenantID,
		},
		Channel: ChannelConfig{
			Host: valueOr(raw.ChannelHost, "127.0.0.1"),
			Port: raw.ChannelPort,
		},
		Timeouts: TimeoutConfig{
			Popup:   raw.PopupTimeout,
			HTTP:    raw.HTTPTimeout,
			Settled: raw.SettledTTL,
		},
		Log: LogConfig{
			Env:   raw.LogEnv,
			Level: raw.LogLevel,
		},
		Tracing: TracingConfig{
			Endpoint: raw.OTelEndpoint,
			Disabled: raw.OTelDisabled,
		},
	}

	if raw.Language != "" {
		tag, err := language.Parse(raw.Language)
		if err != nil {
			return nil, fmt.Errorf("%w: IDPAUTH_LANGUAGE: %v", domain.ErrInvalidConfig, err)
		}
		cfg.App.Language = tag.String()
	}

	// Provider discovery: scan env for PROVIDER_<KEY>_ID
	providers, err := discoverProviders()
	if err != nil {
		return nil, err
	}
	cfg.Providers = providers

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// AuthConfig returns the settings of the auth instance.
func (c *Config) AuthConfig() auth.Config {
	return auth.Config{
		APIKey:      c.App.APIKey,
		AuthDomain:  c.App.AuthDomain,
		APIBaseURL:  c.App.APIBaseURL,
		RedirectURL: c.App.RedirectURL,
		SDKVersion:  c.App.SDKVersion,
	}
}

// Registry builds a provider registry from the discovered providers.
func (c *Config) Registry() (*auth.Registry, error) {
	r := auth.NewRegistry()
	for _, p := range c.Providers {
		if err := r.RegisterOAuth(p.ID, p.Scopes, p.CustomParameters); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// discoverProviders scans environment variables for PROVIDER_<KEY>_ID
// patterns and builds provider configs from related env vars.
func discoverProviders() ([]ProviderConfig, error) {
	var prefixes []string
	seen := make(map[string]bool)

	for _, kv := range os.Environ() {
		key, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if !strings.HasPrefix(key, "PROVIDER_") || !strings.HasSuffix(key, "_ID") {
			continue
		}

		// PROVIDER_GOOGLE_ID → PROVIDER_GOOGLE
		prefix := strings.TrimSuffix(key, "_ID")
		if prefix == "PROVIDER" || seen[prefix] {
			continue
		}
		seen[prefix] = true
		prefixes = append(prefixes, prefix)
	}

	sort.Strings(prefixes)

	providers := make([]ProviderConfig, 0, len(prefixes))
	for _, prefix := range prefixes {
		id := os.Getenv(prefix + "_ID")
		if id == "" {
			continue
		}
		params, err := splitPairs(os.Getenv(prefix + "_PARAMS"))
		if err != nil {
			return nil, fmt.Errorf("%w: %s_PARAMS: %v", domain.ErrInvalidConfig, prefix, err)
		}
		providers = append(providers, ProviderConfig{
			Key:              strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(prefix, "PROVIDER_"), "_", "-")),
			ID:               id,
			Scopes:           splitComma(os.Getenv(prefix + "_SCOPES")),
			CustomParameters: params,
		})
	}

	return providers, nil
}

func validate(cfg *Config) error {
	if cfg.App.APIKey == "" {
		return fmt.Errorf("%w: IDPAUTH_API_KEY is required", domain.ErrMissingConfig)
	}
	if cfg.App.AuthDomain == "" {
		return fmt.Errorf("%w: IDPAUTH_AUTH_DOMAIN is required", domain.ErrMissingConfig)
	}
	if strings.Contains(cfg.App.AuthDomain, "/") {
		return fmt.Errorf("%w: IDPAUTH_AUTH_DOMAIN must be a host name", domain.ErrInvalidConfig)
	}
	if cfg.Channel.Port < 0 || cfg.Channel.Port > 65535 {
		return fmt.Errorf("%w: IDPAUTH_CHANNEL_PORT out of range", domain.ErrInvalidConfig)
	}
	if cfg.Timeouts.Popup <= 0 || cfg.Timeouts.HTTP <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", domain.ErrInvalidConfig)
	}
	if ep := cfg.Tracing.Endpoint; ep != "" {
		u, err := url.Parse(ep)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: IDPAUTH_OTEL_ENDPOINT must be an http(s) URL", domain.ErrInvalidConfig)
		}
	}
	seen := make(map[string]bool)
	for _, p := range cfg.Providers {
		if seen[p.ID] {
			return fmt.Errorf("%w: provider %q configured twice", domain.ErrInvalidConfig, p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

func valueOr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// splitPairs parses "k=v,k=v" into a map.
func splitPairs(s string) (map[string]string, error) {
	items := splitComma(s)
	if len(items) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(items))
	for _, item := range items {
		k, v, ok := strings.Cut(item, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("malformed pair %q", item)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}
