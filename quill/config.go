package quill

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config contains client-wide configuration. It carries transport knobs
// only; provider credentials travel with each call in ProviderConfig.
type Config struct {
	// BackendURL is the base of the backend-proxy contract
	// (/generate, /generate-stream, /find-related).
	BackendURL string

	// Shared client options.
	HTTPClient *http.Client
	// RequestTimeout bounds each non-streaming attempt. Zero means 120s.
	RequestTimeout time.Duration

	// Retry applies to non-streaming backend-proxy calls only.
	Retry RetryConfig

	// StreamBufferSize sets the event channel buffer (default: 64).
	StreamBufferSize int

	Logger *slog.Logger
	Locale Locale
}

const (
	defaultRequestTimeout   = 120 * time.Second
	defaultStreamBufferSize = 64
)

func (c Config) withDefaults() Config {
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.Retry.MaxAttempts == 0 && c.Retry.Delay == 0 {
		c.Retry = DefaultRetryConfig
	}
	if c.StreamBufferSize <= 0 {
		c.StreamBufferSize = defaultStreamBufferSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	c.BackendURL = strings.TrimRight(c.BackendURL, "/")
	return c
}

// FileConfig is the on-disk application configuration: the execution mode,
// the backend location and the provider table. It is loaded once and the
// caller passes the relevant ProviderConfig into every call.
type FileConfig struct {
	Mode           string           `mapstructure:"mode"`
	BackendURL     string           `mapstructure:"backend_url"`
	RequestTimeout time.Duration    `mapstructure:"request_timeout"`
	RetryAttempts  int              `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration    `mapstructure:"retry_delay"`
	Locale         string           `mapstructure:"locale"`
	Providers      []ProviderConfig `mapstructure:"providers"`

	// DetectEnv fills missing provider keys from <ID>_API_KEY.
	DetectEnv bool `mapstructure:"detect_env"`
}

// LoadFileConfig reads a YAML/JSON/TOML config file. A .env file next to the
// working directory is loaded first (missing is fine) and QUILL_* environment
// variables override file values, e.g. QUILL_BACKEND_URL.
func LoadFileConfig(path string) (*FileConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("quill: load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("QUILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", ModeBackendProxy.String())
	v.SetDefault("backend_url", "http://127.0.0.1:5000")
	v.SetDefault("request_timeout", defaultRequestTimeout)
	v.SetDefault("retry_attempts", DefaultRetryConfig.MaxAttempts)
	v.SetDefault("retry_delay", DefaultRetryConfig.Delay)
	v.SetDefault("locale", "en")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("quill: read config %s: %w", path, err)
	}

	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("quill: decode config %s: %w", path, err)
	}
	if _, err := ParseExecutionMode(fc.Mode); err != nil {
		return nil, err
	}
	if fc.DetectEnv {
		for i := range fc.Providers {
			p := &fc.Providers[i]
			if p.APIKey == "" {
				p.APIKey = os.Getenv(envKeyName(p.ID))
			}
		}
	}
	return &fc, nil
}

func envKeyName(providerID string) string {
	r := strings.NewReplacer("-", "_", ".", "_", " ", "_")
	return strings.ToUpper(r.Replace(providerID)) + "_API_KEY"
}

// ClientConfig converts the file settings into a Config for New.
func (fc *FileConfig) ClientConfig(logger *slog.Logger) Config {
	cfg := Config{
		BackendURL:     fc.BackendURL,
		RequestTimeout: fc.RequestTimeout,
		Retry: RetryConfig{
			MaxAttempts: fc.RetryAttempts,
			Delay:       fc.RetryDelay,
		},
		Logger: logger,
	}
	if strings.HasPrefix(strings.ToLower(fc.Locale), "zh") {
		cfg.Locale = LocaleChinese
	}
	return cfg
}

// ExecutionMode parses the configured mode.
func (fc *FileConfig) ExecutionMode() ExecutionMode {
	m, _ := ParseExecutionMode(fc.Mode)
	return m
}

// Provider returns the provider with the given ID.
func (fc *FileConfig) Provider(id string) (ProviderConfig, bool) {
	for _, p := range fc.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// ParseExecutionMode accepts "backend", "backend-proxy", "frontend",
// "frontend-direct" (case-insensitive).
func ParseExecutionMode(s string) (ExecutionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "backend", "backend-proxy", "backendproxy":
		return ModeBackendProxy, nil
	case "frontend", "frontend-direct", "frontenddirect":
		return ModeFrontendDirect, nil
	default:
		return 0, configErr("", "mode", "unknown execution mode %q", s)
	}
}
