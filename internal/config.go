package internal

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/strikezone/internal/enrich"
	"github.com/starford/strikezone/internal/enrich/dataforseo"
	"github.com/starford/strikezone/internal/match"
	"github.com/starford/strikezone/internal/pipeline"
	"github.com/starford/strikezone/internal/report"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Auth       AuthConfig        `yaml:"auth"`
	Analysis   AnalysisConfig    `yaml:"analysis"`
	Enrichment EnrichmentConfig  `yaml:"enrichment"`
	Cache      CacheConfig       `yaml:"cache"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Analysis.Validate(); err != nil {
		return err
	}
	return c.Enrichment.Validate()
}

// RunConfig returns the per-run settings derived from the configuration.
func (c *Config) RunConfig() pipeline.Config {
	return pipeline.Config{
		Match:          c.Analysis.Thresholds,
		Enrich:         c.Enrichment.Enabled,
		OverrideVolume: c.Enrichment.OverrideVolume,
	}
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// AnalysisConfig holds the default thresholds applied to every run.
type AnalysisConfig struct {
	Thresholds  match.Config `yaml:",inline"`
	TopKeywords int          `yaml:"top_keywords"`
}

// Validate validates the analysis configuration.
func (c *AnalysisConfig) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return fmt.Errorf("analysis: %w", err)
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.TopKeywords, validation.Required, validation.Min(1), validation.Max(50)),
	)
}

// EnrichmentConfig holds the keyword metrics provider settings.
type EnrichmentConfig struct {
	Enabled        bool          `yaml:"enabled"`
	OverrideVolume bool          `yaml:"override_volume"`
	BaseURL        string        `yaml:"base_url"`
	Login          string        `yaml:"login"`
	Password       string        `yaml:"password"`
	LocationCode   int           `yaml:"location_code"`
	LanguageCode   string        `yaml:"language_code"`
	BatchSize      int           `yaml:"batch_size"`
	Workers        int           `yaml:"workers"`
	MaxAttempts    int           `yaml:"max_attempts"`
	Backoff        time.Duration `yaml:"backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Timeout        time.Duration `yaml:"timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Validate validates the enrichment configuration. Credentials are only
// required when enrichment is enabled.
func (c *EnrichmentConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.BatchSize, validation.Required, validation.Min(1), validation.Max(enrich.MaxBatchSize)),
		validation.Field(&c.Workers, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxAttempts, validation.Required, validation.Min(1)),
		validation.Field(&c.Backoff, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxBackoff, validation.Min(c.Backoff)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	); err != nil {
		return fmt.Errorf("enrichment: %w", err)
	}
	if !c.Enabled {
		return nil
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Login, validation.Required),
		validation.Field(&c.Password, validation.Required),
	); err != nil {
		return fmt.Errorf("enrichment: %w", err)
	}
	return nil
}

// Configured reports whether provider credentials are present.
func (c *EnrichmentConfig) Configured() bool {
	return c.Login != "" && c.Password != ""
}

// Provider builds the DataForSEO client.
func (c *EnrichmentConfig) Provider() *dataforseo.Client {
	return dataforseo.New(dataforseo.Config{
		BaseURL:      c.BaseURL,
		Login:        c.Login,
		Password:     c.Password,
		LocationCode: c.LocationCode,
		LanguageCode: c.LanguageCode,
	}, dataforseo.WithHTTPClient(&http.Client{Timeout: c.RequestTimeout}))
}

// ClientOptions returns the enrichment client options.
func (c *EnrichmentConfig) ClientOptions() []enrich.Option {
	return []enrich.Option{
		enrich.WithBatchSize(c.BatchSize),
		enrich.WithWorkers(c.Workers),
		enrich.WithRetryMaxAttempts(c.MaxAttempts),
		enrich.WithRetryBackoff(c.Backoff, c.MaxBackoff),
		enrich.WithTimeout(c.Timeout),
	}
}

// CacheConfig holds the persistent metrics cache settings. An empty path
// disables persistence and run history.
type CacheConfig struct {
	Path string        `yaml:"path"`
	TTL  time.Duration `yaml:"ttl"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Analysis: AnalysisConfig{
			Thresholds:  match.DefaultConfig(),
			TopKeywords: report.DefaultTop,
		},
		Enrichment: EnrichmentConfig{
			BaseURL:        dataforseo.DefaultBaseURL,
			LocationCode:   dataforseo.DefaultLocationCode,
			LanguageCode:   dataforseo.DefaultLanguageCode,
			BatchSize:      enrich.MaxBatchSize,
			Workers:        2,
			MaxAttempts:    3,
			Backoff:        500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			Timeout:        5 * time.Minute,
			RequestTimeout: 60 * time.Second,
		},
		Cache: CacheConfig{
			Path: "./strikezone.db",
			TTL:  30 * 24 * time.Hour,
		},
	}
}
