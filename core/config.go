package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultAPIBaseURL   = "https://api.staging.vendit.online"
	DefaultAuthTokenURL = "https://oauth.staging.vendit.online/Api/GetToken"

	DefaultTokenMargin    = 120 * time.Second
	DefaultMaxAttempts    = 5
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 30 * time.Second
	DefaultPageSize       = 100
	DefaultRequestTimeout = 30 * time.Second
)

type APIConfig struct {
	BaseURL   string        `koanf:"base_url" mapstructure:"base_url"`
	Timeout   time.Duration `koanf:"timeout" mapstructure:"timeout"`
	UserAgent string        `koanf:"user_agent" mapstructure:"user_agent"`
}

type AuthConfig struct {
	TokenURL       string        `koanf:"token_url" mapstructure:"token_url"`
	APIKey         string        `koanf:"api_key" mapstructure:"api_key"`
	Username       string        `koanf:"username" mapstructure:"username"`
	Password       string        `koanf:"password" mapstructure:"password"`
	TokenMargin    time.Duration `koanf:"token_margin" mapstructure:"token_margin"`
	MaxAttempts    int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
}

type SyncConfig struct {
	StartDate   string `koanf:"start_date" mapstructure:"start_date"`
	PageSize    int    `koanf:"page_size" mapstructure:"page_size"`
	MaxAttempts int    `koanf:"max_attempts" mapstructure:"max_attempts"`
}

type StateConfig struct {
	Path string `koanf:"path" mapstructure:"path"`
}

type Config struct {
	ServiceName string      `koanf:"service_name" mapstructure:"service_name"`
	API         APIConfig   `koanf:"api" mapstructure:"api"`
	Auth        AuthConfig  `koanf:"auth" mapstructure:"auth"`
	Sync        SyncConfig  `koanf:"sync" mapstructure:"sync"`
	State       StateConfig `koanf:"state" mapstructure:"state"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "vendit",
		API: APIConfig{
			BaseURL: DefaultAPIBaseURL,
			Timeout: DefaultRequestTimeout,
		},
		Auth: AuthConfig{
			TokenURL:       DefaultAuthTokenURL,
			TokenMargin:    DefaultTokenMargin,
			MaxAttempts:    DefaultMaxAttempts,
			InitialBackoff: DefaultInitialBackoff,
			MaxBackoff:     DefaultMaxBackoff,
		},
		Sync: SyncConfig{
			PageSize:    DefaultPageSize,
			MaxAttempts: DefaultMaxAttempts,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return fmt.Errorf("core: api.base_url is required")
	}
	if _, err := url.Parse(strings.TrimSpace(c.API.BaseURL)); err != nil {
		return fmt.Errorf("core: api.base_url is invalid: %w", err)
	}
	if strings.TrimSpace(c.Auth.TokenURL) == "" {
		return fmt.Errorf("core: auth.token_url is required")
	}
	if c.Auth.MaxAttempts < 0 || c.Sync.MaxAttempts < 0 {
		return fmt.Errorf("core: max_attempts must not be negative")
	}
	if c.Sync.PageSize < 0 {
		return fmt.Errorf("core: sync.page_size must not be negative")
	}
	if start := strings.TrimSpace(c.Sync.StartDate); start != "" {
		if _, err := time.Parse(time.RFC3339, start); err != nil {
			return fmt.Errorf("core: sync.start_date must be RFC3339: %w", err)
		}
	}
	return nil
}

// Credentials projects the configured account secrets into the domain
// credential set. Stores may override these at runtime.
func (c Config) Credentials() Credentials {
	return Credentials{
		APIKey:   strings.TrimSpace(c.Auth.APIKey),
		Username: strings.TrimSpace(c.Auth.Username),
		Password: strings.TrimSpace(c.Auth.Password),
	}
}
