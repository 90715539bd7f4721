package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	ListenAddr       string        `env:"NOTEFADE_LISTEN_ADDR"`
	APIURL           string        `env:"NOTEFADE_API_URL"`
	PublicURL        string        `env:"NOTEFADE_PUBLIC_URL"`
	HTTPTimeout      time.Duration `env:"NOTEFADE_HTTP_TIMEOUT"`
	AutosaveDebounce time.Duration `env:"NOTEFADE_AUTOSAVE_DEBOUNCE"`
	SessionSecret    string        `env:"NOTEFADE_SESSION_SECRET"`
	SessionIdle      time.Duration `env:"NOTEFADE_SESSION_IDLE"`
	SecureCookies    bool          `env:"NOTEFADE_SECURE_COOKIES"`
	LogLevel         string        `env:"NOTEFADE_LOG_LEVEL"`
	LogPretty        bool          `env:"NOTEFADE_LOG_PRETTY"`
	DevLogFile       string        `env:"NOTEFADE_DEV_LOG_FILE"`
}

// fileConfig mirrors Config for the optional TOML file. Durations are kept
// as strings ("400ms", "30m").
type fileConfig struct {
	ListenAddr       string `toml:"listen_addr"`
	APIURL           string `toml:"api_url"`
	PublicURL        string `toml:"public_url"`
	HTTPTimeout      string `toml:"http_timeout"`
	AutosaveDebounce string `toml:"autosave_debounce"`
	SessionIdle      string `toml:"session_idle"`
	SecureCookies    *bool  `toml:"secure_cookies"`
	LogLevel         string `toml:"log_level"`
	LogPretty        *bool  `toml:"log_pretty"`
}

func Default() Config {
	return Config{
		ListenAddr:       "127.0.0.1:8080",
		APIURL:           "http://127.0.0.1:8081/api",
		HTTPTimeout:      15 * time.Second,
		AutosaveDebounce: 400 * time.Millisecond,
		SessionIdle:      30 * time.Minute,
		LogLevel:         "info",
	}
}

// Load bootstraps .env, then layers the TOML file named by NOTEFADE_CONFIG
// and the environment over the defaults.
func Load() (Config, error) {
	initEnvFile()
	return FromEnvironment()
}

// FromEnvironment is Load without the .env bootstrap. Command line tools use
// it so they never write files into the working directory.
func FromEnvironment() (Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("NOTEFADE_CONFIG")); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	setString(&cfg.ListenAddr, fc.ListenAddr)
	setString(&cfg.APIURL, fc.APIURL)
	setString(&cfg.PublicURL, fc.PublicURL)
	setString(&cfg.LogLevel, fc.LogLevel)
	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"http_timeout", fc.HTTPTimeout, &cfg.HTTPTimeout},
		{"autosave_debounce", fc.AutosaveDebounce, &cfg.AutosaveDebounce},
		{"session_idle", fc.SessionIdle, &cfg.SessionIdle},
	} {
		if strings.TrimSpace(d.raw) == "" {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("parse config %s: %s: %w", path, d.name, err)
		}
		*d.dst = parsed
	}
	if fc.SecureCookies != nil {
		cfg.SecureCookies = *fc.SecureCookies
	}
	if fc.LogPretty != nil {
		cfg.LogPretty = *fc.LogPretty
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func (c Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("NOTEFADE_API_URL must be an http(s) URL, got %q", c.APIURL))
	}
	if c.PublicURL != "" {
		if u, err := url.Parse(c.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("NOTEFADE_PUBLIC_URL must be an absolute URL, got %q", c.PublicURL))
		}
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("http timeout must be positive"))
	}
	if c.AutosaveDebounce <= 0 {
		errs = append(errs, errors.New("autosave debounce must be positive"))
	}
	if c.SessionIdle <= 0 {
		errs = append(errs, errors.New("session idle must be positive"))
	}
	return errors.Join(errs...)
}
