// Package config resolves infographic settings from env files, an optional
// settings.yaml and the process environment, in that order of precedence
// (later wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // time zones without a system zoneinfo

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gauthierbraillon/infographic/internal/facebook"
	"github.com/gauthierbraillon/infographic/internal/logging"
	"github.com/gauthierbraillon/infographic/pkg/oauth"
)

const (
	EnvPrefix    = "INFOGRAPHIC_"
	SettingsFile = "settings.yaml"

	DefaultRedirectURL = "http://localhost:8080/callback"
	DefaultTimezone    = "UTC"
	DefaultListenAddr  = ":8080"
	DefaultSessionTTL  = 30 * time.Minute
	DefaultDatabase    = "history.db"
)

// EnvFiles are loaded from the working directory when present.
var EnvFiles = []string{".env", ".env.local"}

type Config struct {
	ConfigDir string `yaml:"-"`

	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"` // #nosec G117 - settings field, not an exposed secret
	RedirectURL  string `yaml:"redirect_url"`
	APIURL       string `yaml:"api_url"`
	AuthURL      string `yaml:"auth_url"`
	TokenURL     string `yaml:"token_url"`

	FeedLimit int    `yaml:"feed_limit"`
	Timezone  string `yaml:"timezone"`

	Database   string        `yaml:"database"`
	ListenAddr string        `yaml:"listen_addr"`
	SessionTTL time.Duration `yaml:"session_ttl"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Sources lists the env and settings files that were applied.
	Sources []string `yaml:"-"`

	location *time.Location
}

// Dir returns the configuration directory path.
func Dir() string {
	if dir := os.Getenv(EnvPrefix + "CONFIG_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "infographic")
}

// Load resolves the configuration and validates it.
func Load() (*Config, error) {
	sources := loadEnvFiles()

	c := &Config{ConfigDir: Dir()}
	path := filepath.Join(c.ConfigDir, SettingsFile)
	loaded, err := c.loadFile(path)
	if err != nil {
		return nil, err
	}
	if loaded {
		sources = append(sources, path)
	}
	c.Sources = sources

	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func loadEnvFiles() []string {
	loaded := make([]string, 0, len(EnvFiles))
	for _, file := range EnvFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			continue
		}
		loaded = append(loaded, file)
	}
	return loaded
}

// loadFile reads settings.yaml; a missing file is not an error.
func (c *Config) loadFile(path string) (bool, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is built from the config directory
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return false, fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	return true, nil
}

func (c *Config) applyEnv() error {
	setString(&c.ClientID, "CLIENT_ID")
	setString(&c.ClientSecret, "CLIENT_SECRET")
	setString(&c.RedirectURL, "REDIRECT_URL")
	setString(&c.APIURL, "API_URL")
	setString(&c.AuthURL, "AUTH_URL")
	setString(&c.TokenURL, "TOKEN_URL")
	setString(&c.Timezone, "TIMEZONE")
	setString(&c.Database, "DATABASE")
	setString(&c.ListenAddr, "LISTEN_ADDR")

	if v := os.Getenv(EnvPrefix + "FEED_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sFEED_LIMIT must be an integer, got %q", EnvPrefix, v)
		}
		c.FeedLimit = n
	}
	if v := os.Getenv(EnvPrefix + "SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sSESSION_TTL must be a duration such as 30m, got %q", EnvPrefix, v)
		}
		c.SessionTTL = d
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(EnvPrefix + key)); v != "" {
		*dst = v
	}
}

// Validate fills defaults and rejects settings that cannot work.
func (c *Config) Validate() error {
	if c.FeedLimit < 0 {
		return errors.New("feed_limit must be >= 0")
	}
	if c.FeedLimit == 0 {
		c.FeedLimit = facebook.DefaultFeedLimit
	}
	if c.SessionTTL < 0 {
		return errors.New("session_ttl must be >= 0")
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = DefaultSessionTTL
	}

	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("unknown timezone %q: %w", c.Timezone, err)
	}
	c.location = loc

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat == "" {
		c.LogFormat = logging.FormatText
	}
	if c.LogFormat != logging.FormatText && c.LogFormat != logging.FormatJSON {
		return fmt.Errorf("unknown log format %q: must be 'text' or 'json'", c.LogFormat)
	}

	if c.RedirectURL == "" {
		c.RedirectURL = DefaultRedirectURL
	}
	if c.APIURL == "" {
		c.APIURL = facebook.DefaultBaseURL
	}
	if c.AuthURL == "" {
		c.AuthURL = oauth.FacebookAuthURL
	}
	if c.TokenURL == "" {
		c.TokenURL = oauth.FacebookTokenURL
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.Database == "" {
		c.Database = filepath.Join(c.ConfigDir, DefaultDatabase)
	}
	return nil
}

// Location is the time zone used for weekday and month buckets.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// OAuth builds the Facebook OAuth configuration.
func (c *Config) OAuth() oauth.Config {
	cfg := oauth.FacebookOAuthConfig(c.ClientID, c.ClientSecret, c.RedirectURL)
	if c.AuthURL != "" {
		cfg.AuthURL = c.AuthURL
	}
	if c.TokenURL != "" {
		cfg.TokenURL = c.TokenURL
	}
	return cfg
}

// RequireCredentials reports a user-facing error when the app credentials are
// missing.
func (c *Config) RequireCredentials() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return fmt.Errorf("missing credentials: set %sCLIENT_ID and %sCLIENT_SECRET environment variables or add client_id and client_secret to %s",
			EnvPrefix, EnvPrefix, filepath.Join(c.ConfigDir, SettingsFile))
	}
	return nil
}
