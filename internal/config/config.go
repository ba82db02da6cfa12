// Package config loads the application configuration.
//
// SOURCES, LOWEST PRIORITY FIRST:
//  1. `default` struct tags
//  2. an optional YAML file (config/config.yml unless --config says otherwise)
//  3. environment variables named by the `env` tags
//
// configor does the merging. A missing config file is not an error: the
// defaults plus environment are enough to run.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/jinzhu/configor"
)

const DefaultPath = "config/config.yml"

type Config struct {
	App    AppConfig    `yaml:"app" env:"APPCONFIG"`
	DB     DBConfig     `yaml:"db" env:"DBCONFIG"`
	GitHub GitHubConfig `yaml:"github" env:"GITHUBCONFIG"`
	Log    LogConfig    `yaml:"log" env:"LOGCONFIG"`
}

type AppConfig struct {
	Name string `yaml:"name" default:"github-explorer"`
	Port int    `yaml:"port" default:"3000" env:"PORT"`
}

type DBConfig struct {
	// Path is a SQLite file path, or ":memory:" for a throwaway database.
	Path string `yaml:"path" default:"data/explorer.db" env:"DB_PATH"`
}

type GitHubConfig struct {
	BaseURL   string `yaml:"base_url" default:"https://api.github.com" env:"GITHUB_API_URL"`
	Token     string `yaml:"token" env:"GITHUB_TOKEN"`
	UserAgent string `yaml:"user_agent" default:"github-explorer" env:"GITHUB_USER_AGENT"`
	// Timeout is a duration string such as "30s". "0" disables the timeout.
	// It is a string because configor re-applies `default` to any zero
	// value, so an int or time.Duration could never be set to 0.
	Timeout string `yaml:"timeout" default:"30s" env:"GITHUB_TIMEOUT"`
}

// TimeoutDuration parses Timeout. Call Validate first.
func (g GitHubConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(g.Timeout)
	return d
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" env:"LOG_LEVEL"`
	Format string `yaml:"format" default:"text" env:"LOG_FORMAT"`
}

const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{LogFormatText, LogFormatJSON}
)

// SlogLevel maps Level onto slog. Call Validate first.
func (l LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Load reads the configuration. path may be empty or point at a file that
// does not exist; both mean "defaults and environment only".
func Load(path string) (*Config, error) {
	var files []string
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			files = append(files, path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	cfg := &Config{}
	// ENVPrefix "-" disables configor's automatic CONFIGOR_* variable names;
	// only the explicit env tags are consulted.
	if err := configor.New(&configor.Config{ENVPrefix: "-"}).Load(cfg, files...); err != nil {
		return nil, fmt.Errorf("config: loading: %w", err)
	}

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Port < 1 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("app.port %d out of range 1-65535", c.App.Port))
	}
	if strings.TrimSpace(c.DB.Path) == "" {
		errs = append(errs, errors.New("db.path is required"))
	}
	if strings.TrimSpace(c.GitHub.BaseURL) == "" {
		errs = append(errs, errors.New("github.base_url is required"))
	}
	if d, err := time.ParseDuration(c.GitHub.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("github.timeout: %w", err))
	} else if d < 0 {
		errs = append(errs, fmt.Errorf("github.timeout %s is negative", c.GitHub.Timeout))
	}
	if !slices.Contains(logLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level %q, expected one of: %s", c.Log.Level, strings.Join(logLevels, ", ")))
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format %q, expected one of: %s", c.Log.Format, strings.Join(logFormats, ", ")))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}
