// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultMetricsAddr    = "127.0.0.1:9464"
	EnvPrefix             = "PLAI"
)

// Config holds all application configuration.
type Config struct {
	APIURL          string
	UIURL           string
	DBPath          string
	RequestTimeout  time.Duration
	StrictCitations bool
	MetricsAddr     string
	Lang            string
	Log             LogConfig
	OpenAI          OpenAIConfig
}

type LogConfig struct {
	Level  string
	Format string
	File   string
}

// OpenAIConfig is only needed for voice transcription.
type OpenAIConfig struct {
	APIKey             string
	BaseURL            string
	UsersManagementKey string
}

// NewViper returns a viper instance with defaults, env bindings and the
// optional config file search path set up.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("api_url", "")
	v.SetDefault("ui_url", "")
	v.SetDefault("db_path", defaultDBPath())
	v.SetDefault("request_timeout", DefaultRequestTimeout)
	v.SetDefault("strict_citations", false)
	v.SetDefault("metrics_addr", DefaultMetricsAddr)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", defaultLogPath())
	v.SetDefault("openai.base_url", "")

	_ = v.BindEnv("openai.api_key", "PLAI_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("openai.users_management_key", "PLAI_USERS_MANAGEMENT_KEY", "USERS_MANAGEMENT_KEY")
	_ = v.BindEnv("lang", "PLAI_LANG", "LC_ALL", "LANG")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "plaichat"))
	}
	v.AddConfigPath(".")

	return v
}

// Load reads the config file (if any) and resolves every key.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{
		APIURL:          strings.TrimRight(v.GetString("api_url"), "/"),
		UIURL:           strings.TrimRight(v.GetString("ui_url"), "/"),
		DBPath:          v.GetString("db_path"),
		RequestTimeout:  v.GetDuration("request_timeout"),
		StrictCitations: v.GetBool("strict_citations"),
		MetricsAddr:     v.GetString("metrics_addr"),
		Lang:            v.GetString("lang"),
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			File:   v.GetString("log.file"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             v.GetString("openai.api_key"),
			BaseURL:            v.GetString("openai.base_url"),
			UsersManagementKey: v.GetString("openai.users_management_key"),
		},
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.UIURL == "" {
		cfg.UIURL = cfg.APIURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("PLAI_API_URL cannot be empty")
	}
	if u, err := url.Parse(c.APIURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("PLAI_API_URL must be an absolute URL, got %q", c.APIURL)
	}
	if c.DBPath == "" {
		return fmt.Errorf("PLAI_DB_PATH cannot be empty")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("PLAI_LOG_FORMAT must be text or json, got %q", c.Log.Format)
	}
	return nil
}

func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return "plaichat.db"
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "plaichat", "plaichat.db")
}

func defaultLogPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "plaichat.log")
	}
	return filepath.Join(dir, "plaichat", "plaichat.log")
}
