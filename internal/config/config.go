package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.trai.ch/zerr"

	"github.com/mmcdole/lectio/internal/domain"
)

// RemoteType identifies the authoritative dataset backend
type RemoteType string

const (
	RemoteTypeNone      RemoteType = ""
	RemoteTypePostgREST RemoteType = "postgrest"
	RemoteTypeSQLite    RemoteType = "sqlite"
)

// Config holds all application configuration
type Config struct {
	Locale       string             `mapstructure:"locale"`
	UserID       string             `mapstructure:"user_id"`
	Store        StoreConfig        `mapstructure:"store"`
	Remote       RemoteConfig       `mapstructure:"remote"`
	Generative   GenerativeConfig   `mapstructure:"generative"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// StoreConfig holds local cache configuration
type StoreConfig struct {
	Dir        string `mapstructure:"dir"`         // empty = memory only
	MemoryOnly bool   `mapstructure:"memory_only"` // ignore Dir
}

// RemoteConfig holds remote dataset configuration
type RemoteConfig struct {
	Type    RemoteType    `mapstructure:"type"`
	URL     string        `mapstructure:"url"`     // PostgREST base URL
	APIKey  string        `mapstructure:"api_key"` // PostgREST anon key
	Dataset string        `mapstructure:"dataset"` // SQLite dataset path
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`
}

// GenerativeConfig holds generative fallback configuration
type GenerativeConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`
}

// ConnectivityConfig holds heartbeat configuration
type ConnectivityConfig struct {
	ProbeURL          string        `mapstructure:"probe_url"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	SettleWindow      time.Duration `mapstructure:"settle_window"`
	ProbeTimeout      time.Duration `mapstructure:"probe_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File   string `mapstructure:"file"` // "-" for stderr
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Locale: "en",
		UserID: "local",
		Store: StoreConfig{
			Dir: defaultCachePath(),
		},
		Remote: RemoteConfig{
			Timeout: 8 * time.Second,
			Retries: 1,
		},
		Generative: GenerativeConfig{
			Model:   "gemini-2.5-flash",
			Timeout: 45 * time.Second,
			Retries: 1,
		},
		Connectivity: ConnectivityConfig{
			ProbeURL:          "https://www.gstatic.com/generate_204",
			HeartbeatInterval: 30 * time.Second,
			SettleWindow:      4 * time.Second,
			ProbeTimeout:      5 * time.Second,
		},
		Logging: LoggingConfig{
			File:   defaultLogPath(),
			Level:  "INFO",
			Format: "json",
		},
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "lectio", "lectio.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "lectio", "lectio.log")
	}
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "lectio")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "lectio")
	}
}

// defaultCachePath returns the default cache directory path for the current OS
func defaultCachePath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "lectio", "cache")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "lectio", "cache")
	}
}

// LoadConfig loads configuration from file and environment. An explicit path
// overrides the search locations.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultConfigPath())
		v.AddConfigPath(".")
	}

	// Environment variable overrides: LECTIO_REMOTE_URL, LECTIO_GENERATIVE_API_KEY, ...
	v.SetEnvPrefix("LECTIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrConfigRead.Error()), "path", path)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, zerr.Wrap(err, domain.ErrConfigParse.Error())
	}

	return cfg, nil
}

// bindEnv registers every key so AutomaticEnv also applies to Unmarshal.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"locale", "user_id",
		"store.dir", "store.memory_only",
		"remote.type", "remote.url", "remote.api_key", "remote.dataset", "remote.timeout", "remote.retries",
		"generative.api_key", "generative.model", "generative.timeout", "generative.retries",
		"connectivity.probe_url", "connectivity.heartbeat_interval", "connectivity.settle_window", "connectivity.probe_timeout",
		"logging.file", "logging.level", "logging.format",
	} {
		_ = v.BindEnv(key)
	}
}

// IsConfigured returns true if the remote backend has what it needs
func (c RemoteConfig) IsConfigured() bool {
	switch c.Type {
	case RemoteTypePostgREST:
		return c.URL != "" && c.APIKey != ""
	case RemoteTypeSQLite:
		return c.Dataset != ""
	default:
		return false
	}
}

// Namespace identifies the dataset the local cache belongs to
func (c RemoteConfig) Namespace() string {
	switch c.Type {
	case RemoteTypePostgREST:
		return strings.TrimRight(strings.ToLower(c.URL), "/")
	case RemoteTypeSQLite:
		return c.Dataset
	default:
		return ""
	}
}

// IsConfigured returns true if an API key is set
func (c GenerativeConfig) IsConfigured() bool {
	return c.APIKey != ""
}

// CacheDir returns the store directory, empty for memory-only mode
func (c StoreConfig) CacheDir() string {
	if c.MemoryOnly {
		return ""
	}
	return c.Dir
}
