package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

const envPrefix = "EXOPREP"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Predictor PredictorConfig `mapstructure:"predictor"`
	Store     StoreConfig     `mapstructure:"store"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// MaxUploadBytes caps multipart uploads.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
	// SessionTTL is how long an idle page session is kept. Zero keeps
	// sessions until restart.
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

type PredictorConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// flagKeys binds command line flags to config keys.
var flagKeys = map[string]string{
	"addr":          "server.addr",
	"predictor-url": "predictor.url",
	"timeout":       "predictor.timeout",
	"store":         "store.driver",
	"store-path":    "store.path",
	"log-level":     "log.level",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "0.0.0.0:3000")
	v.SetDefault("server.max_upload_bytes", 32<<20)
	v.SetDefault("server.session_ttl", time.Hour)
	v.SetDefault("predictor.url", "http://127.0.0.1:5000")
	v.SetDefault("predictor.timeout", 30*time.Second)
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.path", "exoprep.db")
	v.SetDefault("log.level", "info")
}

// Build loads configuration with the precedence flags > environment >
// config file > defaults. A .env file in the working directory, when
// present, is loaded into the environment first.
func Build(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Predictor.URL == "" {
		return errors.New("predictor.url is required")
	}
	if c.Predictor.Timeout <= 0 {
		return fmt.Errorf("predictor.timeout must be positive, got %s", c.Predictor.Timeout)
	}
	if c.Server.SessionTTL < 0 {
		return fmt.Errorf("server.session_ttl must not be negative, got %s", c.Server.SessionTTL)
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		return errors.New("store.path is required for the sqlite driver")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level: %w", err)
	}
	return nil
}

// LogLevel returns the configured level, defaulting to info.
func (c *Config) LogLevel() log.Level {
	lvl, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}
