package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/datallboy/nntpgate/internal/domain"
)

type Config struct {
	Listen ListenConfig `mapstructure:"listen" yaml:"listen"`
	NNTP   NNTPConfig   `mapstructure:"nntp" yaml:"nntp"`
	HTTP   HTTPConfig   `mapstructure:"http" yaml:"http"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
	Store  StoreConfig  `mapstructure:"store" yaml:"store"`
	Reader ReaderConfig `mapstructure:"reader" yaml:"reader"`
}

type ListenConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

type NNTPConfig struct {
	Host          string        `mapstructure:"host" yaml:"host"`
	Port          int           `mapstructure:"port" yaml:"port"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	IOTimeout     time.Duration `mapstructure:"io_timeout" yaml:"io_timeout"`
	MaxLineLength int           `mapstructure:"max_line_length" yaml:"max_line_length"`
	Hostname      string        `mapstructure:"hostname" yaml:"hostname"`
}

type HTTPConfig struct {
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout"`
}

type StoreConfig struct {
	// SQLitePath enables the post journal when set.
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

// ReaderConfig drives the read side: the group index and article views.
type ReaderConfig struct {
	// Group is used when a request names none.
	Group           string `mapstructure:"group" yaml:"group"`
	PageSize        int    `mapstructure:"page_size" yaml:"page_size"`
	MaxArticleBytes int    `mapstructure:"max_article_bytes" yaml:"max_article_bytes"`
}

// ListenAddr is the host:port the HTTP server binds.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Listen.Host, c.Listen.Port)
}

// Server returns the immutable NNTP server settings handed to the poster.
func (c Config) Server() domain.ServerConfig {
	return domain.ServerConfig{
		Host:          c.NNTP.Host,
		Port:          c.NNTP.Port,
		DialTimeout:   c.NNTP.DialTimeout,
		IOTimeout:     c.NNTP.IOTimeout,
		MaxLineLength: c.NNTP.MaxLineLength,
		Hostname:      c.NNTP.Hostname,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen.host", "0.0.0.0")
	v.SetDefault("listen.port", 8000)
	v.SetDefault("nntp.host", "")
	v.SetDefault("nntp.port", 119)
	v.SetDefault("nntp.dial_timeout", 10*time.Second)
	v.SetDefault("nntp.io_timeout", 30*time.Second)
	v.SetDefault("nntp.max_line_length", 1024)
	v.SetDefault("nntp.hostname", "")
	v.SetDefault("http.max_body_bytes", 1<<20)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("log.path", "nntpgate.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.include_stdout", true)
	v.SetDefault("store.sqlite_path", "")
	v.SetDefault("reader.group", "")
	v.SetDefault("reader.page_size", 25)
	v.SetDefault("reader.max_article_bytes", 16<<20)
}

// Load builds the configuration from defaults, an optional YAML file,
// NNTPGATE_* environment variables and bound command line flags, in
// increasing order of precedence. An empty path skips the file.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config file not found: %s", path)
		}

		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// Support Environment Variables
	v.SetEnvPrefix("NNTPGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// flagKeys maps command line flag names to config keys.
var flagKeys = map[string]string{
	"listen-host":  "listen.host",
	"listen-port":  "listen.port",
	"nntp-host":    "nntp.host",
	"nntp-port":    "nntp.port",
	"dial-timeout": "nntp.dial_timeout",
	"io-timeout":   "nntp.io_timeout",
	"log-level":    "log.level",
	"log-path":     "log.path",
	"journal":      "store.sqlite_path",
	"group":        "reader.group",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

func (c *Config) validate() error {
	if c.NNTP.Host == "" {
		return errors.New("nntp.host is required")
	}

	if c.NNTP.Port < 1 || c.NNTP.Port > 65535 {
		return fmt.Errorf("nntp.port %d out of range 1-65535", c.NNTP.Port)
	}

	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range 1-65535", c.Listen.Port)
	}

	if c.NNTP.MaxLineLength < 3 {
		// Default to a sane value
		c.NNTP.MaxLineLength = 1024
	}

	if c.NNTP.IOTimeout < 0 || c.NNTP.DialTimeout < 0 {
		return errors.New("nntp timeouts must not be negative")
	}

	if c.HTTP.MaxBodyBytes <= 0 {
		c.HTTP.MaxBodyBytes = 1 << 20
	}

	if c.Reader.PageSize <= 0 {
		c.Reader.PageSize = 25
	}
	if c.Reader.PageSize > 500 {
		return fmt.Errorf("reader.page_size %d exceeds 500", c.Reader.PageSize)
	}

	if c.Reader.MaxArticleBytes <= 0 {
		c.Reader.MaxArticleBytes = 16 << 20
	}

	return nil
}
