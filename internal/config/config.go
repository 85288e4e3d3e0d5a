// Package config loads the socketapi server configuration from a YAML file,
// SOCKETAPI_ environment variables and bound command line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/the-dev-tools/socketapi/internal/api"
	"github.com/the-dev-tools/socketapi/internal/api/rsocket"
)

const (
	ConfigFileName      = ".socketapi"
	ConfigFileExtension = ".yaml"
	EnvPrefix           = "SOCKETAPI"
)

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

const (
	LogText = "text"
	LogJSON = "json"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Debug     bool            `mapstructure:"debug"`
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	Seed      string          `mapstructure:"seed"`
	Transport TransportConfig `mapstructure:"transport"`
}

type ServerConfig struct {
	Mode       string `mapstructure:"mode"`
	Port       string `mapstructure:"port"`
	SocketPath string `mapstructure:"socket_path"`
	Path       string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	DSN       string `mapstructure:"dsn"`
	RedisAddr string `mapstructure:"redis_addr"`
}

type TransportConfig struct {
	SendBuffer int `mapstructure:"send_buffer"`
}

// DefaultConfigPath returns $HOME/.socketapi.yaml.
func DefaultConfigPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("find home directory: %w", err)
	}
	return filepath.Join(home, ConfigFileName+ConfigFileExtension), nil
}

// SetDefaults registers every known key on v. Keys without a default are not
// picked up from the environment by Unmarshal, so all of them are listed.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.mode", api.ServerModeTCP)
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.socket_path", api.DefaultServerSocketPath())
	v.SetDefault("server.path", rsocket.DefaultPath)
	v.SetDefault("debug", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", LogText)
	v.SetDefault("store.driver", StoreMemory)
	v.SetDefault("store.dsn", "socketapi.db")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("seed", "")
	v.SetDefault("transport.send_buffer", rsocket.DefaultSendBuffer)
}

// Load reads the configuration into a Config. An empty path means the default
// home config file, which may be absent; an explicit path must exist.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		p, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Server.Mode {
	case api.ServerModeTCP, api.ServerModeUDS:
	default:
		return fmt.Errorf("server.mode: unknown mode %q", c.Server.Mode)
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		return fmt.Errorf("server.path: %q must start with /", c.Server.Path)
	}
	switch c.Store.Driver {
	case StoreMemory, StoreSQLite, StoreRedis:
	default:
		return fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver)
	}
	switch c.Log.Format {
	case LogText, LogJSON:
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Transport.SendBuffer < 1 {
		return fmt.Errorf("transport.send_buffer: must be positive, got %d", c.Transport.SendBuffer)
	}
	return nil
}

func (c ServerConfig) API() api.Config {
	return api.Config{Mode: c.Mode, Port: c.Port, SocketPath: c.SocketPath}
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("log.level: unknown level %q", s)
}

// NewLogger builds the process logger described by c, writing to w.
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == LogJSON {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
