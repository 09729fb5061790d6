package app

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	intrnl "roomrelay/internal"
)

// EnvPrefix namespaces every environment override, e.g. RELAY_ADDR.
const EnvPrefix = "RELAY"

// ServerConfig defines how the HTTP/WebSocket backend should run.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	WSPath          string        `mapstructure:"ws_path"`
	DBPath          string        `mapstructure:"db_path"`
	UploadDir       string        `mapstructure:"upload_dir"`
	JWTSecret       string        `mapstructure:"jwt_secret"`
	TokenTTL        time.Duration `mapstructure:"token_ttl"`
	DiskCapBytes    int64         `mapstructure:"disk_cap_bytes"`
	EvictInterval   time.Duration `mapstructure:"evict_interval"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	HistorySize     int           `mapstructure:"history_size"`
	ChannelCapacity int           `mapstructure:"channel_capacity"`
	LogLevel        string        `mapstructure:"log_level"`
	LogPretty       bool          `mapstructure:"log_pretty"`
}

// ClientConfig defines the parameters the TUI client needs.
type ClientConfig struct {
	ServerURL string `mapstructure:"server_url"`
	Username  string `mapstructure:"user"`
	Token     string `mapstructure:"token"`
	Room      string `mapstructure:"room"`
}

// NewViper returns a viper instance with every default registered and
// RELAY_* environment overrides enabled.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("addr", ":3000")
	v.SetDefault("ws_path", "/ws/chat")
	v.SetDefault("db_path", "")
	v.SetDefault("upload_dir", intrnl.DefaultUploadDir)
	v.SetDefault("jwt_secret", "change_this_secret")
	v.SetDefault("token_ttl", intrnl.DefaultTokenTTL)
	v.SetDefault("disk_cap_bytes", intrnl.DefaultDiskCap)
	v.SetDefault("evict_interval", intrnl.DefaultEvictInterval)
	v.SetDefault("max_upload_bytes", int64(intrnl.DefaultMaxUploadBytes))
	v.SetDefault("history_size", intrnl.DefaultHistorySize)
	v.SetDefault("channel_capacity", intrnl.DefaultChannelCapacity)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)

	v.SetDefault("server_url", "ws://localhost:3000/ws/chat")
	v.SetDefault("user", "")
	v.SetDefault("token", "")
	v.SetDefault("room", intrnl.DefaultRoom)
	return v
}

// ReadConfigFile merges an optional YAML/TOML/JSON config file into v.
func ReadConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// LoadServerConfig resolves the server configuration from v.
func LoadServerConfig(v *viper.Viper) (ServerConfig, error) {
	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("decode server config: %w", err)
	}
	cfg.WSPath = NormalizeJoinPath(cfg.WSPath)
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath()
	}
	if cfg.DiskCapBytes <= 0 {
		return ServerConfig{}, fmt.Errorf("disk_cap_bytes must be positive, got %d", cfg.DiskCapBytes)
	}
	if cfg.EvictInterval <= 0 {
		return ServerConfig{}, fmt.Errorf("evict_interval must be positive, got %s", cfg.EvictInterval)
	}
	return cfg, nil
}

// LoadClientConfig resolves the client configuration from v.
func LoadClientConfig(v *viper.Viper) (ClientConfig, error) {
	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("decode client config: %w", err)
	}
	if cfg.Room == "" {
		cfg.Room = intrnl.DefaultRoom
	}
	return cfg, nil
}

// DefaultDBPath returns a per-user data path for the bundled SQLite file.
func DefaultDBPath() string {
	if env := os.Getenv("RELAY_DATA_DIR"); env != "" {
		return filepath.Join(env, "roomrelay.db")
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "roomrelay", "roomrelay.db")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "RoomRelay", "roomrelay.db")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "RoomRelay", "roomrelay.db")
		}
		return filepath.Join(home, ".local", "share", "roomrelay", "roomrelay.db")
	}
	return filepath.Join(".", ".roomrelay", "roomrelay.db")
}

// NormalizeJoinPath guarantees the websocket path starts with '/' and falls
// back to /ws/chat when empty.
func NormalizeJoinPath(path string) string {
	if path == "" {
		return "/ws/chat"
	}
	if path[0] != '/' {
		return "/" + path
	}
	return path
}
