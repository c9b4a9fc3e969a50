package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Socket    SocketConfig    `mapstructure:"socket"`
	Session   SessionConfig   `mapstructure:"session"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	DevServer DevServerConfig `mapstructure:"devserver"`
	Log       LogConfig       `mapstructure:"log"`
}

type APIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type SocketConfig struct {
	Path              string        `mapstructure:"path"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
}

type SessionConfig struct {
	AuctionID       string        `mapstructure:"auction_id"`
	UserID          string        `mapstructure:"user_id"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	Tick            time.Duration `mapstructure:"tick"`
}

type AuthConfig struct {
	Token      string `mapstructure:"token"`
	TokenStore string `mapstructure:"token_store"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type RedisConfig struct {
	Address       string        `mapstructure:"address"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	MirrorEnabled bool          `mapstructure:"mirror_enabled"`
	Channel       string        `mapstructure:"channel"`
	LeaseTTL      time.Duration `mapstructure:"lease_ttl"`
}

type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	JournalEnabled  bool          `mapstructure:"journal_enabled"`
}

type DevServerConfig struct {
	Port             int           `mapstructure:"port"`
	ExtensionWindow  time.Duration `mapstructure:"extension_window"`
	EndingSoonWindow time.Duration `mapstructure:"ending_soon_window"`
	Sweep            string        `mapstructure:"sweep"`
	JWTSecret        string        `mapstructure:"jwt_secret"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

var envBindings = map[string]string{
	"api.base_url":                 "API_BASE_URL",
	"api.request_timeout":          "API_REQUEST_TIMEOUT",
	"socket.path":                  "SOCKET_PATH",
	"socket.reconnect_attempts":    "SOCKET_RECONNECT_ATTEMPTS",
	"socket.reconnect_delay":       "SOCKET_RECONNECT_DELAY",
	"socket.handshake_timeout":     "SOCKET_HANDSHAKE_TIMEOUT",
	"socket.ping_interval":         "SOCKET_PING_INTERVAL",
	"session.auction_id":           "AUCTION_ID",
	"session.user_id":              "USER_ID",
	"session.refresh_interval":     "SESSION_REFRESH_INTERVAL",
	"session.tick":                 "SESSION_TICK",
	"auth.token":                   "AUTH_TOKEN",
	"auth.token_store":             "AUTH_TOKEN_STORE",
	"server.port":                  "SERVER_PORT",
	"server.host":                  "SERVER_HOST",
	"redis.address":                "REDIS_ADDRESS",
	"redis.password":               "REDIS_PASSWORD",
	"redis.db":                     "REDIS_DB",
	"redis.mirror_enabled":         "REDIS_MIRROR_ENABLED",
	"redis.channel":                "REDIS_CHANNEL",
	"redis.lease_ttl":              "REDIS_LEASE_TTL",
	"mysql.dsn":                    "MYSQL_DSN",
	"mysql.max_open_conns":         "MYSQL_MAX_OPEN_CONNS",
	"mysql.max_idle_conns":         "MYSQL_MAX_IDLE_CONNS",
	"mysql.conn_max_lifetime":      "MYSQL_CONN_MAX_LIFETIME",
	"mysql.journal_enabled":        "MYSQL_JOURNAL_ENABLED",
	"devserver.port":               "DEVSERVER_PORT",
	"devserver.extension_window":   "DEVSERVER_EXTENSION_WINDOW",
	"devserver.ending_soon_window": "DEVSERVER_ENDING_SOON_WINDOW",
	"devserver.sweep":              "DEVSERVER_SWEEP",
	"devserver.jwt_secret":         "DEVSERVER_JWT_SECRET",
	"log.level":                    "LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:3000")
	v.SetDefault("api.request_timeout", 15*time.Second)
	v.SetDefault("socket.path", "/auctions")
	v.SetDefault("socket.reconnect_attempts", 10)
	v.SetDefault("socket.reconnect_delay", 2*time.Second)
	v.SetDefault("socket.handshake_timeout", 20*time.Second)
	v.SetDefault("socket.ping_interval", 25*time.Second)
	v.SetDefault("session.auction_id", "")
	v.SetDefault("session.user_id", "")
	v.SetDefault("session.refresh_interval", time.Duration(0))
	v.SetDefault("session.tick", time.Second)
	v.SetDefault("auth.token", "")
	v.SetDefault("auth.token_store", "env")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.mirror_enabled", false)
	v.SetDefault("redis.channel", "auction_sync")
	v.SetDefault("redis.lease_ttl", 15*time.Second)
	v.SetDefault("mysql.dsn", "auction_user:auction_pass@tcp(localhost:3306)/auction_sync?parseTime=true&multiStatements=true")
	v.SetDefault("mysql.max_open_conns", 5)
	v.SetDefault("mysql.max_idle_conns", 2)
	v.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("mysql.journal_enabled", false)
	v.SetDefault("devserver.port", 3000)
	v.SetDefault("devserver.extension_window", 30*time.Second)
	v.SetDefault("devserver.ending_soon_window", time.Minute)
	v.SetDefault("devserver.sweep", "@every 1s")
	v.SetDefault("devserver.jwt_secret", "dev-secret")
	v.SetDefault("log.level", "info")
}

func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Configuration file settings
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/auction-sync/")

	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	// Read configuration file (optional - will use defaults/env vars if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	return unmarshal(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("config: invalid api.base_url %q", c.API.BaseURL)
	}
	if c.Socket.ReconnectAttempts < 0 {
		return fmt.Errorf("config: socket.reconnect_attempts must not be negative")
	}
	if c.Session.Tick <= 0 {
		return fmt.Errorf("config: session.tick must be positive")
	}
	return nil
}

// SocketURL derives the push channel endpoint from the REST base URL.
func (c *Config) SocketURL() string {
	base := strings.TrimRight(c.API.BaseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + c.Socket.Path
}

// GetConfigString returns a formatted string representation of the config
func (c *Config) GetConfigString() string {
	return fmt.Sprintf(
		"API: %s, Socket: %s (attempts=%d delay=%s), Auction: %s, Control: %s:%d, Redis mirror: %t, MySQL journal: %t",
		c.API.BaseURL,
		c.SocketURL(),
		c.Socket.ReconnectAttempts,
		c.Socket.ReconnectDelay,
		c.Session.AuctionID,
		c.Server.Host,
		c.Server.Port,
		c.Redis.MirrorEnabled,
		c.MySQL.JournalEnabled,
	)
}
