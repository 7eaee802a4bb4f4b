package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/weiawesome/realm-live/pkg/config"
	"github.com/weiawesome/realm-live/pkg/database"
	pkglog "github.com/weiawesome/realm-live/pkg/log"
	"github.com/weiawesome/realm-live/pkg/pubsub"
)

type Config struct {
	Server    ServerConfig
	GRPC      GRPCConfig
	WebSocket WebSocketConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Presence  PresenceConfig
	EventSink pubsub.Config `mapstructure:"event_sink"`
	Log       pkglog.Config
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type GRPCConfig struct {
	Enabled bool
	Host    string
	Port    int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBufferSize int           `mapstructure:"send_buffer_size"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	FilePath        string `mapstructure:"file_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

// ToDatabaseConfig converts to the pkg/database configuration.
func (c DatabaseConfig) ToDatabaseConfig() *database.Config {
	return &database.Config{
		Driver:          c.Driver,
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		DBName:          c.DBName,
		SSLMode:         c.SSLMode,
		FilePath:        c.FilePath,
		MaxIdleConns:    c.MaxIdleConns,
		MaxOpenConns:    c.MaxOpenConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		LogLevel:        c.LogLevel,
	}
}

type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// PresenceConfig controls the Redis mirror of online identities.
type PresenceConfig struct {
	Enabled           bool
	Address           string
	Password          string
	DB                int
	Prefix            string
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	KeyTTL            time.Duration `mapstructure:"key_ttl"`
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}
	return fromViper(v)
}

// WatchLogLevel calls fn with log.level each time the config file changes.
// It reports false when no config file is in use.
func WatchLogLevel(fn func(level string)) (bool, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return false, err
	}
	v.SetDefault("log.level", "info")
	v.BindEnv("log.level", "LOG_LEVEL")
	return pkgconfig.Watch(v, func(v *viper.Viper) {
		fn(v.GetString("log.level"))
	}), nil
}

func fromViper(v *viper.Viper) (*Config, error) {
	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("grpc.enabled", true)
	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50060)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("websocket.send_buffer_size", 256)
	v.SetDefault("websocket.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.file_path", "realm.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", 30)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("jwt.issuer", "realm-live")
	v.SetDefault("jwt.access_token_ttl", "24h")
	v.SetDefault("presence.enabled", false)
	v.SetDefault("presence.address", "localhost:6379")
	v.SetDefault("presence.db", 0)
	v.SetDefault("presence.prefix", "realm:presence")
	v.SetDefault("presence.heartbeat_interval", "10s")
	v.SetDefault("presence.key_ttl", "30s")
	v.SetDefault("event_sink.driver", "none")
	v.SetDefault("event_sink.redis.address", "localhost:6379")
	v.SetDefault("event_sink.redis.pool_size", 10)
	v.SetDefault("event_sink.redis.read_timeout", "3s")
	v.SetDefault("event_sink.redis.write_timeout", "3s")
	v.SetDefault("event_sink.kafka.brokers", "localhost:9092")
	v.SetDefault("event_sink.kafka.partitions", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.service_name", "realm-live")
	v.SetDefault("log.caller", false)

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("grpc.port", "GRPC_PORT")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.file_path", "DB_FILE_PATH")
	v.BindEnv("jwt.secret", "JWT_SECRET")
	v.BindEnv("presence.enabled", "PRESENCE_ENABLED")
	v.BindEnv("presence.address", "REDIS_ADDRESS")
	v.BindEnv("presence.password", "REDIS_PASSWORD")
	v.BindEnv("event_sink.driver", "EVENT_SINK_DRIVER")
	v.BindEnv("event_sink.redis.address", "REDIS_ADDRESS")
	v.BindEnv("event_sink.redis.password", "REDIS_PASSWORD")
	v.BindEnv("event_sink.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.Server.ShutdownTimeout = pkgconfig.Duration(v, "server.shutdown_timeout", 10*time.Second)
	cfg.WebSocket.PingInterval = pkgconfig.Duration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = pkgconfig.Duration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = pkgconfig.Duration(v, "websocket.write_wait", 10*time.Second)
	cfg.JWT.AccessTokenTTL = pkgconfig.Duration(v, "jwt.access_token_ttl", 24*time.Hour)
	cfg.Presence.HeartbeatInterval = pkgconfig.Duration(v, "presence.heartbeat_interval", 10*time.Second)
	cfg.Presence.KeyTTL = pkgconfig.Duration(v, "presence.key_ttl", 30*time.Second)
	cfg.EventSink.Redis.ReadTimeout = pkgconfig.Duration(v, "event_sink.redis.read_timeout", 3*time.Second)
	cfg.EventSink.Redis.WriteTimeout = pkgconfig.Duration(v, "event_sink.redis.write_timeout", 3*time.Second)

	// Pings must arrive before the peer's read deadline expires.
	if cfg.WebSocket.PingInterval >= cfg.WebSocket.PongWait {
		cfg.WebSocket.PingInterval = cfg.WebSocket.PongWait * 9 / 10
	}
	if cfg.WebSocket.SendBufferSize <= 0 {
		cfg.WebSocket.SendBufferSize = 256
	}

	return &cfg, nil
}
