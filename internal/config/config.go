package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/weiawesome/wes-io-live/collab-service/pkg/config"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/database"
	pkglog "github.com/weiawesome/wes-io-live/collab-service/pkg/log"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/pubsub"
)

const ServiceName = "collab-service"

type Config struct {
	Server       ServerConfig
	GRPC         GRPCConfig
	WebSocket    WebSocketConfig
	Auth         AuthConfig
	ProjectStore ProjectStoreConfig `mapstructure:"project_store"`
	Database     DatabaseConfig
	Mongo        MongoConfig
	Redis        RedisConfig
	Events       EventsConfig
	AI           AIConfig `mapstructure:"ai"`
	Log          LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type GRPCConfig struct {
	Host             string
	Port             int
	AdvertiseAddress string `mapstructure:"advertise_address"`
}

type WebSocketConfig struct {
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	MaxMessageSize   int64         `mapstructure:"max_message_size"`
	SendBuffer       int           `mapstructure:"send_buffer"`
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
}

type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	PublicKeyFile string        `mapstructure:"public_key_file"`
	Issuer        string        `mapstructure:"issuer"`
	Leeway        time.Duration `mapstructure:"leeway"`
}

type ProjectStoreConfig struct {
	Driver string // "sql" or "mongo"
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
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

type MongoConfig struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	Enabled           bool
	Address           string
	Password          string
	DB                int
	CachePrefix       string        `mapstructure:"cache_prefix"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	RegistryPrefix    string        `mapstructure:"registry_prefix"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	KeyTTL            time.Duration `mapstructure:"key_ttl"`
}

type EventsConfig struct {
	Driver        string // "none", "redis", "kafka"
	ChannelPrefix string `mapstructure:"channel_prefix"`
	Kafka         KafkaConfig
}

type KafkaConfig struct {
	Brokers    string
	Partitions int
}

type AIConfig struct {
	Provider      string // "anthropic", "openai", "google", "none"
	Model         string
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxTokens     int64         `mapstructure:"max_tokens"`
	TriggerMarker string        `mapstructure:"trigger_marker"`
	SystemPrompt  string        `mapstructure:"system_prompt"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// Load reads config/config.yaml (if present) from configPath, applies
// defaults and environment overrides, and validates the result.
func Load(configPath string) (*Config, error) {
	v, err := pkgconfig.Load(configPath, "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50060)
	v.SetDefault("grpc.advertise_address", "localhost:8090")
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.handshake_timeout", "10s")
	v.SetDefault("websocket.max_message_size", 16384)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("websocket.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("auth.leeway", "30s")
	v.SetDefault("project_store.driver", "sql")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "collab")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "collab.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", 30)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", false)
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "collab")
	v.SetDefault("mongo.collection", "projects")
	v.SetDefault("mongo.connect_timeout", "10s")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_prefix", "collab:project")
	v.SetDefault("redis.cache_ttl", "60s")
	v.SetDefault("redis.registry_prefix", "collab:registry")
	v.SetDefault("redis.heartbeat_interval", "10s")
	v.SetDefault("redis.key_ttl", "30s")
	v.SetDefault("events.driver", "none")
	v.SetDefault("events.channel_prefix", pubsub.DefaultChannelPrefix)
	v.SetDefault("events.kafka.brokers", "localhost:9092")
	v.SetDefault("events.kafka.partitions", 4)
	v.SetDefault("ai.provider", "none")
	v.SetDefault("ai.timeout", "60s")
	v.SetDefault("ai.max_tokens", 1024)
	v.SetDefault("ai.trigger_marker", "@ai")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("grpc.port", "GRPC_PORT")
	v.BindEnv("grpc.advertise_address", "GRPC_ADVERTISE_ADDRESS")
	v.BindEnv("websocket.allowed_origins", "ALLOWED_ORIGINS")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("auth.public_key_file", "JWT_PUBLIC_KEY_FILE")
	v.BindEnv("auth.issuer", "JWT_ISSUER")
	v.BindEnv("project_store.driver", "PROJECT_STORE_DRIVER")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("mongo.uri", "MONGODB_URI")
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("events.driver", "EVENTS_DRIVER")
	v.BindEnv("events.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("ai.provider", "AI_PROVIDER")
	v.BindEnv("ai.model", "AI_MODEL")
	v.BindEnv("ai.api_key", "AI_API_KEY")
	v.BindEnv("ai.trigger_marker", "AI_TRIGGER_MARKER")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = pkgconfig.Duration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = pkgconfig.Duration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = pkgconfig.Duration(v, "websocket.write_wait", 10*time.Second)
	cfg.WebSocket.HandshakeTimeout = pkgconfig.Duration(v, "websocket.handshake_timeout", 10*time.Second)
	cfg.WebSocket.AllowedOrigins = pkgconfig.StringList(v, "websocket.allowed_origins")
	cfg.Auth.Leeway = pkgconfig.Duration(v, "auth.leeway", 30*time.Second)
	cfg.Mongo.ConnectTimeout = pkgconfig.Duration(v, "mongo.connect_timeout", 10*time.Second)
	cfg.Redis.CacheTTL = pkgconfig.Duration(v, "redis.cache_ttl", time.Minute)
	cfg.Redis.HeartbeatInterval = pkgconfig.Duration(v, "redis.heartbeat_interval", 10*time.Second)
	cfg.Redis.KeyTTL = pkgconfig.Duration(v, "redis.key_ttl", 30*time.Second)
	cfg.AI.Timeout = pkgconfig.Duration(v, "ai.timeout", 60*time.Second)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects combinations the service cannot start with.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" && c.Auth.PublicKeyFile == "" {
		return fmt.Errorf("config: auth.jwt_secret or auth.public_key_file is required")
	}
	switch c.ProjectStore.Driver {
	case "sql", "mongo":
	default:
		return fmt.Errorf("config: unsupported project_store.driver %q", c.ProjectStore.Driver)
	}
	switch c.Events.Driver {
	case "none", "kafka":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("config: events.driver redis requires redis.enabled")
		}
	default:
		return fmt.Errorf("config: unsupported events.driver %q", c.Events.Driver)
	}
	switch c.AI.Provider {
	case "none":
	case "anthropic", "openai", "google":
		if c.AI.APIKey == "" {
			return fmt.Errorf("config: ai.api_key is required for provider %s", c.AI.Provider)
		}
	default:
		return fmt.Errorf("config: unsupported ai.provider %q", c.AI.Provider)
	}
	if c.AI.TriggerMarker == "" {
		return fmt.Errorf("config: ai.trigger_marker must not be empty")
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("config: websocket.send_buffer must be positive")
	}
	return nil
}

// DatabaseOptions converts the database section for pkg/database.
func (c *Config) DatabaseOptions() *database.Config {
	d := c.Database
	return &database.Config{
		Driver:          d.Driver,
		Host:            d.Host,
		Port:            d.Port,
		User:            d.User,
		Password:        d.Password,
		DBName:          d.DBName,
		SSLMode:         d.SSLMode,
		FilePath:        d.FilePath,
		MaxIdleConns:    d.MaxIdleConns,
		MaxOpenConns:    d.MaxOpenConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
		LogLevel:        d.LogLevel,
	}
}

// PubSubOptions converts the events section for pkg/pubsub. The redis driver
// shares the address configured under redis.
func (c *Config) PubSubOptions() pubsub.Config {
	ps := pubsub.DefaultConfig()
	ps.Driver = c.Events.Driver
	ps.ChannelPrefix = c.Events.ChannelPrefix
	ps.Redis.Address = c.Redis.Address
	ps.Redis.Password = c.Redis.Password
	ps.Redis.DB = c.Redis.DB
	ps.Kafka.Brokers = c.Events.Kafka.Brokers
	ps.Kafka.Partitions = c.Events.Kafka.Partitions
	return ps
}

// LogOptions converts the log section for pkg/log.
func (c *Config) LogOptions() pkglog.Config {
	return pkglog.Config{
		Level:       c.Log.Level,
		Pretty:      c.Log.Pretty,
		ServiceName: ServiceName,
	}
}
