package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	WS       WSConfig       `mapstructure:"ws"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Log      LogConfig      `mapstructure:"log"`
	Sentry   SentryConfig   `mapstructure:"sentry"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       float64       `mapstructure:"rate_limit"` // 每个客户端每秒请求数，0 表示不限流
	RateBurst       int           `mapstructure:"rate_burst"`
	// TrustedProxies 允许提供 X-Forwarded-For 的代理地址/网段；为空时客户端 IP 只取连接对端地址
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// DatabaseConfig 存储配置。driver（postgres / sqlite）承载用户与商品目录，
// message_store 为 sql 时消息也放在同一个库，为 mongo 时消息写入 MongoDB
type DatabaseConfig struct {
	Driver       string        `mapstructure:"driver"`
	MessageStore string        `mapstructure:"message_store"`
	DSN          string        `mapstructure:"dsn"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	MongoURI     string        `mapstructure:"mongo_uri"`
	MongoDB      string        `mapstructure:"mongo_db"`
	AutoMigrate  bool          `mapstructure:"auto_migrate"`
	StoreTimeout time.Duration `mapstructure:"store_timeout"` // 单条消息落库上限，超时返回 500
}

// RedisConfig 用于目录缓存与跨实例广播；Addr 为空时两者都关闭
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// JWTConfig 会话令牌配置
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
	CookieName string        `mapstructure:"cookie_name"`
	Secure     bool          `mapstructure:"secure"`
}

// WSConfig 实时连接参数
type WSConfig struct {
	SendQueueSize  int           `mapstructure:"send_queue_size"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	RateBurst      int           `mapstructure:"rate_burst"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	RelayEnabled   bool          `mapstructure:"relay_enabled"`
}

// KafkaConfig 消息事件外发
type KafkaConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Brokers   []string `mapstructure:"brokers"`
	Topic     string   `mapstructure:"topic"`
	QueueSize int      `mapstructure:"queue_size"`
	Workers   int      `mapstructure:"workers"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console
}

// SentryConfig 错误上报
type SentryConfig struct {
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// TracingConfig OpenTelemetry 配置；Endpoint 为空时不导出
type TracingConfig struct {
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Addr 返回监听地址
func (s ServerConfig) Addr() string { return fmt.Sprintf(":%d", s.Port) }

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "market-chat.db")
	v.SetDefault("database.message_store", "sql")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.mongo_uri", "")
	v.SetDefault("database.mongo_db", "market")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.store_timeout", 5*time.Second)

	// 没有默认值的键不会被 AutomaticEnv 注入到 Unmarshal 结果里
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "marketchat")
	v.SetDefault("redis.cache_ttl", 5*time.Minute)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiration", 7*24*time.Hour)
	v.SetDefault("jwt.cookie_name", "token")
	v.SetDefault("jwt.secure", true)

	v.SetDefault("ws.send_queue_size", 256)
	v.SetDefault("ws.max_message_size", 64*1024)
	v.SetDefault("ws.ping_interval", 25*time.Second)
	v.SetDefault("ws.pong_wait", 60*time.Second)
	v.SetDefault("ws.write_wait", 10*time.Second)
	v.SetDefault("ws.rate_per_second", 10.0)
	v.SetDefault("ws.rate_burst", 20)
	v.SetDefault("ws.relay_enabled", true)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "chat.message.sent")
	v.SetDefault("kafka.queue_size", 10000)
	v.SetDefault("kafka.workers", 2)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "development")
	v.SetDefault("sentry.sample_rate", 1.0)

	v.SetDefault("tracing.service_name", "market-chat")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Load 读取 config.yaml（CONFIG_PATH 可覆盖路径），环境变量优先，例如 SERVER_PORT、JWT_SECRET
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// 列表类环境变量需要手动拆分
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		cfg.Kafka.Brokers = strings.Split(raw, ",")
	}
	if raw := os.Getenv("SERVER_TRUSTED_PROXIES"); raw != "" {
		cfg.Server.TrustedProxies = strings.Split(raw, ",")
	}
	if raw := os.Getenv("WS_ALLOWED_ORIGINS"); raw != "" {
		cfg.WS.AllowedOrigins = strings.Split(raw, ",")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验必填项
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port missing or invalid")
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
		if c.Database.DSN == "" {
			return errors.New("database.dsn missing")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q (use postgres or sqlite)", c.Database.Driver)
	}
	switch c.Database.MessageStore {
	case "", "sql":
	case "mongo":
		if c.Database.MongoURI == "" {
			return errors.New("database.mongo_uri missing")
		}
	default:
		return fmt.Errorf("unsupported database.message_store %q (use sql or mongo)", c.Database.MessageStore)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers missing")
	}
	if c.WS.SendQueueSize <= 0 {
		return errors.New("ws.send_queue_size must be positive")
	}
	return nil
}
