package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const envPrefix = "EVENTS"

type Config struct {
	Instance InstanceConfig `mapstructure:"instance"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Broker   BrokerConfig   `mapstructure:"broker"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

type InstanceConfig struct {
	ID string `mapstructure:"id"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"` // 0 keeps event streams open
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

type BrokerConfig struct {
	Driver         string        `mapstructure:"driver"` // redis, nats, memory
	Channel        string        `mapstructure:"channel"`
	RedisURL       string        `mapstructure:"redis_url"`
	NATSURL        string        `mapstructure:"nats_url"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	ReconnectMin   time.Duration `mapstructure:"reconnect_min"`
	ReconnectMax   time.Duration `mapstructure:"reconnect_max"`
}

type StreamConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	SendQueueSize     int           `mapstructure:"send_queue_size"`
}

type AuthConfig struct {
	JWTSecret    string `mapstructure:"jwt_secret"`
	TenantHeader string `mapstructure:"tenant_header"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("instance.id", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", time.Duration(0))
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file_path", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)

	v.SetDefault("broker.driver", "redis")
	v.SetDefault("broker.channel", "sse:events")
	v.SetDefault("broker.redis_url", "redis://127.0.0.1:6379/0")
	v.SetDefault("broker.nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("broker.publish_timeout", 3*time.Second)
	v.SetDefault("broker.reconnect_min", time.Second)
	v.SetDefault("broker.reconnect_max", 30*time.Second)

	v.SetDefault("stream.heartbeat_interval", 30*time.Second)
	v.SetDefault("stream.write_timeout", 10*time.Second)
	v.SetDefault("stream.send_queue_size", 64)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.tenant_header", "X-Tenant-ID")
}

// Load reads .env (if present), an optional config file and EVENTS_* environment
// variables, in increasing order of precedence. configFile may be empty.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, err
	}

	if cfg.Instance.ID == "" {
		cfg.Instance.ID = uuid.NewString()
	}

	return &cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	switch c.Broker.Driver {
	case "redis", "nats", "memory":
	default:
		return errors.New("config: broker.driver must be one of redis, nats, memory")
	}
	if c.Broker.Channel == "" {
		return errors.New("config: broker.channel is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("config: auth.jwt_secret is required")
	}
	if c.Stream.HeartbeatInterval <= 0 {
		return errors.New("config: stream.heartbeat_interval must be positive")
	}
	if c.Stream.SendQueueSize <= 0 {
		return errors.New("config: stream.send_queue_size must be positive")
	}
	return nil
}
