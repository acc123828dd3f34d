package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig   `envPrefix:"SERVER_"`
	Log      LogConfig      `envPrefix:"LOG_"`
	Realtime RealtimeConfig `envPrefix:"REALTIME_"`
	Database DatabaseConfig `envPrefix:"DATABASE_"`
	Backend  BackendConfig  `envPrefix:"BACKEND_"`
	Auth     AuthConfig     `envPrefix:"AUTH_"`
	Kafka    KafkaConfig    `envPrefix:"KAFKA_"`
	Chat     ChatConfig     `envPrefix:"CHAT_"`
}

type ServerConfig struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	EnablePprof     bool          `env:"ENABLE_PPROF" envDefault:"false"`
}

func (c ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

type LogConfig struct {
	Level string `env:"LEVEL" envDefault:"info"`
}

const (
	RealtimeDriverMemory = "memory"
	RealtimeDriverMongo  = "mongo"
)

type RealtimeConfig struct {
	Driver string `env:"DRIVER" envDefault:"memory"`
}

type DatabaseConfig struct {
	URI      string   `env:"URI"`
	Hosts    []string `env:"HOSTS" envSeparator:"," envDefault:"localhost:27017"`
	Direct   bool     `env:"DIRECT" envDefault:"false"`
	Username string   `env:"USERNAME"`
	Password string   `env:"PASSWORD"`
	AuthDB   string   `env:"AUTH_DB" envDefault:"admin"`
	Database string   `env:"DATABASE" envDefault:"field_booking_chat"`
}

type BackendConfig struct {
	BaseURL   string        `env:"BASE_URL" envDefault:"http://localhost:5000/api"`
	Timeout   time.Duration `env:"TIMEOUT" envDefault:"20s"`
	CacheSize int           `env:"CACHE_SIZE" envDefault:"512"`
}

type AuthConfig struct {
	RequiredRole string        `env:"REQUIRED_ROLE" envDefault:"admin"`
	Leeway       time.Duration `env:"LEEWAY" envDefault:"0s"`
	VerifySecret string        `env:"VERIFY_SECRET"`
}

type KafkaConfig struct {
	Enabled  bool          `env:"ENABLED" envDefault:"false"`
	Brokers  []string      `env:"BROKERS" envSeparator:","`
	Topic    string        `env:"TOPIC" envDefault:"chat-events"`
	ClientID string        `env:"CLIENT_ID" envDefault:"field-booking-admin"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

type ChatConfig struct {
	DetectTimeout   time.Duration `env:"DETECT_TIMEOUT" envDefault:"10s"`
	PresenceTimeout time.Duration `env:"PRESENCE_TIMEOUT" envDefault:"5s"`
	SocketWriteWait time.Duration `env:"SOCKET_WRITE_WAIT" envDefault:"10s"`
	SocketPingEvery time.Duration `env:"SOCKET_PING_EVERY" envDefault:"30s"`
}

// Load reads the configuration from the environment. Values from envFiles
// are loaded first without overriding variables that are already set;
// missing files are skipped.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if f == "" {
			continue
		}
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad is like Load but panics on error.
func MustLoad(envFiles ...string) *Config {
	cfg, err := Load(envFiles...)
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) validate() error {
	switch c.Realtime.Driver {
	case RealtimeDriverMemory, RealtimeDriverMongo:
	default:
		return fmt.Errorf("unknown realtime driver %q", c.Realtime.Driver)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka is enabled but KAFKA_BROKERS is empty")
	}
	return nil
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	const mask = "***"
	if c.Database.Password != "" {
		c.Database.Password = mask
	}
	if c.Database.URI != "" {
		c.Database.URI = mask
	}
	if c.Auth.VerifySecret != "" {
		c.Auth.VerifySecret = mask
	}
	return c
}
