package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig            `mapstructure:"server"`
	Storage    StorageConfig           `mapstructure:"storage"`
	DeadLetter DeadLetterConfig        `mapstructure:"deadletter"`
	Delivery   DeliveryConfig          `mapstructure:"delivery"`
	Sources    map[string]SourceConfig `mapstructure:"sources"`
	Logging    LoggingConfig           `mapstructure:"logging"`
	Admin      AdminConfig             `mapstructure:"admin"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type StorageConfig struct {
	Driver string       `mapstructure:"driver"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type DeadLetterConfig struct {
	Backend string        `mapstructure:"backend"` // redis | memory
	TTL     time.Duration `mapstructure:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DeliveryConfig struct {
	Timeout       time.Duration   `mapstructure:"timeout"`
	MaxRetries    int             `mapstructure:"max_retries"`
	RetrySchedule []time.Duration `mapstructure:"retry_schedule"`
	FanoutLimit   int             `mapstructure:"fanout_limit"`
	FanoutWorkers int             `mapstructure:"fanout_workers"`
}

// SourceConfig binds one upstream to a verification scheme. Scheme is one
// of "hmac", "ed25519", "bearer"; HMAC and bearer sources carry Secret,
// ed25519 sources carry the provider's hex-encoded PublicKey.
type SourceConfig struct {
	Scheme           string `mapstructure:"scheme"`
	Secret           string `mapstructure:"secret"`
	PublicKey        string `mapstructure:"public_key"`
	ToleranceSeconds int    `mapstructure:"tolerance_seconds"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type AdminConfig struct {
	Token string `mapstructure:"token"`
}

func Load(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("callbridge")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/callbridge")
	}

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("CALLBRIDGE")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	viper.SetDefault("storage.driver", "sqlite")
	viper.SetDefault("storage.sqlite.path", "./data/callbridge.db")

	viper.SetDefault("deadletter.backend", "memory")
	viper.SetDefault("deadletter.ttl", 7*24*time.Hour)
	viper.SetDefault("deadletter.redis.addr", "127.0.0.1:6379")
	viper.SetDefault("deadletter.redis.db", 0)

	viper.SetDefault("delivery.timeout", 10*time.Second)
	viper.SetDefault("delivery.max_retries", 3)
	viper.SetDefault("delivery.retry_schedule", []time.Duration{
		1 * time.Second,
		4 * time.Second,
		16 * time.Second,
	})
	viper.SetDefault("delivery.fanout_limit", 50)
	viper.SetDefault("delivery.fanout_workers", 10)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}
