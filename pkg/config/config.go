package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backend selection values.
const (
	StorageFile     = "file"
	StorageDatabase = "database"
)

// AppConfig holds the complete configuration for the application
type AppConfig struct {
	Environment string         `mapstructure:"environment"`
	LogLevel    string         `mapstructure:"log_level"`
	ServiceName string         `mapstructure:"service_name"`
	Storage     StorageConfig  `mapstructure:"storage"`
	Database    DatabaseConfig `mapstructure:"database"`
	Autosave    AutosaveConfig `mapstructure:"autosave"`
	Features    FeaturesConfig `mapstructure:"features"`
	Kafka       KafkaConfig    `mapstructure:"kafka"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Server      ServerConfig   `mapstructure:"server"`
}

type StorageConfig struct {
	Type string `mapstructure:"type"` // "file" or "database"
	Dir  string `mapstructure:"dir"`  // per-player stats directory for the file backend
}

type DatabaseConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Name           string        `mapstructure:"name"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	MinConns       int           `mapstructure:"min_conns"`
	MaxConns       int           `mapstructure:"max_conns"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type AutosaveConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// FeaturesConfig gates which event kinds are ever applied to the cache.
type FeaturesConfig struct {
	PlayTime         bool `mapstructure:"play_time"`
	MobKilling       bool `mapstructure:"mob_killing"`
	MovementTracking bool `mapstructure:"movement_tracking"`
	ChestOpening     bool `mapstructure:"chest_opening"`
	FoodConsumption  bool `mapstructure:"food_consumption"`
	BlockBreaking    bool `mapstructure:"block_breaking"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type RedisConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Addr    string        `mapstructure:"addr"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load loads configuration from file and environment variables
func Load(path string) (*AppConfig, error) {
	v := viper.New()

	// Default values
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("storage.type", StorageFile)
	v.SetDefault("storage.dir", "stats")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "player_stats")
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.connect_timeout", 10*time.Second)
	v.SetDefault("autosave.enabled", true)
	v.SetDefault("autosave.interval", 5*time.Minute)
	v.SetDefault("features.play_time", true)
	v.SetDefault("features.mob_killing", true)
	v.SetDefault("features.movement_tracking", true)
	v.SetDefault("features.chest_opening", true)
	v.SetDefault("features.food_consumption", true)
	v.SetDefault("features.block_breaking", true)
	v.SetDefault("kafka.group_id", "stats-tracker")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.ttl", 30*time.Second)
	v.SetDefault("server.addr", ":8081")

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Config file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	// Bind environment variables explicitly for nested structs to ensure Unmarshal picks them up
	v.BindEnv("service_name", "SERVICE_NAME")
	v.BindEnv("environment", "ENVIRONMENT")
	v.BindEnv("log_level", "LOG_LEVEL")
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.dir", "STORAGE_DIR")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.name", "DATABASE_NAME")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.min_conns", "DATABASE_MIN_CONNS")
	v.BindEnv("database.max_conns", "DATABASE_MAX_CONNS")
	v.BindEnv("autosave.enabled", "AUTOSAVE_ENABLED")
	v.BindEnv("autosave.interval", "AUTOSAVE_INTERVAL")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.topic", "KAFKA_TOPIC")
	v.BindEnv("kafka.group_id", "KAFKA_GROUP_ID")
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("server.addr", "SERVER_ADDR")

	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Kafka brokers may arrive as a single comma-separated string from env
	brokers := v.GetString("kafka.brokers")
	if brokers != "" && len(config.Kafka.Brokers) == 0 {
		config.Kafka.Brokers = strings.Split(brokers, ",")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *AppConfig) Validate() error {
	if c.ServiceName == "" {
		return errors.New("service_name is required")
	}
	switch c.Storage.Type {
	case StorageFile:
		if c.Storage.Dir == "" {
			return errors.New("storage.dir is required for the file backend")
		}
	case StorageDatabase:
		if c.Database.Host == "" {
			return errors.New("database.host is required for the database backend")
		}
		if c.Database.Name == "" {
			return errors.New("database.name is required for the database backend")
		}
		if c.Database.User == "" {
			return errors.New("database.user is required for the database backend")
		}
	default:
		return fmt.Errorf("storage.type must be %q or %q, got %q", StorageFile, StorageDatabase, c.Storage.Type)
	}
	if len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required")
	}
	if c.Kafka.Topic == "" {
		return errors.New("kafka.topic is required")
	}
	if c.Autosave.Enabled && c.Autosave.Interval <= 0 {
		return errors.New("autosave.interval must be positive")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis is enabled")
	}
	return nil
}
