package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config represents the odm configuration
type Config struct {
	Storage    StorageConfig    `mapstructure:"storage"`
	Snapshots  SnapshotConfig   `mapstructure:"snapshots"`
	Log        LogConfig        `mapstructure:"log"`
	Assignment AssignmentConfig `mapstructure:"assignment"`
}

// StorageConfig selects the storage collaborator
type StorageConfig struct {
	// Driver is memory, sqlite3, pgx or postgres
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// SnapshotConfig selects where version snapshots are retained
type SnapshotConfig struct {
	// Backend is none, memory or redis
	Backend string      `mapstructure:"backend"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig represents the redis snapshot backend
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// LogConfig represents logger configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// AssignmentConfig governs bulk assignment
type AssignmentConfig struct {
	StrictProtection bool `mapstructure:"strict_protection"`
}

// Load reads odm.yaml (or the file at path) and ODM_* environment
// variables over the defaults
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.max_open_conns", 0)
	v.SetDefault("snapshots.backend", "memory")
	v.SetDefault("snapshots.redis.addr", "localhost:6379")
	v.SetDefault("snapshots.redis.password", "")
	v.SetDefault("snapshots.redis.db", 0)
	v.SetDefault("snapshots.redis.prefix", "odm:")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("assignment.strict_protection", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("odm")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ODM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// NewLogger builds the zap logger the configuration describes
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func parseLevel(s string) (zapcore.Level, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

func validateConfig(cfg *Config) error {
	switch cfg.Storage.Driver {
	case "memory":
	case "sqlite3", "pgx", "postgres":
		if cfg.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for driver %s", cfg.Storage.Driver)
		}
	default:
		return fmt.Errorf("storage.driver must be memory, sqlite3, pgx or postgres, got: %s", cfg.Storage.Driver)
	}

	switch cfg.Snapshots.Backend {
	case "none", "memory":
	case "redis":
		if cfg.Snapshots.Redis.Addr == "" {
			return fmt.Errorf("snapshots.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("snapshots.backend must be none, memory or redis, got: %s", cfg.Snapshots.Backend)
	}

	if _, err := parseLevel(cfg.Log.Level); err != nil {
		return err
	}
	return nil
}
