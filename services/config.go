package services

import (
	"log/slog"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Redis     RedisConfig
	Uploads   UploadsConfig
	CSRF      CSRFConfig
	WebSocket WebSocketConfig
}

type ServerConfig struct {
	Port        string
	Environment string
}

// Production reports whether cookies should be marked Secure.
func (c ServerConfig) Production() bool {
	return c.Environment == "production"
}

type DatabaseConfig struct {
	Driver       string
	URL          string
	Seed         bool
	LogLevel     string
	MaxIdleConns int
	MaxOpenConns int
}

type JWTConfig struct {
	Secret string
}

// RedisConfig selects the flash store; an empty URL keeps flashes in memory.
type RedisConfig struct {
	URL string
}

type UploadsConfig struct {
	Dir     string
	MaxSize int64
}

type CSRFConfig struct {
	AllowedOrigins string
}

type WebSocketConfig struct {
	AllowedOrigins string
}

// LoadConfig loads configuration from environment variables and config files
func LoadConfig() *Config {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.environment", "development")
	viper.SetDefault("database.driver", "postgres")
	viper.SetDefault("database.url", "")
	viper.SetDefault("database.seed", "true")
	viper.SetDefault("database.log_level", "silent")
	viper.SetDefault("database.max_idle_conns", "10")
	viper.SetDefault("database.max_open_conns", "100")
	viper.SetDefault("jwt.secret", "")
	viper.SetDefault("redis.url", "")
	viper.SetDefault("uploads.dir", "uploads")
	viper.SetDefault("uploads.max_size", "5242880")
	viper.SetDefault("csrf.allowed_origins", "http://localhost:8080")
	viper.SetDefault("websocket.allowed_origins", "")

	// Map environment variables to config keys
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.environment", "ENVIRONMENT")
	viper.BindEnv("database.driver", "DATABASE_DRIVER")
	viper.BindEnv("database.url", "DATABASE_URL")
	viper.BindEnv("database.seed", "DATABASE_SEED")
	viper.BindEnv("database.log_level", "DATABASE_LOG_LEVEL")
	viper.BindEnv("database.max_idle_conns", "DATABASE_MAX_IDLE_CONNS")
	viper.BindEnv("database.max_open_conns", "DATABASE_MAX_OPEN_CONNS")
	viper.BindEnv("jwt.secret", "JWT_SECRET")
	viper.BindEnv("redis.url", "REDIS_URL")
	viper.BindEnv("uploads.dir", "UPLOADS_DIR")
	viper.BindEnv("uploads.max_size", "UPLOADS_MAX_SIZE")
	viper.BindEnv("csrf.allowed_origins", "CSRF_ALLOWED_ORIGINS")
	viper.BindEnv("websocket.allowed_origins", "WEBSOCKET_ALLOWED_ORIGINS")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Warn("Config file not found, using defaults and environment variables")
		} else {
			slog.Error("Error reading config file", "error", err)
		}
	}

	return &Config{
		Server: ServerConfig{
			Port:        viper.GetString("server.port"),
			Environment: viper.GetString("server.environment"),
		},
		Database: DatabaseConfig{
			Driver:       viper.GetString("database.driver"),
			URL:          viper.GetString("database.url"),
			Seed:         viper.GetBool("database.seed"),
			LogLevel:     viper.GetString("database.log_level"),
			MaxIdleConns: viper.GetInt("database.max_idle_conns"),
			MaxOpenConns: viper.GetInt("database.max_open_conns"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("jwt.secret"),
		},
		Redis: RedisConfig{
			URL: viper.GetString("redis.url"),
		},
		Uploads: UploadsConfig{
			Dir:     viper.GetString("uploads.dir"),
			MaxSize: viper.GetInt64("uploads.max_size"),
		},
		CSRF: CSRFConfig{
			AllowedOrigins: viper.GetString("csrf.allowed_origins"),
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins: viper.GetString("websocket.allowed_origins"),
		},
	}
}
