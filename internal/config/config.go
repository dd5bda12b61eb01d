package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Mongo        MongoConfig
	Notification NotificationConfig
	Email        EmailConfig
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port        string `envconfig:"SERVER_PORT" default:"8085"`
	Host        string `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
}

// DatabaseConfig contains the MySQL connection configuration
type DatabaseConfig struct {
	Host         string `envconfig:"DB_HOST" default:"localhost"`
	Port         string `envconfig:"DB_PORT" default:"3306"`
	Username     string `envconfig:"DB_USER" default:"dealroom"`
	Password     string `envconfig:"DB_PASSWORD" default:""`
	DatabaseName string `envconfig:"DB_NAME" default:"dealroom"`
	MaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns int    `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
}

// MongoConfig points at the catalog replica the Directory reads.
type MongoConfig struct {
	URI      string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	Database string `envconfig:"MONGO_DATABASE" default:"catalog"`
}

// NotificationConfig tunes the email dispatcher worker pool.
type NotificationConfig struct {
	Workers           int `envconfig:"NOTIF_WORKERS" default:"5"`
	ChannelBufferSize int `envconfig:"NOTIF_BUFFER" default:"1000"`
	MaxRetries        int `envconfig:"NOTIF_MAX_RETRIES" default:"3"`
	RetryDelaySeconds int `envconfig:"NOTIF_RETRY_DELAY" default:"5"`
}

// EmailConfig contains the SMTP settings
type EmailConfig struct {
	SMTPHost  string `envconfig:"SMTP_HOST" default:""`
	SMTPPort  int    `envconfig:"SMTP_PORT" default:"587"`
	Username  string `envconfig:"SMTP_USERNAME" default:""`
	Password  string `envconfig:"SMTP_PASSWORD" default:""`
	FromEmail string `envconfig:"FROM_EMAIL" default:""`
	FromName  string `envconfig:"FROM_NAME" default:"Dealroom"`
	Enabled   bool   `envconfig:"EMAIL_ENABLED" default:"false"`
}

// Load reads .env when present and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	return &cfg, nil
}

// DSN builds the MySQL connection string.
func (cfg *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Database.Username,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.DatabaseName,
	)
}
