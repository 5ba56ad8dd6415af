package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DataPath  string `env:"DATA_PATH" envDefault:"./car_ad_display.csv"`
	ModelPath string `env:"MODEL_PATH" envDefault:"./model.json"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	Server   ServerConfig
	Postgres PostgresConfig
	Export   ExportConfig
}

type ServerConfig struct {
	Addr           string        `env:"SERVER_ADDR" envDefault:":8501"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
}

// PostgresConfig is optional; an empty Host disables the database sink.
type PostgresConfig struct {
	Host     string `env:"POSTGRES_HOST"`
	Port     string `env:"POSTGRES_PORT" envDefault:"5432"`
	User     string `env:"POSTGRES_USER" envDefault:"dashboard"`
	Password string `env:"POSTGRES_PASSWORD"`
	DB       string `env:"POSTGRES_DB" envDefault:"cars"`
	SSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`
}

type ExportConfig struct {
	Dir            string `env:"EXPORT_DIR" envDefault:"./output"`
	ChromeBin      string `env:"CHROME_BIN"`
	MaxConcurrency int    `env:"MAX_CONCURRENCY" envDefault:"2"`
	MaxRetries     int    `env:"MAX_RETRIES" envDefault:"3"`
}

// Load reads the .env file (if any) and returns a populated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	return cfg, nil
}

// Enabled reports whether a PostgreSQL sink was configured.
func (p PostgresConfig) Enabled() bool {
	return p.Host != ""
}

// DSN returns the PostgreSQL connection string.
func (p PostgresConfig) DSN() string {
	return "host=" + p.Host +
		" port=" + p.Port +
		" user=" + p.User +
		" password=" + p.Password +
		" dbname=" + p.DB +
		" sslmode=" + p.SSLMode
}
