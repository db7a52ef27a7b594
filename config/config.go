package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	ArtifactRoot string
	WorkDir      string
	TrackingDB   string
	Project      string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	PushgatewayURL string
	LogLevel       string
	MaxRetries     int
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		ArtifactRoot: getEnv("ARTIFACT_ROOT", "./artifacts"),
		WorkDir:      getEnv("WORK_DIR", "."),
		TrackingDB:   getEnv("TRACKING_DB", "./artifacts/runs.db"),
		Project:      getEnv("PROJECT", "nyc_airbnb"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "pipeline"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "pipeline123"),
		PostgresDB:       getEnv("POSTGRES_DB", "rental_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		PushgatewayURL: getEnv("PUSHGATEWAY_URL", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}
