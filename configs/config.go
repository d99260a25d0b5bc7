package config

import (
	"os"
)

// Config holds the application configuration
type Config struct {
	Port        string
	ModelDir    string
	Environment string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Port:        getEnv("PORT", "3001"),
		ModelDir:    getEnv("MODEL_DIR", "models"),
		Environment: getEnv("ENVIRONMENT", "development"),
	}
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
