package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all application configuration
type Config struct {
	// Data layer
	HistoryPath  string // explicit prediction history file, empty = resolver decides
	DataDir      string // models, champion records, cycle reports
	StoreBackend string // "json" or "postgres"
	PostgresDSN  string

	// Price/signal collaborator
	PriceAPIKey    string
	PriceBaseURL   string
	HistoryPeriod  string // period requested for evaluation closes
	RequestTimeout int    // seconds

	// Batch cycle
	Symbols []string

	// Events (optional)
	KafkaBrokers string
	KafkaTopic   string

	// Observability
	MetricsAddr string
	LogLevel    string
}

// Load initializes configuration from environment variables
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}

	cfg := &Config{
		HistoryPath:    os.Getenv("PREDICTION_HISTORY_PATH"),
		DataDir:        getEnvWithDefault("DATA_DIR", "data"),
		StoreBackend:   getEnvWithDefault("STORE_BACKEND", "json"),
		PostgresDSN:    os.Getenv("POSTGRES_DSN"),
		PriceAPIKey:    os.Getenv("PRICE_API_KEY"),
		PriceBaseURL:   getEnvWithDefault("PRICE_BASE_URL", "https://api.twelvedata.com"),
		HistoryPeriod:  getEnvWithDefault("HISTORY_PERIOD", "6mo"),
		RequestTimeout: getEnvIntWithDefault("REQUEST_TIMEOUT", 30),
		KafkaBrokers:   os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:     getEnvWithDefault("KAFKA_TOPIC", "prediction-outcomes"),
		MetricsAddr:    getEnvWithDefault("METRICS_ADDR", ":9108"),
		LogLevel:       getEnvWithDefault("LOG_LEVEL", "info"),
	}

	if symbols := os.Getenv("SYMBOLS"); symbols != "" {
		cfg.Symbols = splitSymbols(symbols)
	}

	return cfg, nil
}

func splitSymbols(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Helper functions for environment variable handling
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
