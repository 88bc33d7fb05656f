package config

import (
	"os"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	MongoDB MongoDBConfig
	Store   StoreConfig
	JWT     JWTConfig
	Chatbot ChatbotConfig
	Dev     bool
}

type ServerConfig struct {
	Port string

	// CORSOrigin is the value served as Access-Control-Allow-Origin.
	// Sessions ride in the Authorization header, never in cookies, so a
	// wildcard default carries no credentialed-request exposure.
	CORSOrigin string
}

type MongoDBConfig struct {
	URI      string
	Database string
}

// StoreConfig selects and configures the live store backend.
// Kind is one of "memory", "redis", "wire".
type StoreConfig struct {
	Kind string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	WireURL string
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

// ChatbotConfig selects the auto-responder strategy.
// Mode is one of "canned", "remote", "off".
type ChatbotConfig struct {
	Mode    string
	URL     string
	Timeout time.Duration
}

// Load reads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:       getEnv("SERVER_PORT", "8080"),
			CORSOrigin: getEnv("CORS_ALLOWED_ORIGIN", "*"),
		},
		MongoDB: MongoDBConfig{
			URI:      getEnv("MONGODB_URI", "mongodb://mongodb:27017"),
			Database: getEnv("MONGODB_DATABASE", "orchestrator"),
		},
		Store: StoreConfig{
			Kind:          getEnv("STORE_KIND", "memory"),
			RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       0,
			WireURL:       getEnv("STORE_WIRE_URL", "ws://localhost:9001/v1/live"),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", "change-in-prod"),
			Expiration: 24 * time.Hour,
		},
		Chatbot: ChatbotConfig{
			Mode:    getEnv("CHATBOT_MODE", "canned"),
			URL:     getEnv("CHATBOT_URL", "http://localhost:5001/api/chatbot"),
			Timeout: 5 * time.Second,
		},
		Dev: getEnv("APP_ENV", "development") != "production",
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
