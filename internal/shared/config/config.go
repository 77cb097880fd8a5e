package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for our application
type Config struct {
	// Server configuration
	Port           string
	GinMode        string
	APIVersion     string
	APIPrefix      string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Kafka configuration
	Kafka KafkaConfig

	// Hold lifecycle configuration
	Hold HoldConfig

	// Admission queue configuration
	Queue QueueConfig

	// Checkout configuration
	Checkout CheckoutConfig

	// Expired hold sweeper configuration
	Sweeper SweeperConfig

	// JWT configuration
	JWT JWTConfig

	// Rate limiting
	RateLimit RateLimitConfig

	// Logging
	LogLevel string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	DSN      string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Addr     string
}

// KafkaConfig holds Kafka broker and topic configuration
type KafkaConfig struct {
	Brokers          []string
	FinalizeTopic    string
	DeadLetterTopic  string
	ConsumerGroup    string
	MaxRetries       int
	InMemoryBus      bool
	InMemoryBusSize  int
}

// HoldConfig holds the hold lifecycle timing knobs
type HoldConfig struct {
	TTL                time.Duration
	CheckoutTTL        time.Duration
	ReleasedRetention  time.Duration
	FinalizedRetention time.Duration
	MaxQuantity        int
}

// QueueConfig holds admission queue configuration
type QueueConfig struct {
	EntryTTL          time.Duration
	PromotionCooldown time.Duration
	ETAPerPosition    time.Duration
	ETAMin            time.Duration
	ETAMax            time.Duration
}

// CheckoutConfig holds checkout transaction configuration
type CheckoutConfig struct {
	MaxAttempts    int
	ServiceFeeRate float64
	TaxRate        float64
}

// SweeperConfig holds expired hold sweeper configuration
type SweeperConfig struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret       string
	JWTExpiresIn time.Duration
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled          bool          `json:"enabled"`
	WindowDuration   time.Duration `json:"window_duration"`
	DefaultRequests  int           `json:"default_requests"`
	PublicRequests   int           `json:"public_requests"`
	HoldRequests     int           `json:"hold_requests"`
	CheckoutRequests int           `json:"checkout_requests"`
	QueueRequests    int           `json:"queue_requests"`
	HealthRequests   int           `json:"health_requests"`
	WhitelistedIPs   []string      `json:"whitelisted_ips"`
}

// Load loads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		// Server configuration
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		APIVersion:     getEnv("API_VERSION", "v1"),
		APIPrefix:      getEnv("API_PREFIX", "/api"),
		ReadTimeout:    getDurationEnv("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:   getDurationEnv("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:    getDurationEnv("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes: getIntEnv("MAX_HEADER_BYTES", 1<<20), // 1 MB

		// Database configuration
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "tixly_db"),
			User:     getEnv("DB_USER", "tixly_user"),
			Password: getEnv("DB_PASSWORD", "tixly_password"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},

		// Redis configuration
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},

		// Kafka configuration
		Kafka: KafkaConfig{
			Brokers:         getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			FinalizeTopic:   getEnv("KAFKA_FINALIZE_TOPIC", "order-finalization"),
			DeadLetterTopic: getEnv("KAFKA_DLQ_TOPIC", "order-finalization-dlq"),
			ConsumerGroup:   getEnv("KAFKA_CONSUMER_GROUP", "tixly-finalizer"),
			MaxRetries:      getIntEnv("KAFKA_MAX_RETRIES", 5),
			InMemoryBus:     getBoolEnv("KAFKA_IN_MEMORY_BUS", false),
			InMemoryBusSize: getIntEnv("KAFKA_IN_MEMORY_BUS_SIZE", 1024),
		},

		// Hold lifecycle configuration
		Hold: HoldConfig{
			TTL:                getDurationEnv("HOLD_TTL", 10*time.Minute),
			CheckoutTTL:        getDurationEnv("HOLD_CHECKOUT_TTL", 15*time.Minute),
			ReleasedRetention:  getDurationEnv("HOLD_RELEASED_RETENTION", 5*time.Minute),
			FinalizedRetention: getDurationEnv("HOLD_FINALIZED_RETENTION", 30*time.Minute),
			MaxQuantity:        getIntEnv("HOLD_MAX_QUANTITY", 10),
		},

		// Admission queue configuration
		Queue: QueueConfig{
			EntryTTL:          getDurationEnv("QUEUE_ENTRY_TTL", 1*time.Hour),
			PromotionCooldown: getDurationEnv("QUEUE_PROMOTION_COOLDOWN", 5*time.Second),
			ETAPerPosition:    getDurationEnv("QUEUE_ETA_PER_POSITION", 45*time.Second),
			ETAMin:            getDurationEnv("QUEUE_ETA_MIN", 30*time.Second),
			ETAMax:            getDurationEnv("QUEUE_ETA_MAX", 15*time.Minute),
		},

		// Checkout configuration
		Checkout: CheckoutConfig{
			MaxAttempts:    getIntEnv("CHECKOUT_MAX_ATTEMPTS", 3),
			ServiceFeeRate: getFloatEnv("CHECKOUT_SERVICE_FEE_RATE", 0.05),
			TaxRate:        getFloatEnv("CHECKOUT_TAX_RATE", 0.10),
		},

		// Sweeper configuration
		Sweeper: SweeperConfig{
			Enabled:   getBoolEnv("SWEEPER_ENABLED", true),
			Interval:  getDurationEnv("SWEEPER_INTERVAL", 30*time.Second),
			BatchSize: getIntEnv("SWEEPER_BATCH_SIZE", 100),
		},

		// JWT configuration
		JWT: JWTConfig{
			Secret:       getEnv("JWT_SECRET", "your-super-secret-jwt-key"),
			JWTExpiresIn: getDurationEnvSeconds("JWT_EXPIRES_IN", 15*time.Minute),
		},

		// Rate limiting
		RateLimit: RateLimitConfig{
			Enabled:          getBoolEnv("RATE_LIMIT_ENABLED", true),
			WindowDuration:   getDurationEnv("RATE_LIMIT_WINDOW_DURATION", 60*time.Second),
			DefaultRequests:  getIntEnv("RATE_LIMIT_DEFAULT_REQUESTS", 60),
			PublicRequests:   getIntEnv("RATE_LIMIT_PUBLIC_REQUESTS", 100),
			HoldRequests:     getIntEnv("RATE_LIMIT_HOLD_REQUESTS", 30),
			CheckoutRequests: getIntEnv("RATE_LIMIT_CHECKOUT_REQUESTS", 20),
			QueueRequests:    getIntEnv("RATE_LIMIT_QUEUE_REQUESTS", 60),
			HealthRequests:   getIntEnv("RATE_LIMIT_HEALTH_REQUESTS", 300),
			WhitelistedIPs:   getStringSliceEnv("RATE_LIMIT_WHITELISTED_IPS", []string{}),
		},

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "debug"),
	}

	// Build composite values
	cfg.Database.DSN = buildDatabaseDSN(cfg.Database)
	cfg.Redis.Addr = cfg.Redis.Host + ":" + cfg.Redis.Port

	return cfg
}

// buildDatabaseDSN builds the database connection string
func buildDatabaseDSN(db DatabaseConfig) string {
	return "host=" + db.Host +
		" port=" + db.Port +
		" user=" + db.User +
		" password=" + db.Password +
		" dbname=" + db.Name +
		" sslmode=" + db.SSLMode
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

// getFloatEnv gets a float environment variable with a fallback value
func getFloatEnv(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return fallback
}

// getDurationEnv gets a duration environment variable with a fallback value
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return fallback
}

// getDurationEnvSeconds gets an environment variable as seconds (int) and converts to time.Duration
func getDurationEnvSeconds(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

// getStringSliceEnv gets a comma-separated string environment variable as a slice
func getStringSliceEnv(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		var result []string
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GinMode == "release"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GinMode == "debug"
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return ":" + c.Port
}

// GetAPIBasePath returns the API base path
func (c *Config) GetAPIBasePath() string {
	return c.APIPrefix + "/" + c.APIVersion
}
