package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string
	// LogFormat is "json" (default) or "text".
	LogFormat string

	// Clinic REST API
	APIBaseURL string
	APITimeout time.Duration

	// Session storage. When RedisAddr is empty the session lives in memory
	// and is seeded from SessionToken/SessionUserID.
	RedisAddr      string
	RedisPassword  string
	RedisTLS       bool
	SessionProfile string
	SessionToken   string
	SessionUserID  int64

	CORSAllowedOrigins []string
	// AuthSecret verifies bearer tokens on /agenda when set.
	AuthSecret   string
	MetricsToken string
	// Writes allowed per second per caller; 0 disables the limiter.
	MutationRate  float64
	MutationBurst int

	// Bookable slot layout
	SlotOpen      string
	SlotClose     string
	SlotStep      time.Duration
	BlackoutStart string
	BlackoutEnd   string

	// Development fake of the clinic API
	DevAPIPort  string
	DevAPIToken string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(strings.TrimSpace(getEnv("LOG_FORMAT", "json"))),

		APIBaseURL: strings.TrimRight(getEnv("AGENDA_API_BASE_URL", "http://localhost:8000"), "/"),
		APITimeout: getEnvAsDuration("API_TIMEOUT", 15*time.Second),

		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisTLS:       getEnvAsBool("REDIS_TLS", false),
		SessionProfile: getEnv("SESSION_PROFILE", "default"),
		SessionToken:   getEnv("AGENDA_TOKEN", ""),
		SessionUserID:  getEnvAsInt64("AGENDA_USER_ID", 0),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		AuthSecret:         getEnv("AUTH_JWT_SECRET", ""),
		MetricsToken:       getEnv("METRICS_TOKEN", ""),
		MutationRate:       getEnvAsFloat("MUTATION_RATE_LIMIT", 2),
		MutationBurst:      int(getEnvAsInt64("MUTATION_BURST", 5)),

		SlotOpen:      getEnv("SLOT_OPEN", "08:00"),
		SlotClose:     getEnv("SLOT_CLOSE", "18:00"),
		SlotStep:      getEnvAsDuration("SLOT_STEP", 30*time.Minute),
		BlackoutStart: getEnv("BLACKOUT_START", "11:30"),
		BlackoutEnd:   getEnv("BLACKOUT_END", "13:00"),

		DevAPIPort:  getEnv("DEVAPI_PORT", "8000"),
		DevAPIToken: getEnv("DEVAPI_TOKEN", ""),
	}
}

// IsProduction reports whether the service runs with ENV=production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt64 retrieves an environment variable as an integer or returns a default value
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
