package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tullo/guardian/internal/moderation"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	API        APIConfig
	CORS       CORSConfig
	Log        LogConfig
	Moderation ModerationConfig
	Providers  ProvidersConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

type APIConfig struct {
	RateLimitPerSec int
	RateLimitBurst  int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level string
}

type ModerationConfig struct {
	CacheTTL           time.Duration
	ClassifierTimeout  time.Duration
	MediaTimeout       time.Duration
	PatternConfidence  float64
	FastTrackMaxLength int
	OCRWeight          float64
	DedupeInFlight     bool
	CategoryWeights    moderation.Weights
}

type ProvidersConfig struct {
	OpenAIKey         string
	OpenAIURL         string
	OpenAIModel       string
	OpenAIWeight      float64
	PerspectiveKey    string
	PerspectiveURL    string
	PerspectiveWeight float64
	VisionKey         string
	VisionURL         string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	weights, err := parseWeights(getEnv("MODERATION_CATEGORY_WEIGHTS", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "guardian"),
			Password: getEnv("DB_PASSWORD", "guardian_password"),
			DBName:   getEnv("DB_NAME", "guardian_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-this-secret-key"),
			ExpiryHours: getInt("JWT_EXPIRY_HOURS", 168),
		},
		API: APIConfig{
			RateLimitPerSec: getInt("RATE_LIMIT_REQUESTS_PER_SECOND", 10),
			RateLimitBurst:  getInt("RATE_LIMIT_BURST", 20),
		},
		CORS: CORSConfig{
			AllowedOrigins: strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"), ","),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Moderation: ModerationConfig{
			CacheTTL:           getDuration("MODERATION_CACHE_TTL", 30*time.Minute),
			ClassifierTimeout:  getDuration("MODERATION_CLASSIFIER_TIMEOUT", 3*time.Second),
			MediaTimeout:       getDuration("MODERATION_MEDIA_TIMEOUT", 5*time.Second),
			PatternConfidence:  getFloat("MODERATION_PATTERN_CONFIDENCE", 0.8),
			FastTrackMaxLength: getInt("MODERATION_FAST_TRACK_MAX_LENGTH", 500),
			OCRWeight:          getFloat("MODERATION_OCR_WEIGHT", 0.3),
			DedupeInFlight:     getBool("MODERATION_DEDUPE_IN_FLIGHT", true),
			CategoryWeights:    weights,
		},
		Providers: ProvidersConfig{
			OpenAIKey:         getEnv("OPENAI_API_KEY", ""),
			OpenAIURL:         getEnv("OPENAI_BASE_URL", ""),
			OpenAIModel:       getEnv("OPENAI_MODERATION_MODEL", ""),
			OpenAIWeight:      getFloat("OPENAI_WEIGHT", 0.4),
			PerspectiveKey:    getEnv("PERSPECTIVE_API_KEY", ""),
			PerspectiveURL:    getEnv("PERSPECTIVE_BASE_URL", ""),
			PerspectiveWeight: getFloat("PERSPECTIVE_WEIGHT", 0.3),
			VisionKey:         getEnv("VISION_API_KEY", ""),
			VisionURL:         getEnv("VISION_BASE_URL", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.JWT.Secret == "change-this-secret-key" && c.Server.Env == "production" {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	m := c.Moderation
	if m.PatternConfidence <= 0 || m.PatternConfidence > 1 {
		return fmt.Errorf("MODERATION_PATTERN_CONFIDENCE must be in (0,1], got %v", m.PatternConfidence)
	}
	if m.ClassifierTimeout <= 0 || m.MediaTimeout <= 0 {
		return fmt.Errorf("moderation timeouts must be positive")
	}
	if m.OCRWeight < 0 || c.Providers.OpenAIWeight < 0 || c.Providers.PerspectiveWeight < 0 {
		return fmt.Errorf("weights must not be negative")
	}
	if c.API.RateLimitPerSec <= 0 || c.API.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	return nil
}

// ModerationOptions converts the moderation section into engine options.
func (c *Config) ModerationOptions() moderation.Options {
	opts := moderation.DefaultOptions()
	opts.Weights = c.Moderation.CategoryWeights.Merge()
	opts.FastTrackMaxLength = c.Moderation.FastTrackMaxLength
	opts.PatternConfidence = c.Moderation.PatternConfidence
	opts.ClassifierTimeout = c.Moderation.ClassifierTimeout
	opts.MediaTimeout = c.Moderation.MediaTimeout
	opts.OCRWeight = c.Moderation.OCRWeight
	opts.DedupeInFlight = c.Moderation.DedupeInFlight
	return opts
}

// GetDSN returns the database connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// parseWeights reads "category=weight,..." overrides.
func parseWeights(raw string) (moderation.Weights, error) {
	w := moderation.Weights{}
	if strings.TrimSpace(raw) == "" {
		return w, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("MODERATION_CATEGORY_WEIGHTS: malformed pair %q", pair)
		}
		cat := moderation.Category(strings.TrimSpace(name))
		if !cat.Valid() {
			return nil, fmt.Errorf("MODERATION_CATEGORY_WEIGHTS: unknown category %q", name)
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("MODERATION_CATEGORY_WEIGHTS: bad weight for %s: %q", cat, value)
		}
		w[cat] = n
	}
	return w, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getFloat(key string, defaultValue float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func getBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}
