package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/farmlink/farmlink/internal/otp"
	"github.com/joho/godotenv"
)

const (
	StateBackendRedis    = "redis"
	StateBackendDynamoDB = "dynamodb"
)

type Config struct {
	Server            ServerConfig
	DynamoDB          DynamoDBConfig
	Redis             RedisConfig
	JWT               JWTConfig
	OTP               OTPConfig
	EmailVerification EmailVerificationConfig
	Upload            UploadConfig
	Media             MediaConfig
	CORS              CORSConfig
	RateLimit         RateLimitConfig
	Twilio            TwilioConfig
	SendGrid          SendGridConfig

	// StateBackend selects where OTP and refresh-token state lives.
	StateBackend string
	LogLevel     string
}

type ServerConfig struct {
	Env          string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxBodyBytes int64
}

type DynamoDBConfig struct {
	Endpoint  string
	Region    string
	TableName string
}

// RedisConfig with an empty Endpoint disables Redis; that is only valid when
// StateBackend is dynamodb.
type RedisConfig struct {
	Endpoint string
	Password string
	DB       int
}

type JWTConfig struct {
	SecretKey     string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

type OTPConfig struct {
	Length      int
	Expiry      time.Duration
	MaxAttempts int
}

type EmailVerificationConfig struct {
	Length int
	Expiry time.Duration
}

type UploadConfig struct {
	Root        string
	PublicDir   string
	MaxFiles    int
	MaxFileSize int64
}

type MediaConfig struct {
	BaseURL      string
	DefaultImage string
	CacheMaxAge  time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type RateLimitConfig struct {
	Max    int
	Window time.Duration
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromPhone  string
}

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	Sandbox   bool
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Load reads an optional dotenv file (CONFIG_FILE, default config.env) and
// then builds the configuration from the environment.
func Load() (*Config, error) {
	if err := loadDotenv(getEnv("CONFIG_FILE", "config.env")); err != nil {
		return nil, err
	}

	env := getEnv("ENV", "development")
	defaultRateLimit := 1000
	if env == "production" {
		defaultRateLimit = 100
	}

	cfg := &Config{
		Server: ServerConfig{
			Env:          env,
			Port:         getEnv("PORT", "3001"),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			MaxBodyBytes: getEnvAsInt64("SERVER_MAX_BODY_BYTES", 10<<20),
		},
		DynamoDB: DynamoDBConfig{
			Endpoint:  getEnv("DYNAMODB_ENDPOINT", ""),
			Region:    getEnv("DYNAMODB_REGION", "us-east-1"),
			TableName: getEnv("DYNAMODB_TABLE_NAME", "FarmlinkTable"),
		},
		Redis: RedisConfig{
			Endpoint: getEnv("REDIS_ENDPOINT", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			SecretKey:     getEnv("JWT_SECRET_KEY", ""),
			AccessExpiry:  getEnvAsDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
			RefreshExpiry: getEnvAsDuration("JWT_REFRESH_EXPIRY", 7*24*time.Hour),
		},
		OTP: OTPConfig{
			Length:      getEnvAsInt("OTP_LENGTH", 6),
			Expiry:      getEnvAsDuration("OTP_EXPIRY", 10*time.Minute),
			MaxAttempts: getEnvAsInt("OTP_MAX_ATTEMPTS", 5),
		},
		EmailVerification: EmailVerificationConfig{
			Length: getEnvAsInt("EMAIL_OTP_LENGTH", 6),
			Expiry: getEnvAsDuration("EMAIL_OTP_EXPIRY", 10*time.Minute),
		},
		Upload: UploadConfig{
			Root:        getEnv("UPLOAD_ROOT", "uploads"),
			PublicDir:   getEnv("PUBLIC_DIR", "public"),
			MaxFiles:    getEnvAsInt("UPLOAD_MAX_FILES", 5),
			MaxFileSize: getEnvAsInt64("UPLOAD_MAX_FILE_SIZE", 5<<20),
		},
		Media: MediaConfig{
			BaseURL:      strings.TrimRight(getEnv("MEDIA_BASE_URL", ""), "/"),
			DefaultImage: getEnv("MEDIA_DEFAULT_IMAGE", "/public/images/default-product.png"),
			CacheMaxAge:  getEnvAsDuration("MEDIA_CACHE_MAX_AGE", 24*time.Hour),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		RateLimit: RateLimitConfig{
			Max:    getEnvAsInt("RATE_LIMIT_MAX", defaultRateLimit),
			Window: getEnvAsDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
		},
		Twilio: TwilioConfig{
			AccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
			FromPhone:  getEnv("TWILIO_FROM_PHONE", ""),
		},
		SendGrid: SendGridConfig{
			APIKey:    getEnv("SENDGRID_API_KEY", ""),
			FromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
			FromName:  getEnv("SENDGRID_FROM_NAME", "Farmlink"),
			Sandbox:   getEnvAsBool("SENDGRID_SANDBOX", false),
		},
		StateBackend: strings.ToLower(getEnv("STATE_BACKEND", StateBackendRedis)),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}

	if cfg.StateBackend != StateBackendRedis && cfg.StateBackend != StateBackendDynamoDB {
		return nil, fmt.Errorf("STATE_BACKEND must be %q or %q, got %q",
			StateBackendRedis, StateBackendDynamoDB, cfg.StateBackend)
	}

	if cfg.OTP.Length < 1 || cfg.OTP.Length > otp.MaxLength {
		return nil, fmt.Errorf("OTP_LENGTH must be between 1 and %d", otp.MaxLength)
	}

	if cfg.EmailVerification.Length < 1 || cfg.EmailVerification.Length > otp.MaxLength {
		return nil, fmt.Errorf("EMAIL_OTP_LENGTH must be between 1 and %d", otp.MaxLength)
	}

	if cfg.OTP.MaxAttempts < 1 {
		return nil, fmt.Errorf("OTP_MAX_ATTEMPTS must be positive")
	}

	if cfg.Upload.MaxFiles < 1 {
		return nil, fmt.Errorf("UPLOAD_MAX_FILES must be positive")
	}

	if cfg.Upload.MaxFileSize < 1 {
		return nil, fmt.Errorf("UPLOAD_MAX_FILE_SIZE must be positive")
	}

	return cfg, nil
}

// RequireJWT validates the signing secret; only binaries that issue tokens
// need it.
func (c *Config) RequireJWT() error {
	if c.JWT.SecretKey == "" {
		return fmt.Errorf("JWT_SECRET_KEY environment variable is required")
	}

	if len(c.JWT.SecretKey) < 32 {
		return fmt.Errorf("JWT_SECRET_KEY must be at least 32 bytes (256 bits)")
	}

	return nil
}

func loadDotenv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
