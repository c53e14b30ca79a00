package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the API server.
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins string
	BodyLimitBytes int
	PublicBaseURL  string

	Database DatabaseConfig
	Auth     AuthConfig
	Signing  SigningConfig
	Limits   LimitConfig
	SMTP     SMTPConfig
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	TimeZone string
}

// DSN renders the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode, d.TimeZone)
}

type AuthConfig struct {
	StaffSecret string
	StaffTTL    time.Duration
}

type SigningConfig struct {
	TokenSecret string
	LinkTTL     time.Duration
	RequestTTL  time.Duration
}

type LimitConfig struct {
	GlobalMax    int
	GlobalWindow time.Duration
	LinkHits     int
	OtpIssue     int
	OtpVerify    int
	Window       time.Duration
	Backend      string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether outbound mail should go through SMTP.
func (s SMTPConfig) Enabled() bool { return strings.TrimSpace(s.Host) != "" }

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	bodyLimit := getEnvInt("BODY_LIMIT_BYTES", 0)
	if bodyLimit <= 0 {
		bodyLimit = getEnvInt("BODY_LIMIT_MB", 4) * 1024 * 1024
	}

	staffSecret := getEnv("JWT_SECRET_KEY", "")
	if strings.TrimSpace(staffSecret) == "" {
		staffSecret = getEnv("JWT_SECRET", "")
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("APP_ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", ""),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "*"),
		BodyLimitBytes: bodyLimit,
		PublicBaseURL:  strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "db"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", ""),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", ""),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			TimeZone: getEnv("DB_TIMEZONE", "UTC"),
		},
		Auth: AuthConfig{
			StaffSecret: staffSecret,
			StaffTTL:    getEnvDuration("JWT_TTL_HOURS", 24, time.Hour),
		},
		Signing: SigningConfig{
			TokenSecret: getEnv("SIGN_TOKEN_SECRET", ""),
			LinkTTL:     getEnvDuration("SIGN_LINK_TTL_HOURS", 24*30, time.Hour),
			RequestTTL:  getEnvDuration("SIGN_REQUEST_TTL_DAYS", 14, 24*time.Hour),
		},
		Limits: LimitConfig{
			GlobalMax:    getEnvInt("RATE_LIMIT_MAX", 60),
			GlobalWindow: getEnvDuration("RATE_LIMIT_WINDOW_SECONDS", 60, time.Second),
			LinkHits:     getEnvInt("SIGN_LINK_RATE_LIMIT", 10),
			OtpIssue:     getEnvInt("OTP_RATE_LIMIT", 5),
			OtpVerify:    getEnvInt("OTP_VERIFY_RATE_LIMIT", 10),
			Window:       time.Minute,
			Backend:      strings.ToLower(getEnv("RATE_LIMIT_BACKEND", "memory")),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "no-reply@localhost"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Auth.StaffSecret) == "" {
		return errors.New("JWT secret not configured (set JWT_SECRET_KEY or JWT_SECRET)")
	}
	if strings.TrimSpace(c.Signing.TokenSecret) == "" {
		return errors.New("SIGN_TOKEN_SECRET is required")
	}
	// Signer links and staff sessions must never verify against each other.
	if c.Signing.TokenSecret == c.Auth.StaffSecret {
		return errors.New("SIGN_TOKEN_SECRET must differ from the staff JWT secret")
	}
	switch c.Limits.Backend {
	case "memory", "database":
	default:
		return fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", c.Limits.Backend)
	}
	return nil
}

// IsProduction reports whether APP_ENV selects production behaviour.
func (c *Config) IsProduction() bool { return c.Env == "production" }

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvInt reads an int env var with a default fallback.
func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvDuration(key string, def int, unit time.Duration) time.Duration {
	return time.Duration(getEnvInt(key, def)) * unit
}
