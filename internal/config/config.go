package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/BradenHooton/sentinel/internal/ipnet"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Guard    GuardConfig
	Cache    CacheConfig
	Notify   NotifyConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TrustedProxies []string
}

type AuthConfig struct {
	JWTSecret         string
	AccessTokenExpiry time.Duration
}

// GuardConfig holds the blocking thresholds, the access gate switches and the
// attempt log retention policy
type GuardConfig struct {
	MaxAttempts            int
	LockoutWindow          time.Duration
	LockoutDuration        time.Duration
	ExtendLockoutOnFailure bool
	IPWhitelistEnabled     bool
	IPWhitelist            []string
	Whitelist              *ipnet.Set
	AccessControlEnabled   bool
	AccessBypassPaths      []string
	FailClosed             bool
	RetentionDays          int
	CleanupInterval        time.Duration
	StatsTopIPs            int
}

type CacheConfig struct {
	Driver   string
	RedisURL string
	Prefix   string
}

// NotifyConfig configures SES e-mails sent when a key is blocked. Notifications
// are off unless Enabled is set.
type NotifyConfig struct {
	Enabled     bool
	AWSRegion   string
	FromAddress string
	Recipients  []string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "sentinel"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES", nil),
		},
		Auth: AuthConfig{
			JWTSecret:         jwtSecret,
			AccessTokenExpiry: getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
		},
		Guard: GuardConfig{
			MaxAttempts:            getEnvAsInt("LOGIN_MAX_ATTEMPTS", 5),
			LockoutWindow:          time.Duration(getEnvAsInt("LOGIN_LOCKOUT_WINDOW_MINUTES", 15)) * time.Minute,
			LockoutDuration:        time.Duration(getEnvAsInt("LOGIN_LOCKOUT_DURATION_MINUTES", 15)) * time.Minute,
			ExtendLockoutOnFailure: getEnvAsBool("LOGIN_EXTEND_LOCKOUT_ON_FAILURE", false),
			IPWhitelistEnabled:     getEnvAsBool("IP_WHITELIST_ENABLED", false),
			IPWhitelist:            getEnvAsList("IP_WHITELIST", nil),
			AccessControlEnabled:   getEnvAsBool("ACCESS_CONTROL_ENABLED", false),
			AccessBypassPaths:      getEnvAsList("ACCESS_CONTROL_BYPASS_PATHS", []string{"/health", "/metrics"}),
			FailClosed:             getEnvAsBool("GUARD_FAIL_CLOSED", false),
			RetentionDays:          getEnvAsInt("ATTEMPT_RETENTION_DAYS", 30),
			CleanupInterval:        getEnvAsDuration("ATTEMPT_CLEANUP_INTERVAL", 24*time.Hour),
			StatsTopIPs:            getEnvAsInt("BLOCKING_STATS_TOP_IPS", 10),
		},
		Cache: CacheConfig{
			Driver:   strings.ToLower(getEnv("CACHE_DRIVER", "memory")),
			RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
			Prefix:   getEnv("CACHE_PREFIX", "sentinel:"),
		},
		Notify: NotifyConfig{
			Enabled:     getEnvAsBool("NOTIFY_ENABLED", false),
			AWSRegion:   getEnv("NOTIFY_AWS_REGION", "us-east-1"),
			FromAddress: getEnv("NOTIFY_FROM_ADDRESS", ""),
			Recipients:  getEnvAsList("NOTIFY_RECIPIENTS", nil),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	// Validate JWT secret strength
	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.Guard.validate(); err != nil {
		return nil, err
	}

	if cfg.Notify.Enabled && cfg.Notify.FromAddress == "" {
		return nil, fmt.Errorf("NOTIFY_FROM_ADDRESS is required when NOTIFY_ENABLED is set")
	}

	return cfg, nil
}

// maxRetentionDays matches the bound enforced by the attempt log purge
const maxRetentionDays = 36500

func (g *GuardConfig) validate() error {
	if g.MaxAttempts <= 0 {
		return fmt.Errorf("LOGIN_MAX_ATTEMPTS must be positive (got %d)", g.MaxAttempts)
	}
	if g.LockoutWindow <= 0 {
		return fmt.Errorf("LOGIN_LOCKOUT_WINDOW_MINUTES must be positive (got %s)", g.LockoutWindow)
	}
	if g.LockoutDuration <= 0 {
		return fmt.Errorf("LOGIN_LOCKOUT_DURATION_MINUTES must be positive (got %s)", g.LockoutDuration)
	}
	if g.RetentionDays <= 0 || g.RetentionDays > maxRetentionDays {
		return fmt.Errorf("ATTEMPT_RETENTION_DAYS must be between 1 and %d (got %d)", maxRetentionDays, g.RetentionDays)
	}
	if g.CleanupInterval < 0 {
		return fmt.Errorf("ATTEMPT_CLEANUP_INTERVAL cannot be negative")
	}
	if g.StatsTopIPs <= 0 {
		g.StatsTopIPs = 10
	}

	set, err := ipnet.ParseSet(g.IPWhitelist)
	if err != nil {
		return fmt.Errorf("IP_WHITELIST: %w", err)
	}
	g.Whitelist = set

	return nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	// Minimum length based on environment
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvAsList splits a comma separated value, dropping blanks
func getEnvAsList(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}
	parts := strings.Split(value, ",")
	list := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			list = append(list, p)
		}
	}
	return list
}
