package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Refresh token lifetime bounds.
const (
	MinRefreshTTL = 7 * 24 * time.Hour
	MaxRefreshTTL = 15 * 24 * time.Hour
)

// ErrSharedJWTSecret is returned when access and refresh tokens would share a signing key.
var ErrSharedJWTSecret = errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must be set and differ")

// ErrBootstrapPassword is returned when a bootstrap admin email is set without a password.
var ErrBootstrapPassword = errors.New("BOOTSTRAP_ADMIN_PASSWORD is required when BOOTSTRAP_ADMIN_EMAIL is set")

type Config struct {
	Env            string
	Port           int
	APIPrefix      string
	TrustedProxies []string
	StorageDriver  string

	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	JWT       JWTConfig
	Session   SessionConfig
	Cookie    CookieConfig
	CORS      CORSConfig
	Log       LogConfig
	Audit     AuditConfig
	Bootstrap BootstrapConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	// session rotation holds connections only for single-row statements, so idle
	// connections are recycled quickly
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	// Timeout bounds each cache call so a slow Redis falls through to storage.
	Timeout time.Duration
}

// CacheConfig governs the identity read cache on the access-token fast path.
type CacheConfig struct {
	Enabled     bool
	IdentityTTL time.Duration
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	Issuer        string
	Audience      []string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// SessionConfig controls session retention and credential hashing.
type SessionConfig struct {
	Retention  time.Duration
	BcryptCost int
}

// CookieConfig holds the raw cookie settings; pkg/cookie turns them into a Policy.
type CookieConfig struct {
	Secure   bool
	SameSite string
	Domain   string
	Path     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AuditConfig sizes the asynchronous audit worker pool.
type AuditConfig struct {
	Workers    int
	BufferSize int
}

// BootstrapConfig names the super admin created at startup when no account holds the email.
type BootstrapConfig struct {
	Email    string
	Password string
	Name     string
}

// Enabled reports whether a bootstrap account is configured.
func (b BootstrapConfig) Enabled() bool {
	return b.Email != ""
}

// IsProduction reports whether the process runs with production defaults.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.TrustedProxies = splitAndTrim(v.GetString("TRUSTED_PROXIES"))
	cfg.StorageDriver = strings.ToLower(v.GetString("STORAGE_DRIVER"))

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),

		ConnMaxLifetime: parseDuration(v.GetString("DB_CONN_MAX_LIFETIME"), 30*time.Minute),
		ConnMaxIdleTime: parseDuration(v.GetString("DB_CONN_MAX_IDLE_TIME"), 5*time.Minute),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		Timeout:  parseDuration(v.GetString("REDIS_TIMEOUT"), 250*time.Millisecond),
	}

	cfg.Cache = CacheConfig{
		Enabled:     v.GetBool("ENABLE_IDENTITY_CACHE"),
		IdentityTTL: parseDuration(v.GetString("IDENTITY_CACHE_TTL"), time.Minute),
	}

	cfg.JWT = JWTConfig{
		AccessSecret:  v.GetString("JWT_ACCESS_SECRET"),
		RefreshSecret: v.GetString("JWT_REFRESH_SECRET"),
		Issuer:        v.GetString("JWT_ISSUER"),
		Audience:      splitAndTrim(v.GetString("JWT_AUDIENCE")),
		AccessTTL:     parseDuration(v.GetString("ACCESS_TOKEN_TTL"), 15*time.Minute),
		RefreshTTL:    clampRefreshTTL(parseDuration(v.GetString("REFRESH_TOKEN_TTL"), MinRefreshTTL)),
	}
	if cfg.JWT.AccessSecret == "" || cfg.JWT.RefreshSecret == "" || cfg.JWT.AccessSecret == cfg.JWT.RefreshSecret {
		return nil, ErrSharedJWTSecret
	}

	cfg.Session = SessionConfig{
		Retention:  parseDuration(v.GetString("SESSION_RETENTION"), MaxRefreshTTL),
		BcryptCost: v.GetInt("BCRYPT_COST"),
	}
	if cfg.Session.Retention < cfg.JWT.RefreshTTL {
		cfg.Session.Retention = cfg.JWT.RefreshTTL
	}

	cfg.Cookie = CookieConfig{
		Secure:   v.GetBool("COOKIE_SECURE"),
		SameSite: v.GetString("COOKIE_SAMESITE"),
		Domain:   v.GetString("COOKIE_DOMAIN"),
		Path:     v.GetString("COOKIE_PATH"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Audit = AuditConfig{
		Workers:    v.GetInt("AUDIT_WORKERS"),
		BufferSize: v.GetInt("AUDIT_BUFFER"),
	}

	cfg.Bootstrap = BootstrapConfig{
		Email:    strings.ToLower(strings.TrimSpace(v.GetString("BOOTSTRAP_ADMIN_EMAIL"))),
		Password: v.GetString("BOOTSTRAP_ADMIN_PASSWORD"),
		Name:     v.GetString("BOOTSTRAP_ADMIN_NAME"),
	}
	if cfg.Bootstrap.Enabled() && cfg.Bootstrap.Password == "" {
		return nil, ErrBootstrapPassword
	}

	switch cfg.StorageDriver {
	case StoragePostgres, StorageMemory:
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("STORAGE_DRIVER", StoragePostgres)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "campus_admin")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "30m")
	v.SetDefault("DB_CONN_MAX_IDLE_TIME", "5m")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_TIMEOUT", "250ms")
	v.SetDefault("ENABLE_IDENTITY_CACHE", true)
	v.SetDefault("IDENTITY_CACHE_TTL", "1m")

	v.SetDefault("JWT_ACCESS_SECRET", "dev_access_secret")
	v.SetDefault("JWT_REFRESH_SECRET", "dev_refresh_secret")
	v.SetDefault("JWT_ISSUER", "campus-admin-api")
	v.SetDefault("JWT_AUDIENCE", "")
	v.SetDefault("ACCESS_TOKEN_TTL", "15m")
	v.SetDefault("REFRESH_TOKEN_TTL", "168h")
	v.SetDefault("SESSION_RETENTION", "360h")
	v.SetDefault("BCRYPT_COST", 10)

	v.SetDefault("COOKIE_SECURE", false)
	v.SetDefault("COOKIE_SAMESITE", "")
	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("COOKIE_PATH", "/")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("AUDIT_WORKERS", 2)
	v.SetDefault("AUDIT_BUFFER", 256)

	v.SetDefault("BOOTSTRAP_ADMIN_EMAIL", "")
	v.SetDefault("BOOTSTRAP_ADMIN_PASSWORD", "")
	v.SetDefault("BOOTSTRAP_ADMIN_NAME", "Super Admin")
}

func clampRefreshTTL(d time.Duration) time.Duration {
	if d < MinRefreshTTL {
		return MinRefreshTTL
	}
	if d > MaxRefreshTTL {
		return MaxRefreshTTL
	}
	return d
}

// SetConfigFile bypasses viper's search path, so a missing .env surfaces as a path error.
func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
