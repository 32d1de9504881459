package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Encryption EncryptionConfig
	RateLimit  RateLimitConfig
	OAuth      OAuthConfig
	Geocoder   GeocoderConfig
	Push       PushConfig
	Storage    StorageConfig
	Firestore  FirestoreConfig
	Alerts     AlertsConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	Env            string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

type EncryptionConfig struct {
	Key string
}

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

// OAuthConfig configures Google sign-in. FederatedDomains lists email domains
// whose placeholder accounts are created as Google accounts.
type OAuthConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	FederatedDomains   []string
}

type GeocoderConfig struct {
	URL        string // "static" (or empty) answers every lookup with the default point
	UserAgent  string
	DefaultLat float64
	DefaultLon float64
}

type PushConfig struct {
	Driver          string // fcm, log
	FCMProjectID    string
	CredentialsFile string
}

type StorageConfig struct {
	Driver    string // gcs, s3, memory
	Bucket    string
	Region    string
	Endpoint  string
	PublicURL string

	AccessKeyID     string
	SecretAccessKey string
}

type FirestoreConfig struct {
	ProjectID string
}

type AlertsConfig struct {
	TTLDays           int
	FanOutConcurrency int
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (j *JWTConfig) Expiry() time.Duration {
	return time.Duration(j.ExpiryHours) * time.Hour
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

func (o *OAuthConfig) GoogleEnabled() bool {
	return o.GoogleClientID != "" && o.GoogleClientSecret != ""
}

func (a *AlertsConfig) TTL() time.Duration {
	return time.Duration(a.TTLDays) * 24 * time.Hour
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "chimeo")
	v.SetDefault("DATABASE_PASSWORD", "chimeo_secret")
	v.SetDefault("DATABASE_NAME", "chimeo")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("JWT_EXPIRY_HOURS", 24)
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("FEDERATED_DOMAINS", "gmail.com,googlemail.com")
	v.SetDefault("GEOCODER_URL", "https://nominatim.openstreetmap.org/search")
	v.SetDefault("GEOCODER_USER_AGENT", "chimeo-server/1.0")
	// Geographic center of the contiguous United States
	v.SetDefault("GEOCODER_DEFAULT_LAT", 39.8283)
	v.SetDefault("GEOCODER_DEFAULT_LON", -98.5795)
	v.SetDefault("PUSH_DRIVER", "log")
	v.SetDefault("STORAGE_DRIVER", "memory")
	v.SetDefault("STORAGE_REGION", "us-east-1")
	v.SetDefault("ALERT_TTL_DAYS", 14)
	v.SetDefault("FANOUT_CONCURRENCY", 16)

	// Load from .env file if present
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("SERVER_HOST"),
			Port:           v.GetInt("SERVER_PORT"),
			Env:            v.GetString("SERVER_ENV"),
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DATABASE_HOST"),
			Port:     v.GetInt("DATABASE_PORT"),
			User:     v.GetString("DATABASE_USER"),
			Password: v.GetString("DATABASE_PASSWORD"),
			Name:     v.GetString("DATABASE_NAME"),
			SSLMode:  v.GetString("DATABASE_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		JWT: JWTConfig{
			Secret:      v.GetString("JWT_SECRET"),
			ExpiryHours: v.GetInt("JWT_EXPIRY_HOURS"),
		},
		Encryption: EncryptionConfig{
			Key: v.GetString("ENCRYPTION_KEY"),
		},
		RateLimit: RateLimitConfig{
			Requests:      v.GetInt("RATE_LIMIT_REQUESTS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		OAuth: OAuthConfig{
			GoogleClientID:     v.GetString("GOOGLE_CLIENT_ID"),
			GoogleClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
			GoogleRedirectURL:  v.GetString("GOOGLE_REDIRECT_URL"),
			FederatedDomains:   splitList(v.GetString("FEDERATED_DOMAINS")),
		},
		Geocoder: GeocoderConfig{
			URL:        v.GetString("GEOCODER_URL"),
			UserAgent:  v.GetString("GEOCODER_USER_AGENT"),
			DefaultLat: v.GetFloat64("GEOCODER_DEFAULT_LAT"),
			DefaultLon: v.GetFloat64("GEOCODER_DEFAULT_LON"),
		},
		Push: PushConfig{
			Driver:          v.GetString("PUSH_DRIVER"),
			FCMProjectID:    v.GetString("FCM_PROJECT_ID"),
			CredentialsFile: v.GetString("FCM_CREDENTIALS_FILE"),
		},
		Storage: StorageConfig{
			Driver:    v.GetString("STORAGE_DRIVER"),
			Bucket:    v.GetString("STORAGE_BUCKET"),
			Region:    v.GetString("STORAGE_REGION"),
			Endpoint:  v.GetString("STORAGE_ENDPOINT"),
			PublicURL: v.GetString("STORAGE_PUBLIC_URL"),

			AccessKeyID:     v.GetString("STORAGE_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("STORAGE_SECRET_ACCESS_KEY"),
		},
		Firestore: FirestoreConfig{
			ProjectID: v.GetString("FIRESTORE_PROJECT_ID"),
		},
		Alerts: AlertsConfig{
			TTLDays:           v.GetInt("ALERT_TTL_DAYS"),
			FanOutConcurrency: v.GetInt("FANOUT_CONCURRENCY"),
		},
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
