package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	AppPort         string
	AppEnv          string
	AppBaseURL      string
	FrontendBaseURL string
	CORSOrigins     string

	DBDSN          string
	DBMaxOpenConns int
	DBMaxIdleConns int
	DBLogLevel     string

	JWTSecret     string
	JWTExpiresMin int

	GoogleClientID string
	GoogleSecret   string
	GoogleRedirect string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	GeocodingAPIKey   string
	GeocodingBaseURL  string
	GeocodingTimeout  time.Duration
	GeocodingCacheTTL time.Duration

	SearchDefaultRadiusKm float64
	SearchMaxRadiusKm     float64

	LogLevel  string
	LogFormat string
}

var defaults = map[string]any{
	"APP_PORT":                 "8080",
	"APP_ENV":                  "development",
	"APP_BASE_URL":             "http://localhost:8080",
	"FRONTEND_BASE_URL":        "http://localhost:3000",
	"CORS_ORIGINS":             "http://localhost:3000",
	"DB_MAX_OPEN_CONNS":        25,
	"DB_MAX_IDLE_CONNS":        5,
	"DB_LOG_LEVEL":             "warn",
	"JWT_EXPIRES_MIN":          10080,
	"REDIS_ADDR":               "",
	"REDIS_DB":                 0,
	"GEOCODING_BASE_URL":       "https://maps.googleapis.com/maps/api/geocode/json",
	"GEOCODING_TIMEOUT":        "10s",
	"GEOCODING_CACHE_TTL":      "24h",
	"SEARCH_DEFAULT_RADIUS_KM": 10.0,
	"SEARCH_MAX_RADIUS_KM":     100.0,
	"LOG_LEVEL":                "",
	"LOG_FORMAT":               "",
}

var required = []string{"DB_DSN", "JWT_SECRET"}

// Load reads configuration from the environment. Values from a .env file
// must already be loaded into the process environment.
func Load() (*Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var missing []string
	for _, k := range required {
		if strings.TrimSpace(v.GetString(k)) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing env: %s", strings.Join(missing, ", "))
	}

	cfg := &Config{
		AppPort:         v.GetString("APP_PORT"),
		AppEnv:          v.GetString("APP_ENV"),
		AppBaseURL:      v.GetString("APP_BASE_URL"),
		FrontendBaseURL: v.GetString("FRONTEND_BASE_URL"),
		CORSOrigins:     v.GetString("CORS_ORIGINS"),

		DBDSN:          v.GetString("DB_DSN"),
		DBMaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		DBMaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		DBLogLevel:     v.GetString("DB_LOG_LEVEL"),

		JWTSecret:     v.GetString("JWT_SECRET"),
		JWTExpiresMin: v.GetInt("JWT_EXPIRES_MIN"),

		GoogleClientID: v.GetString("GOOGLE_CLIENT_ID"),
		GoogleSecret:   v.GetString("GOOGLE_CLIENT_SECRET"),
		GoogleRedirect: v.GetString("GOOGLE_REDIRECT_URL"),

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),

		GeocodingAPIKey:   v.GetString("GEOCODING_API_KEY"),
		GeocodingBaseURL:  v.GetString("GEOCODING_BASE_URL"),
		GeocodingTimeout:  v.GetDuration("GEOCODING_TIMEOUT"),
		GeocodingCacheTTL: v.GetDuration("GEOCODING_CACHE_TTL"),

		SearchDefaultRadiusKm: v.GetFloat64("SEARCH_DEFAULT_RADIUS_KM"),
		SearchMaxRadiusKm:     v.GetFloat64("SEARCH_MAX_RADIUS_KM"),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.SearchDefaultRadiusKm <= 0 {
		return errors.New("SEARCH_DEFAULT_RADIUS_KM must be positive")
	}
	if c.SearchMaxRadiusKm < c.SearchDefaultRadiusKm {
		return errors.New("SEARCH_MAX_RADIUS_KM must be >= SEARCH_DEFAULT_RADIUS_KM")
	}
	if c.GeocodingTimeout <= 0 {
		return errors.New("GEOCODING_TIMEOUT must be positive")
	}
	// credentialed CORS cannot use a wildcard origin
	origins := c.AllowedOrigins()
	if len(origins) == 0 {
		return errors.New("CORS_ORIGINS must list at least one origin")
	}
	for _, o := range origins {
		if o == "*" {
			return errors.New("CORS_ORIGINS must not contain \"*\"")
		}
	}
	return nil
}

// AllowedOrigins splits CORS_ORIGINS on commas, dropping blanks.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GoogleEnabled reports whether the OAuth login routes should be mounted.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleSecret != "" && c.GoogleRedirect != ""
}
