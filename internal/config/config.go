package config

import (
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Backend kinds selectable with BACKEND.
const (
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
)

var (
	ErrMissingSupabase = errors.New("missing SUPABASE_URL or SUPABASE_ANON_KEY")
	ErrMissingDSN      = errors.New("missing POSTGRES_DSN")
	ErrUnknownBackend  = errors.New("unknown BACKEND")
)

// Config holds all service configuration loaded from environment variables.
type Config struct {
	Port             string
	Backend          string
	SupabaseURL      string
	SupabaseAnonKey  string
	PostgresDSN      string
	RedisAddr        string
	RedisPassword    string
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StorageUseSSL    bool
	StoragePublicURL string
	IPLookupURL      string
	LogLevel         string
	LogFormat        string
	AllowedOrigins   []string
}

// Load reads .env (if present) and the process environment. The backend
// credentials are required; everything else has a default.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getenv("PORT", "8080"),
		Backend:          strings.ToLower(getenv("BACKEND", BackendSupabase)),
		SupabaseURL:      getenv("SUPABASE_URL", ""),
		SupabaseAnonKey:  getenv("SUPABASE_ANON_KEY", ""),
		PostgresDSN:      getenv("POSTGRES_DSN", ""),
		RedisAddr:        getenv("REDIS_ADDR", "redis:6379"),
		RedisPassword:    getenv("REDIS_PASSWORD", ""),
		StorageEndpoint:  getenv("STORAGE_ENDPOINT", ""),
		StorageAccessKey: getenv("STORAGE_ACCESS_KEY", ""),
		StorageSecretKey: getenv("STORAGE_SECRET_KEY", ""),
		StorageBucket:    getenv("STORAGE_BUCKET", "avatars"),
		StorageUseSSL:    getenv("STORAGE_USE_SSL", "true") == "true",
		StoragePublicURL: getenv("STORAGE_PUBLIC_URL", ""),
		IPLookupURL:      getenv("IP_LOOKUP_URL", "https://api.ipify.org?format=json"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		LogFormat:        getenv("LOG_FORMAT", "text"),
		AllowedOrigins:   splitCSV(getenv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")),
	}

	switch cfg.Backend {
	case BackendSupabase:
		if cfg.SupabaseURL == "" || cfg.SupabaseAnonKey == "" {
			return nil, ErrMissingSupabase
		}
	case BackendPostgres:
		if cfg.PostgresDSN == "" {
			return nil, ErrMissingDSN
		}
	default:
		return nil, ErrUnknownBackend
	}

	return cfg, nil
}

// StorageEnabled reports whether avatar uploads are configured.
func (c *Config) StorageEnabled() bool {
	return c.StorageEndpoint != "" && c.StorageAccessKey != "" && c.StorageSecretKey != ""
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitCSV(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if o := strings.TrimRight(strings.TrimSpace(p), "/"); o != "" {
			out = append(out, o)
		}
	}
	return out
}
