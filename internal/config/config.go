package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Filter store backends.
const (
	FilterStoreMemory   = "memory"
	FilterStoreFile     = "file"
	FilterStorePostgres = "postgres"
)

// Config holds application configuration
type Config struct {
	Port            string
	APIBaseURL      string // shared performance API endpoint
	APITimeout      time.Duration
	APIRetries      int
	DataDir         string
	DatabaseURL     string
	FilterStore     string
	CatalogPath     string // empty means the embedded catalog
	RefreshInterval time.Duration
	ModalWidth      int
	ModalHeight     int
	TrustedOrigins  []string
}

// Overrides carries flag values; empty fields are ignored.
type Overrides struct {
	Port        string
	APIBaseURL  string
	DataDir     string
	DatabaseURL string
	FilterStore string
	CatalogPath string
}

// Load loads configuration from multiple sources with priority:
// 1. Command flags (see LoadWithOverrides)
// 2. Config file (./scalex.toml or $XDG_CONFIG_HOME/scalex/scalex.toml)
// 3. Environment variables
func Load() (*Config, error) {
	return LoadWithOverrides(Overrides{})
}

// LoadWithOverrides loads config and applies flag overrides
func LoadWithOverrides(o Overrides) (*Config, error) {
	v := newBaseViper()
	_ = v.ReadInConfig()
	return buildConfig(v, o), nil
}

func newBaseViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("scalex")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	// Manual XDG lookup so tests can point XDG_CONFIG_HOME at a temp dir.
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		if home, err := os.UserHomeDir(); err == nil {
			configHome = filepath.Join(home, ".config")
		}
	}
	if configHome != "" {
		v.AddConfigPath(filepath.Join(configHome, "scalex"))
	}

	return v
}

func buildConfig(v *viper.Viper, o Overrides) *Config {
	cfg := &Config{
		Port:            "3000",
		APIBaseURL:      "http://localhost:8000",
		APITimeout:      10 * time.Second,
		APIRetries:      2,
		DataDir:         "./data",
		FilterStore:     FilterStoreFile,
		RefreshInterval: 0,
		ModalWidth:      1280,
		ModalHeight:     720,
		TrustedOrigins:  []string{"localhost"},
	}

	// Config file first, environment only when the key is absent from the file.
	stringKey(v, "port", "PORT", &cfg.Port)
	stringKey(v, "api_base_url", "SCALEX_API_BASE_URL", &cfg.APIBaseURL)
	stringKey(v, "data_dir", "DATA_DIR", &cfg.DataDir)
	stringKey(v, "database_url", "DATABASE_URL", &cfg.DatabaseURL)
	stringKey(v, "filter_store", "SCALEX_FILTER_STORE", &cfg.FilterStore)
	stringKey(v, "catalog_path", "SCALEX_CATALOG_PATH", &cfg.CatalogPath)
	durationKey(v, "api_timeout", "SCALEX_API_TIMEOUT", &cfg.APITimeout)
	durationKey(v, "refresh_interval", "SCALEX_REFRESH_INTERVAL", &cfg.RefreshInterval)
	intKey(v, "api_retries", "SCALEX_API_RETRIES", &cfg.APIRetries)
	intKey(v, "modal.width", "SCALEX_MODAL_WIDTH", &cfg.ModalWidth)
	intKey(v, "modal.height", "SCALEX_MODAL_HEIGHT", &cfg.ModalHeight)

	if v.IsSet("trusted_origins") {
		cfg.TrustedOrigins = parseTrustedOrigins(v.GetString("trusted_origins"))
	} else if envOrigins := os.Getenv("TRUSTED_ORIGINS"); envOrigins != "" {
		cfg.TrustedOrigins = parseTrustedOrigins(envOrigins)
	}

	// Apply overrides (flags) last
	override(&cfg.Port, o.Port)
	override(&cfg.APIBaseURL, o.APIBaseURL)
	override(&cfg.DataDir, o.DataDir)
	override(&cfg.DatabaseURL, o.DatabaseURL)
	override(&cfg.FilterStore, o.FilterStore)
	override(&cfg.CatalogPath, o.CatalogPath)

	cfg.APIBaseURL = strings.TrimSuffix(cfg.APIBaseURL, "/")
	cfg.FilterStore = strings.ToLower(strings.TrimSpace(cfg.FilterStore))

	return cfg
}

func stringKey(v *viper.Viper, key, env string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
		return
	}
	if value := os.Getenv(env); value != "" {
		*dst = value
	}
}

func durationKey(v *viper.Viper, key, env string, dst *time.Duration) {
	if v.IsSet(key) {
		*dst = v.GetDuration(key)
		return
	}
	if value := os.Getenv(env); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			*dst = parsed
		}
	}
}

func intKey(v *viper.Viper, key, env string, dst *int) {
	if v.IsSet(key) {
		*dst = v.GetInt(key)
		return
	}
	if value := os.Getenv(env); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			*dst = parsed
		}
	}
}

func override(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

// parseTrustedOrigins parses a comma-separated string into a slice of trimmed, lowercased origins
func parseTrustedOrigins(originsStr string) []string {
	if originsStr == "" {
		return []string{}
	}

	parts := strings.Split(originsStr, ",")
	origins := make([]string, 0, len(parts))

	for _, part := range parts {
		origin, err := SanitizeTrustedDomain(part)
		if err != nil {
			continue
		}
		origins = append(origins, origin)
	}

	return origins
}

// CORSOrigins turns trusted hosts into origin values accepted by the CORS
// middleware. Both schemes are allowed.
func (c *Config) CORSOrigins() []string {
	origins := make([]string, 0, len(c.TrustedOrigins)*2)
	for _, host := range c.TrustedOrigins {
		origins = append(origins, "http://"+host, "https://"+host)
	}
	return origins
}
