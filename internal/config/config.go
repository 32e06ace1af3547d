package config

import (
	"os"
	"strings"
	"time"
)

type Config struct {
	Port        string
	DatabaseURL string
	// PincodeCSV is read when DatabaseURL is empty.
	PincodeCSV string
	// RateCardDir overrides the built-in rate cards when set.
	RateCardDir string
	// EnabledCarriers limits which carriers are quoted; empty means all.
	EnabledCarriers []string
	RedisURL        string
	QuoteCacheTTL   time.Duration
	LogLevel        string
}

const (
	defaultPort       = "8080"
	defaultPincodeCSV = "data/pincodes.csv"
	defaultCacheTTL   = 10 * time.Minute
)

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}
	csv := os.Getenv("PINCODE_CSV")
	if csv == "" {
		csv = defaultPincodeCSV
	}
	ttl := defaultCacheTTL
	if v := strings.TrimSpace(os.Getenv("QUOTE_CACHE_TTL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			ttl = d
		}
	}
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	return Config{
		Port:            port,
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		PincodeCSV:      csv,
		RateCardDir:     os.Getenv("RATE_CARD_DIR"),
		EnabledCarriers: splitList(os.Getenv("ENABLED_CARRIERS")),
		RedisURL:        os.Getenv("REDIS_URL"),
		QuoteCacheTTL:   ttl,
		LogLevel:        level,
	}
}

// CarrierEnabled reports whether name passes the ENABLED_CARRIERS filter.
func (c Config) CarrierEnabled(name string) bool {
	if len(c.EnabledCarriers) == 0 {
		return true
	}
	for _, e := range c.EnabledCarriers {
		if strings.EqualFold(e, strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
