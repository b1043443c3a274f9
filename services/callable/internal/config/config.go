package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file; CONFIG_PATH overrides it.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                      string   `yaml:"port"`
	LogLevel                  string   `yaml:"logLevel"`
	FirebaseProjectID         string   `yaml:"firebaseProjectId"`
	IDTokenJWKSURL            string   `yaml:"idTokenJwksURL"`
	RecordStore               string   `yaml:"recordStore"`
	AirtableBaseURL           string   `yaml:"airtableBaseURL"`
	AirtableKey               string   `yaml:"airtableKey"`
	AirtableBaseIDDC3         string   `yaml:"airtableBaseIdDc3"`
	AirtableRequestsPerSecond float64  `yaml:"airtableRequestsPerSecond"`
	SchemaPath                string   `yaml:"schemaPath"`
	SchemaCheckOnStart        bool     `yaml:"schemaCheckOnStart"`
	PushTokenStore            string   `yaml:"pushTokenStore"`
	PushTokenPrefix           string   `yaml:"pushTokenPrefix"`
	DatabaseURL               string   `yaml:"databaseURL"`
	RedisAddr                 string   `yaml:"redisAddr"`
	RedisPassword             string   `yaml:"redisPassword"`
	RateLimitPerMinute        int      `yaml:"rateLimitPerMinute"`
	TrustedProxyCIDRs         []string `yaml:"trustedProxyCidrs"`
	CORSAllowedOrigins        []string `yaml:"corsAllowedOrigins"`
}

// Path returns CONFIG_PATH or the default.
func Path() string {
	if v := strings.TrimSpace(os.Getenv("CONFIG_PATH")); v != "" {
		return v
	}
	return ConfigPath
}

// Load reads config from path (defaults to config.yaml). A .env file in
// the working directory is loaded first when present; it never overrides
// variables already set in the environment.
func Load(path string) (FileConfig, error) {
	_ = godotenv.Load()
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("FIREBASE_PROJECT_ID"); v != "" {
		cfg.FirebaseProjectID = v
	}
	if v := os.Getenv("AIRTABLE_KEY"); v != "" {
		cfg.AirtableKey = v
	}
	if v := os.Getenv("AIRTABLE_BASE_ID_DC3"); v != "" {
		cfg.AirtableBaseIDDC3 = v
	}
	if v := os.Getenv("AIRTABLE_BASE_URL"); v != "" {
		cfg.AirtableBaseURL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("CALLABLE_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.RateLimitPerMinute = n
		}
	}
	if v := os.Getenv("CALLABLE_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("CALLABLE_CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitCSV(v)
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.RecordStore == "" {
		cfg.RecordStore = "airtable"
	}
	if cfg.PushTokenStore == "" {
		cfg.PushTokenStore = "redis"
	}
	if cfg.RateLimitPerMinute == 0 {
		cfg.RateLimitPerMinute = 60
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	if strings.TrimSpace(cfg.FirebaseProjectID) == "" {
		return errors.New("config: firebaseProjectId is required (set in config.yaml or FIREBASE_PROJECT_ID)")
	}
	switch cfg.RecordStore {
	case "airtable":
		if cfg.AirtableKey == "" {
			return errors.New("config: airtableKey is required (set AIRTABLE_KEY)")
		}
		if cfg.AirtableBaseIDDC3 == "" {
			return errors.New("config: airtableBaseIdDc3 is required (set AIRTABLE_BASE_ID_DC3)")
		}
	case "memory":
	default:
		return fmt.Errorf("config: unknown recordStore %q (want airtable or memory)", cfg.RecordStore)
	}
	switch cfg.PushTokenStore {
	case "redis":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required for pushTokenStore postgres (set DATABASE_URL)")
		}
	default:
		return fmt.Errorf("config: unknown pushTokenStore %q (want redis or postgres)", cfg.PushTokenStore)
	}
	// Redis backs the rate limiter in every mode.
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	if cfg.RateLimitPerMinute < 0 {
		return errors.New("config: rateLimitPerMinute must be positive")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
