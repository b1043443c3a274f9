package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // the schedule timezone must resolve in minimal images

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file; CONFIG_PATH overrides it.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                      string  `yaml:"port"`
	LogLevel                  string  `yaml:"logLevel"`
	RecordStore               string  `yaml:"recordStore"`
	AirtableBaseURL           string  `yaml:"airtableBaseURL"`
	AirtableKey               string  `yaml:"airtableKey"`
	AirtableBaseIDBolsa       string  `yaml:"airtableBaseIdBolsa"`
	AirtableRequestsPerSecond float64 `yaml:"airtableRequestsPerSecond"`
	SchemaPath                string  `yaml:"schemaPath"`
	SchemaCheckOnStart        bool    `yaml:"schemaCheckOnStart"`
	PushTokenStore            string  `yaml:"pushTokenStore"`
	PushTokenPrefix           string  `yaml:"pushTokenPrefix"`
	DatabaseURL               string  `yaml:"databaseURL"`
	RedisAddr                 string  `yaml:"redisAddr"`
	RedisPassword             string  `yaml:"redisPassword"`
	RunLock                   *bool   `yaml:"runLock"`
	Schedule                  string  `yaml:"schedule"`
	Timezone                  string  `yaml:"timezone"`
	RunOnStart                bool    `yaml:"runOnStart"`
	RunTimeoutSeconds         int     `yaml:"runTimeoutSeconds"`
	PushSender                string  `yaml:"pushSender"`
	FirebaseProjectID         string  `yaml:"firebaseProjectId"`
	FirebaseCredentialsFile   string  `yaml:"firebaseCredentialsFile"`
	AMQPURL                   string  `yaml:"amqpURL"`
	AMQPExchange              string  `yaml:"amqpExchange"`
	AMQPRoutingKey            string  `yaml:"amqpRoutingKey"`
	PushStream                string  `yaml:"pushStream"`
	PushStreamMaxLen          int64   `yaml:"pushStreamMaxLen"`
}

// Path returns CONFIG_PATH or the default.
func Path() string {
	if v := strings.TrimSpace(os.Getenv("CONFIG_PATH")); v != "" {
		return v
	}
	return ConfigPath
}

// Load reads config from path (defaults to config.yaml). A .env file in
// the working directory is loaded first when present.
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

// RunTimeout returns the overall digest deadline.
func (c FileConfig) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSeconds) * time.Second
}

// RunLockEnabled reports whether replicas coordinate through the Redis lock.
func (c FileConfig) RunLockEnabled() bool {
	return c.RunLock == nil || *c.RunLock
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("AIRTABLE_KEY"); v != "" {
		cfg.AirtableKey = v
	}
	if v := os.Getenv("AIRTABLE_BASE_ID_BOLSA"); v != "" {
		cfg.AirtableBaseIDBolsa = v
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
	if v := os.Getenv("FIREBASE_PROJECT_ID"); v != "" {
		cfg.FirebaseProjectID = v
	}
	if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" && cfg.FirebaseCredentialsFile == "" {
		cfg.FirebaseCredentialsFile = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("DIGEST_PUSH_SENDER"); v != "" {
		cfg.PushSender = v
	}
	if v := os.Getenv("DIGEST_RUN_ON_START"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.RunOnStart = b
		}
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.RecordStore == "" {
		cfg.RecordStore = "airtable"
	}
	if cfg.PushTokenStore == "" {
		cfg.PushTokenStore = "redis"
	}
	if cfg.PushSender == "" {
		cfg.PushSender = "fcm"
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "0 9 * * *"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "America/Mexico_City"
	}
	if cfg.RunTimeoutSeconds == 0 {
		cfg.RunTimeoutSeconds = 600
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	switch cfg.RecordStore {
	case "airtable":
		if cfg.AirtableKey == "" {
			return errors.New("config: airtableKey is required (set AIRTABLE_KEY)")
		}
		if cfg.AirtableBaseIDBolsa == "" {
			return errors.New("config: airtableBaseIdBolsa is required (set AIRTABLE_BASE_ID_BOLSA)")
		}
	case "memory":
	default:
		return fmt.Errorf("config: unknown recordStore %q (want airtable or memory)", cfg.RecordStore)
	}
	switch cfg.PushTokenStore {
	case "redis":
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required for pushTokenStore redis (set REDIS_ADDR)")
		}
	case "postgres":
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required for pushTokenStore postgres (set DATABASE_URL)")
		}
	default:
		return fmt.Errorf("config: unknown pushTokenStore %q (want redis or postgres)", cfg.PushTokenStore)
	}
	if cfg.RunLockEnabled() && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required when runLock is enabled")
	}
	switch cfg.PushSender {
	case "fcm":
		if strings.TrimSpace(cfg.FirebaseProjectID) == "" {
			return errors.New("config: firebaseProjectId is required for pushSender fcm (set FIREBASE_PROJECT_ID)")
		}
	case "amqp":
		if strings.TrimSpace(cfg.AMQPURL) == "" {
			return errors.New("config: amqpURL is required for pushSender amqp (set AMQP_URL)")
		}
	case "stream":
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required for pushSender stream (set REDIS_ADDR)")
		}
	case "log":
	default:
		return fmt.Errorf("config: unknown pushSender %q (want fcm, amqp, stream or log)", cfg.PushSender)
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("config: invalid timezone %q: %w", cfg.Timezone, err)
	}
	if cfg.RunTimeoutSeconds < 0 {
		return errors.New("config: runTimeoutSeconds must be positive")
	}
	return nil
}
