// Package config loads service configuration from the environment and
// validates it at startup, so a misconfigured deployment fails before it
// serves traffic. All variables share the CERTSYNC_ prefix.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	Login     LoginConfig
	Download  DownloadConfig
	Database  DatabaseConfig
	Scheduler SchedulerConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
}

// ServerConfig captures the HTTP listener settings.
type ServerConfig struct {
	Addr      string
	Version   string
	LogLevel  string
	LogFormat string
}

// AuthConfig holds the password-grant credentials for the identity
// provider.
type AuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

// LoginConfig identifies the border-control station for the service
// token.
type LoginConfig struct {
	URL                  string
	BorderPostID         string
	BoxID                string
	PassengerControlType string
}

// DownloadConfig points at the bundle endpoint.
type DownloadConfig struct {
	URL     string
	Timeout time.Duration
}

// DatabaseConfig holds the PostgreSQL connection string.
type DatabaseConfig struct {
	DSN string
}

// SchedulerConfig drives the periodic sync.
type SchedulerConfig struct {
	Enabled      bool
	Cron         string
	RunOnStartup bool
}

// RedisConfig is optional; without a URL the cross-instance run lock is
// disabled.
type RedisConfig struct {
	URL     string
	LockTTL time.Duration
}

// KafkaConfig is optional; without brokers no sync events are published.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds and validates the configuration. It returns every
// problem it finds in one error so operators fix a deployment in one
// pass.
func FromEnv() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Addr:      getEnv("CERTSYNC_ADDR", ":8080"),
			Version:   getEnv("CERTSYNC_VERSION", "dev"),
			LogLevel:  getEnv("CERTSYNC_LOG_LEVEL", "info"),
			LogFormat: getEnv("CERTSYNC_LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			TokenURL:     os.Getenv("CERTSYNC_AUTH_TOKEN_URL"),
			ClientID:     os.Getenv("CERTSYNC_AUTH_CLIENT_ID"),
			ClientSecret: os.Getenv("CERTSYNC_AUTH_CLIENT_SECRET"),
			Username:     os.Getenv("CERTSYNC_AUTH_USERNAME"),
			Password:     os.Getenv("CERTSYNC_AUTH_PASSWORD"),
		},
		Login: LoginConfig{
			URL:                  os.Getenv("CERTSYNC_LOGIN_URL"),
			BorderPostID:         os.Getenv("CERTSYNC_LOGIN_BORDER_POST_ID"),
			BoxID:                os.Getenv("CERTSYNC_LOGIN_BOX_ID"),
			PassengerControlType: getEnv("CERTSYNC_LOGIN_CONTROL_TYPE", "ENTRY"),
		},
		Download: DownloadConfig{
			URL: os.Getenv("CERTSYNC_DOWNLOAD_URL"),
		},
		Database: DatabaseConfig{
			DSN: os.Getenv("CERTSYNC_DATABASE_URL"),
		},
		Scheduler: SchedulerConfig{
			Enabled:      getEnvBool("CERTSYNC_SCHEDULER_ENABLED", true),
			Cron:         getEnv("CERTSYNC_SCHEDULER_CRON", "0 */6 * * *"),
			RunOnStartup: getEnvBool("CERTSYNC_RUN_ON_STARTUP", false),
		},
		Redis: RedisConfig{
			URL: os.Getenv("CERTSYNC_REDIS_URL"),
		},
		Kafka: KafkaConfig{
			Topic: getEnv("CERTSYNC_KAFKA_TOPIC", "certsync.events"),
		},
	}

	var err error
	if cfg.Download.Timeout, err = getEnvDuration("CERTSYNC_HTTP_TIMEOUT", 60*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.Redis.LockTTL, err = getEnvDuration("CERTSYNC_LOCK_TTL", 10*time.Minute); err != nil {
		return Config{}, err
	}
	if brokers := os.Getenv("CERTSYNC_KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, b)
			}
		}
	}

	// DSN from components when no URL was given.
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = dsnFromComponents()
	}

	if problems := cfg.validate(); len(problems) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return cfg, nil
}

func (c Config) validate() []string {
	var problems []string

	requireURL := func(name, value string) {
		if value == "" {
			problems = append(problems, name+" is required")
			return
		}
		if _, err := url.ParseRequestURI(value); err != nil {
			problems = append(problems, name+" is not a valid URL")
		}
	}

	requireURL("CERTSYNC_AUTH_TOKEN_URL", c.Auth.TokenURL)
	requireURL("CERTSYNC_LOGIN_URL", c.Login.URL)
	requireURL("CERTSYNC_DOWNLOAD_URL", c.Download.URL)

	for name, value := range map[string]string{
		"CERTSYNC_AUTH_CLIENT_ID":       c.Auth.ClientID,
		"CERTSYNC_AUTH_USERNAME":        c.Auth.Username,
		"CERTSYNC_AUTH_PASSWORD":        c.Auth.Password,
		"CERTSYNC_LOGIN_BORDER_POST_ID": c.Login.BorderPostID,
		"CERTSYNC_LOGIN_BOX_ID":         c.Login.BoxID,
	} {
		if value == "" {
			problems = append(problems, name+" is required")
		}
	}

	if c.Database.DSN == "" {
		problems = append(problems, "CERTSYNC_DATABASE_URL or CERTSYNC_DB_HOST/CERTSYNC_DB_NAME is required")
	}

	if c.Scheduler.Enabled {
		if fields := strings.Fields(c.Scheduler.Cron); len(fields) != 5 {
			problems = append(problems,
				fmt.Sprintf("CERTSYNC_SCHEDULER_CRON must have 5 fields, got %d", len(fields)))
		}
	}

	return problems
}

// dsnFromComponents assembles a lib/pq connection string from individual
// variables, the deployment style used by container orchestrators that
// inject credentials separately.
func dsnFromComponents() string {
	host := os.Getenv("CERTSYNC_DB_HOST")
	name := os.Getenv("CERTSYNC_DB_NAME")
	if host == "" || name == "" {
		return ""
	}
	parts := []string{
		"host=" + host,
		"dbname=" + name,
		"port=" + getEnv("CERTSYNC_DB_PORT", "5432"),
		"sslmode=" + getEnv("CERTSYNC_DB_SSLMODE", "disable"),
	}
	if user := os.Getenv("CERTSYNC_DB_USER"); user != "" {
		parts = append(parts, "user="+user)
	}
	if pass := os.Getenv("CERTSYNC_DB_PASSWORD"); pass != "" {
		parts = append(parts, "password="+pass)
	}
	return strings.Join(parts, " ")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}
