package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Jira     JiraConfig
	Batch    BatchConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// JiraConfig holds tracker connection and sync parameters.
type JiraConfig struct {
	BaseURL            string
	Username           string
	APIToken           string
	ProjectKey         string
	IssueTypeDefect    string
	IssueTypeRequest   string
	TicketIDField      string
	FeatureField       string
	CompanyField       string
	DefaultProduct     string
	MaxAttempts        int
	BackoffBaseMillis  int
	BackoffMaxMillis   int
	AttemptTimeoutSecs int
}

// BatchConfig tunes the batch reconciliation executor.
type BatchConfig struct {
	ChunkSize        int
	ChunkDelayMillis int
	ProgressEvery    int
	MaxScriptBytes   int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-sync"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Jira: JiraConfig{
			BaseURL:            getEnv("JIRA_URL", getEnv("JIRA_BASE_URL", "")),
			Username:           getEnv("JIRA_USERNAME", getEnv("JIRA_EMAIL", "")),
			APIToken:           getEnv("JIRA_TOKEN", getEnv("JIRA_API_TOKEN", "")),
			ProjectKey:         getEnv("JIRA_PROJECT_KEY", "OD"),
			IssueTypeDefect:    getEnv("JIRA_ISSUE_TYPE_DEFECT", "Bug"),
			IssueTypeRequest:   getEnv("JIRA_ISSUE_TYPE_REQUEST", "Requêtes"),
			TicketIDField:      getEnv("JIRA_TICKET_ID_FIELD", "customfield_10001"),
			FeatureField:       getEnv("JIRA_FEATURE_FIELD", "customfield_10052"),
			CompanyField:       getEnv("JIRA_COMPANY_FIELD", "customfield_10045"),
			DefaultProduct:     getEnv("SYNC_DEFAULT_PRODUCT", "OnpointDoc"),
			MaxAttempts:        getEnvAsInt("JIRA_MAX_ATTEMPTS", 4),
			BackoffBaseMillis:  getEnvAsInt("JIRA_BACKOFF_BASE_MILLIS", 250),
			BackoffMaxMillis:   getEnvAsInt("JIRA_BACKOFF_MAX_MILLIS", 8000),
			AttemptTimeoutSecs: getEnvAsInt("JIRA_ATTEMPT_TIMEOUT_SECONDS", 15),
		},
		Batch: BatchConfig{
			ChunkSize:        getEnvAsInt("BATCH_CHUNK_SIZE", 100),
			ChunkDelayMillis: getEnvAsInt("BATCH_CHUNK_DELAY_MILLIS", 250),
			ProgressEvery:    getEnvAsInt("BATCH_PROGRESS_EVERY", 250),
			MaxScriptBytes:   getEnvAsInt("BATCH_MAX_SCRIPT_BYTES", 512*1024),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// BackoffBase returns the initial retry delay.
func (j JiraConfig) BackoffBase() time.Duration {
	return time.Duration(j.BackoffBaseMillis) * time.Millisecond
}

// BackoffMax caps the retry delay curve.
func (j JiraConfig) BackoffMax() time.Duration {
	return time.Duration(j.BackoffMaxMillis) * time.Millisecond
}

// AttemptTimeout bounds a single tracker call.
func (j JiraConfig) AttemptTimeout() time.Duration {
	return time.Duration(j.AttemptTimeoutSecs) * time.Second
}

// ChunkDelay returns the pause inserted between batch chunks.
func (b BatchConfig) ChunkDelay() time.Duration {
	return time.Duration(b.ChunkDelayMillis) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
