package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	TimeFormat string `yaml:"time_format"`
	Output     string `yaml:"output"`
}

type StorageConfig struct {
	Backend string `yaml:"backend"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"db"`
	SSLMode  string `yaml:"sslmode"`
}

type FirestoreConfig struct {
	ProjectID           string `yaml:"project_id"`
	DatabaseID          string `yaml:"database_id"`
	CredentialsFile     string `yaml:"credentials_file"`
	DocumentsCollection string `yaml:"documents_collection"`
	CountersCollection  string `yaml:"counters_collection"`
}

type RedisConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Addr        string `yaml:"addr"`
	Password    string `yaml:"password"`
	DB          int    `yaml:"db"`
	MaxRetries  int    `yaml:"max_retries"`
	DialTimeout int    `yaml:"dial_timeout"`
	Timeout     int    `yaml:"timeout"`
	Prefix      string `yaml:"prefix"`
}

type S3Config struct {
	Enabled         bool          `yaml:"enabled"`
	Endpoint        string        `yaml:"endpoint"`
	AccessKeyID     string        `yaml:"access_key"`
	SecretAccessKey string        `yaml:"secret_key"`
	Bucket          string        `yaml:"bucket"`
	UseSSL          bool          `yaml:"use_ssl"`
	Region          string        `yaml:"region"`
	Prefix          string        `yaml:"prefix"`
	URLTTL          time.Duration `yaml:"url_ttl"`
}

type LocalFilesConfig struct {
	Dir          string `yaml:"dir"`
	PublicPrefix string `yaml:"public_prefix"`
	BaseURL      string `yaml:"base_url"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
}

type SettlementConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	JitterPercent int           `yaml:"jitter_percent"`
	TxTimeout     time.Duration `yaml:"tx_timeout"`
	Timezone      string        `yaml:"timezone"`
}

type DocumentsConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	StatusTTL     time.Duration `yaml:"status_ttl"`
}

type AuthConfig struct {
	Enabled      bool     `yaml:"enabled"`
	StaticTokens []string `yaml:"static_tokens"`
}

type IdempotencyConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type AppConfig struct {
	Port        string            `yaml:"port"`
	Log         LogConfig         `yaml:"log"`
	Storage     StorageConfig     `yaml:"storage"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Firestore   FirestoreConfig   `yaml:"firestore"`
	Redis       RedisConfig       `yaml:"redis"`
	S3          S3Config          `yaml:"s3"`
	LocalFiles  LocalFilesConfig  `yaml:"local_files"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Settlement  SettlementConfig  `yaml:"settlement"`
	Documents   DocumentsConfig   `yaml:"documents"`
	Auth        AuthConfig        `yaml:"auth"`
	Idempotency IdempotencyConfig `yaml:"idempotency"`
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func mustAtoi(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		log.Fatal().Err(err).Msgf("invalid int value %q", s)
	}
	return i
}

func mustBool(s string) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		log.Fatal().Err(err).Msgf("invalid bool value %q", s)
	}
	return b
}

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Fatal().Err(err).Msgf("invalid duration value %q", s)
	}
	return d
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

func Default() AppConfig {
	return AppConfig{
		Port: "8010",
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			TimeFormat: time.RFC3339,
			Output:     "stdout",
		},
		Storage: StorageConfig{Backend: BackendPostgres},
		Postgres: PostgresConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "invofox",
			Password: "invofox",
			DBName:   "invofox",
			SSLMode:  "disable",
		},
		Firestore: FirestoreConfig{
			DatabaseID:          "(default)",
			DocumentsCollection: "documents",
			CountersCollection:  "counters",
		},
		Redis: RedisConfig{
			Enabled:     true,
			Addr:        "127.0.0.1:6379",
			MaxRetries:  5,
			DialTimeout: 10,
			Timeout:     5,
			Prefix:      "invofox_",
		},
		S3: S3Config{
			Endpoint:        "localhost:9000",
			AccessKeyID:     "minio",
			SecretAccessKey: "minio123",
			Bucket:          "documents",
			Region:          "us-east-1",
			URLTTL:          7 * 24 * time.Hour,
		},
		LocalFiles: LocalFilesConfig{
			Dir:          "./documents",
			PublicPrefix: "/files",
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
		},
		Settlement: SettlementConfig{
			MaxAttempts:   3,
			BaseDelay:     25 * time.Millisecond,
			MaxDelay:      500 * time.Millisecond,
			JitterPercent: 20,
			TxTimeout:     10 * time.Second,
			Timezone:      "UTC",
		},
		Documents: DocumentsConfig{
			Enabled:       true,
			RetryInterval: time.Minute,
			StatusTTL:     7 * 24 * time.Hour,
		},
		Idempotency: IdempotencyConfig{TTL: 24 * time.Hour},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// INVOFOX_CONFIG (if any) and finally the environment.
func Load() (AppConfig, error) {
	cfg := Default()

	if path := os.Getenv("INVOFOX_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return AppConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return AppConfig{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *AppConfig) {
	cfg.Port = getenv("APP_PORT", cfg.Port)

	cfg.Log.Level = getenv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getenv("LOG_FORMAT", cfg.Log.Format)
	cfg.Log.Output = getenv("LOG_OUTPUT", cfg.Log.Output)

	cfg.Storage.Backend = getenv("STORAGE_BACKEND", cfg.Storage.Backend)

	cfg.Postgres.Host = getenv("PG_HOST", cfg.Postgres.Host)
	cfg.Postgres.Port = mustAtoi(getenv("PG_PORT", strconv.Itoa(cfg.Postgres.Port)))
	cfg.Postgres.User = getenv("PG_USER", cfg.Postgres.User)
	cfg.Postgres.Password = getenv("PG_PASSWORD", cfg.Postgres.Password)
	cfg.Postgres.DBName = getenv("PG_DB", cfg.Postgres.DBName)
	cfg.Postgres.SSLMode = getenv("PG_SSLMODE", cfg.Postgres.SSLMode)

	cfg.Firestore.ProjectID = getenv("FIRESTORE_PROJECT_ID", cfg.Firestore.ProjectID)
	cfg.Firestore.DatabaseID = getenv("FIRESTORE_DATABASE_ID", cfg.Firestore.DatabaseID)
	cfg.Firestore.CredentialsFile = getenv("GOOGLE_APPLICATION_CREDENTIALS", cfg.Firestore.CredentialsFile)

	cfg.Redis.Enabled = mustBool(getenv("REDIS_ENABLED", strconv.FormatBool(cfg.Redis.Enabled)))
	cfg.Redis.Addr = getenv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getenv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = mustAtoi(getenv("REDIS_DB", strconv.Itoa(cfg.Redis.DB)))
	cfg.Redis.MaxRetries = mustAtoi(getenv("REDIS_MAX_RETRIES", strconv.Itoa(cfg.Redis.MaxRetries)))
	cfg.Redis.DialTimeout = mustAtoi(getenv("REDIS_DIAL_TIMEOUT", strconv.Itoa(cfg.Redis.DialTimeout)))
	cfg.Redis.Timeout = mustAtoi(getenv("REDIS_TIMEOUT", strconv.Itoa(cfg.Redis.Timeout)))
	cfg.Redis.Prefix = getenv("REDIS_PREFIX", cfg.Redis.Prefix)

	cfg.S3.Enabled = mustBool(getenv("S3_ENABLED", strconv.FormatBool(cfg.S3.Enabled)))
	cfg.S3.Endpoint = getenv("S3_ENDPOINT", cfg.S3.Endpoint)
	cfg.S3.AccessKeyID = getenv("S3_ACCESS_KEY", cfg.S3.AccessKeyID)
	cfg.S3.SecretAccessKey = getenv("S3_SECRET_KEY", cfg.S3.SecretAccessKey)
	cfg.S3.Bucket = getenv("S3_BUCKET", cfg.S3.Bucket)
	cfg.S3.Region = getenv("S3_REGION", cfg.S3.Region)
	cfg.S3.UseSSL = mustBool(getenv("S3_USE_SSL", strconv.FormatBool(cfg.S3.UseSSL)))
	cfg.S3.Prefix = getenv("S3_PREFIX", cfg.S3.Prefix)

	cfg.LocalFiles.Dir = getenv("FILES_DIR", cfg.LocalFiles.Dir)
	cfg.LocalFiles.BaseURL = getenv("FILES_BASE_URL", cfg.LocalFiles.BaseURL)

	cfg.Kafka.Enabled = mustBool(getenv("KAFKA_ENABLED", strconv.FormatBool(cfg.Kafka.Enabled)))
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}

	cfg.Settlement.MaxAttempts = mustAtoi(getenv("SETTLEMENT_MAX_ATTEMPTS", strconv.Itoa(cfg.Settlement.MaxAttempts)))
	cfg.Settlement.BaseDelay = mustDuration(getenv("SETTLEMENT_BASE_DELAY", cfg.Settlement.BaseDelay.String()))
	cfg.Settlement.MaxDelay = mustDuration(getenv("SETTLEMENT_MAX_DELAY", cfg.Settlement.MaxDelay.String()))
	cfg.Settlement.JitterPercent = mustAtoi(getenv("SETTLEMENT_JITTER_PERCENT", strconv.Itoa(cfg.Settlement.JitterPercent)))
	cfg.Settlement.TxTimeout = mustDuration(getenv("SETTLEMENT_TX_TIMEOUT", cfg.Settlement.TxTimeout.String()))
	cfg.Settlement.Timezone = getenv("SETTLEMENT_TIMEZONE", cfg.Settlement.Timezone)

	cfg.Documents.Enabled = mustBool(getenv("DOCUMENTS_ENABLED", strconv.FormatBool(cfg.Documents.Enabled)))
	cfg.Documents.RetryInterval = mustDuration(getenv("DOCUMENTS_RETRY_INTERVAL", cfg.Documents.RetryInterval.String()))
	cfg.Documents.StatusTTL = mustDuration(getenv("DOCUMENTS_STATUS_TTL", cfg.Documents.StatusTTL.String()))

	cfg.Idempotency.TTL = mustDuration(getenv("IDEMPOTENCY_TTL", cfg.Idempotency.TTL.String()))

	cfg.Auth.Enabled = mustBool(getenv("AUTH_ENABLED", strconv.FormatBool(cfg.Auth.Enabled)))
	if v := os.Getenv("AUTH_STATIC_TOKENS"); v != "" {
		cfg.Auth.StaticTokens = splitList(v)
	}
}

func (c AppConfig) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case BackendPostgres, BackendFirestore, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("storage.backend: unknown backend %q", c.Storage.Backend))
	}
	if c.Storage.Backend == BackendFirestore && c.Firestore.ProjectID == "" {
		errs = append(errs, errors.New("firestore.project_id is required for the firestore backend"))
	}
	if c.Settlement.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("settlement.max_attempts must be >= 1, got %d", c.Settlement.MaxAttempts))
	}
	if c.Settlement.BaseDelay <= 0 {
		errs = append(errs, errors.New("settlement.base_delay must be positive"))
	}
	if c.Settlement.MaxDelay < c.Settlement.BaseDelay {
		errs = append(errs, errors.New("settlement.max_delay must not be below base_delay"))
	}
	if c.Settlement.JitterPercent < 0 || c.Settlement.JitterPercent > 100 {
		errs = append(errs, fmt.Errorf("settlement.jitter_percent must be within 0..100, got %d", c.Settlement.JitterPercent))
	}
	if c.Settlement.TxTimeout <= 0 {
		errs = append(errs, errors.New("settlement.tx_timeout must be positive"))
	}
	if _, err := time.LoadLocation(c.Settlement.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("settlement.timezone: %w", err))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required when kafka is enabled"))
	}
	if c.Documents.Enabled && c.Documents.RetryInterval <= 0 {
		errs = append(errs, errors.New("documents.retry_interval must be positive"))
	}

	return errors.Join(errs...)
}

// Location returns the zone used to derive the document year.
func (c SettlementConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
