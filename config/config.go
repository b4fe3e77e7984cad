package config

import (
	"errors"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/Ramsey-B/productsync/pkg/database"
	pserrors "github.com/Ramsey-B/productsync/pkg/errors"
	"github.com/Ramsey-B/productsync/pkg/graph"
	"github.com/Ramsey-B/productsync/pkg/kafka"
	"github.com/Ramsey-B/productsync/pkg/matching"
	"github.com/Ramsey-B/productsync/pkg/normalization"
	"github.com/Ramsey-B/productsync/pkg/processor"
	"github.com/Ramsey-B/productsync/pkg/redis"
	"github.com/Ramsey-B/productsync/pkg/tracing"
	"github.com/Ramsey-B/productsync/pkg/tracing/exporters"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	AppName                       string `env:"APP_NAME" env-default:"productsync" validate:"required"`
	Environment                   string `env:"ENVIRONMENT" env-default:"local"`
	Version                       string `env:"APP_VERSION" env-default:"dev"`
	Port                          int    `env:"PORT" env-default:"3010" validate:"min=1,max=65535"`
	LogLevel                      string `env:"LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
	PrettyLogs                    bool   `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int    `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"30" validate:"min=1"`
	HttpServerReadTimeoutSeconds  int    `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10" validate:"min=1"`
	HttpServerIdleTimeoutSeconds  int    `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10" validate:"min=1"`
	MaxHeaderBytes                int    `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int    `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerBodyLimit           string `env:"HTTP_SERVER_BODY_LIMIT" env-default:"8M"`
	StartupMaxAttempts            int    `env:"STARTUP_MAX_ATTEMPTS" env-default:"5" validate:"min=1"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"15s"`

	// Catalog store
	StoreDriver string `env:"STORE_DRIVER" env-default:"postgres" validate:"oneof=postgres memory"`

	// PostgreSQL
	DatabaseHost                  string        `env:"DB_HOST" env-default:"localhost"`
	DatabasePort                  int           `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:"postgres"`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"productsync"`
	DatabaseSSLMode               string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"5m"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0" validate:"min=0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`
	DatabaseMigrateOnStart        bool          `env:"DB_MIGRATE_ON_START" env-default:"true"`

	// Graph projection (Neo4j / Memgraph)
	GraphEnabled    bool   `env:"GRAPH_ENABLED" env-default:"false"`
	GraphDBHost     string `env:"GRAPH_DB_HOST" env-default:"localhost"`
	GraphDBPort     int    `env:"GRAPH_DB_PORT" env-default:"7687"`
	GraphDBUser     string `env:"GRAPH_DB_USER" env-default:""`
	GraphDBPassword string `env:"GRAPH_DB_PASSWORD" env-default:""`

	// Redis: distributed key locks, dead-letter stream, embedding cache
	RedisEnabled      bool          `env:"REDIS_ENABLED" env-default:"false"`
	RedisHost         string        `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort         int           `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword     string        `env:"REDIS_PASSWORD" env-default:""`
	RedisDB           int           `env:"REDIS_DB" env-default:"0"`
	RedisLockTTL      time.Duration `env:"REDIS_LOCK_TTL" env-default:"30s"`
	RedisLockWait     time.Duration `env:"REDIS_LOCK_WAIT" env-default:"10s"`
	DLQStream         string        `env:"DLQ_STREAM" env-default:"productsync:dlq"`
	EmbeddingCacheTTL time.Duration `env:"EMBEDDING_CACHE_TTL" env-default:"24h"`

	// Kafka consumer (record ingest)
	KafkaBrokers               []string      `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaConsumerEnabled       bool          `env:"KAFKA_CONSUMER_ENABLED" env-default:"false"`
	KafkaInputTopic            string        `env:"KAFKA_INPUT_TOPIC" env-default:"product-records"`
	KafkaConsumerGroup         string        `env:"KAFKA_CONSUMER_GROUP" env-default:"productsync"`
	KafkaConsumerRatePerSecond float64       `env:"KAFKA_CONSUMER_RATE_PER_SECOND" env-default:"0" validate:"min=0"`
	KafkaConsumerBurst         int           `env:"KAFKA_CONSUMER_BURST" env-default:"1" validate:"min=0"`
	KafkaRetryMaxInterval      time.Duration `env:"KAFKA_RETRY_MAX_INTERVAL" env-default:"30s"`

	// Kafka producer (decision events)
	KafkaProducerEnabled bool   `env:"KAFKA_PRODUCER_ENABLED" env-default:"false"`
	KafkaOutputTopic     string `env:"KAFKA_OUTPUT_TOPIC" env-default:"catalog-decisions"`
	KafkaBatchSize       int    `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout    int    `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks    int    `env:"KAFKA_REQUIRED_ACKS" env-default:"1" validate:"oneof=-1 0 1"`
	KafkaCompression     string `env:"KAFKA_COMPRESSION" env-default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`

	// Matching
	MatchHighThreshold        float64 `env:"MATCH_HIGH_THRESHOLD" env-default:"0.85" validate:"min=0,max=1"`
	MatchLowThreshold         float64 `env:"MATCH_LOW_THRESHOLD" env-default:"0.5" validate:"min=0,max=1"`
	MatchSeparationMargin     float64 `env:"MATCH_SEPARATION_MARGIN" env-default:"0.05" validate:"min=0,max=1"`
	MatchEmbeddingWeight      float64 `env:"MATCH_EMBEDDING_WEIGHT" env-default:"0.7" validate:"min=0,max=1"`
	MatchAttributeWeight      float64 `env:"MATCH_ATTRIBUTE_WEIGHT" env-default:"0.3" validate:"min=0,max=1"`
	MatchNumericTolerance     float64 `env:"MATCH_NUMERIC_TOLERANCE" env-default:"0.01" validate:"min=0,max=1"`
	MatchFuzzyThreshold       float64 `env:"MATCH_FUZZY_THRESHOLD" env-default:"0.9" validate:"min=0,max=1"`
	MatchExactSearchThreshold int     `env:"MATCH_EXACT_SEARCH_THRESHOLD" env-default:"1000" validate:"min=0"`
	MatchIndexFetchLimit      int     `env:"MATCH_INDEX_FETCH_LIMIT" env-default:"200" validate:"min=1"`
	MatchMinSimilarity        float64 `env:"MATCH_MIN_SIMILARITY" env-default:"0.1" validate:"min=0,max=1"`
	MatchMaxCandidates        int     `env:"MATCH_MAX_CANDIDATES" env-default:"10" validate:"min=1"`

	EmbeddingDimensions   int `env:"EMBEDDING_DIMENSIONS" env-default:"256" validate:"min=8"`
	LockTitlePrefixLength int `env:"LOCK_TITLE_PREFIX_LENGTH" env-default:"8" validate:"min=1"`

	// Processing
	ProcessorMaxCommitAttempts        int           `env:"PROCESSOR_MAX_COMMIT_ATTEMPTS" env-default:"3" validate:"min=1"`
	ProcessorTransientMaxRetries      int           `env:"PROCESSOR_TRANSIENT_MAX_RETRIES" env-default:"3" validate:"min=0"`
	ProcessorTransientInitialInterval time.Duration `env:"PROCESSOR_TRANSIENT_INITIAL_INTERVAL" env-default:"50ms"`
	ProcessorTransientMaxInterval     time.Duration `env:"PROCESSOR_TRANSIENT_MAX_INTERVAL" env-default:"1s"`
	ProcessorWorkerCount              int           `env:"PROCESSOR_WORKER_COUNT" env-default:"4" validate:"min=1"`

	// Tracing
	TracingExporter    string  `env:"TRACING_EXPORTER" env-default:"none" validate:"oneof=none console otlp"`
	TracingSampleRatio float64 `env:"TRACING_SAMPLE_RATIO" env-default:"1" validate:"min=0,max=1"`
	OTLPEndpoint       string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:"localhost:4317"`
	OTLPProtocol       string  `env:"OTEL_EXPORTER_OTLP_PROTOCOL" env-default:"grpc" validate:"oneof=grpc http"`
	OTLPInsecure       bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" env-default:"true"`
}

// Load reads .env files when present, binds the environment and validates.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, pserrors.NewConfigurationErrorf("env_file", "failed to load %s: %v", file, err)
		}
	}

	var cfg Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		return nil, pserrors.NewConfigurationError("", err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("env"); name != "" {
			return name
		}
		return fld.Name
	})
	return v
}

// Validate checks ranges and the cross-field matching rules. Every failure
// is a ConfigurationError naming the offending variable.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return pserrors.NewConfigurationErrorf(fe.Field(), "failed '%s' validation, got %v", tagWithParam(fe), fe.Value())
		}
		return pserrors.NewConfigurationError("", err.Error())
	}

	if err := c.Matching().Validate(); err != nil {
		return err
	}
	if c.StoreDriver == StoreDriverPostgres && strings.TrimSpace(c.DatabaseHost) == "" {
		return pserrors.NewConfigurationError("DB_HOST", "required when STORE_DRIVER=postgres")
	}
	if c.KafkaConsumerEnabled || c.KafkaProducerEnabled {
		if len(c.KafkaBrokers) == 0 || strings.TrimSpace(c.KafkaBrokers[0]) == "" {
			return pserrors.NewConfigurationError("KAFKA_BROKERS", "required when Kafka is enabled")
		}
	}
	if c.KafkaConsumerEnabled && !c.RedisEnabled {
		return pserrors.NewConfigurationError("REDIS_ENABLED", "the ingest consumer needs Redis for its dead-letter stream")
	}
	return nil
}

func tagWithParam(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

func (c *Config) Matching() matching.Config {
	return matching.Config{
		HighThreshold:        c.MatchHighThreshold,
		LowThreshold:         c.MatchLowThreshold,
		SeparationMargin:     c.MatchSeparationMargin,
		EmbeddingWeight:      c.MatchEmbeddingWeight,
		AttributeWeight:      c.MatchAttributeWeight,
		NumericTolerance:     c.MatchNumericTolerance,
		FuzzyThreshold:       c.MatchFuzzyThreshold,
		ExactSearchThreshold: c.MatchExactSearchThreshold,
		IndexFetchLimit:      c.MatchIndexFetchLimit,
		MinSimilarity:        c.MatchMinSimilarity,
		MaxCandidates:        c.MatchMaxCandidates,
	}
}

func (c *Config) Processor() processor.Config {
	return processor.Config{
		MaxCommitAttempts:        c.ProcessorMaxCommitAttempts,
		TransientMaxRetries:      c.ProcessorTransientMaxRetries,
		TransientInitialInterval: c.ProcessorTransientInitialInterval,
		TransientMaxInterval:     c.ProcessorTransientMaxInterval,
		WorkerCount:              c.ProcessorWorkerCount,
	}
}

func (c *Config) Normalization() normalization.Config {
	return normalization.Config{TitlePrefixLength: c.LockTitlePrefixLength}
}

func (c *Config) Database() database.Config {
	return database.Config{
		Host:            c.DatabaseHost,
		Port:            c.DatabasePort,
		User:            c.DatabaseUserName,
		Password:        c.DatabasePassword,
		Name:            c.DatabaseName,
		SSLMode:         c.DatabaseSSLMode,
		MaxOpenConns:    c.DatabaseMaxOpenConns,
		MaxIdleConns:    c.DatabaseMaxIdleConns,
		ConnMaxLifetime: c.DatabaseConnMaxLifetime,
	}
}

func (c *Config) Migration() *database.MigrationConfig {
	return &database.MigrationConfig{
		MigrationFolderPath: c.DatabaseMigrationFolderPath,
		Version:             uint(c.DatabaseMigrationVersion),
		Force:               c.DatabaseMigrationForce,
		AutoRollback:        c.DatabaseMigrationAutoRollback,
	}
}

func (c *Config) Redis() redis.Config {
	return redis.Config{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

func (c *Config) Graph() graph.Config {
	return graph.Config{
		Host:     c.GraphDBHost,
		Port:     c.GraphDBPort,
		Username: c.GraphDBUser,
		Password: c.GraphDBPassword,
	}
}

func (c *Config) Consumer() kafka.ConsumerConfig {
	return kafka.ConsumerConfig{
		Brokers:          c.KafkaBrokers,
		Topic:            c.KafkaInputTopic,
		ConsumerGroup:    c.KafkaConsumerGroup,
		RatePerSecond:    c.KafkaConsumerRatePerSecond,
		Burst:            c.KafkaConsumerBurst,
		RetryMaxInterval: c.KafkaRetryMaxInterval,
	}
}

func (c *Config) Producer() kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:      c.KafkaBrokers,
		Topic:        c.KafkaOutputTopic,
		BatchSize:    c.KafkaBatchSize,
		BatchTimeout: time.Duration(c.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: c.KafkaRequiredAcks,
		Compression:  c.KafkaCompression,
	}
}

func (c *Config) Tracing() tracing.ProviderConfig {
	return tracing.ProviderConfig{
		ServiceName: c.AppName,
		Environment: c.Environment,
		Version:     c.Version,
		SampleRatio: c.TracingSampleRatio,
		Exporter: exporters.Config{
			Kind:     c.TracingExporter,
			Endpoint: c.OTLPEndpoint,
			Protocol: c.OTLPProtocol,
			Insecure: c.OTLPInsecure,
			Timeout:  10 * time.Second,
		},
	}
}
