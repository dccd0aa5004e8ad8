package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Event     EventConfig
	Billing   BillingConfig
	Kafka     KafkaConfig
	Scheduler SchedulerConfig
	Storage   StorageConfig
	Telemetry TelemetryConfig
	Ops       OpsConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings.
// An empty Host disables Redis; in-process stores are used instead.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// EventConfig holds event relay and consumer configuration
type EventConfig struct {
	ProcessorEnabled bool
	BatchSize        int
	PollInterval     time.Duration
	MaxRetries       int
	CleanupEnabled   bool
	CleanupRetention time.Duration
	QueueSize        int           // buffered events awaiting the consumer
	IdempotencyTTL   time.Duration // how long processed event IDs are remembered
}

// BillingConfig holds billing policy settings
type BillingConfig struct {
	MinDaysBetweenBills int
	DueDaysFromBillDate int
	SolarExportRate     decimal.Decimal
	AutoGenerateBill    bool
	BulkRatePerSecond   float64       // 0 disables throttling
	MeterLockTTL        time.Duration // lease held while auto-billing a meter
}

// KafkaConfig holds the reading event bridge settings
type KafkaConfig struct {
	Enabled       bool
	Brokers       []string
	ReadingsTopic string
	GroupID       string
	ClientID      string
	RequiredAcks  string  // none, leader or all
	MaxPerSecond  float64 // consumer throttle, 0 disables
}

// SchedulerConfig holds the monthly bulk billing run settings
type SchedulerConfig struct {
	Enabled    bool
	RunDay     int // day of month
	RunHour    int // hour of day, server local time
	JobTimeout time.Duration
}

// StorageConfig holds the S3-compatible bucket that keeps bulk run reports
type StorageConfig struct {
	Enabled      bool
	Endpoint     string // empty uses the AWS endpoint for Region
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UsePathStyle bool // required by MinIO and most self-hosted stores
	Prefix       string
}

// TelemetryConfig holds OpenTelemetry metrics configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string // OTLP gRPC endpoint, e.g. "localhost:4317"
	ServiceName       string
	Insecure          bool
	ExportInterval    time.Duration
	SamplingRatio     float64
}

// OpsConfig holds the health and metrics endpoint settings
type OpsConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with BILLING_ prefix (e.g., BILLING_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("BILLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	solarRate, err := decimal.NewFromString(v.GetString("billing.solar_export_rate"))
	if err != nil {
		return nil, fmt.Errorf("billing.solar_export_rate: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Event: EventConfig{
			ProcessorEnabled: v.GetBool("event.processor_enabled"),
			BatchSize:        v.GetInt("event.batch_size"),
			PollInterval:     v.GetDuration("event.poll_interval"),
			MaxRetries:       v.GetInt("event.max_retries"),
			CleanupEnabled:   v.GetBool("event.cleanup_enabled"),
			CleanupRetention: v.GetDuration("event.cleanup_retention"),
			QueueSize:        v.GetInt("event.queue_size"),
			IdempotencyTTL:   v.GetDuration("event.idempotency_ttl"),
		},
		Billing: BillingConfig{
			MinDaysBetweenBills: v.GetInt("billing.min_days_between_bills"),
			DueDaysFromBillDate: v.GetInt("billing.due_days_from_bill_date"),
			SolarExportRate:     solarRate,
			AutoGenerateBill:    v.GetBool("billing.auto_generate_bill"),
			BulkRatePerSecond:   v.GetFloat64("billing.bulk_rate_per_second"),
			MeterLockTTL:        v.GetDuration("billing.meter_lock_ttl"),
		},
		Kafka: KafkaConfig{
			Enabled:       v.GetBool("kafka.enabled"),
			Brokers:       v.GetStringSlice("kafka.brokers"),
			ReadingsTopic: v.GetString("kafka.readings_topic"),
			GroupID:       v.GetString("kafka.group_id"),
			ClientID:      v.GetString("kafka.client_id"),
			RequiredAcks:  v.GetString("kafka.required_acks"),
			MaxPerSecond:  v.GetFloat64("kafka.max_per_second"),
		},
		Scheduler: SchedulerConfig{
			Enabled:    v.GetBool("scheduler.enabled"),
			RunDay:     v.GetInt("scheduler.run_day"),
			RunHour:    v.GetInt("scheduler.run_hour"),
			JobTimeout: v.GetDuration("scheduler.job_timeout"),
		},
		Storage: StorageConfig{
			Enabled:      v.GetBool("storage.enabled"),
			Endpoint:     v.GetString("storage.endpoint"),
			Region:       v.GetString("storage.region"),
			Bucket:       v.GetString("storage.bucket"),
			AccessKey:    v.GetString("storage.access_key"),
			SecretKey:    v.GetString("storage.secret_key"),
			UseSSL:       v.GetBool("storage.use_ssl"),
			UsePathStyle: v.GetBool("storage.use_path_style"),
			Prefix:       v.GetString("storage.prefix"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			ExportInterval:    v.GetDuration("telemetry.export_interval"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
		},
		Ops: OpsConfig{
			Port:         v.GetString("ops.port"),
			ReadTimeout:  v.GetDuration("ops.read_timeout"),
			WriteTimeout: v.GetDuration("ops.write_timeout"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers built-in defaults. Booleans that default to true must
// be set here rather than after loading, otherwise an explicit false could not
// be told apart from an absent key.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "utility-billing")
	v.SetDefault("app.env", "development")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "billing")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("database.conn_max_idle_time", 30)

	v.SetDefault("redis.port", 6379)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("event.processor_enabled", true)
	v.SetDefault("event.batch_size", 100)
	v.SetDefault("event.poll_interval", 2*time.Second)
	v.SetDefault("event.max_retries", 5)
	v.SetDefault("event.cleanup_enabled", true)
	v.SetDefault("event.cleanup_retention", 168*time.Hour)
	v.SetDefault("event.queue_size", 1024)
	v.SetDefault("event.idempotency_ttl", 24*time.Hour)

	v.SetDefault("billing.min_days_between_bills", 25)
	v.SetDefault("billing.due_days_from_bill_date", 15)
	v.SetDefault("billing.solar_export_rate", "0")
	v.SetDefault("billing.auto_generate_bill", true)
	v.SetDefault("billing.bulk_rate_per_second", 0)
	v.SetDefault("billing.meter_lock_ttl", 2*time.Minute)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.readings_topic", "meter-readings")
	v.SetDefault("kafka.group_id", "billing-auto-generation")
	v.SetDefault("kafka.client_id", "utility-billing")
	v.SetDefault("kafka.required_acks", "all")

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.run_day", 1)
	v.SetDefault("scheduler.run_hour", 2)
	v.SetDefault("scheduler.job_timeout", time.Hour)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.bucket", "billing-reports")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.prefix", "bulk-runs")

	v.SetDefault("telemetry.collector_endpoint", "localhost:4317")
	v.SetDefault("telemetry.service_name", "utility-billing")
	v.SetDefault("telemetry.export_interval", 30*time.Second)
	v.SetDefault("telemetry.sampling_ratio", 1.0)

	v.SetDefault("ops.port", "9090")
	v.SetDefault("ops.read_timeout", 5*time.Second)
	v.SetDefault("ops.write_timeout", 10*time.Second)
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Billing.MinDaysBetweenBills < 0 {
		return fmt.Errorf("billing.min_days_between_bills cannot be negative")
	}
	if c.Billing.DueDaysFromBillDate <= 0 {
		return fmt.Errorf("billing.due_days_from_bill_date must be positive")
	}
	if c.Billing.SolarExportRate.IsNegative() {
		return fmt.Errorf("billing.solar_export_rate cannot be negative")
	}
	if c.Billing.BulkRatePerSecond < 0 {
		return fmt.Errorf("billing.bulk_rate_per_second cannot be negative")
	}

	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0 and 1")
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required when kafka is enabled")
		}
		if c.Kafka.ReadingsTopic == "" {
			return fmt.Errorf("kafka.readings_topic is required when kafka is enabled")
		}
	}

	if c.Scheduler.RunDay < 1 || c.Scheduler.RunDay > 28 {
		return fmt.Errorf("scheduler.run_day must be between 1 and 28, got %d", c.Scheduler.RunDay)
	}
	if c.Scheduler.RunHour < 0 || c.Scheduler.RunHour > 23 {
		return fmt.Errorf("scheduler.run_hour must be between 0 and 23, got %d", c.Scheduler.RunHour)
	}

	if c.Storage.Enabled {
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required when storage is enabled")
		}
		if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
			return fmt.Errorf("storage.access_key and storage.secret_key are required when storage is enabled")
		}
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Telemetry.Enabled && c.Telemetry.Insecure {
			return fmt.Errorf("telemetry.insecure must be false in production")
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the Redis address, or "" when Redis is not configured
func (r *RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
