package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database *dbConfig
	Service  *svcConfig
	Queue    *queueConfig
	Storage  *storageConfig
	Email    *emailConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"reports"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address         string `envconfig:"REPORT_ENGINE_ADDRESS" default:":3000"`
	MetricsAddress  string `envconfig:"REPORT_ENGINE_METRICS_ADDRESS" default:":8080"`
	BaseUrl         string `envconfig:"REPORT_ENGINE_BASE_URL" default:"http://localhost:3000"`
	LogLevel        string `envconfig:"REPORT_ENGINE_LOG_LEVEL" default:"info"`
	MigrationFolder string `envconfig:"REPORT_ENGINE_MIGRATIONS_FOLDER" default:""`
}

// queueConfig mirrors the reference deployment: 3 attempts with a 2s
// exponential backoff base, a 60s processing lock and a single worker.
type queueConfig struct {
	MaxAttempts        int           `envconfig:"REPORT_ENGINE_QUEUE_MAX_ATTEMPTS" default:"3"`
	BackoffBase        time.Duration `envconfig:"REPORT_ENGINE_QUEUE_BACKOFF_BASE" default:"2s"`
	JobTimeout         time.Duration `envconfig:"REPORT_ENGINE_QUEUE_JOB_TIMEOUT" default:"60s"`
	RescueAfter        time.Duration `envconfig:"REPORT_ENGINE_QUEUE_RESCUE_AFTER" default:"2m"`
	Workers            int           `envconfig:"REPORT_ENGINE_QUEUE_WORKERS" default:"1"`
	CompletedRetention time.Duration `envconfig:"REPORT_ENGINE_QUEUE_COMPLETED_RETENTION" default:"24h"`
	DiscardedRetention time.Duration `envconfig:"REPORT_ENGINE_QUEUE_DISCARDED_RETENTION" default:"168h"`
	OrphanAge          time.Duration `envconfig:"REPORT_ENGINE_QUEUE_ORPHAN_AGE" default:"5m"`
}

type storageConfig struct {
	Endpoint  string `envconfig:"REPORT_ENGINE_S3_ENDPOINT" default:"localhost:9000"`
	Bucket    string `envconfig:"REPORT_ENGINE_S3_BUCKET" default:"reports"`
	AccessKey string `envconfig:"REPORT_ENGINE_S3_ACCESS_KEY" default:""`
	SecretKey string `envconfig:"REPORT_ENGINE_S3_SECRET_KEY" default:""`
	UseSSL    bool   `envconfig:"REPORT_ENGINE_S3_USE_SSL" default:"false"`
}

type emailConfig struct {
	Host     string `envconfig:"REPORT_ENGINE_SMTP_HOST" default:""`
	Port     int    `envconfig:"REPORT_ENGINE_SMTP_PORT" default:"587"`
	User     string `envconfig:"REPORT_ENGINE_SMTP_USER" default:""`
	Password string `envconfig:"REPORT_ENGINE_SMTP_PASS" default:""`
	From     string `envconfig:"REPORT_ENGINE_SMTP_FROM" default:"noreply@example.com"`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}

// NewDefault returns a config populated with defaults only. Used by tests.
func NewDefault() *Config {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		panic(err)
	}
	return cfg
}
