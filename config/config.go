package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5002"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	Secure    bool   `json:"secure" envconfig:"TANDEM_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"TANDEM_SERVER_SECRET_KEY"`
	Port      string `json:"port" envconfig:"TANDEM_SERVER_PORT"`
	SSL       bool   `json:"ssl" envconfig:"TANDEM_SERVER_SSL"`
	Domain    string `json:"domain" envconfig:"TANDEM_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"TANDEM_SERVER_SSL_EMAIL"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"TANDEM_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"TANDEM_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"TANDEM_REDIS_SKIP_TLS_VERIFY"`
}

// QueueConfig names the asynq queues. Saga execution is sharded over
// NumberOfQueues queues keyed by saga id so one instance's steps are always
// processed serially by the same queue.
type QueueConfig struct {
	SagaQueue        string `json:"saga_queue" envconfig:"TANDEM_QUEUE_SAGA"`
	WebhookQueue     string `json:"webhook_queue" envconfig:"TANDEM_QUEUE_WEBHOOK"`
	OutboxQueue      string `json:"outbox_queue" envconfig:"TANDEM_QUEUE_OUTBOX"`
	SweepQueue       string `json:"sweep_queue" envconfig:"TANDEM_QUEUE_SWEEP"`
	NumberOfQueues   int    `json:"number_of_queues" envconfig:"TANDEM_QUEUE_NUMBER_OF_QUEUES"`
	MaxRetryAttempts int    `json:"max_retry_attempts" envconfig:"TANDEM_QUEUE_MAX_RETRY_ATTEMPTS"`
	MonitoringPort   string `json:"monitoring_port" envconfig:"TANDEM_QUEUE_MONITORING_PORT"`
}

// ReservationConfig controls hold expiry. SweepCronSpec follows the asynq
// scheduler's cron/interval syntax.
type ReservationConfig struct {
	DefaultTTLMinutes int    `json:"default_ttl_minutes" envconfig:"TANDEM_RESERVATION_DEFAULT_TTL_MINUTES"`
	SweepCronSpec     string `json:"sweep_cron_spec" envconfig:"TANDEM_RESERVATION_SWEEP_CRON_SPEC"`
}

// SagaConfig bounds step-local retries for retryable failures.
type SagaConfig struct {
	MaxStepRetries int `json:"max_step_retries" envconfig:"TANDEM_SAGA_MAX_STEP_RETRIES"`
}

type PaymentGatewayConfig struct {
	Url        string `json:"url" envconfig:"TANDEM_PAYMENT_GATEWAY_URL"`
	ApiKey     string `json:"api_key" envconfig:"TANDEM_PAYMENT_GATEWAY_API_KEY"`
	TimeoutSec int    `json:"timeout_sec" envconfig:"TANDEM_PAYMENT_GATEWAY_TIMEOUT_SEC"`
}

// BackupConfig drives the pg_dump backup command and the optional S3 upload.
type BackupConfig struct {
	Dir                string `json:"dir" envconfig:"TANDEM_BACKUP_DIR"`
	S3Bucket           string `json:"s3_bucket" envconfig:"TANDEM_BACKUP_S3_BUCKET"`
	S3Region           string `json:"s3_region" envconfig:"TANDEM_BACKUP_S3_REGION"`
	AwsAccessKeyID     string `json:"aws_access_key_id" envconfig:"TANDEM_BACKUP_AWS_ACCESS_KEY_ID"`
	AwsSecretAccessKey string `json:"aws_secret_access_key" envconfig:"TANDEM_BACKUP_AWS_SECRET_ACCESS_KEY"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"TANDEM_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"TANDEM_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"TANDEM_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type Configuration struct {
	ProjectName    string               `json:"project_name" envconfig:"TANDEM_PROJECT_NAME"`
	Server         ServerConfig         `json:"server"`
	DataSource     DataSourceConfig     `json:"data_source"`
	Redis          RedisConfig          `json:"redis"`
	Queue          QueueConfig          `json:"queue"`
	Reservation    ReservationConfig    `json:"reservation"`
	Saga           SagaConfig           `json:"saga"`
	PaymentGateway PaymentGatewayConfig `json:"payment_gateway"`
	Notification   Notification         `json:"notification"`
	Backup         BackupConfig         `json:"backup"`
	RateLimit      RateLimitConfig      `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("tandem", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called tandem.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Tandem Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	cnf.Queue.applyDefaults()

	if cnf.Reservation.SweepCronSpec == "" {
		cnf.Reservation.SweepCronSpec = "@every 1m"
	}
	if cnf.Reservation.DefaultTTLMinutes == 0 {
		cnf.Reservation.DefaultTTLMinutes = 30
	}

	if cnf.Saga.MaxStepRetries == 0 {
		cnf.Saga.MaxStepRetries = 3
	}

	if cnf.Backup.Dir == "" {
		cnf.Backup.Dir = "backups"
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

func (q *QueueConfig) applyDefaults() {
	if q.SagaQueue == "" {
		q.SagaQueue = "new:saga"
	}
	if q.WebhookQueue == "" {
		q.WebhookQueue = "new:webhook"
	}
	if q.OutboxQueue == "" {
		q.OutboxQueue = "new:outbox"
	}
	if q.SweepQueue == "" {
		q.SweepQueue = "new:reservation_sweep"
	}
	if q.NumberOfQueues == 0 {
		q.NumberOfQueues = 4
	}
	if q.MaxRetryAttempts == 0 {
		q.MaxRetryAttempts = 5
	}
	if q.MonitoringPort == "" {
		q.MonitoringPort = "5003"
	}
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	mockConfig.Queue.applyDefaults()
	if mockConfig.Saga.MaxStepRetries == 0 {
		mockConfig.Saga.MaxStepRetries = 3
	}
	if mockConfig.Reservation.DefaultTTLMinutes == 0 {
		mockConfig.Reservation.DefaultTTLMinutes = 30
	}
	if mockConfig.Reservation.SweepCronSpec == "" {
		mockConfig.Reservation.SweepCronSpec = "@every 1m"
	}
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
