package config

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/kelseyhightower/envconfig"

	"github.com/youthclub/notification-queue/internal/client"
)

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
	Worker    WorkerConfig
	WAPI      WAPIConfig
}

type ServerConfig struct {
	Address string
}

type LogConfig struct {
	Level  string
	Format string
}

type DatabaseConfig struct {
	PostgresURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type SchedulerConfig struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
}

type WorkerConfig struct {
	Sleep    time.Duration
	MaxItems int
}

// WAPIConfig is not validated at load time: missing provider settings
// surface as failed sends.
type WAPIConfig struct {
	URL           string
	BaseURL       string
	Instance      string
	Token         string
	Timeout       time.Duration
	RatePerSecond float64
	RateBurst     int
}

func (c WAPIConfig) Client() client.Config {
	return client.Config{
		URL:           c.URL,
		BaseURL:       c.BaseURL,
		Instance:      c.Instance,
		Token:         c.Token,
		Timeout:       c.Timeout,
		RatePerSecond: c.RatePerSecond,
		RateBurst:     c.RateBurst,
	}
}

// env mirrors the process environment one key per field.
type env struct {
	PostgresURL       string        `envconfig:"POSTGRES_URL" required:"true"`
	DBMaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
	DBMaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	DBConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"30m"`

	ServerAddress string `envconfig:"SERVER_ADDRESS" default:":8080"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat     string `envconfig:"LOG_FORMAT" default:"json"`

	WAPIURL            string  `envconfig:"WAPI_URL"`
	WAPIBaseURL        string  `envconfig:"WAPI_BASE_URL" default:"https://api.w-api.app/v1/message/send-text"`
	WAPIInstance       string  `envconfig:"WAPI_INSTANCE"`
	WAPIToken          string  `envconfig:"WAPI_TOKEN"`
	WAPITimeoutSeconds int     `envconfig:"WAPI_TIMEOUT_SECONDS" default:"30"`
	WAPIRatePerSecond  float64 `envconfig:"WAPI_RATE_PER_SECOND" default:"0"`
	WAPIRateBurst      int     `envconfig:"WAPI_RATE_BURST" default:"1"`

	WorkerSleepSeconds float64 `envconfig:"WORKER_SLEEP_SECONDS" default:"2.0"`
	WorkerMaxItems     int     `envconfig:"WORKER_MAX_ITEMS" default:"0"`

	SchedEnabled         bool `envconfig:"SCHED_ENABLED" default:"false"`
	SchedIntervalSeconds int  `envconfig:"SCHED_INTERVAL_SECONDS" default:"60"`
	SchedBatchSize       int  `envconfig:"SCHED_BATCH_SIZE" default:"20"`

	RedisAddr       string `envconfig:"REDIS_ADDR"`
	RedisPassword   string `envconfig:"REDIS_PASSWORD"`
	RedisDB         int    `envconfig:"REDIS_DB" default:"0"`
	RedisTTLSeconds int    `envconfig:"REDIS_TTL_SECONDS" default:"604800"`
}

func LoadAll() (*Config, error) {
	var e env
	if err := envconfig.Process("", &e); err != nil {
		return nil, errors.Wrap(err, "load env config")
	}

	cfg := &Config{
		Server: ServerConfig{Address: e.ServerAddress},
		Log:    LogConfig{Level: e.LogLevel, Format: e.LogFormat},
		Database: DatabaseConfig{
			PostgresURL:     e.PostgresURL,
			MaxOpenConns:    e.DBMaxOpenConns,
			MaxIdleConns:    e.DBMaxIdleConns,
			ConnMaxLifetime: e.DBConnMaxLifetime,
		},
		Scheduler: SchedulerConfig{
			Enabled:   e.SchedEnabled,
			Interval:  time.Duration(e.SchedIntervalSeconds) * time.Second,
			BatchSize: e.SchedBatchSize,
		},
		Worker: WorkerConfig{
			Sleep:    seconds(e.WorkerSleepSeconds),
			MaxItems: e.WorkerMaxItems,
		},
		WAPI: WAPIConfig{
			URL:           e.WAPIURL,
			BaseURL:       e.WAPIBaseURL,
			Instance:      e.WAPIInstance,
			Token:         e.WAPIToken,
			Timeout:       time.Duration(e.WAPITimeoutSeconds) * time.Second,
			RatePerSecond: e.WAPIRatePerSecond,
			RateBurst:     e.WAPIRateBurst,
		},
	}
	if e.RedisAddr != "" {
		cfg.Redis = RedisConfig{
			Enabled:  true,
			Address:  e.RedisAddr,
			Password: e.RedisPassword,
			DB:       e.RedisDB,
			TTL:      time.Duration(e.RedisTTLSeconds) * time.Second,
		}
	}

	if err := validate(&e); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(e *env) error {
	var errs []error
	if e.SchedIntervalSeconds <= 0 {
		errs = append(errs, errors.Newf("SCHED_INTERVAL_SECONDS must be > 0, got %d", e.SchedIntervalSeconds))
	}
	if e.SchedBatchSize <= 0 {
		errs = append(errs, errors.Newf("SCHED_BATCH_SIZE must be > 0, got %d", e.SchedBatchSize))
	}
	if e.WorkerSleepSeconds < 0 {
		errs = append(errs, errors.Newf("WORKER_SLEEP_SECONDS must be >= 0, got %v", e.WorkerSleepSeconds))
	}
	if e.WorkerMaxItems < 0 {
		errs = append(errs, errors.Newf("WORKER_MAX_ITEMS must be >= 0, got %d", e.WorkerMaxItems))
	}
	if e.WAPITimeoutSeconds <= 0 {
		errs = append(errs, errors.Newf("WAPI_TIMEOUT_SECONDS must be > 0, got %d", e.WAPITimeoutSeconds))
	}
	if e.WAPIRatePerSecond < 0 {
		errs = append(errs, errors.Newf("WAPI_RATE_PER_SECOND must be >= 0, got %v", e.WAPIRatePerSecond))
	}
	if e.RedisAddr != "" && e.RedisTTLSeconds <= 0 {
		errs = append(errs, errors.Newf("REDIS_TTL_SECONDS must be > 0, got %d", e.RedisTTLSeconds))
	}
	switch e.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, errors.Newf("LOG_FORMAT must be json or text, got %q", e.LogFormat))
	}
	return joinErrors(errs)
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
