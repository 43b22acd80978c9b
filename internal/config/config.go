package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type Config struct {
	ServerPort    string `env:"SERVER_PORT" envDefault:"8080"`
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"postgres"`

	DBHost         string `env:"DB_HOST" envDefault:"localhost"`
	DBPort         int    `env:"DB_PORT" envDefault:"5432"`
	DBUser         string `env:"DB_USER" envDefault:"parking"`
	DBPassword     string `env:"DB_PASSWORD"`
	DBName         string `env:"DB_NAME" envDefault:"smart_parking"`
	DBSslMode      string `env:"DB_SSLMODE" envDefault:"disable"`
	DBMaxOpenConns int    `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`

	JWTSecret     string        `env:"JWT_SECRET"`
	JWTExpiration time.Duration `env:"JWT_EXPIRATION" envDefault:"1h"`

	AWSRegion             string `env:"AWS_REGION" envDefault:"ap-southeast-1"`
	SQSDetectionQueueURL  string `env:"SQS_DETECTION_QUEUE_URL"`
	IoTDataEndpoint       string `env:"IOT_DATA_ENDPOINT"`
	IoTSignageTopicPrefix string `env:"IOT_SIGNAGE_TOPIC_PREFIX" envDefault:"parking/lots"`
	LPREnabled            bool   `env:"LPR_ENABLED" envDefault:"false"`

	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"5m"`
	WSSendBuffer      int           `env:"WS_SEND_BUFFER" envDefault:"64"`
	WSPingInterval    time.Duration `env:"WS_PING_INTERVAL" envDefault:"30s"`
	AnomalyConfidence float64       `env:"ANOMALY_CONFIDENCE" envDefault:"0.5"`
	DefaultHourlyRate float64       `env:"DEFAULT_HOURLY_RATE" envDefault:"3.0"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	Simulation Simulation
}

// Simulation configures the synthetic detection agent run by the simulate command.
type Simulation struct {
	APIURL          string        `env:"SIM_API_URL" envDefault:"http://localhost:8080/api/v1"`
	Email           string        `env:"SIM_EMAIL" envDefault:"admin@parking.com"`
	Password        string        `env:"SIM_PASSWORD"`
	Interval        time.Duration `env:"SIM_INTERVAL" envDefault:"3s"`
	BurstInterval   time.Duration `env:"SIM_BURST_INTERVAL" envDefault:"20s"`
	RefreshInterval time.Duration `env:"SIM_REFRESH_INTERVAL" envDefault:"5m"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not load .env file", slog.String("error", err.Error()))
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageDriver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.AnomalyConfidence < 0 || c.AnomalyConfidence > 1 {
		return fmt.Errorf("ANOMALY_CONFIDENCE must be within [0,1], got %v", c.AnomalyConfidence)
	}
	if c.WSSendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive, got %d", c.WSSendBuffer)
	}
	return nil
}

// RequireServing checks settings that only the HTTP server needs.
func (c *Config) RequireServing() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	return nil
}

// PostgresDSN builds the keyword/value connection string used by the pgx stdlib driver.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSslMode)
}
