package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/debtsync/internal/database"
)

type Config struct {
	App struct {
		Name      string `envconfig:"APP_NAME" default:"debtsync"`
		Port      int    `envconfig:"PORT" default:"8080"`
		LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
		LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	}

	DB struct {
		Host        string        `envconfig:"DB_HOST" default:"localhost"`
		Port        int           `envconfig:"DB_PORT" default:"5432"`
		User        string        `envconfig:"DB_USER" default:"postgres"`
		Password    string        `envconfig:"DB_PASSWORD" default:""`
		Name        string        `envconfig:"DB_NAME" default:"debtsync"`
		MaxOpen     int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
		MaxIdle     int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
		MaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
	}

	Server struct {
		Timeout     time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
		CORSOrigins []string      `envconfig:"CORS_ORIGINS" default:"*"`
	}

	// Redis backs the distributed run lock. Empty Addr keeps the lock in process.
	Redis struct {
		Addr     string `envconfig:"REDIS_ADDR"`
		Password string `envconfig:"REDIS_PASSWORD"`
		DB       int    `envconfig:"REDIS_DB" default:"0"`
	}

	Cache struct {
		TTL           time.Duration `envconfig:"CACHE_TTL" default:"5m"`
		MaxEntries    int           `envconfig:"CACHE_MAX_ENTRIES" default:"10000"`
		SweepInterval time.Duration `envconfig:"CACHE_SWEEP_INTERVAL" default:"1m"`
		CascadeGlobal bool          `envconfig:"CACHE_CASCADE_GLOBAL" default:"true"`
	}

	Reconcile struct {
		DriftThreshold      string        `envconfig:"DRIFT_THRESHOLD" default:"0.005"`
		ConfidenceThreshold int           `envconfig:"CONFIDENCE_THRESHOLD" default:"85"`
		MaxAdjustment       string        `envconfig:"MAX_ADJUSTMENT" default:"50000"`
		LockTTL             time.Duration `envconfig:"RECONCILE_LOCK_TTL" default:"10m"`
	}

	Jobs struct {
		Retention time.Duration `envconfig:"JOB_RETENTION" default:"1h"`
	}

	Batch struct {
		Size        int           `envconfig:"BATCH_SIZE" default:"10"`
		Concurrency int           `envconfig:"BATCH_CONCURRENCY" default:"2"`
		Delay       time.Duration `envconfig:"BATCH_DELAY" default:"500ms"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}

func (c *Config) Pool() database.Pool {
	return database.Pool{MaxOpen: c.DB.MaxOpen, MaxIdle: c.DB.MaxIdle, MaxLifetime: c.DB.MaxLifetime}
}

func (c *Config) DriftThreshold() decimal.Decimal {
	return decimal.RequireFromString(c.Reconcile.DriftThreshold)
}

func (c *Config) MaxAdjustment() decimal.Decimal {
	return decimal.RequireFromString(c.Reconcile.MaxAdjustment)
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if _, err := decimal.NewFromString(cfg.Reconcile.DriftThreshold); err != nil {
		return nil, fmt.Errorf("invalid DRIFT_THRESHOLD: %w", err)
	}

	if _, err := decimal.NewFromString(cfg.Reconcile.MaxAdjustment); err != nil {
		return nil, fmt.Errorf("invalid MAX_ADJUSTMENT: %w", err)
	}

	return &cfg, nil
}
