package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"calculator-service/pkg/logging"
)

// AppName is the envconfig prefix: CALCULATOR_PORT, CALCULATOR_CACHE_DIR, ...
const AppName = "CALCULATOR"

// CacheConfig selects and tunes the cache store backend.
type CacheConfig struct {
	// Backend is one of "disk", "memory", "redis".
	Backend string `envconfig:"BACKEND" default:"disk"`
	// Dir is the directory the disk store exclusively owns. It matches the
	// mounted cache volume of the container.
	Dir        string        `envconfig:"DIR" default:"./cache"`
	TTL        time.Duration `envconfig:"TTL" default:"24h"`
	MaxEntries int           `envconfig:"MAX_ENTRIES" default:"0"`
	Prefix     string        `envconfig:"PREFIX" default:"calculator"`
}

// RedisConfig is only consulted when the redis backend is selected.
type RedisConfig struct {
	Addr     string `envconfig:"ADDR" default:"127.0.0.1:6379"`
	Password string `envconfig:"PASSWORD" default:""`
	DB       int    `envconfig:"DB" default:"0"`
}

// SpotConfig configures the upstream spot price source.
type SpotConfig struct {
	EnergyBaseURL   string        `envconfig:"ENERGY_BASE_URL" default:"https://www.ote-cr.cz"`
	CurrencyBaseURL string        `envconfig:"CURRENCY_BASE_URL" default:"https://www.cnb.cz"`
	UpstreamTimeout time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"30s"`
	MaxRetries      int           `envconfig:"MAX_RETRIES" default:"2"`
}

// Config is the full service configuration, filled from the environment.
type Config struct {
	Port  string      `envconfig:"PORT" default:"8000"`
	Cache CacheConfig `envconfig:"CACHE"`
	Redis RedisConfig `envconfig:"REDIS"`
	Spot  SpotConfig  `envconfig:"SPOT"`
}

// Load pulls in an optional .env file and then fills Config from the
// environment with the CALCULATOR prefix.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		logging.DefaultLogger().Debug(".env not found, using environment", zap.Error(err))
	}

	var cfg Config
	if err := envconfig.Process(AppName, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
