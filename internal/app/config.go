package app

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/seatbook/seatbook-backend/internal/platform/envutil"
)

const (
	StrategyCAS        = "cas"
	StrategyMutex      = "mutex"
	StrategyOptimistic = "optimistic"
)

type BookingConfig struct {
	Strategy     string        `yaml:"strategy"`
	MaxAttempts  int           `yaml:"max_attempts"`
	MinBackoff   time.Duration `yaml:"min_backoff"`
	MaxBackoff   time.Duration `yaml:"max_backoff"`
	JitterFrac   float64       `yaml:"jitter_frac"`
	CASSpinLimit int           `yaml:"cas_spin_limit"`
}

type HTTPConfig struct {
	Addr         string   `yaml:"addr"`
	AllowOrigins []string `yaml:"allow_origins"`
}

type Config struct {
	ServiceName string        `yaml:"service_name"`
	Environment string        `yaml:"environment"`
	LogMode     string        `yaml:"log_mode"`
	HTTP        HTTPConfig    `yaml:"http"`
	Booking     BookingConfig `yaml:"booking"`
}

// Load reads config from environment variables, then overlays values from
// the YAML file named by CONFIG_FILE when one is set.
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: envutil.String("SERVICE_NAME", "seatbook-backend"),
		Environment: envutil.String("ENVIRONMENT", "development"),
		LogMode:     envutil.String("LOG_MODE", "development"),
		HTTP: HTTPConfig{
			Addr: ":" + envutil.String("PORT", "8080"),
		},
		Booking: BookingConfig{
			Strategy:     envutil.String("BOOKING_STRATEGY", StrategyOptimistic),
			MaxAttempts:  envutil.Int("BOOKING_MAX_ATTEMPTS", 3),
			MinBackoff:   envutil.Duration("BOOKING_MIN_BACKOFF", 25*time.Millisecond),
			MaxBackoff:   envutil.Duration("BOOKING_MAX_BACKOFF", 400*time.Millisecond),
			JitterFrac:   envutil.Float("BOOKING_JITTER_FRAC", 0.20),
			CASSpinLimit: envutil.Int("BOOKING_CAS_SPIN_LIMIT", 0),
		},
	}

	if path := envutil.String("CONFIG_FILE", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Booking.Strategy {
	case StrategyCAS, StrategyMutex, StrategyOptimistic:
	default:
		return fmt.Errorf("unknown booking strategy %q", c.Booking.Strategy)
	}
	if c.Booking.MaxAttempts < 1 {
		return fmt.Errorf("booking max_attempts must be at least 1, got %d", c.Booking.MaxAttempts)
	}
	return nil
}
