package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Auth        AuthConfig        `yaml:"auth"`
	Reservation ReservationConfig `yaml:"reservation"`
	Sensor      SensorConfig      `yaml:"sensor"`
	Push        PushConfig        `yaml:"push"`
	WorkerPool  WorkerPoolConfig  `yaml:"worker_pool"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
// Driver is "postgres" or "sqlite"; sqlite is used by the test suite.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// AuthConfig holds JWT signing settings and seeded resident accounts.
type AuthConfig struct {
	JWTSecret       string           `yaml:"jwt_secret"`
	TokenTTLMinutes int              `yaml:"token_ttl_minutes"`
	TokenTTL        time.Duration    `yaml:"-"`
	Departments     []SeedDepartment `yaml:"departments"`
}

// SeedDepartment is a resident unit provisioned at startup. The password is
// hashed before it is stored; it never leaves the config file in clear
// anywhere else.
type SeedDepartment struct {
	ID       string `yaml:"id"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// ReservationConfig holds the reservation business constants. The visit
// window duration is a deployment constant, never chosen by the client.
type ReservationConfig struct {
	DurationMinutes int           `yaml:"duration_minutes"`
	Duration        time.Duration `yaml:"-"`
	PlateMinLen     int           `yaml:"plate_min_len"`
	PlateMaxLen     int           `yaml:"plate_max_len"`
	DocumentMinLen  int           `yaml:"document_min_len"`
	DocumentMaxLen  int           `yaml:"document_max_len"`
	Slots           []string      `yaml:"slots"`
}

// SensorConfig holds the occupancy feed poller configuration. The feed is
// the only writer of raw slot occupancy; reservation actions never touch it.
type SensorConfig struct {
	Enabled         bool              `yaml:"enabled"`
	IntervalSeconds int               `yaml:"interval_seconds"`
	Interval        time.Duration     `yaml:"-"`
	URL             string            `yaml:"url"`
	Headers         map[string]string `yaml:"headers"`
	FreeValues      []int             `yaml:"state_free_values"`
	OccupiedValues  []int             `yaml:"state_occupied_values"`
	ReservedValues  []int             `yaml:"state_reserved_values"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset fields with working defaults. Exposed so tests
// can build a Config in code without a YAML file.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	// Negative disables response caching entirely.
	if cfg.Server.CacheTTLSeconds == 0 {
		cfg.Server.CacheTTLSeconds = 5
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Auth.TokenTTLMinutes <= 0 {
		cfg.Auth.TokenTTLMinutes = 60
	}
	cfg.Auth.TokenTTL = time.Duration(cfg.Auth.TokenTTLMinutes) * time.Minute

	if cfg.Reservation.DurationMinutes <= 0 {
		cfg.Reservation.DurationMinutes = 120
	}
	cfg.Reservation.Duration = time.Duration(cfg.Reservation.DurationMinutes) * time.Minute
	if cfg.Reservation.PlateMinLen <= 0 {
		cfg.Reservation.PlateMinLen = 5
	}
	if cfg.Reservation.PlateMaxLen <= 0 {
		cfg.Reservation.PlateMaxLen = 8
	}
	if cfg.Reservation.DocumentMinLen <= 0 {
		cfg.Reservation.DocumentMinLen = 5
	}
	if cfg.Reservation.DocumentMaxLen <= 0 {
		cfg.Reservation.DocumentMaxLen = 15
	}

	if cfg.Sensor.IntervalSeconds <= 0 {
		cfg.Sensor.IntervalSeconds = 5
	}
	cfg.Sensor.Interval = time.Duration(cfg.Sensor.IntervalSeconds) * time.Second
	if len(cfg.Sensor.FreeValues) == 0 {
		cfg.Sensor.FreeValues = []int{0}
	}
	if len(cfg.Sensor.OccupiedValues) == 0 {
		cfg.Sensor.OccupiedValues = []int{1}
	}
	if len(cfg.Sensor.ReservedValues) == 0 {
		cfg.Sensor.ReservedValues = []int{2}
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
}
