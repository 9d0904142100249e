package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Mazda      MazdaConfig      `yaml:"mazda"`
	Polling    PollingConfig    `yaml:"polling"`
	Retry      RetryConfig      `yaml:"retry"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// MazdaConfig holds the Mazda Connected Services account credentials.
type MazdaConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Region   string `yaml:"region"`
	// BaseURL and UsherURL override the region defaults. Used in tests
	// and for proxied setups.
	BaseURL  string `yaml:"base_url"`
	UsherURL string `yaml:"usher_url"`
}

// PollingConfig holds the poll intervals and the pacing delays between
// upstream API calls.
type PollingConfig struct {
	StatusIntervalMinutes int `yaml:"status_interval_minutes"`
	HealthIntervalMinutes int `yaml:"health_interval_minutes"`
	VehicleDelaySeconds   int `yaml:"vehicle_delay_seconds"`
	EndpointDelaySeconds  int `yaml:"endpoint_delay_seconds"`
	HealthVehicleDelaySec int `yaml:"health_vehicle_delay_seconds"`

	StatusInterval     time.Duration `yaml:"-"`
	HealthInterval     time.Duration `yaml:"-"`
	VehicleDelay       time.Duration `yaml:"-"`
	EndpointDelay      time.Duration `yaml:"-"`
	HealthVehicleDelay time.Duration `yaml:"-"`
}

// RetryConfig holds the retry policy applied to every upstream API call.
type RetryConfig struct {
	MaxAttempts         int     `yaml:"max_attempts"`
	InitialDelaySeconds float64 `yaml:"initial_delay_seconds"`
	MaxBackoffSeconds   float64 `yaml:"max_backoff_seconds"`

	InitialDelay time.Duration `yaml:"-"`
	MaxBackoff   time.Duration `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
	// FailureThreshold is the number of consecutive poll failures for one
	// vehicle before subscribers are notified.
	FailureThreshold int `yaml:"failure_threshold"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// Load reads the configuration from the given path, applies defaults and
// validates the configured ranges.
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

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.Mazda.Email == "" {
		return fmt.Errorf("mazda.email must be set")
	}
	if c.Mazda.Password == "" {
		return fmt.Errorf("mazda.password must be set")
	}
	if c.Mazda.Region == "" {
		c.Mazda.Region = "MNAO"
	}

	p := &c.Polling
	if p.StatusIntervalMinutes == 0 {
		p.StatusIntervalMinutes = 15
	}
	if p.HealthIntervalMinutes == 0 {
		p.HealthIntervalMinutes = 60
	}
	if p.VehicleDelaySeconds == 0 {
		p.VehicleDelaySeconds = 2
	}
	if p.EndpointDelaySeconds == 0 {
		p.EndpointDelaySeconds = 1
	}
	if p.HealthVehicleDelaySec == 0 {
		p.HealthVehicleDelaySec = 30
	}
	if err := checkRange("polling.status_interval_minutes", p.StatusIntervalMinutes, 5, 1440); err != nil {
		return err
	}
	if err := checkRange("polling.health_interval_minutes", p.HealthIntervalMinutes, 1, 1440); err != nil {
		return err
	}
	if err := checkRange("polling.vehicle_delay_seconds", p.VehicleDelaySeconds, 0, 60); err != nil {
		return err
	}
	if err := checkRange("polling.endpoint_delay_seconds", p.EndpointDelaySeconds, 0, 30); err != nil {
		return err
	}
	if err := checkRange("polling.health_vehicle_delay_seconds", p.HealthVehicleDelaySec, 5, 300); err != nil {
		return err
	}
	p.StatusInterval = time.Duration(p.StatusIntervalMinutes) * time.Minute
	p.HealthInterval = time.Duration(p.HealthIntervalMinutes) * time.Minute
	p.VehicleDelay = time.Duration(p.VehicleDelaySeconds) * time.Second
	p.EndpointDelay = time.Duration(p.EndpointDelaySeconds) * time.Second
	p.HealthVehicleDelay = time.Duration(p.HealthVehicleDelaySec) * time.Second

	r := &c.Retry
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 3
	}
	if r.InitialDelaySeconds == 0 {
		r.InitialDelaySeconds = 1.0
	}
	if r.MaxBackoffSeconds == 0 {
		r.MaxBackoffSeconds = 30.0
	}
	if err := checkRange("retry.max_attempts", r.MaxAttempts, 1, 10); err != nil {
		return err
	}
	if r.InitialDelaySeconds < 0.5 || r.InitialDelaySeconds > 5.0 {
		return fmt.Errorf("retry.initial_delay_seconds must be between 0.5 and 5, got %v", r.InitialDelaySeconds)
	}
	if r.MaxBackoffSeconds < 5.0 || r.MaxBackoffSeconds > 120.0 {
		return fmt.Errorf("retry.max_backoff_seconds must be between 5 and 120, got %v", r.MaxBackoffSeconds)
	}
	r.InitialDelay = time.Duration(r.InitialDelaySeconds * float64(time.Second))
	r.MaxBackoff = time.Duration(r.MaxBackoffSeconds * float64(time.Second))

	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimitPerSec == 0 {
		c.Server.RateLimitPerSec = 10
	}
	if c.Server.CacheTTLSeconds == 0 {
		c.Server.CacheTTLSeconds = 60
	}

	if c.Push.TTL <= 0 {
		c.Push.TTL = 3600
	}
	if c.Push.FailureThreshold <= 0 {
		c.Push.FailureThreshold = 3
	}
	if c.WorkerPool.Size <= 0 {
		c.WorkerPool.Size = 1
	}
	return nil
}

func checkRange(name string, v, min, max int) error {
	if v < min || v > max {
		return fmt.Errorf("%s must be between %d and %d, got %d", name, min, max, v)
	}
	return nil
}
