package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"hostbook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Booking    BookingConfig    `yaml:"booking"`
	Payment    PaymentConfig    `yaml:"payment"`
	Worker     WorkerConfig     `yaml:"worker"`
	Lock       LockConfig       `yaml:"lock"`
	Hosts      []models.Host    `yaml:"hosts"`
}

// BookingConfig holds the reservation policy knobs. Fee rates are in basis points.
type BookingConfig struct {
	MinLeadMinutes            int `yaml:"min_lead_minutes"`
	PlatformFeeBps            int `yaml:"platform_fee_bps"`
	CancellationFeeBps        int `yaml:"cancellation_fee_bps"`
	CancellationWindowHours   int `yaml:"cancellation_window_hours"`
	StartEarlyMinutes         int `yaml:"start_early_minutes"`
	AuthorizationHoldDays     int `yaml:"authorization_hold_days"`
	MaxAvailabilityRangeDays  int `yaml:"max_availability_range_days"`
	DefaultSlotDurationMinute int `yaml:"default_slot_duration_minutes"`
}

func (b BookingConfig) MinLead() time.Duration {
	return time.Duration(b.MinLeadMinutes) * time.Minute
}

func (b BookingConfig) CancellationWindow() time.Duration {
	return time.Duration(b.CancellationWindowHours) * time.Hour
}

func (b BookingConfig) StartEarly() time.Duration {
	return time.Duration(b.StartEarlyMinutes) * time.Minute
}

func (b BookingConfig) AuthorizationHold() time.Duration {
	return time.Duration(b.AuthorizationHoldDays) * 24 * time.Hour
}

type PaymentConfig struct {
	Provider       string `yaml:"provider"` // sandbox, http
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (p PaymentConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

type WorkerConfig struct {
	ReleaseMaxRetries       int `yaml:"release_max_retries"`
	ReleaseInitialDelaySecs int `yaml:"release_initial_delay_seconds"`
	ReleaseMaxDelaySecs     int `yaml:"release_max_delay_seconds"`
	PollIntervalSecs        int `yaml:"poll_interval_seconds"`
}

// LockConfig tunes the reservation lock. TTL bounds a crashed holder, Wait bounds a queued caller.
type LockConfig struct {
	TTLSeconds  int `yaml:"ttl_seconds"`
	WaitSeconds int `yaml:"wait_seconds"`
}

func (l LockConfig) TTL() time.Duration {
	return time.Duration(l.TTLSeconds) * time.Second
}

func (l LockConfig) Wait() time.Duration {
	return time.Duration(l.WaitSeconds) * time.Second
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderActor  string         `yaml:"header_actor"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; values from it feed ${VAR} expansion below.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Booking.PlatformFeeBps < 0 || c.Booking.PlatformFeeBps > 10000 {
		return fmt.Errorf("booking.platform_fee_bps must be within 0..10000, got %d", c.Booking.PlatformFeeBps)
	}
	if c.Booking.CancellationFeeBps < 0 || c.Booking.CancellationFeeBps > 10000 {
		return fmt.Errorf("booking.cancellation_fee_bps must be within 0..10000, got %d", c.Booking.CancellationFeeBps)
	}
	if c.Booking.MinLeadMinutes < 0 {
		return errors.New("booking.min_lead_minutes must not be negative")
	}

	switch strings.ToLower(c.Payment.Provider) {
	case "sandbox":
	case "http":
		if c.Payment.BaseURL == "" {
			return errors.New("payment.base_url is required for the http provider")
		}
	default:
		return fmt.Errorf("unknown payment provider %q", c.Payment.Provider)
	}

	return ValidateHosts(c.Hosts)
}

func ValidateHosts(hosts []models.Host) error {
	ids := make(map[string]bool)
	for _, host := range hosts {
		if host.ID == "" {
			return fmt.Errorf("host '%s' has empty ID", host.Name)
		}
		if ids[host.ID] {
			return fmt.Errorf("duplicate host ID found: %s", host.ID)
		}
		if host.HourlyRateCents <= 0 {
			return fmt.Errorf("host %s: hourly_rate_cents must be positive", host.ID)
		}
		if _, err := time.LoadLocation(host.TimeZone); err != nil {
			return fmt.Errorf("host %s: invalid time_zone %q: %w", host.ID, host.TimeZone, err)
		}
		ids[host.ID] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "hostbook"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderActor == "" {
		c.API.Auth.HeaderActor = "x-actor-id"
	}

	if c.Booking.PlatformFeeBps == 0 {
		c.Booking.PlatformFeeBps = models.DefaultPlatformFeeBps
	}
	if c.Booking.CancellationFeeBps == 0 {
		c.Booking.CancellationFeeBps = models.DefaultCancellationFeeBps
	}
	if c.Booking.CancellationWindowHours == 0 {
		c.Booking.CancellationWindowHours = models.DefaultCancellationWindowHours
	}
	if c.Booking.StartEarlyMinutes == 0 {
		c.Booking.StartEarlyMinutes = models.DefaultStartEarlyMinutes
	}
	if c.Booking.AuthorizationHoldDays == 0 {
		c.Booking.AuthorizationHoldDays = models.DefaultAuthorizationHoldDays
	}
	if c.Booking.MaxAvailabilityRangeDays == 0 {
		c.Booking.MaxAvailabilityRangeDays = 62
	}
	if c.Booking.DefaultSlotDurationMinute == 0 {
		c.Booking.DefaultSlotDurationMinute = models.SlotGranularityMinutes
	}

	if c.Payment.Provider == "" {
		c.Payment.Provider = "sandbox"
	}
	if c.Payment.TimeoutSeconds == 0 {
		c.Payment.TimeoutSeconds = 10
	}

	if c.Worker.ReleaseMaxRetries == 0 {
		c.Worker.ReleaseMaxRetries = 8
	}
	if c.Worker.ReleaseInitialDelaySecs == 0 {
		c.Worker.ReleaseInitialDelaySecs = 5
	}
	if c.Worker.ReleaseMaxDelaySecs == 0 {
		c.Worker.ReleaseMaxDelaySecs = 30 * 60
	}
	if c.Worker.PollIntervalSecs == 0 {
		c.Worker.PollIntervalSecs = 2
	}

	if c.Lock.TTLSeconds == 0 {
		c.Lock.TTLSeconds = 30
	}
	if c.Lock.WaitSeconds == 0 {
		c.Lock.WaitSeconds = 10
	}
}
