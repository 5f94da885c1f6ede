package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/weather-summary-service/internal/validation"
)

// DefaultCities are polled when the config file names none.
var DefaultCities = []string{"Delhi", "Mumbai", "Chennai", "Bangalore", "Kolkata", "Hyderabad"}

// Config holds service configuration loaded from .env, YAML and env.
type Config struct {
	ServerPort string

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration

	Cities         []string
	PollSchedule   string
	PollJobTimeout time.Duration

	AggregationSchedule   string
	AggregationJobTimeout time.Duration
	Location              *time.Location

	TemperatureThreshold float64
	WatchConditions      []string
	EmailOnCondition     bool
	AlertRecipient       string
	AlertSendTimeout     time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	StorageBackend string // "sqlite" or "postgres"
	SQLitePath     string
	DatabaseURL    string

	CacheBackend          string // "in_memory", "memcached" or "none"
	CacheTTL              time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	CircuitBreakerEnabled   bool
	CircuitFailureThreshold int
	CircuitSuccessThreshold int
	CircuitOpenTimeout      time.Duration

	RateLimitRPS   int
	RateLimitBurst int

	DegradedWindow   time.Duration
	DegradedErrorPct int

	CORSAllowedOrigins []string

	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Poller struct {
		Cities     []string `yaml:"cities"`
		Schedule   string   `yaml:"schedule"`
		JobTimeout string   `yaml:"job_timeout"`
	} `yaml:"poller"`

	Aggregation struct {
		Schedule   string `yaml:"schedule"`
		JobTimeout string `yaml:"job_timeout"`
		Timezone   string `yaml:"timezone"`
	} `yaml:"aggregation"`

	Alerts struct {
		TemperatureThreshold *float64  `yaml:"temperature_threshold"`
		WatchConditions      *[]string `yaml:"watch_conditions"`
		EmailOnCondition     bool      `yaml:"email_on_condition"`
		Recipient            string    `yaml:"recipient"`
		SendTimeout          string    `yaml:"send_timeout"`
	} `yaml:"alerts"`

	SMTP struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
		From string `yaml:"from"`
	} `yaml:"smtp"`

	Storage struct {
		Backend    string `yaml:"backend"`
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"storage"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		CircuitBreaker struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			OpenTimeout      string `yaml:"open_timeout"`
		} `yaml:"circuit_breaker"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"reliability"`

	Request struct {
		Timeout            string   `yaml:"timeout"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	} `yaml:"request"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
	EmailUser     string `yaml:"email_user"`
	EmailPass     string `yaml:"email_pass"`
	DatabaseURL   string `yaml:"database_url"`
}

// Load reads configuration from the working directory. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom loads dir/.env into the environment (existing variables win), then
// dir/config/{ENV_NAME}.yaml (default dev) and dir/config/secrets.yaml.
// Environment variables override the secrets file.
func LoadFrom(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	configPath := filepath.Join(dir, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := readSecrets(filepath.Join(dir, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "3000")

	cfg.WeatherAPIKey = firstNonEmpty(os.Getenv("WEATHER_API_KEY"), os.Getenv("OPENWEATHER_API_KEY"), sec.WeatherAPIKey)
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env, .env or config/secrets.yaml weather_api_key)")
	}
	cfg.WeatherAPIURL = firstNonEmpty(fc.WeatherAPI.URL, "https://api.openweathermap.org/data/2.5/weather")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 5*time.Second)

	cities := fc.Poller.Cities
	if len(cities) == 0 {
		cities = DefaultCities
	}
	cfg.Cities, err = validation.ValidateCities(cities)
	if err != nil {
		return nil, fmt.Errorf("poller.cities: %w", err)
	}
	cfg.PollSchedule = firstNonEmpty(strings.TrimSpace(fc.Poller.Schedule), "*/5 * * * *")
	cfg.PollJobTimeout = parseDuration(fc.Poller.JobTimeout, 2*time.Minute)

	cfg.AggregationSchedule = firstNonEmpty(strings.TrimSpace(fc.Aggregation.Schedule), "59 23 * * *")
	cfg.AggregationJobTimeout = parseDuration(fc.Aggregation.JobTimeout, time.Minute)
	cfg.Location, err = loadLocation(firstNonEmpty(os.Getenv("TZ_NAME"), fc.Aggregation.Timezone))
	if err != nil {
		return nil, err
	}

	cfg.TemperatureThreshold = 35
	if fc.Alerts.TemperatureThreshold != nil {
		cfg.TemperatureThreshold = *fc.Alerts.TemperatureThreshold
	}
	// An absent list watches Rain; an explicit empty list disables the watch.
	cfg.WatchConditions = []string{"Rain"}
	if fc.Alerts.WatchConditions != nil {
		cfg.WatchConditions = validation.NormalizeConditions(*fc.Alerts.WatchConditions)
	}
	cfg.EmailOnCondition = fc.Alerts.EmailOnCondition
	cfg.AlertSendTimeout = parseDuration(fc.Alerts.SendTimeout, 10*time.Second)

	cfg.SMTPHost = firstNonEmpty(os.Getenv("SMTP_HOST"), fc.SMTP.Host, "smtp.gmail.com")
	cfg.SMTPPort = fc.SMTP.Port
	if cfg.SMTPPort <= 0 {
		cfg.SMTPPort = 587
	}
	cfg.SMTPUsername = firstNonEmpty(os.Getenv("EMAIL_USER"), sec.EmailUser)
	cfg.SMTPPassword = firstNonEmpty(os.Getenv("EMAIL_PASS"), sec.EmailPass)
	cfg.SMTPFrom = firstNonEmpty(fc.SMTP.From, cfg.SMTPUsername)
	cfg.AlertRecipient = firstNonEmpty(os.Getenv("ALERT_RECIPIENT"), fc.Alerts.Recipient, cfg.SMTPUsername)

	cfg.StorageBackend = strings.ToLower(firstNonEmpty(os.Getenv("STORAGE_BACKEND"), strings.TrimSpace(fc.Storage.Backend), "sqlite"))
	cfg.SQLitePath = firstNonEmpty(fc.Storage.SQLitePath, "weather.db")
	cfg.DatabaseURL = firstNonEmpty(os.Getenv("DATABASE_URL"), sec.DatabaseURL)

	cfg.CacheBackend = strings.ToLower(firstNonEmpty(
		strings.TrimSpace(os.Getenv("CACHE_BACKEND")),
		strings.TrimSpace(fc.Cache.Backend),
		"in_memory",
	))
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, time.Minute)
	cfg.MemcachedAddrs = firstNonEmpty(
		strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS")),
		strings.TrimSpace(fc.Cache.Memcached.Addrs),
		"localhost:11211",
	)
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = true
	if cb.Enabled != nil {
		cfg.CircuitBreakerEnabled = *cb.Enabled
	}
	cfg.CircuitFailureThreshold = positiveOr(cb.FailureThreshold, 5)
	cfg.CircuitSuccessThreshold = positiveOr(cb.SuccessThreshold, 2)
	cfg.CircuitOpenTimeout = parseDuration(cb.OpenTimeout, 30*time.Second)

	cfg.RateLimitRPS = positiveOr(fc.Reliability.RateLimitRPS, 1)
	cfg.RateLimitBurst = positiveOr(fc.Reliability.RateLimitBurst, 5)
	cfg.DegradedWindow = parseDuration(fc.Reliability.DegradedWindow, 15*time.Minute)
	cfg.DegradedErrorPct = positiveOr(fc.Reliability.DegradedErrorPct, 50)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)
	cfg.CORSAllowedOrigins = fc.Request.CORSAllowedOrigins
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SMTPConfigured reports whether credentials for outgoing mail are present.
func (c *Config) SMTPConfigured() bool {
	return c.SMTPUsername != "" && c.SMTPPassword != ""
}

func readSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

func loadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("aggregation.timezone: %w", err)
	}
	return loc, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. RequestTimeout is raised above
// WeatherAPITimeout when needed.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	switch cfg.StorageBackend {
	case "sqlite":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL required when storage.backend is postgres")
		}
	default:
		return fmt.Errorf("storage.backend must be sqlite or postgres, got %q", cfg.StorageBackend)
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached", "none":
	default:
		return fmt.Errorf("cache.backend must be in_memory, memcached or none, got %q", cfg.CacheBackend)
	}
	if cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("reliability.degraded_error_pct must be at most 100, got %d", cfg.DegradedErrorPct)
	}
	return nil
}
