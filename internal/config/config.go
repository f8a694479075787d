// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	AdminAPIKey    string        `yaml:"admin_api_key"`
	JWTSecret      string        `yaml:"jwt_secret"`
	JWTIssuer      string        `yaml:"jwt_issuer"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
}

type DatabaseConfig struct {
	URL            string        `yaml:"url"`
	MaxConns       int32         `yaml:"max_conns"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type IamportConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	APISecret  string        `yaml:"api_secret"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type PaymentConfig struct {
	Provider    string        `yaml:"provider"` // iamport | noop
	Price       int64         `yaml:"price"`
	Description string        `yaml:"description"`
	Iamport     IamportConfig `yaml:"iamport"`
}

type MembershipConfig struct {
	ValidityDays       int    `yaml:"validity_days"`
	RefundValidityDays int    `yaml:"refund_validity_days"`
	Timezone           string `yaml:"timezone"`
	UIDPrefix          string `yaml:"uid_prefix"`
}

type SchedulerConfig struct {
	RenewalCron  string        `yaml:"renewal_cron"`
	Workers      int           `yaml:"workers"`
	SweepLockTTL time.Duration `yaml:"sweep_lock_ttl"`
}

type TelegramConfig struct {
	Token       string `yaml:"token"`
	InfoChatID  int64  `yaml:"info_chat_id"`
	AlertChatID int64  `yaml:"alert_chat_id"`
}

type NotifyConfig struct {
	Channel     string         `yaml:"channel"` // telegram | log
	QueueKey    string         `yaml:"queue_key"`
	PollTimeout time.Duration  `yaml:"poll_timeout"`
	MaxAttempts int            `yaml:"max_attempts"`
	Telegram    TelegramConfig `yaml:"telegram"`
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Payment    PaymentConfig    `yaml:"payment"`
	Membership MembershipConfig `yaml:"membership"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Notify     NotifyConfig     `yaml:"notify"`

	Runtime RuntimeConfig `yaml:"-"`
}

// Load reads the yaml file at path, applies defaults and environment
// overrides, and validates the result. A .env file next to the process is
// loaded first when present.
func Load(path string, dev bool) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !(errors.Is(err, os.ErrNotExist) && path == DefaultPath) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

const DefaultPath = "config.yaml"

func applyEnv(cfg *Config) {
	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.HTTP.JWTSecret, "JWT_SECRET")
	setString(&cfg.HTTP.AdminAPIKey, "ADMIN_API_KEY")
	setString(&cfg.Payment.Iamport.APIKey, "IAMPORT_API_KEY")
	setString(&cfg.Payment.Iamport.APISecret, "IAMPORT_API_SECRET")
	setString(&cfg.Notify.Telegram.Token, "TELEGRAM_TOKEN")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Port = p
		}
	}
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdempotencyTTL <= 0 {
		cfg.HTTP.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Database.ConnectTimeout <= 0 {
		cfg.Database.ConnectTimeout = 5 * time.Second
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.Payment.Provider == "" {
		cfg.Payment.Provider = "iamport"
	}
	if cfg.Payment.Price <= 0 {
		cfg.Payment.Price = 4900
	}
	if cfg.Payment.Description == "" {
		cfg.Payment.Description = "membership subscription"
	}
	if cfg.Payment.Iamport.BaseURL == "" {
		cfg.Payment.Iamport.BaseURL = "https://api.iamport.kr"
	}
	if cfg.Payment.Iamport.Timeout <= 0 {
		cfg.Payment.Iamport.Timeout = 10 * time.Second
	}
	if cfg.Payment.Iamport.MaxRetries <= 0 {
		cfg.Payment.Iamport.MaxRetries = 3
	}
	if cfg.Payment.Iamport.RetryDelay <= 0 {
		cfg.Payment.Iamport.RetryDelay = 500 * time.Millisecond
	}

	if cfg.Membership.ValidityDays <= 0 {
		cfg.Membership.ValidityDays = 31
	}
	if cfg.Membership.RefundValidityDays <= 0 {
		cfg.Membership.RefundValidityDays = 7
	}
	if cfg.Membership.Timezone == "" {
		cfg.Membership.Timezone = "Asia/Seoul"
	}
	if cfg.Membership.UIDPrefix == "" {
		cfg.Membership.UIDPrefix = "ggongsul"
	}

	if cfg.Scheduler.RenewalCron == "" {
		cfg.Scheduler.RenewalCron = "30 20 * * *"
	}
	if cfg.Scheduler.Workers <= 0 {
		cfg.Scheduler.Workers = 4
	}
	if cfg.Scheduler.SweepLockTTL <= 0 {
		cfg.Scheduler.SweepLockTTL = 23 * time.Hour
	}

	if cfg.Notify.Channel == "" {
		cfg.Notify.Channel = "telegram"
	}
	if cfg.Notify.QueueKey == "" {
		cfg.Notify.QueueKey = "membership:notifications"
	}
	if cfg.Notify.PollTimeout <= 0 {
		cfg.Notify.PollTimeout = 5 * time.Second
	}
	if cfg.Notify.MaxAttempts <= 0 {
		cfg.Notify.MaxAttempts = 5
	}
}

// Validate checks the settings without which the service cannot start.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.HTTP.JWTSecret == "" {
		return errors.New("http.jwt_secret is required")
	}
	if _, err := time.LoadLocation(c.Membership.Timezone); err != nil {
		return fmt.Errorf("membership.timezone: %w", err)
	}
	if c.Payment.Provider == "iamport" && (c.Payment.Iamport.APIKey == "" || c.Payment.Iamport.APISecret == "") {
		return errors.New("payment.iamport.api_key and api_secret are required")
	}
	if c.Notify.Channel == "telegram" && c.Notify.Telegram.Token == "" {
		return errors.New("notify.telegram.token is required")
	}
	return nil
}

// Location returns the service time zone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Membership.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
