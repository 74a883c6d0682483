package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Domenick1991/transkenya/internal/domain"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Mpesa    MpesaConfig    `yaml:"mpesa"`
	Booking  BookingConfig  `yaml:"booking"`
	Worker   WorkerConfig   `yaml:"worker"`
	Log      LogConfig      `yaml:"log"`
	Routes   []domain.Route `yaml:"routes"`
}

type HTTPConfig struct {
	Address    string `yaml:"address"`
	SwaggerDir string `yaml:"swagger_dir"`
}

type AuthConfig struct {
	// JWTSecret verifies the auth provider's HS256 access tokens. Empty disables the check.
	JWTSecret string `yaml:"jwt_secret"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

// Configured reports whether a PostgreSQL connection was set up at all.
func (d DatabaseConfig) Configured() bool {
	return d.URL != "" || d.Host != ""
}

func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	PaymentEventsTopic string   `yaml:"payment_events_topic"`
	GroupID            string   `yaml:"group_id"`
}

type MpesaConfig struct {
	BaseURL            string `yaml:"base_url"`
	ConsumerKey        string `yaml:"consumer_key"`
	ConsumerSecret     string `yaml:"consumer_secret"`
	Passkey            string `yaml:"passkey"`
	ShortCode          string `yaml:"shortcode"`
	CallbackURL        string `yaml:"callback_url"`
	AccountReference   string `yaml:"account_reference"`
	AuthTimeoutSeconds int    `yaml:"auth_timeout_seconds"`
	PushTimeoutSeconds int    `yaml:"push_timeout_seconds"`
}

func (m MpesaConfig) AuthTimeout() time.Duration {
	return time.Duration(m.AuthTimeoutSeconds) * time.Second
}

func (m MpesaConfig) PushTimeout() time.Duration {
	return time.Duration(m.PushTimeoutSeconds) * time.Second
}

type BookingConfig struct {
	SeatHoldSeconds     int `yaml:"seat_hold_seconds"`
	StoreTimeoutSeconds int `yaml:"store_timeout_seconds"`
}

func (b BookingConfig) SeatHold() time.Duration {
	return time.Duration(b.SeatHoldSeconds) * time.Second
}

func (b BookingConfig) StoreTimeout() time.Duration {
	return time.Duration(b.StoreTimeoutSeconds) * time.Second
}

type WorkerConfig struct {
	ReconcileSweepMinutes int `yaml:"reconcile_sweep_minutes"`
	ReconcileAfterMinutes int `yaml:"reconcile_after_minutes"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// LoadConfig reads the YAML file at path and overlays secrets from the environment.
// A .env file next to the process is loaded first when present.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	overlay(&c.Mpesa.ConsumerKey, "MPESA_CONSUMER_KEY")
	overlay(&c.Mpesa.ConsumerSecret, "MPESA_CONSUMER_SECRET")
	overlay(&c.Mpesa.Passkey, "MPESA_PASSKEY")
	overlay(&c.Mpesa.ShortCode, "MPESA_SHORTCODE")
	overlay(&c.Mpesa.CallbackURL, "MPESA_CALLBACK_URL")
	overlay(&c.Database.URL, "DATABASE_URL")
	overlay(&c.Redis.Password, "REDIS_PASSWORD")
	overlay(&c.Auth.JWTSecret, "JWT_SECRET")
	overlay(&c.Log.Level, "LOG_LEVEL")
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.Mpesa.BaseURL == "" {
		c.Mpesa.BaseURL = "https://sandbox.safaricom.co.ke"
	}
	if c.Mpesa.ShortCode == "" {
		// Safaricom sandbox shortcode.
		c.Mpesa.ShortCode = "174379"
	}
	if c.Mpesa.AccountReference == "" {
		c.Mpesa.AccountReference = "Mark.Suma Trans-Kenya"
	}
	if c.Mpesa.AuthTimeoutSeconds <= 0 {
		c.Mpesa.AuthTimeoutSeconds = 10
	}
	if c.Mpesa.PushTimeoutSeconds <= 0 {
		c.Mpesa.PushTimeoutSeconds = 15
	}
	if c.Booking.StoreTimeoutSeconds <= 0 {
		c.Booking.StoreTimeoutSeconds = 5
	}
	if c.Booking.SeatHoldSeconds <= 0 {
		c.Booking.SeatHoldSeconds = 120
	}
	if c.Worker.ReconcileSweepMinutes <= 0 {
		c.Worker.ReconcileSweepMinutes = 5
	}
	if c.Worker.ReconcileAfterMinutes <= 0 {
		c.Worker.ReconcileAfterMinutes = 10
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate reports every missing secret at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Mpesa.ConsumerKey == "" {
		errs = append(errs, errors.New("mpesa consumer key is required (MPESA_CONSUMER_KEY)"))
	}
	if c.Mpesa.ConsumerSecret == "" {
		errs = append(errs, errors.New("mpesa consumer secret is required (MPESA_CONSUMER_SECRET)"))
	}
	if c.Mpesa.Passkey == "" {
		errs = append(errs, errors.New("mpesa passkey is required (MPESA_PASSKEY)"))
	}
	if c.Mpesa.CallbackURL == "" {
		errs = append(errs, errors.New("mpesa callback url is required (MPESA_CALLBACK_URL)"))
	}
	for i, r := range c.Routes {
		if r.Origin == "" || r.Destination == "" || r.Price <= 0 {
			errs = append(errs, fmt.Errorf("routes[%d]: origin, destination and a positive price are required", i))
		}
	}
	return errors.Join(errs...)
}

func overlay(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}
