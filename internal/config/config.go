package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/env"
)

type Config struct {
	Primary      Primary            `koanf:"primary"`
	Server       ServerConfig       `koanf:"server"`
	Database     DatabaseConfig     `koanf:"database"`
	Logger       LoggerConfig       `koanf:"logger"`
	Fee          FeeConfig          `koanf:"fee"`
	Checkout     CheckoutConfig     `koanf:"checkout"`
	Renewal      RenewalConfig      `koanf:"renewal"`
	Worker       WorkerConfig       `koanf:"worker"`
	Gateways     GatewaysConfig     `koanf:"gateways"`
	Provisioning ProvisioningConfig `koanf:"provisioning"`
	Mailer       MailerConfig       `koanf:"mailer"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type ServerConfig struct {
	Port         string        `koanf:"port" validate:"required"`
	ReadTimeout  time.Duration `koanf:"read_timeout" validate:"required"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"required"`
	IdleTimeout  time.Duration `koanf:"idle_timeout" validate:"required"`
	CORSOrigins  []string      `koanf:"cors_origins"`
}

type DatabaseConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"required"`
	User            string        `koanf:"user" validate:"required"`
	Password        string        `koanf:"password" validate:"required"`
	Name            string        `koanf:"name" validate:"required"`
	SSLMode         string        `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"required"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"required"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" validate:"required"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time" validate:"required"`
}

type LoggerConfig struct {
	Level string `koanf:"level"`
}

// FeeConfig holds the service fee percentage added on top of every
// checkout, e.g. 3.0 for 3%.
type FeeConfig struct {
	Percent float64 `koanf:"percent"`
}

// CheckoutConfig carries the storefront redirect and callback targets
// passed to gateways when creating invoices.
type CheckoutConfig struct {
	SuccessURL      string `koanf:"success_url" validate:"required"`
	CancelURL       string `koanf:"cancel_url" validate:"required"`
	CallbackBaseURL string `koanf:"callback_base_url" validate:"required"`
}

type RenewalConfig struct {
	Provider      string        `koanf:"provider" validate:"required"`
	LeadTime      time.Duration `koanf:"lead_time" validate:"required"`
	Lookback      time.Duration `koanf:"lookback" validate:"required"`
	InvoiceTTL    time.Duration `koanf:"invoice_ttl" validate:"required"`
	LockLease     time.Duration `koanf:"lock_lease" validate:"required"`
	BatchSize     int           `koanf:"batch_size" validate:"required"`
	Interval      time.Duration `koanf:"interval" validate:"required"`
	RatePerSecond float64       `koanf:"rate_per_second"`
	JobToken      string        `koanf:"job_token" validate:"required"`
}

type WorkerConfig struct {
	PollInterval      time.Duration `koanf:"poll_interval" validate:"required"`
	PollBatchSize     int           `koanf:"poll_batch_size" validate:"required"`
	PollMinAge        time.Duration `koanf:"poll_min_age" validate:"required"`
	OutboxInterval    time.Duration `koanf:"outbox_interval" validate:"required"`
	OutboxBatchSize   int           `koanf:"outbox_batch_size" validate:"required"`
	OutboxMaxAttempts int           `koanf:"outbox_max_attempts" validate:"required"`
}

// GatewaysConfig holds one credential block per provider. Each block
// carries an Active flag; inactive providers never enter the registry.
type GatewaysConfig struct {
	NOWPayments NOWPaymentsConfig `koanf:"nowpayments"`
	ChangeNOW   ChangeNOWConfig   `koanf:"changenow"`
	PayGate     PayGateConfig     `koanf:"paygate"`
	Stripe      StripeConfig      `koanf:"stripe"`
	HoodPay     HoodPayConfig     `koanf:"hoodpay"`
}

type NOWPaymentsConfig struct {
	Active    bool          `koanf:"active"`
	BaseURL   string        `koanf:"base_url"`
	APIKey    string        `koanf:"api_key"`
	IPNSecret string        `koanf:"ipn_secret"`
	Timeout   time.Duration `koanf:"timeout"`
}

type ChangeNOWConfig struct {
	Active    bool          `koanf:"active"`
	BaseURL   string        `koanf:"base_url"`
	APIKey    string        `koanf:"api_key"`
	APISecret string        `koanf:"api_secret"`
	Timeout   time.Duration `koanf:"timeout"`
}

type PayGateConfig struct {
	Active        bool          `koanf:"active"`
	BaseURL       string        `koanf:"base_url"`
	WalletAddress string        `koanf:"wallet_address"`
	CallbackToken string        `koanf:"callback_token"`
	AllowedIPs    []string      `koanf:"allowed_ips"`
	Timeout       time.Duration `koanf:"timeout"`
}

type StripeConfig struct {
	Active        bool          `koanf:"active"`
	BaseURL       string        `koanf:"base_url"`
	SecretKey     string        `koanf:"secret_key"`
	WebhookSecret string        `koanf:"webhook_secret"`
	Timeout       time.Duration `koanf:"timeout"`
}

type HoodPayConfig struct {
	Active        bool          `koanf:"active"`
	BaseURL       string        `koanf:"base_url"`
	APIKey        string        `koanf:"api_key"`
	BusinessID    string        `koanf:"business_id"`
	WebhookSecret string        `koanf:"webhook_secret"`
	Timeout       time.Duration `koanf:"timeout"`
}

type ProvisioningConfig struct {
	BaseURL    string        `koanf:"base_url" validate:"required"`
	APIKey     string        `koanf:"api_key" validate:"required"`
	Timeout    time.Duration `koanf:"timeout" validate:"required"`
	BaseDelay  int32         `koanf:"base_delay"`
	MaxRetries int32         `koanf:"max_retries"`
}

type MailerConfig struct {
	BaseURL string        `koanf:"base_url" validate:"required"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

func LoadConfig() (*Config, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	k := koanf.New(".")

	err := k.Load(env.Provider("BILLING_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "BILLING_")),
			"__",
			".",
		)
	}), nil)
	if err != nil {
		logger.Error("failed to load environment variables", "error", err)
		return nil, err
	}

	mainConfig := &Config{}

	err = k.Unmarshal("", mainConfig)
	if err != nil {
		logger.Error("could not unmarshal main config", "error", err)
		return nil, err
	}

	validate := validator.New()

	err = validate.Struct(mainConfig)
	if err != nil {
		logger.Error("config validation failed", "error", err)
		return nil, err
	}

	return mainConfig, nil
}

// NewLogger builds the process logger at the configured level.
func (c LoggerConfig) NewLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}
