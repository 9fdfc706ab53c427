package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the cafe backend.
type Config struct {
	HTTP     HTTPConfig
	Database DatabaseConfig
	RabbitMQ RabbitMQConfig
	Payment  PaymentConfig
	Printing PrintingConfig
	Orders   OrdersConfig
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port int
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// RabbitMQConfig holds RabbitMQ connection configuration.
type RabbitMQConfig struct {
	Host     string
	Port     int
	User     string
	Password string
}

// PaymentConfig holds payment gateway settings.
type PaymentConfig struct {
	APIKey         string
	WebhookSecret  string
	Currency       string
	ConfirmTimeout time.Duration
}

// PrintingConfig holds print dispatcher settings.
type PrintingConfig struct {
	AgentToken    string
	MaxAttempts   int
	RetentionDays int
	SweepInterval time.Duration
}

// OrdersConfig holds order pipeline settings.
type OrdersConfig struct {
	TaxRate                decimal.Decimal
	BasePrepMinutes        int
	QueueBatchSize         int
	QueueBatchDelayMinutes int
	ReadyTimeRoundMinutes  int
	ActivePageSize         int
}

// Load reads configuration from the environment. If envFile is non-empty
// and exists, it is loaded first; a missing file is not an error so that
// deployed environments can rely on real environment variables.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	cfg := &Config{}
	var err error

	cfg.HTTP.Port, err = getInt("HTTP_PORT", 3000)
	if err != nil {
		return nil, err
	}

	cfg.Database.Host = getString("DB_HOST", "localhost")
	cfg.Database.Port, err = getInt("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}
	cfg.Database.User = getString("DB_USER", "postgres")
	cfg.Database.Password = getString("DB_PASSWORD", "")
	cfg.Database.Database = getString("DB_NAME", "cafe")

	cfg.RabbitMQ.Host = getString("RABBITMQ_HOST", "localhost")
	cfg.RabbitMQ.Port, err = getInt("RABBITMQ_PORT", 5672)
	if err != nil {
		return nil, err
	}
	cfg.RabbitMQ.User = getString("RABBITMQ_USER", "guest")
	cfg.RabbitMQ.Password = getString("RABBITMQ_PASSWORD", "guest")

	cfg.Payment.APIKey = os.Getenv("PAYMENT_API_KEY")
	if cfg.Payment.APIKey == "" {
		return nil, fmt.Errorf("PAYMENT_API_KEY is required")
	}
	cfg.Payment.WebhookSecret = os.Getenv("PAYMENT_WEBHOOK_SECRET")
	if cfg.Payment.WebhookSecret == "" {
		return nil, fmt.Errorf("PAYMENT_WEBHOOK_SECRET is required")
	}
	cfg.Payment.Currency = getString("PAYMENT_CURRENCY", "usd")
	cfg.Payment.ConfirmTimeout, err = getDuration("PAYMENT_CONFIRM_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	cfg.Printing.AgentToken = os.Getenv("PRINT_AGENT_TOKEN")
	if cfg.Printing.AgentToken == "" {
		return nil, fmt.Errorf("PRINT_AGENT_TOKEN is required")
	}
	cfg.Printing.MaxAttempts, err = getInt("PRINT_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	cfg.Printing.RetentionDays, err = getInt("PRINT_RETENTION_DAYS", 7)
	if err != nil {
		return nil, err
	}
	cfg.Printing.SweepInterval, err = getDuration("PRINT_SWEEP_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	cfg.Orders.TaxRate, err = getDecimal("ORDER_TAX_RATE", "0.0635")
	if err != nil {
		return nil, err
	}
	cfg.Orders.BasePrepMinutes, err = getInt("ORDER_BASE_PREP_MINUTES", 5)
	if err != nil {
		return nil, err
	}
	cfg.Orders.QueueBatchSize, err = getInt("ORDER_QUEUE_BATCH_SIZE", 5)
	if err != nil {
		return nil, err
	}
	cfg.Orders.QueueBatchDelayMinutes, err = getInt("ORDER_QUEUE_BATCH_DELAY_MINUTES", 2)
	if err != nil {
		return nil, err
	}
	cfg.Orders.ReadyTimeRoundMinutes, err = getInt("ORDER_READY_TIME_ROUND_MINUTES", 5)
	if err != nil {
		return nil, err
	}
	cfg.Orders.ActivePageSize, err = getInt("ORDER_ACTIVE_PAGE_SIZE", 50)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// DatabaseURL returns a PostgreSQL connection URL.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.Database)
}

// RabbitMQURL returns an AMQP connection URL.
func (c *Config) RabbitMQURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/",
		c.RabbitMQ.User, c.RabbitMQ.Password, c.RabbitMQ.Host, c.RabbitMQ.Port)
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return d, nil
}

func getDecimal(key, fallback string) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		v = fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return d, nil
}
