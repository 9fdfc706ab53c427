package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PAYMENT_API_KEY", "sk_test_123")
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "whsec_123")
	t.Setenv("PRINT_AGENT_TOKEN", "agent-secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.HTTP.Port != 3000 {
		t.Errorf("expected default HTTP port 3000, got %d", cfg.HTTP.Port)
	}
	if cfg.Orders.TaxRate.String() != "0.0635" {
		t.Errorf("expected default tax rate 0.0635, got %s", cfg.Orders.TaxRate)
	}
	if cfg.Printing.MaxAttempts != 3 {
		t.Errorf("expected default max attempts 3, got %d", cfg.Printing.MaxAttempts)
	}
	if cfg.Printing.RetentionDays != 7 {
		t.Errorf("expected default retention 7 days, got %d", cfg.Printing.RetentionDays)
	}
	if cfg.Payment.ConfirmTimeout != 30*time.Second {
		t.Errorf("expected default confirm timeout 30s, got %v", cfg.Payment.ConfirmTimeout)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PAYMENT_API_KEY", "sk_test_123")
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "whsec_123")
	t.Setenv("PRINT_AGENT_TOKEN", "agent-secret")
	t.Setenv("ORDER_TAX_RATE", "0.08")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "5433")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Orders.TaxRate.String() != "0.08" {
		t.Errorf("expected tax rate 0.08, got %s", cfg.Orders.TaxRate)
	}
	want := "postgres://postgres:@db.internal:5433/cafe?sslmode=disable"
	if cfg.DatabaseURL() != want {
		t.Errorf("DatabaseURL() = %s, want %s", cfg.DatabaseURL(), want)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("PAYMENT_API_KEY", "")
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "whsec_123")
	t.Setenv("PRINT_AGENT_TOKEN", "agent-secret")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error when PAYMENT_API_KEY is missing")
	}
}

func TestLoad_InvalidInt(t *testing.T) {
	t.Setenv("PAYMENT_API_KEY", "sk_test_123")
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "whsec_123")
	t.Setenv("PRINT_AGENT_TOKEN", "agent-secret")
	t.Setenv("HTTP_PORT", "not-a-number")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for invalid HTTP_PORT")
	}
}
