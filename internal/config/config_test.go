package config

import (
	"testing"
	"time"
)

func TestGatewayConfigDefaults(t *testing.T) {
	var cfg GatewayConfig
	if err := cfg.Setup(); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	if cfg.DemoBaseURL == "" || cfg.LiveBaseURL == "" {
		t.Error("base urls must default")
	}
	if cfg.TokenSafetyMargin != time.Minute {
		t.Errorf("token safety margin = %v, want 1m", cfg.TokenSafetyMargin)
	}
	if cfg.MaxBarsPerRequest != 20000 {
		t.Errorf("max bars = %d, want 20000", cfg.MaxBarsPerRequest)
	}
}

func TestGatewayConfigCapsBarLimit(t *testing.T) {
	cfg := GatewayConfig{MaxBarsPerRequest: 50000}
	if err := cfg.Setup(); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if cfg.MaxBarsPerRequest != 20000 {
		t.Errorf("max bars = %d, the upstream limit is 20000", cfg.MaxBarsPerRequest)
	}
}

func TestNewsConfigDefaults(t *testing.T) {
	var cfg NewsConfig
	if err := cfg.Setup(); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	if cfg.UpdateInterval != 4*time.Hour {
		t.Errorf("update interval = %v, want 4h", cfg.UpdateInterval)
	}
	if len(cfg.Currencies) != 8 {
		t.Errorf("got %d default currencies, want 8", len(cfg.Currencies))
	}
}

func TestNewsConfigNormalizesCurrencies(t *testing.T) {
	cfg := NewsConfig{Currencies: []string{" usd", "eur "}}
	if err := cfg.Setup(); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if cfg.Currencies[0] != "USD" || cfg.Currencies[1] != "EUR" {
		t.Errorf("currencies not normalized: %v", cfg.Currencies)
	}
}

func TestNewsConfigRejectsBadImportance(t *testing.T) {
	cfg := NewsConfig{MinImportance: 3}
	if err := cfg.Setup(); err == nil {
		t.Fatal("expected error for min_importance out of range")
	}
}

func TestServerConfigRequiresAPIKey(t *testing.T) {
	t.Setenv("API_KEY", "")

	var cfg ServerConfig
	if err := cfg.Setup(); err == nil {
		t.Fatal("expected error without API_KEY")
	}

	t.Setenv("API_KEY", "k")
	if err := cfg.Setup(); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("port = %q, want 8080", cfg.Port)
	}
}

func TestServerConfigRejectsBadPort(t *testing.T) {
	t.Setenv("API_KEY", "k")

	cfg := ServerConfig{Port: "not-a-port"}
	if err := cfg.Setup(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}
