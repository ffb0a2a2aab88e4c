package config

import (
	"testing"

	"github.com/m3rciful/storebot/internal/database"
)

func validConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			Token:    "123:abc",
			AdminIDs: []int64{42},
		},
		Database: database.Config{
			Host: "localhost",
			Port: "5432",
		},
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	if err := Normalize(cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run mode = %q, want longpoll default", cfg.Telegram.RunMode)
	}
	if cfg.Telegram.Currency != "RUB" {
		t.Fatalf("currency = %q, want RUB default", cfg.Telegram.Currency)
	}
}

func TestNormalizePollingAlias(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.RunMode = "Polling"
	if err := Normalize(cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run mode = %q, want longpoll for polling alias", cfg.Telegram.RunMode)
	}
}

func TestNormalizeRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing token", func(c *Config) { c.Telegram.Token = "" }},
		{"no admins", func(c *Config) { c.Telegram.AdminIDs = nil }},
		{"zero admin id", func(c *Config) { c.Telegram.AdminIDs = []int64{0} }},
		{"unknown run mode", func(c *Config) { c.Telegram.RunMode = "carrier-pigeon" }},
		{"webhook without url", func(c *Config) {
			c.Telegram.RunMode = RunModeWebhook
			c.Webhook = WebhookConfig{Listen: "0.0.0.0", Port: 8443}
		}},
		{"webhook without listen", func(c *Config) {
			c.Telegram.RunMode = RunModeWebhook
			c.Webhook = WebhookConfig{URL: "https://bot.example.com", Port: 8443}
		}},
		{"webhook without port", func(c *Config) {
			c.Telegram.RunMode = RunModeWebhook
			c.Webhook = WebhookConfig{URL: "https://bot.example.com", Listen: "0.0.0.0"}
		}},
		{"negative longpoll timeout", func(c *Config) { c.Telegram.LongPollTimeoutSeconds = -1 }},
		{"negative pending ttl", func(c *Config) { c.Orders.PendingTTLMinutes = -5 }},
		{"negative sweep interval", func(c *Config) { c.Orders.SweepIntervalSeconds = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if err := Normalize(cfg); err == nil {
				t.Fatal("Normalize accepted invalid config")
			}
		})
	}
}

func TestNormalizeSweepDefault(t *testing.T) {
	cfg := validConfig()
	cfg.Orders.PendingTTLMinutes = 30
	if err := Normalize(cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if cfg.Orders.SweepIntervalSeconds != 60 {
		t.Fatalf("sweep interval = %d, want 60 default when ttl is set", cfg.Orders.SweepIntervalSeconds)
	}
}

func TestCurrencyUppercased(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.Currency = " usd "
	if err := Normalize(cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if cfg.Telegram.Currency != "USD" {
		t.Fatalf("currency = %q, want USD", cfg.Telegram.Currency)
	}
}

func TestOnlinePaymentsEnabled(t *testing.T) {
	cfg := validConfig()
	if cfg.OnlinePaymentsEnabled() {
		t.Fatal("online payments enabled without provider token")
	}
	cfg.Telegram.ProviderToken = "prov:token"
	if !cfg.OnlinePaymentsEnabled() {
		t.Fatal("online payments disabled with provider token set")
	}
}

func TestIsAdmin(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.AdminIDs = []int64{42, 99}
	if !cfg.IsAdmin(42) || !cfg.IsAdmin(99) {
		t.Fatal("IsAdmin rejected configured admin")
	}
	if cfg.IsAdmin(7) {
		t.Fatal("IsAdmin accepted stranger")
	}
}
