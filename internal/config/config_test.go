package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"databases": {"sqlite3": {"dsn": "shop.db"}}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Bot.ResultLimit != DefaultResultLimit || cfg.Bot.Greeting != DefaultGreeting {
		t.Fatalf("bot defaults not applied: %+v", cfg.Bot)
	}
	if cfg.Bot.PriceLow != DefaultPriceLow || cfg.Bot.PriceHigh != DefaultPriceHigh {
		t.Fatalf("price band defaults not applied: %+v", cfg.Bot)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("expected info log level, got %q", cfg.Log.Level)
	}
	want := filepath.Join(filepath.Dir(path), "shop.db")
	if got := cfg.Databases["sqlite3"].DSN; got != want {
		t.Fatalf("relative dsn not resolved: got %q want %q", got, want)
	}
}

func TestLoadKeepsSpecialDSNs(t *testing.T) {
	path := writeConfig(t, `{"databases": {"sqlite": {"dsn": ":memory:"}, "sqlite3": {"dsn": "file:test.db?cache=shared"}}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Databases["sqlite"].DSN != ":memory:" {
		t.Fatalf("memory dsn rewritten: %q", cfg.Databases["sqlite"].DSN)
	}
	if cfg.Databases["sqlite3"].DSN != "file:test.db?cache=shared" {
		t.Fatalf("file: dsn rewritten: %q", cfg.Databases["sqlite3"].DSN)
	}
}

func TestLoadRejectsMissingSqliteDSN(t *testing.T) {
	path := writeConfig(t, `{"databases": {"sqlite3": {}}}`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for empty sqlite dsn")
	}
}

func TestLoadPriceBand(t *testing.T) {
	cases := []struct {
		name     string
		bot      string
		wantLow  int
		wantHigh int
		wantErr  bool
	}{
		{"unset uses defaults", `{}`, DefaultPriceLow, DefaultPriceHigh, false},
		{"explicit band kept", `{"price_low": 5, "price_high": 50}`, 5, 50, false},
		{"zero low allowed", `{"price_high": 200}`, 0, 200, false},
		{"missing high takes default", `{"price_low": 100}`, 100, DefaultPriceHigh, false},
		{"low above default high without high", `{"price_low": 5000}`, 0, 0, true},
		{"inverted band", `{"price_low": 500, "price_high": 100}`, 0, 0, true},
		{"negative low", `{"price_low": -1, "price_high": 100}`, 0, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, `{"bot": `+tc.bot+`}`))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got band %d..%d", cfg.Bot.PriceLow, cfg.Bot.PriceHigh)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load error: %v", err)
			}
			if cfg.Bot.PriceLow != tc.wantLow || cfg.Bot.PriceHigh != tc.wantHigh {
				t.Fatalf("band %d..%d, want %d..%d", cfg.Bot.PriceLow, cfg.Bot.PriceHigh, tc.wantLow, tc.wantHigh)
			}
		})
	}
}

func TestLoadKeepsExplicitBotSettings(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{"bot": {"result_limit": 3, "greeting": "Hi"}}`))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Bot.ResultLimit != 3 || cfg.Bot.Greeting != "Hi" {
		t.Fatalf("explicit bot settings lost: %+v", cfg.Bot)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SHOPCHAT_ADDR", ":9999")
	t.Setenv("SHOPCHAT_LOG_LEVEL", "debug")
	path := writeConfig(t, `{"basic_config": {"server_address": ":8090"}, "log": {"level": "warn"}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.BasicConfig.ServerAddress != ":9999" || cfg.Log.Level != "debug" {
		t.Fatalf("env overrides ignored: addr=%q level=%q", cfg.BasicConfig.ServerAddress, cfg.Log.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatalf("expected error for missing config")
	}
}
