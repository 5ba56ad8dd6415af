package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataPath != "./car_ad_display.csv" {
		t.Errorf("DataPath: got %q", cfg.DataPath)
	}
	if cfg.Server.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout: got %v", cfg.Server.RequestTimeout)
	}
	if cfg.Postgres.Enabled() {
		t.Error("postgres should be disabled without POSTGRES_HOST")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9000")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_PASSWORD", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("Addr: got %q", cfg.Server.Addr)
	}
	want := "host=db port=5432 user=dashboard password=secret dbname=cars sslmode=disable"
	if got := cfg.Postgres.DSN(); got != want {
		t.Errorf("DSN: got %q, want %q", got, want)
	}
}
