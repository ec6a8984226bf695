package utils

import (
	"testing"
	"time"
)

func TestPostgresPoolConfigDefaults(t *testing.T) {
	cfg := PostgresPoolConfig{}.withDefaults()
	if cfg.MaxOpenConns <= 0 || cfg.MaxIdleConns <= 0 {
		t.Fatalf("expected positive pool defaults, got %+v", cfg)
	}
	if cfg.ConnMaxLifetime <= 0 {
		t.Fatalf("expected positive conn lifetime, got %v", cfg.ConnMaxLifetime)
	}
}

func TestPostgresPoolConfigKeepsExplicitValues(t *testing.T) {
	cfg := PostgresPoolConfig{MaxOpenConns: 3, MaxIdleConns: 2, ConnMaxLifetime: time.Minute}.withDefaults()
	if cfg.MaxOpenConns != 3 || cfg.MaxIdleConns != 2 || cfg.ConnMaxLifetime != time.Minute {
		t.Fatalf("explicit values overwritten: %+v", cfg)
	}
}
