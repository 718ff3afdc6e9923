package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/odvcencio/codehub/internal/config"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Fatalf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestServerOptionsCarriesServerConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Server.TrustedProxies = []string{"10.0.0.0/8"}
	cfg.Server.AdminCIDRs = []string{"192.0.2.0/24"}
	cfg.Server.CORSAllowedOrigins = []string{"https://app.example.com"}
	cfg.Server.EnablePprof = true

	opts := serverOptions(cfg)
	if !reflect.DeepEqual(opts.TrustedProxies, cfg.Server.TrustedProxies) {
		t.Fatalf("TrustedProxies = %v", opts.TrustedProxies)
	}
	if !reflect.DeepEqual(opts.AdminCIDRs, cfg.Server.AdminCIDRs) {
		t.Fatalf("AdminCIDRs = %v", opts.AdminCIDRs)
	}
	if !reflect.DeepEqual(opts.CORSAllowedOrigins, cfg.Server.CORSAllowedOrigins) {
		t.Fatalf("CORSAllowedOrigins = %v", opts.CORSAllowedOrigins)
	}
	if opts.RateLimitRPS != 20 || opts.RateLimitBurst != 40 || opts.MaxBodyBytes != 32<<20 || !opts.EnablePprof {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestTokenDurationFallsBackToADay(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.TokenDuration = "90m"
	if got := tokenDuration(cfg); got != 90*time.Minute {
		t.Fatalf("tokenDuration = %v, want 90m", got)
	}
	for _, bad := range []string{"", "soon", "-1h"} {
		cfg.Auth.TokenDuration = bad
		if got := tokenDuration(cfg); got != 24*time.Hour {
			t.Fatalf("tokenDuration(%q) = %v, want 24h", bad, got)
		}
	}
}

func TestOpenMigratedDBRejectsUnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = "oracle"
	if _, err := openMigratedDB(context.Background(), cfg); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}

func TestOpenMigratedDBCreatesSQLiteSchema(t *testing.T) {
	cfg := config.Default()
	cfg.Database.DSN = filepath.Join(t.TempDir(), "codehub.db")
	db, err := openMigratedDB(context.Background(), cfg)
	if err != nil {
		t.Fatalf("openMigratedDB: %v", err)
	}
	defer db.Close()
	ids, err := db.ListUserIDs(context.Background())
	if err != nil {
		t.Fatalf("ListUserIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty database, got %d users", len(ids))
	}
}

func TestInitTracingIsNoopWithoutEndpoint(t *testing.T) {
	t.Setenv("CODEHUB_OTEL_EXPORTER_OTLP_ENDPOINT", "")
	shutdown, err := initTracing(context.Background())
	if err != nil {
		t.Fatalf("initTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestOTLPOptionsCount(t *testing.T) {
	tests := []struct {
		endpoint string
		insecure bool
		want     int
	}{
		{endpoint: "collector:4318", want: 1},
		{endpoint: "collector:4318", insecure: true, want: 2},
		{endpoint: "http://collector:4318", want: 2},
		{endpoint: "https://collector:4318/otlp/v1/traces", want: 2},
	}
	for _, tt := range tests {
		if got := len(otlpOptions(tt.endpoint, tt.insecure)); got != tt.want {
			t.Fatalf("otlpOptions(%q, %v) produced %d options, want %d", tt.endpoint, tt.insecure, got, tt.want)
		}
	}
}
