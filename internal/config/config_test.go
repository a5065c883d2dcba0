package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"

	ngerrors "github.com/iamwavecut/ngprep/internal/errors"
	"github.com/iamwavecut/ngprep/internal/pipeline"
)

func TestLoadWithDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"NGPREP_DOT_PATH": dir,
	}))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DotPath != dir {
		t.Fatalf("DotPath = %q, want %q", cfg.DotPath, dir)
	}
	if cfg.Mode != string(pipeline.ModeLine) {
		t.Fatalf("Mode = %q, want %q", cfg.Mode, pipeline.ModeLine)
	}
	if !cfg.Cache.Enabled || cfg.Cache.MemorySize != 4096 || cfg.Cache.TTL != 720*time.Hour {
		t.Fatalf("unexpected cache defaults: %#v", cfg.Cache)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.HTTP.MaxBody != 1<<20 {
		t.Fatalf("unexpected http defaults: %#v", cfg.HTTP)
	}
	if cfg.EffectiveWorkers() < 1 {
		t.Fatalf("EffectiveWorkers = %d", cfg.EffectiveWorkers())
	}
}

func TestLoadWithOverrides(t *testing.T) {
	t.Parallel()

	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"NGPREP_DOT_PATH":      t.TempDir(),
		"NGPREP_MODE":          "jsonl",
		"NGPREP_WORKERS":       "3",
		"NGPREP_CACHE_ENABLED": "false",
		"NGPREP_HTTP_ADDR":     "127.0.0.1:9999",
		"MODE":                 "document",
	}))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Mode != string(pipeline.ModeJSONL) {
		t.Fatalf("Mode = %q, want %q", cfg.Mode, pipeline.ModeJSONL)
	}
	if cfg.EffectiveWorkers() != 3 {
		t.Fatalf("EffectiveWorkers = %d, want 3", cfg.EffectiveWorkers())
	}
	if cfg.Cache.Enabled {
		t.Fatal("cache should be disabled")
	}
	if cfg.HTTP.Addr != "127.0.0.1:9999" {
		t.Fatalf("HTTP.Addr = %q", cfg.HTTP.Addr)
	}
}

func TestLoadWithRejectsUnknownMode(t *testing.T) {
	t.Parallel()

	_, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"NGPREP_DOT_PATH": t.TempDir(),
		"NGPREP_MODE":     "xml",
	}))
	if !errors.Is(err, ngerrors.ErrUnsupportedMode) {
		t.Fatalf("expected ErrUnsupportedMode, got %v", err)
	}
}

func TestLoadWithFailureFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	for _, env := range []map[string]string{
		{"NGPREP_MODE": "bogus"},
		{"NGPREP_LOG_LEVEL": "9"},
		{"NGPREP_WORKERS": "many"},
	} {
		cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(env))
		if err == nil {
			t.Fatalf("%v: expected error", env)
		}
		if cfg != Defaults() {
			t.Fatalf("%v: expected defaults, got %#v", env, cfg)
		}
		if cfg.LogLevel != int(log.InfoLevel) || cfg.Mode != string(pipeline.ModeLine) {
			t.Fatalf("%v: unexpected defaults %#v", env, cfg)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	line := string(pipeline.ModeLine)

	base := Config{LogLevel: 4, Mode: line, HTTP: HTTP{MaxBody: 1}}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	broken := []Config{
		{LogLevel: 9, Mode: line, HTTP: HTTP{MaxBody: 1}},
		{LogLevel: 4, Mode: line, Workers: -1, HTTP: HTTP{MaxBody: 1}},
		{LogLevel: 4, Mode: line, Cache: Cache{MemorySize: -1}, HTTP: HTTP{MaxBody: 1}},
		{LogLevel: 4, Mode: line},
	}
	for i, cfg := range broken {
		if err := cfg.Validate(); !errors.Is(err, ngerrors.ErrInvalidConfig) {
			t.Fatalf("case %d: expected ErrInvalidConfig, got %v", i, err)
		}
	}
}
