package config

import (
	"reflect"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CHROMIUM_CDP_PORT", "")
	t.Setenv("BLOCKSTATS_REFRESH_RATE", "")
	t.Setenv("REDIS_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got, want := cfg.CDPURL(), "http://127.0.0.1:9220"; got != want {
		t.Fatalf("CDPURL() = %q, want %q", got, want)
	}
	if cfg.RefreshRate != 4 {
		t.Fatalf("RefreshRate = %d, want 4", cfg.RefreshRate)
	}
	if cfg.RedisURL != "" {
		t.Fatalf("RedisURL = %q, want empty", cfg.RedisURL)
	}
	if len(cfg.PortCandidates) == 0 {
		t.Fatal("expected default port candidates")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CHROMIUM_CDP_ADDRESS", "10.0.0.2")
	t.Setenv("CHROMIUM_CDP_PORT", "9333")
	t.Setenv("BLOCKSTATS_LOG_LEVEL", "DEBUG")
	t.Setenv("BLOCKSTATS_PORT_CANDIDATES", " 127.0.0.1:9001, ,127.0.0.1:9002")
	t.Setenv("BLOCKSTATS_LAUNCH_BROWSER", "true")
	t.Setenv("REDIS_URL", "redis://localhost:6379/2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got, want := cfg.CDPURL(), "http://10.0.0.2:9333"; got != want {
		t.Fatalf("CDPURL() = %q, want %q", got, want)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if want := []string{"127.0.0.1:9001", "127.0.0.1:9002"}; !reflect.DeepEqual(cfg.PortCandidates, want) {
		t.Fatalf("PortCandidates = %v, want %v", cfg.PortCandidates, want)
	}
	if !cfg.LaunchBrowser {
		t.Fatal("LaunchBrowser = false, want true")
	}
	if cfg.RedisURL != "redis://localhost:6379/2" {
		t.Fatalf("RedisURL = %q", cfg.RedisURL)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		key, val string
	}{
		{"BLOCKSTATS_REFRESH_RATE", "0"},
		{"CHROMIUM_CDP_PORT", "70000"},
		{"BLOCKSTATS_BADGE_COLOR", "grey"},
	}
	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%s succeeded, want error", tc.key, tc.val)
			}
		})
	}
}

func TestUnparsableValuesFallBack(t *testing.T) {
	t.Setenv("BLOCKSTATS_REFRESH_RATE", "fast")
	t.Setenv("BLOCKSTATS_PORT_AUTO_FALLBACK", "maybe")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RefreshRate != 4 || !cfg.PortAutoFallback {
		t.Fatalf("got refresh %d fallback %v, want defaults", cfg.RefreshRate, cfg.PortAutoFallback)
	}
}
