package config

import (
	"strings"
	"testing"
	"time"
)

// setValidBase sets the env vars validation requires so individual tests
// can focus on one knob at a time.
func setValidBase(t *testing.T) {
	t.Helper()
	t.Setenv("REMOTE_BASE_URL", "https://api.example.com")
	t.Setenv("OWNER_ID", "owner-1")
}

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	setValidBase(t)
	t.Setenv("LOG_LEVEL", "verbose")
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	setValidBase(t)
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"

	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")

	t.Setenv("DB_PATH", "db.sqlite")
	t.Setenv("IMAGE_CACHE_DIR", "/tmp/imgs")
	t.Setenv("IMAGE_CACHE_MAX_BYTES", "1048576")
	t.Setenv("DETAIL_POLL_INTERVAL", "500ms")

	// Invalid numerics fall back to defaults.
	t.Setenv("RATE_RPS", "x")
	t.Setenv("RATE_BURST", "nope")

	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , , https://b.example ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "8088" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.ReadTimeout != 2*time.Second || cfg.WriteTimeout != 3*time.Second {
		t.Errorf("timeouts = %v / %v", cfg.ReadTimeout, cfg.WriteTimeout)
	}
	if cfg.MaxHeaderBytes != 8192 {
		t.Errorf("MaxHeaderBytes = %d", cfg.MaxHeaderBytes)
	}
	if cfg.GinMode != "release" {
		t.Errorf("GinMode = %q, want normalized release", cfg.GinMode)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if !cfg.LogPretty {
		t.Errorf("LogPretty = false, want true from 'yes'")
	}
	if cfg.OwnerID != "owner-1" || cfg.DBPath != "db.sqlite" {
		t.Errorf("app section = %q / %q", cfg.OwnerID, cfg.DBPath)
	}
	if cfg.Remote.BaseURL != "https://api.example.com" {
		t.Errorf("Remote.BaseURL = %q", cfg.Remote.BaseURL)
	}
	if cfg.ImageCache.Dir != "/tmp/imgs" || cfg.ImageCache.MaxMemoryBytes != 1<<20 {
		t.Errorf("image cache = %+v", cfg.ImageCache)
	}
	if cfg.Detail.PollInterval != 500*time.Millisecond || cfg.Detail.PollAttempts != 10 {
		t.Errorf("detail = %+v", cfg.Detail)
	}
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 {
		t.Errorf("rate limits = %v / %d, want defaults", cfg.RateRPS, cfg.RateBurst)
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[0] != want[0] || cfg.CORS.AllowedOrigins[1] != want[1] {
		t.Errorf("CORS origins = %v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"bad log level", "LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"negative timeout", "READ_TIMEOUT", "-1s", "timeouts"},
		{"missing remote", "REMOTE_BASE_URL", " ", "REMOTE_BASE_URL"},
		{"zero poll attempts", "DETAIL_POLL_ATTEMPTS", "0", "DETAIL_POLL_ATTEMPTS"},
		{"negative rps", "RATE_RPS", "-1", "RATE_RPS"},
		{"zero burst", "RATE_BURST", "0", "RATE_BURST"},
		{"zero image items", "IMAGE_CACHE_MAX_ITEMS", "0", "image cache"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setValidBase(t)
			t.Setenv(tc.key, tc.val)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestGetBool_RecognizedForms(t *testing.T) {
	cases := map[string]bool{
		"1": true, "true": true, "YES": true, "on": true,
		"0": false, "false": false, "No": false, "off": false,
	}
	for val, want := range cases {
		t.Setenv("SOME_FLAG", val)
		if got := getbool("SOME_FLAG", !want); got != want {
			t.Errorf("getbool(%q) = %v, want %v", val, got, want)
		}
	}
	// Unrecognized values keep the default.
	t.Setenv("SOME_FLAG", "maybe")
	if !getbool("SOME_FLAG", true) {
		t.Errorf("unrecognized value should keep default")
	}
}
