package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	t.Setenv(EnvUsername, "")
	t.Setenv(EnvPassword, "")
	t.Setenv(EnvListen, "")

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Refresh != "@every 15m" {
		t.Errorf("Refresh = %q, want @every 15m", cfg.Refresh)
	}
	if cfg.Calendar.ExamColor != "rgb(255, 0 ,0)" {
		t.Errorf("ExamColor = %q, want rgb(255, 0 ,0)", cfg.Calendar.ExamColor)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config perms = %o, want 600", perm)
	}
}

func TestLoadPartialFileIsNormalized(t *testing.T) {
	t.Setenv(EnvUsername, "")
	t.Setenv(EnvPassword, "")
	t.Setenv(EnvListen, "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
listen: "127.0.0.1:9000"
portal:
  base_url: "https://portal.example/gestes/"
  username: alice
  mode: carrier-pigeon
calendar:
  exam_color: "rgb(255, 0, 0)"
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Listen != "127.0.0.1:9000" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if got, want := cfg.Portal.LoginURL(), "https://portal.example/gestes/connexion"; got != want {
		t.Errorf("LoginURL() = %q, want %q", got, want)
	}
	if cfg.Portal.Mode != ModeHTTP {
		t.Errorf("unknown mode should fall back to http, got %q", cfg.Portal.Mode)
	}
	if cfg.Calendar.ExamColor != "rgb(255, 0, 0)" {
		t.Errorf("explicit exam color must be kept verbatim, got %q", cfg.Calendar.ExamColor)
	}
	if cfg.Output.Courses != "data/calendars/courses.ics" {
		t.Errorf("Courses = %q", cfg.Output.Courses)
	}
	if cfg.Portal.Timeout() != 30*time.Second {
		t.Errorf("Timeout() = %v", cfg.Portal.Timeout())
	}
}

func TestApplyEnvOverridesCredentials(t *testing.T) {
	t.Setenv(EnvUsername, "envuser")
	t.Setenv(EnvPassword, "envpass")
	t.Setenv(EnvListen, ":7000")

	cfg := DefaultConfig()
	cfg.Portal.Username = "fileuser"
	cfg.ApplyEnv()

	if cfg.Portal.Username != "envuser" || cfg.Portal.Password != "envpass" {
		t.Errorf("credentials = %q/%q, want env values", cfg.Portal.Username, cfg.Portal.Password)
	}
	if cfg.Listen != ":7000" {
		t.Errorf("Listen = %q, want :7000", cfg.Listen)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"cron expression", func(c *Config) { c.Refresh = "*/15 * * * *" }, false},
		{"bad schedule", func(c *Config) { c.Refresh = "every so often" }, true},
		{"bad shift", func(c *Config) { c.Calendar.Shift = "one hour" }, true},
		{"cert without key", func(c *Config) { c.TLSCert = "cert.pem" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestScheduleNextIsFifteenMinutes(t *testing.T) {
	cfg := DefaultConfig()
	sched, err := cfg.Schedule()
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 8, 19, 8, 0, 0, 0, time.UTC)
	if got := sched.Next(now); !got.Equal(now.Add(15 * time.Minute)) {
		t.Errorf("Next() = %v, want %v", got, now.Add(15*time.Minute))
	}
}

func TestShiftDurationDefault(t *testing.T) {
	d, err := DefaultConfig().ShiftDuration()
	if err != nil {
		t.Fatal(err)
	}
	if d != -time.Hour {
		t.Errorf("ShiftDuration() = %v, want -1h", d)
	}
}
