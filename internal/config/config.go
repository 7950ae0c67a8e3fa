package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values. Credentials are meant to
// come from here rather than from the YAML file.
const (
	EnvUsername = "GESTES_USERNAME"
	EnvPassword = "GESTES_PASSWORD"
	EnvListen   = "GESTES_LISTEN"
)

// Fetch modes for PortalConfig.Mode.
const (
	ModeHTTP    = "http"
	ModeBrowser = "browser"
)

const (
	defaultListen      = "0.0.0.0:5000"
	defaultRefresh     = "@every 15m"
	defaultBaseURL     = "https://www.gestes.info/gestes"
	defaultLoginPath   = "/connexion"
	defaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36"
	defaultTimeoutSec  = 30
	defaultExamColor   = "rgb(255, 0 ,0)"
	defaultLocation    = "Unknown"
	defaultShift       = "-1h"
	defaultCSVPath     = "data/csv/schedule.csv"
	defaultCoursesPath = "data/calendars/courses.ics"
	defaultExamsPath   = "data/calendars/exams.ics"
	defaultLoginDump   = "data/debug/login_failed.html"
)

// PortalConfig describes how to reach and authenticate against the portal.
type PortalConfig struct {
	// BaseURL is the portal root, e.g. "https://www.gestes.info/gestes".
	BaseURL string `yaml:"base_url" json:"base_url"`
	// LoginPath is appended to BaseURL for both the token GET and login POST.
	LoginPath string `yaml:"login_path" json:"login_path"`
	// CalendarPath, if set, is fetched after login and scanned instead of
	// the login response body.
	CalendarPath string `yaml:"calendar_path" json:"calendar_path"`

	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`

	UserAgent      string `yaml:"user_agent" json:"user_agent"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`

	// Mode selects the fetch backend: "http" (default) or "browser".
	Mode string `yaml:"mode" json:"mode"`
}

// OutputConfig lists the files produced by each refresh cycle.
type OutputConfig struct {
	CSV     string `yaml:"csv" json:"csv"`
	Courses string `yaml:"courses" json:"courses"`
	Exams   string `yaml:"exams" json:"exams"`
	// Snapshot is an optional pretty JSON dump of the parsed events.
	Snapshot string `yaml:"snapshot" json:"snapshot"`
	// LoginFailure receives the portal response body when login fails.
	LoginFailure string `yaml:"login_failure" json:"login_failure"`
}

// CalendarConfig controls classification and ICS rendering.
type CalendarConfig struct {
	// ExamColor is compared byte-for-byte with each event's backgroundColor.
	ExamColor string `yaml:"exam_color" json:"exam_color"`
	// Location is written to every VEVENT.
	Location string `yaml:"location" json:"location"`
	// Shift is added to every start/end before writing (Go duration syntax).
	Shift string `yaml:"shift" json:"shift"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
// Password may be a bcrypt hash (as produced by `gestescal hash-password`).
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Refresh is a robfig/cron schedule ("@every 15m", "*/15 * * * *").
	// The next activation is computed after each cycle finishes.
	Refresh string `yaml:"refresh" json:"refresh"`

	Portal   PortalConfig   `yaml:"portal" json:"portal"`
	Output   OutputConfig   `yaml:"output" json:"output"`
	Calendar CalendarConfig `yaml:"calendar" json:"calendar"`

	// BasicAuth, if non-nil, protects every endpoint except /health and
	// the calendar feeds.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string `yaml:"tls_cert,omitempty" json:"tls_cert,omitempty"`
	TLSKey  string `yaml:"tls_key,omitempty" json:"tls_key,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   defaultListen,
		LogLevel: "info",
		Refresh:  defaultRefresh,
		Portal: PortalConfig{
			BaseURL:        defaultBaseURL,
			LoginPath:      defaultLoginPath,
			UserAgent:      defaultUserAgent,
			TimeoutSeconds: defaultTimeoutSec,
			Mode:           ModeHTTP,
		},
		Output: OutputConfig{
			CSV:          defaultCSVPath,
			Courses:      defaultCoursesPath,
			Exams:        defaultExamsPath,
			LoginFailure: defaultLoginDump,
		},
		Calendar: CalendarConfig{
			ExamColor: defaultExamColor,
			Location:  defaultLocation,
			Shift:     defaultShift,
		},
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Refresh == "" {
		c.Refresh = defaultRefresh
	}

	p := &c.Portal
	if p.BaseURL == "" {
		p.BaseURL = defaultBaseURL
	}
	p.BaseURL = strings.TrimRight(p.BaseURL, "/")
	if p.LoginPath == "" {
		p.LoginPath = defaultLoginPath
	}
	if p.UserAgent == "" {
		p.UserAgent = defaultUserAgent
	}
	if p.TimeoutSeconds <= 0 {
		p.TimeoutSeconds = defaultTimeoutSec
	}
	switch p.Mode {
	case ModeHTTP, ModeBrowser:
	default:
		p.Mode = ModeHTTP
	}

	if c.Output.CSV == "" {
		c.Output.CSV = defaultCSVPath
	}
	if c.Output.Courses == "" {
		c.Output.Courses = defaultCoursesPath
	}
	if c.Output.Exams == "" {
		c.Output.Exams = defaultExamsPath
	}

	// ExamColor is intentionally not trimmed: its spacing is significant.
	if c.Calendar.ExamColor == "" {
		c.Calendar.ExamColor = defaultExamColor
	}
	if c.Calendar.Location == "" {
		c.Calendar.Location = defaultLocation
	}
	if c.Calendar.Shift == "" {
		c.Calendar.Shift = defaultShift
	}
}

// ApplyEnv overrides values from the process environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvUsername); v != "" {
		c.Portal.Username = v
	}
	if v := os.Getenv(EnvPassword); v != "" {
		c.Portal.Password = v
	}
	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if _, err := c.Schedule(); err != nil {
		return err
	}
	if _, err := c.ShiftDuration(); err != nil {
		return err
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.New("config: tls_cert and tls_key must be set together")
	}
	return nil
}

// Schedule parses Refresh into a cron schedule.
func (c *Config) Schedule() (cron.Schedule, error) {
	sched, err := cron.ParseStandard(c.Refresh)
	if err != nil {
		return nil, fmt.Errorf("config: invalid refresh schedule %q: %w", c.Refresh, err)
	}
	return sched, nil
}

// ShiftDuration parses Calendar.Shift.
func (c *Config) ShiftDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.Calendar.Shift)
	if err != nil {
		return 0, fmt.Errorf("config: invalid calendar shift %q: %w", c.Calendar.Shift, err)
	}
	return d, nil
}

// LoginURL is BaseURL + LoginPath.
func (p PortalConfig) LoginURL() string {
	return p.BaseURL + ensureLeadingSlash(p.LoginPath)
}

// CalendarURL returns the optional post-login page URL, or "" when unset.
func (p PortalConfig) CalendarURL() string {
	if p.CalendarPath == "" {
		return ""
	}
	return p.BaseURL + ensureLeadingSlash(p.CalendarPath)
}

// Timeout returns the per-request timeout.
func (p PortalConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

func ensureLeadingSlash(s string) string {
	if strings.HasPrefix(s, "/") {
		return s
	}
	return "/" + s
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is unmarshalled and normalized.
//
// Environment overrides are applied in both cases, after normalization.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				cfg.ApplyEnv()
				return cfg, err
			}
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	cfg.ApplyEnv()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".gestescal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
