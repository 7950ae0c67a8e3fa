package capture

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gestescal/internal/config"
	"gestescal/internal/portal"
)

func TestNewBrowserFetcher(t *testing.T) {
	cfg := config.DefaultConfig().Portal
	cfg.Username = "pl03xyz"
	cfg.CalendarPath = "agenda"

	b := NewBrowserFetcher(cfg)
	if b.LoginURL != "https://www.gestes.info/gestes/connexion" {
		t.Errorf("LoginURL = %q", b.LoginURL)
	}
	if b.CalendarURL != "https://www.gestes.info/gestes/agenda" {
		t.Errorf("CalendarURL = %q", b.CalendarURL)
	}
	if b.Timeout != cfg.Timeout() {
		t.Errorf("Timeout = %v", b.Timeout)
	}
}

func TestFetchValidatesBeforeLaunching(t *testing.T) {
	tests := []struct {
		name string
		b    BrowserFetcher
		is   error
	}{
		{"no login url", BrowserFetcher{Username: "u"}, nil},
		{"no username", BrowserFetcher{LoginURL: "https://example.invalid/connexion"}, portal.ErrAuthenticationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.b.Fetch(context.Background())
			if err == nil {
				t.Fatal("Fetch() should fail")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("Fetch() error = %v, want %v", err, tt.is)
			}
		})
	}
}

func TestLoginWait(t *testing.T) {
	if got := (&BrowserFetcher{}).loginWait(); got != DefaultLoginWaitSec*time.Second {
		t.Errorf("default loginWait() = %v", got)
	}
	if got := (&BrowserFetcher{LoginWait: 2 * time.Second}).loginWait(); got != 2*time.Second {
		t.Errorf("loginWait() = %v, want 2s", got)
	}
}

func TestLoginRejected(t *testing.T) {
	tests := []struct {
		name       string
		waitErr    error
		sessionErr error
		want       bool
	}{
		{"form went away", nil, nil, false},
		{"form still present", context.DeadlineExceeded, nil, true},
		{"wrapped deadline", fmt.Errorf("wait: %w", context.DeadlineExceeded), nil, true},
		{"session timed out", context.DeadlineExceeded, context.DeadlineExceeded, false},
		{"session cancelled", context.Canceled, context.Canceled, false},
		{"browser failure", errors.New("websocket closed"), nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := loginRejected(tt.waitErr, tt.sessionErr); got != tt.want {
				t.Errorf("loginRejected() = %v, want %v", got, tt.want)
			}
		})
	}
}
