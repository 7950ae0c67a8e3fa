// Package portal logs into the GESTES scheduling portal and pulls the raw
// FullCalendar events array out of the page served after login.
package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/publicsuffix"

	"gestescal/internal/config"
	appLog "gestescal/internal/log"
)

// Client talks to the portal over plain HTTP.
//
// Session cookies live in a jar that Fetch replaces on every call, so no
// state is carried from one refresh cycle to the next.
type Client struct {
	cfg config.PortalConfig

	mu   sync.Mutex
	http *http.Client
}

// NewClient creates a Client for the given portal settings.
func NewClient(cfg config.PortalConfig) *Client {
	c := &Client{cfg: cfg}
	c.http = &http.Client{Timeout: cfg.Timeout()}
	c.resetSession()
	return c
}

func (c *Client) resetSession() {
	// publicsuffix keeps the jar from accepting cookies scoped to a TLD.
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		appLog.Error("cookie jar init failed", err)
		return
	}
	c.http.Jar = jar
}

// Fetch runs one full session: token, login, optional calendar page, and
// extraction. It returns the raw events array text.
func (c *Client) Fetch(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetSession()

	token, err := c.FetchLoginToken(ctx)
	if err != nil {
		return "", err
	}

	page, err := c.Login(ctx, token, c.cfg.Username, c.cfg.Password)
	if err != nil {
		return "", err
	}

	if calURL := c.cfg.CalendarURL(); calURL != "" {
		page, err = c.get(ctx, calURL)
		if err != nil {
			return "", err
		}
	}

	block, err := ExtractEventsBlock(page)
	if err != nil {
		return "", err
	}
	appLog.Debug("events block extracted", "bytes", len(block))
	return block, nil
}

// FetchLoginToken loads the login page and returns its CSRF token.
func (c *Client) FetchLoginToken(ctx context.Context) (string, error) {
	page, err := c.get(ctx, c.cfg.LoginURL())
	if err != nil {
		return "", err
	}
	token, err := extractToken(page)
	if err != nil {
		return "", err
	}
	appLog.Debug("login token found", "url", redactURL(c.cfg.LoginURL()))
	return token, nil
}

// Login posts the login form and returns the response body. The portal
// answers a rejected login with its form again and a 200, so success is
// judged by the username appearing in the page.
func (c *Client) Login(ctx context.Context, token, username, password string) (string, error) {
	if username == "" {
		return "", fmt.Errorf("%w: no username configured", ErrAuthenticationFailed)
	}

	loginURL := c.cfg.LoginURL()
	form := url.Values{
		"_method":    {"POST"},
		"_csrfToken": {token},
		"username":   {username},
		"password":   {password},
		"mobile":     {"0"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.setHeaders(req)

	appLog.Info("portal login start", "url", redactURL(loginURL), "user", username)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &NetworkError{Op: "login", URL: redactURL(loginURL), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &NetworkError{Op: "login", URL: redactURL(loginURL), Err: err}
	}

	page := string(body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(page, username) {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: page}
	}

	appLog.Info("portal login success", "status", resp.StatusCode)
	return page, nil
}

func (c *Client) get(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &NetworkError{Op: "get", URL: redactURL(target), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &NetworkError{Op: "get", URL: redactURL(target), Err: errors.New(resp.Status)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &NetworkError{Op: "get", URL: redactURL(target), Err: err}
	}
	return string(body), nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	req.Header.Set("Referer", c.cfg.LoginURL())
}

// redactURL keeps scheme, host and path, dropping query and credentials.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "portal://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + u.Path
}
