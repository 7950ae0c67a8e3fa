// Package capture fetches the portal through a headless Chromium instance
// for deployments where plain HTTP login is blocked.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"gestescal/internal/config"
	appLog "gestescal/internal/log"
	"gestescal/internal/portal"
)

const (
	DefaultTimeoutSec   = 60
	DefaultLoginWaitSec = 15
)

const passwordField = `input[name="password"]`

// BrowserFetcher logs in by filling the portal's form in Chromium and reads
// the resulting DOM. It yields the same raw events block as portal.Client.
type BrowserFetcher struct {
	LoginURL    string
	CalendarURL string
	Username    string
	Password    string
	UserAgent   string

	// Timeout bounds one whole session. If zero, DefaultTimeoutSec is used.
	Timeout time.Duration
	// LoginWait bounds how long the password field may stay on the page
	// after submitting. If zero, DefaultLoginWaitSec is used.
	LoginWait time.Duration
}

// NewBrowserFetcher builds a BrowserFetcher from portal settings.
func NewBrowserFetcher(cfg config.PortalConfig) *BrowserFetcher {
	return &BrowserFetcher{
		LoginURL:    cfg.LoginURL(),
		CalendarURL: cfg.CalendarURL(),
		Username:    cfg.Username,
		Password:    cfg.Password,
		UserAgent:   cfg.UserAgent,
		Timeout:     cfg.Timeout(),
	}
}

func (b *BrowserFetcher) validate() error {
	if b.LoginURL == "" {
		return fmt.Errorf("capture: LoginURL is required")
	}
	if b.Username == "" {
		return fmt.Errorf("capture: %w: no username configured", portal.ErrAuthenticationFailed)
	}
	return nil
}

func (b *BrowserFetcher) loginWait() time.Duration {
	if b.LoginWait <= 0 {
		return time.Duration(DefaultLoginWaitSec) * time.Second
	}
	return b.LoginWait
}

// loginRejected reports whether the password field outlived the login wait
// while the session itself was still alive: the portal re-rendered its form.
func loginRejected(waitErr, sessionErr error) bool {
	return errors.Is(waitErr, context.DeadlineExceeded) && sessionErr == nil
}

// Fetch starts a fresh browser context, submits the login form and returns
// the events block found in the post-login page.
func (b *BrowserFetcher) Fetch(parentCtx context.Context) (string, error) {
	if err := b.validate(); err != nil {
		return "", err
	}
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	if b.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, opts...)
	defer allocCancel()

	// A new browser context per call means a clean cookie store per cycle.
	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, timeout)
	defer timeoutCancel()

	appLog.Info("browser login start", "url", b.LoginURL, "user", b.Username)

	tasks := chromedp.Tasks{
		chromedp.Navigate(b.LoginURL),
		chromedp.WaitVisible(`input[name="username"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="username"]`, b.Username, chromedp.ByQuery),
		chromedp.SendKeys(passwordField, b.Password, chromedp.ByQuery),
		chromedp.Submit(passwordField, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return "", &portal.NetworkError{Op: "browser login", URL: b.LoginURL, Err: err}
	}

	// The body of the login page is ready before the post-login navigation
	// commits, so wait for the form itself to go away.
	waitCtx, waitCancel := context.WithTimeout(ctx, b.loginWait())
	waitErr := chromedp.Run(waitCtx, chromedp.WaitNotPresent(passwordField, chromedp.ByQuery))
	waitCancel()

	var page string
	if err := chromedp.Run(ctx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &page, chromedp.ByQuery),
	); err != nil {
		return "", &portal.NetworkError{Op: "browser login", URL: b.LoginURL, Err: err}
	}

	if loginRejected(waitErr, ctx.Err()) || !strings.Contains(page, b.Username) {
		return "", &portal.AuthError{StatusCode: 0, Body: page}
	}
	if waitErr != nil {
		return "", &portal.NetworkError{Op: "browser login", URL: b.LoginURL, Err: waitErr}
	}

	if b.CalendarURL != "" {
		err := chromedp.Run(ctx,
			chromedp.Navigate(b.CalendarURL),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.OuterHTML("html", &page, chromedp.ByQuery),
		)
		if err != nil {
			return "", &portal.NetworkError{Op: "browser get", URL: b.CalendarURL, Err: err}
		}
	}

	return portal.ExtractEventsBlock(page)
}
