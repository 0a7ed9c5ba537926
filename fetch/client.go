// Package fetch retrieves asset bytes from upstream hosts. Direct HTTP is
// tried first; responses that look like anti-bot interstitials escalate to
// a headless browser fallback. Both paths sit behind capped retries with
// exponential backoff.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultMaxAttempts = 3
	defaultBaseBackoff = 500 * time.Millisecond

	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// Error reports a fetch that failed after all attempts and fallbacks.
type Error struct {
	URL      string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Result is the raw outcome of a fetch before classification.
type Result struct {
	Body         []byte
	DeclaredType string
	ViaBrowser   bool
}

// HeaderProfile is the browser-like header set sent to a given upstream
// host. Several upstreams reject generic clients or foreign referers, so
// profiles are tuned per host.
type HeaderProfile struct {
	UserAgent string
	Accept    string
	Referer   string
}

type Options struct {
	Timeout     time.Duration
	MaxAttempts int
	BaseBackoff time.Duration

	// Profiles maps hostname to its header profile. Hosts without an
	// entry get the default profile.
	Profiles map[string]HeaderProfile

	// Browser, when set, is the headless fallback for responses that a
	// plain HTTP client cannot get past.
	Browser Browser

	// AllowedHosts restricts sources to the named upstream hosts.
	AllowedHosts []string

	// AllowPrivate disables the private-address guard. Tests only.
	AllowPrivate bool
}

func DefaultOptions() Options {
	return Options{
		Timeout:     defaultTimeout,
		MaxAttempts: defaultMaxAttempts,
		BaseBackoff: defaultBaseBackoff,
	}
}

type Client struct {
	http        *http.Client
	browser     Browser
	guard       *HostGuard
	profiles    map[string]HeaderProfile
	maxAttempts int
	baseBackoff time.Duration
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = defaultBaseBackoff
	}
	return &Client{
		http:        &http.Client{Timeout: opts.Timeout},
		browser:     opts.Browser,
		guard:       NewHostGuard(opts.AllowedHosts, opts.AllowPrivate),
		profiles:    opts.Profiles,
		maxAttempts: opts.MaxAttempts,
		baseBackoff: opts.BaseBackoff,
	}
}

// Fetch retrieves rawURL. Within one attempt: direct GET, then browser
// fallback when the direct path fails or returns text/html (a strong
// signal of an anti-bot or redirect page). Attempts are retried with
// exponential backoff plus jitter.
func (c *Client) Fetch(ctx context.Context, rawURL string) (Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Result{}, &Error{URL: rawURL, Attempts: 0, Err: fmt.Errorf("parse url: %w", err)}
	}
	if err := c.guard.Check(u); err != nil {
		return Result{}, &Error{URL: rawURL, Attempts: 0, Err: err}
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{}, &Error{URL: rawURL, Attempts: attempt - 1, Err: err}
		}

		res, err := c.fetchOnce(ctx, u)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if attempt < c.maxAttempts {
			backoff := jitteredBackoff(c.baseBackoff, attempt)
			slog.Warn("rehost: fetch attempt failed, backing off",
				"url", rawURL, "attempt", attempt, "backoff", backoff, "error", err)
			if err := sleepWithContext(ctx, backoff); err != nil {
				return Result{}, &Error{URL: rawURL, Attempts: attempt, Err: err}
			}
		}
	}

	return Result{}, &Error{URL: rawURL, Attempts: c.maxAttempts, Err: lastErr}
}

func (c *Client) fetchOnce(ctx context.Context, u *url.URL) (Result, error) {
	res, directErr := c.direct(ctx, u)
	if directErr == nil && !isHTML(res.DeclaredType) {
		return res, nil
	}

	if c.browser == nil {
		if directErr != nil {
			return Result{}, directErr
		}
		return Result{}, fmt.Errorf("got %q from direct fetch and no browser fallback configured", res.DeclaredType)
	}

	slog.Debug("rehost: escalating to browser fetch", "url", u.String(), "direct_error", directErr)
	body, declared, err := c.browser.Fetch(ctx, u.String())
	if err != nil {
		if directErr != nil {
			return Result{}, errors.Join(directErr, err)
		}
		return Result{}, err
	}
	return Result{Body: body, DeclaredType: normalizeType(declared), ViaBrowser: true}, nil
}

func (c *Client) direct(ctx context.Context, u *url.URL) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Result{}, err
	}
	c.applyProfile(req, u)

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, err
	}
	if len(body) == 0 {
		return Result{}, fmt.Errorf("empty response body")
	}

	return Result{
		Body:         body,
		DeclaredType: normalizeType(resp.Header.Get("Content-Type")),
	}, nil
}

func (c *Client) applyProfile(req *http.Request, u *url.URL) {
	profile, ok := c.profiles[strings.ToLower(u.Hostname())]
	if !ok {
		profile = HeaderProfile{}
	}
	if profile.UserAgent == "" {
		profile.UserAgent = defaultUserAgent
	}
	if profile.Accept == "" {
		profile.Accept = "image/png,image/jpeg,image/*;q=0.9,*/*;q=0.8"
	}
	if profile.Referer == "" {
		profile.Referer = u.Scheme + "://" + u.Host + "/"
	}
	req.Header.Set("User-Agent", profile.UserAgent)
	req.Header.Set("Accept", profile.Accept)
	req.Header.Set("Referer", profile.Referer)
}

func isHTML(contentType string) bool {
	return strings.HasPrefix(contentType, "text/html")
}

func normalizeType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

func jitteredBackoff(base time.Duration, attempt int) time.Duration {
	backoff := base << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(backoff)/2 + 1))
	return backoff + jitter
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
