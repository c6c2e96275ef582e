package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"

	"hcletter/internal/logging"
	"hcletter/internal/match"
)

// Config holds report retrieval settings.
type Config struct {
	Attempts       uint          // total tries per report; 0 means 3
	InitialBackoff time.Duration // first retry delay; 0 means 500ms
	Timeout        time.Duration // per attempt; 0 means 60s
}

// Client retrieves a report and hands it to a Parser.
type Client struct {
	HTTPClient *http.Client
	Parser     Parser
	Config     Config
}

// NewClient returns a client with the given config using http.DefaultClient
// and the MOSS adapter. Both may be replaced after construction.
func NewClient(cfg Config) *Client {
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{HTTPClient: http.DefaultClient, Parser: MOSSParser{}, Config: cfg}
}

// Fetch retrieves the report at locator and parses it. locator is an
// http(s) URL, a file:// URL or a local path.
func (c *Client) Fetch(ctx context.Context, locator string) (*match.Index, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return nil, &FetchError{URL: locator, Err: err}
	}

	var body []byte
	switch u.Scheme {
	case "http", "https":
		body, err = c.get(ctx, u)
	case "", "file":
		body, u, err = readLocal(u)
	default:
		err = &FetchError{URL: locator, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
	if err != nil {
		return nil, err
	}

	idx, err := c.Parser.Parse(bytes.NewReader(body), u)
	if err != nil {
		return nil, err
	}
	logging.New("report").Debug("report parsed", "url", locator, "matches", idx.Len())
	return idx, nil
}

func (c *Client) get(ctx context.Context, u *url.URL) ([]byte, error) {
	logger := logging.New("report")
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.Config.InitialBackoff

	var last *FetchError
	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		data, ferr := c.attempt(ctx, u.String())
		if ferr == nil {
			return data, nil
		}
		last = ferr
		if ferr.Status != 0 && !retryableStatus(ferr.Status) {
			return nil, backoff.Permanent(ferr)
		}
		return nil, ferr
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.Config.Attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Debug("report fetch retry", "url", u.String(), "error", err, "next", next)
		}),
	)
	if err == nil {
		return body, nil
	}
	if last != nil {
		return nil, last
	}
	return nil, &FetchError{URL: u.String(), Err: err}
}

func (c *Client) attempt(ctx context.Context, target string) ([]byte, *FetchError) {
	ctx, cancel := context.WithTimeout(ctx, c.Config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &FetchError{URL: target, Err: fmt.Errorf("new request: %w", err)}
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: target, Err: fmt.Errorf("do request: %w", err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{URL: target, Status: resp.StatusCode, Err: errors.New(resp.Status)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: target, Err: fmt.Errorf("read body: %w", err)}
	}
	return data, nil
}

func readLocal(u *url.URL) ([]byte, *url.URL, error) {
	path := u.Path
	if u.Scheme == "" {
		path = u.String()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, &FetchError{URL: path, Err: err}
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, nil, &FetchError{URL: path, Err: err}
	}
	return data, &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}, nil
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}
