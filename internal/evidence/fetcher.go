package evidence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"hcletter/internal/logging"
	"hcletter/internal/match"
)

// Policy selects how artifact retrievals are scheduled.
type Policy int

const (
	// Concurrent runs every artifact at once, bounded by Config.Concurrency.
	Concurrent Policy = iota
	// Serial resolves one match's artifacts fully before starting the next.
	Serial
)

func (p Policy) String() string {
	if p == Serial {
		return "serial"
	}
	return "concurrent"
}

// Config bounds and tunes retrieval.
type Config struct {
	Policy         Policy
	Concurrency    int     // global ceiling on in-flight requests
	PerHost        int     // per-host ceiling; 0 disables
	RatePerSecond  float64 // request rate; 0 disables
	Burst          int
	Attempts       uint // total tries per artifact
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
	ChunkSize      int // streaming buffer size in bytes
}

// DefaultConfig returns the settings used by the CLI unless overridden.
func DefaultConfig() Config {
	return Config{
		Policy:         Concurrent,
		Concurrency:    8,
		PerHost:        4,
		Burst:          1,
		Attempts:       5,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		AttemptTimeout: 60 * time.Second,
		ChunkSize:      32 << 10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.Burst <= 0 {
		c.Burst = d.Burst
	}
	if c.Attempts == 0 {
		c.Attempts = d.Attempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = d.AttemptTimeout
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	return c
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithObserver registers fn to be called once per artifact with its final
// outcome (nil on success). fn may be called from several goroutines.
func WithObserver(fn func(Artifact, error)) Option {
	return func(f *Fetcher) { f.observe = fn }
}

// WithLogger replaces the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// Fetcher retrieves evidence artifacts. Its concurrency ceiling spans every
// Fetch call made on it, so one Fetcher per case bounds all of the case's groups.
type Fetcher struct {
	client  *http.Client
	cfg     Config
	global  *semaphore.Weighted
	limiter *rate.Limiter
	observe func(Artifact, error)
	logger  *slog.Logger

	mu    sync.Mutex
	hosts map[string]*semaphore.Weighted
}

// New returns a Fetcher. client may be nil to use http.DefaultClient.
func New(client *http.Client, cfg Config, opts ...Option) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	cfg = cfg.withDefaults()
	f := &Fetcher{
		client: client,
		cfg:    cfg,
		global: semaphore.NewWeighted(int64(cfg.Concurrency)),
		hosts:  make(map[string]*semaphore.Weighted),
		logger: logging.New("evidence"),
	}
	if cfg.RatePerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Config returns the effective configuration.
func (f *Fetcher) Config() Config { return f.cfg }

// Fetch writes the four artifacts of every match under dir/matches, which
// must already exist. It returns *Error listing every artifact that failed
// after its retry budget; one failure never cancels sibling retrievals.
func (f *Fetcher) Fetch(ctx context.Context, matches []*match.Match, dir string) error {
	target := filepath.Join(dir, MatchesDir)
	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("evidence dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("evidence dir %s: not a directory", target)
	}

	var arts []Artifact
	for _, m := range matches {
		arts = append(arts, Derive(m, dir)...)
	}

	results := make([]*Failure, len(arts))
	switch f.cfg.Policy {
	case Serial:
		for i, a := range arts {
			results[i] = f.retrieve(ctx, a)
		}
	default:
		var g errgroup.Group
		for i, a := range arts {
			g.Go(func() error {
				results[i] = f.retrieve(ctx, a)
				return nil
			})
		}
		_ = g.Wait() // failures are collected in results
	}

	var failures []Failure
	for _, r := range results {
		if r != nil {
			failures = append(failures, *r)
		}
	}
	if len(failures) == 0 {
		return nil
	}
	sort.Slice(failures, func(i, j int) bool {
		a, b := failures[i].Artifact, failures[j].Artifact
		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}
		return a.Kind < b.Kind
	})
	return &Error{Failures: failures}
}

func (f *Fetcher) retrieve(ctx context.Context, a Artifact) *Failure {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.cfg.InitialBackoff
	b.MaxInterval = f.cfg.MaxBackoff

	attempts := 0
	var last error
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := f.attempt(ctx, a)
		if err == nil {
			return struct{}{}, nil
		}
		last = err
		var se *StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(f.cfg.Attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			f.logger.Debug("artifact retry", "match", a.Seq, "kind", a.Kind.String(), "error", err, "next", next)
		}),
	)
	if err == nil {
		f.logger.Debug("downloaded", "url", a.URL, "path", a.Path)
		if f.observe != nil {
			f.observe(a, nil)
		}
		return nil
	}
	if last == nil {
		last = err
	}
	f.logger.Warn("artifact failed", "match", a.Seq, "kind", a.Kind.String(), "url", a.URL, "attempts", attempts, "error", last)
	if f.observe != nil {
		f.observe(a, last)
	}
	return &Failure{Artifact: a, Attempts: attempts, Err: last}
}

func (f *Fetcher) attempt(ctx context.Context, a Artifact) error {
	// nothing is held while waiting on the limiter
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}
	release, err := f.acquire(ctx, a.URL)
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, f.cfg.AttemptTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("new request: %w", err))
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &StatusError{URL: a.URL, Code: resp.StatusCode}
	}
	return writeAtomic(a.Path, resp.Body, f.cfg.ChunkSize)
}

// acquire takes the per-host slot, when configured, before the global one,
// so requests queued behind a busy host never pin global slots.
func (f *Fetcher) acquire(ctx context.Context, rawURL string) (func(), error) {
	host := f.hostSem(rawURL)
	if host != nil {
		if err := host.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}
	if err := f.global.Acquire(ctx, 1); err != nil {
		if host != nil {
			host.Release(1)
		}
		return nil, err
	}
	return func() {
		f.global.Release(1)
		if host != nil {
			host.Release(1)
		}
	}, nil
}

func (f *Fetcher) hostSem(rawURL string) *semaphore.Weighted {
	if f.cfg.PerHost <= 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.hosts[u.Host]
	if !ok {
		s = semaphore.NewWeighted(int64(f.cfg.PerHost))
		f.hosts[u.Host] = s
	}
	return s
}
