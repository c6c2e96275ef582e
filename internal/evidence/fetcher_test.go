package evidence

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"hcletter/internal/match"
)

// evidenceServer serves "<path>" bodies and lets tests inject failures per path.
type evidenceServer struct {
	*httptest.Server
	mu       sync.Mutex
	calls    map[string]int
	failures map[string]func(n int) int // path -> status for nth call (0 = serve)
	delay    time.Duration
	inflight atomic.Int32
	peak     atomic.Int32
}

func newEvidenceServer(t *testing.T) *evidenceServer {
	s := &evidenceServer{calls: map[string]int{}, failures: map[string]func(int) int{}}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := s.inflight.Add(1)
		defer s.inflight.Add(-1)
		for {
			p := s.peak.Load()
			if cur <= p || s.peak.CompareAndSwap(p, cur) {
				break
			}
		}
		if s.delay > 0 {
			time.Sleep(s.delay)
		}
		s.mu.Lock()
		s.calls[r.URL.Path]++
		n := s.calls[r.URL.Path]
		fail := s.failures[r.URL.Path]
		s.mu.Unlock()
		if fail != nil {
			if code := fail(n); code != 0 {
				w.WriteHeader(code)
				return
			}
		}
		fmt.Fprintf(w, "<html>body of %s</html>", r.URL.Path)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *evidenceServer) callsFor(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	cfg.AttemptTimeout = 5 * time.Second
	return cfg
}

func groupDir(t *testing.T) string {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, MatchesDir), 0755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func twoMatches(base string) []*match.Match {
	return []*match.Match{
		{Seq: 0, A: "10", B: "20", PercentA: 95, PercentB: 90, BaseURL: base + "/r0.html"},
		{Seq: 1, A: "10", B: "30", PercentA: 40, PercentB: 40, BaseURL: base + "/r1.html"},
	}
}

func listFiles(t *testing.T, dir string) []string {
	entries, err := os.ReadDir(filepath.Join(dir, MatchesDir))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestDerive(t *testing.T) {
	m := &match.Match{Seq: 7, BaseURL: "http://moss/results/1/2/match7.html"}
	got := Derive(m, "/out/g")
	want := []Artifact{
		{Seq: 7, Kind: KindFull, URL: "http://moss/results/1/2/match7.html", Path: filepath.Join("/out/g", "matches", "match7.html")},
		{Seq: 7, Kind: KindTop, URL: "http://moss/results/1/2/match7-top.html", Path: filepath.Join("/out/g", "matches", "match7-top.html")},
		{Seq: 7, Kind: KindSideA, URL: "http://moss/results/1/2/match7-0.html", Path: filepath.Join("/out/g", "matches", "match7-0.html")},
		{Seq: 7, Kind: KindSideB, URL: "http://moss/results/1/2/match7-1.html", Path: filepath.Join("/out/g", "matches", "match7-1.html")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Derive (-want +got):\n%s", diff)
	}
	if RelPath(7, KindTop) != "matches/match7-top.html" {
		t.Errorf("RelPath = %q", RelPath(7, KindTop))
	}
}

func TestFetch_AllArtifacts(t *testing.T) {
	for _, policy := range []Policy{Concurrent, Serial} {
		t.Run(policy.String(), func(t *testing.T) {
			srv := newEvidenceServer(t)
			dir := groupDir(t)
			cfg := testConfig()
			cfg.Policy = policy

			if err := New(srv.Client(), cfg).Fetch(context.Background(), twoMatches(srv.URL), dir); err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			want := []string{
				"match0-0.html", "match0-1.html", "match0-top.html", "match0.html",
				"match1-0.html", "match1-1.html", "match1-top.html", "match1.html",
			}
			if diff := cmp.Diff(want, listFiles(t, dir)); diff != "" {
				t.Errorf("files (-want +got):\n%s", diff)
			}
			data, err := os.ReadFile(filepath.Join(dir, "matches", "match1-top.html"))
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(string(data), "/r1-top.html") {
				t.Errorf("unexpected body %q", data)
			}
		})
	}
}

func TestFetch_TransientFailuresRecovered(t *testing.T) {
	srv := newEvidenceServer(t)
	srv.failures["/r0-top.html"] = func(n int) int {
		if n <= 3 {
			return http.StatusServiceUnavailable
		}
		return 0
	}
	dir := groupDir(t)

	if err := New(srv.Client(), testConfig()).Fetch(context.Background(), twoMatches(srv.URL), dir); err != nil {
		t.Fatalf("Fetch: want success, got %v", err)
	}
	if got := srv.callsFor("/r0-top.html"); got != 4 {
		t.Errorf("calls for r0-top = %d, want 4", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "matches", "match0-top.html")); err != nil {
		t.Errorf("match0-top.html missing: %v", err)
	}
}

func TestFetch_PermanentFailureIsolated(t *testing.T) {
	srv := newEvidenceServer(t)
	srv.failures["/r1-1.html"] = func(int) int { return http.StatusNotFound }
	dir := groupDir(t)

	var observed atomic.Int32
	f := New(srv.Client(), testConfig(), WithObserver(func(a Artifact, err error) {
		observed.Add(1)
	}))
	err := f.Fetch(context.Background(), twoMatches(srv.URL), dir)

	var ee *Error
	if !errors.As(err, &ee) {
		t.Fatalf("want *Error, got %v", err)
	}
	if len(ee.Failures) != 1 {
		t.Fatalf("failures = %d, want 1: %v", len(ee.Failures), ee)
	}
	fl := ee.Failures[0]
	if fl.Artifact.Seq != 1 || fl.Artifact.Kind != KindSideB {
		t.Errorf("failure names match%d %s", fl.Artifact.Seq, fl.Artifact.Kind)
	}
	if fl.Attempts != 1 {
		t.Errorf("404 should not be retried, attempts = %d", fl.Attempts)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Errorf("cause not preserved: %v", fl.Err)
	}
	want := []string{
		"match0-0.html", "match0-1.html", "match0-top.html", "match0.html",
		"match1-0.html", "match1-top.html", "match1.html",
	}
	if diff := cmp.Diff(want, listFiles(t, dir)); diff != "" {
		t.Errorf("files (-want +got):\n%s", diff)
	}
	if observed.Load() != 8 {
		t.Errorf("observer calls = %d, want 8", observed.Load())
	}
}

func TestFetch_RetryBudgetExhausted(t *testing.T) {
	srv := newEvidenceServer(t)
	srv.failures["/r0.html"] = func(int) int { return http.StatusBadGateway }
	dir := groupDir(t)
	cfg := testConfig()
	cfg.Attempts = 3

	err := New(srv.Client(), cfg).Fetch(context.Background(), twoMatches(srv.URL)[:1], dir)
	var ee *Error
	if !errors.As(err, &ee) || len(ee.Failures) != 1 {
		t.Fatalf("want one failure, got %v", err)
	}
	if ee.Failures[0].Attempts != 3 || srv.callsFor("/r0.html") != 3 {
		t.Errorf("attempts = %d calls = %d, want 3", ee.Failures[0].Attempts, srv.callsFor("/r0.html"))
	}
	if !strings.Contains(ee.Error(), "502") {
		t.Errorf("final cause missing from message: %s", ee.Error())
	}
}

func TestFetch_TruncatedBodyLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4096")
		_, _ = w.Write([]byte("partial"))
	}))
	defer srv.Close()
	dir := groupDir(t)
	cfg := testConfig()
	cfg.Attempts = 2

	m := []*match.Match{{Seq: 0, BaseURL: srv.URL + "/r0.html"}}
	err := New(srv.Client(), cfg).Fetch(context.Background(), m, dir)
	var ee *Error
	if !errors.As(err, &ee) || len(ee.Failures) != 4 {
		t.Fatalf("want 4 failures, got %v", err)
	}
	if files := listFiles(t, dir); len(files) != 0 {
		t.Errorf("expected no files (final or temp), got %v", files)
	}
}

func TestFetch_ConcurrencyCeiling(t *testing.T) {
	srv := newEvidenceServer(t)
	srv.delay = 20 * time.Millisecond
	cfg := testConfig()
	cfg.Concurrency = 2
	cfg.PerHost = 0

	if err := New(srv.Client(), cfg).Fetch(context.Background(), twoMatches(srv.URL), groupDir(t)); err != nil {
		t.Fatal(err)
	}
	if p := srv.peak.Load(); p > 2 {
		t.Errorf("peak in-flight = %d, want <= 2", p)
	}
}

func TestFetch_PerHostCeiling(t *testing.T) {
	srv := newEvidenceServer(t)
	srv.delay = 10 * time.Millisecond
	cfg := testConfig()
	cfg.Concurrency = 8
	cfg.PerHost = 1

	if err := New(srv.Client(), cfg).Fetch(context.Background(), twoMatches(srv.URL), groupDir(t)); err != nil {
		t.Fatal(err)
	}
	if p := srv.peak.Load(); p != 1 {
		t.Errorf("peak in-flight = %d, want 1", p)
	}
}

func TestFetch_SharedCeilingAcrossCalls(t *testing.T) {
	srv := newEvidenceServer(t)
	srv.delay = 10 * time.Millisecond
	cfg := testConfig()
	cfg.Concurrency = 3
	cfg.PerHost = 0
	f := New(srv.Client(), cfg)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		dir := groupDir(t)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.Fetch(context.Background(), twoMatches(srv.URL), dir); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if p := srv.peak.Load(); p > 3 {
		t.Errorf("peak in-flight = %d, want <= 3", p)
	}
}

func TestFetch_RateLimited(t *testing.T) {
	srv := newEvidenceServer(t)
	cfg := testConfig()
	cfg.RatePerSecond = 20
	cfg.Burst = 1

	start := time.Now()
	if err := New(srv.Client(), cfg).Fetch(context.Background(), twoMatches(srv.URL), groupDir(t)); err != nil {
		t.Fatal(err)
	}
	// 8 requests at 20/s with no burst need 7 intervals of 50ms
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Errorf("8 requests took %s, want >= 300ms at 20 req/s", elapsed)
	}
}

func TestFetch_BusyHostDoesNotStarveOthers(t *testing.T) {
	slow := newEvidenceServer(t)
	slow.delay = 300 * time.Millisecond
	fast := newEvidenceServer(t)
	cfg := testConfig()
	cfg.Concurrency = 2
	cfg.PerHost = 1
	f := New(http.DefaultClient, cfg)

	done := make(chan error, 1)
	go func() { done <- f.Fetch(context.Background(), twoMatches(slow.URL), groupDir(t)) }()
	time.Sleep(50 * time.Millisecond) // let the slow host's queue build up

	start := time.Now()
	if err := f.Fetch(context.Background(), twoMatches(fast.URL)[:1], groupDir(t)); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("idle host waited %s behind a busy host", elapsed)
	}
	if p := slow.peak.Load(); p != 1 {
		t.Errorf("slow host peak in-flight = %d, want 1", p)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestFetch_FilesAreWorldReadable(t *testing.T) {
	srv := newEvidenceServer(t)
	dir := groupDir(t)
	if err := New(srv.Client(), testConfig()).Fetch(context.Background(), twoMatches(srv.URL), dir); err != nil {
		t.Fatal(err)
	}
	for _, name := range listFiles(t, dir) {
		info, err := os.Stat(filepath.Join(dir, MatchesDir, name))
		if err != nil {
			t.Fatal(err)
		}
		if perm := info.Mode().Perm(); perm != 0644 {
			t.Errorf("%s mode = %04o, want 0644", name, perm)
		}
	}
}

func TestFetch_MissingDirIsFatal(t *testing.T) {
	srv := newEvidenceServer(t)
	err := New(srv.Client(), testConfig()).Fetch(context.Background(), twoMatches(srv.URL), t.TempDir())
	if err == nil {
		t.Fatal("expected error for missing matches dir")
	}
	var ee *Error
	if errors.As(err, &ee) {
		t.Errorf("missing dir should not be an evidence Error: %v", err)
	}
	if srv.callsFor("/r0.html") != 0 {
		t.Error("no request should be issued")
	}
}

func TestFetch_NoMatches(t *testing.T) {
	if err := New(nil, testConfig()).Fetch(context.Background(), nil, groupDir(t)); err != nil {
		t.Errorf("empty match list: %v", err)
	}
}
