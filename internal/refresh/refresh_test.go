package refresh

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gestescal/internal/config"
	"gestescal/internal/export"
	"gestescal/internal/portal"
	"gestescal/internal/portal/portaltest"
	"gestescal/internal/repair"
)

type stubFetcher struct {
	mu    sync.Mutex
	block string
	err   error
	calls int
	hook  func()
}

func (s *stubFetcher) Fetch(context.Context) (string, error) {
	s.mu.Lock()
	s.calls++
	block, err, hook := s.block, s.err, s.hook
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return block, err
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Output.CSV = filepath.Join(dir, "csv", "schedule.csv")
	cfg.Output.Courses = filepath.Join(dir, "calendars", "courses.ics")
	cfg.Output.Exams = filepath.Join(dir, "calendars", "exams.ics")
	cfg.Output.Snapshot = filepath.Join(dir, "json", "events.json")
	cfg.Output.LoginFailure = filepath.Join(dir, "debug", "login_failed.html")
	return cfg
}

func mustNew(t *testing.T, cfg *config.Config, f Fetcher) *Refresher {
	t.Helper()
	r, err := New(cfg, f)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

func countCSVRows(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return len(rows) - 1
}

func countEntries(t *testing.T, path string) int {
	t.Helper()
	entries, err := export.ReadCalendar(path)
	if err != nil {
		t.Fatalf("ReadCalendar(%s) error = %v", path, err)
	}
	return len(entries)
}

func TestRefreshOnceEndToEnd(t *testing.T) {
	p := portaltest.New(portaltest.EventsBlock)
	defer p.Close()

	cfg := testConfig(t)
	cfg.Portal.BaseURL = p.BaseURL()
	cfg.Portal.Username = portaltest.Username
	cfg.Portal.Password = portaltest.Password

	r := mustNew(t, cfg, portal.NewClient(cfg.Portal))
	if _, ok := r.LastSync(); ok {
		t.Fatal("LastSync() should be unset before the first cycle")
	}

	before := time.Now()
	if err := r.RefreshOnce(context.Background()); err != nil {
		t.Fatalf("RefreshOnce() error = %v", err)
	}

	last, ok := r.LastSync()
	if !ok || last.Before(before) {
		t.Errorf("LastSync() = %v, %v", last, ok)
	}
	if n := countCSVRows(t, cfg.Output.CSV); n != 5 {
		t.Errorf("CSV rows = %d, want 5", n)
	}
	courses := countEntries(t, cfg.Output.Courses)
	exams := countEntries(t, cfg.Output.Exams)
	if courses != 5 || exams != 0 {
		t.Errorf("courses = %d, exams = %d, want 5 and 0", courses, exams)
	}
	if _, err := os.Stat(cfg.Output.Snapshot); err != nil {
		t.Errorf("snapshot not written: %v", err)
	}
	if got := len(r.Events()); got != 5 {
		t.Errorf("Events() returned %d, want 5", got)
	}
}

func TestRefreshOnceSplitsExams(t *testing.T) {
	cfg := testConfig(t)
	r := mustNew(t, cfg, &stubFetcher{block: portaltest.ExamBlock})

	if err := r.RefreshOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c, e := countEntries(t, cfg.Output.Courses), countEntries(t, cfg.Output.Exams); c != 1 || e != 1 {
		t.Errorf("courses = %d, exams = %d, want 1 and 1", c, e)
	}
}

func TestRefreshOnceFetchFailure(t *testing.T) {
	cfg := testConfig(t)
	r := mustNew(t, cfg, &stubFetcher{err: portal.ErrTokenNotFound})

	err := r.RefreshOnce(context.Background())
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageFetch {
		t.Fatalf("RefreshOnce() error = %v, want fetch StageError", err)
	}
	if !errors.Is(err, portal.ErrTokenNotFound) {
		t.Errorf("error should wrap ErrTokenNotFound: %v", err)
	}
	if _, ok := r.LastSync(); ok {
		t.Error("LastSync() set after a failed cycle")
	}
	for _, path := range []string{cfg.Output.CSV, cfg.Output.Courses, cfg.Output.Exams} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("%s should not exist after a fetch failure", path)
		}
	}
}

func TestRefreshOnceDumpsRejectedLogin(t *testing.T) {
	cfg := testConfig(t)
	body := "<html>login form again</html>"
	r := mustNew(t, cfg, &stubFetcher{err: &portal.AuthError{StatusCode: 200, Body: body}})

	err := r.RefreshOnce(context.Background())
	if !errors.Is(err, portal.ErrAuthenticationFailed) {
		t.Fatalf("RefreshOnce() error = %v", err)
	}
	data, rerr := os.ReadFile(cfg.Output.LoginFailure)
	if rerr != nil {
		t.Fatalf("login dump missing: %v", rerr)
	}
	if string(data) != body {
		t.Errorf("dump = %q, want %q", data, body)
	}
}

func TestRefreshOnceParseFailure(t *testing.T) {
	cfg := testConfig(t)
	r := mustNew(t, cfg, &stubFetcher{block: `[{ id: 'x', room: 'A1' }]`})

	err := r.RefreshOnce(context.Background())
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageParse {
		t.Fatalf("RefreshOnce() error = %v, want parse StageError", err)
	}
	var pe *repair.ParseError
	if !errors.As(err, &pe) {
		t.Errorf("error should wrap *repair.ParseError: %v", err)
	}
}

func TestRefreshOnceWriteFailureKeepsEarlierFiles(t *testing.T) {
	cfg := testConfig(t)
	f := &stubFetcher{block: portaltest.EventsBlock}
	r := mustNew(t, cfg, f)

	if err := r.RefreshOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	first, _ := r.LastSync()

	// Make the courses target unwritable: its parent becomes a regular file.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	r.output.Courses = filepath.Join(blocker, "courses.ics")
	f.block = portaltest.ExamBlock

	err := r.RefreshOnce(context.Background())
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageWriteCourses {
		t.Fatalf("RefreshOnce() error = %v, want write-courses StageError", err)
	}
	var we *export.WriteError
	if !errors.As(err, &we) {
		t.Errorf("error should wrap *export.WriteError: %v", err)
	}

	if last, _ := r.LastSync(); !last.Equal(first) {
		t.Errorf("LastSync() moved to %v after a failed cycle", last)
	}
	// The CSV stage ran before the failure and is not rolled back.
	if n := countCSVRows(t, cfg.Output.CSV); n != 2 {
		t.Errorf("CSV rows = %d, want 2 from the second cycle", n)
	}
	if got := len(r.Events()); got != 5 {
		t.Errorf("Events() = %d, want the 5 from the last good cycle", got)
	}
}

func TestRefreshOnceSerialized(t *testing.T) {
	cfg := testConfig(t)

	var mu sync.Mutex
	active, maxActive := 0, 0
	f := &stubFetcher{block: portaltest.EventsBlock}
	f.hook = func() {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
	}
	r := mustNew(t, cfg, f)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.RefreshOnce(context.Background())
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("%d cycles overlapped", maxActive)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Refresh = "@every 1h"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ran := make(chan struct{}, 1)
	f := &stubFetcher{block: portaltest.EventsBlock}
	f.hook = func() {
		select {
		case ran <- struct{}{}:
		default:
		}
	}
	r := mustNew(t, cfg, f)

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not start a cycle")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls != 1 {
		t.Errorf("fetch called %d times, want 1", f.calls)
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Refresh = "every now and then"
	if _, err := New(cfg, &stubFetcher{}); err == nil {
		t.Error("New() should reject an invalid schedule")
	}
	if _, err := New(testConfig(t), nil); err == nil {
		t.Error("New() should reject a nil fetcher")
	}
}
