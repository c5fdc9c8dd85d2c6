package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"docuflex/internal/extract"
)

type fakeDownloader struct {
	mu     sync.Mutex
	fail   map[string]bool
	calls  map[string]int
	starts []time.Duration
}

func (f *fakeDownloader) Download(ctx context.Context, link extract.Link) (Download, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[link.ID]++
	if f.fail[link.ID] {
		return Download{}, ErrDownloadFailed
	}
	return Download{SizeLabel: "1.00 MB"}, nil
}

type fakeSink struct {
	mu    sync.Mutex
	filed []FileRequest
	err   error
}

func (f *fakeSink) FileImport(ctx context.Context, req FileRequest) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", "", f.err
	}
	f.filed = append(f.filed, req)
	return "folder-" + req.Link.ID, "doc-" + req.Link.ID, nil
}

func links(n int) []extract.Link {
	out := make([]extract.Link, n)
	for i := range out {
		out[i] = extract.Link{ID: fmt.Sprintf("import-%d-1", i), FolderName: fmt.Sprintf("Row %d", i), URL: fmt.Sprintf("https://example.com/%d.pdf", i), Cell: fmt.Sprintf("B%d", i+1)}
	}
	return out
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestStartRunsEveryUnit(t *testing.T) {
	dl := &fakeDownloader{fail: map[string]bool{"import-1-1": true}}
	sink := &fakeSink{}
	var mu sync.Mutex
	var waits []time.Duration
	im := New(dl, sink, Options{Stagger: 500 * time.Millisecond, Sleep: func(_ context.Context, d time.Duration) error {
		mu.Lock()
		waits = append(waits, d)
		mu.Unlock()
		return nil
	}}, nil)

	job := im.NewJob("root", "user-1", links(3))
	n, err := im.Start(context.Background(), job, false)
	if err != nil || n != 3 {
		t.Fatalf("expected 3 scheduled units, got %d, %v", n, err)
	}
	job.Wait()

	counts := job.Counts()
	if counts[StatusSuccess] != 2 || counts[StatusFailed] != 1 {
		t.Fatalf("expected 2 success and 1 failed, got %v", counts)
	}
	if !job.HasFailed() || job.Running() {
		t.Fatal("expected a settled job with failures")
	}
	if len(sink.filed) != 2 {
		t.Fatalf("expected 2 filed imports, got %d", len(sink.filed))
	}
	for _, req := range sink.filed {
		if req.ParentID != "root" || req.OwnerID != "user-1" {
			t.Fatalf("unexpected file request %+v", req)
		}
	}

	staggers := map[time.Duration]bool{}
	for _, w := range waits {
		staggers[w] = true
	}
	for _, want := range []time.Duration{0, 500 * time.Millisecond, time.Second} {
		if !staggers[want] {
			t.Fatalf("expected a unit staggered by %v, got %v", want, waits)
		}
	}
}

func TestRetryFailedOnlyReprocessesFailures(t *testing.T) {
	dl := &fakeDownloader{fail: map[string]bool{"import-0-1": true}}
	sink := &fakeSink{}
	im := New(dl, sink, Options{Sleep: noSleep}, nil)
	job := im.NewJob("root", "user-1", links(3))

	if _, err := im.Start(context.Background(), job, false); err != nil {
		t.Fatalf("start: %v", err)
	}
	job.Wait()

	dl.mu.Lock()
	dl.fail = nil
	dl.mu.Unlock()

	n, err := im.Start(context.Background(), job, true)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 retried unit, got %d, %v", n, err)
	}
	job.Wait()

	if dl.calls["import-0-1"] != 2 || dl.calls["import-1-1"] != 1 {
		t.Fatalf("expected only the failed unit to be retried, got %v", dl.calls)
	}
	if job.HasFailed() {
		t.Fatal("expected no failures after retry")
	}
	if _, err := im.Start(context.Background(), job, true); !errors.Is(err, ErrNothingToImport) {
		t.Fatalf("expected ErrNothingToImport, got %v", err)
	}
}

func TestSinkErrorMarksUnitFailed(t *testing.T) {
	im := New(&fakeDownloader{}, &fakeSink{err: errors.New("target folder gone")}, Options{Sleep: noSleep}, nil)
	job := im.NewJob("gone", "user-1", links(1))
	if _, err := im.Start(context.Background(), job, false); err != nil {
		t.Fatalf("start: %v", err)
	}
	job.Wait()
	unit := job.Units()[0]
	if unit.Status != StatusFailed || unit.Err != "target folder gone" {
		t.Fatalf("expected failed unit with sink error, got %+v", unit)
	}
}

func TestJobLookup(t *testing.T) {
	im := New(&fakeDownloader{}, &fakeSink{}, Options{Sleep: noSleep}, nil)
	job := im.NewJob("root", "user-1", links(1))
	got, err := im.Job(job.ID)
	if err != nil || got != job {
		t.Fatalf("expected job lookup to succeed, got %v", err)
	}
	if _, err := im.Job("nope"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestSimulatedDownloader(t *testing.T) {
	rolls := []float64{0.5, 0.1, 0.2}
	i := 0
	var slept time.Duration
	d := SimulatedDownloader{
		MinLatency:  time.Second,
		MaxLatency:  2 * time.Second,
		SuccessRate: 80,
		Rand:        func() float64 { r := rolls[i%len(rolls)]; i++; return r },
		Sleep:       func(_ context.Context, dur time.Duration) error { slept = dur; return nil },
	}
	out, err := d.Download(context.Background(), extract.Link{URL: "https://example.com/a.pdf"})
	if err != nil {
		t.Fatalf("expected success for roll 0.1, got %v", err)
	}
	if slept != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s latency, got %v", slept)
	}
	if out.SizeLabel != "2.00 MB" {
		t.Fatalf("expected 2.00 MB, got %q", out.SizeLabel)
	}

	d.Rand = func() float64 { return 0.9 }
	if _, err := d.Download(context.Background(), extract.Link{URL: "x"}); !errors.Is(err, ErrDownloadFailed) {
		t.Fatalf("expected ErrDownloadFailed for roll 0.9, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Sleep = nil
	if _, err := d.Download(ctx, extract.Link{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
