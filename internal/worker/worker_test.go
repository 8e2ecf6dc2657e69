package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"fetchq/internal/adapter/sqlite"
	"fetchq/internal/domain"
)

type fakeDownloader struct {
	results map[string]*domain.FetchResult
	errs    map[string]error
}

func (f *fakeDownloader) Fetch(_ context.Context, url string) (*domain.FetchResult, error) {
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	if res, ok := f.results[url]; ok {
		return res, nil
	}
	return nil, &domain.TransientError{URL: url, Err: errors.New("no fake result")}
}

func newTestQueue(t *testing.T, dl domain.Downloader) (*domain.Queue, *sqlite.Repository) {
	t.Helper()
	repo, err := sqlite.New(filepath.Join(t.TempDir(), "fetchq.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { repo.Close() })
	return domain.NewQueue(repo, dl, 3, nil), repo
}

func TestPollProcessesBatch(t *testing.T) {
	dl := &fakeDownloader{
		results: map[string]*domain.FetchResult{
			"https://x/ok": {Filename: "/tmp/ok.mp4", Extractor: "site"},
		},
		errs: map[string]error{
			"https://x/flaky": &domain.TransientError{URL: "https://x/flaky", Err: errors.New("timeout")},
		},
	}
	queue, repo := newTestQueue(t, dl)
	ctx := context.Background()

	ok, _, err := queue.Enqueue(ctx, "https://x/ok")
	if err != nil {
		t.Fatal(err)
	}
	flaky, _, err := queue.Enqueue(ctx, "https://x/flaky")
	if err != nil {
		t.Fatal(err)
	}

	w := New(queue, time.Second, nil)
	w.poll(ctx)

	gotOK, _ := repo.GetByID(ctx, ok.ID)
	if gotOK.Status != domain.StatusDownloaded {
		t.Errorf("ok job status = %s, want downloaded", gotOK.Status)
	}
	gotFlaky, _ := repo.GetByID(ctx, flaky.ID)
	if gotFlaky.Status != domain.StatusPending || gotFlaky.Retries != 1 {
		t.Errorf("flaky job = (%s, %d retries), want (pending, 1)", gotFlaky.Status, gotFlaky.Retries)
	}
}

func TestPollRetriesUntilFailed(t *testing.T) {
	dl := &fakeDownloader{
		errs: map[string]error{
			"https://x/2": &domain.TransientError{URL: "https://x/2", Err: errors.New("timeout")},
		},
	}
	queue, repo := newTestQueue(t, dl)
	ctx := context.Background()

	job, _, err := queue.Enqueue(ctx, "https://x/2")
	if err != nil {
		t.Fatal(err)
	}

	w := New(queue, time.Second, nil)
	// Each cycle consumes one retry; the budget is three.
	for i := 0; i < 3; i++ {
		w.poll(ctx)
	}

	got, _ := repo.GetByID(ctx, job.ID)
	if got.Status != domain.StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.Retries != 3 {
		t.Errorf("retries = %d, want 3", got.Retries)
	}

	// A further poll finds nothing pending and changes nothing.
	w.poll(ctx)
	again, _ := repo.GetByID(ctx, job.ID)
	if again.Status != domain.StatusFailed || again.Retries != 3 {
		t.Errorf("job left failed state: %+v", again)
	}
}

func TestPollSkipsClaimedJobs(t *testing.T) {
	dl := &fakeDownloader{
		results: map[string]*domain.FetchResult{
			"https://x/1": {Filename: "/tmp/1.mp4", Extractor: "site"},
		},
	}
	queue, repo := newTestQueue(t, dl)
	ctx := context.Background()

	job, _, err := queue.Enqueue(ctx, "https://x/1")
	if err != nil {
		t.Fatal(err)
	}

	// Take the poll snapshot, then let a concurrent actor win the claim
	// before the worker gets to the job.
	pending, err := queue.Pending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	if err := repo.Claim(ctx, job.ID); err != nil {
		t.Fatal(err)
	}

	for i := range pending {
		if err := queue.Process(ctx, &pending[i]); err != nil {
			t.Errorf("Process() on claimed job = %v, want nil", err)
		}
	}

	got, _ := repo.GetByID(ctx, job.ID)
	if got.Status != domain.StatusDownloading {
		t.Errorf("status = %s, want downloading (owned by the other actor)", got.Status)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	queue, _ := newTestQueue(t, &fakeDownloader{})
	w := New(queue, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}
