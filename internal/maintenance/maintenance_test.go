package maintenance

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fetchq/internal/adapter/sqlite"
	"fetchq/internal/domain"
)

func newTestService(t *testing.T) (*Service, *sqlite.Repository) {
	t.Helper()
	repo, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { repo.Close() })
	return NewService(repo, nil), repo
}

// seed creates one downloaded job backed by a real file, one downloaded
// job whose file is gone, and one failed job. Returns the downloaded IDs
// in that order.
func seed(t *testing.T, repo *sqlite.Repository) (withFile, missingFile, failed int64) {
	t.Helper()
	ctx := context.Background()

	realFile := filepath.Join(t.TempDir(), "kept.mp4")
	if err := os.WriteFile(realFile, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	j1, err := repo.Create(ctx, "https://x/kept")
	if err != nil {
		t.Fatal(err)
	}
	mustClaim(t, repo, j1.ID)
	if err := repo.MarkDownloaded(ctx, j1.ID, realFile, "site"); err != nil {
		t.Fatal(err)
	}

	j2, err := repo.Create(ctx, "https://x/gone")
	if err != nil {
		t.Fatal(err)
	}
	mustClaim(t, repo, j2.ID)
	if err := repo.MarkDownloaded(ctx, j2.ID, filepath.Join(t.TempDir(), "gone.mp4"), "site"); err != nil {
		t.Fatal(err)
	}

	j3, err := repo.Create(ctx, "https://x/broken")
	if err != nil {
		t.Fatal(err)
	}
	mustClaim(t, repo, j3.ID)
	if err := repo.MarkFailed(ctx, j3.ID); err != nil {
		t.Fatal(err)
	}

	return j1.ID, j2.ID, j3.ID
}

func mustClaim(t *testing.T, repo *sqlite.Repository, id int64) {
	t.Helper()
	if err := repo.Claim(context.Background(), id); err != nil {
		t.Fatal(err)
	}
}

func TestListMissingFiles(t *testing.T) {
	svc, repo := newTestService(t)
	_, missingID, _ := seed(t, repo)

	jobs, err := svc.List(context.Background(), ListFilter{MissingFiles: true})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != missingID {
		t.Errorf("missing files = %+v, want single job %d", jobs, missingID)
	}
}

func TestStatusCountsZeroFilled(t *testing.T) {
	svc, repo := newTestService(t)
	seed(t, repo)

	counts, total, err := svc.StatusCounts(context.Background())
	if err != nil {
		t.Fatalf("StatusCounts() error = %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if counts[domain.StatusDownloaded] != 2 || counts[domain.StatusFailed] != 1 {
		t.Errorf("counts = %v", counts)
	}
	if _, ok := counts[domain.StatusPending]; !ok {
		t.Error("pending should be present with zero count")
	}
}

func TestRetryAllFailed(t *testing.T) {
	svc, repo := newTestService(t)
	_, _, failedID := seed(t, repo)

	count, err := svc.RetryAllFailed(context.Background())
	if err != nil {
		t.Fatalf("RetryAllFailed() error = %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	job, err := repo.GetByID(context.Background(), failedID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != domain.StatusPending || job.Retries != 0 {
		t.Errorf("job = %+v, want pending with zero retries", job)
	}
}

func TestRemoveDryRunLeavesRows(t *testing.T) {
	svc, repo := newTestService(t)
	seed(t, repo)

	count, err := svc.Remove(context.Background(), RemoveFilter{
		Status: domain.StatusDownloaded,
		DryRun: true,
	})
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if count != 2 {
		t.Errorf("dry-run count = %d, want 2", count)
	}

	length, err := repo.Length(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if length != 3 {
		t.Errorf("dry run removed rows, length = %d", length)
	}
}

func TestRemoveByStatus(t *testing.T) {
	svc, repo := newTestService(t)
	seed(t, repo)

	count, err := svc.Remove(context.Background(), RemoveFilter{Status: domain.StatusFailed})
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestRemoveEmptyFilter(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.Remove(context.Background(), RemoveFilter{}); err == nil {
		t.Fatal("empty filter should be rejected")
	}
}

func TestVerifyFilesReportOnly(t *testing.T) {
	svc, repo := newTestService(t)
	_, missingID, _ := seed(t, repo)

	result, err := svc.VerifyFiles(context.Background(), false, false)
	if err != nil {
		t.Fatalf("VerifyFiles() error = %v", err)
	}
	if result.TotalDownloaded != 2 || result.Found != 1 {
		t.Errorf("result = %+v", result)
	}
	if len(result.Missing) != 1 || result.Missing[0].ID != missingID {
		t.Errorf("missing = %+v", result.Missing)
	}

	// Report-only must not touch the record.
	job, err := repo.GetByID(context.Background(), missingID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != domain.StatusDownloaded {
		t.Errorf("status = %s, want downloaded", job.Status)
	}
}

func TestVerifyFilesRequeue(t *testing.T) {
	svc, repo := newTestService(t)
	_, missingID, _ := seed(t, repo)

	if _, err := svc.VerifyFiles(context.Background(), true, false); err != nil {
		t.Fatalf("VerifyFiles() error = %v", err)
	}

	job, err := repo.GetByID(context.Background(), missingID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != domain.StatusPending {
		t.Errorf("status = %s, want pending", job.Status)
	}
	if job.FinalFilename != "" || job.Extractor != "" {
		t.Errorf("metadata should be cleared, got %+v", job)
	}
}

func TestVerifyFilesPurge(t *testing.T) {
	svc, repo := newTestService(t)
	_, missingID, _ := seed(t, repo)

	if _, err := svc.VerifyFiles(context.Background(), false, true); err != nil {
		t.Fatalf("VerifyFiles() error = %v", err)
	}

	if _, err := repo.GetByID(context.Background(), missingID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestExportJSON(t *testing.T) {
	svc, repo := newTestService(t)
	seed(t, repo)

	var buf bytes.Buffer
	if err := svc.Export(context.Background(), &buf, "json", ""); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	var records []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &records); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("records = %d, want 3", len(records))
	}
	for _, rec := range records {
		if rec["url"] == "" || rec["status"] == "" {
			t.Errorf("incomplete record %v", rec)
		}
	}
}

func TestExportCSVFiltered(t *testing.T) {
	svc, repo := newTestService(t)
	seed(t, repo)

	var buf bytes.Buffer
	if err := svc.Export(context.Background(), &buf, "csv", domain.StatusFailed); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not CSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header + 1 record", len(rows))
	}
	if rows[0][0] != "id" || rows[0][1] != "url" {
		t.Errorf("header = %v", rows[0])
	}
	if !strings.Contains(rows[1][1], "broken") {
		t.Errorf("record = %v, want the failed job", rows[1])
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	svc, _ := newTestService(t)

	var buf bytes.Buffer
	if err := svc.Export(context.Background(), &buf, "xml", ""); err == nil {
		t.Fatal("unsupported format should be rejected")
	}
}

func TestCleanup(t *testing.T) {
	svc, repo := newTestService(t)
	seed(t, repo)

	if _, err := svc.Remove(context.Background(), RemoveFilter{Status: domain.StatusFailed}); err != nil {
		t.Fatal(err)
	}

	result, err := svc.Cleanup(context.Background(), false)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if !result.VacuumPerformed {
		t.Error("expected vacuum to run")
	}
	if result.SpaceSavedKB < 0 {
		t.Errorf("SpaceSavedKB = %d, want >= 0", result.SpaceSavedKB)
	}
}

func TestCleanupDryRun(t *testing.T) {
	svc, repo := newTestService(t)
	seed(t, repo)

	result, err := svc.Cleanup(context.Background(), true)
	if err != nil {
		t.Fatalf("Cleanup(dry run) error = %v", err)
	}
	if result.VacuumPerformed {
		t.Error("dry run must not vacuum")
	}

	// Rows are untouched either way.
	length, err := repo.Length(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if length != 3 {
		t.Errorf("length = %d, want 3", length)
	}
}
