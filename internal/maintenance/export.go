package maintenance

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"fetchq/internal/adapter/sqlite"
	"fetchq/internal/domain"
)

// exportRecord mirrors the persisted schema for stable export output.
type exportRecord struct {
	ID                  int64  `json:"id"`
	URL                 string `json:"url"`
	Status              string `json:"status"`
	TimestampRequested  string `json:"timestamp_requested"`
	TimestampDownloaded string `json:"timestamp_downloaded,omitempty"`
	FinalFilename       string `json:"final_filename,omitempty"`
	Extractor           string `json:"extractor,omitempty"`
	Retries             int    `json:"retries"`
}

func toExportRecord(job domain.Job) exportRecord {
	rec := exportRecord{
		ID:                 job.ID,
		URL:                job.URL,
		Status:             string(job.Status),
		TimestampRequested: job.RequestedAt.UTC().Format(time.RFC3339),
		FinalFilename:      job.FinalFilename,
		Extractor:          job.Extractor,
		Retries:            job.Retries,
	}
	if job.DownloadedAt != nil {
		rec.TimestampDownloaded = job.DownloadedAt.UTC().Format(time.RFC3339)
	}
	return rec
}

// Export writes queue data to w as JSON or CSV, optionally filtered by
// status.
func (s *Service) Export(ctx context.Context, w io.Writer, format string, status domain.Status) error {
	jobs, err := s.repo.List(ctx, sqlite.ListOptions{Status: status})
	if err != nil {
		return err
	}

	records := make([]exportRecord, 0, len(jobs))
	for _, job := range jobs {
		records = append(records, toExportRecord(job))
	}

	switch format {
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case "csv":
		return writeCSV(w, records)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

func writeCSV(w io.Writer, records []exportRecord) error {
	cw := csv.NewWriter(w)
	header := []string{
		"id", "url", "status", "timestamp_requested", "timestamp_downloaded",
		"final_filename", "extractor", "retries",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{
			strconv.FormatInt(rec.ID, 10),
			rec.URL,
			rec.Status,
			rec.TimestampRequested,
			rec.TimestampDownloaded,
			rec.FinalFilename,
			rec.Extractor,
			strconv.Itoa(rec.Retries),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
