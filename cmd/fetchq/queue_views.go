package main

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"fetchq/internal/domain"
)

const urlDisplayWidth = 48

func truncate(s string, width int) string {
	if len(s) <= width {
		return s
	}
	if width <= 3 {
		return s[:width]
	}
	return s[:width-3] + "..."
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "n/a"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// renderJobsTable picks columns to match what matters for the status
// being listed; a mixed listing falls back to the generic layout.
func renderJobsTable(jobs []domain.Job, status domain.Status) string {
	switch status {
	case domain.StatusDownloaded:
		rows := make([][]string, 0, len(jobs))
		for _, job := range jobs {
			exists := "no"
			if job.FinalFilename != "" {
				if _, err := os.Stat(job.FinalFilename); err == nil {
					exists = "yes"
				}
			}
			rows = append(rows, []string{
				strconv.FormatInt(job.ID, 10),
				job.Extractor,
				exists,
				truncate(filepath.Base(job.FinalFilename), urlDisplayWidth),
			})
		}
		return renderTable(
			[]string{"ID", "Extractor", "Exists", "File"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
		)
	case domain.StatusFailed:
		rows := make([][]string, 0, len(jobs))
		for _, job := range jobs {
			rows = append(rows, []string{
				strconv.FormatInt(job.ID, 10),
				strconv.Itoa(job.Retries),
				formatTimestamp(job.RequestedAt),
				truncate(job.URL, urlDisplayWidth),
			})
		}
		return renderTable(
			[]string{"ID", "Retries", "Requested", "URL"},
			rows,
			[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft},
		)
	default:
		rows := make([][]string, 0, len(jobs))
		for _, job := range jobs {
			rows = append(rows, []string{
				strconv.FormatInt(job.ID, 10),
				string(job.Status),
				strconv.Itoa(job.Retries),
				formatTimestamp(job.RequestedAt),
				truncate(job.URL, urlDisplayWidth),
			})
		}
		return renderTable(
			[]string{"ID", "Status", "Retries", "Requested", "URL"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft},
		)
	}
}
