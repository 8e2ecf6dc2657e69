package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"fetchq/internal/domain"
	"fetchq/internal/maintenance"
)

func newQueueCommand(ctx *appContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the download queue",
	}
	cmd.AddCommand(newQueueListCommand(ctx))
	cmd.AddCommand(newQueueStatusCommand(ctx))
	cmd.AddCommand(newQueueFindCommand(ctx))
	cmd.AddCommand(newQueueRetryCommand(ctx))
	cmd.AddCommand(newQueueRedownloadCommand(ctx))
	cmd.AddCommand(newQueueRemoveCommand(ctx))
	cmd.AddCommand(newQueueVerifyCommand(ctx))
	cmd.AddCommand(newQueueCleanupCommand(ctx))
	cmd.AddCommand(newQueueExportCommand(ctx))
	return cmd
}

func newQueueFindCommand(ctx *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "find <pattern>",
		Short: "Find downloads whose URL matches a SQL LIKE pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.maintenance()
			if err != nil {
				return err
			}
			jobs, err := svc.FindByURLPattern(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if len(jobs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No downloads match %q.\n", args[0])
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderJobsTable(jobs, ""))
			return nil
		},
	}
}

func newQueueCleanupCommand(ctx *appContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Compact the database file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.maintenance()
			if err != nil {
				return err
			}
			result, err := svc.Cleanup(cmd.Context(), dryRun)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintln(out, "Would vacuum the database.")
				return nil
			}
			fmt.Fprintf(out, "Database vacuumed, %d KB reclaimed.\n", result.SpaceSavedKB)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview cleanup without performing it")
	return cmd
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid job ID %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func newQueueListCommand(ctx *appContext) *cobra.Command {
	var (
		limit        int
		extractor    string
		minRetries   int
		missingFiles bool
	)

	cmd := &cobra.Command{
		Use:   "list [status]",
		Short: "List queued downloads, optionally filtered by status",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var status domain.Status
			if len(args) == 1 {
				parsed, ok := domain.ParseStatus(args[0])
				if !ok {
					return fmt.Errorf("unknown status %q", args[0])
				}
				status = parsed
			}

			svc, err := ctx.maintenance()
			if err != nil {
				return err
			}
			jobs, err := svc.List(cmd.Context(), maintenance.ListFilter{
				Status:       status,
				Extractor:    extractor,
				MinRetries:   minRetries,
				Limit:        limit,
				MissingFiles: missingFiles,
			})
			if err != nil {
				return err
			}

			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No matching downloads found.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderJobsTable(jobs, status))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of rows to show")
	cmd.Flags().StringVar(&extractor, "extractor", "", "Only rows handled by this extractor")
	cmd.Flags().IntVar(&minRetries, "min-retries", 0, "Only rows with at least this many retries")
	cmd.Flags().BoolVar(&missingFiles, "missing-files", false, "Only downloaded rows whose file is missing on disk")
	return cmd
}

func newQueueStatusCommand(ctx *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue counts per status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.maintenance()
			if err != nil {
				return err
			}
			counts, total, err := svc.StatusCounts(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(counts)+1)
			for _, status := range domain.AllStatuses() {
				rows = append(rows, []string{string(status), strconv.Itoa(counts[status])})
			}
			rows = append(rows, []string{"total", strconv.Itoa(total)})
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Status", "Count"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}
}

func newQueueRetryCommand(ctx *appContext) *cobra.Command {
	var allFailed bool

	cmd := &cobra.Command{
		Use:   "retry [id...]",
		Short: "Reset failed downloads to pending with a fresh retry budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.maintenance()
			if err != nil {
				return err
			}

			var count int64
			switch {
			case allFailed:
				count, err = svc.RetryAllFailed(cmd.Context())
			case len(args) > 0:
				ids, parseErr := parseIDs(args)
				if parseErr != nil {
					return parseErr
				}
				count, err = svc.Requeue(cmd.Context(), ids)
			default:
				return fmt.Errorf("provide job IDs or --all-failed")
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %d downloads to pending for retry.\n", count)
			return nil
		},
	}

	cmd.Flags().BoolVar(&allFailed, "all-failed", false, "Retry every failed download")
	return cmd
}

func newQueueRedownloadCommand(ctx *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "redownload <id...>",
		Short: "Queue completed downloads again",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			svc, err := ctx.maintenance()
			if err != nil {
				return err
			}
			count, err := svc.Requeue(cmd.Context(), ids)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Marked %d downloads for redownload.\n", count)
			return nil
		},
	}
}

func newQueueRemoveCommand(ctx *appContext) *cobra.Command {
	var (
		failed        bool
		olderThanDays int
		idArgs        []int64
		urlPattern    string
		dryRun        bool
	)

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove download records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := maintenance.RemoveFilter{DryRun: dryRun}
			selectors := 0
			if failed {
				filter.Status = domain.StatusFailed
				filter.OlderThan = time.Duration(olderThanDays) * 24 * time.Hour
				selectors++
			}
			if len(idArgs) > 0 {
				filter.IDs = idArgs
				selectors++
			}
			if urlPattern != "" {
				filter.URLPattern = urlPattern
				selectors++
			}
			if selectors != 1 {
				return fmt.Errorf("use exactly one of --failed, --ids, --url-pattern")
			}

			svc, err := ctx.maintenance()
			if err != nil {
				return err
			}
			count, err := svc.Remove(cmd.Context(), filter)
			if err != nil {
				return err
			}

			action := "Removed"
			if dryRun {
				action = "Would remove"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d downloads.\n", action, count)
			return nil
		},
	}

	cmd.Flags().BoolVar(&failed, "failed", false, "Remove failed downloads")
	cmd.Flags().IntVar(&olderThanDays, "older-than", 0, "With --failed: only records older than this many days")
	cmd.Flags().Int64SliceVar(&idArgs, "ids", nil, "Remove specific record IDs")
	cmd.Flags().StringVar(&urlPattern, "url-pattern", "", "Remove records whose URL matches this SQL LIKE pattern")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview without removing")
	return cmd
}

func newQueueVerifyCommand(ctx *appContext) *cobra.Command {
	var (
		requeue bool
		purge   bool
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify downloaded files exist on disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.maintenance()
			if err != nil {
				return err
			}
			result, err := svc.VerifyFiles(cmd.Context(), requeue, purge)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Total downloaded: %d\n", result.TotalDownloaded)
			fmt.Fprintf(out, "Files found:      %d\n", result.Found)
			fmt.Fprintf(out, "Files missing:    %d\n", len(result.Missing))
			for _, job := range result.Missing {
				fmt.Fprintf(out, "  id %d: %s\n", job.ID, job.FinalFilename)
			}
			switch {
			case requeue && len(result.Missing) > 0:
				fmt.Fprintf(out, "Marked %d missing files for redownload.\n", len(result.Missing))
			case purge && len(result.Missing) > 0:
				fmt.Fprintf(out, "Deleted %d records for missing files.\n", len(result.Missing))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&requeue, "requeue", false, "Queue missing files for redownload")
	cmd.Flags().BoolVar(&purge, "purge", false, "Delete records for missing files")
	cmd.MarkFlagsMutuallyExclusive("requeue", "purge")
	return cmd
}

func newQueueExportCommand(ctx *appContext) *cobra.Command {
	var (
		format     string
		statusFlag string
		output     string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export queue data as JSON or CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var status domain.Status
			if statusFlag != "" {
				parsed, ok := domain.ParseStatus(statusFlag)
				if !ok {
					return fmt.Errorf("unknown status %q", statusFlag)
				}
				status = parsed
			}

			svc, err := ctx.maintenance()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer f.Close()
				w = f
			}

			if err := svc.Export(cmd.Context(), w, format, status); err != nil {
				return err
			}
			if output != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Data exported to %s\n", output)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "Export format: json or csv")
	cmd.Flags().StringVar(&statusFlag, "status", "", "Only export records with this status")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	return cmd
}
