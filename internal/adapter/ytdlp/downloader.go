package ytdlp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"fetchq/internal/domain"
)

const (
	defaultBinary = "yt-dlp"
	defaultFormat = "bestvideo+bestaudio/best"

	// Printed once per download after post-processing so the final file
	// path and extractor can be read off stdout.
	printTemplate  = "after_move:%(extractor)s|%(filepath)s"
	outputTemplate = "%(extractor)s/%(title)s.%(ext)s"
)

// Options configures the yt-dlp invocation.
type Options struct {
	Binary    string
	Format    string
	TargetDir string
	ExtraArgs []string
}

// Downloader implements domain.Downloader by shelling out to yt-dlp.
// Each fetch runs in an isolated temp directory; the finished file is
// moved under TargetDir/<extractor>/ once yt-dlp reports success.
type Downloader struct {
	binary    string
	format    string
	targetDir string
	extraArgs []string
	logger    *slog.Logger
}

// New creates a yt-dlp downloader.
func New(opts Options, logger *slog.Logger) *Downloader {
	if opts.Binary == "" {
		opts.Binary = defaultBinary
	}
	if opts.Format == "" {
		opts.Format = defaultFormat
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{
		binary:    opts.Binary,
		format:    opts.Format,
		targetDir: opts.TargetDir,
		extraArgs: opts.ExtraArgs,
		logger:    logger,
	}
}

func (d *Downloader) args(url string) []string {
	args := []string{
		"--format", d.format,
		"--output", outputTemplate,
		"--embed-metadata",
		"--no-progress",
		"--quiet",
		"--print", printTemplate,
		"--no-simulate",
	}
	args = append(args, d.extraArgs...)
	return append(args, "--", url)
}

// Fetch downloads the URL and returns the final filename and extractor.
// A non-zero yt-dlp exit is a *domain.TransientError; anything else
// (missing binary, filesystem trouble) is a fault.
func (d *Downloader) Fetch(ctx context.Context, url string) (*domain.FetchResult, error) {
	workDir, err := os.MkdirTemp("", "fetchq-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.binary, d.args(url)...)
	cmd.Dir = workDir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	d.logger.Debug("running yt-dlp", "url", url, "dir", workDir)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &domain.TransientError{
				URL: url,
				Err: fmt.Errorf("%s exited: %w: %s", d.binary, err, firstLine(stderr.String())),
			}
		}
		return nil, fmt.Errorf("run %s: %w", d.binary, err)
	}

	extractor, relPath, err := parsePrinted(stdout.String())
	if err != nil {
		return nil, fmt.Errorf("parse yt-dlp output: %w", err)
	}

	finalPath, err := d.moveIntoTarget(workDir, relPath)
	if err != nil {
		return nil, err
	}
	return &domain.FetchResult{Filename: finalPath, Extractor: extractor}, nil
}

// parsePrinted splits the "extractor|filepath" line printed after the move.
func parsePrinted(output string) (extractor, path string, err error) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if idx := strings.Index(line, "|"); idx > 0 {
			return line[:idx], line[idx+1:], nil
		}
	}
	return "", "", fmt.Errorf("no result line in output %q", output)
}

// moveIntoTarget relocates the finished file from the work dir, keeping
// its extractor/title layout. An existing destination is kept as-is.
func (d *Downloader) moveIntoTarget(workDir, printedPath string) (string, error) {
	rel := printedPath
	if filepath.IsAbs(printedPath) {
		r, err := filepath.Rel(workDir, printedPath)
		if err != nil || strings.HasPrefix(r, "..") {
			rel = filepath.Base(printedPath)
		} else {
			rel = r
		}
	}

	src := filepath.Join(workDir, rel)
	dst := filepath.Join(d.targetDir, rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create target dir: %w", err)
	}

	if _, err := os.Stat(dst); err == nil {
		d.logger.Warn("destination exists, keeping existing file", "file", dst)
		return dst, nil
	}

	if err := os.Rename(src, dst); err != nil {
		// Cross-device fallback
		if copyErr := copyFile(src, dst); copyErr != nil {
			return "", fmt.Errorf("move %s: %w", rel, copyErr)
		}
		_ = os.Remove(src)
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
