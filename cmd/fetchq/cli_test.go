package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeTestConfig creates a config file pointing everything at temp dirs.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	configPath := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(`target_dir = %q
database_path = %q
log_level = "error"
log_format = "json"
`, filepath.Join(base, "media"), filepath.Join(base, "fetchq.db"))
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func requireContains(t *testing.T, out, want string) {
	t.Helper()
	if !strings.Contains(out, want) {
		t.Fatalf("output missing %q:\n%s", want, out)
	}
}

func TestInitCommand(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")

	out, err := runCLI(t, "init", "-c", configPath)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	requireContains(t, out, configPath)
	if _, err := os.Stat(configPath); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	if _, err := runCLI(t, "init", "-c", configPath); err == nil {
		t.Fatal("init should refuse to overwrite without --force")
	}
	if _, err := runCLI(t, "init", "-c", configPath, "--force"); err != nil {
		t.Fatalf("init --force: %v", err)
	}
}

func TestAddCommand(t *testing.T) {
	configPath := writeTestConfig(t)

	out, err := runCLI(t, "add", "https://example.com/v/1", "-c", configPath)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	requireContains(t, out, "URL added to queue")

	out, err = runCLI(t, "add", "https://example.com/v/1", "-c", configPath)
	if err != nil {
		t.Fatalf("duplicate add: %v", err)
	}
	requireContains(t, out, "URL already exists in queue")
	requireContains(t, out, "Status: pending")
}

func TestAddCommandRejectsInvalidURL(t *testing.T) {
	configPath := writeTestConfig(t)

	if _, err := runCLI(t, "add", "not a url", "-c", configPath); err == nil {
		t.Fatal("add should reject a malformed URL")
	}
}

func TestQueueStatusCommand(t *testing.T) {
	configPath := writeTestConfig(t)

	if _, err := runCLI(t, "add", "https://example.com/v/1", "-c", configPath); err != nil {
		t.Fatalf("add: %v", err)
	}

	out, err := runCLI(t, "queue", "status", "-c", configPath)
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "pending")
	requireContains(t, out, "total")
}

func TestQueueListCommand(t *testing.T) {
	configPath := writeTestConfig(t)

	out, err := runCLI(t, "queue", "list", "-c", configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "No matching downloads found")

	if _, err := runCLI(t, "add", "https://example.com/v/1", "-c", configPath); err != nil {
		t.Fatalf("add: %v", err)
	}

	out, err = runCLI(t, "queue", "list", "pending", "-c", configPath)
	if err != nil {
		t.Fatalf("queue list pending: %v", err)
	}
	requireContains(t, out, "https://example.com/v/1")

	if _, err := runCLI(t, "queue", "list", "bogus", "-c", configPath); err == nil {
		t.Fatal("queue list should reject an unknown status")
	}
}

func TestQueueFindCommand(t *testing.T) {
	configPath := writeTestConfig(t)

	if _, err := runCLI(t, "add", "https://videos.example/v/1", "-c", configPath); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := runCLI(t, "add", "https://other.example/v/2", "-c", configPath); err != nil {
		t.Fatalf("add: %v", err)
	}

	out, err := runCLI(t, "queue", "find", "%videos.example%", "-c", configPath)
	if err != nil {
		t.Fatalf("queue find: %v", err)
	}
	requireContains(t, out, "https://videos.example/v/1")
	if strings.Contains(out, "other.example") {
		t.Errorf("find matched outside the pattern:\n%s", out)
	}

	out, err = runCLI(t, "queue", "find", "%nomatch%", "-c", configPath)
	if err != nil {
		t.Fatalf("queue find: %v", err)
	}
	requireContains(t, out, "No downloads match")
}

func TestQueueCleanupCommand(t *testing.T) {
	configPath := writeTestConfig(t)

	if _, err := runCLI(t, "add", "https://example.com/v/1", "-c", configPath); err != nil {
		t.Fatalf("add: %v", err)
	}

	out, err := runCLI(t, "queue", "cleanup", "--dry-run", "-c", configPath)
	if err != nil {
		t.Fatalf("queue cleanup --dry-run: %v", err)
	}
	requireContains(t, out, "Would vacuum")

	out, err = runCLI(t, "queue", "cleanup", "-c", configPath)
	if err != nil {
		t.Fatalf("queue cleanup: %v", err)
	}
	requireContains(t, out, "Database vacuumed")
}

func TestQueueRetryCommandValidatesIDs(t *testing.T) {
	configPath := writeTestConfig(t)

	if _, err := runCLI(t, "queue", "retry", "abc", "-c", configPath); err == nil {
		t.Fatal("queue retry should reject a non-numeric ID")
	}
}

func TestQueueRemoveCommandRequiresSelector(t *testing.T) {
	configPath := writeTestConfig(t)

	if _, err := runCLI(t, "queue", "remove", "-c", configPath); err == nil {
		t.Fatal("queue remove should require a selector")
	}
}

func TestQueueExportCommand(t *testing.T) {
	configPath := writeTestConfig(t)

	if _, err := runCLI(t, "add", "https://example.com/v/1", "-c", configPath); err != nil {
		t.Fatalf("add: %v", err)
	}

	out, err := runCLI(t, "queue", "export", "--format", "json", "-c", configPath)
	if err != nil {
		t.Fatalf("queue export: %v", err)
	}
	requireContains(t, out, `"url": "https://example.com/v/1"`)
}

func TestCommandsFailWithoutConfig(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.toml")

	_, err := runCLI(t, "add", "https://example.com/v/1", "-c", missing)
	if err == nil {
		t.Fatal("add without config should fail")
	}
	if !strings.Contains(err.Error(), "fetchq init") {
		t.Errorf("error should hint at init, got %v", err)
	}
}
