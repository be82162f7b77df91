package main_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func buildCLI(t *testing.T) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "lexigraph.bin")
	// Build with the full import path so it works regardless of the current working directory.
	build := exec.Command("go", "build", "-o", bin, "github.com/japaniel/lexigraph/cmd/lexigraph")
	build.Stdout = os.Stdout
	build.Stderr = os.Stderr
	if err := build.Run(); err != nil {
		t.Fatalf("failed to build CLI: %v", err)
	}
	return bin
}

func TestCLI_DryRun(t *testing.T) {
	fixture, err := filepath.Abs(filepath.Join("testdata", "snapshot.json"))
	if err != nil {
		t.Fatalf("fixture path: %v", err)
	}
	bin := buildCLI(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, bin, "-dry-run", "-workers", "2", fixture)
	cmd.Dir = t.TempDir()
	cmd.Env = append(os.Environ(), "LEXIGRAPH_LOG_MODE=prod")
	out, err := cmd.Output()
	if ctx.Err() == context.DeadlineExceeded {
		t.Fatalf("cli timed out, output:\n%s", out)
	}
	if err != nil {
		t.Fatalf("cli failed: %v\noutput:\n%s", err, out)
	}
	if !strings.Contains(string(out), "dry run graph: lemmas=7 senses=5 relationships=15") {
		t.Fatalf("unexpected CLI output:\n%s", out)
	}
}

func TestCLI_MissingArgument(t *testing.T) {
	bin := buildCLI(t)
	cmd := exec.Command(bin)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	err := cmd.Run()
	exitErr, ok := err.(*exec.ExitError)
	if !ok || exitErr.ExitCode() != 1 {
		t.Fatalf("expected exit status 1, got %v", err)
	}
	if !strings.Contains(stderr.String(), "usage: lexigraph") {
		t.Errorf("expected usage on stderr, got:\n%s", stderr.String())
	}
}
