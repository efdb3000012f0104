package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/suPer8Hu/chatcore/internal/auth"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// isolate points storage at a temp dir and strips provider keys.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DB_DSN", filepath.Join(dir, "chatcore.db"))
	t.Setenv("FILES_DIR", filepath.Join(dir, "files"))
	t.Setenv("LOG_LEVEL", "error")
	for _, k := range []string{"REDIS_ADDR", "RABBIT_URL", "PROVIDERS_FILE", "OPENAI_API_KEY",
		"OPENROUTER_API_KEY", "GEMINI_API_KEY", "ANTHROPIC_API_KEY", "JWT_SECRET"} {
		t.Setenv(k, "")
	}
	providersFile = ""
	return dir
}

func TestRootHelp(t *testing.T) {
	out, err := execute(t, "--help")
	if err != nil {
		t.Fatalf("root --help failed: %v", err)
	}
	for _, sub := range []string{"serve", "models", "check", "files", "token"} {
		if !strings.Contains(out, sub) {
			t.Errorf("root help missing %s subcommand, got:\n%s", sub, out)
		}
	}
}

func TestToken(t *testing.T) {
	isolate(t)

	if _, err := execute(t, "token"); err == nil {
		t.Fatalf("expected error without JWT_SECRET")
	}

	t.Setenv("JWT_SECRET", "s3cret")
	out, err := execute(t, "token", "--subject", "cli")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	sub, err := auth.ParseJWT(strings.TrimSpace(out), "s3cret")
	if err != nil {
		t.Fatalf("minted token does not verify: %v", err)
	}
	if sub != "cli" {
		t.Fatalf("expected subject cli, got %q", sub)
	}
}

func TestFilesListEmpty(t *testing.T) {
	isolate(t)
	out, err := execute(t, "--no-color", "files", "list")
	if err != nil {
		t.Fatalf("files list: %v", err)
	}
	if !strings.Contains(out, "REFS") {
		t.Fatalf("expected table header, got:\n%s", out)
	}
}

func TestCheck_NoModels(t *testing.T) {
	dir := isolate(t)
	catalog := filepath.Join(dir, "providers.yaml")
	if err := os.WriteFile(catalog, []byte("providers:\n  - id: local\n    type: ollama\n    api_host: http://127.0.0.1:1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "--no-color", "--providers", catalog, "check", "local")
	if err == nil {
		t.Fatalf("expected validation error, got output:\n%s", out)
	}
	if !strings.Contains(out, "FAIL local") {
		t.Fatalf("expected FAIL line, got:\n%s", out)
	}
}
