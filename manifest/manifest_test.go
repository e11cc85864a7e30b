package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadManifest(t *testing.T) {
	// Create a temporary directory with a foundry.toml
	dir := t.TempDir()
	tomlContent := `
[execution]
entrypoint = "run_checks"
strict-hints = true
program-dir = "out"

[journal]
enabled = true
path = "journal/runs.db"
`
	if err := os.WriteFile(filepath.Join(dir, "foundry.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Execution.Entrypoint != "run_checks" {
		t.Errorf("entrypoint = %q, want run_checks", m.Execution.Entrypoint)
	}
	if !m.Execution.StrictHints {
		t.Error("strict-hints was not parsed")
	}
	if m.Execution.ProgramDir != "out" {
		t.Errorf("program dir = %q, want out", m.Execution.ProgramDir)
	}
	if !m.Journal.Enabled {
		t.Error("journal enabled was not parsed")
	}
	if m.Journal.Path != filepath.Join("journal", "runs.db") {
		t.Errorf("journal path = %q, want journal/runs.db", m.Journal.Path)
	}
	if m.Dir == "" {
		t.Error("Dir was not set")
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "foundry.toml"), []byte("[journal]\nenabled = true\n"), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Execution.Entrypoint != "main" {
		t.Errorf("default entrypoint = %q, want main", m.Execution.Entrypoint)
	}
	if m.Execution.ProgramDir != "build" {
		t.Errorf("default program dir = %q, want build", m.Execution.ProgramDir)
	}
	if m.Journal.Path != filepath.Join(".foundry", "runs.db") {
		t.Errorf("default journal path = %q", m.Journal.Path)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load succeeded for a directory without foundry.toml")
	}
}

func TestLoadInvalidToml(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "foundry.toml"), []byte("[execution\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Error("Load succeeded on malformed TOML")
	}
}

func TestLoadOrDefault(t *testing.T) {
	dir := t.TempDir()

	m, err := LoadOrDefault(dir)
	if err != nil {
		t.Fatalf("LoadOrDefault failed: %v", err)
	}
	if m.Execution.Entrypoint != "main" {
		t.Errorf("default entrypoint = %q, want main", m.Execution.Entrypoint)
	}
	if m.Journal.Enabled {
		t.Error("journal should be disabled by default")
	}

	tomlContent := "[execution]\nentrypoint = \"verify\"\n"
	if err := os.WriteFile(filepath.Join(dir, "foundry.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}
	m, err = LoadOrDefault(dir)
	if err != nil {
		t.Fatalf("LoadOrDefault failed: %v", err)
	}
	if m.Execution.Entrypoint != "verify" {
		t.Errorf("entrypoint = %q, want verify", m.Execution.Entrypoint)
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "build", "programs")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	tomlContent := "[execution]\nentrypoint = \"fib\"\n"
	if err := os.WriteFile(filepath.Join(root, "foundry.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m.Execution.Entrypoint != "fib" {
		t.Errorf("entrypoint = %q, want fib", m.Execution.Entrypoint)
	}
	if m.Dir != root {
		t.Errorf("Dir = %q, want %q", m.Dir, root)
	}
}

func TestFindAndLoadNoManifest(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m.Execution.Entrypoint != "main" {
		t.Errorf("default entrypoint = %q, want main", m.Execution.Entrypoint)
	}
	if m.Dir != dir {
		t.Errorf("Dir = %q, want %q", m.Dir, dir)
	}
}

func TestPathHelpers(t *testing.T) {
	dir := t.TempDir()
	m := Default(dir)

	if got, want := m.ProgramDirPath(), filepath.Join(dir, "build"); got != want {
		t.Errorf("ProgramDirPath = %q, want %q", got, want)
	}
	if got, want := m.JournalPath(), filepath.Join(dir, ".foundry", "runs.db"); got != want {
		t.Errorf("JournalPath = %q, want %q", got, want)
	}

	m.Journal.Path = "/var/tmp/runs.db"
	if got := m.JournalPath(); got != "/var/tmp/runs.db" {
		t.Errorf("absolute JournalPath = %q, want /var/tmp/runs.db", got)
	}
}
