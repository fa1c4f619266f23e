package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lucasnoah/ciresolve/internal/cierr"
	"github.com/lucasnoah/ciresolve/internal/pipeline"
)

// resetFlags restores every flag to its default so commands run in one
// process do not leak settings into each other.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func executeCommand(args ...string) (string, error) {
	resetFlags(rootCmd)
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

const sampleCI = `
stages: [build, test]
include: templates.yml
build:
  extends: .go
  stage: build
  script: [go build ./...]
unit:
  extends: .go
  script: [go test ./...]
`

const sampleTemplates = `
.go:
  image: golang:1.22
  variables: {CGO_ENABLED: "0"}
`

// workspace creates an isolated HOME and a project directory holding a CI
// configuration, and moves into the project.
func workspace(t *testing.T, files map[string]string) (home, dir string) {
	t.Helper()
	home, dir = t.TempDir(), t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(dir)
	for name, content := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return home, dir
}

func sampleWorkspace(t *testing.T) (home, dir string) {
	t.Helper()
	return workspace(t, map[string]string{
		".gitlab-ci.yml": sampleCI,
		"templates.yml":  sampleTemplates,
	})
}

func TestVersionCommand(t *testing.T) {
	SetVersion("test-version")
	out, err := executeCommand("version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "test-version") {
		t.Errorf("expected version output to contain 'test-version', got: %s", out)
	}
}

func TestRootHelp(t *testing.T) {
	out, err := executeCommand("--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedSubcommands := []string{
		"resolve", "jobs", "job", "unified", "includes",
		"config", "history", "db", "version",
	}
	for _, sub := range expectedSubcommands {
		if !strings.Contains(out, sub) {
			t.Errorf("help output missing subcommand %q", sub)
		}
	}
}

func TestResolveTable(t *testing.T) {
	sampleWorkspace(t)
	out, err := executeCommand("resolve")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for _, want := range []string{"STAGE", "build", "unit", ".go", "4 stages, 2 jobs"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestResolveJSON(t *testing.T) {
	sampleWorkspace(t)
	out, err := executeCommand("resolve", "--format", "json")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	var p pipeline.Pipeline
	if err := json.Unmarshal([]byte(out), &p); err != nil {
		t.Fatalf("output is not a pipeline: %v\n%s", err, out)
	}
	unit := p.Jobs["unit"]
	if unit == nil || unit.Image == nil || unit.Image.Name != "golang:1.22" {
		t.Errorf("unit job = %+v", unit)
	}
	if unit != nil && unit.Variables["CGO_ENABLED"].Value != "0" {
		t.Errorf("unit variables = %+v", unit.Variables)
	}
}

func TestResolveOutputFile(t *testing.T) {
	_, dir := sampleWorkspace(t)
	path := filepath.Join(dir, "out", "pipeline.yaml")
	out, err := executeCommand("resolve", "--format", "yaml", "-o", path)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !strings.Contains(out, "Wrote 2 jobs") {
		t.Errorf("unexpected output: %s", out)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "job_order:") {
		t.Errorf("file is not yaml pipeline:\n%s", data)
	}
}

func TestResolveBadFormat(t *testing.T) {
	sampleWorkspace(t)
	if _, err := executeCommand("resolve", "--format", "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestJobCommand(t *testing.T) {
	sampleWorkspace(t)
	out, err := executeCommand("job", "unit")
	if err != nil {
		t.Fatalf("job: %v", err)
	}
	for _, want := range []string{"# extends: .go", "image: golang:1.22", "CGO_ENABLED"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	_, err = executeCommand("job", "nope")
	if err == nil {
		t.Fatal("expected error for unknown job")
	}
	if !strings.Contains(FormatError(err), "hint:") {
		t.Errorf("FormatError(%v) has no hint", err)
	}
}

func TestIncludesAndUnified(t *testing.T) {
	sampleWorkspace(t)
	out, err := executeCommand("includes")
	if err != nil {
		t.Fatalf("includes: %v", err)
	}
	if i, j := strings.Index(out, "templates.yml"), strings.Index(out, ".gitlab-ci.yml"); i < 0 || j < 0 || i > j {
		t.Errorf("includes not listed in order:\n%s", out)
	}

	out, err = executeCommand("unified")
	if err != nil {
		t.Fatalf("unified: %v", err)
	}
	if strings.Contains(out, "include:") || !strings.Contains(out, ".go:") {
		t.Errorf("unexpected unified output:\n%s", out)
	}
}

func TestResolveErrorAndHistory(t *testing.T) {
	workspace(t, map[string]string{
		".gitlab-ci.yml": "stages: [build]\njob: {stage: deploy, script: [x]}\n",
		"ok.yml":         "job: {script: [x]}\n",
	})

	_, err := executeCommand("resolve")
	if !errors.Is(err, cierr.ErrUnknownStage) {
		t.Fatalf("err = %v, want ErrUnknownStage", err)
	}
	msg := FormatError(err)
	if !strings.Contains(msg, "deploy") || !strings.Contains(msg, "hint:") {
		t.Errorf("FormatError = %q", msg)
	}

	if _, err := executeCommand("resolve", "ok.yml"); err != nil {
		t.Fatalf("resolve ok.yml: %v", err)
	}

	out, err := executeCommand("history", "list")
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	if !strings.Contains(out, "unknown_stage") || !strings.Contains(out, "ok.yml") {
		t.Errorf("history missing runs:\n%s", out)
	}

	out, err = executeCommand("history", "stats")
	if err != nil {
		t.Fatalf("history stats: %v", err)
	}
	for _, want := range []string{"ROOT", "100.0%", "unknown_stage", "DAY"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats output missing %q:\n%s", want, out)
		}
	}

	out, err = executeCommand("history", "list", "--status", "ok")
	if err != nil {
		t.Fatalf("history list --status: %v", err)
	}
	if strings.Contains(out, "unknown_stage") {
		t.Errorf("status filter ignored:\n%s", out)
	}

	if _, err := executeCommand("db", "reset"); err != nil {
		t.Fatalf("db reset: %v", err)
	}
	out, err = executeCommand("history", "list")
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	if !strings.Contains(out, "No runs recorded.") {
		t.Errorf("history not cleared:\n%s", out)
	}
}

func TestHistoryDisabled(t *testing.T) {
	home, _ := sampleWorkspace(t)
	t.Setenv("CIRESOLVE_HISTORY_ENABLED", "false")
	if _, err := executeCommand("resolve"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, ".ciresolve", "history.db")); !os.IsNotExist(err) {
		t.Errorf("history database created while disabled: %v", err)
	}
}

func TestStrictFlag(t *testing.T) {
	workspace(t, map[string]string{
		".gitlab-ci.yml": "include: a.yml\njob: {script: [b]}\n",
		"a.yml":          "job: {script: [a]}\n",
	})
	if _, err := executeCommand("resolve"); err != nil {
		t.Fatalf("non-strict resolve: %v", err)
	}
	_, err := executeCommand("resolve", "--strict")
	if !errors.Is(err, cierr.ErrConflictingJobDefinition) {
		t.Fatalf("err = %v, want ErrConflictingJobDefinition", err)
	}
}

func TestConfigCommands(t *testing.T) {
	workspace(t, map[string]string{".ciresolve.yaml": "include_workers: 0\nlog_level: info\n"})

	out, err := executeCommand("config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "# source: .ciresolve.yaml") || !strings.Contains(out, "include_workers: 4") {
		t.Errorf("unexpected config show output:\n%s", out)
	}

	out, err = executeCommand("config", "validate", "--log-level", "loud")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(out, "log_level") {
		t.Errorf("validation output missing field:\n%s", out)
	}

	if _, err := executeCommand("config", "validate"); err != nil {
		t.Errorf("config validate: %v", err)
	}
}
