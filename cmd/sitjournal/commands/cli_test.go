// ABOUTME: End-to-end tests driving the CLI against a temporary database
// ABOUTME: No model is configured, so analysis stays pending and entries are stored as written

package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harper/sitjournal/internal/catalog"
	"github.com/harper/sitjournal/internal/models"
)

func setupCLI(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SITJOURNAL_DB", filepath.Join(dir, "journal.db"))
	t.Setenv("SITJOURNAL_TZ", "UTC")
	t.Setenv("SITJOURNAL_USER", "tester")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	return dir
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func listEntries(t *testing.T) []models.Entry {
	t.Helper()
	out, err := runCLI(t, "--format", "json", "entry", "list")
	if err != nil {
		t.Fatalf("entry list: %v\n%s", err, out)
	}
	var entries []models.Entry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("entry list output is not JSON: %v\n%s", err, out)
	}
	return entries
}

func TestCLI_EntryLifecycle(t *testing.T) {
	setupCLI(t)

	out, err := runCLI(t, "--quiet", "entry", "add", "--date", "2026-03-02", "Counted breaths to ten. Drowsy near the end.")
	if err != nil {
		t.Fatalf("entry add: %v\n%s", err, out)
	}
	id := strings.TrimSpace(out)
	if id == "" {
		t.Fatal("entry add --quiet should print the new id")
	}

	entries := listEntries(t)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.ID != id || e.EntryDate != "2026-03-02" || e.Type != models.EntryReflect {
		t.Errorf("unexpected entry %+v", e)
	}
	if first := catalog.Default().First().ID; e.SkillID != first || !e.TrackProgress {
		t.Errorf("new entry should use the first skill %q and count toward progress, got skill %q track %v", first, e.SkillID, e.TrackProgress)
	}

	out, err = runCLI(t, "entry", "show", id)
	if err != nil {
		t.Fatalf("entry show: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Counted breaths to ten") {
		t.Errorf("show output missing content:\n%s", out)
	}

	if out, err = runCLI(t, "entry", "edit", id, "Counted breaths to ten. Calm after minute fifteen."); err != nil {
		t.Fatalf("entry edit: %v\n%s", err, out)
	}
	if got := listEntries(t)[0].Content; !strings.Contains(got, "Calm after minute fifteen") {
		t.Errorf("content after edit = %q", got)
	}

	if out, err = runCLI(t, "entry", "delete", id); err != nil {
		t.Fatalf("entry delete: %v\n%s", err, out)
	}
	if n := len(listEntries(t)); n != 0 {
		t.Errorf("got %d entries after delete, want 0", n)
	}
}

func TestCLI_EntryAddValidation(t *testing.T) {
	setupCLI(t)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown skill", []string{"entry", "add", "--skill", "99", "text"}},
		{"bad date", []string{"entry", "add", "--date", "March 2", "text"}},
		{"no text", []string{"entry", "add"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if out, err := runCLI(t, tt.args...); err == nil {
				t.Errorf("expected error, got output:\n%s", out)
			}
		})
	}
}

func TestCLI_UserFlagIsolatesJournals(t *testing.T) {
	setupCLI(t)

	if out, err := runCLI(t, "--user", "someone-else", "entry", "add", "Not yours."); err != nil {
		t.Fatalf("entry add: %v\n%s", err, out)
	}
	if n := len(listEntries(t)); n != 0 {
		t.Errorf("default user sees %d entries belonging to another user", n)
	}
}

func TestCLI_Skills(t *testing.T) {
	setupCLI(t)

	out, err := runCLI(t, "skills")
	if err != nil {
		t.Fatalf("skills: %v\n%s", err, out)
	}
	if !strings.Contains(out, "01") {
		t.Errorf("skills list should include skill 01:\n%s", out)
	}

	out, err = runCLI(t, "skills", "3")
	if err != nil {
		t.Fatalf("skills 3: %v\n%s", err, out)
	}
	if !strings.HasPrefix(out, "03 ") {
		t.Errorf("skill detail should start with the normalized id:\n%s", out)
	}

	if _, err := runCLI(t, "skills", "nope"); err == nil {
		t.Error("unknown skill should be an error")
	}
}

func TestCLI_Reminders(t *testing.T) {
	setupCLI(t)

	out, err := runCLI(t, "--format", "json", "reminders", "--meditation", "06:30")
	if err != nil {
		t.Fatalf("reminders: %v\n%s", err, out)
	}
	var res struct {
		Plan models.ReminderPlan `json:"plan"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("reminders output is not JSON: %v\n%s", err, out)
	}
	if res.Plan.MeditationAt != "06:30" {
		t.Errorf("meditation time = %q, want 06:30", res.Plan.MeditationAt)
	}

	if _, err := runCLI(t, "reminders", "--meditation", "25:00"); err == nil {
		t.Error("invalid clock time should be rejected")
	}
	if _, err := runCLI(t, "reminders", "--journal-enabled", "--no-journal"); err == nil {
		t.Error("conflicting journal flags should be rejected")
	}
}

func TestCLI_AskWithoutModel(t *testing.T) {
	setupCLI(t)

	if _, err := runCLI(t, "ask", "Why am I sleepy?"); err == nil {
		t.Error("ask without a configured model should fail")
	}
}

func TestCLI_Export(t *testing.T) {
	dir := setupCLI(t)

	if out, err := runCLI(t, "entry", "add", "Noting sounds, then back to the breath."); err != nil {
		t.Fatalf("entry add: %v\n%s", err, out)
	}

	yamlPath := filepath.Join(dir, "out.yaml")
	if out, err := runCLI(t, "export", "-o", yamlPath); err != nil {
		t.Fatalf("export: %v\n%s", err, out)
	}
	data, err := os.ReadFile(yamlPath)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	if !strings.Contains(string(data), "Noting sounds") {
		t.Errorf("YAML export missing entry content:\n%s", data)
	}

	mdPath := filepath.Join(dir, "out.md")
	if out, err := runCLI(t, "export", "--as", "markdown", "-o", mdPath); err != nil {
		t.Fatalf("export markdown: %v\n%s", err, out)
	}
	if _, err := os.Stat(mdPath); err != nil {
		t.Errorf("markdown export not written: %v", err)
	}

	if _, err := runCLI(t, "export", "--as", "pdf"); err == nil {
		t.Error("unknown export format should be rejected")
	}
}
