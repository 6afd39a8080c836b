// ABOUTME: Tests for journal export
// ABOUTME: Verifies YAML and Markdown output contain entries and summaries
package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harper/sitjournal/internal/models"
)

func seedExport(t *testing.T) *Storage {
	t.Helper()
	s := newTestStorage(t)
	ctx := context.Background()
	if _, err := s.Users.GetOrCreate(ctx, "u1", "02"); err != nil {
		t.Fatal(err)
	}
	e := mustEntry(t, s, "u1", "2026-03-02", time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC), models.EntryReflect, "02", true)
	if err := s.Entries.UpdateSignals(ctx, e.ID, &models.SignalBlock{Summary: "counted well", Themes: []string{"focus"}}, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := s.Rollups.Upsert(ctx, weekly("u1", "2026-03-02", "2026-03-08", e.ID)); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestExport(t *testing.T) {
	s := seedExport(t)

	data, err := s.Export(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if data.User.CurrentSkill != "02" {
		t.Errorf("User = %+v", data.User)
	}
	if len(data.Entries) != 1 || !data.Entries[0].Processed || data.Entries[0].Summary != "counted well" {
		t.Errorf("Entries = %+v", data.Entries)
	}
	if len(data.Rollups) != 1 {
		t.Errorf("Rollups = %+v", data.Rollups)
	}
}

func TestExportToYAML(t *testing.T) {
	s := seedExport(t)
	out := filepath.Join(t.TempDir(), "export", "journal.yaml")

	if err := s.ExportToYAML(context.Background(), "u1", out); err != nil {
		t.Fatalf("ExportToYAML() error = %v", err)
	}

	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var data ExportData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		t.Fatalf("exported YAML does not parse: %v", err)
	}
	if data.Tool != "sitjournal" || len(data.Entries) != 1 {
		t.Errorf("round-tripped export = %+v", data)
	}
}

func TestExportToMarkdown(t *testing.T) {
	s := seedExport(t)
	out := filepath.Join(t.TempDir(), "journal.md")

	if err := s.ExportToMarkdown(context.Background(), "u1", out); err != nil {
		t.Fatalf("ExportToMarkdown() error = %v", err)
	}

	raw, _ := os.ReadFile(out)
	md := string(raw)
	for _, want := range []string{"# Practice Journal - u1", "## Summaries", "## Entries", "counted well", "*Themes: focus*"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestExportUnknownUser(t *testing.T) {
	s := newTestStorage(t)
	if _, err := s.Export(context.Background(), "ghost"); err == nil {
		t.Error("Export() for unknown user should fail")
	}
}
