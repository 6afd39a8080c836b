// ABOUTME: Export functionality for one practitioner's journal
// ABOUTME: Supports YAML and Markdown export formats
package sqlite

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harper/sitjournal/internal/models"
	"github.com/harper/sitjournal/internal/storage"
)

// ExportData represents the complete exportable data structure
type ExportData struct {
	Version    string         `yaml:"version" json:"version"`
	ExportedAt string         `yaml:"exported_at" json:"exported_at"`
	Tool       string         `yaml:"tool" json:"tool"`
	User       *ExportUser    `yaml:"user,omitempty" json:"user,omitempty"`
	Entries    []ExportEntry  `yaml:"entries,omitempty" json:"entries,omitempty"`
	Rollups    []ExportRollup `yaml:"rollups,omitempty" json:"rollups,omitempty"`
}

// ExportUser represents the practice state for export
type ExportUser struct {
	UserID           string `yaml:"user_id" json:"user_id"`
	CurrentSkill     string `yaml:"current_skill" json:"current_skill"`
	Streak           int    `yaml:"streak" json:"streak"`
	CurrentSkillDays int    `yaml:"current_skill_days" json:"current_skill_days"`
	TotalSessions    int    `yaml:"total_sessions" json:"total_sessions"`
}

// ExportEntry represents a journal entry for export
type ExportEntry struct {
	EntryID   string   `yaml:"entry_id" json:"entry_id"`
	Date      string   `yaml:"date" json:"date"`
	Type      string   `yaml:"type" json:"type"`
	SkillID   string   `yaml:"skill_id" json:"skill_id"`
	Content   string   `yaml:"content" json:"content"`
	Summary   string   `yaml:"summary,omitempty" json:"summary,omitempty"`
	MoodScore *int     `yaml:"mood_score,omitempty" json:"mood_score,omitempty"`
	Themes    []string `yaml:"themes,omitempty" json:"themes,omitempty"`
	Processed bool     `yaml:"processed" json:"processed"`
}

// ExportRollup represents a summary for export
type ExportRollup struct {
	Type         string   `yaml:"type" json:"type"`
	Start        string   `yaml:"start" json:"start"`
	End          string   `yaml:"end" json:"end"`
	Summary      string   `yaml:"summary" json:"summary"`
	KeyThemes    []string `yaml:"key_themes,omitempty" json:"key_themes,omitempty"`
	MoodTrend    string   `yaml:"mood_trend" json:"mood_trend"`
	SamathaTrend string   `yaml:"samatha_trend" json:"samatha_trend"`
	EntryCount   int      `yaml:"entry_count" json:"entry_count"`
}

// Export gathers everything stored for one user
func (s *Storage) Export(ctx context.Context, userID string) (*ExportData, error) {
	data := &ExportData{
		Version:    "1.0",
		ExportedAt: time.Now().Format(time.RFC3339),
		Tool:       "sitjournal",
	}

	user, err := s.Users.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	data.User = &ExportUser{
		UserID:           user.UserID,
		CurrentSkill:     user.CurrentSkill,
		Streak:           user.Stats.Streak,
		CurrentSkillDays: user.Stats.CurrentSkillDays,
		TotalSessions:    user.Stats.TotalSessions,
	}

	entries, err := s.Entries.Query(ctx, storage.EntryFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	for _, e := range entries {
		ex := ExportEntry{
			EntryID:   e.ID,
			Date:      e.EntryDate,
			Type:      string(e.Type),
			SkillID:   e.SkillID,
			Content:   e.Content,
			Processed: e.Processed(),
		}
		if e.Signals != nil {
			ex.Summary = e.Signals.Summary
			ex.MoodScore = e.Signals.MoodScore
			ex.Themes = e.Signals.Themes
		}
		data.Entries = append(data.Entries, ex)
	}

	for _, typ := range []models.RollupType{models.RollupWeekly, models.RollupMonthly} {
		rollups, err := s.Rollups.List(ctx, userID, typ, "0000-00-00", "9999-99-99")
		if err != nil {
			return nil, fmt.Errorf("failed to list rollups: %w", err)
		}
		for _, r := range rollups {
			data.Rollups = append(data.Rollups, ExportRollup{
				Type:         string(r.Type),
				Start:        r.DateRangeStart,
				End:          r.DateRangeEnd,
				Summary:      r.Summary,
				KeyThemes:    r.KeyThemes,
				MoodTrend:    r.MoodTrend,
				SamathaTrend: r.SamathaTrend,
				EntryCount:   r.EntryCount,
			})
		}
	}

	return data, nil
}

// ExportToYAML exports data to a YAML file
func (s *Storage) ExportToYAML(ctx context.Context, userID, outputPath string) error {
	data, err := s.Export(ctx, userID)
	if err != nil {
		return err
	}
	return writeFile(outputPath, func(w io.Writer) error {
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(data); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return encoder.Close()
	})
}

// ExportToMarkdown exports data to a Markdown file
func (s *Storage) ExportToMarkdown(ctx context.Context, userID, outputPath string) error {
	data, err := s.Export(ctx, userID)
	if err != nil {
		return err
	}
	return writeFile(outputPath, func(w io.Writer) error {
		writeMarkdown(w, data)
		return nil
	})
}

func writeMarkdown(file io.Writer, data *ExportData) {
	_, _ = fmt.Fprintf(file, "# Practice Journal - %s\n\n", data.User.UserID)
	_, _ = fmt.Fprintf(file, "Generated: %s\n\n", data.ExportedAt)

	_, _ = fmt.Fprintln(file, "## Practice")
	_, _ = fmt.Fprintln(file)
	_, _ = fmt.Fprintf(file, "- **Current skill:** %s\n", data.User.CurrentSkill)
	_, _ = fmt.Fprintf(file, "- **Streak:** %d days\n", data.User.Streak)
	_, _ = fmt.Fprintf(file, "- **Sessions:** %d\n\n", data.User.TotalSessions)

	if len(data.Rollups) > 0 {
		_, _ = fmt.Fprintln(file, "## Summaries")
		_, _ = fmt.Fprintln(file)
		_, _ = fmt.Fprintln(file, "| Type | Window | Mood | Samatha | Entries |")
		_, _ = fmt.Fprintln(file, "|------|--------|------|---------|---------|")
		for _, r := range data.Rollups {
			_, _ = fmt.Fprintf(file, "| %s | %s..%s | %s | %s | %d |\n",
				r.Type, r.Start, r.End, r.MoodTrend, r.SamathaTrend, r.EntryCount)
		}
		_, _ = fmt.Fprintln(file)
	}

	if len(data.Entries) > 0 {
		_, _ = fmt.Fprintln(file, "## Entries")
		_, _ = fmt.Fprintln(file)
		for _, e := range data.Entries {
			_, _ = fmt.Fprintf(file, "### %s (%s, skill %s)\n\n", e.Date, e.Type, e.SkillID)
			if len(e.Themes) > 0 {
				_, _ = fmt.Fprintf(file, "*Themes: %s*\n\n", strings.Join(e.Themes, ", "))
			}
			_, _ = fmt.Fprintf(file, "%s\n\n", e.Content)
			if e.Summary != "" {
				_, _ = fmt.Fprintf(file, "> %s\n\n", e.Summary)
			}
			_, _ = fmt.Fprintln(file, "---")
			_, _ = fmt.Fprintln(file)
		}
	}
}

func writeFile(outputPath string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(outputPath) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return write(file)
}
