// ABOUTME: Signal extractor turning one journal entry into a per-skill signal block
// ABOUTME: Builds tiered skill knowledge and a coherence policy, then parses the model's JSON strictly
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/harper/sitjournal/internal/catalog"
	"github.com/harper/sitjournal/internal/llm"
	"github.com/harper/sitjournal/internal/logging"
	"github.com/harper/sitjournal/internal/models"
	"github.com/harper/sitjournal/internal/storage"
)

// MinExtractTokens is the shortest entry worth analyzing
const MinExtractTokens = 10

// progressWindow bounds how many analyzed entries feed the progress snapshot
const progressWindow = 50

// ErrExtractionFailure means inference failed or returned an unusable payload
var ErrExtractionFailure = errors.New("signal extraction failed")

// ExtractInput is everything the model sees about one entry
type ExtractInput struct {
	Content  string
	Frontier string
	Report   *models.ProgressReport
}

// ExtractResult is either a signal block or a deliberate skip
type ExtractResult struct {
	Signals *models.SignalBlock `json:"signals,omitempty"`
	Skipped bool                `json:"skipped"`
	Reason  string              `json:"reason,omitempty"`
}

// Extractor runs signal extraction and persists the result
type Extractor struct {
	deps   Deps
	log    *logging.Logger
	policy *bluemonday.Policy
}

// NewExtractor creates an Extractor
func NewExtractor(d Deps) *Extractor {
	d = d.withDefaults()
	return &Extractor{
		deps:   d,
		log:    d.Logger.Named("extractor"),
		policy: bluemonday.StrictPolicy(),
	}
}

// PlainText strips markup from rich-text content
func (x *Extractor) PlainText(content string) string {
	return html.UnescapeString(x.policy.Sanitize(content))
}

// TokenCount counts whitespace-separated tokens of the plain text
func (x *Extractor) TokenCount(content string) int {
	return len(strings.Fields(x.PlainText(content)))
}

// Extract infers a signal block for the content. Short content is skipped
// without calling inference.
func (x *Extractor) Extract(ctx context.Context, in ExtractInput) (ExtractResult, error) {
	text := x.PlainText(in.Content)
	if n := len(strings.Fields(text)); n < MinExtractTokens {
		return ExtractResult{
			Skipped: true,
			Reason:  fmt.Sprintf("need %d tokens to analyze, have %d", MinExtractTokens, n),
		}, nil
	}

	frontier := in.Frontier
	if !x.deps.Catalog.Valid(frontier) {
		frontier = x.deps.Catalog.First().ID
	}

	raw, err := x.deps.Inference.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: x.systemPrompt(frontier, in.Report)},
			{Role: llm.RoleUser, Content: "Journal entry:\n\n" + text},
		},
		MaxTokens:   1200,
		JSONMode:    true,
		Temperature: 0.2,
	})
	if err != nil {
		return ExtractResult{}, fmt.Errorf("%w: %w", ErrExtractionFailure, err)
	}

	block, err := ParseSignals(x.deps.Catalog, raw, frontier)
	if err != nil {
		return ExtractResult{}, err
	}
	return ExtractResult{Signals: block}, nil
}

// ProcessEntry extracts and persists signals for a stored entry. Already
// processed entries are skipped unless force is set.
func (x *Extractor) ProcessEntry(ctx context.Context, entryID string, force bool) (ExtractResult, error) {
	entry, err := x.deps.Entries.Get(ctx, entryID)
	if err != nil {
		return ExtractResult{}, err
	}
	if entry.Type != models.EntryReflect {
		return ExtractResult{Skipped: true, Reason: "only reflections are analyzed"}, nil
	}
	if entry.Processed() && !force {
		return ExtractResult{Skipped: true, Reason: "already processed"}, nil
	}

	user, err := x.deps.Users.GetOrCreate(ctx, entry.UserID, x.deps.Catalog.First().ID)
	if err != nil {
		return ExtractResult{}, err
	}
	frontier := entry.SkillID
	if !x.deps.Catalog.Valid(frontier) {
		frontier = user.CurrentSkill
	}

	res, err := x.Extract(ctx, ExtractInput{Content: entry.Content, Frontier: frontier, Report: user.ProgressReport})
	if err != nil || res.Skipped {
		return res, err
	}

	if err := x.deps.Entries.UpdateSignals(ctx, entry.ID, res.Signals, x.deps.Now().UTC()); err != nil {
		return ExtractResult{}, err
	}
	x.log.Info("entry analyzed", "entry", entry.ID, "frontier", res.Signals.FrontierSkillInferred,
		"phases", len(res.Signals.SkillPhases))

	if err := x.RefreshProgressReport(ctx, entry.UserID); err != nil {
		x.log.Warn("progress report refresh failed", "user", entry.UserID, "error", err)
	}
	return res, nil
}

// RefreshProgressReport rebuilds the cross-skill snapshot from recent analyzed entries
func (x *Extractor) RefreshProgressReport(ctx context.Context, userID string) error {
	entries, err := x.deps.Entries.Query(ctx, storage.EntryFilter{
		UserID:        userID,
		Type:          models.EntryReflect,
		TrackProgress: storage.Tracked(),
		ProcessedOnly: true,
		NewestFirst:   true,
		Limit:         progressWindow,
	})
	if err != nil {
		return err
	}

	report := BuildProgressReport(entries)
	report.UpdatedAt = x.deps.Now().UTC()
	_, err = x.deps.Users.Update(ctx, userID, func(u *models.UserState) error {
		u.ProgressReport = report
		return nil
	})
	return err
}

// BuildProgressReport aggregates skill phases across entries given newest first
func BuildProgressReport(entries []*models.Entry) *models.ProgressReport {
	rows := make(map[string]*models.SkillProgress)
	report := &models.ProgressReport{Skills: []models.SkillProgress{}}

	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Signals == nil {
			continue
		}
		report.FrontierSkillInferred = e.Signals.FrontierSkillInferred
		for _, p := range e.Signals.SkillPhases {
			row, ok := rows[p.SkillID]
			if !ok {
				row = &models.SkillProgress{SkillID: p.SkillID}
				rows[p.SkillID] = row
			}
			row.Sessions++
			if len(p.MarkersObserved) > 0 {
				row.MarkerSessions++
			}
			if len(p.HindrancesObserved) > 0 {
				row.HindranceSessions++
			}
			row.LastSamatha = p.SamathaTendency
		}
	}

	for _, row := range rows {
		report.Skills = append(report.Skills, *row)
	}
	sort.Slice(report.Skills, func(i, j int) bool { return report.Skills[i].SkillID < report.Skills[j].SkillID })
	return report
}

func (x *Extractor) systemPrompt(frontier string, report *models.ProgressReport) string {
	cat := x.deps.Catalog
	n := cat.Ordinal(frontier)

	var b strings.Builder
	b.WriteString("You analyze meditation journal entries and infer which curriculum skills were practiced.\n")
	b.WriteString("Respond with a single JSON object only.\n\n")

	fmt.Fprintf(&b, "The practitioner is working on skill %s.\n\n", frontier)

	b.WriteString("## Skills in detail\n")
	for i := n - 1; i <= n; i++ {
		if s, ok := cat.At(i); ok {
			writeSkillDetail(&b, s)
		}
	}

	if n >= 2 {
		b.WriteString("\n## Earlier skills\n")
		for i := 0; i <= n-2; i++ {
			s, _ := cat.At(i)
			fmt.Fprintf(&b, "- %s %s: marker %s, hindrance %s, antidote: %s\n",
				s.ID, s.Name, s.Marker.Code, s.Hindrance.Code, s.Antidote)
		}
	}

	if next, ok := cat.At(n + 1); ok {
		fmt.Fprintf(&b, "\n## Next skill\n- %s %s: marker %s, hindrance %s\n",
			next.ID, next.Name, next.Marker.Code, next.Hindrance.Code)
	}

	b.WriteString("\n## Coherence policy\n")
	fmt.Fprintf(&b, "Interpret activity for skills up to %s generously: partial or tentative descriptions count.\n",
		idAt(cat, n+1, frontier))
	b.WriteString("Be skeptical of anything beyond that. Practitioners often know vocabulary for skills they ")
	b.WriteString("have not reached yet; only report a phase above that level when the entry describes ")
	b.WriteString("concrete, first-hand experience of it.\n")

	if report != nil && len(report.Skills) > 0 {
		b.WriteString("\n## Recent progress\n")
		if report.FrontierSkillInferred != "" {
			fmt.Fprintf(&b, "Last inferred frontier: %s\n", report.FrontierSkillInferred)
		}
		for _, row := range report.Skills {
			fmt.Fprintf(&b, "- %s: %d sessions, marker in %d, hindrance in %d, last samatha %s\n",
				row.SkillID, row.Sessions, row.MarkerSessions, row.HindranceSessions, row.LastSamatha)
		}
	}

	b.WriteString(`
## Output
{
  "frontier_skill_inferred": "two-digit skill id practiced up to",
  "skill_phases": [
    {
      "skill_id": "two-digit id",
      "markers_observed": ["marker codes"],
      "hindrances_observed": ["hindrance codes"],
      "samatha_tendency": "strong|moderate|weak|none",
      "notes": "short note",
      "techniques": ["technique names"],
      "hindrance_conditions": ["what seemed to trigger the hindrance"],
      "balance_approach": "what the practitioner did that helped, or empty",
      "key_understanding": "insight the practitioner expressed, or empty"
    }
  ],
  "overall_samatha_tendency": "strong|moderate|weak|none",
  "summary": "one sentence",
  "mood_score": 1-5,
  "mood_tags": ["..."],
  "themes": ["..."],
  "has_breakthrough": false,
  "has_struggle": false,
  "has_crisis_flag": false,
  "progression_signals": ["evidence the current skill is maturing, empty if none"]
}
`)
	return b.String()
}

func writeSkillDetail(b *strings.Builder, s models.Skill) {
	fmt.Fprintf(b, "### %s %s (%s)\n", s.ID, s.Name, s.Cultivation)
	fmt.Fprintf(b, "- marker %s: %s\n", s.Marker.Code, s.Marker.Label)
	fmt.Fprintf(b, "- hindrance %s: %s\n", s.Hindrance.Code, s.Hindrance.Label)
	fmt.Fprintf(b, "- antidote: %s\n", s.Antidote)
	fmt.Fprintf(b, "- insight: %s\n", s.Insight)
	fmt.Fprintf(b, "- techniques: %s\n", strings.Join(s.Techniques, ", "))
	fmt.Fprintf(b, "- advancement: %s\n", s.AdvancementCriteria)
}

func idAt(cat *catalog.Catalog, i int, fallback string) string {
	if s, ok := cat.At(i); ok {
		return s.ID
	}
	return fallback
}

// skillRef accepts a skill id given as a string or a bare number
type skillRef string

func (r *skillRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = skillRef(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("skill id must be a string or number: %s", data)
	}
	*r = skillRef(n.String())
	return nil
}

type rawPhase struct {
	SkillID             skillRef `json:"skill_id"`
	MarkersObserved     []string `json:"markers_observed"`
	HindrancesObserved  []string `json:"hindrances_observed"`
	SamathaTendency     string   `json:"samatha_tendency"`
	Notes               string   `json:"notes"`
	Techniques          []string `json:"techniques"`
	HindranceConditions []string `json:"hindrance_conditions"`
	BalanceApproach     string   `json:"balance_approach"`
	KeyUnderstanding    string   `json:"key_understanding"`
}

type rawSignals struct {
	FrontierSkillInferred  *skillRef       `json:"frontier_skill_inferred"`
	SkillPhases            *[]rawPhase     `json:"skill_phases"`
	OverallSamathaTendency string          `json:"overall_samatha_tendency"`
	Summary                string          `json:"summary"`
	MoodScore              json.RawMessage `json:"mood_score"`
	MoodTags               []string        `json:"mood_tags"`
	Themes                 []string        `json:"themes"`
	HasBreakthrough        bool            `json:"has_breakthrough"`
	HasStruggle            bool            `json:"has_struggle"`
	HasCrisisFlag          bool            `json:"has_crisis_flag"`
	ProgressionSignals     []string        `json:"progression_signals"`
}

// ParseSignals validates the model's JSON into a signal block. Missing
// required keys fail the whole extraction; unknown skills are dropped.
func ParseSignals(cat *catalog.Catalog, raw, frontierHint string) (*models.SignalBlock, error) {
	body, err := llm.ExtractJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailure, err)
	}

	var in rawSignals
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		return nil, fmt.Errorf("%w: %w: %v", ErrExtractionFailure, llm.ErrMalformedResponse, err)
	}
	if in.FrontierSkillInferred == nil {
		return nil, fmt.Errorf("%w: missing frontier_skill_inferred", ErrExtractionFailure)
	}
	if in.SkillPhases == nil {
		return nil, fmt.Errorf("%w: missing skill_phases", ErrExtractionFailure)
	}

	frontier, ok := cat.NormalizeID(string(*in.FrontierSkillInferred))
	if !ok {
		frontier = frontierHint
	}

	phases := make([]models.SkillPhase, 0, len(*in.SkillPhases))
	for _, p := range *in.SkillPhases {
		id, ok := cat.NormalizeID(string(p.SkillID))
		if !ok {
			continue
		}
		phases = append(phases, models.SkillPhase{
			SkillID:             id,
			MarkersObserved:     cleanList(p.MarkersObserved, true),
			HindrancesObserved:  cleanList(p.HindrancesObserved, true),
			SamathaTendency:     models.ParseSamatha(p.SamathaTendency),
			Notes:               strings.TrimSpace(p.Notes),
			Techniques:          cleanList(p.Techniques, false),
			HindranceConditions: cleanList(p.HindranceConditions, false),
			BalanceApproach:     strings.TrimSpace(p.BalanceApproach),
			KeyUnderstanding:    strings.TrimSpace(p.KeyUnderstanding),
		})
	}

	overall := models.ParseSamatha(in.OverallSamathaTendency)

	return &models.SignalBlock{
		FrontierSkillInferred:  frontier,
		SkillPhases:            phases,
		OverallSamathaTendency: overall,
		FlatSignals:            Flatten(phases, frontier, overall),
		Summary:                strings.TrimSpace(in.Summary),
		MoodScore:              parseMood(in.MoodScore),
		MoodTags:               cleanList(in.MoodTags, true),
		Themes:                 cleanList(in.Themes, false),
		HasBreakthrough:        in.HasBreakthrough,
		HasStruggle:            in.HasStruggle,
		HasCrisisFlag:          in.HasCrisisFlag,
		ProgressionSignals:     cleanList(in.ProgressionSignals, false),
	}, nil
}

// parseMood accepts a number or a numeric string. Anything else, such as
// "4/5", leaves the mood unset without failing the extraction.
func parseMood(raw json.RawMessage) *int {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return nil
		}
		if f, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return nil
		}
	}
	v := int(math.Round(f))
	if v < 1 || v > 5 {
		return nil
	}
	return &v
}

// cleanList trims, drops empties and duplicates, optionally lowercasing codes
func cleanList(in []string, lower bool) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if lower {
			s = strings.ToLower(s)
		}
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
