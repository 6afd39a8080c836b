// ABOUTME: Route handlers for entries, progression, rollups, guidance, nudges, reminders, and ask
// ABOUTME: Handlers bind input, call the pipeline, and map errors through respondErr
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/harper/sitjournal/internal/core"
	"github.com/harper/sitjournal/internal/models"
	"github.com/harper/sitjournal/internal/storage"
)

const maxContentSize = 64 << 10 // 64KB

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (s *Server) handleSkills(c *gin.Context) {
	RespondOK(c, gin.H{"cultivations": s.pipeline.Deps().Catalog.Cultivations()})
}

type createEntryRequest struct {
	Type          models.EntryType `json:"type"`
	Content       string           `json:"content"`
	SkillID       string           `json:"skill_id"`
	TrackProgress *bool            `json:"track_progress"`
	EntryDate     string           `json:"entry_date"`
}

func (s *Server) handleCreateEntry(c *gin.Context) {
	var req createEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	if len(req.Content) > maxContentSize {
		RespondError(c, http.StatusRequestEntityTooLarge, "too_large", errTooLarge)
		return
	}

	entry, err := s.pipeline.CreateEntry(c.Request.Context(), core.NewEntryInput{
		UserID:        c.Param("user"),
		Type:          req.Type,
		Content:       req.Content,
		SkillID:       req.SkillID,
		TrackProgress: req.TrackProgress,
		EntryDate:     req.EntryDate,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (s *Server) handleListEntries(c *gin.Context) {
	f := storage.EntryFilter{
		Type:          models.EntryType(c.Query("type")),
		DateFrom:      c.Query("from"),
		DateTo:        c.Query("to"),
		ProcessedOnly: c.Query("processed") == "true",
		NewestFirst:   c.DefaultQuery("order", "newest") == "newest",
		Limit:         queryInt(c, "limit", 50),
	}
	if skill := c.Query("skill"); skill != "" {
		id, ok := s.pipeline.Deps().Catalog.NormalizeID(skill)
		if !ok {
			RespondError(c, http.StatusBadRequest, "invalid_input", errUnknownSkill(skill))
			return
		}
		f.SkillID = id
	}
	if tracked := c.Query("tracked"); tracked != "" {
		v := tracked == "true"
		f.TrackProgress = &v
	}

	entries, err := s.pipeline.ListEntries(c.Request.Context(), c.Param("user"), f)
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondOK(c, gin.H{"entries": entries, "count": len(entries)})
}

func (s *Server) handleGetEntry(c *gin.Context) {
	entry, err := s.pipeline.GetEntry(c.Request.Context(), c.Param("user"), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondOK(c, entry)
}

func (s *Server) handleEditEntry(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	if len(req.Content) > maxContentSize {
		RespondError(c, http.StatusRequestEntityTooLarge, "too_large", errTooLarge)
		return
	}
	entry, err := s.pipeline.EditEntry(c.Request.Context(), c.Param("user"), c.Param("id"), req.Content)
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondOK(c, entry)
}

func (s *Server) handleDeleteEntry(c *gin.Context) {
	if err := s.pipeline.DeleteEntry(c.Request.Context(), c.Param("user"), c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAnalyzeEntry(c *gin.Context) {
	ctx := c.Request.Context()
	entry, err := s.pipeline.GetEntry(ctx, c.Param("user"), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	res, err := s.pipeline.Extractor.ProcessEntry(ctx, entry.ID, c.Query("force") == "true")
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondOK(c, res)
}

func (s *Server) handleProgress(c *gin.Context) {
	stats, err := s.pipeline.Lookups.ProgressionStats(c.Request.Context(), c.Param("user"))
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondOK(c, stats)
}

func (s *Server) handleAdvance(c *gin.Context) {
	var req struct {
		CurrentSkillID string `json:"current_skill_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	res, err := s.pipeline.Advance(c.Request.Context(), c.Param("user"), req.CurrentSkillID)
	if err != nil {
		respondErr(c, err)
		return
	}
	if res.Denial != nil {
		c.JSON(http.StatusConflict, res)
		return
	}
	RespondOK(c, res)
}

func (s *Server) handleGuidance(c *gin.Context) {
	profile, err := s.pipeline.Lookups.UserProfile(c.Request.Context(), c.Param("user"))
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondOK(c, gin.H{"guidance": profile.Guidance})
}

func (s *Server) handleRegenerateGuidance(c *gin.Context) {
	g, err := s.pipeline.Guidance.Regenerate(c.Request.Context(), c.Param("user"))
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondOK(c, gin.H{"guidance": g})
}

func (s *Server) handleNudges(c *gin.Context) {
	nudges, err := s.pipeline.Nudges.Generate(c.Request.Context(), c.Param("user"), c.Query("skill"))
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondOK(c, gin.H{"nudges": nudges})
}

func (s *Server) handleListRollups(c *gin.Context) {
	summaries, err := s.pipeline.Lookups.PracticeSummaries(c.Request.Context(), c.Param("user"),
		models.RollupType(c.Param("type")), queryInt(c, "limit", 5))
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondOK(c, gin.H{"summaries": summaries})
}

type rollupRequest struct {
	Date  string `json:"date"`
	Force bool   `json:"force"`
}

func (s *Server) bindRollup(c *gin.Context) (time.Time, bool, bool) {
	var req rollupRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_input", err)
			return time.Time{}, false, false
		}
	}
	d := s.pipeline.Deps()
	if req.Date == "" {
		return d.Now(), req.Force, true
	}
	day, err := d.Calendar.ParseDay(req.Date)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return time.Time{}, false, false
	}
	return day, req.Force, true
}

func (s *Server) handleWeekly(c *gin.Context) {
	day, force, ok := s.bindRollup(c)
	if !ok {
		return
	}
	res, err := s.pipeline.Rollups.GenerateWeekly(c.Request.Context(), c.Param("user"), day, force)
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondOK(c, res)
}

func (s *Server) handleMonthly(c *gin.Context) {
	day, force, ok := s.bindRollup(c)
	if !ok {
		return
	}
	res, err := s.pipeline.Rollups.GenerateMonthly(c.Request.Context(), c.Param("user"), day, force)
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondOK(c, res)
}

func (s *Server) handleMonthlyBatch(c *gin.Context) {
	day, _, ok := s.bindRollup(c)
	if !ok {
		return
	}
	report, err := s.pipeline.Rollups.RunMonthlyBatch(c.Request.Context(), day)
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondOK(c, report)
}

func (s *Server) handleBackfill(c *gin.Context) {
	report, err := s.pipeline.Backfill(c.Request.Context(), c.Param("user"), c.Query("reextract") == "true")
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondOK(c, report)
}

func (s *Server) handleReminders(c *gin.Context) {
	res, err := s.pipeline.Reminders.Reschedule(c.Request.Context(), c.Param("user"))
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondOK(c, res)
}

func (s *Server) handleSetReminders(c *gin.Context) {
	var req struct {
		MeditationTime *string `json:"meditation_time"`
		JournalTime    *string `json:"journal_time"`
		JournalEnabled *bool   `json:"journal_enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	st, err := s.pipeline.Reminders.SetSchedule(c.Request.Context(), c.Param("user"), core.ScheduleUpdate{
		MeditationTime: req.MeditationTime,
		JournalTime:    req.JournalTime,
		JournalEnabled: req.JournalEnabled,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondOK(c, st)
}

func (s *Server) handleAsk(c *gin.Context) {
	var req struct {
		Question string `json:"question"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	res, err := s.pipeline.Ask(c.Request.Context(), c.Param("user"), req.Question)
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondOK(c, res)
}

func (s *Server) handleLookup(c *gin.Context) {
	args, err := json.Marshal(core.LookupArgs{
		SkillID: c.Query("skill_id"),
		Limit:   queryInt(c, "limit", 0),
		Type:    c.Query("type"),
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	payload, err := s.pipeline.Lookups.Dispatch(c.Request.Context(), c.Param("user"), c.Param("name"), args)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(payload))
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}
