// ABOUTME: Opens config, storage, inference, and the pipeline for a command run
// ABOUTME: Close drains background work before the database is closed
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/harper/sitjournal/internal/calendar"
	"github.com/harper/sitjournal/internal/config"
	"github.com/harper/sitjournal/internal/core"
	"github.com/harper/sitjournal/internal/llm"
	"github.com/harper/sitjournal/internal/logging"
	"github.com/harper/sitjournal/internal/storage/sqlite"
)

type app struct {
	cfg      *config.Config
	log      *logging.Logger
	store    *sqlite.Storage
	bg       *core.Background
	pipeline *core.Pipeline
	userID   string
}

// openApp wires everything from the environment. Long-running commands pass
// alwaysLog so they log even without --verbose.
func openApp(alwaysLog bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	log := logging.Nop()
	if verbose || alwaysLog {
		if log, err = logging.New(cfg.LogMode); err != nil {
			return nil, fmt.Errorf("initializing logger: %w", err)
		}
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	store, err := sqlite.NewStorageWithPath(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}

	var inference core.ToolInference
	if cfg.OpenAIKey != "" {
		client, err := llm.NewClient(&llm.ClientConfig{
			APIKey:     cfg.OpenAIKey,
			ChatModel:  cfg.ChatModel,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
		})
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("initializing OpenAI client: %w", err)
		}
		inference = client
	} else if !quiet {
		fmt.Fprintln(os.Stderr, "Warning: OPENAI_API_KEY not set - analysis, summaries, and answers are unavailable")
	}

	bg := core.NewBackground(cfg.BackgroundConcurrency, cfg.BackgroundTimeout, log)
	pipeline := core.NewPipeline(core.Deps{
		Entries:   store.Entries,
		Users:     store.Users,
		Rollups:   store.Rollups,
		Reminders: store.Reminders,
		Inference: inference,
		Calendar:  calendar.New(loc),
		Executor:  bg,
		Logger:    log,
	})

	userID := userFlag
	if userID == "" {
		userID = cfg.UserID
	}

	return &app{
		cfg:      cfg,
		log:      log,
		store:    store,
		bg:       bg,
		pipeline: pipeline,
		userID:   userID,
	}, nil
}

// Close waits for background extraction and recomputation, then closes storage
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.BackgroundTimeout)
	defer cancel()
	if err := a.bg.Shutdown(ctx); err != nil {
		a.log.Warn("background work did not finish", "error", err)
	}
	err := a.store.Close()
	a.log.Sync()
	return err
}
