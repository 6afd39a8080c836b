// ABOUTME: Advisor answers practitioner questions with tool-augmented inference
// ABOUTME: The model may call lookups about the user's practice before it answers
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harper/sitjournal/internal/llm"
	"github.com/harper/sitjournal/internal/logging"
)

// Advisor answers questions about a user's practice
type Advisor struct {
	deps    Deps
	log     *logging.Logger
	lookups *Lookups
}

// NewAdvisor creates an Advisor backed by lookups
func NewAdvisor(d Deps, lookups *Lookups) *Advisor {
	d = d.withDefaults()
	if lookups == nil {
		lookups = NewLookups(d, nil)
	}
	return &Advisor{deps: d, log: d.Logger.Named("advisor"), lookups: lookups}
}

// Ask answers question for userID
func (a *Advisor) Ask(ctx context.Context, userID, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("%w: question cannot be empty", ErrInvalidInput)
	}

	profile, err := a.lookups.UserProfile(ctx, userID)
	if err != nil {
		return "", err
	}

	system := fmt.Sprintf(`You are a warm, practical meditation teacher answering a practitioner's question.
They are working on skill %s (%s) in the %s cultivation.
Use the available lookups when the answer depends on their history. Keep answers under 200 words.
Do not diagnose or give medical advice.`, profile.CurrentSkill.ID, profile.CurrentSkill.Name, profile.Cultivation)

	handle := func(ctx context.Context, name string, args json.RawMessage) (string, error) {
		a.log.Debug("lookup requested", "user", userID, "lookup", name)
		return a.lookups.Dispatch(ctx, userID, name, args)
	}

	answer, err := a.deps.Inference.CompleteWithTools(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: question},
		},
		MaxTokens:   600,
		Temperature: 0.6,
	}, a.lookups.Tools(), handle)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}
