// ABOUTME: OpenAI chat client used as the inference capability for extraction and synthesis
// ABOUTME: Supports JSON mode and a tool-call loop; malformed output is distinguishable from transport errors
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/harper/sitjournal/internal/util"
)

const (
	// DefaultChatModel is the default model for chat completions
	DefaultChatModel = "gpt-4o-mini"
	// DefaultMaxToolRounds bounds how many lookup rounds a tool-augmented completion may take
	DefaultMaxToolRounds = 5
)

// ErrMalformedResponse means the model answered but the payload was unusable
var ErrMalformedResponse = errors.New("malformed model response")

// Message roles
const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// Message is one chat turn
type Message struct {
	Role    string
	Content string
}

// Request is a single completion request
type Request struct {
	Messages    []Message
	MaxTokens   int
	JSONMode    bool
	Temperature float32
}

// ToolSpec describes a lookup the model may call
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolHandler executes one tool call and returns the text fed back to the model
type ToolHandler func(ctx context.Context, name string, args json.RawMessage) (string, error)

// ClientConfig holds configuration for the OpenAI client
type ClientConfig struct {
	APIKey        string
	BaseURL       string
	ChatModel     string
	Timeout       time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	MaxToolRounds int
}

// DefaultConfig returns the default client configuration
func DefaultConfig(apiKey string) *ClientConfig {
	return &ClientConfig{
		APIKey:        apiKey,
		ChatModel:     DefaultChatModel,
		Timeout:       45 * time.Second,
		MaxRetries:    2,
		RetryDelay:    2 * time.Second,
		MaxToolRounds: DefaultMaxToolRounds,
	}
}

// Client wraps the OpenAI API client with retry logic
type Client struct {
	client        *openai.Client
	chatModel     string
	timeout       time.Duration
	maxRetries    int
	retryDelay    time.Duration
	maxToolRounds int
}

// NewClient creates a new OpenAI client with custom configuration
func NewClient(config *ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	oc := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		oc.BaseURL = config.BaseURL
	}

	model := config.ChatModel
	if model == "" {
		model = DefaultChatModel
	}
	rounds := config.MaxToolRounds
	if rounds <= 0 {
		rounds = DefaultMaxToolRounds
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	return &Client{
		client:        openai.NewClientWithConfig(oc),
		chatModel:     model,
		timeout:       timeout,
		maxRetries:    config.MaxRetries,
		retryDelay:    config.RetryDelay,
		maxToolRounds: rounds,
	}, nil
}

// Model returns the configured chat model
func (c *Client) Model() string {
	return c.chatModel
}

// Complete runs one chat completion. In JSON mode the returned text is a
// bare JSON object with any code fence removed.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	msgs := toOpenAIMessages(req.Messages)

	var out string
	err := util.Retry(ctx, c.maxRetries, c.retryDelay, func(ctx context.Context, _ int) error {
		msg, err := c.create(ctx, req, msgs, nil)
		if err != nil {
			return err
		}
		text := msg.Content
		if req.JSONMode {
			text, err = ExtractJSON(text)
			if err != nil {
				return err
			}
		}
		out = text
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	return out, nil
}

// CompleteWithTools lets the model call lookups before producing its final answer.
// Tool handler errors are reported back to the model rather than aborting.
func (c *Client) CompleteWithTools(ctx context.Context, req Request, tools []ToolSpec, handle ToolHandler) (string, error) {
	msgs := toOpenAIMessages(req.Messages)
	defs := toOpenAITools(tools)

	for round := 0; round <= c.maxToolRounds; round++ {
		offered := defs
		if round == c.maxToolRounds {
			// last round forces a plain answer
			offered = nil
		}

		var reply openai.ChatCompletionMessage
		err := util.Retry(ctx, c.maxRetries, c.retryDelay, func(ctx context.Context, _ int) error {
			m, err := c.create(ctx, req, msgs, offered)
			if err != nil {
				return err
			}
			reply = m
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("tool completion round %d: %w", round+1, err)
		}

		if len(reply.ToolCalls) == 0 {
			if strings.TrimSpace(reply.Content) == "" {
				return "", fmt.Errorf("tool completion: %w: empty answer", ErrMalformedResponse)
			}
			return reply.Content, nil
		}

		msgs = append(msgs, reply)
		for _, call := range reply.ToolCalls {
			result, herr := handle(ctx, call.Function.Name, json.RawMessage(call.Function.Arguments))
			if herr != nil {
				result = fmt.Sprintf(`{"error": %q}`, herr.Error())
			}
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    result,
				Name:       call.Function.Name,
				ToolCallID: call.ID,
			})
		}
	}

	return "", fmt.Errorf("tool completion: %w: no answer after %d rounds", ErrMalformedResponse, c.maxToolRounds+1)
}

func (c *Client) create(ctx context.Context, req Request, msgs []openai.ChatCompletionMessage, tools []openai.Tool) (openai.ChatCompletionMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	creq := openai.ChatCompletionRequest{
		Model:       c.chatModel,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Tools:       tools,
	}
	if req.JSONMode && len(tools) == 0 {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		if isPermanent(err) {
			return openai.ChatCompletionMessage{}, util.Permanent(err)
		}
		return openai.ChatCompletionMessage{}, err
	}
	if len(resp.Choices) == 0 {
		return openai.ChatCompletionMessage{}, fmt.Errorf("%w: no completion choices returned", ErrMalformedResponse)
	}
	return resp.Choices[0].Message, nil
}

// isPermanent reports client errors that retrying cannot fix
func isPermanent(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 &&
			apiErr.HTTPStatusCode != http.StatusTooManyRequests
	}
	return false
}

// ExtractJSON strips a markdown fence and surrounding prose, returning the
// outermost JSON object or ErrMalformedResponse.
func ExtractJSON(text string) (string, error) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("%w: no JSON object in output", ErrMalformedResponse)
	}
	s = s[start : end+1]
	if !json.Valid([]byte(s)) {
		return "", fmt.Errorf("%w: invalid JSON", ErrMalformedResponse)
	}
	return s, nil
}

func toOpenAIMessages(in []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(in))
	for _, m := range in {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func toOpenAITools(in []ToolSpec) []openai.Tool {
	out := make([]openai.Tool, 0, len(in))
	for _, t := range in {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
