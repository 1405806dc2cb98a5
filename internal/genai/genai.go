// Package genai wraps the external generative-dialogue service (OpenAI API).
//
// It exposes the two generation modes the router uses: persistent multi-turn
// threads (create/append/run) and stateless single-shot completions.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

// Default polling interval for run completion.
const defaultPollInterval = time.Second

// Error variables for better error handling and testability
var (
	// ErrNoChoicesReturned indicates the completion response carried no choices.
	ErrNoChoicesReturned = errors.New("no choices returned")
	// ErrRunNotCompleted indicates a thread run reached a terminal state other
	// than completed.
	ErrRunNotCompleted = errors.New("run did not complete")
)

// RunOptions controls a multi-turn thread run.
type RunOptions struct {
	// IncludeTools attaches the coaching function tools to the run. Tool
	// definitions consume input budget even when unused, so callers enable
	// them only for message types that may need them.
	IncludeTools bool
	// ResponseTypeHint selects the brief per-run instructions, e.g.
	// "goal_setting" or "accountability". Empty means no extra instructions.
	ResponseTypeHint string
}

// RunResult is the outcome of one thread run: the reply texts produced by the
// run, tagged with the run id that generated them.
type RunResult struct {
	RunID    string
	Messages []string
}

// SingleShotRequest describes one stateless generation call.
type SingleShotRequest struct {
	SystemPrompt string
	UserText     string
	Model        string
	MaxTokens    int64
	Temperature  float64
}

// SingleShotResult is the outcome of a stateless generation call.
type SingleShotResult struct {
	Text       string
	TokensUsed int64
}

// ClientInterface defines the dialogue-service operations consumed by the
// thread lifecycle manager and the route pipeline.
type ClientInterface interface {
	// CreateThread creates a new empty thread and returns its external id.
	CreateThread(ctx context.Context) (string, error)
	// AppendMessage appends a message to an existing thread.
	AppendMessage(ctx context.Context, threadID, role, text string) error
	// RunThread triggers generation on the thread and returns the reply texts
	// produced by that run only.
	RunThread(ctx context.Context, threadID string, opts RunOptions) (*RunResult, error)
	// SingleShot performs a stateless generation call.
	SingleShot(ctx context.Context, req SingleShotRequest) (*SingleShotResult, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey      string
	AssistantID string
}

// Option configures the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key, overriding the environment.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithAssistantID sets the coach assistant id used for thread runs.
func WithAssistantID(id string) Option {
	return func(o *Opts) {
		o.AssistantID = id
	}
}

// Client wraps the OpenAI client for thread and completion operations.
type Client struct {
	client      openai.Client
	assistantID string
}

// NewClient initializes a new GenAI client. The API key is taken from options
// or the OPENAI_API_KEY environment variable; the assistant id from options or
// OPENAI_ASSISTANT_ID.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.AssistantID == "" {
		cfg.AssistantID = os.Getenv("OPENAI_ASSISTANT_ID")
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("genai.NewClient: client initialized", "assistantID_set", cfg.AssistantID != "")
	return &Client{client: cli, assistantID: cfg.AssistantID}, nil
}

// CreateThread creates a new empty thread on the dialogue service.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	thread, err := c.client.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		slog.Error("genai.CreateThread failed", "error", err)
		return "", fmt.Errorf("failed to create thread: %w", err)
	}
	slog.Debug("genai.CreateThread succeeded", "threadID", thread.ID)
	return thread.ID, nil
}

// AppendMessage appends a message with the given role to an existing thread.
func (c *Client) AppendMessage(ctx context.Context, threadID, role, text string) error {
	msgRole := openai.BetaThreadMessageNewParamsRoleUser
	if role == "assistant" {
		msgRole = openai.BetaThreadMessageNewParamsRoleAssistant
	}
	_, err := c.client.Beta.Threads.Messages.New(ctx, threadID, openai.BetaThreadMessageNewParams{
		Role: msgRole,
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: param.NewOpt(text),
		},
	})
	if err != nil {
		slog.Error("genai.AppendMessage failed", "error", err, "threadID", threadID, "role", role)
		return fmt.Errorf("failed to append message to thread %s: %w", threadID, err)
	}
	return nil
}

// RunThread triggers generation on the thread, waits for completion, and
// returns only the messages produced by this run.
func (c *Client) RunThread(ctx context.Context, threadID string, opts RunOptions) (*RunResult, error) {
	params := openai.BetaThreadRunNewParams{
		AssistantID: c.assistantID,
	}
	if instructions := buildRunInstructions(opts.ResponseTypeHint); instructions != "" {
		params.Instructions = param.NewOpt(instructions)
	}
	if opts.IncludeTools {
		params.Tools = CoachToolDefinitions()
	}

	run, err := c.client.Beta.Threads.Runs.New(ctx, threadID, params)
	if err != nil {
		slog.Error("genai.RunThread: run creation failed", "error", err, "threadID", threadID)
		return nil, fmt.Errorf("failed to start run on thread %s: %w", threadID, err)
	}
	slog.Debug("genai.RunThread: run started", "threadID", threadID, "runID", run.ID, "tools", opts.IncludeTools)

	run, err = c.waitForRun(ctx, threadID, run.ID)
	if err != nil {
		slog.Error("genai.RunThread: polling failed", "error", err, "threadID", threadID)
		return nil, err
	}
	if run.Status != openai.RunStatusCompleted {
		slog.Error("genai.RunThread: run ended in non-completed state", "threadID", threadID, "runID", run.ID, "status", run.Status)
		return nil, fmt.Errorf("%w: status %s", ErrRunNotCompleted, run.Status)
	}

	page, err := c.client.Beta.Threads.Messages.List(ctx, threadID, openai.BetaThreadMessageListParams{
		RunID: openai.String(run.ID),
		Order: openai.BetaThreadMessageListParamsOrderAsc,
	})
	if err != nil {
		slog.Error("genai.RunThread: listing run messages failed", "error", err, "threadID", threadID, "runID", run.ID)
		return nil, fmt.Errorf("failed to list messages for run %s: %w", run.ID, err)
	}

	texts := extractRunMessages(page.Data, run.ID)
	slog.Debug("genai.RunThread succeeded", "threadID", threadID, "runID", run.ID, "messages", len(texts))
	return &RunResult{RunID: run.ID, Messages: texts}, nil
}

// waitForRun polls the run until it leaves the queued/in-progress states and
// returns its terminal form. The poll interval is fixed; the context bounds
// the total wait.
func (c *Client) waitForRun(ctx context.Context, threadID, runID string) (*openai.Run, error) {
	ticker := time.NewTicker(defaultPollInterval)
	defer ticker.Stop()
	for {
		run, err := c.client.Beta.Threads.Runs.Get(ctx, threadID, runID)
		if err != nil {
			return nil, fmt.Errorf("failed polling run %s: %w", runID, err)
		}
		if runTerminal(run.Status) {
			return run, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for run %s: %w", runID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// runTerminal reports whether the run status is final. Requires-action counts
// as terminal here: the coach flow submits no tool outputs mid-run, so such a
// run will never complete on its own.
func runTerminal(status openai.RunStatus) bool {
	switch status {
	case openai.RunStatusQueued, openai.RunStatusInProgress:
		return false
	default:
		return true
	}
}

// SingleShot performs a stateless generation call with only the current
// turn's prompt.
func (c *Client) SingleShot(ctx context.Context, req SingleShotRequest) (*SingleShotResult, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(req.UserText),
		},
		MaxTokens:   openai.Int(req.MaxTokens),
		Temperature: openai.Float(req.Temperature),
	})
	if err != nil {
		slog.Error("genai.SingleShot failed", "error", err, "model", req.Model)
		return nil, fmt.Errorf("single-shot generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoicesReturned
	}
	return &SingleShotResult{
		Text:       resp.Choices[0].Message.Content,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// extractRunMessages filters thread messages down to assistant text produced
// by the given run. Messages carry the run id that generated them, which keeps
// concurrent or retried runs from bleeding into each other's replies.
func extractRunMessages(messages []openai.Message, runID string) []string {
	var texts []string
	for _, msg := range messages {
		if msg.Role != openai.MessageRoleAssistant || msg.RunID != runID {
			continue
		}
		for _, content := range msg.Content {
			if content.Type == "text" {
				texts = append(texts, content.Text.Value)
			}
		}
	}
	return texts
}

// buildRunInstructions maps a response type hint to brief per-run
// instructions. Unknown hints get no extra instructions so the assistant's
// built-in system prompt carries the personality.
func buildRunInstructions(hint string) string {
	switch hint {
	case "goal_setting":
		return "Help the user define a concrete, achievable goal. Ask one clarifying question at a time."
	case "accountability":
		return "Apply gentle pressure. Reference their commitments and ask a direct follow-up."
	case "pattern_analysis":
		return "Analyze the user's recent behavior patterns and name one concrete pattern."
	case "deep_coaching":
		return "Provide accountability coaching. Ask follow-up questions."
	default:
		return ""
	}
}
