package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/soraya-vance/daymind/common/retry"
	"github.com/soraya-vance/daymind/internal/daymind/model"
	"github.com/soraya-vance/daymind/internal/daymind/rules"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 30 * time.Second
)

// Config configures OpenAIClient.
type Config struct {
	// APIKey is the bearer token used to authenticate against the API.
	APIKey string

	// BaseURL overrides the API endpoint -- useful for a local model server
	// or any other OpenAI-compatible endpoint. Defaults to
	// https://api.openai.com/v1.
	BaseURL string

	// Model is the chat model to request. Defaults to gpt-4o-mini.
	Model string

	// Timeout bounds a single HTTP call. Defaults to 30s.
	Timeout time.Duration
}

// OpenAIClient implements Client against the OpenAI chat completions API
// using JSON-mode output, so responses are always parseable JSON even when
// they fail the stricter shape validation in schema.go.
type OpenAIClient struct {
	cfg     Config
	http    *http.Client
	limiter *RateLimiter
	budget  *TokenBudget
}

// NewOpenAIClient returns a Client backed by the OpenAI (or compatible) chat
// API. limiter and budget may be nil to disable that guard.
func NewOpenAIClient(cfg Config, limiter *RateLimiter, budget *TokenBudget) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &OpenAIClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		budget:  budget,
	}
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiRequest struct {
	Model          string       `json:"model"`
	Messages       []oaiMessage `json:"messages"`
	MaxTokens      int          `json:"max_tokens,omitempty"`
	ResponseFormat *oaiFormat   `json:"response_format,omitempty"`
}

type oaiFormat struct {
	Type string `json:"type"` // "json_object"
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
	Usage   struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type oaiChoice struct {
	Message oaiMessage `json:"message"`
}

// ExtractTasks implements Client.ExtractTasks. A schema violation or an
// exhausted rate limit/token budget is not an error -- it yields an empty
// result, since the core only ever trusts JSON-shape-valid model output.
func (c *OpenAIClient) ExtractTasks(ctx context.Context, cards []model.UpdateCard) ([]model.Task, error) {
	if len(cards) == 0 {
		return nil, nil
	}

	const accountKey = "extract_tasks"
	if !c.gateAllows(accountKey) {
		slog.Warn("llm: extractTasks skipped, rate limit or token budget exhausted")
		return nil, nil
	}

	content, tokens, err := c.complete(ctx, buildExtractTasksPrompt(cards), "")
	if err != nil {
		return nil, fmt.Errorf("llm: extractTasks call: %w", err)
	}
	c.recordUsage(accountKey, tokens)

	decoded, err := validateJSON(extractedTasksSchema, []byte(content))
	if err != nil {
		slog.Warn("llm: extractTasks output failed schema validation, dropping", "err", err)
		return nil, nil
	}

	var raw []struct {
		Title            string   `json:"title"`
		Category         string   `json:"category"`
		DueAtLocal       *string  `json:"due_at_local"`
		EstimatedMinutes int      `json:"estimated_minutes"`
		MinDailyMinutes  int      `json:"min_daily_minutes"`
		Priority         int      `json:"priority"`
		StressWeight     float64  `json:"stress_weight"`
		SourceCardIndex  int      `json:"source_card_index"`
	}
	reencoded, err := json.Marshal(decoded)
	if err != nil {
		return nil, fmt.Errorf("llm: re-marshal validated extractTasks output: %w", err)
	}
	if err := json.Unmarshal(reencoded, &raw); err != nil {
		slog.Warn("llm: extractTasks output did not match the expected task shape, dropping", "err", err)
		return nil, nil
	}

	tasks := make([]model.Task, 0, len(raw))
	for _, r := range raw {
		if r.SourceCardIndex < 0 || r.SourceCardIndex >= len(cards) {
			slog.Warn("llm: extractTasks emitted an out-of-range source_card_index, dropping task", "index", r.SourceCardIndex)
			continue
		}
		card := cards[r.SourceCardIndex]

		var due *time.Time
		if r.DueAtLocal != nil {
			if t, err := time.Parse("2006-01-02T15:04:05", *r.DueAtLocal); err == nil {
				due = &t
			}
		}

		category := model.TaskCategory(r.Category)
		tasks = append(tasks, model.Task{
			Title:            r.Title,
			Category:         category,
			DueAtLocal:       due,
			EstimatedMinutes: r.EstimatedMinutes,
			MinDailyMinutes:  r.MinDailyMinutes,
			Priority:         r.Priority,
			StressWeight:     r.StressWeight,
			Status:           model.TaskStatusTodo,
			DedupeKey:        model.ComputeDedupeKey(category, r.Title, due),
			Sources: []model.TaskSource{{
				Source:            card.Source,
				AccountID:         card.AccountID,
				ProviderMessageID: card.ProviderMessageID,
				Confidence:        card.ParseConfidence,
			}},
		})
	}
	return tasks, nil
}

// ParseEditIntent implements Client.ParseEditIntent.
func (c *OpenAIClient) ParseEditIntent(ctx context.Context, text string, expectedPlanRevision int64) (rules.EditOperation, error) {
	const accountKey = "parse_edit_intent"
	if !c.gateAllows(accountKey) {
		return rules.EditOperation{}, fmt.Errorf("llm: rate limit or token budget exhausted")
	}

	content, tokens, err := c.complete(ctx, buildParseEditIntentPrompt(expectedPlanRevision, text), "")
	if err != nil {
		return rules.EditOperation{}, fmt.Errorf("llm: parseEditIntent call: %w", err)
	}
	c.recordUsage(accountKey, tokens)

	decoded, err := validateJSON(editOperationSchema, []byte(content))
	if err != nil {
		slog.Warn("llm: parseEditIntent output failed schema validation, dropping", "err", err)
		return rules.EditOperation{}, nil
	}

	var raw struct {
		Intent               string  `json:"intent"`
		StartLocal           *string `json:"start_local"`
		EndLocal             *string `json:"end_local"`
		CalendarEventID      string  `json:"calendar_event_id"`
		FuzzyTitle           string  `json:"fuzzy_title"`
		SleepWindowSet       bool    `json:"sleep_window_set"`
		RequiresConfirmation bool    `json:"requires_confirmation"`
		AmbiguityReason      string  `json:"ambiguity_reason"`
	}
	reencoded, err := json.Marshal(decoded)
	if err != nil {
		return rules.EditOperation{}, fmt.Errorf("llm: re-marshal validated parseEditIntent output: %w", err)
	}
	if err := json.Unmarshal(reencoded, &raw); err != nil {
		slog.Warn("llm: parseEditIntent output did not match the expected shape, dropping", "err", err)
		return rules.EditOperation{}, nil
	}

	op := rules.EditOperation{
		Intent:               rules.EditIntent(raw.Intent),
		ExpectedPlanRevision: expectedPlanRevision,
		CalendarEventID:      raw.CalendarEventID,
		FuzzyTitle:           raw.FuzzyTitle,
		SleepWindowSet:       raw.SleepWindowSet,
		RequiresConfirmation: raw.RequiresConfirmation,
		AmbiguityReason:      raw.AmbiguityReason,
	}
	if raw.StartLocal != nil {
		if t, err := time.Parse("2006-01-02T15:04:05", *raw.StartLocal); err == nil {
			op.StartLocal = &t
		}
	}
	if raw.EndLocal != nil {
		if t, err := time.Parse("2006-01-02T15:04:05", *raw.EndLocal); err == nil {
			op.EndLocal = &t
		}
	}
	return op, nil
}

func (c *OpenAIClient) gateAllows(key string) bool {
	if c.limiter != nil && !c.limiter.Allow(key) {
		return false
	}
	if c.budget != nil && !c.budget.Allow(key) {
		return false
	}
	return true
}

func (c *OpenAIClient) recordUsage(key string, tokens int) {
	if c.budget != nil {
		c.budget.RecordUsage(key, tokens)
	}
}

// complete sends one chat completion request with JSON-mode output and
// returns the model's raw content plus the reported token usage.
func (c *OpenAIClient) complete(ctx context.Context, systemPrompt, userPrompt string) (string, int, error) {
	messages := []oaiMessage{{Role: "system", Content: systemPrompt}}
	if userPrompt != "" {
		messages = append(messages, oaiMessage{Role: "user", Content: userPrompt})
	}

	body := oaiRequest{
		Model:          c.cfg.Model,
		Messages:       messages,
		MaxTokens:      2048,
		ResponseFormat: &oaiFormat{Type: "json_object"},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", 0, fmt.Errorf("marshal request: %w", err)
	}

	var respBody []byte
	var statusCode int
	retryCfg := retry.Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}
	err = retry.Do(ctx, retryCfg, func() error {
		httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(data))
		if reqErr != nil {
			return fmt.Errorf("create http request: %w", reqErr)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

		resp, doErr := c.http.Do(httpReq)
		if doErr != nil {
			return fmt.Errorf("http request: %w", doErr)
		}
		defer resp.Body.Close()
		statusCode = resp.StatusCode

		raw, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("read response body: %w", readErr)
		}
		respBody = raw

		if resp.StatusCode >= 500 {
			return fmt.Errorf("API returned HTTP %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		return "", 0, err
	}

	var oaiResp oaiResponse
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return "", 0, fmt.Errorf("decode API response: %w", err)
	}
	if oaiResp.Error != nil {
		return "", 0, fmt.Errorf("API error (%s): %s", oaiResp.Error.Type, oaiResp.Error.Message)
	}
	if len(oaiResp.Choices) == 0 {
		return "", 0, fmt.Errorf("no choices returned (HTTP %d)", statusCode)
	}

	return oaiResp.Choices[0].Message.Content, oaiResp.Usage.TotalTokens, nil
}
