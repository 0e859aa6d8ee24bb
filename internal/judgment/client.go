package judgment

// #region imports
import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// #endregion

// #region config

// Config holds the judgment service connection settings. Zero values
// fall back to the documented defaults.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string

	MaxAttempts    int           // default 3
	AttemptTimeout time.Duration // default 30s, enforced per attempt

	// Backoff and Sleep are pluggable so tests can run without waiting.
	Backoff BackoffFunc
	Sleep   func(time.Duration)
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com"
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 30 * time.Second
	}
	if c.Backoff == nil {
		c.Backoff = ExponentialBackoff
	}
	if c.Sleep == nil {
		c.Sleep = time.Sleep
	}
	return c
}

// #endregion config

// #region client-struct

// Client submits decision requests to the judgment service. The retry
// loop is strictly sequential: each attempt blocks for its backoff
// before the next one starts.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a judgment client.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	return &Client{
		cfg:        cfg.withDefaults(),
		httpClient: &http.Client{},
		log:        log.With().Str("component", "judgment").Logger(),
	}
}

// #endregion client-struct

// #region wire-types

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat any           `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// jsonSchemaFormat constrains the completion to a strict JSON schema.
func jsonSchemaFormat(name string, required []string) map[string]any {
	props := make(map[string]any, len(required))
	for _, f := range required {
		props[f] = map[string]any{"type": "string"}
	}
	return map[string]any{
		"type": "json_schema",
		"json_schema": map[string]any{
			"name": name,
			"schema": map[string]any{
				"type":                 "object",
				"properties":           props,
				"required":             required,
				"additionalProperties": false,
			},
			"strict": true,
		},
	}
}

// #endregion wire-types

// #region disposition

type disposition int

const (
	dispOK disposition = iota
	dispRetry
	dispFatal
)

// #endregion disposition

// #region classify

type decisionPayload struct {
	Category           string `json:"category"`
	Explanation        string `json:"explanation"`
	ExplanationSummary string `json:"explanation_summary"`
}

// Classify submits a decision request and always returns a well-formed
// result: the parsed judgment on success, the deterministic fallback
// when attempts are exhausted or the service fails permanently. The
// only error surface is caller fault (ErrInvalidInput).
func (c *Client) Classify(ctx context.Context, req DecisionRequest) (Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Result{}, fmt.Errorf("%w: empty prompt", ErrInvalidInput)
	}

	body := chatRequest{
		Model:          c.cfg.Model,
		Messages:       []chatMessage{{Role: "user", Content: req.Prompt}},
		ResponseFormat: jsonSchemaFormat("categorization", []string{"category", "explanation", "explanation_summary"}),
	}

	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		content, disp, detail := c.attempt(ctx, body)
		switch disp {
		case dispOK:
			var payload decisionPayload
			if err := parseStrict(content, &payload); err != nil || payload.Category == "" {
				c.log.Warn().Int("attempt", attempt).Str("detail", "unparseable judgment payload").Msg("retrying")
				c.waitBeforeRetry(attempt)
				continue
			}
			summary := TruncateEvidence(payload.ExplanationSummary)
			return Result{
				Category:           payload.Category,
				Explanation:        payload.Explanation,
				ExplanationSummary: summary,
				Confidence:         ParseConfidence(summary),
			}, nil

		case dispRetry:
			c.log.Warn().Int("attempt", attempt).Str("detail", detail).Msg("retrying")
			c.waitBeforeRetry(attempt)

		case dispFatal:
			c.log.Error().Int("attempt", attempt).Str("detail", detail).Msg("judgment service failed permanently, using fallback")
			return Fallback(), nil
		}
	}

	c.log.Warn().Int("attempts", c.cfg.MaxAttempts).Msg("judgment retries exhausted, using fallback")
	return Fallback(), nil
}

// waitBeforeRetry blocks for the attempt's backoff unless this was the
// final attempt.
func (c *Client) waitBeforeRetry(attempt int) {
	if attempt < c.cfg.MaxAttempts-1 {
		c.cfg.Sleep(c.cfg.Backoff(attempt))
	}
}

// #endregion classify

// #region classify-query

type queryPayload struct {
	Category    string `json:"category"`
	Explanation string `json:"explanation"`
}

// ClassifyQuery runs the simple search-query classification
// ("focus"/"regular") used by the categorize endpoint.
func (c *Client) ClassifyQuery(ctx context.Context, query string) (Result, error) {
	prompt, err := BuildQueryPrompt(query)
	if err != nil {
		return Result{}, err
	}

	body := chatRequest{
		Model:          c.cfg.Model,
		Messages:       []chatMessage{{Role: "user", Content: prompt}},
		ResponseFormat: jsonSchemaFormat("categorization", []string{"category", "explanation"}),
	}

	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		content, disp, detail := c.attempt(ctx, body)
		switch disp {
		case dispOK:
			var payload queryPayload
			if err := parseStrict(content, &payload); err != nil || payload.Category == "" {
				c.waitBeforeRetry(attempt)
				continue
			}
			return Result{Category: payload.Category, Explanation: payload.Explanation, Confidence: 50}, nil
		case dispRetry:
			c.log.Warn().Int("attempt", attempt).Str("detail", detail).Msg("retrying")
			c.waitBeforeRetry(attempt)
		case dispFatal:
			c.log.Error().Int("attempt", attempt).Str("detail", detail).Msg("judgment service failed permanently, using fallback")
			return queryFallback(), nil
		}
	}
	return queryFallback(), nil
}

// #endregion classify-query

// #region attempt

// attempt performs one request against the judgment service and
// classifies the outcome. Rate limiting, upstream unavailability, and
// timeouts are retryable; any other non-success status is not.
func (c *Client) attempt(ctx context.Context, body chatRequest) (content string, disp disposition, detail string) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", dispFatal, fmt.Sprintf("marshal request: %v", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", dispFatal, fmt.Sprintf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", dispRetry, "request timeout"
		}
		// Transport failures without a status get the same treatment as
		// upstream unavailability.
		return "", dispRetry, fmt.Sprintf("transport: %v", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var envelope chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return "", dispRetry, fmt.Sprintf("decode envelope: %v", err)
		}
		if len(envelope.Choices) == 0 {
			return "", dispRetry, "empty choices"
		}
		return envelope.Choices[0].Message.Content, dispOK, ""
	case http.StatusTooManyRequests:
		return "", dispRetry, "rate limited"
	case http.StatusBadGateway:
		return "", dispRetry, "upstream unavailable"
	default:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", dispFatal, fmt.Sprintf("status %d: %s", resp.StatusCode, raw)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// parseStrict decodes a judgment payload rejecting unknown fields.
func parseStrict(content string, out any) error {
	dec := json.NewDecoder(strings.NewReader(content))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// #endregion attempt

// #region fallback

// Fallback is the deterministic negative result substituted when the
// judgment service cannot produce a usable answer.
func Fallback() Result {
	return Result{
		Category:           "false",
		Explanation:        "Max retries reached before the judgment service returned a usable result.",
		ExplanationSummary: "Confidence: 50% | Key Evidence: Max retries reached...",
		Confidence:         50,
		Fallback:           true,
	}
}

func queryFallback() Result {
	return Result{
		Category:    "regular",
		Explanation: "Max retries reached before the judgment service returned a usable result.",
		Confidence:  50,
		Fallback:    true,
	}
}

// #endregion fallback
