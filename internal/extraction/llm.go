package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/voltgrid/cancelflow/internal/config"
	"github.com/voltgrid/cancelflow/internal/sanitize"
)

// Default configuration values.
const (
	defaultBaseURL     = "https://api.openai.com"
	defaultModel       = "gpt-4o-mini"
	defaultMaxTokens   = 1024
	defaultTimeout     = 20 * time.Second
	defaultMaxRetries  = 3
	defaultBaseBackoff = 250 * time.Millisecond
)

// Rate limiter defaults: 50 requests per minute.
const (
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

// LLMExtractor implements InferenceExtractor against an OpenAI-style
// chat-completions API.
type LLMExtractor struct {
	model      string
	apiKey     string // never serialized or logged
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

// NewLLMExtractor creates an inference extractor from configuration.
func NewLLMExtractor(cfg config.InferenceConfig) (*LLMExtractor, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("inference API key required")
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = cfg.Timeout.Duration()
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}

	return &LLMExtractor{
		model:   model,
		apiKey:  cfg.APIKey.Value(),
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxRetries: maxRetries,
	}, nil
}

// chatRequest represents the request format for the chat API.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type chatError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// extractPrompt is the system prompt for inference extraction.
const extractPrompt = `You are a support-triage classifier for an EV home-charging subscription provider. Analyze the customer email and respond ONLY with a JSON object:
- "is_cancellation": bool, true only when the customer asks to end their subscription
- "reason": one of "moving", "payment_issue", "other", "unknown"
- "move_date": optional date as "YYYY-MM-DD"
- "language": one of "no", "en", "de"
- "edge_case": one of "none", "already_canceled", "no_app_access", "payment_dispute", "corporate_account", "sameie_concern", "immediate_termination", "future_move_date"
- "urgency": one of "immediate", "future", "unclear"
- "customer_concerns": array of short topic tags
- "policy_risks": array of free-text warnings (legal threats, withdrawal rights, data-protection requests)
- "has_payment_issue": bool
- "payment_concerns": array of short tags
- "confidence_factors": object with booleans "clear_intent", "complete_information", "standard_case"

No additional text outside the JSON object.`

// Extract classifies the masked email text via the inference API.
// Timeouts, quota errors and malformed output all surface as errors;
// the router falls back to the heuristic result.
func (e *LLMExtractor) Extract(ctx context.Context, maskedText string) (Result, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limiter error: %w", err)
	}

	// Masking happens upstream; scrub again so credentials pasted into
	// the email never reach the API.
	req := chatRequest{
		Model:       e.model,
		MaxTokens:   defaultMaxTokens,
		Temperature: 0.1,
		Messages: []chatMessage{
			{Role: "system", Content: extractPrompt},
			{Role: "user", Content: sanitize.Text(maskedText)},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return Result{}, ctx.Err()
			}
		}

		result, err := e.doRequest(ctx, req)
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			return Result{}, err
		}
	}

	return Result{}, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doRequest performs the actual HTTP request to the chat API.
func (e *LLMExtractor) doRequest(ctx context.Context, req chatRequest) (Result, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, &retryableError{err: fmt.Errorf("API request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return Result{}, &retryableError{err: fmt.Errorf("rate limited (429)")}
	}
	if resp.StatusCode >= 500 {
		return Result{}, &retryableError{err: fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))}
	}
	if resp.StatusCode != http.StatusOK {
		var errResp chatError
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return Result{}, fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return Result{}, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return Result{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return Result{}, fmt.Errorf("empty response from API")
	}

	return parseResultJSON(chatResp.Choices[0].Message.Content)
}

// Available returns true if the extractor is configured.
func (e *LLMExtractor) Available() bool {
	return e.apiKey != ""
}

// resultWire is the JSON shape returned by the model. Dates arrive as
// strings and enums are validated before producing a Result.
type resultWire struct {
	IsCancellation   bool              `json:"is_cancellation"`
	Reason           string            `json:"reason"`
	MoveDate         string            `json:"move_date"`
	Language         string            `json:"language"`
	EdgeCase         string            `json:"edge_case"`
	Urgency          string            `json:"urgency"`
	CustomerConcerns []string          `json:"customer_concerns"`
	PolicyRisks      []string          `json:"policy_risks"`
	HasPaymentIssue  bool              `json:"has_payment_issue"`
	PaymentConcerns  []string          `json:"payment_concerns"`
	Confidence       ConfidenceFactors `json:"confidence_factors"`
}

// parseResultJSON parses the model output into a Result. Any schema
// mismatch is an error so the router can fall back to the heuristic.
func parseResultJSON(content string) (Result, error) {
	// Models occasionally wrap the JSON in a markdown code fence.
	cleaned := strings.TrimSpace(content)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var wire resultWire
	if err := json.Unmarshal([]byte(cleaned), &wire); err != nil {
		return Result{}, fmt.Errorf("malformed extraction output: %w", err)
	}

	res := Result{
		SchemaVersion:    SchemaVersion,
		IsCancellation:   wire.IsCancellation,
		Reason:           Reason(wire.Reason),
		Language:         Language(wire.Language),
		EdgeCase:         EdgeCase(wire.EdgeCase),
		Urgency:          Urgency(wire.Urgency),
		CustomerConcerns: wire.CustomerConcerns,
		PolicyRisks:      wire.PolicyRisks,
		HasPaymentIssue:  wire.HasPaymentIssue,
		PaymentConcerns:  wire.PaymentConcerns,
		Confidence:       wire.Confidence,
	}

	switch res.Reason {
	case ReasonMoving, ReasonPaymentIssue, ReasonOther, ReasonUnknown:
	default:
		return Result{}, fmt.Errorf("extraction schema mismatch: unknown reason %q", wire.Reason)
	}
	if !ValidLanguage(res.Language) {
		return Result{}, fmt.Errorf("extraction schema mismatch: unknown language %q", wire.Language)
	}
	if wire.EdgeCase == "" {
		res.EdgeCase = EdgeNone
	} else if !ValidEdgeCase(res.EdgeCase) {
		return Result{}, fmt.Errorf("extraction schema mismatch: unknown edge case %q", wire.EdgeCase)
	}
	switch res.Urgency {
	case UrgencyImmediate, UrgencyFuture, UrgencyUnclear:
	case "":
		res.Urgency = UrgencyUnclear
	default:
		return Result{}, fmt.Errorf("extraction schema mismatch: unknown urgency %q", wire.Urgency)
	}

	if wire.MoveDate != "" {
		d, err := time.ParseInLocation("2006-01-02", wire.MoveDate, time.UTC)
		if err != nil {
			return Result{}, fmt.Errorf("extraction schema mismatch: bad move_date %q", wire.MoveDate)
		}
		res.MoveDate = &d
	}

	return res, nil
}

// retryableError wraps an error to indicate it can be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryableError checks if an error should be retried.
func isRetryableError(err error) bool {
	for e := err; e != nil; {
		if _, ok := e.(*retryableError); ok {
			return true
		}
		if unwrapper, ok := e.(interface{ Unwrap() error }); ok {
			e = unwrapper.Unwrap()
		} else {
			break
		}
	}
	return false
}

// Ensure interfaces are implemented.
var _ InferenceExtractor = (*LLMExtractor)(nil)
