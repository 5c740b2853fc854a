package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltgrid/cancelflow/internal/config"
)

func chatCompletion(content string) string {
	resp := map[string]any{
		"id":    "chatcmpl-test",
		"model": "gpt-4o-mini",
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

const validExtraction = `{
	"is_cancellation": true,
	"reason": "moving",
	"move_date": "2025-03-15",
	"language": "no",
	"edge_case": "none",
	"urgency": "future",
	"customer_concerns": ["moving"],
	"policy_risks": [],
	"has_payment_issue": false,
	"payment_concerns": [],
	"confidence_factors": {"clear_intent": true, "complete_information": true, "standard_case": true}
}`

func newTestExtractor(t *testing.T, url string) *LLMExtractor {
	t.Helper()
	e, err := NewLLMExtractor(config.InferenceConfig{
		Enabled: true,
		BaseURL: url,
		APIKey:  config.Secret("test-key"),
		Timeout: config.Duration(5 * time.Second),
	})
	require.NoError(t, err)
	return e
}

func TestLLMExtractor_Extract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, chatCompletion(validExtraction))
	}))
	defer srv.Close()

	e := newTestExtractor(t, srv.URL)
	res, err := e.Extract(context.Background(), "Hei, jeg flytter og vil si opp.")
	require.NoError(t, err)

	assert.True(t, res.IsCancellation)
	assert.Equal(t, ReasonMoving, res.Reason)
	assert.Equal(t, LangNorwegian, res.Language)
	require.NotNil(t, res.MoveDate)
	assert.Equal(t, time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC), *res.MoveDate)
	assert.Equal(t, SchemaVersion, res.SchemaVersion)
}

func TestLLMExtractor_MarkdownFencedOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatCompletion("```json\n"+validExtraction+"\n```"))
	}))
	defer srv.Close()

	e := newTestExtractor(t, srv.URL)
	res, err := e.Extract(context.Background(), "text")
	require.NoError(t, err)
	assert.True(t, res.IsCancellation)
}

func TestLLMExtractor_RetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, chatCompletion(validExtraction))
	}))
	defer srv.Close()

	e := newTestExtractor(t, srv.URL)
	res, err := e.Extract(context.Background(), "text")
	require.NoError(t, err)
	assert.True(t, res.IsCancellation)
	assert.Equal(t, int32(3), calls.Load())
}

func TestLLMExtractor_PermanentErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": {"type": "auth", "message": "bad key"}}`)
	}))
	defer srv.Close()

	e := newTestExtractor(t, srv.URL)
	_, err := e.Extract(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
	assert.Equal(t, int32(1), calls.Load())
}

func TestLLMExtractor_MalformedOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatCompletion("I think the customer wants to cancel."))
	}))
	defer srv.Close()

	e := newTestExtractor(t, srv.URL)
	_, err := e.Extract(context.Background(), "text")
	assert.Error(t, err)
}

func TestLLMExtractor_RequiresAPIKey(t *testing.T) {
	_, err := NewLLMExtractor(config.InferenceConfig{})
	assert.Error(t, err)
}

func TestParseResultJSON_SchemaMismatch(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown reason", content: `{"reason": "boredom", "language": "no"}`},
		{name: "unknown language", content: `{"reason": "other", "language": "fr"}`},
		{name: "unknown edge case", content: `{"reason": "other", "language": "no", "edge_case": "alien"}`},
		{name: "bad move date", content: `{"reason": "other", "language": "no", "move_date": "soon"}`},
		{name: "not json", content: `cancel`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseResultJSON(tt.content)
			assert.Error(t, err)
		})
	}
}

func TestParseResultJSON_DefaultsForOmittedEnums(t *testing.T) {
	res, err := parseResultJSON(`{"is_cancellation": false, "reason": "unknown", "language": "en"}`)
	require.NoError(t, err)
	assert.Equal(t, EdgeNone, res.EdgeCase)
	assert.Equal(t, UrgencyUnclear, res.Urgency)
	assert.Nil(t, res.MoveDate)
}
