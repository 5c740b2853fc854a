package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/voltgrid/cancelflow/internal/config"
	"github.com/voltgrid/cancelflow/internal/pipeline"
	"github.com/voltgrid/cancelflow/internal/store"
)

type fakeProcessor struct {
	lastInbound pipeline.Inbound
	outcome     *pipeline.Outcome
	err         error
}

func (f *fakeProcessor) Process(_ context.Context, in pipeline.Inbound) (*pipeline.Outcome, error) {
	f.lastInbound = in
	return f.outcome, f.err
}

type fakeReviewStore struct {
	drafts  map[string]*store.Draft
	created []*store.HumanReview
}

func (f *fakeReviewStore) Draft(_ context.Context, id string) (*store.Draft, error) {
	d, ok := f.drafts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return d, nil
}

func (f *fakeReviewStore) CreateHumanReview(_ context.Context, r *store.HumanReview) error {
	f.created = append(f.created, r)
	return nil
}

func newTestServer(t *testing.T, proc *fakeProcessor, reviews *fakeReviewStore) *Server {
	t.Helper()
	if proc == nil {
		proc = &fakeProcessor{outcome: &pipeline.Outcome{}}
	}
	if reviews == nil {
		reviews = &fakeReviewStore{drafts: map[string]*store.Draft{}}
	}
	s, err := NewServer(proc, reviews, zaptest.NewLogger(t), config.ServerConfig{Host: "localhost", Port: 8090})
	require.NoError(t, err)
	return s
}

func TestNewServer_Validation(t *testing.T) {
	reviews := &fakeReviewStore{}
	proc := &fakeProcessor{}

	_, err := NewServer(nil, reviews, zaptest.NewLogger(t), config.ServerConfig{})
	assert.Error(t, err)

	_, err = NewServer(proc, nil, zaptest.NewLogger(t), config.ServerConfig{})
	assert.Error(t, err)

	_, err = NewServer(proc, reviews, nil, config.ServerConfig{})
	assert.Error(t, err)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestHandleInbound(t *testing.T) {
	proc := &fakeProcessor{outcome: &pipeline.Outcome{
		Ticket:    &store.Ticket{ID: "t-1"},
		Draft:     &store.Draft{ID: "d-1", TicketID: "t-1"},
		Delivered: true,
	}}
	s := newTestServer(t, proc, nil)

	body := `{"source":"freescout","customer_email":"kari@example.com","raw_email":"Hei, jeg vil si opp abonnementet."}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/inbound", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "freescout", proc.lastInbound.Source)
	assert.Equal(t, "kari@example.com", proc.lastInbound.CustomerEmail)

	var out pipeline.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "t-1", out.Ticket.ID)
	assert.True(t, out.Delivered)
}

func TestHandleInbound_NotCancellationReturnsOK(t *testing.T) {
	proc := &fakeProcessor{outcome: &pipeline.Outcome{NotCancellation: true}}
	s := newTestServer(t, proc, nil)

	body := `{"source":"freescout","raw_email":"Takk for god service!"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/inbound", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleInbound_MissingFields(t *testing.T) {
	s := newTestServer(t, nil, nil)

	for name, body := range map[string]string{
		"missing source": `{"raw_email":"hei"}`,
		"missing email":  `{"source":"freescout"}`,
		"not json":       `this is not json`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/inbound", strings.NewReader(body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			s.echo.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandleInbound_ProcessorError(t *testing.T) {
	proc := &fakeProcessor{err: assert.AnError}
	s := newTestServer(t, proc, nil)

	body := `{"source":"freescout","raw_email":"Hei, jeg vil si opp."}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/inbound", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleReview(t *testing.T) {
	reviews := &fakeReviewStore{drafts: map[string]*store.Draft{
		"d-1": {ID: "d-1", TicketID: "t-1", Text: "Hei Kari, ..."},
	}}
	s := newTestServer(t, nil, reviews)

	body := `{"draft_id":"d-1","decision":"approve","reviewer":"agent-7"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reviews", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, reviews.created, 1)
	got := reviews.created[0]
	assert.Equal(t, "t-1", got.TicketID)
	assert.Equal(t, store.DecisionApprove, got.Decision)
	// An approval without edits keeps the draft text as the final text.
	assert.Equal(t, "Hei Kari, ...", got.FinalText)
	assert.Equal(t, "agent-7", got.Reviewer)
}

func TestHandleReview_EditOverridesFinalText(t *testing.T) {
	reviews := &fakeReviewStore{drafts: map[string]*store.Draft{
		"d-1": {ID: "d-1", TicketID: "t-1", Text: "original"},
	}}
	s := newTestServer(t, nil, reviews)

	body := `{"draft_id":"d-1","decision":"edit","final_text":"rewritten reply","reviewer":"agent-7"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reviews", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, reviews.created, 1)
	assert.Equal(t, "rewritten reply", reviews.created[0].FinalText)
}

func TestHandleReview_Invalid(t *testing.T) {
	reviews := &fakeReviewStore{drafts: map[string]*store.Draft{
		"d-1": {ID: "d-1", TicketID: "t-1"},
	}}
	s := newTestServer(t, nil, reviews)

	cases := map[string]struct {
		body string
		want int
	}{
		"unknown decision": {`{"draft_id":"d-1","decision":"maybe","reviewer":"a"}`, http.StatusBadRequest},
		"missing reviewer": {`{"draft_id":"d-1","decision":"approve"}`, http.StatusBadRequest},
		"unknown draft":    {`{"draft_id":"nope","decision":"approve","reviewer":"a"}`, http.StatusNotFound},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/reviews", strings.NewReader(tc.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			s.echo.ServeHTTP(rec, req)

			assert.Equal(t, tc.want, rec.Code)
		})
	}
}
