package retrieval

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voltgrid/cancelflow/internal/config"
	"github.com/voltgrid/cancelflow/internal/extraction"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(config.RetrievalConfig{
		Enabled:    true,
		Path:       t.TempDir(),
		Collection: "cancellation_tickets",
		TopK:       2,
		Embedding:  "local",
	}, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestLocalEmbedding_DeterministicAndNormalized(t *testing.T) {
	a, err := localEmbedding(context.Background(), "jeg vil si opp abonnementet")
	require.NoError(t, err)
	b, err := localEmbedding(context.Background(), "jeg vil si opp abonnementet")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
}

func TestLocalEmbedding_EmptyText(t *testing.T) {
	vec, err := localEmbedding(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, float32(1), vec[0])
}

func TestStore_AddAndRetrieve(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Add(ctx, []Document{
		{
			ID:       "t-1",
			Text:     "Customer is moving to Bergen and wants to cancel the charging subscription.",
			Metadata: map[string]string{"language": "en", "edge_case": "none"},
		},
		{
			ID:       "t-2",
			Text:     "Customer was charged twice and asks for a refund of the duplicate invoice.",
			Metadata: map[string]string{"language": "en", "edge_case": "payment_dispute"},
		},
		{
			ID:       "t-3",
			Text:     "Kunden lurer på hva som skjer med laderen i sameiet etter oppsigelse.",
			Metadata: map[string]string{"language": "no", "edge_case": "sameie_concern"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, s.Count())

	res := extraction.Result{
		Language:         extraction.LangEnglish,
		Reason:           extraction.ReasonPaymentIssue,
		EdgeCase:         extraction.EdgePaymentDispute,
		HasPaymentIssue:  true,
		PaymentConcerns:  []string{"double_charge"},
		CustomerConcerns: []string{"invoice"},
	}

	snippets := s.Retrieve(ctx, res, "I was charged twice for my subscription and want a refund.")
	require.NotEmpty(t, snippets)
	assert.Equal(t, "t-2", snippets[0].ID)
	assert.Equal(t, "payment_dispute", snippets[0].Metadata["edge_case"])
}

func TestStore_RetrieveEmptyCollection(t *testing.T) {
	s := newTestStore(t)
	snippets := s.Retrieve(context.Background(), extraction.Result{Language: extraction.LangNorwegian}, "text")
	assert.Empty(t, snippets)
}

func TestStore_RetrieveFallsBackAcrossLanguages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []Document{
		{ID: "t-1", Text: "cancel subscription moving away", Metadata: map[string]string{"language": "en"}},
		{ID: "t-2", Text: "refund duplicate charge invoice", Metadata: map[string]string{"language": "en"}},
	}))

	// Norwegian query against an English-only corpus: the language
	// filter yields too few candidates and the unfiltered query is used.
	res := extraction.Result{Language: extraction.LangNorwegian, Reason: extraction.ReasonMoving}
	snippets := s.Retrieve(ctx, res, "jeg skal flytte og vil si opp subscription moving")
	assert.NotEmpty(t, snippets)
}

func TestStore_AddRequiresIDs(t *testing.T) {
	s := newTestStore(t)
	err := s.Add(context.Background(), []Document{{Text: "no id"}})
	assert.Error(t, err)
}

func TestLoadSeedFile(t *testing.T) {
	content := `{"text": "Hei, jeg vil si opp.", "metadata": {"ticketId": "TK-100", "subject": "Oppsigelse", "language": "no", "is_cancellation": true, "edge_case": "none", "customer_concerns": ["moving"], "topic_keywords": ["flytting", "oppsigelse"]}}

{"text": "Charged twice.", "metadata": {"ticketId": "TK-101", "language": "en", "is_cancellation": false, "has_payment_issue": true, "edge_case": "payment_dispute"}}
`
	path := filepath.Join(t.TempDir(), "corpus.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	docs, err := LoadSeedFile(path)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "TK-100", docs[0].ID)
	assert.Equal(t, "no", docs[0].Metadata["language"])
	assert.Equal(t, "true", docs[0].Metadata["is_cancellation"])
	assert.Equal(t, "flytting,oppsigelse", docs[0].Metadata["topic_keywords"])

	assert.Equal(t, "TK-101", docs[1].ID)
	assert.Equal(t, "true", docs[1].Metadata["has_payment_issue"])
	assert.Equal(t, "payment_dispute", docs[1].Metadata["edge_case"])
}

func TestLoadSeedFile_MalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{not json}\n"), 0o644))

	_, err := LoadSeedFile(path)
	assert.Error(t, err)
}

func TestStore_Seed(t *testing.T) {
	content := `{"text": "cancel subscription", "metadata": {"ticketId": "TK-1", "language": "en"}}
{"text": "refund request", "metadata": {"ticketId": "TK-2", "language": "en"}}
`
	path := filepath.Join(t.TempDir(), "corpus.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s := newTestStore(t)
	n, err := s.Seed(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, s.Count())
}
