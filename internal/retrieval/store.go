// Package retrieval looks up similar past cancellation tickets in an
// embedded vector store. Snippets from those tickets steer the draft
// composer's tone and payment guidance. Retrieval is best-effort: any
// failure degrades to zero snippets and never aborts the pipeline.
package retrieval

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/voltgrid/cancelflow/internal/config"
	"github.com/voltgrid/cancelflow/internal/extraction"
)

// Document is one past ticket stored in the collection.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// Snippet is one retrieval hit.
type Snippet struct {
	ID       string
	Text     string
	Score    float32
	Metadata map[string]string
}

// Store wraps a persistent chromem collection of past tickets.
type Store struct {
	db         *chromem.DB
	collection *chromem.Collection
	topK       int
	log        *zap.Logger
}

// NewStore opens (or creates) the persistent collection at cfg.Path.
func NewStore(cfg config.RetrievalConfig, log *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("creating retrieval directory %s: %w", cfg.Path, err)
	}

	db, err := chromem.NewPersistentDB(cfg.Path, false)
	if err != nil {
		return nil, fmt.Errorf("opening vector store: %w", err)
	}

	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, embeddingFunc(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening collection %s: %w", cfg.Collection, err)
	}

	log = log.Named("retrieval")
	log.Info("vector store opened",
		zap.String("path", cfg.Path),
		zap.String("collection", cfg.Collection),
		zap.String("embedding", cfg.Embedding),
		zap.Int("documents", collection.Count()),
	)

	return &Store{
		db:         db,
		collection: collection,
		topK:       cfg.TopK,
		log:        log,
	}, nil
}

// Add stores documents in the collection. IDs are required so that
// re-seeding the same corpus is idempotent.
func (s *Store) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("document at index %d has no ID", i)
		}
		chromemDocs[i] = chromem.Document{
			ID:       doc.ID,
			Content:  doc.Text,
			Metadata: doc.Metadata,
		}
	}

	if err := s.collection.AddDocuments(ctx, chromemDocs, 2); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}
	return nil
}

// Count returns the number of stored documents.
func (s *Store) Count() int {
	return s.collection.Count()
}

// Retrieve returns up to topK snippets similar to the extraction. It
// prefers same-language tickets and falls back to the whole corpus
// when the language slice is too small. Errors are logged and yield
// zero snippets.
func (s *Store) Retrieve(ctx context.Context, res extraction.Result, maskedText string) []Snippet {
	count := s.collection.Count()
	if count == 0 {
		return nil
	}

	k := s.topK
	if k > count {
		k = count
	}

	query := buildQuery(res, maskedText)

	results, err := s.collection.Query(ctx, query, k, map[string]string{"language": string(res.Language)}, nil)
	if err != nil || len(results) == 0 {
		// The language filter can empty the candidate set.
		results, err = s.collection.Query(ctx, query, k, nil, nil)
	}
	if err != nil {
		s.log.Warn("context retrieval failed, composing without snippets", zap.Error(err))
		return nil
	}

	snippets := make([]Snippet, len(results))
	for i, r := range results {
		snippets[i] = Snippet{
			ID:       r.ID,
			Text:     r.Content,
			Score:    r.Similarity,
			Metadata: r.Metadata,
		}
	}
	return snippets
}

// buildQuery combines the extraction signals with an excerpt of the
// masked email into one similarity query.
func buildQuery(res extraction.Result, maskedText string) string {
	var b strings.Builder
	b.WriteString(string(res.Reason))
	if res.EdgeCase != extraction.EdgeNone {
		b.WriteByte(' ')
		b.WriteString(strings.ReplaceAll(string(res.EdgeCase), "_", " "))
	}
	for _, c := range res.CustomerConcerns {
		b.WriteByte(' ')
		b.WriteString(c)
	}
	for _, c := range res.PaymentConcerns {
		b.WriteByte(' ')
		b.WriteString(c)
	}

	const excerptLimit = 400
	excerpt := maskedText
	if len(excerpt) > excerptLimit {
		cut := excerptLimit
		for cut > 0 && !utf8.RuneStart(excerpt[cut]) {
			cut--
		}
		excerpt = excerpt[:cut]
	}
	b.WriteByte(' ')
	b.WriteString(excerpt)

	return b.String()
}
