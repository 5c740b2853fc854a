package retrieval

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	chromem "github.com/philippgille/chromem-go"

	"github.com/voltgrid/cancelflow/internal/config"
)

// localDims is the dimension of the hash embedder. Small on purpose:
// the corpus is a few hundred tickets.
const localDims = 256

// embeddingFunc selects the embedding function for the configured backend.
func embeddingFunc(cfg config.RetrievalConfig) chromem.EmbeddingFunc {
	if cfg.Embedding == "openai" {
		return chromem.NewEmbeddingFuncOpenAI(cfg.APIKey.Value(), chromem.EmbeddingModelOpenAI3Small)
	}
	return localEmbedding
}

// localEmbedding is a deterministic bag-of-words hash embedding. It
// needs no network or model files, which keeps development and tests
// hermetic. Quality is adequate for keyword-heavy support tickets.
func localEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, localDims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,!?;:\"'()[]")
		if tok == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%localDims]++
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		// chromem rejects zero vectors; an empty text maps to a fixed
		// unit vector instead.
		vec[0] = 1
		return vec, nil
	}

	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
	return vec, nil
}
