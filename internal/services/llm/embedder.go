package llm

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"
	"unicode"

	dsvc "FinPulse/internal/domain/service"

	"gonum.org/v1/gonum/floats"
)

// HTTPEmbedder calls an OpenAI-compatible /embeddings endpoint.
type HTTPEmbedder struct {
	base      *HTTPServiceBase
	model     string
	dimension int
}

func NewHTTPEmbedder(baseURL, apiKey, model string, dimension int, timeout time.Duration) *HTTPEmbedder {
	return &HTTPEmbedder{
		base:      NewHTTPServiceBase(baseURL, apiKey, timeout),
		model:     model,
		dimension: dimension,
	}
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	var resp embeddingResponse
	if err := e.base.PostJSON(ctx, "/embeddings", embeddingRequest{Model: e.model, Input: text}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embeddings: empty response")
	}
	vec := resp.Data[0].Embedding
	if len(vec) != e.dimension {
		return nil, fmt.Errorf("embeddings: got dimension %d, want %d", len(vec), e.dimension)
	}
	return vec, nil
}

func (e *HTTPEmbedder) Dimension() int { return e.dimension }

// HashEmbedder is a local feature-hashing embedder. Tokens and token bigrams are
// hashed into a signed bag of words and the result is L2-normalized, so texts
// sharing symbols and labels land close together under cosine similarity.
type HashEmbedder struct {
	dimension int
}

func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 384
	}
	return &HashEmbedder{dimension: dimension}
}

func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float64, e.dimension)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.'
	})
	for i, tok := range tokens {
		e.add(vec, tok)
		if i > 0 {
			e.add(vec, tokens[i-1]+" "+tok)
		}
	}

	if norm := floats.Norm(vec, 2); norm > 0 {
		floats.Scale(1/norm, vec)
	}
	return vec, nil
}

func (e *HashEmbedder) add(vec []float64, feature string) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dimension))
	if sum&(1<<63) != 0 {
		vec[idx]--
		return
	}
	vec[idx]++
}

func (e *HashEmbedder) Dimension() int { return e.dimension }

var (
	_ dsvc.Embedder = (*HTTPEmbedder)(nil)
	_ dsvc.Embedder = (*HashEmbedder)(nil)
)
