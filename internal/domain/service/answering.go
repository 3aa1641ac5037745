package service

import "context"

// Embedder maps text to a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Dimension() int
}

// GenerateRequest is one retrieval-augmented generation call.
type GenerateRequest struct {
	System    string
	Context   string
	Question  string
	MaxTokens int
}

// Generator produces a natural-language answer from retrieved context.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	// Ping checks that the engine is reachable and authorized.
	Ping(ctx context.Context) error
	Model() string
}
