// Package retrieval ranks stored snapshots by cosine similarity to a query vector.
package retrieval

import (
	"sort"

	"FinPulse/internal/domain/models"

	"gonum.org/v1/gonum/floats"
)

const epsilon = 1e-10

// Cosine returns dot(a,b)/(|a||b|+epsilon). Vectors of different length score 0.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	return floats.Dot(a, b) / (floats.Norm(a, 2)*floats.Norm(b, 2) + epsilon)
}

// Hit is one ranked position in a store view.
type Hit struct {
	Index int
	Score float64
}

// TopK scans every vector and returns the k best hits, highest score first.
// Equal scores rank the more recent (higher) index first.
func TopK(vectors [][]float64, query []float64, k int) []Hit {
	if k <= 0 || len(vectors) == 0 {
		return nil
	}

	hits := make([]Hit, len(vectors))
	for i, v := range vectors {
		hits[i] = Hit{Index: i, Score: Cosine(v, query)}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Index > hits[j].Index
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits
}

// Result pairs a retrieved snapshot with its similarity score.
type Result struct {
	Snapshot models.Snapshot
	Score    float64
}

// Search ranks view against query and resolves hits to snapshots.
func Search(view models.StoreView, query []float64, k int) []Result {
	hits := TopK(view.Vectors, query, k)
	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		out = append(out, Result{Snapshot: view.Entries[h.Index], Score: h.Score})
	}
	return out
}
