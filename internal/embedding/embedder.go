// Package embedding turns event text into vectors via ONNX, with caching and a
// deterministic fallback.
package embedding

import (
	"context"
	"math"
	"strings"

	"github.com/hyperjump/chikai/internal/models"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// EventText returns the text an event is embedded from: title, venue,
// category, and description joined as sentences. Empty fields are skipped.
func EventText(e *models.Event) string {
	parts := make([]string, 0, 4)
	for _, s := range []string{e.Title, e.Venue, e.Category, e.Description} {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		parts = append(parts, strings.TrimRight(s, "."))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ". ") + "."
}

func embedEach(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// NormalizeL2Slice normalizes the slice in place to unit L2 norm.
func NormalizeL2Slice(x []float32) {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(1.0 / math.Sqrt(sum))
	for i := range x {
		x[i] *= norm
	}
}

// meanPool averages the token vectors in hidden whose mask entry is set.
func meanPool(dst, hidden []float32, mask []int64) {
	dim := len(dst)
	var n float32
	for tok, m := range mask {
		if m == 0 {
			continue
		}
		row := hidden[tok*dim : (tok+1)*dim]
		for i, v := range row {
			dst[i] += v
		}
		n++
	}
	if n == 0 {
		return
	}
	for i := range dst {
		dst[i] /= n
	}
}
