// Package embed maps post text to fixed-size vectors in two independent
// spaces: one tuned for retrieval-style search, one for cluster separability.
// Vectors from the two spaces are never mixed.
package embed

import (
	"context"
	"fmt"
	"strings"
)

// Space identifies one of the two embedding vector spaces.
type Space string

const (
	SpaceSearch     Space = "search"
	SpaceClustering Space = "clustering"
)

// maxTextChars bounds the input passed to the embedding model; longer posts
// carry little extra signal and dominate latency.
const maxTextChars = 2000

// Embedder converts a batch of texts into vectors for one space. Failed
// indexes report texts that could not be embedded individually; those posts
// are excluded from the space's index for the run, never fatal to the batch.
type Embedder interface {
	Embed(ctx context.Context, texts []string, space Space) (vectors [][]float32, failed []int, err error)
	Dimension(ctx context.Context, space Space) (int, error)
}

// PrepareText normalizes one post text for embedding: trims whitespace and
// caps the length. Returns an error for texts too short to carry meaning.
func PrepareText(text string) (string, error) {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) < 10 {
		return "", fmt.Errorf("text too short to embed (%d chars)", len(runes))
	}
	if len(runes) > maxTextChars {
		text = string(runes[:maxTextChars])
	}
	return text, nil
}
