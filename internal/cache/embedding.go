package cache

import (
	"math"
	"unicode"
)

// Embedder turns text into a fixed-length vector for similarity lookups.
// Implementations must be deterministic and safe for concurrent use.
type Embedder interface {
	Embed(text string) []float64
	Dimensions() int
}

// letterDimensions is the size of the letter-frequency vector (a-z).
const letterDimensions = 26

// LetterEmbedder counts each ASCII letter of the lowercased text and
// L2-normalizes the counts. Non-letters are ignored and a text without
// letters embeds to the zero vector.
type LetterEmbedder struct{}

// Dimensions returns 26.
func (LetterEmbedder) Dimensions() int {
	return letterDimensions
}

// Embed computes the normalized letter-frequency vector of text.
func (LetterEmbedder) Embed(text string) []float64 {
	vector := make([]float64, letterDimensions)
	for _, r := range text {
		r = unicode.ToLower(r)
		if r >= 'a' && r <= 'z' {
			vector[r-'a']++
		}
	}

	var sumSquares float64
	for _, v := range vector {
		sumSquares += v * v
	}
	if sumSquares == 0 {
		return vector
	}

	magnitude := math.Sqrt(sumSquares)
	for i := range vector {
		vector[i] /= magnitude
	}
	return vector
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Vectors of different length or with zero magnitude score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
