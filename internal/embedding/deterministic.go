package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Deterministic is a hash-based stand-in embedder for tests and offline
// runs: same text always maps to the same vector, with no network
// dependency. It never permanently fails, so Embed always returns one
// vector per input.
type Deterministic struct {
	Dim int
}

func NewDeterministic(dim int) *Deterministic {
	if dim <= 0 {
		dim = 32
	}
	return &Deterministic{Dim: dim}
}

func (d *Deterministic) Embed(_ context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = d.vector(t)
	}
	return out
}

func (d *Deterministic) vector(text string) []float32 {
	v := make([]float32, d.Dim)
	for _, gram := range trigrams(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(gram))
		idx := int(h.Sum32()) % d.Dim
		if idx < 0 {
			idx += d.Dim
		}
		v[idx]++
	}
	normalize(v)
	return v
}

func trigrams(s string) []string {
	s = strings.ToLower(s)
	if len(s) < 3 {
		return []string{s}
	}
	grams := make([]string, 0, len(s)-2)
	for i := 0; i+3 <= len(s); i++ {
		grams = append(grams, s[i:i+3])
	}
	return grams
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}
