package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const defaultHashDimensions = 256

// HashEngine embeds text locally by hashing word features into a fixed
// number of buckets. It is deterministic and needs no credentials, which
// makes it the engine for tests and offline development. Texts that share
// words get similar vectors; there is no semantic understanding.
type HashEngine struct {
	dimensions int
}

// NewHashEngine creates a hashing engine. dims <= 0 selects 256.
func NewHashEngine(dims int) *HashEngine {
	if dims <= 0 {
		dims = defaultHashDimensions
	}
	return &HashEngine{dimensions: dims}
}

func (e *HashEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.vector(text), nil
}

func (e *HashEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *HashEngine) Dimensions() int {
	return e.dimensions
}

func (e *HashEngine) Name() string {
	return fmt.Sprintf("hash:%d", e.dimensions)
}

func (e *HashEngine) vector(text string) []float32 {
	vec := make([]float32, e.dimensions)
	for _, tok := range tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dimensions))
		// The top bit picks a sign so unrelated words tend to cancel.
		if sum>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// tokenize lower-cases text and splits it into runs of letters, marks and
// digits, so Devanagari words with vowel signs stay whole.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsMark(r) && !unicode.IsDigit(r)
	})
}
