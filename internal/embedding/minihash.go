package embedding

import (
	"context"
	"math"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// MiniHashName is the name the built-in hashing embedder registers under.
const MiniHashName = "minihash"

// MiniHashDims is the default vector width of the hashing embedder.
const MiniHashDims = 64

// MiniHash is a deterministic bag-of-words embedder: each token hashes into
// a signed bucket and the result is L2-normalized. It has no semantic
// understanding but gives stable, index-ready vectors where overlapping
// token sets land near each other, which is enough for tests and local use.
type MiniHash struct {
	dims int
}

// NewMiniHash creates a hashing embedder with the given vector width.
func NewMiniHash(dims int) *MiniHash {
	if dims <= 0 {
		dims = MiniHashDims
	}
	return &MiniHash{dims: dims}
}

func (m *MiniHash) Name() string { return MiniHashName }

func (m *MiniHash) Dims() int { return m.dims }

// Embed vectorizes each text. The output is aligned 1:1 with the input.
func (m *MiniHash) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = m.embedOne(text)
	}
	return out, nil
}

func (m *MiniHash) embedOne(text string) []float32 {
	vec := make([]float32, m.dims)
	for _, tok := range tokenize(text) {
		h := xxhash.Sum64String(tok)
		bucket := int(h % uint64(m.dims))
		sign := float32(1)
		if h&(1<<63) != 0 {
			sign = -1
		}
		vec[bucket] += sign
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}

func tokenize(text string) []string {
	var (
		tokens  []string
		current []rune
	)
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current = append(current, unicode.ToLower(r))
			continue
		}
		if len(current) > 0 {
			tokens = append(tokens, string(current))
			current = current[:0]
		}
	}
	if len(current) > 0 {
		tokens = append(tokens, string(current))
	}
	return tokens
}
