package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectMMRPrefersDiversity(t *testing.T) {
	query := []float32{1, 0}
	candidates := [][]float32{
		{1, 0.1},  // best match
		{1, 0.12}, // near duplicate of the first
		{1, -0.3}, // relevant, different direction
	}

	got := selectMMR(query, candidates, 2, 0.5)
	assert.Equal(t, []int{0, 2}, got)

	// Pure relevance keeps the near duplicate.
	got = selectMMR(query, candidates, 2, 1)
	assert.Equal(t, []int{0, 1}, got)
}

func TestSelectMMRBounds(t *testing.T) {
	assert.Nil(t, selectMMR([]float32{1}, nil, 4, 0.5))
	assert.Nil(t, selectMMR([]float32{1}, [][]float32{{1}}, 0, 0.5))
	assert.Len(t, selectMMR([]float32{1}, [][]float32{{1}, {0.5}}, 4, 0.5), 2)
}
