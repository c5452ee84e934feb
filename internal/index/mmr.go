package index

import (
	"math"

	"github.com/emera/sattur/internal/embedding"
)

// selectMMR picks up to k of the candidate vectors by maximal marginal
// relevance and returns their indexes in selection order. lambda weighs
// similarity to the query (1) against dissimilarity to what was already
// picked (0). The most similar candidate is always picked first.
func selectMMR(query []float32, candidates [][]float32, k int, lambda float64) []int {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	k = min(k, len(candidates))

	relevance := make([]float64, len(candidates))
	for i, c := range candidates {
		relevance[i] = similarity(query, c)
	}

	picked := make([]int, 0, k)
	used := make([]bool, len(candidates))
	// redundancy[i] is the highest similarity of candidate i to any pick.
	redundancy := make([]float64, len(candidates))
	for i := range redundancy {
		redundancy[i] = math.Inf(-1)
	}

	for len(picked) < k {
		best, bestScore := -1, math.Inf(-1)
		for i := range candidates {
			if used[i] {
				continue
			}
			score := relevance[i]
			if len(picked) > 0 {
				score = lambda*relevance[i] - (1-lambda)*redundancy[i]
			}
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			break
		}
		used[best] = true
		picked = append(picked, best)
		for i := range candidates {
			if used[i] {
				continue
			}
			if s := similarity(candidates[best], candidates[i]); s > redundancy[i] {
				redundancy[i] = s
			}
		}
	}
	return picked
}

// similarity treats mismatched dimensions as unrelated.
func similarity(a, b []float32) float64 {
	s, err := embedding.CosineSimilarity(a, b)
	if err != nil {
		return 0
	}
	return s
}
