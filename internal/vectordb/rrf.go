package vectordb

import (
	"fmt"
	"sort"
)

// rrfK is the reciprocal rank fusion smoothing constant, standard across
// hybrid search implementations: it flattens the contribution of very
// high ranks so a single list can't dominate the fused score.
const rrfK = 60

// FusedHit is a single result after reciprocal rank fusion across multiple
// ranked result lists.
type FusedHit struct {
	ID         any
	Score      float32
	DenseScore float32
	Fields     map[string]any
}

// FuseRRF combines multiple ranked hit lists into one, scoring each
// document by the sum of 1/(k+rank) across every list it appears in. The
// first list is treated as the dense ANN ranking: its per-document score is
// carried through as the tie-break key, matching how callers pass
// FuseRRF(dense, sparse). Lists are independently ranked inputs; document
// identity is taken from SearchHit.ID.
//
// Ties in the fused score break by dense score descending, then by ID
// ascending, so results are deterministic regardless of map iteration order.
func FuseRRF(lists ...[]SearchHit) []FusedHit {
	scores := make(map[any]float32)
	fields := make(map[any]map[string]any)
	denseScores := make(map[any]float32)

	for listIdx, list := range lists {
		for rank, hit := range list {
			scores[hit.ID] += 1.0 / float32(rrfK+rank+1)
			if _, ok := fields[hit.ID]; !ok {
				fields[hit.ID] = hit.Fields
			}
			if listIdx == 0 {
				denseScores[hit.ID] = hit.Score
			}
		}
	}

	fused := make([]FusedHit, 0, len(scores))
	for id, score := range scores {
		fused = append(fused, FusedHit{ID: id, Score: score, DenseScore: denseScores[id], Fields: fields[id]})
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		if fused[i].DenseScore != fused[j].DenseScore {
			return fused[i].DenseScore > fused[j].DenseScore
		}
		return fmt.Sprint(fused[i].ID) < fmt.Sprint(fused[j].ID)
	})

	return fused
}
