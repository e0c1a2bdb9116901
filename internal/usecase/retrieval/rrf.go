package retrieval

import (
	"sort"

	"github.com/finhive/docrank/internal/domain/search/result"
)

// rrfK dampens the influence of rank position in reciprocal rank fusion.
// Larger values flatten the curve; 60 is the value from the original RRF
// paper and works well without tuning.
const rrfK = 60

// fuseRRF merges ranked candidate lists by reciprocal rank fusion: each
// item at 0-indexed position i contributes 1/(rrfK+i+1), contributions sum
// per document id, and the union is sorted by summed score descending and
// truncated to limit. Only rank position matters; the raw scores of the
// inputs never enter the fused score. A document present in several lists
// accumulates every contribution, which is what pushes high-agreement
// documents up.
func fuseRRF(lists [][]result.Result, limit int) []result.Result {
	scores := make(map[string]float64)
	reps := make(map[string]result.Result)
	order := make([]string, 0)

	for _, list := range lists {
		for i, r := range list {
			id := r.ID()
			if _, seen := scores[id]; !seen {
				order = append(order, id)
				reps[id] = r
			}
			scores[id] += 1.0 / float64(rrfK+i+1)
		}
	}

	// Stable on first-seen order so equal scores keep a deterministic ranking.
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})

	if limit > 0 && len(order) > limit {
		order = order[:limit]
	}

	fused := make([]result.Result, 0, len(order))
	for _, id := range order {
		fused = append(fused, reps[id].WithScore(scores[id]))
	}
	return fused
}
