package rag

import (
	"slices"
	"sort"
)

// DefaultRRFK is the reciprocal rank fusion damping constant.
const DefaultRRFK = 60

// RankedList is one backend's hits, best first.
type RankedList struct {
	Backend string
	Hits    []*Hit
}

// FuseRRF merges ranked lists by reciprocal rank: a hit at 0-based rank r
// contributes 1/(r+k). Only ranks are used, never the backends' raw scores.
// Ties keep first-seen order across lists, so the output is deterministic.
// limit <= 0 keeps every candidate.
func FuseRRF(lists []RankedList, k, limit int) []*Hit {
	if k <= 0 {
		k = DefaultRRFK
	}

	var fused []*Hit
	byID := make(map[string]*Hit)
	for _, list := range lists {
		for rank, hit := range list.Hits {
			contribution := 1 / float64(rank+k)
			existing, ok := byID[hit.ID]
			if !ok {
				existing = &Hit{
					ID:       hit.ID,
					Score:    hit.Score,
					Text:     hit.Text,
					Metadata: hit.Metadata,
				}
				byID[hit.ID] = existing
				fused = append(fused, existing)
			} else if hit.Score > existing.Score {
				existing.Score = hit.Score
			}
			existing.FusedScore += contribution
			if list.Backend != "" && !slices.Contains(existing.Backends, list.Backend) {
				existing.Backends = append(existing.Backends, list.Backend)
			}
		}
	}

	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].FusedScore > fused[j].FusedScore
	})

	if limit > 0 && len(fused) > limit {
		fused = fused[:limit]
	}
	return fused
}
