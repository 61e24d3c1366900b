package service

import "sort"

// rrfK dampens the advantage of rank 1 over ranks 2-3 while keeping presence
// in multiple lists dominant; 60 is the standard RRF constant.
const rrfK = 60

// FusionEntry wraps one search result with its accumulated RRF score.
// Identity is the underlying chunk ID: the same chunk surfacing in several
// input lists merges into one entry with summed contributions.
type FusionEntry struct {
	Result   *SearchResult
	RRFScore float32
}

// FuseResults merges any number of ranked result lists into one list using
// Reciprocal Rank Fusion. An item at zero-based position i of an input list
// contributes 1/(rrfK+i+1) to its cumulative score. Output is ordered by
// descending cumulative score; ties keep first-encounter order, so repeated
// identical queries produce identical output. Empty input fuses to an empty
// list, never an error.
func FuseResults(lists ...[]*SearchResult) []*FusionEntry {
	entries := make(map[string]*FusionEntry)
	order := make([]string, 0)

	for _, list := range lists {
		for i, r := range list {
			if r == nil || r.ID == "" {
				continue
			}
			entry, ok := entries[r.ID]
			if !ok {
				cloned := *r
				entry = &FusionEntry{Result: &cloned}
				entries[r.ID] = entry
				order = append(order, r.ID)
			}
			entry.RRFScore += 1.0 / float32(rrfK+i+1)
			if entry.Result.Content == "" && r.Content != "" {
				entry.Result.Content = r.Content
			}
			if entry.Result.Title == "" && r.Title != "" {
				entry.Result.Title = r.Title
			}
		}
	}

	out := make([]*FusionEntry, 0, len(entries))
	for _, id := range order {
		out = append(out, entries[id])
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RRFScore > out[j].RRFScore
	})
	return out
}

// fusedSearchResults flattens fusion entries back into search results whose
// Score carries the reciprocal-rank sum.
func fusedSearchResults(entries []*FusionEntry) []*SearchResult {
	out := make([]*SearchResult, 0, len(entries))
	for _, e := range entries {
		r := *e.Result
		r.Score = e.RRFScore
		out = append(out, &r)
	}
	return out
}
