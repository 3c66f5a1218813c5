package milestone

import "sort"

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithDimensionCap sets the per-dimension cap that counts as "maxed".
func WithDimensionCap(limit int) Option {
	return func(e *Engine) {
		if limit > 0 {
			e.dimensionCap = limit
		}
	}
}

// WithThresholds sets the milestone thresholds for aggregate over-cap progress.
// Non-positive and duplicate entries are dropped; the list is sorted ascending.
func WithThresholds(thresholds []int) Option {
	return func(e *Engine) {
		if clean := sanitizeThresholds(thresholds); len(clean) > 0 {
			e.thresholds = clean
		}
	}
}

// WithRankTable sets the ranked tier lookup table.
func WithRankTable(table RankTable) Option {
	return func(e *Engine) {
		if len(table) > 0 {
			e.ranks = table
		}
	}
}

func sanitizeThresholds(in []int) []int {
	seen := make(map[int]struct{}, len(in))
	out := make([]int, 0, len(in))
	for _, t := range in {
		if t <= 0 {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Ints(out)
	return out
}
