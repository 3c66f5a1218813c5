// Package milestone turns per-member statistic snapshots into milestone events
// by comparing them against the watermark tables of the persisted state.
//
// The Engine is the only writer of State.Trophies, State.Ranked,
// State.LastThreshold and State.Rebaseline.
package milestone

import (
	"github.com/okian/clubwatch/internal/domain/model"
)

// Default engine configuration.
const (
	DefaultDimensionCap = 1000
)

// DefaultThresholds are the aggregate over-cap progress milestones.
var DefaultThresholds = []int{1000, 2000, 3000, 5000, 7500, 10000, 15000, 20000, 30000, 50000} //nolint:gochecknoglobals // default list, copied on use

// Engine computes milestone events. It holds configuration only; all state is
// passed in explicitly.
type Engine struct {
	dimensionCap int
	thresholds   []int
	ranks        RankTable
}

// NewEngine creates an Engine with configuration options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		dimensionCap: DefaultDimensionCap,
		thresholds:   sanitizeThresholds(DefaultThresholds),
		ranks:        DefaultRankTable,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DimensionCap returns the configured per-dimension cap.
func (e *Engine) DimensionCap() int { return e.dimensionCap }

// Thresholds returns a copy of the configured thresholds.
func (e *Engine) Thresholds() []int { return append([]int(nil), e.thresholds...) }

// Update applies one member's snapshot to st and returns the events it causes.
//
// When isReset is set, or the member is still pending a post-reset rebaseline,
// watermarks are overwritten with the observed values and nothing is emitted.
func (e *Engine) Update(st *model.State, snap model.MemberStatSnapshot, isReset bool) []model.Event {
	id := snap.ID
	baseline := isReset || st.Rebaseline[id]
	delete(st.Rebaseline, id)

	var events []model.Event

	// 1. per-dimension watermarks and caps
	prevDims := st.Trophies[id]
	next := make(map[string]int, len(prevDims)+len(snap.Dimensions))
	for d, v := range prevDims {
		next[d] = v
	}
	for _, d := range model.SortedIDs(snap.Dimensions) {
		raw := snap.Dimensions[d]
		if baseline {
			next[d] = raw
			continue
		}
		prev := prevDims[d]
		next[d] = max(prev, raw)
		if prev < e.dimensionCap && raw >= e.dimensionCap {
			events = append(events, model.NewDimensionCapped(id, snap.DisplayName, d))
		}
	}
	st.Trophies[id] = next

	// 2. aggregate over-cap progress against the threshold list
	aggregate := e.ExtraProgress(snap.Dimensions)
	last := st.LastThreshold[id]
	highest := last
	for _, t := range e.thresholds {
		if t > aggregate {
			break
		}
		if t <= last {
			continue
		}
		if !baseline {
			events = append(events, model.NewThresholdReached(id, snap.DisplayName, t))
		}
		highest = t
	}
	if highest > last {
		st.LastThreshold[id] = highest
	}

	// 3. ranked promotion; the first observation only seeds
	if snap.HasRanked {
		prev, seen := st.Ranked[id]
		switch {
		case !seen || baseline:
			st.Ranked[id] = snap.Ranked
		case snap.Ranked > prev:
			events = append(events, model.NewRankPromotion(id, snap.DisplayName, snap.Ranked, e.ranks.Name(snap.Ranked)))
			st.Ranked[id] = snap.Ranked
		}
	}

	return events
}

// ExtraProgress sums, over all dimensions above the cap, the amount by which
// each exceeds it. It is re-derived from the raw values on every call.
func (e *Engine) ExtraProgress(dims map[string]int) int {
	sum := 0
	for _, v := range dims {
		if v > e.dimensionCap {
			sum += v - e.dimensionCap
		}
	}
	return sum
}

// ResetSeason clears every watermark table and marks all known members for a
// silent rebaseline on their next successful observation.
func (e *Engine) ResetSeason(st *model.State) {
	pending := make(map[string]bool, len(st.Roster)+len(st.Trophies))
	for id := range st.Roster {
		pending[id] = true
	}
	for id := range st.Trophies {
		pending[id] = true
	}
	st.Trophies = make(map[string]map[string]int)
	st.Ranked = make(map[string]int)
	st.LastThreshold = make(map[string]int)
	st.Rebaseline = pending
}

// Prune removes watermark rows of members not in live and returns the
// number of members removed.
func (e *Engine) Prune(st *model.State, live map[string]struct{}) int {
	stale := make(map[string]struct{})
	collect := func(id string) {
		if _, ok := live[id]; !ok {
			stale[id] = struct{}{}
		}
	}
	for id := range st.Trophies {
		collect(id)
	}
	for id := range st.Ranked {
		collect(id)
	}
	for id := range st.LastThreshold {
		collect(id)
	}
	for id := range st.Rebaseline {
		collect(id)
	}
	for id := range stale {
		delete(st.Trophies, id)
		delete(st.Ranked, id)
		delete(st.LastThreshold, id)
		delete(st.Rebaseline, id)
	}
	return len(stale)
}
