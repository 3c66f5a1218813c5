package model

// State is the persisted aggregate shared by both polling loops.
// It is passed explicitly into every diff and committed as a whole.
type State struct {
	// Roster is the last successfully fetched roster, keyed by member ID.
	Roster map[string]MemberRef `json:"roster"`
	// RosterSeeded is false until the first roster poll succeeded.
	RosterSeeded bool `json:"roster_seeded"`

	// Trophies is the per-dimension trophy watermark: id -> dimension -> value.
	Trophies map[string]map[string]int `json:"trophies"`
	// Ranked is the ranked watermark per member.
	Ranked map[string]int `json:"ranked"`
	// LastThreshold is the highest milestone threshold already notified per member.
	LastThreshold map[string]int `json:"last_threshold"`
	// GlobalLeader is the best value observed across the whole player population.
	GlobalLeader int `json:"global_leader"`

	// Rebaseline marks members cleared by a season reset that still need
	// their first post-reset observation recorded without events.
	Rebaseline map[string]bool `json:"rebaseline,omitempty"`
}

// NewState returns an empty, unseeded state.
func NewState() *State {
	return &State{
		Roster:        make(map[string]MemberRef),
		Trophies:      make(map[string]map[string]int),
		Ranked:        make(map[string]int),
		LastThreshold: make(map[string]int),
		Rebaseline:    make(map[string]bool),
	}
}

// Normalize allocates any nil maps, e.g. after decoding an older document.
func (s *State) Normalize() *State {
	if s.Roster == nil {
		s.Roster = make(map[string]MemberRef)
	}
	if s.Trophies == nil {
		s.Trophies = make(map[string]map[string]int)
	}
	if s.Ranked == nil {
		s.Ranked = make(map[string]int)
	}
	if s.LastThreshold == nil {
		s.LastThreshold = make(map[string]int)
	}
	if s.Rebaseline == nil {
		s.Rebaseline = make(map[string]bool)
	}
	return s
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	c := NewState()
	c.RosterSeeded = s.RosterSeeded
	c.GlobalLeader = s.GlobalLeader
	for id, m := range s.Roster {
		c.Roster[id] = m
	}
	for id, dims := range s.Trophies {
		cp := make(map[string]int, len(dims))
		for d, v := range dims {
			cp[d] = v
		}
		c.Trophies[id] = cp
	}
	for id, v := range s.Ranked {
		c.Ranked[id] = v
	}
	for id, v := range s.LastThreshold {
		c.LastThreshold[id] = v
	}
	for id, v := range s.Rebaseline {
		c.Rebaseline[id] = v
	}
	return c
}

// TrackedMembers returns the number of members with any watermark row.
func (s *State) TrackedMembers() int {
	seen := make(map[string]struct{}, len(s.Trophies))
	for id := range s.Trophies {
		seen[id] = struct{}{}
	}
	for id := range s.Ranked {
		seen[id] = struct{}{}
	}
	for id := range s.LastThreshold {
		seen[id] = struct{}{}
	}
	return len(seen)
}
