// Package roster detects membership changes between two roster snapshots.
package roster

import (
	"sort"

	"github.com/okian/clubwatch/internal/domain/model"
)

// Diff is the set difference between two rosters, keyed by member ID.
type Diff struct {
	Joined []model.MemberRef
	Left   []model.MemberRef
}

// Empty reports whether nothing changed.
func (d Diff) Empty() bool { return len(d.Joined) == 0 && len(d.Left) == 0 }

// Compute returns members present only in next (Joined) and members present
// only in prev (Left). Left entries carry the last-known ref from prev.
// Both slices are sorted by ID.
func Compute(prev map[string]model.MemberRef, next model.RosterSnapshot) Diff {
	idx := next.Index()
	var d Diff
	for id, m := range idx {
		if _, ok := prev[id]; !ok {
			d.Joined = append(d.Joined, m)
		}
	}
	for id, m := range prev {
		if _, ok := idx[id]; !ok {
			d.Left = append(d.Left, m)
		}
	}
	sort.Slice(d.Joined, func(i, j int) bool { return d.Joined[i].ID < d.Joined[j].ID })
	sort.Slice(d.Left, func(i, j int) bool { return d.Left[i].ID < d.Left[j].ID })
	return d
}

// Apply diffs next against the roster held in st, overwrites it with next
// and returns one event per joined or left member.
// The first call on an unseeded state only seeds the roster.
// Apply never touches the watermark tables.
func Apply(st *model.State, next model.RosterSnapshot) (Diff, []model.Event) {
	var d Diff
	if st.RosterSeeded {
		d = Compute(st.Roster, next)
	}
	st.Roster = next.Index()
	st.RosterSeeded = true

	events := make([]model.Event, 0, len(d.Joined)+len(d.Left))
	for _, m := range d.Joined {
		events = append(events, model.NewMemberJoined(m))
	}
	for _, m := range d.Left {
		events = append(events, model.NewMemberLeft(m))
	}
	return d, events
}
