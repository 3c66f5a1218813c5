package model

import (
	"sort"
	"strings"
)

// MemberRef identifies a club member as seen in a roster snapshot.
type MemberRef struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// RosterSnapshot is the club roster captured by one poll. Order is irrelevant.
type RosterSnapshot struct {
	Members []MemberRef
}

// Index returns the snapshot keyed by member ID. Later duplicates win.
func (r RosterSnapshot) Index() map[string]MemberRef {
	out := make(map[string]MemberRef, len(r.Members))
	for _, m := range r.Members {
		out[m.ID] = m
	}
	return out
}

// IDs returns the set of member IDs in the snapshot.
func (r RosterSnapshot) IDs() map[string]struct{} {
	out := make(map[string]struct{}, len(r.Members))
	for _, m := range r.Members {
		out[m.ID] = struct{}{}
	}
	return out
}

// MemberStatSnapshot holds one member's statistics at poll time.
// Dimensions maps a sub-category (brawler) name to its trophy count.
// Ranked is only meaningful when HasRanked is set.
type MemberStatSnapshot struct {
	ID          string
	DisplayName string
	IconID      int
	Dimensions  map[string]int
	Ranked      int
	HasRanked   bool
}

// NormalizeTag upper-cases a player or club tag and ensures the leading '#'.
func NormalizeTag(tag string) string {
	tag = strings.ToUpper(strings.TrimSpace(tag))
	if tag == "" {
		return ""
	}
	if !strings.HasPrefix(tag, "#") {
		tag = "#" + tag
	}
	return tag
}

// SortedIDs returns the keys of a member map in ascending order.
func SortedIDs[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
