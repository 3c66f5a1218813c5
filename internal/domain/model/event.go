// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies the type of an emitted event.
type Kind string

// Event kinds produced by the diff engines.
const (
	KindMemberJoined     Kind = "member_joined"
	KindMemberLeft       Kind = "member_left"
	KindDimensionCapped  Kind = "dimension_capped"
	KindThresholdReached Kind = "threshold_reached"
	KindRankPromotion    Kind = "rank_promotion"
)

// Event is a discrete occurrence detected by diffing two snapshots.
// Only the fields relevant to Kind are populated.
type Event struct {
	ID          string    `json:"id"`        // unique per emission, used for delivery idempotency
	Kind        Kind      `json:"kind"`      // event type
	MemberID    string    `json:"member_id"` // player tag
	DisplayName string    `json:"display_name,omitempty"`
	Role        string    `json:"role,omitempty"`      // joined/left
	Dimension   string    `json:"dimension,omitempty"` // capped
	Threshold   int       `json:"threshold,omitempty"` // threshold reached
	Tier        int       `json:"tier,omitempty"`      // rank promotion
	TierName    string    `json:"tier_name,omitempty"` // rank promotion
	OccurredAt  time.Time `json:"occurred_at"`

	// Redeliveries counts how often delivery handed the event back to the queue.
	Redeliveries int `json:"-"`
}

func newEvent(kind Kind, memberID, displayName string) Event {
	return Event{
		ID:          uuid.NewString(),
		Kind:        kind,
		MemberID:    memberID,
		DisplayName: displayName,
		OccurredAt:  time.Now().UTC(),
	}
}

// NewMemberJoined builds a MemberJoined event.
func NewMemberJoined(m MemberRef) Event {
	e := newEvent(KindMemberJoined, m.ID, m.DisplayName)
	e.Role = m.Role
	return e
}

// NewMemberLeft builds a MemberLeft event from the last known ref of the member.
func NewMemberLeft(last MemberRef) Event {
	e := newEvent(KindMemberLeft, last.ID, last.DisplayName)
	e.Role = last.Role
	return e
}

// NewDimensionCapped builds a DimensionCapped event.
func NewDimensionCapped(memberID, displayName, dimension string) Event {
	e := newEvent(KindDimensionCapped, memberID, displayName)
	e.Dimension = dimension
	return e
}

// NewThresholdReached builds a ThresholdReached event.
func NewThresholdReached(memberID, displayName string, threshold int) Event {
	e := newEvent(KindThresholdReached, memberID, displayName)
	e.Threshold = threshold
	return e
}

// NewRankPromotion builds a RankPromotion event.
func NewRankPromotion(memberID, displayName string, tier int, tierName string) Event {
	e := newEvent(KindRankPromotion, memberID, displayName)
	e.Tier = tier
	e.TierName = tierName
	return e
}
