// Package notify holds the event sinks the delivery workers fan out to.
package notify

import (
	"fmt"

	"github.com/okian/clubwatch/internal/domain/model"
)

// Summary renders a one-line plain-text description of e.
func Summary(e model.Event) string { //nolint:gocritic // hugeParam: events travel by value
	who := e.DisplayName
	if who == "" {
		who = e.MemberID
	}
	switch e.Kind {
	case model.KindMemberJoined:
		return fmt.Sprintf("%s joined the club", who)
	case model.KindMemberLeft:
		return fmt.Sprintf("%s left the club", who)
	case model.KindDimensionCapped:
		return fmt.Sprintf("%s pushed %s to the cap", who, e.Dimension)
	case model.KindThresholdReached:
		return fmt.Sprintf("%s reached %d extra progress", who, e.Threshold)
	case model.KindRankPromotion:
		return fmt.Sprintf("%s ranked up to %s", who, e.TierName)
	default:
		return fmt.Sprintf("%s: %s", who, e.Kind)
	}
}
