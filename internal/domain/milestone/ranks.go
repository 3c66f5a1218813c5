package milestone

import "strconv"

// RankTable maps a numeric ranked value to its tier name.
type RankTable map[int]string

// DefaultRankTable lists the ranked tiers in ascending order of value.
var DefaultRankTable = RankTable{ //nolint:gochecknoglobals // read-only lookup table
	1: "Bronze I", 2: "Bronze II", 3: "Bronze III",
	4: "Silver I", 5: "Silver II", 6: "Silver III",
	7: "Gold I", 8: "Gold II", 9: "Gold III",
	10: "Diamond I", 11: "Diamond II", 12: "Diamond III",
	13: "Mythic I", 14: "Mythic II", 15: "Mythic III",
	16: "Legendary I", 17: "Legendary II", 18: "Legendary III",
	19: "Masters I", 20: "Masters II", 21: "Masters III",
	22: "Pro",
}

// Name returns the tier name for value, or "Rank N" when unknown.
func (t RankTable) Name(value int) string {
	if name, ok := t[value]; ok {
		return name
	}
	return "Rank " + strconv.Itoa(value)
}
