package milestone_test

import (
	"testing"

	"github.com/okian/clubwatch/internal/domain/milestone"
	"github.com/okian/clubwatch/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func stats(id string, dims map[string]int) model.MemberStatSnapshot {
	return model.MemberStatSnapshot{ID: id, DisplayName: "name-" + id, Dimensions: dims}
}

func ranked(id string, value int) model.MemberStatSnapshot {
	s := stats(id, nil)
	s.Ranked = value
	s.HasRanked = true
	return s
}

func kinds(events []model.Event, kind model.Kind) []model.Event {
	var out []model.Event
	for _, e := range events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func TestDimensionWatermarks(t *testing.T) {
	Convey("Given an engine with a cap of 1000", t, func() {
		e := milestone.NewEngine()
		st := model.NewState()

		Convey("When a sequence of values is observed outside a reset", func() {
			values := []int{300, 700, 650, 980, 120, 900}
			for _, v := range values {
				e.Update(st, stats("#A", map[string]int{"SHELLY": v}), false)
			}

			Convey("Then the watermark is the maximum observed", func() {
				So(st.Trophies["#A"]["SHELLY"], ShouldEqual, 980)
			})
		})

		Convey("When a dimension crosses the cap", func() {
			first := e.Update(st, stats("#A", map[string]int{"SHELLY": 990, "COLT": 400}), false)
			second := e.Update(st, stats("#A", map[string]int{"SHELLY": 1000, "COLT": 400}), false)
			third := e.Update(st, stats("#A", map[string]int{"SHELLY": 1010, "COLT": 400}), false)

			Convey("Then exactly one capped event fires, on the crossing cycle", func() {
				So(first, ShouldBeEmpty)
				capped := kinds(second, model.KindDimensionCapped)
				So(len(capped), ShouldEqual, 1)
				So(capped[0].Dimension, ShouldEqual, "SHELLY")
				So(capped[0].DisplayName, ShouldEqual, "name-#A")
				So(kinds(third, model.KindDimensionCapped), ShouldBeEmpty)
			})
		})

		Convey("When a dimension dips below the cap and returns", func() {
			e.Update(st, stats("#A", map[string]int{"SHELLY": 1005}), false)
			e.Update(st, stats("#A", map[string]int{"SHELLY": 995}), false)
			again := e.Update(st, stats("#A", map[string]int{"SHELLY": 1001}), false)

			Convey("Then no second capped event fires", func() {
				So(kinds(again, model.KindDimensionCapped), ShouldBeEmpty)
			})
		})

		Convey("When a dimension is missing from a later snapshot", func() {
			e.Update(st, stats("#A", map[string]int{"SHELLY": 800, "COLT": 300}), false)
			e.Update(st, stats("#A", map[string]int{"SHELLY": 810}), false)

			Convey("Then its watermark is retained", func() {
				So(st.Trophies["#A"]["COLT"], ShouldEqual, 300)
			})
		})
	})
}

func TestThresholds(t *testing.T) {
	Convey("Given thresholds [100, 250, 500]", t, func() {
		e := milestone.NewEngine(milestone.WithThresholds([]int{500, 100, 250}))
		st := model.NewState()
		So(e.Thresholds(), ShouldResemble, []int{100, 250, 500})

		Convey("When the aggregate jumps from nothing to 600 in one cycle", func() {
			st.Trophies["#A"] = map[string]int{"SHELLY": 1000, "COLT": 1000}
			events := e.Update(st, stats("#A", map[string]int{"SHELLY": 1400, "COLT": 1200}), false)
			reached := kinds(events, model.KindThresholdReached)

			Convey("Then every crossed threshold fires in ascending order", func() {
				So(len(reached), ShouldEqual, 3)
				So(reached[0].Threshold, ShouldEqual, 100)
				So(reached[1].Threshold, ShouldEqual, 250)
				So(reached[2].Threshold, ShouldEqual, 500)
				So(st.LastThreshold["#A"], ShouldEqual, 500)
			})

			Convey("And the same aggregate next cycle fires nothing", func() {
				events := e.Update(st, stats("#A", map[string]int{"SHELLY": 1400, "COLT": 1200}), false)
				So(kinds(events, model.KindThresholdReached), ShouldBeEmpty)
			})
		})

		Convey("When the aggregate grows step by step", func() {
			a := e.Update(st, stats("#A", map[string]int{"SHELLY": 1150}), false)
			b := e.Update(st, stats("#A", map[string]int{"SHELLY": 1240}), false)
			c := e.Update(st, stats("#A", map[string]int{"SHELLY": 1260}), false)

			Convey("Then each threshold fires once", func() {
				So(len(kinds(a, model.KindThresholdReached)), ShouldEqual, 1)
				So(kinds(b, model.KindThresholdReached), ShouldBeEmpty)
				So(len(kinds(c, model.KindThresholdReached)), ShouldEqual, 1)
				So(st.LastThreshold["#A"], ShouldEqual, 250)
			})
		})

		Convey("When no threshold is reached", func() {
			e.Update(st, stats("#A", map[string]int{"SHELLY": 1050}), false)

			Convey("Then no threshold row is stored", func() {
				So(st.LastThreshold, ShouldNotContainKey, "#A")
			})
		})

		Convey("When the aggregate drops after a threshold was notified", func() {
			e.Update(st, stats("#A", map[string]int{"SHELLY": 1300}), false)
			e.Update(st, stats("#A", map[string]int{"SHELLY": 1100}), false)

			Convey("Then the notified threshold never decreases", func() {
				So(st.LastThreshold["#A"], ShouldEqual, 250)
			})
		})
	})

	Convey("Given thresholds containing zero and duplicates", t, func() {
		e := milestone.NewEngine(milestone.WithThresholds([]int{0, 300, 300, -5, 100}))
		So(e.Thresholds(), ShouldResemble, []int{100, 300})
	})

	Convey("Given extra progress computation", t, func() {
		e := milestone.NewEngine(milestone.WithDimensionCap(500))
		So(e.ExtraProgress(map[string]int{"A": 600, "B": 500, "C": 100, "D": 750}), ShouldEqual, 350)
	})
}

func TestRankPromotion(t *testing.T) {
	Convey("Given a member observed for the first time", t, func() {
		e := milestone.NewEngine()
		st := model.NewState()
		first := e.Update(st, ranked("#A", 1200), false)

		Convey("Then no promotion fires and the watermark is seeded", func() {
			So(kinds(first, model.KindRankPromotion), ShouldBeEmpty)
			So(st.Ranked["#A"], ShouldEqual, 1200)
		})

		Convey("When a higher value is observed", func() {
			second := e.Update(st, ranked("#A", 1300), false)
			promos := kinds(second, model.KindRankPromotion)

			Convey("Then exactly one promotion fires", func() {
				So(len(promos), ShouldEqual, 1)
				So(promos[0].Tier, ShouldEqual, 1300)
				So(promos[0].TierName, ShouldEqual, "Rank 1300")
				So(st.Ranked["#A"], ShouldEqual, 1300)
			})
		})

		Convey("When a lower value is observed", func() {
			lower := e.Update(st, ranked("#A", 1100), false)

			Convey("Then nothing fires and the watermark holds", func() {
				So(lower, ShouldBeEmpty)
				So(st.Ranked["#A"], ShouldEqual, 1200)
			})
		})
	})

	Convey("Given a known tier value", t, func() {
		e := milestone.NewEngine()
		st := model.NewState()
		e.Update(st, ranked("#A", 12), false)
		promos := kinds(e.Update(st, ranked("#A", 13), false), model.KindRankPromotion)

		Convey("Then the tier name comes from the table", func() {
			So(promos[0].TierName, ShouldEqual, "Mythic I")
		})
	})

	Convey("Given a snapshot without a ranked value", t, func() {
		e := milestone.NewEngine()
		st := model.NewState()
		e.Update(st, stats("#A", map[string]int{"SHELLY": 10}), false)
		So(st.Ranked, ShouldNotContainKey, "#A")
	})
}

func TestSeasonReset(t *testing.T) {
	Convey("Given a member with high watermarks", t, func() {
		e := milestone.NewEngine(milestone.WithThresholds([]int{100, 250, 500}))
		st := model.NewState()
		st.Roster["#A"] = model.MemberRef{ID: "#A"}
		st.Roster["#B"] = model.MemberRef{ID: "#B"}
		st.Trophies["#A"] = map[string]int{"SHELLY": 10000}
		st.Trophies["#B"] = map[string]int{"SHELLY": 1200}
		st.LastThreshold["#A"] = 500
		st.Ranked["#A"] = 15

		Convey("When a reset cycle observes a value of 50", func() {
			e.ResetSeason(st)
			events := e.Update(st, stats("#A", map[string]int{"SHELLY": 50}), true)

			Convey("Then no events fire and the watermark is exactly the new value", func() {
				So(events, ShouldBeEmpty)
				So(st.Trophies["#A"]["SHELLY"], ShouldEqual, 50)
				So(st.LastThreshold, ShouldNotContainKey, "#A")
				So(st.Ranked, ShouldNotContainKey, "#A")
			})
		})

		Convey("When a reset cycle observes values still above the cap", func() {
			e.ResetSeason(st)
			events := e.Update(st, stats("#A", map[string]int{"SHELLY": 1300, "COLT": 1000}), true)

			Convey("Then nothing fires but the threshold track is rebaselined", func() {
				So(events, ShouldBeEmpty)
				So(st.LastThreshold["#A"], ShouldEqual, 250)
			})

			Convey("And the following normal cycle does not replay old milestones", func() {
				next := e.Update(st, stats("#A", map[string]int{"SHELLY": 1300, "COLT": 1000}), false)
				So(next, ShouldBeEmpty)
			})
		})

		Convey("When the ranked value is observed again after the reset", func() {
			e.ResetSeason(st)
			reseed := e.Update(st, ranked("#A", 10), true)

			Convey("Then it is re-seeded without a promotion", func() {
				So(kinds(reseed, model.KindRankPromotion), ShouldBeEmpty)
				So(st.Ranked["#A"], ShouldEqual, 10)
			})

			Convey("And a later climb is promoted from the new value", func() {
				promos := kinds(e.Update(st, ranked("#A", 11), false), model.KindRankPromotion)
				So(len(promos), ShouldEqual, 1)
				So(promos[0].Tier, ShouldEqual, 11)
			})
		})

		Convey("When a member's fetch failed during the reset cycle", func() {
			e.ResetSeason(st)
			e.Update(st, stats("#A", map[string]int{"SHELLY": 50}), true)

			Convey("Then that member is rebaselined silently on its next observation", func() {
				So(st.Rebaseline["#B"], ShouldBeTrue)
				events := e.Update(st, stats("#B", map[string]int{"SHELLY": 1100}), false)
				So(events, ShouldBeEmpty)
				So(st.Trophies["#B"]["SHELLY"], ShouldEqual, 1100)
				So(st.Rebaseline, ShouldNotContainKey, "#B")

				Convey("And later crossings are reported again", func() {
					events := e.Update(st, stats("#B", map[string]int{"SHELLY": 1300}), false)
					So(len(kinds(events, model.KindThresholdReached)), ShouldEqual, 1)
				})
			})
		})
	})
}

func TestPrune(t *testing.T) {
	Convey("Given watermark rows for members that left", t, func() {
		e := milestone.NewEngine()
		st := model.NewState()
		st.Trophies["#A"] = map[string]int{"SHELLY": 1}
		st.Trophies["#B"] = map[string]int{"SHELLY": 1}
		st.Ranked["#C"] = 4
		st.LastThreshold["#B"] = 100
		st.Rebaseline["#D"] = true

		Convey("When pruning against a roster containing only #A", func() {
			removed := e.Prune(st, map[string]struct{}{"#A": {}})

			Convey("Then every stale row is removed", func() {
				So(removed, ShouldEqual, 3)
				So(st.Trophies, ShouldContainKey, "#A")
				So(st.Trophies, ShouldNotContainKey, "#B")
				So(st.Ranked, ShouldBeEmpty)
				So(st.LastThreshold, ShouldBeEmpty)
				So(st.Rebaseline, ShouldBeEmpty)
			})
		})
	})
}
