package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/clubwatch/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		d := dedupe.NewInMemoryDeduper()
		So(d.Size(), ShouldEqual, 0)

		Convey("When a delivery key is new", func() {
			seen := d.SeenAndRecord(ctx, dedupe.Key("webhook", "evt-1"))

			Convey("Then it is recorded", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When the same key is recorded twice", func() {
			d.SeenAndRecord(ctx, dedupe.Key("webhook", "evt-1"))
			seen := d.SeenAndRecord(ctx, dedupe.Key("webhook", "evt-1"))

			Convey("Then the second call reports it as seen", func() {
				So(seen, ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When the same event goes to different sinks", func() {
			a := d.SeenAndRecord(ctx, dedupe.Key("log", "evt-1"))
			b := d.SeenAndRecord(ctx, dedupe.Key("nats", "evt-1"))

			Convey("Then each sink is tracked separately", func() {
				So(a, ShouldBeFalse)
				So(b, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 2)
			})
		})

		Convey("When a failed delivery is unrecorded", func() {
			key := dedupe.Key("webhook", "evt-2")
			d.SeenAndRecord(ctx, key)
			d.Unrecord(ctx, key)

			Convey("Then it can be recorded again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, key), ShouldBeFalse)
			})
		})

		Convey("When unrecording an unknown key", func() {
			d.Unrecord(ctx, "missing")
			So(d.Size(), ShouldEqual, 0)
		})

		Convey("When many goroutines race on the same key", func() {
			var wg sync.WaitGroup
			var mu sync.Mutex
			fresh := 0
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if !d.SeenAndRecord(ctx, "race") {
						mu.Lock()
						fresh++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			Convey("Then exactly one wins", func() {
				So(fresh, ShouldEqual, 1)
			})
		})
	})

	Convey("Given a deduper bounded to three keys", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
		for i := 1; i <= 4; i++ {
			d.SeenAndRecord(ctx, fmt.Sprintf("k%d", i))
		}

		Convey("Then the oldest key was evicted", func() {
			So(d.Size(), ShouldEqual, 3)
			So(d.SeenAndRecord(ctx, "k4"), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, "k1"), ShouldBeFalse)
		})

		Convey("Then unrecording from the middle keeps the order intact", func() {
			d.Unrecord(ctx, "k3")
			d.SeenAndRecord(ctx, "k5")
			d.SeenAndRecord(ctx, "k6")
			So(d.Size(), ShouldEqual, 3)
			So(d.SeenAndRecord(ctx, "k2"), ShouldBeFalse)
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		for i := 0; i < 500; i++ {
			So(d.SeenAndRecord(ctx, fmt.Sprintf("k%d", i)), ShouldBeFalse)
		}
		So(d.Size(), ShouldEqual, 500)
	})
}
