package brawlapi_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/okian/clubwatch/internal/adapters/brawlapi"
	"github.com/okian/clubwatch/internal/domain/model"
	"github.com/okian/clubwatch/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeAPI struct {
	routes map[string]string
	status map[string]int
	auth   atomic.Value
	hits   atomic.Int64
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.hits.Add(1)
	f.auth.Store(r.Header.Get("Authorization"))
	path := r.URL.EscapedPath()
	if code, ok := f.status[path]; ok {
		w.WriteHeader(code)
		_, _ = io.WriteString(w, `{"reason":"notFound"}`)
		return
	}
	body, ok := f.routes[path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

func newClient(srv *httptest.Server) *brawlapi.Client {
	return brawlapi.NewClient(
		brawlapi.WithBaseURL(srv.URL+"/v1/"),
		brawlapi.WithToken("secret"),
		brawlapi.WithRateLimit(0, 0),
		brawlapi.WithLogger(logger.New(logger.WithWriter(io.Discard))),
	)
}

func TestFetchRoster(t *testing.T) {
	Convey("Given an upstream club", t, func() {
		api := &fakeAPI{routes: map[string]string{
			"/v1/clubs/%23CLUB/members": `{"items":[
				{"tag":"#AAA","name":"Ann","role":"president"},
				{"tag":"#bbb","name":"Bob","role":"member"}
			]}`,
		}}
		srv := httptest.NewServer(api)
		defer srv.Close()
		c := newClient(srv)

		Convey("When the roster is fetched with an unprefixed tag", func() {
			snap, err := c.FetchRoster(context.Background(), "club")

			Convey("Then members are returned with normalized ids", func() {
				So(err, ShouldBeNil)
				So(len(snap.Members), ShouldEqual, 2)
				So(snap.Members[0], ShouldResemble, model.MemberRef{ID: "#AAA", DisplayName: "Ann", Role: "president"})
				So(snap.Members[1].ID, ShouldEqual, "#BBB")
				So(api.auth.Load(), ShouldEqual, "Bearer secret")
			})
		})

		Convey("When a member lacks a name", func() {
			api.routes["/v1/clubs/%23CLUB/members"] = `{"items":[{"tag":"#AAA"}]}`
			_, err := c.FetchRoster(context.Background(), "#CLUB")

			Convey("Then a typed fetch failure is returned", func() {
				So(errors.Is(err, model.ErrFetch), ShouldBeTrue)
				So(errors.Is(err, brawlapi.ErrMissingField), ShouldBeTrue)
			})
		})

		Convey("When the upstream answers 404", func() {
			api.status = map[string]int{"/v1/clubs/%23CLUB/members": http.StatusNotFound}
			_, err := c.FetchRoster(context.Background(), "#CLUB")

			Convey("Then the status is carried in the error", func() {
				var fe *model.FetchError
				So(errors.As(err, &fe), ShouldBeTrue)
				So(fe.Status, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When a 200 response carries no member list", func() {
			api.routes["/v1/clubs/%23CLUB/members"] = `{"reason":"maintenance"}`
			_, err := c.FetchRoster(context.Background(), "#CLUB")

			Convey("Then it is a fetch failure, not an empty club", func() {
				So(errors.Is(err, model.ErrFetch), ShouldBeTrue)
				So(errors.Is(err, brawlapi.ErrMissingField), ShouldBeTrue)
			})
		})

		Convey("When the member list is empty", func() {
			api.routes["/v1/clubs/%23CLUB/members"] = `{"items":[]}`
			_, err := c.FetchRoster(context.Background(), "#CLUB")

			Convey("Then it is a fetch failure", func() {
				So(errors.Is(err, model.ErrFetch), ShouldBeTrue)
				So(errors.Is(err, brawlapi.ErrEmptyRoster), ShouldBeTrue)
			})
		})

		Convey("When the body is not JSON", func() {
			api.routes["/v1/clubs/%23CLUB/members"] = `<html>`
			_, err := c.FetchRoster(context.Background(), "#CLUB")
			So(errors.Is(err, model.ErrFetch), ShouldBeTrue)
		})
	})
}

func TestFetchMemberStats(t *testing.T) {
	Convey("Given a player with brawlers and a battlelog", t, func() {
		api := &fakeAPI{routes: map[string]string{
			"/v1/players/%23AAA": `{"tag":"#AAA","name":"Ann","icon":{"id":28000007},
				"brawlers":[{"name":"SHELLY","trophies":1020},{"name":"COLT","trophies":640}]}`,
			"/v1/players/%23AAA/battlelog": `{"items":[
				{"battle":{"type":"ranked","teams":[[{"tag":"#AAA","brawler":{"trophies":700}}]]}},
				{"battle":{"type":"soloRanked","teams":[
					[{"tag":"#ZZZ","brawler":{"trophies":3}}],
					[{"tag":"#AAA","brawler":{"trophies":14}}]
				]}},
				{"battle":{"type":"soloRanked","teams":[[{"tag":"#AAA","brawler":{"trophies":12}}]]}}
			]}`,
		}}
		srv := httptest.NewServer(api)
		defer srv.Close()
		c := newClient(srv)

		Convey("When stats are fetched", func() {
			snap, err := c.FetchMemberStats(context.Background(), "#AAA")

			Convey("Then dimensions and the newest ranked value are returned", func() {
				So(err, ShouldBeNil)
				So(snap.DisplayName, ShouldEqual, "Ann")
				So(snap.IconID, ShouldEqual, 28000007)
				So(snap.Dimensions, ShouldResemble, map[string]int{"SHELLY": 1020, "COLT": 640})
				So(snap.HasRanked, ShouldBeTrue)
				So(snap.Ranked, ShouldEqual, 14)
			})
		})

		Convey("When the battlelog has no ranked battle", func() {
			api.routes["/v1/players/%23AAA/battlelog"] = `{"items":[{"battle":{"type":"ranked"}}]}`
			snap, err := c.FetchMemberStats(context.Background(), "#AAA")

			Convey("Then the member has no ranked value", func() {
				So(err, ShouldBeNil)
				So(snap.HasRanked, ShouldBeFalse)
			})
		})

		Convey("When the battlelog request fails", func() {
			api.status = map[string]int{"/v1/players/%23AAA/battlelog": http.StatusServiceUnavailable}
			snap, err := c.FetchMemberStats(context.Background(), "#AAA")

			Convey("Then the trophy snapshot is still returned", func() {
				So(err, ShouldBeNil)
				So(snap.HasRanked, ShouldBeFalse)
				So(len(snap.Dimensions), ShouldEqual, 2)
			})
		})

		Convey("When the player request fails", func() {
			api.status = map[string]int{"/v1/players/%23AAA": http.StatusInternalServerError}
			_, err := c.FetchMemberStats(context.Background(), "#AAA")
			So(errors.Is(err, model.ErrFetch), ShouldBeTrue)
		})
	})
}

func TestFetchGlobalLeaderValue(t *testing.T) {
	Convey("Given a global ranking", t, func() {
		api := &fakeAPI{routes: map[string]string{
			"/v1/rankings/global/players": `{"items":[{"tag":"#TOP","trophies":98000},{"tag":"#TWO","trophies":97000}]}`,
			"/v1/players/%23TOP":          `{"tag":"#TOP","name":"Top","trophies":98123}`,
		}}
		srv := httptest.NewServer(api)
		defer srv.Close()
		c := newClient(srv)

		Convey("When the leader entry carries trophies", func() {
			v, err := c.FetchGlobalLeaderValue(context.Background())
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 98000)
		})

		Convey("When the leader entry has no trophies", func() {
			api.routes["/v1/rankings/global/players"] = `{"items":[{"tag":"#TOP"}]}`
			v, err := c.FetchGlobalLeaderValue(context.Background())

			Convey("Then the leader profile is consulted", func() {
				So(err, ShouldBeNil)
				So(v, ShouldEqual, 98123)
			})
		})

		Convey("When the ranking is empty", func() {
			api.routes["/v1/rankings/global/players"] = `{"items":[]}`
			_, err := c.FetchGlobalLeaderValue(context.Background())
			So(errors.Is(err, brawlapi.ErrEmptyRanking), ShouldBeTrue)
			So(errors.Is(err, model.ErrFetch), ShouldBeTrue)
		})
	})
}

func TestRateLimitHonoursContext(t *testing.T) {
	Convey("Given a client limited to one request with no burst left", t, func() {
		api := &fakeAPI{routes: map[string]string{"/v1/rankings/global/players": `{"items":[{"trophies":1}]}`}}
		srv := httptest.NewServer(api)
		defer srv.Close()
		c := brawlapi.NewClient(
			brawlapi.WithBaseURL(srv.URL+"/v1"),
			brawlapi.WithRateLimit(0.001, 1),
			brawlapi.WithLogger(logger.New(logger.WithWriter(io.Discard))),
		)
		_, err := c.FetchGlobalLeaderValue(context.Background())
		So(err, ShouldBeNil)

		Convey("When the next request's context is already cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := c.FetchGlobalLeaderValue(ctx)

			Convey("Then it fails without reaching the server", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				So(api.hits.Load(), ShouldEqual, 1)
			})
		})
	})
}
