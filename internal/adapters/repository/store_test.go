package repository_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/okian/clubwatch/internal/adapters/repository"
	"github.com/okian/clubwatch/internal/domain/model"
	"github.com/okian/clubwatch/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func quiet() repository.Option {
	return repository.WithLogger(logger.New(logger.WithWriter(io.Discard)))
}

func sampleState() *model.State {
	st := model.NewState()
	st.RosterSeeded = true
	st.GlobalLeader = 98000
	st.Roster["#AAA"] = model.MemberRef{ID: "#AAA", DisplayName: "Ann", Role: "president"}
	st.Roster["#BBB"] = model.MemberRef{ID: "#BBB", DisplayName: "Bob", Role: "member"}
	st.Trophies["#AAA"] = map[string]int{"SHELLY": 1020, "COLT": 640}
	st.Ranked["#AAA"] = 14
	st.LastThreshold["#AAA"] = 1000
	st.Rebaseline["#BBB"] = true
	return st
}

// storeContract exercises the behavior every backend must share.
func storeContract(open func() repository.Store) {
	ctx := context.Background()

	Convey("When nothing was saved yet", func() {
		s := open()
		defer s.Close()
		st, err := s.Load(ctx)

		Convey("Then an empty unseeded state is returned", func() {
			So(err, ShouldBeNil)
			So(st.RosterSeeded, ShouldBeFalse)
			So(st.Roster, ShouldBeEmpty)
			So(st.Trophies, ShouldNotBeNil)
		})
	})

	Convey("When a state is saved and loaded back", func() {
		s := open()
		defer s.Close()
		want := sampleState()
		So(s.Save(ctx, want), ShouldBeNil)
		got, err := s.Load(ctx)

		Convey("Then every table round-trips", func() {
			So(err, ShouldBeNil)
			So(got, ShouldResemble, want)
		})
	})

	Convey("When a second save drops a member", func() {
		s := open()
		defer s.Close()
		So(s.Save(ctx, sampleState()), ShouldBeNil)

		next := sampleState()
		delete(next.Roster, "#BBB")
		delete(next.Rebaseline, "#BBB")
		next.Trophies["#AAA"]["SHELLY"] = 1100
		So(s.Save(ctx, next), ShouldBeNil)
		got, err := s.Load(ctx)

		Convey("Then the previous document is fully replaced", func() {
			So(err, ShouldBeNil)
			So(got.Roster, ShouldNotContainKey, "#BBB")
			So(got.Rebaseline, ShouldBeEmpty)
			So(got.Trophies["#AAA"]["SHELLY"], ShouldEqual, 1100)
		})
	})
}

func TestFileStore(t *testing.T) {
	Convey("Given a file store", t, func() {
		path := filepath.Join(t.TempDir(), "state", "clubwatch.json")
		storeContract(func() repository.Store {
			s, err := repository.NewFileStore(path, quiet())
			So(err, ShouldBeNil)
			return s
		})
	})

	Convey("Given a file with invalid content", t, func() {
		path := filepath.Join(t.TempDir(), "state.json")
		So(os.WriteFile(path, []byte("{not json"), 0o600), ShouldBeNil)
		s, err := repository.NewFileStore(path, quiet())
		So(err, ShouldBeNil)

		Convey("Then Load reports a corrupt state", func() {
			_, err := s.Load(context.Background())
			So(errors.Is(err, model.ErrStateCorrupt), ShouldBeTrue)
		})
	})

	Convey("Given a successful save", t, func() {
		dir := t.TempDir()
		s, err := repository.NewFileStore(filepath.Join(dir, "state.json"), quiet())
		So(err, ShouldBeNil)
		So(s.Save(context.Background(), sampleState()), ShouldBeNil)

		Convey("Then no temporary files are left behind", func() {
			entries, err := os.ReadDir(dir)
			So(err, ShouldBeNil)
			So(len(entries), ShouldEqual, 1)
			So(entries[0].Name(), ShouldEqual, "state.json")
		})
	})

	Convey("Given an empty path", t, func() {
		_, err := repository.NewFileStore(" ", quiet())
		So(errors.Is(err, repository.ErrNotConfigured), ShouldBeTrue)
	})
}

func TestSQLiteStore(t *testing.T) {
	Convey("Given a SQLite store", t, func() {
		path := filepath.Join(t.TempDir(), "clubwatch.db")
		storeContract(func() repository.Store {
			s, err := repository.OpenSQLite(context.Background(), path, quiet())
			So(err, ShouldBeNil)
			return s
		})
	})
}

func TestSQLiteStoreCorruptFile(t *testing.T) {
	Convey("Given a state path holding bytes that are not a SQLite database", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		path := filepath.Join(dir, "clubwatch.db")
		garbage := []byte("this is not a sqlite database, just some leftover bytes from a bad write....")
		So(os.WriteFile(path, garbage, 0o600), ShouldBeNil)

		Convey("When the store is opened", func() {
			s, err := repository.Open(ctx, repository.BackendSQLite, path, "", quiet())

			Convey("Then it starts from an empty database", func() {
				So(err, ShouldBeNil)
				defer s.Close()
				st, err := s.Load(ctx)
				So(err, ShouldBeNil)
				So(st.RosterSeeded, ShouldBeFalse)
				So(s.Save(ctx, sampleState()), ShouldBeNil)
			})

			Convey("And the unreadable file is kept aside", func() {
				So(err, ShouldBeNil)
				defer s.Close()
				moved, _ := filepath.Glob(path + ".corrupt-*")
				So(len(moved), ShouldBeGreaterThanOrEqualTo, 1)
				kept, err := os.ReadFile(moved[0])
				So(err, ShouldBeNil)
				So(kept, ShouldResemble, garbage)
			})
		})
	})
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("CLUBWATCH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CLUBWATCH_TEST_POSTGRES_DSN not set")
	}
	Convey("Given a Postgres store", t, func() {
		key := "test-" + uuid.NewString()
		storeContract(func() repository.Store {
			s, err := repository.OpenPostgres(context.Background(), dsn, quiet(), repository.WithDocumentKey(key))
			So(err, ShouldBeNil)
			return s
		})
	})
}

func TestOpen(t *testing.T) {
	Convey("Given backend names", t, func() {
		ctx := context.Background()
		dir := t.TempDir()

		Convey("When the file backend is requested", func() {
			s, err := repository.Open(ctx, "file", filepath.Join(dir, "s.json"), "", quiet())
			So(err, ShouldBeNil)
			_, ok := s.(*repository.FileStore)
			So(ok, ShouldBeTrue)
		})

		Convey("When the sqlite backend is requested", func() {
			s, err := repository.Open(ctx, "SQLite", filepath.Join(dir, "s.db"), "", quiet())
			So(err, ShouldBeNil)
			defer s.Close()
			_, ok := s.(*repository.SQLiteStore)
			So(ok, ShouldBeTrue)
		})

		Convey("When postgres is requested without a dsn", func() {
			s, err := repository.Open(ctx, "postgres", "", "", quiet())
			So(errors.Is(err, repository.ErrNotConfigured), ShouldBeTrue)
			So(s, ShouldBeNil)
		})

		Convey("When an unknown backend is requested", func() {
			_, err := repository.Open(ctx, "redis", "", "", quiet())
			So(errors.Is(err, repository.ErrUnknownBackend), ShouldBeTrue)
		})
	})
}
