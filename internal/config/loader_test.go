package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/clubwatch/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

var configEnvVars = []string{
	"CLUBWATCH_CONFIG",
	"CLUBWATCH_CLUB_TAG",
	"CLUBWATCH_ADDR",
	"CLUBWATCH_STATS_POLL_SECONDS",
	"CLUBWATCH_ROSTER_POLL_SECONDS",
	"CLUBWATCH_STATE_BACKEND",
	"CLUBWATCH_STATE_DSN",
	"CLUBWATCH_MILESTONE_THRESHOLDS",
	"CLUBWATCH_API_RATE_PER_SEC",
	"CLUBWATCH_WEBHOOK_URL",
}

func clearConfigEnvVars() {
	for _, k := range configEnvVars {
		_ = os.Unsetenv(k)
	}
}

func setEnv(kv map[string]string) {
	for k, v := range kv {
		_ = os.Setenv(k, v)
	}
}

func TestConfigNew(t *testing.T) {
	convey.Convey("Given a new config", t, func() {
		cfg := config.New()

		convey.Convey("Then it has the documented defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.RosterInterval(), convey.ShouldEqual, 180*time.Second)
			convey.So(cfg.StatsInterval(), convey.ShouldEqual, 600*time.Second)
			convey.So(cfg.APITimeout(), convey.ShouldEqual, 10*time.Second)
			convey.So(cfg.StateBackend, convey.ShouldEqual, config.BackendFile)
			convey.So(cfg.DimensionCap, convey.ShouldEqual, 1000)
			convey.So(cfg.ResetDropThreshold, convey.ShouldEqual, 5000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, 1)
			convey.So(cfg.Redeliveries, convey.ShouldEqual, 2)
			convey.So(cfg.MilestoneThresholds, convey.ShouldBeEmpty)
		})

		convey.Convey("Then validation requires a club tag", func() {
			err := cfg.Validate()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "club_tag")
		})
	})
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When only the club tag is set", func() {
			setEnv(map[string]string{"CLUBWATCH_CLUB_TAG": "#2PP"})
			cfg, err := config.Load(ctx)

			convey.Convey("Then defaults fill the rest", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.ClubTag, convey.ShouldEqual, "#2PP")
				convey.So(cfg.StatsPollSeconds, convey.ShouldEqual, 600)
			})
		})

		convey.Convey("When environment variables override defaults", func() {
			setEnv(map[string]string{
				"CLUBWATCH_CLUB_TAG":             "#2PP",
				"CLUBWATCH_ADDR":                 ":8080",
				"CLUBWATCH_STATS_POLL_SECONDS":   "300",
				"CLUBWATCH_MILESTONE_THRESHOLDS": "100,250,500",
				"CLUBWATCH_API_RATE_PER_SEC":     "2.5",
			})
			cfg, err := config.Load(ctx)

			convey.Convey("Then the env values win", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.StatsInterval(), convey.ShouldEqual, 5*time.Minute)
				convey.So(cfg.MilestoneThresholds, convey.ShouldResemble, []int{100, 250, 500})
				convey.So(cfg.APIRatePerSec, convey.ShouldEqual, 2.5)
			})
		})

		convey.Convey("When a single threshold is set by env", func() {
			setEnv(map[string]string{
				"CLUBWATCH_CLUB_TAG":             "#2PP",
				"CLUBWATCH_MILESTONE_THRESHOLDS": "750",
			})
			cfg, err := config.Load(ctx)
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.MilestoneThresholds, convey.ShouldResemble, []int{750})
		})

		convey.Convey("When a YAML file is provided", func() {
			path := filepath.Join(t.TempDir(), "clubwatch.yaml")
			yaml := "club_tag: \"#YAML\"\nstate_backend: sqlite\nstate_path: /tmp/clubwatch.db\nmilestone_thresholds: [1000, 2000]\nroster_poll_seconds: 60\n"
			convey.So(os.WriteFile(path, []byte(yaml), 0o600), convey.ShouldBeNil)
			setEnv(map[string]string{"CLUBWATCH_CONFIG": path})

			cfg, err := config.Load(ctx)

			convey.Convey("Then file values are applied", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.ClubTag, convey.ShouldEqual, "#YAML")
				convey.So(cfg.StateBackend, convey.ShouldEqual, config.BackendSQLite)
				convey.So(cfg.MilestoneThresholds, convey.ShouldResemble, []int{1000, 2000})
				convey.So(cfg.RosterPollSeconds, convey.ShouldEqual, 60)
			})

			convey.Convey("And env still overrides the file", func() {
				setEnv(map[string]string{"CLUBWATCH_CLUB_TAG": "#ENV"})
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.ClubTag, convey.ShouldEqual, "#ENV")
			})
		})

		convey.Convey("When the config file does not exist", func() {
			setEnv(map[string]string{"CLUBWATCH_CONFIG": filepath.Join(t.TempDir(), "missing.yaml")})
			_, err := config.Load(ctx)
			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When a numeric value is malformed", func() {
			setEnv(map[string]string{"CLUBWATCH_CLUB_TAG": "#2PP", "CLUBWATCH_STATS_POLL_SECONDS": "soon"})
			_, err := config.Load(ctx)
			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When validation fails", func() {
			cases := []map[string]string{
				{"CLUBWATCH_CLUB_TAG": "#2PP", "CLUBWATCH_ROSTER_POLL_SECONDS": "0"},
				{"CLUBWATCH_CLUB_TAG": "#2PP", "CLUBWATCH_STATE_BACKEND": "redis"},
				{"CLUBWATCH_CLUB_TAG": "#2PP", "CLUBWATCH_STATE_BACKEND": "postgres"},
			}
			for _, c := range cases {
				clearConfigEnvVars()
				setEnv(c)
				_, err := config.Load(ctx)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			}
		})

		convey.Convey("When postgres has a dsn", func() {
			setEnv(map[string]string{
				"CLUBWATCH_CLUB_TAG":      "#2PP",
				"CLUBWATCH_STATE_BACKEND": "postgres",
				"CLUBWATCH_STATE_DSN":     "postgres://localhost/clubwatch",
			})
			cfg, err := config.Load(ctx)
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.StateDSN, convey.ShouldEqual, "postgres://localhost/clubwatch")
		})
	})
}
