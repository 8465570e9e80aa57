package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/matchd/internal/config"
	"github.com/okian/matchd/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestBuild(t *testing.T) {
	_ = logger.Init()

	convey.Convey("Given the default configuration", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)

		convey.Convey("When the memory-backed daemon is built", func() {
			d, err := build(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			defer func() { _ = d.Close(ctx) }()

			srv := httptest.NewServer(d.handler)
			defer srv.Close()

			convey.Convey("Then the API, metrics and docs routes are served", func() {
				for _, path := range []string{"/healthz", "/metrics", "/modes", "/openapi.yaml", "/leaderboard/r6"} {
					resp, err := http.Get(srv.URL + path)
					convey.So(err, convey.ShouldBeNil)
					_ = resp.Body.Close()
					convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
				}
			})

			convey.Convey("Then joining a one-versus-one queue forms a match", func() {
				join := func(player string) int {
					body, _ := json.Marshal(map[string]string{"player_id": player})
					resp, err := http.Post(srv.URL+"/queues/rl1v1/join", "application/json", bytes.NewReader(body))
					convey.So(err, convey.ShouldBeNil)
					_ = resp.Body.Close()
					return resp.StatusCode
				}
				convey.So(join("alice"), convey.ShouldEqual, http.StatusOK)
				convey.So(join("bob"), convey.ShouldEqual, http.StatusCreated)

				stats := d.svc.Stats(ctx)
				convey.So(stats["active_matches"], convey.ShouldEqual, 1)
			})

			convey.Convey("Then the metrics refreshers run without panicking", func() {
				convey.So(updateSystemMetrics, convey.ShouldNotPanic)
				convey.So(func() { updateServiceMetrics(ctx, d) }, convey.ShouldNotPanic)

				short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
				defer cancel()
				convey.So(func() { startServiceMetricsUpdater(short, d) }, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When the sqlite driver is selected", func() {
			cfg.StoreDriver = config.DriverSQLite
			cfg.SQLitePath = filepath.Join(t.TempDir(), "matchd.db")

			d, err := build(ctx, cfg)

			convey.Convey("Then the store opens and closes cleanly", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(d.closers, convey.ShouldHaveLength, 1)
				convey.So(d.Close(ctx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When Redis is unreachable", func() {
			cfg.RedisAddr = "127.0.0.1:1"

			d, err := build(ctx, cfg)

			convey.Convey("Then build fails without leaking a daemon", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(d, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the mode configuration is invalid", func() {
			cfg.Modes = map[string]config.ModeSpec{"odd": {RosterSize: 3}}

			_, err := build(ctx, cfg)

			convey.Convey("Then the service refuses to start", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}
