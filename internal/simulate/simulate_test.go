package simulate_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/matchd/internal/adapters/http/api"
	repository "github.com/okian/matchd/internal/adapters/repository"
	service "github.com/okian/matchd/internal/app"
	"github.com/okian/matchd/internal/simulate"
	"github.com/okian/matchd/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc, err := service.New(repository.NewMemoryStore(), service.WithTeardown(time.Minute, time.Minute))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(svc.Close)

	mux := http.NewServeMux()
	api.NewServer(svc).Register(context.Background(), mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRun(t *testing.T) {
	_ = logger.Init()

	convey.Convey("Given a running service", t, func() {
		srv := newServer(t)
		ctx := context.Background()

		convey.Convey("When a two-versus-two simulation runs", func() {
			cfg := &simulate.Config{BaseURL: srv.URL, Mode: "rl2v2", Players: 10, Rounds: 3, Workers: 4, Seed: 7}
			stats, err := simulate.Run(ctx, cfg)

			convey.Convey("Then every full roster plays to completion", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(stats.Joins, convey.ShouldEqual, 30)
				// Ten players fill two rosters of four per round.
				convey.So(stats.MatchesFormed, convey.ShouldEqual, 6)
				convey.So(stats.MatchesCompleted, convey.ShouldEqual, 6)
				convey.So(stats.Confirmations, convey.ShouldEqual, 24)
				convey.So(stats.Failures, convey.ShouldEqual, 0)
				convey.So(stats.LeaderboardRows, convey.ShouldBeGreaterThan, 0)
			})
		})

		convey.Convey("When the mode is not served", func() {
			_, err := simulate.Run(ctx, &simulate.Config{BaseURL: srv.URL, Mode: "chess", Players: 4})

			convey.Convey("Then the run fails before queueing anyone", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "chess")
			})
		})

		convey.Convey("When the population cannot fill a roster", func() {
			_, err := simulate.Run(ctx, &simulate.Config{BaseURL: srv.URL, Mode: "r6", Players: 4})

			convey.Convey("Then the run is rejected", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestStatusError(t *testing.T) {
	err := &simulate.StatusError{Method: "POST", Path: "/queues/r6/join", Code: 409, Body: `{"code":"conflict"}`}
	if got := err.Error(); got != `POST /queues/r6/join: status 409: {"code":"conflict"}` {
		t.Errorf("unexpected message %q", got)
	}
}
