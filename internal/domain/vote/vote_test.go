package vote_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/okian/matchd/internal/domain/model"
	"github.com/okian/matchd/internal/domain/vote"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSession(t *testing.T) {
	Convey("Given a vote with quorum 2", t, func() {
		s := vote.New(2)

		Convey("The first vote does not decide", func() {
			r, err := s.Cast("A", model.Team1)
			So(err, ShouldBeNil)
			So(r.Decided, ShouldBeFalse)
			So(r.Team1Votes, ShouldEqual, 1)
			So(s.Winner(), ShouldEqual, model.NoTeam)

			Convey("The second vote for the same team decides", func() {
				r, err := s.Cast("B", model.Team1)
				So(err, ShouldBeNil)
				So(r.Decided, ShouldBeTrue)
				So(r.Winner, ShouldEqual, model.Team1)

				Convey("Later votes are accepted with no effect", func() {
					_, _ = s.Cast("C", model.Team2)
					r, err := s.Cast("D", model.Team2)
					So(err, ShouldBeNil)
					So(r.Decided, ShouldBeFalse)
					So(r.Team2Votes, ShouldEqual, 2)
					So(s.Winner(), ShouldEqual, model.Team1)
				})

				Convey("Retracting the deciding vote reopens the session", func() {
					r := s.Retract("B")
					So(r.Team1Votes, ShouldEqual, 1)
					So(r.Winner, ShouldEqual, model.NoTeam)
					So(s.Winner(), ShouldEqual, model.NoTeam)

					r, err := s.Cast("B", model.Team1)
					So(err, ShouldBeNil)
					So(r.Decided, ShouldBeTrue)
					So(r.Winner, ShouldEqual, model.Team1)
				})
			})

			Convey("Retracting an absent voter changes nothing", func() {
				r := s.Retract("nobody")
				So(r.Team1Votes, ShouldEqual, 1)
				So(r.Team2Votes, ShouldEqual, 0)
			})

			Convey("A repeat voter is rejected for either team", func() {
				_, err := s.Cast("A", model.Team1)
				So(err, ShouldEqual, model.ErrAlreadyVoted)
				r, err := s.Cast("A", model.Team2)
				So(err, ShouldEqual, model.ErrAlreadyVoted)
				So(r.Team1Votes, ShouldEqual, 1)
				So(r.Team2Votes, ShouldEqual, 0)
			})
		})

		Convey("An invalid team is rejected", func() {
			_, err := s.Cast("A", model.NoTeam)
			So(err, ShouldEqual, model.ErrInvalidTeam)
			_, err = s.Cast("A", model.Team(3))
			So(err, ShouldEqual, model.ErrInvalidTeam)
			So(s.Result().Team1Votes+s.Result().Team2Votes, ShouldEqual, 0)
		})

		Convey("Non-participants may vote", func() {
			_, err := s.Cast("spectator", model.Team2)
			So(err, ShouldBeNil)
		})
	})
}

func TestSessionConcurrentCast(t *testing.T) {
	Convey("Exactly one concurrent vote decides the match", t, func() {
		s := vote.New(6)
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			decided int
		)
		for i := 0; i < 40; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				team := model.Team1
				if i%2 == 1 {
					team = model.Team2
				}
				r, err := s.Cast(model.PlayerID(fmt.Sprintf("v%d", i)), team)
				if err == nil && r.Decided {
					mu.Lock()
					decided++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()
		So(decided, ShouldEqual, 1)
		So(s.Winner().Valid(), ShouldBeTrue)
	})
}
