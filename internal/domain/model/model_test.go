package model_test

import (
	"errors"
	"testing"

	model "github.com/okian/matchd/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestModeConfig(t *testing.T) {
	convey.Convey("Given mode configurations", t, func() {
		convey.Convey("When the quorum is derived from the roster", func() {
			cases := map[int]int{2: 2, 4: 3, 6: 4, 10: 6}
			for roster, want := range cases {
				cfg := model.ModeConfig{Name: "m", RosterSize: roster}
				convey.So(cfg.VoteQuorum(), convey.ShouldEqual, want)
				convey.So(cfg.TeamSize(), convey.ShouldEqual, roster/2)
			}
		})

		convey.Convey("When an explicit quorum is configured", func() {
			cfg := model.ModeConfig{Name: "m", RosterSize: 10, Quorum: 4}
			convey.So(cfg.VoteQuorum(), convey.ShouldEqual, 4)
		})

		convey.Convey("When validating", func() {
			convey.So(model.ModeConfig{Name: "r6", RosterSize: 10}.Validate(), convey.ShouldBeNil)

			for _, bad := range []model.ModeConfig{
				{Name: "", RosterSize: 2},
				{Name: "odd", RosterSize: 5},
				{Name: "tiny", RosterSize: 0},
				{Name: "neg", RosterSize: 2, Quorum: -1},
			} {
				err := bad.Validate()
				convey.So(errors.Is(err, model.ErrInvalidMode), convey.ShouldBeTrue)
			}
		})
	})
}

func TestMatchRecord(t *testing.T) {
	convey.Convey("Given a completed match record", t, func() {
		rec := model.MatchRecord{
			Team1:  []model.PlayerID{"a", "b"},
			Team2:  []model.PlayerID{"c", "d"},
			Winner: model.Team2,
		}

		convey.Convey("Then Won reports the winning side", func() {
			convey.So(rec.Won("c"), convey.ShouldBeTrue)
			convey.So(rec.Won("a"), convey.ShouldBeFalse)
			convey.So(rec.Won("zz"), convey.ShouldBeFalse)
		})
	})
}

func TestRatingChangeAndTeam(t *testing.T) {
	convey.Convey("Given a clamped rating change", t, func() {
		change := model.RatingChange{OldRating: 50, NewRating: 0}

		convey.Convey("Then Delta is the applied difference", func() {
			convey.So(change.Delta(), convey.ShouldEqual, -50)
		})
	})

	convey.Convey("Given team values", t, func() {
		convey.So(model.Team1.Valid(), convey.ShouldBeTrue)
		convey.So(model.Team2.Valid(), convey.ShouldBeTrue)
		convey.So(model.NoTeam.Valid(), convey.ShouldBeFalse)
		convey.So(model.Team(3).Valid(), convey.ShouldBeFalse)
		convey.So(model.Team1.String(), convey.ShouldEqual, "1")
		convey.So(model.NoTeam.String(), convey.ShouldEqual, "none")
	})
}
