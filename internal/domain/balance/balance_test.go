package balance_test

import (
	"testing"

	"github.com/okian/matchd/internal/domain/balance"
	"github.com/okian/matchd/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func rated(pairs ...any) []balance.Rated {
	out := make([]balance.Rated, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, balance.Rated{Player: model.PlayerID(pairs[i].(string)), Rating: pairs[i+1].(int)})
	}
	return out
}

func sumOf(team []model.PlayerID, in []balance.Rated) int {
	byID := make(map[model.PlayerID]int, len(in))
	for _, r := range in {
		byID[r.Player] = r.Rating
	}
	total := 0
	for _, p := range team {
		total += byID[p]
	}
	return total
}

func TestBalance(t *testing.T) {
	Convey("Given the greedy balancer", t, func() {
		Convey("A 1v1 roster is a direct split", func() {
			t1, t2, err := balance.Balance(rated("A", 500, "B", 900))
			So(err, ShouldBeNil)
			So(t1, ShouldResemble, []model.PlayerID{"A"})
			So(t2, ShouldResemble, []model.PlayerID{"B"})
		})

		Convey("An odd roster is rejected", func() {
			_, _, err := balance.Balance(rated("A", 1, "B", 2, "C", 3))
			So(err, ShouldEqual, model.ErrOddRoster)
		})

		Convey("Ratings are assigned highest first to the lighter team", func() {
			in := rated("A", 400, "B", 700, "C", 600, "D", 500)
			t1, t2, err := balance.Balance(in)
			So(err, ShouldBeNil)
			// 700->1, 600->2, 500->2, 400->1
			So(t1, ShouldResemble, []model.PlayerID{"B", "A"})
			So(t2, ShouldResemble, []model.PlayerID{"C", "D"})
			So(sumOf(t1, in), ShouldEqual, sumOf(t2, in))
		})

		Convey("Ties go to team 1 and keep input order", func() {
			t1, t2, err := balance.Balance(rated("A", 500, "B", 500, "C", 500, "D", 500))
			So(err, ShouldBeNil)
			So(t1, ShouldResemble, []model.PlayerID{"A", "C"})
			So(t2, ShouldResemble, []model.PlayerID{"B", "D"})
		})

		Convey("A 5v5 roster stays within the largest rating", func() {
			in := rated(
				"p1", 1200, "p2", 950, "p3", 820, "p4", 780, "p5", 640,
				"p6", 610, "p7", 500, "p8", 480, "p9", 300, "p10", 0,
			)
			t1, t2, err := balance.Balance(in)
			So(err, ShouldBeNil)
			So(t1, ShouldHaveLength, 5)
			So(t2, ShouldHaveLength, 5)
			diff := sumOf(t1, in) - sumOf(t2, in)
			if diff < 0 {
				diff = -diff
			}
			So(diff, ShouldBeLessThanOrEqualTo, 1200)
			So(sumOf(t1, in)+sumOf(t2, in), ShouldEqual, balance.Sum(in))
		})

		Convey("The input slice is not reordered", func() {
			in := rated("A", 1, "B", 9, "C", 5, "D", 7)
			_, _, err := balance.Balance(in)
			So(err, ShouldBeNil)
			So(in[0].Player, ShouldEqual, model.PlayerID("A"))
			So(in[1].Player, ShouldEqual, model.PlayerID("B"))
		})
	})
}
