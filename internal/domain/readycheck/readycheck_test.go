package readycheck_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/okian/matchd/internal/domain/model"
	"github.com/okian/matchd/internal/domain/pool"
	"github.com/okian/matchd/internal/domain/readycheck"
	"github.com/okian/matchd/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type penaltyLog struct {
	mu      sync.Mutex
	ratings map[model.PlayerID]int
	reasons []string
}

func (p *penaltyLog) ApplyDelta(_ context.Context, player model.PlayerID, mode model.Mode, delta int, reason string) (model.RatingChange, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ratings == nil {
		p.ratings = make(map[model.PlayerID]int)
	}
	old, ok := p.ratings[player]
	if !ok {
		old = model.DefaultRating
	}
	updated := max(0, old+delta)
	p.ratings[player] = updated
	p.reasons = append(p.reasons, reason)
	return model.RatingChange{Player: player, Mode: mode, OldRating: old, NewRating: updated, Reason: reason}, nil
}

type recorder struct {
	subs      []readycheck.Substitution
	armed     []bool
	next      []*readycheck.Session
	cancelled [][]model.PlayerID
	causes    []error
}

func (r *recorder) hooks() readycheck.Hooks {
	return readycheck.Hooks{
		OnSubstituted: func(_, next *readycheck.Session, sub readycheck.Substitution) {
			r.armed = append(r.armed, next.Progress().Remaining > 0)
			r.next = append(r.next, next)
			r.subs = append(r.subs, sub)
		},
		OnCancelled: func(_ *readycheck.Session, unready []model.PlayerID, _ []model.RatingChange, cause error) {
			r.cancelled = append(r.cancelled, unready)
			r.causes = append(r.causes, cause)
		},
	}
}

func TestSession(t *testing.T) {
	Convey("Given a ready check for A, B, C, D", t, func() {
		start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		sch := readycheck.NewManualScheduler(start)
		subs := pool.New("rl2v2")
		pen := &penaltyLog{}
		rec := &recorder{}
		s := readycheck.New("m-1", "rl2v2", []model.PlayerID{"A", "B", "C", "D"}, subs,
			readycheck.WithScheduler(sch),
			readycheck.WithClock(sch.Now),
			readycheck.WithPenalty(readycheck.DefaultPenalty, pen),
			readycheck.WithHooks(rec.hooks()),
		)
		s.Start()
		So(sch.Pending(), ShouldEqual, 1)

		Convey("Confirm reports progress and remaining time", func() {
			sch.Advance(40 * time.Second)
			p, err := s.Confirm("A")
			So(err, ShouldBeNil)
			So(p.Confirmed, ShouldEqual, 1)
			So(p.Expected, ShouldEqual, 4)
			So(p.Remaining, ShouldEqual, 200*time.Second)
			So(p.AllReady(), ShouldBeFalse)
		})

		Convey("Confirm rejects strangers and repeats without changing state", func() {
			_, err := s.Confirm("Z")
			So(err, ShouldEqual, model.ErrNotInMatch)
			_, _ = s.Confirm("A")
			p, err := s.Confirm("A")
			So(err, ShouldEqual, model.ErrAlreadyConfirmed)
			So(p.Confirmed, ShouldEqual, 1)
		})

		Convey("When everyone confirms before the deadline", func() {
			for _, id := range []model.PlayerID{"A", "B", "C"} {
				_, err := s.Confirm(id)
				So(err, ShouldBeNil)
			}
			p, err := s.Confirm("D")
			So(err, ShouldBeNil)

			Convey("Then the session starts the match and the timer is stopped", func() {
				So(p.AllReady(), ShouldBeTrue)
				So(s.State(), ShouldEqual, readycheck.MatchStarting)
				So(sch.Pending(), ShouldEqual, 0)
			})

			Convey("Then the deadline never fires", func() {
				sch.Advance(readycheck.DefaultDeadline)
				So(rec.cancelled, ShouldBeEmpty)
				So(rec.subs, ShouldBeEmpty)
				So(pen.reasons, ShouldBeEmpty)
			})
		})

		Convey("When C and D miss the deadline and E, F are queued", func() {
			_, _ = subs.Admit("E", 4)
			_, _ = subs.Admit("F", 4)
			_, _ = s.Confirm("A")
			_, _ = s.Confirm("B")
			sch.Advance(readycheck.DefaultDeadline)

			Convey("Then C and D are replaced by E and F and penalized", func() {
				So(s.State(), ShouldEqual, readycheck.Substituting)
				So(rec.subs, ShouldHaveLength, 1)
				So(rec.subs[0].Replaced, ShouldResemble, []model.PlayerID{"C", "D"})
				So(rec.subs[0].Substitutes, ShouldResemble, []model.PlayerID{"E", "F"})
				So(pen.ratings["C"], ShouldEqual, 420)
				So(pen.ratings["D"], ShouldEqual, 420)
				So(pen.reasons, ShouldResemble, []string{model.ReasonNoShow, model.ReasonNoShow})
				So(subs.Len(), ShouldEqual, 0)
			})

			Convey("Then a fresh session expects A, B, E, F with nobody confirmed", func() {
				next := rec.next[0]
				So(next.Expected(), ShouldResemble, []model.PlayerID{"A", "B", "E", "F"})
				So(next.IsConfirmed("A"), ShouldBeFalse)
				p := next.Progress()
				So(p.Confirmed, ShouldEqual, 0)
				So(p.Remaining, ShouldEqual, readycheck.DefaultDeadline)
			})

			Convey("Then the next deadline is armed only after the hook adopts the session", func() {
				So(rec.armed, ShouldResemble, []bool{false})
				So(sch.Pending(), ShouldEqual, 1)

				sch.Advance(readycheck.DefaultDeadline - time.Second)
				p, err := rec.next[0].Confirm("E")
				So(err, ShouldBeNil)
				So(p.Remaining, ShouldEqual, time.Second)
			})

			Convey("Then the expired session rejects late confirms", func() {
				_, err := s.Confirm("C")
				So(err, ShouldEqual, model.ErrSessionClosed)
			})
		})

		Convey("When players miss the deadline with too few substitutes", func() {
			_, _ = subs.Admit("E", 4)
			_, _ = s.Confirm("A")
			sch.Advance(readycheck.DefaultDeadline)

			Convey("Then the match is cancelled and the unready are still penalized", func() {
				So(s.State(), ShouldEqual, readycheck.Cancelled)
				So(rec.cancelled, ShouldResemble, [][]model.PlayerID{{"B", "C", "D"}})
				So(rec.causes[0], ShouldEqual, model.ErrInsufficientSubstitutes)
				So(pen.ratings["B"], ShouldEqual, 420)
				So(pen.ratings, ShouldNotContainKey, model.PlayerID("A"))
				So(subs.Snapshot(), ShouldResemble, []model.PlayerID{"E"})
			})
		})

		Convey("Close cancels quietly", func() {
			s.Close()
			So(s.State(), ShouldEqual, readycheck.Cancelled)
			So(sch.Pending(), ShouldEqual, 0)
			So(pen.reasons, ShouldBeEmpty)
		})
	})
}
