package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/matchd/internal/adapters/mq/queue"
	worker "github.com/okian/matchd/internal/adapters/mq/worker"
	"github.com/okian/matchd/internal/domain/events"
	logging "github.com/okian/matchd/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type recordingSink struct {
	name string
	fail error

	mu  sync.Mutex
	got []string
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(_ context.Context, e worker.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.got = append(s.got, e.ID)
	return nil
}

func (s *recordingSink) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.got...)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func publish(q *queue.InMemoryQueue, n int) []string {
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		e := events.New(events.VoteProgress, "rl1", "m-1", nil)
		e.ID = fmt.Sprintf("e%03d", i)
		ids[i] = e.ID
		q.Publish(context.Background(), e)
	}
	return ids
}

func TestDispatcher(t *testing.T) {
	convey.Convey("Given a dispatcher with two sinks", t, func() {
		_ = logging.Init()
		q := queue.NewInMemoryQueue(queue.WithCapacity(64))
		a := &recordingSink{name: "a"}
		b := &recordingSink{name: "b"}
		d := worker.NewDispatcher(q, []worker.Sink{a, b}, worker.WithName("test-dispatcher"))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go d.Run(ctx)

		convey.Convey("When events are published", func() {
			want := publish(q, 10)

			convey.Convey("Then every sink sees them in publish order", func() {
				convey.So(waitFor(func() bool { return len(b.ids()) == 10 }), convey.ShouldBeTrue)
				convey.So(a.ids(), convey.ShouldResemble, want)
				convey.So(b.ids(), convey.ShouldResemble, want)
			})
		})

		convey.Convey("When one sink fails", func() {
			a.fail = errors.New("redis down")
			publish(q, 3)

			convey.Convey("Then the other sink still receives everything", func() {
				convey.So(waitFor(func() bool { return len(b.ids()) == 3 }), convey.ShouldBeTrue)
				convey.So(a.ids(), convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When shut down", func() {
			sctx, scancel := context.WithTimeout(context.Background(), time.Second)
			defer scancel()
			convey.So(d.Shutdown(sctx), convey.ShouldBeNil)
			convey.So(d.Shutdown(sctx), convey.ShouldBeNil)
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a single worker pool", t, func() {
		_ = logging.Init()
		q := queue.NewInMemoryQueue(queue.WithCapacity(256))
		sink := &recordingSink{name: "sink"}
		p := worker.NewPool(0, q, []worker.Sink{sink})
		p.Start(context.Background())

		convey.Convey("Then shutdown drains buffered events before returning", func() {
			want := publish(q, 100)
			convey.So(p.Shutdown(context.Background()), convey.ShouldBeNil)
			convey.So(sink.ids(), convey.ShouldResemble, want)
			convey.So(q.IsClosed(), convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given a multi worker pool", t, func() {
		_ = logging.Init()
		q := queue.NewInMemoryQueue(queue.WithCapacity(256))
		sink := &recordingSink{name: "sink"}
		p := worker.NewPool(4, q, []worker.Sink{sink}, worker.WithSinkTimeout(time.Second))
		p.Start(context.Background())

		convey.Convey("Then every event is delivered exactly once", func() {
			publish(q, 200)
			convey.So(p.Shutdown(context.Background()), convey.ShouldBeNil)
			got := sink.ids()
			convey.So(got, convey.ShouldHaveLength, 200)
			seen := make(map[string]bool, len(got))
			for _, id := range got {
				seen[id] = true
			}
			convey.So(seen, convey.ShouldHaveLength, 200)
		})
	})
}
