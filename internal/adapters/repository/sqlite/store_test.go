package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/matchd/internal/adapters/repository"
	"github.com/okian/matchd/internal/domain/model"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "matchd.db"), model.DefaultRating)
	require.NoError(t, err, "open store")
	t.Cleanup(func() {
		require.NoError(t, store.Close(), "close store")
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "", model.DefaultRating)
	require.Error(t, err)
}

func TestOpenIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "matchd.db")
	first, err := Open(context.Background(), path, model.DefaultRating)
	require.NoError(t, err)
	require.NoError(t, first.SetRating(context.Background(), model.RatingChange{Player: "A", Mode: "r6", OldRating: 500, NewRating: 640, Reason: "seed"}))
	require.NoError(t, first.Close())

	second, err := Open(context.Background(), path, model.DefaultRating)
	require.NoError(t, err, "reopening must skip applied migrations")
	defer second.Close()

	r, err := second.GetRating(context.Background(), "A", "r6")
	require.NoError(t, err)
	assert.Equal(t, 640, r, "rating must survive a restart")
}

func TestGetRatingCreatesDefault(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)
	ctx := context.Background()

	r, err := store.GetRating(ctx, "A", "r6")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultRating, r)
	assert.Equal(t, 1, store.Count(ctx, "r6"))
	assert.Equal(t, 0, store.Count(ctx, "valorant"))

	r, err = store.GetRating(ctx, "A", "r6")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultRating, r)
	assert.Equal(t, 1, store.Count(ctx, "r6"), "second access must not duplicate")
}

func TestSetRatingWritesHistory(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)
	ctx := context.Background()
	at := time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.SetRating(ctx, model.RatingChange{Player: "A", Mode: "rl1", OldRating: 500, NewRating: 513, Reason: model.ReasonMatchResult, At: at}))
	require.NoError(t, store.SetRating(ctx, model.RatingChange{Player: "A", Mode: "rl1", OldRating: 513, NewRating: 433, Reason: model.ReasonNoShow, At: at.Add(time.Minute)}))

	r, err := store.GetRating(ctx, "A", "rl1")
	require.NoError(t, err)
	assert.Equal(t, 433, r)

	h, err := store.History(ctx, "A", "rl1", 10)
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.Equal(t, model.ReasonNoShow, h[0].Reason)
	assert.Equal(t, 513, h[0].OldRating)
	assert.Equal(t, at, h[1].At)

	_, err = store.History(ctx, "A", "rl1", 0)
	assert.ErrorIs(t, err, repository.ErrInvalidLimit)
}

func TestSetRatingRejectsNegative(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)
	ctx := context.Background()

	err := store.SetRating(ctx, model.RatingChange{Player: "A", Mode: "r6", OldRating: 500, NewRating: -5})
	assert.ErrorIs(t, err, model.ErrNegativeRating)

	h, err := store.History(ctx, "A", "r6", 10)
	require.NoError(t, err)
	assert.Empty(t, h)
}

func TestStatsAndRank(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)
	ctx := context.Background()

	for p, r := range map[model.PlayerID]int{"alice": 700, "carol": 620, "dave": 620, "bob": 450} {
		require.NoError(t, store.SetRating(ctx, model.RatingChange{Player: p, Mode: "r6", OldRating: 500, NewRating: r, Reason: "seed"}))
	}
	for i, w := range []model.Team{model.Team1, model.Team2} {
		rec := model.MatchRecord{MatchID: fmt.Sprintf("s%d", i), Mode: "r6", Team1: []model.PlayerID{"dave"}, Team2: []model.PlayerID{"erin"}, Winner: w}
		require.NoError(t, store.SaveResult(ctx, rec, nil))
	}

	st, err := store.Stats(ctx, "dave", "r6")
	require.NoError(t, err)
	assert.Equal(t, model.PlayerStats{Player: "dave", Mode: "r6", Rating: 620, Games: 2, Wins: 1, Losses: 1}, st)

	top, err := store.TopN(ctx, "r6", 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, []string{"alice", "carol", "dave"}, []string{top[0].PlayerID, top[1].PlayerID, top[2].PlayerID})
	assert.Equal(t, []int{1, 2, 2}, []int{top[0].Rank, top[1].Rank, top[2].Rank})

	e, err := store.Rank(ctx, "bob", "r6")
	require.NoError(t, err)
	assert.Equal(t, 5, e.Rank)

	_, err = store.Rank(ctx, "nobody", "r6")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSaveResult(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)
	ctx := context.Background()
	rec := model.MatchRecord{
		MatchID:     "m-1",
		Mode:        "rl2v2",
		QueueNumber: 7,
		Team1:       []model.PlayerID{"A", "D"},
		Team2:       []model.PlayerID{"B", "C"},
		Winner:      model.Team2,
		Deltas:      map[model.PlayerID]int{"A": -12, "D": -13, "B": 13, "C": 12},
		CompletedAt: time.Date(2026, time.March, 4, 11, 0, 0, 0, time.UTC),
	}
	at := rec.CompletedAt
	var changes []model.RatingChange
	for p, d := range rec.Deltas {
		changes = append(changes, model.RatingChange{Player: p, Mode: "rl2v2", OldRating: 500, NewRating: 500 + d, Reason: model.ReasonMatchResult, At: at})
	}
	require.NoError(t, store.SaveResult(ctx, rec, changes))

	got, err := store.Matches(ctx, "rl2v2", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec, got[0])

	st, err := store.Stats(ctx, "B", "rl2v2")
	require.NoError(t, err)
	assert.Equal(t, model.PlayerStats{Player: "B", Mode: "rl2v2", Rating: 513, Games: 1, Wins: 1}, st)
	st, err = store.Stats(ctx, "D", "rl2v2")
	require.NoError(t, err)
	assert.Equal(t, model.PlayerStats{Player: "D", Mode: "rl2v2", Rating: 487, Games: 1, Losses: 1}, st)

	// Saving the same match again fails after the rating writes and rolls
	// every one of them back.
	again := make([]model.RatingChange, len(changes))
	for i, c := range changes {
		c.OldRating, c.NewRating = c.NewRating, c.NewRating+100
		again[i] = c
	}
	assert.ErrorIs(t, store.SaveResult(ctx, rec, again), repository.ErrDuplicate)

	st, err = store.Stats(ctx, "B", "rl2v2")
	require.NoError(t, err)
	assert.Equal(t, 513, st.Rating)
	assert.Equal(t, 1, st.Games)
	h, err := store.History(ctx, "B", "rl2v2", 10)
	require.NoError(t, err)
	assert.Len(t, h, 1)

	bad := rec
	bad.MatchID = "m-2"
	err = store.SaveResult(ctx, bad, []model.RatingChange{{Player: "A", Mode: "rl2v2", OldRating: 488, NewRating: -1}})
	assert.ErrorIs(t, err, model.ErrNegativeRating)
	got, err = store.Matches(ctx, "rl2v2", 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestConcurrentWriters(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := model.PlayerID(fmt.Sprintf("p%02d", i))
			if err := store.SetRating(ctx, model.RatingChange{Player: p, Mode: "r6", OldRating: 500, NewRating: 500 + i, Reason: "seed"}); err != nil {
				errs <- err
				return
			}
			rec := model.MatchRecord{MatchID: string(p), Mode: "r6", Team1: []model.PlayerID{p}, Winner: model.Team1}
			errs <- store.SaveResult(ctx, rec, nil)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 40, store.Count(ctx, "r6"))
}
