package repository

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithDefaultRating sets the rating a player starts with.
func WithDefaultRating(r int) Option {
	return func(s *MemoryStore) {
		if r >= 0 {
			s.defaultRating = r
		}
	}
}

// WithHistoryLimit caps the rating history kept per player and mode.
// Zero keeps everything.
func WithHistoryLimit(n int) Option {
	return func(s *MemoryStore) {
		if n >= 0 {
			s.historyLimit = n
		}
	}
}
