package matcher

import (
	"context"
	"log/slog"

	"github.com/kozaktomas/cantine/internal/face"
)

// Matcher resolves a live descriptor to a registered student.
type Matcher struct {
	store    *Store
	strategy Strategy
	logger   *slog.Logger
}

// New creates a Matcher over store.
func New(store *Store, strategy Strategy, logger *slog.Logger) *Matcher {
	if strategy == "" {
		strategy = StrategyNearest
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{store: store, strategy: strategy, logger: logger}
}

// Strategy returns the configured strategy.
func (m *Matcher) Strategy() Strategy {
	return m.strategy
}

// Match returns the recognized student, or nil when nobody is strictly within tolerance.
// An empty registry is not an error.
func (m *Matcher) Match(ctx context.Context, query face.Descriptor, tolerance float64) (*Match, error) {
	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	var (
		match *Match
		stats Stats
	)
	if m.strategy == StrategyFirst {
		match, stats = MatchFirst(snap.Students, query, tolerance)
	} else {
		match, stats = snap.Index.Nearest(query, tolerance)
	}

	if stats.Mismatched > 0 {
		m.logger.Warn("skipped students with incompatible descriptors", "count", stats.Mismatched)
	}
	if match != nil {
		m.logger.Debug("face matched",
			"student_id", match.Student.StudentID, "distance", match.Distance, "compared", stats.Compared)
	} else {
		m.logger.Debug("no match", "compared", stats.Compared, "unenrolled", stats.Unenrolled)
	}
	return match, nil
}

// Invalidate forces the next Match to reload the registry.
func (m *Matcher) Invalidate() {
	m.store.Invalidate()
}
