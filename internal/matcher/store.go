package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kozaktomas/cantine/internal/registry"
)

// Snapshot is an immutable view of the registry with a search index built over it.
type Snapshot struct {
	Students []registry.Student
	Index    Index
	BuiltAt  time.Time
	Revision uint64
}

// StoreOptions configures snapshot caching and indexing.
type StoreOptions struct {
	TTL        time.Duration // zero reloads on every call
	Kind       IndexKind
	Dims       int // expected descriptor length, used by the HNSW index
	Candidates int
	Logger     *slog.Logger
	Now        func() time.Time
}

// Store caches registry snapshots between lookups so a camera tick does not
// re-read the backend every time.
type Store struct {
	reader registry.Reader
	opts   StoreOptions

	mu       sync.Mutex
	snapshot *Snapshot
}

// NewStore creates a snapshot cache over reader.
func NewStore(reader registry.Reader, opts StoreOptions) *Store {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Kind == "" {
		opts.Kind = IndexLinear
	}
	return &Store{reader: reader, opts: opts}
}

// Snapshot returns the cached snapshot, rebuilding it once the TTL elapsed or
// after Invalidate.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Now()
	rev, versioned := s.revision()
	if s.snapshot != nil && s.opts.TTL > 0 && now.Sub(s.snapshot.BuiltAt) < s.opts.TTL &&
		(!versioned || rev == s.snapshot.Revision) {
		return s.snapshot, nil
	}

	students, err := s.reader.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}

	snap := &Snapshot{Students: students, BuiltAt: now, Revision: rev}
	switch s.opts.Kind {
	case IndexHNSW:
		idx := NewHNSWIndex(students, s.opts.Dims, s.opts.Candidates)
		if idx.skipped > 0 {
			s.opts.Logger.Warn("skipping descriptors of unexpected length",
				"count", idx.skipped, "expected", s.opts.Dims)
		}
		snap.Index = idx
	default:
		snap.Index = NewLinearIndex(students)
	}

	s.opts.Logger.Debug("registry snapshot built",
		"students", len(students), "index", string(s.opts.Kind), "indexed", snap.Index.Len())
	s.snapshot = snap
	return snap, nil
}

func (s *Store) revision() (uint64, bool) {
	v, ok := s.reader.(registry.Versioned)
	if !ok {
		return 0, false
	}
	return v.Revision(), true
}

// Invalidate drops the cached snapshot.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.snapshot = nil
	s.mu.Unlock()
}
