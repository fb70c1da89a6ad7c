package matcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kozaktomas/cantine/internal/face"
	"github.com/kozaktomas/cantine/internal/registry"
	"github.com/kozaktomas/cantine/internal/registry/mock"
)

type countingReader struct {
	*mock.Registry
	lists int
}

func (c *countingReader) List(ctx context.Context) ([]registry.Student, error) {
	c.lists++
	return c.Registry.List(ctx)
}

func TestStoreCachesUntilTTL(t *testing.T) {
	reader := &countingReader{Registry: mock.NewRegistry(student("A", 0, 0))}
	now := time.Date(2024, 9, 2, 12, 0, 0, 0, time.UTC)
	store := NewStore(reader, StoreOptions{TTL: 5 * time.Second, Now: func() time.Time { return now }})
	ctx := context.Background()

	if _, err := store.Snapshot(ctx); err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	now = now.Add(4 * time.Second)
	store.Snapshot(ctx)
	if reader.lists != 1 {
		t.Errorf("expected cached snapshot, registry listed %d times", reader.lists)
	}

	now = now.Add(2 * time.Second)
	store.Snapshot(ctx)
	if reader.lists != 2 {
		t.Errorf("expected reload after TTL, registry listed %d times", reader.lists)
	}

	store.Invalidate()
	store.Snapshot(ctx)
	if reader.lists != 3 {
		t.Errorf("expected reload after Invalidate, registry listed %d times", reader.lists)
	}
}

func TestStoreZeroTTLAlwaysReloads(t *testing.T) {
	reader := &countingReader{Registry: mock.NewRegistry()}
	store := NewStore(reader, StoreOptions{})
	store.Snapshot(context.Background())
	store.Snapshot(context.Background())
	if reader.lists != 2 {
		t.Errorf("expected 2 loads, got %d", reader.lists)
	}
}

func TestMatcherMatch(t *testing.T) {
	reg := mock.NewRegistry(student("far", 0.5, 0), student("near", 0.1, 0))
	ctx := context.Background()
	query := face.Descriptor{0, 0}

	tests := []struct {
		name     string
		strategy Strategy
		kind     IndexKind
		want     string
	}{
		{name: "nearest linear", strategy: StrategyNearest, kind: IndexLinear, want: "near"},
		{name: "nearest hnsw", strategy: StrategyNearest, kind: IndexHNSW, want: "near"},
		{name: "first", strategy: StrategyFirst, kind: IndexLinear, want: "far"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore(reg, StoreOptions{Kind: tt.kind, Dims: 2})
			m := New(store, tt.strategy, nil)
			got, err := m.Match(ctx, query, 0.6)
			if err != nil {
				t.Fatalf("Match failed: %v", err)
			}
			if got == nil || got.Student.StudentID != tt.want {
				t.Errorf("expected %s, got %+v", tt.want, got)
			}
		})
	}
}

func TestMatcherSeesNewEnrollmentAfterInvalidate(t *testing.T) {
	reg := mock.NewRegistry()
	store := NewStore(reg, StoreOptions{TTL: time.Hour})
	m := New(store, StrategyNearest, nil)
	ctx := context.Background()

	got, err := m.Match(ctx, face.Descriptor{0, 0}, 0.6)
	if err != nil || got != nil {
		t.Fatalf("expected no match on empty registry, got %+v, %v", got, err)
	}

	reg.Upsert(ctx, student("new", 0, 0))
	m.Invalidate()
	got, _ = m.Match(ctx, face.Descriptor{0, 0}, 0.6)
	if got == nil || got.Student.StudentID != "new" {
		t.Errorf("expected new student after invalidate, got %+v", got)
	}
}

func TestMatcherRegistryError(t *testing.T) {
	reg := mock.NewRegistry()
	reg.ListError = errors.New("boom")
	m := New(NewStore(reg, StoreOptions{}), StrategyNearest, nil)
	if _, err := m.Match(context.Background(), face.Descriptor{0}, 1); err == nil {
		t.Error("expected error")
	}
}
