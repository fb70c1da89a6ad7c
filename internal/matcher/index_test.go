package matcher

import (
	"testing"

	"github.com/kozaktomas/cantine/internal/face"
	"github.com/kozaktomas/cantine/internal/registry"
)

func clusterStudents() []registry.Student {
	return []registry.Student{
		student("A", 0, 0, 0, 0),
		student("B", 1, 1, 1, 1),
		student("none"),
		student("C", 0, 1, 0, 1),
		student("odd", 1, 1),
	}
}

func TestHNSWIndexAgreesWithLinear(t *testing.T) {
	students := clusterStudents()
	linear := NewLinearIndex(students)
	hnswIdx := NewHNSWIndex(students, 4, 8)

	if hnswIdx.Len() != 3 {
		t.Fatalf("expected 3 indexed descriptors, got %d", hnswIdx.Len())
	}

	queries := []face.Descriptor{
		{0.05, 0, 0, 0},
		{0.9, 1, 1, 0.95},
		{0, 0.9, 0.1, 1},
		{0.5, 0.5, 0.5, 0.5},
	}
	for _, q := range queries {
		want, _ := linear.Nearest(q, 0.6)
		got, _ := hnswIdx.Nearest(q, 0.6)
		if (want == nil) != (got == nil) {
			t.Fatalf("query %v: linear=%+v hnsw=%+v", q, want, got)
		}
		if want != nil && want.Student.StudentID != got.Student.StudentID {
			t.Errorf("query %v: linear chose %s, hnsw chose %s", q, want.Student.StudentID, got.Student.StudentID)
		}
	}
}

func TestHNSWIndexExactDistance(t *testing.T) {
	idx := NewHNSWIndex(clusterStudents(), 4, 8)
	m, _ := idx.Nearest(face.Descriptor{0.3, 0.4, 0, 0}, 0.6)
	if m == nil || m.Student.StudentID != "A" {
		t.Fatalf("expected A, got %+v", m)
	}
	if m.Distance < 0.5-1e-9 || m.Distance > 0.5+1e-9 {
		t.Errorf("expected exact distance 0.5, got %v", m.Distance)
	}
}

func TestHNSWIndexEmptyAndMismatchedQuery(t *testing.T) {
	empty := NewHNSWIndex([]registry.Student{student("none")}, 4, 8)
	if m, _ := empty.Nearest(face.Descriptor{0, 0, 0, 0}, 1); m != nil {
		t.Errorf("expected no match from empty index, got %+v", m)
	}

	idx := NewHNSWIndex(clusterStudents(), 4, 8)
	m, _ := idx.Nearest(face.Descriptor{1, 1}, 0.1)
	if m == nil || m.Student.StudentID != "odd" {
		t.Errorf("expected fallback scan to find odd, got %+v", m)
	}
}

func TestParseIndexKind(t *testing.T) {
	if k, err := ParseIndexKind(""); err != nil || k != IndexLinear {
		t.Errorf("ParseIndexKind(\"\") = %q, %v", k, err)
	}
	if k, err := ParseIndexKind("hnsw"); err != nil || k != IndexHNSW {
		t.Errorf("ParseIndexKind(hnsw) = %q, %v", k, err)
	}
	if _, err := ParseIndexKind("kd-tree"); err == nil {
		t.Error("expected error for unknown index")
	}
}
