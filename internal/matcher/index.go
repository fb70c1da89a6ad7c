package matcher

import (
	"fmt"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/cantine/internal/constants"
	"github.com/kozaktomas/cantine/internal/face"
	"github.com/kozaktomas/cantine/internal/registry"
)

// IndexKind selects the nearest-neighbour search structure.
type IndexKind string

const (
	// IndexLinear scans every enrolled student with exact distances.
	IndexLinear IndexKind = "linear"
	// IndexHNSW narrows candidates with an HNSW graph, then re-checks them exactly.
	IndexHNSW IndexKind = "hnsw"
)

// ParseIndexKind validates an index name. Empty means linear.
func ParseIndexKind(s string) (IndexKind, error) {
	switch IndexKind(s) {
	case "", IndexLinear:
		return IndexLinear, nil
	case IndexHNSW:
		return IndexHNSW, nil
	default:
		return "", fmt.Errorf("unknown match index %q", s)
	}
}

// Index finds the nearest enrolled student within tolerance.
type Index interface {
	Nearest(query face.Descriptor, tolerance float64) (*Match, Stats)
	Len() int
}

// LinearIndex is an exact scan over a student snapshot.
type LinearIndex struct {
	students []registry.Student
}

// NewLinearIndex wraps students without copying them.
func NewLinearIndex(students []registry.Student) *LinearIndex {
	return &LinearIndex{students: students}
}

// Nearest implements Index.
func (l *LinearIndex) Nearest(query face.Descriptor, tolerance float64) (*Match, Stats) {
	return MatchNearest(l.students, query, tolerance)
}

// Len returns the number of students scanned.
func (l *LinearIndex) Len() int {
	return len(l.students)
}

// HNSWIndex wraps an HNSW graph keyed by snapshot position.
type HNSWIndex struct {
	graph      *hnsw.Graph[int]
	students   []registry.Student
	dims       int
	candidates int
	skipped    int
}

// NewHNSWIndex indexes every enrolled student whose descriptor has dims values.
func NewHNSWIndex(students []registry.Student, dims, candidates int) *HNSWIndex {
	if candidates <= 0 {
		candidates = constants.DefaultHNSWCandidates
	}
	idx := &HNSWIndex{students: students, dims: dims, candidates: candidates}

	var nodes []hnsw.Node[int]
	for i := range students {
		if !students[i].Enrolled() {
			continue
		}
		if len(students[i].FaceEncoding) != dims {
			idx.skipped++
			continue
		}
		nodes = append(nodes, hnsw.MakeNode(i, students[i].FaceEncoding.Float32()))
	}
	if len(nodes) == 0 {
		return idx
	}

	g := hnsw.NewGraph[int]()
	g.M = constants.HNSWMaxNeighbors
	g.Ml = 1.0 / float64(constants.HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = constants.HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance
	g.Add(nodes...)
	idx.graph = g
	return idx
}

// Nearest re-ranks the approximate candidates with exact distances. Queries of
// an unexpected length fall back to an exact scan.
func (h *HNSWIndex) Nearest(query face.Descriptor, tolerance float64) (*Match, Stats) {
	if len(query) != h.dims {
		return MatchNearest(h.students, query, tolerance)
	}
	stats := Stats{Mismatched: h.skipped}
	if h.graph == nil {
		return nil, stats
	}

	best := -1
	bestDist := 0.0
	for _, node := range h.graph.Search(query.Float32(), h.candidates) {
		d, err := Distance(h.students[node.Key].FaceEncoding, query)
		if err != nil {
			continue
		}
		stats.Compared++
		if d >= tolerance {
			continue
		}
		if best < 0 || d < bestDist || (d == bestDist && node.Key < best) {
			best, bestDist = node.Key, d
		}
	}
	if best < 0 {
		return nil, stats
	}
	return &Match{Student: h.students[best], Distance: bestDist}, stats
}

// Len returns the number of indexed descriptors.
func (h *HNSWIndex) Len() int {
	if h.graph == nil {
		return 0
	}
	return h.graph.Len()
}
