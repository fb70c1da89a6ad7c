package matcher

import (
	"fmt"

	"github.com/kozaktomas/cantine/internal/face"
	"github.com/kozaktomas/cantine/internal/registry"
)

// Strategy selects how a match is chosen among students within tolerance.
type Strategy string

const (
	// StrategyNearest returns the student with the smallest distance.
	StrategyNearest Strategy = "nearest"
	// StrategyFirst returns the first student in registry order within tolerance.
	StrategyFirst Strategy = "first"
)

// ParseStrategy validates a strategy name. Empty means nearest.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyNearest:
		return StrategyNearest, nil
	case StrategyFirst:
		return StrategyFirst, nil
	default:
		return "", fmt.Errorf("unknown match strategy %q", s)
	}
}

// Match is a recognized student with the distance that matched.
type Match struct {
	Student  registry.Student `json:"student"`
	Distance float64          `json:"distance"`
}

// Stats counts what a registry scan skipped.
type Stats struct {
	Compared   int // distances computed
	Unenrolled int // records without a descriptor
	Mismatched int // records whose descriptor length differs from the query
}

// MatchFirst walks students in order and returns the first enrolled one strictly
// within tolerance of query. Unenrolled and mismatched records are skipped.
func MatchFirst(students []registry.Student, query face.Descriptor, tolerance float64) (*Match, Stats) {
	var stats Stats
	for i := range students {
		d, ok := distanceTo(&students[i], query, &stats)
		if ok && d < tolerance {
			return &Match{Student: students[i], Distance: d}, stats
		}
	}
	return nil, stats
}

// MatchNearest returns the enrolled student with the smallest distance strictly
// within tolerance. Ties go to the earlier record.
func MatchNearest(students []registry.Student, query face.Descriptor, tolerance float64) (*Match, Stats) {
	var stats Stats
	best := -1
	bestDist := 0.0
	for i := range students {
		d, ok := distanceTo(&students[i], query, &stats)
		if !ok || d >= tolerance {
			continue
		}
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return nil, stats
	}
	return &Match{Student: students[best], Distance: bestDist}, stats
}

func distanceTo(s *registry.Student, query face.Descriptor, stats *Stats) (float64, bool) {
	if !s.Enrolled() {
		stats.Unenrolled++
		return 0, false
	}
	d, err := Distance(s.FaceEncoding, query)
	if err != nil {
		stats.Mismatched++
		return 0, false
	}
	stats.Compared++
	return d, true
}
