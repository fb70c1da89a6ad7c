// Package matcher compares face descriptors and finds the registered student
// behind a live descriptor.
package matcher

import (
	"errors"
	"fmt"

	"github.com/kozaktomas/cantine/internal/face"
	"gonum.org/v1/gonum/floats"
)

// ErrDescriptorLengthMismatch is returned when two descriptors of different length are compared.
var ErrDescriptorLengthMismatch = errors.New("descriptor length mismatch")

// Distance returns the Euclidean distance between a and b.
func Distance(a, b face.Descriptor) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDescriptorLengthMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, nil
	}
	return floats.Distance(a, b, 2), nil
}

// CompareAll reports, for every known descriptor, whether it lies strictly within
// tolerance of query. Any length mismatch fails the whole call.
func CompareAll(known []face.Descriptor, query face.Descriptor, tolerance float64) ([]bool, error) {
	out := make([]bool, len(known))
	for i, k := range known {
		d, err := Distance(k, query)
		if err != nil {
			return nil, fmt.Errorf("known descriptor %d: %w", i, err)
		}
		out[i] = d < tolerance
	}
	return out, nil
}
