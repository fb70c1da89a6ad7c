package matcher

import (
	"errors"
	"math"
	"testing"

	"github.com/kozaktomas/cantine/internal/face"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     face.Descriptor
		expected float64
	}{
		{name: "identical", a: face.Descriptor{0.1, 0.2, 0.3}, b: face.Descriptor{0.1, 0.2, 0.3}, expected: 0},
		{name: "3-4-5", a: face.Descriptor{0, 0}, b: face.Descriptor{3, 4}, expected: 5},
		{name: "unit axes", a: face.Descriptor{1, 0}, b: face.Descriptor{0, 1}, expected: math.Sqrt2},
		{name: "both empty", a: face.Descriptor{}, b: nil, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Distance(tt.a, tt.b)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("Distance(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestDistanceSymmetric(t *testing.T) {
	a := face.Descriptor{0.9, 0.1, 0.5, 0.3}
	b := face.Descriptor{0.2, 0.4, 0.6, 0.8}
	ab, _ := Distance(a, b)
	ba, _ := Distance(b, a)
	if ab != ba {
		t.Errorf("Distance not symmetric: %v != %v", ab, ba)
	}
}

func TestDistanceMonotonic(t *testing.T) {
	base := face.Descriptor{0, 0, 0}
	prev := -1.0
	for _, step := range []float64{0, 0.1, 0.5, 1, 2} {
		d, err := Distance(base, face.Descriptor{step, step, 0})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d <= prev {
			t.Errorf("distance %v for step %v is not greater than %v", d, step, prev)
		}
		prev = d
	}
}

func TestDistanceLengthMismatch(t *testing.T) {
	_, err := Distance(face.Descriptor{1, 2}, face.Descriptor{1, 2, 3})
	if !errors.Is(err, ErrDescriptorLengthMismatch) {
		t.Errorf("expected ErrDescriptorLengthMismatch, got %v", err)
	}
}

func TestCompareAll(t *testing.T) {
	known := []face.Descriptor{
		{0, 0},
		{0.3, 0.4}, // distance 0.5
		{0.6, 0.8}, // distance 1.0
	}
	query := face.Descriptor{0, 0}

	t.Run("strict tolerance", func(t *testing.T) {
		got, err := CompareAll(known, query, 0.5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []bool{true, false, false}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("result[%d] = %v, want %v", i, got[i], want[i])
			}
		}
	})

	t.Run("empty known", func(t *testing.T) {
		got, err := CompareAll(nil, query, 0.6)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected empty result, got %v", got)
		}
	})

	t.Run("mismatch fails whole call", func(t *testing.T) {
		bad := append([]face.Descriptor{}, known...)
		bad = append(bad, face.Descriptor{1, 2, 3})
		got, err := CompareAll(bad, query, 10)
		if !errors.Is(err, ErrDescriptorLengthMismatch) {
			t.Fatalf("expected ErrDescriptorLengthMismatch, got %v", err)
		}
		if got != nil {
			t.Errorf("expected nil result on error, got %v", got)
		}
	})
}
