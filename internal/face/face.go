// Package face finds face regions in grayscale images and turns each region
// into a fixed-size descriptor of normalized pixel intensities.
package face

import (
	"errors"
	"fmt"
	"image"
)

var (
	// ErrNoFaceDetected is returned when an enrollment image yields no face region.
	ErrNoFaceDetected = errors.New("no face detected")
	// ErrImageUnreadable is returned when a source cannot be decoded as an image.
	ErrImageUnreadable = errors.New("image unreadable")
	// ErrRegionOutOfBounds is returned when a region is empty or not fully inside the image.
	ErrRegionOutOfBounds = errors.New("region out of bounds")
)

// Region is an axis-aligned face rectangle in source pixel coordinates.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RegionFromRect converts an image.Rectangle to a Region.
func RegionFromRect(r image.Rectangle) Region {
	return Region{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// Rect returns the region as an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Empty reports whether the region has no area.
func (r Region) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

func (r Region) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}

// Descriptor is a flattened, row-major vector of pixel intensities in [0,1].
// A nil or empty descriptor marks an unenrolled student.
type Descriptor []float64

// Float32 returns a float32 copy of the descriptor for vector indexes and storage.
func (d Descriptor) Float32() []float32 {
	out := make([]float32, len(d))
	for i, v := range d {
		out[i] = float32(v)
	}
	return out
}

// DescriptorFromFloat32 converts a float32 vector back into a Descriptor.
func DescriptorFromFloat32(v []float32) Descriptor {
	if len(v) == 0 {
		return nil
	}
	out := make(Descriptor, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// Clone returns an independent copy of the descriptor.
func (d Descriptor) Clone() Descriptor {
	if d == nil {
		return nil
	}
	out := make(Descriptor, len(d))
	copy(out, d)
	return out
}

// Detector finds face regions in a single-channel image. An empty result is not an error.
type Detector interface {
	Detect(img *image.Gray) ([]Region, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(img *image.Gray) ([]Region, error)

// Detect calls f(img).
func (f DetectorFunc) Detect(img *image.Gray) ([]Region, error) {
	return f(img)
}

// DetectorParams holds the multi-scale detection tunables.
type DetectorParams struct {
	ScaleFactor  float64
	MinNeighbors int
	MinSize      int // smallest face side in pixels
	MaxSize      int // largest face side in pixels, 0 means unbounded
}

// DefaultDetectorParams returns the Haar cascade defaults used for enrollment and streaming.
func DefaultDetectorParams() DetectorParams {
	return DetectorParams{
		ScaleFactor:  1.1,
		MinNeighbors: 5,
		MinSize:      30,
	}
}

// ClipRegions intersects every region with bounds and drops the ones left empty.
func ClipRegions(regions []Region, bounds image.Rectangle) []Region {
	out := make([]Region, 0, len(regions))
	for _, r := range regions {
		clipped := r.Rect().Intersect(bounds)
		if clipped.Empty() {
			continue
		}
		out = append(out, RegionFromRect(clipped))
	}
	return out
}
