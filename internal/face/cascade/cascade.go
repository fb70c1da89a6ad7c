// Package cascade implements face.Detector with an OpenCV Haar cascade.
package cascade

import (
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/kozaktomas/cantine/internal/face"
	"gocv.io/x/gocv"
)

// Detector runs multi-scale Haar cascade detection. Safe for concurrent use.
type Detector struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
	params     face.DetectorParams
}

// New loads the cascade model at modelPath. A missing or unreadable model is an error.
func New(modelPath string, params face.DetectorParams) (*Detector, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("cascade model: %w", err)
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(modelPath) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load cascade classifier from %s", modelPath)
	}

	if params.ScaleFactor <= 1 {
		params.ScaleFactor = face.DefaultDetectorParams().ScaleFactor
	}
	if params.MinNeighbors <= 0 {
		params.MinNeighbors = face.DefaultDetectorParams().MinNeighbors
	}

	return &Detector{classifier: classifier, params: params}, nil
}

// Detect returns face regions found in img, in classifier order.
func (d *Detector) Detect(img *image.Gray) ([]face.Region, error) {
	mat, err := gocv.ImageGrayToMatGray(img)
	if err != nil {
		return nil, fmt.Errorf("converting image to mat: %w", err)
	}
	defer mat.Close()

	minSize := image.Pt(d.params.MinSize, d.params.MinSize)
	maxSize := image.Pt(d.params.MaxSize, d.params.MaxSize)

	d.mu.Lock()
	rects := d.classifier.DetectMultiScaleWithParams(mat, d.params.ScaleFactor, d.params.MinNeighbors, 0, minSize, maxSize)
	d.mu.Unlock()

	regions := make([]face.Region, 0, len(rects))
	for _, r := range rects {
		regions = append(regions, face.RegionFromRect(r.Add(img.Bounds().Min)))
	}
	return face.ClipRegions(regions, img.Bounds()), nil
}

// Close releases the classifier.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.classifier.Close(); err != nil {
		return fmt.Errorf("closing cascade classifier: %w", err)
	}
	return nil
}
