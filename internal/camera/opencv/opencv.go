// Package opencv reads frames through OpenCV's VideoCapture.
package opencv

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/kozaktomas/cantine/internal/camera"
	"gocv.io/x/gocv"
)

// ErrEmptyFrame is returned when the device delivers no data.
var ErrEmptyFrame = errors.New("empty frame")

type device struct {
	mu  sync.Mutex
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

// Opener opens camera.Source.Index with OpenCV.
var Opener = camera.OpenerFunc(Open)

// Open opens the capture device at src.Index and applies the requested resolution.
func Open(ctx context.Context, src camera.Source) (camera.Device, error) {
	vc, err := gocv.VideoCaptureDevice(src.Index)
	if err != nil {
		return nil, fmt.Errorf("opening video device %d: %w", src.Index, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("video device %d did not open", src.Index)
	}
	if src.Width > 0 && src.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(src.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(src.Height))
	}
	return &device{vc: vc, mat: gocv.NewMat()}, nil
}

func (d *device) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.vc.Read(&d.mat) || d.mat.Empty() {
		return nil, ErrEmptyFrame
	}
	img, err := d.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("converting frame: %w", err)
	}
	return img, nil
}

func (d *device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mat.Close()
	return d.vc.Close()
}
