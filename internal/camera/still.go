package camera

import (
	"context"
	"fmt"
	"image"

	"github.com/kozaktomas/cantine/internal/face"
)

type stillDevice struct {
	frame image.Image
}

func (d *stillDevice) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.frame, nil
}

func (d *stillDevice) Close() error { return nil }

// NewStillDevice returns a device that serves the same frame forever.
func NewStillDevice(frame image.Image) Device {
	return &stillDevice{frame: frame}
}

// StillOpener serves the image at Source.FallbackImage as every frame.
var StillOpener = OpenerFunc(func(ctx context.Context, src Source) (Device, error) {
	if src.FallbackImage == "" {
		return nil, fmt.Errorf("no still image configured")
	}
	img, err := face.LoadImage(src.FallbackImage)
	if err != nil {
		return nil, err
	}
	return NewStillDevice(img), nil
})

// WithFallback tries primary first and opens the still image when it fails
// and a fallback image is configured.
func WithFallback(primary Opener) Opener {
	return OpenerFunc(func(ctx context.Context, src Source) (Device, error) {
		dev, err := primary.Open(ctx, src)
		if err == nil || src.FallbackImage == "" {
			return dev, err
		}
		still, stillErr := StillOpener.Open(ctx, src)
		if stillErr != nil {
			return nil, fmt.Errorf("%w (fallback: %w)", err, stillErr)
		}
		return &fallbackDevice{Device: still}, nil
	})
}

type fallbackDevice struct {
	Device
}

// IsFallback reports whether dev serves the configured still image because the
// real device failed to open.
func IsFallback(dev Device) bool {
	_, ok := dev.(*fallbackDevice)
	return ok
}
