// Package v4l2 reads grayscale frames straight from a Video4Linux device.
package v4l2

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/blackjack/webcam"
	"github.com/kozaktomas/cantine/internal/camera"
)

const (
	formatGREY webcam.PixelFormat = 0x59455247
	formatYUYV webcam.PixelFormat = 0x56595559

	frameTimeout uint32 = 2 // seconds
)

// ErrUnsupportedFormat is returned when the device offers neither GREY nor YUYV.
var ErrUnsupportedFormat = errors.New("no supported pixel format")

type device struct {
	mu     sync.Mutex
	cam    *webcam.Webcam
	format webcam.PixelFormat
	width  int
	height int
}

// Opener opens camera.Source.Device with V4L2.
var Opener = camera.OpenerFunc(Open)

// Open configures src.Device for GREY (preferred) or YUYV frames and starts streaming.
func Open(ctx context.Context, src camera.Source) (camera.Device, error) {
	cam, err := webcam.Open(src.Device)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", src.Device, err)
	}

	format, err := pickFormat(cam.GetSupportedFormats())
	if err != nil {
		cam.Close()
		return nil, err
	}
	w, h := src.Width, src.Height
	if w <= 0 || h <= 0 {
		w, h = 640, 480
	}
	got, gw, gh, err := cam.SetImageFormat(format, uint32(w), uint32(h))
	if err != nil {
		cam.Close()
		return nil, fmt.Errorf("setting image format: %w", err)
	}
	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, fmt.Errorf("starting stream: %w", err)
	}
	return &device{cam: cam, format: got, width: int(gw), height: int(gh)}, nil
}

func pickFormat(formats map[webcam.PixelFormat]string) (webcam.PixelFormat, error) {
	if _, ok := formats[formatGREY]; ok {
		return formatGREY, nil
	}
	if _, ok := formats[formatYUYV]; ok {
		return formatYUYV, nil
	}
	return 0, ErrUnsupportedFormat
}

func (d *device) Read(ctx context.Context) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := d.cam.WaitForFrame(frameTimeout)
		var timeout *webcam.Timeout
		if errors.As(err, &timeout) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("waiting for frame: %w", err)
		}

		buf, err := d.cam.ReadFrame()
		if err != nil {
			return nil, fmt.Errorf("reading frame: %w", err)
		}
		if len(buf) == 0 {
			continue
		}
		return toGray(buf, d.format, d.width, d.height)
	}
}

func (d *device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cam.StopStreaming()
	return d.cam.Close()
}

// toGray copies the luma plane of a GREY or YUYV buffer into an image.Gray.
func toGray(buf []byte, format webcam.PixelFormat, width, height int) (*image.Gray, error) {
	img := image.NewGray(image.Rect(0, 0, width, height))
	switch format {
	case formatGREY:
		if len(buf) < width*height {
			return nil, fmt.Errorf("short GREY frame: %d bytes", len(buf))
		}
		copy(img.Pix, buf[:width*height])
	case formatYUYV:
		if len(buf) < width*height*2 {
			return nil, fmt.Errorf("short YUYV frame: %d bytes", len(buf))
		}
		for i := 0; i < width*height; i++ {
			img.Pix[i] = buf[i*2] // Y0 U Y1 V
		}
	default:
		return nil, ErrUnsupportedFormat
	}
	return img, nil
}
