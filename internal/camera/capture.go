package camera

import (
	"context"
	"image"
	"time"
)

// CaptureResult is the outcome of a one-shot capture.
type CaptureResult struct {
	Frame    image.Image
	Err      error
	Fallback bool // frame came from the still image
}

// Capture opens src in a separate goroutine, waits warmUp for the sensor to
// settle, reads one frame and closes the device. The result is delivered on
// the returned channel, which is closed afterwards.
func Capture(ctx context.Context, opener Opener, src Source, warmUp time.Duration) <-chan CaptureResult {
	out := make(chan CaptureResult, 1)
	go func() {
		defer close(out)
		out <- captureOnce(ctx, opener, src, warmUp)
	}()
	return out
}

func captureOnce(ctx context.Context, opener Opener, src Source, warmUp time.Duration) CaptureResult {
	dev, err := opener.Open(ctx, src)
	if err != nil {
		return CaptureResult{Err: err}
	}
	defer dev.Close()

	if warmUp > 0 {
		timer := time.NewTimer(warmUp)
		select {
		case <-ctx.Done():
			timer.Stop()
			return CaptureResult{Err: ctx.Err()}
		case <-timer.C:
		}
	}

	frame, err := dev.Read(ctx)
	if err != nil {
		return CaptureResult{Err: err}
	}
	return CaptureResult{Frame: frame, Fallback: IsFallback(dev)}
}
