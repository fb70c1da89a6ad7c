// Package camera manages the video source feeding the access loop and
// one-shot enrollment captures.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
)

var (
	// ErrCameraUnavailable is returned when a device cannot be opened.
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrNotOpen is returned when reading from a released handle.
	ErrNotOpen = errors.New("camera not open")
)

// Source describes which device to open.
type Source struct {
	Driver        string // opencv, v4l2 or still
	Index         int
	Device        string
	Width         int
	Height        int
	FallbackImage string
}

func (s Source) String() string {
	switch s.Driver {
	case "v4l2":
		return fmt.Sprintf("v4l2:%s", s.Device)
	case "still":
		return fmt.Sprintf("still:%s", s.FallbackImage)
	default:
		return fmt.Sprintf("%s:%d", s.Driver, s.Index)
	}
}

// Device is an opened frame source.
type Device interface {
	Read(ctx context.Context) (image.Image, error)
	Close() error
}

// Opener opens devices for a source.
type Opener interface {
	Open(ctx context.Context, src Source) (Device, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, src Source) (Device, error)

// Open implements Opener.
func (f OpenerFunc) Open(ctx context.Context, src Source) (Device, error) {
	return f(ctx, src)
}

// State of a Handle.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Handle owns at most one open device. Opening again releases the previous
// device first, and Release may be called any number of times.
type Handle struct {
	opener Opener
	logger *slog.Logger

	mu     sync.Mutex
	state  State
	source Source
	device Device
}

// NewHandle creates a closed handle.
func NewHandle(opener Opener, logger *slog.Logger) *Handle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handle{opener: opener, logger: logger}
}

// Open opens src, releasing any device already held.
func (h *Handle) Open(ctx context.Context, src Source) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.device != nil {
		h.closeLocked()
	}
	h.state = StateOpening
	h.source = src

	dev, err := h.opener.Open(ctx, src)
	if err != nil {
		h.state = StateClosed
		return fmt.Errorf("%w: %s: %w", ErrCameraUnavailable, src, err)
	}
	h.device = dev
	h.state = StateOpen
	h.logger.Info("camera opened", "source", src.String())
	return nil
}

// Read grabs one frame from the open device.
func (h *Handle) Read(ctx context.Context) (image.Image, error) {
	h.mu.Lock()
	dev := h.device
	h.mu.Unlock()
	if dev == nil {
		return nil, ErrNotOpen
	}
	return dev.Read(ctx)
}

// Release closes the device if one is open.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closeLocked()
}

func (h *Handle) closeLocked() error {
	dev := h.device
	h.device = nil
	h.state = StateClosed
	if dev == nil {
		return nil
	}
	if err := dev.Close(); err != nil {
		h.logger.Warn("failed to close camera", "source", h.source.String(), "error", err)
		return err
	}
	h.logger.Info("camera released", "source", h.source.String())
	return nil
}

// State returns the handle's current state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Source returns the last source passed to Open.
func (h *Handle) Source() Source {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.source
}
