package face

import (
	"errors"
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Canonical descriptor geometry.
const (
	DefaultEncodingWidth  = 100
	DefaultEncodingHeight = 100
)

// Interpolation names accepted by EncoderOptions.
const (
	InterpolationNearest  = "nearest"
	InterpolationBilinear = "bilinear"
	InterpolationBicubic  = "bicubic"
)

// EncoderOptions configures descriptor geometry and the resize kernel.
type EncoderOptions struct {
	Width         int
	Height        int
	Interpolation string
}

// Encoded pairs a descriptor with the region it was computed from.
type Encoded struct {
	Descriptor Descriptor
	Region     Region
}

// Encoder crops detected faces, resizes them to a fixed size and flattens them.
type Encoder struct {
	detector Detector
	width    int
	height   int
	scaler   draw.Interpolator
}

func interpolator(name string) (draw.Interpolator, error) {
	switch name {
	case "", InterpolationBilinear:
		return draw.BiLinear, nil
	case InterpolationBicubic:
		return draw.CatmullRom, nil
	case InterpolationNearest:
		return draw.NearestNeighbor, nil
	default:
		return nil, fmt.Errorf("unknown interpolation %q", name)
	}
}

// NewEncoder creates an encoder backed by detector. Zero width or height falls back to 100.
func NewEncoder(detector Detector, opts EncoderOptions) (*Encoder, error) {
	if detector == nil {
		return nil, errors.New("detector is required")
	}
	if opts.Width == 0 {
		opts.Width = DefaultEncodingWidth
	}
	if opts.Height == 0 {
		opts.Height = DefaultEncodingHeight
	}
	if opts.Width < 0 || opts.Height < 0 {
		return nil, fmt.Errorf("invalid encoding size %dx%d", opts.Width, opts.Height)
	}
	scaler, err := interpolator(opts.Interpolation)
	if err != nil {
		return nil, err
	}
	return &Encoder{
		detector: detector,
		width:    opts.Width,
		height:   opts.Height,
		scaler:   scaler,
	}, nil
}

// Size returns the descriptor length produced by this encoder.
func (e *Encoder) Size() int {
	return e.width * e.height
}

// Detect runs the detector and clips its output to the image bounds.
func (e *Encoder) Detect(img *image.Gray) ([]Region, error) {
	regions, err := e.detector.Detect(img)
	if err != nil {
		return nil, fmt.Errorf("detecting faces: %w", err)
	}
	return ClipRegions(regions, img.Bounds()), nil
}

// Encode crops r out of img, resizes it and normalizes every sample by 255.
func (e *Encoder) Encode(img *image.Gray, r Region) (Descriptor, error) {
	rect := r.Rect()
	if r.Empty() || !rect.In(img.Bounds()) {
		return nil, fmt.Errorf("%w: %s not within %v", ErrRegionOutOfBounds, r, img.Bounds())
	}

	crop, ok := img.SubImage(rect).(*image.Gray)
	if !ok {
		return nil, fmt.Errorf("unexpected sub-image type %T", img.SubImage(rect))
	}

	dst := image.NewGray(image.Rect(0, 0, e.width, e.height))
	e.scaler.Scale(dst, dst.Bounds(), crop, crop.Bounds(), draw.Src, nil)

	out := make(Descriptor, e.width*e.height)
	for y := range e.height {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+e.width]
		for x, v := range row {
			out[y*e.width+x] = float64(v) / 255.0
		}
	}
	return out, nil
}

// EncodeFrame encodes the first face found in img.
func (e *Encoder) EncodeFrame(img image.Image) (Descriptor, Region, error) {
	gray := ToGray(img)
	regions, err := e.Detect(gray)
	if err != nil {
		return nil, Region{}, err
	}
	if len(regions) == 0 {
		return nil, Region{}, ErrNoFaceDetected
	}
	d, err := e.Encode(gray, regions[0])
	if err != nil {
		return nil, Region{}, err
	}
	return d, regions[0], nil
}

// EncodeImage loads the image at path and encodes its first face.
func (e *Encoder) EncodeImage(path string) (Descriptor, error) {
	img, err := LoadImage(path)
	if err != nil {
		return nil, err
	}
	d, _, err := e.EncodeFrame(img)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// EncodeAll encodes every face found in frame, in detector order.
func (e *Encoder) EncodeAll(frame image.Image) ([]Encoded, error) {
	gray := ToGray(frame)
	regions, err := e.Detect(gray)
	if err != nil {
		return nil, err
	}
	out := make([]Encoded, 0, len(regions))
	for _, r := range regions {
		d, err := e.Encode(gray, r)
		if err != nil {
			return nil, err
		}
		out = append(out, Encoded{Descriptor: d, Region: r})
	}
	return out, nil
}
