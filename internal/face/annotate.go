package face

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Outline colors for annotated frames.
var (
	RecognizedColor   = color.RGBA{R: 0, G: 200, B: 0, A: 255}
	UnrecognizedColor = color.RGBA{R: 220, G: 0, B: 0, A: 255}
)

const outlineWidth = 2

// Box is one face outline with its caption.
type Box struct {
	Region     Region
	Label      string
	Recognized bool
}

// Annotate returns a copy of frame with every box outlined and captioned.
func Annotate(frame image.Image, boxes []Box) *image.RGBA {
	b := frame.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), frame, b.Min, draw.Src)

	for _, box := range boxes {
		c := UnrecognizedColor
		if box.Recognized {
			c = RecognizedColor
		}
		drawOutline(out, box.Region.Rect().Intersect(out.Bounds()), c)
		drawLabel(out, box.Region, box.Label, c)
	}
	return out
}

func drawOutline(img *image.RGBA, r image.Rectangle, c color.Color) {
	if r.Empty() {
		return
	}
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+outlineWidth),
		image.Rect(r.Min.X, r.Max.Y-outlineWidth, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+outlineWidth, r.Max.Y),
		image.Rect(r.Max.X-outlineWidth, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(img, e.Intersect(r), src, image.Point{}, draw.Src)
	}
}

func drawLabel(img *image.RGBA, r Region, label string, c color.Color) {
	if label == "" {
		return
	}
	face := basicfont.Face7x13
	// Caption sits above the box, or inside it when the box touches the top edge.
	y := r.Y - 4
	if y < face.Ascent {
		y = r.Y + face.Ascent + outlineWidth
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(r.X, y),
	}
	d.DrawString(label)
}
