// Package geometry converts model-reported fractional boxes into pixel boxes.
package geometry

import (
	"math"

	"github.com/rotisserie/eris"
)

var (
	// ErrMissingCoordinate is returned when a raw box lacks one of the four keys.
	ErrMissingCoordinate = eris.New("geometry: missing coordinate")
	// ErrInvalidBox is returned when a pixel box is degenerate or outside the image.
	ErrInvalidBox = eris.New("geometry: invalid box")
)

// Coordinate keys used by detectors and the persisted element shape.
const (
	KeyXMin = "x_min"
	KeyYMin = "y_min"
	KeyXMax = "x_max"
	KeyYMax = "y_max"
)

// FractionalBox is a box with coordinates expressed as fractions of the image size.
type FractionalBox struct {
	XMin float64 `json:"x_min"`
	YMin float64 `json:"y_min"`
	XMax float64 `json:"x_max"`
	YMax float64 `json:"y_max"`
}

// PixelBox is a box in absolute pixel coordinates.
type PixelBox struct {
	XMin int `json:"x_min"`
	YMin int `json:"y_min"`
	XMax int `json:"x_max"`
	YMax int `json:"y_max"`
}

// Normalize scales b to a width x height image. Each coordinate is
// round(fraction * dimension); no clamping is applied.
func Normalize(b FractionalBox, width, height int) PixelBox {
	w, h := float64(width), float64(height)
	return PixelBox{
		XMin: int(math.Round(b.XMin * w)),
		YMin: int(math.Round(b.YMin * h)),
		XMax: int(math.Round(b.XMax * w)),
		YMax: int(math.Round(b.YMax * h)),
	}
}

// Width returns the horizontal extent of the box.
func (p PixelBox) Width() int { return p.XMax - p.XMin }

// Height returns the vertical extent of the box.
func (p PixelBox) Height() int { return p.YMax - p.YMin }

// Validate reports ErrInvalidBox when the box is degenerate or does not
// fit in a width x height image.
func (p PixelBox) Validate(width, height int) error {
	if p.XMin < 0 || p.YMin < 0 || p.XMax > width || p.YMax > height {
		return eris.Wrapf(ErrInvalidBox, "box %v outside %dx%d", p, width, height)
	}
	if p.XMin >= p.XMax || p.YMin >= p.YMax {
		return eris.Wrapf(ErrInvalidBox, "box %v is degenerate", p)
	}
	return nil
}

// FromRaw reads a fractional box from a decoded JSON object. Numeric
// strings are accepted because some detectors quote their coordinates.
func FromRaw(raw map[string]any) (FractionalBox, error) {
	var (
		b   FractionalBox
		err error
	)
	keys := []struct {
		key string
		dst *float64
	}{
		{KeyXMin, &b.XMin},
		{KeyYMin, &b.YMin},
		{KeyXMax, &b.XMax},
		{KeyYMax, &b.YMax},
	}
	for _, k := range keys {
		v, ok := raw[k.key]
		if !ok || v == nil {
			return FractionalBox{}, eris.Wrapf(ErrMissingCoordinate, "key %q", k.key)
		}
		if *k.dst, err = Number(v); err != nil {
			return FractionalBox{}, eris.Wrapf(ErrMissingCoordinate, "key %q: %v", k.key, err)
		}
	}
	return b, nil
}

// Fractional reports whether every coordinate lies in [0,1] and the box
// has positive extent.
func (b FractionalBox) Fractional() bool {
	for _, v := range []float64{b.XMin, b.YMin, b.XMax, b.YMax} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return false
		}
	}
	return b.XMin < b.XMax && b.YMin < b.YMax
}
