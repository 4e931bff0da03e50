package yolotv

// Bounding box geometry.

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Box is a labelled axis-aligned rectangle in absolute pixel coordinates.
//
// The two corners may be stored in any order. All accessors resolve the ordering, so that
// Width and Height are never negative.
type Box struct {
	Coords     [4]float64 // Absolute x1, y1, x2, y2 offsets from the top-left corner.
	Label      string
	Confidence *float64 // Optional, in [0, 1].
}

// NewBox returns a box with the corners (x1, y1) and (x2, y2), given in any order.
func NewBox(label string, x1, y1, x2, y2 float64) Box {
	return Box{Coords: [4]float64{x1, y1, x2, y2}, Label: label}
}

// NewBoxWithConfidence works like NewBox, but also attaches a confidence value in [0, 1].
func NewBoxWithConfidence(label string, x1, y1, x2, y2, confidence float64) (Box, error) {
	if !(confidence >= 0 && confidence <= 1) {
		return Box{}, fmt.Errorf("confidence %v is not in [0, 1]", confidence)
	}
	b := NewBox(label, x1, y1, x2, y2)
	b.Confidence = &confidence
	return b, nil
}

// BoxFromCenter returns a box centered at (xmid, ymid) with the given width and height.
func BoxFromCenter(label string, xmid, ymid, width, height float64) Box {
	dx := math.Abs(width) / 2
	dy := math.Abs(height) / 2
	return NewBox(label, xmid-dx, ymid-dy, xmid+dx, ymid+dy)
}

// Corners returns the top-left and bottom-right corners, regardless of the stored order.
func (b Box) Corners() (xmin, ymin, xmax, ymax float64) {
	c := b.Coords
	return math.Min(c[0], c[2]), math.Min(c[1], c[3]), math.Max(c[0], c[2]), math.Max(c[1], c[3])
}

// Center returns the box midpoint.
func (b Box) Center() (xmid, ymid float64) {
	return (b.Coords[0] + b.Coords[2]) / 2, (b.Coords[1] + b.Coords[3]) / 2
}

// Width is the non-negative box width.
func (b Box) Width() float64 {
	return math.Abs(b.Coords[2] - b.Coords[0])
}

// Height is the non-negative box height.
func (b Box) Height() float64 {
	return math.Abs(b.Coords[3] - b.Coords[1])
}

// Size returns Width and Height.
func (b Box) Size() (width, height float64) {
	return b.Width(), b.Height()
}

// SetCorners overwrites the corner coordinates. The corners may be given in any order.
func (b *Box) SetCorners(x1, y1, x2, y2 float64) {
	b.Coords = [4]float64{x1, y1, x2, y2}
}

// ShiftCenterTo translates the box so that its midpoint becomes (xmid, ymid).
func (b *Box) ShiftCenterTo(xmid, ymid float64) {
	cx, cy := b.Center()
	dx, dy := xmid-cx, ymid-cy
	b.Coords[0] += dx
	b.Coords[1] += dy
	b.Coords[2] += dx
	b.Coords[3] += dy
}

// SquareNormalize replaces the box by a square with sides 2*halfSide, centered at the same
// midpoint. halfSide must be positive.
func (b *Box) SquareNormalize(halfSide float64) error {
	if !(halfSide > 0) {
		return fmt.Errorf("square half side must be positive, got %v", halfSide)
	}
	xmid, ymid := b.Center()
	b.Coords = [4]float64{xmid - halfSide, ymid - halfSide, xmid + halfSide, ymid + halfSide}
	return nil
}

// RelativeCoords converts the box to the YOLO coordinate format: midpoint and size as fractions
// of the image width and height. Values are not clamped to [0, 1].
func (b Box) RelativeCoords(size ImageSize) (xmid, ymid, width, height float64) {
	w, h := float64(size.Width), float64(size.Height)
	cx, cy := b.Center()
	return cx / w, cy / h, b.Width() / w, b.Height() / h
}

// FormatLine returns the YOLO line for the box:
//
//	<label> [<confidence>] <xmid> <ymid> <width> <height>
//
// The confidence is only written if includeConfidence is true and the box has one.
func (b Box) FormatLine(size ImageSize, includeConfidence bool) string {
	fields := make([]string, 0, 6)
	fields = append(fields, b.Label)
	if includeConfidence && b.Confidence != nil {
		fields = append(fields, formatFloat(*b.Confidence))
	}

	xmid, ymid, width, height := b.RelativeCoords(size)
	for _, v := range [4]float64{xmid, ymid, width, height} {
		fields = append(fields, formatFloat(v))
	}

	return strings.Join(fields, " ")
}

// formatFloat uses the shortest representation that parses back to v.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
