package yolotv

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// ImageSize is the image width and height in pixels.
type ImageSize struct {
	Width  int
	Height int
}

// LabelSet is a set of box labels. A nil LabelSet places no restriction on labels.
type LabelSet map[string]struct{}

// NewLabelSet returns a set containing labels. It returns nil if labels is empty.
func NewLabelSet(labels ...string) LabelSet {
	if len(labels) == 0 {
		return nil
	}
	s := make(LabelSet, len(labels))
	for _, l := range labels {
		s[l] = struct{}{}
	}
	return s
}

// Contains reports whether label is in s. Every label is contained in a nil set.
func (s LabelSet) Contains(label string) bool {
	if s == nil {
		return true
	}
	_, ok := s[label]
	return ok
}

// Sorted returns the labels in lexicographic order.
func (s LabelSet) Sorted() []string {
	labels := maps.Keys(s)
	slices.Sort(labels)
	return labels
}

// LabelMapper translates a label. The second result is false if the label has no mapping.
type LabelMapper func(label string) (string, bool)

// LabelMap is a label translation table.
type LabelMap map[string]string

// Lookup is a LabelMapper backed by m.
func (m LabelMap) Lookup(label string) (string, bool) {
	v, ok := m[label]
	return v, ok
}

// Annotation holds the boxes annotated on one image.
type Annotation struct {
	Boxes     []Box
	ImagePath string    // The annotated image.
	ImageSize ImageSize // As recorded in the annotation source.
}

// ImageName is the base name of the annotated image.
func (a *Annotation) ImageName() string {
	return filepath.Base(a.ImagePath)
}

// Clone returns a deep copy of the annotation.
func (a *Annotation) Clone() Annotation {
	return a.Filtered(func(Box) bool { return true })
}

// Filter keeps only the boxes for which keep returns true, in place.
func (a *Annotation) Filter(keep func(Box) bool) *Annotation {
	boxes := a.Boxes[:0]
	for _, b := range a.Boxes {
		if keep(b) {
			boxes = append(boxes, b)
		}
	}
	a.Boxes = boxes
	return a
}

// Filtered returns a copy of the annotation holding only the boxes for which keep returns true.
// The receiver is not modified.
func (a *Annotation) Filtered(keep func(Box) bool) Annotation {
	c := Annotation{
		Boxes:     make([]Box, 0, len(a.Boxes)),
		ImagePath: a.ImagePath,
		ImageSize: a.ImageSize,
	}
	for _, b := range a.Boxes {
		if keep(b) {
			if b.Confidence != nil {
				confidence := *b.Confidence
				b.Confidence = &confidence
			}
			c.Boxes = append(c.Boxes, b)
		}
	}
	return c
}

// MapLabels renames the label of every box with mapping, which must be total over the box
// labels. If any label has no mapping, a *MissingLabelError is returned and no label is changed.
func (a *Annotation) MapLabels(mapping LabelMapper) error {
	mapped := make([]string, len(a.Boxes))
	for i, b := range a.Boxes {
		l, ok := mapping(b.Label)
		if !ok {
			return &MissingLabelError{Label: b.Label, ImagePath: a.ImagePath}
		}
		mapped[i] = l
	}

	for i := range a.Boxes {
		a.Boxes[i].Label = mapped[i]
	}
	return nil
}

// SquareBoxes turns the boxes with a label in labels (all boxes if labels is nil) into squares of
// side ratio*min(width, height) of the image, centered on the original box midpoint.
//
// The ratio must be in [0, 1]. A ratio of 0 collapses the boxes to their midpoints.
func (a *Annotation) SquareBoxes(ratio float64, labels LabelSet) error {
	if err := checkRatio("square ratio", ratio); err != nil {
		return err
	}

	halfSide := ratio * float64(minInt(a.ImageSize.Width, a.ImageSize.Height)) / 2
	for i := range a.Boxes {
		b := &a.Boxes[i]
		if !labels.Contains(b.Label) {
			continue
		}
		if halfSide == 0 {
			xmid, ymid := b.Center()
			b.SetCorners(xmid, ymid, xmid, ymid)
			continue
		}
		if err := b.SquareNormalize(halfSide); err != nil {
			return fmt.Errorf("cannot square box in %q: %w", a.ImagePath, err)
		}
	}
	return nil
}

// YOLOText returns the YOLO representation of the annotation, one FormatLine per box in box
// order, separated by newlines.
func (a *Annotation) YOLOText(includeConfidence bool) string {
	lines := make([]string, len(a.Boxes))
	for i, b := range a.Boxes {
		lines[i] = b.FormatLine(a.ImageSize, includeConfidence)
	}
	return strings.Join(lines, "\n")
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
