package yolotv

import (
	"fmt"
	"io"
	"text/tabwriter"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// EmptyLabel is the row name used for annotations without boxes in the statistics table.
const EmptyLabel = "<empty>"

// LabelStats counts the boxes of one label and the distinct images they appear in.
type LabelStats struct {
	Boxes  int
	Images int
}

// Stats summarises an annotation collection.
type Stats struct {
	Images      int                   // Number of annotations.
	Boxes       int                   // Total number of boxes.
	EmptyImages int                   // Distinct images of annotations without boxes.
	Labels      map[string]LabelStats // Per label counts. Labels without boxes are absent.
}

// Statistics counts, per label, the boxes and the distinct images (by path) that contain at
// least one box of that label, and the images of annotations without boxes.
func (data Annotations) Statistics() Stats {
	boxCount := make(map[string]int)
	imageSets := make(map[string]map[string]struct{})
	empty := make(map[string]struct{})

	for i := range data {
		a := &data[i]
		if len(a.Boxes) == 0 {
			empty[a.ImagePath] = struct{}{}
		}
		for _, b := range a.Boxes {
			boxCount[b.Label]++
			images, ok := imageSets[b.Label]
			if !ok {
				images = make(map[string]struct{})
				imageSets[b.Label] = images
			}
			images[a.ImagePath] = struct{}{}
		}
	}

	s := Stats{
		Images:      len(data),
		EmptyImages: len(empty),
		Labels:      make(map[string]LabelStats, len(boxCount)),
	}
	for label, n := range boxCount {
		s.Boxes += n
		s.Labels[label] = LabelStats{Boxes: n, Images: len(imageSets[label])}
	}

	return s
}

// SortedLabels returns the labels with at least one box, in lexicographic order.
func (s Stats) SortedLabels() []string {
	labels := maps.Keys(s.Labels)
	slices.Sort(labels)
	return labels
}

// WriteTable writes a Label / Images / Boxes table with one row per label, an EmptyLabel row if
// there are annotations without boxes, and a total row.
func (s Stats) WriteTable(w io.Writer) (err error) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	defer func() {
		if e := tw.Flush(); e != nil && err == nil {
			err = e
		}
	}()

	row := func(label string, images, boxes int) {
		if err == nil {
			_, err = fmt.Fprintf(tw, "%s\t%d\t%d\t\n", label, images, boxes)
		}
	}

	if _, err = fmt.Fprintln(tw, "Label\tImages\tBoxes\t"); err != nil {
		return err
	}
	for _, label := range s.SortedLabels() {
		l := s.Labels[label]
		row(label, l.Images, l.Boxes)
	}
	if s.EmptyImages > 0 {
		row(EmptyLabel, s.EmptyImages, 0)
	}
	row("Total", s.Images, s.Boxes)

	return err
}
