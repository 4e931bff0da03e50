package yolotv

// The annotation collection and its dataset-wide transforms.

import (
	"log"

	"golang.org/x/exp/slices"
)

// Annotations is an ordered collection of image annotations.
//
// The order is significant: it determines the output index of each annotation on export.
type Annotations []Annotation

// Append adds annotations at the end of the collection.
func (data *Annotations) Append(a ...Annotation) {
	*data = append(*data, a...)
}

// Concat returns a new collection holding copies of the annotations of data followed by copies
// of those of other.
func (data Annotations) Concat(other Annotations) Annotations {
	c := make(Annotations, 0, len(data)+len(other))
	for _, src := range []Annotations{data, other} {
		for i := range src {
			c = append(c, src[i].Clone())
		}
	}
	return c
}

// ImagePaths returns the image path of every annotation, in order.
func (data Annotations) ImagePaths() []string {
	paths := make([]string, len(data))
	for i := range data {
		paths[i] = data[i].ImagePath
	}
	return paths
}

// Labels returns the set of all box labels.
func (data Annotations) Labels() LabelSet {
	labels := make(LabelSet)
	for i := range data {
		for _, b := range data[i].Boxes {
			labels[b.Label] = struct{}{}
		}
	}
	return labels
}

// NumBoxes is the total number of boxes.
func (data Annotations) NumBoxes() int {
	n := 0
	for i := range data {
		n += len(data[i].Boxes)
	}
	return n
}

// MapLabels renames all box labels with mapping, which must be total over Labels().
//
// Totality is checked over the whole collection first, so a *MissingLabelError leaves all labels
// unchanged.
func (data Annotations) MapLabels(mapping LabelMapper) error {
	for i := range data {
		for _, b := range data[i].Boxes {
			if _, ok := mapping(b.Label); !ok {
				return &MissingLabelError{Label: b.Label, ImagePath: data[i].ImagePath}
			}
		}
	}

	for i := range data {
		if err := data[i].MapLabels(mapping); err != nil {
			return err
		}
	}
	return nil
}

// SquareBoxes applies Annotation.SquareBoxes to every annotation.
func (data Annotations) SquareBoxes(ratio float64, labels LabelSet) error {
	if err := checkRatio("square ratio", ratio); err != nil {
		return err
	}
	for i := range data {
		if err := data[i].SquareBoxes(ratio, labels); err != nil {
			return err
		}
	}
	return nil
}

// Filter keeps only the boxes for which keep returns true, in place. Annotations left without
// boxes are kept; use RemoveEmpty to drop them.
func (data Annotations) Filter(keep func(Box) bool) Annotations {
	before := data.NumBoxes()
	for i := range data {
		data[i].Filter(keep)
	}
	log.Printf("Filtered out %d labels", before-data.NumBoxes())
	return data
}

// Filtered works like Filter, but returns a new collection and leaves data unchanged.
func (data Annotations) Filtered(keep func(Box) bool) Annotations {
	c := make(Annotations, len(data))
	for i := range data {
		c[i] = data[i].Filtered(keep)
	}
	return c
}

// RemoveEmpty deletes the annotations that have no boxes, preserving the order of the others.
func (data *Annotations) RemoveEmpty() {
	kept := (*data)[:0]
	for _, a := range *data {
		if len(a.Boxes) > 0 {
			kept = append(kept, a)
		}
	}
	if removed := len(*data) - len(kept); removed > 0 {
		log.Printf("Removed %d empty annotations", removed)
	}

	// Clear the tail so dropped annotations can be collected.
	for i := len(kept); i < len(*data); i++ {
		(*data)[i] = Annotation{}
	}
	*data = kept
}

// SortByImagePath sorts the collection by image path. Annotations with identical paths keep
// their relative order.
func (data Annotations) SortByImagePath() {
	slices.SortStableFunc(data, func(a, b Annotation) bool {
		return a.ImagePath < b.ImagePath
	})
}
