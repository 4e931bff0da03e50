package yolotv

import (
	"errors"
	"fmt"
)

// Errors reported by the annotation transforms and the dataset export. Check with errors.Is.
var (
	ErrDuplicateLabel      = errors.New("duplicate label")
	ErrInvalidRatio        = errors.New("ratio must be in [0, 1]")
	ErrMissingLabelMapping = errors.New("missing label mapping")
	ErrNoMatchingObjects   = errors.New("no object matches the label filter")
	ErrOutputExists        = errors.New("output directory already exists")
)

// MissingLabelError is returned when a label mapping does not cover a box label.
type MissingLabelError struct {
	Label     string
	ImagePath string
}

func (e *MissingLabelError) Error() string {
	return fmt.Sprintf("%v: no mapping for label %q in %q", ErrMissingLabelMapping, e.Label,
		e.ImagePath)
}

func (e *MissingLabelError) Unwrap() error {
	return ErrMissingLabelMapping
}

// ParseError describes an XML annotation document that could not be turned into an Annotation.
type ParseError struct {
	Path  string
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %q: %v", e.Path, e.Cause)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// checkRatio returns an ErrInvalidRatio error if ratio is not in [0, 1].
func checkRatio(name string, ratio float64) error {
	if !(ratio >= 0 && ratio <= 1) {
		return fmt.Errorf("invalid %s %v: %w", name, ratio, ErrInvalidRatio)
	}
	return nil
}
