package yolotv

// Pascal VOC (labelImg) XML annotation parsing.

import (
	"encoding/xml"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// vocAnnotation is the subset of a VOC annotation document that is read.
type vocAnnotation struct {
	XMLName  xml.Name `xml:"annotation"`
	Path     string   `xml:"path"`
	Filename string   `xml:"filename"`
	Size     struct {
		Width  string `xml:"width"`
		Height string `xml:"height"`
	} `xml:"size"`
	Objects []vocObject `xml:"object"`
}

type vocObject struct {
	Name   string `xml:"name"`
	BndBox struct {
		XMin string `xml:"xmin"`
		YMin string `xml:"ymin"`
		XMax string `xml:"xmax"`
		YMax string `xml:"ymax"`
	} `xml:"bndbox"`
}

// ParseVOC parses the VOC XML annotation at path.
//
// The image path is <filename> resolved against the directory of <path>, or against the
// directory of the XML file if <path> is empty.
//
// Boxes with a label outside allowed are dropped (a nil allowed keeps all boxes). A document
// without objects yields an Annotation without boxes, but if the document has objects and none of
// them is allowed, ParseVOC fails with an error that matches ErrNoMatchingObjects.
//
// All errors are of type *ParseError.
func ParseVOC(path string, allowed LabelSet) (Annotation, error) {
	a, err := parseVOC(path, allowed)
	if err != nil {
		return Annotation{}, &ParseError{Path: path, Cause: err}
	}
	return a, nil
}

func parseVOC(path string, allowed LabelSet) (Annotation, error) {
	enc, err := os.ReadFile(path)
	if err != nil {
		return Annotation{}, err
	}

	var doc vocAnnotation
	if err := xml.Unmarshal(enc, &doc); err != nil {
		return Annotation{}, err
	}

	filename := strings.TrimSpace(doc.Filename)
	if filename == "" {
		return Annotation{}, errors.New("missing <filename>")
	}
	baseDir := filepath.Dir(path)
	if p := strings.TrimSpace(doc.Path); p != "" {
		baseDir = filepath.Dir(p)
	}
	imagePath, err := filepath.Abs(filepath.Join(baseDir, filename))
	if err != nil {
		return Annotation{}, err
	}

	var size ImageSize
	if size.Width, err = parsePositiveInt("width", doc.Size.Width); err != nil {
		return Annotation{}, err
	}
	if size.Height, err = parsePositiveInt("height", doc.Size.Height); err != nil {
		return Annotation{}, err
	}

	boxes := make([]Box, 0, len(doc.Objects))
	for i, o := range doc.Objects {
		label := strings.TrimSpace(o.Name)
		if !allowed.Contains(label) {
			continue
		}

		var c [4]float64
		for j, v := range [4]string{o.BndBox.XMin, o.BndBox.YMin, o.BndBox.XMax, o.BndBox.YMax} {
			if c[j], err = strconv.ParseFloat(strings.TrimSpace(v), 64); err != nil {
				return Annotation{}, fmt.Errorf("object %d: invalid <bndbox>: %w", i, err)
			}
		}
		boxes = append(boxes, NewBox(label, c[0], c[1], c[2], c[3]))
	}

	// Objects that were all filtered out are not the same as an image without objects.
	if len(doc.Objects) > 0 && len(boxes) == 0 {
		return Annotation{}, ErrNoMatchingObjects
	}

	return Annotation{Boxes: boxes, ImagePath: imagePath, ImageSize: size}, nil
}

func parsePositiveInt(name, s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid image %s: %w", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid image %s %d", name, v)
	}
	return v, nil
}

// ParseVOCFolder parses all .xml files in dir, and in its subdirectories if recursive is true.
//
// Files that cannot be parsed are logged and skipped. An error is only returned if dir cannot
// be read.
func ParseVOCFolder(dir string, recursive bool, allowed LabelSet) (Annotations, error) {
	files, err := filesByExtInDir(dir, ".xml", recursive)
	if err != nil {
		return nil, err
	}

	data := make(Annotations, 0, len(files))
	unmatched := 0
	for _, path := range files {
		a, err := ParseVOC(path, allowed)
		if errors.Is(err, ErrNoMatchingObjects) {
			unmatched++
			continue
		} else if err != nil {
			log.Printf("Error while parsing, skipping %q: %v", path, err)
			continue
		}
		data = append(data, a)
	}

	if unmatched > 0 {
		log.Printf("Skipped %d files in %q without objects matching the label filter", unmatched,
			dir)
	}
	return data, nil
}

// ParseVOCFolders concatenates the results of ParseVOCFolder for all dirs, in order.
func ParseVOCFolders(dirs []string, recursive bool, allowed LabelSet) (Annotations, error) {
	var data Annotations
	for _, dir := range dirs {
		d, err := ParseVOCFolder(dir, recursive, allowed)
		if err != nil {
			return nil, err
		}
		data.Append(d...)
	}

	log.Printf("Parsed %d annotations from %d folders", len(data), len(dirs))
	return data, nil
}
