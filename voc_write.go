package yolotv

// VOC XML generation and in-place path repair.

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// vocEmptyAnnotation is a VOC document for an image without objects.
type vocEmptyAnnotation struct {
	XMLName  xml.Name `xml:"annotation"`
	Folder   string   `xml:"folder"`
	Filename string   `xml:"filename"`
	Path     string   `xml:"path"`
	Size     struct {
		Width  int `xml:"width"`
		Height int `xml:"height"`
		Depth  int `xml:"depth"`
	} `xml:"size"`
}

// CreateEmptyVOC writes an annotation without objects next to each image with file extension
// imageExt (e.g. ".jpg") in folder, for images that have no .xml annotation yet. Image sizes are
// read with sizer.
//
// Returns the number of annotation files created.
func CreateEmptyVOC(folder, imageExt string, sizer ImageSizer) (int, error) {
	folder, err := filepath.Abs(folder)
	if err != nil {
		return 0, err
	}
	images, err := filesByExtInDir(folder, imageExt, false)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, imagePath := range images {
		dir, baseNoExt, _, err := splitPath(imagePath)
		if err != nil {
			return created, err
		}
		xmlPath := filepath.Join(dir, baseNoExt+".xml")
		if _, err := os.Stat(xmlPath); err == nil {
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return created, err
		}

		size, err := sizer.ImageSize(imagePath)
		if err != nil {
			return created, fmt.Errorf("cannot read the size of %q: %w", imagePath, err)
		}

		doc := vocEmptyAnnotation{
			Folder:   filepath.Base(dir),
			Filename: filepath.Base(imagePath),
			Path:     xmlPath,
		}
		doc.Size.Width = size.Width
		doc.Size.Height = size.Height
		doc.Size.Depth = 3

		enc, err := xml.MarshalIndent(doc, "", "  ")
		if err != nil {
			return created, err
		}
		if err := writeFileAtomic(xmlPath, append(enc, '\n')); err != nil {
			return created, err
		}
		created++
	}

	log.Printf("Created %d empty annotations in %q", created, folder)
	return created, nil
}

// ResolveVOCPaths sets the <path> field of every .xml annotation in folders (and their
// subdirectories if recursive is true) to the absolute path of the annotation file itself. Use it
// when a dataset was moved and the recorded paths no longer point at the images.
//
// Files are rewritten concurrently by numWorkers goroutines, each one atomically. Files that are
// not valid XML are logged and left unchanged. Cancelling ctx stops the rewrite between files.
func ResolveVOCPaths(ctx context.Context, folders []string, recursive bool, numWorkers int) error {
	var files []string
	for _, folder := range folders {
		f, err := filesByExtInDir(folder, ".xml", recursive)
		if err != nil {
			return err
		}
		files = append(files, f...)
	}

	n, err := runUnits(ctx, numWorkers, len(files), func(i int) error {
		if err := resolveVOCPath(files[i]); err != nil {
			log.Printf("Error while resolving the path, skipping %q: %v", files[i], err)
		}
		return nil
	})
	log.Printf("Resolved the paths of %d annotation files", n)
	return err
}

// resolveVOCPath rewrites the file at path with its <path> field set to the file's absolute path.
func resolveVOCPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	enc, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	out, err := replaceVOCPath(enc, absPath)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, out)
}

// replaceVOCPath re-encodes the XML document enc with the text of the top-level <path> element
// replaced by newPath. The element is added if it is missing. Everything else is copied token by
// token, whitespace between elements verbatim.
func replaceVOCPath(enc []byte, newPath string) ([]byte, error) {
	d := xml.NewDecoder(bytes.NewReader(enc))
	var buf bytes.Buffer
	e := xml.NewEncoder(&buf)

	depth := 0
	inPath := false
	replaced := false

	for {
		tok, err := d.RawToken()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 && t.Name.Local != "annotation" {
				return nil, fmt.Errorf("unexpected root element <%s>", t.Name.Local)
			}
			if depth == 2 && t.Name.Local == "path" {
				inPath = true
				replaced = true
				if err := e.EncodeToken(t); err != nil {
					return nil, err
				}
				if err := e.EncodeToken(xml.CharData(newPath)); err != nil {
					return nil, err
				}
				continue
			}
		case xml.EndElement:
			if depth == 2 && inPath {
				inPath = false
			} else if depth == 1 && !replaced {
				pathElem := xml.StartElement{Name: xml.Name{Local: "path"}}
				for _, tok := range []xml.Token{pathElem, xml.CharData(newPath), pathElem.End()} {
					if err := e.EncodeToken(tok); err != nil {
						return nil, err
					}
				}
				replaced = true
			}
			depth--
		}

		// Drop the old content of <path>.
		if inPath {
			continue
		}
		// Indentation is copied as is, the encoder would escape tabs.
		if cd, ok := tok.(xml.CharData); ok && len(bytes.Trim(cd, " \t\r\n")) == 0 {
			if err := e.Flush(); err != nil {
				return nil, err
			}
			buf.Write(cd)
			continue
		}
		if err := e.EncodeToken(xml.CopyToken(tok)); err != nil {
			return nil, err
		}
	}

	// Close also fails on unclosed elements.
	if err := e.Close(); err != nil {
		return nil, err
	}
	if !replaced {
		return nil, errors.New("missing <annotation> element")
	}
	return buf.Bytes(), nil
}

