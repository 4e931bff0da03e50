package yolotv

// TFRecord object detection output for an exported dataset.

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang/protobuf/proto"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	tensorflow "github.com/ryszard/tfutils/proto/tensorflow/core/example"
)

// TFRecord output names under the export directory.
const (
	TrainRecord  = "train.record"
	ValRecord    = "val.record"
	LabelMapFile = "label_map.pbtxt"
)

// TFFeatureMap maps feature names to their values. Values must be convertible to
// tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// toTFRecord builds the TensorFlow object detection features for an exported entry, reading the
// image from its destination path. Class IDs start at 1, as 0 is reserved for the background.
func toTFRecord(e *ExportEntry, labels []string) (TFFeatureMap, error) {
	// Get the width and height of the exported (possibly resized) image.
	img, format, err := decodeImageConfig(e.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to decode the image metadata: %w", err)
	}

	imgData, err := os.ReadFile(e.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read the image: %w", err)
	}

	f := make(TFFeatureMap, 16)
	f["image/height"] = img.Height
	f["image/width"] = img.Width
	f["image/filename"] = e.Name
	f["image/source_id"] = e.Source
	f["image/encoded"] = imgData
	f["image/format"] = format

	// Coordinates are relative, so they are the same for the source and the resized image.
	a := e.annotation
	numBoxes := len(a.Boxes)
	xmins := make([]float32, numBoxes)
	ymins := make([]float32, numBoxes)
	xmaxs := make([]float32, numBoxes)
	ymaxs := make([]float32, numBoxes)
	classes := make([]string, numBoxes)
	classIDs := make([]int64, numBoxes)
	w, h := float64(a.ImageSize.Width), float64(a.ImageSize.Height)
	for i, b := range a.Boxes {
		x1, y1, x2, y2 := b.Corners()
		xmins[i] = float32(x1 / w)
		ymins[i] = float32(y1 / h)
		xmaxs[i] = float32(x2 / w)
		ymaxs[i] = float32(y2 / h)

		idx, err := strconv.Atoi(b.Label)
		if err != nil || idx < 0 || idx >= len(labels) {
			return nil, fmt.Errorf("box label %q is not a class index", b.Label)
		}
		classes[i] = labels[idx]
		classIDs[i] = int64(idx + 1)
	}
	f["image/object/bbox/xmin"] = xmins
	f["image/object/bbox/ymin"] = ymins
	f["image/object/bbox/xmax"] = xmaxs
	f["image/object/bbox/ymax"] = ymaxs
	f["image/object/class/text"] = classes
	f["image/object/class/label"] = classIDs

	return f, nil
}

// WriteTFRecords writes the entries of an export result to TrainRecord and ValRecord in saveDir,
// in index order, and the class names to LabelMapFile.
func WriteTFRecords(saveDir string, result *ExportResult) (err error) {
	// example.New panics on feature values it cannot convert.
	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("conversion to TensorFlow Example failed: %v", e)
		}
	}()

	for _, split := range []Split{Train, Val} {
		name := TrainRecord
		if split == Val {
			name = ValRecord
		}

		path := filepath.Join(saveDir, name)
		err := replaceFile(path, func(w io.Writer) error {
			bw := bufio.NewWriter(w)
			for i := range result.Entries {
				e := &result.Entries[i]
				if e.Split != split {
					continue
				}
				features, err := toTFRecord(e, result.Labels)
				if err != nil {
					return fmt.Errorf("failed to convert %q: %w", e.ImagePath, err)
				}
				if err := writeTFRecordExample(bw, example.New(features)); err != nil {
					return err
				}
			}
			return bw.Flush()
		})
		if err != nil {
			return fmt.Errorf("failed to write %q: %w", path, err)
		}
	}

	return saveTFRecordLabelMap(filepath.Join(saveDir, LabelMapFile), result.Labels)
}

// writeTFRecordExample serialises the example and writes it as a TFRecord to w.
func writeTFRecordExample(w io.Writer, e *tensorflow.Example) error {
	enc, err := proto.Marshal(e)
	if err != nil {
		return err
	}

	return tfrecord.Write(w, enc)
}

// saveTFRecordLabelMap writes the labels as a StringIntLabelMap in prototxt format to path. The ID
// of a label is its class index plus one.
func saveTFRecordLabelMap(path string, labels []string) error {
	var sb strings.Builder
	for i, l := range labels {
		fmt.Fprintf(&sb, "item {\n  name: %s\n  id: %d\n}\n", strconv.Quote(l), i+1)
	}

	if err := writeFileAtomic(path, []byte(sb.String())); err != nil {
		return fmt.Errorf("failed to write the label map %q: %w", path, err)
	}
	return nil
}
