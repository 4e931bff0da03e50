package yolotv

// Darknet train/val dataset export.

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// DefaultSeed is the shuffle seed used when ExportOptions.Rand is nil.
const DefaultSeed int64 = 149843046101

// Output names under ExportOptions.SaveDir.
const (
	TrainDir      = "train"
	ValDir        = "val"
	TrainManifest = "train.txt"
	ValManifest   = "val.txt"
	NamesFile     = "obj.names"
)

// ExportOptions configure Export.
type ExportOptions struct {
	SaveDir    string   // The output directory.
	Prefix     string   // Path prefix for the entries of the train and val manifests.
	Labels     []string // The label order for obj.names; nil sorts the labels found in the data.
	TrainRatio float64  // The fraction of annotations in the training split, in [0, 1].
	Shuffle    bool     // Shuffle the annotations before splitting.
	Seed       int64    // The shuffle seed, used if Rand is nil.
	Rand       *rand.Rand
	Overwrite  bool // Allow writing into existing output directories.
	Workers    int  // The number of concurrent export units; <= 0 uses runtime.NumCPU().
	Resize     ResizeOptions
	TFRecord   bool // Also write train.record, val.record and label_map.pbtxt.
}

// DefaultExportOptions returns the options Export was designed around.
func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		SaveDir:    "yolo_trainval",
		Prefix:     "data/",
		TrainRatio: 0.8,
		Shuffle:    true,
		Seed:       DefaultSeed,
		Workers:    runtime.NumCPU(),
		Resize:     ResizeOptions{JPEGQuality: 95},
	}
}

// Split identifies the training or the validation subset.
type Split int

// The dataset splits.
const (
	Train Split = iota
	Val
)

// Dir is the output subdirectory of the split.
func (s Split) Dir() string {
	if s == Train {
		return TrainDir
	}
	return ValDir
}

// ExportEntry is the planned output of one annotation.
type ExportEntry struct {
	Index     int
	Split     Split
	Name      string // The image file name, e.g. "im_000042.jpg".
	Source    string // The source image path.
	ImagePath string // The destination image path.
	LabelPath string // The destination label file path.
	LabelText string

	annotation *Annotation
}

// ExportResult describes a completed export.
type ExportResult struct {
	Labels  []string // Class names, in class index order.
	Entries []ExportEntry
	Train   []string // Lines of the train manifest.
	Val     []string // Lines of the val manifest.
}

// Export writes data as a darknet training dataset to opts.SaveDir:
//
//	train/im_000000.<ext>, train/im_000000.txt, ...
//	val/im_<n>.<ext>, val/im_<n>.txt, ...
//	train.txt, val.txt  image paths (opts.Prefix/<split>/<name>), one per line
//	obj.names           class names, one per line
//
// The labels of data are replaced by their class index as a string. The class index is the
// position of the label in opts.Labels, or in the sorted labels of data if opts.Labels is nil.
//
// If opts.Shuffle is set, the annotations are sorted by image path and then shuffled with
// opts.Rand, or with a generator seeded by opts.Seed. The first floor(TrainRatio*len(data))
// annotations form the training split. Output names are assigned from this order before any file
// is written, so they do not depend on the order in which the concurrent writes complete.
//
// Nothing is written if the options are invalid, a label has no class, or the output directories
// exist and opts.Overwrite is false. In these cases the labels of data are not changed either.
// Each annotation's image and label file are written as a unit
// that is not interrupted by cancelling ctx: once ctx is done, no more units are started and Export
// returns without writing the manifests. A failing unit (e.g. a missing source image) aborts the
// export the same way.
func Export(ctx context.Context, data Annotations, opts ExportOptions) (*ExportResult, error) {
	if err := checkRatio("train ratio", opts.TrainRatio); err != nil {
		return nil, err
	}

	labels, err := exportLabels(data, opts.Labels)
	if err != nil {
		return nil, err
	}
	saveDir := filepath.Clean(opts.SaveDir)
	if !opts.Overwrite {
		if err := checkOutputDirs(saveDir); err != nil {
			return nil, err
		}
	}

	classes := make(LabelMap, len(labels))
	for i, l := range labels {
		classes[l] = strconv.Itoa(i)
	}
	if err := data.MapLabels(classes.Lookup); err != nil {
		return nil, err
	}

	ordered := make(Annotations, len(data))
	copy(ordered, data)
	if opts.Shuffle {
		rng := opts.Rand
		if rng == nil {
			rng = rand.New(rand.NewSource(opts.Seed))
		}
		ordered.SortByImagePath()
		rng.Shuffle(len(ordered), func(i, j int) {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		})
	}

	result := planExport(ordered, saveDir, opts.Prefix, opts.TrainRatio)
	result.Labels = labels

	if err := createOutputDirs(saveDir); err != nil {
		return nil, err
	}

	log.Printf("Exporting %d training and %d validation images to %q", len(result.Train),
		len(result.Val), saveDir)
	n, err := runUnits(ctx, opts.Workers, len(result.Entries), func(i int) error {
		return exportEntry(&result.Entries[i], opts.Resize)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			log.Printf("Export interrupted after %d of %d images", n, len(result.Entries))
			return nil, fmt.Errorf("export interrupted: %w", err)
		}
		return nil, fmt.Errorf("export failed after %d of %d images: %w", n,
			len(result.Entries), err)
	}

	if err := writeManifests(saveDir, result); err != nil {
		return nil, err
	}

	if opts.TFRecord {
		if err := WriteTFRecords(saveDir, result); err != nil {
			return nil, err
		}
	}

	log.Printf("Successfully exported %d images with %d classes to %q", len(result.Entries),
		len(labels), saveDir)
	return result, nil
}

// exportLabels returns the class names in class index order.
func exportLabels(data Annotations, labels []string) ([]string, error) {
	if labels == nil {
		return data.Labels().Sorted(), nil
	}

	seen := make(LabelSet, len(labels))
	for _, l := range labels {
		if seen.Contains(l) {
			return nil, fmt.Errorf("label %q: %w", l, ErrDuplicateLabel)
		}
		seen[l] = struct{}{}
	}
	return append([]string(nil), labels...), nil
}

// planExport assigns the output paths of every annotation in ordered.
func planExport(ordered Annotations, saveDir, prefix string, trainRatio float64) *ExportResult {
	numTrain := int(math.Floor(trainRatio * float64(len(ordered))))
	result := &ExportResult{
		Entries: make([]ExportEntry, len(ordered)),
		Train:   make([]string, 0, numTrain),
		Val:     make([]string, 0, len(ordered)-numTrain),
	}

	for i := range ordered {
		a := &ordered[i]
		split := Val
		if i < numTrain {
			split = Train
		}

		baseName := fmt.Sprintf("im_%06d", i)
		name := baseName + filepath.Ext(a.ImagePath)
		dir := filepath.Join(saveDir, split.Dir())

		result.Entries[i] = ExportEntry{
			Index:      i,
			Split:      split,
			Name:       name,
			Source:     a.ImagePath,
			ImagePath:  filepath.Join(dir, name),
			LabelPath:  filepath.Join(dir, baseName+".txt"),
			LabelText:  a.YOLOText(false),
			annotation: a,
		}

		line := filepath.Join(prefix, split.Dir(), name)
		if split == Train {
			result.Train = append(result.Train, line)
		} else {
			result.Val = append(result.Val, line)
		}
	}

	return result
}

// outputDirs returns saveDir and its split subdirectories.
func outputDirs(saveDir string) []string {
	return []string{saveDir, filepath.Join(saveDir, TrainDir), filepath.Join(saveDir, ValDir)}
}

// checkOutputDirs returns ErrOutputExists if saveDir or one of its split subdirectories exists.
func checkOutputDirs(saveDir string) error {
	for _, dir := range outputDirs(saveDir) {
		if _, err := os.Stat(dir); err == nil {
			return fmt.Errorf("%q: %w", dir, ErrOutputExists)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// createOutputDirs creates saveDir and its split subdirectories.
func createOutputDirs(saveDir string) error {
	for _, dir := range outputDirs(saveDir) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("cannot create directory %q: %w", dir, err)
		}
	}
	return nil
}

// exportEntry writes the image and the label file of one entry. The image is written first, and
// removed again if the label file cannot be written, so that a failure leaves no unpaired file.
func exportEntry(e *ExportEntry, resize ResizeOptions) error {
	var err error
	if resize.enabled() {
		err = resizeImageFile(e.Source, e.ImagePath, resize)
	} else {
		err = copyFile(e.Source, e.ImagePath)
	}
	if err != nil {
		return fmt.Errorf("cannot export image %q: %w", e.Source, err)
	}

	if err := writeFileAtomic(e.LabelPath, []byte(e.LabelText)); err != nil {
		_ = os.Remove(e.ImagePath)
		return fmt.Errorf("cannot write labels for %q: %w", e.Source, err)
	}
	return nil
}

// writeManifests writes the train and val manifests and the class names file.
func writeManifests(saveDir string, result *ExportResult) error {
	files := []struct {
		name  string
		lines []string
	}{
		{TrainManifest, result.Train},
		{ValManifest, result.Val},
		{NamesFile, result.Labels},
	}
	for _, f := range files {
		path := filepath.Join(saveDir, f.name)
		if err := writeFileAtomic(path, []byte(strings.Join(f.lines, "\n"))); err != nil {
			return fmt.Errorf("cannot write %q: %w", path, err)
		}
	}
	return nil
}
