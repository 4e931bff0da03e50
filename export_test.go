package yolotv

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/golang/protobuf/proto"
	tensorflow "github.com/ryszard/tfutils/proto/tensorflow/core/example"
)

// exportFixture creates n source images in a temporary directory and returns annotations for
// them. Image i has one box labelled labels[i%len(labels)], or no box if labels is empty.
func exportFixture(t *testing.T, n int, labels ...string) Annotations {
	t.Helper()
	dir := t.TempDir()

	data := make(Annotations, n)
	for i := range data {
		path := filepath.Join(dir, fmt.Sprintf("src_%02d.jpg", i))
		writeTestFile(t, path, fmt.Sprintf("image %d", i))

		data[i] = Annotation{ImagePath: path, ImageSize: ImageSize{Width: 100, Height: 50}}
		if len(labels) > 0 {
			data[i].Boxes = []Box{NewBox(labels[i%len(labels)], 0, 0, 10, 10)}
		}
	}
	return data
}

func testExportOptions(t *testing.T) ExportOptions {
	opts := DefaultExportOptions()
	opts.SaveDir = filepath.Join(t.TempDir(), "out")
	opts.Shuffle = false
	opts.Workers = 3
	return opts
}

func readTestFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func assertNotExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("%q exists (err = %v), want it absent", path, err)
	}
}

func TestExportSplit(t *testing.T) {
	data := exportFixture(t, 10, "b", "a")
	opts := testExportOptions(t)

	result, err := Export(context.Background(), data, opts)
	if err != nil {
		t.Fatal(err)
	}

	var wantTrain, wantVal []string
	for i := 0; i < 10; i++ {
		split := TrainDir
		if i >= 8 {
			split = ValDir
		}
		line := filepath.Join("data", split, fmt.Sprintf("im_%06d.jpg", i))
		if i < 8 {
			wantTrain = append(wantTrain, line)
		} else {
			wantVal = append(wantVal, line)
		}
	}

	if got := readTestFile(t, filepath.Join(opts.SaveDir, TrainManifest)); got != strings.Join(wantTrain, "\n") {
		t.Errorf("train manifest = %q, want %q", got, strings.Join(wantTrain, "\n"))
	}
	if got := readTestFile(t, filepath.Join(opts.SaveDir, ValManifest)); got != strings.Join(wantVal, "\n") {
		t.Errorf("val manifest = %q, want %q", got, strings.Join(wantVal, "\n"))
	}
	if !reflect.DeepEqual(result.Train, wantTrain) || !reflect.DeepEqual(result.Val, wantVal) {
		t.Errorf("result manifests = %v / %v", result.Train, result.Val)
	}

	// Labels are sorted, so "a" is class 0 and "b" is class 1.
	if got := readTestFile(t, filepath.Join(opts.SaveDir, NamesFile)); got != "a\nb" {
		t.Errorf("names = %q, want %q", got, "a\nb")
	}
	for i := 0; i < 10; i++ {
		split := TrainDir
		if i >= 8 {
			split = ValDir
		}
		base := filepath.Join(opts.SaveDir, split, fmt.Sprintf("im_%06d", i))

		if got, want := readTestFile(t, base+".jpg"), fmt.Sprintf("image %d", i); got != want {
			t.Errorf("%s.jpg = %q, want %q", base, got, want)
		}
		class := "1"
		if i%2 == 1 {
			class = "0"
		}
		if got, want := readTestFile(t, base+".txt"), class+" 0.05 0.1 0.1 0.2"; got != want {
			t.Errorf("%s.txt = %q, want %q", base, got, want)
		}
	}

	// The labels of the input are replaced by their class index.
	if data[0].Boxes[0].Label != "1" || data[1].Boxes[0].Label != "0" {
		t.Errorf("input labels = %q, %q, want 1, 0", data[0].Boxes[0].Label, data[1].Boxes[0].Label)
	}
}

func TestExportRatioBounds(t *testing.T) {
	testCases := []struct {
		ratio            float64
		numTrain, numVal int
	}{
		{0, 0, 3},
		{1, 3, 0},
		{0.5, 1, 2},
		{0.99, 2, 1},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprint(tc.ratio), func(t *testing.T) {
			opts := testExportOptions(t)
			opts.TrainRatio = tc.ratio

			result, err := Export(context.Background(), exportFixture(t, 3, "a"), opts)
			if err != nil {
				t.Fatal(err)
			}
			if len(result.Train) != tc.numTrain || len(result.Val) != tc.numVal {
				t.Errorf("got %d train and %d val images, want %d and %d", len(result.Train),
					len(result.Val), tc.numTrain, tc.numVal)
			}

			for _, e := range result.Entries {
				if _, err := os.Stat(e.ImagePath); err != nil {
					t.Error(err)
				}
			}
			train := readTestFile(t, filepath.Join(opts.SaveDir, TrainManifest))
			if (train == "") != (tc.numTrain == 0) {
				t.Errorf("train manifest = %q", train)
			}
		})
	}
}

func TestExportEmptyAnnotation(t *testing.T) {
	data := exportFixture(t, 1)
	opts := testExportOptions(t)
	opts.TrainRatio = 1

	if _, err := Export(context.Background(), data, opts); err != nil {
		t.Fatal(err)
	}
	if got := readTestFile(t, filepath.Join(opts.SaveDir, TrainDir, "im_000000.txt")); got != "" {
		t.Errorf("label file = %q, want it empty", got)
	}
	if got := readTestFile(t, filepath.Join(opts.SaveDir, NamesFile)); got != "" {
		t.Errorf("names = %q, want it empty", got)
	}
}

func TestExportShuffleIsReproducible(t *testing.T) {
	data := exportFixture(t, 10, "a")
	reversed := make(Annotations, len(data))
	for i := range data {
		reversed[len(data)-1-i] = data[i].Clone()
	}

	sources := func(data Annotations) []string {
		opts := testExportOptions(t)
		opts.Shuffle = true
		opts.Seed = 42

		result, err := Export(context.Background(), data, opts)
		if err != nil {
			t.Fatal(err)
		}
		s := make([]string, len(result.Entries))
		for i, e := range result.Entries {
			s[i] = e.Source
		}
		return s
	}

	first := sources(data)
	second := sources(reversed)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("the same seed gave different orders:\n%v\n%v", first, second)
	}

	seen := NewLabelSet(first...)
	for _, p := range data.ImagePaths() {
		if !seen.Contains(p) {
			t.Errorf("%q is missing from the shuffled export", p)
		}
	}
}

func TestExportLabelOrder(t *testing.T) {
	data := exportFixture(t, 2, "a", "b")
	opts := testExportOptions(t)
	opts.TrainRatio = 1
	opts.Labels = []string{"b", "a"}

	result, err := Export(context.Background(), data, opts)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(result.Labels, []string{"b", "a"}) {
		t.Errorf("Labels = %v, want [b a]", result.Labels)
	}
	if got := readTestFile(t, filepath.Join(opts.SaveDir, NamesFile)); got != "b\na" {
		t.Errorf("names = %q, want %q", got, "b\na")
	}
	// The first image is labelled "a", which is the second class.
	if got := readTestFile(t, result.Entries[0].LabelPath); !strings.HasPrefix(got, "1 ") {
		t.Errorf("label file = %q, want class 1", got)
	}
}

func TestExportRejectsBeforeWriting(t *testing.T) {
	testCases := []struct {
		name    string
		modify  func(*ExportOptions)
		wantErr error
	}{
		{"ratio below 0", func(o *ExportOptions) { o.TrainRatio = -0.5 }, ErrInvalidRatio},
		{"ratio above 1", func(o *ExportOptions) { o.TrainRatio = 1.5 }, ErrInvalidRatio},
		{"duplicate label", func(o *ExportOptions) { o.Labels = []string{"a", "b", "a"} },
			ErrDuplicateLabel},
		{"label without class", func(o *ExportOptions) { o.Labels = []string{"a"} },
			ErrMissingLabelMapping},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data := exportFixture(t, 4, "a", "b")
			opts := testExportOptions(t)
			tc.modify(&opts)

			if _, err := Export(context.Background(), data, opts); !errors.Is(err, tc.wantErr) {
				t.Fatalf("Export() error = %v, want %v", err, tc.wantErr)
			}
			assertNotExist(t, opts.SaveDir)
			if got := boxLabels(data[1].Boxes); !reflect.DeepEqual(got, []string{"b"}) {
				t.Errorf("input labels changed to %v", got)
			}
		})
	}
}

func TestExportOutputExists(t *testing.T) {
	opts := testExportOptions(t)
	if err := os.MkdirAll(opts.SaveDir, 0755); err != nil {
		t.Fatal(err)
	}

	data := exportFixture(t, 2, "a")
	_, err := Export(context.Background(), data, opts)
	if !errors.Is(err, ErrOutputExists) {
		t.Fatalf("Export() error = %v, want ErrOutputExists", err)
	}
	if got := boxLabels(data[0].Boxes); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("input labels changed to %v", got)
	}
	entries, err := os.ReadDir(opts.SaveDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("Export() created %d entries in the existing directory", len(entries))
	}

	opts.Overwrite = true
	if _, err := Export(context.Background(), data, opts); err != nil {
		t.Errorf("Export() with Overwrite error = %v", err)
	}
}

func TestExportMissingSourceImage(t *testing.T) {
	data := exportFixture(t, 5, "a")
	if err := os.Remove(data[2].ImagePath); err != nil {
		t.Fatal(err)
	}
	opts := testExportOptions(t)

	if _, err := Export(context.Background(), data, opts); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Export() error = %v, want a not exist error", err)
	}
	for _, name := range []string{TrainManifest, ValManifest, NamesFile} {
		assertNotExist(t, filepath.Join(opts.SaveDir, name))
	}
	assertNotExist(t, filepath.Join(opts.SaveDir, TrainDir, "im_000002.txt"))
}

func TestExportCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts := testExportOptions(t)

	_, err := Export(ctx, exportFixture(t, 5, "a"), opts)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Export() error = %v, want context.Canceled", err)
	}
	for _, name := range []string{TrainManifest, ValManifest, NamesFile} {
		assertNotExist(t, filepath.Join(opts.SaveDir, name))
	}
	entries, err := os.ReadDir(filepath.Join(opts.SaveDir, TrainDir))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("a cancelled export wrote %d files", len(entries))
	}
}

// pngFixture writes a width x height PNG image to dir and returns its path.
func pngFixture(t *testing.T, dir, name string, width, height int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	img := imaging.New(width, height, color.NRGBA{R: 40, G: 160, B: 60, A: 255})
	if err := imaging.Save(img, path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExportResize(t *testing.T) {
	dir := t.TempDir()
	data := Annotations{{
		ImagePath: pngFixture(t, dir, "wide.png", 80, 40),
		ImageSize: ImageSize{Width: 80, Height: 40},
		Boxes:     []Box{NewBox("a", 0, 0, 40, 20)},
	}}
	opts := testExportOptions(t)
	opts.TrainRatio = 1
	opts.Resize.LongerSide = 20

	result, err := Export(context.Background(), data, opts)
	if err != nil {
		t.Fatal(err)
	}

	e := result.Entries[0]
	size, err := DecodeConfigSizer{}.ImageSize(e.ImagePath)
	if err != nil {
		t.Fatal(err)
	}
	if size != (ImageSize{Width: 20, Height: 10}) {
		t.Errorf("exported image size = %+v, want 20x10", size)
	}
	// Relative coordinates do not change with the image size.
	if got := readTestFile(t, e.LabelPath); got != "0 0.25 0.25 0.5 0.5" {
		t.Errorf("label file = %q", got)
	}
}

// readTFRecords returns the examples of a TFRecord file. Checksums are not verified.
func readTFRecords(t *testing.T, path string) []*tensorflow.Example {
	t.Helper()
	enc := []byte(readTestFile(t, path))

	var examples []*tensorflow.Example
	for len(enc) > 0 {
		if len(enc) < 12 {
			t.Fatalf("truncated record header in %q", path)
		}
		n := int(binary.LittleEndian.Uint64(enc))
		enc = enc[12:]
		if len(enc) < n+4 {
			t.Fatalf("truncated record in %q", path)
		}

		ex := &tensorflow.Example{}
		if err := proto.Unmarshal(enc[:n], ex); err != nil {
			t.Fatal(err)
		}
		examples = append(examples, ex)
		enc = enc[n+4:]
	}
	return examples
}

func TestExportTFRecord(t *testing.T) {
	dir := t.TempDir()
	data := Annotations{
		{
			ImagePath: pngFixture(t, dir, "1.png", 20, 10),
			ImageSize: ImageSize{Width: 20, Height: 10},
			Boxes:     []Box{NewBox("stem", 0, 0, 10, 5), NewBox("leaf", 10, 5, 20, 10)},
		},
		{
			ImagePath: pngFixture(t, dir, "2.png", 10, 10),
			ImageSize: ImageSize{Width: 10, Height: 10},
		},
	}
	opts := testExportOptions(t)
	opts.TrainRatio = 0.5
	opts.TFRecord = true

	if _, err := Export(context.Background(), data, opts); err != nil {
		t.Fatal(err)
	}

	train := readTFRecords(t, filepath.Join(opts.SaveDir, TrainRecord))
	val := readTFRecords(t, filepath.Join(opts.SaveDir, ValRecord))
	if len(train) != 1 || len(val) != 1 {
		t.Fatalf("got %d train and %d val records, want 1 and 1", len(train), len(val))
	}

	features := train[0].Features.Feature
	if got := features["image/filename"].GetBytesList().Value; len(got) != 1 ||
			string(got[0]) != "im_000000.png" {
		t.Errorf("image/filename = %q, want im_000000.png", got)
	}
	if got := features["image/object/class/label"].GetInt64List().Value; !reflect.DeepEqual(got,
		[]int64{2, 1}) {
		t.Errorf("image/object/class/label = %v, want [2 1]", got)
	}
	if got := features["image/object/bbox/xmax"].GetFloatList().Value; !reflect.DeepEqual(got,
		[]float32{0.5, 1}) {
		t.Errorf("image/object/bbox/xmax = %v, want [0.5 1]", got)
	}

	wantMap := "item {\n  name: \"leaf\"\n  id: 1\n}\nitem {\n  name: \"stem\"\n  id: 2\n}\n"
	if got := readTestFile(t, filepath.Join(opts.SaveDir, LabelMapFile)); got != wantMap {
		t.Errorf("label map = %q, want %q", got, wantMap)
	}
}
