// Builds a darknet (YOLO) train/val dataset from Pascal VOC XML annotations.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sensorable/yolotv"
	"github.com/sensorable/yolotv/internal/config"
)

var (
	folders      []string // The input folders with XML annotations.
	recursive    bool     // Search the input folders recursively.
	resolvePaths bool     // Rewrite the <path> field of the XML files before parsing.
	noObjDir     string   // A folder with background images without annotations.
	imageExt     string   // The image extension in noObjDir.

	labels      []string          // The labels to keep, in class order (empty keeps all).
	labelMap    yolotv.LabelMap   // Label translations applied before the export.
	removeEmpty bool              // Drop annotations without boxes.
	normLabels  yolotv.LabelSet   // The labels to turn into squares.
	normAll     bool              // Turn all boxes into squares.
	normRatio   float64           // The square side as a fraction of the shorter image side.
	exportOpts  yolotv.ExportOptions
)

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
		_, _ = fmt.Fprintf(os.Stderr, "  %s [options] <folder> [<folder>...]\n\n",
			filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}

	printUsageAndExit := func(msg ...interface{}) {
		log.Print(msg...)
		flag.Usage()
		os.Exit(1)
	}

	config.LoadEnvFile(".env")
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	exportOpts = yolotv.DefaultExportOptions()

	// Input arguments.
	flag.BoolVar(&recursive, "r", false, "Parse the folders recursively")
	flag.BoolVar(&resolvePaths, "resolve-paths", false,
		"Set the path field of the XML files to their current location before parsing")
	flag.StringVar(&noObjDir, "noobj-dir", "",
		"A `folder` of background images; empty annotations are created for them and added"+
				" to the dataset")
	flag.StringVar(&imageExt, "image-ext", cfg.ImageExt,
		"The image file `extension` in -noobj-dir")

	// Transformation arguments.
	labelList := flag.String("labels", "",
		"Comma-separated list of labels to keep, in class order (default: all labels, sorted)")
	mappings := flag.String("map-labels", "",
		"Comma-separated list of old=new label translations; must cover every label")
	flag.BoolVar(&removeEmpty, "remove-empty", false, "Do not use annotations without boxes")
	norm := flag.String("norm", "",
		"Comma-separated list of labels to normalize to square boxes, or \"*\" for all labels")
	flag.Float64Var(&normRatio, "norm-ratio", cfg.NormRatio,
		"The side length of square boxes as a `fraction` of the shorter image side")

	// Output arguments.
	flag.StringVar(&exportOpts.SaveDir, "save-dir", cfg.SaveDir,
		"The `path` where to create the dataset")
	flag.StringVar(&exportOpts.Prefix, "prefix", cfg.Prefix,
		"The path `prefix` of the image paths in train.txt and val.txt")
	flag.Float64Var(&exportOpts.TrainRatio, "train-ratio", cfg.TrainRatio,
		"The `fraction` of images in the training set")
	noShuffle := flag.Bool("no-shuffle", false, "Keep the parse order instead of shuffling")
	flag.Int64Var(&exportOpts.Seed, "seed", cfg.Seed, "The shuffle `seed`")
	flag.BoolVar(&exportOpts.Overwrite, "overwrite", false,
		"Allow writing into an existing dataset directory")
	flag.IntVar(&exportOpts.Workers, "workers", cfg.Workers, "The number of concurrent writers")
	flag.IntVar(&exportOpts.Resize.LongerSide, "resize-longer", 0,
		"The target `length` for the longer side of exported images (0 keeps the aspect ratio)")
	flag.IntVar(&exportOpts.Resize.ShorterSide, "resize-shorter", 0,
		"The target `length` for the shorter side of exported images (0 keeps the aspect ratio)")
	flag.IntVar(&exportOpts.Resize.JPEGQuality, "jpeg-quality", 95,
		"The quality to use when re-encoding resized JPEGs [1, 100]")
	flag.BoolVar(&exportOpts.TFRecord, "tfrecord", false,
		"Also write train.record, val.record and label_map.pbtxt")

	flag.Parse()

	folders = flag.Args()
	if len(folders) == 0 {
		printUsageAndExit("Missing input folders")
	}
	for i, f := range folders {
		folders[i] = filepath.Clean(f)
	}

	if *labelList != "" {
		labels = strings.Split(*labelList, ",")
	}
	if *mappings != "" {
		labelMap = make(yolotv.LabelMap)
		for _, m := range strings.Split(*mappings, ",") {
			a := strings.Split(m, "=")
			if len(a) != 2 {
				printUsageAndExit("Invalid value in -map-labels: ", m)
			}
			labelMap[a[0]] = a[1]
		}
	}

	switch *norm {
	case "":
	case "*":
		normAll = true
	default:
		normLabels = yolotv.NewLabelSet(strings.Split(*norm, ",")...)
	}

	// Ratios are validated by the library too, but fail early before touching any file.
	if exportOpts.TrainRatio < 0 || exportOpts.TrainRatio > 1 {
		printUsageAndExit("Invalid -train-ratio, must be in [0, 1]: ", exportOpts.TrainRatio)
	}
	if normRatio < 0 || normRatio > 1 {
		printUsageAndExit("Invalid -norm-ratio, must be in [0, 1]: ", normRatio)
	}
	exportOpts.Shuffle = !*noShuffle
	exportOpts.SaveDir = filepath.Clean(exportOpts.SaveDir)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if resolvePaths {
		if err := yolotv.ResolveVOCPaths(ctx, folders, recursive, exportOpts.Workers); err != nil {
			log.Fatal("Failed to resolve the XML paths: ", err)
		}
	}

	// Parse input.
	data, err := yolotv.ParseVOCFolders(folders, recursive, yolotv.NewLabelSet(labels...))
	if err != nil {
		log.Fatal("Failed to parse the input: ", err)
	}
	if removeEmpty {
		data.RemoveEmpty()
	}

	// Add background images.
	if noObjDir != "" {
		if _, err := yolotv.CreateEmptyVOC(noObjDir, imageExt, yolotv.DecodeConfigSizer{}); err != nil {
			log.Fatal("Failed to create empty annotations: ", err)
		}
		noObj, err := yolotv.ParseVOCFolder(noObjDir, false, nil)
		if err != nil {
			log.Fatal("Failed to parse the background images: ", err)
		}
		data.Append(noObj...)
	}

	if err := data.Statistics().WriteTable(os.Stdout); err != nil {
		log.Print("Failed to print the statistics: ", err)
	}

	// Perform transformations.
	if normAll || normLabels != nil {
		if err := data.SquareBoxes(normRatio, normLabels); err != nil {
			log.Fatal("Failed to normalize boxes: ", err)
		}
	}
	if labelMap != nil {
		if err := data.MapLabels(labelMap.Lookup); err != nil {
			log.Fatal("Failed to map labels: ", err)
		}
	}

	// The class order follows -labels, translated by -map-labels.
	if labels != nil {
		exportOpts.Labels = make([]string, len(labels))
		for i, l := range labels {
			exportOpts.Labels[i] = l
			if labelMap != nil {
				mapped, ok := labelMap.Lookup(l)
				if !ok {
					log.Fatalf("Failed to map labels: -map-labels has no mapping for %q", l)
				}
				exportOpts.Labels[i] = mapped
			}
		}
	}

	if _, err := yolotv.Export(ctx, data, exportOpts); err != nil {
		log.Fatal("Export failed: ", err)
	}

	log.Print("Total number of exported images: ", len(data))
}
