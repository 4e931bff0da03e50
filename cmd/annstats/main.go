// Prints statistics about the Pascal VOC XML annotations in the given folders.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/sensorable/yolotv"
)

func main() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
		_, _ = fmt.Fprintf(os.Stderr, "  %s [options] <folder> [<folder>...]\n\n",
			filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	recursive := flag.Bool("r", false, "Parse the folders recursively")
	labelList := flag.String("labels", "", "Comma-separated list of labels to parse")
	showEmpty := flag.Bool("show-empty", false,
		"Include annotations without boxes when -labels is given")
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	var allowed yolotv.LabelSet
	if *labelList != "" {
		allowed = yolotv.NewLabelSet(strings.Split(*labelList, ",")...)
	}

	data, err := yolotv.ParseVOCFolders(flag.Args(), *recursive, allowed)
	if err != nil {
		log.Fatal("Failed to parse the input: ", err)
	}
	if allowed != nil && !*showEmpty {
		data.RemoveEmpty()
	}

	if err := data.Statistics().WriteTable(os.Stdout); err != nil {
		log.Fatal(err)
	}
}
