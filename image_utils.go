package yolotv

import (
	"image"
	"math"
	"os"

	"github.com/disintegration/imaging"
)

// ImageSizer reports the pixel dimensions of an image file.
type ImageSizer interface {
	ImageSize(path string) (ImageSize, error)
}

// DecodeConfigSizer reads image dimensions from the image header with image.DecodeConfig.
type DecodeConfigSizer struct{}

// ImageSize implements ImageSizer.
func (DecodeConfigSizer) ImageSize(path string) (ImageSize, error) {
	config, _, err := decodeImageConfig(path)
	if err != nil {
		return ImageSize{}, err
	}
	return ImageSize{Width: config.Width, Height: config.Height}, nil
}

// ResizeOptions control the optional resampling of exported images.
type ResizeOptions struct {
	LongerSide  int // Target length of the longer side; zero keeps the aspect ratio.
	ShorterSide int // Target length of the shorter side; zero keeps the aspect ratio.
	JPEGQuality int // In [1, 100].
}

// enabled reports whether images are to be resized.
func (o ResizeOptions) enabled() bool {
	return o.LongerSide > 0 || o.ShorterSide > 0
}

// resizeImage resamples the image to match the longer and shorter sides (one may be 0).
//
// Box filtering is used for downsampling and linear filtering for upsampling.
func resizeImage(img image.Image, longerSide, shorterSide int) image.Image {
	imgBounds := img.Bounds()
	imgWidth := imgBounds.Dx()
	imgHeight := imgBounds.Dy()

	imgLonger := imgWidth
	imgShorter := imgHeight
	isLandscape := true
	if imgHeight > imgWidth {
		imgLonger = imgHeight
		imgShorter = imgWidth
		isLandscape = false
	}

	// Calculate the target dimensions.
	if longerSide <= 0 {
		longerSide = int(math.Round(float64(shorterSide) * (float64(imgLonger) / float64(imgShorter))))
	} else if shorterSide <= 0 {
		shorterSide = int(math.Round(float64(longerSide) * (float64(imgShorter) / float64(imgLonger))))
	}

	// Select the filter based on the direction of the rescaling operation.
	filter := imaging.Linear
	if longerSide*shorterSide < imgWidth*imgHeight {
		filter = imaging.Box
	}

	if isLandscape {
		return imaging.Resize(img, longerSide, shorterSide, filter)
	}
	return imaging.Resize(img, shorterSide, longerSide, filter)
}

// resizeImageFile loads the image at src, resizes it and encodes it to dst. The encoding is
// selected by the file extension of dst.
func resizeImageFile(src, dst string, opts ResizeOptions) error {
	img, err := imaging.Open(src)
	if err != nil {
		return err
	}
	img = resizeImage(img, opts.LongerSide, opts.ShorterSide)

	quality := opts.JPEGQuality
	if quality < 1 || quality > 100 {
		quality = 95
	}
	tmp := tempPath(dst)
	if err := imaging.Save(img, tmp, imaging.JPEGQuality(quality)); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// decodeImageConfig opens the file at path and returns the results of image.DecodeConfig.
func decodeImageConfig(path string) (config image.Config, format string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return image.Config{}, "", err
	}
	defer file.Close()

	return image.DecodeConfig(file)
}
