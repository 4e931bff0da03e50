package yolotv

import (
	"image"
	"testing"

	"github.com/disintegration/imaging"
)

func TestResizeImage(t *testing.T) {
	testCases := []struct {
		name                    string
		width, height           int
		longerSide, shorterSide int
		wantWidth, wantHeight   int
	}{
		{"landscape longer", 200, 100, 50, 0, 50, 25},
		{"portrait longer", 100, 200, 50, 0, 25, 50},
		{"landscape shorter", 300, 100, 0, 20, 60, 20},
		{"portrait both", 100, 300, 40, 30, 30, 40},
		{"upsampling", 10, 20, 0, 30, 30, 60},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			img := imaging.New(tc.width, tc.height, image.White)
			got := resizeImage(img, tc.longerSide, tc.shorterSide).Bounds()
			if got.Dx() != tc.wantWidth || got.Dy() != tc.wantHeight {
				t.Errorf("resizeImage() size = %dx%d, want %dx%d", got.Dx(), got.Dy(), tc.wantWidth,
					tc.wantHeight)
			}
		})
	}
}

func TestDecodeConfigSizer(t *testing.T) {
	path := pngFixture(t, t.TempDir(), "im.png", 7, 3)
	size, err := DecodeConfigSizer{}.ImageSize(path)
	if err != nil {
		t.Fatal(err)
	}
	if size != (ImageSize{Width: 7, Height: 3}) {
		t.Errorf("ImageSize() = %+v, want 7x3", size)
	}

	if _, err := (DecodeConfigSizer{}).ImageSize(path + ".missing"); err == nil {
		t.Error("ImageSize() of a missing file succeeded")
	}
}
