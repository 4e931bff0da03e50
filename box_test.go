package yolotv

import (
	"math"
	"testing"
)

const tolerance = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= tolerance
}

func TestBoxCornersAreOrderIndependent(t *testing.T) {
	testCases := []struct {
		name           string
		x1, y1, x2, y2 float64
	}{
		{"ordered", 10, 20, 30, 60},
		{"x swapped", 30, 20, 10, 60},
		{"y swapped", 10, 60, 30, 20},
		{"both swapped", 30, 60, 10, 20},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBox("a", tc.x1, tc.y1, tc.x2, tc.y2)

			xmin, ymin, xmax, ymax := b.Corners()
			if xmin != 10 || ymin != 20 || xmax != 30 || ymax != 60 {
				t.Errorf("Corners() = (%v, %v, %v, %v), want (10, 20, 30, 60)", xmin, ymin, xmax, ymax)
			}
			if w, h := b.Size(); w != 20 || h != 40 {
				t.Errorf("Size() = (%v, %v), want (20, 40)", w, h)
			}
			if x, y := b.Center(); x != 20 || y != 40 {
				t.Errorf("Center() = (%v, %v), want (20, 40)", x, y)
			}
		})
	}
}

func TestBoxShiftCenterTo(t *testing.T) {
	b := NewBox("a", 30, 60, 10, 20)
	b.ShiftCenterTo(105.5, -3.25)

	if x, y := b.Center(); !almostEqual(x, 105.5) || !almostEqual(y, -3.25) {
		t.Errorf("Center() = (%v, %v), want (105.5, -3.25)", x, y)
	}
	if w, h := b.Size(); !almostEqual(w, 20) || !almostEqual(h, 40) {
		t.Errorf("Size() = (%v, %v), want (20, 40)", w, h)
	}
}

func TestBoxFromCenter(t *testing.T) {
	b := BoxFromCenter("a", 50, 40, 20, 10)

	xmin, ymin, xmax, ymax := b.Corners()
	if xmin != 40 || ymin != 35 || xmax != 60 || ymax != 45 {
		t.Errorf("Corners() = (%v, %v, %v, %v), want (40, 35, 60, 45)", xmin, ymin, xmax, ymax)
	}
}

func TestBoxSquareNormalize(t *testing.T) {
	b := NewBox("stem", 98, 49, 102, 51)
	if err := b.SquareNormalize(15); err != nil {
		t.Fatal(err)
	}

	if w, h := b.Size(); w != 30 || h != 30 {
		t.Errorf("Size() = (%v, %v), want (30, 30)", w, h)
	}
	if x, y := b.Center(); x != 100 || y != 50 {
		t.Errorf("Center() = (%v, %v), want (100, 50)", x, y)
	}

	for _, h := range []float64{0, -1, math.NaN()} {
		if err := b.SquareNormalize(h); err == nil {
			t.Errorf("SquareNormalize(%v) succeeded, want error", h)
		}
	}
}

func TestBoxRelativeCoordsRoundTrip(t *testing.T) {
	size := ImageSize{Width: 640, Height: 480}
	boxes := []Box{
		NewBox("a", 0, 0, 640, 480),
		NewBox("a", 13.5, 400, 7, 250.25),
		NewBox("a", -20, -10, 700, 30), // Partly outside the image.
	}

	for _, b := range boxes {
		xmid, ymid, w, h := b.RelativeCoords(size)

		cx, cy := b.Center()
		bw, bh := b.Size()
		if !almostEqual(xmid*640, cx) || !almostEqual(ymid*480, cy) ||
				!almostEqual(w*640, bw) || !almostEqual(h*480, bh) {
			t.Errorf("RelativeCoords(%v) = (%v, %v, %v, %v) does not scale back", b.Coords, xmid, ymid,
				w, h)
		}
	}
}

func TestBoxRelativeCoordsAreNotClamped(t *testing.T) {
	b := NewBox("a", 90, 0, 130, 10)
	xmid, _, _, _ := b.RelativeCoords(ImageSize{Width: 100, Height: 100})
	if xmid != 1.1 {
		t.Errorf("xmid = %v, want 1.1", xmid)
	}
}

func TestBoxFormatLine(t *testing.T) {
	size := ImageSize{Width: 200, Height: 100}
	b, err := NewBoxWithConfidence("3", 50, 25, 150, 75, 0.5)
	if err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		name              string
		box               Box
		includeConfidence bool
		want              string
	}{
		{"without confidence", NewBox("3", 50, 25, 150, 75), true, "3 0.5 0.5 0.5 0.5"},
		{"confidence excluded", b, false, "3 0.5 0.5 0.5 0.5"},
		{"confidence included", b, true, "3 0.5 0.5 0.5 0.5 0.5"},
		{"fractions", NewBox("0", 0, 0, 50, 10), false, "0 0.125 0.05 0.25 0.1"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.box.FormatLine(size, tc.includeConfidence); got != tc.want {
				t.Errorf("FormatLine() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewBoxWithConfidenceRange(t *testing.T) {
	for _, c := range []float64{-0.1, 1.5, math.NaN()} {
		if _, err := NewBoxWithConfidence("a", 0, 0, 1, 1, c); err == nil {
			t.Errorf("NewBoxWithConfidence(%v) succeeded, want error", c)
		}
	}
}
