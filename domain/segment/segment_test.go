package segment

import (
	"math"
	"testing"

	"github.com/artpar/amodule/core/ndarray"
)

func filled(h, w, c int, v uint8) *ndarray.Dense[uint8] {
	a := ndarray.New[uint8](h, w, c)
	for i := range a.Data() {
		a.Data()[i] = v
	}
	return a
}

func TestSegment_Thresholds(t *testing.T) {
	img := filled(10, 12, 3, 200)

	tests := []struct {
		threshold int
		want      int
	}{
		{0, 120},
		{199, 120},
		{200, 0}, // strictly greater
		{255, 0},
	}

	for _, tt := range tests {
		mask, n, err := Segment(img, tt.threshold)
		if err != nil {
			t.Fatalf("threshold %d: %v", tt.threshold, err)
		}
		if n != tt.want {
			t.Errorf("threshold %d: count = %d, want %d", tt.threshold, n, tt.want)
		}
		if got := mask.Shape(); len(got) != 2 || got[0] != 10 || got[1] != 12 {
			t.Errorf("mask shape = %v, want [10 12]", got)
		}
	}
}

func TestSegment_ExtremeThresholds(t *testing.T) {
	img := filled(2, 2, 3, 10)

	tests := []struct {
		name      string
		threshold int
		want      int
	}{
		{"max int", math.MaxInt, 0},
		{"half max int", math.MaxInt / 2, 0},
		{"above range", 256, 0},
		{"negative", -1, 4},
		{"half min int", math.MinInt / 2, 4},
		{"min int", math.MinInt, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, n, err := Segment(img, tt.threshold)
			if err != nil {
				t.Fatalf("Segment: %v", err)
			}
			if n != tt.want {
				t.Errorf("count = %d, want %d", n, tt.want)
			}
		})
	}
}

func TestSegment_MeanOverChannels(t *testing.T) {
	img := ndarray.New[uint8](1, 2, 3)
	// pixel 0: mean 100; pixel 1: mean (255+0+46)/3 = 100.33
	img.Set(100, 0, 0, 0)
	img.Set(100, 0, 0, 1)
	img.Set(100, 0, 0, 2)
	img.Set(255, 0, 1, 0)
	img.Set(0, 0, 1, 1)
	img.Set(46, 0, 1, 2)

	mask, n, err := Segment(img, 100)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
	if mask.At(0, 0) != Background || mask.At(0, 1) != Bright {
		t.Errorf("mask = %v, want [0 255]", mask.Data())
	}
}

func TestSegment_CountMatchesMask(t *testing.T) {
	img := ndarray.New[uint8](16, 16, 3)
	for i := range img.Data() {
		img.Data()[i] = uint8(i * 7 % 256)
	}

	mask, n, err := Segment(img, 130)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	bright := 0
	for _, v := range mask.Data() {
		switch v {
		case Bright:
			bright++
		case Background:
		default:
			t.Fatalf("unexpected mask value %d", v)
		}
	}
	if bright != n {
		t.Errorf("count %d disagrees with mask %d", n, bright)
	}
}

func TestSegment_Errors(t *testing.T) {
	if _, _, err := Segment(nil, 1); err == nil {
		t.Error("nil image: expected error")
	}
	if _, _, err := Segment(ndarray.New[uint8](4, 4), 1); err == nil {
		t.Error("rank 2: expected error")
	}
	if _, _, err := Segment(ndarray.New[uint8](4, 4, 0), 1); err == nil {
		t.Error("zero channels: expected error")
	}
}
