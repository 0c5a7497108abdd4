// Package segment finds bright pixels in images.
// This is a PURE package with no I/O dependencies.
package segment

import (
	"fmt"

	"github.com/artpar/amodule/core/ndarray"
)

// Mask values.
const (
	Background uint8 = 0
	Bright     uint8 = 255
)

// Segment marks every pixel whose mean over the channel axis exceeds
// threshold. image must have shape (h, w, c) with c > 0. The mask has
// shape (h, w); the count is the number of Bright pixels.
func Segment(image *ndarray.Dense[uint8], threshold int) (*ndarray.Dense[uint8], int, error) {
	if image == nil {
		return nil, 0, fmt.Errorf("segment: nil image")
	}
	shape := image.Shape()
	if len(shape) != 3 {
		return nil, 0, fmt.Errorf("segment: image must have rank 3, got shape %s", ndarray.FormatShape(shape))
	}
	h, w, c := shape[0], shape[1], shape[2]
	if c == 0 {
		return nil, 0, fmt.Errorf("segment: image has no channels")
	}

	mask := ndarray.New[uint8](h, w)
	src := image.Data()
	dst := mask.Data()

	// Channel means lie in [0, 255], so clamping keeps threshold*c in range
	// without changing the result.
	threshold = min(max(threshold, -1), 255)

	// sum > threshold*c iff mean > threshold
	limit := threshold * c
	count := 0
	for p := range dst {
		sum := 0
		for _, v := range src[p*c : (p+1)*c] {
			sum += int(v)
		}
		if sum > limit {
			dst[p] = Bright
			count++
		}
	}

	return mask, count, nil
}
