/*
Package spec defines the declarative specification of an analytics module.

A specification names the module's operations (methods), the typed
parameters each method takes and returns, literal test cases, and
packaging metadata. It is loaded once at start and shared read-only by
every consumer; nothing in this package mutates a Specification after
Parse returns.

# Specification Definition

A minimal specification in YAML:

	methods:
	  process:
	    input:
	      - name: image
	        description: RGB image of shape (h,w,3)
	        type: ndarray/uint8///3
	      - name: threshold
	        description: Threshold for bright pixels
	        type: numeric/int
	    output:
	      - name: mask
	        type: ndarray/uint8//
	        category: { name: segmentation, labels: [background, bright pixels] }
	      - name: "#bright_pixels"
	        type: numeric/int
	    test_cases:
	      - [image.png, 130, mask_130.png, 8865]

	module:
	  name: Bright Pixel Segmenter
	  version: 1.0.0
	  dependencies: ["mmacommon>=1.3.5"]

# Type Descriptors

Descriptors are slash-separated tokens: base kind, element type, then zero
or more dimension slots.

  - numeric/int:        integer scalar
  - numeric:            any numeric scalar
  - ndarray/uint8///3:  uint8 array whose last axis is 3, two free axes before it
  - ndarray/uint8//:    uint8 array, two unconstrained axes
  - ndarray/float:      float32 or float64 array of any shape

Element types are either exact (int8 … uint64, float32, float64) or a
family (int, uint, float). Empty dimension slots are unconstrained; numeric
slots must match exactly. Fixed slots are aligned with the trailing axes of
the observed shape.

Descriptors are parsed once, when the specification is decoded.

# Parsing

	s, err := spec.ParseFile("specification.yaml")

All specifications are validated on parse. Every problem found is reported
in a single aggregated error.
*/
package spec
