package dem

import (
	"fmt"
	"strconv"
)

// landscapeSizes are the pixel edge lengths terrain importers accept
// (power of two plus one).
var landscapeSizes = []int{1009, 2017, 4033, 8129}

// Resolution is the target pixel grid policy for merged outputs. The
// zero value keeps native dimensions.
type Resolution struct {
	Auto  bool
	Value int // explicit edge length when non-zero
}

// ParseResolution accepts "none", "auto" or a positive integer.
func ParseResolution(s string) (Resolution, error) {
	switch s {
	case "", "none":
		return Resolution{}, nil
	case "auto":
		return Resolution{Auto: true}, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return Resolution{}, fmt.Errorf("invalid resolution %q: want none, auto or a positive integer", s)
	}
	return Resolution{Value: n}, nil
}

// Resolve picks the output edge length for a raster of the given native
// dimensions. Zero means keep the native grid. Auto selects the
// candidate closest to (width, height) by Euclidean distance, used for
// both axes.
func (r Resolution) Resolve(width, height int) int {
	if r.Value > 0 {
		return r.Value
	}
	if !r.Auto {
		return 0
	}

	best := landscapeSizes[0]
	bestDist := distSq(best, width, height)
	for _, c := range landscapeSizes[1:] {
		if d := distSq(c, width, height); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func distSq(c, w, h int) int {
	dw, dh := c-w, c-h
	return dw*dw + dh*dh
}
