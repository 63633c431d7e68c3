package domain

import (
	"errors"
	"math"
)

// DefaultToleranceCells is how many half-cells beyond the covered extent a
// location may fall and still resolve to the edge cell. The extent reaches one
// half-cell past the outermost cell centers.
const DefaultToleranceCells = 1.0

// Resolve maps a location to the nearest grid cell. Each axis is searched
// independently, which is equivalent to minimizing Euclidean distance on a
// rectilinear grid. Ties go to the lowest index. Locations farther than
// toleranceCells half-cells outside the grid extent (outermost center plus a
// half-cell) are rejected with CoordinateOutOfBoundsError.
func Resolve(grid GridCoordinates, lat, lon, toleranceCells float64) (row, col int, err error) {
	row, err = nearest(grid.Lats, lat, toleranceCells, "latitude")
	if err != nil {
		return 0, 0, err
	}
	col, err = nearest(grid.Lons, lon, toleranceCells, "longitude")
	if err != nil {
		return 0, 0, err
	}
	return row, col, nil
}

func nearest(axis []float64, target, toleranceCells float64, name string) (int, error) {
	if len(axis) == 0 {
		return 0, errors.New("empty " + name + " axis")
	}

	lo, hi := axis[0], axis[len(axis)-1]
	if lo > hi {
		lo, hi = hi, lo
	}
	halfCell := 0.0
	if len(axis) > 1 {
		halfCell = math.Abs(axis[1]-axis[0]) / 2
	}
	slack := halfCell + toleranceCells*halfCell
	if len(axis) == 1 {
		// No spacing to scale by; read the tolerance as degrees.
		slack = toleranceCells
	}
	if target < lo-slack || target > hi+slack {
		return 0, &CoordinateOutOfBoundsError{Axis: name, Value: target, Min: lo - halfCell, Max: hi + halfCell}
	}

	best := 0
	bestDist := math.Abs(axis[0] - target)
	for i := 1; i < len(axis); i++ {
		if d := math.Abs(axis[i] - target); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, nil
}
