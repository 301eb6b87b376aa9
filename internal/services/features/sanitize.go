package features

import (
	"math"

	"FinSight/internal/domain/models"
)

// ClipBound bounds feature magnitudes so scaling cannot overflow.
const ClipBound = 1e12

// SanitizeRow returns a cleaned copy of row: infinities become missing, values are
// clipped to ±ClipBound. ok is false when any value is missing.
func SanitizeRow(row []float64) ([]float64, bool) {
	out := make([]float64, len(row))
	for i, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false
		}
		out[i] = math.Max(-ClipBound, math.Min(ClipBound, v))
	}
	return out, true
}

// Sanitize drops every row with a missing or non-finite feature or target.
// It returns models.ErrNumericDegenerate when nothing survives.
func Sanitize(rows [][]float64, targets []float64) ([][]float64, []float64, error) {
	outX := make([][]float64, 0, len(rows))
	outY := make([]float64, 0, len(rows))
	for i, row := range rows {
		if i >= len(targets) {
			break
		}
		y := targets[i]
		if math.IsNaN(y) || math.IsInf(y, 0) {
			continue
		}
		clean, ok := SanitizeRow(row)
		if !ok {
			continue
		}
		outX = append(outX, clean)
		outY = append(outY, y)
	}
	if len(outX) == 0 {
		return nil, nil, models.ErrNumericDegenerate
	}
	return outX, outY, nil
}
