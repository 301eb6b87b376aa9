package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// StandardScaler centers each feature on its mean and divides by its population
// standard deviation. Constant features keep a scale of 1.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Fit learns per-feature mean and scale from x.
func (s *StandardScaler) Fit(x [][]float64) error {
	if len(x) == 0 || len(x[0]) == 0 {
		return fmt.Errorf("scaler fit on empty matrix: %w", ErrDegenerate)
	}
	width := len(x[0])
	s.Mean = make([]float64, width)
	s.Scale = make([]float64, width)
	col := make([]float64, len(x))
	for f := 0; f < width; f++ {
		for i, row := range x {
			col[i] = row[f]
		}
		mean, variance := stat.PopMeanVariance(col, nil)
		s.Mean[f] = mean
		s.Scale[f] = 1
		if variance > 0 {
			s.Scale[f] = math.Sqrt(variance)
		}
	}
	return nil
}

// Transform returns a scaled copy of one row.
func (s *StandardScaler) Transform(row []float64) ([]float64, error) {
	if len(s.Mean) == 0 {
		return nil, errors.New("scaler not fitted")
	}
	if len(row) != len(s.Mean) {
		return nil, fmt.Errorf("row has %d features, scaler expects %d", len(row), len(s.Mean))
	}
	out := make([]float64, len(row))
	for i, v := range row {
		out[i] = (v - s.Mean[i]) / s.Scale[i]
	}
	return out, nil
}

// TransformBatch scales every row.
func (s *StandardScaler) TransformBatch(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		v, err := s.Transform(r)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
