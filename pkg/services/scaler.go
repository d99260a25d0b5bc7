package services

import (
	"fmt"
	"math"
)

// StandardScaler standardizes features to zero mean and unit variance
// per dimension, using statistics learned from the training matrix.
// Fields are exported so the fitted state can be serialized as an artifact.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Fit learns per-dimension mean and standard deviation from X.
// A zero-variance dimension gets scale 1 so that Transform never divides by zero.
func (s *StandardScaler) Fit(X [][]float64) error {
	if len(X) == 0 {
		return fmt.Errorf("学習データが空です")
	}
	dims := len(X[0])
	s.Mean = make([]float64, dims)
	s.Scale = make([]float64, dims)

	for _, row := range X {
		if len(row) != dims {
			return fmt.Errorf("特徴量の次元が一致しません: %d != %d", len(row), dims)
		}
		for j, v := range row {
			s.Mean[j] += v
		}
	}
	n := float64(len(X))
	for j := range s.Mean {
		s.Mean[j] /= n
	}

	for _, row := range X {
		for j, v := range row {
			diff := v - s.Mean[j]
			s.Scale[j] += diff * diff
		}
	}
	for j := range s.Scale {
		s.Scale[j] = math.Sqrt(s.Scale[j] / n)
		if s.Scale[j] == 0 {
			s.Scale[j] = 1
		}
	}
	return nil
}

// Transform returns a standardized copy of X.
func (s *StandardScaler) Transform(X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, row := range X {
		scaled, err := s.TransformRow(row)
		if err != nil {
			return nil, err
		}
		out[i] = scaled
	}
	return out, nil
}

// TransformRow standardizes a single feature vector.
func (s *StandardScaler) TransformRow(row []float64) ([]float64, error) {
	if len(row) != len(s.Mean) {
		return nil, fmt.Errorf("特徴量の次元が一致しません: %d != %d", len(row), len(s.Mean))
	}
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out, nil
}

// FitTransform fits the scaler on X and returns the standardized matrix.
func (s *StandardScaler) FitTransform(X [][]float64) ([][]float64, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}
