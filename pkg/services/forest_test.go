package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func forestTestData() ([][]float64, []float64) {
	X := [][]float64{
		{2023, 10, 1, 6},
		{2023, 10, 2, 0},
		{2023, 10, 3, 1},
		{2023, 10, 4, 2},
		{2023, 10, 5, 3},
		{2023, 10, 6, 4},
		{2023, 10, 7, 5},
	}
	y := []float64{10, 12, 11, 13, 9, 14, 10}
	return X, y
}

func TestRandomForestPredictWithinLabelRange(t *testing.T) {
	X, y := forestTestData()

	forest := NewRandomForestRegressor(100, 42)
	err := forest.Fit(X, y)
	assert.NoError(t, err)
	assert.Len(t, forest.Trees, 100)

	// 葉の値は常にラベルの平均なので、予測はラベルの範囲に収まる
	pred, err := forest.Predict([]float64{2023, 11, 1, 2})
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, pred, 9.0)
	assert.LessOrEqual(t, pred, 14.0)
}

func TestRandomForestDeterministicWithFixedSeed(t *testing.T) {
	X, y := forestTestData()

	forestA := NewRandomForestRegressor(100, 42)
	assert.NoError(t, forestA.Fit(X, y))
	forestB := NewRandomForestRegressor(100, 42)
	assert.NoError(t, forestB.Fit(X, y))

	row := []float64{2023, 11, 1, 2}
	predA, err := forestA.Predict(row)
	assert.NoError(t, err)
	predB, err := forestB.Predict(row)
	assert.NoError(t, err)

	// 同じシード・同じデータなら予測は完全に一致する
	assert.Equal(t, predA, predB)
}

func TestRandomForestConstantLabels(t *testing.T) {
	// 数量が一定の履歴も有効な入力
	X := [][]float64{
		{2023, 10, 1, 6},
		{2023, 10, 2, 0},
		{2023, 10, 3, 1},
	}
	y := []float64{7, 7, 7}

	forest := NewRandomForestRegressor(50, 42)
	assert.NoError(t, forest.Fit(X, y))

	pred, err := forest.Predict([]float64{2023, 12, 25, 0})
	assert.NoError(t, err)
	assert.Equal(t, 7.0, pred)
}

func TestRandomForestSingleSample(t *testing.T) {
	forest := NewRandomForestRegressor(10, 42)
	assert.NoError(t, forest.Fit([][]float64{{2023, 10, 2, 0}}, []float64{5}))

	pred, err := forest.Predict([]float64{2024, 1, 1, 0})
	assert.NoError(t, err)
	assert.Equal(t, 5.0, pred)
}

func TestRandomForestErrors(t *testing.T) {
	forest := NewRandomForestRegressor(10, 42)

	// 未学習のまま予測するとエラー
	_, err := forest.Predict([]float64{1, 2, 3, 4})
	assert.Error(t, err)

	// XとYの長さ不一致
	err = forest.Fit([][]float64{{1}}, []float64{1, 2})
	assert.Error(t, err)

	// 空データ
	err = forest.Fit(nil, nil)
	assert.Error(t, err)
}
