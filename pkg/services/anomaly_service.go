package services

import (
	"stock-forecast-api/pkg/models"
)

const (
	// defaultContamination 異常とみなすレコードの想定割合（5%）
	defaultContamination = 0.05
	// anomalySeed 再現性のための固定シード
	anomalySeed = 42
)

// AnomalyDetector 在庫移動レコードの外れ値検知。
// 状態を持たず、1回の呼び出しで学習とスコアリングを完結させる。
// 予測サービスとは独立しており、HTTPサービスには組み込まれない。
type AnomalyDetector struct {
	Contamination float64
	Seed          int64
}

// NewAnomalyDetector デフォルト設定（contamination=0.05, seed=42）の検知器を作成
func NewAnomalyDetector() *AnomalyDetector {
	return &AnomalyDetector{
		Contamination: defaultContamination,
		Seed:          anomalySeed,
	}
}

// Detect 在庫移動レコードから異常なものだけを抽出して返す。
// 特徴量は（数量, タイムスタンプのUNIX秒）の2列。
// 返り値は入力順を保った部分列で、異常が無ければ空になる。
func (d *AnomalyDetector) Detect(records []models.MovementRecord) ([]models.MovementRecord, error) {
	if len(records) == 0 {
		return []models.MovementRecord{}, nil
	}

	X := make([][]float64, len(records))
	for i, r := range records {
		X[i] = []float64{r.Quantity, float64(r.Timestamp.Unix())}
	}

	forest := NewIsolationForest(d.Contamination, d.Seed)
	flags, err := forest.FitPredict(X)
	if err != nil {
		return nil, err
	}

	anomalies := make([]models.MovementRecord, 0)
	for i, flagged := range flags {
		if flagged {
			anomalies = append(anomalies, records[i])
		}
	}
	return anomalies, nil
}
