package models

import "time"

// SaleRecord 販売実績の1レコード（学習用入力）
type SaleRecord struct {
	ProductID string `json:"productId" binding:"required"`
	Date      string `json:"date" binding:"required"` // ISO-8601形式（YYYY-MM-DD）
	Quantity  int    `json:"quantity" binding:"gte=0"`
}

// ParseDate 日付文字列をtime.Timeに変換する。
// YYYY-MM-DD形式を優先し、RFC3339形式もフォールバックとして受け付ける。
// タイムゾーンの正規化は行わない（入力された日付をそのまま使う）。
func (r SaleRecord) ParseDate() (time.Time, error) {
	if t, err := time.Parse("2006-01-02", r.Date); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, r.Date)
}

// ForecastResult 単一製品の需要予測結果
type ForecastResult struct {
	ProductID         string  `json:"productId"`
	PredictedDemand   float64 `json:"predictedDemand"`
	Confidence        float64 `json:"confidence"`
	NextReorderDate   string  `json:"nextReorderDate"` // YYYY-MM-DD
	SuggestedQuantity float64 `json:"suggestedQuantity"`
}

// BatchForecastRequest 一括予測リクエスト。
// 重複IDや未学習IDが含まれていても許容する。
type BatchForecastRequest struct {
	ProductIDs []string `json:"productIds" binding:"required"`
}

// MovementRecord 在庫移動の1レコード（異常検知用入力）
type MovementRecord struct {
	Quantity  float64   `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

// TrainSummary 販売データ取り込み結果のサマリー
type TrainSummary struct {
	BatchID       string   `json:"batchId"`
	RecordCount   int      `json:"recordCount"`
	TrainedModels []string `json:"trainedModels"`
}

// AnomalyReport 異常検知バッチの実行結果レポート
type AnomalyReport struct {
	ReportID      string           `json:"reportId"`
	GeneratedAt   string           `json:"generatedAt"`
	RecordCount   int              `json:"recordCount"`
	Contamination float64          `json:"contamination"`
	Anomalies     []MovementRecord `json:"anomalies"`
}
