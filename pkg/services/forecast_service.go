package services

import (
	"fmt"
	"log"
	"time"

	"stock-forecast-api/pkg/models"
)

const (
	// forestSize ランダムフォレストの木の本数
	forestSize = 100
	// randomSeed 再現性のための固定シード
	randomSeed = 42
	// forecastHorizonDays 予測対象日（現在日からのオフセット）
	forecastHorizonDays = 30
	// reorderLeadDays 次回発注日のオフセット（予測値とは独立の固定値）
	reorderLeadDays = 15
	// safetyMarginRate 発注推奨数量の安全マージン（予測需要の20%増し）
	safetyMarginRate = 1.2
	// fixedConfidence 信頼度の固定値。モデルからは算出していない（簡略化）。
	fixedConfidence = 0.8
)

// ForecastService 製品ごとの需要予測モデルの学習と推論を担うサービス
type ForecastService struct {
	store *ModelStore
	now   func() time.Time
}

// NewForecastService 新しい需要予測サービスを作成
func NewForecastService(store *ModelStore) *ForecastService {
	return &ForecastService{
		store: store,
		now:   time.Now,
	}
}

// Train 1製品分の販売履歴からモデルを学習し、ストアに永続化する。
// 履歴が1件のみ、または数量が一定の場合も有効な入力として扱う
// （分散ゼロの特徴量はスケーラー側で安全に処理される）。
func (s *ForecastService) Train(productID string, history []models.SaleRecord) error {
	if len(history) == 0 {
		return fmt.Errorf("製品 %s の販売履歴が空です", productID)
	}

	// 特徴量行列とラベルベクトルを構築
	X := make([][]float64, 0, len(history))
	y := make([]float64, 0, len(history))
	for _, record := range history {
		date, err := record.ParseDate()
		if err != nil {
			return fmt.Errorf("製品 %s の日付の解析に失敗しました (%q): %w", productID, record.Date, err)
		}
		X = append(X, BuildDateFeatures(date))
		y = append(y, float64(record.Quantity))
	}

	// この製品の学習データのみからスケーラーを学習
	scaler := &StandardScaler{}
	scaled, err := scaler.FitTransform(X)
	if err != nil {
		return fmt.Errorf("製品 %s のスケーラー学習に失敗しました: %w", productID, err)
	}

	forest := NewRandomForestRegressor(forestSize, randomSeed)
	if err := forest.Fit(scaled, y); err != nil {
		return fmt.Errorf("製品 %s のモデル学習に失敗しました: %w", productID, err)
	}

	if err := s.store.Save(productID, forest, scaler); err != nil {
		return err
	}

	log.Printf("[学習@%s] %d件の販売実績からモデルを学習しました", productID, len(history))
	return nil
}

// Predict 製品IDの需要予測を実行する。
// 学習済みモデルが無い場合はErrModelNotFoundを返す。保存済みモデルの状態は変更しない。
func (s *ForecastService) Predict(productID string) (*models.ForecastResult, error) {
	forest, scaler, err := s.store.Load(productID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	targetDate := now.AddDate(0, 0, forecastHorizonDays)

	features, err := scaler.TransformRow(BuildDateFeatures(targetDate))
	if err != nil {
		return nil, fmt.Errorf("製品 %s の特徴量変換に失敗しました: %w", productID, err)
	}

	predicted, err := forest.Predict(features)
	if err != nil {
		return nil, fmt.Errorf("製品 %s の予測に失敗しました: %w", productID, err)
	}

	reorderDate := now.AddDate(0, 0, reorderLeadDays)

	return &models.ForecastResult{
		ProductID:         productID,
		PredictedDemand:   predicted,
		Confidence:        fixedConfidence,
		NextReorderDate:   reorderDate.Format("2006-01-02"),
		SuggestedQuantity: predicted * safetyMarginRate,
	}, nil
}
