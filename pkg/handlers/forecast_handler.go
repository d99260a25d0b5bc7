package handlers

import (
	"errors"
	"net/http"

	"stock-forecast-api/pkg/models"
	"stock-forecast-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// ForecastHandler 需要予測APIのハンドラー
type ForecastHandler struct {
	forecastService *services.ForecastService
}

// NewForecastHandler 新しい需要予測ハンドラーを作成
func NewForecastHandler(forecastService *services.ForecastService) *ForecastHandler {
	return &ForecastHandler{
		forecastService: forecastService,
	}
}

// GetForecastService は、ハンドラーが持つ需要予測サービスへの参照を返す
func (fh *ForecastHandler) GetForecastService() *services.ForecastService {
	return fh.forecastService
}

// SubmitSalesData 販売実績データを受け取り、製品ごとにモデルを学習する
func (fh *ForecastHandler) SubmitSalesData(c *gin.Context) {
	var records []models.SaleRecord

	// リクエストボディをバインド
	if err := c.ShouldBindJSON(&records); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "リクエストの解析に失敗しました: " + err.Error(),
		})
		return
	}

	if err := fh.trainGrouped(records); err != nil {
		// 1製品でも学習に失敗したらバッチ全体を失敗として報告する
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "販売データを処理しました",
	})
}

// trainGrouped レコードを製品IDごとに安定グルーピングして1製品ずつ学習する。
// 各グループ内のレコード順は入力順を保つ。
func (fh *ForecastHandler) trainGrouped(records []models.SaleRecord) error {
	groups := make(map[string][]models.SaleRecord)
	order := make([]string, 0)
	for _, record := range records {
		if _, exists := groups[record.ProductID]; !exists {
			order = append(order, record.ProductID)
		}
		groups[record.ProductID] = append(groups[record.ProductID], record)
	}

	for _, productID := range order {
		if err := fh.forecastService.Train(productID, groups[productID]); err != nil {
			return err
		}
	}
	return nil
}

// GetForecast 単一製品の需要予測を取得する
func (fh *ForecastHandler) GetForecast(c *gin.Context) {
	productID := c.Param("productId")

	forecast, err := fh.forecastService.Predict(productID)
	if err != nil {
		if errors.Is(err, services.ErrModelNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "この製品の学習済みモデルが見つかりません",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "需要予測の実行に失敗しました: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, forecast)
}

// BatchForecast 複数製品の需要予測を一括で取得する。
// リクエストされた順に予測を試み、失敗した製品は結果から黙って除外する
// （未学習もそれ以外の個別エラーも区別しない、という明示的なポリシー）。
// 結果配列には穴埋めのnullを入れない。
func (fh *ForecastHandler) BatchForecast(c *gin.Context) {
	var request models.BatchForecastRequest

	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "リクエストの解析に失敗しました: " + err.Error(),
		})
		return
	}

	results := make([]models.ForecastResult, 0, len(request.ProductIDs))
	for _, productID := range request.ProductIDs {
		forecast, err := fh.forecastService.Predict(productID)
		if err != nil {
			continue
		}
		results = append(results, *forecast)
	}

	c.JSON(http.StatusOK, results)
}
