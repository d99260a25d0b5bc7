package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stock-forecast-api/pkg/models"
	"stock-forecast-api/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// newTestRouter 一時ディレクトリのモデルストアを使うテスト用ルーターを作成
func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := services.NewModelStore(t.TempDir())
	assert.NoError(t, err)

	forecastHandler := NewForecastHandler(services.NewForecastService(store))

	router := gin.New()
	router.GET("/health", HealthCheck)
	api := router.Group("/api")
	{
		api.POST("/sales-data", forecastHandler.SubmitSalesData)
		api.POST("/sales-data/upload", forecastHandler.UploadSalesFile)
		api.GET("/forecast/:productId", forecastHandler.GetForecast)
		api.POST("/batch-forecast", forecastHandler.BatchForecast)
	}
	return router
}

// postJSON JSONボディでPOSTリクエストを実行
func postJSON(router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req, _ := http.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// getPath GETリクエストを実行
func getPath(router *gin.Engine, path string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// dailySales 連続した日次の販売レコードを生成
func dailySales(productID string, quantities []int) []models.SaleRecord {
	base := time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC)
	records := make([]models.SaleRecord, len(quantities))
	for i, q := range quantities {
		records[i] = models.SaleRecord{
			ProductID: productID,
			Date:      base.AddDate(0, 0, i).Format("2006-01-02"),
			Quantity:  q,
		}
	}
	return records
}

func TestSubmitSalesDataAndForecast(t *testing.T) {
	router := newTestRouter(t)

	// P1の7日分の販売実績を投入
	w := postJSON(router, "/api/sales-data", dailySales("P1", []int{10, 12, 11, 13, 9, 14, 10}))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "message")

	// 予測を取得
	w = getPath(router, "/api/forecast/P1")
	assert.Equal(t, http.StatusOK, w.Code)

	var result models.ForecastResult
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))

	assert.Equal(t, "P1", result.ProductID)
	assert.Equal(t, 0.8, result.Confidence)

	// 予測需要は履歴の数量レンジに収まる
	assert.GreaterOrEqual(t, result.PredictedDemand, 9.0)
	assert.LessOrEqual(t, result.PredictedDemand, 14.0)

	// 発注推奨数量は予測需要×1.2
	assert.InDelta(t, result.PredictedDemand*1.2, result.SuggestedQuantity, 1e-9)

	// 次回発注日は今日+15日（日付のみ）
	expected := time.Now().AddDate(0, 0, 15).Format("2006-01-02")
	assert.Equal(t, expected, result.NextReorderDate)
}

func TestForecastWithoutModelReturns404(t *testing.T) {
	router := newTestRouter(t)

	w := getPath(router, "/api/forecast/never-trained")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}

func TestSubmitSalesDataTrainsEachProductIndependently(t *testing.T) {
	router := newTestRouter(t)

	// 2製品分のレコードを1回の呼び出しで投入
	payload := append(
		dailySales("A1", []int{10, 12, 11, 13}),
		dailySales("B2", []int{100, 120, 110, 130})...,
	)
	w := postJSON(router, "/api/sales-data", payload)
	assert.Equal(t, http.StatusOK, w.Code)

	// それぞれ独立したモデルが学習される
	wa := getPath(router, "/api/forecast/A1")
	assert.Equal(t, http.StatusOK, wa.Code)
	var resultA models.ForecastResult
	assert.NoError(t, json.Unmarshal(wa.Body.Bytes(), &resultA))
	assert.LessOrEqual(t, resultA.PredictedDemand, 13.0)

	wb := getPath(router, "/api/forecast/B2")
	assert.Equal(t, http.StatusOK, wb.Code)
	var resultB models.ForecastResult
	assert.NoError(t, json.Unmarshal(wb.Body.Bytes(), &resultB))
	assert.GreaterOrEqual(t, resultB.PredictedDemand, 100.0)
}

func TestSubmitSalesDataMalformedBody(t *testing.T) {
	router := newTestRouter(t)

	req, _ := http.NewRequest("POST", "/api/sales-data", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitSalesDataTrainingFailureReportsWholeBatch(t *testing.T) {
	router := newTestRouter(t)

	// 日付が不正なレコードを含むバッチは全体が失敗として報告される
	payload := []models.SaleRecord{
		{ProductID: "P1", Date: "2023-10-01", Quantity: 10},
		{ProductID: "P2", Date: "not-a-date", Quantity: 5},
	}
	w := postJSON(router, "/api/sales-data", payload)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	// 原因特定のため、どの製品で失敗したかがエラーに含まれる
	assert.Contains(t, w.Body.String(), "P2")
}

func TestBatchForecastSkipsProductsWithoutModel(t *testing.T) {
	router := newTestRouter(t)

	// AとCだけ学習する
	w := postJSON(router, "/api/sales-data", append(
		dailySales("A", []int{10, 12, 11, 13}),
		dailySales("C", []int{20, 22, 21, 23})...,
	))
	assert.Equal(t, http.StatusOK, w.Code)

	// Bは未学習のまま一括予測
	w = postJSON(router, "/api/batch-forecast", models.BatchForecastRequest{
		ProductIDs: []string{"A", "B", "C"},
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var results []models.ForecastResult
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &results))

	// Bはnull埋めされず、リクエスト順のまま欠落する
	assert.Len(t, results, 2)
	assert.Equal(t, "A", results[0].ProductID)
	assert.Equal(t, "C", results[1].ProductID)
}

func TestBatchForecastAllUnknownReturnsEmptyArray(t *testing.T) {
	router := newTestRouter(t)

	w := postJSON(router, "/api/batch-forecast", models.BatchForecastRequest{
		ProductIDs: []string{"X", "Y"},
	})
	assert.Equal(t, http.StatusOK, w.Code)

	// 空でもJSON配列（nullではない）
	assert.Equal(t, "[]", w.Body.String())
}

func TestBatchForecastMissingProductIds(t *testing.T) {
	router := newTestRouter(t)

	w := postJSON(router, "/api/batch-forecast", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthCheck(t *testing.T) {
	router := newTestRouter(t)

	w := getPath(router, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestForecastResultJSONFieldNames(t *testing.T) {
	router := newTestRouter(t)

	w := postJSON(router, "/api/sales-data", dailySales("P1", []int{5, 6, 7}))
	assert.Equal(t, http.StatusOK, w.Code)

	w = getPath(router, "/api/forecast/P1")
	assert.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	for _, field := range []string{"productId", "predictedDemand", "confidence", "nextReorderDate", "suggestedQuantity"} {
		assert.Contains(t, body, fmt.Sprintf("%q", field))
	}
}
