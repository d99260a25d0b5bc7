package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"stock-forecast-api/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// UploadSalesFile 販売実績ファイル（.xlsx / .csv）を取り込み、製品ごとにモデルを学習する。
// 1行目をヘッダーとして列を検出する。
func (fh *ForecastHandler) UploadSalesFile(c *gin.Context) {
	c.Request.ParseMultipartForm(10 << 20) // 10MB limit

	file, fileHeader, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ファイルの取得に失敗しました。"})
		return
	}
	defer file.Close()

	var rows [][]string
	fileName := fileHeader.Filename

	if strings.HasSuffix(strings.ToLower(fileName), ".xlsx") {
		f, err := excelize.OpenReader(file)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Excelファイルの読み込みに失敗しました。"})
			return
		}
		rows, err = f.GetRows(f.GetSheetName(0))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Excelシートの行取得に失敗しました。"})
			return
		}
	} else if strings.HasSuffix(strings.ToLower(fileName), ".csv") {
		r := csv.NewReader(file)
		rows, err = r.ReadAll()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "CSVファイルの解析に失敗しました。"})
			return
		}
	} else {
		c.JSON(http.StatusBadRequest, gin.H{"error": "サポートされていないファイル形式です。.xlsxまたは.csvをアップロードしてください。"})
		return
	}

	if len(rows) < 2 { // ヘッダー + 最低1行のデータ
		c.JSON(http.StatusBadRequest, gin.H{"error": "ファイルにはヘッダー行と少なくとも1行のデータが必要です。"})
		return
	}

	header := rows[0]
	productIDColIdx := findIndex(header, "productId", "product_id", "製品ID", "商品ID", "製品コード")
	dateColIdx := findIndex(header, "date", "日付")
	quantityColIdx := findIndex(header, "quantity", "sales", "数量", "販売数")

	var missingCols []string
	if productIDColIdx == -1 {
		missingCols = append(missingCols, "productId")
	}
	if dateColIdx == -1 {
		missingCols = append(missingCols, "date")
	}
	if quantityColIdx == -1 {
		missingCols = append(missingCols, "quantity")
	}
	if len(missingCols) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("必須列が見つかりません: %s", strings.Join(missingCols, ", ")),
		})
		return
	}

	var records []models.SaleRecord
	for _, row := range rows[1:] {
		if len(row) <= productIDColIdx || len(row) <= dateColIdx || len(row) <= quantityColIdx {
			continue
		}
		productID := strings.TrimSpace(row[productIDColIdx])
		date := strings.TrimSpace(row[dateColIdx])
		quantity, err := strconv.Atoi(strings.TrimSpace(row[quantityColIdx]))
		if productID == "" || date == "" || err != nil || quantity < 0 {
			continue
		}
		records = append(records, models.SaleRecord{
			ProductID: productID,
			Date:      date,
			Quantity:  quantity,
		})
	}

	if len(records) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "有効な販売レコードが1件もありませんでした。"})
		return
	}

	if err := fh.trainGrouped(records); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	trained := make([]string, 0)
	seen := make(map[string]bool)
	for _, record := range records {
		if !seen[record.ProductID] {
			seen[record.ProductID] = true
			trained = append(trained, record.ProductID)
		}
	}

	c.JSON(http.StatusOK, models.TrainSummary{
		BatchID:       uuid.New().String(),
		RecordCount:   len(records),
		TrainedModels: trained,
	})
}

// findIndex finds the index of the first candidate in a slice
func findIndex(slice []string, candidates ...string) int {
	for _, candidate := range candidates {
		for i, item := range slice {
			if strings.EqualFold(strings.TrimSpace(item), candidate) {
				return i
			}
		}
	}
	return -1
}
