package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"stock-forecast-api/pkg/models"
	"stock-forecast-api/pkg/services"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// 在庫移動レコードの外れ値検知を単発で実行するバッチユーティリティ。
// HTTPサービスとは独立しており、quantity・timestamp列を持つ
// CSVまたはxlsxファイルを入力にとる。
func main() {
	if len(os.Args) < 2 {
		fmt.Println("使い方: anomaly_detect <movements.csv|movements.xlsx>")
		os.Exit(1)
	}
	path := os.Args[1]

	records, err := loadMovements(path)
	if err != nil {
		log.Fatalf("入力ファイルの読み込みに失敗しました: %v", err)
	}
	fmt.Printf("=== 在庫移動 異常検知 ===\n")
	fmt.Printf("入力: %s (%d件)\n", path, len(records))

	detector := services.NewAnomalyDetector()
	anomalies, err := detector.Detect(records)
	if err != nil {
		log.Fatalf("異常検知の実行に失敗しました: %v", err)
	}

	report := models.AnomalyReport{
		ReportID:      uuid.New().String(),
		GeneratedAt:   time.Now().Format(time.RFC3339),
		RecordCount:   len(records),
		Contamination: detector.Contamination,
		Anomalies:     anomalies,
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("レポートの生成に失敗しました: %v", err)
	}
	fmt.Println(string(out))
	fmt.Printf("検出された異常: %d件\n", len(anomalies))
}

// loadMovements quantity・timestamp列を持つCSV/xlsxを読み込む
func loadMovements(path string) ([]models.MovementRecord, error) {
	var rows [][]string

	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		rows, err = f.GetRows(f.GetSheetName(0))
		if err != nil {
			return nil, err
		}
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		rows, err = csv.NewReader(file).ReadAll()
		if err != nil {
			return nil, err
		}
	}

	if len(rows) < 2 {
		return nil, fmt.Errorf("ヘッダー行と少なくとも1行のデータが必要です")
	}

	header := rows[0]
	quantityIdx := columnIndex(header, "quantity", "数量")
	timestampIdx := columnIndex(header, "timestamp", "date", "日時", "日付")
	if quantityIdx == -1 || timestampIdx == -1 {
		return nil, fmt.Errorf("quantity列とtimestamp列が必要です（ヘッダー: %v）", header)
	}

	var records []models.MovementRecord
	for _, row := range rows[1:] {
		if len(row) <= quantityIdx || len(row) <= timestampIdx {
			continue
		}
		quantity, err := strconv.ParseFloat(strings.TrimSpace(row[quantityIdx]), 64)
		if err != nil {
			continue
		}
		timestamp, err := parseTimestamp(strings.TrimSpace(row[timestampIdx]))
		if err != nil {
			continue
		}
		records = append(records, models.MovementRecord{
			Quantity:  quantity,
			Timestamp: timestamp,
		})
	}
	return records, nil
}

// parseTimestamp 代表的な日付/日時形式を順に試す
func parseTimestamp(value string) (time.Time, error) {
	formats := []string{
		"2006-01-02",
		"2006-01-02 15:04:05",
		time.RFC3339,
	}
	for _, format := range formats {
		if t, err := time.Parse(format, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("日付の解析に失敗しました: %q", value)
}

// columnIndex ヘッダーから最初に一致した候補列のインデックスを返す
func columnIndex(header []string, candidates ...string) int {
	for _, candidate := range candidates {
		for i, name := range header {
			if strings.EqualFold(strings.TrimSpace(name), candidate) {
				return i
			}
		}
	}
	return -1
}
