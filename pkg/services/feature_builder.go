package services

import "time"

// FeatureDimensions 日付特徴量の次元数（年・月・日・曜日）
const FeatureDimensions = 4

// BuildDateFeatures 日付からカレンダー特徴量 [year, month, day, dayOfWeek] を構築する。
// 曜日は月曜=0〜日曜=6で符号化する。学習時と予測時で必ず同じ符号化を使うこと。
// タイムゾーンの正規化は行わず、渡された日付をそのまま使う。
func BuildDateFeatures(date time.Time) []float64 {
	return []float64{
		float64(date.Year()),
		float64(int(date.Month())),
		float64(date.Day()),
		float64(mondayOriginWeekday(date)),
	}
}

// mondayOriginWeekday time.Weekday（日曜=0）を月曜=0の符号化に変換する
func mondayOriginWeekday(date time.Time) int {
	return (int(date.Weekday()) + 6) % 7
}
