package services

import (
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// LogEntry は単一のリクエストログを表します。
type LogEntry struct {
	Timestamp    time.Time     `json:"timestamp"`
	Path         string        `json:"path"`
	Method       string        `json:"method"`
	StatusCode   int           `json:"statusCode"`
	ResponseTime time.Duration `json:"responseTime"`
}

// MonitoringService はAPIのモニタリング機能を提供します。
type MonitoringService struct {
	logs []LogEntry
	mu   sync.RWMutex
}

// NewMonitoringService は新しいMonitoringServiceを生成します。
func NewMonitoringService() *MonitoringService {
	return &MonitoringService{
		logs: make([]LogEntry, 0),
	}
}

// LogRequest はリクエストを記録します。
func (s *MonitoringService) LogRequest(entry LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
}

// LoggingMiddleware はリクエスト情報を記録するGinミドルウェアです。
func (s *MonitoringService) LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// 次のミドルウェア/ハンドラを実行
		c.Next()

		// モニタリングAPI自身のアクセスは記録しない
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/api/monitoring") {
			return
		}

		s.LogRequest(LogEntry{
			Timestamp:    start,
			Path:         path,
			Method:       c.Request.Method,
			StatusCode:   c.Writer.Status(),
			ResponseTime: time.Since(start),
		})
	}
}

// MonitoringSummary は集計済みのリクエストログです。
type MonitoringSummary struct {
	TotalRequests int            `json:"totalRequests"`
	StatusClasses map[string]int `json:"statusClasses"`
	Recent        []LogEntry     `json:"recent"`
}

// GetSummary は直近limit件のログとステータス別の集計を返します。
func (s *MonitoringService) GetSummary(limit int) MonitoringSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statusClasses := map[string]int{
		"2xx Success":      0,
		"4xx Client Error": 0,
		"5xx Server Error": 0,
	}
	for _, entry := range s.logs {
		switch {
		case entry.StatusCode >= 200 && entry.StatusCode < 300:
			statusClasses["2xx Success"]++
		case entry.StatusCode >= 400 && entry.StatusCode < 500:
			statusClasses["4xx Client Error"]++
		case entry.StatusCode >= 500:
			statusClasses["5xx Server Error"]++
		}
	}

	start := len(s.logs) - limit
	if start < 0 {
		start = 0
	}
	recent := make([]LogEntry, len(s.logs)-start)
	copy(recent, s.logs[start:])

	return MonitoringSummary{
		TotalRequests: len(s.logs),
		StatusClasses: statusClasses,
		Recent:        recent,
	}
}
