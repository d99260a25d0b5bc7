package main

import (
	"log"

	config "stock-forecast-api/configs"
	"stock-forecast-api/pkg/handlers"
	"stock-forecast-api/pkg/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// .envファイルを読み込み
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	// 設定の読み込み
	cfg := config.LoadConfig()

	// モデルストアの初期化（保存先ディレクトリは起動時にここで一度だけ作成する）
	modelStore, err := services.NewModelStore(cfg.ModelDir)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize ModelStore: %v", err)
	}

	// Ginルーターの初期化
	r := gin.Default()

	// サービスの初期化
	monitoringService := services.NewMonitoringService()
	forecastService := services.NewForecastService(modelStore)

	// ハンドラーの初期化
	forecastHandler := handlers.NewForecastHandler(forecastService)
	monitoringHandler := handlers.NewMonitoringHandler(monitoringService)

	// ミドルウェアの登録
	r.Use(monitoringService.LoggingMiddleware())

	// CORS: 全オリジン・全メソッド・全ヘッダーを許可（開発用デフォルト。
	// 本番環境では許可するドメインを絞ること）
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{"*"}
	r.Use(cors.New(corsConfig))

	// ヘルスチェックエンドポイント
	r.GET("/health", handlers.HealthCheck)

	// 需要予測API
	api := r.Group("/api")
	{
		api.POST("/sales-data", forecastHandler.SubmitSalesData)
		api.POST("/sales-data/upload", forecastHandler.UploadSalesFile)
		api.GET("/forecast/:productId", forecastHandler.GetForecast)
		api.POST("/batch-forecast", forecastHandler.BatchForecast)

		// モニタリングAPI
		monitoring := api.Group("/monitoring")
		{
			monitoring.GET("/logs", monitoringHandler.GetLogs)
		}
	}

	log.Printf("Starting Stock Forecast API server on :%s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
