// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"echo-widget-go/internal/config"
	"echo-widget-go/internal/handler"
	"echo-widget-go/internal/middleware"
	"echo-widget-go/internal/repository"
	"echo-widget-go/internal/service"
	"echo-widget-go/pkg/database"
	"echo-widget-go/pkg/embedding"
	"echo-widget-go/pkg/es"
	"echo-widget-go/pkg/events"
	"echo-widget-go/pkg/llm"
	"echo-widget-go/pkg/log"
	"echo-widget-go/pkg/websearch"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis 与向量索引
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err := es.InitES(cfg.Elasticsearch, cfg.Embedding.Dimensions); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}

	// 4. 初始化 Repository
	tenantRepo := repository.NewTenantRepository(database.DB, database.RDB)
	counterRepo := repository.NewCounterRepository(database.RDB)
	documentRepo := repository.NewDocumentRepository(database.DB)

	// 5. 初始化外部客户端与 Service (依赖注入)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)
	searchClient := websearch.NewClient(cfg.Search)
	vectorIndex := es.NewIndex(es.ESClient, cfg.Elasticsearch.IndexName)

	var usageProducer events.Producer
	if cfg.Kafka.Brokers != "" {
		usageProducer = events.NewKafkaProducer(cfg.Kafka)
		log.Info("Kafka 用量事件生产者初始化成功")
	} else {
		usageProducer = events.NewNoopProducer()
	}

	tenantService := service.NewTenantService(tenantRepo)
	rateLimitService := service.NewRateLimitService(counterRepo, cfg.RateLimit.PublicPerMinute)
	retrievalService := service.NewRetrievalService(
		embeddingClient, vectorIndex, documentRepo,
		cfg.Retrieval.TopK, cfg.Retrieval.TimeoutSeconds)
	webSearchService := service.NewWebSearchService(
		searchClient, service.DefaultSearchPolicy, cfg.Search.APIKey != "",
		cfg.Search.MaxResults, cfg.Search.TimeoutSeconds,
		cfg.Search.MaxAttempts, cfg.Search.BackoffSeconds)
	contextService := service.NewContextService(retrievalService, webSearchService)
	inferenceService := service.NewInferenceService(
		llmClient, cfg.LLM.TimeoutSeconds, cfg.LLM.MaxAttempts, cfg.LLM.BackoffSeconds)
	chatService := service.NewChatService(contextService, inferenceService, usageProducer, cfg.LLM.Model)

	// 6. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(
		middleware.RequestLogger(),
		middleware.ErrorRenderer(),
		middleware.Recovery(),
		middleware.Preflight(),
	)

	// 7. 注册路由
	chatHandler := handler.NewChatHandler(chatService)
	widgetHandler := handler.NewWidgetHandler("http://localhost:" + cfg.Server.Port)

	// 公共路由：无需租户凭证，按客户端 IP 粗粒度限流
	public := r.Group("")
	public.Use(middleware.PublicRateLimit(rateLimitService))
	{
		public.GET("/health", handler.Health)
		public.GET("/widget.js", widgetHandler.Script)
	}

	// 租户路由：凭证认证 + 来源校验
	v1 := r.Group("/v1")
	v1.Use(middleware.TenantAuth(tenantService))
	{
		v1.GET("/widget/config", widgetHandler.Config)

		// 聊天端点额外叠加租户级双窗口限流
		chat := v1.Group("/chat")
		chat.Use(middleware.TenantRateLimit(rateLimitService))
		{
			chat.POST("/completions", chatHandler.Completions)
		}
	}

	// 8. 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}
