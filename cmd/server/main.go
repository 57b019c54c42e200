package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"backend/api"
	"backend/internal/ai"
	"backend/internal/ai/gemini"
	"backend/internal/config"
	"backend/internal/infra"
	"backend/internal/infra/queue"
	"backend/internal/logger"
	"backend/internal/models"
	"backend/internal/rag"
	"backend/internal/rag/parsers"
	"backend/internal/worker"
)

func main() {
	// 统一加载 .env，便于集中管理 APP_* 环境变量
	loadEnvFile()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	cfg, err := config.Load(env, "")
	if err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.String("env", env),
		zap.String("mode", cfg.Server.Mode))

	// 数据库
	db, err := infra.InitDatabase(&cfg.Database)
	if err != nil {
		logger.Fatal("初始化数据库失败", zap.Error(err))
	}
	defer infra.CloseDatabase()

	if cfg.Database.AutoMigrate {
		migrations := []any{&models.Document{}, &models.ChatMessage{}}
		if cfg.RAG.VectorStore.Type == "pgvector" {
			migrations = append(migrations, &rag.KnowledgeChunk{})
		}
		if err := db.AutoMigrate(migrations...); err != nil {
			logger.Fatal("数据库迁移失败", zap.Error(err))
		}
	}

	// Redis（嵌入缓存与任务队列共用）
	var rdb *redis.Client
	if cfg.Cache.Embedding.Enabled || cfg.Queue.Enabled {
		rdb, err = infra.InitRedis(&cfg.Redis)
		if err != nil {
			logger.Fatal("初始化 Redis 失败", zap.Error(err))
		}
		defer infra.CloseRedis()
	}

	// 嵌入提供方
	provider, err := buildEmbeddingProvider(cfg)
	if err != nil {
		logger.Fatal("初始化嵌入提供方失败", zap.Error(err))
	}
	if cfg.Cache.Embedding.Enabled {
		provider = rag.NewCachedEmbeddings(provider, rdb, &cfg.Cache.Embedding)
	}

	// 向量存储
	var vectors rag.VectorStore
	switch cfg.RAG.VectorStore.Type {
	case "pgvector":
		vectors = rag.NewPgVectorStore(db, provider)
	default:
		vectors, err = rag.NewFileVectorStore(cfg.RAG.VectorStore.IndexPath, provider)
		if err != nil {
			logger.Fatal("初始化向量存储失败", zap.Error(err))
		}
	}

	// 生成客户端
	var gen ai.GenerationClient
	gen, err = gemini.NewClient(&cfg.AI.Gemini)
	if err != nil {
		logger.Fatal("初始化生成客户端失败", zap.Error(err))
	}

	// 任务队列（可选，未启用时文档同步索引）
	var enqueuer rag.IndexEnqueuer
	var queueClient queue.Client
	if cfg.Queue.Enabled {
		queueClient = queue.NewClient(cfg.Redis)
		defer queueClient.Close()
		enqueuer = queueClient
	}

	// 问答编排服务
	ragService := rag.NewRAGService(
		rag.NewChunker(cfg.RAG.ChunkSize),
		rag.NewRetriever(vectors, provider, &cfg.RAG),
		vectors,
		rag.NewPromptBuilder(cfg.RAG.MaxContextTokens),
		gen,
		models.NewStore(db),
		parsers.NewRegistry(),
		enqueuer,
	)

	// Worker（与 HTTP 服务同进程运行）
	var workerServer *worker.Server
	if cfg.Queue.Enabled {
		workerServer = worker.NewServer(cfg.Redis, cfg.Queue, ragService, logger.Get())
		if err := workerServer.Start(); err != nil {
			logger.Fatal("启动 Worker 失败", zap.Error(err))
		}
	}

	// HTTP 服务
	router := api.SetupRouter(cfg, ragService)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务监听中", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务异常退出", zap.Error(err))
		}
	}()

	// 优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("收到退出信号，开始停机...")

	if workerServer != nil {
		workerServer.Shutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP 服务停机失败", zap.Error(err))
	}

	logger.Info("应用已退出")
}

// buildEmbeddingProvider 按配置选择嵌入提供方
func buildEmbeddingProvider(cfg *config.Config) (rag.EmbeddingProvider, error) {
	switch cfg.RAG.EmbeddingProvider {
	case "openai":
		return rag.NewOpenAIEmbeddings(&cfg.AI.OpenAI)
	default:
		return rag.NewGeminiEmbeddings(&cfg.AI.Gemini)
	}
}

// loadEnvFile 依次尝试加载当前目录及上级目录的 .env 文件
func loadEnvFile() {
	if path := resolveEnvPath(); path != "" {
		if err := godotenv.Load(path); err != nil {
			fmt.Printf("加载环境变量文件 %s 失败: %v\n", path, err)
		} else {
			fmt.Printf("已加载环境变量文件: %s\n", path)
		}
	}
}

// resolveEnvPath 从工作目录向上找最近的 .env
func resolveEnvPath() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ".env")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
