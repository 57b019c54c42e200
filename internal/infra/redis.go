package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"backend/internal/config"
	"backend/internal/logger"
)

var globalRedis *redis.Client

// InitRedis 初始化 Redis 连接并做一次连通性探测
func InitRedis(cfg *config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}

	globalRedis = rdb
	logger.Info("Redis 连接成功",
		zap.String("addr", cfg.Addr()),
		zap.Int("db", cfg.DB))
	return rdb, nil
}

// CloseRedis 关闭 Redis 连接
func CloseRedis() {
	if globalRedis != nil {
		if err := globalRedis.Close(); err != nil {
			logger.Error("关闭 Redis 连接失败", zap.Error(err))
		}
	}
}

// GetRedis 获取全局 Redis 客户端
func GetRedis() *redis.Client {
	return globalRedis
}
