package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"backend/internal/config"
	"backend/internal/logger"
)

// CachedEmbeddings 嵌入缓存装饰器
// 一级为进程内 sync.Map，二级为可选的 Redis；同一文本重复向量化直接命中
type CachedEmbeddings struct {
	inner  EmbeddingProvider
	local  sync.Map // key -> []float32
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewCachedEmbeddings 包装嵌入提供方并启用缓存
// rdb 为 nil 时仅使用进程内缓存
func NewCachedEmbeddings(inner EmbeddingProvider, rdb *redis.Client, cfg *config.EmbeddingCacheConfig) *CachedEmbeddings {
	prefix := "emb"
	ttl := 168 * time.Hour

	if cfg != nil {
		if cfg.Prefix != "" {
			prefix = cfg.Prefix
		}
		if cfg.TTL != "" {
			if d, err := time.ParseDuration(cfg.TTL); err == nil && d > 0 {
				ttl = d
			}
		}
	}

	return &CachedEmbeddings{
		inner:  inner,
		rdb:    rdb,
		prefix: prefix,
		ttl:    ttl,
	}
}

// cacheKey 以提供方、模型、任务类型与文本内容生成缓存键
func (c *CachedEmbeddings) cacheKey(taskType, text string) string {
	sum := sha256.Sum256([]byte(c.inner.ProviderName() + ":" + c.inner.Model() + ":" + taskType + ":" + text))
	return c.prefix + ":" + hex.EncodeToString(sum[:])
}

// EmbedDocuments 批量向量化，逐条查缓存，仅未命中部分走底层提供方
func (c *CachedEmbeddings) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	missing := make([]string, 0)
	missingIdx := make([]int, 0)

	for i, text := range texts {
		if vec, ok := c.get(ctx, c.cacheKey(taskTypeDocument, text)); ok {
			vectors[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return vectors, nil
	}

	fresh, err := c.inner.EmbedDocuments(ctx, missing)
	if err != nil {
		return nil, err
	}

	for j, vec := range fresh {
		vectors[missingIdx[j]] = vec
		c.put(ctx, c.cacheKey(taskTypeDocument, missing[j]), vec)
	}
	return vectors, nil
}

// EmbedQuery 向量化检索查询，带缓存
func (c *CachedEmbeddings) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(taskTypeQuery, text)
	if vec, ok := c.get(ctx, key); ok {
		return vec, nil
	}

	vec, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.put(ctx, key, vec)
	return vec, nil
}

func (c *CachedEmbeddings) get(ctx context.Context, key string) ([]float32, bool) {
	if v, ok := c.local.Load(key); ok {
		return v.([]float32), true
	}

	if c.rdb == nil {
		return nil, false
	}

	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		// 未命中或 Redis 不可用都静默降级到底层提供方
		return nil, false
	}

	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		logger.Warn("嵌入缓存反序列化失败", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	c.local.Store(key, vec)
	return vec, true
}

func (c *CachedEmbeddings) put(ctx context.Context, key string, vec []float32) {
	c.local.Store(key, vec)

	if c.rdb == nil {
		return
	}

	data, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logger.Warn("嵌入缓存写入 Redis 失败", zap.String("key", key), zap.Error(err))
	}
}

// Dimensions 返回底层向量维度
func (c *CachedEmbeddings) Dimensions() int { return c.inner.Dimensions() }

// Model 返回底层模型名称
func (c *CachedEmbeddings) Model() string { return c.inner.Model() }

// ProviderName 返回底层提供方标识
func (c *CachedEmbeddings) ProviderName() string { return c.inner.ProviderName() }
