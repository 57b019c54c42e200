package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"backend/internal/config"
	"backend/internal/logger"
	"backend/internal/metrics"
)

// Retriever 相似度检索器
// 先按阈值过滤，全部低于阈值时保留少量兜底结果，避免完全无上下文
type Retriever struct {
	store       VectorStore
	provider    EmbeddingProvider
	maxChunks   int
	threshold   float64
	minFallback int
}

// NewRetriever 创建检索器
func NewRetriever(store VectorStore, provider EmbeddingProvider, cfg *config.RagConfig) *Retriever {
	maxChunks := cfg.MaxChunks
	if maxChunks <= 0 {
		maxChunks = 3
	}
	threshold := cfg.SimilarityThreshold
	if threshold <= 0 {
		threshold = 0.7
	}
	minFallback := cfg.MinFallback
	if minFallback <= 0 {
		minFallback = 1
	}

	return &Retriever{
		store:       store,
		provider:    provider,
		maxChunks:   maxChunks,
		threshold:   threshold,
		minFallback: minFallback,
	}
}

// preprocessQuery 规范化查询：小写并压缩空白
func preprocessQuery(question string) string {
	return strings.ToLower(strings.Join(strings.Fields(question), " "))
}

// Retrieve 针对问题检索相关分块
// 查询向量化失败时以零向量降级，此时所有相似度为 0，仅兜底结果返回
func (r *Retriever) Retrieve(ctx context.Context, userID, question string) ([]RetrievalResult, error) {
	start := time.Now()

	query := preprocessQuery(question)
	if query == "" {
		return nil, nil
	}

	queryVector, err := r.provider.EmbedQuery(ctx, query)
	if err != nil {
		logger.Warn("查询向量化失败，使用零向量降级",
			zap.String("user_id", userID), zap.Error(err))
		metrics.EmbeddingFallbacksTotal.Inc()
		queryVector = zeroVector(r.provider.Dimensions())
	}

	candidates, err := r.store.Search(ctx, userID, queryVector, r.maxChunks)
	if err != nil {
		metrics.KBSearchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("向量检索失败: %w", err)
	}

	results := r.applyThreshold(candidates)

	metrics.KBSearchesTotal.WithLabelValues("ok").Inc()
	metrics.KBSearchDuration.Observe(time.Since(start).Seconds())
	metrics.KBSearchResults.Observe(float64(len(results)))

	logger.Debug("知识库检索完成",
		zap.String("user_id", userID),
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(results)))

	return results, nil
}

// applyThreshold 阈值过滤与兜底
// 候选已按相似度降序；无一达标时保留前 minFallback 条
func (r *Retriever) applyThreshold(candidates []RetrievalResult) []RetrievalResult {
	if len(candidates) == 0 {
		return nil
	}

	passed := make([]RetrievalResult, 0, len(candidates))
	for _, c := range candidates {
		if c.Similarity >= r.threshold {
			passed = append(passed, c)
		}
	}
	if len(passed) > 0 {
		return passed
	}

	n := r.minFallback
	if n > len(candidates) {
		n = len(candidates)
	}
	fallback := candidates[:n]

	// 兜底结果重排名次
	for i := range fallback {
		fallback[i].Rank = i + 1
	}
	return fallback
}
