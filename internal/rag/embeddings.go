package rag

import (
	"context"
	"math"
)

// EmbeddingProvider 文本向量化提供方
// 实现方负责批量文档向量化与查询向量化，两者可携带不同的任务类型提示
type EmbeddingProvider interface {
	// EmbedDocuments 批量向量化文档分块
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery 向量化检索查询
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimensions 返回向量维度
	Dimensions() int
	// Model 返回底层模型名称
	Model() string
	// ProviderName 返回提供方标识
	ProviderName() string
}

// l2Normalize 原地做 L2 归一化，归一化后内积等价于余弦相似度
// 零向量保持原样返回
func l2Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}

	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// zeroVector 生成指定维度的零向量，作为向量化失败时的降级占位
func zeroVector(dim int) []float32 {
	return make([]float32, dim)
}

// isZeroVector 判断是否为零向量
func isZeroVector(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
