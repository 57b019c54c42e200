package rag

import (
	"context"
	"errors"
)

// Chunk 描述一段待索引的文档片段，创建后不可变
type Chunk struct {
	Content  string
	Metadata map[string]any
}

// IndexEntry 元数据伴随文件中的一条记录
// Position 必须等于该条目在向量索引中的偏移，这是检索正确性的核心不变量
type IndexEntry struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
	Position int            `json:"position"`
}

// RetrievalResult 一次相似度检索的单条结果，仅在查询期间存在
type RetrievalResult struct {
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
	Similarity float64        `json:"similarity"` // 内积相似度 [-1,1]
	Rank       int            `json:"rank"`       // 从 1 开始
}

// KnowledgeStats 某个用户知识库的统计信息
type KnowledgeStats struct {
	TotalChunks int64 `json:"totalChunks"`
	Dimension   int   `json:"dimension"`
}

var (
	// ErrIndexCorrupt 向量索引与元数据长度不一致，该用户的知识库需要重建
	ErrIndexCorrupt = errors.New("向量索引与元数据不一致")

	// ErrEmptyDocument 文档解析后没有有效文本
	ErrEmptyDocument = errors.New("文档内容为空")
)

// VectorStore 按用户分区的向量存储
// 缺失的知识库按空处理而非报错；同一用户的写入必须串行
type VectorStore interface {
	AddChunks(ctx context.Context, userID string, chunks []Chunk) error
	Search(ctx context.Context, userID string, queryVector []float32, topK int) ([]RetrievalResult, error)
	DeleteUser(ctx context.Context, userID string) error
	Stats(ctx context.Context, userID string) (*KnowledgeStats, error)
}
