package rag

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"backend/internal/logger"
	"backend/internal/metrics"
)

// KnowledgeChunk pgvector 模式下的分块记录
type KnowledgeChunk struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UserID    string          `gorm:"type:varchar(64);index;not null"`
	Content   string          `gorm:"type:text;not null"`
	Metadata  datatypes.JSON  `gorm:"type:jsonb"`
	Position  int             `gorm:"not null"`
	Embedding pgvector.Vector `gorm:"type:vector(768)"`
}

// TableName 指定表名
func (KnowledgeChunk) TableName() string { return "knowledge_chunks" }

// PgVectorStore 基于 PostgreSQL + pgvector 扩展的向量存储
// 并发控制交给数据库事务，无需进程内用户锁
type PgVectorStore struct {
	db       *gorm.DB
	provider EmbeddingProvider
}

// NewPgVectorStore 创建 pgvector 向量存储
func NewPgVectorStore(db *gorm.DB, provider EmbeddingProvider) *PgVectorStore {
	return &PgVectorStore{db: db, provider: provider}
}

// AddChunks 向量化分块并在事务内写入
func (s *PgVectorStore) AddChunks(ctx context.Context, userID string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		texts = append(texts, chunk.Content)
	}

	vectors, err := s.provider.EmbedDocuments(ctx, texts)
	if err != nil || len(vectors) != len(texts) {
		logger.Warn("批量向量化失败，逐条降级重试", zap.Error(err))
		vectors = make([][]float32, 0, len(texts))
		for _, text := range texts {
			single, err := s.provider.EmbedDocuments(ctx, []string{text})
			if err != nil || len(single) != 1 {
				metrics.EmbeddingFallbacksTotal.Inc()
				vectors = append(vectors, zeroVector(s.provider.Dimensions()))
				continue
			}
			vectors = append(vectors, single[0])
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var base int64
		if err := tx.Model(&KnowledgeChunk{}).Where("user_id = ?", userID).Count(&base).Error; err != nil {
			return fmt.Errorf("统计已有分块失败: %w", err)
		}

		records := make([]KnowledgeChunk, 0, len(chunks))
		for i, chunk := range chunks {
			meta, err := json.Marshal(chunk.Metadata)
			if err != nil {
				return fmt.Errorf("序列化分块元数据失败: %w", err)
			}
			records = append(records, KnowledgeChunk{
				ID:        uuid.New(),
				UserID:    userID,
				Content:   chunk.Content,
				Metadata:  datatypes.JSON(meta),
				Position:  int(base) + i,
				Embedding: pgvector.NewVector(vectors[i]),
			})
		}

		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("写入分块失败: %w", err)
		}
		metrics.ChunksIndexedTotal.Add(float64(len(records)))
		return nil
	})
}

// Search 按内积降序检索前 topK 条
// pgvector 的 <#> 返回负内积，取反后得到相似度
func (s *PgVectorStore) Search(ctx context.Context, userID string, queryVector []float32, topK int) ([]RetrievalResult, error) {
	if topK <= 0 {
		return nil, nil
	}

	var rows []struct {
		Content    string
		Metadata   datatypes.JSON
		Similarity float64
	}

	err := s.db.WithContext(ctx).
		Model(&KnowledgeChunk{}).
		Select("content, metadata, -(embedding <#> ?) AS similarity", pgvector.NewVector(queryVector)).
		Where("user_id = ?", userID).
		Order("similarity DESC").
		Limit(topK).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("pgvector 检索失败: %w", err)
	}

	results := make([]RetrievalResult, 0, len(rows))
	for i, row := range rows {
		var meta map[string]any
		if len(row.Metadata) > 0 {
			if err := json.Unmarshal(row.Metadata, &meta); err != nil {
				meta = nil
			}
		}
		results = append(results, RetrievalResult{
			Content:    row.Content,
			Metadata:   meta,
			Similarity: row.Similarity,
			Rank:       i + 1,
		})
	}
	return results, nil
}

// DeleteUser 删除该用户的全部分块，无记录时同样成功
func (s *PgVectorStore) DeleteUser(ctx context.Context, userID string) error {
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&KnowledgeChunk{}).Error; err != nil {
		return fmt.Errorf("删除用户分块失败: %w", err)
	}
	return nil
}

// Stats 返回该用户知识库的统计信息
func (s *PgVectorStore) Stats(ctx context.Context, userID string) (*KnowledgeStats, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&KnowledgeChunk{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("统计用户分块失败: %w", err)
	}
	return &KnowledgeStats{
		TotalChunks: count,
		Dimension:   s.provider.Dimensions(),
	}, nil
}
