package models

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Store 文档与对话记录的持久化服务（CRUD 层）
type Store struct {
	db *gorm.DB
}

// NewStore 创建持久化服务
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateDocument 创建文档记录
func (s *Store) CreateDocument(ctx context.Context, doc *Document) error {
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("创建文档记录失败: %w", err)
	}
	return nil
}

// GetDocument 查询单个文档（校验归属用户）
func (s *Store) GetDocument(ctx context.Context, documentID, userID string) (*Document, error) {
	var doc Document
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", documentID, userID).
		First(&doc).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("查询文档失败: %w", err)
	}
	return &doc, nil
}

// GetDocumentByID 按 ID 查询文档（worker 侧使用）
func (s *Store) GetDocumentByID(ctx context.Context, documentID string) (*Document, error) {
	var doc Document
	err := s.db.WithContext(ctx).Where("id = ?", documentID).First(&doc).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("查询文档失败: %w", err)
	}
	return &doc, nil
}

// ListDocuments 列出用户全部文档
func (s *Store) ListDocuments(ctx context.Context, userID string) ([]*Document, error) {
	var docs []*Document
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("查询文档列表失败: %w", err)
	}
	return docs, nil
}

// UpdateDocumentStatus 更新文档索引状态
func (s *Store) UpdateDocumentStatus(ctx context.Context, documentID, status string) error {
	return s.db.WithContext(ctx).
		Model(&Document{}).
		Where("id = ?", documentID).
		Update("status", status).Error
}

// MarkDocumentIndexed 标记文档索引完成并记录分块数
func (s *Store) MarkDocumentIndexed(ctx context.Context, documentID string, chunkCount int) error {
	return s.db.WithContext(ctx).
		Model(&Document{}).
		Where("id = ?", documentID).
		Updates(map[string]any{
			"status":      StatusIndexed,
			"chunk_count": chunkCount,
		}).Error
}

// DeleteDocument 删除单个文档
func (s *Store) DeleteDocument(ctx context.Context, documentID, userID string) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", documentID, userID).
		Delete(&Document{})
	if res.Error != nil {
		return false, fmt.Errorf("删除文档失败: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// DeleteUserDocuments 删除用户全部文档记录，可重复调用
func (s *Store) DeleteUserDocuments(ctx context.Context, userID string) error {
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&Document{}).Error; err != nil {
		return fmt.Errorf("删除用户文档失败: %w", err)
	}
	return nil
}

// CountDocuments 统计用户文档数
func (s *Store) CountDocuments(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&Document{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("统计文档数失败: %w", err)
	}
	return count, nil
}

// AppendChatMessage 追加一条对话记录（fire-and-forget 语义由调用方保证）
func (s *Store) AppendChatMessage(ctx context.Context, msg *ChatMessage) error {
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("写入对话记录失败: %w", err)
	}
	return nil
}

// ChatHistory 按时间正序返回最近 limit 条对话
func (s *Store) ChatHistory(ctx context.Context, userID string, limit int) ([]*ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}

	var msgs []*ChatMessage
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("查询对话历史失败: %w", err)
	}

	// 倒序查询取最近 N 条，再反转为时间正序
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// CountChatMessages 统计用户对话数
func (s *Store) CountChatMessages(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&ChatMessage{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("统计对话数失败: %w", err)
	}
	return count, nil
}

// DeleteUserChatMessages 删除用户全部对话记录，可重复调用
func (s *Store) DeleteUserChatMessages(ctx context.Context, userID string) error {
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&ChatMessage{}).Error; err != nil {
		return fmt.Errorf("删除用户对话记录失败: %w", err)
	}
	return nil
}
