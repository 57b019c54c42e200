package knowledge

import (
	"context"

	"backend/internal/models"
	"backend/internal/rag"
)

// Service 知识库问答服务的操作口
type Service interface {
	IngestDocument(ctx context.Context, userID, filename string, data []byte) (*models.Document, error)
	ListDocuments(ctx context.Context, userID string) ([]*models.Document, error)
	DeleteDocument(ctx context.Context, userID, documentID string) (bool, error)
	Answer(ctx context.Context, userID, question string) (*rag.AnswerResult, error)
	History(ctx context.Context, userID string, limit int) ([]*models.ChatMessage, error)
	Stats(ctx context.Context, userID string) (*rag.DocumentStats, error)
	Reset(ctx context.Context, userID string) error
}

// AskRequest 提问请求体
type AskRequest struct {
	Question string `json:"question" binding:"required"`
}
