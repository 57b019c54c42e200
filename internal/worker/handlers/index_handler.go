package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"backend/internal/rag"
	"backend/internal/worker/tasks"
)

// IndexHandler 文档索引任务处理器
type IndexHandler struct {
	ragService *rag.RAGService
	logger     *zap.Logger
}

// NewIndexHandler 创建索引任务处理器
func NewIndexHandler(ragService *rag.RAGService, logger *zap.Logger) *IndexHandler {
	return &IndexHandler{ragService: ragService, logger: logger}
}

// HandleIndexDocument 执行文档索引
func (h *IndexHandler) HandleIndexDocument(ctx context.Context, task *asynq.Task) error {
	var payload tasks.IndexDocumentPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("解析任务载荷失败: %w", err)
	}

	h.logger.Info("开始索引文档", zap.String("document_id", payload.DocumentID))

	if err := h.ragService.IndexDocument(ctx, payload.DocumentID); err != nil {
		h.logger.Error("文档索引失败",
			zap.String("document_id", payload.DocumentID),
			zap.Error(err))
		return err
	}
	return nil
}
