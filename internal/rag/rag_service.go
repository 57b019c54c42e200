package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"backend/internal/ai"
	"backend/internal/logger"
	"backend/internal/metrics"
	"backend/internal/models"
	"backend/internal/rag/parsers"
)

// 生成失败时的固定话术，语气与正常回答保持一致
const (
	fallbackErrorAnswer   = "I'm having a little trouble right now. Please try asking me again in a moment."
	fallbackQuotaAnswer   = "I need a short rest right now. Please ask me again in a few minutes."
	fallbackBlockedAnswer = "I can't help with that question, but I'm happy to help you remember things about your day."
)

// 生成参数，低温度保证回答贴近检索到的事实
var answerGenerationOptions = ai.GenerationOptions{
	Temperature: 0.2,
	MaxTokens:   400,
	TopP:        0.7,
}

// IndexEnqueuer 文档索引任务的异步入队口
type IndexEnqueuer interface {
	EnqueueIndexDocument(ctx context.Context, documentID string) error
}

// AnswerResult 一次问答的完整结果
type AnswerResult struct {
	Question    string            `json:"question"`
	Answer      string            `json:"answer"`
	Confidence  float64           `json:"confidence"`
	SourcesUsed int               `json:"sourcesUsed"`
	Sources     []RetrievalResult `json:"sources,omitempty"`
}

// RAGService 知识库问答编排服务
// 串联解析、分块、向量化、检索与生成，并维护文档与对话记录
type RAGService struct {
	chunker   *Chunker
	retriever *Retriever
	vectors   VectorStore
	prompts   *PromptBuilder
	gen       ai.GenerationClient
	data      *models.Store
	parsers   *parsers.Registry
	enqueuer  IndexEnqueuer // 为 nil 时文档在请求内同步索引
}

// NewRAGService 创建问答编排服务
func NewRAGService(
	chunker *Chunker,
	retriever *Retriever,
	vectors VectorStore,
	prompts *PromptBuilder,
	gen ai.GenerationClient,
	data *models.Store,
	registry *parsers.Registry,
	enqueuer IndexEnqueuer,
) *RAGService {
	return &RAGService{
		chunker:   chunker,
		retriever: retriever,
		vectors:   vectors,
		prompts:   prompts,
		gen:       gen,
		data:      data,
		parsers:   registry,
		enqueuer:  enqueuer,
	}
}

// IngestDocument 接收上传的文档：解析、建档，然后同步索引或投递异步任务
func (s *RAGService) IngestDocument(ctx context.Context, userID, filename string, data []byte) (*models.Document, error) {
	start := time.Now()

	text, err := s.parsers.Parse(filename, data)
	if err != nil {
		metrics.DocumentIngestsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		metrics.DocumentIngestsTotal.WithLabelValues("failed").Inc()
		return nil, ErrEmptyDocument
	}

	meta, err := json.Marshal(ExtractMetadata(text))
	if err != nil {
		return nil, fmt.Errorf("序列化文档元数据失败: %w", err)
	}

	doc := &models.Document{
		ID:       uuid.NewString(),
		UserID:   userID,
		Filename: filename,
		Content:  text,
		Metadata: datatypes.JSON(meta),
		Status:   models.StatusPending,
	}
	if err := s.data.CreateDocument(ctx, doc); err != nil {
		metrics.DocumentIngestsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	if s.enqueuer != nil {
		if err := s.enqueuer.EnqueueIndexDocument(ctx, doc.ID); err != nil {
			// 入队失败退回同步索引，文档不能停留在 pending
			logger.Warn("索引任务入队失败，改为同步索引",
				zap.String("document_id", doc.ID), zap.Error(err))
		} else {
			metrics.DocumentIngestsTotal.WithLabelValues("queued").Inc()
			return doc, nil
		}
	}

	if err := s.IndexDocument(ctx, doc.ID); err != nil {
		metrics.DocumentIngestsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	doc.Status = models.StatusIndexed
	metrics.DocumentIngestsTotal.WithLabelValues("ok").Inc()
	metrics.DocumentIngestDuration.Observe(time.Since(start).Seconds())
	return doc, nil
}

// IndexDocument 对已建档的文档执行分块与向量索引
// 索引损坏时先重建该用户的知识库再重试一次
func (s *RAGService) IndexDocument(ctx context.Context, documentID string) error {
	doc, err := s.data.GetDocumentByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("文档不存在: %s", documentID)
	}

	chunks := s.chunker.Chunk(doc.Content)
	if len(chunks) == 0 {
		_ = s.data.UpdateDocumentStatus(ctx, documentID, models.StatusFailed)
		return ErrEmptyDocument
	}

	err = s.vectors.AddChunks(ctx, doc.UserID, chunks)
	if errors.Is(err, ErrIndexCorrupt) {
		if rebuildErr := s.RebuildUserIndex(ctx, doc.UserID); rebuildErr != nil {
			_ = s.data.UpdateDocumentStatus(ctx, documentID, models.StatusFailed)
			return fmt.Errorf("索引损坏且重建失败: %w", rebuildErr)
		}
		err = s.vectors.AddChunks(ctx, doc.UserID, chunks)
	}
	if err != nil {
		_ = s.data.UpdateDocumentStatus(ctx, documentID, models.StatusFailed)
		return err
	}

	if err := s.data.MarkDocumentIndexed(ctx, documentID, len(chunks)); err != nil {
		return err
	}

	logger.Info("文档索引完成",
		zap.String("document_id", documentID),
		zap.String("user_id", doc.UserID),
		zap.Int("chunks", len(chunks)))
	return nil
}

// RebuildUserIndex 清空该用户的向量索引并从文档原文重建
func (s *RAGService) RebuildUserIndex(ctx context.Context, userID string) error {
	logger.Warn("开始重建用户知识库索引", zap.String("user_id", userID))

	if err := s.vectors.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("清空损坏索引失败: %w", err)
	}

	docs, err := s.data.ListDocuments(ctx, userID)
	if err != nil {
		return err
	}

	total := 0
	for _, doc := range docs {
		// 尚未索引过的文档由各自的索引流程负责，避免重复写入
		if doc.Status != models.StatusIndexed {
			continue
		}
		chunks := s.chunker.Chunk(doc.Content)
		if len(chunks) == 0 {
			continue
		}
		if err := s.vectors.AddChunks(ctx, userID, chunks); err != nil {
			return fmt.Errorf("重建时索引文档 %s 失败: %w", doc.ID, err)
		}
		_ = s.data.MarkDocumentIndexed(ctx, doc.ID, len(chunks))
		total += len(chunks)
	}

	logger.Info("用户知识库索引重建完成",
		zap.String("user_id", userID), zap.Int("chunks", total))
	return nil
}

// Answer 回答用户问题：检索上下文、调用生成、计算置信度并尽力留痕
func (s *RAGService) Answer(ctx context.Context, userID, question string) (*AnswerResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("问题不能为空")
	}

	results, err := s.retriever.Retrieve(ctx, userID, question)
	if errors.Is(err, ErrIndexCorrupt) {
		if rebuildErr := s.RebuildUserIndex(ctx, userID); rebuildErr != nil {
			return nil, fmt.Errorf("索引损坏且重建失败: %w", rebuildErr)
		}
		results, err = s.retriever.Retrieve(ctx, userID, question)
	}
	if err != nil {
		return nil, err
	}

	prompt := s.prompts.Build(question, results)
	answer := s.generateAnswer(ctx, prompt)

	// 置信度只由检索质量与来源数量决定，与生成结果无关，
	// 兜底话术同样携带检索推导出的分值
	confidence := computeConfidence(results)
	metrics.AnswerConfidence.Observe(confidence)

	result := &AnswerResult{
		Question:    question,
		Answer:      answer,
		Confidence:  confidence,
		SourcesUsed: len(results),
		Sources:     results,
	}

	// 对话留痕尽力而为，失败不影响本次回答
	record := &models.ChatMessage{
		ID:              uuid.NewString(),
		UserID:          userID,
		Question:        question,
		Answer:          result.Answer,
		ConfidenceScore: result.Confidence,
		SourcesUsed:     result.SourcesUsed,
	}
	if err := s.data.AppendChatMessage(ctx, record); err != nil {
		logger.Warn("写入对话记录失败", zap.String("user_id", userID), zap.Error(err))
	}

	return result, nil
}

// generateAnswer 调用生成并穷举处理所有终止形态，兜底时返回固定话术
func (s *RAGService) generateAnswer(ctx context.Context, prompt string) string {
	result, err := s.gen.Generate(ctx, prompt, answerGenerationOptions)
	if err != nil {
		if ai.IsQuotaError(err) {
			logger.Warn("生成配额耗尽", zap.Error(err))
			metrics.GenerationFallbacksTotal.WithLabelValues("quota").Inc()
			return fallbackQuotaAnswer
		}
		logger.Error("生成调用失败", zap.Error(err))
		metrics.GenerationFallbacksTotal.WithLabelValues("error").Inc()
		return fallbackErrorAnswer
	}

	switch result.Outcome {
	case ai.OutcomeSuccess:
		return StripMarkdown(strings.TrimSpace(result.Text))

	case ai.OutcomeTruncated:
		// 截断的部分文本依然可用，句尾可能不完整
		logger.Warn("生成因长度限制被截断")
		return StripMarkdown(strings.TrimSpace(result.Text))

	case ai.OutcomeBlocked:
		logger.Warn("生成被安全策略拦截", zap.String("reason", result.BlockReason))
		metrics.GenerationFallbacksTotal.WithLabelValues("blocked").Inc()
		return fallbackBlockedAnswer

	case ai.OutcomeEmpty:
		logger.Warn("生成返回空结果")
		metrics.GenerationFallbacksTotal.WithLabelValues("empty").Inc()
		return fallbackErrorAnswer

	default:
		logger.Error("未知的生成终止形态", zap.Int("outcome", int(result.Outcome)))
		metrics.GenerationFallbacksTotal.WithLabelValues("error").Inc()
		return fallbackErrorAnswer
	}
}

// computeConfidence 由检索质量推导置信度
// 平均相似度加来源数量加成（每条 0.1，上限 0.3），夹在 [0,1] 并保留两位小数
func computeConfidence(results []RetrievalResult) float64 {
	if len(results) == 0 {
		return 0.0
	}

	var sum float64
	for _, r := range results {
		sum += r.Similarity
	}
	avg := sum / float64(len(results))

	bonus := 0.1 * float64(len(results))
	if bonus > 0.3 {
		bonus = 0.3
	}

	confidence := avg + bonus
	if confidence > 1.0 {
		confidence = 1.0
	}
	if confidence < 0 {
		confidence = 0
	}
	return math.Round(confidence*100) / 100
}

// DeleteDocument 删除单个文档并重建该用户的索引
// 平铺索引不支持按条删除，只能从剩余文档整体重建
func (s *RAGService) DeleteDocument(ctx context.Context, userID, documentID string) (bool, error) {
	deleted, err := s.data.DeleteDocument(ctx, documentID, userID)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}

	if err := s.RebuildUserIndex(ctx, userID); err != nil {
		return true, fmt.Errorf("文档已删除但索引重建失败: %w", err)
	}
	return true, nil
}

// ListDocuments 列出该用户的全部文档
func (s *RAGService) ListDocuments(ctx context.Context, userID string) ([]*models.Document, error) {
	return s.data.ListDocuments(ctx, userID)
}

// Reset 清空该用户的全部知识库数据：向量、文档与对话记录
// 汇总所有失败而不是在第一个失败处中断
func (s *RAGService) Reset(ctx context.Context, userID string) error {
	var errs []error

	if err := s.vectors.DeleteUser(ctx, userID); err != nil {
		errs = append(errs, fmt.Errorf("删除向量索引失败: %w", err))
	}
	if err := s.data.DeleteUserDocuments(ctx, userID); err != nil {
		errs = append(errs, err)
	}
	if err := s.data.DeleteUserChatMessages(ctx, userID); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	logger.Info("用户知识库已清空", zap.String("user_id", userID))
	return nil
}

// History 返回该用户最近的对话记录，时间正序
func (s *RAGService) History(ctx context.Context, userID string, limit int) ([]*models.ChatMessage, error) {
	return s.data.ChatHistory(ctx, userID, limit)
}

// DocumentStats 汇总知识库统计：分块、文档与对话数量
type DocumentStats struct {
	TotalChunks   int64 `json:"totalChunks"`
	Dimension     int   `json:"dimension"`
	DocumentCount int64 `json:"documentCount"`
	MessageCount  int64 `json:"messageCount"`
	Ready         bool  `json:"ready"`
}

// Stats 返回该用户知识库的全量统计
func (s *RAGService) Stats(ctx context.Context, userID string) (*DocumentStats, error) {
	vecStats, err := s.vectors.Stats(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrIndexCorrupt) {
			return nil, err
		}
		// 损坏的索引不阻断统计查询，分块数按 0 报告
		vecStats = &KnowledgeStats{}
	}

	docCount, err := s.data.CountDocuments(ctx, userID)
	if err != nil {
		return nil, err
	}
	msgCount, err := s.data.CountChatMessages(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &DocumentStats{
		TotalChunks:   vecStats.TotalChunks,
		Dimension:     vecStats.Dimension,
		DocumentCount: docCount,
		MessageCount:  msgCount,
		Ready:         vecStats.TotalChunks > 0,
	}, nil
}
