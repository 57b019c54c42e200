package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"backend/internal/logger"
	"backend/internal/metrics"
)

// FileVectorStore 文件落盘的向量存储
// 每个用户一份平铺索引文件与一份 JSON 元数据伴随文件，两者按位置一一对应
type FileVectorStore struct {
	root     string
	provider EmbeddingProvider

	mu    sync.Mutex
	locks map[string]*sync.RWMutex // 按用户分锁，同一用户写入串行
}

// NewFileVectorStore 创建文件向量存储
func NewFileVectorStore(root string, provider EmbeddingProvider) (*FileVectorStore, error) {
	if root == "" {
		return nil, fmt.Errorf("索引根目录不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("创建索引根目录失败: %w", err)
	}

	return &FileVectorStore{
		root:     root,
		provider: provider,
		locks:    make(map[string]*sync.RWMutex),
	}, nil
}

// userLock 获取该用户的读写锁，首次访问时创建
func (s *FileVectorStore) userLock(userID string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.RWMutex{}
		s.locks[userID] = lock
	}
	return lock
}

func (s *FileVectorStore) indexPath(userID string) string {
	return filepath.Join(s.root, fmt.Sprintf("user_%s.index", userID))
}

func (s *FileVectorStore) metadataPath(userID string) string {
	return filepath.Join(s.root, fmt.Sprintf("user_%s_metadata.json", userID))
}

// AddChunks 向量化分块并追加到该用户的索引
// 单个分块向量化失败时降级为零向量，保持索引与元数据位置对齐
func (s *FileVectorStore) AddChunks(ctx context.Context, userID string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	vectors := s.embedWithFallback(ctx, chunks)

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	idx, entries, err := s.loadLocked(userID)
	if err != nil {
		return err
	}

	base := idx.Count()
	if err := idx.Add(vectors...); err != nil {
		return fmt.Errorf("追加向量失败: %w", err)
	}
	for i, chunk := range chunks {
		entries = append(entries, IndexEntry{
			Content:  chunk.Content,
			Metadata: chunk.Metadata,
			Position: base + i,
		})
	}

	if err := idx.Save(s.indexPath(userID)); err != nil {
		return fmt.Errorf("保存索引失败: %w", err)
	}
	if err := s.saveMetadata(userID, entries); err != nil {
		return fmt.Errorf("保存元数据失败: %w", err)
	}

	metrics.ChunksIndexedTotal.Add(float64(len(chunks)))
	return nil
}

// embedWithFallback 向量化所有分块
// 批量失败时逐条重试，单条仍失败则以零向量占位
func (s *FileVectorStore) embedWithFallback(ctx context.Context, chunks []Chunk) [][]float32 {
	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		texts = append(texts, chunk.Content)
	}

	vectors, err := s.provider.EmbedDocuments(ctx, texts)
	if err == nil && len(vectors) == len(texts) {
		return vectors
	}

	logger.Warn("批量向量化失败，逐条降级重试", zap.Error(err))

	dims := s.provider.Dimensions()
	vectors = make([][]float32, 0, len(texts))
	for _, text := range texts {
		single, err := s.provider.EmbedDocuments(ctx, []string{text})
		if err != nil || len(single) != 1 {
			logger.Warn("分块向量化失败，使用零向量占位", zap.Error(err))
			metrics.EmbeddingFallbacksTotal.Inc()
			vectors = append(vectors, zeroVector(dims))
			continue
		}
		vectors = append(vectors, single[0])
	}
	return vectors
}

// Search 在该用户的索引中按内积检索前 topK 条
// 用户尚无知识库时返回空结果
func (s *FileVectorStore) Search(ctx context.Context, userID string, queryVector []float32, topK int) ([]RetrievalResult, error) {
	lock := s.userLock(userID)
	lock.RLock()
	defer lock.RUnlock()

	idx, entries, err := s.loadLocked(userID)
	if err != nil {
		return nil, err
	}
	if idx.Count() == 0 {
		return nil, nil
	}

	hits, err := idx.Search(queryVector, topK)
	if err != nil {
		return nil, fmt.Errorf("检索失败: %w", err)
	}

	results := make([]RetrievalResult, 0, len(hits))
	for i, hit := range hits {
		entry := entries[hit.Position]
		results = append(results, RetrievalResult{
			Content:    entry.Content,
			Metadata:   entry.Metadata,
			Similarity: float64(hit.Score),
			Rank:       i + 1,
		})
	}
	return results, nil
}

// DeleteUser 删除该用户的索引与元数据，不存在时视为成功
func (s *FileVectorStore) DeleteUser(ctx context.Context, userID string) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	for _, path := range []string{s.indexPath(userID), s.metadataPath(userID)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("删除 %s 失败: %w", path, err)
		}
	}
	return nil
}

// Stats 返回该用户知识库的统计信息
func (s *FileVectorStore) Stats(ctx context.Context, userID string) (*KnowledgeStats, error) {
	lock := s.userLock(userID)
	lock.RLock()
	defer lock.RUnlock()

	idx, _, err := s.loadLocked(userID)
	if err != nil {
		return nil, err
	}
	return &KnowledgeStats{
		TotalChunks: int64(idx.Count()),
		Dimension:   idx.Dim(),
	}, nil
}

// loadLocked 加载该用户的索引与元数据，调用方必须已持锁
// 文件不存在时返回空索引；索引与元数据长度或位置不一致时返回 ErrIndexCorrupt
func (s *FileVectorStore) loadLocked(userID string) (*FlatIndex, []IndexEntry, error) {
	idx, err := LoadFlatIndex(s.indexPath(userID))
	if os.IsNotExist(err) {
		empty, err := NewFlatIndex(s.provider.Dimensions())
		if err != nil {
			return nil, nil, err
		}
		return empty, nil, nil
	}
	if err != nil {
		if errors.Is(err, ErrIndexCorrupt) {
			s.reportCorruption(userID, err)
		}
		return nil, nil, err
	}

	data, err := os.ReadFile(s.metadataPath(userID))
	if err != nil {
		corrupt := fmt.Errorf("%w: 读取元数据失败: %v", ErrIndexCorrupt, err)
		s.reportCorruption(userID, corrupt)
		return nil, nil, corrupt
	}

	var entries []IndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		corrupt := fmt.Errorf("%w: 解析元数据失败: %v", ErrIndexCorrupt, err)
		s.reportCorruption(userID, corrupt)
		return nil, nil, corrupt
	}

	// 核心不变量：元数据条数与索引向量数一致，且位置字段与下标对齐
	if len(entries) != idx.Count() {
		corrupt := fmt.Errorf("%w: 索引 %d 条，元数据 %d 条", ErrIndexCorrupt, idx.Count(), len(entries))
		s.reportCorruption(userID, corrupt)
		return nil, nil, corrupt
	}
	for i, entry := range entries {
		if entry.Position != i {
			corrupt := fmt.Errorf("%w: 第 %d 条元数据位置为 %d", ErrIndexCorrupt, i, entry.Position)
			s.reportCorruption(userID, corrupt)
			return nil, nil, corrupt
		}
	}

	return idx, entries, nil
}

func (s *FileVectorStore) reportCorruption(userID string, err error) {
	metrics.IndexCorruptionsTotal.Inc()
	logger.Error("用户知识库索引损坏", zap.String("user_id", userID), zap.Error(err))
}

// saveMetadata 原子写元数据伴随文件
func (s *FileVectorStore) saveMetadata(userID string, entries []IndexEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("序列化元数据失败: %w", err)
	}

	path := s.metadataPath(userID)
	tmp, err := os.CreateTemp(s.root, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("创建临时元数据文件失败: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("写入元数据失败: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("刷新元数据失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("关闭临时元数据文件失败: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("替换元数据文件失败: %w", err)
	}
	return nil
}
