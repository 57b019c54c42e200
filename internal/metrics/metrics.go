package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memorykeeper_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memorykeeper_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// 文档摄取指标
var (
	// DocumentIngestsTotal 文档摄取总数
	DocumentIngestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memorykeeper_document_ingests_total",
			Help: "文档摄取总数",
		},
		[]string{"status"},
	)

	// DocumentIngestDuration 文档摄取耗时（秒）
	DocumentIngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "memorykeeper_document_ingest_duration_seconds",
			Help:    "文档摄取耗时分布",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	// ChunksIndexedTotal 已索引分块总数
	ChunksIndexedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "memorykeeper_chunks_indexed_total",
			Help: "已写入向量索引的分块总数",
		},
	)

	// EmbeddingFallbacksTotal 嵌入失败降级为零向量的次数
	EmbeddingFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "memorykeeper_embedding_fallbacks_total",
			Help: "嵌入提供商失败后降级为零向量的次数",
		},
	)
)

// 检索与问答指标
var (
	// KBSearchesTotal 向量检索总数
	KBSearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memorykeeper_kb_searches_total",
			Help: "知识库向量检索总数",
		},
		[]string{"status"},
	)

	// KBSearchDuration 检索耗时（秒）
	KBSearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "memorykeeper_kb_search_duration_seconds",
			Help:    "知识库检索耗时分布",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	// KBSearchResults 每次检索返回的结果数
	KBSearchResults = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "memorykeeper_kb_search_results",
			Help:    "每次检索返回的结果数分布",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		},
	)

	// AnswerConfidence 回答置信度分布
	AnswerConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "memorykeeper_answer_confidence",
			Help:    "回答置信度分布 [0,1]",
			Buckets: []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		},
	)

	// GenerationFallbacksTotal 生成失败降级为固定话术的次数
	GenerationFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memorykeeper_generation_fallbacks_total",
			Help: "文本生成失败后使用兜底话术的次数",
		},
		[]string{"reason"}, // blocked, empty, error, quota
	)

	// IndexCorruptionsTotal 索引与元数据不一致被检出的次数
	IndexCorruptionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "memorykeeper_index_corruptions_total",
			Help: "加载时检出索引与元数据长度不一致的次数",
		},
	)
)
