package rag

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"backend/internal/config"
)

const (
	defaultOpenAIEmbeddingModel = "text-embedding-3-small"
	defaultOpenAIEmbeddingDims  = 1536
)

// OpenAIEmbeddings OpenAI 嵌入提供方（备选）
// OpenAI 的嵌入接口不区分文档与查询任务类型
type OpenAIEmbeddings struct {
	client *openai.Client
	model  string
	dims   int
}

// NewOpenAIEmbeddings 创建 OpenAI 嵌入提供方
func NewOpenAIEmbeddings(cfg *config.OpenAIConfig) (*OpenAIEmbeddings, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API Key 不能为空")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.EmbeddingModel
	if model == "" {
		model = defaultOpenAIEmbeddingModel
	}

	return &OpenAIEmbeddings{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		dims:   defaultOpenAIEmbeddingDims,
	}, nil
}

// EmbedDocuments 批量向量化文档分块
func (o *OpenAIEmbeddings) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		return nil, fmt.Errorf("调用 OpenAI 嵌入接口失败: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("嵌入数量不匹配: 期望 %d 实际 %d", len(texts), len(resp.Data))
	}

	vectors := make([][]float32, 0, len(resp.Data))
	for _, item := range resp.Data {
		vectors = append(vectors, l2Normalize(item.Embedding))
	}
	return vectors, nil
}

// EmbedQuery 向量化检索查询
func (o *OpenAIEmbeddings) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := o.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("嵌入响应为空")
	}
	return vectors[0], nil
}

// Dimensions 返回向量维度
func (o *OpenAIEmbeddings) Dimensions() int { return o.dims }

// Model 返回嵌入模型名称
func (o *OpenAIEmbeddings) Model() string { return o.model }

// ProviderName 返回提供方标识
func (o *OpenAIEmbeddings) ProviderName() string { return "openai" }
