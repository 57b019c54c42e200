package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"backend/internal/config"
)

const (
	defaultGeminiEmbeddingModel = "text-embedding-004"
	defaultGeminiEmbeddingDims  = 768

	taskTypeDocument = "RETRIEVAL_DOCUMENT"
	taskTypeQuery    = "RETRIEVAL_QUERY"
)

// GeminiEmbeddings Google Gemini 嵌入提供方
// 文档与查询分别携带 RETRIEVAL_DOCUMENT / RETRIEVAL_QUERY 任务类型
type GeminiEmbeddings struct {
	apiKey     string
	baseURL    string
	model      string
	dims       int
	httpClient *http.Client
}

// NewGeminiEmbeddings 创建 Gemini 嵌入提供方
func NewGeminiEmbeddings(cfg *config.GeminiConfig) (*GeminiEmbeddings, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API Key 不能为空")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	model := cfg.EmbeddingModel
	if model == "" {
		model = defaultGeminiEmbeddingModel
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &GeminiEmbeddings{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      model,
		dims:       defaultGeminiEmbeddingDims,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type embedContentRequest struct {
	Model    string       `json:"model"`
	Content  embedContent `json:"content"`
	TaskType string       `json:"taskType"`
}

type embedContent struct {
	Parts []embedPart `json:"parts"`
}

type embedPart struct {
	Text string `json:"text"`
}

type batchEmbedRequest struct {
	Requests []embedContentRequest `json:"requests"`
}

type embedding struct {
	Values []float32 `json:"values"`
}

type embedContentResponse struct {
	Embedding embedding `json:"embedding"`
}

type batchEmbedResponse struct {
	Embeddings []embedding `json:"embeddings"`
}

// EmbedDocuments 批量向量化文档分块
// 返回向量均已 L2 归一化
func (g *GeminiEmbeddings) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := batchEmbedRequest{Requests: make([]embedContentRequest, 0, len(texts))}
	for _, text := range texts {
		reqBody.Requests = append(reqBody.Requests, embedContentRequest{
			Model:    "models/" + g.model,
			Content:  embedContent{Parts: []embedPart{{Text: text}}},
			TaskType: taskTypeDocument,
		})
	}

	url := fmt.Sprintf("%s/models/%s:batchEmbedContents?key=%s", g.baseURL, g.model, g.apiKey)

	var resp batchEmbedResponse
	if err := g.post(ctx, url, reqBody, &resp); err != nil {
		return nil, err
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("嵌入数量不匹配: 期望 %d 实际 %d", len(texts), len(resp.Embeddings))
	}

	vectors := make([][]float32, 0, len(resp.Embeddings))
	for _, emb := range resp.Embeddings {
		vectors = append(vectors, l2Normalize(emb.Values))
	}
	return vectors, nil
}

// EmbedQuery 向量化检索查询
func (g *GeminiEmbeddings) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	reqBody := embedContentRequest{
		Model:    "models/" + g.model,
		Content:  embedContent{Parts: []embedPart{{Text: text}}},
		TaskType: taskTypeQuery,
	}

	url := fmt.Sprintf("%s/models/%s:embedContent?key=%s", g.baseURL, g.model, g.apiKey)

	var resp embedContentResponse
	if err := g.post(ctx, url, reqBody, &resp); err != nil {
		return nil, err
	}

	if len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("嵌入响应为空")
	}
	return l2Normalize(resp.Embedding.Values), nil
}

func (g *GeminiEmbeddings) post(ctx context.Context, url string, reqBody, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("序列化请求失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("调用嵌入接口失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("嵌入接口返回 HTTP %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("解析嵌入响应失败: %w", err)
	}
	return nil
}

// Dimensions 返回向量维度
func (g *GeminiEmbeddings) Dimensions() int { return g.dims }

// Model 返回嵌入模型名称
func (g *GeminiEmbeddings) Model() string { return g.model }

// ProviderName 返回提供方标识
func (g *GeminiEmbeddings) ProviderName() string { return "gemini" }
