package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"backend/internal/ai"
	"backend/internal/config"
)

// Client Google Gemini 生成客户端
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	maxRetries int
}

// NewClient 创建 Gemini 客户端
func NewClient(cfg *config.GeminiConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API Key 不能为空")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      model,
		maxRetries: maxRetries,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// generateRequest Gemini generateContent 请求体
type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float32 `json:"temperature"`
	TopP            float32 `json:"topP,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

// generateResponse Gemini generateContent 响应体
type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Generate 调用 generateContent 并把终止形态映射为统一结果
func (c *Client) Generate(ctx context.Context, prompt string, opts ai.GenerationOptions) (*ai.GenerationResult, error) {
	reqBody := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     opts.Temperature,
			TopP:            opts.TopP,
			MaxOutputTokens: opts.MaxTokens,
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	// 发送请求（5xx 重试，4xx 直接返回）
	var resp *http.Response
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err = c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			time.Sleep(time.Duration(i+1) * time.Second)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			break
		}

		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(bodyBytes))

		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %v", ai.ErrQuotaExceeded, lastErr)
		}
		if resp.StatusCode >= 500 {
			resp = nil
			time.Sleep(time.Duration(i+1) * time.Second)
			continue
		}

		return nil, lastErr
	}

	if resp == nil {
		return nil, fmt.Errorf("Gemini API 调用失败: %w", lastErr)
	}
	defer resp.Body.Close()

	var geminiResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}

	return convertResponse(&geminiResp), nil
}

// Model 返回当前模型名
func (c *Client) Model() string {
	return c.model
}

// convertResponse 把 finishReason 映射为统一的终止形态
// 截断时保留已生成的部分文本，拦截与空响应由上层兜底
func convertResponse(resp *generateResponse) *ai.GenerationResult {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return &ai.GenerationResult{
			Outcome:     ai.OutcomeBlocked,
			BlockReason: resp.PromptFeedback.BlockReason,
		}
	}

	if len(resp.Candidates) == 0 {
		return &ai.GenerationResult{Outcome: ai.OutcomeEmpty}
	}

	cand := resp.Candidates[0]
	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())

	switch cand.FinishReason {
	case "SAFETY", "PROHIBITED_CONTENT", "BLOCKLIST":
		if text == "" {
			return &ai.GenerationResult{Outcome: ai.OutcomeBlocked, BlockReason: cand.FinishReason}
		}
		// 有部分文本的安全截停按截断处理
		return &ai.GenerationResult{Outcome: ai.OutcomeTruncated, Text: text}
	case "MAX_TOKENS":
		if text == "" {
			return &ai.GenerationResult{Outcome: ai.OutcomeEmpty}
		}
		return &ai.GenerationResult{Outcome: ai.OutcomeTruncated, Text: text}
	}

	if text == "" {
		return &ai.GenerationResult{Outcome: ai.OutcomeEmpty}
	}
	return &ai.GenerationResult{Outcome: ai.OutcomeSuccess, Text: text}
}
