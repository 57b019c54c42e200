package ai

import (
	"context"
	"errors"
	"strings"
)

// ErrQuotaExceeded 提供商配额耗尽，调用方应返回"稍后再试"类话术而非故障话术
var ErrQuotaExceeded = errors.New("生成提供商配额耗尽")

// GenerationOptions 生成参数
type GenerationOptions struct {
	Temperature float32
	MaxTokens   int
	TopP        float32
}

// Outcome 生成结果的终止形态
type Outcome int

const (
	// OutcomeSuccess 正常完成
	OutcomeSuccess Outcome = iota
	// OutcomeTruncated 因长度限制截断，Text 为部分文本
	OutcomeTruncated
	// OutcomeBlocked 被安全策略拦截，无可用文本
	OutcomeBlocked
	// OutcomeEmpty 提供商未返回任何文本
	OutcomeEmpty
)

// GenerationResult 一次生成调用的结果
// 调用方必须穷举处理四种 Outcome
type GenerationResult struct {
	Outcome     Outcome
	Text        string
	BlockReason string // Outcome 为 Blocked 时的原因
}

// GenerationClient 文本生成提供商的统一接口
type GenerationClient interface {
	Generate(ctx context.Context, prompt string, opts GenerationOptions) (*GenerationResult, error)
	Model() string
}

// IsQuotaError 判断错误是否为配额/限流类错误
// 提供商的错误内容不统一，这里按关键字识别
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuotaExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range []string{"quota", "rate limit", "resource_exhausted", "resource exhausted", "429"} {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}
