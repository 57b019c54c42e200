package rag

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"backend/internal/logger"
)

// 问题类型，用于给提示词附加针对性的回答指引
const (
	questionPersonalDates = "personal_dates"
	questionFamily        = "family"
	questionHealth        = "health"
	questionWork          = "work"
	questionLocation      = "location"
	questionGeneral       = "general"
)

var questionTypeKeywords = []struct {
	qtype    string
	keywords []string
}{
	{questionPersonalDates, []string{"birthday", "anniversary", "born", "date"}},
	{questionFamily, []string{"daughter", "son", "wife", "husband", "mother", "father", "family", "grandchild"}},
	{questionHealth, []string{"medicine", "medication", "doctor", "hospital", "clinic", "appointment", "health", "pill"}},
	{questionWork, []string{"work", "job", "career", "office"}},
	{questionLocation, []string{"home", "address", "live", "where"}},
}

var questionFocusHints = map[string]string{
	questionPersonalDates: "Pay special attention to any dates mentioned in the information. State the date clearly and simply.",
	questionFamily:        "Focus on names and relationships of family members. Mention them warmly by name.",
	questionHealth:        "Focus on medications, doctors and appointments. Be precise about names, dosages and times.",
	questionWork:          "Focus on details about their work and career history.",
	questionLocation:      "Focus on places and addresses. Describe the location clearly.",
	questionGeneral:       "Answer using the most relevant details from the information.",
}

var markdownEmphasis = regexp.MustCompile(`\*{1,2}([^*]*)\*{1,2}`)

// StripMarkdown 去掉模型输出里的 Markdown 强调符号
func StripMarkdown(text string) string {
	text = markdownEmphasis.ReplaceAllString(text, "$1")
	return strings.ReplaceAll(text, "*", "")
}

// classifyQuestion 按关键词把问题归入预设类型
func classifyQuestion(question string) string {
	lower := strings.ToLower(question)
	for _, entry := range questionTypeKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.qtype
			}
		}
	}
	return questionGeneral
}

// PromptBuilder 面向认知障碍用户的提示词构建器
// 上下文超出 Token 预算时按预算截断
type PromptBuilder struct {
	maxContextTokens int

	loadEncoding func() (*tiktoken.Tiktoken, error)
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
	encodingErr  error
}

// NewPromptBuilder 创建提示词构建器
func NewPromptBuilder(maxContextTokens int) *PromptBuilder {
	if maxContextTokens <= 0 {
		maxContextTokens = 3000
	}
	return &PromptBuilder{
		maxContextTokens: maxContextTokens,
		loadEncoding: func() (*tiktoken.Tiktoken, error) {
			return tiktoken.GetEncoding("cl100k_base")
		},
	}
}

// FormatContext 把检索结果拼成带编号的上下文段落
func FormatContext(results []RetrievalResult) string {
	if len(results) == 0 {
		return ""
	}

	parts := make([]string, 0, len(results))
	for i, r := range results {
		parts = append(parts, fmt.Sprintf("[Document %d]: %s", i+1, r.Content))
	}
	return strings.Join(parts, "\n\n")
}

// Build 组装最终提示词
// 无上下文时引导模型坦承信息不足，而不是编造
func (b *PromptBuilder) Build(question string, results []RetrievalResult) string {
	context := b.truncateContext(FormatContext(results))
	focus := questionFocusHints[classifyQuestion(question)]

	var sb strings.Builder
	sb.WriteString("You are a gentle, patient memory assistant helping someone with memory difficulties.\n")
	sb.WriteString("Speak warmly and simply, in short sentences. Never mention memory problems or that they forgot.\n")
	sb.WriteString("Use plain text only, without any markdown formatting.\n\n")

	if context != "" {
		sb.WriteString("Here is what we know from their personal records:\n\n")
		sb.WriteString(context)
		sb.WriteString("\n\n")
		sb.WriteString(focus)
		sb.WriteString("\n")
		sb.WriteString("Only use the information above. If it does not contain the answer, gently say you are not sure.\n\n")
	} else {
		sb.WriteString("There is no saved information about this question yet.\n")
		sb.WriteString("Gently let them know you do not have that information, and suggest asking a family member to add it.\n\n")
	}

	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\n\nAnswer:")

	return sb.String()
}

// truncateContext 按 Token 预算截断上下文
// 字符数不超过预算时必然不超 Token 预算，可跳过编码开销
func (b *PromptBuilder) truncateContext(context string) string {
	if len(context) <= b.maxContextTokens {
		return context
	}

	enc, err := b.getEncoding()
	if err != nil {
		logger.Warn("加载分词器失败，按字符数截断上下文", zap.Error(err))
		runes := []rune(context)
		if len(runes) > b.maxContextTokens {
			return string(runes[:b.maxContextTokens])
		}
		return context
	}

	tokens := enc.Encode(context, nil, nil)
	if len(tokens) <= b.maxContextTokens {
		return context
	}
	return enc.Decode(tokens[:b.maxContextTokens])
}

// getEncoding 懒加载分词器
// 构建器被所有请求 goroutine 共享，加载必须恰好一次
func (b *PromptBuilder) getEncoding() (*tiktoken.Tiktoken, error) {
	b.encodingOnce.Do(func() {
		b.encoding, b.encodingErr = b.loadEncoding()
	})
	return b.encoding, b.encodingErr
}
