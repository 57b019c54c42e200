package rag

import (
	"strings"
)

// Chunker 文档分块器
// 按句子边界累积，超过大小上限时另起新块；单个超长句子整句输出，不会被硬切
type Chunker struct {
	MaxSize int // 分块大小上限(字符数)
}

// NewChunker 创建分块器
func NewChunker(maxSize int) *Chunker {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &Chunker{MaxSize: maxSize}
}

// Chunk 对文本分块并为每块提取元数据
// 空白输入返回空列表而非错误
func (c *Chunker) Chunk(text string) []Chunk {
	text = normalizeText(text)
	if text == "" {
		return nil
	}

	sentences := splitIntoSentences(text)
	chunks := make([]Chunk, 0)
	current := ""

	for _, sentence := range sentences {
		// 追加该句会超限且缓冲非空时先产出当前块
		if len(current)+len(sentence) > c.MaxSize && current != "" {
			chunks = append(chunks, newChunk(current))
			current = sentence
			continue
		}

		if current != "" {
			current += " "
		}
		current += sentence
	}

	if strings.TrimSpace(current) != "" {
		chunks = append(chunks, newChunk(current))
	}

	return chunks
}

// newChunk 创建分块并附加元数据
func newChunk(content string) Chunk {
	content = strings.TrimSpace(content)
	return Chunk{
		Content:  content,
		Metadata: ExtractMetadata(content),
	}
}

// normalizeText 规范化文本，压缩空白
func normalizeText(text string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(text), " "))
}

// splitIntoSentences 按终结标点切分句子
func splitIntoSentences(text string) []string {
	sentences := make([]string, 0)
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)

		if r == '.' || r == '!' || r == '?' || r == '。' {
			// 小数点不算句子结束
			if r == '.' && i+1 < len(runes) {
				next := runes[i+1]
				if next >= '0' && next <= '9' {
					continue
				}
			}

			sentence := strings.TrimSpace(current.String())
			if sentence != "" {
				sentences = append(sentences, sentence)
			}
			current.Reset()
		}
	}

	// 剩余的无终结标点内容也作为一句
	if sentence := strings.TrimSpace(current.String()); sentence != "" {
		sentences = append(sentences, sentence)
	}

	return sentences
}
