package parsers

import (
	"fmt"
	"unicode/utf8"
)

// TextParser 纯文本解析器，覆盖 txt 与 markdown
type TextParser struct{}

// NewTextParser 创建纯文本解析器
func NewTextParser() *TextParser {
	return &TextParser{}
}

// Supports 判断扩展名
func (p *TextParser) Supports(ext string) bool {
	return ext == ".txt" || ext == ".md" || ext == ".markdown"
}

// Parse 校验编码后原样返回文本
func (p *TextParser) Parse(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("文件不是合法的 UTF-8 文本")
	}
	return string(data), nil
}
