package parsers

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dslipak/pdf"
)

// PDFParser PDF 解析器，仅提取纯文本内容
type PDFParser struct{}

// NewPDFParser 创建 PDF 解析器
func NewPDFParser() *PDFParser {
	return &PDFParser{}
}

// Supports 判断扩展名
func (p *PDFParser) Supports(ext string) bool {
	return ext == ".pdf"
}

// Parse 提取 PDF 中的纯文本
func (p *PDFParser) Parse(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("打开 PDF 失败: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("提取 PDF 文本失败: %w", err)
	}

	var sb bytes.Buffer
	if _, err := io.Copy(&sb, plain); err != nil {
		return "", fmt.Errorf("读取 PDF 文本失败: %w", err)
	}
	return sb.String(), nil
}
