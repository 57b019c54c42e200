package parsers

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat 文件格式不被任何解析器支持
var ErrUnsupportedFormat = errors.New("不支持的文件格式")

// Parser 文档解析器，把上传的原始字节解成纯文本
type Parser interface {
	// Supports 判断是否支持该扩展名（含点，小写）
	Supports(ext string) bool
	// Parse 解析字节流，返回纯文本
	Parse(data []byte) (string, error)
}

// Registry 解析器注册表
type Registry struct {
	parsers []Parser
}

// NewRegistry 创建带默认解析器的注册表
func NewRegistry() *Registry {
	return &Registry{
		parsers: []Parser{
			NewTextParser(),
			NewPDFParser(),
		},
	}
}

// Parse 按文件扩展名选择解析器并解析
func (r *Registry) Parse(filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	for _, p := range r.parsers {
		if p.Supports(ext) {
			return p.Parse(data)
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
}
