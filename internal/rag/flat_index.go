package rag

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// 索引文件格式: 魔数 + 版本 + 维度 + 条数 + 连续的 float32 小端行向量
const (
	indexMagic   = "FVIX"
	indexVersion = uint32(1)
)

// FlatIndex 平铺内积索引
// 向量已归一化时内积即余弦相似度；检索为全量暴力扫描
// 非并发安全，由上层持锁访问
type FlatIndex struct {
	dim     int
	vectors [][]float32
}

// NewFlatIndex 创建指定维度的空索引
func NewFlatIndex(dim int) (*FlatIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("索引维度必须为正: %d", dim)
	}
	return &FlatIndex{dim: dim}, nil
}

// Dim 返回向量维度
func (idx *FlatIndex) Dim() int { return idx.dim }

// Count 返回索引中的向量数
func (idx *FlatIndex) Count() int { return len(idx.vectors) }

// Add 追加向量，全部维度校验通过后才写入
func (idx *FlatIndex) Add(vectors ...[]float32) error {
	for _, vec := range vectors {
		if len(vec) != idx.dim {
			return fmt.Errorf("向量维度不匹配: 期望 %d 实际 %d", idx.dim, len(vec))
		}
	}
	idx.vectors = append(idx.vectors, vectors...)
	return nil
}

// scoredHit 检索命中项
type scoredHit struct {
	Position int
	Score    float32
}

// Search 按内积降序返回前 topK 个命中
// 索引为空时返回空结果
func (idx *FlatIndex) Search(query []float32, topK int) ([]scoredHit, error) {
	if len(query) != idx.dim {
		return nil, fmt.Errorf("查询向量维度不匹配: 期望 %d 实际 %d", idx.dim, len(query))
	}
	if topK <= 0 || len(idx.vectors) == 0 {
		return nil, nil
	}

	hits := make([]scoredHit, 0, len(idx.vectors))
	for pos, vec := range idx.vectors {
		var dot float32
		for i, v := range vec {
			dot += v * query[i]
		}
		hits = append(hits, scoredHit{Position: pos, Score: dot})
	}

	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Score > hits[b].Score
	})

	if topK < len(hits) {
		hits = hits[:topK]
	}
	return hits, nil
}

// Save 将索引原子落盘：写临时文件后 rename 覆盖
func (idx *FlatIndex) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("创建索引目录失败: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("创建临时索引文件失败: %w", err)
	}
	tmpPath := tmp.Name()

	if err := idx.writeTo(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("关闭临时索引文件失败: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("替换索引文件失败: %w", err)
	}
	return nil
}

func (idx *FlatIndex) writeTo(f *os.File) error {
	w := bufio.NewWriter(f)

	if _, err := w.WriteString(indexMagic); err != nil {
		return fmt.Errorf("写入索引头失败: %w", err)
	}

	header := []uint32{indexVersion, uint32(idx.dim), uint32(len(idx.vectors))}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("写入索引头失败: %w", err)
		}
	}

	for _, vec := range idx.vectors {
		if err := binary.Write(w, binary.LittleEndian, vec); err != nil {
			return fmt.Errorf("写入向量数据失败: %w", err)
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("刷新索引文件失败: %w", err)
	}
	return f.Sync()
}

// LoadFlatIndex 从文件加载索引
// 魔数、版本或结构不符时返回 ErrIndexCorrupt
func LoadFlatIndex(path string) (*FlatIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)

	magic := make([]byte, len(indexMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("%w: 读取魔数失败: %v", ErrIndexCorrupt, err)
	}
	if string(magic) != indexMagic {
		return nil, fmt.Errorf("%w: 非法魔数 %q", ErrIndexCorrupt, string(magic))
	}

	var version, dim, count uint32
	for _, target := range []*uint32{&version, &dim, &count} {
		if err := binary.Read(r, binary.LittleEndian, target); err != nil {
			return nil, fmt.Errorf("%w: 读取索引头失败: %v", ErrIndexCorrupt, err)
		}
	}
	if version != indexVersion {
		return nil, fmt.Errorf("%w: 不支持的索引版本 %d", ErrIndexCorrupt, version)
	}
	if dim == 0 {
		return nil, fmt.Errorf("%w: 维度为零", ErrIndexCorrupt)
	}

	idx := &FlatIndex{dim: int(dim), vectors: make([][]float32, 0, count)}
	for i := uint32(0); i < count; i++ {
		vec := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return nil, fmt.Errorf("%w: 读取第 %d 行向量失败: %v", ErrIndexCorrupt, i, err)
		}
		idx.vectors = append(idx.vectors, vec)
	}

	return idx, nil
}
