package models

import (
	"time"

	"gorm.io/datatypes"
)

// 文档索引状态
const (
	StatusPending = "pending"
	StatusIndexed = "indexed"
	StatusFailed  = "failed"
)

// Document 用户上传的原始文档记录
type Document struct {
	ID     string `json:"id" gorm:"primaryKey;type:uuid"`
	UserID string `json:"userId" gorm:"size:64;not null;index"`

	Filename string `json:"filename" gorm:"size:500;not null"`
	Content  string `json:"-" gorm:"type:text"`

	// 文档级元数据（日期、人名、关键词等）
	Metadata datatypes.JSON `json:"metadata" gorm:"type:jsonb"`

	ChunkCount int    `json:"chunkCount" gorm:"default:0"`
	Status     string `json:"status" gorm:"size:50;not null;default:pending"` // pending, indexed, failed

	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

// ChatMessage 一次问答交换记录，由回答流程尽力写入
type ChatMessage struct {
	ID     string `json:"id" gorm:"primaryKey;type:uuid"`
	UserID string `json:"userId" gorm:"size:64;not null;index"`

	Question string `json:"question" gorm:"type:text;not null"`
	Answer   string `json:"answer" gorm:"type:text;not null"`

	// 置信度 [0,1]，来源于检索质量而非生成质量
	ConfidenceScore float64 `json:"confidenceScore" gorm:"not null;default:0"`
	SourcesUsed     int     `json:"sourcesUsed" gorm:"default:0"`

	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
}
