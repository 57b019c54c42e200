package tasks

// 任务类型
const (
	TypeIndexDocument = "kb:index_document"
)

// IndexDocumentPayload 文档索引任务载荷
type IndexDocumentPayload struct {
	DocumentID string `json:"document_id"`
}
