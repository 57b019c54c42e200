package knowledge

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	response "backend/api/handlers/common"
	"backend/internal/auth"
	"backend/internal/models"
	"backend/internal/rag"
	"backend/internal/rag/parsers"
)

// 上传文件大小上限
const maxUploadBytes = 10 << 20

// DocumentHandler 文档处理器
type DocumentHandler struct {
	service Service
}

// NewDocumentHandler 创建文档处理器
func NewDocumentHandler(service Service) *DocumentHandler {
	return &DocumentHandler{service: service}
}

// Upload 上传文档到个人知识库
// @Summary 上传知识库文档
// @Tags Knowledge
// @Security BearerAuth
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "文档文件 (txt/md/pdf)"
// @Router /api/documents [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	userID := auth.UserID(c)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, "未找到上传文件")
		return
	}
	defer file.Close()

	if header.Size > maxUploadBytes {
		response.Fail(c, http.StatusRequestEntityTooLarge, "文件超过大小限制")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, "读取文件失败")
		return
	}
	if len(data) > maxUploadBytes {
		response.Fail(c, http.StatusRequestEntityTooLarge, "文件超过大小限制")
		return
	}

	doc, err := h.service.IngestDocument(c.Request.Context(), userID, header.Filename, data)
	if err != nil {
		switch {
		case errors.Is(err, parsers.ErrUnsupportedFormat):
			response.Fail(c, http.StatusBadRequest, "不支持的文件格式")
		case errors.Is(err, rag.ErrEmptyDocument):
			response.Fail(c, http.StatusBadRequest, "文档内容为空")
		default:
			response.Fail(c, http.StatusInternalServerError, "文档处理失败")
		}
		return
	}

	// pending 表示已投递异步索引
	if doc.Status == models.StatusPending {
		response.Accepted(c, doc)
		return
	}
	response.Created(c, doc)
}

// List 列出当前用户的全部文档
// @Summary 文档列表
// @Tags Knowledge
// @Security BearerAuth
// @Router /api/documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.service.ListDocuments(c.Request.Context(), auth.UserID(c))
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, "查询文档列表失败")
		return
	}
	response.OK(c, gin.H{"documents": docs, "total": len(docs)})
}

// Delete 删除单个文档
// @Summary 删除文档
// @Tags Knowledge
// @Security BearerAuth
// @Param id path string true "文档 ID"
// @Router /api/documents/{id} [delete]
func (h *DocumentHandler) Delete(c *gin.Context) {
	documentID := c.Param("id")
	if documentID == "" {
		response.Fail(c, http.StatusBadRequest, "缺少文档 ID")
		return
	}

	deleted, err := h.service.DeleteDocument(c.Request.Context(), auth.UserID(c), documentID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, "删除文档失败")
		return
	}
	if !deleted {
		response.Fail(c, http.StatusNotFound, "文档不存在")
		return
	}
	response.OK(c, gin.H{"deleted": true})
}
