package knowledge

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	response "backend/api/handlers/common"
	"backend/internal/auth"
)

// AskHandler 问答与会话处理器
type AskHandler struct {
	service Service
}

// NewAskHandler 创建问答处理器
func NewAskHandler(service Service) *AskHandler {
	return &AskHandler{service: service}
}

// Ask 基于个人知识库回答问题
// @Summary 知识库问答
// @Tags Knowledge
// @Security BearerAuth
// @Accept json
// @Produce json
// @Router /api/ask [post]
func (h *AskHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "缺少问题内容")
		return
	}

	result, err := h.service.Answer(c.Request.Context(), auth.UserID(c), req.Question)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, "回答生成失败")
		return
	}
	response.OK(c, result)
}

// History 返回最近的问答记录
// @Summary 对话历史
// @Tags Knowledge
// @Security BearerAuth
// @Param limit query int false "返回条数，默认 50"
// @Router /api/chat/history [get]
func (h *AskHandler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	msgs, err := h.service.History(c.Request.Context(), auth.UserID(c), limit)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, "查询对话历史失败")
		return
	}
	response.OK(c, gin.H{"messages": msgs, "total": len(msgs)})
}

// Stats 返回知识库统计
// @Summary 知识库统计
// @Tags Knowledge
// @Security BearerAuth
// @Router /api/knowledge/stats [get]
func (h *AskHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context(), auth.UserID(c))
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, "查询统计失败")
		return
	}
	response.OK(c, stats)
}

// Reset 清空当前用户的知识库
// @Summary 清空知识库
// @Tags Knowledge
// @Security BearerAuth
// @Router /api/knowledge [delete]
func (h *AskHandler) Reset(c *gin.Context) {
	if err := h.service.Reset(c.Request.Context(), auth.UserID(c)); err != nil {
		response.Fail(c, http.StatusInternalServerError, "清空知识库失败")
		return
	}
	response.OK(c, gin.H{"reset": true})
}
