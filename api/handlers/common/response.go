package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OK 返回 200 成功响应
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

// Created 返回 201 创建成功响应
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: data})
}

// Accepted 返回 202 已受理响应
func Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, APIResponse{Success: true, Data: data})
}

// Fail 返回指定状态码的失败响应
func Fail(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Success: false, Message: message})
}
