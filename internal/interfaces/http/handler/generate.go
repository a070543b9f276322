// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"postai-api/internal/application/generation"
	"postai-api/internal/domain/entity"
	"postai-api/internal/interfaces/http/dto"
	apperrors "postai-api/pkg/errors"
	"postai-api/pkg/logger"
)

// maxBodyBytes 请求体上限
const maxBodyBytes = 10 << 10

// Generator 三种交付模式的生成流程
type Generator interface {
	Generate(ctx context.Context, prompt string) (*entity.GenerationResult, error)
	Stream(ctx context.Context, prompt string, sink generation.EventSink) error
	StreamTokens(ctx context.Context, prompt string, sink generation.EventSink) error
}

// GenerateHandler 帖子生成处理器
type GenerateHandler struct {
	gen Generator
}

// NewGenerateHandler 创建帖子生成处理器
func NewGenerateHandler(gen Generator) *GenerateHandler {
	return &GenerateHandler{gen: gen}
}

// Generate 批量生成
// @Summary 批量生成 LinkedIn 与 X 帖子
// @Tags Generate
// @Accept json
// @Produce json
// @Param body body dto.GenerateRequest true "prompt"
// @Success 200 {object} entity.GenerationResult
// @Failure 400 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Router /api/generate [post]
func (h *GenerateHandler) Generate(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	var req dto.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			dto.RequestTooLarge(c)
			return
		}
		// 无法解析的请求体按缺少 prompt 处理
		req.Prompt = ""
	}

	result, err := h.gen.Generate(c.Request.Context(), req.Prompt)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// writeError 把应用错误映射为 {error} 响应
func writeError(c *gin.Context, err error) {
	if appErr := apperrors.AsAppError(err); appErr != nil {
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			logger.Error(c.Request.Context(), "generation request failed", err)
		}
		dto.Error(c, appErr.HTTPStatus, appErr.Message)
		return
	}
	logger.Error(c.Request.Context(), "generation request failed", err)
	dto.Error(c, http.StatusInternalServerError, apperrors.ErrInternalError.Message)
}
