package response

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/market-chat/pkg/apperr"
	"github.com/d60-Lab/market-chat/pkg/logger"
)

// Response 统一响应结构：成功 {message, data}，失败 {message}
type Response struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 200
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Message: "success", Data: data})
}

// SuccessWithMessage 200，自定义提示
func SuccessWithMessage(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusOK, Response{Message: msg, Data: data})
}

// Created 201
func Created(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusCreated, Response{Message: msg, Data: data})
}

// BadRequest 400
func BadRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Response{Message: msg})
}

// Unauthorized 401
func Unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Response{Message: msg})
}

// Forbidden 403
func Forbidden(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusForbidden, Response{Message: msg})
}

// NotFound 404
func NotFound(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusNotFound, Response{Message: msg})
}

// TooManyRequests 429
func TooManyRequests(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, Response{Message: "Too many requests"})
}

// InternalError 500；详细错误只写日志和 Sentry，不返回给客户端
func InternalError(c *gin.Context, err error) {
	logger.Error("internal error",
		zap.Error(err),
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
	)
	if hub := sentrygin.GetHubFromContext(c); hub != nil {
		hub.CaptureException(err)
	} else if sentry.CurrentHub().Client() != nil {
		sentry.CaptureException(err)
	}
	AbortInternal(c)
}

// AbortInternal 只写 500 响应；调用方已自行记录并上报
func AbortInternal(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, Response{Message: "Internal Server Error"})
}

// Error 按 apperr.Kind 映射状态码
func Error(c *gin.Context, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		BadRequest(c, apperr.PublicMessage(err))
	case apperr.KindAuth:
		Unauthorized(c, apperr.PublicMessage(err))
	case apperr.KindForbidden:
		Forbidden(c, apperr.PublicMessage(err))
	case apperr.KindNotFound:
		NotFound(c, apperr.PublicMessage(err))
	default:
		InternalError(c, err)
	}
}
