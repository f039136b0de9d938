package middleware

import (
	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/market-chat/pkg/logger"
	"github.com/d60-Lab/market-chat/pkg/response"
)

// Sentry 为每个请求挂上 hub；panic 由 Recovery 统一处理
func Sentry() gin.HandlerFunc {
	return sentrygin.New(sentrygin.Options{Repanic: true})
}

// Recovery 捕获 panic，记日志、上报 Sentry，返回 500
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error("panic recovered",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.Stack("stack"),
		)
		if hub := sentrygin.GetHubFromContext(c); hub != nil {
			hub.Recover(recovered)
		} else if sentry.CurrentHub().Client() != nil {
			sentry.CurrentHub().Recover(recovered)
		}
		// 已经上报过一次，不能再走 InternalError
		response.AbortInternal(c)
	})
}
