package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/d60-Lab/market-chat/config"
	_ "github.com/d60-Lab/market-chat/docs"
	"github.com/d60-Lab/market-chat/internal/api/handler"
	"github.com/d60-Lab/market-chat/internal/api/middleware"
	"github.com/d60-Lab/market-chat/internal/model"
	"github.com/d60-Lab/market-chat/internal/realtime"
	"github.com/d60-Lab/market-chat/internal/service"
	"github.com/d60-Lab/market-chat/pkg/logger"
	"github.com/d60-Lab/market-chat/pkg/metrics"
	"github.com/d60-Lab/market-chat/pkg/response"
)

// Deps 路由依赖
type Deps struct {
	Config *config.Config
	Auth   service.AuthService
	Chat   service.ChatService
	Inbox  service.InboxService
	WS     *realtime.Handler
	// Ready 健康检查时探测存储，可为 nil
	Ready func(ctx context.Context) error
}

func NewRouter(d Deps) *gin.Engine {
	cfg := d.Config
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	// 默认信任所有代理，X-Forwarded-For 可被伪造绕过按 IP 限流
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		logger.Warn("invalid trusted proxies, trusting none", zap.Error(err))
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(
		middleware.Sentry(),
		middleware.Recovery(),
		middleware.RequestLogger(),
		otelgin.Middleware(cfg.Tracing.ServiceName),
	)

	r.GET("/health", func(c *gin.Context) {
		if d.Ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := d.Ready(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, response.Response{Message: "unavailable"})
				return
			}
		}
		response.Success(c, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	if d.WS != nil {
		r.GET("/ws", d.WS.ServeWS)
	}

	h := handler.New(d.Auth, d.Chat, d.Inbox, cfg.JWT)
	authMW := middleware.Auth(d.Auth, cfg.JWT.CookieName)

	v1 := r.Group("/api/v1")
	v1.Use(gzip.Gzip(gzip.DefaultCompression), middleware.RateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst))
	{
		auth := v1.Group("/auth")
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/logout", h.Logout)
		auth.GET("/me", authMW, h.Me)
		auth.PATCH("/switch-role", authMW, middleware.RequireRoles(model.RoleBuyer, model.RoleSeller), h.SwitchRole)

		messages := v1.Group("/messages", authMW)
		messages.POST("", h.SendMessage)
		messages.GET("/user", h.History)
		messages.GET("/product/:id", h.HistoryByProduct)
		messages.GET("/inbox", h.Inbox)
		messages.PUT("/mark-read", h.MarkRead)
	}
	return r
}
