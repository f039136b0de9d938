package realtime

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/d60-Lab/market-chat/config"
	"github.com/d60-Lab/market-chat/internal/service"
	"github.com/d60-Lab/market-chat/pkg/jwt"
	"github.com/d60-Lab/market-chat/pkg/logger"
	"github.com/d60-Lab/market-chat/pkg/response"
)

// Handler websocket 入口：先认证再升级，未认证的握手直接 401
type Handler struct {
	hub        *Hub
	auth       service.AuthService
	chat       service.ChatService
	cfg        config.WSConfig
	cookieName string
	upgrader   websocket.Upgrader
}

func NewHandler(hub *Hub, auth service.AuthService, chat service.ChatService, cfg config.WSConfig, cookieName string) *Handler {
	cfg = withDefaults(cfg)
	h := &Handler{hub: hub, auth: auth, chat: chat, cfg: cfg, cookieName: cookieName}
	h.upgrader = websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}
	if len(cfg.AllowedOrigins) > 0 {
		h.upgrader.CheckOrigin = originChecker(cfg.AllowedOrigins)
	}
	return h
}

func withDefaults(cfg config.WSConfig) config.WSConfig {
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = 256
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 8 << 10
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongWait {
		cfg.PingInterval = cfg.PongWait * 9 / 10
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}
	return cfg
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeWS godoc
// @Summary      实时连接
// @Description  凭证来自 token cookie、Bearer 头或 ?token=；握手成功后收发 join/leave/send/message/error 事件
// @Tags         realtime
// @Success      101
// @Failure      401  {object}  response.Response
// @Router       /ws [get]
func (h *Handler) ServeWS(c *gin.Context) {
	p, err := h.auth.ResolvePrincipal(c.Request.Context(), jwt.FromRequest(c.Request, h.cookieName))
	if err != nil {
		response.Error(c, err)
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写回了错误响应
		logger.Debug("ws upgrade failed", zap.Error(err))
		return
	}
	client := newSocketClient(conn, h.hub, h.chat, p, h.cfg)
	if err := h.hub.Register(client); err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(h.cfg.WriteWait))
		_ = conn.Close()
		return
	}
	logger.Debug("ws connected", zap.String("user", p.ID))
	go client.writePump()
	go client.readPump()
}
