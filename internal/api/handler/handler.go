package handler

import (
	"github.com/d60-Lab/market-chat/config"
	"github.com/d60-Lab/market-chat/internal/service"
)

// Handler HTTP 接口层
type Handler struct {
	authService  service.AuthService
	chatService  service.ChatService
	inboxService service.InboxService
	jwtCfg       config.JWTConfig
}

func New(authService service.AuthService, chatService service.ChatService, inboxService service.InboxService, jwtCfg config.JWTConfig) *Handler {
	return &Handler{authService: authService, chatService: chatService, inboxService: inboxService, jwtCfg: jwtCfg}
}
