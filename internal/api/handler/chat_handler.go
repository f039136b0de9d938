package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/market-chat/internal/api/middleware"
	"github.com/d60-Lab/market-chat/internal/service"
	"github.com/d60-Lab/market-chat/pkg/metrics"
	"github.com/d60-Lab/market-chat/pkg/response"
)

type sendMessageRequest struct {
	Receiver string `json:"receiver"`
	Product  string `json:"product"`
	Message  string `json:"message"`
}

type markReadRequest struct {
	Receiver string `json:"receiver"`
	Sender   string `json:"sender"`
	Product  string `json:"product"`
}

// SendMessage 发送消息：先落库，再推送给房间内的在线连接
// @Summary 发送消息
// @Tags 聊天
// @Accept json
// @Produce json
// @Param request body sendMessageRequest true "消息"
// @Success 201 {object} response.Response{data=model.Message}
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/messages [post]
func (h *Handler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	p := middleware.CurrentPrincipal(c)
	msg, err := h.chatService.Send(c.Request.Context(), service.SendInput{
		SenderID:   p.ID,
		ReceiverID: req.Receiver,
		ProductID:  req.Product,
		Body:       req.Message,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	metrics.MessagesSent.WithLabelValues("http").Inc()
	response.Created(c, "Message sent successfully", msg)
}

// History 与某个用户关于某个商品的对话
// @Summary 会话历史
// @Tags 聊天
// @Produce json
// @Param receiver query string true "对方用户ID"
// @Param product query string true "商品ID"
// @Success 200 {object} response.Response{data=[]model.MessageView}
// @Failure 400 {object} response.Response
// @Router /api/v1/messages/user [get]
func (h *Handler) History(c *gin.Context) {
	p := middleware.CurrentPrincipal(c)
	views, err := h.chatService.History(c.Request.Context(), p.ID, c.Query("receiver"), c.Query("product"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, "Messages retrieved", views)
}

// HistoryByProduct 某商品下的全部对话，仅商品发布者或管理员可看
// @Summary 商品消息
// @Tags 聊天
// @Produce json
// @Param id path string true "商品ID"
// @Success 200 {object} response.Response{data=[]model.MessageView}
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/messages/product/{id} [get]
func (h *Handler) HistoryByProduct(c *gin.Context) {
	views, err := h.chatService.HistoryByProduct(c.Request.Context(), middleware.CurrentPrincipal(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, "Messages fetched successfully", views)
}

// Inbox 卖家收件箱
// @Summary 收件箱
// @Tags 聊天
// @Produce json
// @Success 200 {object} response.Response{data=[]model.InboxEntry}
// @Router /api/v1/messages/inbox [get]
func (h *Handler) Inbox(c *gin.Context) {
	entries, err := h.inboxService.Inbox(c.Request.Context(), middleware.CurrentPrincipal(c).ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, entries)
}

// MarkRead 把对方发来的消息标记为已读；不会实时通知发送方，未读数通过收件箱轮询
// @Summary 标记已读
// @Tags 聊天
// @Accept json
// @Produce json
// @Param request body markReadRequest true "会话"
// @Success 200 {object} response.Response{data=map[string]int64}
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Router /api/v1/messages/mark-read [put]
func (h *Handler) MarkRead(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	n, err := h.chatService.MarkRead(c.Request.Context(), middleware.CurrentPrincipal(c).ID, req.Receiver, req.Sender, req.Product)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, "Messages marked as read", gin.H{"updated": n})
}
