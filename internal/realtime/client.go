package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/market-chat/config"
	"github.com/d60-Lab/market-chat/internal/model"
	"github.com/d60-Lab/market-chat/internal/room"
	"github.com/d60-Lab/market-chat/internal/service"
	"github.com/d60-Lab/market-chat/pkg/apperr"
	"github.com/d60-Lab/market-chat/pkg/logger"
	"github.com/d60-Lab/market-chat/pkg/metrics"
)

const sendTimeout = 10 * time.Second

// Client 一个已认证的连接。send 队列有界，写满即视为慢连接。
type Client struct {
	principal *model.Principal
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	conn    *websocket.Conn
	hub     *Hub
	chat    service.ChatService
	cfg     config.WSConfig
	limiter *rate.Limiter
}

// NewClient 创建不绑定 socket 的连接，推送帧从 Frames 读取
func NewClient(p *model.Principal, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Client{principal: p, send: make(chan []byte, queueSize), done: make(chan struct{})}
}

func newSocketClient(conn *websocket.Conn, hub *Hub, chat service.ChatService, p *model.Principal, cfg config.WSConfig) *Client {
	c := NewClient(p, cfg.SendQueueSize)
	c.conn = conn
	c.hub = hub
	c.chat = chat
	c.cfg = cfg
	if cfg.RatePerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst)
	}
	return c
}

func (c *Client) UserID() string { return c.principal.ID }

func (c *Client) Principal() *model.Principal { return c.principal }

func (c *Client) Frames() <-chan []byte { return c.send }

func (c *Client) Done() <-chan struct{} { return c.done }

// Close 幂等；写协程收到信号后发送关闭帧并断开 socket
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// enqueue 非阻塞入队；连接已关闭或队列已满时返回 false
func (c *Client) enqueue(frame []byte) bool {
	if c.closed() {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) reply(frame []byte) {
	if !c.enqueue(frame) && !c.closed() {
		c.hub.Unregister(c)
		c.Close()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()
	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("ws read closed", zap.String("user", c.UserID()), zap.Error(err))
			}
			return
		}
		if c.limiter != nil && !c.limiter.Allow() {
			c.reply(errorFrame("", "rate limited"))
			continue
		}
		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			c.reply(errorFrame("", "malformed frame"))
			continue
		}
		c.handle(in)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Debug("ws write failed", zap.String("user", c.UserID()), zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteWait)); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(c.cfg.WriteWait))
			return
		}
	}
}

func (c *Client) handle(in Inbound) {
	switch in.Type {
	case TypeJoin:
		roomID, ok := c.resolveRoom(in)
		if !ok {
			c.reply(errorFrame(in.Ref, "invalid room"))
			return
		}
		if !room.HasMember(roomID, c.UserID()) {
			c.reply(errorFrame(in.Ref, "forbidden"))
			return
		}
		if _, err := c.hub.Join(c, roomID); err != nil {
			return
		}
		c.reply(encode(Outbound{Type: TypeJoined, Room: roomID, Ref: in.Ref}))
	case TypeLeave:
		roomID, ok := c.resolveRoom(in)
		if !ok {
			c.reply(errorFrame(in.Ref, "invalid room"))
			return
		}
		c.hub.Leave(c, roomID)
		c.reply(encode(Outbound{Type: TypeLeft, Room: roomID, Ref: in.Ref}))
	case TypeSend:
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		_, err := c.chat.Send(ctx, service.SendInput{
			SenderID:   c.UserID(),
			ReceiverID: in.Receiver,
			ProductID:  in.Product,
			Body:       in.Body,
		})
		if err != nil {
			if apperr.KindOf(err) == apperr.KindInternal {
				logger.Error("ws send failed", zap.String("user", c.UserID()), zap.Error(err))
			}
			c.reply(errorFrame(in.Ref, apperr.PublicMessage(err)))
			return
		}
		metrics.MessagesSent.WithLabelValues("ws").Inc()
	default:
		c.reply(errorFrame(in.Ref, "unknown event type"))
	}
}

func (c *Client) resolveRoom(in Inbound) (string, bool) {
	if in.Room != "" {
		_, _, _, ok := room.Parse(in.Room)
		return in.Room, ok
	}
	if in.Receiver == "" || in.Product == "" {
		return "", false
	}
	return room.ID(c.UserID(), in.Receiver, in.Product), true
}
