package realtime

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/d60-Lab/market-chat/pkg/logger"
	"github.com/d60-Lab/market-chat/pkg/metrics"
)

var ErrHubClosed = errors.New("hub closed")

// Hub 连接与房间的注册表。服务启动时创建、关闭时 Close，房间在第一个连接加入时出现、最后一个离开时回收。
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	clients map[*Client]map[string]struct{}
	closed  bool
}

func NewHub() *Hub {
	return &Hub{
		rooms:   make(map[string]map[*Client]struct{}),
		clients: make(map[*Client]map[string]struct{}),
	}
}

func (h *Hub) Register(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	if _, ok := h.clients[c]; !ok {
		h.clients[c] = make(map[string]struct{})
		metrics.ActiveConnections.Inc()
	}
	return nil
}

// Unregister 把连接从所有房间移除；重复调用无副作用
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregisterLocked(c)
}

func (h *Hub) unregisterLocked(c *Client) {
	joined, ok := h.clients[c]
	if !ok {
		return
	}
	for roomID := range joined {
		h.removeMemberLocked(roomID, c)
	}
	delete(h.clients, c)
	metrics.ActiveConnections.Dec()
	metrics.ActiveRooms.Set(float64(len(h.rooms)))
}

// Join 幂等：已在房间内返回 false
func (h *Hub) Join(c *Client, roomID string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	joined, ok := h.clients[c]
	if !ok {
		return false, ErrHubClosed
	}
	if _, in := joined[roomID]; in {
		return false, nil
	}
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[roomID] = members
	}
	members[c] = struct{}{}
	joined[roomID] = struct{}{}
	metrics.ActiveRooms.Set(float64(len(h.rooms)))
	return true, nil
}

func (h *Hub) Leave(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	joined, ok := h.clients[c]
	if !ok {
		return
	}
	if _, in := joined[roomID]; !in {
		return
	}
	delete(joined, roomID)
	h.removeMemberLocked(roomID, c)
	metrics.ActiveRooms.Set(float64(len(h.rooms)))
}

func (h *Hub) removeMemberLocked(roomID string, c *Client) {
	members := h.rooms[roomID]
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
}

// Publish 把帧放入房间内每个连接的发送队列，从不阻塞。
// 队列已满的连接被断开（客户端重连后通过历史接口补齐），不影响其他成员。返回成功入队的连接数。
func (h *Hub) Publish(roomID string, frame []byte) int {
	var slow, stale []*Client
	delivered := 0

	h.mu.RLock()
	for c := range h.rooms[roomID] {
		switch {
		case c.enqueue(frame):
			delivered++
		case c.closed():
			// 已关闭但读协程还没来得及注销，不算投递也不算丢帧
			stale = append(stale, c)
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.Unregister(c)
	}
	for _, c := range slow {
		metrics.FramesDropped.Inc()
		logger.Warn("send queue full, disconnecting",
			zap.String("room", roomID), zap.String("user", c.UserID()))
		h.Unregister(c)
		c.Close()
	}
	return delivered
}

// Members 房间内的连接数
func (h *Hub) Members(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// Rooms 当前存活的房间数
func (h *Hub) Rooms() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Connections 当前注册的连接数
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close 拒绝新连接并关闭所有现有连接
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	all := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	for _, c := range all {
		h.unregisterLocked(c)
	}
	h.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
}
