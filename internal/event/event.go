// Package event 聊天领域事件（消息创建、已读）及其投递
package event

import (
	"context"
	"time"

	"github.com/d60-Lab/market-chat/internal/model"
)

const (
	TypeMessageCreated = "message.created"
	TypeMessageRead    = "message.read"
)

// Event 领域事件；Key 为房间号，同一会话的事件落在同一分区
type Event struct {
	Type    string         `json:"type"`
	Key     string         `json:"room"`
	Message *model.Message `json:"message,omitempty"`
	Read    *ReadState     `json:"read,omitempty"`
	At      time.Time      `json:"at"`
}

// ReadState 已读事件的负载
type ReadState struct {
	ReceiverID string `json:"receiver"`
	SenderID   string `json:"sender"`
	ProductID  string `json:"product"`
	Updated    int64  `json:"updated"`
}

// Publisher 事件出口
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

// NopPublisher 未启用 Kafka 时使用
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...Event) error { return nil }
func (NopPublisher) Close() error                            { return nil }
