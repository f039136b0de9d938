package service

import (
	"context"
	"strings"
	"time"

	"github.com/d60-Lab/market-chat/internal/event"
	"github.com/d60-Lab/market-chat/internal/model"
	"github.com/d60-Lab/market-chat/internal/repository"
	"github.com/d60-Lab/market-chat/internal/room"
	"github.com/d60-Lab/market-chat/pkg/apperr"
)

// SendInput 发送消息；SenderID 总是取自已认证身份
type SendInput struct {
	SenderID   string `validate:"required,uuid"`
	ReceiverID string `validate:"required,uuid"`
	ProductID  string `validate:"required,uuid"`
	Body       string `validate:"required"`
}

// Broadcaster 在房间锁内执行落库，成功后把消息推送给房间内的连接。
// 同一房间的 落库→推送 串行执行，推送顺序即落库顺序。
type Broadcaster interface {
	Sequence(roomID string, persist func() (*model.Message, error)) (*model.Message, error)
}

// ChatService 聊天核心：发送、历史、按商品历史、已读
type ChatService interface {
	Send(ctx context.Context, in SendInput) (*model.Message, error)
	History(ctx context.Context, viewerID, counterpartyID, productID string) ([]*model.MessageView, error)
	HistoryByProduct(ctx context.Context, viewer *model.Principal, productID string) ([]*model.MessageView, error)
	MarkRead(ctx context.Context, viewerID, receiverID, senderID, productID string) (int64, error)
}

// DefaultStoreTimeout 单次落库的上限；落库在房间锁内执行，必须有界
const DefaultStoreTimeout = 5 * time.Second

type chatService struct {
	messages     repository.MessageRepository
	users        UserDirectory
	products     ProductDirectory
	broadcaster  Broadcaster
	events       *EventDispatcher
	storeTimeout time.Duration
}

// ChatOption 可选配置
type ChatOption func(*chatService)

// WithStoreTimeout 覆盖落库超时，<=0 时使用 DefaultStoreTimeout
func WithStoreTimeout(d time.Duration) ChatOption {
	return func(s *chatService) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// NewChatService broadcaster 与 events 可以为 nil（纯 HTTP 部署 / 未启用 Kafka）
func NewChatService(messages repository.MessageRepository, users UserDirectory, products ProductDirectory,
	broadcaster Broadcaster, events *EventDispatcher, opts ...ChatOption) ChatService {
	if broadcaster == nil {
		broadcaster = persistOnly{}
	}
	s := &chatService{
		messages:     messages,
		users:        users,
		products:     products,
		broadcaster:  broadcaster,
		events:       events,
		storeTimeout: DefaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type persistOnly struct{}

func (persistOnly) Sequence(_ string, persist func() (*model.Message, error)) (*model.Message, error) {
	return persist()
}

func (s *chatService) Send(ctx context.Context, in SendInput) (*model.Message, error) {
	in.Body = strings.TrimSpace(in.Body)
	if err := validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	if in.SenderID == in.ReceiverID {
		return nil, apperr.Validation("Cannot send a message to yourself")
	}
	if _, err := s.products.Product(ctx, in.ProductID); err != nil {
		return nil, lookupError("product", err)
	}
	if _, err := s.users.User(ctx, in.ReceiverID); err != nil {
		return nil, lookupError("receiver", err)
	}

	// 一旦开始落库就不再响应调用方取消，只受 storeTimeout 约束
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()
	roomID := room.ID(in.SenderID, in.ReceiverID, in.ProductID)
	msg, err := s.broadcaster.Sequence(roomID, func() (*model.Message, error) {
		m := &model.Message{
			SenderID:   in.SenderID,
			ReceiverID: in.ReceiverID,
			ProductID:  in.ProductID,
			Body:       in.Body,
		}
		if err := s.messages.Append(persistCtx, m); err != nil {
			return nil, err
		}
		return m, nil
	})
	if err != nil {
		return nil, apperr.Internal("append message", err)
	}
	if s.events != nil {
		s.events.Enqueue(event.Event{Type: event.TypeMessageCreated, Key: roomID, Message: msg, At: msg.CreatedAt})
	}
	return msg, nil
}

type historyQuery struct {
	ReceiverID string `validate:"required,uuid"`
	ProductID  string `validate:"required,uuid"`
}

func (s *chatService) History(ctx context.Context, viewerID, counterpartyID, productID string) ([]*model.MessageView, error) {
	if err := validate.Struct(historyQuery{ReceiverID: counterpartyID, ProductID: productID}); err != nil {
		return nil, validationError(err)
	}
	msgs, err := s.messages.History(ctx, viewerID, counterpartyID, productID)
	if err != nil {
		return nil, apperr.Internal("load history", err)
	}
	return s.views(ctx, msgs)
}

func (s *chatService) HistoryByProduct(ctx context.Context, viewer *model.Principal, productID string) ([]*model.MessageView, error) {
	if err := validate.Var(productID, "required,uuid"); err != nil {
		return nil, apperr.Validation("Invalid product ID")
	}
	p, err := s.products.Product(ctx, productID)
	if err != nil {
		return nil, lookupError("product", err)
	}
	if viewer == nil || (viewer.ID != p.PostedBy && viewer.Role != model.RoleAdmin) {
		return nil, apperr.Forbidden("only the product owner can view all conversations")
	}
	msgs, err := s.messages.HistoryByProduct(ctx, productID)
	if err != nil {
		return nil, apperr.Internal("load product history", err)
	}
	return s.views(ctx, msgs)
}

type markReadInput struct {
	ReceiverID string `validate:"required,uuid"`
	SenderID   string `validate:"required,uuid"`
	ProductID  string `validate:"required,uuid"`
}

func (s *chatService) MarkRead(ctx context.Context, viewerID, receiverID, senderID, productID string) (int64, error) {
	if err := validate.Struct(markReadInput{ReceiverID: receiverID, SenderID: senderID, ProductID: productID}); err != nil {
		return 0, validationError(err)
	}
	if viewerID != receiverID {
		return 0, apperr.Forbidden("only the receiver can mark messages as read")
	}
	n, err := s.messages.MarkRead(ctx, receiverID, senderID, productID)
	if err != nil {
		return 0, apperr.Internal("mark read", err)
	}
	if n > 0 && s.events != nil {
		s.events.Enqueue(event.Event{
			Type: event.TypeMessageRead,
			Key:  room.ID(receiverID, senderID, productID),
			Read: &event.ReadState{ReceiverID: receiverID, SenderID: senderID, ProductID: productID, Updated: n},
		})
	}
	return n, nil
}

// views 一次批量解析发送方/接收方，缺失的用户为 nil
func (s *chatService) views(ctx context.Context, msgs []*model.Message) ([]*model.MessageView, error) {
	ids := make([]string, 0, 2)
	seen := make(map[string]struct{})
	for _, m := range msgs {
		for _, id := range [2]string{m.SenderID, m.ReceiverID} {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	users, err := s.users.Users(ctx, ids)
	if err != nil {
		return nil, apperr.Internal("resolve users", err)
	}
	out := make([]*model.MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, &model.MessageView{
			ID:        m.ID,
			Sender:    users[m.SenderID],
			Receiver:  users[m.ReceiverID],
			ProductID: m.ProductID,
			Body:      m.Body,
			IsRead:    m.IsRead,
			CreatedAt: m.CreatedAt,
		})
	}
	return out, nil
}
