package service

import (
	"context"
	"sort"

	"github.com/d60-Lab/market-chat/internal/model"
	"github.com/d60-Lab/market-chat/internal/repository"
	"github.com/d60-Lab/market-chat/pkg/apperr"
)

// InboxService 卖家收件箱：把收到的消息按 (发送方, 商品) 归并成会话
type InboxService interface {
	Inbox(ctx context.Context, sellerID string) ([]*model.InboxEntry, error)
}

type inboxService struct {
	messages repository.MessageRepository
	users    UserDirectory
	products ProductDirectory
}

func NewInboxService(messages repository.MessageRepository, users UserDirectory, products ProductDirectory) InboxService {
	return &inboxService{messages: messages, users: users, products: products}
}

type convKey struct{ sender, product string }

func (s *inboxService) Inbox(ctx context.Context, sellerID string) ([]*model.InboxEntry, error) {
	msgs, err := s.messages.ListReceived(ctx, sellerID)
	if err != nil {
		return nil, apperr.Internal("list received messages", err)
	}
	entries := Group(msgs)
	if len(entries) == 0 {
		return entries, nil
	}

	userIDs := make([]string, 0, len(entries))
	productIDs := make([]string, 0, len(entries))
	for _, e := range entries {
		userIDs = append(userIDs, e.CounterpartyID)
		productIDs = append(productIDs, e.ProductID)
	}
	// 每个请求只做两次批量查询；目录缺失降级为 null，不影响整体结果
	users, err := s.users.Users(ctx, userIDs)
	if err != nil {
		return nil, apperr.Internal("resolve counterparties", err)
	}
	products, err := s.products.Products(ctx, productIDs)
	if err != nil {
		return nil, apperr.Internal("resolve products", err)
	}
	for _, e := range entries {
		e.Counterparty = users[e.CounterpartyID]
		e.Product = products[e.ProductID]
	}
	return entries, nil
}

// Group 单次遍历归并：每组保留 (created_at, id) 最大的一条，按 lastAt 倒序返回
func Group(msgs []*model.Message) []*model.InboxEntry {
	groups := make(map[convKey]*model.InboxEntry)
	for _, m := range msgs {
		k := convKey{sender: m.SenderID, product: m.ProductID}
		e, ok := groups[k]
		if !ok {
			e = &model.InboxEntry{CounterpartyID: m.SenderID, ProductID: m.ProductID}
			groups[k] = e
		}
		if !m.IsRead {
			e.UnreadCount++
		}
		if !ok || later(m, e) {
			e.LastMessageID = m.ID
			e.LastMessage = m.Body
			e.LastAt = m.CreatedAt
		}
	}

	out := make([]*model.InboxEntry, 0, len(groups))
	for _, e := range groups {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastAt.Equal(out[j].LastAt) {
			return out[i].LastAt.After(out[j].LastAt)
		}
		return out[i].LastMessageID > out[j].LastMessageID
	})
	return out
}

func later(m *model.Message, e *model.InboxEntry) bool {
	if m.CreatedAt.Equal(e.LastAt) {
		return m.ID > e.LastMessageID
	}
	return m.CreatedAt.After(e.LastAt)
}
