package model

import "time"

// InboxEntry 卖家收件箱的一行：每个 (买家, 商品) 一条，不落库，每次请求重新计算
type InboxEntry struct {
	Counterparty   *UserSummary    `json:"buyer"`
	Product        *ProductSummary `json:"product"`
	CounterpartyID string          `json:"buyerId"`
	ProductID      string          `json:"productId"`
	LastMessageID  string          `json:"lastMessageId"`
	LastMessage    string          `json:"lastMessage"`
	LastAt         time.Time       `json:"lastAt"`
	UnreadCount    int             `json:"unreadCount"`
}
