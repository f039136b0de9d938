package model

import "time"

// Message 聊天消息：创建后只有 IsRead 可变
type Message struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" bson:"_id" json:"id"`
	SenderID   string    `gorm:"type:varchar(36);not null;index:idx_msg_pair" bson:"sender_id" json:"sender"`
	ReceiverID string    `gorm:"type:varchar(36);not null;index:idx_msg_pair;index:idx_msg_receiver_created,priority:1" bson:"receiver_id" json:"receiver"`
	ProductID  string    `gorm:"type:varchar(36);not null;index:idx_msg_pair;index:idx_msg_product_created,priority:1" bson:"product_id" json:"product"`
	Body       string    `gorm:"type:text;not null" bson:"body" json:"message"`
	IsRead     bool      `gorm:"not null;default:false" bson:"is_read" json:"isRead"`
	CreatedAt  time.Time `gorm:"not null;index:idx_msg_receiver_created,priority:2;index:idx_msg_product_created,priority:2" bson:"created_at" json:"createdAt"`
}

func (Message) TableName() string { return "messages" }

// MessageView 历史记录的展示形态：发送方/接收方总是解析为用户摘要（不存在时为 null）
type MessageView struct {
	ID        string       `json:"id"`
	Sender    *UserSummary `json:"sender"`
	Receiver  *UserSummary `json:"receiver"`
	ProductID string       `json:"product"`
	Body      string       `json:"message"`
	IsRead    bool         `json:"isRead"`
	CreatedAt time.Time    `json:"createdAt"`
}
