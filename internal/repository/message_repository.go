package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d60-Lab/market-chat/internal/model"
)

// MessageRepository 消息存储：只追加，唯一可变字段是 is_read
type MessageRepository interface {
	Append(ctx context.Context, m *model.Message) error
	// History 双向历史 {a,b} + product，按 created_at、id 升序
	History(ctx context.Context, userA, userB, productID string) ([]*model.Message, error)
	HistoryByProduct(ctx context.Context, productID string) ([]*model.Message, error)
	// MarkRead 把 receiver 收到的来自 sender 的未读消息置为已读，返回受影响行数
	MarkRead(ctx context.Context, receiverID, senderID, productID string) (int64, error)
	ListReceived(ctx context.Context, receiverID string) ([]*model.Message, error)
	Count(ctx context.Context) (int64, error)
}

// PrepareMessage 补齐服务端生成的 id 与时间戳。
// UUIDv7 随时间递增，同一毫秒内的消息用 id 做稳定排序。
func PrepareMessage(m *model.Message) error {
	if m.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		m.ID = id.String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return nil
}

type messageRepository struct{ db *gorm.DB }

func NewMessageRepository(db *gorm.DB) MessageRepository { return &messageRepository{db: db} }

func (r *messageRepository) Append(ctx context.Context, m *model.Message) error {
	if err := PrepareMessage(m); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *messageRepository) History(ctx context.Context, userA, userB, productID string) ([]*model.Message, error) {
	var res []*model.Message
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Where(r.db.Where("sender_id = ? AND receiver_id = ?", userA, userB).
			Or("sender_id = ? AND receiver_id = ?", userB, userA)).
		Order("created_at ASC, id ASC").
		Find(&res).Error
	return res, err
}

func (r *messageRepository) HistoryByProduct(ctx context.Context, productID string) ([]*model.Message, error) {
	var res []*model.Message
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at ASC, id ASC").
		Find(&res).Error
	return res, err
}

func (r *messageRepository) MarkRead(ctx context.Context, receiverID, senderID, productID string) (int64, error) {
	tx := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("receiver_id = ? AND sender_id = ? AND product_id = ? AND is_read = ?", receiverID, senderID, productID, false).
		Update("is_read", true)
	return tx.RowsAffected, tx.Error
}

func (r *messageRepository) ListReceived(ctx context.Context, receiverID string) ([]*model.Message, error) {
	var res []*model.Message
	err := r.db.WithContext(ctx).
		Where("receiver_id = ?", receiverID).
		Order("created_at ASC, id ASC").
		Find(&res).Error
	return res, err
}

func (r *messageRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Message{}).Count(&n).Error
	return n, err
}
