package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/d60-Lab/market-chat/internal/model"
	"github.com/d60-Lab/market-chat/pkg/logger"
	"github.com/d60-Lab/market-chat/pkg/metrics"
)

const relayTimeout = 2 * time.Second

// Broadcaster 按房间号哈希到固定数量的锁上，同一房间的 落库→推送 串行，不同房间大多并行
type Broadcaster struct {
	hub     *Hub
	relay   *RedisRelay
	stripes []sync.Mutex
}

// NewBroadcaster relay 可以为 nil（单实例部署）
func NewBroadcaster(hub *Hub, relay *RedisRelay, stripes int) *Broadcaster {
	if stripes <= 0 {
		stripes = 256
	}
	return &Broadcaster{hub: hub, relay: relay, stripes: make([]sync.Mutex, stripes)}
}

func (b *Broadcaster) lockFor(roomID string) *sync.Mutex {
	return &b.stripes[xxhash.Sum64String(roomID)%uint64(len(b.stripes))]
}

// Sequence persist 失败时不推送任何内容
func (b *Broadcaster) Sequence(roomID string, persist func() (*model.Message, error)) (*model.Message, error) {
	mu := b.lockFor(roomID)
	mu.Lock()
	defer mu.Unlock()

	m, err := persist()
	if err != nil {
		return nil, err
	}
	frame := MessageFrame(roomID, m)
	n := b.hub.Publish(roomID, frame)
	metrics.FramesDelivered.WithLabelValues("local").Add(float64(n))

	if b.relay != nil {
		ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
		defer cancel()
		if err := b.relay.Publish(ctx, roomID, frame); err != nil {
			logger.Warn("relay publish failed", zap.String("room", roomID), zap.Error(err))
		}
	}
	return m, nil
}
