package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/market-chat/pkg/logger"
	"github.com/d60-Lab/market-chat/pkg/metrics"
)

// RedisRelay 通过 Redis pub/sub 把房间推送转发给其他实例。
// 每条消息带上实例 id，收到自己发出的消息直接忽略；跨实例不保证顺序。
type RedisRelay struct {
	rdb      *redis.Client
	channel  string
	instance string
	hub      *Hub

	mu  sync.Mutex
	sub *redis.PubSub
}

type relayEnvelope struct {
	Instance string          `json:"instance"`
	Room     string          `json:"room"`
	Frame    json.RawMessage `json:"frame"`
}

func NewRedisRelay(rdb *redis.Client, prefix string, hub *Hub) *RedisRelay {
	channel := "room"
	if prefix != "" {
		channel = prefix + ":room"
	}
	return &RedisRelay{rdb: rdb, channel: channel, instance: uuid.NewString(), hub: hub}
}

func (r *RedisRelay) Instance() string { return r.instance }

func (r *RedisRelay) Publish(ctx context.Context, roomID string, frame []byte) error {
	payload, err := json.Marshal(relayEnvelope{Instance: r.instance, Room: roomID, Frame: frame})
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.channel, payload).Err()
}

// Start 订阅成功后返回；返回的函数取消订阅并等待接收协程退出
func (r *RedisRelay) Start(ctx context.Context) (func() error, error) {
	sub := r.rdb.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	r.mu.Lock()
	r.sub = sub
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range sub.Channel() {
			r.deliver(msg.Payload)
		}
	}()
	return func() error {
		err := sub.Close()
		<-done
		return err
	}, nil
}

func (r *RedisRelay) deliver(payload string) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		logger.Warn("relay: bad envelope", zap.Error(err))
		return
	}
	if env.Instance == r.instance || env.Room == "" {
		return
	}
	n := r.hub.Publish(env.Room, env.Frame)
	metrics.FramesDelivered.WithLabelValues("relay").Add(float64(n))
}
