package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/market-chat/internal/event"
	"github.com/d60-Lab/market-chat/pkg/logger"
	"github.com/d60-Lab/market-chat/pkg/metrics"
)

// EventDispatcher 本地异步事件投递器：队列满直接丢弃，不阻塞发送路径
type EventDispatcher struct {
	pub event.Publisher
	ch  chan event.Event
}

func NewEventDispatcher(pub event.Publisher, queueSize int) *EventDispatcher {
	if queueSize <= 0 {
		queueSize = 10000
	}
	return &EventDispatcher{pub: pub, ch: make(chan event.Event, queueSize)}
}

// Start 启动 workers 个投递协程，返回的函数用于停止并在超时内排空队列
func (d *EventDispatcher) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 2
	}
	stopCh := make(chan struct{})
	done := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for {
				select {
				case e := <-d.ch:
					d.deliver(e)
				case <-stopCh:
					return
				}
			}
		}()
	}
	return func(ctx context.Context) error {
		close(stopCh)
		for i := 0; i < workers; i++ {
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		// 剩余事件在调用方协程里投递
		for {
			select {
			case e := <-d.ch:
				d.deliver(e)
			case <-ctx.Done():
				return ctx.Err()
			default:
				return nil
			}
		}
	}
}

func (d *EventDispatcher) deliver(e event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.pub.Publish(ctx, e); err != nil {
		logger.Warn("publish event failed", zap.String("type", e.Type), zap.String("room", e.Key), zap.Error(err))
	}
}

// Enqueue 非阻塞入队
func (d *EventDispatcher) Enqueue(e event.Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	select {
	case d.ch <- e:
	default:
		metrics.EventsDropped.Inc()
		logger.Warn("event queue full, drop", zap.String("type", e.Type), zap.String("room", e.Key))
	}
}

// QueueLen 返回当前队列长度（采样值）。
func (d *EventDispatcher) QueueLen() int { return len(d.ch) }
