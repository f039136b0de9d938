package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActiveConnections 当前在线 websocket 连接数
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "marketchat",
		Name:      "ws_active_connections",
		Help:      "Active websocket connections.",
	})

	// ActiveRooms 当前至少有一个连接的房间数
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "marketchat",
		Name:      "ws_active_rooms",
		Help:      "Rooms with at least one bound connection.",
	})

	// MessagesSent 按来源（http / ws）统计已持久化的消息
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketchat",
		Name:      "messages_sent_total",
		Help:      "Messages persisted, by transport.",
	}, []string{"transport"})

	// FramesDropped 因发送队列满而丢弃的推送帧
	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "marketchat",
		Name:      "ws_frames_dropped_total",
		Help:      "Broadcast frames dropped because a connection queue was full.",
	})

	// FramesDelivered 推送到连接队列的帧数，source 为 local 或 relay
	FramesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketchat",
		Name:      "ws_frames_delivered_total",
		Help:      "Broadcast frames queued to connections, by source.",
	}, []string{"source"})

	// EventsDropped 事件外发队列满时丢弃的事件
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "marketchat",
		Name:      "events_dropped_total",
		Help:      "Domain events dropped because the dispatcher queue was full.",
	})

	// RequestDuration HTTP 请求耗时
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "marketchat",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Handler Prometheus 抓取端点
func Handler() http.Handler {
	return promhttp.Handler()
}
