package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 事件处理结果
const (
	OutcomeOK         = "ok"
	OutcomeInvalid    = "invalid"
	OutcomeNotFound   = "not_found"
	OutcomeStoreError = "store_error"
)

// Metrics 实时动态服务的监控指标
type Metrics struct {
	OnlineConnections prometheus.Gauge
	OnlineUsers       prometheus.Gauge
	Events            *prometheus.CounterVec
	Broadcasts        *prometheus.CounterVec
	StoreConflicts    prometheus.Counter
	HTTPErrors        *prometheus.CounterVec
}

// New 在给定的注册器上创建指标，测试中传入独立的 Registry
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OnlineConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "online_connections",
			Help: "Number of authenticated socket connections.",
		}),
		OnlineUsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "online_users",
			Help: "Number of distinct users with at least one connection.",
		}),
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "feed_events_total",
			Help: "Mutation events handled, by event and outcome.",
		}, []string{"event", "outcome"}),
		Broadcasts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "feed_broadcasts_total",
			Help: "Messages fanned out to all connections, by event.",
		}, []string{"event"}),
		StoreConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "feed_store_conflicts_total",
			Help: "Optimistic concurrency conflicts retried against the post store.",
		}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "HTTP handler errors, by application error code.",
		}, []string{"code"}),
	}
}

// NewNop 不注册到任何地方的指标，供测试和工具命令使用
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
