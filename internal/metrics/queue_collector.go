package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/artifactchain/relay/pkg/broker"
)

// queueCollector samples broker queue depths at scrape time instead of
// tracking them incrementally, so restarts cannot skew the gauges.
type queueCollector struct {
	rdb    *redis.Client
	logger *slog.Logger
	queues []string

	queueDepthDesc *prometheus.Desc
	deadDepthDesc  *prometheus.Desc
}

func newQueueCollector(rdb *redis.Client, queues []string, logger *slog.Logger) *queueCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &queueCollector{
		rdb:    rdb,
		logger: logger,
		queues: queues,
		queueDepthDesc: prometheus.NewDesc(
			"relay_queue_depth",
			"Current number of messages waiting on a broker queue.",
			[]string{"queue"},
			nil,
		),
		deadDepthDesc: prometheus.NewDesc(
			"relay_dead_depth",
			"Current number of messages parked on a queue's dead list.",
			[]string{"queue"},
			nil,
		),
	}
}

func (c *queueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queueDepthDesc
	ch <- c.deadDepthDesc
}

func (c *queueCollector) Collect(ch chan<- prometheus.Metric) {
	if c.rdb == nil {
		return
	}

	// Keep Redis reads bounded so scrapes do not hang.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pipe := c.rdb.Pipeline()
	depth := make(map[string]*redis.IntCmd, len(c.queues))
	dead := make(map[string]*redis.IntCmd, len(c.queues))
	for _, q := range c.queues {
		depth[q] = pipe.LLen(ctx, q)
		dead[q] = pipe.LLen(ctx, broker.DeadKey(q))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		c.logger.Warn("prometheus queue collector failed", "err", err)
		return
	}

	for _, q := range c.queues {
		emitGauge(ch, c.queueDepthDesc, float64(depth[q].Val()), q)
		emitGauge(ch, c.deadDepthDesc, float64(dead[q].Val()), q)
	}
}

func emitGauge(ch chan<- prometheus.Metric, desc *prometheus.Desc, v float64, labelValues ...string) {
	m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, v, labelValues...)
	if err != nil {
		return
	}
	ch <- m
}

var registerQueueCollectorOnce sync.Once

// RegisterQueueCollector registers the scrape-time queue depth collector.
// Safe to call more than once; only the first registration sticks.
func RegisterQueueCollector(rdb *redis.Client, queues []string, logger *slog.Logger) {
	registerQueueCollectorOnce.Do(func() {
		prometheus.MustRegister(newQueueCollector(rdb, queues, logger))
	})
}
