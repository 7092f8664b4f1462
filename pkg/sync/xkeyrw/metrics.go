package xkeyrw

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// 设计决策: 指标前缀使用 "xkeyrw.*"，与 OTel Meter scope name 保持一致
// （Meter("xkeyrw")），避免与 scope 名称产生冗余嵌套。
// 如需统一命名空间，应在采集端（Prometheus relabel）处理。
// key 本身不作为指标属性，避免高基数问题；按模式和结果聚合已足够定位争用。
const (
	// metricNameAcquireTotal 锁获取尝试次数计数器
	metricNameAcquireTotal = "xkeyrw.acquire.total"
	// metricNameReleaseTotal 锁释放次数计数器
	metricNameReleaseTotal = "xkeyrw.release.total"
	// metricNameAcquireDuration 锁获取等待耗时直方图
	metricNameAcquireDuration = "xkeyrw.acquire.duration"
	// metricNameLiveKeys 当前活跃 key 数量观测仪
	metricNameLiveKeys = "xkeyrw.keys"

	attrKeyMode    = "mode"
	attrKeyOutcome = "outcome"

	outcomeAcquired   = "acquired"
	outcomeWouldBlock = "would_block"
	outcomeCancelled  = "cancelled"
	outcomeClosed     = "closed"

	instrumentationVersion = "0.1.0"
)

// durationBuckets 耗时直方图的桶边界
var durationBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0}

// metrics 读写锁指标收集器。
type metrics struct {
	acquireTotal    metric.Int64Counter
	releaseTotal    metric.Int64Counter
	acquireDuration metric.Float64Histogram
	liveKeys        metric.Int64ObservableGauge
	registration    metric.Registration
}

// newMetrics 创建指标收集器。
// meterProvider 为 nil 时返回 nil（不收集指标）。
// keyCount 是活跃 key 数的读取函数，通过回调注册为观测仪。
func newMetrics(meterProvider metric.MeterProvider, keyCount func() int64) (*metrics, error) {
	if meterProvider == nil {
		return nil, nil
	}

	m := &metrics{}
	meter := meterProvider.Meter("xkeyrw",
		metric.WithInstrumentationVersion(instrumentationVersion),
	)

	var err error
	if m.acquireTotal, err = meter.Int64Counter(metricNameAcquireTotal,
		metric.WithDescription("锁获取尝试次数"), metric.WithUnit("{acquire}")); err != nil {
		return nil, err
	}
	if m.releaseTotal, err = meter.Int64Counter(metricNameReleaseTotal,
		metric.WithDescription("锁释放次数"), metric.WithUnit("{release}")); err != nil {
		return nil, err
	}
	if m.acquireDuration, err = meter.Float64Histogram(metricNameAcquireDuration,
		metric.WithDescription("锁获取等待耗时"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...)); err != nil {
		return nil, err
	}
	if m.liveKeys, err = meter.Int64ObservableGauge(metricNameLiveKeys,
		metric.WithDescription("当前活跃 key 数量（持有者 + 等待者）"),
		metric.WithUnit("{key}")); err != nil {
		return nil, err
	}
	if m.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(m.liveKeys, max(keyCount(), 0))
		return nil
	}, m.liveKeys); err != nil {
		return nil, err
	}
	return m, nil
}

// recordAcquire 记录一次获取尝试的模式、结果与等待耗时。
func (m *metrics) recordAcquire(ctx context.Context, mode Mode, outcome string, elapsed time.Duration) {
	set := attribute.NewSet(
		attribute.String(attrKeyMode, mode.String()),
		attribute.String(attrKeyOutcome, outcome),
	)
	m.acquireTotal.Add(ctx, 1, metric.WithAttributeSet(set))
	m.acquireDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributeSet(set))
}

// recordRelease 记录一次锁释放。
func (m *metrics) recordRelease(ctx context.Context, mode Mode) {
	m.releaseTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String(attrKeyMode, mode.String())))
}

// close 注销观测回调，使 Close 后的采集不再触达本实例。
func (m *metrics) close() {
	if m.registration != nil {
		_ = m.registration.Unregister()
	}
}
