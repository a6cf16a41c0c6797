// Package metrics 定义采集管道的 Prometheus 指标。
// 所有指标按交易所（exchange 标签）区分；Exchange 的方法允许 nil 接收者，未启用指标时直接忽略。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 管道指标集合
type Metrics struct {
	// RecordsWritten 写入日志的记录数（按 kind）
	RecordsWritten *prometheus.CounterVec
	// UnknownChannel 无法分类的消息数
	UnknownChannel *prometheus.CounterVec
	// ClassifyErrors 分类失败（解析错误或 panic）次数
	ClassifyErrors *prometheus.CounterVec
	// ClampedRecords 时间戳回退被钳制的记录数
	ClampedRecords *prometheus.CounterVec
	// Rotations 日志文件轮转次数
	Rotations *prometheus.CounterVec
	// Snapshots 写入的快照块数量
	Snapshots *prometheus.CounterVec
	// QueueDepth 写入队列当前长度
	QueueDepth *prometheus.GaugeVec
	// WriterFaults 写入协程故障次数
	WriterFaults *prometheus.CounterVec
	// Reconnects 重连次数
	Reconnects *prometheus.CounterVec
	// SessionDuration 单次连接存活时间
	SessionDuration *prometheus.HistogramVec
}

// New 创建并注册指标
// 参数 reg: 注册器，测试中使用 prometheus.NewRegistry()
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RecordsWritten: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dumper_records_written_total",
			Help: "Records appended to the dump log",
		}, []string{"exchange", "kind"}),
		UnknownChannel: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dumper_unknown_channel_total",
			Help: "Messages logged under the unknown channel",
		}, []string{"exchange"}),
		ClassifyErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dumper_classify_errors_total",
			Help: "Channel classification failures",
		}, []string{"exchange"}),
		ClampedRecords: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dumper_clamped_records_total",
			Help: "Records whose timestamp went backwards and was clamped",
		}, []string{"exchange"}),
		Rotations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dumper_file_rotations_total",
			Help: "Dump files opened",
		}, []string{"exchange"}),
		Snapshots: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dumper_snapshots_total",
			Help: "State snapshot blocks written",
		}, []string{"exchange"}),
		QueueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dumper_queue_depth",
			Help: "Pending write requests",
		}, []string{"exchange"}),
		WriterFaults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dumper_writer_faults_total",
			Help: "Writer worker faults",
		}, []string{"exchange"}),
		Reconnects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dumper_reconnects_total",
			Help: "Connection attempts started by the supervisor",
		}, []string{"exchange"}),
		SessionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dumper_session_duration_seconds",
			Help:    "Lifetime of a single websocket connection",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600, 4 * 3600, 24 * 3600},
		}, []string{"exchange"}),
	}
}

// Exchange 单个交易所的指标视图
type Exchange struct {
	recordsWritten  *prometheus.CounterVec
	unknownChannel  prometheus.Counter
	classifyErrors  prometheus.Counter
	clampedRecords  prometheus.Counter
	rotations       prometheus.Counter
	snapshots       prometheus.Counter
	queueDepth      prometheus.Gauge
	writerFaults    prometheus.Counter
	reconnects      prometheus.Counter
	sessionDuration prometheus.Observer
}

// For 返回指定交易所的指标视图
func (m *Metrics) For(exchange string) *Exchange {
	if m == nil {
		return nil
	}
	return &Exchange{
		recordsWritten:  m.RecordsWritten.MustCurryWith(prometheus.Labels{"exchange": exchange}),
		unknownChannel:  m.UnknownChannel.WithLabelValues(exchange),
		classifyErrors:  m.ClassifyErrors.WithLabelValues(exchange),
		clampedRecords:  m.ClampedRecords.WithLabelValues(exchange),
		rotations:       m.Rotations.WithLabelValues(exchange),
		snapshots:       m.Snapshots.WithLabelValues(exchange),
		queueDepth:      m.QueueDepth.WithLabelValues(exchange),
		writerFaults:    m.WriterFaults.WithLabelValues(exchange),
		reconnects:      m.Reconnects.WithLabelValues(exchange),
		sessionDuration: m.SessionDuration.WithLabelValues(exchange),
	}
}

// RecordWritten 记录一条写入
func (e *Exchange) RecordWritten(kind string) {
	if e == nil {
		return
	}
	e.recordsWritten.WithLabelValues(kind).Inc()
}

// UnknownChannel 记录一条未知频道消息
func (e *Exchange) UnknownChannel() {
	if e == nil {
		return
	}
	e.unknownChannel.Inc()
}

// ClassifyError 记录一次分类失败
func (e *Exchange) ClassifyError() {
	if e == nil {
		return
	}
	e.classifyErrors.Inc()
}

// Clamped 记录一次时间戳钳制
func (e *Exchange) Clamped() {
	if e == nil {
		return
	}
	e.clampedRecords.Inc()
}

// Rotated 记录一次文件轮转
func (e *Exchange) Rotated() {
	if e == nil {
		return
	}
	e.rotations.Inc()
}

// SnapshotWritten 记录一次快照写入
func (e *Exchange) SnapshotWritten() {
	if e == nil {
		return
	}
	e.snapshots.Inc()
}

// SetQueueDepth 设置队列长度
func (e *Exchange) SetQueueDepth(n int) {
	if e == nil {
		return
	}
	e.queueDepth.Set(float64(n))
}

// WriterFault 记录一次写入故障
func (e *Exchange) WriterFault() {
	if e == nil {
		return
	}
	e.writerFaults.Inc()
}

// Reconnect 记录一次连接尝试
func (e *Exchange) Reconnect() {
	if e == nil {
		return
	}
	e.reconnects.Inc()
}

// SessionEnded 记录连接存活时间
func (e *Exchange) SessionEnded(lived time.Duration) {
	if e == nil {
		return
	}
	e.sessionDuration.Observe(lived.Seconds())
}
