package logfile

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"exchange-dumper/internal/channel"
	"exchange-dumper/internal/metrics"
	"exchange-dumper/internal/util/timeutil"
)

// ErrClosed 写入器已关闭（终态，不会重新打开）
var ErrClosed = errors.New("日志写入器已关闭")

// SnapshotEvery 每当新文件的分钟序号能被它整除时写入快照
const SnapshotEvery = 10

// Snapshotter 快照来源
type Snapshotter interface {
	Snapshot() ([]channel.Entry, error)
}

// Options 写入器参数
type Options struct {
	// Dir 输出目录
	Dir string
	// Prefix 文件名前缀（交易所名称）
	Prefix string
	// URL 连接地址，写入 start 记录
	URL string
	// Ext 文件扩展名，默认 gz
	Ext string
	// Snapshotter 轮转时的快照来源，可为 nil
	Snapshotter Snapshotter
	// Logger 日志记录器
	Logger *zap.Logger
	// Metrics 指标，可为 nil
	Metrics *metrics.Exchange
}

// Writer 按分钟轮转的采集日志写入器
// 状态: 未打开 -> 打开(file_k) -> 打开(file_k+1) ... -> 已关闭（终态）
// 非并发安全，只能由写入协程使用。
type Writer struct {
	opts   Options
	logger *zap.Logger

	file *os.File
	gz   *gzip.Writer
	bw   *bufio.Writer
	path string

	// minuteOpened 当前文件的分钟序号
	minuteOpened int64
	// lastTime 已写入的最大时间戳
	lastTime int64
	closed   bool
}

// NewWriter 创建写入器，文件在第一次写入时打开
func NewWriter(opts Options) *Writer {
	if opts.Ext == "" {
		opts.Ext = "gz"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		opts:   opts,
		logger: logger.Named("writer"),
	}
}

// Path 当前文件路径
func (w *Writer) Path() string {
	return w.path
}

// Closed 是否已关闭
func (w *Writer) Closed() bool {
	return w.closed
}

// clamp 防止时间回退：小于已见最大值时使用最大值
func (w *Writer) clamp(ts int64) int64 {
	if ts < w.lastTime {
		w.logger.Warn("时间戳回退，使用上一条记录时间",
			zap.Int64("ts", ts), zap.Int64("last", w.lastTime))
		w.opts.Metrics.Clamped()
		return w.lastTime
	}
	w.lastTime = ts
	return ts
}

// Advance 钳制时间戳并在需要时打开/轮转文件
// 对同一时间戳重复调用是幂等的。
// 返回: 钳制后的时间戳
func (w *Writer) Advance(ts int64) (int64, error) {
	if w.closed {
		w.logger.Error("写入器已关闭，拒绝写入")
		return 0, ErrClosed
	}

	ts = w.clamp(ts)
	minute := timeutil.MinuteOf(ts)
	if w.file != nil && minute == w.minuteOpened {
		return ts, nil
	}

	first := w.file == nil
	if !first {
		if err := w.closeFile(); err != nil {
			return 0, err
		}
	}
	if err := w.openFile(ts); err != nil {
		return 0, err
	}
	w.minuteOpened = minute

	if first {
		return ts, w.write(Record{Kind: KindStart, Time: ts, Payload: w.opts.URL})
	}
	if minute%SnapshotEvery == 0 {
		return ts, w.writeSnapshot(ts)
	}
	return ts, nil
}

// openFile 打开 <dir>/<prefix>_<ts>.<ext>（追加模式，新建一个 gzip 成员）
func (w *Writer) openFile(ts int64) error {
	w.logger.Info("创建新文件")

	if err := os.MkdirAll(w.opts.Dir, 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}

	path := filepath.Join(w.opts.Dir, FileName(w.opts.Prefix, ts, w.opts.Ext))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("打开输出文件失败: %w", err)
	}

	w.file = f
	w.gz = gzip.NewWriter(f)
	w.bw = bufio.NewWriterSize(w.gz, 1<<16)
	w.path = path
	w.opts.Metrics.Rotated()
	return nil
}

// closeFile 刷新并关闭当前文件，使其可独立解压
func (w *Writer) closeFile() error {
	if w.file == nil {
		return nil
	}
	err := multierr.Combine(w.bw.Flush(), w.gz.Close(), w.file.Close())
	w.file, w.gz, w.bw = nil, nil, nil
	if err != nil {
		return fmt.Errorf("关闭文件 %s 失败: %w", w.path, err)
	}
	return nil
}

// writeSnapshot 以 state 记录写入快照
func (w *Writer) writeSnapshot(ts int64) error {
	if w.opts.Snapshotter == nil {
		return nil
	}
	entries, err := w.opts.Snapshotter.Snapshot()
	if err != nil {
		return fmt.Errorf("生成快照失败: %w", err)
	}
	for _, e := range entries {
		if err := w.write(Record{Kind: KindState, Time: ts, Channel: e.Channel, Payload: e.Payload}); err != nil {
			return err
		}
	}
	w.opts.Metrics.SnapshotWritten()
	w.logger.Debug("写入快照", zap.Int("entries", len(entries)), zap.String("file", w.path))
	return nil
}

func (w *Writer) write(r Record) error {
	if _, err := w.bw.WriteString(Format(r)); err != nil {
		return fmt.Errorf("写入记录失败: %w", err)
	}
	w.opts.Metrics.RecordWritten(string(r.Kind))
	return nil
}

// Append 写入一条 send/msg/err 记录
func (w *Writer) Append(kind Kind, ts int64, payload string) error {
	switch kind {
	case KindSend, KindMsg, KindErr:
	default:
		return fmt.Errorf("Append 不支持记录类型: %s", kind)
	}
	ts, err := w.Advance(ts)
	if err != nil {
		return err
	}
	return w.write(Record{Kind: kind, Time: ts, Payload: payload})
}

// Msg 写入入站消息
func (w *Writer) Msg(ts int64, payload string) error {
	return w.Append(KindMsg, ts, payload)
}

// Send 写入出站消息
func (w *Writer) Send(ts int64, payload string) error {
	return w.Append(KindSend, ts, payload)
}

// Err 写入错误
func (w *Writer) Err(ts int64, text string) error {
	return w.Append(KindErr, ts, text)
}

// End 写入 end 记录并关闭文件，之后写入器进入终态
func (w *Writer) End(ts int64) error {
	ts, err := w.Advance(ts)
	if err != nil {
		return err
	}
	werr := w.write(Record{Kind: KindEnd, Time: ts})
	w.closed = true
	return multierr.Append(werr, w.closeFile())
}

// Flush 将缓冲写入文件（gzip 同步刷新，已写内容可被解压）
func (w *Writer) Flush() error {
	if w.file == nil {
		return nil
	}
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("刷新缓冲失败: %w", err)
	}
	if err := w.gz.Flush(); err != nil {
		return fmt.Errorf("刷新 gzip 失败: %w", err)
	}
	return nil
}

// Abort 不写 end 记录直接关闭文件（写入协程故障后释放句柄）
func (w *Writer) Abort() error {
	w.closed = true
	return w.closeFile()
}

// FileName 生成文件名 <prefix>_<ts>.<ext>
func FileName(prefix string, ts int64, ext string) string {
	return fmt.Sprintf("%s_%d.%s", prefix, ts, ext)
}
