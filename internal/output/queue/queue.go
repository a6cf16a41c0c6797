// Package queue 实现连接级写入队列。
// 网络协程只负责入队；唯一的写入协程按 FIFO 顺序分类消息、更新频道状态并写入日志文件。
// 写入协程发生故障后，故障被保存并由之后的每次入队返回。
package queue

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"exchange-dumper/internal/channel"
	"exchange-dumper/internal/metrics"
	"exchange-dumper/internal/output/logfile"
)

// ErrQueueClosed end 已入队，不再接受请求
var ErrQueueClosed = errors.New("写入队列已关闭")

type requestKind uint8

const (
	reqMsg requestKind = iota
	reqSend
	reqErr
	reqEnd
)

type request struct {
	kind    requestKind
	ts      int64
	payload string
}

// Options 队列参数
type Options struct {
	// State 频道状态机，只在写入协程中访问
	State channel.State
	// Writer 日志写入器，只在写入协程中访问
	Writer *logfile.Writer
	// Logger 日志记录器
	Logger *zap.Logger
	// Metrics 指标，可为 nil
	Metrics *metrics.Exchange
}

// Queue 无界 FIFO 写入队列（多生产者，单消费者）
type Queue struct {
	state   channel.State
	writer  *logfile.Writer
	logger  *zap.Logger
	metrics *metrics.Exchange

	mu     sync.Mutex
	cond   *sync.Cond
	items  []request
	ended  bool
	fault  error
	done   chan struct{}
	result error
}

// New 创建队列并启动写入协程
func New(opts Options) *Queue {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		state:   opts.State,
		writer:  opts.Writer,
		logger:  logger.Named("queue"),
		metrics: opts.Metrics,
		done:    make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.loop()
	return q
}

// Msg 入队一条入站消息
func (q *Queue) Msg(ts int64, payload string) error {
	return q.enqueue(request{kind: reqMsg, ts: ts, payload: payload})
}

// Send 入队一条已发送的出站消息
func (q *Queue) Send(ts int64, payload string) error {
	return q.enqueue(request{kind: reqSend, ts: ts, payload: payload})
}

// Err 入队一条错误记录
func (q *Queue) Err(ts int64, text string) error {
	return q.enqueue(request{kind: reqErr, ts: ts, payload: text})
}

// End 入队结束记录；写入协程处理完它后退出
func (q *Queue) End(ts int64) error {
	return q.enqueue(request{kind: reqEnd, ts: ts})
}

func (q *Queue) enqueue(r request) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.fault != nil {
		return q.fault
	}
	if q.ended {
		return ErrQueueClosed
	}
	if r.kind == reqEnd {
		q.ended = true
	}
	q.items = append(q.items, r)
	q.metrics.SetQueueDepth(len(q.items))
	q.cond.Signal()
	return nil
}

// Len 当前待处理请求数
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Fault 返回已保存的故障（没有则为 nil）
func (q *Queue) Fault() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.fault
}

// Done 写入协程退出时关闭
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Wait 等待写入协程退出
// 返回: 写入协程的故障，正常处理完 end 时为 nil
func (q *Queue) Wait() error {
	<-q.done
	return q.result
}

// loop 写入协程：批量取出请求，逐条处理；队列空闲时刷新文件缓冲
func (q *Queue) loop() {
	defer close(q.done)

	for {
		q.mu.Lock()
		for len(q.items) == 0 {
			q.cond.Wait()
		}
		batch := q.items
		q.items = nil
		q.metrics.SetQueueDepth(0)
		q.mu.Unlock()

		for _, r := range batch {
			finished, err := q.process(r)
			if err != nil {
				q.fail(err)
				return
			}
			if finished {
				return
			}
		}

		if q.Len() == 0 {
			if err := q.writer.Flush(); err != nil {
				q.fail(err)
				return
			}
		}
	}
}

// process 处理单个请求
// 返回: 是否已处理 end
func (q *Queue) process(r request) (bool, error) {
	switch r.kind {
	case reqMsg:
		// 先轮转（轮转时的快照不包含本条消息），再更新状态并写入
		ts, err := q.writer.Advance(r.ts)
		if err != nil {
			return false, err
		}
		q.classify(q.state.ClassifyAndApply, r.payload, "入站")
		return false, q.writer.Msg(ts, r.payload)
	case reqSend:
		ts, err := q.writer.Advance(r.ts)
		if err != nil {
			return false, err
		}
		if oc, ok := q.state.(channel.OutboundClassifier); ok {
			q.classify(oc.ClassifyOutbound, r.payload, "出站")
		}
		return false, q.writer.Send(ts, r.payload)
	case reqErr:
		return false, q.writer.Err(r.ts, r.payload)
	case reqEnd:
		return true, q.writer.End(r.ts)
	}
	return false, nil
}

// classify 分类失败只告警，不影响写入
func (q *Queue) classify(fn func(string) (string, error), payload, direction string) {
	ch, err := channel.SafeClassify(fn, payload)
	switch {
	case errors.Is(err, channel.ErrUnclassified):
		q.metrics.UnknownChannel()
		q.logger.Warn("未知频道", zap.String("direction", direction), zap.String("payload", truncate(payload)))
	case err != nil:
		q.metrics.ClassifyError()
		q.metrics.UnknownChannel()
		q.logger.Warn("频道分类失败", zap.String("direction", direction), zap.Error(err),
			zap.String("payload", truncate(payload)))
	case ch == channel.Unknown:
		q.metrics.UnknownChannel()
		q.logger.Warn("未知频道", zap.String("direction", direction), zap.String("payload", truncate(payload)))
	}
}

// fail 保存故障并丢弃剩余请求
func (q *Queue) fail(err error) {
	q.metrics.WriterFault()
	q.logger.Error("写入协程故障", zap.Error(err))
	if aerr := q.writer.Abort(); aerr != nil {
		q.logger.Warn("关闭文件失败", zap.Error(aerr))
	}

	q.mu.Lock()
	q.fault = err
	q.result = err
	q.items = nil
	q.metrics.SetQueueDepth(0)
	q.mu.Unlock()
}

func truncate(s string) string {
	const limit = 256
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
