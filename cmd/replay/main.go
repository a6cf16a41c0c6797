// Package main 是采集日志回放工具。
// 读取某个交易所的 gzip 日志文件，从最后一个会话起点（start 或快照块）重建频道状态，
// 并把重建后的快照以 "<channel>\t<payload>" 每行一条输出到标准输出。
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"exchange-dumper/internal/channel"
	"exchange-dumper/internal/config"
	"exchange-dumper/internal/exchange/bitfinex"
	"exchange-dumper/internal/exchange/bitflyer"
	"exchange-dumper/internal/exchange/bitmex"
	"exchange-dumper/internal/output/logfile"
	"exchange-dumper/internal/util/timeutil"
)

func main() {
	var dir, exchange, file string
	flag.StringVar(&dir, "dir", "./dump", "采集日志目录")
	flag.StringVar(&exchange, "exchange", "", "交易所名称（bitfinex/bitflyer/bitmex）")
	flag.StringVar(&file, "file", "", "只回放到该文件为止（默认回放目录中全部文件）")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		logger = zap.NewNop()
	}
	defer logger.Sync()

	newState, err := stateFactory(exchange)
	if err != nil {
		logger.Error("参数错误", zap.Error(err))
		os.Exit(2)
	}

	records, err := load(dir, exchange, file)
	if err != nil {
		logger.Error("读取日志失败", zap.Error(err))
		os.Exit(1)
	}
	if len(records) == 0 {
		logger.Error("日志中没有记录", zap.String("dir", dir))
		os.Exit(1)
	}
	logger.Info("读取完成",
		zap.Int("records", len(records)),
		zap.Time("from", timeutil.NanoToTime(records[0].Time)),
		zap.Time("to", timeutil.NanoToTime(records[len(records)-1].Time)))

	state, err := logfile.Rebuild(records, newState)
	if err != nil {
		logger.Error("重建状态失败", zap.Error(err))
		os.Exit(1)
	}
	entries, err := state.Snapshot()
	if err != nil {
		logger.Error("生成快照失败", zap.Error(err))
		os.Exit(1)
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	for _, e := range entries {
		fmt.Fprintf(out, "%s\t%s\n", e.Channel, e.Payload)
	}
}

// load 按时间顺序读取文件；file 非空时读到该文件为止
func load(dir, exchange, file string) ([]logfile.Record, error) {
	paths, err := logfile.ListFiles(dir, exchange)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("目录 %s 中没有 %s 的日志文件", dir, exchange)
	}

	var records []logfile.Record
	for i, p := range paths {
		recs, err := logfile.ReadFile(p)
		// 最后一个文件可能仍在写入，流没有结尾
		if err != nil && !(i == len(paths)-1 && errors.Is(err, io.ErrUnexpectedEOF)) {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		records = append(records, recs...)
		if file != "" && (p == file || filepath.Base(p) == file) {
			break
		}
	}
	return records, nil
}

func stateFactory(exchange string) (func() channel.State, error) {
	switch exchange {
	case config.ExchangeBitfinex:
		return func() channel.State { return bitfinex.NewState() }, nil
	case config.ExchangeBitflyer:
		return func() channel.State { return bitflyer.NewState() }, nil
	case config.ExchangeBitmex:
		return func() channel.State { return bitmex.NewState() }, nil
	}
	return nil, fmt.Errorf("未知交易所: %q", exchange)
}
