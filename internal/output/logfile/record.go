// Package logfile 实现按分钟轮转、gzip 压缩的追加式采集日志。
//
// 每行一条记录，字段以 TAB 分隔，payload 总在最后：
//
//	start\t<ns>\t<url>
//	send\t<ns>\t<payload>
//	msg\t<ns>\t<payload>
//	err\t<ns>\t<payload>
//	state\t<ns>\t<channel>\t<payload>
//	end\t<ns>
package logfile

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind 记录类型
type Kind string

const (
	KindStart Kind = "start"
	KindSend  Kind = "send"
	KindMsg   Kind = "msg"
	KindErr   Kind = "err"
	KindState Kind = "state"
	KindEnd   Kind = "end"
)

// Record 一条日志记录
type Record struct {
	// Kind 记录类型
	Kind Kind
	// Time 纳秒时间戳（已钳制，单调不减）
	Time int64
	// Channel 频道标识（仅 state 记录）
	Channel string
	// Payload 原始内容；start 记录为连接地址，end 记录为空
	Payload string
}

var lineEscaper = strings.NewReplacer("\r", `\r`, "\n", `\n`)

// Format 渲染为一行（含结尾换行符）
// payload 中的换行符会被转义，保证一条记录只占一行
func Format(r Record) string {
	payload := r.Payload
	if strings.ContainsAny(payload, "\r\n") {
		payload = lineEscaper.Replace(payload)
	}
	ts := strconv.FormatInt(r.Time, 10)

	switch r.Kind {
	case KindEnd:
		return "end\t" + ts + "\n"
	case KindState:
		return "state\t" + ts + "\t" + r.Channel + "\t" + payload + "\n"
	default:
		return string(r.Kind) + "\t" + ts + "\t" + payload + "\n"
	}
}

// ParseLine 解析一行记录（不含换行符）
func ParseLine(line string) (Record, error) {
	fields := strings.SplitN(line, "\t", 2)
	kind := Kind(fields[0])

	switch kind {
	case KindEnd:
		if len(fields) != 2 {
			return Record{}, fmt.Errorf("end 记录缺少时间戳: %q", line)
		}
		ts, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return Record{}, fmt.Errorf("解析时间戳失败: %w", err)
		}
		return Record{Kind: KindEnd, Time: ts}, nil
	case KindStart, KindSend, KindMsg, KindErr, KindState:
	default:
		return Record{}, fmt.Errorf("未知记录类型: %q", fields[0])
	}

	if len(fields) != 2 {
		return Record{}, fmt.Errorf("记录字段不足: %q", line)
	}
	rest := strings.SplitN(fields[1], "\t", 2)
	if len(rest) != 2 {
		return Record{}, fmt.Errorf("记录字段不足: %q", line)
	}
	ts, err := strconv.ParseInt(rest[0], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("解析时间戳失败: %w", err)
	}

	rec := Record{Kind: kind, Time: ts, Payload: rest[1]}
	if kind == KindState {
		parts := strings.SplitN(rest[1], "\t", 2)
		if len(parts) != 2 {
			return Record{}, fmt.Errorf("state 记录缺少频道: %q", line)
		}
		rec.Channel, rec.Payload = parts[0], parts[1]
	}
	return rec, nil
}
