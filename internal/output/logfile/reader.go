package logfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"exchange-dumper/internal/channel"
)

// maxLine 单行最大长度（完整订单簿快照可能很大）
const maxLine = 64 << 20

var lineUnescaper = strings.NewReplacer(`\r`, "\r", `\n`, "\n")

// Read 从 gzip 流读取全部记录（支持多个 gzip 成员拼接）
func Read(r io.Reader) ([]Record, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("打开 gzip 流失败: %w", err)
	}
	defer zr.Close()

	var records []Record
	scanner := bufio.NewScanner(zr)
	scanner.Buffer(make([]byte, 0, 1<<20), maxLine)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := scanner.Text()
		if line == "" {
			continue
		}
		rec, err := ParseLine(line)
		if err != nil {
			return records, fmt.Errorf("第 %d 行: %w", lineNo, err)
		}
		rec.Payload = lineUnescaper.Replace(rec.Payload)
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("读取记录失败: %w", err)
	}
	return records, nil
}

// ReadFile 读取单个日志文件
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开文件失败: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// ListFiles 列出目录中指定前缀的日志文件，按文件名中的时间戳升序
func ListFiles(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("读取目录失败: %w", err)
	}

	type file struct {
		path string
		ts   int64
	}
	var files []file
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ts, ok := fileTime(e.Name(), prefix)
		if !ok {
			continue
		}
		files = append(files, file{path: filepath.Join(dir, e.Name()), ts: ts})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ts < files[j].ts })

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}
	return paths, nil
}

// fileTime 从 <prefix>_<ts>.<ext> 解析时间戳
func fileTime(name, prefix string) (int64, bool) {
	rest, ok := strings.CutPrefix(name, prefix+"_")
	if !ok {
		return 0, false
	}
	digits, _, ok := strings.Cut(rest, ".")
	if !ok {
		return 0, false
	}
	ts, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}

// Rebuild 从记录序列重建频道状态
// 从最后一个会话起点（start 记录或完整的 state 块）开始回放，之后的 send 与 msg 按写入顺序应用。
// 参数 newState: 创建空状态
func Rebuild(records []Record, newState func() channel.State) (channel.State, error) {
	begin := lastAnchor(records)
	s := newState()

	var block []channel.Entry
	flush := func() error {
		if len(block) == 0 {
			return nil
		}
		err := channel.Restore(s, block)
		block = nil
		return err
	}

	for _, rec := range records[begin:] {
		if rec.Kind == KindState {
			block = append(block, channel.Entry{Channel: rec.Channel, Payload: rec.Payload})
			continue
		}
		if err := flush(); err != nil {
			return nil, fmt.Errorf("恢复快照失败: %w", err)
		}
		switch rec.Kind {
		case KindStart:
			s = newState()
		case KindEnd:
			// 会话结束，连接状态失效
			s = newState()
		case KindSend:
			if oc, ok := s.(channel.OutboundClassifier); ok {
				_, _ = channel.SafeClassify(oc.ClassifyOutbound, rec.Payload)
			}
		case KindMsg:
			_, _ = channel.SafeClassify(s.ClassifyAndApply, rec.Payload)
		}
	}
	if err := flush(); err != nil {
		return nil, fmt.Errorf("恢复快照失败: %w", err)
	}
	return s, nil
}

// lastAnchor 返回最后一个 start 记录或 state 块起点的下标
// 快照与 start 之间隔着 end 时以较晚者为准
func lastAnchor(records []Record) int {
	for i := len(records) - 1; i >= 0; i-- {
		switch records[i].Kind {
		case KindStart:
			return i
		case KindState:
			j := i
			for j > 0 && records[j-1].Kind == KindState {
				j--
			}
			return j
		}
	}
	return 0
}
