package bitmex

import (
	"fmt"
	"sort"

	json "github.com/goccy/go-json"
)

// instruments instrument 表状态：symbol -> 字段表
// partial/insert 整体替换；update 只合并到已存在的交易对，不新建
type instruments struct {
	records map[string]map[string]json.RawMessage
	seen    bool
}

func newInstruments() *instruments {
	return &instruments{records: make(map[string]map[string]json.RawMessage)}
}

func (m *instruments) apply(action string, rows []json.RawMessage) error {
	m.seen = true

	for _, raw := range rows {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return fmt.Errorf("解析 instrument 行失败: %w", err)
		}
		var row instrumentRow
		if err := json.Unmarshal(raw, &row); err != nil {
			return fmt.Errorf("解析 instrument symbol 失败: %w", err)
		}

		switch action {
		case ActionPartial, ActionInsert:
			m.records[row.Symbol] = fields
		case ActionUpdate:
			rec, ok := m.records[row.Symbol]
			if !ok {
				continue
			}
			for k, v := range fields {
				rec[k] = v
			}
		}
	}
	return nil
}

// render 渲染为 partial 推送，交易对升序，字段按键名排序
func (m *instruments) render() (string, error) {
	symbols := make([]string, 0, len(m.records))
	for sym := range m.records {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	data := make([]map[string]json.RawMessage, 0, len(symbols))
	for _, sym := range symbols {
		data = append(data, m.records[sym])
	}
	b, err := json.Marshal(struct {
		Table  string                       `json:"table"`
		Action string                       `json:"action"`
		Data   []map[string]json.RawMessage `json:"data"`
	}{TableInstrument, ActionPartial, data})
	if err != nil {
		return "", fmt.Errorf("序列化 instrument 快照失败: %w", err)
	}
	return string(b), nil
}
