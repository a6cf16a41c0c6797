package bitmex

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// levelKey 同一交易对内的订单簿键
type levelKey struct {
	side string
	id   int64
}

// level 常驻档位
type level struct {
	price decimal.Decimal
	size  decimal.Decimal
}

// book orderBookL2 状态，按交易对分组
// 键为 (symbol, side, id)，价格在 id 生命周期内不变
type book struct {
	symbols map[string]map[levelKey]level
	// seen 是否收到过本表数据（决定快照是否输出）
	seen bool
}

func newBook() *book {
	return &book{symbols: make(map[string]map[levelKey]level)}
}

// apply 处理一条 orderBookL2 推送
func (b *book) apply(action string, rows []json.RawMessage) error {
	b.seen = true

	parsed := make([]L2Row, 0, len(rows))
	for _, raw := range rows {
		var r L2Row
		if err := json.Unmarshal(raw, &r); err != nil {
			return fmt.Errorf("解析 orderBookL2 行失败: %w", err)
		}
		parsed = append(parsed, r)
	}

	switch action {
	case ActionPartial:
		// partial 为该交易对的完整镜像
		for _, r := range parsed {
			delete(b.symbols, r.Symbol)
		}
		for _, r := range parsed {
			if err := b.store(r); err != nil {
				return err
			}
		}
	case ActionInsert:
		for _, r := range parsed {
			if err := b.store(r); err != nil {
				return err
			}
			b.uncross(r)
		}
	case ActionUpdate:
		for _, r := range parsed {
			levels := b.symbols[r.Symbol]
			key := levelKey{side: r.Side, id: r.ID}
			lv, ok := levels[key]
			if !ok || r.Size == nil {
				continue
			}
			lv.size = *r.Size
			levels[key] = lv
		}
	case ActionDelete:
		for _, r := range parsed {
			if levels, ok := b.symbols[r.Symbol]; ok {
				delete(levels, levelKey{side: r.Side, id: r.ID})
			}
		}
	default:
		return fmt.Errorf("未知的 orderBookL2 动作: %s", action)
	}
	return nil
}

// store 写入 {price, size}
func (b *book) store(r L2Row) error {
	if r.Price == nil || r.Size == nil {
		return fmt.Errorf("orderBookL2 行缺少 price/size: symbol=%s id=%d", r.Symbol, r.ID)
	}
	levels, ok := b.symbols[r.Symbol]
	if !ok {
		levels = make(map[levelKey]level)
		b.symbols[r.Symbol] = levels
	}
	levels[levelKey{side: r.Side, id: r.ID}] = level{price: *r.Price, size: *r.Size}
	return nil
}

// uncross 插入后剔除与新档位交叉的对手盘
// 推送流中 insert 可能与尚未删除的旧档位交叉：
// 新 Sell@P 删除同交易对所有 price >= P 的 Buy；新 Buy@P 删除所有 price <= P 的 Sell。
// 只剔除对手盘，新档位保留。
func (b *book) uncross(r L2Row) {
	levels := b.symbols[r.Symbol]
	p := *r.Price
	for key, lv := range levels {
		switch {
		case r.Side == SideSell && key.side == SideBuy && lv.price.GreaterThanOrEqual(p):
			delete(levels, key)
		case r.Side == SideBuy && key.side == SideSell && lv.price.LessThanOrEqual(p):
			delete(levels, key)
		}
	}
}

// render 渲染为 partial 推送
// 交易对升序，同一交易对内价格降序，价格相同按 id 升序
func (b *book) render() string {
	symbols := make([]string, 0, len(b.symbols))
	for sym := range b.symbols {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var sb strings.Builder
	sb.WriteString(`{"table":"orderBookL2","action":"partial","data":[`)
	first := true
	for _, sym := range symbols {
		levels := b.symbols[sym]
		keys := make([]levelKey, 0, len(levels))
		for k := range levels {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if c := levels[keys[i]].price.Cmp(levels[keys[j]].price); c != 0 {
				return c > 0
			}
			if keys[i].id != keys[j].id {
				return keys[i].id < keys[j].id
			}
			return keys[i].side < keys[j].side
		})

		symJSON, _ := json.Marshal(sym)
		for _, k := range keys {
			if !first {
				sb.WriteByte(',')
			}
			first = false
			lv := levels[k]
			sideJSON, _ := json.Marshal(k.side)
			sb.WriteString(`{"symbol":`)
			sb.Write(symJSON)
			sb.WriteString(`,"id":`)
			sb.WriteString(strconv.FormatInt(k.id, 10))
			sb.WriteString(`,"side":`)
			sb.Write(sideJSON)
			sb.WriteString(`,"size":`)
			sb.WriteString(lv.size.String())
			sb.WriteString(`,"price":`)
			sb.WriteString(lv.price.String())
			sb.WriteByte('}')
		}
	}
	sb.WriteString("]}")
	return sb.String()
}
