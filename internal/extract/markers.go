package extract

import (
	"math"
	"strconv"
	"strings"

	"github.com/John-Robertt/lgtmap/internal/domain"
)

// Rules 描述上游页面的标记约定（脆弱且无文档，因此全部可配置）。
type Rules struct {
	Selector  string // 例如 ".ap.lgt"
	TopAttr   string // 像素 y
	LeftAttr  string // 像素 x
	AgePrefix string // 例如 "lgt-"
	// MaxBucket>0 时把年龄桶截断到该值；0 表示不截断。
	MaxBucket int
}

// DefaultRules 对应 meteologix 闪电页面的当前结构。
func DefaultRules() Rules {
	return Rules{
		Selector:  ".ap.lgt",
		TopAttr:   "data-top",
		LeftAttr:  "data-left",
		AgePrefix: "lgt-",
	}
}

func (r Rules) withDefaults() Rules {
	d := DefaultRules()
	if strings.TrimSpace(r.Selector) == "" {
		r.Selector = d.Selector
	}
	if strings.TrimSpace(r.TopAttr) == "" {
		r.TopAttr = d.TopAttr
	}
	if strings.TrimSpace(r.LeftAttr) == "" {
		r.LeftAttr = d.LeftAttr
	}
	if r.AgePrefix == "" {
		r.AgePrefix = d.AgePrefix
	}
	return r
}

// Markers 按文档顺序返回所有可用标记。
//
// 坐标属性缺失或不是有限数的元素会被静默丢弃，不影响其他元素。
func Markers(doc DocumentQuery, rules Rules) []domain.RawMarker {
	rules = rules.withDefaults()

	elems := doc.FindByClass(rules.Selector)
	out := make([]domain.RawMarker, 0, len(elems))
	for _, el := range elems {
		y, ok := pixelAttr(el, rules.TopAttr)
		if !ok {
			continue
		}
		x, ok := pixelAttr(el, rules.LeftAttr)
		if !ok {
			continue
		}
		bucket := ageBucket(el.ClassTokens(), rules.AgePrefix)
		if rules.MaxBucket > 0 && bucket > rules.MaxBucket {
			bucket = rules.MaxBucket
		}
		out = append(out, domain.RawMarker{PixelX: x, PixelY: y, AgeBucket: bucket})
	}
	return out
}

func pixelAttr(el ElementHandle, name string) (float64, bool) {
	v, ok := el.Attr(name)
	if !ok {
		return 0, false
	}
	return parsePixel(v)
}

// parsePixel 解析像素值；允许首尾空白与 "px" 后缀（内联样式里常见）。
func parsePixel(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimSuffix(s, "px"))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ageBucket 取第一个形如 <prefix><n> 的 class（n 为非负整数）；没有则为 0。
func ageBucket(tokens []string, prefix string) int {
	for _, tok := range tokens {
		if !strings.HasPrefix(tok, prefix) {
			continue
		}
		n, err := strconv.Atoi(tok[len(prefix):])
		if err != nil || n < 0 {
			continue
		}
		return n
	}
	return 0
}
