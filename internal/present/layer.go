package present

import (
	"sync"

	"github.com/John-Robertt/lgtmap/internal/domain"
	"github.com/John-Robertt/lgtmap/internal/snapshot"
)

// Marker 是带样式的单个闪电标记。
type Marker struct {
	domain.GeoStrike
	Style Style `json:"style"`
}

// Status 是 Layer 的状态视图：最近一次 cycle 与最近一次成功发布的 cycle。
type Status struct {
	Last      *domain.CycleReport `json:"last"`
	Published *domain.CycleReport `json:"published"`
	Markers   int                 `json:"markers"`
}

// Layer 是并发安全的标记层，每个 cycle 的结果整体替换。
//
// 约束：
// - 成功的 cycle 通过 Update 一次性发布（标记与状态原子切换）
// - 失败的 cycle 只更新 Last，已发布的标记保持不变
type Layer struct {
	mu        sync.RWMutex
	strikes   []domain.GeoStrike
	last      *domain.CycleReport
	published *domain.CycleReport
}

func NewLayer() *Layer { return &Layer{strikes: []domain.GeoStrike{}} }

// Update 接收一次 cycle 的完整结果。
func (l *Layer) Update(rr domain.CycleReport) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cp := rr
	cp.Strikes = nil
	l.last = &cp
	if !rr.OK() {
		return
	}
	l.strikes = append(make([]domain.GeoStrike, 0, len(rr.Strikes)), rr.Strikes...)
	l.published = &cp
}

// Markers 返回当前已发布的带样式标记（顺序与快照一致）。
func (l *Layer) Markers() []Marker {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Marker, 0, len(l.strikes))
	for _, s := range l.strikes {
		out = append(out, Marker{GeoStrike: s, Style: StyleFor(s.AgeMinutes)})
	}
	return out
}

// Strikes 返回当前已发布闪电的拷贝。
func (l *Layer) Strikes() []domain.GeoStrike {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.GeoStrike{}, l.strikes...)
}

// Export 生成与快照文件相同形态的 JSON（手动导出）。
func (l *Layer) Export() ([]byte, error) {
	return snapshot.Encode(l.Strikes())
}

func (l *Layer) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st := Status{Markers: len(l.strikes)}
	if l.last != nil {
		v := *l.last
		st.Last = &v
	}
	if l.published != nil {
		v := *l.published
		st.Published = &v
	}
	return st
}
