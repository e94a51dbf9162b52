package cache

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/John-Robertt/lgtmap/internal/domain"
)

// Store 是上游页面解析结果的进程内缓存（key 为页面 URL）。
//
// 约束：
// - 只缓存成功解析的页面；失败的 cycle 不写入
// - 同一 slug 的页面发布后不再变化，所以同一 5 分钟桶内的手动刷新可以直接复用
// - Size<=0 时缓存关闭（Get 永远 miss，Put 为 no-op）
// - 读写都做拷贝，调用方拿到的切片可以随意修改
type Store struct {
	c *lru.Cache[string, []domain.RawMarker]
}

func New(size int) (*Store, error) {
	if size <= 0 {
		return &Store{}, nil
	}
	c, err := lru.New[string, []domain.RawMarker](size)
	if err != nil {
		return nil, err
	}
	return &Store{c: c}, nil
}

func (s *Store) Enabled() bool { return s != nil && s.c != nil }

func (s *Store) Get(pageURL string) ([]domain.RawMarker, bool) {
	if !s.Enabled() {
		return nil, false
	}
	v, ok := s.c.Get(key(pageURL))
	if !ok {
		return nil, false
	}
	return append([]domain.RawMarker{}, v...), true
}

func (s *Store) Put(pageURL string, markers []domain.RawMarker) {
	if !s.Enabled() || key(pageURL) == "" {
		return
	}
	s.c.Add(key(pageURL), append([]domain.RawMarker{}, markers...))
}

func (s *Store) Len() int {
	if !s.Enabled() {
		return 0
	}
	return s.c.Len()
}

func key(u string) string { return strings.TrimSpace(u) }
