package provider

import (
	"context"
	"net/http"

	"github.com/John-Robertt/lgtmap/internal/domain"
)

// Source 把“上游站点变化”限制在 provider 包内部；pipeline 只依赖该接口与 RawMarker。
//
// 约束：
// - Fetch 不做缓存、不做 cycle 级重试（缓存由 pipeline 统一实现）
// - Parse 必须是纯函数：相同输入 => 相同输出
// - PageURL 必须与 Fetch 实际请求的页面一致（用于缓存 key 与 report 追溯）
type Source interface {
	Name() string
	PageURL(s domain.TimeSlug) string
	Fetch(ctx context.Context, s domain.TimeSlug, c *http.Client) (body []byte, pageURL string, err error)
	Parse(body []byte) ([]domain.RawMarker, error)
}
