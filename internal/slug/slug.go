// Package slug 计算上游站点按 5 分钟发布的页面时间标识。
package slug

import (
	"fmt"
	"strings"
	"time"

	"github.com/John-Robertt/lgtmap/internal/domain"
)

// Step 是上游的发布周期。
const Step = 5

// At 返回 t 所在 5 分钟桶的 TimeSlug（UTC，分钟向下取整）。
func At(t time.Time) domain.TimeSlug {
	t = t.UTC()
	m := t.Minute() / Step * Step
	return domain.TimeSlug(fmt.Sprintf("%04d%02d%02d-%02d%02dz", t.Year(), int(t.Month()), t.Day(), t.Hour(), m))
}

// URL 拼出 <base>/<slug>.html。
func URL(base string, s domain.TimeSlug) string {
	return strings.TrimRight(strings.TrimSpace(base), "/") + "/" + string(s) + ".html"
}
