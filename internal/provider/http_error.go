package provider

import (
	"fmt"
	"io"
)

// HTTPStatusError 表示拿到了响应，但状态码不是 2xx。
//
// Relayed=true 时状态码来自中继信封（status.http_code），URL 为原始页面地址；
// 否则为直接请求（或中继本身）的响应码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Relayed    bool
}

func (e *HTTPStatusError) Error() string {
	if e.Relayed {
		return fmt.Sprintf("中继报告上游 HTTP %d（%s）", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("HTTP %d（%s）", e.StatusCode, e.URL)
}

// NotFound 表示页面尚未发布（上游按 5 分钟节奏生成，刚过整点时常见）。
func (e *HTTPStatusError) NotFound() bool { return e.StatusCode == 404 }

// BodyTooLargeError 表示响应体超过上限；截断后的页面会丢标记，因此整体视为失败。
type BodyTooLargeError struct {
	URL   string
	Limit int64
}

func (e *BodyTooLargeError) Error() string {
	return fmt.Sprintf("响应体超过 %d 字节上限（%s）", e.Limit, e.URL)
}

// ReadBody 读取至多 limit 字节；多出一个字节即返回 *BodyTooLargeError。
func ReadBody(r io.Reader, u string, limit int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, &BodyTooLargeError{URL: u, Limit: limit}
	}
	return b, nil
}
