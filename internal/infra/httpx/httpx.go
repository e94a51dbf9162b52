// Package httpx 构造抓取上游页面与快照用的 HTTP client。
package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
)

const (
	DefaultTimeout = 20 * time.Second
	MinTimeout     = 1 * time.Second
	MaxTimeout     = 60 * time.Second
)

// 浏览器 UA 轮换列表；meteologix 对默认的 Go-http-client UA 会返回精简页面。
var browserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Mobile Safari/537.36",
}

// Transport 给每个请求补上 UA，并在拿不到响应时按 RetryMax 重试。
// 非 2xx 响应原样返回，由调用方决定如何处理。
type Transport struct {
	Base *http.Transport

	// UserAgent 非空时固定使用；否则在 browserAgents 中轮换。
	UserAgent string

	// RetryMax 为首次之外的重试次数；默认 0。
	RetryMax int

	// DisableKeepAlives 为 true 时每个请求都带 Connection: close。
	DisableKeepAlives bool

	next atomic.Uint32
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("httpx: nil request")
	}
	if t.Base == nil {
		return nil, errors.New("httpx: nil base transport")
	}

	attempts := 1
	if replayable(req) && t.RetryMax > 0 {
		attempts += t.RetryMax
	}

	var err error
	for i := 0; i < attempts; i++ {
		var resp *http.Response
		resp, err = t.Base.RoundTrip(t.prepare(req))
		if err == nil {
			return resp, nil
		}
		if req.Context().Err() != nil {
			break
		}
	}
	return nil, err
}

func (t *Transport) prepare(req *http.Request) *http.Request {
	r := req.Clone(req.Context())
	if r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", t.agent())
	}
	r.Close = r.Close || t.DisableKeepAlives
	return r
}

func (t *Transport) agent() string {
	if ua := strings.TrimSpace(t.UserAgent); ua != "" {
		return ua
	}
	n := t.next.Add(1) - 1
	return browserAgents[int(n)%len(browserAgents)]
}

// replayable 只放行无 body 的 GET/HEAD。
func replayable(req *http.Request) bool {
	if req.Body != nil && req.Body != http.NoBody {
		return false
	}
	return req.Method == http.MethodGet || req.Method == http.MethodHead
}

// Options 对应配置里的 source.proxy_url / timeout / user_agent / retry_max。
type Options struct {
	ProxyURL  string
	Timeout   time.Duration
	UserAgent string
	RetryMax  int
}

// ClampTimeout 把超时限制在 [MinTimeout, MaxTimeout]；0 表示默认值。
func ClampTimeout(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return DefaultTimeout
	case d < MinTimeout:
		return MinTimeout
	case d > MaxTimeout:
		return MaxTimeout
	}
	return d
}

func parseProxy(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("代理地址需要 scheme 与 host：%q", raw)
	}
	return u, nil
}

// NewClient 按 Options 构造 client。配置了代理时关闭连接复用，避免长连接被代理侧复用到其它出口。
func NewClient(o Options) (*http.Client, error) {
	timeout := ClampTimeout(o.Timeout)
	base := &http.Transport{
		TLSHandshakeTimeout:   min(10*time.Second, timeout),
		ResponseHeaderTimeout: timeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   2,
	}
	if raw := strings.TrimSpace(o.ProxyURL); raw != "" {
		u, err := parseProxy(raw)
		if err != nil {
			return nil, err
		}
		base.Proxy = http.ProxyURL(u)
		base.DisableKeepAlives = true
	}

	retry := o.RetryMax
	if retry < 0 {
		retry = 0
	}
	return &http.Client{
		Transport: &Transport{
			Base:              base,
			UserAgent:         o.UserAgent,
			RetryMax:          retry,
			DisableKeepAlives: base.DisableKeepAlives,
		},
		Timeout: timeout,
	}, nil
}
