package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewClient_ProxyDisablesKeepAlive(t *testing.T) {
	c, err := NewClient(Options{ProxyURL: "http://127.0.0.1:8080"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr, ok := c.Transport.(*Transport)
	if !ok {
		t.Fatalf("期望 *Transport，实际 %T", c.Transport)
	}
	if tr.Base.Proxy == nil {
		t.Fatalf("期望启用代理，但 Proxy=nil")
	}
	if !tr.Base.DisableKeepAlives || !tr.DisableKeepAlives {
		t.Fatalf("代理模式应禁用 keep-alive")
	}
}

func TestNewClient_NoProxyKeepsDefault(t *testing.T) {
	c, err := NewClient(Options{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr := c.Transport.(*Transport)
	if tr.Base.Proxy != nil {
		t.Fatalf("不期望启用代理，但 Proxy!=nil")
	}
	if tr.Base.DisableKeepAlives {
		t.Fatalf("不期望禁用 keep-alive")
	}
	if c.Timeout != DefaultTimeout {
		t.Fatalf("期望默认超时 %s，实际 %s", DefaultTimeout, c.Timeout)
	}
	if tr.RetryMax != 0 {
		t.Fatalf("默认不应重试：RetryMax=%d", tr.RetryMax)
	}
}

func TestNewClient_InvalidProxyURL(t *testing.T) {
	if _, err := NewClient(Options{ProxyURL: "http://[::1"}); err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
	if _, err := NewClient(Options{ProxyURL: "127.0.0.1"}); err == nil {
		t.Fatalf("缺少 scheme 的代理应报错")
	}
}

func TestNewClient_HeaderTimeoutFollowsTimeout(t *testing.T) {
	for _, d := range []time.Duration{0, 30 * time.Second, 5 * time.Minute} {
		c, err := NewClient(Options{Timeout: d})
		if err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
		tr := c.Transport.(*Transport)
		if tr.Base.ResponseHeaderTimeout != c.Timeout {
			t.Fatalf("timeout=%s：ResponseHeaderTimeout=%s 应等于 client 超时 %s", d, tr.Base.ResponseHeaderTimeout, c.Timeout)
		}
	}
}

func TestClampTimeout(t *testing.T) {
	cases := map[time.Duration]time.Duration{
		0:                DefaultTimeout,
		time.Millisecond: MinTimeout,
		10 * time.Second: 10 * time.Second,
		5 * time.Minute:  MaxTimeout,
	}
	for in, want := range cases {
		if got := ClampTimeout(in); got != want {
			t.Fatalf("ClampTimeout(%s)=%s，期望 %s", in, got, want)
		}
	}
}

func TestTransport_FixedUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	c, err := NewClient(Options{UserAgent: "lgtmap-test/1"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("请求失败：%v", err)
	}
	resp.Body.Close()
	if got != "lgtmap-test/1" {
		t.Fatalf("期望固定 UA，实际 %q", got)
	}
}

func TestTransport_RotatesUserAgent(t *testing.T) {
	tr := &Transport{Base: &http.Transport{}}
	seen := map[string]bool{}
	for range browserAgents {
		seen[tr.agent()] = true
	}
	if len(seen) != len(browserAgents) {
		t.Fatalf("期望轮换全部 %d 个 UA，实际 %d", len(browserAgents), len(seen))
	}
}

func TestTransport_RetriesConnectionErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // 关闭后连接必然失败

	tr := &Transport{Base: &http.Transport{}, RetryMax: 2}
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	if _, err := tr.RoundTrip(req); err == nil {
		t.Fatalf("期望连接错误，但得到 nil")
	}
}

func TestReplayable(t *testing.T) {
	get, _ := http.NewRequest(http.MethodGet, "http://a.test/", nil)
	post, _ := http.NewRequest(http.MethodPost, "http://a.test/", strings.NewReader("x"))
	if !replayable(get) {
		t.Fatalf("GET 无 body 应可重放")
	}
	if replayable(post) {
		t.Fatalf("带 body 的 POST 不应重放")
	}
}
