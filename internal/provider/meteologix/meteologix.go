package meteologix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/John-Robertt/lgtmap/internal/domain"
	"github.com/John-Robertt/lgtmap/internal/extract"
	providerx "github.com/John-Robertt/lgtmap/internal/provider"
	"github.com/John-Robertt/lgtmap/internal/slug"
)

const (
	DefaultBaseURL = "https://meteologix.com/ve/lightning/venezuela"

	EnvelopeRaw  = "raw"
	EnvelopeJSON = "json"
)

// 正常页面只有几百 KB；超过上限的响应按抓取失败处理。测试会调小该值。
var maxBodyBytes int64 = 16 << 20

// Relay 描述可选的 CORS 中继（例如 allorigins）。
//
// URL 中的 {url} 会被替换为转义后的上游页面地址；没有占位符时以 url= 参数追加。
// Envelope=json 时响应形如 {"contents": "...", "status": {"http_code": 200}}。
type Relay struct {
	URL      string
	Envelope string
}

func (r Relay) enabled() bool { return strings.TrimSpace(r.URL) != "" }

func (r Relay) wrap(pageURL string) (string, error) {
	raw := strings.TrimSpace(r.URL)
	if strings.Contains(raw, "{url}") {
		return strings.ReplaceAll(raw, "{url}", url.QueryEscape(pageURL)), nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("url", pageURL)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Provider 实现 meteologix 闪电页面的抓取与解析。
//
// 约束：
// - 页面路径按 TimeSlug 拼接（上游每 5 分钟发布一次）
// - Fetch 不做缓存/重试（由上层统一控制）
// - Parse 是纯函数（只依赖 body 与 Rules）
type Provider struct {
	// BaseURL 为空时使用 DefaultBaseURL。
	BaseURL string
	Relay   Relay
	Rules   extract.Rules
}

func (Provider) Name() string { return "meteologix" }

func (p Provider) baseURL() string {
	u := strings.TrimSpace(p.BaseURL)
	if u == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(u, "/")
}

func (p Provider) PageURL(s domain.TimeSlug) string { return slug.URL(p.baseURL(), s) }

// Fetch 抓取 <base>/<slug>.html，必要时经由中继。
func (p Provider) Fetch(ctx context.Context, s domain.TimeSlug, c *http.Client) ([]byte, string, error) {
	if c == nil {
		return nil, "", errors.New("http client 不能为空")
	}
	if s == "" {
		return nil, "", errors.New("slug 不能为空")
	}

	pageURL := p.PageURL(s)
	if !p.Relay.enabled() {
		b, err := fetchURL(ctx, c, pageURL)
		return b, pageURL, err
	}

	reqURL, err := p.Relay.wrap(pageURL)
	if err != nil {
		return nil, pageURL, fmt.Errorf("relay url 无效：%w", err)
	}
	b, err := fetchURL(ctx, c, reqURL)
	if err != nil {
		return nil, pageURL, err
	}
	if strings.ToLower(strings.TrimSpace(p.Relay.Envelope)) != EnvelopeJSON {
		return b, pageURL, nil
	}

	body, err := unwrapEnvelope(b, pageURL)
	if err != nil {
		return nil, pageURL, err
	}
	return body, pageURL, nil
}

// Parse 把页面 HTML 解析为原始标记。
func (p Provider) Parse(body []byte) ([]domain.RawMarker, error) {
	doc, err := extract.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &providerx.ParseError{Source: p.Name(), Err: err}
	}
	return extract.Markers(doc, p.Rules), nil
}

type envelope struct {
	Contents *string `json:"contents"`
	Status   struct {
		HTTPCode int `json:"http_code"`
	} `json:"status"`
}

// unwrapEnvelope 解出中继 JSON 中的页面内容。
// 信封本身损坏属于 ParseError；中继报告的上游非 2xx 属于 fetch 失败。
func unwrapEnvelope(b []byte, pageURL string) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, &providerx.ParseError{Source: "meteologix", Err: fmt.Errorf("中继响应不是合法 JSON：%w", err)}
	}
	if code := env.Status.HTTPCode; code != 0 && (code < 200 || code >= 300) {
		return nil, &providerx.HTTPStatusError{URL: pageURL, StatusCode: code, Relayed: true}
	}
	if env.Contents == nil {
		return nil, &providerx.ParseError{Source: "meteologix", Err: errors.New("中继响应缺少 contents 字段")}
	}
	return []byte(*env.Contents), nil
}

func fetchURL(ctx context.Context, c *http.Client, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &providerx.HTTPStatusError{URL: u, StatusCode: resp.StatusCode}
	}
	return providerx.ReadBody(resp.Body, u, maxBodyBytes)
}
