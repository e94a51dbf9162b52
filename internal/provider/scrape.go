package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/John-Robertt/lgtmap/internal/domain"
)

// FetchError 表示网络失败或上游非 2xx；当前 cycle 失败。
type FetchError struct {
	Source string
	URL    string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("source=%s stage=fetch url=%s: %v", e.Source, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError 表示文档完全无法解析（字节流损坏、中继信封无法解码等）。
// 单个标记的格式问题不会产生 ParseError。
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("source=%s stage=parse: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Hooks 让调用方在 fetch/parse 的边界上观察阶段切换（可为 nil）。
type Hooks struct {
	OnFetched func(pageURL string, n int)
}

// FetchParse 抓取并解析一次上游页面。
//
// 返回值：
// - markers：按文档顺序的原始标记
// - pageURL：上游页面 URL（即使走中继也是原始页面）
// - err：*FetchError 或 *ParseError
func FetchParse(ctx context.Context, src Source, s domain.TimeSlug, c *http.Client, h *Hooks) (markers []domain.RawMarker, pageURL string, err error) {
	if src == nil {
		return nil, "", errors.New("source 不能为空")
	}
	if s == "" {
		return nil, "", errors.New("slug 不能为空")
	}

	body, pageURL, ferr := src.Fetch(ctx, s, c)
	if ferr != nil {
		var pe *ParseError
		if errors.As(ferr, &pe) {
			return nil, pageURL, pe
		}
		if pageURL == "" {
			pageURL = src.PageURL(s)
		}
		return nil, pageURL, &FetchError{Source: src.Name(), URL: pageURL, Err: ferr}
	}
	if h != nil && h.OnFetched != nil {
		h.OnFetched(pageURL, len(body))
	}

	markers, perr := src.Parse(body)
	if perr != nil {
		var pe *ParseError
		if errors.As(perr, &pe) {
			return nil, pageURL, pe
		}
		return nil, pageURL, &ParseError{Source: src.Name(), Err: perr}
	}
	return markers, pageURL, nil
}

// IsFetch/IsParse 用于把错误归类为 report 的 error_code。
func IsFetch(err error) bool {
	var e *FetchError
	return errors.As(err, &e)
}

func IsParse(err error) bool {
	var e *ParseError
	return errors.As(err, &e)
}
