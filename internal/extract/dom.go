// Package extract 从上游 HTML 中读出闪电标记。
//
// 对 HTML 的依赖被限制在 DocumentQuery/ElementHandle 两个接口之后；
// 默认实现基于 goquery，解析规则（选择器、属性名、class 前缀）全部来自配置。
package extract

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DocumentQuery 是“按选择器找元素”的最小能力。
type DocumentQuery interface {
	FindByClass(selector string) []ElementHandle
}

// ElementHandle 是单个元素的只读视图。
type ElementHandle interface {
	Attr(name string) (string, bool)
	ClassTokens() []string
}

// Parse 把 HTML 解析为 DocumentQuery。
// 只有读流失败等无法构建文档的情况才返回错误；结构漂移不算错误。
func Parse(r io.Reader) (DocumentQuery, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	return goqueryDoc{doc: doc}, nil
}

type goqueryDoc struct {
	doc *goquery.Document
}

func (d goqueryDoc) FindByClass(selector string) []ElementHandle {
	sel := d.doc.Find(selector)
	out := make([]ElementHandle, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, goqueryElem{s: s})
	})
	return out
}

type goqueryElem struct {
	s *goquery.Selection
}

func (e goqueryElem) Attr(name string) (string, bool) { return e.s.Attr(name) }

func (e goqueryElem) ClassTokens() []string {
	v, ok := e.s.Attr("class")
	if !ok {
		return nil
	}
	return strings.Fields(v)
}
