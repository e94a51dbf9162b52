package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/John-Robertt/lgtmap/internal/domain"
)

const fixture = `<!doctype html>
<html><body>
<div id="map">
  <span class="ap lgt lgt-0" data-top="10" data-left="20"></span>
  <span class="ap lgt lgt-3" data-top=" 300.5 " data-left="400px"></span>
  <span class="ap lgt lgt-9" data-top="abc" data-left="1"></span>
  <span class="ap lgt lgt-2" data-left="5"></span>
  <span class="ap lgt lgt-1" data-top="NaN" data-left="5"></span>
  <span class="ap lgt" data-top="1" data-left="2"></span>
  <span class="ap lgt lgt-x lgt-7" data-top="3" data-left="4"></span>
  <span class="ap other lgt-4" data-top="1" data-left="1"></span>
</div>
</body></html>`

func mustParse(t *testing.T, s string) DocumentQuery {
	t.Helper()
	doc, err := Parse(strings.NewReader(s))
	if err != nil {
		t.Fatalf("解析 HTML 失败：%v", err)
	}
	return doc
}

func TestMarkers_DocumentOrderAndDrops(t *testing.T) {
	got := Markers(mustParse(t, fixture), DefaultRules())

	want := []domain.RawMarker{
		{PixelX: 20, PixelY: 10, AgeBucket: 0},
		{PixelX: 400, PixelY: 300.5, AgeBucket: 3},
		{PixelX: 2, PixelY: 1, AgeBucket: 0},
		{PixelX: 4, PixelY: 3, AgeBucket: 7},
	}
	if len(got) != len(want) {
		t.Fatalf("期望 %d 个标记，实际 %d：%+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("markers[%d]=%+v，期望 %+v", i, got[i], want[i])
		}
	}
}

func TestMarkers_OneMalformedDoesNotBlockOthers(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 10; i++ {
		if i == 4 {
			b.WriteString(`<span class="ap lgt lgt-1" data-top="" data-left="3"></span>`)
			continue
		}
		b.WriteString(`<span class="ap lgt lgt-1" data-top="1" data-left="3"></span>`)
	}
	b.WriteString("</body></html>")

	got := Markers(mustParse(t, b.String()), DefaultRules())
	if len(got) != 9 {
		t.Fatalf("期望 9 个标记，实际 %d", len(got))
	}
}

func TestMarkers_MaxBucketClamp(t *testing.T) {
	doc := mustParse(t, `<span class="ap lgt lgt-15" data-top="1" data-left="1"></span>`)

	r := DefaultRules()
	if got := Markers(doc, r); len(got) != 1 || got[0].AgeBucket != 15 {
		t.Fatalf("未配置 max_bucket 时不应截断：%+v", got)
	}
	r.MaxBucket = 12
	if got := Markers(doc, r); len(got) != 1 || got[0].AgeBucket != 12 {
		t.Fatalf("max_bucket=12 时应截断：%+v", got)
	}
}

func TestMarkers_CustomRules(t *testing.T) {
	doc := mustParse(t, `<i class="strike age-2" data-y="5" data-x="6"></i><span class="ap lgt lgt-1" data-top="1" data-left="1"></span>`)
	got := Markers(doc, Rules{Selector: "i.strike", TopAttr: "data-y", LeftAttr: "data-x", AgePrefix: "age-"})
	if len(got) != 1 || got[0] != (domain.RawMarker{PixelX: 6, PixelY: 5, AgeBucket: 2}) {
		t.Fatalf("自定义规则解析不符合预期：%+v", got)
	}
}

func TestMarkers_EmptyDocument(t *testing.T) {
	got := Markers(mustParse(t, ""), DefaultRules())
	if got == nil || len(got) != 0 {
		t.Fatalf("空文档应返回空切片：%#v", got)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestParse_ReaderError(t *testing.T) {
	if _, err := Parse(failingReader{}); err == nil {
		t.Fatalf("期望读流错误，但得到 nil")
	}
}

func TestParsePixel(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"12", 12, true},
		{" 12.5 ", 12.5, true},
		{"-3", -3, true},
		{"40px", 40, true},
		{"", 0, false},
		{"px", 0, false},
		{"Inf", 0, false},
		{"1e400", 0, false},
		{"12abc", 0, false},
	}
	for _, tc := range cases {
		got, ok := parsePixel(tc.in)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Fatalf("parsePixel(%q)=(%v,%v)，期望 (%v,%v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestAgeBucket_StrictInteger(t *testing.T) {
	cases := []struct {
		tokens []string
		want   int
	}{
		{[]string{"ap", "lgt", "lgt-3"}, 3},
		{[]string{"lgt-3x", "lgt-4"}, 4},
		{[]string{"lgt-3x"}, 0},
		{[]string{"lgt--1", "lgt-2"}, 2},
		{[]string{"lgt-"}, 0},
		{nil, 0},
	}
	for _, tc := range cases {
		if got := ageBucket(tc.tokens, "lgt-"); got != tc.want {
			t.Fatalf("ageBucket(%v)=%d，期望 %d", tc.tokens, got, tc.want)
		}
	}
}
