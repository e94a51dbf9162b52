package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/John-Robertt/lgtmap/internal/app/pipeline"
	"github.com/John-Robertt/lgtmap/internal/config"
	"github.com/John-Robertt/lgtmap/internal/domain"
)

var _ pipeline.Observer = (*progressUI)(nil)

var (
	okColor    = color.New(color.FgGreen, color.Bold)
	failColor  = color.New(color.FgRed, color.Bold)
	stageColor = color.New(color.FgCyan)
	dimColor   = color.New(color.Faint)
)

// progressUI 是交互终端的进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：pipeline 只发事件，CLI 决定如何展示
type progressUI struct {
	w io.Writer

	mu        sync.Mutex
	startedAt time.Time
	cycles    int
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{w: w}
}

func (p *progressUI) OnStart(runID string, s domain.TimeSlug, pageURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startedAt = time.Now()
	p.cycles++
	fmt.Fprintf(p.w, "[%s] cycle #%d slug=%s %s\n",
		p.startedAt.Format("15:04:05"), p.cycles, s, dimColor.Sprint(truncate(pageURL, 120)),
	)
}

func (p *progressUI) OnStage(stage domain.Stage, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch stage {
	case domain.StageFetching:
		fmt.Fprintf(p.w, "  %s\n", stageColor.Sprint("抓取"))
	case domain.StageParsing:
		if cached, _ := fields["cached"].(bool); cached {
			fmt.Fprintf(p.w, "  %s 命中页面缓存 (%s)\n", stageColor.Sprint("解析"), formatShortDuration(dur))
			return
		}
		fmt.Fprintf(p.w, "  %s bytes=%d (%s)\n", stageColor.Sprint("解析"), intField(fields, "bytes"), formatShortDuration(dur))
	case domain.StageTransforming:
		fmt.Fprintf(p.w, "  %s markers=%d (%s)\n", stageColor.Sprint("换算"), intField(fields, "markers"), formatShortDuration(dur))
	case domain.StageFiltering:
		fmt.Fprintf(p.w, "  %s strikes=%d (%s)\n", stageColor.Sprint("过滤"), intField(fields, "strikes"), formatShortDuration(dur))
	case domain.StageSerialized, domain.StageFailed:
		// 结果行由 OnCycleDone 输出。
	default:
		fmt.Fprintf(p.w, "  %s (%s)\n", stage, formatShortDuration(dur))
	}
}

func (p *progressUI) OnCycleDone(rr domain.CycleReport) {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := rr.FinishedAt.Sub(rr.StartedAt)
	if rr.OK() {
		note := ""
		if rr.Cached {
			note = " cached"
		}
		fmt.Fprintf(p.w, "  %s valid=%d/%d dropped=%d%s (%s)\n",
			okColor.Sprint("OK"), rr.Valid, rr.Total, rr.DroppedOutOfBounds, note, formatShortDuration(elapsed),
		)
		return
	}
	fmt.Fprintf(p.w, "  %s %s: %s (%s)\n",
		failColor.Sprint("FAIL"), rr.ErrorCode, truncate(rr.ErrorMsg, 160), formatShortDuration(elapsed),
	)
}

// printConfig 在交互终端打印生效配置，降低“到底读了哪个配置”的摩擦。
func printConfig(w io.Writer, eff config.EffectiveConfig) {
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[%s] lgtmap %s\n", time.Now().Format("15:04:05"), eff.Mode)
	fmt.Fprintln(w, "配置（生效）:")
	cfg := eff.ConfigPath
	if cfg == "" {
		cfg = "(内置默认)"
	}
	fmt.Fprintf(w, "  config: %s\n", cfg)
	if eff.Feed == domain.FeedSnapshot && eff.Mode != config.ModeRun {
		fmt.Fprintf(w, "  feed: snapshot (%s)\n", truncate(eff.SnapshotURL, 120))
	} else {
		fmt.Fprintf(w, "  source: %s\n", truncate(eff.BaseURL, 120))
		fmt.Fprintf(w, "  relay: %s\n", formatRelay(eff.RelayURL, eff.RelayEnvelope))
	}
	fmt.Fprintf(w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	fmt.Fprintf(w, "  timeout: %s\n", eff.Timeout)
	b := eff.Bounds
	fmt.Fprintf(w, "  calibration: N=%g S=%g E=%g W=%g frame=%gx%g\n", b.North, b.South, b.East, b.West, eff.Frame.Width, eff.Frame.Height)
	fmt.Fprintf(w, "  markers: selector=%q bucket=%dmin max_bucket=%d\n", eff.Rules.Selector, eff.BucketMinutes, eff.Rules.MaxBucket)
	fmt.Fprintf(w, "  page_cache: %s\n", onOffN(eff.CachePages))
	if eff.Mode != config.ModeRun {
		fmt.Fprintf(w, "  interval: %s\n", eff.Interval)
	}
	if eff.Mode == config.ModeServe {
		fmt.Fprintf(w, "  listen: %s\n", eff.Listen)
	}
	out := eff.Output
	if out == "" {
		out = "off"
	}
	fmt.Fprintf(w, "  output: %s\n", out)
	fmt.Fprintln(w)
}

func onOffN(n int) string {
	if n <= 0 {
		return "off"
	}
	return fmt.Sprintf("on (%d pages)", n)
}

func formatRelay(raw, envelope string) string {
	if strings.TrimSpace(raw) == "" {
		return "off"
	}
	return fmt.Sprintf("on (%s, envelope=%s)", truncate(raw, 100), envelope)
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	switch x := fields[key].(type) {
	case int:
		return x
	case int64:
		return int(x)
	case uint64:
		return int(x)
	default:
		return 0
	}
}
