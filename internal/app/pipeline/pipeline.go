// Package pipeline 实现一次完整的 cycle：fetch → parse → transform → filter → serialize。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/lgtmap/internal/domain"
	"github.com/John-Robertt/lgtmap/internal/geo"
	"github.com/John-Robertt/lgtmap/internal/infra/cache"
	"github.com/John-Robertt/lgtmap/internal/infra/logx"
	"github.com/John-Robertt/lgtmap/internal/provider"
	"github.com/John-Robertt/lgtmap/internal/slug"
	"github.com/John-Robertt/lgtmap/internal/snapshot"
)

// DefaultBucketMinutes 是一个年龄桶对应的分钟数（lgt-3 => 15 分钟）。
const DefaultBucketMinutes = 5

// Pipeline 持有一次 cycle 所需的全部依赖；零值字段有合理默认（除 Source 外）。
//
// 约束：
// - 同一 Pipeline 不应并发执行 Execute（session 负责串行化）
// - Output 为空时不写快照文件，只返回 report
// - 失败的 cycle 绝不触碰 Output
type Pipeline struct {
	Source      provider.Source
	Client      *http.Client
	Transformer geo.Transformer

	BucketMinutes int
	Output        string

	Cache    *cache.Store
	Now      func() time.Time
	Logger   *slog.Logger
	Observer Observer
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return logx.Discard()
}

func (p *Pipeline) bucketMinutes() int {
	if p.BucketMinutes > 0 {
		return p.BucketMinutes
	}
	return DefaultBucketMinutes
}

// Cycle 让 Pipeline 可以直接作为 session 的 runner。
func (p *Pipeline) Cycle(ctx context.Context) domain.CycleReport { return p.Execute(ctx) }

// Execute 执行一次 cycle 并返回 report（成功时 report.Strikes 即快照内容）。
func (p *Pipeline) Execute(ctx context.Context) domain.CycleReport {
	log := p.logger()
	obs := p.Observer

	started := p.now()
	s := slug.At(started)
	rr := domain.CycleReport{
		RunID:     uuid.NewString(),
		Feed:      domain.FeedLive,
		Slug:      s,
		Stage:     domain.StageIdle,
		StartedAt: started,
		Output:    p.Output,
	}

	mark := time.Now()
	enter := func(stage domain.Stage, fields map[string]any) {
		rr.Stage = stage
		if obs != nil {
			obs.OnStage(stage, fields, time.Since(mark))
		}
		mark = time.Now()
	}
	finish := func() domain.CycleReport {
		rr.FinishedAt = p.now()
		rr.Finalize()
		if obs != nil {
			obs.OnCycleDone(rr)
		}
		return rr
	}
	fail := func(code string, err error) domain.CycleReport {
		rr.ErrorCode = code
		rr.ErrorMsg = err.Error()
		rr.Strikes = nil
		enter(domain.StageFailed, map[string]any{"error_code": code})
		log.Warn("cycle failed",
			"run_id", rr.RunID, "slug", string(s), "url", rr.URL,
			"error_code", code, "error", err)
		return finish()
	}

	if p.Source == nil {
		rr.Output = ""
		return fail(domain.ErrCodeConfigInvalid, errors.New("source 未配置"))
	}
	rr.URL = p.Source.PageURL(s)
	if obs != nil {
		obs.OnStart(rr.RunID, s, rr.URL)
	}
	if err := ctx.Err(); err != nil {
		return fail(domain.ErrCodeCanceled, err)
	}

	enter(domain.StageFetching, map[string]any{"url": rr.URL})

	markers, hit := p.Cache.Get(rr.URL)
	if hit {
		rr.Cached = true
		enter(domain.StageParsing, map[string]any{"cached": true})
	} else {
		var err error
		var pageURL string
		markers, pageURL, err = provider.FetchParse(ctx, p.Source, s, p.Client, &provider.Hooks{
			OnFetched: func(_ string, n int) {
				enter(domain.StageParsing, map[string]any{"bytes": n})
			},
		})
		if pageURL != "" {
			rr.URL = pageURL
		}
		if err != nil {
			var hs *provider.HTTPStatusError
			if errors.As(err, &hs) && hs.NotFound() {
				log.Info("upstream page not published yet", "slug", string(s), "relayed", hs.Relayed)
			}
			return fail(classify(ctx, err), err)
		}
		p.Cache.Put(rr.URL, markers)
	}
	rr.Total = len(markers)

	enter(domain.StageTransforming, map[string]any{"markers": len(markers)})
	strikes := Transform(p.Transformer, markers, p.bucketMinutes())

	enter(domain.StageFiltering, map[string]any{"strikes": len(strikes)})
	kept := Filter(p.Transformer.Bounds, strikes)
	rr.DroppedOutOfBounds = len(strikes) - len(kept)

	if err := ctx.Err(); err != nil {
		return fail(domain.ErrCodeCanceled, err)
	}
	if p.Output != "" {
		if err := snapshot.WriteContext(ctx, p.Output, kept); err != nil {
			if ctx.Err() != nil {
				return fail(domain.ErrCodeCanceled, err)
			}
			return fail(domain.ErrCodeIOFailed, fmt.Errorf("写入快照失败：%w", err))
		}
	}

	rr.Strikes = kept
	enter(domain.StageSerialized, map[string]any{"valid": len(kept), "total": rr.Total})
	log.Info("cycle done",
		"run_id", rr.RunID, "slug", string(s),
		"total", rr.Total, "valid", len(kept),
		"dropped_out_of_bounds", rr.DroppedOutOfBounds, "cached", rr.Cached)
	return finish()
}

// Transform 把原始标记映射为地理坐标（4 位小数），并计算年龄分钟数；顺序不变。
func Transform(t geo.Transformer, markers []domain.RawMarker, bucketMinutes int) []domain.GeoStrike {
	out := make([]domain.GeoStrike, 0, len(markers))
	for _, m := range markers {
		lat, lng := t.ToLatLng(m.PixelX, m.PixelY)
		out = append(out, domain.GeoStrike{
			Lat:        geo.Round4(lat),
			Lng:        geo.Round4(lng),
			AgeMinutes: m.AgeBucket * bucketMinutes,
		})
	}
	return out
}

// Filter 保留落在 bounds 内（含边界）的闪电；顺序不变。
func Filter(b domain.CalibrationBounds, strikes []domain.GeoStrike) []domain.GeoStrike {
	out := make([]domain.GeoStrike, 0, len(strikes))
	for _, s := range strikes {
		if b.Contains(s.Lat, s.Lng) {
			out = append(out, s)
		}
	}
	return out
}

func classify(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return domain.ErrCodeCanceled
	case provider.IsParse(err):
		return domain.ErrCodeParseFailed
	default:
		return domain.ErrCodeFetchFailed
	}
}
