package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/lgtmap/internal/domain"
	"github.com/John-Robertt/lgtmap/internal/infra/logx"
	providerx "github.com/John-Robertt/lgtmap/internal/provider"
)

// 快照只含坐标与年龄，远小于上游页面。
var maxSnapshotBytes int64 = 4 << 20

// Feed 从静态地址拉取已发布的快照（session 的 snapshot feed）。
//
// 每次请求附带 t=<unix 毫秒> 参数绕过浏览器/CDN 缓存。
// 快照已是最终形态，这里不再做坐标变换与过滤。
type Feed struct {
	URL    string
	Client *http.Client
	Now    func() time.Time
	Logger *slog.Logger
}

func (f *Feed) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

// CacheBust 在 raw 上追加 t=<ms>。
func CacheBust(raw string, at time.Time) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("t", strconv.FormatInt(at.UnixMilli(), 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Cycle 执行一次拉取，返回的 report 与 pipeline 的形态一致。
func (f *Feed) Cycle(ctx context.Context) domain.CycleReport {
	log := f.Logger
	if log == nil {
		log = logx.Discard()
	}
	started := f.now()
	rr := domain.CycleReport{
		RunID:     uuid.NewString(),
		Feed:      domain.FeedSnapshot,
		URL:       f.URL,
		Stage:     domain.StageFetching,
		StartedAt: started,
	}
	finish := func(stage domain.Stage) domain.CycleReport {
		rr.Stage = stage
		rr.FinishedAt = f.now()
		rr.Finalize()
		return rr
	}

	u, err := CacheBust(f.URL, started)
	if err != nil {
		rr.ErrorCode = domain.ErrCodeFetchFailed
		rr.ErrorMsg = fmt.Sprintf("snapshot_url 无效：%v", err)
		return finish(domain.StageFailed)
	}

	b, err := f.get(ctx, u)
	if err != nil {
		rr.ErrorCode = domain.ErrCodeFetchFailed
		if ctx.Err() != nil {
			rr.ErrorCode = domain.ErrCodeCanceled
		}
		rr.ErrorMsg = (&providerx.FetchError{Source: "snapshot", URL: f.URL, Err: err}).Error()
		log.Warn("snapshot feed fetch failed", "run_id", rr.RunID, "url", f.URL, "error", err)
		return finish(domain.StageFailed)
	}

	rr.Stage = domain.StageParsing
	strikes, err := Decode(b)
	if err != nil {
		rr.ErrorCode = domain.ErrCodeParseFailed
		rr.ErrorMsg = (&providerx.ParseError{Source: "snapshot", Err: err}).Error()
		log.Warn("snapshot feed decode failed", "run_id", rr.RunID, "url", f.URL, "error", err)
		return finish(domain.StageFailed)
	}

	rr.Strikes = strikes
	rr.Total = len(strikes)
	log.Info("snapshot feed loaded", "run_id", rr.RunID, "strikes", len(strikes))
	return finish(domain.StageSerialized)
}

func (f *Feed) get(ctx context.Context, u string) ([]byte, error) {
	c := f.Client
	if c == nil {
		c = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-cache")
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &providerx.HTTPStatusError{URL: u, StatusCode: resp.StatusCode}
	}
	return providerx.ReadBody(resp.Body, u, maxSnapshotBytes)
}
