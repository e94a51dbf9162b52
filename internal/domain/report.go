package domain

import (
	"encoding/json"
	"time"
)

// Stage 是一次 cycle 的状态机节点。
type Stage string

const (
	StageIdle         Stage = "idle"
	StageFetching     Stage = "fetching"
	StageParsing      Stage = "parsing"
	StageTransforming Stage = "transforming"
	StageFiltering    Stage = "filtering"
	StageSerialized   Stage = "serialized"
	StageFailed       Stage = "failed"
)

const (
	ErrCodeFetchFailed   = "fetch_failed"
	ErrCodeParseFailed   = "parse_failed"
	ErrCodeIOFailed      = "io_failed"
	ErrCodeCanceled      = "canceled"
	ErrCodeConfigInvalid = "config_invalid"
)

const (
	FeedLive     = "live"
	FeedSnapshot = "snapshot"
)

// CycleReport 是一次 cycle 的对外稳定记录（batch 模式下的 stdout JSON、session 的 /api/status）。
//
// 注意：Strikes 不进入 JSON；快照文件才是 strikes 的唯一对外形态。
type CycleReport struct {
	RunID string `json:"run_id"`
	Seq   uint64 `json:"seq"`
	Feed  string `json:"feed"`

	Slug TimeSlug `json:"slug"`
	URL  string   `json:"url"`

	Stage      Stage     `json:"stage"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Total              int `json:"total"`
	Valid              int `json:"valid"`
	DroppedOutOfBounds int `json:"dropped_out_of_bounds"`

	Output string `json:"output"`
	Cached bool   `json:"cached"`

	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	Strikes []GeoStrike `json:"-"`
}

// OK 表示 cycle 到达了 serialized。
func (r CycleReport) OK() bool { return r.Stage == StageSerialized }

// Finalize 把时间统一为 UTC，并保证 Strikes 非 nil（空快照序列化为 []）。
func (r *CycleReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	if r.Strikes == nil {
		r.Strikes = []GeoStrike{}
	}
	if r.OK() {
		r.Valid = len(r.Strikes)
	}
}

func (r CycleReport) MarshalJSON() ([]byte, error) {
	type Alias CycleReport
	return json.Marshal(Alias(r))
}
