package pipeline

import (
	"time"

	"github.com/John-Robertt/lgtmap/internal/domain"
)

// Observer 把“阶段切换/cycle 结果”从核心流程中解耦出来。
//
// 约束：
// - pipeline 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - 同一 Pipeline 的 cycle 不会并发执行，但 Observer 仍可能被多个 Pipeline 共享，实现应并发安全。
type Observer interface {
	// OnStart 在 cycle 开始时调用（slug 与页面 URL 已确定）。
	OnStart(runID string, s domain.TimeSlug, pageURL string)
	// OnStage 在进入新阶段时调用；dur 为上一阶段耗时。
	OnStage(stage domain.Stage, fields map[string]any, dur time.Duration)
	// OnCycleDone 在 cycle 结束（serialized 或 failed）时调用一次。
	OnCycleDone(rr domain.CycleReport)
}
