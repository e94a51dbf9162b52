// Package session 实现交互会话：定时 + 手动触发的 cycle 调度。
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/John-Robertt/lgtmap/internal/domain"
	"github.com/John-Robertt/lgtmap/internal/infra/logx"
)

const (
	DefaultInterval = 300 * time.Second
	MinInterval     = 30 * time.Second
)

// Runner 执行一次 cycle（live pipeline 或 snapshot feed）。
type Runner interface {
	Cycle(ctx context.Context) domain.CycleReport
}

// Publisher 接收未过期的 cycle 结果（成功或失败）。
type Publisher interface {
	Update(rr domain.CycleReport)
}

// Session 串行执行 cycle，并丢弃被后续触发取代的结果。
//
// 约束：
// - 同一时刻最多一个 cycle 在跑
// - 每次 Trigger 递增 seq；只有 seq 仍是最新的结果才会发布
// - 运行中的 cycle 被新的 Trigger 取消，多个 pending 触发合并为一次
type Session struct {
	Runner    Runner
	Publisher Publisher
	Interval  time.Duration
	Logger    *slog.Logger

	mu     sync.Mutex
	seq    uint64
	done   uint64
	cancel context.CancelFunc
	reason string

	kickOnce sync.Once
	kick     chan struct{}
}

// ClampInterval 归一化刷新间隔：<=0 用默认值，低于下限时抬到下限。
func ClampInterval(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultInterval
	}
	if d < MinInterval {
		return MinInterval
	}
	return d
}

func (s *Session) kicks() chan struct{} {
	s.kickOnce.Do(func() { s.kick = make(chan struct{}, 1) })
	return s.kick
}

func (s *Session) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return logx.Discard()
}

// Trigger 请求一次新的 cycle 并返回其 seq；正在运行的 cycle 会被取消，其结果不再发布。
func (s *Session) Trigger(reason string) uint64 {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.reason = reason
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	select {
	case s.kicks() <- struct{}{}:
	default:
	}
	return seq
}

// Seq 返回最近一次 Trigger 分配的序号。
func (s *Session) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Run 立即触发一次 cycle，之后按 Interval 定时触发，直到 ctx 结束。
func (s *Session) Run(ctx context.Context) error {
	interval := ClampInterval(s.Interval)
	t := time.NewTicker(interval)
	defer t.Stop()

	s.logger().Info("session started", "interval", interval.String())
	s.Trigger("startup")
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			if s.cancel != nil {
				s.cancel()
			}
			s.mu.Unlock()
			return ctx.Err()
		case <-t.C:
			s.Trigger("timer")
		case <-s.kicks():
			s.runOnce(ctx)
		}
	}
}

func (s *Session) runOnce(ctx context.Context) {
	s.mu.Lock()
	seq := s.seq
	if seq == s.done {
		s.mu.Unlock()
		return
	}
	reason := s.reason
	cctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	log := s.logger()
	log.Debug("cycle started", "seq", seq, "reason", reason)
	rr := s.Runner.Cycle(cctx)
	cancel()
	rr.Seq = seq

	s.mu.Lock()
	s.cancel = nil
	s.done = seq
	stale := seq != s.seq
	s.mu.Unlock()

	if stale {
		log.Info("cycle superseded, result discarded", "seq", seq, "run_id", rr.RunID, "stage", string(rr.Stage))
		return
	}
	if ctx.Err() != nil {
		return
	}
	if s.Publisher != nil {
		s.Publisher.Update(rr)
	}
}
