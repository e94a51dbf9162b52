package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/lgtmap/internal/app/pipeline"
	"github.com/John-Robertt/lgtmap/internal/app/session"
	"github.com/John-Robertt/lgtmap/internal/config"
	"github.com/John-Robertt/lgtmap/internal/domain"
	"github.com/John-Robertt/lgtmap/internal/present"
	"github.com/John-Robertt/lgtmap/internal/server"
)

const shutdownTimeout = 5 * time.Second

func (c *cli) addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().DurationVarP(&c.interval, "interval", "i", config.DefaultInterval, "刷新间隔（最小 30s）")
	cmd.Flags().StringVarP(&c.output, "output", "o", "", "快照输出路径（默认 "+config.DefaultOutput+"；传空字符串表示不写文件）")
}

func (c *cli) watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "前台按固定间隔重复执行 cycle，每个 cycle 输出一份 report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if code := c.watch(cmd); code != 0 {
				return exitError{code: code}
			}
			return nil
		},
	}
	c.addSessionFlags(cmd)
	return cmd
}

func (c *cli) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动交互会话：定时/手动刷新，并通过 HTTP 提供标记、快照与导出",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if code := c.serve(cmd); code != 0 {
				return exitError{code: code}
			}
			return nil
		},
	}
	c.addSessionFlags(cmd)
	cmd.Flags().StringVar(&c.listen, "listen", config.DefaultListen, "HTTP 监听地址")
	cmd.Flags().StringVar(&c.feed, "feed", domain.FeedLive, "数据来源：live|snapshot")
	cmd.Flags().BoolVar(&c.open, "open", false, "启动后在浏览器中打开标记接口")
	return cmd
}

// reportPublisher 把 session 发布的每个 cycle 输出为 report。
type reportPublisher struct {
	mu sync.Mutex
	c  *cli
}

func (p *reportPublisher) Update(rr domain.CycleReport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.c.emitReport(rr)
}

func (c *cli) watch(cmd *cobra.Command) int {
	eff, logger, done, code := c.setup(cmd, config.ModeWatch)
	if code != 0 {
		return code
	}
	defer done()

	progressW, interactive := c.pickProgressWriter()
	var obs pipeline.Observer
	if interactive {
		printConfig(progressW, eff)
		obs = newProgressUI(progressW)
	}

	runner, err := buildRunner(eff, logger, obs)
	if err != nil {
		c.emitReport(failedReport(domain.ErrCodeConfigInvalid, err))
		return 1
	}

	s := &session.Session{
		Runner:    runner,
		Publisher: &reportPublisher{c: c},
		Interval:  eff.Interval,
		Logger:    logger,
	}
	if err := s.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("watch stopped", "error", err)
		return 1
	}
	return 0
}

// fanout 把同一个结果依次交给多个 Publisher。
type fanout []session.Publisher

func (f fanout) Update(rr domain.CycleReport) {
	for _, p := range f {
		p.Update(rr)
	}
}

// logPublisher 只记录 cycle 结果，不向 stdout 输出。
type logPublisher struct{ c *cli }

func (p logPublisher) Update(rr domain.CycleReport) {
	fmt.Fprintln(p.c.stderr, summaryLine(rr))
}

func (c *cli) serve(cmd *cobra.Command) int {
	eff, logger, done, code := c.setup(cmd, config.ModeServe)
	if code != 0 {
		return code
	}
	defer done()

	progressW, interactive := c.pickProgressWriter()
	if interactive {
		printConfig(progressW, eff)
	}

	runner, err := buildRunner(eff, logger, nil)
	if err != nil {
		c.emitReport(failedReport(domain.ErrCodeConfigInvalid, err))
		return 1
	}

	layer := present.NewLayer()
	sess := &session.Session{
		Runner:    runner,
		Publisher: fanout{layer, logPublisher{c: c}},
		Interval:  eff.Interval,
		Logger:    logger,
	}
	srv := &server.Server{
		Layer:     layer,
		Refresher: sess,
		Feed:      eff.Feed,
		Artifact:  eff.Output,
		Logger:    logger,
	}
	httpSrv := &http.Server{
		Addr:              eff.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error { return sess.Run(ctx) })
	g.Go(func() error {
		logger.Info("http listening", "addr", eff.Listen, "feed", eff.Feed)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if c.open {
		u := localURL(eff.Listen) + "/api/strikes"
		if err := browser.OpenURL(u); err != nil {
			logger.Warn("open browser failed", "url", u, "error", err)
		}
	}
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("serve stopped", "error", err)
		return 1
	}
	return 0
}

// localURL 把监听地址转为本机可访问的 URL（":8080" => "http://localhost:8080"）。
func localURL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}
