package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/lgtmap/internal/app/pipeline"
	"github.com/John-Robertt/lgtmap/internal/app/session"
	"github.com/John-Robertt/lgtmap/internal/config"
	"github.com/John-Robertt/lgtmap/internal/domain"
	"github.com/John-Robertt/lgtmap/internal/geo"
	"github.com/John-Robertt/lgtmap/internal/infra/cache"
	"github.com/John-Robertt/lgtmap/internal/infra/httpx"
	"github.com/John-Robertt/lgtmap/internal/infra/logx"
	"github.com/John-Robertt/lgtmap/internal/provider/meteologix"
	"github.com/John-Robertt/lgtmap/internal/slug"
	"github.com/John-Robertt/lgtmap/internal/snapshot"
)

// exitError 让子命令决定退出码，而不是让 cobra 打印错误+用法。
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit %d", e.code) }

// cli 持有进程级 IO，测试可替换。
type cli struct {
	stdout io.Writer
	stderr io.Writer
	cwd    string
	now    func() time.Time
	// tty 判断 w 是否为交互终端。
	tty func(w io.Writer) bool

	configPath string
	logLevel   string
	output     string
	interval   time.Duration
	listen     string
	feed       string
	open       bool
}

func main() {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		os.Exit(1)
	}
	c := &cli{stdout: os.Stdout, stderr: os.Stderr, cwd: cwd, now: time.Now, tty: isTTY}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.root().ExecuteContext(ctx); err != nil {
		var ee exitError
		if errors.As(err, &ee) {
			stop()
			os.Exit(ee.code)
		}
		fmt.Fprintf(os.Stderr, "参数错误：%v\n", err)
		stop()
		os.Exit(2)
	}
}

func (c *cli) root() *cobra.Command {
	root := &cobra.Command{
		Use:   "lgtmap",
		Short: "抓取闪电标记并发布为地理坐标快照",
		Long: `lgtmap 抓取第三方闪电可视化页面，把像素坐标换算为经纬度，
写出 JSON 快照（[{lat,lng,age}]），或作为会话持续刷新并通过 HTTP 提供给地图客户端。`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&c.configPath, "config", "c", "", "配置文件路径（默认读取当前目录下的 "+config.FileName+"，不存在则使用内置默认）")
	pf.StringVar(&c.logLevel, "log-level", "", "日志级别：debug|info|warn|error")

	root.AddCommand(c.runCmd(), c.watchCmd(), c.serveCmd(), c.slugCmd())
	return root
}

func (c *cli) runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "执行一次 cycle 并写出快照（失败时退出码为 1）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if code := c.run(cmd); code != 0 {
				return exitError{code: code}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&c.output, "output", "o", "", "快照输出路径（默认 "+config.DefaultOutput+"；传空字符串表示不写文件）")
	return cmd
}

func (c *cli) slugCmd() *cobra.Command {
	var at string
	var base string
	cmd := &cobra.Command{
		Use:   "slug",
		Short: "打印当前（或 --at 指定时刻）的时间片与上游页面 URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t := c.now()
			if at != "" {
				v, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at 必须是 RFC3339 时间：%w", err)
				}
				t = v
			}
			s := slug.At(t)
			fmt.Fprintln(c.stdout, s)
			fmt.Fprintln(c.stdout, slug.URL(base, s))
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "RFC3339 时间，例如 2024-03-01T12:07:00Z")
	cmd.Flags().StringVar(&base, "base-url", meteologix.DefaultBaseURL, "上游页面基础 URL")
	return cmd
}

func (c *cli) cliArgs(cmd *cobra.Command, mode string) config.CLIArgs {
	fs := cmd.Flags()
	return config.CLIArgs{
		Mode:        mode,
		ConfigPath:  c.configPath,
		Output:      c.output,
		OutputSet:   fs.Changed("output"),
		Interval:    c.interval,
		IntervalSet: fs.Changed("interval"),
		Listen:      c.listen,
		ListenSet:   fs.Changed("listen"),
		Feed:        c.feed,
		FeedSet:     fs.Changed("feed"),
		LogLevel:    c.logLevel,
		LogLevelSet: fs.Changed("log-level"),
	}
}

// setup 读取配置并初始化日志；失败时已输出 report，返回非 0 退出码。
func (c *cli) setup(cmd *cobra.Command, mode string) (config.EffectiveConfig, *slog.Logger, func(), int) {
	eff, err := config.LoadEffective(c.cwd, c.cliArgs(cmd, mode))
	if err != nil {
		c.emitReport(reportForConfigError(err))
		return config.EffectiveConfig{}, nil, nil, 1
	}
	logger, closer, err := logx.New(eff.Log, c.stderr)
	if err != nil {
		fmt.Fprintf(c.stderr, "初始化日志失败：%v\n", err)
		return config.EffectiveConfig{}, nil, nil, 1
	}
	return eff, logger, func() {
		if closer != nil {
			_ = closer.Close()
		}
	}, 0
}

func (c *cli) run(cmd *cobra.Command) int {
	eff, logger, done, code := c.setup(cmd, config.ModeRun)
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

	p, err := buildPipeline(eff, logger, obs)
	if err != nil {
		c.emitReport(failedReport(domain.ErrCodeConfigInvalid, err))
		return 1
	}

	rr := p.Execute(cmd.Context())
	c.emitReport(rr)
	if interactive && rr.OK() && eff.Output != "" {
		fmt.Fprintf(progressW, "snapshot: %s\n", eff.Output)
	}
	if rr.OK() {
		return 0
	}
	return 1
}

func newHTTPClient(eff config.EffectiveConfig) (*http.Client, error) {
	return httpx.NewClient(httpx.Options{
		ProxyURL:  eff.ProxyURL,
		Timeout:   eff.Timeout,
		UserAgent: eff.UserAgent,
		RetryMax:  eff.RetryMax,
	})
}

func buildPipeline(eff config.EffectiveConfig, logger *slog.Logger, obs pipeline.Observer) (*pipeline.Pipeline, error) {
	client, err := newHTTPClient(eff)
	if err != nil {
		return nil, fmt.Errorf("source.proxy_url 无效：%w", err)
	}
	store, err := cache.New(eff.CachePages)
	if err != nil {
		return nil, fmt.Errorf("初始化页面缓存失败：%w", err)
	}
	return &pipeline.Pipeline{
		Source: meteologix.Provider{
			BaseURL: eff.BaseURL,
			Relay:   meteologix.Relay{URL: eff.RelayURL, Envelope: eff.RelayEnvelope},
			Rules:   eff.Rules,
		},
		Client:        client,
		Transformer:   geo.Transformer{Bounds: eff.Bounds, Frame: eff.Frame},
		BucketMinutes: eff.BucketMinutes,
		Output:        eff.Output,
		Cache:         store,
		Logger:        logger,
		Observer:      obs,
	}, nil
}

// buildRunner 按 feed 选择 session 的 cycle 来源。
func buildRunner(eff config.EffectiveConfig, logger *slog.Logger, obs pipeline.Observer) (session.Runner, error) {
	if eff.Feed != domain.FeedSnapshot {
		p, err := buildPipeline(eff, logger, obs)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	client, err := newHTTPClient(eff)
	if err != nil {
		return nil, fmt.Errorf("source.proxy_url 无效：%w", err)
	}
	return &snapshot.Feed{URL: eff.SnapshotURL, Client: client, Logger: logger}, nil
}

func (c *cli) emitReport(rr domain.CycleReport) {
	if c.tty(c.stdout) {
		fmt.Fprintln(c.stdout, summaryLine(rr))
		if !rr.OK() {
			fmt.Fprintf(c.stderr, "%s %s: %s\n", rr.Slug, rr.ErrorCode, rr.ErrorMsg)
		}
		return
	}

	// stdout 非 TTY：每个 cycle 在 stdout 输出且仅输出一个 CycleReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(c.stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(c.stderr, summaryLine(rr))
}

func summaryLine(rr domain.CycleReport) string {
	if rr.OK() {
		return fmt.Sprintf("完成：slug=%s total=%d valid=%d dropped=%d", rr.Slug, rr.Total, rr.Valid, rr.DroppedOutOfBounds)
	}
	return fmt.Sprintf("失败：slug=%s stage=%s error_code=%s", rr.Slug, rr.Stage, rr.ErrorCode)
}

func reportForConfigError(err error) domain.CycleReport {
	return failedReport(config.Code(err), err)
}

func failedReport(code string, err error) domain.CycleReport {
	now := time.Now().UTC()
	rr := domain.CycleReport{
		Stage:      domain.StageFailed,
		StartedAt:  now,
		FinishedAt: now,
		ErrorCode:  code,
		ErrorMsg:   err.Error(),
	}
	rr.Finalize()
	return rr
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func (c *cli) pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if c.tty(c.stderr) {
		return c.stderr, true
	}
	if c.tty(c.stdout) {
		return c.stdout, true
	}
	return nil, false
}
