package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/lgtmap/internal/domain"
	"github.com/John-Robertt/lgtmap/internal/extract"
	"github.com/John-Robertt/lgtmap/internal/infra/httpx"
	"github.com/John-Robertt/lgtmap/internal/infra/logx"
	"github.com/John-Robertt/lgtmap/internal/provider/meteologix"
)

const (
	// ErrCodeNotFound 表示 --config 指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

// FileName 是 cwd 下自动发现的配置文件名。
const FileName = "lgtmap.yaml"

const (
	ModeRun   = "run"
	ModeWatch = "watch"
	ModeServe = "serve"
)

const (
	DefaultOutput        = "api/datos_rayos.json"
	DefaultInterval      = 300 * time.Second
	MinInterval          = 30 * time.Second
	DefaultListen        = ":8080"
	DefaultBucketMinutes = 5
	// DefaultSessionCachePages 用于 watch/serve；一次性 run 不需要缓存。
	DefaultSessionCachePages = 8
)

// DefaultBounds/DefaultFrame 是对 meteologix 委内瑞拉闪电图的经验标定。
var (
	DefaultBounds = domain.CalibrationBounds{North: 14.2, South: 0.2, West: -75.8, East: -54.9}
	DefaultFrame  = domain.PixelFrame{Width: 800, Height: 600}
)

// CLIArgs 只包含 CLI 暴露的入口，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --output="" 必须能关闭配置中的 output。
type CLIArgs struct {
	Mode       string
	ConfigPath string

	Output    string
	OutputSet bool

	Interval    time.Duration
	IntervalSet bool

	Listen    string
	ListenSet bool

	Feed    string
	FeedSet bool

	LogLevel    string
	LogLevelSet bool
}

// FileConfig 对应 lgtmap.yaml 的解析结构；指针字段用于区分“未写”与“写了零值”。
type FileConfig struct {
	Source      SourceConfig              `yaml:"source"`
	Calibration *domain.CalibrationBounds `yaml:"calibration"`
	Frame       *domain.PixelFrame        `yaml:"frame"`
	Markers     MarkersConfig             `yaml:"markers"`
	Output      *string                   `yaml:"output"`
	Session     SessionConfig             `yaml:"session"`
	Log         LogConfig                 `yaml:"log"`
}

type SourceConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	ProxyURL   string        `yaml:"proxy_url"`
	UserAgent  string        `yaml:"user_agent"`
	RetryMax   int           `yaml:"retry_max"`
	CachePages *int          `yaml:"cache_pages"`
	Relay      RelayConfig   `yaml:"relay"`
}

type RelayConfig struct {
	URL      string `yaml:"url"`
	Envelope string `yaml:"envelope"`
}

type MarkersConfig struct {
	Selector      string `yaml:"selector"`
	TopAttr       string `yaml:"top_attr"`
	LeftAttr      string `yaml:"left_attr"`
	AgePrefix     string `yaml:"age_prefix"`
	BucketMinutes int    `yaml:"bucket_minutes"`
	MaxBucket     int    `yaml:"max_bucket"`
}

type SessionConfig struct {
	Feed        string        `yaml:"feed"`
	SnapshotURL string        `yaml:"snapshot_url"`
	Interval    time.Duration `yaml:"interval"`
	Listen      string        `yaml:"listen"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// EffectiveConfig 是合并并规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Mode       string
	ConfigPath string // 实际读取的配置文件；未读取时为空

	BaseURL       string
	Timeout       time.Duration
	ProxyURL      string
	UserAgent     string
	RetryMax      int
	CachePages    int
	RelayURL      string
	RelayEnvelope string

	Bounds        domain.CalibrationBounds
	Frame         domain.PixelFrame
	Rules         extract.Rules
	BucketMinutes int

	// Output 为绝对路径；为空表示不写快照文件。
	Output string

	Feed        string
	SnapshotURL string
	Interval    time.Duration
	Listen      string

	Log logx.Options
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 --config：必须存在
// 2) 未提供：尝试 <cwd>/lgtmap.yaml（可选，不存在则全部走内置默认）
//
// 覆盖优先级：CLI（显式指定） > 配置文件 > 内置默认。
// 相对路径（output、log.file）以配置文件所在目录为基准；没有配置文件时以 cwd 为基准。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	var (
		cfgPath string
		fc      FileConfig
		exists  bool
	)
	if strings.TrimSpace(cli.ConfigPath) != "" {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigPath)
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
	} else {
		cfgPath = filepath.Join(cwdAbs, FileName)
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
	}

	base := cwdAbs
	if exists {
		base = filepath.Dir(cfgPath)
	} else {
		cfgPath = ""
	}

	eff, err := merge(base, cli, fc)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	eff.ConfigPath = cfgPath
	return eff, nil
}

func merge(base string, cli CLIArgs, fc FileConfig) (EffectiveConfig, error) {
	mode := cli.Mode
	if mode == "" {
		mode = ModeRun
	}
	switch mode {
	case ModeRun, ModeWatch, ModeServe:
	default:
		return EffectiveConfig{}, fmt.Errorf("未知运行模式：%q", mode)
	}

	// source
	baseURL := strings.TrimSpace(fc.Source.BaseURL)
	if baseURL == "" {
		baseURL = meteologix.DefaultBaseURL
	}
	if err := validateHTTPURL("source.base_url", baseURL); err != nil {
		return EffectiveConfig{}, err
	}
	if fc.Source.Timeout < 0 {
		return EffectiveConfig{}, fmt.Errorf("source.timeout 不能为负数：%s", fc.Source.Timeout)
	}
	proxyURL := strings.TrimSpace(fc.Source.ProxyURL)
	if proxyURL != "" {
		if _, err := url.Parse(proxyURL); err != nil {
			return EffectiveConfig{}, fmt.Errorf("source.proxy_url 无效：%w", err)
		}
	}
	retryMax := fc.Source.RetryMax
	if retryMax < 0 {
		retryMax = 0
	}
	if retryMax > 3 {
		retryMax = 3
	}
	cachePages := 0
	if mode != ModeRun {
		cachePages = DefaultSessionCachePages
	}
	if fc.Source.CachePages != nil {
		cachePages = *fc.Source.CachePages
	}
	if cachePages < 0 {
		cachePages = 0
	}

	relayURL := strings.TrimSpace(fc.Source.Relay.URL)
	relayEnvelope := strings.ToLower(strings.TrimSpace(fc.Source.Relay.Envelope))
	if relayURL != "" {
		if err := validateHTTPURL("source.relay.url", strings.ReplaceAll(relayURL, "{url}", "x")); err != nil {
			return EffectiveConfig{}, err
		}
		switch relayEnvelope {
		case "":
			relayEnvelope = meteologix.EnvelopeJSON
		case meteologix.EnvelopeJSON, meteologix.EnvelopeRaw:
		default:
			return EffectiveConfig{}, fmt.Errorf("source.relay.envelope 只能是 json 或 raw，实际是 %q", fc.Source.Relay.Envelope)
		}
	}

	// calibration
	bounds := DefaultBounds
	if fc.Calibration != nil {
		bounds = *fc.Calibration
	}
	if err := bounds.Validate(); err != nil {
		return EffectiveConfig{}, fmt.Errorf("calibration 无效：%w", err)
	}
	frame := DefaultFrame
	if fc.Frame != nil {
		frame = *fc.Frame
	}
	if err := frame.Validate(); err != nil {
		return EffectiveConfig{}, fmt.Errorf("frame 无效：%w", err)
	}

	// markers
	rules := extract.DefaultRules()
	if s := strings.TrimSpace(fc.Markers.Selector); s != "" {
		rules.Selector = s
	}
	if s := strings.TrimSpace(fc.Markers.TopAttr); s != "" {
		rules.TopAttr = s
	}
	if s := strings.TrimSpace(fc.Markers.LeftAttr); s != "" {
		rules.LeftAttr = s
	}
	if s := strings.TrimSpace(fc.Markers.AgePrefix); s != "" {
		rules.AgePrefix = s
	}
	if fc.Markers.MaxBucket < 0 {
		return EffectiveConfig{}, fmt.Errorf("markers.max_bucket 不能为负数：%d", fc.Markers.MaxBucket)
	}
	rules.MaxBucket = fc.Markers.MaxBucket
	bucketMinutes := fc.Markers.BucketMinutes
	if bucketMinutes == 0 {
		bucketMinutes = DefaultBucketMinutes
	}
	if bucketMinutes < 0 {
		return EffectiveConfig{}, fmt.Errorf("markers.bucket_minutes 必须为正数：%d", bucketMinutes)
	}

	// output：CLI > config > 默认
	output := DefaultOutput
	if fc.Output != nil {
		output = *fc.Output
	}
	if cli.OutputSet {
		output = cli.Output
	}
	output = absCleanFrom(base, output)

	// session
	feed := strings.ToLower(strings.TrimSpace(fc.Session.Feed))
	if cli.FeedSet {
		feed = strings.ToLower(strings.TrimSpace(cli.Feed))
	}
	if feed == "" {
		feed = domain.FeedLive
	}
	snapshotURL := strings.TrimSpace(fc.Session.SnapshotURL)
	switch feed {
	case domain.FeedLive:
	case domain.FeedSnapshot:
		if mode == ModeRun {
			return EffectiveConfig{}, fmt.Errorf("run 模式只能使用 live feed")
		}
		if err := validateHTTPURL("session.snapshot_url", snapshotURL); err != nil {
			return EffectiveConfig{}, err
		}
	default:
		return EffectiveConfig{}, fmt.Errorf("session.feed 只能是 live 或 snapshot，实际是 %q", feed)
	}

	interval := fc.Session.Interval
	if cli.IntervalSet {
		interval = cli.Interval
	}
	if interval == 0 {
		interval = DefaultInterval
	}
	if interval < MinInterval {
		interval = MinInterval
	}

	listen := strings.TrimSpace(fc.Session.Listen)
	if cli.ListenSet {
		listen = strings.TrimSpace(cli.Listen)
	}
	if listen == "" {
		listen = DefaultListen
	}

	// log
	level := fc.Log.Level
	if cli.LogLevelSet {
		level = cli.LogLevel
	}
	if _, err := logx.ParseLevel(level); err != nil {
		return EffectiveConfig{}, fmt.Errorf("log.level 无效：%w", err)
	}
	logFile := strings.TrimSpace(fc.Log.File)
	if logFile != "" {
		logFile = absCleanFrom(base, logFile)
	}

	return EffectiveConfig{
		Mode:          mode,
		BaseURL:       strings.TrimRight(baseURL, "/"),
		Timeout:       httpx.ClampTimeout(fc.Source.Timeout),
		ProxyURL:      proxyURL,
		UserAgent:     strings.TrimSpace(fc.Source.UserAgent),
		RetryMax:      retryMax,
		CachePages:    cachePages,
		RelayURL:      relayURL,
		RelayEnvelope: relayEnvelope,
		Bounds:        bounds,
		Frame:         frame,
		Rules:         rules,
		BucketMinutes: bucketMinutes,
		Output:        output,
		Feed:          feed,
		SnapshotURL:   snapshotURL,
		Interval:      interval,
		Listen:        listen,
		Log: logx.Options{
			Level:      level,
			File:       logFile,
			MaxSizeMB:  fc.Log.MaxSizeMB,
			MaxBackups: fc.Log.MaxBackups,
			MaxAgeDays: fc.Log.MaxAgeDays,
		},
	}, nil
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s 无效：%q", field, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s 必须是 http/https：%q", field, raw)
	}
	return nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute；空串保持为空（表示关闭）。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 YAML 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
