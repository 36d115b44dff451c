package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/John-Robertt/mediarename/internal/app/run"
	"github.com/John-Robertt/mediarename/internal/config"
	"github.com/John-Robertt/mediarename/internal/domain"
)

var (
	_ run.Observer = (*progressUI)(nil)
	_ run.Observer = logObserver{}
)

// phases 是 run 层发出阶段事件的固定顺序，keepalive 据此推断当前阶段。
var phases = []string{"scan", "extract", "backfill", "resolve", "rename"}

// logObserver 用于非交互环境：只把 warning 与阶段统计交给日志器（stderr）。
type logObserver struct {
	logger *zap.Logger
}

func (o logObserver) OnStart(config.EffectiveConfig) {}

func (o logObserver) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	o.logger.Debug("阶段完成", zap.String("phase", name), zap.Any("fields", fields), zap.Duration("dur", dur))
}

func (o logObserver) OnWarning(path, msg string) {
	o.logger.Warn(msg, zap.String("path", path))
}

func (o logObserver) OnFileDone(int, int, domain.ItemResult, time.Duration) {}

// progressUI 是交互终端的进度输出。
//
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - warning 交给 zap 日志器，与其他日志同一格式
// - keepalive：地理编码阶段每个坐标之间有礼貌间隔，长时间无输出时定期打印一行
type progressUI struct {
	w      io.Writer
	logger *zap.Logger

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time
	phase       int // 下一个（正在进行的）阶段在 phases 中的下标

	files   int
	done    int
	renamed int
	fail    int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh chan struct{}
	once   sync.Once
}

func newProgressUI(w io.Writer, logger *zap.Logger) *progressUI {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &progressUI{
		w:                  w,
		logger:             logger,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
		stopCh:             make(chan struct{}),
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "rename"
	modeHint := " (文件将被直接改名)"
	if eff.DryRun {
		mode = "dry-run"
		modeHint = " (不改名/不写缓存)"
	}

	fmt.Fprintf(p.w, "[%s] mediarename %s (%s)\n", now.Format("15:04:05"), version, mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  inputs: %s\n", formatStringListJSON(eff.Inputs))
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	fmt.Fprintf(p.w, "  provider: %s (language=%s)\n", providerChain(eff.Provider), eff.Language)
	fmt.Fprintf(p.w, "  geocode_delay: %s\n", eff.GeocodeDelay)
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	if eff.CacheDir != "" {
		fmt.Fprintf(p.w, "  cache: %s\n", eff.CacheDir)
	} else {
		fmt.Fprintln(p.w, "  cache: off")
	}
	if len(eff.ExcludeDirs) > 0 {
		fmt.Fprintf(p.w, "  exclude_dirs: %s\n", formatStringListJSON(eff.ExcludeDirs))
	}
	if eff.Report && !eff.DryRun && len(eff.Inputs) > 0 {
		fmt.Fprintf(p.w, "  report: %s\n", filepath.Join(reportRoot(eff.Inputs[0]), reportDir, "report.json"))
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
	go p.keepalive()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "scan":
		p.files = intField(fields, "files")
		fmt.Fprintf(p.w, "扫描: files=%d rejected=%d (%s)\n",
			p.files, intField(fields, "rejected"), formatShortDuration(dur),
		)
	case "extract":
		fmt.Fprintf(p.w, "元数据: files=%d with_gps=%d dated=%d (%s)\n",
			intField(fields, "files"), intField(fields, "with_gps"), intField(fields, "dated"), formatShortDuration(dur),
		)
	case "backfill":
		fmt.Fprintf(p.w, "借用坐标: borrowed=%d (%s)\n", intField(fields, "borrowed"), formatShortDuration(dur))
	case "resolve":
		fmt.Fprintf(p.w, "地理编码: resolved=%d failed=%d (%s)\n\n",
			intField(fields, "resolved"), intField(fields, "failed"), formatShortDuration(dur),
		)
	case "rename":
		fmt.Fprintf(p.w, "\n改名: done=%d renamed=%d failed=%d (%s)\n", p.done, p.renamed, p.fail, formatShortDuration(dur))
	default:
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	for i, ph := range phases {
		if ph == name {
			p.phase = i + 1
		}
	}
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnWarning(path, msg string) {
	p.logger.Warn(msg, zap.String("path", path))

	p.mu.Lock()
	p.lastPrinted = time.Now()
	p.mu.Unlock()
}

func (p *progressUI) OnFileDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx
	status := "OK"
	switch res.Status {
	case domain.StatusRenamed:
		p.renamed++
	case domain.StatusPlanned:
		p.renamed++
		status = "PLAN"
	case domain.StatusUnchanged:
		status = "SAME"
	case domain.StatusFailed:
		p.fail++
		status = "FAIL"
	}

	src := filepath.Base(res.Src)
	switch res.Status {
	case domain.StatusFailed:
		fmt.Fprintf(p.w, "[%d/%d] %s %s %s: %s (%s)\n",
			idx, total, status, src, res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
	case domain.StatusUnchanged:
		fmt.Fprintf(p.w, "[%d/%d] %s %s\n", idx, total, status, src)
	default:
		note := ""
		if res.CoordsSource == domain.CoordsSourceBorrowed {
			note = " (坐标借自 " + filepath.Base(res.BorrowedFrom) + ")"
		}
		fmt.Fprintf(p.w, "[%d/%d] %s %s -> %s%s\n", idx, total, status, src, filepath.Base(res.Dst), note)
	}
	p.lastPrinted = time.Now()
}

// Close 停止 keepalive；可重复调用。
func (p *progressUI) Close() {
	p.once.Do(func() { close(p.stopCh) })
}

func (p *progressUI) keepalive() {
	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			p.mu.Lock()
			if p.phase >= len(phases) {
				p.mu.Unlock()
				return
			}
			if time.Since(p.lastPrinted) > threshold {
				fmt.Fprintf(p.w, "进度: phase=%s files=%d elapsed=%s\n",
					phases[p.phase], p.files, formatElapsed(time.Since(p.startedAt)),
				)
				p.lastPrinted = time.Now()
			}
			p.mu.Unlock()
		case <-p.stopCh:
			return
		}
	}
}

func providerChain(requested string) string {
	switch strings.ToLower(strings.TrimSpace(requested)) {
	case "photon":
		return "photon -> nominatim"
	default:
		return "nominatim -> photon"
	}
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

func formatStringListJSON(xs []string) string {
	// json.Marshal(nil slice) => "null"；对用户更友好的是 "[]"
	if xs == nil {
		xs = []string{}
	}
	b, err := json.Marshal(xs)
	if err != nil {
		return "[]"
	}
	return string(b)
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

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
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
	default:
		return 0
	}
}
