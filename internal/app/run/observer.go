package run

import (
	"time"

	"github.com/John-Robertt/mediarename/internal/config"
	"github.com/John-Robertt/mediarename/internal/domain"
)

// Observer 用于把“运行进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// 事件全部来自调用 Execute 的 goroutine。
type Observer interface {
	// OnStart 在执行开始时调用。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在每个阶段（scan/extract/backfill/resolve/rename）结束时调用。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnWarning 报告不影响批处理继续的单文件问题。
	OnWarning(path, msg string)
	// OnFileDone 在某个文件完成改名阶段时调用。
	OnFileDone(idx, total int, res domain.ItemResult, dur time.Duration)
}

type nopObserver struct{}

func (nopObserver) OnStart(config.EffectiveConfig) {}
func (nopObserver) OnPhaseDone(string, map[string]any, time.Duration) {}
func (nopObserver) OnWarning(string, string) {}
func (nopObserver) OnFileDone(int, int, domain.ItemResult, time.Duration) {}
