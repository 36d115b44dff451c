package app

import (
	"math"
	"sort"
	"time"

	"github.com/John-Robertt/mediarename/internal/domain"
)

// BackfillWindow 是借用坐标允许的最大修改时间差（含边界）。
const BackfillWindow = time.Hour

// Backfill 为没有坐标的文件借用同批次中修改时间最接近的、自带坐标的文件的坐标。
//
// - 返回新切片，输入不被修改；已有坐标的记录原样保留
// - 只从原本就有坐标的文件借，借来的坐标不会再被别人借（无链式传播）
// - 时间差相同时取修改时间更早者；仍相同则取输入顺序靠前者
// - 对自身输出再次调用结果不变
func Backfill(batch []domain.FileMetadata) []domain.FileMetadata {
	out := make([]domain.FileMetadata, len(batch))
	copy(out, batch)

	located := make([]int, 0, len(batch))
	for i := range batch {
		if batch[i].Located() && batch[i].CoordsFrom == "" {
			located = append(located, i)
		}
	}
	if len(located) == 0 {
		return out
	}
	sort.SliceStable(located, func(a, b int) bool {
		return batch[located[a]].ModTime.Before(batch[located[b]].ModTime)
	})

	for i := range batch {
		if batch[i].Located() {
			continue
		}
		best := -1
		var bestDiff time.Duration
		for _, j := range located {
			d := absDuration(batch[i].ModTime.Sub(batch[j].ModTime))
			// 严格小于：located 已按时间升序，先遇到的就是平局里更早的那个。
			if best < 0 || d < bestDiff {
				best, bestDiff = j, d
			}
		}
		if bestDiff <= BackfillWindow {
			out[i] = batch[i].WithCoords(*batch[best].Coords, batch[best].Path)
		}
	}
	return out
}

// absDuration 返回 |d|。time.Time.Sub 在相差约 292 年以上时会饱和到 math.MinInt64，
// 取反仍为负数，这里按最大时长处理，保证它落在窗口之外。
func absDuration(d time.Duration) time.Duration {
	if d == math.MinInt64 {
		return math.MaxInt64
	}
	if d < 0 {
		return -d
	}
	return d
}
