package app

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/John-Robertt/mediarename/internal/domain"
)

var base = time.Date(2025, 6, 22, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) time.Time { return base.Add(d) }

func located(path string, mod time.Time, lat, lon float64) domain.FileMetadata {
	return domain.FileMetadata{Path: path, ModTime: mod, Coords: &domain.Coords{Lat: lat, Lon: lon}}
}

func bare(path string, mod time.Time) domain.FileMetadata {
	return domain.FileMetadata{Path: path, ModTime: mod}
}

func TestBackfill_NearestWithinWindow(t *testing.T) {
	batch := []domain.FileMetadata{
		located("/p/A.jpg", at(0), 1, 1),
		bare("/p/B.jpg", at(30*time.Minute)),
		bare("/p/C.jpg", at(5*time.Hour)),
	}

	out := Backfill(batch)

	if out[1].Coords == nil || *out[1].Coords != (domain.Coords{Lat: 1, Lon: 1}) {
		t.Fatalf("B 应借用 A 的坐标，实际 %+v", out[1].Coords)
	}
	if out[1].CoordsFrom != "/p/A.jpg" {
		t.Fatalf("B 的坐标来源应为 A，实际 %q", out[1].CoordsFrom)
	}
	if out[2].Coords != nil {
		t.Fatalf("C 超出时间窗口，不应借到坐标：%+v", out[2].Coords)
	}
	if !reflect.DeepEqual(out[0], batch[0]) {
		t.Fatalf("已有坐标的记录必须原样保留")
	}
	// 输入不被修改
	if batch[1].Coords != nil {
		t.Fatalf("Backfill 不应修改输入切片")
	}
}

func TestBackfill_WindowBoundaryInclusive(t *testing.T) {
	batch := []domain.FileMetadata{
		located("/p/A.jpg", at(0), 1, 1),
		bare("/p/B.jpg", at(BackfillWindow)),
		bare("/p/C.jpg", at(-BackfillWindow-time.Second)),
	}
	out := Backfill(batch)
	if out[1].Coords == nil {
		t.Fatalf("恰好 3600 秒应在窗口内")
	}
	if out[2].Coords != nil {
		t.Fatalf("3601 秒应在窗口外")
	}
}

func TestBackfill_TieBreak(t *testing.T) {
	// B 与 A、C 的时间差都是 10 分钟：取修改时间更早的 A。
	batch := []domain.FileMetadata{
		located("/p/C.jpg", at(20*time.Minute), 3, 3),
		bare("/p/B.jpg", at(10*time.Minute)),
		located("/p/A.jpg", at(0), 1, 1),
	}
	out := Backfill(batch)
	if out[1].CoordsFrom != "/p/A.jpg" {
		t.Fatalf("平局应取更早的 A，实际 %q", out[1].CoordsFrom)
	}

	// 修改时间完全相同：取输入顺序靠前者。
	batch = []domain.FileMetadata{
		located("/p/X.jpg", at(0), 5, 5),
		located("/p/Y.jpg", at(0), 6, 6),
		bare("/p/Z.jpg", at(time.Minute)),
	}
	out = Backfill(batch)
	if out[2].CoordsFrom != "/p/X.jpg" {
		t.Fatalf("同一时间应取输入靠前的 X，实际 %q", out[2].CoordsFrom)
	}
}

func TestBackfill_NoChaining(t *testing.T) {
	// B 借到 A 的坐标后，C（离 B 近、离 A 远）不能再从 B 借。
	batch := []domain.FileMetadata{
		located("/p/A.jpg", at(0), 1, 1),
		bare("/p/B.jpg", at(50*time.Minute)),
		bare("/p/C.jpg", at(100*time.Minute)),
	}
	out := Backfill(batch)
	if out[1].Coords == nil {
		t.Fatalf("B 应借到坐标")
	}
	if out[2].Coords != nil {
		t.Fatalf("C 不应经由 B 链式借到坐标")
	}
}

func TestBackfill_Idempotent(t *testing.T) {
	batch := []domain.FileMetadata{
		located("/p/A.jpg", at(0), 1, 1),
		bare("/p/B.jpg", at(30*time.Minute)),
		bare("/p/C.jpg", at(90*time.Minute)),
		located("/p/D.jpg", at(2*time.Hour), 2, 2),
	}
	once := Backfill(batch)
	twice := Backfill(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("Backfill 不幂等：\n%+v\n%+v", once, twice)
	}
	if once[2].CoordsFrom != "/p/D.jpg" {
		t.Fatalf("C 离 D 更近，实际来源 %q", once[2].CoordsFrom)
	}
}

func TestBackfill_NothingLocated(t *testing.T) {
	batch := []domain.FileMetadata{bare("/p/A.jpg", at(0)), bare("/p/B.jpg", at(time.Minute))}
	out := Backfill(batch)
	if !reflect.DeepEqual(out, batch) {
		t.Fatalf("没有带坐标的文件时应原样返回")
	}
	if len(Backfill(nil)) != 0 {
		t.Fatalf("空批次应返回空结果")
	}
}

func TestBackfill_CenturiesApartNeverLends(t *testing.T) {
	// 相差超过 time.Duration 能表示的范围时，Sub 会饱和。
	far := time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC)
	old := time.Date(1905, 1, 1, 0, 0, 0, 0, time.UTC)

	batch := []domain.FileMetadata{
		located("/p/A.jpg", far, 1, 1),
		bare("/p/B.jpg", old),
	}
	out := Backfill(batch)
	if out[1].Coords != nil {
		t.Fatalf("相隔数百年不应借到坐标，实际来源 %q", out[1].CoordsFrom)
	}

	batch = []domain.FileMetadata{
		located("/p/A.jpg", old, 1, 1),
		bare("/p/B.jpg", far),
	}
	out = Backfill(batch)
	if out[1].Coords != nil {
		t.Fatalf("相隔数百年不应借到坐标（反向），实际来源 %q", out[1].CoordsFrom)
	}

	// 远处的候选不能挤掉窗口内的近邻。
	batch = []domain.FileMetadata{
		located("/p/A.jpg", far, 1, 1),
		located("/p/C.jpg", old.Add(10*time.Minute), 3, 3),
		bare("/p/B.jpg", old),
	}
	out = Backfill(batch)
	if out[2].CoordsFrom != "/p/C.jpg" {
		t.Fatalf("应借用窗口内的 C，实际来源 %q", out[2].CoordsFrom)
	}
}

func TestAbsDuration(t *testing.T) {
	cases := []struct {
		in, want time.Duration
	}{
		{in: 0, want: 0},
		{in: -time.Second, want: time.Second},
		{in: time.Hour, want: time.Hour},
		{in: math.MinInt64, want: math.MaxInt64},
	}
	for _, tc := range cases {
		if got := absDuration(tc.in); got != tc.want {
			t.Fatalf("absDuration(%d)=%d，期望 %d", int64(tc.in), int64(got), int64(tc.want))
		}
	}
}
