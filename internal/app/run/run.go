package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/John-Robertt/mediarename/internal/app"
	"github.com/John-Robertt/mediarename/internal/app/planner"
	"github.com/John-Robertt/mediarename/internal/config"
	"github.com/John-Robertt/mediarename/internal/domain"
	"github.com/John-Robertt/mediarename/internal/geoname"
	"github.com/John-Robertt/mediarename/internal/infra/cache"
	"github.com/John-Robertt/mediarename/internal/infra/fsx"
	"github.com/John-Robertt/mediarename/internal/infra/httpx"
	"github.com/John-Robertt/mediarename/internal/media"
	"github.com/John-Robertt/mediarename/internal/naming"
	"github.com/John-Robertt/mediarename/internal/provider"
	"github.com/John-Robertt/mediarename/internal/scan"
)

// ErrNoInput 表示过滤后没有任何可处理的文件。
var ErrNoInput = errors.New("没有可处理的输入文件")

// Extractor 读取单个文件的元数据。返回的 error 只用于 warning，元数据总是可用。
type Extractor interface {
	Extract(ctx context.Context, f domain.MediaFile) (domain.FileMetadata, error)
}

// Resolver 把坐标解析为 location_name，并说明结果来自哪个 provider。
type Resolver interface {
	Resolve(ctx context.Context, c domain.Coords) (geoname.Result, error)
}

// Deps 是一次运行依赖的外部能力。Resolver 为 nil 时跳过地理编码（全部 Unknown）。
type Deps struct {
	Extractor Extractor
	Resolver  Resolver
	// Rename 为 nil 时使用 fsx.RenameNoReplace。
	Rename func(src, dst string) error
	Logger *zap.Logger
}

// Execute 按有效配置组装真实依赖（HTTP client、缓存、ffprobe 等），然后执行一次运行。
func Execute(ctx context.Context, eff config.EffectiveConfig, reg provider.Registry, logger *zap.Logger, obs Observer) (domain.RunReport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := httpx.NewClient(httpx.Options{
		ProxyURL:  eff.ProxyURL,
		UserAgent: eff.UserAgent,
		Timeout:   eff.GeocodeTimeout,
	})
	if err != nil {
		return domain.RunReport{}, &config.Error{Code: config.ErrCodeInvalid, Path: "proxy.url", Err: err}
	}

	// dry-run 不写任何文件，缓存同样只读。
	store := cache.New(eff.CacheDir, eff.DryRun)

	deps := Deps{
		Extractor: media.Extractor{
			Images: media.ImageReader{},
			Videos: media.VideoReader{FFprobePath: eff.FFprobePath, Timeout: eff.ProbeTimeout},
		},
		Resolver: geoname.NewResolver(reg, eff.Provider, client, store, eff.GeocodeDelay, logger),
		Logger:   logger,
	}
	return ExecuteWith(ctx, eff, deps, obs)
}

// ExecuteWith 执行一次运行：scan -> extract -> backfill -> resolve -> rename。
// 每个阶段处理完整批文件后才进入下一阶段；单个文件的失败只记录在该文件的条目里。
//
// 返回的 error 只有两种：ErrNoInput，或 ctx 被取消时的 ctx.Err()。两种情况下 report 仍然有效。
func ExecuteWith(ctx context.Context, eff config.EffectiveConfig, deps Deps, obs Observer) (domain.RunReport, error) {
	if obs == nil {
		obs = nopObserver{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rename := deps.Rename
	if rename == nil {
		rename = fsx.RenameNoReplace
	}

	obs.OnStart(eff)

	rr := domain.RunReport{
		RunID:     uuid.NewString(),
		DryRun:    eff.DryRun,
		Provider:  eff.Provider,
		StartedAt: time.Now().UTC(),
	}
	finish := func(err error) (domain.RunReport, error) {
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr, err
	}

	// scan
	started := time.Now()
	files, rejected := scan.Inputs(eff.Inputs, eff.ExcludeDirs)
	skipped := make([]domain.ItemResult, 0, len(rejected))
	for _, r := range rejected {
		status := domain.StatusSkipped
		if r.Code == domain.ErrCodeScanFailed {
			status = domain.StatusFailed
		}
		obs.OnWarning(r.Path, r.Msg)
		skipped = append(skipped, domain.ItemResult{
			Src:       r.Path,
			Status:    status,
			ErrorCode: r.Code,
			ErrorMsg:  r.Msg,
		})
	}
	obs.OnPhaseDone("scan", map[string]any{
		"files":    len(files),
		"rejected": len(rejected),
	}, time.Since(started))

	if len(files) == 0 {
		rr.Items = skipped
		return finish(ErrNoInput)
	}

	items := make([]domain.ItemResult, len(files))
	for i, f := range files {
		items[i] = domain.ItemResult{Src: f.AbsPath}
	}
	collect := func() {
		rr.Items = append(items, skipped...)
	}
	warn := func(i int, code string, err error) {
		msg := fmt.Sprintf("%s: %v", code, err)
		items[i].Warnings = append(items[i].Warnings, msg)
		obs.OnWarning(files[i].AbsPath, msg)
	}
	interrupted := func(from int) (domain.RunReport, error) {
		for i := from; i < len(items); i++ {
			if items[i].Status != "" {
				continue
			}
			items[i].Status = domain.StatusFailed
			items[i].ErrorCode = domain.ErrCodeInterrupted
			items[i].ErrorMsg = "运行被中断"
		}
		collect()
		return finish(ctx.Err())
	}

	// extract
	started = time.Now()
	mds := make([]domain.FileMetadata, len(files))
	var withDate, withGPS int
	for i, f := range files {
		if ctx.Err() != nil {
			return interrupted(0)
		}
		md, err := deps.Extractor.Extract(ctx, f)
		if err != nil {
			if ctx.Err() != nil {
				return interrupted(0)
			}
			warn(i, domain.ErrCodeExtractFailed, err)
		}
		md.Path, md.Kind, md.ModTime = f.AbsPath, f.Kind, f.ModTime
		if md.CreationDate != nil {
			withDate++
		}
		if md.Located() {
			withGPS++
		}
		mds[i] = md
	}
	obs.OnPhaseDone("extract", map[string]any{
		"files":    len(files),
		"with_gps": withGPS,
		"dated":    withDate,
	}, time.Since(started))

	// backfill
	started = time.Now()
	mds = app.Backfill(mds)
	var borrowed int
	for i := range mds {
		if mds[i].CoordsFrom != "" {
			borrowed++
			logger.Debug("借用相邻文件坐标",
				zap.String("path", mds[i].Path),
				zap.String("from", mds[i].CoordsFrom),
			)
		}
	}
	obs.OnPhaseDone("backfill", map[string]any{"borrowed": borrowed}, time.Since(started))

	// resolve
	started = time.Now()
	var resolved, failed int
	if deps.Resolver != nil {
		for i := range mds {
			if ctx.Err() != nil {
				return interrupted(0)
			}
			if !mds[i].Located() {
				continue
			}
			res, err := deps.Resolver.Resolve(ctx, *mds[i].Coords)
			traceGeocode(&items[i], res)
			if err != nil {
				if ctx.Err() != nil {
					return interrupted(0)
				}
				failed++
				warn(i, domain.ErrCodeGeocodeFailed, err)
				continue
			}
			resolved++
			mds[i] = mds[i].WithLocationName(res.Name)
		}
	}
	obs.OnPhaseDone("resolve", map[string]any{
		"resolved": resolved,
		"failed":   failed,
	}, time.Since(started))

	// rename
	started = time.Now()
	pl := planner.New()
	for i, f := range files {
		if ctx.Err() != nil {
			return interrupted(i)
		}
		oneStarted := time.Now()
		md := mds[i]
		it := &items[i]
		describe(it, md)

		name := naming.BuildFilename(md.LocationName, md.CaptureTime(), f.Base, f.Ext)
		dst, err := pl.Target(f.AbsPath, name)
		switch {
		case err != nil:
			it.Status = domain.StatusFailed
			it.ErrorCode = domain.ErrCodeRenameFailed
			it.ErrorMsg = fmt.Sprintf("读取目录失败：%v", err)
		case dst == f.AbsPath:
			it.Dst = dst
			it.Status = domain.StatusUnchanged
		case eff.DryRun:
			it.Dst = dst
			it.Status = domain.StatusPlanned
			pl.Commit(f.AbsPath, dst)
		default:
			it.Dst = dst
			if err := rename(f.AbsPath, dst); err != nil {
				fillRenameError(it, err)
				break
			}
			it.Status = domain.StatusRenamed
			pl.Commit(f.AbsPath, dst)
		}
		obs.OnFileDone(i+1, len(files), *it, time.Since(oneStarted))
	}

	var renamed int
	for i := range items {
		if items[i].Status == domain.StatusRenamed || items[i].Status == domain.StatusPlanned {
			renamed++
		}
	}
	obs.OnPhaseDone("rename", map[string]any{
		"renamed": renamed,
		"dry_run": eff.DryRun,
	}, time.Since(started))

	collect()
	return finish(nil)
}

// describe 把最终元数据写进条目，便于 report 追溯命名依据。
func describe(it *domain.ItemResult, md domain.FileMetadata) {
	it.CaptureTime = md.CaptureTime().Format(time.RFC3339)
	it.LocationName = md.LocationName
	if md.Coords != nil {
		c := *md.Coords
		it.Coords = &c
		it.CoordsSource = domain.CoordsSourceGPS
		if md.CoordsFrom != "" {
			it.CoordsSource = domain.CoordsSourceBorrowed
			it.BorrowedFrom = md.CoordsFrom
		}
	}
}

func traceGeocode(it *domain.ItemResult, res geoname.Result) {
	it.ProviderUsed = res.Provider
	it.GeocodeCached = res.Cached
	it.Attempts = nil
	for _, a := range res.Attempts {
		it.Attempts = append(it.Attempts, a.String())
	}
}

func fillRenameError(it *domain.ItemResult, err error) {
	it.Status = domain.StatusFailed
	it.ErrorMsg = err.Error()

	var te *fsx.TargetExistsError
	switch {
	case errors.As(err, &te):
		it.ErrorCode = domain.ErrCodeTargetExists
	case fsx.IsCrossDevice(err):
		it.ErrorCode = domain.ErrCodeCrossDevice
	default:
		it.ErrorCode = domain.ErrCodeRenameFailed
	}
}
