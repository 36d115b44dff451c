package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/John-Robertt/mediarename/internal/app/run"
	"github.com/John-Robertt/mediarename/internal/config"
	"github.com/John-Robertt/mediarename/internal/domain"
	"github.com/John-Robertt/mediarename/internal/infra/fsx"
	"github.com/John-Robertt/mediarename/internal/logx"
	"github.com/John-Robertt/mediarename/internal/provider"
	"github.com/John-Robertt/mediarename/internal/provider/nominatim"
	"github.com/John-Robertt/mediarename/internal/provider/photon"
)

const version = "1.0.1"

// reportDir 是 --report 写入的位置（相对第一个输入所在目录）。
const reportDir = ".mediarename"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:])
	stop()
	if code != 0 {
		os.Exit(code)
	}
}

func runMain(ctx context.Context, args []string) int {
	ca, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printUsage(os.Stderr)
		return 2
	}
	if ca.Help {
		printUsage(os.Stdout)
		return 0
	}
	if ca.Version {
		fmt.Fprintf(os.Stdout, "mediarename %s\n", version)
		return 0
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}

	eff, err := config.LoadEffective(cwd, ca.CLIArgs)
	if err != nil {
		emitReport(reportForError(ca, config.Code(err), err))
		return 1
	}

	logger := logx.New(os.Stderr, eff.Verbose)
	defer func() { _ = logger.Sync() }()

	reg, err := provider.NewRegistry(
		nominatim.Provider{BaseURL: eff.NominatimBaseURL, Language: eff.Language},
		photon.Provider{BaseURL: eff.PhotonBaseURL, Language: eff.Language},
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化 provider registry 失败：%v\n", err)
		return 1
	}

	var obs run.Observer = logObserver{logger: logger}
	if w, interactive := pickProgressWriter(); interactive {
		ui := newProgressUI(w, logger)
		defer ui.Close()
		obs = ui
	}

	rr, err := run.Execute(ctx, eff, reg, logger, obs)
	if rr.RunID == "" {
		// 组装依赖阶段就失败了，没有任何条目。
		emitReport(reportForError(ca, config.Code(err), err))
		return 1
	}

	code := 0
	switch {
	case errors.Is(err, run.ErrNoInput):
		fmt.Fprintln(os.Stderr, "错误：没有找到可处理的文件。")
		code = 1
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, "\n操作已被用户取消。")
		code = 1
	case err != nil:
		fmt.Fprintf(os.Stderr, "错误：%v\n", err)
		code = 1
	}

	// --report：写入 <第一个输入所在目录>/.mediarename/report.json；dry-run 禁止落盘。
	if eff.Report && len(eff.Inputs) > 0 {
		if eff.DryRun {
			fmt.Fprintln(os.Stderr, "dry-run：不写入 report 文件")
		} else if err := writeReportFile(reportRoot(eff.Inputs[0]), rr); err != nil {
			fmt.Fprintf(os.Stderr, "写入 report.json 失败：%v\n", err)
			code = 1
		}
	}

	emitReport(rr)
	return code
}

type cliArgs struct {
	config.CLIArgs

	Help    bool
	Version bool
}

func parseArgs(args []string) (cliArgs, error) {
	var ca cliArgs
	flagsDone := false

	for i := 0; i < len(args); i++ {
		a := args[i]
		if flagsDone || !strings.HasPrefix(a, "-") || a == "-" {
			ca.Inputs = append(ca.Inputs, a)
			continue
		}

		name, val, hasVal := strings.Cut(a, "=")
		switch name {
		case "--":
			flagsDone = true
		case "-h", "--help":
			ca.Help = true
		case "--version":
			ca.Version = true
		case "--provider":
			if !hasVal {
				if i+1 >= len(args) {
					return cliArgs{}, fmt.Errorf("--provider 需要一个值")
				}
				i++
				val = args[i]
			}
			val = strings.ToLower(strings.TrimSpace(val))
			if !knownProvider(val) {
				return cliArgs{}, fmt.Errorf("--provider 只能是 %s，实际是 %q", strings.Join(config.KnownProviders, " 或 "), val)
			}
			ca.Provider, ca.ProviderSet = val, true
		case "--dry-run", "-n":
			b, err := boolFlag(name, val, hasVal)
			if err != nil {
				return cliArgs{}, err
			}
			ca.DryRun, ca.DryRunSet = b, true
		case "--report":
			b, err := boolFlag(name, val, hasVal)
			if err != nil {
				return cliArgs{}, err
			}
			ca.Report, ca.ReportSet = b, true
		case "--verbose", "-v":
			b, err := boolFlag(name, val, hasVal)
			if err != nil {
				return cliArgs{}, err
			}
			ca.Verbose, ca.VerboseSet = b, true
		default:
			return cliArgs{}, fmt.Errorf("未知参数 %q", a)
		}
	}
	return ca, nil
}

func boolFlag(name, val string, hasVal bool) (bool, error) {
	if !hasVal {
		return true, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("%s 只能是 true 或 false，实际是 %q", name, val)
	}
	return b, nil
}

func knownProvider(p string) bool {
	for _, k := range config.KnownProviders {
		if p == k {
			return true
		}
	}
	return false
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `用法：
  mediarename [--dry-run] [--provider nominatim|photon] [--report] [-v] <file|dir>...

按拍摄地点与时间重命名照片/视频：
  {place}_{city}_{state}_{country}_{YYYYMMDD_HHMMSS}_{原文件名}{扩展名}

参数：
  -n, --dry-run  只计算并输出目标文件名，不改名、不写缓存
  --provider     首选反向地理编码服务：nominatim|photon（失败时自动换另一个）
  --report       改名后写入 <第一个输入所在目录>/.mediarename/report.json
  -v, --verbose  输出调试日志
  --version      显示版本
  -h, --help     显示帮助

不给输入时读取当前目录下 mediarename.json 的 inputs 字段。
支持的格式：照片 JPG PNG HEIC TIFF；视频 MP4 MOV AVI MKV M4V 3GP
`)
}

func emitReport(rr domain.RunReport) {
	summary := fmt.Sprintf("完成：renamed=%d planned=%d unchanged=%d skipped=%d failed=%d",
		rr.Summary.Renamed, rr.Summary.Planned, rr.Summary.Unchanged, rr.Summary.Skipped, rr.Summary.Failed,
	)

	if isTTY(os.Stdout) {
		fmt.Fprintln(os.Stdout, summary)
		for _, it := range rr.Items {
			if it.Status != domain.StatusFailed {
				continue
			}
			key := it.Src
			if key == "" {
				key = "<unknown>"
			}
			fmt.Fprintf(os.Stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(os.Stderr, summary)
}

func reportForError(ca cliArgs, code string, err error) domain.RunReport {
	if code == "" {
		code = domain.ErrCodeConfigInvalid
	}
	now := time.Now().UTC()
	rr := domain.RunReport{
		DryRun:     ca.DryRunSet && ca.DryRun,
		Provider:   ca.Provider,
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			Status:    domain.StatusFailed,
			ErrorCode: code,
			ErrorMsg:  err.Error(),
		}},
	}
	rr.Finalize()
	return rr
}

// reportRoot 返回输入 p 所在的目录；p 本身是目录时返回 p。
func reportRoot(p string) string {
	if fi, err := os.Stat(p); err == nil && fi.IsDir() {
		return p
	}
	return filepath.Dir(p)
}

func writeReportFile(root string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomic(filepath.Join(root, reportDir), "report.json", b)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}
