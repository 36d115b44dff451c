package scan

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/mediarename/internal/domain"
)

// Rejected 是一个无法进入批处理的输入（不存在、类型不支持等）。
type Rejected struct {
	Path string
	Code string // domain.ErrCode*
	Msg  string
}

var kinds = map[string]domain.MediaKind{
	".jpg":  domain.KindPhoto,
	".jpeg": domain.KindPhoto,
	".png":  domain.KindPhoto,
	".tiff": domain.KindPhoto,
	".tif":  domain.KindPhoto,
	".heic": domain.KindPhoto,
	".mp4":  domain.KindVideo,
	".mov":  domain.KindVideo,
	".avi":  domain.KindVideo,
	".mkv":  domain.KindVideo,
	".m4v":  domain.KindVideo,
	".3gp":  domain.KindVideo,
}

// KindOf 按扩展名（大小写不敏感）判断文件类别。
func KindOf(ext string) (domain.MediaKind, bool) {
	k, ok := kinds[strings.ToLower(ext)]
	return k, ok
}

// Inputs 把命令行参数展开为待处理文件。
//
// 规则：
// - 文件参数按给出的顺序保留；类型不支持的显式文件记为 Rejected
// - 目录参数递归扫描，跳过隐藏目录/隐藏文件与 excludeDirs；目录内按路径字典序
// - 同一文件出现多次只保留第一次
//
// 注意：扫描阶段只做 stat，不读文件内容。
func Inputs(args []string, excludeDirs []string) ([]domain.MediaFile, []Rejected) {
	files := make([]domain.MediaFile, 0, len(args))
	var rejected []Rejected
	seen := make(map[string]struct{}, len(args))

	add := func(f domain.MediaFile) {
		if _, ok := seen[f.AbsPath]; ok {
			return
		}
		seen[f.AbsPath] = struct{}{}
		files = append(files, f)
	}

	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			rejected = append(rejected, Rejected{Path: arg, Code: domain.ErrCodeNotFound, Msg: err.Error()})
			continue
		}
		abs = filepath.Clean(abs)

		fi, err := os.Stat(abs)
		if err != nil {
			msg := "文件不存在"
			if !errors.Is(err, fs.ErrNotExist) {
				msg = err.Error()
			}
			rejected = append(rejected, Rejected{Path: abs, Code: domain.ErrCodeNotFound, Msg: msg})
			continue
		}

		if fi.IsDir() {
			found, rej := walk(abs, excludeDirs)
			for _, f := range found {
				add(f)
			}
			rejected = append(rejected, rej...)
			continue
		}

		f, ok := mediaFile(abs, fi)
		if !ok {
			rejected = append(rejected, Rejected{Path: abs, Code: domain.ErrCodeUnsupportedType, Msg: "不支持的文件类型：" + filepath.Ext(abs)})
			continue
		}
		add(f)
	}
	return files, rejected
}

func walk(root string, excludeDirs []string) ([]domain.MediaFile, []Rejected) {
	excluded := buildExcluded(root, excludeDirs)

	var (
		files    []domain.MediaFile
		rejected []Rejected
	)
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// 读不了的子目录不影响其它文件。
			rejected = append(rejected, Rejected{Path: path, Code: domain.ErrCodeScanFailed, Msg: walkErr.Error()})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if path != root && (isHidden(d.Name()) || isExcluded(path, excluded)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			rejected = append(rejected, Rejected{Path: path, Code: domain.ErrCodeScanFailed, Msg: err.Error()})
			return nil
		}
		// 目录里的非媒体文件直接忽略，不记 Rejected。
		if f, ok := mediaFile(path, info); ok {
			files = append(files, f)
		}
		return nil
	})

	// 强制稳定输出，避免不同平台/文件系统行为差异带来的不确定性。
	sort.SliceStable(files, func(i, j int) bool { return files[i].AbsPath < files[j].AbsPath })
	return files, rejected
}

func mediaFile(abs string, fi fs.FileInfo) (domain.MediaFile, bool) {
	if !fi.Mode().IsRegular() {
		return domain.MediaFile{}, false
	}
	name := filepath.Base(abs)
	ext := filepath.Ext(name)
	kind, ok := KindOf(ext)
	if !ok {
		return domain.MediaFile{}, false
	}
	return domain.MediaFile{
		AbsPath: abs,
		Base:    strings.TrimSuffix(name, ext),
		Ext:     ext,
		Kind:    kind,
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
	}, true
}

func isHidden(name string) bool { return strings.HasPrefix(name, ".") }

func buildExcluded(root string, excludeDirs []string) []string {
	excluded := make([]string, 0, len(excludeDirs))
	for _, x := range excludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		if filepath.IsAbs(x) {
			excluded = append(excluded, filepath.Clean(x))
			continue
		}
		// x 是相对路径：相对扫描的目录。
		excluded = append(excluded, filepath.Clean(filepath.Join(root, x)))
	}
	sort.Strings(excluded)
	return excluded
}

func isExcluded(path string, excluded []string) bool {
	path = filepath.Clean(path)
	for _, base := range excluded {
		if isUnder(path, base) {
			return true
		}
	}
	return false
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, base+sep)
}
