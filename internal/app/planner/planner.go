package planner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/mediarename/internal/naming"
)

// Planner 为一批改名分配不冲突的目标路径（只做 ReadDir，不做任何写入/移动）。
//
// 每个目录的占用情况只读取一次，之后由 Commit 维护：
// 改名后旧名字被释放、新名字被占用。dry-run 与真实执行因此得到相同的计划。
type Planner struct {
	dirs map[string]map[string]struct{}
}

func New() *Planner {
	return &Planner{dirs: map[string]map[string]struct{}{}}
}

// Target 为 src 选出目标路径。name 是合成出的目标文件名（不含目录）。
// 返回值等于 src 表示无需改名。
func (p *Planner) Target(src, name string) (string, error) {
	dir := filepath.Dir(src)
	used, err := p.state(dir)
	if err != nil {
		return "", err
	}
	dst := allocName(name, filepath.Base(src), used)
	return filepath.Join(dir, dst), nil
}

// Commit 记录一次（真实或计划中的）改名。
func (p *Planner) Commit(src, dst string) {
	if src == dst {
		return
	}
	if used, err := p.state(filepath.Dir(src)); err == nil {
		delete(used, filepath.Base(src))
	}
	if used, err := p.state(filepath.Dir(dst)); err == nil {
		used[filepath.Base(dst)] = struct{}{}
	}
}

func (p *Planner) state(dir string) (map[string]struct{}, error) {
	if used, ok := p.dirs[dir]; ok {
		return used, nil
	}
	used, err := ReadDirNames(dir)
	if err != nil {
		return nil, err
	}
	p.dirs[dir] = used
	return used, nil
}

// ReadDirNames 读取目录下已有的名字。目录不存在时返回空集合且不报错。
func ReadDirNames(dir string) (map[string]struct{}, error) {
	used := map[string]struct{}{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return used, nil
		}
		return nil, err
	}
	for _, e := range entries {
		used[e.Name()] = struct{}{}
	}
	return used, nil
}

// allocName 在 used 中为 name 找一个空位：先试原名，再试 {base}_001{ext}、{base}_002{ext}…
// own 是文件当前的名字，对它自己永远可用。
func allocName(name, own string, used map[string]struct{}) string {
	if free(name, own, used) {
		return name
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	for n := 1; ; n++ {
		suffix := fmt.Sprintf("_%03d", n)
		b := base
		if over := len(b) + len(suffix) + len(ext) - naming.MaxFilenameLen; over > 0 && over < len(b) {
			b = strings.TrimRight(b[:len(b)-over], "_")
		}
		cand := b + suffix + ext
		if free(cand, own, used) {
			return cand
		}
	}
}

func free(name, own string, used map[string]struct{}) bool {
	if name == own {
		return true
	}
	_, taken := used[name]
	return !taken
}
