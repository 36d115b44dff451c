package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/John-Robertt/mediarename/internal/domain"
	"github.com/John-Robertt/mediarename/internal/infra/fsx"
)

// Store 提供反向地理编码结果的文件缓存。
//
// 约束：
// - Dir 为空：缓存关闭，读总是未命中，写直接忽略
// - dry-run：只允许读（ReadOnly=true）
// - 坐标按 5 位小数（约 1 米）归一，作为缓存键
type Store struct {
	Dir      string
	ReadOnly bool
}

var ErrReadOnly = errors.New("cache: read-only")

// Entry 是一条缓存记录。
type Entry struct {
	Provider  string         `json:"provider"`
	Address   domain.Address `json:"address"`
	FetchedAt time.Time      `json:"fetched_at"`
}

func New(dir string, readOnly bool) Store {
	dir = strings.TrimSpace(dir)
	if dir != "" {
		dir = filepath.Clean(dir)
	}
	return Store{Dir: dir, ReadOnly: readOnly}
}

func (s Store) Enabled() bool { return s.Dir != "" }

// Key 把坐标归一为文件名安全的键，例如 "+37.77490-122.41940"。
func Key(c domain.Coords) string {
	return fmt.Sprintf("%+.5f%+.5f", noNegZero(c.Lat), noNegZero(c.Lon))
}

func noNegZero(v float64) float64 {
	if v == 0 {
		return 0
	}
	return v
}

// GeocodePath 返回地址缓存的绝对路径。
func (s Store) GeocodePath(c domain.Coords) string {
	return filepath.Join(s.Dir, "geocode", Key(c)+".json")
}

// ProviderBodyPath 返回 provider 原始响应的缓存路径（只用于排查问题，不参与读取）。
func (s Store) ProviderBodyPath(provider string, c domain.Coords) (string, error) {
	p, err := cleanProvider(provider)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Dir, "providers", p, Key(c)+".body"), nil
}

// ReadGeocode 读取缓存；损坏的记录视为未命中并返回错误，让上层记 warning 后重新查询。
func (s Store) ReadGeocode(c domain.Coords) (Entry, bool, error) {
	if !s.Enabled() {
		return Entry{}, false, nil
	}
	b, err := os.ReadFile(s.GeocodePath(c))
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return Entry{}, false, fmt.Errorf("缓存损坏 %s：%w", s.GeocodePath(c), err)
	}
	if len(e.Address) == 0 {
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (s Store) WriteGeocode(c domain.Coords, e Entry) error {
	if !s.Enabled() {
		return nil
	}
	if s.ReadOnly {
		return ErrReadOnly
	}
	b, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(filepath.Join(s.Dir, "geocode"), Key(c)+".json", append(b, '\n'))
}

func (s Store) WriteProviderBody(provider string, c domain.Coords, body []byte) error {
	if !s.Enabled() {
		return nil
	}
	if s.ReadOnly {
		return ErrReadOnly
	}
	path, err := s.ProviderBodyPath(provider, c)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(filepath.Dir(path), filepath.Base(path), body)
}

var providerNameRE = regexp.MustCompile(`^[a-z0-9_]+$`)

func cleanProvider(p string) (string, error) {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return "", fmt.Errorf("provider 不能为空")
	}
	// 只防路径穿越；provider 名称本身是枚举。
	if !providerNameRE.MatchString(p) {
		return "", fmt.Errorf("非法 provider：%q", p)
	}
	return p, nil
}
