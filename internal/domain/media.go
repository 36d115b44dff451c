package domain

import "time"

// MediaKind 是按扩展名分出的文件类别。
type MediaKind string

const (
	KindPhoto MediaKind = "photo"
	KindVideo MediaKind = "video"
)

// MediaFile 描述一次扫描得到的输入文件（只做 stat，不读内容）。
//
// 不变量：
// - AbsPath 必须是 clean + absolute
// - Ext 保留原始大小写（".JPG" 不会被改写）
type MediaFile struct {
	AbsPath string
	Base    string // filename without ext
	Ext     string
	Kind    MediaKind
	Size    int64
	ModTime time.Time
}

// Coords 是 WGS84 十进制度坐标。
type Coords struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// FileMetadata 是单个文件在一次运行中累积的元数据。
//
// 各阶段只通过 With* 产生新值，不原地修改已有记录。
type FileMetadata struct {
	Path    string
	Kind    MediaKind
	ModTime time.Time

	CreationDate *time.Time
	Coords       *Coords
	LocationName string

	// CoordsFrom 非空表示坐标是从同批次另一个文件借来的（值为来源路径）。
	CoordsFrom string
}

func (m FileMetadata) Located() bool { return m.Coords != nil }

// CaptureTime 优先使用拍摄时间，缺失时回退到修改时间。
func (m FileMetadata) CaptureTime() time.Time {
	if m.CreationDate != nil {
		return *m.CreationDate
	}
	return m.ModTime
}

func (m FileMetadata) WithCoords(c Coords, from string) FileMetadata {
	m.Coords = &c
	m.CoordsFrom = from
	return m
}

func (m FileMetadata) WithLocationName(name string) FileMetadata {
	m.LocationName = name
	return m
}

// Address 是反向地理编码返回的地址字段（键名沿用 Nominatim addressdetails 的命名）。
type Address map[string]string
