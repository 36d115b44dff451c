package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusRenamed   = "renamed"
	StatusPlanned   = "planned"
	StatusUnchanged = "unchanged"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

const (
	CoordsSourceGPS      = "gps"
	CoordsSourceBorrowed = "borrowed"
)

const (
	ErrCodeNotFound        = "not_found"
	ErrCodeUnsupportedType = "unsupported_type"
	ErrCodeExtractFailed   = "extract_failed"
	ErrCodeScanFailed      = "scan_failed"
	ErrCodeGeocodeFailed   = "geocode_failed"
	ErrCodeTargetExists    = "target_exists"
	ErrCodeRenameFailed    = "rename_failed"
	ErrCodeCrossDevice     = "cross_device"
	ErrCodeInterrupted     = "interrupted"
	ErrCodeConfigNotFound  = "config_not_found"
	ErrCodeConfigInvalid   = "config_invalid"
)

// RunReport 是对外稳定输出（report 文件 / stdout JSON）的结构。
type RunReport struct {
	RunID    string `json:"run_id"`
	DryRun   bool   `json:"dry_run"`
	Provider string `json:"provider"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Renamed   int `json:"renamed"`
	Planned   int `json:"planned"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

type ItemResult struct {
	Src    string `json:"src"`
	Dst    string `json:"dst"`
	Status string `json:"status"`

	CaptureTime  string  `json:"capture_time,omitempty"`
	LocationName string  `json:"location_name,omitempty"`
	Coords       *Coords `json:"coords,omitempty"`
	CoordsSource string  `json:"coords_source,omitempty"`
	BorrowedFrom string  `json:"borrowed_from,omitempty"`

	// 反向地理编码的来源；没有坐标或未查询时为空。
	ProviderUsed  string   `json:"provider_used,omitempty"`
	GeocodeCached bool     `json:"geocode_cached,omitempty"`
	Attempts      []string `json:"attempts,omitempty"`

	Warnings  []string `json:"warnings,omitempty"`
	ErrorCode string   `json:"error_code"`
	ErrorMsg  string   `json:"error_msg"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：保持输入顺序，没有 dst 的条目（被跳过的输入）排在最后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		return r.Items[i].Dst != "" && r.Items[j].Dst == ""
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusRenamed:
			s.Renamed++
		case StatusPlanned:
			s.Planned++
		case StatusUnchanged:
			s.Unchanged++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
	}
	r.Summary = s
}

// MarshalJSON 集中约束输出的稳定性：items 为空时输出 [] 而不是 null。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	if r.Items == nil {
		r.Items = []ItemResult{}
	}
	return json.Marshal(Alias(r))
}
