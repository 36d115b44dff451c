package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// ErrCodeNotFound 表示命令行没有给出输入，且 cwd 下也没有 mediarename.json。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件/环境变量无法解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	// FileName 是 cwd 下的可选配置文件名。
	FileName = "mediarename.json"
	// EnvPrefix 是环境变量覆盖项的统一前缀。
	EnvPrefix = "MEDIARENAME_"

	DefaultProvider       = "nominatim"
	DefaultLanguage       = "en"
	DefaultGeocodeDelay   = time.Second
	DefaultGeocodeTimeout = 10 * time.Second
	DefaultProbeTimeout   = 30 * time.Second
)

// KnownProviders 是 provider 字段允许的取值。
var KnownProviders = []string{"nominatim", "photon"}

// lookupEnv 在测试中可替换。
var lookupEnv = os.LookupEnv

// CLIArgs 只包含 CLI 暴露的入口，并保留“是否显式指定”的信息，
// 这样 --dry-run=false 才能覆盖配置里的 dry_run=true。
type CLIArgs struct {
	Inputs []string

	DryRun    bool
	DryRunSet bool

	Provider    string
	ProviderSet bool

	Report    bool
	ReportSet bool

	Verbose    bool
	VerboseSet bool
}

// FileConfig 对应 mediarename.json 的解析结构。时长字段使用 time.ParseDuration 语法。
type FileConfig struct {
	Inputs           []string     `json:"inputs"`
	Provider         string       `json:"provider"`
	Language         string       `json:"language"`
	UserAgent        string       `json:"user_agent"`
	DryRun           *bool        `json:"dry_run"`
	GeocodeTimeout   string       `json:"geocode_timeout"`
	GeocodeDelay     string       `json:"geocode_delay"`
	ProbeTimeout     string       `json:"probe_timeout"`
	FFprobePath      string       `json:"ffprobe_path"`
	Proxy            *ProxyConfig `json:"proxy"`
	NominatimBaseURL string       `json:"nominatim_base_url"`
	PhotonBaseURL    string       `json:"photon_base_url"`
	CacheDir         string       `json:"cache_dir"`
	NoCache          bool         `json:"no_cache"`
	ExcludeDirs      []string     `json:"exclude_dirs"`
	Report           *bool        `json:"report"`
	Verbose          *bool        `json:"verbose"`
}

type ProxyConfig struct {
	URL string `json:"url"`
}

// EffectiveConfig 是合并并规范化后的最终配置，实现层直接消费。
type EffectiveConfig struct {
	// Inputs 为绝对路径，顺序与输入一致。
	Inputs []string

	DryRun   bool
	Provider string
	Language string
	Report   bool
	Verbose  bool

	UserAgent      string
	ProxyURL       string
	GeocodeTimeout time.Duration
	GeocodeDelay   time.Duration

	FFprobePath  string
	ProbeTimeout time.Duration

	NominatimBaseURL string
	PhotonBaseURL    string

	// CacheDir 为空表示禁用磁盘缓存。
	CacheDir    string
	ExcludeDirs []string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未指定输入，且未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 读取 <cwd>/mediarename.json（可选）与 <cwd>/.env（可选），
// 然后与进程环境变量、CLI 参数合并为最终配置。
//
// 覆盖优先级（固定）：CLI > 进程环境变量 > .env > 配置文件 > 默认值。
// 输入路径：CLI 给出时只用 CLI；否则使用配置文件的 inputs，此时配置文件必须存在。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	cfgPath := filepath.Join(cwdAbs, FileName)
	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if len(cli.Inputs) == 0 && !exists {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}

	envPath := filepath.Join(cwdAbs, ".env")
	dotenv, err := readDotenv(envPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: envPath, Err: err}
	}
	env := envSource{dotenv: dotenv}
	if err := env.apply(&fc); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: EnvPrefix + "*", Err: err}
	}

	inputs := cli.Inputs
	if len(inputs) == 0 {
		inputs = fc.Inputs
	}
	return merge(cwdAbs, inputs, cli, fc, cfgPath)
}

func merge(cwdAbs string, inputs []string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(err error) (EffectiveConfig, error) {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	eff := EffectiveConfig{
		Provider:     DefaultProvider,
		Language:     DefaultLanguage,
		GeocodeDelay: DefaultGeocodeDelay,
		ProbeTimeout: DefaultProbeTimeout,
	}

	for _, in := range inputs {
		if p := absCleanFrom(cwdAbs, in); p != "" {
			eff.Inputs = append(eff.Inputs, p)
		}
	}

	// provider：CLI > config > 默认
	if cli.ProviderSet {
		eff.Provider = cli.Provider
	} else if strings.TrimSpace(fc.Provider) != "" {
		eff.Provider = fc.Provider
	}
	eff.Provider = strings.ToLower(strings.TrimSpace(eff.Provider))
	if err := validateProvider(eff.Provider); err != nil {
		return invalid(err)
	}

	eff.DryRun = pickBool(cli.DryRunSet, cli.DryRun, fc.DryRun)
	eff.Report = pickBool(cli.ReportSet, cli.Report, fc.Report)
	eff.Verbose = pickBool(cli.VerboseSet, cli.Verbose, fc.Verbose)

	if lang := strings.TrimSpace(fc.Language); lang != "" {
		eff.Language = lang
	}
	eff.UserAgent = strings.TrimSpace(fc.UserAgent)
	eff.FFprobePath = strings.TrimSpace(fc.FFprobePath)

	var err error
	if eff.GeocodeTimeout, err = parseDuration("geocode_timeout", fc.GeocodeTimeout, DefaultGeocodeTimeout); err != nil {
		return invalid(err)
	}
	if eff.GeocodeDelay, err = parseDuration("geocode_delay", fc.GeocodeDelay, DefaultGeocodeDelay); err != nil {
		return invalid(err)
	}
	if eff.ProbeTimeout, err = parseDuration("probe_timeout", fc.ProbeTimeout, DefaultProbeTimeout); err != nil {
		return invalid(err)
	}

	if fc.Proxy != nil {
		eff.ProxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if eff.ProxyURL != "" {
		if _, err := url.Parse(eff.ProxyURL); err != nil {
			return invalid(fmt.Errorf("proxy.url 无效：%w", err))
		}
	}

	if eff.NominatimBaseURL, err = parseBaseURL("nominatim_base_url", fc.NominatimBaseURL); err != nil {
		return invalid(err)
	}
	if eff.PhotonBaseURL, err = parseBaseURL("photon_base_url", fc.PhotonBaseURL); err != nil {
		return invalid(err)
	}

	if !fc.NoCache {
		dir := strings.TrimSpace(fc.CacheDir)
		if dir == "" {
			if base, err := os.UserCacheDir(); err == nil {
				dir = filepath.Join(base, "mediarename")
			}
		}
		eff.CacheDir = absCleanFrom(cwdAbs, dir)
	}

	eff.ExcludeDirs = append([]string(nil), fc.ExcludeDirs...)
	return eff, nil
}

func pickBool(cliSet, cliVal bool, fileVal *bool) bool {
	if cliSet {
		return cliVal
	}
	if fileVal != nil {
		return *fileVal
	}
	return false
}

func validateProvider(p string) error {
	if p == "" {
		return fmt.Errorf("provider 不能为空")
	}
	for _, k := range KnownProviders {
		if p == k {
			return nil
		}
	}
	return fmt.Errorf("provider 只能是 %s，实际是 %q", strings.Join(KnownProviders, " 或 "), p)
}

func parseDuration(field, s string, def time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s 无效：%w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s 不能为负：%q", field, s)
	}
	return d, nil
}

func parseBaseURL(field, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%s 无效：%q", field, s)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%s 必须是 http/https：%q", field, s)
	}
	return strings.TrimRight(s, "/"), nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}

// readDotenv 读取 .env 但不修改进程环境；文件不存在时返回空表。
func readDotenv(path string) (map[string]string, error) {
	m, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	return m, nil
}

// envSource 按“进程环境 > .env”查找 MEDIARENAME_* 变量。
type envSource struct {
	dotenv map[string]string
}

func (s envSource) get(name string) (string, bool) {
	key := EnvPrefix + name
	if v, ok := lookupEnv(key); ok {
		return v, true
	}
	v, ok := s.dotenv[key]
	return v, ok
}

// apply 把环境变量覆盖写回 fc，之后统一走 merge 的校验。
func (s envSource) apply(fc *FileConfig) error {
	strs := []struct {
		name string
		dst  *string
	}{
		{"PROVIDER", &fc.Provider},
		{"LANGUAGE", &fc.Language},
		{"USER_AGENT", &fc.UserAgent},
		{"GEOCODE_TIMEOUT", &fc.GeocodeTimeout},
		{"GEOCODE_DELAY", &fc.GeocodeDelay},
		{"PROBE_TIMEOUT", &fc.ProbeTimeout},
		{"FFPROBE_PATH", &fc.FFprobePath},
		{"NOMINATIM_BASE_URL", &fc.NominatimBaseURL},
		{"PHOTON_BASE_URL", &fc.PhotonBaseURL},
		{"CACHE_DIR", &fc.CacheDir},
	}
	for _, e := range strs {
		if v, ok := s.get(e.name); ok {
			*e.dst = v
		}
	}

	if v, ok := s.get("PROXY_URL"); ok {
		fc.Proxy = &ProxyConfig{URL: v}
	}

	if v, ok := s.get("NO_CACHE"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sNO_CACHE 无效：%q", EnvPrefix, v)
		}
		fc.NoCache = b
	}

	bools := []struct {
		name string
		dst  **bool
	}{
		{"DRY_RUN", &fc.DryRun},
		{"REPORT", &fc.Report},
		{"VERBOSE", &fc.Verbose},
	}
	for _, e := range bools {
		v, ok := s.get(e.name)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s 无效：%q", EnvPrefix, e.name, v)
		}
		*e.dst = &b
	}
	return nil
}
