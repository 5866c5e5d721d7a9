// Package dataset 定义数据集引用 (Dataset Reference)
// 引用是不可变的值对象：只能通过 New / Parse 构造，构造时完成校验。
package dataset

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"climdash/pkg/types"
)

var (
	ErrInvalidRef  = errors.New("invalid dataset reference")
	ErrInvalidPath = errors.New("invalid dataset path")
)

var (
	segmentRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	horizonRe = regexp.MustCompile(`^(\d{4})-(\d{4})$`)
)

// Ref 标识一个气候数据集：项目 + 视图 + 变量/指数 + 排放情景 + 时空范围
type Ref struct {
	project  string
	view     types.View
	varIdx   string
	scenario string
	horizon  string // 时间范围 "1981-2010"，可选
	region   string // 空间范围 (区域代码)，可选
	stat     string // 统计量 (mean, c10, ...)，可选
	delta    bool
	format   types.Format
}

// Options 是引用的可选维度
type Options struct {
	Horizon string
	Region  string
	Stat    string
	Delta   bool
	Format  types.Format // 默认 csv
}

// New 构造并校验一个 Ref
func New(project string, view types.View, varIdx, scenario string, opts Options) (Ref, error) {
	r := Ref{
		project:  project,
		view:     view,
		varIdx:   varIdx,
		scenario: scenario,
		horizon:  opts.Horizon,
		region:   opts.Region,
		stat:     opts.Stat,
		delta:    opts.Delta,
		format:   opts.Format,
	}
	if r.format == "" {
		r.format = types.FormatCSV
	}
	if err := r.validate(); err != nil {
		return Ref{}, err
	}
	return r, nil
}

// Parse 解析 "project/view/varidx/scenario[/horizon]" 形式的字符串
// 其余维度通过 opts 传入。路径中的 horizon 与 opts.Horizon 冲突时报错。
func Parse(s string, opts Options) (Ref, error) {
	parts := strings.Split(strings.Trim(s, "/"), "/")
	if len(parts) != 4 && len(parts) != 5 {
		return Ref{}, fmt.Errorf("%w: %q: expected project/view/varidx/scenario[/horizon]", ErrInvalidRef, s)
	}
	if len(parts) == 5 {
		if opts.Horizon != "" && opts.Horizon != parts[4] {
			return Ref{}, fmt.Errorf("%w: horizon given twice (%q and %q)", ErrInvalidRef, parts[4], opts.Horizon)
		}
		opts.Horizon = parts[4]
	}
	return New(parts[0], types.View(parts[1]), parts[2], parts[3], opts)
}

func (r Ref) validate() error {
	required := []struct{ name, val string }{
		{"project", r.project},
		{"varidx", r.varIdx},
		{"scenario", r.scenario},
	}
	for _, f := range required {
		if !segmentRe.MatchString(f.val) {
			return fmt.Errorf("%w: bad %s %q", ErrInvalidRef, f.name, f.val)
		}
	}
	if !r.view.IsValid() {
		return fmt.Errorf("%w: unknown view %q", ErrInvalidRef, r.view)
	}
	if !r.format.IsValid() {
		return fmt.Errorf("%w: unknown format %q", ErrInvalidRef, r.format)
	}

	optional := []struct{ name, val string }{
		{"region", r.region},
		{"stat", r.stat},
	}
	for _, f := range optional {
		if f.val != "" && !segmentRe.MatchString(f.val) {
			return fmt.Errorf("%w: bad %s %q", ErrInvalidRef, f.name, f.val)
		}
	}

	if r.horizon != "" {
		m := horizonRe.FindStringSubmatch(r.horizon)
		if m == nil {
			return fmt.Errorf("%w: horizon %q must look like YYYY-YYYY", ErrInvalidRef, r.horizon)
		}
		start, _ := strconv.Atoi(m[1])
		end, _ := strconv.Atoi(m[2])
		if start > end {
			return fmt.Errorf("%w: horizon %q ends before it starts", ErrInvalidRef, r.horizon)
		}
	}
	return nil
}

func (r Ref) Project() string      { return r.project }
func (r Ref) View() types.View     { return r.view }
func (r Ref) VarIdx() string       { return r.varIdx }
func (r Ref) Scenario() string     { return r.scenario }
func (r Ref) Horizon() string      { return r.horizon }
func (r Ref) Region() string       { return r.region }
func (r Ref) Stat() string         { return r.stat }
func (r Ref) Delta() bool          { return r.delta }
func (r Ref) Format() types.Format { return r.format }
func (r Ref) IsZero() bool         { return r.project == "" }

// Dir 返回数据文件所在目录 (相对路径)
func (r Ref) Dir() string {
	dir := path.Join(r.project, r.view.String(), r.varIdx)
	if r.region != "" {
		dir = path.Join(dir, r.region)
	}
	return dir
}

// Path 将引用映射为后端无关的相对路径
// Example: sn/ts/tasmax/tasmax_rcp45_2041-2070.csv
func (r Ref) Path() string {
	name := r.varIdx + "_" + r.scenario
	if r.horizon != "" {
		name += "_" + r.horizon
	}
	if r.stat != "" {
		name += "_" + r.stat
	}
	if r.delta {
		name += "_delta"
	}
	return path.Join(r.Dir(), name+"."+r.format.String())
}

// Key 是缓存键，与 Path 一致，这样按路径失效缓存时无需反查
func (r Ref) Key() string { return r.Path() }

func (r Ref) String() string { return r.Path() }

// CleanPath 校验并规范化辅助文件路径 (如区域边界 geojson)
func CleanPath(p string) (string, error) {
	clean, err := CleanDir(p)
	if err != nil {
		return "", err
	}
	if clean == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	return clean, nil
}

// CleanDir 与 CleanPath 相同，但允许空串 / "." 表示根目录 (返回 "")
func CleanDir(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: %q must be relative", ErrInvalidPath, p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q escapes the data root", ErrInvalidPath, p)
		}
	}
	clean := path.Clean(p)
	if clean == "." {
		return "", nil
	}
	return clean, nil
}
