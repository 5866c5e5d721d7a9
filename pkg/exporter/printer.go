package exporter

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"climdash/pkg/audit"
	"climdash/pkg/boundary"
	"climdash/pkg/resolver"
)

// PrintJSON 以缩进 JSON 输出任意结果 (--json)
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintResult 打印一次解析的结果和每个后端的尝试
func PrintResult(w io.Writer, res *resolver.Result) error {
	fmt.Fprintf(w, "Backend:  %s (%s)\n", res.Handle.Backend, res.Handle.Kind)
	fmt.Fprintf(w, "Path:     %s\n", res.Handle.Path)
	fmt.Fprintf(w, "Location: %s\n", res.Handle.Location)
	fmt.Fprintf(w, "Cached:   %t\n", res.Cached)
	fmt.Fprintf(w, "Took:     %s\n", fmtDuration(res.Duration))
	if len(res.Attempts) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	return PrintAttempts(w, res.Attempts)
}

// PrintAttempts 以表格形式打印后端尝试 (失败时也用于诊断)
func PrintAttempts(w io.Writer, attempts []resolver.Attempt) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "BACKEND\tKIND\tOUTCOME\tTIME\tERROR\n")
	for _, a := range attempts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.Backend, a.Kind, a.Outcome, fmtDuration(a.Duration), a.Reason)
	}
	return tw.Flush()
}

// PrintListing 模拟 ls 的输出：类型、大小、名称、来源后端
func PrintListing(w io.Writer, l *resolver.Listing) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "TYPE\tSIZE\tNAME\tBACKEND\n")
	for _, e := range l.Entries {
		typ := "file"
		if e.IsDir {
			typ = "dir"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", typ, fmtSize(e.Size), e.Name, e.Backend)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, a := range l.Skipped() {
		fmt.Fprintf(w, "warning: %s skipped (%s: %s)\n", a.Backend, a.Outcome, a.Reason)
	}
	return nil
}

// PrintHistory 打印审计记录
func PrintHistory(w io.Writer, records []audit.ResolutionRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "TIME\tOUTCOME\tBACKEND\tCACHED\tMS\tKEY\n")
	for _, r := range records {
		backend := r.Backend
		if backend == "" {
			backend = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%d\t%s\n",
			r.CreatedAt.Local().Format(time.DateTime), r.Outcome, backend, r.Cached, r.DurationMs, r.RefKey)
	}
	return tw.Flush()
}

// PrintBoundary 打印边界的概要：每个形状的名称和顶点数，以及整体范围
func PrintBoundary(w io.Writer, b *boundary.Boundary) error {
	fmt.Fprintf(w, "Location: %s\n", b.Handle.Location)
	fmt.Fprintf(w, "BBox:     [%.4f, %.4f, %.4f, %.4f]\n", b.BBox[0], b.BBox[1], b.BBox[2], b.BBox[3])
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "SHAPE\tVERTICES\n")
	for i, s := range b.Shapes {
		name := s.Name
		if name == "" {
			name = fmt.Sprintf("#%d", i)
		}
		fmt.Fprintf(tw, "%s\t%d\n", name, len(s.Vertices))
	}
	return tw.Flush()
}

func fmtSize(s int64) string {
	switch {
	case s == 0:
		return "-"
	case s < 1024:
		return fmt.Sprintf("%dB", s)
	case s < 1024*1024:
		return fmt.Sprintf("%.1fKB", float64(s)/1024)
	}
	return fmt.Sprintf("%.2fMB", float64(s)/1024/1024)
}

func fmtDuration(d time.Duration) string {
	if d < time.Millisecond {
		return d.String()
	}
	return d.Round(time.Millisecond).String()
}
