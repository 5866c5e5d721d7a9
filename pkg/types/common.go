// pkg/types/common.go
package types

import "fmt"

// Kind 标识后端所在的存储位置类别
// 这是一个“值对象”，只用于分类和日志，不参与优先级判断。
type Kind string

const (
	KindLocal  Kind = "local"  // 本地磁盘
	KindHosted Kind = "hosted" // 托管服务器 (HTTP / SFTP)
	KindCloud  Kind = "cloud"  // 云盘 (S3 兼容)
)

func (k Kind) String() string { return string(k) }

func (k Kind) IsValid() bool {
	switch k {
	case KindLocal, KindHosted, KindCloud:
		return true
	}
	return false
}

// View 对应仪表盘的视图类型，决定数据文件所在的子目录
type View string

const (
	ViewTimeSeries     View = "ts"
	ViewTimeSeriesBias View = "ts_bias"
	ViewTable          View = "tbl"
	ViewMap            View = "map"
	ViewCycle          View = "cycle"
	ViewCluster        View = "cluster"
	ViewTaylor         View = "taylor"
)

var knownViews = []View{
	ViewTimeSeries, ViewTimeSeriesBias, ViewTable, ViewMap,
	ViewCycle, ViewCluster, ViewTaylor,
}

func (v View) String() string { return string(v) }

func (v View) IsValid() bool {
	for _, k := range knownViews {
		if v == k {
			return true
		}
	}
	return false
}

// Format 数据文件格式 (即文件扩展名)
type Format string

const (
	FormatCSV     Format = "csv"
	FormatNetCDF  Format = "nc"
	FormatGeoJSON Format = "geojson"
)

func (f Format) String() string { return string(f) }

func (f Format) IsValid() bool {
	return f == FormatCSV || f == FormatNetCDF || f == FormatGeoJSON
}

// ParseKind 将配置中的字符串转换为 Kind
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.IsValid() {
		return "", fmt.Errorf("unknown backend kind %q", s)
	}
	return k, nil
}
