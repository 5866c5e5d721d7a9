package climdashrpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"climdash/pkg/dataset"
	"climdash/pkg/types"

	"google.golang.org/protobuf/types/known/structpb"
)

var ErrAmbiguousQuery = errors.New("query must name either a path or a dataset, not both")

// Query 是 Resolve / Fetch 的请求载荷，REST 接口复用同一结构 (form 标签)
// 要么给出 Path (辅助文件，如边界)，要么给出数据集的各个维度。
type Query struct {
	Path string `json:"path,omitempty" form:"path"`

	Project  string `json:"project,omitempty" form:"project"`
	View     string `json:"view,omitempty" form:"view"`
	Var      string `json:"var,omitempty" form:"var"`
	Scenario string `json:"scenario,omitempty" form:"scenario"`
	Horizon  string `json:"horizon,omitempty" form:"horizon"`
	Region   string `json:"region,omitempty" form:"region"`
	Stat     string `json:"stat,omitempty" form:"stat"`
	Delta    bool   `json:"delta,omitempty" form:"delta"`
	Format   string `json:"format,omitempty" form:"format"`
}

// QueryFromRef 把引用还原为查询 (客户端使用)
func QueryFromRef(ref dataset.Ref) Query {
	return Query{
		Project:  ref.Project(),
		View:     ref.View().String(),
		Var:      ref.VarIdx(),
		Scenario: ref.Scenario(),
		Horizon:  ref.Horizon(),
		Region:   ref.Region(),
		Stat:     ref.Stat(),
		Delta:    ref.Delta(),
		Format:   ref.Format().String(),
	}
}

func (q Query) isRef() bool {
	return q.Project != "" || q.View != "" || q.Var != "" || q.Scenario != ""
}

// Target 返回查询指向的引用或路径，二者恰有其一
func (q Query) Target() (dataset.Ref, string, error) {
	switch {
	case q.Path != "" && q.isRef():
		return dataset.Ref{}, "", ErrAmbiguousQuery
	case q.Path != "":
		p, err := dataset.CleanPath(q.Path)
		return dataset.Ref{}, p, err
	}
	ref, err := dataset.New(q.Project, types.View(q.View), q.Var, q.Scenario, dataset.Options{
		Horizon: q.Horizon,
		Region:  q.Region,
		Stat:    q.Stat,
		Delta:   q.Delta,
		Format:  types.Format(q.Format),
	})
	if err != nil {
		return dataset.Ref{}, "", err
	}
	return ref, "", nil
}

// CatalogRequest 是 Catalog 的请求载荷
type CatalogRequest struct {
	Dir string `json:"dir" form:"dir"`
}

// Encode 把带 json 标签的结构体转换为 Struct
func Encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return structpb.NewStruct(m)
}

// Decode 把 Struct 解码到带 json 标签的结构体
func Decode(s *structpb.Struct, v any) error {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
