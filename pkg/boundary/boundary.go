// Package boundary 加载区域边界 (GeoJSON)
// 边界文件和数据集一样可能位于任意后端，因此通过解析器定位。
package boundary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"climdash/pkg/storage"
)

var ErrInvalidGeoJSON = errors.New("invalid geojson boundary")

// Point 是一个经纬度顶点
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Shape 是一个要素的外环
type Shape struct {
	Name     string  `json:"name,omitempty"`
	Vertices []Point `json:"vertices"`
}

// Boundary 是加载结果
type Boundary struct {
	Handle storage.Handle `json:"handle"`
	Shapes []Shape        `json:"shapes"`
	// BBox: [minLon, minLat, maxLon, maxLat]
	BBox [4]float64 `json:"bbox"`
}

// Opener 是 Load 需要的解析能力
// 本地解析器经 exporter.FromResolver 适配，远程客户端直接满足。
type Opener interface {
	OpenPath(ctx context.Context, p string) (io.ReadCloser, storage.Handle, error)
}

// Load 解析边界文件的位置并读取
// firstOnly 为 true 时只返回第一个要素。
func Load(ctx context.Context, o Opener, path string, firstOnly bool) (*Boundary, error) {
	rc, h, err := o.OpenPath(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	shapes, err := Parse(rc, firstOnly)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Boundary{Handle: h, Shapes: shapes, BBox: bbox(shapes)}, nil
}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Properties map[string]any `json:"properties"`
	Geometry   *geometry      `json:"geometry"`
}

type geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Parse 读取 FeatureCollection，返回每个要素的外环
// Polygon 取 coordinates[0]，MultiPolygon 取第一个多边形的外环 coordinates[0][0]。
func Parse(r io.Reader, firstOnly bool) ([]Shape, error) {
	var fc featureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGeoJSON, err)
	}
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("%w: no features", ErrInvalidGeoJSON)
	}

	var shapes []Shape
	for i, f := range fc.Features {
		if f.Geometry == nil {
			return nil, fmt.Errorf("%w: feature %d has no geometry", ErrInvalidGeoJSON, i)
		}
		ring, err := outerRing(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		shapes = append(shapes, Shape{Name: featureName(f.Properties), Vertices: ring})
		if firstOnly {
			break
		}
	}
	return shapes, nil
}

func outerRing(g *geometry) ([]Point, error) {
	var rings [][][]float64
	switch g.Type {
	case "Polygon":
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGeoJSON, err)
		}
	case "MultiPolygon":
		var polygons [][][][]float64
		if err := json.Unmarshal(g.Coordinates, &polygons); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGeoJSON, err)
		}
		if len(polygons) > 0 {
			rings = polygons[0]
		}
	default:
		return nil, fmt.Errorf("%w: unsupported geometry %q", ErrInvalidGeoJSON, g.Type)
	}
	if len(rings) == 0 || len(rings[0]) == 0 {
		return nil, fmt.Errorf("%w: empty ring", ErrInvalidGeoJSON)
	}

	points := make([]Point, 0, len(rings[0]))
	for _, pos := range rings[0] {
		if len(pos) < 2 {
			return nil, fmt.Errorf("%w: position needs lon and lat", ErrInvalidGeoJSON)
		}
		points = append(points, Point{Lon: pos[0], Lat: pos[1]})
	}
	return points, nil
}

func featureName(props map[string]any) string {
	for _, k := range []string{"name", "NAME", "Name"} {
		if s, ok := props[k].(string); ok {
			return s
		}
	}
	return ""
}

func bbox(shapes []Shape) [4]float64 {
	box := [4]float64{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	for _, s := range shapes {
		for _, p := range s.Vertices {
			box[0] = math.Min(box[0], p.Lon)
			box[1] = math.Min(box[1], p.Lat)
			box[2] = math.Max(box[2], p.Lon)
			box[3] = math.Max(box[3], p.Lat)
		}
	}
	return box
}
