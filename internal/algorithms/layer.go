package algorithms

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Rect struct {
	MinX float64 `json:"xmin" yaml:"xmin"`
	MinY float64 `json:"ymin" yaml:"ymin"`
	MaxX float64 `json:"xmax" yaml:"xmax"`
	MaxY float64 `json:"ymax" yaml:"ymax"`
}

// IsEmpty is true for rectangles without area.
func (r Rect) IsEmpty() bool { return r.MaxX <= r.MinX || r.MaxY <= r.MinY }

// Layer is the host's description of a map layer under validation.
type Layer struct {
	Name   string `json:"name"`
	Path   string `json:"path,omitempty"`
	SRID   int    `json:"srid"`
	Extent Rect   `json:"extent"`
	Style  string `json:"style,omitempty"`
}

func (l Layer) String() string {
	if l.Name != "" {
		return l.Name
	}
	return l.Path
}

func layerParam(params map[string]any, name string) (Layer, error) {
	switch v := params[name].(type) {
	case Layer:
		return v, nil
	case *Layer:
		if v == nil {
			break
		}
		return *v, nil
	case map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return Layer{}, err
		}
		var l Layer
		if err := json.Unmarshal(data, &l); err != nil {
			return Layer{}, fmt.Errorf("parameter %s: %w", name, err)
		}
		return l, nil
	}
	return Layer{}, fmt.Errorf("parameter %s: not a layer", name)
}

// ParseSRID accepts "EPSG:4326", "4326" or a number.
func ParseSRID(v any) (int, error) {
	switch s := v.(type) {
	case int:
		return s, nil
	case float64:
		return int(s), nil
	case string:
		s = strings.TrimSpace(s)
		if i := strings.LastIndex(s, ":"); i >= 0 {
			s = s[i+1:]
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("invalid crs %q", v)
		}
		return n, nil
	}
	return 0, fmt.Errorf("invalid crs %v", v)
}

// ParseExtent reads an extent written as "xmin,xmax,ymin,ymax", optionally
// followed by a bracketed crs, or given as a Rect or a four number list in
// the same order.
func ParseExtent(v any) (Rect, error) {
	var nums []float64
	switch e := v.(type) {
	case Rect:
		return e, nil
	case *Rect:
		if e != nil {
			return *e, nil
		}
	case string:
		s := e
		if i := strings.Index(s, "["); i >= 0 {
			s = s[:i]
		}
		for _, part := range strings.Split(s, ",") {
			f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return Rect{}, fmt.Errorf("invalid extent %q", e)
			}
			nums = append(nums, f)
		}
	case []float64:
		nums = e
	case []any:
		for _, item := range e {
			f, ok := item.(float64)
			if !ok {
				return Rect{}, fmt.Errorf("invalid extent %v", e)
			}
			nums = append(nums, f)
		}
	}
	if len(nums) != 4 {
		return Rect{}, fmt.Errorf("invalid extent %v", v)
	}
	return Rect{MinX: nums[0], MaxX: nums[1], MinY: nums[2], MaxY: nums[3]}, nil
}
