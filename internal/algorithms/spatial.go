package algorithms

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Spatial relations between two axis-aligned rectangles, following the
// DE-9IM predicates for polygons.

func intersects(a, b Rect) bool {
	return a.MinX <= b.MaxX && b.MinX <= a.MaxX && a.MinY <= b.MaxY && b.MinY <= a.MaxY
}

func interiorsIntersect(a, b Rect) bool {
	return a.MinX < b.MaxX && b.MinX < a.MaxX && a.MinY < b.MaxY && b.MinY < a.MaxY
}

func contains(a, b Rect) bool {
	return b.MinX >= a.MinX && b.MaxX <= a.MaxX && b.MinY >= a.MinY && b.MaxY <= a.MaxY && interiorsIntersect(a, b)
}

var relations = map[string]func(a, b Rect) bool{
	"intersects": intersects,
	"disjoint":   func(a, b Rect) bool { return !intersects(a, b) },
	"touches":    func(a, b Rect) bool { return intersects(a, b) && !interiorsIntersect(a, b) },
	"contains":   contains,
	"within":     func(a, b Rect) bool { return contains(b, a) },
	"overlaps": func(a, b Rect) bool {
		return interiorsIntersect(a, b) && !contains(a, b) && !contains(b, a)
	},
	// Two areas never cross.
	"crosses": func(a, b Rect) bool { return false },
}

var operationOptions = []string{"intersects", "overlaps", "contains", "crosses", "disjoint", "touches", "within"}

// Relate evaluates a named relation of a to b.
func Relate(op string, a, b Rect) (bool, error) {
	fn, ok := relations[op]
	if !ok {
		return false, fmt.Errorf("unknown spatial operation %q", op)
	}
	return fn(a, b), nil
}

type ExtentChecker struct{}

func (ExtentChecker) Name() string        { return "extentchecker" }
func (ExtentChecker) DisplayName() string { return "Extent checker" }

func (ExtentChecker) Parameters() []Parameter {
	return []Parameter{
		{Name: "INPUT", Description: "Input layer", Kind: KindLayer},
		{Name: "INPUT_EXTENT", Description: "Target extent to match", Kind: KindExtent},
		{Name: "INPUT_OPERATION", Description: "Spatial operation to test", Kind: KindEnum, Default: 0, Options: operationOptions},
	}
}

func (e ExtentChecker) Run(ctx context.Context, params map[string]any, log *zap.Logger) (map[string]any, error) {
	params, err := withDefaults(e, params)
	if err != nil {
		return nil, err
	}
	layer, err := layerParam(params, "INPUT")
	if err != nil {
		return nil, err
	}
	target, err := ParseExtent(params["INPUT_EXTENT"])
	if err != nil {
		return nil, err
	}
	op, err := enumParam(params, "INPUT_OPERATION", operationOptions)
	if err != nil {
		return nil, err
	}
	nopIfNil(log).Info("extent check", zap.Stringer("layer", layer), zap.Any("target_extent", target), zap.String("operation", op))
	result, err := Relate(op, layer.Extent, target)
	if err != nil {
		return nil, err
	}
	return map[string]any{"OUTPUT": result}, nil
}

type CRSChecker struct{}

func (CRSChecker) Name() string        { return "crschecker" }
func (CRSChecker) DisplayName() string { return "CRS checker" }

func (CRSChecker) Parameters() []Parameter {
	return []Parameter{
		{Name: "INPUT_LAYER", Description: "Input layer", Kind: KindLayer},
		{Name: "INPUT_CRS", Description: "Input CRS", Kind: KindCRS},
	}
}

func (c CRSChecker) Run(ctx context.Context, params map[string]any, log *zap.Logger) (map[string]any, error) {
	params, err := withDefaults(c, params)
	if err != nil {
		return nil, err
	}
	layer, err := layerParam(params, "INPUT_LAYER")
	if err != nil {
		return nil, err
	}
	target, err := ParseSRID(params["INPUT_CRS"])
	if err != nil {
		return nil, err
	}
	nopIfNil(log).Info("crs check", zap.Stringer("layer", layer), zap.Int("layer_srid", layer.SRID), zap.Int("target_srid", target))
	return map[string]any{"OUTPUT": layer.SRID == target}, nil
}
