package algorithms

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// LayerSummary describes a layer and writes the description to a destination.
// IS_VALID is true when the layer has a crs and a non-empty extent.
type LayerSummary struct{}

func (LayerSummary) Name() string        { return "layersummary" }
func (LayerSummary) DisplayName() string { return "Layer summary" }

func (LayerSummary) Parameters() []Parameter {
	return []Parameter{
		{Name: "INPUT", Description: "Input layer", Kind: KindLayer},
		{Name: "OUTPUT", Description: "Summary destination", Kind: KindDestination},
	}
}

func (s LayerSummary) Run(ctx context.Context, params map[string]any, log *zap.Logger) (map[string]any, error) {
	params, err := withDefaults(s, params)
	if err != nil {
		return nil, err
	}
	layer, err := layerParam(params, "INPUT")
	if err != nil {
		return nil, err
	}
	summary := map[string]any{
		"name":   layer.String(),
		"srid":   layer.SRID,
		"extent": layer.Extent,
		"styled": layer.Style != "",
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return nil, err
	}
	dest, _ := params["OUTPUT"].(OutputDefinition)
	target := "memory:" + layer.String()
	if !dest.Ephemeral() {
		if err := os.WriteFile(dest.Sink, data, 0o644); err != nil {
			return nil, fmt.Errorf("write summary: %w", err)
		}
		target = dest.Sink
	}
	nopIfNil(log).Info("layer summary", zap.String("destination", target))
	return map[string]any{
		"OUTPUT":   target,
		"SUMMARY":  string(data),
		"IS_VALID": layer.SRID > 0 && !layer.Extent.IsEmpty(),
	}, nil
}
