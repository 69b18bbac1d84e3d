package algorithms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"
)

// findAll reports whether every expression selects a node, evaluated relative
// to the document's root element. It returns the first missing expression.
func findAll(r io.Reader, exprs []string) (bool, string, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return false, "", fmt.Errorf("parse xml: %w", err)
	}
	root := doc.FirstChild
	for root != nil && root.Type != xmlquery.ElementNode {
		root = root.NextSibling
	}
	if root == nil {
		return false, "", errors.New("xml document has no root element")
	}
	for _, expr := range exprs {
		node, err := xmlquery.Query(root, expr)
		if err != nil {
			return false, "", fmt.Errorf("xpath %q: %w", expr, err)
		}
		if node == nil {
			return false, expr, nil
		}
	}
	return true, "", nil
}

type XMLChecker struct{}

func (XMLChecker) Name() string        { return "xmlchecker" }
func (XMLChecker) DisplayName() string { return "XML checker" }

func (XMLChecker) Parameters() []Parameter {
	return []Parameter{
		{Name: "INPUT", Description: "Input file", Kind: KindFile},
		{Name: "INPUT_XPATH_EXPRESSIONS", Description: "XPath expressions to check", Kind: KindMatrix},
	}
}

func (x XMLChecker) Run(ctx context.Context, params map[string]any, log *zap.Logger) (map[string]any, error) {
	params, err := withDefaults(x, params)
	if err != nil {
		return nil, err
	}
	path := stringParam(params, "INPUT")
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	exprs := matrixParam(params, "INPUT_XPATH_EXPRESSIONS")
	log = nopIfNil(log)
	log.Info("xml check", zap.String("file", path), zap.Strings("items_to_check", exprs))
	ok, missing, err := findAll(f, exprs)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Warn("xpath not found", zap.String("xpath", missing))
	}
	return map[string]any{"OUTPUT": ok}, nil
}

// QMLChecker runs XPath checks against a layer's QML style document.
type QMLChecker struct{}

func (QMLChecker) Name() string        { return "qmlchecker" }
func (QMLChecker) DisplayName() string { return "QML checker" }

func (QMLChecker) Parameters() []Parameter {
	return []Parameter{
		{Name: "INPUT", Description: "Input layer", Kind: KindLayer},
		{Name: "INPUT_XPATH_EXPRESSIONS", Description: "XPath expressions to check", Kind: KindMatrix},
	}
}

func (q QMLChecker) Run(ctx context.Context, params map[string]any, log *zap.Logger) (map[string]any, error) {
	params, err := withDefaults(q, params)
	if err != nil {
		return nil, err
	}
	layer, err := layerParam(params, "INPUT")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(layer.Style) == "" {
		return nil, fmt.Errorf("layer %s has no style", layer)
	}
	exprs := matrixParam(params, "INPUT_XPATH_EXPRESSIONS")
	log = nopIfNil(log)
	log.Info("qml check", zap.Stringer("layer", layer), zap.Strings("items_to_check", exprs))
	ok, missing, err := findAll(strings.NewReader(layer.Style), exprs)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Warn("xpath not found", zap.String("xpath", missing))
	}
	return map[string]any{"OUTPUT": ok}, nil
}
