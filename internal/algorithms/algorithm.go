// Package algorithms provides the processing algorithms that automated
// checks and report handlers run through the task runner.
package algorithms

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Provider prefixes the identifiers of the built-in algorithms.
const Provider = "qaworkbench"

type ParameterKind int

const (
	KindString ParameterKind = iota
	KindNumber
	KindEnum
	KindLayer
	KindFile
	KindCRS
	KindExtent
	KindMatrix
	KindDestination
)

var kindNames = [...]string{"string", "number", "enum", "layer", "file", "crs", "extent", "matrix", "destination"}

func (k ParameterKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

type Parameter struct {
	Name        string
	Description string
	Kind        ParameterKind
	Optional    bool
	Default     any
	Options     []string
}

type Algorithm interface {
	Name() string
	DisplayName() string
	Parameters() []Parameter
	Run(ctx context.Context, params map[string]any, log *zap.Logger) (map[string]any, error)
}

// ID returns the provider-qualified identifier of a.
func ID(a Algorithm) string { return Provider + ":" + a.Name() }

// OutputDefinition replaces a destination parameter before a run. An empty
// Sink means the output stays in memory.
type OutputDefinition struct {
	Sink string `json:"sink"`
}

func (d OutputDefinition) Ephemeral() bool {
	return d.Sink == "" || strings.HasPrefix(d.Sink, "memory:")
}

type Registry struct {
	mu    sync.RWMutex
	items map[string]Algorithm
}

func NewRegistry(algs ...Algorithm) *Registry {
	r := &Registry{items: map[string]Algorithm{}}
	for _, a := range algs {
		r.Register(a)
	}
	return r
}

func (r *Registry) Register(a Algorithm) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[ID(a)] = a
}

// Get resolves a provider-qualified id; a bare name is looked up under Provider.
func (r *Registry) Get(id string) (Algorithm, bool) {
	if !strings.Contains(id, ":") {
		id = Provider + ":" + id
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.items[id]
	return a, ok
}

func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Destinations lists the names of a's destination parameters.
func Destinations(a Algorithm) []string {
	var names []string
	for _, p := range a.Parameters() {
		if p.Kind == KindDestination {
			names = append(names, p.Name)
		}
	}
	return names
}

// withDefaults copies params and fills declared defaults for missing keys.
func withDefaults(a Algorithm, params map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	for _, p := range a.Parameters() {
		if _, ok := out[p.Name]; ok {
			continue
		}
		if p.Default != nil {
			out[p.Name] = p.Default
			continue
		}
		if !p.Optional && p.Kind != KindDestination {
			return nil, fmt.Errorf("%s: missing parameter %s", ID(a), p.Name)
		}
	}
	return out, nil
}

func stringParam(params map[string]any, name string) string {
	switch v := params[name].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func intParam(params map[string]any, name string) (int, error) {
	switch v := params[name].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		return int(n), err
	case string:
		return strconv.Atoi(strings.TrimSpace(v))
	}
	return 0, fmt.Errorf("parameter %s: not a number", name)
}

// enumParam accepts an option index or an option name.
func enumParam(params map[string]any, name string, options []string) (string, error) {
	if s, ok := params[name].(string); ok {
		s = strings.ToLower(strings.TrimSpace(s))
		for _, o := range options {
			if o == s {
				return o, nil
			}
		}
		if _, err := strconv.Atoi(s); err != nil {
			return "", fmt.Errorf("parameter %s: unknown option %q", name, s)
		}
	}
	idx, err := intParam(params, name)
	if err != nil {
		return "", err
	}
	if idx < 0 || idx >= len(options) {
		return "", fmt.Errorf("parameter %s: option index %d out of range", name, idx)
	}
	return options[idx], nil
}

// matrixParam accepts a list of strings or a newline separated string.
func matrixParam(params map[string]any, name string) []string {
	var out []string
	switch v := params[name].(type) {
	case []string:
		out = append(out, v...)
	case []any:
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
	case string:
		out = strings.Split(v, "\n")
	}
	res := out[:0]
	for _, s := range out {
		if s = strings.TrimSpace(s); s != "" {
			res = append(res, s)
		}
	}
	return res
}

func nopIfNil(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
