// Package automation runs a check's automation descriptor through a Runner
// and folds the outcome back into the checklist tree.
//
// A Dispatcher shares the tree adapter's threading rule: Perform, Complete
// and the pumping helpers must be called from the goroutine that owns the
// adapter.
package automation

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"qaworkbench/internal/algorithms"
	"qaworkbench/internal/domain"
	"qaworkbench/internal/tree"
)

var (
	ErrInFlight = errors.New("automation already running for this check")
	ErrCanceled = errors.New("automation canceled")
)

// ConfigurationError reports a check that cannot be dispatched.
type ConfigurationError struct {
	Check  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("check %q: %s", e.Check, e.Reason)
}

type State int

const (
	StateIdle State = iota
	StateRunning
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

const (
	messageSucceeded = "Automated validation succeeded"
	messageFailed    = "Automated validation failed"
)

// Outcome is what Complete did with a completion.
type Outcome struct {
	Handle    Handle
	State     State
	Stale     bool
	Validated bool
	Notes     string
	Err       error
}

// Configurer edits the parameters of a dispatch before it is submitted.
// Returning ErrCanceled abandons the dispatch.
type Configurer interface {
	Configure(ctx context.Context, alg algorithms.Algorithm, params map[string]any) (map[string]any, error)
}

type ConfigurerFunc func(ctx context.Context, alg algorithms.Algorithm, params map[string]any) (map[string]any, error)

func (f ConfigurerFunc) Configure(ctx context.Context, alg algorithms.Algorithm, params map[string]any) (map[string]any, error) {
	return f(ctx, alg, params)
}

// pending holds what a dispatch captured at submit time.
type pending struct {
	algorithm string
	output    string
	negate    bool
	validated tree.Coordinate
	notes     tree.Coordinate
}

type Dispatcher struct {
	adapter  *tree.Adapter
	registry *algorithms.Registry
	runner   Runner
	log      *zap.Logger
	metrics  *Metrics

	states      map[int]State
	generations map[int]uint64
	pending     map[uint64]pending

	// settled keeps outcomes applied while nobody awaited their handle.
	settled map[uint64]Outcome
}

func NewDispatcher(adapter *tree.Adapter, registry *algorithms.Registry, runner Runner, log *zap.Logger, metrics *Metrics) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		adapter:     adapter,
		registry:    registry,
		runner:      runner,
		log:         log,
		metrics:     metrics,
		states:      map[int]State{},
		generations: map[int]uint64{},
		pending:     map[uint64]pending{},
		settled:     map[uint64]Outcome{},
	}
}

// State returns the dispatch state of a check.
func (d *Dispatcher) State(check int) State { return d.states[check] }

// Rebind points the dispatcher at a rebuilt adapter. Completions of
// dispatches issued before the call are ignored.
func (d *Dispatcher) Rebind(adapter *tree.Adapter) {
	d.adapter = adapter
	d.Reset()
}

// Reset forgets every dispatch. Completions of runs submitted before the
// call are reported stale and never written to the tree.
func (d *Dispatcher) Reset() {
	for check := range d.generations {
		d.generations[check]++
	}
	d.states = map[int]State{}
	d.pending = map[uint64]pending{}
	d.settled = map[uint64]Outcome{}
}

// Drain applies the completions the runner has already delivered and returns
// without waiting for more. It picks up runs whose caller stopped awaiting.
func (d *Dispatcher) Drain() []Outcome {
	var outs []Outcome
	for {
		select {
		case c, ok := <-d.runner.Completions():
			if !ok {
				return outs
			}
			outs = append(outs, d.settle(c))
		default:
			return outs
		}
	}
}

// settle applies c and keeps the outcome for a later Await.
func (d *Dispatcher) settle(c Completion) Outcome {
	out := d.Complete(c)
	if !out.Stale {
		d.settled[c.Handle.ID] = out
	}
	return out
}

func (d *Dispatcher) prepare(check int, artifact any) (*domain.AutomationDescriptor, algorithms.Algorithm, map[string]any, error) {
	if !d.adapter.Valid(tree.CheckCoordinate(check, tree.ColumnValue)) {
		return nil, nil, nil, &tree.IndexError{Row: check, Column: tree.ColumnValue}
	}
	c := &d.adapter.CheckList().Checks[check]
	desc := c.Automation()
	if !desc.Enabled() {
		return nil, nil, nil, &ConfigurationError{Check: c.Name, Reason: "automation is not enabled"}
	}
	alg, ok := d.registry.Get(desc.AlgorithmID)
	if !ok {
		return nil, nil, nil, &ConfigurationError{Check: c.Name, Reason: fmt.Sprintf("unknown algorithm %q", desc.AlgorithmID)}
	}
	d.Drain()
	if d.states[check] == StateRunning {
		return nil, nil, nil, ErrInFlight
	}
	params := make(map[string]any, len(desc.ExtraParameters)+1)
	for k, v := range desc.ExtraParameters {
		params[k] = v
	}
	params[desc.ArtifactParameterName] = artifact
	return desc, alg, params, nil
}

// substituteSinks replaces every destination parameter with an output
// definition. A configured string value is kept as the sink name; anything
// else stays in memory.
func substituteSinks(alg algorithms.Algorithm, params map[string]any) {
	for _, name := range algorithms.Destinations(alg) {
		switch v := params[name].(type) {
		case algorithms.OutputDefinition:
		case string:
			params[name] = algorithms.OutputDefinition{Sink: v}
		default:
			params[name] = algorithms.OutputDefinition{}
		}
	}
}

// Perform submits the check's automation and returns without waiting for it.
func (d *Dispatcher) Perform(ctx context.Context, check int, artifact any) (Handle, error) {
	desc, alg, params, err := d.prepare(check, artifact)
	if err != nil {
		return Handle{}, err
	}
	return d.submit(ctx, check, desc, alg, params)
}

// ConfigureAndPerform lets cfg adjust the parameters before submitting.
func (d *Dispatcher) ConfigureAndPerform(ctx context.Context, check int, artifact any, cfg Configurer) (Handle, error) {
	desc, alg, params, err := d.prepare(check, artifact)
	if err != nil {
		return Handle{}, err
	}
	if cfg != nil {
		params, err = cfg.Configure(ctx, alg, params)
		if err != nil {
			return Handle{}, err
		}
	}
	return d.submit(ctx, check, desc, alg, params)
}

func (d *Dispatcher) submit(ctx context.Context, check int, desc *domain.AutomationDescriptor, alg algorithms.Algorithm, params map[string]any) (Handle, error) {
	substituteSinks(alg, params)
	p := pending{
		algorithm: algorithms.ID(alg),
		output:    desc.OutputName,
		negate:    desc.NegateOutput,
		validated: tree.CheckCoordinate(check, tree.ColumnValue),
		notes:     tree.PropertyCoordinate(check, domain.PropertyValidationNotes, tree.ColumnValue),
	}
	d.generations[check]++
	for id, out := range d.settled {
		if out.Handle.Check == check {
			delete(d.settled, id)
		}
	}
	h, err := d.runner.Submit(ctx, Request{
		Check:       check,
		Generation:  d.generations[check],
		AlgorithmID: p.algorithm,
		Parameters:  params,
	})
	if err != nil {
		return Handle{}, fmt.Errorf("submit %s: %w", p.algorithm, err)
	}
	d.pending[h.ID] = p
	d.states[check] = StateRunning
	d.metrics.recordDispatch(p.algorithm)
	d.log.Info("automation dispatched",
		zap.Int("check", check),
		zap.String("algorithm", p.algorithm),
		zap.Uint64("dispatch", h.ID))
	return h, nil
}

// Complete applies a completion. Failed runs write nothing; successful runs
// write the validated state and notes at the coordinates captured on submit.
func (d *Dispatcher) Complete(c Completion) Outcome {
	out := Outcome{Handle: c.Handle}
	p, ok := d.pending[c.Handle.ID]
	if !ok || d.generations[c.Handle.Check] != c.Handle.Generation {
		delete(d.pending, c.Handle.ID)
		out.Stale = true
		out.State = d.states[c.Handle.Check]
		d.log.Debug("ignoring stale automation completion", zap.Uint64("dispatch", c.Handle.ID))
		return out
	}
	delete(d.pending, c.Handle.ID)

	if !c.Successful {
		d.states[c.Handle.Check] = StateFailed
		out.State = StateFailed
		out.Err = c.Err
		if out.Err == nil {
			out.Err = errors.New("algorithm run was not successful")
		}
		d.metrics.recordCompletion(p.algorithm, "failed", c.Elapsed)
		d.log.Warn("automation failed", zap.Int("check", c.Handle.Check), zap.Error(out.Err))
		return out
	}

	result := toBool(c.Results[p.output])
	if p.negate {
		result = !result
	}
	msg := messageFailed
	state := domain.Unchecked
	if result {
		msg = messageSucceeded
		state = domain.Checked
	}
	notes := fmt.Sprintf("%s - %v", msg, c.Results)
	d.adapter.SetData(p.validated, state, tree.AspectCheckState)
	d.adapter.SetData(p.notes, notes, tree.AspectEdit)

	d.states[c.Handle.Check] = StateSucceeded
	d.metrics.recordCompletion(p.algorithm, "succeeded", c.Elapsed)
	d.log.Info("automation completed",
		zap.Int("check", c.Handle.Check),
		zap.Bool("validated", result))
	out.State = StateSucceeded
	out.Validated = result
	out.Notes = notes
	return out
}

// toBool reads an algorithm output with Python truth rules: nil, false,
// numeric zero and empty strings, slices and maps are false. Any other value,
// the string "false" included, is true.
func toBool(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() != 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

// Run applies completions until ctx ends or the runner's channel closes.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-d.runner.Completions():
			if !ok {
				return nil
			}
			d.Complete(c)
		}
	}
}

// Await applies completions until the one for h arrives and returns its
// outcome. Other completions received meanwhile are applied too. A caller
// that gives up leaves the run to be applied by a later Drain.
func (d *Dispatcher) Await(ctx context.Context, h Handle) (Outcome, error) {
	if out, ok := d.settled[h.ID]; ok {
		delete(d.settled, h.ID)
		return out, nil
	}
	for {
		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		case c, ok := <-d.runner.Completions():
			if !ok {
				return Outcome{}, ErrRunnerClosed
			}
			if c.Handle.ID == h.ID {
				return d.Complete(c), nil
			}
			d.settle(c)
		}
	}
}

// AutomateAll dispatches every check with enabled automation that is not
// already running. Checks that cannot be dispatched are reported in errs.
func (d *Dispatcher) AutomateAll(ctx context.Context, artifact any) (handles []Handle, errs []error) {
	d.Drain()
	for i := range d.adapter.CheckList().Checks {
		c := &d.adapter.CheckList().Checks[i]
		if !c.Automation().Enabled() || d.states[i] == StateRunning {
			continue
		}
		h, err := d.Perform(ctx, i, artifact)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		handles = append(handles, h)
	}
	return handles, errs
}
