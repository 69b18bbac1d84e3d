package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"qaworkbench/internal/algorithms"
	"qaworkbench/internal/automation"
	"qaworkbench/internal/domain"
	"qaworkbench/internal/report"
	"qaworkbench/internal/tree"
)

// ErrArtifactRequired is returned when a session has nothing to validate.
var ErrArtifactRequired = errors.New("a dataset path or layer is required")

// ResolveArtifact picks the value automated checks receive, following where
// the checklist says its artifact comes from.
func ResolveArtifact(cl domain.CheckList, path string, layer *algorithms.Layer) (any, error) {
	switch domain.ArtifactSource(cl.DatasetType, cl.ArtifactType) {
	case domain.SourceFile:
		if path == "" {
			return nil, fmt.Errorf("%s %s checklists validate a file: %w", cl.DatasetType, cl.ArtifactType, ErrArtifactRequired)
		}
		return path, nil
	case domain.SourceLayer:
		if layer != nil {
			return *layer, nil
		}
		if path == "" {
			return nil, ErrArtifactRequired
		}
		return algorithms.Layer{Name: filepath.Base(path), Path: path}, nil
	default:
		if layer != nil {
			return *layer, nil
		}
		if path == "" {
			return nil, ErrArtifactRequired
		}
		return path, nil
	}
}

// Session is one validation run of a checklist against a dataset. It owns
// its adapter, dispatcher and runner and is not safe for concurrent use.
type Session struct {
	ID         uuid.UUID
	Checklist  *domain.CheckList
	Dataset    string
	Artifact   any
	Validator  string
	Created    time.Time
	Adapter    *tree.Adapter
	Dispatcher *automation.Dispatcher
	runner     *automation.LocalRunner
	now        func() time.Time
}

// NewSession loads the checklist named by ref into a fresh validation session.
func (e Engine) NewSession(ref, dataset string, layer *algorithms.Layer, validator string) (*Session, error) {
	cl, err := e.Library.Find(ref)
	if err != nil {
		return nil, err
	}
	artifact, err := ResolveArtifact(cl, dataset, layer)
	if err != nil {
		return nil, err
	}
	label := dataset
	if layer != nil && layer.String() != "" {
		label = layer.String()
	}
	if validator == "" {
		validator = e.Config.Validator
	}
	log := e.Logger.Named("automation")
	runner := automation.NewLocalRunner(e.Algorithms, e.Config.Automation.Workers, log)
	adapter := tree.New(&cl)
	return &Session{
		ID:         uuid.New(),
		Checklist:  &cl,
		Dataset:    label,
		Artifact:   artifact,
		Validator:  validator,
		Created:    e.now().UTC(),
		Adapter:    adapter,
		Dispatcher: automation.NewDispatcher(adapter, e.Algorithms, runner, log, e.Metrics),
		runner:     runner,
		now:        e.now,
	}, nil
}

// Automate runs one check's automation and waits for its outcome.
func (s *Session) Automate(ctx context.Context, check int) (automation.Outcome, error) {
	h, err := s.Dispatcher.Perform(ctx, check, s.Artifact)
	if err != nil {
		return automation.Outcome{}, err
	}
	return s.Dispatcher.Await(ctx, h)
}

// AutomateAll runs every enabled automation and waits for all of them.
func (s *Session) AutomateAll(ctx context.Context) ([]automation.Outcome, []error) {
	handles, errs := s.Dispatcher.AutomateAll(ctx, s.Artifact)
	outcomes := make([]automation.Outcome, 0, len(handles))
	for _, h := range handles {
		out, err := s.Dispatcher.Await(ctx, h)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, errs
}

// Sync applies completions of runs nobody is awaiting any more.
func (s *Session) Sync() []automation.Outcome {
	return s.Dispatcher.Drain()
}

// Clear resets every check to unchecked with empty notes. Runs still in
// flight finish without touching the cleared checks.
func (s *Session) Clear() int {
	s.Dispatcher.Drain()
	n := s.Adapter.ClearAll()
	s.Dispatcher.Reset()
	return n
}

// Report builds the validation report for the current state.
func (s *Session) Report() domain.ValidationReport {
	s.Sync()
	return report.Builder{Validator: s.Validator, Now: s.now}.Build(s.Adapter, s.Dataset)
}

// Close stops the session's runner.
func (s *Session) Close() {
	s.runner.Close()
}
