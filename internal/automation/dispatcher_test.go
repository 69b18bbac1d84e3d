package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"qaworkbench/internal/algorithms"
	"qaworkbench/internal/domain"
	"qaworkbench/internal/tree"
)

type fakeRunner struct {
	requests []Request
	out      chan Completion
	next     uint64
}

func newFakeRunner() *fakeRunner { return &fakeRunner{out: make(chan Completion, 8)} }

func (f *fakeRunner) Submit(ctx context.Context, req Request) (Handle, error) {
	f.requests = append(f.requests, req)
	f.next++
	return Handle{ID: f.next, Check: req.Check, Generation: req.Generation}, nil
}

func (f *fakeRunner) Completions() <-chan Completion { return f.out }

type stubAlgorithm struct {
	name   string
	params []algorithms.Parameter
	run    func(params map[string]any) (map[string]any, error)
}

func (s stubAlgorithm) Name() string                       { return s.name }
func (s stubAlgorithm) DisplayName() string                { return s.name }
func (s stubAlgorithm) Parameters() []algorithms.Parameter { return s.params }
func (s stubAlgorithm) Run(ctx context.Context, params map[string]any, log *zap.Logger) (map[string]any, error) {
	return s.run(params)
}

func automated(algorithm string, negate bool, extra map[string]any) *domain.AutomationDescriptor {
	return &domain.AutomationDescriptor{
		AlgorithmID:           algorithm,
		ArtifactParameterName: domain.DefaultArtifactParameter,
		OutputName:            domain.DefaultOutputName,
		NegateOutput:          negate,
		ExtraParameters:       extra,
	}
}

type testEnv struct {
	adapter    *tree.Adapter
	runner     *fakeRunner
	dispatcher *Dispatcher
	changes    *int
}

func newTestEnv(t *testing.T, checks ...domain.Check) testEnv {
	t.Helper()
	cl := domain.NewCheckList("Automation", "", domain.DatasetVector, domain.ArtifactDataset, checks...)
	adapter := tree.New(&cl)
	changes := 0
	adapter.Subscribe(func(tree.Change) { changes++ })
	runner := newFakeRunner()
	d := NewDispatcher(adapter, algorithms.Builtin(algorithms.BuiltinOptions{}), runner, zap.NewNop(), nil)
	return testEnv{adapter: adapter, runner: runner, dispatcher: d, changes: &changes}
}

func (e testEnv) check(i int) *domain.Check { return &e.adapter.CheckList().Checks[i] }

func TestPerformDisabledAutomation(t *testing.T) {
	env := newTestEnv(t, domain.NewCheck("manual", "", "", nil))

	_, err := env.dispatcher.Perform(context.Background(), 0, "roads.gpkg")
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "manual", cfgErr.Check)
	assert.Zero(t, *env.changes)
	assert.Empty(t, env.runner.requests)
	assert.Equal(t, StateIdle, env.dispatcher.State(0))
}

func TestPerformValidatesCheckAndAlgorithm(t *testing.T) {
	env := newTestEnv(t, domain.NewCheck("buffer", "", "", automated("native:buffer", false, nil)))

	_, err := env.dispatcher.Perform(context.Background(), 0, "roads.gpkg")
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	_, err = env.dispatcher.Perform(context.Background(), 3, "roads.gpkg")
	var idxErr *tree.IndexError
	assert.ErrorAs(t, err, &idxErr)
}

func TestPerformBuildsParametersAndSinks(t *testing.T) {
	env := newTestEnv(t,
		domain.NewCheck("summary", "", "", automated("layersummary", false, map[string]any{"EXTRA": 1.0})),
		domain.NewCheck("kept", "", "", automated("qaworkbench:layersummary", false, map[string]any{"OUTPUT": "/data/summary.json"})),
	)
	ctx := context.Background()

	h, err := env.dispatcher.Perform(ctx, 0, "roads")
	require.NoError(t, err)
	assert.Equal(t, 0, h.Check)
	_, err = env.dispatcher.Perform(ctx, 1, "roads")
	require.NoError(t, err)

	require.Len(t, env.runner.requests, 2)
	first := env.runner.requests[0]
	assert.Equal(t, "qaworkbench:layersummary", first.AlgorithmID)
	assert.Equal(t, "roads", first.Parameters["INPUT"])
	assert.Equal(t, 1.0, first.Parameters["EXTRA"])
	assert.Equal(t, algorithms.OutputDefinition{}, first.Parameters["OUTPUT"])
	assert.Equal(t, algorithms.OutputDefinition{Sink: "/data/summary.json"}, env.runner.requests[1].Parameters["OUTPUT"])

	assert.Equal(t, StateRunning, env.dispatcher.State(0))
	assert.Zero(t, *env.changes, "submitting never writes")
	assert.Equal(t, "/data/summary.json", env.check(1).Automation().ExtraParameters["OUTPUT"], "descriptor is not modified")
}

func TestCompleteWritesOutcome(t *testing.T) {
	cases := []struct {
		name      string
		negate    bool
		results   map[string]any
		validated domain.CheckState
		notes     string
	}{
		{"true output", false, map[string]any{"OUTPUT": true}, domain.Checked, "Automated validation succeeded - map[OUTPUT:true]"},
		{"false output", false, map[string]any{"OUTPUT": false}, domain.Unchecked, "Automated validation failed - map[OUTPUT:false]"},
		{"negated", true, map[string]any{"OUTPUT": true}, domain.Unchecked, "Automated validation failed - map[OUTPUT:true]"},
		{"missing output", false, map[string]any{"OTHER": true}, domain.Unchecked, "Automated validation failed - map[OTHER:true]"},
		{"negated missing", true, map[string]any{}, domain.Checked, "Automated validation succeeded - map[]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, domain.NewCheck("crs", "", "", automated("crschecker", tc.negate, nil)))
			h, err := env.dispatcher.Perform(context.Background(), 0, "roads")
			require.NoError(t, err)

			out := env.dispatcher.Complete(Completion{Handle: h, Successful: true, Results: tc.results})
			assert.False(t, out.Stale)
			assert.Equal(t, StateSucceeded, out.State)
			assert.Equal(t, tc.validated, env.check(0).Validated)
			assert.Equal(t, tc.notes, env.check(0).ValidationNotes())
			assert.Equal(t, tc.notes, out.Notes)
			assert.Equal(t, 2, *env.changes)
		})
	}
}

func TestFailedRunLeavesStateUntouched(t *testing.T) {
	env := newTestEnv(t, domain.NewCheck("crs", "", "", automated("crschecker", false, nil)))
	h, err := env.dispatcher.Perform(context.Background(), 0, "roads")
	require.NoError(t, err)

	out := env.dispatcher.Complete(Completion{Handle: h, Successful: false, Err: errors.New("boom")})
	assert.Equal(t, StateFailed, out.State)
	assert.EqualError(t, out.Err, "boom")
	assert.Equal(t, domain.Unchecked, env.check(0).Validated)
	assert.Equal(t, "", env.check(0).ValidationNotes())
	assert.Zero(t, *env.changes)
}

func TestInFlightGuard(t *testing.T) {
	env := newTestEnv(t, domain.NewCheck("crs", "", "", automated("crschecker", false, nil)))
	ctx := context.Background()
	h, err := env.dispatcher.Perform(ctx, 0, "roads")
	require.NoError(t, err)

	_, err = env.dispatcher.Perform(ctx, 0, "roads")
	assert.ErrorIs(t, err, ErrInFlight)
	assert.Len(t, env.runner.requests, 1)

	env.dispatcher.Complete(Completion{Handle: h, Successful: true, Results: map[string]any{"OUTPUT": true}})
	h2, err := env.dispatcher.Perform(ctx, 0, "roads")
	require.NoError(t, err)
	assert.Greater(t, h2.Generation, h.Generation)
}

func TestRebindIgnoresStaleCompletions(t *testing.T) {
	env := newTestEnv(t, domain.NewCheck("crs", "", "", automated("crschecker", false, nil)))
	h, err := env.dispatcher.Perform(context.Background(), 0, "roads")
	require.NoError(t, err)

	rebuilt := domain.NewCheckList("Automation", "", domain.DatasetVector, domain.ArtifactDataset,
		domain.NewCheck("crs", "", "", automated("crschecker", false, nil)))
	adapter := tree.New(&rebuilt)
	env.dispatcher.Rebind(adapter)

	out := env.dispatcher.Complete(Completion{Handle: h, Successful: true, Results: map[string]any{"OUTPUT": true}})
	assert.True(t, out.Stale)
	assert.Equal(t, domain.Unchecked, rebuilt.Checks[0].Validated)
	assert.Equal(t, StateIdle, env.dispatcher.State(0))
}

func TestResetDiscardsLateCompletions(t *testing.T) {
	env := newTestEnv(t, domain.NewCheck("crs", "", "", automated("crschecker", false, nil)))
	ctx := context.Background()
	h, err := env.dispatcher.Perform(ctx, 0, "roads")
	require.NoError(t, err)

	env.dispatcher.Reset()
	assert.Equal(t, StateIdle, env.dispatcher.State(0))
	env.runner.out <- Completion{Handle: h, Successful: true, Results: map[string]any{"OUTPUT": true}}

	outs := env.dispatcher.Drain()
	require.Len(t, outs, 1)
	assert.True(t, outs[0].Stale)
	assert.Equal(t, domain.Unchecked, env.check(0).Validated)
	assert.Equal(t, "", env.check(0).ValidationNotes())
	assert.Zero(t, *env.changes)

	h2, err := env.dispatcher.Perform(ctx, 0, "roads")
	require.NoError(t, err)
	assert.Greater(t, h2.Generation, h.Generation)
}

func TestAwaitReturnsOutcomesAppliedEarlier(t *testing.T) {
	env := newTestEnv(t,
		domain.NewCheck("crs", "", "", automated("crschecker", false, nil)),
		domain.NewCheck("extent", "", "", automated("extentchecker", true, nil)),
	)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	handles, errs := env.dispatcher.AutomateAll(ctx, "roads")
	require.Empty(t, errs)
	require.Len(t, handles, 2)

	env.runner.out <- Completion{Handle: handles[1], Successful: true, Results: map[string]any{"OUTPUT": false}}
	env.runner.out <- Completion{Handle: handles[0], Successful: true, Results: map[string]any{"OUTPUT": true}}

	first, err := env.dispatcher.Await(ctx, handles[0])
	require.NoError(t, err)
	assert.True(t, first.Validated)
	second, err := env.dispatcher.Await(ctx, handles[1])
	require.NoError(t, err)
	assert.True(t, second.Validated)
	assert.Equal(t, domain.Checked, env.check(1).Validated)

	h, err := env.dispatcher.Perform(ctx, 0, "roads")
	require.NoError(t, err)
	env.runner.out <- Completion{Handle: h, Successful: false}
	require.Len(t, env.dispatcher.Drain(), 1)
	out, err := env.dispatcher.Await(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, out.State)
}

func TestToBool(t *testing.T) {
	cases := []struct {
		in   any
		want bool
	}{
		{nil, false},
		{true, true},
		{false, false},
		{0, false},
		{int32(0), false},
		{int64(3), true},
		{uint8(0), false},
		{0.0, false},
		{0.5, true},
		{"", false},
		{"false", true},
		{"0", true},
		{[]any{}, false},
		{[]string{"x"}, true},
		{map[string]any{}, false},
		{map[string]any{"a": 1}, true},
		{(*int)(nil), false},
		{struct{}{}, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, toBool(tc.in), "%#v", tc.in)
	}
}

func TestConfigureAndPerform(t *testing.T) {
	env := newTestEnv(t, domain.NewCheck("crs", "", "", automated("crschecker", false, map[string]any{"INPUT_CRS": "EPSG:4326"})))
	ctx := context.Background()

	_, err := env.dispatcher.ConfigureAndPerform(ctx, 0, "roads", ConfigurerFunc(
		func(ctx context.Context, alg algorithms.Algorithm, params map[string]any) (map[string]any, error) {
			return nil, ErrCanceled
		}))
	assert.ErrorIs(t, err, ErrCanceled)
	assert.Equal(t, StateIdle, env.dispatcher.State(0))
	assert.Empty(t, env.runner.requests)

	_, err = env.dispatcher.ConfigureAndPerform(ctx, 0, "roads", ConfigurerFunc(
		func(ctx context.Context, alg algorithms.Algorithm, params map[string]any) (map[string]any, error) {
			assert.Equal(t, "crschecker", alg.Name())
			params["INPUT_CRS"] = "EPSG:3857"
			return params, nil
		}))
	require.NoError(t, err)
	require.Len(t, env.runner.requests, 1)
	assert.Equal(t, "EPSG:3857", env.runner.requests[0].Parameters["INPUT_CRS"])
}

func TestAutomateAllSkipsDisabledChecks(t *testing.T) {
	env := newTestEnv(t,
		domain.NewCheck("crs", "", "", automated("crschecker", false, nil)),
		domain.NewCheck("manual", "", "", nil),
		domain.NewCheck("extent", "", "", automated("extentchecker", false, nil)),
	)
	handles, errs := env.dispatcher.AutomateAll(context.Background(), "roads")
	assert.Empty(t, errs)
	require.Len(t, handles, 2)
	assert.Equal(t, 0, handles[0].Check)
	assert.Equal(t, 2, handles[1].Check)
}

func TestLocalRunnerEndToEnd(t *testing.T) {
	registry := algorithms.Builtin(algorithms.BuiltinOptions{})
	registry.Register(stubAlgorithm{name: "explode", run: func(map[string]any) (map[string]any, error) {
		panic("kaboom")
	}})
	runner := NewLocalRunner(registry, 2, zap.NewNop())
	defer runner.Close()

	layer := algorithms.Layer{Name: "roads", SRID: 4326, Extent: algorithms.Rect{MaxX: 1, MaxY: 1}}
	cl := domain.NewCheckList("Automation", "", domain.DatasetVector, domain.ArtifactDataset,
		domain.NewCheck("crs", "", "", &domain.AutomationDescriptor{
			AlgorithmID:           "crschecker",
			ArtifactParameterName: "INPUT_LAYER",
			OutputName:            "OUTPUT",
			ExtraParameters:       map[string]any{"INPUT_CRS": "EPSG:4326"},
		}),
		domain.NewCheck("explode", "", "", automated("explode", false, nil)),
	)
	adapter := tree.New(&cl)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	d := NewDispatcher(adapter, registry, runner, zap.NewNop(), metrics)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h, err := d.Perform(ctx, 0, layer)
	require.NoError(t, err)
	out, err := d.Await(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, out.State)
	assert.Equal(t, domain.Checked, cl.Checks[0].Validated)

	h, err = d.Perform(ctx, 1, layer)
	require.NoError(t, err)
	out, err = d.Await(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, out.State)
	assert.ErrorContains(t, out.Err, "kaboom")
	assert.Equal(t, "", cl.Checks[1].ValidationNotes())

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.dispatches.WithLabelValues("qaworkbench:crschecker")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.completions.WithLabelValues("qaworkbench:explode", "failed")))
}

func TestLocalRunnerRejectsAfterClose(t *testing.T) {
	runner := NewLocalRunner(algorithms.Builtin(algorithms.BuiltinOptions{}), 1, nil)
	runner.Close()
	_, err := runner.Submit(context.Background(), Request{AlgorithmID: "crschecker"})
	assert.ErrorIs(t, err, ErrRunnerClosed)

	_, err = NewLocalRunner(algorithms.NewRegistry(), 1, nil).Submit(context.Background(), Request{AlgorithmID: "crschecker"})
	assert.Error(t, err)
}

func TestCanceledAwaitDoesNotBlockLaterRuns(t *testing.T) {
	registry := algorithms.NewRegistry(stubAlgorithm{name: "slow", run: func(map[string]any) (map[string]any, error) {
		time.Sleep(100 * time.Millisecond)
		return map[string]any{"OUTPUT": true}, nil
	}})
	runner := NewLocalRunner(registry, 1, zap.NewNop())
	defer runner.Close()
	cl := domain.NewCheckList("Automation", "", domain.DatasetVector, domain.ArtifactDataset,
		domain.NewCheck("slow", "", "", automated("slow", false, nil)))
	d := NewDispatcher(tree.New(&cl), registry, runner, zap.NewNop(), nil)

	h, err := d.Perform(context.Background(), 0, "roads")
	require.NoError(t, err)
	short, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	_, err = d.Await(short, h)
	cancel()
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateRunning, d.State(0))

	time.Sleep(300 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h2, err := d.Perform(ctx, 0, "roads")
	require.NoError(t, err)
	assert.Equal(t, domain.Checked, cl.Checks[0].Validated)

	out, err := d.Await(ctx, h2)
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, out.State)
}

func TestLocalRunnerCloseEndsCompletions(t *testing.T) {
	registry := algorithms.Builtin(algorithms.BuiltinOptions{})
	runner := NewLocalRunner(registry, 1, nil)
	runner.Close()
	runner.Close()

	_, ok := <-runner.Completions()
	assert.False(t, ok)

	cl := domain.NewCheckList("Automation", "", domain.DatasetVector, domain.ArtifactDataset)
	d := NewDispatcher(tree.New(&cl), registry, runner, nil, nil)
	_, err := d.Await(context.Background(), Handle{ID: 1})
	assert.ErrorIs(t, err, ErrRunnerClosed)
	assert.Empty(t, d.Drain())
}

func TestHandleReport(t *testing.T) {
	var received string
	registry := algorithms.NewRegistry(stubAlgorithm{name: "capture", run: func(params map[string]any) (map[string]any, error) {
		received, _ = params[algorithms.ReportParameter].(string)
		return map[string]any{"ACCEPTED": params["TARGET"] == "inbox"}, nil
	}})
	runner := NewLocalRunner(registry, 1, nil)
	defer runner.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rep := domain.ValidationReport{Name: domain.ReportName, ChecklistName: "c", DatasetName: "roads", OverallResult: true}
	c, err := HandleReport(ctx, runner, "capture", map[string]any{"TARGET": "inbox"}, rep)
	require.NoError(t, err)
	assert.True(t, c.Successful)
	assert.Equal(t, true, c.Results["ACCEPTED"])
	assert.Contains(t, received, `"dataset": "roads"`)
}
