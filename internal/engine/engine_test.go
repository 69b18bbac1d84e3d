package engine_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"qaworkbench/internal/algorithms"
	"qaworkbench/internal/automation"
	"qaworkbench/internal/checklist"
	"qaworkbench/internal/config"
	"qaworkbench/internal/db"
	"qaworkbench/internal/domain"
	"qaworkbench/internal/engine"
	"qaworkbench/internal/events"
	"qaworkbench/internal/migrate"
	"qaworkbench/internal/repo"
	"qaworkbench/internal/tree"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T, cfg *config.Config) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	_, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	if cfg == nil {
		cfg = config.Default()
	}
	eng, err := engine.New(conn, cfg, engine.Options{Workspace: dir})
	require.NoError(t, err)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: ctx}
}

const vectorChecklist = `{
  "name": "Vector basics",
  "description": "Basic checks",
  "dataset_type": "vector",
  "validation_artifact_type": "dataset",
  "checks": [
    {"name": "CRS", "description": "Uses WGS84",
     "automation": {"algorithm_id": "qaworkbench:crschecker", "artifact_parameter_name": "INPUT_LAYER",
                    "extra_parameters": {"INPUT_CRS": "EPSG:4326"}}},
    {"name": "Attributes", "description": "Has names"}
  ]
}`

func eventTypes(t *testing.T, env testEnv) []string {
	t.Helper()
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{Limit: 100})
	require.NoError(t, err)
	var types []string
	for i := len(evts) - 1; i >= 0; i-- {
		types = append(types, evts[i].Type)
	}
	return types
}

func TestImportExportDeleteChecklist(t *testing.T) {
	env := newTestEnv(t, nil)
	cl, path, err := env.Engine.ImportChecklist(env.Ctx, []byte(vectorChecklist), "alice")
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, checklist.StableIdentifier("Vector basics", domain.DatasetVector, domain.ArtifactDataset), cl.Identifier)

	raw, err := env.Engine.ExportChecklist("vector_basics", checklist.TemplateOptions())
	require.NoError(t, err)
	again, err := checklist.Load(raw)
	require.NoError(t, err)
	assert.Equal(t, cl.Identifier, again.Identifier)

	_, err = env.Engine.DeleteChecklist(env.Ctx, cl.Identifier.String(), "alice")
	require.NoError(t, err)
	_, err = env.Engine.DeleteChecklist(env.Ctx, cl.Identifier.String(), "alice")
	assert.ErrorIs(t, err, checklist.ErrNotFound)

	_, _, err = env.Engine.ImportChecklist(env.Ctx, []byte(`{"name": "x"}`), "alice")
	assert.ErrorIs(t, err, checklist.ErrSchema)

	assert.Equal(t, []string{events.ChecklistInstalled, events.ChecklistDeleted}, eventTypes(t, env))
}

func TestSeedServers(t *testing.T) {
	cfg := config.Default()
	cfg.Servers = []config.Server{{Name: "Team", URL: "https://example.org/checklists.json"}}
	env := newTestEnv(t, cfg)

	added, err := env.Engine.SeedServers(env.Ctx)
	require.NoError(t, err)
	assert.Len(t, added, 2)
	added, err = env.Engine.SeedServers(env.Ctx)
	require.NoError(t, err)
	assert.Empty(t, added)

	assert.Equal(t, []string{events.ServerAdded, events.ServerAdded}, eventTypes(t, env))
}

func TestServerLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	s, err := env.Engine.AddServer(env.Ctx, "Team", "https://example.org/a.json", "alice")
	require.NoError(t, err)
	edited, err := env.Engine.EditServer(env.Ctx, s.Identifier, "Team", "https://example.org/b.json", "alice")
	require.NoError(t, err)
	assert.Equal(t, s.Identifier, edited.Identifier)
	require.NoError(t, env.Engine.RemoveServer(env.Ctx, s.Identifier, "alice"))

	assert.Equal(t, []string{events.ServerAdded, events.ServerEdited, events.ServerRemoved}, eventTypes(t, env))
}

func TestDownloadAndInstall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[" + vectorChecklist + "]"))
	}))
	defer srv.Close()

	env := newTestEnv(t, nil)
	_, err := env.Engine.AddServer(env.Ctx, "Local", srv.URL, "alice")
	require.NoError(t, err)

	server, lists, err := env.Engine.Download(env.Ctx, "Local", true)
	require.NoError(t, err)
	require.Len(t, lists, 1)
	_, err = env.Engine.InstallChecklist(env.Ctx, server, lists[0], "alice")
	require.NoError(t, err)
	assert.Len(t, env.Engine.Library.List(), 1)
}

func TestSessionAutomationAndReport(t *testing.T) {
	env := newTestEnv(t, nil)
	cl, _, err := env.Engine.ImportChecklist(env.Ctx, []byte(vectorChecklist), "alice")
	require.NoError(t, err)

	layer := &algorithms.Layer{Name: "roads", SRID: 4326}
	s, err := env.Engine.NewSession("Vector basics", "", layer, "alice")
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "roads", s.Dataset)

	ctx, cancel := context.WithTimeout(env.Ctx, 5*time.Second)
	defer cancel()
	outcomes, errs := s.AutomateAll(ctx)
	require.Empty(t, errs)
	require.Len(t, outcomes, 1)
	assert.Equal(t, automation.StateSucceeded, outcomes[0].State)
	assert.Equal(t, domain.Checked, s.Checklist.Checks[0].Validated)

	rep := s.Report()
	assert.False(t, rep.OverallResult)
	s.Adapter.SetData(tree.CheckCoordinate(1, tree.ColumnValue), domain.Checked, tree.AspectCheckState)
	rep = s.Report()
	assert.True(t, rep.OverallResult)
	assert.Equal(t, "alice", rep.Validator)

	require.NoError(t, env.Engine.RecordReport(env.Ctx, rep, cl.Identifier, "alice"))
	assert.Contains(t, eventTypes(t, env), events.ReportGenerated)

	installed, err := env.Engine.Library.Find("Vector basics")
	require.NoError(t, err)
	assert.Equal(t, domain.Unchecked, installed.Checks[0].Validated, "library copy is untouched")
}

type gatedAlgorithm struct{ release chan struct{} }

func (gatedAlgorithm) Name() string                       { return "gated" }
func (gatedAlgorithm) DisplayName() string                { return "Gated" }
func (gatedAlgorithm) Parameters() []algorithms.Parameter { return nil }
func (g gatedAlgorithm) Run(ctx context.Context, params map[string]any, log *zap.Logger) (map[string]any, error) {
	<-g.release
	return map[string]any{"OUTPUT": true}, nil
}

func TestSessionClearDiscardsRunningAutomation(t *testing.T) {
	env := newTestEnv(t, nil)
	gate := gatedAlgorithm{release: make(chan struct{})}
	env.Engine.Algorithms.Register(gate)
	_, _, err := env.Engine.ImportChecklist(env.Ctx, []byte(`{
  "name": "Gated",
  "dataset_type": "vector",
  "validation_artifact_type": "dataset",
  "checks": [
    {"name": "Slow", "automation": {"algorithm_id": "qaworkbench:gated"}},
    {"name": "Manual"}
  ]
}`), "alice")
	require.NoError(t, err)

	s, err := env.Engine.NewSession("Gated", "/data/roads.shp", nil, "alice")
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithTimeout(env.Ctx, 5*time.Second)
	defer cancel()
	h, err := s.Dispatcher.Perform(ctx, 0, s.Artifact)
	require.NoError(t, err)
	s.Adapter.SetData(tree.CheckCoordinate(1, tree.ColumnValue), domain.Checked, tree.AspectCheckState)

	assert.Equal(t, 4, s.Clear(), "state and notes of both checks")
	close(gate.release)

	out, err := s.Dispatcher.Await(ctx, h)
	require.NoError(t, err)
	assert.True(t, out.Stale)
	assert.Equal(t, domain.Unchecked, s.Checklist.Checks[0].Validated)
	assert.Equal(t, "", s.Checklist.Checks[0].ValidationNotes())
	assert.False(t, s.Report().OverallResult)

	outcome, err := s.Automate(ctx, 0)
	require.NoError(t, err)
	assert.True(t, outcome.Validated)
}

func TestResolveArtifact(t *testing.T) {
	vector := domain.NewCheckList("v", "", domain.DatasetVector, domain.ArtifactDataset)
	doc := domain.NewCheckList("d", "", domain.DatasetDocument, domain.ArtifactDataset)
	style := domain.NewCheckList("s", "", domain.DatasetVector, domain.ArtifactStyle)
	layer := &algorithms.Layer{Name: "roads"}

	a, err := engine.ResolveArtifact(vector, "/data/roads.gpkg", nil)
	require.NoError(t, err)
	assert.Equal(t, algorithms.Layer{Name: "roads.gpkg", Path: "/data/roads.gpkg"}, a)

	a, err = engine.ResolveArtifact(doc, "/data/report.pdf", layer)
	require.NoError(t, err)
	assert.Equal(t, "/data/report.pdf", a)
	_, err = engine.ResolveArtifact(doc, "", layer)
	assert.ErrorIs(t, err, engine.ErrArtifactRequired)

	a, err = engine.ResolveArtifact(style, "/data/roads.qml", nil)
	require.NoError(t, err)
	assert.Equal(t, "/data/roads.qml", a)
	a, err = engine.ResolveArtifact(style, "", layer)
	require.NoError(t, err)
	assert.Equal(t, *layer, a)
}
