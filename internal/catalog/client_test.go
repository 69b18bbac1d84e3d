package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"qaworkbench/internal/checklist"
	"qaworkbench/internal/domain"
)

const catalogJSON = `[
  {"name": "Vector basics", "dataset_type": "vector", "validation_artifact_type": "dataset",
   "checks": [{"name": "CRS", "automation": {"algorithm_id": "qaworkbench:crschecker", "extra_parameters": {"INPUT_CRS": "EPSG:4326"}}}]},
  {"name": "Broken", "dataset_type": "hologram", "validation_artifact_type": "dataset"},
  {"name": "Raster styles", "dataset_type": "raster", "validation_artifact_type": "style"}
]`

func TestFetchParsesAndCaches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(catalogJSON))
	}))
	defer srv.Close()

	c, err := New(srv.Client(), 4, zap.NewNop())
	require.NoError(t, err)
	server := domain.NewChecklistServer("test", srv.URL+"/checklists.json")

	lists, err := c.Fetch(context.Background(), server)
	require.NoError(t, err)
	require.Len(t, lists, 2)
	assert.Equal(t, "Vector basics", lists[0].Name)
	assert.Equal(t, "qaworkbench:crschecker", lists[0].Checks[0].Automation().AlgorithmID)

	_, err = c.Fetch(context.Background(), server)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	c.Refresh(server)
	_, err = c.Fetch(context.Background(), server)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.Error(w, "nope", http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"not": "a list"}`))
	}))
	defer srv.Close()

	c, err := New(srv.Client(), 0, nil)
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), domain.NewChecklistServer("missing", srv.URL+"/missing"))
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	_, err = c.Fetch(context.Background(), domain.NewChecklistServer("object", srv.URL+"/object"))
	assert.Error(t, err)
}

func TestInstall(t *testing.T) {
	lib, err := checklist.OpenLibrary(t.TempDir(), nil)
	require.NoError(t, err)
	c, err := New(nil, 0, nil)
	require.NoError(t, err)

	cl := domain.NewCheckList("Vector basics", "", domain.DatasetVector, domain.ArtifactDataset)
	path, err := c.Install(lib, cl)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Len(t, lib.List(), 1)
}
