package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qaworkbench/internal/automation"
	"qaworkbench/internal/config"
	"qaworkbench/internal/db"
	"qaworkbench/internal/engine"
	"qaworkbench/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	require.NoError(t, err)
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	e, err := engine.New(conn, config.Default(), engine.Options{
		Workspace: workspace,
		Metrics:   automation.NewMetrics(reg),
	})
	require.NoError(t, err)
	srv, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testSecret},
		Sessions: 4,
		Gatherer: reg,
	})
	require.NoError(t, err)

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	httpSrv := &http.Server{Handler: srv}
	go httpSrv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			httpSrv.Shutdown(context.Background())
			srv.Close()
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func bearer(t *testing.T, actor, scope string) map[string]string {
	t.Helper()
	token, err := SignToken(testSecret, actor, scope, time.Hour, time.Now())
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

var vectorChecklist = map[string]any{
	"name":                     "Vector basics",
	"description":              "Basic checks",
	"dataset_type":             "vector",
	"validation_artifact_type": "dataset",
	"checks": []any{
		map[string]any{
			"name":        "CRS",
			"description": "Uses WGS84",
			"automation": map[string]any{
				"algorithm_id":            "qaworkbench:crschecker",
				"artifact_parameter_name": "INPUT_LAYER",
				"extra_parameters":        map[string]any{"INPUT_CRS": "EPSG:4326"},
			},
		},
		map[string]any{"name": "Attributes", "description": "Has names"},
	},
}

var roadsLayer = map[string]any{
	"name":   "roads",
	"srid":   4326,
	"extent": map[string]any{"xmin": 0, "ymin": 0, "xmax": 10, "ymax": 10},
}

func TestAuthentication(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "unauthorized", decode[apiError](t, body).Body.Code)

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, bearer(t, "alice", "validate"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	who := decode[WhoAmIResponse](t, body)
	assert.Equal(t, "alice", who.ActorID)
	assert.Equal(t, []string{"checklists.read", "sessions.write"}, who.Permissions)

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/servers",
		ServerRequest{Name: "Team", URL: "https://example.org/a.json"}, bearer(t, "alice", "read"))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	apiErr := decode[apiError](t, body)
	assert.Equal(t, "forbidden", apiErr.Body.Code)
	assert.Equal(t, "servers.write", apiErr.Body.Details["permission"])
}

func TestChecklistsAndServers(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	admin := bearer(t, "root", "admin")

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/checklists", vectorChecklist, admin)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
	created := decode[ChecklistResponse](t, body)
	assert.Equal(t, "layer", created.Source)
	require.Len(t, created.Checks, 2)
	assert.Nil(t, created.Checks[1].Automation)

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/checklists", map[string]any{"name": "broken"}, admin)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "invalid_checklist", decode[apiError](t, body).Body.Code)

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/checklists?dataset_type=vector", nil, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	assert.Len(t, decode[[]ChecklistSummary](t, body), 1)

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/checklists/vector_basics", nil, admin)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/servers", ServerRequest{Name: "Team", URL: "https://example.org/a.json"}, admin)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
	server := decode[ServerResponse](t, body)

	res, body = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/servers/"+server.ID, map[string]any{"url": "https://example.org/b.json"}, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	edited := decode[ServerResponse](t, body)
	assert.Equal(t, server.ID, edited.ID)
	assert.Equal(t, "Team", edited.Name)
	assert.Equal(t, "https://example.org/b.json", edited.URL)

	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/servers/"+server.ID, nil, admin)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/servers/"+server.ID, nil, admin)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/checklists/"+created.ID, nil, admin)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/checklists/"+created.ID, nil, admin)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?limit=2", nil, admin)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	page := decode[paginatedEvents](t, body)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "checklist.deleted", page.Items[0].Type)
	assert.Equal(t, "root", page.Items[0].ActorID)
	assert.NotEmpty(t, page.NextCursor)
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	admin := bearer(t, "root", "admin")
	validator := bearer(t, "alice", "validate")

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/checklists", vectorChecklist, admin)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/sessions", map[string]any{
		"checklist_id": "Vector basics",
		"layer":        roadsLayer,
	}, validator)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
	sess := decode[SessionResponse](t, body)
	assert.Equal(t, "roads", sess.Dataset)
	assert.Equal(t, "alice", sess.Validator)
	require.Len(t, sess.Rows, 2)
	require.Len(t, sess.Rows[0].Properties, 4)
	assert.Equal(t, "Validation notes", sess.Rows[0].Properties[3].Label)
	assert.True(t, sess.Rows[0].Properties[3].Editable)
	assert.False(t, sess.Rows[0].Properties[0].Editable)
	assert.Equal(t, "Not enabled", sess.Rows[1].Properties[2].Value)
	base := srv.URL + "/v0/sessions/" + sess.ID

	res, body = doJSON(t, client, http.MethodPost, base+"/checks/0/automation", nil, validator)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	outcome := decode[OutcomeResponse](t, body)
	assert.Equal(t, "succeeded", outcome.State)
	assert.True(t, outcome.Validated)
	assert.Equal(t, "Automated validation succeeded - map[OUTPUT:true]", outcome.Notes)

	res, body = doJSON(t, client, http.MethodPost, base+"/checks/1/automation", nil, validator)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "automation_not_configured", decode[apiError](t, body).Body.Code)

	res, _ = doJSON(t, client, http.MethodPost, base+"/checks/7/automation", nil, validator)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, body = doJSON(t, client, http.MethodPut, base+"/checks/1/state", SetStateRequest{State: "checked"}, validator)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	sess = decode[SessionResponse](t, body)
	assert.True(t, sess.Result)
	assert.Equal(t, "validated", sess.Rows[1].Highlight)

	res, body = doJSON(t, client, http.MethodPut, base+"/checks/1/notes", SetNotesRequest{Notes: "names ok"}, validator)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	assert.Equal(t, "names ok", decode[SessionResponse](t, body).Rows[1].Properties[3].Value)

	res, _ = doJSON(t, client, http.MethodPut, base+"/checks/9/notes", SetNotesRequest{Notes: "x"}, validator)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, body = doJSON(t, client, http.MethodGet, base+"/report", nil, validator)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	rep := decode[map[string]any](t, body)
	assert.Equal(t, true, rep["dataset_is_valid"])
	assert.Equal(t, "alice", rep["validator"])

	res, body = doJSON(t, client, http.MethodGet, base+"/report?format=markdown", nil, validator)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	assert.True(t, strings.HasPrefix(res.Header.Get("Content-Type"), "text/markdown"))

	res, body = doJSON(t, client, http.MethodPost, base+"/clear", nil, validator)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	sess = decode[SessionResponse](t, body)
	assert.False(t, sess.Result)
	assert.Equal(t, "unchecked", sess.Rows[0].State)

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, _ = doJSON(t, client, http.MethodDelete, base, nil, validator)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res, _ = doJSON(t, client, http.MethodGet, base, nil, validator)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestSessionRequiresArtifact(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	admin := bearer(t, "root", "admin")

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/checklists", vectorChecklist, admin)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))

	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v0/sessions", map[string]any{"checklist_id": "Vector basics"}, admin)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v0/sessions", map[string]any{"checklist_id": "missing", "dataset": "/tmp/x"}, admin)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestSessionEviction(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	admin := bearer(t, "root", "admin")

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/checklists", vectorChecklist, admin)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))

	var ids []string
	for i := 0; i < 5; i++ {
		res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/sessions",
			map[string]any{"checklist_id": "Vector basics", "layer": roadsLayer}, admin)
		require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
		ids = append(ids, decode[SessionResponse](t, body).ID)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/sessions/"+ids[0], nil, admin)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/sessions/"+ids[4], nil, admin)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/sessions/not-a-uuid", nil, admin)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}
