package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"qaworkbench/internal/automation"
	"qaworkbench/internal/catalog"
	"qaworkbench/internal/checklist"
	"qaworkbench/internal/domain"
	"qaworkbench/internal/engine"
	"qaworkbench/internal/engine/auth"
	"qaworkbench/internal/registry"
	"qaworkbench/internal/report"
	"qaworkbench/internal/repo"
	"qaworkbench/internal/tree"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	// Sessions caps the number of live validation sessions.
	Sessions int
	// Gatherer backs /metrics; nil leaves the endpoint out.
	Gatherer prometheus.Gatherer
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"automation_in_flight"`
	Message string         `json:"message" example:"automation already in flight"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"check\":0}"`
}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// Server is the HTTP API together with the validation sessions it owns.
type Server struct {
	http.Handler
	sessions *sessionStore
}

// Close closes every live session.
func (s *Server) Close() { s.sessions.purge() }

// New returns an HTTP handler exposing the workbench API.
func New(cfg Config) (*Server, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	log := cfg.Engine.Logger
	if log == nil {
		log = zap.NewNop()
	}
	sessions, err := newSessionStore(cfg.Sessions, log.Named("sessions"))
	if err != nil {
		return nil, err
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestLogger(log.Named("http")))
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	if cfg.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	hcfg := huma.DefaultConfig("QA Workbench API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	e := cfg.Engine
	registerDocs(router, basePath)
	registerHealth(group)
	registerMe(group)
	registerChecklists(group, e)
	registerServers(group, e)
	registerSessions(group, e, sessions)
	registerReports(group, e, sessions)
	registerEvents(group, e)
	registerOpenAPI(router, api, basePath)

	return &Server{Handler: router, sessions: sessions}, nil
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			log.Debug("request", zap.String("method", r.Method), zap.String("path", r.URL.Path))
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": fe.Permission})
	}
	var ie *tree.IndexError
	if errors.As(err, &ie) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), map[string]any{"row": ie.Row})
	}
	var schema *checklist.SchemaError
	if errors.As(err, &schema) {
		return newAPIError(http.StatusBadRequest, "invalid_checklist", err.Error(), map[string]any{"field": schema.Field})
	}
	var ce *automation.ConfigurationError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusBadRequest, "automation_not_configured", err.Error(), map[string]any{"check": ce.Check, "reason": ce.Reason})
	}
	var upstream *catalog.StatusError
	if errors.As(err, &upstream) {
		return newAPIError(http.StatusBadGateway, "catalog_unavailable", err.Error(), map[string]any{"status": upstream.StatusCode})
	}
	switch {
	case errors.Is(err, automation.ErrInFlight):
		return newAPIError(http.StatusConflict, "automation_in_flight", err.Error(), nil)
	case errors.Is(err, repo.ErrNotFound), errors.Is(err, registry.ErrNotFound), errors.Is(err, checklist.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrArtifactRequired):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, context.DeadlineExceeded):
		return newAPIError(http.StatusGatewayTimeout, "timeout", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>QA Workbench API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		perms := make([]string, 0, len(principal.Permissions))
		for p := range principal.Permissions {
			perms = append(perms, p)
		}
		sort.Strings(perms)
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{ActorID: principal.ActorID, Permissions: perms}}, nil
	})
}

func registerChecklists(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-checklists",
		Method:      http.MethodGet,
		Path:        "/checklists",
		Summary:     "List installed checklists",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		DatasetType  string `query:"dataset_type" enum:"document,raster,vector"`
		ArtifactType string `query:"artifact_type" enum:"dataset,metadata,style"`
	}) (*struct {
		Body []ChecklistSummary `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermChecklistsRead); err != nil {
			return nil, err
		}
		var items []domain.CheckList
		for _, cl := range e.Library.List() {
			if input.DatasetType != "" && string(cl.DatasetType) != input.DatasetType {
				continue
			}
			if input.ArtifactType != "" && string(cl.ArtifactType) != input.ArtifactType {
				continue
			}
			items = append(items, cl)
		}
		return &struct {
			Body []ChecklistSummary `json:"body"`
		}{Body: mapChecklists(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "import-checklist",
		Method:        http.MethodPost,
		Path:          "/checklists",
		Summary:       "Install a checklist document",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body map[string]any `json:"body"`
	}) (*struct {
		Body ChecklistResponse `json:"body"`
	}, error) {
		p, err := requirePermission(ctx, auth.PermChecklistsWrite)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		cl, _, err := e.ImportChecklist(ctx, raw, p.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChecklistResponse `json:"body"`
		}{Body: checklistResponse(cl)}, nil
	})

	type checklistPath struct {
		ID string `path:"id" doc:"Identifier, name or file stem"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-checklist",
		Method:      http.MethodGet,
		Path:        "/checklists/{id}",
		Summary:     "Get checklist",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *checklistPath) (*struct {
		Body ChecklistResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermChecklistsRead); err != nil {
			return nil, err
		}
		cl, err := e.Library.Find(input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChecklistResponse `json:"body"`
		}{Body: checklistResponse(cl)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-checklist",
		Method:        http.MethodDelete,
		Path:          "/checklists/{id}",
		Summary:       "Delete checklist",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *checklistPath) (*struct{}, error) {
		p, err := requirePermission(ctx, auth.PermChecklistsWrite)
		if err != nil {
			return nil, err
		}
		if _, err := e.DeleteChecklist(ctx, input.ID, p.ActorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerServers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-servers",
		Method:      http.MethodGet,
		Path:        "/servers",
		Summary:     "List checklist servers",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ServerResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermChecklistsRead); err != nil {
			return nil, err
		}
		items, err := e.Servers.List(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]ServerResponse, 0, len(items))
		for _, s := range items {
			out = append(out, serverResponse(s))
		}
		return &struct {
			Body []ServerResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-server",
		Method:        http.MethodPost,
		Path:          "/servers",
		Summary:       "Bookmark a checklist server",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body ServerRequest `json:"body"`
	}) (*struct {
		Body ServerResponse `json:"body"`
	}, error) {
		p, err := requirePermission(ctx, auth.PermServersWrite)
		if err != nil {
			return nil, err
		}
		s, err := e.AddServer(ctx, input.Body.Name, input.Body.URL, p.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ServerResponse `json:"body"`
		}{Body: serverResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "edit-server",
		Method:      http.MethodPatch,
		Path:        "/servers/{id}",
		Summary:     "Edit a checklist server",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body struct {
			Name *string `json:"name,omitempty"`
			URL  *string `json:"url,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body ServerResponse `json:"body"`
	}, error) {
		p, err := requirePermission(ctx, auth.PermServersWrite)
		if err != nil {
			return nil, err
		}
		id, err := parseUUID(input.ID)
		if err != nil {
			return nil, err
		}
		current, err := e.Servers.Get(ctx, id)
		if err != nil {
			return nil, handleError(err)
		}
		name, url := current.Name, current.URL
		if input.Body.Name != nil {
			name = *input.Body.Name
		}
		if input.Body.URL != nil {
			url = *input.Body.URL
		}
		s, err := e.EditServer(ctx, id, name, url, p.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ServerResponse `json:"body"`
		}{Body: serverResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-server",
		Method:        http.MethodDelete,
		Path:          "/servers/{id}",
		Summary:       "Remove a checklist server",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		p, err := requirePermission(ctx, auth.PermServersWrite)
		if err != nil {
			return nil, err
		}
		id, err := parseUUID(input.ID)
		if err != nil {
			return nil, err
		}
		if err := e.RemoveServer(ctx, id, p.ActorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "server-catalog",
		Method:      http.MethodGet,
		Path:        "/servers/{id}/catalog",
		Summary:     "List the checklists a server publishes",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		ID      string `path:"id" doc:"Server identifier or name"`
		Refresh bool   `query:"refresh"`
	}) (*struct {
		Body []ChecklistSummary `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermChecklistsRead); err != nil {
			return nil, err
		}
		_, lists, err := e.Download(ctx, input.ID, input.Refresh)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ChecklistSummary `json:"body"`
		}{Body: mapChecklists(lists)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "install-from-catalog",
		Method:        http.MethodPost,
		Path:          "/servers/{id}/catalog/install",
		Summary:       "Install a published checklist",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id" doc:"Server identifier or name"`
		Body struct {
			Checklist string `json:"checklist" doc:"Identifier or name of the published checklist"`
		} `json:"body"`
	}) (*struct {
		Body ChecklistResponse `json:"body"`
	}, error) {
		p, err := requirePermission(ctx, auth.PermChecklistsWrite)
		if err != nil {
			return nil, err
		}
		server, lists, err := e.Download(ctx, input.ID, false)
		if err != nil {
			return nil, handleError(err)
		}
		for _, cl := range lists {
			if cl.Identifier.String() != input.Body.Checklist && cl.Name != input.Body.Checklist {
				continue
			}
			if _, err := e.InstallChecklist(ctx, server, cl, p.ActorID); err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body ChecklistResponse `json:"body"`
			}{Body: checklistResponse(cl)}, nil
		}
		return nil, newAPIError(http.StatusNotFound, "not_found", "checklist not published by server", map[string]any{"checklist": input.Body.Checklist})
	})
}

type sessionPath struct {
	ID string `path:"id"`
}

type checkPath struct {
	ID  string `path:"id"`
	Row int    `path:"row"`
}

// withSession runs fn holding the session's lock.
func withSession(store *sessionStore, rawID string, fn func(s *liveSession) error) error {
	id, err := parseUUID(rawID)
	if err != nil {
		return err
	}
	s, ok := store.get(id)
	if !ok {
		return newAPIError(http.StatusNotFound, "not_found", "session not found", map[string]any{"id": rawID})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sync()
	return fn(s)
}

func checkIndex(s *liveSession, row int) error {
	c := tree.CheckCoordinate(row, tree.ColumnValue)
	if !s.Adapter.Valid(c) {
		return &tree.IndexError{Row: row, Column: tree.ColumnValue}
	}
	return nil
}

func parseCheckState(v string) domain.CheckState {
	state, _ := domain.ParseCheckState(v)
	return state
}

func registerSessions(api huma.API, e engine.Engine, store *sessionStore) {
	type sessionOutput struct {
		Body SessionResponse `json:"body"`
	}

	huma.Register(api, huma.Operation{
		OperationID:   "create-session",
		Method:        http.MethodPost,
		Path:          "/sessions",
		Summary:       "Start validating a dataset against a checklist",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateSessionRequest `json:"body"`
	}) (*sessionOutput, error) {
		p, err := requirePermission(ctx, auth.PermSessionsWrite)
		if err != nil {
			return nil, err
		}
		validator := input.Body.Validator
		if validator == "" && p.ActorID != anonymousActor {
			validator = p.ActorID
		}
		sess, err := e.NewSession(input.Body.ChecklistID, input.Body.Dataset, input.Body.Layer, validator)
		if err != nil {
			return nil, handleError(err)
		}
		ls := store.add(sess)
		ls.mu.Lock()
		defer ls.mu.Unlock()
		return &sessionOutput{Body: sessionResponse(ls.Session)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}",
		Summary:     "Session tree",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *sessionPath) (*sessionOutput, error) {
		if _, err := requirePermission(ctx, auth.PermSessionsWrite); err != nil {
			return nil, err
		}
		out := &sessionOutput{}
		err := withSession(store, input.ID, func(s *liveSession) error {
			out.Body = sessionResponse(s.Session)
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "close-session",
		Method:        http.MethodDelete,
		Path:          "/sessions/{id}",
		Summary:       "Close a session",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *sessionPath) (*struct{}, error) {
		if _, err := requirePermission(ctx, auth.PermSessionsWrite); err != nil {
			return nil, err
		}
		id, err := parseUUID(input.ID)
		if err != nil {
			return nil, err
		}
		if !store.remove(id) {
			return nil, newAPIError(http.StatusNotFound, "not_found", "session not found", map[string]any{"id": input.ID})
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-check-state",
		Method:      http.MethodPut,
		Path:        "/sessions/{id}/checks/{row}/state",
		Summary:     "Set a check's validated state",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Row  int             `path:"row"`
		Body SetStateRequest `json:"body"`
	}) (*sessionOutput, error) {
		if _, err := requirePermission(ctx, auth.PermSessionsWrite); err != nil {
			return nil, err
		}
		out := &sessionOutput{}
		err := withSession(store, input.ID, func(s *liveSession) error {
			if err := checkIndex(s, input.Row); err != nil {
				return err
			}
			c := tree.CheckCoordinate(input.Row, tree.ColumnValue)
			s.Adapter.SetData(c, parseCheckState(input.Body.State), tree.AspectCheckState)
			out.Body = sessionResponse(s.Session)
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-check-notes",
		Method:      http.MethodPut,
		Path:        "/sessions/{id}/checks/{row}/notes",
		Summary:     "Set a check's validation notes",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Row  int             `path:"row"`
		Body SetNotesRequest `json:"body"`
	}) (*sessionOutput, error) {
		if _, err := requirePermission(ctx, auth.PermSessionsWrite); err != nil {
			return nil, err
		}
		out := &sessionOutput{}
		err := withSession(store, input.ID, func(s *liveSession) error {
			if err := checkIndex(s, input.Row); err != nil {
				return err
			}
			c := tree.PropertyCoordinate(input.Row, domain.PropertyValidationNotes, tree.ColumnValue)
			s.Adapter.SetData(c, input.Body.Notes, tree.AspectEdit)
			out.Body = sessionResponse(s.Session)
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "automate-check",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/checks/{row}/automation",
		Summary:     "Run a check's automation and wait for the outcome",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *checkPath) (*struct {
		Body OutcomeResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermSessionsWrite); err != nil {
			return nil, err
		}
		var outcome automation.Outcome
		err := withSession(store, input.ID, func(s *liveSession) error {
			var err error
			outcome, err = s.Automate(ctx, input.Row)
			return err
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OutcomeResponse `json:"body"`
		}{Body: outcomeResponse(outcome)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "automate-all",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/automation",
		Summary:     "Run every enabled automation",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *sessionPath) (*struct {
		Body AutomateAllResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermSessionsWrite); err != nil {
			return nil, err
		}
		resp := AutomateAllResponse{Outcomes: []OutcomeResponse{}, Errors: []string{}}
		err := withSession(store, input.ID, func(s *liveSession) error {
			outcomes, errs := s.AutomateAll(ctx)
			for _, o := range outcomes {
				resp.Outcomes = append(resp.Outcomes, outcomeResponse(o))
			}
			for _, err := range errs {
				resp.Errors = append(resp.Errors, err.Error())
			}
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AutomateAllResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "clear-session",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/clear",
		Summary:     "Reset every check to unchecked with empty notes",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *sessionPath) (*sessionOutput, error) {
		if _, err := requirePermission(ctx, auth.PermSessionsWrite); err != nil {
			return nil, err
		}
		out := &sessionOutput{}
		err := withSession(store, input.ID, func(s *liveSession) error {
			s.Clear()
			out.Body = sessionResponse(s.Session)
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return out, nil
	})
}

func registerReports(api huma.API, e engine.Engine, store *sessionStore) {
	huma.Register(api, huma.Operation{
		OperationID: "session-report",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}/report",
		Summary:     "Render the validation report",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		Format string `query:"format" enum:"json,text,markdown,html" default:"json"`
	}) (*struct {
		ContentType string `header:"Content-Type"`
		Body        []byte
	}, error) {
		if _, err := requirePermission(ctx, auth.PermSessionsWrite); err != nil {
			return nil, err
		}
		format, err := report.ParseFormat(input.Format)
		if err != nil {
			return nil, handleError(err)
		}
		var rep domain.ValidationReport
		if err := withSession(store, input.ID, func(s *liveSession) error {
			rep = s.Report()
			return nil
		}); err != nil {
			return nil, handleError(err)
		}
		body, err := report.Render(rep, format)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			ContentType string `header:"Content-Type"`
			Body        []byte
		}{ContentType: contentTypes[format], Body: body}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "handle-session-report",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/report/handle",
		Summary:     "Send the validation report to a report handler",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body HandleReportRequest `json:"body"`
	}) (*struct {
		Body CompletionResponse `json:"body"`
	}, error) {
		p, err := requirePermission(ctx, auth.PermSessionsWrite)
		if err != nil {
			return nil, err
		}
		var (
			rep         domain.ValidationReport
			checklistID string
		)
		if err := withSession(store, input.ID, func(s *liveSession) error {
			rep = s.Report()
			checklistID = s.Checklist.Identifier.String()
			return nil
		}); err != nil {
			return nil, handleError(err)
		}
		c, err := e.HandleReport(ctx, input.Body.AlgorithmID, e.ReportHandlerParams(input.Body.Parameters), rep)
		if err != nil {
			return nil, handleError(err)
		}
		if c.Successful {
			id, _ := parseUUID(checklistID)
			if err := e.RecordReport(ctx, rep, id, p.ActorID); err != nil {
				return nil, handleError(err)
			}
		}
		resp := CompletionResponse{Successful: c.Successful, Results: c.Results}
		if c.Err != nil {
			resp.Error = c.Err.Error()
		}
		return &struct {
			Body CompletionResponse `json:"body"`
		}{Body: resp}, nil
	})
}

var contentTypes = map[report.Format]string{
	report.FormatJSON:     "application/json",
	report.FormatText:     "text/plain; charset=utf-8",
	report.FormatMarkdown: "text/markdown; charset=utf-8",
	report.FormatHTML:     "text/html; charset=utf-8",
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"checklist,server"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, auth.PermEventsRead); err != nil {
			return nil, err
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEvents(ctx, repo.EventFilters{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Cursor:     cursorID,
			Limit:      limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
