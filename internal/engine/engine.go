// Package engine wires a workspace together: the checklist library, server
// bookmarks, the catalog client, the algorithm registry and the event log.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"qaworkbench/internal/algorithms"
	"qaworkbench/internal/automation"
	"qaworkbench/internal/catalog"
	"qaworkbench/internal/checklist"
	"qaworkbench/internal/config"
	"qaworkbench/internal/domain"
	"qaworkbench/internal/events"
	"qaworkbench/internal/registry"
	"qaworkbench/internal/repo"
)

// SystemActor records events that no user triggered.
const SystemActor = "system"

type Engine struct {
	DB         *sql.DB
	Repo       repo.Repo
	Events     events.Writer
	Config     *config.Config
	Library    *checklist.Library
	Servers    registry.Registry
	Catalog    *catalog.Client
	Algorithms *algorithms.Registry
	Metrics    *automation.Metrics
	Logger     *zap.Logger
	Now        func() time.Time
}

type Options struct {
	Workspace  string
	Logger     *zap.Logger
	Metrics    *automation.Metrics
	HTTPClient *http.Client
	MailSender algorithms.MailSender
}

func New(db *sql.DB, cfg *config.Config, opts Options) (Engine, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	lib, err := checklist.OpenLibrary(cfg.LibraryDir(opts.Workspace), log.Named("library"))
	if err != nil {
		return Engine{}, err
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(cfg.Catalog.TimeoutSeconds) * time.Second}
	}
	cat, err := catalog.New(httpClient, cfg.Catalog.CacheSize, log.Named("catalog"))
	if err != nil {
		return Engine{}, err
	}
	r := repo.Repo{DB: db}
	return Engine{
		DB:         db,
		Repo:       r,
		Events:     events.Writer{DB: db},
		Config:     cfg,
		Library:    lib,
		Servers:    registry.Registry{Store: repo.SettingsStore{Repo: r}},
		Catalog:    cat,
		Algorithms: algorithms.Builtin(algorithms.BuiltinOptions{HTTPClient: httpClient, MailSender: opts.MailSender}),
		Metrics:    opts.Metrics,
		Logger:     log,
		Now:        time.Now,
	}, nil
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) events() events.Writer {
	w := e.Events
	w.Now = e.now
	return w
}

// ImportChecklist installs a checklist document read from disk or a request.
func (e Engine) ImportChecklist(ctx context.Context, raw []byte, actorID string) (domain.CheckList, string, error) {
	cl, err := checklist.Load(raw)
	if err != nil {
		return domain.CheckList{}, "", err
	}
	path, err := e.installChecklist(ctx, cl, "import", actorID)
	return cl, path, err
}

// InstallChecklist saves a downloaded checklist into the library.
func (e Engine) InstallChecklist(ctx context.Context, server domain.ChecklistServer, cl domain.CheckList, actorID string) (string, error) {
	return e.installChecklist(ctx, cl, server.Name, actorID)
}

func (e Engine) installChecklist(ctx context.Context, cl domain.CheckList, source, actorID string) (string, error) {
	path, err := e.Catalog.Install(e.Library, cl)
	if err != nil {
		return "", err
	}
	err = e.events().Append(ctx, nil, events.ChecklistInstalled, "checklist", cl.Identifier.String(), actorID,
		events.EventPayload{"name": cl.Name, "source": source, "path": path})
	return path, err
}

func (e Engine) DeleteChecklist(ctx context.Context, ref, actorID string) (domain.CheckList, error) {
	cl, err := e.Library.Find(ref)
	if err != nil {
		return domain.CheckList{}, err
	}
	if err := e.Library.Delete(cl); err != nil {
		return domain.CheckList{}, err
	}
	err = e.events().Append(ctx, nil, events.ChecklistDeleted, "checklist", cl.Identifier.String(), actorID,
		events.EventPayload{"name": cl.Name})
	return cl, err
}

// ExportChecklist serializes an installed checklist.
func (e Engine) ExportChecklist(ref string, opts checklist.SaveOptions) ([]byte, error) {
	cl, err := e.Library.Find(ref)
	if err != nil {
		return nil, err
	}
	return checklist.Save(cl, opts)
}

// SeedServers bookmarks the default servers and the ones listed in the
// config that are not bookmarked by name yet.
func (e Engine) SeedServers(ctx context.Context) ([]domain.ChecklistServer, error) {
	added, err := e.Servers.EnsureDefaults(ctx)
	if err != nil {
		return nil, err
	}
	existing, err := e.Servers.List(ctx)
	if err != nil {
		return nil, err
	}
	names := map[string]bool{}
	for _, s := range existing {
		names[s.Name] = true
	}
	for _, s := range e.Config.Servers {
		if names[s.Name] {
			continue
		}
		created, err := e.Servers.Add(ctx, s.Name, s.URL)
		if err != nil {
			return added, fmt.Errorf("seed server %s: %w", s.Name, err)
		}
		names[s.Name] = true
		added = append(added, created)
	}
	for _, s := range added {
		if err := e.events().Append(ctx, nil, events.ServerAdded, "server", s.Identifier.String(), SystemActor,
			events.EventPayload{"name": s.Name, "url": s.URL}); err != nil {
			return added, err
		}
	}
	return added, nil
}

func (e Engine) AddServer(ctx context.Context, name, url, actorID string) (domain.ChecklistServer, error) {
	s, err := e.Servers.Add(ctx, name, url)
	if err != nil {
		return domain.ChecklistServer{}, err
	}
	err = e.events().Append(ctx, nil, events.ServerAdded, "server", s.Identifier.String(), actorID,
		events.EventPayload{"name": s.Name, "url": s.URL})
	return s, err
}

func (e Engine) EditServer(ctx context.Context, id uuid.UUID, name, url, actorID string) (domain.ChecklistServer, error) {
	s, err := e.Servers.Edit(ctx, id, name, url)
	if err != nil {
		return domain.ChecklistServer{}, err
	}
	err = e.events().Append(ctx, nil, events.ServerEdited, "server", s.Identifier.String(), actorID,
		events.EventPayload{"name": s.Name, "url": s.URL})
	return s, err
}

func (e Engine) RemoveServer(ctx context.Context, id uuid.UUID, actorID string) error {
	s, err := e.Servers.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := e.Servers.Remove(ctx, id); err != nil {
		return err
	}
	return e.events().Append(ctx, nil, events.ServerRemoved, "server", id.String(), actorID,
		events.EventPayload{"name": s.Name})
}

// Download lists the checklists published by the server named by ref.
func (e Engine) Download(ctx context.Context, ref string, refresh bool) (domain.ChecklistServer, []domain.CheckList, error) {
	s, err := e.Servers.Find(ctx, ref)
	if err != nil {
		return domain.ChecklistServer{}, nil, err
	}
	if refresh {
		e.Catalog.Refresh(s)
	}
	lists, err := e.Catalog.Fetch(ctx, s)
	return s, lists, err
}

// RecordReport notes a generated report in the event log.
func (e Engine) RecordReport(ctx context.Context, rep domain.ValidationReport, checklistID uuid.UUID, actorID string) error {
	return e.events().Append(ctx, nil, events.ReportGenerated, "checklist", checklistID.String(), actorID,
		events.EventPayload{"checklist": rep.ChecklistName, "dataset": rep.DatasetName, "valid": rep.OverallResult})
}

// HandleReport passes rep to a report handler algorithm such as the poster or
// the mailer, on a runner of its own.
func (e Engine) HandleReport(ctx context.Context, algorithmID string, params map[string]any, rep domain.ValidationReport) (automation.Completion, error) {
	runner := automation.NewLocalRunner(e.Algorithms, 1, e.Logger.Named("automation"))
	defer runner.Close()
	return automation.HandleReport(ctx, runner, algorithmID, params, rep)
}

// ReportHandlerParams fills mailer and poster parameters from the config.
// Explicit params win.
func (e Engine) ReportHandlerParams(params map[string]any) map[string]any {
	out := map[string]any{}
	if m := e.Config.Mailer; m.Sender != "" {
		out["INPUT_SENDER_ADDRESS"] = m.Sender
		out["INPUT_SENDER_PASSWORD"] = m.Password
		out["INPUT_RECIPIENTS"] = strings.Join(m.Recipients, ",")
		out["INPUT_SMTP_HOST"] = m.Host
		out["INPUT_SMTP_PORT"] = m.Port
		out["INPUT_SMTP_SECURE_CONNECTION"] = m.Security
	}
	if p := e.Config.Poster; p.Endpoint != "" {
		out["INPUT_ENDPOINT"] = p.Endpoint
		out["INPUT_AUTH_TOKEN"] = p.Token
	}
	for k, v := range params {
		out[k] = v
	}
	return out
}
