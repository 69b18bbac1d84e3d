package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"qaworkbench/internal/algorithms"
	"qaworkbench/internal/app"
	"qaworkbench/internal/automation"
	"qaworkbench/internal/checklist"
	"qaworkbench/internal/config"
	"qaworkbench/internal/db"
	"qaworkbench/internal/domain"
	"qaworkbench/internal/engine"
	"qaworkbench/internal/repo"
	"qaworkbench/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "qawb",
	Short: "Dataset QA workbench",
	Long: `qawb walks datasets through QA checklists.
- Checklist: a named list of checks for one dataset type (vector, raster, document) and artifact (dataset, metadata, style).
- Check: pass/fail plus notes; a check may carry an automation that runs a built-in algorithm.
- Servers: bookmarked catalogs that publish checklists; install them with 'qawb download'.
- Validation: 'qawb validate' records states and notes, runs automations and writes a report.
- Event log: installs, deletions, server edits and reports, view with 'qawb log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("QAWB")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("validator", "", "name recorded as validator (overrides .env and config)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("validator", rootCmd.PersistentFlags().Lookup("validator"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(checklistCmd())
	rootCmd.AddCommand(serverCmd())
	rootCmd.AddCommand(downloadCmd())
	rootCmd.AddCommand(algorithmsCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(identityCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create qaworkbench.yml and the checklist library",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				fmt.Printf("Initialized workspace: config %s, checklists %s, db %s\n",
					path, e.Library.Dir, db.Path(workspace))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func checklistCmd() *cobra.Command {
	cl := &cobra.Command{Use: "checklist", Short: "Manage installed checklists"}
	cl.AddCommand(checklistListCmd())
	cl.AddCommand(checklistShowCmd())
	cl.AddCommand(checklistImportCmd())
	cl.AddCommand(checklistDeleteCmd())
	cl.AddCommand(checklistExportCmd())
	return cl
}

func checklistListCmd() *cobra.Command {
	var datasetType, artifactType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed checklists",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var items []domain.CheckList
				for _, cl := range e.Library.List() {
					if datasetType != "" && string(cl.DatasetType) != datasetType {
						continue
					}
					if artifactType != "" && string(cl.ArtifactType) != artifactType {
						continue
					}
					items = append(items, cl)
				}
				if viper.GetBool("json") {
					return printJSON(checklistSummaries(items))
				}
				printChecklistTable(items)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&datasetType, "dataset-type", "", "filter: document, raster, vector")
	cmd.Flags().StringVar(&artifactType, "artifact-type", "", "filter: dataset, metadata, style")
	return cmd
}

func checklistShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <checklist>",
		Short: "Show a checklist as a tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cl, err := e.Library.Find(args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					raw, err := checklist.Save(cl, checklist.TemplateOptions())
					if err != nil {
						return err
					}
					fmt.Println(string(raw))
					return nil
				}
				printChecklist(&cl, nil)
				return nil
			})
		},
	}
	return cmd
}

func checklistImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Install a checklist JSON document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cl, path, err := e.ImportChecklist(ctx, raw, actorID(e))
				if err != nil {
					return err
				}
				return printResult(map[string]any{"id": cl.Identifier, "name": cl.Name, "path": path},
					fmt.Sprintf("Installed %q at %s", cl.Name, path))
			})
		},
	}
	return cmd
}

func checklistDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <checklist>",
		Short: "Delete an installed checklist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cl, err := e.DeleteChecklist(ctx, args[0], actorID(e))
				if err != nil {
					return err
				}
				return printResult(map[string]any{"id": cl.Identifier, "name": cl.Name}, fmt.Sprintf("Deleted %q", cl.Name))
			})
		},
	}
	return cmd
}

func checklistExportCmd() *cobra.Command {
	var out string
	var full bool
	cmd := &cobra.Command{
		Use:   "export <checklist>",
		Short: "Write a checklist as a shareable JSON template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := checklist.TemplateOptions()
				if full {
					opts = checklist.FullOptions()
				}
				raw, err := e.ExportChecklist(args[0], opts)
				if err != nil {
					return err
				}
				if out == "" || out == "-" {
					_, err = os.Stdout.Write(append(raw, '\n'))
					return err
				}
				return os.WriteFile(out, raw, 0o644)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&full, "full", false, "include validation results and notes")
	return cmd
}

func serverCmd() *cobra.Command {
	s := &cobra.Command{Use: "server", Short: "Manage checklist server bookmarks"}
	s.AddCommand(serverListCmd())
	s.AddCommand(serverAddCmd())
	s.AddCommand(serverEditCmd())
	s.AddCommand(serverRemoveCmd())
	return s
}

func serverListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List checklist servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Servers.List(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "URL"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.Identifier, s.Name, s.URL})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func serverAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <name> <url>",
		Short: "Bookmark a checklist server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.AddServer(ctx, args[0], args[1], actorID(e))
				if err != nil {
					return err
				}
				return printResult(s, fmt.Sprintf("Added %q (%s)", s.Name, s.Identifier))
			})
		},
	}
	return cmd
}

func serverEditCmd() *cobra.Command {
	var name, url string
	cmd := &cobra.Command{
		Use:   "edit <server>",
		Short: "Rename a server or change its URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				current, err := e.Servers.Find(ctx, args[0])
				if err != nil {
					return err
				}
				if !cmd.Flags().Changed("name") {
					name = current.Name
				}
				if !cmd.Flags().Changed("url") {
					url = current.URL
				}
				s, err := e.EditServer(ctx, current.Identifier, name, url, actorID(e))
				if err != nil {
					return err
				}
				return printResult(s, fmt.Sprintf("Updated %q", s.Name))
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&url, "url", "", "new catalog URL")
	return cmd
}

func serverRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <server>",
		Short: "Remove a server bookmark",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.Servers.Find(ctx, args[0])
				if err != nil {
					return err
				}
				if err := e.RemoveServer(ctx, s.Identifier, actorID(e)); err != nil {
					return err
				}
				return printResult(s, fmt.Sprintf("Removed %q", s.Name))
			})
		},
	}
	return cmd
}

func downloadCmd() *cobra.Command {
	var serverRef string
	var install []string
	var all, refresh bool
	cmd := &cobra.Command{
		Use:   "download",
		Short: "List or install checklists published by a server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ref := serverRef
				if ref == "" {
					ref = defaultServerRef(ctx, e)
				}
				src, lists, err := e.Download(ctx, ref, refresh)
				if err != nil {
					return err
				}
				if len(install) == 0 && !all {
					if viper.GetBool("json") {
						return printJSON(checklistSummaries(lists))
					}
					fmt.Printf("%s (%s)\n", src.Name, src.URL)
					printChecklistTable(lists)
					return nil
				}
				wanted := map[string]bool{}
				for _, n := range install {
					wanted[n] = true
				}
				installed := 0
				for _, cl := range lists {
					if !all && !wanted[cl.Name] && !wanted[cl.Identifier.String()] {
						continue
					}
					path, err := e.InstallChecklist(ctx, src, cl, actorID(e))
					if err != nil {
						return err
					}
					installed++
					fmt.Printf("Installed %q at %s\n", cl.Name, path)
				}
				if installed == 0 {
					return fmt.Errorf("no published checklist matched %s", strings.Join(install, ", "))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&serverRef, "server", "", "server id or name (default: first bookmark)")
	cmd.Flags().StringSliceVar(&install, "install", nil, "checklist names or ids to install")
	cmd.Flags().BoolVar(&all, "all", false, "install every published checklist")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the catalog cache")
	return cmd
}

func defaultServerRef(ctx context.Context, e engine.Engine) string {
	items, err := e.Servers.List(ctx)
	if err != nil || len(items) == 0 {
		return ""
	}
	return items[0].Identifier.String()
}

func algorithmsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "algorithms",
		Short: "List the algorithms automations can run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				type param struct {
					Name     string   `json:"name"`
					Kind     string   `json:"kind"`
					Optional bool     `json:"optional,omitempty"`
					Default  any      `json:"default,omitempty"`
					Options  []string `json:"options,omitempty"`
				}
				type entry struct {
					ID         string  `json:"id"`
					Name       string  `json:"name"`
					Parameters []param `json:"parameters"`
				}
				var out []entry
				for _, id := range e.Algorithms.IDs() {
					alg, _ := e.Algorithms.Get(id)
					en := entry{ID: id, Name: alg.DisplayName()}
					for _, p := range alg.Parameters() {
						en.Parameters = append(en.Parameters, param{Name: p.Name, Kind: p.Kind.String(), Optional: p.Optional, Default: p.Default, Options: p.Options})
					}
					out = append(out, en)
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Parameters"})
				for _, en := range out {
					var names []string
					for _, p := range en.Parameters {
						names = append(names, p.Name+":"+p.Kind)
					}
					tw.AppendRow(table.Row{en.ID, en.Name, strings.Join(names, " ")})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func identityCmd() *cobra.Command {
	id := &cobra.Command{Use: "identity", Short: "Who is recorded as validator"}
	id.AddCommand(&cobra.Command{
		Use:   "set <name>",
		Short: "Store the validator name in the workspace .env",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if err := app.SetEnvValue(workspace, app.ValidatorKey, args[0]); err != nil {
				return err
			}
			fmt.Printf("Validator set to %q in %s\n", args[0], app.EnvPath(workspace))
			return nil
		},
	})
	id.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the validator name in effect",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			name, err := app.ResolveValidator(workspace, viper.GetString("validator"), cfg)
			if err != nil {
				return err
			}
			return printResult(map[string]string{"validator": name}, name)
		},
	})
	return id
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Everything that changed the workspace: checklist installs and deletions, server edits and generated reports.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor", "Payload"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + "/" + evt.EntityID, evt.ActorID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath, anonymousScope string
	var sessions int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			ws, err := openWorkspace(cmd.Context(), automation.NewMetrics(reg))
			if err != nil {
				return err
			}
			defer ws.Close()
			authCfg := server.AuthConfig{
				JWTSecret:      viper.GetString("jwt-secret"),
				AnonymousScope: anonymousScope,
				Logger:         ws.Logger.Named("auth"),
			}
			if authCfg.JWTSecret == "" && anonymousScope == "" {
				return fmt.Errorf("QAWB_JWT_SECRET is required for bearer auth (or pass --anonymous-scope)")
			}
			api, err := server.New(server.Config{
				Engine:   ws.Engine,
				BasePath: basePath,
				Auth:     authCfg,
				Sessions: sessions,
				Gatherer: reg,
			})
			if err != nil {
				return err
			}
			defer api.Close()
			srv := &http.Server{Addr: addr, Handler: api}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving QA Workbench API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs, metrics at /metrics)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().StringVar(&anonymousScope, "anonymous-scope", "", "scope granted to requests without a token (read, validate, admin)")
	cmd.Flags().IntVar(&sessions, "sessions", 64, "maximum live validation sessions")
	return cmd
}

func tokenCmd() *cobra.Command {
	var actor, scope string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				return fmt.Errorf("--actor required")
			}
			token, err := server.SignToken(viper.GetString("jwt-secret"), actor, scope, ttl, time.Now())
			if err != nil {
				return fmt.Errorf("%w: set QAWB_JWT_SECRET", err)
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "subject of the token")
	cmd.Flags().StringVar(&scope, "scope", "validate", "space separated scopes: read, validate, admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 for none)")
	return cmd
}

// --- helpers ---

func openWorkspace(ctx context.Context, metrics *automation.Metrics) (*app.Workspace, error) {
	return app.Open(ctx, viper.GetString("workspace"), app.Options{
		Validator: viper.GetString("validator"),
		LogLevel:  viper.GetString("log-level"),
		Metrics:   metrics,
	})
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	ws, err := openWorkspace(ctx, nil)
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws.Engine)
}

// actorID is the validator name, or the local user when none is set.
func actorID(e engine.Engine) string {
	if e.Config.Validator != "" {
		return e.Config.Validator
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local-user"
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(filepath.Clean(path))
}

type checklistSummary struct {
	ID           uuid.UUID           `json:"id"`
	Name         string              `json:"name"`
	DatasetType  domain.DatasetType  `json:"dataset_type"`
	ArtifactType domain.ArtifactType `json:"validation_artifact_type"`
	Checks       int                 `json:"checks"`
}

func checklistSummaries(items []domain.CheckList) []checklistSummary {
	out := make([]checklistSummary, 0, len(items))
	for _, cl := range items {
		out = append(out, checklistSummary{ID: cl.Identifier, Name: cl.Name, DatasetType: cl.DatasetType, ArtifactType: cl.ArtifactType, Checks: len(cl.Checks)})
	}
	return out
}

func printChecklistTable(items []domain.CheckList) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Name", "Dataset", "Artifact", "Checks", "Automated"})
	for _, cl := range items {
		automated := 0
		for i := range cl.Checks {
			if cl.Checks[i].Automation().Enabled() {
				automated++
			}
		}
		tw.AppendRow(table.Row{cl.Identifier, cl.Name, cl.DatasetType, cl.ArtifactType, len(cl.Checks), automated})
	}
	tw.Render()
}

func printResult(v any, text string) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	fmt.Println(text)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// layerFromFlags builds the layer under validation from --layer (inline JSON
// or @file) and the shorthand flags.
func layerFromFlags(raw, dataset, extent string, srid int) (*algorithms.Layer, error) {
	var layer *algorithms.Layer
	if raw != "" {
		data := []byte(raw)
		if strings.HasPrefix(raw, "@") {
			b, err := os.ReadFile(strings.TrimPrefix(raw, "@"))
			if err != nil {
				return nil, err
			}
			data = b
		}
		var l algorithms.Layer
		if err := json.Unmarshal(data, &l); err != nil {
			return nil, fmt.Errorf("invalid --layer: %w", err)
		}
		layer = &l
	}
	if srid == 0 && extent == "" {
		return layer, nil
	}
	if layer == nil {
		layer = &algorithms.Layer{Name: filepath.Base(dataset), Path: dataset}
	}
	if srid != 0 {
		layer.SRID = srid
	}
	if extent != "" {
		r, err := algorithms.ParseExtent(extent)
		if err != nil {
			return nil, fmt.Errorf("invalid --extent: %w", err)
		}
		layer.Extent = r
	}
	return layer, nil
}
