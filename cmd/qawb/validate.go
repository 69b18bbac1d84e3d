package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"qaworkbench/internal/automation"
	"qaworkbench/internal/domain"
	"qaworkbench/internal/engine"
	"qaworkbench/internal/report"
	"qaworkbench/internal/tree"
)

func validateCmd() *cobra.Command {
	var dataset, layerJSON, extent, reportPath, format, metadataPath string
	var srid int
	var states, notes []string
	var automate bool
	cmd := &cobra.Command{
		Use:   "validate <checklist>",
		Short: "Validate a dataset against a checklist",
		Long: `Loads the checklist into a fresh session, records --check states and --note
notes, optionally runs every automated check, then prints the result tree.
With --report the validation report is written in --format; with --metadata
it is also attached to a YAML metadata file (abstract and history).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			layer, err := layerFromFlags(layerJSON, dataset, extent, srid)
			if err != nil {
				return err
			}
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.NewSession(args[0], dataset, layer, "")
				if err != nil {
					return err
				}
				defer s.Close()
				if err := applyStates(s, states); err != nil {
					return err
				}
				if err := applyNotes(s, notes); err != nil {
					return err
				}
				var outcomes []automation.Outcome
				if automate {
					var errs []error
					outcomes, errs = s.AutomateAll(ctx)
					for _, err := range errs {
						var cfgErr *automation.ConfigurationError
						if !errors.As(err, &cfgErr) {
							return err
						}
						fmt.Fprintln(os.Stderr, "warning:", err)
					}
				}
				rep := s.Report()
				if reportPath != "" {
					if err := writeReport(rep, reportPath, f); err != nil {
						return err
					}
					if err := e.RecordReport(ctx, rep, s.Checklist.Identifier, actorID(e)); err != nil {
						return err
					}
				}
				if metadataPath != "" {
					if err := attachMetadata(metadataPath, rep); err != nil {
						return err
					}
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				printChecklist(s.Checklist, outcomes)
				verdict := "INVALID"
				if rep.OverallResult {
					verdict = "VALID"
				}
				fmt.Printf("\n%s: %s (validator %s)\n", rep.DatasetName, verdict, rep.Validator)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dataset, "dataset", "", "dataset path (file or layer source)")
	cmd.Flags().StringVar(&layerJSON, "layer", "", "layer description as JSON, or @file")
	cmd.Flags().IntVar(&srid, "srid", 0, "layer EPSG code")
	cmd.Flags().StringVar(&extent, "extent", "", "layer extent as xmin,xmax,ymin,ymax")
	cmd.Flags().StringArrayVar(&states, "check", nil, "check state as name=checked|partial|unchecked (repeatable)")
	cmd.Flags().StringArrayVar(&notes, "note", nil, "validation notes as name=text (repeatable)")
	cmd.Flags().BoolVar(&automate, "automate", false, "run every automated check")
	cmd.Flags().StringVar(&reportPath, "report", "", "write the validation report to this path")
	cmd.Flags().StringVar(&format, "format", "text", "report format: text, markdown, html, json")
	cmd.Flags().StringVar(&metadataPath, "metadata", "", "YAML metadata file to attach the report to")
	return cmd
}

func reportCmd() *cobra.Command {
	r := &cobra.Command{Use: "report", Short: "Work with saved validation reports"}
	r.AddCommand(reportHandleCmd())
	r.AddCommand(reportRenderCmd())
	return r
}

func reportHandleCmd() *cobra.Command {
	var input string
	var params []string
	cmd := &cobra.Command{
		Use:   "handle <algorithm>",
		Short: "Pass a saved JSON report to a report handler (reportposter, reportmailer)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := readReport(input)
			if err != nil {
				return err
			}
			extra, err := parsePairs(params)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				id := args[0]
				if !strings.Contains(id, ":") {
					id = "qaworkbench:" + id
				}
				c, err := e.HandleReport(ctx, id, e.ReportHandlerParams(extra), rep)
				if err != nil {
					return err
				}
				if !c.Successful {
					return fmt.Errorf("%s failed: %v", id, c.Err)
				}
				return printResult(c.Results, fmt.Sprintf("%s succeeded: %v", id, c.Results))
			})
		},
	}
	cmd.Flags().StringVar(&input, "report", "-", "saved JSON report (- for stdin)")
	cmd.Flags().StringArrayVar(&params, "param", nil, "algorithm parameter as NAME=value (repeatable)")
	return cmd
}

func reportRenderCmd() *cobra.Command {
	var input, out, format string
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Re-render a saved JSON report in another format",
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := readReport(input)
			if err != nil {
				return err
			}
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			if out != "" {
				return writeReport(rep, out, f)
			}
			b, err := report.Render(rep, f)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(b)
			return err
		},
	}
	cmd.Flags().StringVar(&input, "report", "-", "saved JSON report (- for stdin)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default stdout)")
	cmd.Flags().StringVar(&format, "format", "markdown", "text, markdown, html, json")
	return cmd
}

// --- validate helpers ---

func findCheck(s *engine.Session, name string) (int, error) {
	for i := range s.Checklist.Checks {
		if strings.EqualFold(s.Checklist.Checks[i].Name, name) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("checklist %q has no check %q", s.Checklist.Name, name)
}

func applyStates(s *engine.Session, pairs []string) error {
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok {
			return fmt.Errorf("invalid --check %q: want name=state", p)
		}
		i, err := findCheck(s, name)
		if err != nil {
			return err
		}
		state, err := domain.ParseCheckState(value)
		if err != nil {
			return err
		}
		s.Adapter.SetData(tree.CheckCoordinate(i, tree.ColumnValue), state, tree.AspectCheckState)
	}
	return nil
}

func applyNotes(s *engine.Session, pairs []string) error {
	for _, p := range pairs {
		name, text, ok := strings.Cut(p, "=")
		if !ok {
			return fmt.Errorf("invalid --note %q: want name=text", p)
		}
		i, err := findCheck(s, name)
		if err != nil {
			return err
		}
		s.Adapter.SetData(tree.PropertyCoordinate(i, domain.PropertyValidationNotes, tree.ColumnValue), text, tree.AspectEdit)
	}
	return nil
}

func parsePairs(pairs []string) (map[string]any, error) {
	out := map[string]any{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q: want NAME=value", p)
		}
		out[k] = v
	}
	return out, nil
}

func readReport(path string) (domain.ValidationReport, error) {
	var rep domain.ValidationReport
	raw, err := readInput(path)
	if err != nil {
		return rep, err
	}
	if err := json.Unmarshal(raw, &rep); err != nil {
		return rep, fmt.Errorf("invalid report: %w", err)
	}
	return rep, nil
}

func writeReport(rep domain.ValidationReport, path string, f report.Format) error {
	b, err := report.Render(rep, f)
	if err != nil {
		return err
	}
	path = report.OutputPath(path, f)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "report written to %s\n", path)
	return nil
}

func attachMetadata(path string, rep domain.ValidationReport) error {
	var md report.Metadata
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return err
	default:
		if err := yaml.Unmarshal(raw, &md); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	out, err := yaml.Marshal(report.Attach(md, rep))
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

func stateMark(s domain.CheckState) string {
	switch s {
	case domain.Checked:
		return "[x]"
	case domain.PartiallyChecked:
		return "[~]"
	}
	return "[ ]"
}

// printChecklist renders the checklist as a tree: one row per check with its
// state, then the check's non-empty properties.
func printChecklist(cl *domain.CheckList, outcomes []automation.Outcome) {
	byCheck := map[int]automation.Outcome{}
	for _, o := range outcomes {
		byCheck[o.Handle.Check] = o
	}
	adapter := tree.New(cl)
	fmt.Printf("%s (%s %s)\n", cl.Name, cl.DatasetType, cl.ArtifactType)
	n := adapter.RowCount(nil)
	for i := 0; i < n; i++ {
		last := i == n-1
		connector, prefix := "├── ", "│   "
		if last {
			connector, prefix = "└── ", "    "
		}
		check := cl.Checks[i]
		line := fmt.Sprintf("%s %s", stateMark(check.Validated), check.Name)
		if o, ok := byCheck[i]; ok {
			line += fmt.Sprintf("  (automation: %s)", o.State)
		}
		fmt.Println(connector + line)
		var rows []string
		for k := domain.PropertyKind(0); k < domain.PropertyCount; k++ {
			c := tree.PropertyCoordinate(i, k, tree.ColumnValue)
			v := adapter.Data(c, tree.AspectDisplay)
			if s, ok := v.(string); ok && s == "" {
				continue
			}
			if a, ok := v.(*domain.AutomationDescriptor); ok {
				v = a.AlgorithmID
			}
			label := adapter.Data(tree.PropertyCoordinate(i, k, tree.ColumnLabel), tree.AspectDisplay)
			rows = append(rows, fmt.Sprintf("%v: %v", label, v))
		}
		for j, r := range rows {
			sub := "├── "
			if j == len(rows)-1 {
				sub = "└── "
			}
			fmt.Println(prefix + sub + r)
		}
	}
}
