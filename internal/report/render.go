package report

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"path/filepath"
	"strings"
	"time"

	"qaworkbench/internal/domain"
)

type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatJSON     Format = "json"
)

var extensions = map[Format]string{
	FormatText:     ".txt",
	FormatMarkdown: ".md",
	FormatHTML:     ".html",
	FormatJSON:     ".json",
}

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt", "plain", "plain text":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown report format %q", s)
}

// OutputPath forces the format's file suffix onto path.
func OutputPath(path string, f Format) string {
	ext := extensions[f]
	if strings.EqualFold(filepath.Ext(path), ext) {
		return path
	}
	return path + ext
}

func Render(rep domain.ValidationReport, f Format) ([]byte, error) {
	switch f {
	case FormatText:
		return []byte(Text(rep)), nil
	case FormatMarkdown:
		return []byte(Markdown(rep)), nil
	case FormatHTML:
		return HTML(rep)
	case FormatJSON:
		return JSON(rep)
	}
	return nil, fmt.Errorf("render: unsupported format %q", f)
}

func JSON(rep domain.ValidationReport) ([]byte, error) {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render: json marshal: %w", err)
	}
	return b, nil
}

func yesNo(v bool) string {
	if v {
		return "YES"
	}
	return "NO"
}

func timestamp(t time.Time) string { return t.UTC().Format(time.RFC3339) }

// Text is the plain text form used in report emails.
func Text(rep domain.ValidationReport) string {
	var sb strings.Builder
	sb.WriteString(domain.ReportName + "\n")
	sb.WriteString(strings.Repeat("=", len(domain.ReportName)) + "\n\n")
	fmt.Fprintf(&sb, "Checklist: %s\n", rep.ChecklistName)
	fmt.Fprintf(&sb, "Dataset: %s\n", rep.DatasetName)
	fmt.Fprintf(&sb, "Generated: %s\n", timestamp(rep.Generated))
	fmt.Fprintf(&sb, "Validator: %s\n", rep.Validator)
	fmt.Fprintf(&sb, "Dataset is valid: %s\n", yesNo(rep.OverallResult))
	if rep.Description != "" {
		fmt.Fprintf(&sb, "\n%s\n", rep.Description)
	}
	sb.WriteString("\nChecks\n------\n")
	for _, c := range rep.Checks {
		fmt.Fprintf(&sb, "\n- %s\n", c.Name)
		fmt.Fprintf(&sb, "  Validated: %s\n", yesNo(c.Validated))
		if c.Description != "" {
			fmt.Fprintf(&sb, "  Description: %s\n", c.Description)
		}
		if c.Notes != "" {
			fmt.Fprintf(&sb, "  Notes: %s\n", c.Notes)
		}
	}
	return sb.String()
}

func Markdown(rep domain.ValidationReport) string {
	var sb strings.Builder
	sb.WriteString("## " + domain.ReportName + "\n\n")
	fmt.Fprintf(&sb, "**Checklist:** %s  \n", mdEscape(rep.ChecklistName))
	fmt.Fprintf(&sb, "**Dataset:** %s  \n", mdEscape(rep.DatasetName))
	fmt.Fprintf(&sb, "**Generated:** %s  \n", timestamp(rep.Generated))
	fmt.Fprintf(&sb, "**Validator:** %s  \n", mdEscape(rep.Validator))
	fmt.Fprintf(&sb, "**Dataset is valid:** %s\n\n", yesNo(rep.OverallResult))
	if rep.Description != "" {
		sb.WriteString(mdEscape(rep.Description) + "\n\n")
	}
	if len(rep.Checks) > 0 {
		sb.WriteString("| Check | Validated | Description | Notes |\n")
		sb.WriteString("|---|---|---|---|\n")
		for _, c := range rep.Checks {
			fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n",
				mdEscape(c.Name), yesNo(c.Validated), mdEscape(c.Description), mdEscape(c.Notes))
		}
	}
	return sb.String()
}

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}

//go:embed templates/report.html
var htmlSource string

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"yesno":     yesNo,
	"timestamp": timestamp,
}).Parse(htmlSource))

func HTML(rep domain.ValidationReport) ([]byte, error) {
	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, rep); err != nil {
		return nil, fmt.Errorf("render: html: %w", err)
	}
	return buf.Bytes(), nil
}
