package report

import (
	"fmt"

	"qaworkbench/internal/domain"
)

const abstractSeparator = "\n\n---\n\n"

// Metadata is the part of a layer's metadata a report is attached to.
type Metadata struct {
	Abstract string   `json:"abstract" yaml:"abstract"`
	History  []string `json:"history" yaml:"history"`
}

func HistoryEntry(rep domain.ValidationReport) string {
	verdict := "Invalid"
	if rep.OverallResult {
		verdict = "Valid"
	}
	return fmt.Sprintf("%s - Validation report: %s", timestamp(rep.Generated), verdict)
}

// Attach appends the history entry and the text report to md.
func Attach(md Metadata, rep domain.ValidationReport) Metadata {
	out := Metadata{History: append(append([]string(nil), md.History...), HistoryEntry(rep))}
	if md.Abstract == "" {
		out.Abstract = Text(rep)
	} else {
		out.Abstract = md.Abstract + abstractSeparator + Text(rep)
	}
	return out
}
