// Package report builds validation reports from a checklist tree and renders
// them for people and machines.
package report

import (
	"time"

	"qaworkbench/internal/domain"
	"qaworkbench/internal/tree"
)

type Builder struct {
	Validator string
	Now       func() time.Time
}

func (b Builder) now() time.Time {
	if b.Now == nil {
		return time.Now().UTC()
	}
	return b.Now().UTC()
}

// Build walks the checks in list order. The overall result is the adapter's
// Result so it always agrees with what the tree displays.
func (b Builder) Build(adapter *tree.Adapter, datasetLabel string) domain.ValidationReport {
	cl := adapter.CheckList()
	rep := domain.ValidationReport{
		Name:          domain.ReportName,
		ChecklistName: cl.Name,
		DatasetName:   datasetLabel,
		Generated:     b.now(),
		Validator:     b.Validator,
		OverallResult: adapter.Result(),
		Description:   cl.Description,
		DatasetType:   cl.DatasetType,
		ArtifactType:  cl.ArtifactType,
		Checks:        make([]domain.CheckReport, 0, len(cl.Checks)),
	}
	for i := range cl.Checks {
		c := &cl.Checks[i]
		rep.Checks = append(rep.Checks, domain.CheckReport{
			Name:        c.Name,
			Validated:   c.Validated == domain.Checked,
			Description: c.Description(),
			Notes:       c.ValidationNotes(),
		})
	}
	return rep
}
