// Package checklist reads and writes checklist documents.
//
// Checklist files are shareable templates: Load never restores validation
// notes or results, even when a file produced by Save carries them.
package checklist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"qaworkbench/internal/domain"
)

var identityNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("qaworkbench/checklist"))

// StableIdentifier derives a checklist identity from its name and applicability.
func StableIdentifier(name string, dt domain.DatasetType, at domain.ArtifactType) uuid.UUID {
	return uuid.NewSHA1(identityNamespace, []byte(name+"|"+string(dt)+"|"+string(at)))
}

type rawChecklist struct {
	Name         *string    `json:"name"`
	Description  string     `json:"description"`
	DatasetType  *string    `json:"dataset_type"`
	ArtifactType *string    `json:"validation_artifact_type"`
	Checks       []rawCheck `json:"checks"`
}

type rawCheck struct {
	Name        *string        `json:"name"`
	Description string         `json:"description"`
	Guide       string         `json:"guide"`
	Automation  *rawAutomation `json:"automation"`
}

type rawAutomation struct {
	AlgorithmID           *string        `json:"algorithm_id"`
	ArtifactParameterName string         `json:"artifact_parameter_name,omitempty"`
	OutputName            string         `json:"output_name,omitempty"`
	NegateOutput          bool           `json:"negate_output"`
	ExtraParameters       map[string]any `json:"extra_parameters"`
}

// Load decodes one checklist document.
func Load(raw []byte) (domain.CheckList, error) {
	var doc rawChecklist
	if err := json.Unmarshal(raw, &doc); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return domain.CheckList{}, &SchemaError{Field: typeErr.Field, Reason: "unexpected " + typeErr.Value}
		}
		return domain.CheckList{}, fmt.Errorf("decode checklist: %w", err)
	}
	if doc.Name == nil {
		return domain.CheckList{}, &SchemaError{Field: "name", Reason: "required"}
	}
	if doc.DatasetType == nil {
		return domain.CheckList{}, &SchemaError{Field: "dataset_type", Reason: "required"}
	}
	if doc.ArtifactType == nil {
		return domain.CheckList{}, &SchemaError{Field: "validation_artifact_type", Reason: "required"}
	}
	dt, err := domain.ParseDatasetType(*doc.DatasetType)
	if err != nil {
		return domain.CheckList{}, &SchemaError{Field: "dataset_type", Reason: err.Error()}
	}
	at, err := domain.ParseArtifactType(*doc.ArtifactType)
	if err != nil {
		return domain.CheckList{}, &SchemaError{Field: "validation_artifact_type", Reason: err.Error()}
	}
	cl := domain.CheckList{
		Identifier:   StableIdentifier(*doc.Name, dt, at),
		Name:         *doc.Name,
		Description:  doc.Description,
		DatasetType:  dt,
		ArtifactType: at,
		Checks:       make([]domain.Check, 0, len(doc.Checks)),
	}
	for i, rc := range doc.Checks {
		if rc.Name == nil {
			return domain.CheckList{}, &SchemaError{Field: fmt.Sprintf("checks[%d].name", i), Reason: "required"}
		}
		cl.Checks = append(cl.Checks, domain.NewCheck(*rc.Name, rc.Description, rc.Guide, rc.Automation.descriptor()))
	}
	return cl, nil
}

func (ra *rawAutomation) descriptor() *domain.AutomationDescriptor {
	a := domain.DisabledAutomation()
	if ra == nil {
		return a
	}
	if ra.AlgorithmID != nil {
		a.AlgorithmID = *ra.AlgorithmID
	}
	if ra.ArtifactParameterName != "" {
		a.ArtifactParameterName = ra.ArtifactParameterName
	}
	if ra.OutputName != "" {
		a.OutputName = ra.OutputName
	}
	a.NegateOutput = ra.NegateOutput
	for k, v := range ra.ExtraParameters {
		a.ExtraParameters[k] = v
	}
	return a
}

// LoadMany decodes a JSON array of checklists, skipping entries that fail to load.
func LoadMany(raw []byte, log *zap.Logger) ([]domain.CheckList, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode checklist catalog: %w", err)
	}
	res := make([]domain.CheckList, 0, len(items))
	for i, item := range items {
		cl, err := Load(item)
		if err != nil {
			log.Warn("skipping catalog entry", zap.Int("index", i), zap.Error(err))
			continue
		}
		res = append(res, cl)
	}
	return res, nil
}

// LoadDirectory loads every *.json file in dir in directory order. Files that
// cannot be read or parsed are logged and skipped.
func LoadDirectory(dir string, log *zap.Logger) []domain.CheckList {
	if log == nil {
		log = zap.NewNop()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warn("cannot read checklists directory", zap.String("dir", dir), zap.Error(err))
		return nil
	}
	var res []domain.CheckList
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn("skipping unreadable checklist", zap.String("path", path), zap.Error(err))
			continue
		}
		cl, err := Load(data)
		if err != nil {
			log.Warn("skipping invalid checklist", zap.String("path", path), zap.Error(err))
			continue
		}
		res = append(res, cl)
	}
	return res
}

type SaveOptions struct {
	IncludeNotes      bool
	IncludeResults    bool
	IncludeAutomation bool
}

// TemplateOptions strips session state and keeps automation wiring.
func TemplateOptions() SaveOptions {
	return SaveOptions{IncludeAutomation: true}
}

func FullOptions() SaveOptions {
	return SaveOptions{IncludeNotes: true, IncludeResults: true, IncludeAutomation: true}
}

type savedChecklist struct {
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	DatasetType  string       `json:"dataset_type"`
	ArtifactType string       `json:"validation_artifact_type"`
	Checks       []savedCheck `json:"checks"`
}

type savedCheck struct {
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	Guide           string         `json:"guide"`
	Automation      *rawAutomation `json:"automation"`
	Validated       *bool          `json:"validated,omitempty"`
	ValidationNotes *string        `json:"validation_notes,omitempty"`
}

// Save encodes a checklist, redacting what opts excludes.
func Save(cl domain.CheckList, opts SaveOptions) ([]byte, error) {
	doc := savedChecklist{
		Name:         cl.Name,
		Description:  cl.Description,
		DatasetType:  string(cl.DatasetType),
		ArtifactType: string(cl.ArtifactType),
		Checks:       make([]savedCheck, 0, len(cl.Checks)),
	}
	for i := range cl.Checks {
		c := &cl.Checks[i]
		sc := savedCheck{
			Name:        c.Name,
			Description: c.Description(),
			Guide:       c.Guide(),
		}
		if a := c.Automation(); opts.IncludeAutomation && a.Enabled() {
			id := a.AlgorithmID
			extra := a.ExtraParameters
			if extra == nil {
				extra = map[string]any{}
			}
			sc.Automation = &rawAutomation{
				AlgorithmID:           &id,
				ArtifactParameterName: a.ArtifactParameterName,
				OutputName:            a.OutputName,
				NegateOutput:          a.NegateOutput,
				ExtraParameters:       extra,
			}
		}
		if opts.IncludeResults {
			v := c.Validated == domain.Checked
			sc.Validated = &v
		}
		if opts.IncludeNotes {
			n := c.ValidationNotes()
			sc.ValidationNotes = &n
		}
		doc.Checks = append(doc.Checks, sc)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode checklist: %w", err)
	}
	return data, nil
}
