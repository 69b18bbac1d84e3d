package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type CheckState int

const (
	Unchecked        CheckState = 0
	PartiallyChecked CheckState = 1
	Checked          CheckState = 2
)

func (s CheckState) String() string {
	switch s {
	case Checked:
		return "checked"
	case PartiallyChecked:
		return "partially_checked"
	default:
		return "unchecked"
	}
}

// ParseCheckState accepts the names String returns plus the short forms
// "partial", "pass", "yes" and "no".
func ParseCheckState(s string) (CheckState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "checked", "yes", "pass":
		return Checked, nil
	case "partially_checked", "partial":
		return PartiallyChecked, nil
	case "unchecked", "no", "":
		return Unchecked, nil
	}
	return Unchecked, fmt.Errorf("invalid check state %q", s)
}

// PropertyKind is the fixed slot order of a check's sub-properties.
type PropertyKind int

const (
	PropertyDescription PropertyKind = iota
	PropertyGuide
	PropertyAutomation
	PropertyValidationNotes
)

const PropertyCount = 4

var propertyLabels = [PropertyCount]string{
	"Description",
	"Guide",
	"Automation",
	"Validation notes",
}

func (k PropertyKind) Label() string {
	if k < 0 || int(k) >= PropertyCount {
		return ""
	}
	return propertyLabels[k]
}

const (
	DefaultArtifactParameter = "INPUT"
	DefaultOutputName        = "OUTPUT"
)

type AutomationDescriptor struct {
	AlgorithmID           string         `json:"algorithm_id,omitempty"`
	ArtifactParameterName string         `json:"artifact_parameter_name"`
	OutputName            string         `json:"output_name"`
	NegateOutput          bool           `json:"negate_output"`
	ExtraParameters       map[string]any `json:"extra_parameters,omitempty"`
}

// DisabledAutomation returns a descriptor with no algorithm.
func DisabledAutomation() *AutomationDescriptor {
	return &AutomationDescriptor{
		ArtifactParameterName: DefaultArtifactParameter,
		OutputName:            DefaultOutputName,
		ExtraParameters:       map[string]any{},
	}
}

func (a *AutomationDescriptor) Enabled() bool {
	return a != nil && a.AlgorithmID != ""
}

type CheckProperty struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

type Check struct {
	Name       string
	Validated  CheckState
	Properties [PropertyCount]CheckProperty
}

// NewCheck fills every property slot. A nil automation is stored as a disabled descriptor.
func NewCheck(name, description, guide string, automation *AutomationDescriptor) Check {
	if automation == nil {
		automation = DisabledAutomation()
	}
	c := Check{Name: name, Validated: Unchecked}
	c.Properties[PropertyDescription] = CheckProperty{Name: PropertyDescription.Label(), Value: description}
	c.Properties[PropertyGuide] = CheckProperty{Name: PropertyGuide.Label(), Value: guide}
	c.Properties[PropertyAutomation] = CheckProperty{Name: PropertyAutomation.Label(), Value: automation}
	c.Properties[PropertyValidationNotes] = CheckProperty{Name: PropertyValidationNotes.Label(), Value: ""}
	return c
}

func (c *Check) stringProperty(k PropertyKind) string {
	s, _ := c.Properties[k].Value.(string)
	return s
}

func (c *Check) Description() string     { return c.stringProperty(PropertyDescription) }
func (c *Check) Guide() string           { return c.stringProperty(PropertyGuide) }
func (c *Check) ValidationNotes() string { return c.stringProperty(PropertyValidationNotes) }

// Automation never returns nil.
func (c *Check) Automation() *AutomationDescriptor {
	if a, ok := c.Properties[PropertyAutomation].Value.(*AutomationDescriptor); ok && a != nil {
		return a
	}
	return DisabledAutomation()
}

func (c *Check) SetValidationNotes(notes string) {
	c.Properties[PropertyValidationNotes].Value = notes
}

type CheckList struct {
	Identifier   uuid.UUID
	Name         string
	Description  string
	DatasetType  DatasetType
	ArtifactType ArtifactType
	Checks       []Check
}

func NewCheckList(name, description string, dt DatasetType, at ArtifactType, checks ...Check) CheckList {
	return CheckList{
		Identifier:   uuid.New(),
		Name:         name,
		Description:  description,
		DatasetType:  dt,
		ArtifactType: at,
		Checks:       checks,
	}
}
