package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"qaworkbench/internal/algorithms"
	"qaworkbench/internal/automation"
	"qaworkbench/internal/domain"
	"qaworkbench/internal/engine"
	"qaworkbench/internal/tree"
)

// Request payloads

type ServerRequest struct {
	Name string `json:"name" minLength:"1"`
	URL  string `json:"url" format:"uri"`
}

type CreateSessionRequest struct {
	ChecklistID string            `json:"checklist_id" doc:"Checklist identifier, name or file stem"`
	Dataset     string            `json:"dataset,omitempty" doc:"Path of the dataset or document under validation"`
	Layer       *algorithms.Layer `json:"layer,omitempty"`
	Validator   string            `json:"validator,omitempty"`
}

type SetStateRequest struct {
	State string `json:"state" enum:"unchecked,partially_checked,checked"`
}

type SetNotesRequest struct {
	Notes string `json:"notes"`
}

type HandleReportRequest struct {
	AlgorithmID string         `json:"algorithm_id" example:"qaworkbench:reportposter"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Response payloads

type AutomationResponse struct {
	AlgorithmID           string         `json:"algorithm_id"`
	ArtifactParameterName string         `json:"artifact_parameter_name"`
	OutputName            string         `json:"output_name"`
	NegateOutput          bool           `json:"negate_output"`
	ExtraParameters       map[string]any `json:"extra_parameters,omitempty"`
}

type CheckResponse struct {
	Name            string              `json:"name"`
	Description     string              `json:"description"`
	Guide           string              `json:"guide"`
	Automation      *AutomationResponse `json:"automation"`
	Validated       string              `json:"validated"`
	ValidationNotes string              `json:"validation_notes"`
}

type ChecklistResponse struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	DatasetType  string          `json:"dataset_type"`
	ArtifactType string          `json:"validation_artifact_type"`
	Source       string          `json:"artifact_source"`
	Checks       []CheckResponse `json:"checks"`
}

type ChecklistSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DatasetType  string `json:"dataset_type"`
	ArtifactType string `json:"validation_artifact_type"`
	Checks       int    `json:"checks"`
}

type ServerResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type CellResponse struct {
	Label    string `json:"label"`
	Value    any    `json:"value,omitempty"`
	Editable bool   `json:"editable"`
}

type RowResponse struct {
	Index      int            `json:"index"`
	Name       string         `json:"name"`
	State      string         `json:"state"`
	Highlight  string         `json:"highlight,omitempty"`
	Automation string         `json:"automation_state"`
	Properties []CellResponse `json:"properties"`
}

type SessionResponse struct {
	ID        string        `json:"id"`
	Checklist string        `json:"checklist"`
	Dataset   string        `json:"dataset"`
	Validator string        `json:"validator"`
	Created   time.Time     `json:"created" format:"date-time"`
	Result    bool          `json:"dataset_is_valid"`
	Rows      []RowResponse `json:"rows"`
}

type OutcomeResponse struct {
	Check     int    `json:"check"`
	State     string `json:"state"`
	Stale     bool   `json:"stale"`
	Validated bool   `json:"validated"`
	Notes     string `json:"notes"`
	Error     string `json:"error,omitempty"`
}

type AutomateAllResponse struct {
	Outcomes []OutcomeResponse `json:"outcomes"`
	Errors   []string          `json:"errors"`
}

type CompletionResponse struct {
	Successful bool           `json:"successful"`
	Results    map[string]any `json:"results,omitempty"`
	Error      string         `json:"error,omitempty"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
	PayloadRaw string         `json:"payload_raw,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type WhoAmIResponse struct {
	ActorID     string   `json:"actor_id"`
	Permissions []string `json:"permissions"`
}

func automationResponse(a *domain.AutomationDescriptor) *AutomationResponse {
	if !a.Enabled() {
		return nil
	}
	return &AutomationResponse{
		AlgorithmID:           a.AlgorithmID,
		ArtifactParameterName: a.ArtifactParameterName,
		OutputName:            a.OutputName,
		NegateOutput:          a.NegateOutput,
		ExtraParameters:       a.ExtraParameters,
	}
}

func checklistResponse(cl domain.CheckList) ChecklistResponse {
	resp := ChecklistResponse{
		ID:           cl.Identifier.String(),
		Name:         cl.Name,
		Description:  cl.Description,
		DatasetType:  string(cl.DatasetType),
		ArtifactType: string(cl.ArtifactType),
		Source:       string(domain.ArtifactSource(cl.DatasetType, cl.ArtifactType)),
		Checks:       make([]CheckResponse, 0, len(cl.Checks)),
	}
	for i := range cl.Checks {
		c := &cl.Checks[i]
		resp.Checks = append(resp.Checks, CheckResponse{
			Name:            c.Name,
			Description:     c.Description(),
			Guide:           c.Guide(),
			Automation:      automationResponse(c.Automation()),
			Validated:       c.Validated.String(),
			ValidationNotes: c.ValidationNotes(),
		})
	}
	return resp
}

func mapChecklists(items []domain.CheckList) []ChecklistSummary {
	out := make([]ChecklistSummary, 0, len(items))
	for _, cl := range items {
		out = append(out, ChecklistSummary{
			ID:           cl.Identifier.String(),
			Name:         cl.Name,
			DatasetType:  string(cl.DatasetType),
			ArtifactType: string(cl.ArtifactType),
			Checks:       len(cl.Checks),
		})
	}
	return out
}

func serverResponse(s domain.ChecklistServer) ServerResponse {
	return ServerResponse{ID: s.Identifier.String(), Name: s.Name, URL: s.URL}
}

// sessionResponse walks the adapter the way a tree view would.
func sessionResponse(s *engine.Session) SessionResponse {
	a := s.Adapter
	resp := SessionResponse{
		ID:        s.ID.String(),
		Checklist: s.Checklist.Name,
		Dataset:   s.Dataset,
		Validator: s.Validator,
		Created:   s.Created,
		Result:    a.Result(),
		Rows:      make([]RowResponse, 0, a.RowCount(nil)),
	}
	for row := 0; row < a.RowCount(nil); row++ {
		label := tree.CheckCoordinate(row, tree.ColumnLabel)
		value := tree.CheckCoordinate(row, tree.ColumnValue)
		r := RowResponse{
			Index:      row,
			Name:       a.Data(label, tree.AspectDisplay).(string),
			State:      a.Data(value, tree.AspectCheckState).(domain.CheckState).String(),
			Automation: s.Dispatcher.State(row).String(),
		}
		if h, ok := a.Data(value, tree.AspectBackground).(tree.Highlight); ok {
			r.Highlight = string(h)
		}
		for p := 0; p < a.RowCount(&label); p++ {
			kind := domain.PropertyKind(p)
			pl := tree.PropertyCoordinate(row, kind, tree.ColumnLabel)
			pv := tree.PropertyCoordinate(row, kind, tree.ColumnValue)
			r.Properties = append(r.Properties, CellResponse{
				Label:    a.Data(pl, tree.AspectDisplay).(string),
				Value:    displayValue(a.Data(pv, tree.AspectDisplay)),
				Editable: a.Flags(pv).Has(tree.FlagEditable),
			})
		}
		resp.Rows = append(resp.Rows, r)
	}
	return resp
}

func displayValue(v any) any {
	if d, ok := v.(*domain.AutomationDescriptor); ok {
		return automationResponse(d)
	}
	return v
}

func outcomeResponse(o automation.Outcome) OutcomeResponse {
	resp := OutcomeResponse{
		Check:     o.Handle.Check,
		State:     o.State.String(),
		Stale:     o.Stale,
		Validated: o.Validated,
		Notes:     o.Notes,
	}
	if o.Err != nil {
		resp.Error = o.Err.Error()
	}
	return resp
}

func eventResponse(evt domain.Event) EventResponse {
	resp := EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
	}
	if evt.Payload != "" {
		var payload map[string]any
		if err := json.Unmarshal([]byte(evt.Payload), &payload); err == nil {
			resp.Payload = payload
		} else {
			resp.PayloadRaw = evt.Payload
		}
	}
	return resp
}

func parseUUID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid id", map[string]any{"id": s})
	}
	return id, nil
}
