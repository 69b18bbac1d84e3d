package domain

import "time"

const ReportName = "Validation report"

type CheckReport struct {
	Name        string `json:"name"`
	Validated   bool   `json:"validated"`
	Description string `json:"description"`
	Notes       string `json:"notes"`
}

type ValidationReport struct {
	Name          string        `json:"name"`
	ChecklistName string        `json:"checklist"`
	DatasetName   string        `json:"dataset"`
	Generated     time.Time     `json:"generated" format:"date-time"`
	Validator     string        `json:"validator"`
	OverallResult bool          `json:"dataset_is_valid"`
	Description   string        `json:"description"`
	DatasetType   DatasetType   `json:"dataset_type"`
	ArtifactType  ArtifactType  `json:"artifact_type"`
	Checks        []CheckReport `json:"checks"`
}
