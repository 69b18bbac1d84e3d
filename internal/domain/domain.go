package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type DatasetType string

const (
	DatasetDocument DatasetType = "document"
	DatasetRaster   DatasetType = "raster"
	DatasetVector   DatasetType = "vector"
)

func ParseDatasetType(s string) (DatasetType, error) {
	switch t := DatasetType(strings.TrimSpace(s)); t {
	case DatasetDocument, DatasetRaster, DatasetVector:
		return t, nil
	}
	return "", fmt.Errorf("invalid dataset_type %q", s)
}

type ArtifactType string

const (
	ArtifactDataset  ArtifactType = "dataset"
	ArtifactMetadata ArtifactType = "metadata"
	ArtifactStyle    ArtifactType = "style"
)

func ParseArtifactType(s string) (ArtifactType, error) {
	switch t := ArtifactType(strings.TrimSpace(s)); t {
	case ArtifactDataset, ArtifactMetadata, ArtifactStyle:
		return t, nil
	}
	return "", fmt.Errorf("invalid validation_artifact_type %q", s)
}

// ArtifactSourceKind says where the artifact under validation can be picked from.
type ArtifactSourceKind string

const (
	SourceLayer       ArtifactSourceKind = "layer"
	SourceLayerOrFile ArtifactSourceKind = "layer_or_file"
	SourceFile        ArtifactSourceKind = "file"
)

func ArtifactSource(dt DatasetType, at ArtifactType) ArtifactSourceKind {
	switch {
	case at == ArtifactStyle:
		return SourceLayerOrFile
	case at == ArtifactDataset && (dt == DatasetVector || dt == DatasetRaster):
		return SourceLayer
	default:
		return SourceFile
	}
}

// ChecklistServer is a bookmark for a remote checklist catalog.
type ChecklistServer struct {
	Identifier uuid.UUID `json:"identifier"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
}

func NewChecklistServer(name, url string) ChecklistServer {
	return ChecklistServer{Identifier: uuid.New(), Name: name, URL: url}
}

// Edit returns a copy with new name and url and the same identifier.
func (s ChecklistServer) Edit(name, url string) ChecklistServer {
	s.Name = name
	s.URL = url
	return s
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
