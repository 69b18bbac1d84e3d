package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCheckFillsFixedSlots(t *testing.T) {
	c := NewCheck("crs", "layer uses EPSG:4326", "open layer properties", nil)

	assert.Equal(t, Unchecked, c.Validated)
	for i := 0; i < PropertyCount; i++ {
		assert.Equal(t, PropertyKind(i).Label(), c.Properties[i].Name)
	}
	assert.Equal(t, "layer uses EPSG:4326", c.Description())
	assert.Equal(t, "open layer properties", c.Guide())
	assert.Equal(t, "", c.ValidationNotes())
	require.NotNil(t, c.Automation())
	assert.False(t, c.Automation().Enabled())
}

func TestAccessorsIgnorePropertyNames(t *testing.T) {
	c := NewCheck("crs", "desc", "guide", &AutomationDescriptor{AlgorithmID: "qaworkbench:crschecker"})
	c.Properties[PropertyDescription].Name = "Renamed"
	c.SetValidationNotes("looks fine")

	assert.Equal(t, "desc", c.Description())
	assert.Equal(t, "looks fine", c.ValidationNotes())
	assert.True(t, c.Automation().Enabled())
}

func TestParseEnums(t *testing.T) {
	dt, err := ParseDatasetType("vector")
	require.NoError(t, err)
	assert.Equal(t, DatasetVector, dt)
	_, err = ParseDatasetType("mesh")
	assert.Error(t, err)

	at, err := ParseArtifactType("style")
	require.NoError(t, err)
	assert.Equal(t, ArtifactStyle, at)
	_, err = ParseArtifactType("")
	assert.Error(t, err)
}

func TestArtifactSource(t *testing.T) {
	cases := []struct {
		dt   DatasetType
		at   ArtifactType
		want ArtifactSourceKind
	}{
		{DatasetVector, ArtifactDataset, SourceLayer},
		{DatasetRaster, ArtifactDataset, SourceLayer},
		{DatasetVector, ArtifactStyle, SourceLayerOrFile},
		{DatasetDocument, ArtifactDataset, SourceFile},
		{DatasetVector, ArtifactMetadata, SourceFile},
	}
	for _, tc := range cases {
		t.Run(string(tc.dt)+"/"+string(tc.at), func(t *testing.T) {
			assert.Equal(t, tc.want, ArtifactSource(tc.dt, tc.at))
		})
	}
}

func TestServerEditKeepsIdentifier(t *testing.T) {
	s := NewChecklistServer("one", "https://example.org/a.json")
	edited := s.Edit("two", "https://example.org/b.json")

	assert.Equal(t, s.Identifier, edited.Identifier)
	assert.Equal(t, "two", edited.Name)
	assert.Equal(t, "https://example.org/b.json", edited.URL)
	assert.Equal(t, "one", s.Name)
}

func TestParseCheckState(t *testing.T) {
	for in, want := range map[string]CheckState{
		"checked":           Checked,
		" Partial ":         PartiallyChecked,
		"partially_checked": PartiallyChecked,
		"no":                Unchecked,
		"":                  Unchecked,
	} {
		got, err := ParseCheckState(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseCheckState("maybe")
	assert.Error(t, err)
}
