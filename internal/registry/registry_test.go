package registry

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCRUD(t *testing.T) {
	ctx := context.Background()
	r := Registry{Store: NewMemoryStore()}

	a, err := r.Add(ctx, "Team", "https://example.org/checklists.json")
	require.NoError(t, err)
	_, err = r.Add(ctx, "Archive", "http://archive.example.org/all.json")
	require.NoError(t, err)

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Archive", list[0].Name)

	edited, err := r.Edit(ctx, a.Identifier, "Team QA", "https://example.org/v2.json")
	require.NoError(t, err)
	assert.Equal(t, a.Identifier, edited.Identifier)

	got, err := r.Find(ctx, "Team QA")
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/v2.json", got.URL)
	got, err = r.Find(ctx, a.Identifier.String())
	require.NoError(t, err)
	assert.Equal(t, "Team QA", got.Name)

	require.NoError(t, r.Remove(ctx, a.Identifier))
	_, err = r.Get(ctx, a.Identifier)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, r.Remove(ctx, uuid.New()), ErrNotFound)
}

func TestRegistryValidation(t *testing.T) {
	ctx := context.Background()
	r := Registry{Store: NewMemoryStore()}
	_, err := r.Add(ctx, "", "https://example.org")
	assert.Error(t, err)
	_, err = r.Add(ctx, "ftp", "ftp://example.org/x.json")
	assert.Error(t, err)
	_, err = r.Edit(ctx, uuid.New(), "x", "https://example.org")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnsureDefaultsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r := Registry{Store: NewMemoryStore()}

	added, err := r.EnsureDefaults(ctx)
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Equal(t, DefaultServerURL, added[0].URL)

	added, err = r.EnsureDefaults(ctx)
	require.NoError(t, err)
	assert.Empty(t, added)

	list, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
