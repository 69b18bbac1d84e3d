// Package registry keeps the user's bookmarks of remote checklist servers in
// a key/value settings store.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"qaworkbench/internal/domain"
)

const keyPrefix = "checklist_servers/"

const (
	DefaultServerName = "Kartoza checklists for GeoCRIS and DomiNode"
	DefaultServerURL  = "https://kartoza.github.io/qgis_checklist_checker/checklists/checklists.json"
)

var ErrNotFound = errors.New("checklist server not found")

// Store is a flat key/value settings store.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

type Registry struct {
	Store Store
}

type storedServer struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func validate(name, rawURL string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("server name is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid server url %q", rawURL)
	}
	return nil
}

// List returns every bookmark sorted by name.
func (r Registry) List(ctx context.Context) ([]domain.ChecklistServer, error) {
	keys, err := r.Store.Keys(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}
	servers := make([]domain.ChecklistServer, 0, len(keys))
	for _, key := range keys {
		id, err := uuid.Parse(strings.TrimPrefix(key, keyPrefix))
		if err != nil {
			continue
		}
		s, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		servers = append(servers, s)
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].Name < servers[j].Name })
	return servers, nil
}

func (r Registry) Get(ctx context.Context, id uuid.UUID) (domain.ChecklistServer, error) {
	raw, ok, err := r.Store.Get(ctx, keyPrefix+id.String())
	if err != nil {
		return domain.ChecklistServer{}, err
	}
	if !ok {
		return domain.ChecklistServer{}, ErrNotFound
	}
	var s storedServer
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return domain.ChecklistServer{}, fmt.Errorf("decode server %s: %w", id, err)
	}
	return domain.ChecklistServer{Identifier: id, Name: s.Name, URL: s.URL}, nil
}

// Find resolves a server by identifier or by name.
func (r Registry) Find(ctx context.Context, ref string) (domain.ChecklistServer, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return r.Get(ctx, id)
	}
	servers, err := r.List(ctx)
	if err != nil {
		return domain.ChecklistServer{}, err
	}
	for _, s := range servers {
		if s.Name == ref {
			return s, nil
		}
	}
	return domain.ChecklistServer{}, ErrNotFound
}

func (r Registry) put(ctx context.Context, s domain.ChecklistServer) error {
	data, err := json.Marshal(storedServer{Name: s.Name, URL: s.URL})
	if err != nil {
		return err
	}
	return r.Store.Set(ctx, keyPrefix+s.Identifier.String(), string(data))
}

func (r Registry) Add(ctx context.Context, name, rawURL string) (domain.ChecklistServer, error) {
	if err := validate(name, rawURL); err != nil {
		return domain.ChecklistServer{}, err
	}
	s := domain.NewChecklistServer(strings.TrimSpace(name), rawURL)
	return s, r.put(ctx, s)
}

// Edit replaces the name and url of an existing bookmark, keeping its id.
func (r Registry) Edit(ctx context.Context, id uuid.UUID, name, rawURL string) (domain.ChecklistServer, error) {
	if err := validate(name, rawURL); err != nil {
		return domain.ChecklistServer{}, err
	}
	current, err := r.Get(ctx, id)
	if err != nil {
		return domain.ChecklistServer{}, err
	}
	s := current.Edit(strings.TrimSpace(name), rawURL)
	return s, r.put(ctx, s)
}

func (r Registry) Remove(ctx context.Context, id uuid.UUID) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return r.Store.Delete(ctx, keyPrefix+id.String())
}

// EnsureDefaults adds the default servers that are not bookmarked under
// their name yet and returns the ones it added.
func (r Registry) EnsureDefaults(ctx context.Context) ([]domain.ChecklistServer, error) {
	existing, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	names := map[string]bool{}
	for _, s := range existing {
		names[s.Name] = true
	}
	var added []domain.ChecklistServer
	for _, d := range []storedServer{{Name: DefaultServerName, URL: DefaultServerURL}} {
		if names[d.Name] {
			continue
		}
		s, err := r.Add(ctx, d.Name, d.URL)
		if err != nil {
			return added, err
		}
		added = append(added, s)
	}
	return added, nil
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: map[string]string{}}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
