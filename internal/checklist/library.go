package checklist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"qaworkbench/internal/domain"
)

// Library is the local directory of installed checklist templates.
type Library struct {
	Dir    string
	Logger *zap.Logger
}

func OpenLibrary(dir string, log *zap.Logger) (*Library, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checklists dir: %w", err)
	}
	return &Library{Dir: dir, Logger: log}, nil
}

// SanitizeName turns a checklist name into a file stem.
func SanitizeName(name string) string {
	r := strings.NewReplacer(" ", "_", "/", "_", "\\", "_")
	return strings.ToLower(r.Replace(strings.TrimSpace(name)))
}

func (l *Library) PathFor(cl domain.CheckList) string {
	return filepath.Join(l.Dir, SanitizeName(cl.Name)+".json")
}

// Put writes cl as a shareable template and returns its path.
func (l *Library) Put(cl domain.CheckList) (string, error) {
	data, err := Save(cl, TemplateOptions())
	if err != nil {
		return "", err
	}
	path := l.PathFor(cl)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write checklist %s: %w", path, err)
	}
	l.Logger.Info("checklist saved", zap.String("name", cl.Name), zap.String("path", path))
	return path, nil
}

func (l *Library) Delete(cl domain.CheckList) error {
	path := l.PathFor(cl)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			l.Logger.Warn("checklist file already gone", zap.String("path", path))
			return fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return err
	}
	l.Logger.Info("checklist deleted", zap.String("name", cl.Name), zap.String("path", path))
	return nil
}

// List returns installed checklists sorted by name.
func (l *Library) List() []domain.CheckList {
	items := LoadDirectory(l.Dir, l.Logger)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items
}

// Find resolves ref as an identifier, a name or a sanitized file stem.
func (l *Library) Find(ref string) (domain.CheckList, error) {
	ref = strings.TrimSpace(ref)
	for _, cl := range l.List() {
		if cl.Identifier.String() == ref || cl.Name == ref || SanitizeName(cl.Name) == SanitizeName(ref) {
			return cl, nil
		}
	}
	return domain.CheckList{}, fmt.Errorf("%s: %w", ref, ErrNotFound)
}
