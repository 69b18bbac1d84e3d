// Package catalog downloads checklists published by remote checklist servers.
package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"qaworkbench/internal/checklist"
	"qaworkbench/internal/domain"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultCacheSize = 32
	maxCatalogBytes  = 8 << 20
)

// StatusError wraps a non-200 catalog response.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog %s: status=%d body=%s", e.URL, e.StatusCode, e.Body)
}

type Client struct {
	HTTPClient *http.Client
	Logger     *zap.Logger
	cache      *lru.Cache[string, []domain.CheckList]
}

func New(httpClient *http.Client, cacheSize int, log *zap.Logger) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	cache, err := lru.New[string, []domain.CheckList](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Client{HTTPClient: httpClient, Logger: log, cache: cache}, nil
}

// Fetch returns the checklists published at server's url. Entries that do
// not parse are skipped. Results are cached per url until Refresh.
func (c *Client) Fetch(ctx context.Context, server domain.ChecklistServer) ([]domain.CheckList, error) {
	if lists, ok := c.cache.Get(server.URL); ok {
		return lists, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", server.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &StatusError{URL: server.URL, StatusCode: resp.StatusCode, Body: string(b)}
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogBytes))
	if err != nil {
		return nil, err
	}
	lists, err := checklist.LoadMany(raw, c.Logger.With(zap.String("server", server.Name)))
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", server.Name, err)
	}
	c.Logger.Info("catalog fetched", zap.String("server", server.Name), zap.Int("checklists", len(lists)))
	c.cache.Add(server.URL, lists)
	return lists, nil
}

// Refresh drops the cached listing of server.
func (c *Client) Refresh(server domain.ChecklistServer) {
	c.cache.Remove(server.URL)
}

// Install saves a downloaded checklist into the local library as a template.
func (c *Client) Install(lib *checklist.Library, cl domain.CheckList) (string, error) {
	path, err := lib.Put(cl)
	if err != nil {
		return "", fmt.Errorf("install %s: %w", cl.Name, err)
	}
	return path, nil
}
