// Package definitions provides a read-through cache of deployed workflow
// definition metadata. Definitions are immutable once deployed, so entries
// are memoized for the process lifetime with no eviction.
package definitions

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/flowscope/pkg/engine"
	"golang.org/x/sync/singleflight"
)

type entry struct {
	name    string
	version int32
	found   bool
}

// Cache memoizes definition lookups. Population on miss is single-flight:
// concurrent lookups for the same uncached workflow id trigger exactly one
// engine call. An id the engine does not know is memoized negatively and
// reported as nil, not as an error.
type Cache struct {
	client engine.Client
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group
}

// NewCache creates a cache backed by the given engine client.
func NewCache(client engine.Client, logger *slog.Logger) *Cache {
	return &Cache{
		client:  client,
		logger:  logger,
		entries: make(map[string]entry),
	}
}

// WorkflowName returns the definition's name, or nil when the workflow id is
// unknown.
func (c *Cache) WorkflowName(ctx context.Context, workflowID string) (*string, error) {
	cached, err := c.lookup(ctx, workflowID)
	if err != nil || !cached.found {
		return nil, err
	}

	return &cached.name, nil
}

// WorkflowVersion returns the definition's version, or nil when the workflow
// id is unknown.
func (c *Cache) WorkflowVersion(ctx context.Context, workflowID string) (*int32, error) {
	cached, err := c.lookup(ctx, workflowID)
	if err != nil || !cached.found {
		return nil, err
	}

	return &cached.version, nil
}

func (c *Cache) lookup(ctx context.Context, workflowID string) (entry, error) {
	c.mu.RLock()
	cached, ok := c.entries[workflowID]
	c.mu.RUnlock()

	if ok {
		return cached, nil
	}

	result, err, _ := c.group.Do(workflowID, func() (any, error) {
		// Re-check under the flight: a previous flight may have landed
		// between the read above and this call.
		c.mu.RLock()
		cached, ok := c.entries[workflowID]
		c.mu.RUnlock()

		if ok {
			return cached, nil
		}

		definition, err := c.client.Definition(ctx, workflowID)
		if err != nil {
			return entry{}, fmt.Errorf("failed to fetch definition %s: %w", workflowID, err)
		}

		populated := entry{}
		if definition != nil {
			populated = entry{name: definition.Name, version: definition.Version, found: true}
		} else {
			c.logger.WarnContext(ctx, "Workflow definition unknown to engine", "workflow_id", workflowID)
		}

		c.mu.Lock()
		c.entries[workflowID] = populated
		c.mu.Unlock()

		return populated, nil
	})
	if err != nil {
		return entry{}, err
	}

	return result.(entry), nil
}
