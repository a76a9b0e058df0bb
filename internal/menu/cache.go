// Package menu provides the in-memory menu tree cache.
//
// The cache holds a snapshot of all active menu nodes so the dialogue
// engine never touches the database on the message path. The snapshot is
// replaced wholesale on each refresh; a failed refresh retains the
// previous snapshot.
package menu

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/comunidadegraca/atendebot/internal/models"
	"github.com/comunidadegraca/atendebot/internal/store"
)

// Cache is a read-many/write-rarely snapshot of the active menu tree.
type Cache struct {
	st store.Store

	mu          sync.RWMutex
	nodes       []models.MenuNode
	byID        map[string]models.MenuNode
	byParent    map[string][]models.MenuNode
	refreshedAt time.Time
}

// NewCache creates an empty cache backed by the given store.
// Call Refresh before serving lookups; until then all lookups miss.
func NewCache(st store.Store) *Cache {
	return &Cache{st: st}
}

// Refresh loads all active menu nodes from the store and replaces the
// snapshot wholesale. On store failure the existing snapshot is retained
// and the error is returned.
func (c *Cache) Refresh(ctx context.Context) error {
	nodes, err := c.st.ListActiveMenuNodes()
	if err != nil {
		slog.Error("Cache.Refresh: menu store unavailable, keeping previous snapshot", "error", err)
		return fmt.Errorf("menu cache refresh failed: %w", err)
	}

	byID := make(map[string]models.MenuNode, len(nodes))
	byParent := make(map[string][]models.MenuNode)
	for _, n := range nodes {
		byID[n.ID] = n
		byParent[n.ParentID] = append(byParent[n.ParentID], n)
	}
	for parent := range byParent {
		children := byParent[parent]
		sort.Slice(children, func(i, j int) bool { return children[i].Order < children[j].Order })
	}

	c.mu.Lock()
	c.nodes = nodes
	c.byID = byID
	c.byParent = byParent
	c.refreshedAt = time.Now()
	c.mu.Unlock()

	slog.Info("Cache.Refresh: menu snapshot replaced", "nodes", len(nodes))
	return nil
}

// RootNodes returns the parentless nodes sorted ascending by order.
func (c *Cache) RootNodes() []models.MenuNode {
	return c.Children("")
}

// Children returns the nodes whose parent is nodeID, sorted ascending by
// order. Returns an empty slice when nodeID has no children. A root
// listing is requested with the empty string.
func (c *Cache) Children(nodeID string) []models.MenuNode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	children := c.byParent[nodeID]
	out := make([]models.MenuNode, len(children))
	copy(out, children)
	return out
}

// Node returns the node with the given id, or ok=false if the id is
// unknown or the cache has never loaded.
func (c *Cache) Node(nodeID string) (models.MenuNode, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.byID[nodeID]
	return n, ok
}

// Loaded reports whether the cache holds a non-empty snapshot.
func (c *Cache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.nodes) > 0
}

// RefreshedAt returns the time of the last successful refresh.
func (c *Cache) RefreshedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshedAt
}

// Size returns the number of cached nodes.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.nodes)
}
