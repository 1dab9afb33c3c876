// ABOUTME: Process-local allow-list used when decisions need not survive a restart
// ABOUTME: Safe for concurrent use

package authz

import (
	"context"
	"sort"
	"sync"
)

type pair struct {
	server string
	tool   string
}

// MemoryAllowList keeps always-allow decisions in memory.
type MemoryAllowList struct {
	mu    sync.RWMutex
	pairs map[pair]struct{}
}

// NewMemoryAllowList returns an empty allow-list.
func NewMemoryAllowList() *MemoryAllowList {
	return &MemoryAllowList{pairs: make(map[pair]struct{})}
}

func (m *MemoryAllowList) IsAlwaysAllowed(_ context.Context, server, tool string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.pairs[pair{server, tool}]
	return ok, nil
}

func (m *MemoryAllowList) AddAlwaysAllow(_ context.Context, server, tool string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pairs[pair{server, tool}] = struct{}{}
	return nil
}

// List returns the allowed pairs as "server/tool", sorted.
func (m *MemoryAllowList) List() []string {
	m.mu.RLock()
	out := make([]string, 0, len(m.pairs))
	for p := range m.pairs {
		out = append(out, p.server+"/"+p.tool)
	}
	m.mu.RUnlock()

	sort.Strings(out)
	return out
}
