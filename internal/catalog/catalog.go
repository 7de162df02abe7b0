// Package catalog exposes the live MCP tool inventory consumed by the
// dry-run validator's semantic layer.
package catalog

import (
	"context"
	"sort"
	"strings"
)

// Catalog lists the external servers and tools currently available.
type Catalog interface {
	GetAvailableServers(ctx context.Context) ([]string, error)
	ListTools(ctx context.Context) (map[string][]string, error)
}

// Static is an in-memory Catalog, used in tests and for snapshot-based
// validation runs where no live servers are reachable.
type Static struct {
	// Tools maps server name to its tool names.
	Tools map[string][]string
}

// NewStatic creates a Static catalog from a server -> tools map.
func NewStatic(tools map[string][]string) *Static {
	return &Static{Tools: tools}
}

// GetAvailableServers returns the server names, sorted.
func (s *Static) GetAvailableServers(ctx context.Context) ([]string, error) {
	servers := make([]string, 0, len(s.Tools))
	for name := range s.Tools {
		servers = append(servers, name)
	}
	sort.Strings(servers)
	return servers, nil
}

// ListTools returns the full server -> tools map.
func (s *Static) ListTools(ctx context.Context) (map[string][]string, error) {
	return s.Tools, nil
}

// SplitQualified splits a "server:tool" qualified name. The second
// return is false when the name carries no server qualifier.
func SplitQualified(name string) (server, tool string, ok bool) {
	i := strings.Index(name, ":")
	if i <= 0 || i == len(name)-1 {
		return "", name, false
	}
	return name[:i], name[i+1:], true
}

var _ Catalog = (*Static)(nil)
