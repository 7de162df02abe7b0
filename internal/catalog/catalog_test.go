package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	cat := NewStatic(map[string][]string{
		"github": {"create_issue", "create_pr"},
		"files":  {"read"},
	})

	servers, err := cat.GetAvailableServers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"files", "github"}, servers)

	tools, err := cat.ListTools(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"read"}, tools["files"])
}

func TestStatic_Empty(t *testing.T) {
	cat := NewStatic(nil)

	servers, err := cat.GetAvailableServers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, servers)
}

func TestSplitQualified(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		server string
		tool   string
		ok     bool
	}{
		{"qualified", "github:create_issue", "github", "create_issue", true},
		{"plain", "bash", "", "bash", false},
		{"leading colon", ":tool", "", ":tool", false},
		{"trailing colon", "server:", "", "server:", false},
		{"nested colon keeps first split", "srv:tool:variant", "srv", "tool:variant", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, tool, ok := SplitQualified(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.server, server)
			assert.Equal(t, tt.tool, tool)
		})
	}
}
