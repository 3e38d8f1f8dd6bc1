/*
Package registry holds the ordered, immutable tool catalog the engine
analyzes requests against.

Registry order matters: jump codes are assigned by position within each
category, so two registries with the same tools in a different order issue
different codes. Version identifies a snapshot so callers can tell when
previously issued codes no longer apply.
*/
package registry

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/khanglvm/lunar-mcp/internal/models"
)

// DefaultCategory is used for tools registered without a category.
const DefaultCategory = "misc"

// Registry is an immutable snapshot of the tool catalog.
type Registry struct {
	tools   []models.Tool
	byName  map[string]int
	version string
}

// New creates a registry from tools, preserving their order.
// Later duplicates of a tool name are ignored.
func New(tools []models.Tool) *Registry {
	r := &Registry{
		tools:  make([]models.Tool, 0, len(tools)),
		byName: make(map[string]int, len(tools)),
	}

	for _, tool := range tools {
		if tool.Name == "" {
			continue
		}
		if _, exists := r.byName[tool.Name]; exists {
			continue
		}
		r.byName[tool.Name] = len(r.tools)
		r.tools = append(r.tools, tool)
	}

	r.version = computeVersion(r.tools)
	return r
}

// DefaultTools returns the built-in sample catalog used when no tools are
// configured.
func DefaultTools() []models.Tool {
	return []models.Tool{
		{Name: "github:create_repository", Category: "github"},
		{Name: "github:create_branch", Category: "github"},
		{Name: "docker-mcp:create-container", Category: "docker"},
		{Name: "filesystem:file_operation", Category: "file"},
		{Name: "command-runner:run_command", Category: "system"},
	}
}

// Tools returns a copy of the tools in registry order.
func (r *Registry) Tools() []models.Tool {
	out := make([]models.Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// Len returns the number of tools.
func (r *Registry) Len() int {
	return len(r.tools)
}

// Lookup finds a tool by exact name.
func (r *Registry) Lookup(name string) (models.Tool, bool) {
	idx, ok := r.byName[name]
	if !ok {
		return models.Tool{}, false
	}
	return r.tools[idx], true
}

// Categories maps each category to its tool names in registry order.
func (r *Registry) Categories() map[string][]string {
	categories := make(map[string][]string)
	for _, tool := range r.tools {
		category := CategoryOf(tool)
		categories[category] = append(categories[category], tool.Name)
	}
	return categories
}

// Version returns a short digest identifying this snapshot.
func (r *Registry) Version() string {
	return r.version
}

// CategoryOf returns the tool's category, falling back to DefaultCategory.
func CategoryOf(tool models.Tool) string {
	if strings.TrimSpace(tool.Category) == "" {
		return DefaultCategory
	}
	return tool.Category
}

// computeVersion hashes the ordered (name, category) list.
func computeVersion(tools []models.Tool) string {
	h := blake3.New()
	for _, tool := range tools {
		h.Write([]byte(tool.Name))
		h.Write([]byte{0})
		h.Write([]byte(tool.Category))
		h.Write([]byte{'\n'})
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:6])
}
