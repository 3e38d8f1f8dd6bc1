/*
Package jumpcode provides short-code navigation to registry tools.

Codes have the form "<category>-<ordinal>", where ordinal is the 1-based
position of the tool within its category in registry order. The category
is lowercased and every run of characters other than letters and digits
becomes a single "-", so "My Tools" yields "my-tools-1". A request
references a code with the pattern [TOOL:<code>], e.g. "[TOOL:docker-1]".

Codes are only stable for one registry snapshot. Version reports which
snapshot issued them.
*/
package jumpcode

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/khanglvm/lunar-mcp/internal/models"
	"github.com/khanglvm/lunar-mcp/internal/registry"
)

var (
	// toolPattern matches [TOOL:<code>] case-insensitively.
	toolPattern = regexp.MustCompile(`(?i)\[TOOL:([a-z0-9]+(?:-[a-z0-9]+)*-\d+)\]`)

	nonSlug = regexp.MustCompile(`[^a-z0-9]+`)
)

// Resolver maps jump codes to tool names and back.
// It is read-only after construction and safe for concurrent use.
type Resolver struct {
	entries []models.JumpCode
	byCode  map[string]int
	byTool  map[string]int
	version string
}

// New builds the jump-code index for a registry snapshot.
func New(reg *registry.Registry) *Resolver {
	tools := reg.Tools()
	r := &Resolver{
		entries: make([]models.JumpCode, 0, len(tools)),
		byCode:  make(map[string]int, len(tools)),
		byTool:  make(map[string]int, len(tools)),
		version: reg.Version(),
	}

	ordinals := make(map[string]int)
	for _, tool := range tools {
		category := slug(registry.CategoryOf(tool))
		ordinals[category]++
		code := fmt.Sprintf("%s-%d", category, ordinals[category])

		r.byCode[code] = len(r.entries)
		r.byTool[tool.Name] = len(r.entries)
		r.entries = append(r.entries, models.JumpCode{
			Code:    code,
			Tool:    tool.Name,
			Pattern: Pattern(code),
		})
	}

	return r
}

func slug(category string) string {
	s := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(category), "-"), "-")
	if s == "" {
		return registry.DefaultCategory
	}
	return s
}

// Pattern formats the in-text reference for a code.
func Pattern(code string) string {
	return "[TOOL:" + code + "]"
}

// Resolve scans text for [TOOL:<code>] references and returns the entry
// of the first one whose code exists.
func (r *Resolver) Resolve(text string) (models.JumpCode, bool) {
	for _, match := range toolPattern.FindAllStringSubmatch(text, -1) {
		if idx, ok := r.byCode[strings.ToLower(match[1])]; ok {
			return r.entries[idx], true
		}
	}
	return models.JumpCode{}, false
}

// CodeFor returns the jump code assigned to a tool.
func (r *Resolver) CodeFor(toolName string) (string, bool) {
	idx, ok := r.byTool[toolName]
	if !ok {
		return "", false
	}
	return r.entries[idx].Code, true
}

// ListAll returns every jump code in registry order.
func (r *Resolver) ListAll() []models.JumpCode {
	out := make([]models.JumpCode, len(r.entries))
	copy(out, r.entries)
	return out
}

// Search returns entries whose code or tool name matches the regular
// expression pattern, case-insensitively.
func (r *Resolver) Search(pattern string) ([]models.JumpCode, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid jump code pattern: %w", err)
	}

	var matches []models.JumpCode
	for _, entry := range r.entries {
		if re.MatchString(entry.Code) || re.MatchString(entry.Tool) {
			matches = append(matches, entry)
		}
	}
	return matches, nil
}

// Version identifies the registry snapshot the codes were issued for.
func (r *Resolver) Version() string {
	return r.version
}
