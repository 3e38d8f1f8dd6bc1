/*
Package chain parses and runs tool chains.

A chain is written inline in a request as [CHAIN:step→step→...], e.g.
"[CHAIN:git-create→file-write→git-commit]". Each step names a tool either
by a substring of its name or by its jump code. Steps run strictly in
order and the first failing step halts the chain.
*/
package chain

import (
	"regexp"
	"strings"
)

// Separator joins steps in chain notation.
const Separator = "→"

// marker is the prefix that identifies chain notation in a request.
const marker = "[CHAIN:"

var chainPattern = regexp.MustCompile(`\[CHAIN:([\w\-→:]+)\]`)

// Parse extracts the steps of the first chain in notation. Steps are
// trimmed and empty steps dropped. Text without a chain yields no steps.
func Parse(notation string) []string {
	match := chainPattern.FindStringSubmatch(notation)
	if match == nil {
		return []string{}
	}

	parts := strings.Split(match[1], Separator)
	steps := make([]string, 0, len(parts))
	for _, part := range parts {
		if step := strings.TrimSpace(part); step != "" {
			steps = append(steps, step)
		}
	}
	return steps
}

// Contains reports whether text carries chain notation.
func Contains(text string) bool {
	return strings.Contains(text, marker)
}

// Format renders steps as chain notation.
func Format(steps []string) string {
	return marker + strings.Join(steps, Separator) + "]"
}
