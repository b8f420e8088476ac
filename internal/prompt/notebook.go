// Package prompt renders provider-agnostic chat turns for every assistant
// task type. Rendering is deterministic and side-effect-free; all provider
// and transport concerns live elsewhere.
package prompt

import (
	"fmt"
	"sort"
	"strings"
)

// NotebookState is the slice of notebook context a prompt can draw on.
type NotebookState struct {
	GlobalVars   map[string]string `json:"global_vars"`
	CellContents []string          `json:"cell_contents"`
	ActiveCellID string            `json:"active_cell_id,omitempty"`
}

// Cell is one notebook cell as presented to the agent task types.
type Cell struct {
	CellType string `json:"cell_type"`
	ID       string `json:"id"`
	Code     string `json:"code"`
}

// ActiveCellCode returns the last cell's source, which by convention is the
// cell the user is editing.
func (n NotebookState) ActiveCellCode() string {
	if len(n.CellContents) == 0 {
		return ""
	}
	return n.CellContents[len(n.CellContents)-1]
}

// ExistingScript concatenates every cell before the active one.
func (n NotebookState) ExistingScript() string {
	if len(n.CellContents) <= 1 {
		return ""
	}
	return strings.Join(n.CellContents[:len(n.CellContents)-1], "\n")
}

// renderVars produces a stable, line-per-variable rendering of the defined
// globals. Deterministic ordering keeps prompt rendering reproducible.
func renderVars(vars map[string]string) string {
	if len(vars) == 0 {
		return "There are no variables defined yet."
	}
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s = %s\n", name, vars[name])
	}
	return strings.TrimRight(b.String(), "\n")
}
