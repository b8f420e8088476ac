// Package eval implements the offline evaluation harness: fixtures rendered
// through the production prompt builders, completions executed against the
// interpreter, and results compared and tabulated.
package eval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mito-ds/mito-ai/internal/prompt"
)

// Fixture is one deterministic test input: a notebook state, the user's ask,
// and the code a correct completion must be equivalent to.
type Fixture struct {
	Name     string               `json:"name"`
	Tags     []string             `json:"tags,omitempty"`
	Notebook prompt.NotebookState `json:"notebook_state"`

	// UserInput drives chat/agent fixtures; Prefix and Suffix drive inline
	// completion fixtures.
	UserInput string `json:"user_input,omitempty"`
	Prefix    string `json:"prefix,omitempty"`
	Suffix    string `json:"suffix,omitempty"`

	ExpectedCode string `json:"expected_code"`

	// VariablesToCompare restricts comparison to these globals; empty means
	// compare everything left after filtering.
	VariablesToCompare []string `json:"variables_to_compare,omitempty"`

	// InvalidCode is the failing cell of a smart-debug fixture; its traceback
	// feeds the prompt.
	InvalidCode string `json:"invalid_code,omitempty"`

	// InitialNotebook and ExpectedUpdate drive agent find-and-update
	// fixtures.
	InitialNotebook []prompt.Cell `json:"initial_notebook,omitempty"`
	ExpectedUpdate  *CellUpdate   `json:"expected_update,omitempty"`
}

// CellUpdate is the structured answer an agent fixture expects: the id of an
// existing cell and its full new body.
type CellUpdate struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

// ExistingScript concatenates every notebook cell before the active one.
func (f *Fixture) ExistingScript() string {
	return f.Notebook.ExistingScript()
}

// HasTag reports whether the fixture carries the tag.
func (f *Fixture) HasTag(tag string) bool {
	return slices.Contains(f.Tags, tag)
}

// MatchesTags reports whether the fixture carries every requested tag. An
// empty request matches everything.
func (f *Fixture) MatchesTags(tags []string) bool {
	for _, tag := range tags {
		if !f.HasTag(tag) {
			return false
		}
	}
	return true
}

// LoadDir reads every *.json fixture under dir, sorted by file name.
func LoadDir(dir string) ([]Fixture, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read fixture dir: %w", err)
	}
	var fixtures []Fixture
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read fixture %s: %w", entry.Name(), err)
		}
		var f Fixture
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse fixture %s: %w", entry.Name(), err)
		}
		if f.Name == "" {
			f.Name = strings.TrimSuffix(entry.Name(), ".json")
		}
		fixtures = append(fixtures, f)
	}
	return fixtures, nil
}

// Filter returns the fixtures matching the name (if non-empty) and all tags.
func Filter(fixtures []Fixture, name string, tags []string) []Fixture {
	var out []Fixture
	for _, f := range fixtures {
		if name != "" && f.Name != name {
			continue
		}
		if !f.MatchesTags(tags) {
			continue
		}
		out = append(out, f)
	}
	return out
}
