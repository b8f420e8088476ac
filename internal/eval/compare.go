package eval

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/mito-ds/mito-ai/internal/port/executor"
)

// CompareSnapshots checks whether running the actual code produced the same
// interpreter state as running the expected code. The executor already
// canonicalizes values (dataframes to row records, arrays to lists, NaN to a
// sentinel) and drops builtins, functions, modules and warnings, so equality
// here is plain deep equality over the canonical forms.
func CompareSnapshots(expected, actual *executor.Snapshot, variablesToCompare []string) (bool, string) {
	var notes []string

	if len(variablesToCompare) > 0 {
		for _, name := range variablesToCompare {
			want, okWant := expected.Globals[name]
			got, okGot := actual.Globals[name]
			if !okWant {
				notes = append(notes, fmt.Sprintf("expected run never defined %q", name))
				continue
			}
			if !okGot {
				notes = append(notes, fmt.Sprintf("%q not defined", name))
				continue
			}
			if !reflect.DeepEqual(want, got) {
				notes = append(notes, fmt.Sprintf("%q = %v, want %v", name, got, want))
			}
		}
	} else {
		for _, name := range sortedKeys(expected.Globals) {
			got, ok := actual.Globals[name]
			if !ok {
				notes = append(notes, fmt.Sprintf("%q not defined", name))
				continue
			}
			if !reflect.DeepEqual(expected.Globals[name], got) {
				notes = append(notes, fmt.Sprintf("%q = %v, want %v", name, got, expected.Globals[name]))
			}
		}
		for _, name := range sortedKeys(actual.Globals) {
			if _, ok := expected.Globals[name]; !ok {
				notes = append(notes, fmt.Sprintf("unexpected variable %q", name))
			}
		}
	}

	if expected.Stdout != actual.Stdout {
		notes = append(notes, fmt.Sprintf("stdout = %q, want %q", actual.Stdout, expected.Stdout))
	}

	return len(notes) == 0, strings.Join(notes, "; ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
