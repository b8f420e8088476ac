package eval

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
)

// PrintTable writes one results table per prompt variant with a pass count
// in the footer.
func PrintTable(w io.Writer, results []Result) {
	byPrompt := map[string][]Result{}
	for _, res := range results {
		byPrompt[res.Prompt] = append(byPrompt[res.Prompt], res)
	}
	prompts := make([]string, 0, len(byPrompt))
	for p := range byPrompt {
		prompts = append(prompts, p)
	}
	sort.Strings(prompts)

	for _, p := range prompts {
		group := byPrompt[p]
		fmt.Fprintf(w, "\n=== %s ===\n", p)
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TEST\tRESULT\tNOTES")
		passed := 0
		for _, res := range group {
			status := "FAIL"
			if res.Passed {
				status = "PASS"
				passed++
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", res.Fixture, status, res.Notes)
		}
		tw.Flush()
		fmt.Fprintf(w, "%d/%d passed\n", passed, len(group))
	}
}
