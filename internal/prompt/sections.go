package prompt

import "strings"

// Section labels emitted by the smart-debug prompt. The first two are
// stripped before the reply is shown to the user.
const (
	SectionErrorAnalysis  = "ERROR ANALYSIS"
	SectionIntentAnalysis = "INTENT ANALYSIS"
	SectionSolution       = "SOLUTION"
)

// SolutionOnly returns the reply text starting at the first non-whitespace
// character after the "SOLUTION:" marker. If the marker is absent the reply
// is returned unchanged; a model that skipped the sections still produced
// something displayable.
func SolutionOnly(reply string) string {
	idx := strings.Index(reply, SectionSolution+":")
	if idx < 0 {
		idx = strings.Index(reply, SectionSolution)
		if idx < 0 {
			return reply
		}
		return strings.TrimSpace(reply[idx+len(SectionSolution):])
	}
	return strings.TrimSpace(reply[idx+len(SectionSolution)+1:])
}
