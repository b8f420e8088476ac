package prompt

import (
	"strings"
	"testing"

	"github.com/mito-ds/mito-ai/internal/domain/message"
)

func testNotebook() NotebookState {
	return NotebookState{
		GlobalVars: map[string]string{
			"df": "pd.DataFrame({'A': [1, 2, 3]})",
			"x":  "5",
		},
		CellContents: []string{"import pandas as pd", "df['B'] = df['A'] + 1"},
		ActiveCellID: "cell-2",
	}
}

func TestChatRendersContext(t *testing.T) {
	msgs := Chat(testNotebook(), "Add a column C")

	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != message.RoleSystem {
		t.Errorf("expected system first, got %s", msgs[0].Role)
	}
	user := msgs[1].Content
	for _, want := range []string{"df =", "x = 5", "import pandas as pd", "df['B'] = df['A'] + 1", "Add a column C", "cell-2"} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}
	if !strings.Contains(msgs[0].Content, "MITO_CITATION") {
		t.Error("system prompt missing citation syntax")
	}
	if !strings.Contains(msgs[0].Content, "Never recreate variables") {
		t.Error("system prompt missing variable-recreation rule")
	}
}

func TestChatIsDeterministic(t *testing.T) {
	nb := testNotebook()
	a := Chat(nb, "task")
	b := Chat(nb, "task")
	if a[1].Content != b[1].Content {
		t.Error("chat prompt rendering is not deterministic")
	}
}

func TestInlineCompletionCursorSentinel(t *testing.T) {
	msgs := InlineCompletion(testNotebook(), "# compute the sum", "")

	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Role != message.RoleUser {
		t.Errorf("expected user role, got %s", msgs[0].Role)
	}
	if !strings.Contains(msgs[0].Content, "# compute the sum"+CursorSentinel) {
		t.Error("prompt missing prefix<cursor> join")
	}
	if !strings.Contains(msgs[0].Content, "begin your completion with a newline") {
		t.Error("prompt missing newline-after-comment rule")
	}
}

func TestSmartDebugSections(t *testing.T) {
	msgs := SmartDebug(testNotebook(), "NameError: name 'y' is not defined")

	user := msgs[1].Content
	for _, section := range []string{SectionErrorAnalysis, SectionIntentAnalysis, SectionSolution} {
		if !strings.Contains(user, section) {
			t.Errorf("smart debug prompt missing section %q", section)
		}
	}
	if !strings.Contains(user, "NameError") {
		t.Error("smart debug prompt missing traceback")
	}
}

func TestAgentListsCells(t *testing.T) {
	cells := []Cell{
		{CellType: "code", ID: "c1", Code: "import pandas as pd"},
		{CellType: "code", ID: "c2", Code: "df = pd.read_csv('x.csv')"},
	}
	msgs := Agent(testNotebook(), cells, "rename the df column")

	user := msgs[1].Content
	if !strings.Contains(user, "id=c1") || !strings.Contains(user, "id=c2") {
		t.Error("agent prompt missing cell ids")
	}
	if !strings.Contains(msgs[0].Content, "exactly one existing cell") {
		t.Error("agent system prompt missing single-cell rule")
	}
}

func TestChatName(t *testing.T) {
	msgs := ChatName(message.User("add a column"), message.Assistant("done, added B"))
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0].Content, "3 to 6 words") {
		t.Error("chat name prompt missing length instruction")
	}
}

func TestSolutionOnly(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{
			name:  "full sections",
			reply: "ERROR ANALYSIS:\nbad name\n\nINTENT ANALYSIS:\nprint y\n\nSOLUTION:\n```python\ny = 1\nprint(y)\n```",
			want:  "```python\ny = 1\nprint(y)\n```",
		},
		{
			name:  "no marker",
			reply: "just some text",
			want:  "just some text",
		},
		{
			name:  "marker without colon",
			reply: "SOLUTION\nfix it",
			want:  "fix it",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SolutionOnly(tt.reply)
			if got != tt.want {
				t.Errorf("SolutionOnly() = %q, want %q", got, tt.want)
			}
			if tt.name == "full sections" {
				if strings.Contains(got, SectionErrorAnalysis) || strings.Contains(got, SectionIntentAnalysis) {
					t.Error("analysis sections leaked into display text")
				}
			}
		})
	}
}

func TestRenderVarsEmpty(t *testing.T) {
	got := renderVars(nil)
	if !strings.Contains(got, "no variables") {
		t.Errorf("unexpected empty-vars rendering %q", got)
	}
}
