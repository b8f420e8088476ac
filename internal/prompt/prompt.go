package prompt

import (
	_ "embed"
	"strings"
	"text/template"

	"github.com/mito-ds/mito-ai/internal/domain/message"
)

//go:embed templates/chat_system.tmpl
var chatSystemTmpl string

//go:embed templates/chat_user.tmpl
var chatUserTmpl string

//go:embed templates/inline_user.tmpl
var inlineUserTmpl string

//go:embed templates/smart_debug_user.tmpl
var smartDebugUserTmpl string

//go:embed templates/explain_user.tmpl
var explainUserTmpl string

//go:embed templates/agent_system.tmpl
var agentSystemTmpl string

//go:embed templates/agent_user.tmpl
var agentUserTmpl string

//go:embed templates/chat_name_user.tmpl
var chatNameUserTmpl string

var (
	chatUser       = template.Must(template.New("chat_user").Parse(chatUserTmpl))
	inlineUser     = template.Must(template.New("inline_user").Parse(inlineUserTmpl))
	smartDebugUser = template.Must(template.New("smart_debug_user").Parse(smartDebugUserTmpl))
	explainUser    = template.Must(template.New("explain_user").Parse(explainUserTmpl))
	agentUser      = template.Must(template.New("agent_user").Parse(agentUserTmpl))
	chatNameUser   = template.Must(template.New("chat_name_user").Parse(chatNameUserTmpl))
)

// CursorSentinel marks the cursor position in inline completion prompts.
const CursorSentinel = "<cursor>"

type chatData struct {
	Vars           string
	ExistingScript string
	ActiveCellID   string
	ActiveCellCode string
	Input          string
}

// Chat renders the turns for a chat request.
func Chat(nb NotebookState, input string) []message.Message {
	return []message.Message{
		message.System(strings.TrimSpace(chatSystemTmpl)),
		message.User(render(chatUser, chatData{
			Vars:           renderVars(nb.GlobalVars),
			ExistingScript: nb.ExistingScript(),
			ActiveCellID:   nb.ActiveCellID,
			ActiveCellCode: nb.ActiveCellCode(),
			Input:          input,
		})),
	}
}

type inlineData struct {
	Vars   string
	Prefix string
	Suffix string
}

// InlineCompletion renders the one-shot turn for an inline completion. The
// prefix/suffix split is joined with the cursor sentinel inside the prompt.
func InlineCompletion(nb NotebookState, prefix, suffix string) []message.Message {
	return []message.Message{
		message.User(render(inlineUser, inlineData{
			Vars:   renderVars(nb.GlobalVars),
			Prefix: prefix,
			Suffix: suffix,
		})),
	}
}

type smartDebugData struct {
	Vars           string
	ExistingScript string
	ActiveCellCode string
	Traceback      string
}

// SmartDebug renders the turns for a smart-debug request. The traceback is
// the structured, ANSI-stripped form captured from the failing cell.
func SmartDebug(nb NotebookState, traceback string) []message.Message {
	return []message.Message{
		message.System(strings.TrimSpace(chatSystemTmpl)),
		message.User(render(smartDebugUser, smartDebugData{
			Vars:           renderVars(nb.GlobalVars),
			ExistingScript: nb.ExistingScript(),
			ActiveCellCode: nb.ActiveCellCode(),
			Traceback:      traceback,
		})),
	}
}

// Explain renders the turns for a code-explain request.
func Explain(nb NotebookState) []message.Message {
	return []message.Message{
		message.System(strings.TrimSpace(chatSystemTmpl)),
		message.User(render(explainUser, chatData{
			Vars:           renderVars(nb.GlobalVars),
			ActiveCellID:   nb.ActiveCellID,
			ActiveCellCode: nb.ActiveCellCode(),
		})),
	}
}

type agentData struct {
	Vars  string
	Cells []Cell
	Input string
}

// Agent renders the turns for an agent-execution request over the full cell
// list. The structured response schema travels separately as a response
// format; the prompt only states the behavioral rules.
func Agent(nb NotebookState, cells []Cell, input string) []message.Message {
	return []message.Message{
		message.System(strings.TrimSpace(agentSystemTmpl)),
		message.User(render(agentUser, agentData{
			Vars:  renderVars(nb.GlobalVars),
			Cells: cells,
			Input: input,
		})),
	}
}

type chatNameData struct {
	UserMessage      string
	AssistantMessage string
}

// ChatName renders the turn asking for a 3-6 word thread title from the
// first user/assistant exchange.
func ChatName(userMsg, assistantMsg message.Message) []message.Message {
	return []message.Message{
		message.User(render(chatNameUser, chatNameData{
			UserMessage:      userMsg.Content,
			AssistantMessage: assistantMsg.Content,
		})),
	}
}

func render(t *template.Template, data any) string {
	var b strings.Builder
	// Templates are static and data is plain strings; execution cannot fail.
	_ = t.Execute(&b, data)
	return strings.TrimSpace(b.String())
}
