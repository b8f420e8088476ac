package service

import (
	"context"
	"strings"

	"github.com/mito-ds/mito-ai/internal/adapter/fsthreads"
	"github.com/mito-ds/mito-ai/internal/domain/message"
	"github.com/mito-ds/mito-ai/internal/port/provider"
	"github.com/mito-ds/mito-ai/internal/prompt"
)

// ThreadNamer builds the lazy thread-name generator the file store calls
// after the first exchange. Names come back from the provider as a short
// phrase; surrounding quotes and newlines are stripped.
func ThreadNamer(adapter provider.Adapter, model string) fsthreads.NameGenerator {
	return func(ctx context.Context, userMsg, assistantMsg message.Message) (string, error) {
		msgs := prompt.ChatName(userMsg, assistantMsg)
		text, err := adapter.Complete(ctx, provider.Request{Messages: msgs, Model: model})
		if err != nil {
			return "", err
		}
		name := strings.TrimSpace(text)
		name = strings.Trim(name, `"'`)
		if i := strings.IndexByte(name, '\n'); i >= 0 {
			name = strings.TrimSpace(name[:i])
		}
		return name, nil
	}
}
