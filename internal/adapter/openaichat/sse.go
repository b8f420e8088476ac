package openaichat

import (
	"bufio"
	"bytes"
	"io"
)

// doneSentinel terminates an OpenAI-style SSE stream.
var doneSentinel = []byte("[DONE]")

// ReadSSE scans server-sent events from r and invokes onData for every
// "data:" payload until [DONE] or EOF. A handler error aborts the stream.
func ReadSSE(r io.Reader, onData func(data []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		data, ok := bytes.CutPrefix(line, []byte("data:"))
		if !ok {
			continue
		}
		data = bytes.TrimSpace(data)
		if len(data) == 0 {
			continue
		}
		if bytes.Equal(data, doneSentinel) {
			return nil
		}
		if err := onData(data); err != nil {
			return err
		}
	}
	return scanner.Err()
}
