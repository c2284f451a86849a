package shelf

import "context"

// Summarizer is the external text-summarization collaborator. The core only
// ever hands it plain extracted text and a filename and receives a string
// back; no persisted state crosses this boundary.
type Summarizer interface {
	Summarize(ctx context.Context, filename, text string) (string, error)
}
