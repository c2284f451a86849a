package capability

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"shelf/internal/shelf"
)

// TerminalPicker satisfies shelf.DirectoryPicker for a CLI session. When a
// preset path was supplied (a command argument) it is used directly; otherwise
// the user is prompted on an interactive terminal. A dismissed prompt (empty
// input, EOF, or a non-interactive stdin with no preset) is ErrCancelled,
// never an error.
type TerminalPicker struct {
	store  *OSStore
	preset string
	in     io.Reader
	out    io.Writer

	interactive func() bool
}

// NewTerminalPicker creates a picker. preset may be empty, in which case the
// picker prompts when stdin is a terminal.
func NewTerminalPicker(store *OSStore, preset string) *TerminalPicker {
	return &TerminalPicker{
		store:  store,
		preset: preset,
		in:     os.Stdin,
		out:    os.Stderr,
		interactive: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd()))
		},
	}
}

func (p *TerminalPicker) PickDirectory(ctx context.Context) (shelf.DirRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := p.preset
	if path == "" {
		if !p.interactive() {
			return nil, shelf.ErrCancelled
		}
		fmt.Fprint(p.out, "Directory: ")
		line, err := bufio.NewReader(p.in).ReadString('\n')
		if err != nil && line == "" {
			return nil, shelf.ErrCancelled
		}
		path = strings.TrimSpace(line)
		if path == "" {
			return nil, shelf.ErrCancelled
		}
	}

	ref, err := p.store.Resolve(path)
	if err != nil {
		return nil, fmt.Errorf("selecting directory: %w", err)
	}
	return ref, nil
}

// Compile-time check that TerminalPicker implements shelf.DirectoryPicker.
var _ shelf.DirectoryPicker = (*TerminalPicker)(nil)
