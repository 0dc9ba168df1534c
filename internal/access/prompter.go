package access

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// Prompter is the interactive picker and permission boundary.
//
// PickDirectory returns the absolute path of the folder the user chose, or
// ErrCancelled. Choosing a folder grants the requested mode on it.
// ConfirmPermission asks the user to allow mode on an already chosen folder.
type Prompter interface {
	PickDirectory(ctx context.Context, mode Mode) (string, error)
	ConfirmPermission(ctx context.Context, folderName string, mode Mode) (bool, error)
}

// FixedPrompter answers the picker with a path supplied up front, such as a
// CLI argument or a folder chosen by the playback UI. An empty path behaves
// like a cancelled picker.
type FixedPrompter struct {
	Path       string
	AllowWrite bool
}

func (p FixedPrompter) PickDirectory(_ context.Context, _ Mode) (string, error) {
	if strings.TrimSpace(p.Path) == "" {
		return "", ErrCancelled
	}
	return filepath.Abs(p.Path)
}

func (p FixedPrompter) ConfirmPermission(_ context.Context, _ string, mode Mode) (bool, error) {
	if mode == ModeRead {
		return true, nil
	}
	return p.AllowWrite, nil
}

// TerminalPrompter asks on a terminal. When the input is not a terminal every
// prompt resolves to ErrCancelled.
//
// One reader goroutine owns In for the prompter's lifetime. A line typed after
// a prompt was cancelled answers the next prompt.
type TerminalPrompter struct {
	In  io.Reader
	Out io.Writer

	once    sync.Once
	lines   chan string
	readErr error
}

// NewTerminalPrompter binds to the process stdin and stderr.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{In: os.Stdin, Out: os.Stderr}
}

func (p *TerminalPrompter) interactive() bool {
	f, ok := p.In.(*os.File)
	if !ok {
		return p.In != nil
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *TerminalPrompter) PickDirectory(ctx context.Context, mode Mode) (string, error) {
	if !p.interactive() {
		return "", ErrCancelled
	}
	answer, err := p.ask(ctx, fmt.Sprintf("Course folder to open (%s, empty to cancel): ", mode))
	if err != nil {
		return "", err
	}
	if answer == "" {
		return "", ErrCancelled
	}
	if strings.HasPrefix(answer, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			answer = filepath.Join(home, strings.TrimPrefix(answer, "~"))
		}
	}
	return filepath.Abs(answer)
}

func (p *TerminalPrompter) ConfirmPermission(ctx context.Context, folderName string, mode Mode) (bool, error) {
	if !p.interactive() {
		return false, ErrCancelled
	}
	verb := "read"
	if mode == ModeReadWrite {
		verb = "save progress into"
	}
	answer, err := p.ask(ctx, fmt.Sprintf("Allow lectern to %s %q? [y/N]: ", verb, folderName))
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func (p *TerminalPrompter) ask(ctx context.Context, question string) (string, error) {
	p.once.Do(p.startReader)
	if p.Out != nil {
		fmt.Fprint(p.Out, question)
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-p.lines:
		if ok {
			return line, nil
		}
		if p.readErr == io.EOF {
			return "", ErrCancelled
		}
		return "", fmt.Errorf("read prompt answer: %w", p.readErr)
	}
}

// startReader hands lines to ask one at a time and closes the channel once In
// fails. readErr is written before the close.
func (p *TerminalPrompter) startReader() {
	p.lines = make(chan string)
	go func() {
		r := bufio.NewReader(p.In)
		for {
			line, err := r.ReadString('\n')
			if line != "" || err == nil {
				p.lines <- strings.TrimSpace(line)
			}
			if err != nil {
				p.readErr = err
				close(p.lines)
				return
			}
		}
	}()
}

type (
	pickedPathKey    struct{}
	writeApprovalKey struct{}
)

// WithPickedPath attaches a folder the caller already chose, such as a path
// sent by the playback UI, for a ContextPrompter to answer the picker with.
func WithPickedPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, pickedPathKey{}, path)
}

// WithWriteApproval attaches the caller's answer to a save-progress prompt,
// such as the allowWrite flag of an HTTP open request.
func WithWriteApproval(ctx context.Context, allow bool) context.Context {
	return context.WithValue(ctx, writeApprovalKey{}, allow)
}

// ContextPrompter answers the picker from WithPickedPath and write prompts
// from WithWriteApproval. Every other prompt goes to Next. Without Next an
// unanswered prompt is cancelled.
type ContextPrompter struct {
	Next Prompter
}

func (p ContextPrompter) PickDirectory(ctx context.Context, mode Mode) (string, error) {
	if picked, ok := ctx.Value(pickedPathKey{}).(string); ok {
		if strings.TrimSpace(picked) == "" {
			return "", ErrCancelled
		}
		return filepath.Abs(picked)
	}
	if p.Next == nil {
		return "", ErrCancelled
	}
	return p.Next.PickDirectory(ctx, mode)
}

func (p ContextPrompter) ConfirmPermission(ctx context.Context, folderName string, mode Mode) (bool, error) {
	if allow, ok := ctx.Value(writeApprovalKey{}).(bool); ok && mode == ModeReadWrite {
		return allow, nil
	}
	if p.Next == nil {
		return false, ErrCancelled
	}
	return p.Next.ConfirmPermission(ctx, folderName, mode)
}
