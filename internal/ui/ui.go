// Package ui runs the interactive terminal front-end on its own goroutine:
// it prints a prompt, reads lines, shell-tokenizes them, and hands valid
// command lines to the peer via a shared FIFO. It never touches peer
// state directly.
package ui

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"canopy/internal/bufx"
	"github.com/google/shlex"
)

// Command is a tokenized, arity-checked command line.
type Command struct {
	Name string
	Args []string
}

var arity = map[string]int{
	"register":   0,
	"advertiser": 0,
	"message":    1,
	"exit":       0,
}

// UI owns the prompt loop and the outgoing command buffer.
type UI struct {
	prompt   string
	in       io.Reader
	out      io.Writer
	Commands *bufx.Queue[Command]
	stop     chan struct{}
	stopOnce sync.Once
}

// New builds a UI that reads from in and prints prompt/errors to out.
// isRoot brackets the prompt to distinguish the root peer, per spec.
func New(promptAddr string, isRoot bool, in io.Reader, out io.Writer) *UI {
	p := promptAddr + "> "
	if isRoot {
		p = "[" + promptAddr + "]> "
	}
	return &UI{
		prompt:   p,
		in:       in,
		out:      out,
		Commands: &bufx.Queue[Command]{},
		stop:     make(chan struct{}),
	}
}

// Run reads lines until EOF or Stop is called. Meant to run on its own
// goroutine; blocks on the scanner's read.
func (u *UI) Run() {
	scanner := bufio.NewScanner(u.in)
	fmt.Fprint(u.out, u.prompt)
	for scanner.Scan() {
		select {
		case <-u.stop:
			return
		default:
		}

		line := scanner.Text()
		cmd, err := parse(line)
		if err != nil {
			if err != errBlankLine {
				fmt.Fprintln(u.out, "error:", err)
			}
			fmt.Fprint(u.out, u.prompt)
			continue
		}
		u.Commands.Push(cmd)
		fmt.Fprint(u.out, u.prompt)
	}
}

// Stop signals Run to return on its next line (or leaves it blocked on
// the final read, which the peer shutdown path does not wait on). Safe to
// call more than once.
func (u *UI) Stop() {
	u.stopOnce.Do(func() { close(u.stop) })
}

var errBlankLine = fmt.Errorf("blank line")

func parse(line string) (Command, error) {
	tokens, err := shlex.Split(line)
	if err != nil {
		return Command{}, fmt.Errorf("tokenizing line: %w", err)
	}
	if len(tokens) == 0 {
		return Command{}, errBlankLine
	}

	name := tokens[0]
	args := tokens[1:]

	want, known := arity[name]
	if !known {
		return Command{}, fmt.Errorf("unknown command %q", name)
	}
	if len(args) != want {
		return Command{}, fmt.Errorf("%s: expected %d argument(s), got %d", name, want, len(args))
	}
	return Command{Name: name, Args: args}, nil
}
