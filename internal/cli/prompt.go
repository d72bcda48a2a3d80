// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// prompt.go - Interactive input for credentials.

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/term"
)

// Prompter reads user input. Password never echoes on a terminal.
type Prompter interface {
	Line(prompt string) (string, error)
	Password(prompt string) (string, error)
}

// NewPrompter returns a terminal prompter when stdin is a TTY and a line
// reader over stdin otherwise, so credentials can be piped in.
func NewPrompter(stderr io.Writer) Prompter {
	if IsTTY() {
		return &terminalPrompter{out: stderr}
	}
	return NewReaderPrompter(os.Stdin)
}

// =============================================================================
// TERMINAL
// =============================================================================

// terminalPrompter edits lines with liner and reads passwords with
// term.ReadPassword.
type terminalPrompter struct {
	out io.Writer
}

func (p *terminalPrompter) Line(prompt string) (string, error) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	input, err := line.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
		return "", ErrAborted
	}
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(input), nil
}

func (p *terminalPrompter) Password(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}

// =============================================================================
// READER
// =============================================================================

// ReaderPrompter reads one line per prompt from r and prints nothing.
type ReaderPrompter struct {
	r *bufio.Reader
}

// NewReaderPrompter wraps r.
func NewReaderPrompter(r io.Reader) *ReaderPrompter {
	return &ReaderPrompter{r: bufio.NewReader(r)}
}

// Line returns the next line with surrounding space trimmed.
func (p *ReaderPrompter) Line(string) (string, error) {
	s, err := p.next()
	return strings.TrimSpace(s), err
}

// Password returns the next line with only the line ending removed.
func (p *ReaderPrompter) Password(string) (string, error) {
	return p.next()
}

func (p *ReaderPrompter) next() (string, error) {
	s, err := p.r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		if errors.Is(err, io.EOF) {
			return "", ErrAborted
		}
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(s, "\r\n"), nil
}
