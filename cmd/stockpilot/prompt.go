package main

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/term"
)

func (a *app) isTerminal() bool {
	return term.IsTerminal(int(a.in.Fd()))
}

// prompt reads one line, trimming the newline. Piped input is read without
// echoing the prompt.
func (a *app) prompt(label string) (string, error) {
	if a.isTerminal() {
		fmt.Fprint(a.errOut, label)
	}
	line, err := a.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.TrimSpace(label), ":"), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// promptPassword reads a secret with echo disabled when stdin is a terminal.
func (a *app) promptPassword(label string) (string, error) {
	if !a.isTerminal() {
		return a.prompt(label)
	}
	fmt.Fprint(a.errOut, label)
	b, err := term.ReadPassword(int(a.in.Fd()))
	fmt.Fprintln(a.errOut)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}

// valueOrPrompt returns value unless it is empty, in which case it asks.
func (a *app) valueOrPrompt(value, label string) (string, error) {
	if value != "" {
		return value, nil
	}
	return a.prompt(label)
}
