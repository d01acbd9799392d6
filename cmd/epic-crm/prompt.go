// ABOUTME: Interactive prompts for the CLI, including no-echo secret entry
// ABOUTME: Falls back to plain line reads when stdin is not a terminal

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// errNoInput is returned when a required answer cannot be read.
var errNoInput = errors.New("no input")

type prompter struct {
	reader *bufio.Reader
	out    io.Writer
	fd     int // terminal file descriptor, -1 when stdin is not a terminal
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	fd := -1
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd = int(f.Fd())
	}
	return &prompter{reader: bufio.NewReader(in), out: out, fd: fd}
}

// ask prints question and returns the trimmed answer, or defaultVal on empty input or EOF.
func (p *prompter) ask(question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(p.out, "%s: ", question)
	}

	input, err := p.reader.ReadString('\n')
	if err != nil && input == "" {
		fmt.Fprintln(p.out)
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

// confirm asks a yes/no question.
func (p *prompter) confirm(question string) bool {
	answer := strings.ToLower(p.ask(question, "no"))
	return answer == "yes" || answer == "y"
}

// secret reads a value without echo when attached to a terminal.
func (p *prompter) secret(question string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", question)

	if p.fd >= 0 {
		raw, err := term.ReadPassword(p.fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}
		return string(raw), nil
	}

	input, err := p.reader.ReadString('\n')
	if err != nil && input == "" {
		return "", errNoInput
	}
	return strings.TrimRight(input, "\r\n"), nil
}

// newSecret reads a secret twice and requires both entries to match.
func (p *prompter) newSecret(question string) (string, error) {
	first, err := p.secret(question)
	if err != nil {
		return "", err
	}
	if first == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	second, err := p.secret("Repeat " + strings.ToLower(question))
	if err != nil {
		return "", err
	}
	if first != second {
		return "", fmt.Errorf("passwords do not match")
	}
	return first, nil
}
