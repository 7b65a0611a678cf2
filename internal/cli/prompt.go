package cli

import (
	"errors"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

// Prompter reads answers from the user.
type Prompter interface {
	// Line reads one line. io.EOF or ErrAborted ends the conversation.
	Line(prompt string) (string, error)
	// Secret reads one line without echoing it.
	Secret(prompt string) (string, error)
	Close() error
}

// readlinePrompter prompts on the terminal.
type readlinePrompter struct {
	rl *readline.Instance
}

// NewPrompter returns a terminal Prompter reading from stdin.
func NewPrompter() (Prompter, error) {
	rl, err := readline.NewEx(&readline.Config{
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		// Codes and passwords never go into history.
		DisableAutoSaveHistory: true,
	})
	if err != nil {
		return nil, err
	}
	return &readlinePrompter{rl: rl}, nil
}

func (p *readlinePrompter) Line(prompt string) (string, error) {
	p.rl.SetPrompt(prompt)
	line, err := p.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", ErrAborted
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (p *readlinePrompter) Secret(prompt string) (string, error) {
	b, err := p.rl.ReadPassword(prompt)
	if errors.Is(err, readline.ErrInterrupt) {
		return "", ErrAborted
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (p *readlinePrompter) Close() error {
	return p.rl.Close()
}

func isEndOfInput(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, ErrAborted)
}
