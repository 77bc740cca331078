// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-sharevault.
//
// go-sharevault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package password

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Prompter reads passwords interactively. On a terminal echo is disabled;
// otherwise one line is read from the input.
type Prompter struct {
	out          io.Writer
	fd           int
	terminal     bool
	readPassword func(fd int) ([]byte, error)
	lines        *bufio.Reader
}

// NewPrompter prompts on out and reads from in.
func NewPrompter(in *os.File, out io.Writer) *Prompter {
	fd := int(in.Fd())
	return &Prompter{
		out:          out,
		fd:           fd,
		terminal:     term.IsTerminal(fd),
		readPassword: term.ReadPassword,
		lines:        bufio.NewReader(in),
	}
}

// NewReaderPrompter reads newline separated passwords from in.
func NewReaderPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{out: out, lines: bufio.NewReader(in)}
}

// Read prints label and returns the entered password.
func (p *Prompter) Read(label string) (*Secret, error) {
	if _, err := fmt.Fprint(p.out, label); err != nil {
		return nil, err
	}

	var (
		raw []byte
		err error
	)
	if p.terminal {
		raw, err = p.readPassword(p.fd)
		fmt.Fprintln(p.out)
	} else {
		raw, err = p.lines.ReadBytes('\n')
		if errors.Is(err, io.EOF) && len(raw) > 0 {
			err = nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	defer clear(raw)
	return New(trimNewline(raw))
}

// ReadConfirmed reads the password twice and fails with ErrMismatch when the
// entries differ.
func (p *Prompter) ReadConfirmed(label, confirmLabel string) (*Secret, error) {
	first, err := p.Read(label)
	if err != nil {
		return nil, err
	}
	second, err := p.Read(confirmLabel)
	if err != nil {
		first.Clear()
		return nil, err
	}
	defer second.Clear()

	ok, err := Equal(first, second)
	if err != nil {
		first.Clear()
		return nil, err
	}
	if !ok {
		first.Clear()
		return nil, ErrMismatch
	}
	return first, nil
}

// FromFile reads a password from the first line of path.
func FromFile(path string) (*Secret, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read password file: %w", err)
	}
	defer clear(data)
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		data = data[:i+1]
	}
	return New(trimNewline(data))
}

// FromEnv reads a password from the environment variable name.
func FromEnv(name string) (*Secret, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not set", ErrEmptyPassword, name)
	}
	return FromString(v)
}

func trimNewline(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte("\n"))
	return bytes.TrimSuffix(b, []byte("\r"))
}
