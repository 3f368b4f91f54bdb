// Package passphrase resolves keystore passphrases for the CLI.
package passphrase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source lazily resolves a keystore passphrase from an environment variable or
// an interactive prompt, caching the first result.
type Source struct {
	envVar  string
	confirm bool
	prompt  io.Writer
	lookup  func(string) (string, bool)
	read    func() ([]byte, error)

	once  sync.Once
	value string
	err   error
}

// NewSource checks envVar before prompting on the terminal.
func NewSource(envVar string) *Source {
	return &Source{
		envVar: strings.TrimSpace(envVar),
		prompt: os.Stderr,
		lookup: os.LookupEnv,
		read:   readTerminal,
	}
}

// Confirming makes an interactive prompt ask twice. Used when a new keystore
// is about to be encrypted.
func (s *Source) Confirming() *Source {
	s.confirm = true
	return s
}

// Get returns the cached passphrase or resolves it on first use.
// Whitespace-only passphrases are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		if value, ok := s.fromEnv(); ok {
			if strings.TrimSpace(value) == "" {
				s.err = fmt.Errorf("%s is set but empty", s.envVar)
				return
			}
			s.value = value
			return
		}
		s.value, s.err = s.interactive()
	})
	return s.value, s.err
}

func (s *Source) fromEnv() (string, bool) {
	if s.envVar == "" {
		return "", false
	}
	return s.lookup(s.envVar)
}

func (s *Source) interactive() (string, error) {
	if s.read == nil {
		return "", errors.New("keystore passphrase required and no terminal available")
	}
	first, err := s.ask("Enter keystore passphrase: ")
	if err != nil {
		return "", err
	}
	if s.confirm {
		second, err := s.ask("Repeat keystore passphrase: ")
		if err != nil {
			return "", err
		}
		if second != first {
			return "", errors.New("passphrases do not match")
		}
	}
	return first, nil
}

func (s *Source) ask(label string) (string, error) {
	fmt.Fprint(s.prompt, label)
	raw, err := s.read()
	fmt.Fprintln(s.prompt)
	if err != nil {
		if s.envVar != "" {
			return "", fmt.Errorf("keystore passphrase required; set %s or run interactively: %w", s.envVar, err)
		}
		return "", err
	}
	passphrase := string(raw)
	if strings.TrimSpace(passphrase) == "" {
		return "", errors.New("keystore passphrase cannot be empty")
	}
	return passphrase, nil
}

func readTerminal() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("stdin is not a terminal")
	}
	return term.ReadPassword(fd)
}
