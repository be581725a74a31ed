// Package bootstrap performs the startup handshake that supplies the bot
// credential and the base URL for shareable links.
package bootstrap

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"unicode/utf8"
)

var (
	// ErrInvalidUTF8 is returned when a payload is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("bootstrap: payload is not valid UTF-8")
	// ErrMissingPayload is returned when the source ends or yields an
	// empty payload.
	ErrMissingPayload = errors.New("bootstrap: missing payload")
	// ErrInvalidBaseURL is returned when the base URL is not absolute.
	ErrInvalidBaseURL = errors.New("bootstrap: base URL must be absolute")
)

// Prompts logged before each payload is read.
const (
	TokenPrompt   = "give me a bot token"
	BaseURLPrompt = "give me a url base so I can share proofs too!"
)

// Source yields raw handshake payloads in order.
type Source interface {
	Next() ([]byte, error)
}

// LineSource reads one payload per line.
type LineSource struct {
	scanner *bufio.Scanner
}

// NewLineSource reads payloads from r.
func NewLineSource(r io.Reader) *LineSource {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), 64<<10)
	return &LineSource{scanner: s}
}

// Next returns the next line without its terminator.
func (s *LineSource) Next() ([]byte, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return append([]byte(nil), s.scanner.Bytes()...), nil
}

// StaticSource replays fixed payloads.
type StaticSource [][]byte

// Next pops the first payload.
func (s *StaticSource) Next() ([]byte, error) {
	if len(*s) == 0 {
		return nil, io.EOF
	}
	p := (*s)[0]
	*s = (*s)[1:]
	return p, nil
}

// Credentials are the values the engine cannot start without.
type Credentials struct {
	Token   string
	BaseURL string
}

// Handshake fills whatever preset lacks from src: first the token, then
// the base URL. prompt, when non-nil, is called before each read.
// Any decode failure is fatal to startup.
func Handshake(src Source, preset Credentials, prompt func(string)) (Credentials, error) {
	creds := preset

	if creds.Token == "" {
		token, err := read(src, "token", TokenPrompt, prompt)
		if err != nil {
			return Credentials{}, err
		}
		creds.Token = token
	}

	if creds.BaseURL == "" {
		base, err := read(src, "base url", BaseURLPrompt, prompt)
		if err != nil {
			return Credentials{}, err
		}
		creds.BaseURL = base
	}

	if err := checkBaseURL(creds.BaseURL); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}

func read(src Source, what, msg string, prompt func(string)) (string, error) {
	if prompt != nil {
		prompt(msg)
	}

	payload, err := src.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read %s: %w", what, ErrMissingPayload)
		}
		return "", fmt.Errorf("read %s: %w", what, err)
	}
	if !utf8.Valid(payload) {
		return "", fmt.Errorf("read %s: %w", what, ErrInvalidUTF8)
	}

	s := strings.TrimSpace(string(payload))
	if s == "" {
		return "", fmt.Errorf("read %s: %w", what, ErrMissingPayload)
	}
	return s, nil
}

func checkBaseURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, s)
	}
	return nil
}
