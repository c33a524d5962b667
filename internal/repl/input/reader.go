// Package input reads the user's lines from the terminal. The REPL prompt
// and tool confirmations share one Reader so they never race for stdin.
package input

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

type line struct {
	text string
	err  error
}

// Reader serves lines from an io.Reader. A single goroutine owns the
// underlying reader; ReadLine hands out one line per call.
type Reader struct {
	src   *bufio.Reader
	lines chan line
	once  sync.Once

	mu        sync.Mutex
	abandoned func(string) bool
}

// NewReader creates a Reader over r. Nothing is read until the first
// ReadLine call.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		src:   bufio.NewReader(r),
		lines: make(chan line),
	}
}

// ReadLine returns the next line without its line ending. It returns io.EOF
// once the input is exhausted, and ctx.Err() if ctx ends first. A line that
// arrives after a cancelled call is kept for the next call.
func (r *Reader) ReadLine(ctx context.Context) (string, error) {
	r.once.Do(func() { go r.pump() })

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case l, ok := <-r.lines:
			if !ok {
				return "", io.EOF
			}
			if l.err == nil && r.dropLate(l.text) {
				continue
			}
			return l.text, l.err
		}
	}
}

// Abandon marks the last cancelled read as answered too late. The next line
// is dropped if late reports true for it; otherwise it is delivered.
func (r *Reader) Abandon(late func(line string) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.abandoned = late
}

func (r *Reader) dropLate(text string) bool {
	r.mu.Lock()
	late := r.abandoned
	r.abandoned = nil
	r.mu.Unlock()
	return late != nil && late(text)
}

func (r *Reader) pump() {
	defer close(r.lines)
	for {
		text, err := r.src.ReadString('\n')
		text = strings.TrimRight(text, "\r\n")

		if err != nil {
			if text != "" {
				r.lines <- line{text: text}
			}
			if !errors.Is(err, io.EOF) {
				r.lines <- line{err: err}
			}
			return
		}
		r.lines <- line{text: text}
	}
}
