package render

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// SpinnerFrames contains the braille spinner animation frames
var SpinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner animates a single status line until stopped.
type Spinner struct {
	writer   io.Writer
	interval time.Duration

	mu      sync.Mutex
	message string
}

// NewSpinner creates a spinner writing to writer.
func NewSpinner(writer io.Writer) *Spinner {
	return &Spinner{
		writer:   writer,
		interval: 80 * time.Millisecond,
	}
}

// SetMessage sets the message to display after the spinner
func (s *Spinner) SetMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// Start begins the animation and returns a stop function. The stop function
// blocks until the line has been cleared and may be called more than once.
func (s *Spinner) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		frame := 0
		s.render(frame)
		for {
			select {
			case <-ctx.Done():
				fmt.Fprint(s.writer, "\r\033[K")
				return
			case <-ticker.C:
				frame = (frame + 1) % len(SpinnerFrames)
				s.render(frame)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

func (s *Spinner) render(frame int) {
	s.mu.Lock()
	message := s.message
	s.mu.Unlock()

	styled := ToolPendingStyle.Render(SpinnerFrames[frame])
	if message != "" {
		fmt.Fprintf(s.writer, "\r\033[K%s %s", styled, message)
	} else {
		fmt.Fprintf(s.writer, "\r\033[K%s", styled)
	}
}
