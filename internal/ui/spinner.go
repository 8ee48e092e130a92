package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/Mohsinsiddi/w3carbon/internal/notify"
)

// Spinner animates a loading indicator in the terminal.
// This is a lightweight spinner for non-TUI contexts; the dashboard renders
// its own status line.
type Spinner struct {
	out    io.Writer
	frames []string

	mu  sync.Mutex
	msg string

	stop chan struct{}
	done chan struct{}
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// NewSpinner creates a spinner writing to stderr.
func NewSpinner(msg string) *Spinner {
	return newSpinner(os.Stderr, msg)
}

func newSpinner(out io.Writer, msg string) *Spinner {
	return &Spinner{
		out:    out,
		frames: spinnerFrames,
		msg:    msg,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start begins the spinner animation in a goroutine.
func (s *Spinner) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i++ {
			frame := StyleChain.Render(s.frames[i%len(s.frames)])
			s.mu.Lock()
			fmt.Fprintf(s.out, "\r%s  %s", frame, s.msg)
			s.mu.Unlock()
			select {
			case <-s.stop:
				fmt.Fprintf(s.out, "\r%-72s\r", "")
				return
			case <-ticker.C:
			}
		}
	}()
}

// SetMessage replaces the text next to the spinner.
func (s *Spinner) SetMessage(msg string) {
	s.mu.Lock()
	s.msg = msg
	s.mu.Unlock()
}

// Stop halts the spinner and waits for it to finish.
func (s *Spinner) Stop() {
	close(s.stop)
	<-s.done
}

// StopWithMsg halts the spinner and prints a final message.
func (s *Spinner) StopWithMsg(msg string) {
	s.Stop()
	fmt.Fprintln(s.out, msg)
}

// Progress is a notify.Sink for the command line. Info notifications drive
// a spinner; success, warning and error notifications end it and print a
// line.
type Progress struct {
	out     io.Writer
	animate bool

	mu      sync.Mutex
	spinner *Spinner
}

// NewProgress creates a Progress writing to out. With animate false, info
// notifications are printed as plain lines, which suits logs and tests.
func NewProgress(out io.Writer, animate bool) *Progress {
	return &Progress{out: out, animate: animate}
}

// Show implements notify.Sink.
func (p *Progress) Show(kind notify.Kind, title, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if kind == notify.KindInfo {
		if !p.animate {
			fmt.Fprintln(p.out, Info(message))
			return
		}
		if p.spinner == nil {
			p.spinner = newSpinner(p.out, message)
			p.spinner.Start()
			return
		}
		p.spinner.SetMessage(message)
		return
	}

	if p.spinner != nil {
		p.spinner.Stop()
		p.spinner = nil
	}
	line := title
	if message != "" {
		line += ": " + message
	}
	switch kind {
	case notify.KindSuccess:
		fmt.Fprintln(p.out, Success(line))
	case notify.KindWarning:
		fmt.Fprintln(p.out, Warn(line))
	default:
		fmt.Fprintln(p.out, Err(line))
	}
}

// Close stops a spinner left running by an interrupted action.
func (p *Progress) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.spinner != nil {
		p.spinner.Stop()
		p.spinner = nil
	}
}
