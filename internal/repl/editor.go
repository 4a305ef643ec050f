package repl

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

// SignalKind classifies one read from the line editor.
type SignalKind int

const (
	SignalSuccess SignalKind = iota
	SignalCtrlC
	SignalCtrlD
)

// Signal is the outcome of one ReadLine call.
type Signal struct {
	Kind SignalKind
	Line string
}

// LineEditor supplies raw lines and owns its own input history. The widget
// itself (keybindings, editing) is a collaborator behind this interface.
type LineEditor interface {
	// ReadLine blocks for the next line or control signal.
	ReadLine(prompt string) (Signal, error)
	// History returns the recorded lines, oldest first.
	History() []string
	// ClearHistory drops the recorded lines.
	ClearHistory()
}

type readResult struct {
	line string
	err  error
}

// TermEditor is the default LineEditor over a terminal: a buffered reader
// with SIGINT translated to CtrlC and EOF to CtrlD. Every SIGINT also sets
// the shared abort flag immediately, whether or not a ReadLine is active,
// so an in-flight exchange observes Ctrl-C without waiting for the loop to
// come back to the prompt.
type TermEditor struct {
	out        io.Writer
	abort      *AbortSignal
	lines      chan readResult
	sigint     chan os.Signal
	interrupts chan struct{}
	history    []string
	done       bool
}

// NewTermEditor starts reading from in. One background reader feeds all
// subsequent ReadLine calls; it exits when the input is exhausted.
func NewTermEditor(in io.Reader, out io.Writer, abort *AbortSignal) *TermEditor {
	e := &TermEditor{
		out:        out,
		abort:      abort,
		lines:      make(chan readResult),
		sigint:     make(chan os.Signal, 1),
		interrupts: make(chan struct{}, 1),
	}
	signal.Notify(e.sigint, syscall.SIGINT)

	go func() {
		for range e.sigint {
			e.abort.SetCtrlC()
			select {
			case e.interrupts <- struct{}{}:
			default:
			}
		}
	}()

	reader := bufio.NewReader(in)
	go func() {
		defer close(e.lines)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if line != "" {
					e.lines <- readResult{line: line}
				}
				return
			}
			e.lines <- readResult{line: line}
		}
	}()
	return e
}

// ReadLine blocks until a line arrives, the process receives SIGINT, or
// input ends.
func (e *TermEditor) ReadLine(prompt string) (Signal, error) {
	if e.done {
		return Signal{Kind: SignalCtrlD}, nil
	}
	// An interrupt raised while no read was active already set the abort
	// flag; it must not surface as a Ctrl-C at the next prompt.
	select {
	case <-e.interrupts:
	default:
	}
	fmt.Fprint(e.out, prompt)
	select {
	case <-e.interrupts:
		fmt.Fprintln(e.out)
		return Signal{Kind: SignalCtrlC}, nil
	case res, ok := <-e.lines:
		if !ok {
			e.done = true
			return Signal{Kind: SignalCtrlD}, nil
		}
		if res.err != nil {
			return Signal{}, res.err
		}
		line := strings.TrimRight(res.line, "\r\n")
		if strings.TrimSpace(line) != "" {
			e.history = append(e.history, line)
		}
		return Signal{Kind: SignalSuccess, Line: line}, nil
	}
}

// History returns the recorded lines, oldest first.
func (e *TermEditor) History() []string {
	return e.history
}

// ClearHistory drops the recorded lines.
func (e *TermEditor) ClearHistory() {
	e.history = nil
}

// Close detaches the signal handler and stops the signal goroutine.
func (e *TermEditor) Close() {
	signal.Stop(e.sigint)
	close(e.sigint)
}
