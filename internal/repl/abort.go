// Package repl implements the interactive read-eval-print loop: line
// dispatch over dot-commands, the command handler orchestrating session and
// role state, and the shared abort signal that lets Ctrl-C stop an
// in-flight exchange.
package repl

import "sync/atomic"

// Abort states. A single tri-state flag, not a queue: a new submit always
// starts from a freshly reset signal.
const (
	abortNone int32 = iota
	abortCtrlC
	abortCtrlD
)

// AbortSignal is the one piece of state shared between the input-reading
// context and an in-flight exchange. Writers set, the exchange polls, and
// every successful line resets. Scoped to one Repl, never process-global.
type AbortSignal struct {
	state atomic.Int32
}

// NewAbortSignal returns a signal in the clear state.
func NewAbortSignal() *AbortSignal {
	return &AbortSignal{}
}

// SetCtrlC records an interrupt request.
func (a *AbortSignal) SetCtrlC() {
	a.state.Store(abortCtrlC)
}

// SetCtrlD records an end-of-input request.
func (a *AbortSignal) SetCtrlD() {
	a.state.Store(abortCtrlD)
}

// Reset clears the signal.
func (a *AbortSignal) Reset() {
	a.state.Store(abortNone)
}

// Aborted reports whether any abort was requested.
func (a *AbortSignal) Aborted() bool {
	return a.state.Load() != abortNone
}

// AbortedCtrlC reports whether an interrupt was requested.
func (a *AbortSignal) AbortedCtrlC() bool {
	return a.state.Load() == abortCtrlC
}

// AbortedCtrlD reports whether end-of-input was requested.
func (a *AbortSignal) AbortedCtrlD() bool {
	return a.state.Load() == abortCtrlD
}
