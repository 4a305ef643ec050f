package repl

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAbortSignalTransitions(t *testing.T) {
	abort := NewAbortSignal()
	assert.False(t, abort.Aborted())

	abort.SetCtrlC()
	assert.True(t, abort.Aborted())
	assert.True(t, abort.AbortedCtrlC())
	assert.False(t, abort.AbortedCtrlD())

	// The flag is a tri-state, not a queue: the latest write wins.
	abort.SetCtrlD()
	assert.True(t, abort.AbortedCtrlD())
	assert.False(t, abort.AbortedCtrlC())

	abort.Reset()
	assert.False(t, abort.Aborted())
}

func TestAbortSignalConcurrentAccess(t *testing.T) {
	abort := NewAbortSignal()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			abort.SetCtrlC()
			abort.Reset()
		}()
		go func() {
			defer wg.Done()
			_ = abort.AbortedCtrlC()
			_ = abort.Aborted()
		}()
	}
	wg.Wait()
}
