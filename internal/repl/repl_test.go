package repl

import (
	"bytes"
	"io"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milanglacier/aichat/internal/config"
	"github.com/milanglacier/aichat/internal/role"
	"github.com/milanglacier/aichat/internal/session"
)

func newTestRepl(t *testing.T, cl *fakeClient, sess *session.Session, signals []Signal) (*Repl, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	out := &bytes.Buffer{}
	abort := NewAbortSignal()
	handler := NewHandler(cl, &cfg, testModel(), sess, nil, abort, out, plainRenderer{})
	editor := &scriptedEditor{signals: signals}
	return New(editor, handler, abort, out), out
}

func TestRunSubmitsPlainLines(t *testing.T) {
	cl := &fakeClient{replies: []string{"four"}}
	r, out := newTestRepl(t, cl, nil, lines("2+2?"))

	require.NoError(t, r.Run("test"))

	assert.Contains(t, out.String(), "Welcome to aichat test")
	assert.Contains(t, out.String(), "four")
	require.Len(t, cl.requests, 1)
}

func TestRunSkipsBlankLines(t *testing.T) {
	cl := &fakeClient{}
	r, _ := newTestRepl(t, cl, nil, lines("", "   "))

	require.NoError(t, r.Run("test"))
	assert.Empty(t, cl.requests)
}

func TestRunExitCommand(t *testing.T) {
	cl := &fakeClient{}
	r, _ := newTestRepl(t, cl, nil, lines(".exit", "never read"))

	require.NoError(t, r.Run("test"))
	assert.Empty(t, cl.requests)
}

func TestRunHelp(t *testing.T) {
	r, out := newTestRepl(t, &fakeClient{}, nil, lines(".help"))

	require.NoError(t, r.Run("test"))

	for _, cmd := range replCommands {
		assert.Contains(t, out.String(), cmd.name)
	}
	assert.Contains(t, out.String(), "Ctrl+C to abort")
}

func TestRunUnknownCommand(t *testing.T) {
	r, out := newTestRepl(t, &fakeClient{}, nil, lines(".frobnicate"))

	require.NoError(t, r.Run("test"))
	assert.Contains(t, out.String(), "Unknown command")
}

func TestRunDoubleCtrlCExits(t *testing.T) {
	signals := []Signal{
		{Kind: SignalCtrlC},
		{Kind: SignalCtrlC},
		{Kind: SignalSuccess, Line: "never read"},
	}
	cl := &fakeClient{}
	r, out := newTestRepl(t, cl, nil, signals)

	require.NoError(t, r.Run("test"))
	assert.Contains(t, out.String(), "To exit, press Ctrl+C again")
	assert.Empty(t, cl.requests)
}

func TestRunSuccessResetsCtrlCState(t *testing.T) {
	signals := []Signal{
		{Kind: SignalCtrlC},
		{Kind: SignalSuccess, Line: "2+2?"},
		{Kind: SignalCtrlC},
		{Kind: SignalSuccess, Line: "3+3?"},
	}
	cl := &fakeClient{replies: []string{"four", "six"}}
	r, _ := newTestRepl(t, cl, nil, signals)

	// Each Ctrl-C is a fresh warning because a successful line intervened.
	require.NoError(t, r.Run("test"))
	require.Len(t, cl.requests, 2)
}

func TestSigintCancelsInFlightExchange(t *testing.T) {
	pr, pw := io.Pipe()
	cfg := config.Default()
	out := &bytes.Buffer{}
	abort := NewAbortSignal()
	editor := NewTermEditor(pr, io.Discard, abort)
	defer editor.Close()

	inFlight := make(chan struct{})
	cl := &fakeClient{blocking: true, onRequest: func() { close(inFlight) }}
	sess := session.New("dev", testModel(), nil)
	handler := NewHandler(cl, &cfg, testModel(), sess, nil, abort, out, plainRenderer{})
	r := New(editor, handler, abort, out)

	done := make(chan error, 1)
	go func() { done <- r.Run("test") }()

	_, err := pw.Write([]byte("hello\n"))
	require.NoError(t, err)

	// Raise a real SIGINT while the exchange is blocked mid-stream.
	<-inFlight
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGINT))

	// End of input exits the loop once the cancelled exchange unwinds.
	require.NoError(t, pw.Close())
	require.NoError(t, <-done)

	require.Len(t, cl.requests, 1)
	assert.Empty(t, sess.Messages())
	assert.False(t, sess.Dirty)
}

func TestPostCancelCtrlCExits(t *testing.T) {
	cfg := config.Default()
	out := &bytes.Buffer{}
	abort := NewAbortSignal()
	cl := &fakeClient{blocking: true}
	cl.onRequest = func() { abort.SetCtrlC() }
	handler := NewHandler(cl, &cfg, testModel(), nil, nil, abort, out, plainRenderer{})

	signals := lines("hello")
	signals = append(signals, Signal{Kind: SignalCtrlC}, Signal{Kind: SignalSuccess, Line: "never read"})
	r := New(&scriptedEditor{signals: signals}, handler, abort, out)

	require.NoError(t, r.Run("test"))

	// The first prompt Ctrl-C after an aborted exchange exits directly,
	// without the first-press warning.
	require.Len(t, cl.requests, 1)
	assert.NotContains(t, out.String(), "To exit, press Ctrl+C again")
}

func TestRunCommandErrorKeepsLooping(t *testing.T) {
	cl := &fakeClient{replies: []string{"four"}}
	r, out := newTestRepl(t, cl, nil, lines(".role ghost", "2+2?"))

	require.NoError(t, r.Run("test"))
	assert.Contains(t, out.String(), "ghost")
	require.Len(t, cl.requests, 1)
}

func TestRunMultilineAndPrompt(t *testing.T) {
	cl := &fakeClient{replies: []string{"ok"}}
	r, _ := newTestRepl(t, cl, nil, lines(
		".multiline { first line\nsecond line }",
		".prompt { always answer in french }",
	))

	require.NoError(t, r.Run("test"))

	require.Len(t, cl.requests, 1)
	assert.Equal(t, "first line\nsecond line", cl.requests[0][0].Content.Text)
	assert.Equal(t, role.NameTemp, r.handler.Role().Name)
	assert.Equal(t, "always answer in french", r.handler.Role().Prompt)
}

func TestRunMultilineBlockAcrossLines(t *testing.T) {
	cl := &fakeClient{replies: []string{"ok"}}
	r, _ := newTestRepl(t, cl, nil, lines(".multiline { first line", "second line }"))

	require.NoError(t, r.Run("test"))

	require.Len(t, cl.requests, 1)
	assert.Equal(t, "first line\nsecond line", cl.requests[0][0].Content.Text)
}

func TestRunPromptBlockAcrossLines(t *testing.T) {
	cl := &fakeClient{}
	r, _ := newTestRepl(t, cl, nil, lines(".prompt { always answer", "in french }"))

	require.NoError(t, r.Run("test"))
	assert.Equal(t, "always answer\nin french", r.handler.Role().Prompt)
}

func TestRunMultilineBlockCancelled(t *testing.T) {
	signals := lines(".multiline { first line")
	signals = append(signals, Signal{Kind: SignalCtrlC})
	signals = append(signals, lines("2+2?")...)

	cl := &fakeClient{replies: []string{"four"}}
	r, _ := newTestRepl(t, cl, nil, signals)

	require.NoError(t, r.Run("test"))

	// The cancelled block is dropped; the next line still goes through.
	require.Len(t, cl.requests, 1)
	assert.Equal(t, "2+2?", cl.requests[0][0].Content.Text)
}

func TestRunMultilineUsageHint(t *testing.T) {
	r, out := newTestRepl(t, &fakeClient{}, nil, lines(".multiline"))

	require.NoError(t, r.Run("test"))
	assert.Contains(t, out.String(), "Usage: .multiline")
}

func TestRunHistoryCommands(t *testing.T) {
	cl := &fakeClient{replies: []string{"four", "six"}}
	r, out := newTestRepl(t, cl, nil, lines("2+2?", "3+3?", ".history"))

	require.NoError(t, r.Run("test"))
	assert.Contains(t, out.String(), "2+2?")
	assert.Contains(t, out.String(), "3+3?")
}

func TestRunClearHistory(t *testing.T) {
	cl := &fakeClient{replies: []string{"four"}}
	editorSignals := lines("2+2?", ".clear history")
	r, _ := newTestRepl(t, cl, nil, editorSignals)

	require.NoError(t, r.Run("test"))
	assert.Empty(t, r.editor.History())
}

func TestRunCopyWithoutReply(t *testing.T) {
	r, out := newTestRepl(t, &fakeClient{}, nil, lines(".copy"))

	require.NoError(t, r.Run("test"))
	assert.Contains(t, out.String(), "No reply messages that can be copied")
}

func TestRunRoleUsageHint(t *testing.T) {
	r, out := newTestRepl(t, &fakeClient{}, nil, lines(".role"))

	require.NoError(t, r.Run("test"))
	assert.Contains(t, out.String(), "Usage: .role")
}

func TestRunInfoWithSession(t *testing.T) {
	sess := session.New("dev", testModel(), nil)
	r, out := newTestRepl(t, &fakeClient{}, sess, lines(".info"))

	require.NoError(t, r.Run("test"))
	assert.Contains(t, out.String(), "test-model")
}

func TestPromptShowsSessionName(t *testing.T) {
	sess := session.New("dev", testModel(), nil)
	r, _ := newTestRepl(t, &fakeClient{}, sess, nil)
	assert.Contains(t, r.prompt(), "dev")
}

func TestStripBraces(t *testing.T) {
	assert.Equal(t, "hello", stripBraces("{ hello }"))
	assert.Equal(t, "hello", stripBraces("hello"))
	assert.Equal(t, "a\nb", stripBraces("{a\nb}"))
	assert.Equal(t, "", stripBraces("{}"))
	assert.Equal(t, "", stripBraces(""))
}
