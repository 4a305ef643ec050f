package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milanglacier/aichat/internal/input"
	"github.com/milanglacier/aichat/internal/message"
	"github.com/milanglacier/aichat/internal/model"
	"github.com/milanglacier/aichat/internal/role"
)

func testModel() model.Model {
	m := model.New("test-model", 8192)
	// One token per character keeps budget arithmetic exact, with the
	// per-message overhead cancelled out.
	m.Estimate = func(text string) int { return len(text) }
	return m
}

func fixedTokenModel(perMessage int) model.Model {
	m := model.New("test-model", 8192)
	m.Estimate = func(string) int { return perMessage - 4 }
	return m
}

func TestNewAdoptsRoleTemperature(t *testing.T) {
	temp := 0.2
	r := &role.Role{Name: "coder", Prompt: "only code", Temperature: &temp}
	s := New("dev", testModel(), r)
	require.NotNil(t, s.Temperature())
	assert.Equal(t, 0.2, *s.Temperature())
	assert.False(t, s.Dirty)
	assert.True(t, s.IsEmpty())
}

func TestAddMessageWithEmbeddedRole(t *testing.T) {
	r := &role.Role{Name: "shell", Prompt: "explain __INPUT__"}
	s := New("dev", testModel(), r)

	s.AddMessage(input.NewText("ls"), "lists files")

	// Merged user turn plus the assistant reply, not three messages.
	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, message.RoleUser, msgs[0].Role)
	assert.Equal(t, "explain ls", msgs[0].Content.Text)
	assert.Equal(t, message.RoleAssistant, msgs[1].Role)
	assert.Nil(t, s.Role, "role must be cleared after framing one exchange")
	assert.True(t, s.Dirty)
}

func TestAddMessageWithPlainRole(t *testing.T) {
	r := &role.Role{Name: "coder", Prompt: "only code"}
	s := New("dev", testModel(), r)

	s.AddMessage(input.NewText("fizzbuzz"), "print(...)")

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, message.RoleSystem, msgs[0].Role)
	assert.Equal(t, message.RoleUser, msgs[1].Role)
	assert.Equal(t, message.RoleAssistant, msgs[2].Role)
}

func TestAddMessageAppendOnly(t *testing.T) {
	s := New("dev", testModel(), nil)
	s.AddMessage(input.NewText("one"), "1")
	before := make([]message.Message, len(s.Messages()))
	copy(before, s.Messages())

	s.AddMessage(input.NewText("two"), "2")

	if diff := cmp.Diff(before, s.Messages()[:len(before)]); diff != "" {
		t.Fatalf("prior messages changed (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, s.UserMessagesLen())
}

func TestUpdateRoleGuardedByHistory(t *testing.T) {
	s := New("dev", testModel(), nil)
	temp := 0.7
	r := &role.Role{Name: "coder", Prompt: "only code", Temperature: &temp}

	require.NoError(t, s.UpdateRole(r))
	assert.Equal(t, 0.7, *s.Temperature())

	s.AddMessage(input.NewText("hi"), "hello")
	err := s.UpdateRole(&role.Role{Name: "other", Prompt: "x"})
	require.ErrorIs(t, err, ErrNotEmpty)

	// Clearing the role on a non-empty session is rejected the same way.
	require.ErrorIs(t, s.UpdateRole(nil), ErrNotEmpty)
}

func TestCompress(t *testing.T) {
	r := &role.Role{Name: "coder", Prompt: "only code"}
	s := New("dev", testModel(), r)
	s.AddMessage(input.NewText("a"), "b")
	s.Role = r
	pre := make([]message.Message, len(s.Messages()))
	copy(pre, s.Messages())

	s.Compress("Summary: a and b happened")

	require.Len(t, s.Messages(), 1)
	assert.Equal(t, message.RoleSystem, s.Messages()[0].Role)
	assert.Equal(t, "Summary: a and b happened", s.Messages()[0].Content.Text)
	if diff := cmp.Diff(pre, s.CompressedMessages()); diff != "" {
		t.Fatalf("compressed ledger mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, s.Role)
	assert.True(t, s.Dirty)

	// Repeated compression appends, preserving order.
	s.AddMessage(input.NewText("c"), "d")
	s.Compress("Summary 2")
	assert.Len(t, s.CompressedMessages(), len(pre)+3)
}

func TestNeedCompress(t *testing.T) {
	// A plain role frames the first exchange as system+user, so two
	// exchanges leave five messages at 500 tokens each.
	s := New("dev", fixedTokenModel(500), &role.Role{Name: "coder", Prompt: "only code"})
	s.AddMessage(input.NewText("x"), "y")
	s.AddMessage(input.NewText("x"), "y")
	require.Equal(t, 2500, s.Tokens())

	// Effective threshold below the 1000 floor never triggers.
	assert.False(t, s.NeedCompress(500))
	s.SetCompressThreshold(500)
	assert.False(t, s.NeedCompress(4000))

	// Session threshold takes precedence over the supplied default.
	s.SetCompressThreshold(2000)
	assert.True(t, s.NeedCompress(4000))
}

func TestNeedCompressDefaultThresholdScenario(t *testing.T) {
	s := New("dev", fixedTokenModel(500), &role.Role{Name: "coder", Prompt: "only code"})
	for i := 0; i < 2; i++ {
		s.AddMessage(input.NewText("x"), "y")
	}
	require.Equal(t, 2500, s.Tokens())
	assert.True(t, s.NeedCompress(2000))

	s.Compress("Summary: …")
	assert.Equal(t, 500, s.Tokens())
	assert.False(t, s.NeedCompress(2000))
}

func TestTokensAndPercent(t *testing.T) {
	s := New("dev", fixedTokenModel(1024), nil)
	s.AddMessage(input.NewText("x"), "y")

	tokens, percent := s.TokensAndPercent()
	assert.Equal(t, 2048, tokens)
	assert.Equal(t, 25.0, percent)

	// No declared ceiling: percent is exactly zero, never a division error.
	s.Model.MaxInputTokens = 0
	_, percent = s.TokensAndPercent()
	assert.Equal(t, 0.0, percent)
}

func TestBuildMessagesContinuityWindow(t *testing.T) {
	s := New("dev", testModel(), nil)
	for i := 0; i < 2; i++ {
		s.AddMessage(input.NewText("q"), "a")
	}
	s.Compress("Summary")
	require.Len(t, s.Messages(), 1)
	require.Len(t, s.CompressedMessages(), 4)

	msgs := s.BuildMessages(input.NewText("next"))
	require.Len(t, msgs, 4)
	assert.Equal(t, "Summary", msgs[0].Content.Text)
	// Exactly the last two compressed messages, in order.
	ledger := s.CompressedMessages()
	assert.Equal(t, ledger[2], msgs[1])
	assert.Equal(t, ledger[3], msgs[2])
	assert.Equal(t, "next", msgs[3].Content.Text)
}

func TestBuildMessagesDoesNotMutate(t *testing.T) {
	r := &role.Role{Name: "coder", Prompt: "only code"}
	s := New("dev", testModel(), r)

	msgs := s.BuildMessages(input.NewText("hi"))
	require.Len(t, msgs, 2)
	assert.True(t, s.IsEmpty())
	assert.NotNil(t, s.Role)
	assert.False(t, s.Dirty)

	// Without a role, a bare user turn is appended after the history.
	s.Role = nil
	msgs = s.BuildMessages(input.NewText("hi"))
	require.Len(t, msgs, 1)
	assert.Equal(t, message.RoleUser, msgs[0].Role)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dev.yaml")

	temp := 0.4
	s := New("dev", testModel(), &role.Role{Name: "coder", Prompt: "only code", Temperature: &temp})
	s.AddMessage(input.NewText("hi"), "hello")
	s.SetCompressThreshold(3000)
	require.NoError(t, s.Save(path))
	assert.False(t, s.Dirty)

	loaded, err := Load("dev", path)
	require.NoError(t, err)
	assert.Equal(t, "test-model", loaded.ModelID())
	assert.Equal(t, 0.4, *loaded.Temperature())
	assert.Equal(t, "dev", loaded.Name)
	assert.Equal(t, path, loaded.Path)
	if diff := cmp.Diff(s.Messages(), loaded.Messages()); diff != "" {
		t.Fatalf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveNoopWhenClean(t *testing.T) {
	s := New("dev", testModel(), nil)
	// Never written: path does not exist afterwards.
	path := filepath.Join(t.TempDir(), "dev.yaml")
	require.NoError(t, s.Save(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestSaveFailureKeepsDirty(t *testing.T) {
	s := New("dev", testModel(), nil)
	s.AddMessage(input.NewText("hi"), "hello")
	err := s.Save(filepath.Join(t.TempDir(), "missing", "dev.yaml"))
	require.Error(t, err)
	assert.True(t, s.Dirty)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("ghost", filepath.Join(t.TempDir(), "ghost.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("messages: {not: a list}"), 0o644))
	_, err = Load("bad", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid session")
}

func TestClearMessages(t *testing.T) {
	s := New("dev", testModel(), nil)
	s.AddMessage(input.NewText("hi"), "hello")
	s.Compress("Summary")
	s.Dirty = false

	s.ClearMessages()
	assert.True(t, s.IsEmpty())
	assert.Empty(t, s.CompressedMessages())
	assert.Empty(t, s.DataURLs())
	assert.True(t, s.Dirty)
}

func TestExportGuardsOnUnsavedSession(t *testing.T) {
	s := New("dev", testModel(), nil)
	_, err := s.Export()
	require.ErrorIs(t, err, ErrNeverSaved)

	s.AddMessage(input.NewText("hi"), "hello")
	require.NoError(t, s.Save(filepath.Join(t.TempDir(), "dev.yaml")))
	out, err := s.Export()
	require.NoError(t, err)
	assert.Contains(t, out, "model: test-model")
	assert.Contains(t, out, "total_tokens:")
}

type plainRenderer struct{}

func (plainRenderer) Render(text string) string { return text }

func TestInfoNeverGuards(t *testing.T) {
	s := New("dev", testModel(), nil)
	out := s.Info(plainRenderer{})
	assert.Contains(t, out, "model")

	s.AddMessage(input.NewText("hi"), "hello")
	out = s.Info(plainRenderer{})
	assert.Contains(t, out, "dev）hi")
	assert.Contains(t, out, "hello")
}

func TestEchoMessagesRendersYAML(t *testing.T) {
	s := New("dev", testModel(), &role.Role{Name: "coder", Prompt: "only code"})
	out := s.EchoMessages(input.NewText("hi"))
	assert.Contains(t, out, "role: system")
	assert.Contains(t, out, "only code")
	assert.Contains(t, out, "role: user")
}
