package input

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milanglacier/aichat/internal/message"
)

func TestTextOnlyInput(t *testing.T) {
	in := NewText("hello")
	assert.Equal(t, "hello", in.Render())
	assert.True(t, in.ToContent().IsText())
	assert.Empty(t, in.DataURLs())
}

func TestLocalAttachmentBecomesDataURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pixel.png")
	require.NoError(t, os.WriteFile(path, []byte{0x89, 0x50, 0x4e, 0x47}, 0o644))

	in, err := New("what is this", []string{path})
	require.NoError(t, err)

	content := in.ToContent()
	require.False(t, content.IsText())
	require.Len(t, content.Parts, 2)
	assert.Equal(t, message.PartText, content.Parts[0].Type)

	dataURL := content.Parts[1].ImageURL.URL
	assert.True(t, strings.HasPrefix(dataURL, "data:image/png;base64,"))

	// The table maps the opaque id back to the original path, and render
	// shows the path rather than the blob.
	assert.Equal(t, path, in.DataURLs()[DataURLID(dataURL)])
	assert.Equal(t, ".file "+path+" -- what is this", in.Render())
}

func TestRemoteAttachmentKeptVerbatim(t *testing.T) {
	in, err := New("look", []string{"https://example.com/cat.jpg"})
	require.NoError(t, err)
	assert.Empty(t, in.DataURLs())
	assert.Equal(t, ".file https://example.com/cat.jpg -- look", in.Render())
}

func TestMissingAttachmentFails(t *testing.T) {
	_, err := New("oops", []string{"/no/such/file.png"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/no/such/file.png")
}

func TestResolveDataURLPassthrough(t *testing.T) {
	assert.Equal(t, "https://example.com/a.png",
		ResolveDataURL(nil, "https://example.com/a.png"))
	assert.Equal(t, "data:text/plain;base64,AAAA",
		ResolveDataURL(map[string]string{}, "data:text/plain;base64,AAAA"))
}
