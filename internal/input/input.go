// Package input resolves one user turn into model-ready content. A turn is
// plain text plus optional attachments; local files are inlined as data URLs
// while the original location is retained in an id-keyed table so history
// display can show paths instead of base64 blobs.
package input

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/milanglacier/aichat/internal/message"
)

// Input is a fully resolved user turn.
type Input struct {
	text     string
	medias   []string          // attachment URLs in argument order
	dataURLs map[string]string // opaque id -> original location
}

// NewText builds an attachment-free turn.
func NewText(text string) *Input {
	return &Input{text: text}
}

// New resolves a turn from raw text and attachment references. Each
// reference is either a remote URL (kept as-is) or a local file path
// (inlined as a data URL and remembered in the data-URL table).
func New(text string, attachments []string) (*Input, error) {
	in := &Input{text: text, dataURLs: map[string]string{}}
	for _, ref := range attachments {
		if isRemoteURL(ref) {
			in.medias = append(in.medias, ref)
			continue
		}
		dataURL, err := readMediaToDataURL(ref)
		if err != nil {
			return nil, err
		}
		in.dataURLs[DataURLID(dataURL)] = ref
		in.medias = append(in.medias, dataURL)
	}
	return in, nil
}

// Render flattens the turn for human display, substituting original file
// paths for inlined attachments.
func (in *Input) Render() string {
	if len(in.medias) == 0 {
		return in.text
	}
	files := make([]string, 0, len(in.medias))
	for _, media := range in.medias {
		files = append(files, ResolveDataURL(in.dataURLs, media))
	}
	return fmt.Sprintf(".file %s -- %s", strings.Join(files, " "), in.text)
}

// ToContent converts the turn into message content: plain text when there
// are no attachments, a mixed part list otherwise.
func (in *Input) ToContent() message.Content {
	if len(in.medias) == 0 {
		return message.NewText(in.text)
	}
	parts := []message.Part{{Type: message.PartText, Text: in.text}}
	for _, media := range in.medias {
		parts = append(parts, message.Part{
			Type:     message.PartImageURL,
			ImageURL: &message.ImageURL{URL: media},
		})
	}
	return message.NewMixed(parts)
}

// DataURLs returns the id-to-original-location bindings discovered while
// resolving this turn.
func (in *Input) DataURLs() map[string]string {
	return in.dataURLs
}

// DataURLID derives the opaque table key for an inlined data URL.
func DataURLID(dataURL string) string {
	sum := sha256.Sum256([]byte(dataURL))
	return hex.EncodeToString(sum[:])
}

// ResolveDataURL maps an inlined data URL back to its recorded original
// location. Non-data URLs and unknown ids pass through unchanged.
func ResolveDataURL(dataURLs map[string]string, value string) string {
	if !strings.HasPrefix(value, "data:") {
		return value
	}
	if original, ok := dataURLs[DataURLID(value)]; ok {
		return original
	}
	return value
}

func isRemoteURL(ref string) bool {
	u, err := url.Parse(ref)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

func readMediaToDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read attachment %s: %w", path, err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	encoded := base64.StdEncoding.EncodeToString(data)
	return fmt.Sprintf("data:%s;base64,%s", mimeType, encoded), nil
}
