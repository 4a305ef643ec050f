// Package message defines the wire-level chat message model shared by the
// session engine, the exchange clients, and the renderers. Content is a
// closed tagged variant: plain text or an ordered list of mixed parts.
package message

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsUser reports whether the message was authored by the user.
func (r Role) IsUser() bool {
	return r == RoleUser
}

// Message is a single entry in a conversation history.
type Message struct {
	Role    Role    `yaml:"role" json:"role"`
	Content Content `yaml:"content" json:"content"`
}

// NewSystem builds a system message carrying plain text.
func NewSystem(text string) Message {
	return Message{Role: RoleSystem, Content: NewText(text)}
}

// NewUser builds a user message from already-built content.
func NewUser(content Content) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistant builds an assistant message carrying plain text.
func NewAssistant(text string) Message {
	return Message{Role: RoleAssistant, Content: NewText(text)}
}

// Part kinds for mixed content.
const (
	PartText     = "text"
	PartImageURL = "image_url"
)

// ImageURL references an attachment by URL. The URL may be a remote http(s)
// URL or an inline data URL produced by the input resolver.
type ImageURL struct {
	URL string `yaml:"url" json:"url"`
}

// Part is one block of a mixed content payload.
type Part struct {
	Type     string    `yaml:"type" json:"type"`
	Text     string    `yaml:"text,omitempty" json:"text,omitempty"`
	ImageURL *ImageURL `yaml:"image_url,omitempty" json:"image_url,omitempty"`
}

// Content is either Text (Parts == nil) or Mixed (Parts != nil). The zero
// value is an empty text payload.
type Content struct {
	Text  string
	Parts []Part
}

// NewText builds a plain-text content value.
func NewText(text string) Content {
	return Content{Text: text}
}

// NewMixed builds a mixed content value from ordered parts.
func NewMixed(parts []Part) Content {
	if parts == nil {
		parts = []Part{}
	}
	return Content{Parts: parts}
}

// IsText reports whether the content is the plain-text variant.
func (c Content) IsText() bool {
	return c.Parts == nil
}

// MergePrompt rewrites the textual portion of the content through replace,
// typically splicing it into a role template. On mixed content only the
// first text part is rewritten; a content with no text part gains one so
// the template is never silently dropped.
func (c *Content) MergePrompt(replace func(string) string) {
	if c.Parts == nil {
		c.Text = replace(c.Text)
		return
	}
	for i := range c.Parts {
		if c.Parts[i].Type == PartText {
			c.Parts[i].Text = replace(c.Parts[i].Text)
			return
		}
	}
	c.Parts = append([]Part{{Type: PartText, Text: replace("")}}, c.Parts...)
}

// RenderInput flattens the content for human display. Attachment URLs are
// passed through resolve so inline data URLs can be shown as their original
// file paths.
func (c Content) RenderInput(resolve func(string) string) string {
	if c.Parts == nil {
		return c.Text
	}
	var files []string
	var text string
	for _, part := range c.Parts {
		switch part.Type {
		case PartText:
			text = part.Text
		case PartImageURL:
			if part.ImageURL != nil {
				files = append(files, resolve(part.ImageURL.URL))
			}
		}
	}
	if len(files) == 0 {
		return text
	}
	return fmt.Sprintf(".file %s -- %s", strings.Join(files, " "), text)
}

// MarshalYAML keeps the on-disk shape identical to the variant: a plain
// scalar for text, a sequence of parts for mixed payloads.
func (c Content) MarshalYAML() (any, error) {
	if c.Parts == nil {
		return c.Text, nil
	}
	return c.Parts, nil
}

// UnmarshalYAML accepts both shapes emitted by MarshalYAML.
func (c *Content) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		c.Parts = nil
		return value.Decode(&c.Text)
	case yaml.SequenceNode:
		c.Text = ""
		return value.Decode(&c.Parts)
	default:
		return fmt.Errorf("message content must be a string or a part list, got yaml kind %d", value.Kind)
	}
}
