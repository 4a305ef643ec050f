// Package session owns the authoritative message history of an interactive
// chat: the live messages sent to the model, the ledger of turns evicted by
// compression, and the attachment table. All history mutation funnels
// through AddMessage, Compress, and ClearMessages so ordering stays
// append-only and the dirty flag stays honest.
package session

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/milanglacier/aichat/internal/input"
	"github.com/milanglacier/aichat/internal/message"
	"github.com/milanglacier/aichat/internal/model"
	"github.com/milanglacier/aichat/internal/role"
)

// TempName is the name of the throwaway session created when the user does
// not ask for a named one.
const TempName = "temp"

// compressFloor is the minimum effective threshold at which compression may
// trigger; smaller configured values would force compression on nearly
// every turn.
const compressFloor = 1000

// compressContinuityWindow is how many of the most recent compressed
// messages are re-injected after a compression event while the live history
// is still summary-only. The value 2 (one user/assistant pair) is a
// tunable heuristic, not a derived constant.
const compressContinuityWindow = 2

// Guard violations. These are ordinary errors checked by callers, not
// control flow.
var (
	// ErrNotEmpty rejects role rebinding once the session has history.
	ErrNotEmpty = errors.New("cannot perform this action in a session with messages")
	// ErrNeverSaved rejects exporting a session that has no backing path.
	ErrNeverSaved = errors.New("session has never been saved")
)

// Renderer renders Markdown for terminal display.
type Renderer interface {
	Render(text string) string
}

// Session is one conversation: persisted history plus transient runtime
// bindings. The zero value is not usable; construct via New or Load.
type Session struct {
	// persisted
	modelID            string
	temperature        *float64
	messages           []message.Message
	dataURLs           map[string]string
	compressedMessages []message.Message
	compressThreshold  *int

	// transient
	Name        string
	Path        string
	Dirty       bool
	Compressing bool
	Role        *role.Role
	Model       model.Model
}

// persistedSession is the stable on-disk schema.
type persistedSession struct {
	Model              string            `yaml:"model"`
	Temperature        *float64          `yaml:"temperature,omitempty"`
	Messages           []message.Message `yaml:"messages"`
	DataURLs           map[string]string `yaml:"data_urls"`
	CompressedMessages []message.Message `yaml:"compressed_messages"`
	CompressThreshold  *int              `yaml:"compress_threshold,omitempty"`
}

// New creates an empty session bound to a model and an optional role. The
// role's temperature, if any, is adopted at construction time only.
func New(name string, m model.Model, r *role.Role) *Session {
	s := &Session{
		modelID:  m.ID,
		dataURLs: map[string]string{},
		Name:     name,
		Role:     r,
		Model:    m,
	}
	if r != nil {
		s.temperature = r.Temperature
	}
	return s
}

// Load deserializes a session record from path. The caller is responsible
// for rebinding the runtime model afterwards via SetModel.
func Load(name, path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s at %s: %w", name, path, err)
	}
	var record persistedSession
	if err := yaml.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("invalid session %s: %w", name, err)
	}
	if record.DataURLs == nil {
		record.DataURLs = map[string]string{}
	}
	return &Session{
		modelID:            record.Model,
		temperature:        record.Temperature,
		messages:           record.Messages,
		dataURLs:           record.DataURLs,
		compressedMessages: record.CompressedMessages,
		compressThreshold:  record.CompressThreshold,
		Name:               name,
		Path:               path,
		Model:              model.New(record.Model, 0),
	}, nil
}

// ModelID returns the persisted model identifier.
func (s *Session) ModelID() string {
	return s.modelID
}

// Temperature returns the session temperature override, if any.
func (s *Session) Temperature() *float64 {
	return s.temperature
}

// SetTemperature overrides the session temperature.
func (s *Session) SetTemperature(value *float64) {
	s.temperature = value
	s.Dirty = true
}

// SetCompressThreshold pins a session-specific compression threshold.
func (s *Session) SetCompressThreshold(value int) {
	s.compressThreshold = &value
	s.Dirty = true
}

// SetModel rebinds the session to a different model.
func (s *Session) SetModel(m model.Model) {
	s.modelID = m.ID
	s.Model = m
	s.Dirty = true
}

// Messages returns the live history. The slice is shared; callers must not
// mutate it.
func (s *Session) Messages() []message.Message {
	return s.messages
}

// CompressedMessages returns the history evicted by compression.
func (s *Session) CompressedMessages() []message.Message {
	return s.compressedMessages
}

// DataURLs returns the attachment dereferencing table.
func (s *Session) DataURLs() map[string]string {
	return s.dataURLs
}

// IsEmpty reports whether the live history has no messages.
func (s *Session) IsEmpty() bool {
	return len(s.messages) == 0
}

// IsTemp reports whether this is the throwaway session.
func (s *Session) IsTemp() bool {
	return s.Name == TempName
}

// UserMessagesLen counts user turns in the live history.
func (s *Session) UserMessagesLen() int {
	count := 0
	for _, msg := range s.messages {
		if msg.Role.IsUser() {
			count++
		}
	}
	return count
}

// Tokens estimates the token cost of the live history. Recomputed on every
// call; the history mutates every turn, so caching would go stale.
func (s *Session) Tokens() int {
	return s.Model.TotalTokens(s.messages)
}

// TokensAndPercent returns the token estimate and its share of the model's
// input ceiling, rounded to two decimals. The share is exactly 0 when the
// model declares no ceiling.
func (s *Session) TokensAndPercent() (int, float64) {
	tokens := s.Tokens()
	if s.Model.MaxInputTokens <= 0 {
		return tokens, 0
	}
	percent := float64(tokens) / float64(s.Model.MaxInputTokens) * 100
	percent = float64(int(percent*100+0.5)) / 100
	return tokens, percent
}

// NeedCompress reports whether the live history exceeds the effective
// threshold: the session-specific one if pinned, else defaultThreshold.
// Thresholds below the floor never trigger compression.
func (s *Session) NeedCompress(defaultThreshold int) bool {
	threshold := defaultThreshold
	if s.compressThreshold != nil {
		threshold = *s.compressThreshold
	}
	return threshold >= compressFloor && s.Tokens() > threshold
}

// UpdateRole (re)binds a role, adopting its temperature. Only an empty
// session may change roles; a mid-stream swap would leave turns framed by
// different system prompts with no visible boundary.
func (s *Session) UpdateRole(r *role.Role) error {
	if err := s.GuardEmpty(); err != nil {
		return err
	}
	if r != nil {
		s.temperature = r.Temperature
	} else {
		s.temperature = nil
	}
	s.Role = r
	s.Dirty = true
	return nil
}

// Compress moves the whole live history into the compressed ledger and
// replaces it with a single synthetic system message carrying
// summaryPrompt. The bound role is cleared: the summary supersedes any
// role-derived framing.
func (s *Session) Compress(summaryPrompt string) {
	s.compressedMessages = append(s.compressedMessages, s.messages...)
	s.messages = []message.Message{message.NewSystem(summaryPrompt)}
	s.Role = nil
	s.Dirty = true
}

// AddMessage appends one completed exchange. On the first exchange a bound
// role supplies the framing; afterwards the input becomes a plain user
// message. The role is cleared once it has framed its exchange. Prior
// messages are never removed or reordered.
func (s *Session) AddMessage(in *input.Input, output string) {
	if len(s.messages) == 0 && s.Role != nil {
		s.messages = append(s.messages, s.Role.BuildMessages(in)...)
	} else {
		s.messages = append(s.messages, message.NewUser(in.ToContent()))
	}
	for id, url := range in.DataURLs() {
		s.dataURLs[id] = url
	}
	s.messages = append(s.messages, message.NewAssistant(output))
	s.Role = nil
	s.Dirty = true
}

// BuildMessages constructs the next outbound request without mutating any
// state. Immediately after a compression event, while the live history is
// still summary-only and enough compressed turns exist, the most recent
// compressed messages are re-injected for short-term continuity.
func (s *Session) BuildMessages(in *input.Input) []message.Message {
	messages := make([]message.Message, len(s.messages))
	copy(messages, s.messages)

	needUserMessage := true
	switch {
	case len(messages) == 0:
		if s.Role != nil {
			messages = s.Role.BuildMessages(in)
			needUserMessage = false
		}
	case len(messages) == 1 && len(s.compressedMessages) >= compressContinuityWindow:
		messages = append(messages, s.compressedMessages[len(s.compressedMessages)-compressContinuityWindow:]...)
	}
	if needUserMessage {
		messages = append(messages, message.NewUser(in.ToContent()))
	}
	return messages
}

// EchoMessages renders what the next request would contain, for preview.
func (s *Session) EchoMessages(in *input.Input) string {
	data, err := yaml.Marshal(s.BuildMessages(in))
	if err != nil {
		return "Unable to echo message"
	}
	return string(data)
}

// ClearMessages drops the live history, the compressed ledger, and the
// attachment table together; they are one unit of history state.
func (s *Session) ClearMessages() {
	s.messages = nil
	s.compressedMessages = nil
	s.dataURLs = map[string]string{}
	s.Dirty = true
}

// Save persists the session to path. A clean session is a no-op. On
// failure the dirty flag stays set so the save can be retried.
func (s *Session) Save(path string) error {
	if !s.Dirty {
		return nil
	}
	s.Path = path
	data, err := yaml.Marshal(s.persisted())
	if err != nil {
		return fmt.Errorf("failed to serialize session %s: %w", s.Name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write session %s to %s: %w", s.Name, path, err)
	}
	s.Dirty = false
	return nil
}

// GuardSave fails unless the session has a backing path.
func (s *Session) GuardSave() error {
	if s.Path == "" {
		return fmt.Errorf("session %q: %w", s.Name, ErrNeverSaved)
	}
	return nil
}

// GuardEmpty fails unless the live history is empty.
func (s *Session) GuardEmpty() error {
	if !s.IsEmpty() {
		return ErrNotEmpty
	}
	return nil
}

// sessionExport is the key-ordered shape of Export.
type sessionExport struct {
	Path           string            `yaml:"path"`
	Model          string            `yaml:"model"`
	Temperature    *float64          `yaml:"temperature,omitempty"`
	TotalTokens    int               `yaml:"total_tokens"`
	MaxInputTokens int               `yaml:"max_input_tokens,omitempty"`
	TotalMax       string            `yaml:"total/max,omitempty"`
	Messages       []message.Message `yaml:"messages"`
}

// Export returns a deterministic YAML dump of the saved session. It guards
// on the backing path: an unsaved session has no identity to report.
func (s *Session) Export() (string, error) {
	if err := s.GuardSave(); err != nil {
		return "", err
	}
	tokens, percent := s.TokensAndPercent()
	out := sessionExport{
		Path:           s.Path,
		Model:          s.modelID,
		Temperature:    s.temperature,
		TotalTokens:    tokens,
		MaxInputTokens: s.Model.MaxInputTokens,
		Messages:       s.messages,
	}
	if percent != 0 {
		out.TotalMax = fmt.Sprintf("%v%%", percent)
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("unable to show info about session %s: %w", s.Name, err)
	}
	return string(data), nil
}

// Info renders a human-oriented session summary: settings first, then the
// transcript. Unlike Export it never guards; it is a preview, not an
// export.
func (s *Session) Info(render Renderer) string {
	var lines []string
	appendItem := func(name, value string) {
		lines = append(lines, fmt.Sprintf("%-20s%s", name, value))
	}

	if s.Path != "" {
		appendItem("path", s.Path)
	}
	appendItem("model", s.Model.ID)
	if s.temperature != nil {
		appendItem("temperature", fmt.Sprintf("%v", *s.temperature))
	}
	if s.compressThreshold != nil {
		appendItem("compress_threshold", fmt.Sprintf("%d", *s.compressThreshold))
	}
	if s.Model.MaxInputTokens > 0 {
		appendItem("max_input_tokens", fmt.Sprintf("%d", s.Model.MaxInputTokens))
	}

	if !s.IsEmpty() {
		lines = append(lines, "")
		resolve := func(url string) string {
			return input.ResolveDataURL(s.dataURLs, url)
		}
		for _, msg := range s.messages {
			switch msg.Role {
			case message.RoleSystem:
				lines = append(lines, render.Render(msg.Content.RenderInput(resolve)))
			case message.RoleAssistant:
				if msg.Content.IsText() {
					lines = append(lines, render.Render(msg.Content.Text))
				}
				lines = append(lines, "")
			case message.RoleUser:
				lines = append(lines, fmt.Sprintf("%s）%s", s.Name, msg.Content.RenderInput(resolve)))
			}
		}
	}
	return strings.Join(lines, "\n")
}

func (s *Session) persisted() persistedSession {
	return persistedSession{
		Model:              s.modelID,
		Temperature:        s.temperature,
		Messages:           s.messages,
		DataURLs:           s.dataURLs,
		CompressedMessages: s.compressedMessages,
		CompressThreshold:  s.compressThreshold,
	}
}
