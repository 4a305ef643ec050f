package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/milanglacier/aichat/internal/client"
	"github.com/milanglacier/aichat/internal/config"
	"github.com/milanglacier/aichat/internal/input"
	"github.com/milanglacier/aichat/internal/logging"
	"github.com/milanglacier/aichat/internal/message"
	"github.com/milanglacier/aichat/internal/model"
	"github.com/milanglacier/aichat/internal/role"
	"github.com/milanglacier/aichat/internal/session"
)

// abortPollInterval is how often an in-flight exchange checks the shared
// abort signal. Cancellation is cooperative; this bounds its latency.
const abortPollInterval = 50 * time.Millisecond

// Prompts used by history compression.
const (
	summarizeInstruction = "Summarize the discussion briefly in 200 words or less to use as a prompt for future context."
	summaryPromptPrefix  = "This is a summary of the chat history as a recap: "
)

// Handler orchestrates REPL actions onto session, role, and config state.
// All of that state is owned by the single-threaded dispatch loop; only the
// abort signal crosses into the exchange's execution context.
type Handler struct {
	client client.Client
	cfg    *config.Config
	mdl    model.Model
	abort  *AbortSignal
	out    io.Writer
	render session.Renderer

	role      *role.Role
	sess      *session.Session
	lastReply string
}

// NewHandler wires a handler. sess and boundRole may be nil for a bare
// conversation.
func NewHandler(cl client.Client, cfg *config.Config, mdl model.Model, sess *session.Session, boundRole *role.Role, abort *AbortSignal, out io.Writer, renderer session.Renderer) *Handler {
	return &Handler{
		client: cl,
		cfg:    cfg,
		mdl:    mdl,
		abort:  abort,
		out:    out,
		render: renderer,
		role:   boundRole,
		sess:   sess,
	}
}

// Session returns the active session, if any.
func (h *Handler) Session() *session.Session {
	return h.sess
}

// Role returns the bound role, if any.
func (h *Handler) Role() *role.Role {
	if h.sess != nil {
		return h.sess.Role
	}
	return h.role
}

// LastReply returns the last completed assistant reply.
func (h *Handler) LastReply() string {
	return h.lastReply
}

// Submit performs one exchange with the user input. A cancelled exchange
// is not an error: the turn ends with no history mutation.
func (h *Handler) Submit(text string) error {
	return h.SubmitInput(input.NewText(text))
}

// SubmitFiles performs one exchange with file or URL attachments. args has
// the form "<file-or-url>... -- <text>"; the text part may be empty.
func (h *Handler) SubmitFiles(args string) error {
	spec, text, _ := strings.Cut(args, " -- ")
	files := strings.Fields(spec)
	if len(files) == 0 {
		return fmt.Errorf("usage: .file <file>... [-- <text>]")
	}
	in, err := input.New(strings.TrimSpace(text), files)
	if err != nil {
		return err
	}
	return h.SubmitInput(in)
}

// SubmitInput is Submit over an already-constructed input.
func (h *Handler) SubmitInput(in *input.Input) error {
	messages := h.buildMessages(in)
	opts := client.Options{Model: h.mdl.ID, Temperature: h.temperature()}

	reply, err := h.exchange(messages, opts, func(delta string) {
		fmt.Fprint(h.out, delta)
	})
	fmt.Fprintln(h.out)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logging.ReplInfo("submit cancelled, history untouched")
			return nil
		}
		return err
	}

	h.lastReply = reply
	if h.sess != nil {
		h.sess.AddMessage(in, reply)
		logging.SessionDebug("added exchange to session %s, %d live messages", h.sess.Name, len(h.sess.Messages()))
		if h.sess.NeedCompress(h.cfg.CompressThreshold) {
			h.compressSession(opts)
		}
	}
	return nil
}

// exchange runs the client call under the shared abort signal, translating
// an abort into context cancellation.
func (h *Handler) exchange(messages []message.Message, opts client.Options, onDelta func(string)) (string, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		ticker := time.NewTicker(abortPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if h.abort.Aborted() {
					cancel()
					return
				}
			}
		}
	}()

	reply, err := h.client.SendMessageStreaming(ctx, messages, opts, onDelta)
	cancel()
	<-watcherDone
	return reply, err
}

// buildMessages reproduces the next outbound request for the current
// state: session-aware when a session is active, role-framed otherwise.
func (h *Handler) buildMessages(in *input.Input) []message.Message {
	if h.sess != nil {
		return h.sess.BuildMessages(in)
	}
	if h.role != nil {
		return h.role.BuildMessages(in)
	}
	return []message.Message{message.NewUser(in.ToContent())}
}

// temperature resolves the effective request temperature: session override,
// then role, then config.
func (h *Handler) temperature() *float64 {
	if h.sess != nil {
		if t := h.sess.Temperature(); t != nil {
			return t
		}
	} else if h.role != nil && h.role.Temperature != nil {
		return h.role.Temperature
	}
	return h.cfg.Temperature
}

// compressSession asks the model for a summary of the live history, then
// folds the history into the compressed ledger. On failure the session is
// left as it was; the next turn will retry.
func (h *Handler) compressSession(opts client.Options) {
	h.sess.Compressing = true
	defer func() { h.sess.Compressing = false }()

	fmt.Fprintln(h.out, "Compressing session history...")
	logging.SessionInfo("compressing session %s at %d tokens", h.sess.Name, h.sess.Tokens())

	request := make([]message.Message, 0, len(h.sess.Messages())+1)
	request = append(request, h.sess.Messages()...)
	request = append(request, message.NewUser(message.NewText(summarizeInstruction)))

	summary, err := h.exchange(request, opts, nil)
	if err != nil {
		fmt.Fprintf(h.out, "Failed to compress session: %v\n", err)
		logging.SessionError("compression failed: %v", err)
		return
	}
	h.sess.Compress(summaryPromptPrefix + summary)
	logging.SessionInfo("session %s compressed to %d tokens", h.sess.Name, h.sess.Tokens())
}

// DescribeCommand explains a generated shell command using the describe
// preset. The exchange is framed by the preset alone: it neither consults
// nor mutates the bound session or role, so it works mid-session where a
// role rebind would be refused.
func (h *Handler) DescribeCommand(command string) error {
	preset := role.ForDescribeCommand()
	messages := preset.BuildMessages(input.NewText(command))
	opts := client.Options{Model: h.mdl.ID, Temperature: h.temperature()}

	_, err := h.exchange(messages, opts, func(delta string) {
		fmt.Fprint(h.out, delta)
	})
	fmt.Fprintln(h.out)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// SetRole binds a role by name from the loaded roles. With an active
// session the rebind is guarded by the empty-history precondition.
func (h *Handler) SetRole(name string) error {
	r, err := h.cfg.FindRole(name)
	if err != nil {
		return err
	}
	if h.sess != nil {
		if err := h.sess.UpdateRole(r); err != nil {
			return err
		}
	} else {
		h.role = r
	}
	out, err := r.Export()
	if err != nil {
		return err
	}
	fmt.Fprintln(h.out, out)
	return nil
}

// ClearRole unbinds the current role.
func (h *Handler) ClearRole() error {
	if h.sess != nil {
		return h.sess.UpdateRole(nil)
	}
	h.role = nil
	return nil
}

// Prompt binds an unnamed one-off role with the given template.
func (h *Handler) Prompt(text string) error {
	r := &role.Role{Name: role.NameTemp, Prompt: text}
	if h.sess != nil {
		return h.sess.UpdateRole(r)
	}
	h.role = r
	return nil
}

// ClearMessages drops the active session's history state.
func (h *Handler) ClearMessages() error {
	if h.sess == nil {
		return fmt.Errorf("no active session")
	}
	h.sess.ClearMessages()
	return nil
}

// Info renders the current state: the active session, else the bound role,
// else the effective configuration.
func (h *Handler) Info() (string, error) {
	if h.sess != nil {
		return h.sess.Info(h.render), nil
	}
	if h.role != nil {
		return h.role.Export()
	}
	info := struct {
		Model             string   `yaml:"model"`
		Temperature       *float64 `yaml:"temperature,omitempty"`
		Save              bool     `yaml:"save"`
		Highlight         bool     `yaml:"highlight"`
		DryRun            bool     `yaml:"dry_run"`
		CompressThreshold int      `yaml:"compress_threshold"`
	}{h.mdl.ID, h.cfg.Temperature, h.cfg.Save, h.cfg.Highlight, h.cfg.DryRun, h.cfg.CompressThreshold}
	data, err := yaml.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("unable to show config info: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

// Set applies a temporary configuration update of the form "<key> <value>".
func (h *Handler) Set(args string) error {
	key, value, found := strings.Cut(strings.TrimSpace(args), " ")
	if !found {
		return fmt.Errorf("usage: .set <key> <value>")
	}
	value = strings.TrimSpace(value)

	switch key {
	case "temperature":
		if value == "null" {
			h.setTemperature(nil)
			return nil
		}
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid temperature %q: %w", value, err)
		}
		h.setTemperature(&parsed)
	case "compress_threshold":
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid compress_threshold %q: %w", value, err)
		}
		if h.sess != nil {
			h.sess.SetCompressThreshold(parsed)
		} else {
			h.cfg.CompressThreshold = parsed
		}
	case "save", "highlight", "dry_run":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		switch key {
		case "save":
			h.cfg.Save = parsed
		case "highlight":
			h.cfg.Highlight = parsed
		case "dry_run":
			h.cfg.DryRun = parsed
		}
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

func (h *Handler) setTemperature(value *float64) {
	if h.sess != nil {
		h.sess.SetTemperature(value)
		return
	}
	h.cfg.Temperature = value
}

// Close persists the active session when saving is enabled.
func (h *Handler) Close() error {
	if h.sess == nil || !h.cfg.Save {
		return nil
	}
	path, err := config.SessionFile(h.sess.Name)
	if err != nil {
		return err
	}
	return h.sess.Save(path)
}
