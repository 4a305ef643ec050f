package repl

import (
	"fmt"
	"io"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/lipgloss"

	"github.com/milanglacier/aichat/internal/logging"
)

// replCommands drives both dispatch validation and the .help output.
var replCommands = []struct {
	name string
	desc string
}{
	{".info", "Print the information"},
	{".set", "Modify the configuration temporarily"},
	{".role", "Select a role"},
	{".clear role", "Clear the currently selected role"},
	{".prompt", "Add prompt, aka create a temporary role"},
	{".file", "Attach files to the message and then submit it"},
	{".history", "Print the input history"},
	{".clear history", "Clear the input history"},
	{".clear messages", "Clear the session messages"},
	{".clear screen", "Clear the screen"},
	{".multiline", "Enter multiline editor mode"},
	{".copy", "Copy last reply message"},
	{".help", "Print this help message"},
	{".exit", "Exit the REPL"},
}

var (
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// Repl drives the interactive loop: it reads lines, dispatches
// dot-commands, and forwards everything else to the handler as a submit.
type Repl struct {
	editor  LineEditor
	handler *Handler
	abort   *AbortSignal
	out     io.Writer
}

// New assembles a REPL around an editor and a handler sharing one abort
// signal.
func New(editor LineEditor, handler *Handler, abort *AbortSignal, out io.Writer) *Repl {
	return &Repl{editor: editor, handler: handler, abort: abort, out: out}
}

// Run executes the loop until .exit, a second consecutive Ctrl-C, or
// Ctrl-D. Per-line failures are printed and the loop continues.
func (r *Repl) Run(version string) error {
	fmt.Fprintf(r.out, "Welcome to aichat %s\n", version)
	fmt.Fprintln(r.out, `Type ".help" for more information.`)

	alreadyCtrlC := false
	for {
		if r.abort.AbortedCtrlD() {
			break
		}
		// A Ctrl-C that aborted an in-flight exchange never reaches the
		// dispatch switch below; pick it up here so the next Ctrl-C at
		// the prompt exits.
		if r.abort.AbortedCtrlC() && !alreadyCtrlC {
			alreadyCtrlC = true
		}

		sig, err := r.editor.ReadLine(r.prompt())
		if err != nil {
			fmt.Fprintln(r.out, errorStyle.Render(err.Error()))
			continue
		}

		switch sig.Kind {
		case SignalSuccess:
			alreadyCtrlC = false
			r.abort.Reset()
			quit, err := r.handleLine(sig.Line)
			if err != nil {
				logging.ReplError("line failed: %v", err)
				fmt.Fprintln(r.out, errorStyle.Render(err.Error()))
			}
			if quit {
				return r.handler.Close()
			}
		case SignalCtrlC:
			r.abort.SetCtrlC()
			if !alreadyCtrlC {
				alreadyCtrlC = true
				fmt.Fprintln(r.out, warningStyle.Render("(To exit, press Ctrl+C again or Ctrl+D or type .exit)"))
			} else {
				return r.handler.Close()
			}
		case SignalCtrlD:
			r.abort.SetCtrlD()
			return r.handler.Close()
		}
	}
	return r.handler.Close()
}

// prompt renders the input prompt, showing the active session or role.
func (r *Repl) prompt() string {
	name := ""
	if sess := r.handler.Session(); sess != nil {
		name = sess.Name
	} else if role := r.handler.Role(); role != nil {
		name = role.Name
	}
	if name != "" {
		return promptStyle.Render(name+"〉") + " "
	}
	return promptStyle.Render("〉") + " "
}

// handleLine dispatches one successful line. The returned bool requests
// loop termination.
func (r *Repl) handleLine(line string) (bool, error) {
	if !strings.HasPrefix(line, ".") {
		if strings.TrimSpace(line) == "" {
			return false, nil
		}
		return false, r.handler.Submit(line)
	}

	cmd, args, _ := strings.Cut(line, " ")
	args = strings.TrimSpace(args)

	switch cmd {
	case ".exit":
		return true, nil
	case ".help":
		r.printHelp()
	case ".info":
		info, err := r.handler.Info()
		if err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, info)
	case ".set":
		return false, r.handler.Set(args)
	case ".role":
		if args == "" {
			fmt.Fprintln(r.out, warningStyle.Render("Usage: .role <name>"))
			return false, nil
		}
		return false, r.handler.SetRole(args)
	case ".clear":
		switch args {
		case "screen":
			fmt.Fprint(r.out, "\x1b[2J\x1b[H")
		case "history":
			r.editor.ClearHistory()
		case "messages":
			return false, r.handler.ClearMessages()
		case "role":
			return false, r.handler.ClearRole()
		default:
			r.printUnknownCommand()
		}
	case ".history":
		for _, entry := range r.editor.History() {
			fmt.Fprintln(r.out, entry)
		}
	case ".multiline":
		block, ok, err := r.collectBlock(args)
		if err != nil || !ok {
			return false, err
		}
		text := stripBraces(block)
		if text == "" {
			fmt.Fprintln(r.out, warningStyle.Render("Usage: .multiline { <your multiline content> }"))
			return false, nil
		}
		return false, r.handler.Submit(text)
	case ".prompt":
		block, ok, err := r.collectBlock(args)
		if err != nil || !ok {
			return false, err
		}
		text := stripBraces(block)
		if text == "" {
			fmt.Fprintln(r.out, warningStyle.Render("Usage: .prompt { <your content> }"))
			return false, nil
		}
		return false, r.handler.Prompt(text)
	case ".file":
		if args == "" {
			fmt.Fprintln(r.out, warningStyle.Render("Usage: .file <file>... [-- <text>]"))
			return false, nil
		}
		return false, r.handler.SubmitFiles(args)
	case ".copy":
		reply := r.handler.LastReply()
		if reply == "" {
			fmt.Fprintln(r.out, "No reply messages that can be copied")
			return false, nil
		}
		if err := clipboard.WriteAll(reply); err != nil {
			return false, fmt.Errorf("failed to copy reply: %w", err)
		}
		fmt.Fprintln(r.out, "Copied")
	default:
		r.printUnknownCommand()
	}
	return false, nil
}

func (r *Repl) printHelp() {
	for _, cmd := range replCommands {
		fmt.Fprintf(r.out, "%-18s %s\n", cmd.name, cmd.desc)
	}
	fmt.Fprintln(r.out, "\nPress Ctrl+C to abort the current exchange, Ctrl+D to exit the REPL")
}

func (r *Repl) printUnknownCommand() {
	fmt.Fprintln(r.out, warningStyle.Render(`Unknown command. Type ".help" for more information.`))
}

// collectBlock keeps reading continuation lines until the brace block
// opened in args closes, joining them with newlines. A block cancelled
// with Ctrl-C or cut short by end of input reports ok=false.
func (r *Repl) collectBlock(args string) (string, bool, error) {
	depth := braceDepth(args)
	for depth > 0 {
		sig, err := r.editor.ReadLine(promptStyle.Render("… "))
		if err != nil {
			return "", false, err
		}
		if sig.Kind != SignalSuccess {
			return "", false, nil
		}
		args += "\n" + sig.Line
		depth += braceDepth(sig.Line)
	}
	return args, true, nil
}

func braceDepth(text string) int {
	return strings.Count(text, "{") - strings.Count(text, "}")
}

// stripBraces removes one optional pair of wrapping braces used by
// .multiline and .prompt.
func stripBraces(text string) string {
	if strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}") && len(text) >= 2 {
		text = text[1 : len(text)-1]
	}
	return strings.TrimSpace(text)
}
