package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/milanglacier/aichat/internal/client"
	"github.com/milanglacier/aichat/internal/config"
	"github.com/milanglacier/aichat/internal/input"
	"github.com/milanglacier/aichat/internal/logging"
	"github.com/milanglacier/aichat/internal/model"
	"github.com/milanglacier/aichat/internal/render"
	"github.com/milanglacier/aichat/internal/repl"
	"github.com/milanglacier/aichat/internal/role"
	"github.com/milanglacier/aichat/internal/session"
	"github.com/milanglacier/aichat/internal/sysinfo"
)

var version = "dev"

var (
	// Global flags
	verbose     bool
	apiKey      string
	apiBase     string
	modelID     string
	roleName    string
	sessionName string
	files       []string
	executeRole bool
	codeRole    bool
	noHighlight bool
	dryRun      bool
	saveSession bool

	listRoles    bool
	listSessions bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "aichat [prompt...]",
	Short: "aichat - a CLI chat client for OpenAI-compatible providers",
	Long: `aichat talks to OpenAI-compatible chat APIs from the terminal.

Pass a prompt as arguments for a one-shot answer, or run without
arguments to start an interactive REPL with roles, sessions, and
history compression.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.Flags().StringVar(&apiKey, "api-key", "", "API key (or set OPENAI_API_KEY env)")
	rootCmd.Flags().StringVar(&apiBase, "api-base", "", "API base URL for OpenAI-compatible providers")
	rootCmd.Flags().StringVarP(&modelID, "model", "m", "", "Chat model to use")
	rootCmd.Flags().StringVarP(&roleName, "role", "r", "", "Select a role by name")
	rootCmd.Flags().StringVarP(&sessionName, "session", "s", "", "Start or resume a named session")
	rootCmd.Flags().StringSliceVarP(&files, "file", "f", nil, "Attach files or URLs to the prompt")
	rootCmd.Flags().BoolVarP(&executeRole, "execute", "e", false, "Generate and run a shell command from the prompt")
	rootCmd.Flags().BoolVarP(&codeRole, "code", "c", false, "Generate code only")
	rootCmd.Flags().BoolVarP(&noHighlight, "no-highlight", "H", false, "Disable Markdown rendering")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Echo the request instead of calling the API")
	rootCmd.Flags().BoolVar(&saveSession, "save-session", false, "Save the session on exit")
	rootCmd.Flags().BoolVar(&listRoles, "list-roles", false, "List role names and exit")
	rootCmd.Flags().BoolVar(&listSessions, "list-sessions", false, "List saved session names and exit")

	// Bare --session opens the throwaway "temp" session.
	rootCmd.Flags().Lookup("session").NoOptDefVal = session.TempName

	rootCmd.MarkFlagsMutuallyExclusive("execute", "code", "role")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		logging.Sync()
		os.Exit(1)
	}
	logging.Sync()
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyFlagOverrides(cmd, &cfg)

	if dir, err := config.Dir(); err == nil {
		if err := logging.Initialize(dir, cfg.Debug || verbose); err != nil {
			fmt.Fprintf(os.Stderr, "logging disabled: %v\n", err)
		}
	}

	if listRoles {
		for _, r := range cfg.Roles {
			fmt.Println(r.Name)
		}
		return nil
	}
	if listSessions {
		names, err := config.ListSessions()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	}

	mdl := model.New(cfg.Model, model.InferMaxInputTokens(cfg.Model))

	var cl client.Client
	if cfg.DryRun {
		cl = client.DryRunClient{}
	} else {
		cl = client.NewOpenAIClient(client.OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.APIBase})
	}

	boundRole, err := resolveRole(&cfg)
	if err != nil {
		return err
	}

	sess, err := resolveSession(cmd, &cfg, mdl, boundRole)
	if err != nil {
		return err
	}

	renderer := render.New(cfg.Highlight, terminalWidth())
	abort := repl.NewAbortSignal()
	handler := repl.NewHandler(cl, &cfg, mdl, sess, boundRole, abort, os.Stdout, renderer)

	if len(args) > 0 || len(files) > 0 {
		return runOneShot(handler, strings.Join(args, " "))
	}
	return runRepl(&cfg, handler, abort)
}

// applyFlagOverrides layers explicit flags over the loaded configuration.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if modelID != "" {
		cfg.Model = modelID
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	if apiBase != "" {
		cfg.APIBase = apiBase
	}
	if noHighlight {
		cfg.Highlight = false
	}
	if cmd.Flags().Changed("dry-run") {
		cfg.DryRun = dryRun
	}
	if cmd.Flags().Changed("save-session") {
		cfg.Save = saveSession
	}
}

// resolveRole picks the bound role from the preset flags or the roles file.
func resolveRole(cfg *config.Config) (*role.Role, error) {
	switch {
	case executeRole:
		r := role.ForExecute()
		return &r, nil
	case codeRole:
		r := role.ForCode()
		return &r, nil
	case roleName != "":
		return cfg.FindRole(roleName)
	}
	return nil, nil
}

// resolveSession resumes a saved session or starts a fresh one. Asking for
// a session implies saving it unless --save-session was given explicitly.
func resolveSession(cmd *cobra.Command, cfg *config.Config, mdl model.Model, boundRole *role.Role) (*session.Session, error) {
	if sessionName == "" {
		return nil, nil
	}
	if !cmd.Flags().Changed("save-session") && sessionName != session.TempName {
		cfg.Save = true
	}

	path, err := config.SessionFile(sessionName)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		return session.New(sessionName, mdl, boundRole), nil
	}

	sess, err := session.Load(sessionName, path)
	if err != nil {
		return nil, err
	}
	// The saved record pins the model unless the user overrides it.
	if modelID != "" && modelID != sess.ModelID() {
		sess.SetModel(mdl)
	} else {
		sess.SetModel(model.New(sess.ModelID(), model.InferMaxInputTokens(sess.ModelID())))
	}
	if boundRole != nil {
		if err := sess.UpdateRole(boundRole); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

// runOneShot performs a single exchange and exits. With --execute the
// generated command goes through a confirm step before running.
func runOneShot(handler *repl.Handler, text string) error {
	var err error
	if len(files) > 0 {
		var in *input.Input
		in, err = input.New(text, files)
		if err != nil {
			return err
		}
		err = handler.SubmitInput(in)
	} else {
		err = handler.Submit(text)
	}
	if err != nil {
		return err
	}
	if executeRole {
		return confirmCommand(handler)
	}
	return handler.Close()
}

// confirmCommand asks what to do with a generated shell command:
// execute it, describe it, or abort.
func confirmCommand(handler *repl.Handler) error {
	command := strings.TrimSpace(handler.LastReply())
	if command == "" {
		return nil
	}
	_, shellPath, execFlag := sysinfo.DetectShell()

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("[e]xecute, [d]escribe, [a]bort: ")
		answer, err := reader.ReadString('\n')
		if err != nil {
			return nil
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "e", "execute":
			run := exec.Command(shellPath, execFlag, command)
			run.Stdin = os.Stdin
			run.Stdout = os.Stdout
			run.Stderr = os.Stderr
			return run.Run()
		case "d", "describe":
			if err := handler.DescribeCommand(command); err != nil {
				return err
			}
		case "a", "abort", "":
			return nil
		}
	}
}

// runRepl starts the interactive loop, reloading roles when the roles file
// changes on disk.
func runRepl(cfg *config.Config, handler *repl.Handler, abort *repl.AbortSignal) error {
	editor := repl.NewTermEditor(os.Stdin, os.Stdout, abort)
	defer editor.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if rolesFile, err := config.RolesFile(); err == nil {
		events := config.WatchFiles(ctx, rolesFile)
		go func() {
			for range events {
				if err := cfg.ReloadRoles(); err != nil {
					logging.ConfigWarn("roles reload failed: %v", err)
				} else {
					logging.ConfigDebug("roles reloaded from %s", rolesFile)
				}
			}
		}()
	}

	return repl.New(editor, handler, abort, os.Stdout).Run(version)
}

// terminalWidth reports the stdout width, or 0 when stdout is not a
// terminal.
func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	width, _, err := term.GetSize(fd)
	if err != nil {
		return 0
	}
	return width
}
