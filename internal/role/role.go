// Package role implements named prompt templates. A role frames exactly one
// exchange: either by prepending a system message, or, when its template
// carries the input placeholder, by splicing the user input directly into
// the template ("embedded" roles).
package role

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/milanglacier/aichat/internal/input"
	"github.com/milanglacier/aichat/internal/message"
	"github.com/milanglacier/aichat/internal/sysinfo"
)

// InputPlaceholder marks where user input is spliced into an embedded
// role's template.
const InputPlaceholder = "__INPUT__"

// Reserved role names.
const (
	NameExecute         = "__execute__"
	NameDescribeCommand = "__describe_command__"
	NameCode            = "__code__"
	NameTemp            = "%%" // unnamed role created by .prompt
)

// Role is a named prompt template, optionally parameterized via colon
// arguments and optionally carrying a session temperature.
type Role struct {
	Name        string   `yaml:"name" json:"name"`
	Prompt      string   `yaml:"prompt" json:"prompt"`
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
}

// ForExecute returns the preset used to turn natural language into a shell
// command for the detected host shell and OS.
func ForExecute() Role {
	os := sysinfo.DetectOS()
	shell, _, _ := sysinfo.DetectShell()
	combine := sysinfo.CommandCombiner(shell)
	return Role{
		Name: NameExecute,
		Prompt: fmt.Sprintf(`Provide only %[1]s commands for %[2]s without any description.
If there is a lack of details, provide most logical solution.
Ensure the output is a valid %[1]s command.
If multiple steps required try to combine them together using %[3]s.
Provide only plain text without Markdown formatting.
Do not provide markdown formatting such as %[4]s`, shell, os, combine, "```"),
	}
}

// ForDescribeCommand returns the preset used to explain a shell command.
func ForDescribeCommand() Role {
	return Role{
		Name: NameDescribeCommand,
		Prompt: `Provide a terse, single sentence description of the given shell command.
Describe each argument and option of the command.
Provide short responses in about 80 words.
APPLY MARKDOWN formatting when possible.`,
	}
}

// ForCode returns the preset used for code-only answers.
func ForCode() Role {
	return Role{
		Name: NameCode,
		Prompt: `Provide only code as output without any description.
Provide only code in plain text format without Markdown formatting.
Do not include symbols such as ` + "```" + ` or ` + "```python" + `.
If there is a lack of details, provide most logical solution.
You are not allowed to ask for more details.
For example if the prompt is "Hello world Python", you should return "print('Hello world')".`,
	}
}

// Embedded reports whether the template splices user input into itself.
// This is always derived from the current prompt text, never stored, so
// programmatic prompt edits cannot desync it.
func (r *Role) Embedded() bool {
	return strings.Contains(r.Prompt, InputPlaceholder)
}

// CompletePromptArgs rewrites the role to the fully-qualified name and
// substitutes its positional placeholders (__ARG1__, __ARG2__, ...) with
// the name's colon arguments in order. Placeholders without a matching
// argument stay untouched; surplus arguments are ignored.
func (r *Role) CompletePromptArgs(name string) {
	r.Name = name
	r.Prompt = completePromptArgs(r.Prompt, name)
}

// MatchName reports whether candidate selects this role. Parameterized
// role names match on the base segment and require equal arity, so a bare
// base name never selects a template that still expects arguments.
func (r *Role) MatchName(candidate string) bool {
	if strings.Contains(r.Name, ":") {
		roleParts := strings.Split(r.Name, ":")
		nameParts := strings.Split(candidate, ":")
		return roleParts[0] == nameParts[0] && len(roleParts) == len(nameParts)
	}
	return r.Name == candidate
}

// EchoMessages renders the exact text that BuildMessages would send, for
// user preview.
func (r *Role) EchoMessages(in *input.Input) string {
	rendered := in.Render()
	if r.Embedded() {
		return strings.ReplaceAll(r.Prompt, InputPlaceholder, rendered)
	}
	return fmt.Sprintf("%s\n\n%s", r.Prompt, rendered)
}

// BuildMessages frames one exchange. Embedded roles yield a single user
// message with the input merged into the template; plain roles yield the
// template as a system message followed by the untouched user input.
func (r *Role) BuildMessages(in *input.Input) []message.Message {
	content := in.ToContent()
	if r.Embedded() {
		content.MergePrompt(func(v string) string {
			return strings.ReplaceAll(r.Prompt, InputPlaceholder, v)
		})
		return []message.Message{message.NewUser(content)}
	}
	return []message.Message{
		message.NewSystem(r.Prompt),
		message.NewUser(content),
	}
}

// Export returns a stable YAML rendering of the role for display.
func (r *Role) Export() (string, error) {
	data, err := yaml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("unable to show info about role %s: %w", r.Name, err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func completePromptArgs(prompt, name string) string {
	prompt = strings.TrimSpace(prompt)
	args := strings.Split(name, ":")
	for i, arg := range args[1:] {
		prompt = strings.ReplaceAll(prompt, fmt.Sprintf("__ARG%d__", i+1), arg)
	}
	return prompt
}
