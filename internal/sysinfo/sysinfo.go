// Package sysinfo detects the host operating system and shell so role
// presets can tailor generated commands to the environment they will run in.
package sysinfo

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DetectOS returns a human-readable OS name. On Linux the distribution id
// from /etc/os-release is appended when available, since generated shell
// commands often differ between distributions.
func DetectOS() string {
	goos := runtime.GOOS
	if goos != "linux" {
		return goos
	}
	data, err := os.ReadFile("/etc/os-release")
	if err != nil {
		return goos
	}
	for _, line := range strings.Split(string(data), "\n") {
		if id, ok := strings.CutPrefix(line, "ID="); ok {
			id = strings.Trim(strings.TrimSpace(id), `"`)
			if id != "" {
				return goos + " (" + id + ")"
			}
		}
	}
	return goos
}

// DetectShell returns the name, path, and command-execution flag of the
// user's shell, falling back to a sensible per-OS default when the
// environment does not declare one.
func DetectShell() (name, path, execFlag string) {
	if runtime.GOOS == "windows" {
		if comspec := os.Getenv("COMSPEC"); comspec != "" {
			name = strings.ToLower(strings.TrimSuffix(filepath.Base(comspec), ".exe"))
			flag := "/C"
			if name == "powershell" || name == "pwsh" {
				flag = "-Command"
			}
			return name, comspec, flag
		}
		return "powershell", "powershell.exe", "-Command"
	}
	path = os.Getenv("SHELL")
	if path == "" {
		path = "/bin/sh"
	}
	name = filepath.Base(path)
	return name, path, "-c"
}

// CommandCombiner returns the operator used to chain multiple commands in
// the given shell.
func CommandCombiner(shell string) string {
	switch shell {
	case "nushell", "powershell", "pwsh":
		return ";"
	default:
		return "&&"
	}
}
