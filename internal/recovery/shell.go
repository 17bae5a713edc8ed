// Package recovery implements the recovery session engine.
// This module launches the interactive chroot shell. The terminal
// emulator hosting it is a desktop-environment concern: callers can pin
// one explicitly, otherwise a per-DE priority list picks the first
// emulator present on the live system.
package recovery

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DesktopEnvironment identifies the live session's desktop family, which
// drives the terminal emulator priority order.
type DesktopEnvironment int

const (
	DesktopUnknown DesktopEnvironment = iota
	DesktopXFCE
	DesktopKDE
	DesktopGNOME
)

// DetectDesktop classifies the running desktop from the standard
// environment variables.
func DetectDesktop() DesktopEnvironment {
	desktop := strings.ToLower(os.Getenv("XDG_CURRENT_DESKTOP") + ":" + os.Getenv("DESKTOP_SESSION"))
	switch {
	case strings.Contains(desktop, "xfce"):
		return DesktopXFCE
	case strings.Contains(desktop, "kde") || strings.Contains(desktop, "plasma"):
		return DesktopKDE
	case strings.Contains(desktop, "gnome"):
		return DesktopGNOME
	default:
		return DesktopUnknown
	}
}

// terminalCommand builds the invocation for a known terminal emulator
// hosting the given script.
func terminalCommand(term, script string) []string {
	switch term {
	case "kitty":
		return []string{"kitty", "--title", "Chroot Recovery", "bash", script}
	case "xfce4-terminal":
		return []string{"xfce4-terminal", "--title=Chroot Recovery", "-e", "bash " + script}
	case "konsole":
		return []string{"konsole", "--title", "Chroot Recovery", "-e", "bash " + script}
	case "gnome-terminal":
		return []string{"gnome-terminal", "--wait", "--", "bash", script}
	case "ptyxis":
		return []string{"ptyxis", "--", "bash", script}
	case "alacritty":
		return []string{"alacritty", "-e", "bash", script}
	case "xterm":
		return []string{"xterm", "-title", "Chroot Recovery", "-e", "bash", script}
	default:
		return nil
	}
}

// terminalPriority returns the emulator preference order for a desktop.
func terminalPriority(de DesktopEnvironment) []string {
	switch de {
	case DesktopXFCE:
		return []string{"kitty", "xfce4-terminal", "xterm", "alacritty", "gnome-terminal"}
	case DesktopKDE:
		return []string{"konsole", "alacritty", "xterm", "kitty"}
	case DesktopGNOME:
		return []string{"gnome-terminal", "ptyxis", "alacritty", "xterm"}
	default:
		return []string{"kitty", "xfce4-terminal", "konsole", "gnome-terminal", "ptyxis", "alacritty", "xterm"}
	}
}

// ChrootShell returns the shell path (relative to the chroot) the
// recovered system offers, or "" when none of the candidates exists and
// is executable.
func ChrootShell(stagingRoot string) string {
	for _, candidate := range shellCandidates {
		info, err := os.Stat(filepath.Join(stagingRoot, candidate))
		if err == nil && info.Mode()&0o111 != 0 {
			return "/" + candidate
		}
	}
	return ""
}

// ShellLauncher starts the interactive chroot shell in a terminal
// emulator.
type ShellLauncher struct {
	// Terminal pins a specific emulator; empty means pick by desktop.
	Terminal string
	// ScriptDir is where the launch script is written; defaults to the
	// system temp directory.
	ScriptDir string

	lookPath func(string) (string, error) // overridable for tests
}

// NewShellLauncher returns a launcher using PATH lookup and the system
// temp directory.
func NewShellLauncher(terminal string) *ShellLauncher {
	return &ShellLauncher{Terminal: terminal, ScriptDir: os.TempDir(), lookPath: exec.LookPath}
}

// Launch writes the chroot entry script and starts a terminal emulator
// running it. The returned command has been started but not waited on;
// the session supervises its exit.
func (l *ShellLauncher) Launch(stagingRoot string) (*exec.Cmd, error) {
	shell := ChrootShell(stagingRoot)
	if shell == "" {
		return nil, fmt.Errorf("no usable shell inside %s", stagingRoot)
	}

	script, err := l.writeScript(stagingRoot, shell)
	if err != nil {
		return nil, err
	}

	for _, term := range l.candidates() {
		if _, err := l.lookPath(term); err != nil {
			continue
		}
		argv := terminalCommand(term, script)
		if argv == nil {
			continue
		}
		cmd := exec.Command(argv[0], argv[1:]...)
		cmd.Env = append(os.Environ(), "NO_AT_BRIDGE=1")
		if err := cmd.Start(); err != nil {
			continue
		}
		return cmd, nil
	}

	return nil, fmt.Errorf("no terminal emulator found; install one of: %s", strings.Join(l.candidates(), ", "))
}

// candidates returns the emulator order to try, honoring a pinned
// terminal first.
func (l *ShellLauncher) candidates() []string {
	base := terminalPriority(DetectDesktop())
	if l.Terminal == "" {
		return base
	}
	out := []string{l.Terminal}
	for _, t := range base {
		if t != l.Terminal {
			out = append(out, t)
		}
	}
	return out
}

// writeScript generates the banner-and-chroot entry script executed
// inside the terminal emulator.
func (l *ShellLauncher) writeScript(stagingRoot, shell string) (string, error) {
	dir := l.ScriptDir
	if dir == "" {
		dir = os.TempDir()
	}
	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	fmt.Fprintf(&b, "echo '%s'\n", strings.Repeat("=", 40))
	b.WriteString("echo 'Chroot Recovery Environment'\n")
	fmt.Fprintf(&b, "echo 'Root: %s'\n", stagingRoot)
	b.WriteString("echo \"Type 'exit' to leave\"\n")
	fmt.Fprintf(&b, "echo '%s'\n", strings.Repeat("=", 40))
	fmt.Fprintf(&b, "chroot %s %s\n", stagingRoot, shell)

	script := filepath.Join(dir, "rescue-chroot.sh")
	if err := os.WriteFile(script, []byte(b.String()), 0o755); err != nil {
		return "", fmt.Errorf("write chroot script: %w", err)
	}
	return script, nil
}
