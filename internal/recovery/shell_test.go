package recovery

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestTerminalPriorityPerDesktop(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		first string
	}{
		{"xfce", "XFCE", "kitty"},
		{"kde", "KDE", "konsole"},
		{"plasma session", "plasma", "konsole"},
		{"gnome", "GNOME", "gnome-terminal"},
		{"unknown", "sway", "kitty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("XDG_CURRENT_DESKTOP", tt.env)
			t.Setenv("DESKTOP_SESSION", "")
			order := terminalPriority(DetectDesktop())
			if len(order) == 0 || order[0] != tt.first {
				t.Errorf("priority = %v, want %q first", order, tt.first)
			}
			for _, term := range order {
				if terminalCommand(term, "/tmp/x.sh") == nil {
					t.Errorf("priority lists %q but no invocation is known for it", term)
				}
			}
		})
	}
}

func TestCandidatesHonorPinnedTerminal(t *testing.T) {
	t.Setenv("XDG_CURRENT_DESKTOP", "KDE")
	t.Setenv("DESKTOP_SESSION", "")

	l := &ShellLauncher{Terminal: "alacritty"}
	got := l.candidates()
	want := []string{"alacritty", "konsole", "xterm", "kitty"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("candidates = %v, want %v", got, want)
	}

	// No pin: the desktop order stands.
	l = &ShellLauncher{}
	if got := l.candidates(); !reflect.DeepEqual(got, terminalPriority(DesktopKDE)) {
		t.Errorf("unpinned candidates = %v, want the KDE order", got)
	}
}

func TestLaunchTriesCandidatesInOrder(t *testing.T) {
	t.Setenv("XDG_CURRENT_DESKTOP", "GNOME")
	t.Setenv("DESKTOP_SESSION", "")
	root := makeLinuxTree(t)

	var lookups []string
	l := &ShellLauncher{
		Terminal:  "kitty",
		ScriptDir: t.TempDir(),
		lookPath: func(name string) (string, error) {
			lookups = append(lookups, name)
			return "", fmt.Errorf("%s: not found", name)
		},
	}

	_, err := l.Launch(root)
	if err == nil {
		t.Fatalf("expected failure with no emulator installed")
	}
	if !strings.Contains(err.Error(), "no terminal emulator") {
		t.Errorf("error = %v, want a no-emulator message", err)
	}

	want := []string{"kitty", "gnome-terminal", "ptyxis", "alacritty", "xterm"}
	if !reflect.DeepEqual(lookups, want) {
		t.Errorf("lookup order = %v, want %v", lookups, want)
	}
}

func TestLaunchRequiresUsableShell(t *testing.T) {
	l := &ShellLauncher{
		ScriptDir: t.TempDir(),
		lookPath: func(name string) (string, error) {
			t.Errorf("emulator lookup before shell validation: %s", name)
			return "", fmt.Errorf("unreachable")
		},
	}
	if _, err := l.Launch(t.TempDir()); err == nil {
		t.Fatalf("expected failure for a tree without a shell")
	}
}

func TestChrootShellPrefersBash(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"bin", "usr/bin"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if got := ChrootShell(root); got != "" {
		t.Fatalf("empty tree: ChrootShell = %q, want none", got)
	}

	// A non-executable file does not count.
	if err := os.WriteFile(filepath.Join(root, "bin/sh"), []byte("#!"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := ChrootShell(root); got != "" {
		t.Fatalf("non-executable sh accepted: %q", got)
	}

	if err := os.WriteFile(filepath.Join(root, "usr/bin/sh"), []byte("#!"), 0o755); err != nil {
		t.Fatal(err)
	}
	if got := ChrootShell(root); got != "/usr/bin/sh" {
		t.Errorf("ChrootShell = %q, want /usr/bin/sh", got)
	}

	// bash outranks sh.
	if err := os.WriteFile(filepath.Join(root, "usr/bin/bash"), []byte("#!"), 0o755); err != nil {
		t.Fatal(err)
	}
	if got := ChrootShell(root); got != "/usr/bin/bash" {
		t.Errorf("ChrootShell = %q, want /usr/bin/bash", got)
	}
}

func TestWriteScriptContent(t *testing.T) {
	dir := t.TempDir()
	l := &ShellLauncher{ScriptDir: dir}

	script, err := l.writeScript("/run/rescue/abc123", "/bin/bash")
	if err != nil {
		t.Fatalf("writeScript: %v", err)
	}
	if filepath.Dir(script) != dir {
		t.Errorf("script written to %s, want %s", filepath.Dir(script), dir)
	}

	info, err := os.Stat(script)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&0o111 == 0 {
		t.Errorf("script is not executable: %v", info.Mode())
	}

	data, err := os.ReadFile(script)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if !strings.HasPrefix(content, "#!/bin/bash\n") {
		t.Errorf("missing shebang:\n%s", content)
	}
	if !strings.Contains(content, "chroot /run/rescue/abc123 /bin/bash\n") {
		t.Errorf("missing chroot invocation:\n%s", content)
	}
	if !strings.Contains(content, "Type 'exit' to leave") {
		t.Errorf("missing exit hint:\n%s", content)
	}
}

func TestTerminalCommandShapes(t *testing.T) {
	script := "/tmp/rescue-chroot.sh"
	tests := []struct {
		term string
		want []string
	}{
		{"kitty", []string{"kitty", "--title", "Chroot Recovery", "bash", script}},
		{"gnome-terminal", []string{"gnome-terminal", "--wait", "--", "bash", script}},
		{"xfce4-terminal", []string{"xfce4-terminal", "--title=Chroot Recovery", "-e", "bash " + script}},
		{"footerm", nil},
	}
	for _, tt := range tests {
		if got := terminalCommand(tt.term, script); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("terminalCommand(%q) = %v, want %v", tt.term, got, tt.want)
		}
	}
}
