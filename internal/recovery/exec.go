// Package recovery implements the recovery session engine.
// This module wraps external command execution behind a small interface
// so every engine component can be tested without a real block device.
package recovery

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// CommandRunner executes one external command and returns its combined
// output. All engine components issue mount, umount, lsblk, and btrfs
// invocations through this interface.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner is the production CommandRunner backed by os/exec.
type execRunner struct{}

// NewCommandRunner returns the default CommandRunner that executes real
// system commands.
func NewCommandRunner() CommandRunner { return execRunner{} }

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// RunnerFunc adapts a function to the CommandRunner interface. Tests use
// this to script command outcomes.
type RunnerFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func (f RunnerFunc) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return f(ctx, name, args...)
}

// mountEntry is one line of the kernel mount table.
type mountEntry struct {
	Source string
	Target string
	Fstype string
}

// MountTable reads the current mount table. The default implementation
// parses /proc/mounts; tests substitute a fixture.
type MountTable func() ([]mountEntry, error)

// procMounts parses /proc/mounts into mount entries.
func procMounts() ([]mountEntry, error) {
	file, err := os.Open("/proc/mounts")
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []mountEntry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 3 {
			entries = append(entries, mountEntry{
				Source: fields[0],
				Target: unescapeMountPath(fields[1]),
				Fstype: fields[2],
			})
		}
	}
	return entries, scanner.Err()
}

// unescapeMountPath decodes the octal escapes /proc/mounts uses for
// spaces and other special characters in mountpoint paths.
func unescapeMountPath(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			var c byte
			if _, err := fmt.Sscanf(s[i+1:i+4], "%o", &c); err == nil {
				b.WriteByte(c)
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// mountsUnder returns the mount entries whose target equals root or lies
// beneath it, ordered as the kernel lists them.
func mountsUnder(table MountTable, root string) ([]mountEntry, error) {
	entries, err := table()
	if err != nil {
		return nil, err
	}
	var under []mountEntry
	for _, e := range entries {
		if e.Target == root || strings.HasPrefix(e.Target, root+"/") {
			under = append(under, e)
		}
	}
	return under, nil
}

// isMounted reports whether the exact target path currently appears in
// the mount table.
func isMounted(table MountTable, target string) bool {
	entries, err := table()
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.Target == target {
			return true
		}
	}
	return false
}
