// Package internal provides shared utilities for the Rescue TUI.
//
// This module contains the small helpers every screen leans on: locating
// the log file (sudo-aware), byte formatting for partition and usage
// display, and directory probes used by the mount-plan warnings.
package internal

import (
	"fmt"
	"os"
	"path/filepath"
)

// logFileOverride is set from the --log-file flag; empty means the
// default cache location.
var logFileOverride string

// SetLogFilePath pins the session log to an explicit path.
func SetLogFilePath(path string) {
	logFileOverride = path
}

// effectiveHomeDir returns the invoking user's home directory. When
// running under sudo the original user's home is used, so preferences
// and logs stay with the operator, not root.
func effectiveHomeDir() (string, error) {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		return "/home/" + sudoUser, nil
	}
	return os.UserHomeDir()
}

// getLogFilePath determines the location of the rescue log file.
// It prefers the operator's cache directory (~/.cache/rescue/rescue.log)
// and falls back to /tmp/rescue.log when that cannot be created.
func getLogFilePath() string {
	if logFileOverride != "" {
		return logFileOverride
	}

	homeDir, err := effectiveHomeDir()
	if err != nil {
		return "/tmp/rescue.log"
	}

	logDir := filepath.Join(homeDir, ".cache", "rescue")
	if err := os.MkdirAll(logDir, 0755); err == nil {
		return filepath.Join(logDir, "rescue.log")
	}

	return "/tmp/rescue.log"
}

// FormatBytes formats byte counts into human-readable size with binary units.
//
// Examples:
//
//	FormatBytes(1024) -> "1.0 KB"
//	FormatBytes(1073741824) -> "1.0 GB"
//	FormatBytes(999) -> "999 B"
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// dirNotEmpty reports whether path is an existing directory with at
// least one entry. Used to warn before an auxiliary mount shadows
// existing files.
func dirNotEmpty(path string) bool {
	entries, err := os.ReadDir(path)
	return err == nil && len(entries) > 0
}
