// Package internal provides Unicode symbol definitions with fallback support for limited terminals.
//
// Live media ship with a wide range of terminal emulators and locales; this module
// keeps the UI readable on all of them by providing ASCII fallbacks for every
// Unicode symbol the screens use.
package internal

import (
	"os"
	"strings"
)

// SymbolSet defines a collection of symbols used throughout the UI
type SymbolSet struct {
	// Status indicators
	Success string
	Error   string
	Warning string
	Info    string
	Search  string

	// Device icons
	Disk      string
	Partition string
	Subvolume string
	Mount     string
	Shell     string

	// UI elements
	Bullet string
	Arrow  string
	Check  string
	Cross  string
}

// UnicodeSymbols provides rich Unicode symbols for modern terminals
var UnicodeSymbols = SymbolSet{
	Success: "✓",
	Error:   "✗",
	Warning: "⚠️",
	Info:    "ℹ️",
	Search:  "🔍",

	Disk:      "💾",
	Partition: "🧩",
	Subvolume: "🌿",
	Mount:     "📌",
	Shell:     "💻",

	Bullet: "•",
	Arrow:  "➜",
	Check:  "☑",
	Cross:  "☐",
}

// ASCIISymbols provides ASCII-only fallbacks for compatibility
var ASCIISymbols = SymbolSet{
	Success: "[OK]",
	Error:   "[X]",
	Warning: "[!]",
	Info:    "[i]",
	Search:  "[?]",

	Disk:      "[HD]",
	Partition: "[P]",
	Subvolume: "[S]",
	Mount:     "[M]",
	Shell:     "[$]",

	Bullet: "*",
	Arrow:  "->",
	Check:  "[x]",
	Cross:  "[ ]",
}

// CurrentSymbols holds the active symbol set based on terminal capabilities
var CurrentSymbols SymbolSet

func init() {
	CurrentSymbols = detectSymbolSet()
}

// detectSymbolSet determines the appropriate symbol set based on terminal capabilities
func detectSymbolSet() SymbolSet {
	// Explicit ASCII mode via environment variable
	if os.Getenv("RESCUE_ASCII") == "1" || os.Getenv("RESCUE_ASCII") == "true" {
		return ASCIISymbols
	}

	// Known problematic terminals
	term := strings.ToLower(os.Getenv("TERM"))
	if term == "dumb" || term == "linux" || term == "vt100" {
		return ASCIISymbols
	}

	// SSH sessions into the live system may lack a UTF-8 locale
	if os.Getenv("SSH_CLIENT") != "" || os.Getenv("SSH_TTY") != "" {
		locale := strings.ToLower(os.Getenv("LANG"))
		if !strings.Contains(locale, "utf-8") && !strings.Contains(locale, "utf8") {
			return ASCIISymbols
		}
	}

	return UnicodeSymbols
}

// ForceASCII switches to ASCII symbols regardless of terminal detection
func ForceASCII() {
	CurrentSymbols = ASCIISymbols
}

// FormatSuccess formats a success message with the appropriate symbol
func FormatSuccess(message string) string {
	return CurrentSymbols.Success + " " + message
}

// FormatError formats an error message with the appropriate symbol
func FormatError(message string) string {
	return CurrentSymbols.Error + " " + message
}

// FormatWarning formats a warning message with the appropriate symbol
func FormatWarning(message string) string {
	return CurrentSymbols.Warning + " " + message
}

// FormatDisk formats a disk identifier with the appropriate symbol
func FormatDisk(identifier string) string {
	return CurrentSymbols.Disk + " " + identifier
}
