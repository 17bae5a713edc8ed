package internal

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"rescue/internal/recovery"
	"rescue/internal/screens"
)

// Styles
var (
	// Enhanced color palette - Tokyo Night inspired
	primaryColor    = lipgloss.Color("#7aa2f7") // Tokyo Night blue
	secondaryColor  = lipgloss.Color("#9ece6a") // Tokyo Night green
	accentColor     = lipgloss.Color("#f7768e") // Tokyo Night red/pink
	warningColor    = lipgloss.Color("#e0af68") // Tokyo Night yellow
	errorColor      = lipgloss.Color("#f7768e") // Tokyo Night red
	successColor    = lipgloss.Color("#9ece6a") // Tokyo Night green
	textColor       = lipgloss.Color("#c0caf5") // Tokyo Night foreground
	dimColor        = lipgloss.Color("#565f89") // Tokyo Night comment
	backgroundColor = lipgloss.Color("#1a1b26") // Tokyo Night background
	borderColor     = lipgloss.Color("#414868") // Tokyo Night border

	// Enhanced base styles
	asciiStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true).
			Align(lipgloss.Center).
			MarginBottom(1)

	titleStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Bold(true).
			Align(lipgloss.Center).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(textColor).
			Align(lipgloss.Center).
			MarginBottom(1)

	menuItemStyle = lipgloss.NewStyle().
			PaddingLeft(2).
			PaddingRight(2).
			Foreground(textColor)

	// Menu selection styles - beautiful borders WITHOUT any margins/shadows!
	selectedMenuItemStyle = lipgloss.NewStyle().
				PaddingLeft(2).
				PaddingRight(2).
				Background(primaryColor).
				Foreground(backgroundColor).
				Bold(true).
				Border(lipgloss.RoundedBorder()).
				BorderForeground(primaryColor)

	inactiveMenuItemStyle = menuItemStyle.Copy().
				Foreground(dimColor)

	// Enhanced border WITHOUT background
	borderStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(2, 3).
			Margin(1)

	// Enhanced warning with background
	warningStyle = lipgloss.NewStyle().
			Foreground(backgroundColor).
			Background(warningColor).
			Bold(true).
			Align(lipgloss.Center).
			Padding(0, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(warningColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(backgroundColor).
			Background(errorColor).
			Bold(true).
			Align(lipgloss.Center).
			Padding(0, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(errorColor)

	successStyle = lipgloss.NewStyle().
			Foreground(backgroundColor).
			Background(successColor).
			Bold(true).
			Align(lipgloss.Center).
			Padding(0, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(successColor)

	// Spinner for scanning and teardown phases
	spinnerStyle = lipgloss.NewStyle().
			Foreground(primaryColor)

	// Enhanced help style
	helpStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			Align(lipgloss.Center).
			Italic(true).
			MarginTop(2)

	// Info box styles
	infoBoxStyle = lipgloss.NewStyle().
			Background(borderColor).
			Foreground(textColor).
			Padding(0, 1).
			Margin(0).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(dimColor)
)

// ASCII art for the program name
const asciiArt = `▗▄▄▖ ▗▄▄▄▖ ▗▄▄▖ ▗▄▄▖▗▖ ▗▖▗▄▄▄▖
▐▌ ▐▌▐▌   ▐▌   ▐▌   ▐▌ ▐▌▐▌
▐▛▀▚▖▐▛▀▀▘ ▝▀▚▖▐▌   ▐▌ ▐▌▐▛▀▀▘
▐▌ ▐▌▐▙▄▄▖▗▄▄▞▘▝▚▄▄▖▝▚▄▞▘▐▙▄▄▖`

// Render the main menu
func (m Model) renderMainMenu() string {
	var s strings.Builder

	// Header
	header := m.renderHeader()
	s.WriteString(header + "\n\n")

	// Menu options with beautiful styling
	for i, choice := range m.choices {
		if m.cursor == i {
			s.WriteString(selectedMenuItemStyle.Render("❯ "+choice) + "\n")
		} else {
			s.WriteString(menuItemStyle.Render("  "+choice) + "\n")
		}
	}

	// Show scan results or other transient messages
	if m.message != "" {
		s.WriteString("\n" + subtitleStyle.Render(m.message) + "\n")
	}

	// Help text
	help := m.renderHelp()
	s.WriteString("\n" + help)

	// Center the content with beautiful border
	content := borderStyle.Width(m.width - 8).Render(s.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

// Render disk selection screen
func (m Model) renderDiskSelect() string {
	var s strings.Builder

	// Header
	s.WriteString(titleStyle.Render("💿 Select a Disk") + "\n\n")

	if m.scanning {
		s.WriteString(infoBoxStyle.Render(m.spin.View()+" Scanning disks...") + "\n")
	} else if len(m.disks) == 0 {
		s.WriteString(warningStyle.Render("⚠️  No disks found (the boot medium is excluded)") + "\n")
		s.WriteString("\n" + menuItemStyle.Render("  ⬅️ Back") + "\n")
	} else {
		info := infoBoxStyle.Render("The live boot medium is not listed.")
		s.WriteString(info + "\n\n")

		for i, choice := range m.choices {
			if m.cursor == i {
				s.WriteString(selectedMenuItemStyle.Render("❯ "+choice) + "\n")
			} else {
				s.WriteString(menuItemStyle.Render("  "+choice) + "\n")
			}
		}
	}

	// Help text
	help := m.renderHelp()
	s.WriteString("\n" + help)

	// Center the content with beautiful border
	content := borderStyle.Width(m.width - 8).Render(s.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

// Render partition selection screen
func (m Model) renderPartitionSelect() string {
	var s strings.Builder

	// Header
	s.WriteString(titleStyle.Render("🧩 Select the Root Partition") + "\n\n")

	if m.resolving {
		s.WriteString(infoBoxStyle.Render(m.spin.View()+" "+m.message) + "\n")
		content := borderStyle.Width(m.width - 8).Render(s.String())
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
	}

	parts := m.currentPartitions()
	if len(parts) == 0 {
		s.WriteString(warningStyle.Render("⚠️  This disk has no partitions") + "\n")
	} else {
		info := infoBoxStyle.Render("Pick the partition holding the installed system's root filesystem.")
		s.WriteString(info + "\n\n")

		for i, p := range parts {
			line := formatPartitionLine(p, m.stagingRoot)
			switch {
			case m.cursor == i:
				s.WriteString(selectedMenuItemStyle.Render("❯ "+line) + "\n")
			case !p.Mountable():
				s.WriteString(inactiveMenuItemStyle.Render("  "+line) + "\n")
			default:
				s.WriteString(menuItemStyle.Render("  "+line) + "\n")
			}
		}
	}
	if m.cursor == len(parts) {
		s.WriteString(selectedMenuItemStyle.Render("❯ ⬅️ Back") + "\n")
	} else {
		s.WriteString(menuItemStyle.Render("  ⬅️ Back") + "\n")
	}

	// LUKS note mirrors what the scanner can and cannot mount
	if hasLockedPartition(parts) {
		s.WriteString("\n" + warningStyle.Render("⚠️  LUKS encrypted partitions must be unlocked manually first") + "\n")
	}

	if m.message != "" {
		s.WriteString("\n" + subtitleStyle.Render(m.message) + "\n")
	}

	// Help text
	help := m.renderHelp()
	s.WriteString("\n" + help)

	// Center the content with beautiful border
	content := borderStyle.Width(m.width - 8).Render(s.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

// Render subvolume selection screen
func (m Model) renderSubvolumeSelect() string {
	var s strings.Builder

	// Header
	s.WriteString(titleStyle.Render("🌳 Select the Root Subvolume") + "\n\n")

	info := infoBoxStyle.Render(fmt.Sprintf("BTRFS subvolumes on %s. The default subvolume is preselected.", m.rootSel.Partition.Device))
	s.WriteString(info + "\n\n")

	for i, e := range m.subvolEntry {
		line := strings.Repeat("  ", e.depth) + formatSubvolumeLine(e.sv)
		if m.cursor == i {
			s.WriteString(selectedMenuItemStyle.Render("❯ "+line) + "\n")
		} else {
			s.WriteString(menuItemStyle.Render("  "+line) + "\n")
		}
	}

	// Help text
	help := m.renderHelp()
	s.WriteString("\n" + help)

	// Center the content with beautiful border
	content := borderStyle.Width(m.width - 8).Render(s.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

// Render additional-mounts selection screen
func (m Model) renderAuxSelect() string {
	var s strings.Builder

	// Header
	s.WriteString(titleStyle.Render("🗂️  Additional Mounts") + "\n\n")

	info := infoBoxStyle.Render("Toggle with enter. Targets come from labels and subvolume names; press 't' to change one.")
	s.WriteString(info + "\n\n")

	for i, choice := range screens.AuxControlChoices {
		if m.cursor == i {
			s.WriteString(selectedMenuItemStyle.Render("❯ "+choice) + "\n")
		} else {
			s.WriteString(menuItemStyle.Render("  "+choice) + "\n")
		}
	}
	s.WriteString("\n")

	if len(m.auxOptions) == 0 {
		s.WriteString(subtitleStyle.Render("No other mountable partitions or subvolumes were found.") + "\n")
	}
	numControls := len(screens.AuxControlChoices)
	for i, opt := range m.auxOptions {
		box := "☐"
		if opt.Selected {
			box = "☑"
		}
		target := opt.Target
		if target == "" {
			target = "(no target)"
		}
		line := fmt.Sprintf("%s %-12s ← %s", box, target, opt.label())
		if m.cursor == numControls+i {
			s.WriteString(selectedMenuItemStyle.Render("❯ "+line) + "\n")
		} else if opt.Target == "" {
			s.WriteString(inactiveMenuItemStyle.Render("  "+line) + "\n")
		} else {
			s.WriteString(menuItemStyle.Render("  "+line) + "\n")
		}
	}

	if m.message != "" {
		s.WriteString("\n" + subtitleStyle.Render(m.message) + "\n")
	}

	// Help text
	help := helpStyle.Render("↑/↓: navigate • enter: toggle/select • t: change target • esc: back")
	s.WriteString("\n" + help)

	// Center the content with beautiful border
	content := borderStyle.Width(m.width - 8).Render(s.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

// Render confirmation screen
func (m Model) renderConfirmation() string {
	var s strings.Builder

	// Header
	s.WriteString(titleStyle.Render("⚠️  Confirm Mount Plan") + "\n\n")

	// The assembled plan
	confirmMsg := infoBoxStyle.Render(m.confirmation)
	s.WriteString(confirmMsg + "\n\n")

	// Pre-mount warnings
	for _, w := range m.warnings {
		s.WriteString(warningStyle.Render("⚠️  "+w) + "\n")
	}
	if len(m.warnings) > 0 {
		s.WriteString("\n")
	}

	// Yes/No options
	for i, choice := range screens.ConfirmationChoices {
		if m.cursor == i {
			s.WriteString(selectedMenuItemStyle.Render("❯ "+choice) + "\n")
		} else {
			s.WriteString(menuItemStyle.Render("  "+choice) + "\n")
		}
	}

	// Help text
	help := helpStyle.Render("↑/↓: navigate • enter: select • esc: back")
	s.WriteString("\n" + help)

	// Center the content
	content := borderStyle.Width(m.width - 4).Render(s.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

// Render progress screen for mount and teardown
func (m Model) renderProgress() string {
	var s strings.Builder

	// App branding header
	ascii := asciiStyle.Render(asciiArt)
	s.WriteString(ascii + "\n")
	title := titleStyle.Render(AppDesc)
	s.WriteString(title + "\n\n")

	// Operation title
	switch {
	case m.canceling:
		s.WriteString(titleStyle.Render("🛑 Canceling, rolling back") + "\n\n")
	case m.tearingDown:
		s.WriteString(titleStyle.Render("📤 Closing Session") + "\n\n")
	default:
		s.WriteString(titleStyle.Render("🔄 Mounting System") + "\n\n")
	}

	s.WriteString("📋 Log: " + LogFilePath() + "\n\n")

	// Step bar for mounts, spinner for teardown
	if m.tearingDown || m.canceling {
		s.WriteString(spinnerStyle.Render(m.spin.View()) + "\n\n")
	} else {
		s.WriteString(m.renderStepBar() + "\n\n")
	}

	// Status message
	if m.message != "" {
		var statusStyle lipgloss.Style
		if m.canceling || strings.Contains(m.message, "Cancel") {
			statusStyle = warningStyle
		} else {
			statusStyle = lipgloss.NewStyle().
				Foreground(secondaryColor).
				Align(lipgloss.Center)
		}
		statusMsg := statusStyle.Render(m.message)
		s.WriteString(statusMsg + "\n")
	}

	// Help text
	var help string
	if m.canceling || m.tearingDown {
		help = helpStyle.Render("Please wait for cleanup to complete...")
	} else {
		help = helpStyle.Render("Please wait... • Ctrl+C: cancel and roll back")
	}
	s.WriteString("\n" + help)

	// Center the content
	content := borderStyle.Width(m.width - 4).Render(s.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

// renderStepBar draws the step-counting progress bar for the mount
// sequence.
func (m Model) renderStepBar() string {
	width := 50
	filled := 0
	if m.opTotal > 0 {
		filled = m.opStep * width / m.opTotal
	}
	if filled > width {
		filled = width
	}

	var bar strings.Builder
	for i := 0; i < width; i++ {
		if i < filled {
			bar.WriteString("█")
		} else {
			bar.WriteString("░")
		}
	}

	progressText := fmt.Sprintf("Step %d/%d [%s]", m.opStep, m.opTotal, bar.String())
	return lipgloss.NewStyle().
		Foreground(primaryColor).
		Align(lipgloss.Center).
		Render(progressText)
}

// Render the active session dashboard
func (m Model) renderSession() string {
	var s strings.Builder

	// Header
	header := m.renderHeader()
	s.WriteString(header + "\n")
	s.WriteString(titleStyle.Render("🟢 Recovery Session Active") + "\n\n")

	// Session facts
	var info strings.Builder
	if sess := ActiveSession(); sess != nil {
		applied := sess.AppliedSteps()
		if len(applied) > 0 {
			fmt.Fprintf(&info, "Root: %s", applied[0].Source)
			if applied[0].Options != "" {
				fmt.Fprintf(&info, " (%s)", applied[0].Options)
			}
			info.WriteString("\n")
		}
		fmt.Fprintf(&info, "Staging: %s\nSteps mounted: %d", sess.StagingRoot, len(applied))
	}
	if m.usageLine != "" {
		fmt.Fprintf(&info, "\nDisk usage: %s", m.usageLine)
	}
	s.WriteString(infoBoxStyle.Render(info.String()) + "\n\n")

	// Menu options with beautiful styling
	for i, choice := range m.choices {
		switch {
		case m.shellRunning && i == m.cursor:
			s.WriteString(selectedMenuItemStyle.Render("❯ "+choice) + "\n")
		case m.shellRunning:
			s.WriteString(inactiveMenuItemStyle.Render("  "+choice) + "\n")
		case m.cursor == i:
			s.WriteString(selectedMenuItemStyle.Render("❯ "+choice) + "\n")
		default:
			s.WriteString(menuItemStyle.Render("  "+choice) + "\n")
		}
	}

	if m.message != "" {
		s.WriteString("\n" + subtitleStyle.Render(m.message) + "\n")
	}

	// Help text
	help := helpStyle.Render("↑/↓: navigate • enter: select • close the session before quitting")
	s.WriteString("\n" + help)

	// Center the content with beautiful border
	content := borderStyle.Width(m.width - 8).Render(s.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

// Render about screen
func (m Model) renderAbout() string {
	var s strings.Builder

	// Header with ASCII art
	ascii := asciiStyle.Render(asciiArt)
	s.WriteString(ascii + "\n")
	s.WriteString(titleStyle.Render(GetAppTitle()) + "\n")
	s.WriteString(subtitleStyle.Render(GetSubtitle()) + "\n\n")

	// About text
	s.WriteString(GetAboutText() + "\n\n")

	// Live environment facts
	if host := HostInfoLine(); host != "" {
		s.WriteString(infoBoxStyle.Render("Live environment: "+host) + "\n")
	}
	s.WriteString(infoBoxStyle.Render("Log file: "+LogFilePath()) + "\n")

	// Help text
	help := helpStyle.Render("Press enter or esc to go back")
	s.WriteString("\n" + help)

	// Center the content with beautiful border
	content := borderStyle.Width(m.width - 8).Render(s.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

// Render header with beautiful ASCII art
func (m Model) renderHeader() string {
	ascii := asciiStyle.Render(asciiArt)
	title := titleStyle.Render(AppDesc)
	subtitle := subtitleStyle.Render(GetSubtitle())

	return ascii + "\n" + title + "\n" + subtitle
}

// Render help text
func (m Model) renderHelp() string {
	return helpStyle.Render("↑/↓: navigate • enter: select • q: quit • esc: back")
}

// Render error screen that requires manual dismissal
func (m Model) renderError() string {
	var s strings.Builder

	// Header
	s.WriteString(titleStyle.Render("❌ Error") + "\n\n")

	// Error message with enhanced styling
	errorMsg := errorStyle.Render(m.message)
	s.WriteString(errorMsg + "\n\n")

	// Help text - emphasize manual dismissal
	help := helpStyle.Render("📖 Please read the message above • Press any key when ready to continue")
	s.WriteString(help)

	// Center the content with beautiful border
	content := borderStyle.Width(m.width - 8).Render(s.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

// Render completion screen that requires manual dismissal
func (m Model) renderComplete() string {
	var s strings.Builder

	// Header
	s.WriteString(titleStyle.Render("✅ Session Closed") + "\n\n")

	// Success message with enhanced styling
	successMsg := successStyle.Render(m.message)
	s.WriteString(successMsg + "\n\n")

	// Help text - emphasize manual dismissal
	help := helpStyle.Render("🎉 All mounts released • Press any key to continue")
	s.WriteString(help)

	// Center the content with beautiful border
	content := borderStyle.Width(m.width - 8).Render(s.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

// formatPartitionLine builds the one-line partition description used by
// the root partition picker.
func formatPartitionLine(p recovery.Partition, stagingRoot string) string {
	line := fmt.Sprintf("%s  %s  %s", p.Device, p.Size, orUnknown(p.Fstype))
	if p.Label != "" {
		line += fmt.Sprintf("  [%s]", p.Label)
	}
	switch p.MountStateFor(stagingRoot) {
	case recovery.StateMountedElsewhere:
		line += fmt.Sprintf("  (mounted at %s)", p.MountPoint)
	case recovery.StateMountedBySession:
		line += "  (in session)"
	}
	return line
}

// formatSubvolumeLine builds the one-line subvolume description for the
// picker, marking the filesystem default.
func formatSubvolumeLine(sv *recovery.Subvolume) string {
	name := sv.Path
	if sv.TopLevel() {
		name = "(top level)"
	}
	line := fmt.Sprintf("%s  id=%d", name, sv.ID)
	if sv.Default {
		line += "  ★ default"
	}
	return line
}

func hasLockedPartition(parts []recovery.Partition) bool {
	for _, p := range parts {
		if strings.HasPrefix(strings.ToLower(p.Fstype), "crypto") {
			return true
		}
	}
	return false
}
