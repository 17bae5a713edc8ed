// Package internal provides the core application model and state management for Rescue's TUI.
//
// This package implements the Bubble Tea model pattern for the interactive terminal user interface.
// The model handles:
//   - Application state management across different screens (disk select, subvolume select, etc.)
//   - Message handling for user input, system events, and background operations
//   - Screen transitions and navigation logic
//   - Progress tracking for the mount and teardown workers
//   - The recovery session lifecycle from selection through chroot to final unmount
//
// The main Model struct contains all UI state and implements the tea.Model interface
// for integration with the Bubble Tea framework.
package internal

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"rescue/internal/recovery"
	"rescue/internal/screens"
	"rescue/internal/state"
)

// auxOption is one selectable auxiliary mount on the additional-mounts
// screen: a partition (or a specific BTRFS subvolume of the root
// partition) paired with a target inside the recovered tree.
type auxOption struct {
	Partition recovery.Partition
	Subvolume *recovery.Subvolume // nil for whole-partition mounts
	Target    string              // "" until the operator assigns one
	Selected  bool
}

// label returns the display name of the mount source.
func (o auxOption) label() string {
	if o.Subvolume != nil {
		return fmt.Sprintf("%s subvolume %s", o.Partition.Device, o.Subvolume.Path)
	}
	return o.Partition.Device
}

// subvolEntry pairs a subvolume with its depth in the hierarchy for
// indented list rendering.
type subvolEntry struct {
	sv    *recovery.Subvolume
	depth int
}

// auxTargetCycle is the target rotation offered by the 't' key for
// partitions with no usable suggestion.
var auxTargetCycle = []string{"/home", "/boot", "/boot/efi", "/var", "/opt", "/srv", "/usr/local", "/tmp"}

// Model represents the complete application state for the Rescue TUI.
// It implements the tea.Model interface and contains all data needed to
// render screens and handle user interactions.
type Model struct {
	// Screen and navigation state
	screen  screens.Screen
	cursor  int
	choices []string

	// Display dimensions
	width  int
	height int

	// Spinner for indeterminate phases (scanning, resolving, teardown)
	spin spinner.Model

	// Discovery state
	scanning  bool // a disk scan is in flight
	resolving bool // a subvolume resolution is in flight
	disks     []recovery.Disk

	// Selection state for the session being assembled
	selectedDisk int
	rootSel      recovery.RootSelection
	subvolEntry  []subvolEntry // flattened hierarchy for the picker
	auxOptions   []auxOption

	// Plan state
	stagingRoot  string
	plan         []recovery.MountStep
	warnings     []string
	confirmation string

	// Mount/teardown progress
	opStep      int
	opTotal     int
	canceling   bool
	tearingDown bool

	// Session state
	shellRunning    bool
	closeAfterShell bool
	usageLine       string

	// Messaging
	message                      string
	errorRequiresManualDismissal bool

	// Persistent preferences (remembered aux mounts, terminal choice)
	prefs *Preferences
}

// InitialModel creates and returns a new Model instance with default values.
func InitialModel(prefs *Preferences) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return Model{
		screen:  screens.ScreenMain,
		choices: screens.MainMenuChoices,
		spin:    sp,
		prefs:   prefs,
		width:   100,
		height:  30,
	}
}

// Init implements tea.Model.Init() and starts the spinner ticking.
func (m Model) Init() tea.Cmd {
	return m.spin.Tick
}

// Update implements tea.Model.Update() and handles all incoming messages.
// This is the central message router that processes user input, system events,
// background operation updates, and screen transitions.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case recovery.DisksScanned:
		m.scanning = false
		if msg.Err != nil {
			return m.showError(fmt.Sprintf("Disk scan failed: %v", msg.Err)), nil
		}
		m.disks = msg.Disks
		if m.screen == screens.ScreenDiskSelect {
			m.choices = diskChoices(m.disks)
			if m.cursor >= len(m.choices) {
				m.cursor = 0
			}
		} else {
			m.message = fmt.Sprintf("%d disks found", len(m.disks))
		}
		return m, nil

	case recovery.SubvolumesResolved:
		m.resolving = false
		if msg.Err != nil {
			return m.showError(fmt.Sprintf("Subvolume discovery on %s failed: %v", msg.Partition.Device, msg.Err)), nil
		}
		m.subvolEntry = flattenSubvolumes(msg.Root)
		m.screen = screens.ScreenSubvolumeSelect
		m.cursor = defaultSubvolumeCursor(m.subvolEntry)
		return m, nil

	case recovery.PartitionEditorClosed:
		// Partition state is stale after external editing; throw the old
		// scan away and rescan before anything is selectable again.
		m.disks = nil
		if msg.Err != nil {
			m.message = FormatWarning(fmt.Sprintf("Partition editor: %v", msg.Err))
			return m, nil
		}
		m.message = "Partition editor closed, rescanning disks..."
		m.scanning = true
		return m, ScanDisksCmd()

	case state.MountProgressMsg:
		if m.screen != screens.ScreenProgress || m.tearingDown {
			// A stale poller tick after the operation already resolved.
			return m, nil
		}
		if !msg.Done {
			m.opStep = msg.Step
			m.opTotal = msg.Total
			if msg.Message != "" {
				m.message = msg.Message
			}
			return m, CheckMountProgress()
		}
		m.canceling = false
		if msg.Err != nil {
			// The session rolled back every applied step before
			// surfacing the error; free its slot so a new attempt can
			// start clean.
			AbandonFailedSession()
			return m.showError(fmt.Sprintf("Mount failed: %v\n\nAll partially mounted steps were rolled back.", msg.Err)), nil
		}
		m.rememberAuxChoices()
		m.screen = screens.ScreenSession
		m.choices = screens.SessionMenuChoices
		m.cursor = 0
		m.message = FormatSuccess("System mounted and validated")
		if len(msg.Warnings) > 0 {
			m.message = FormatWarning(strings.Join(msg.Warnings, "\n"))
		}
		return m, SessionUsageCmd()

	case state.ShellClosedMsg:
		m.shellRunning = false
		if m.closeAfterShell {
			// The operator canceled while the shell was open; now that it
			// has exited, proceed straight to teardown.
			m.closeAfterShell = false
			m.screen = screens.ScreenProgress
			m.tearingDown = true
			m.message = "Unmounting in reverse order..."
			return m, tea.Batch(StartTeardownCmd(), m.spin.Tick)
		}
		if msg.Err != nil {
			m.message = FormatWarning(fmt.Sprintf("Shell: %v", msg.Err))
		} else {
			m.message = "Chroot shell closed"
		}
		return m, SessionUsageCmd()

	case state.TeardownDoneMsg:
		m.tearingDown = false
		if !msg.Clean {
			detail := fmt.Sprintf("Teardown incomplete: %v", msg.Err)
			if len(msg.Stuck) > 0 {
				detail += "\n\nStill mounted:\n  " + strings.Join(msg.Stuck, "\n  ")
				detail += "\n\nClose any process using these paths and try again."
			}
			return m.showError(detail), nil
		}
		m.screen = screens.ScreenComplete
		m.message = "Recovery session closed. All mounts released."
		m.usageLine = ""
		return m, nil

	case state.UsageMsg:
		if msg.Err == nil && msg.Total > 0 {
			m.usageLine = fmt.Sprintf("%s used of %s", FormatBytes(msg.Used), FormatBytes(msg.Total))
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

// handleKey processes keyboard input for the current screen.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Error and completion screens dismiss on any key
	if m.screen == screens.ScreenError && m.errorRequiresManualDismissal {
		m.errorRequiresManualDismissal = false
		m.message = ""
		return m.returnToMenu(), nil
	}
	if m.screen == screens.ScreenComplete {
		m.message = ""
		return m.returnToMenu(), nil
	}

	switch msg.String() {
	case "ctrl+c", "q":
		if m.screen == screens.ScreenProgress {
			if m.tearingDown {
				// Teardown must finish; interrupting would leave the
				// tree half-mounted.
				return m, nil
			}
			m.canceling = true
			m.message = "Canceling... rolling back mounted steps."
			CancelMount()
			return m, nil
		}
		if m.screen == screens.ScreenSession && m.shellRunning {
			// The shell must exit before anything can unmount; ask it to
			// terminate and close the session once it has.
			m.closeAfterShell = true
			m.message = "Closing the chroot shell, then unmounting..."
			InterruptShell()
			return m, nil
		}
		if m.screen == screens.ScreenSession || ActiveSession() != nil {
			m.message = FormatWarning("A session is active. Close it before quitting.")
			return m, nil
		}
		if m.screen == screens.ScreenMain {
			return m, tea.Quit
		}
		return m.returnToMenu(), nil

	case "esc":
		switch m.screen {
		case screens.ScreenDiskSelect:
			return m.returnToMenu(), nil
		case screens.ScreenPartitionSelect:
			m.screen = screens.ScreenDiskSelect
			m.choices = diskChoices(m.disks)
			m.cursor = 0
		case screens.ScreenSubvolumeSelect:
			m.screen = screens.ScreenPartitionSelect
			m.cursor = 0
		case screens.ScreenAuxSelect:
			if m.rootSel.Partition.IsBtrfs() {
				m.screen = screens.ScreenSubvolumeSelect
			} else {
				m.screen = screens.ScreenPartitionSelect
			}
			m.cursor = 0
		case screens.ScreenConfirm:
			m.screen = screens.ScreenAuxSelect
			m.cursor = 0
		case screens.ScreenAbout:
			return m.returnToMenu(), nil
		case screens.ScreenSession, screens.ScreenProgress:
			// No escape from a live session or a running operation.
		default:
			return m.returnToMenu(), nil
		}
		return m, nil

	case "up", "k":
		max := m.maxCursor()
		if m.cursor > 0 {
			m.cursor--
		} else {
			m.cursor = max
		}
		return m, nil

	case "down", "j":
		max := m.maxCursor()
		if m.cursor < max {
			m.cursor++
		} else {
			m.cursor = 0
		}
		return m, nil

	case "t":
		if m.screen == screens.ScreenAuxSelect {
			m.cycleAuxTarget()
		}
		return m, nil

	case "enter", " ":
		return m.handleSelection()
	}

	return m, nil
}

// maxCursor returns the highest valid cursor position for the current
// screen.
func (m Model) maxCursor() int {
	switch m.screen {
	case screens.ScreenConfirm:
		return 1
	case screens.ScreenPartitionSelect:
		return len(m.currentPartitions()) // extra slot for Back
	case screens.ScreenSubvolumeSelect:
		return len(m.subvolEntry) - 1
	case screens.ScreenAuxSelect:
		return len(screens.AuxControlChoices) + len(m.auxOptions) - 1
	default:
		if len(m.choices) == 0 {
			return 0
		}
		return len(m.choices) - 1
	}
}

// returnToMenu places the model on the appropriate top-level screen:
// the session dashboard while a session is live, the main menu otherwise.
func (m Model) returnToMenu() Model {
	sess := ActiveSession()
	active := sess != nil && sess.State() != recovery.SessionClosed
	if active {
		m.screen = screens.ScreenSession
	} else {
		m.screen = screens.ScreenMain
	}
	m.choices = screens.GetMenuChoices(m.screen, active)
	m.cursor = 0
	return m
}

// showError switches to the error screen with manual dismissal.
func (m Model) showError(message string) Model {
	m.message = message
	m.errorRequiresManualDismissal = true
	m.screen = screens.ScreenError
	return m
}

// handleSelection processes menu selections and handles screen transitions.
// This method implements the navigation logic for all interactive screens,
// managing state changes and initiating background operations as needed.
func (m Model) handleSelection() (tea.Model, tea.Cmd) {
	switch m.screen {
	case screens.ScreenMain:
		switch m.cursor {
		case 0: // Start Recovery Session
			m.screen = screens.ScreenDiskSelect
			m.cursor = 0
			m.scanning = true
			m.choices = nil
			return m, ScanDisksCmd()
		case 1: // Open Partition Editor
			m.message = "Waiting for the partition editor to close..."
			return m, OpenPartitionEditorCmd()
		case 2: // Rescan Disks
			m.scanning = true
			m.message = "Scanning disks..."
			return m, ScanDisksCmd()
		case 3: // About
			m.screen = screens.ScreenAbout
		case 4: // Exit
			return m, tea.Quit
		}

	case screens.ScreenSession:
		switch m.cursor {
		case 0: // Open Chroot Shell
			if m.shellRunning {
				m.message = FormatWarning("The chroot shell is already open")
				return m, nil
			}
			m.shellRunning = true
			m.message = "Chroot shell running in its own terminal. Close it to continue here."
			return m, LaunchShellCmd()
		case 1: // Close Session
			if m.shellRunning {
				m.message = FormatWarning("Close the chroot shell first")
				return m, nil
			}
			m.screen = screens.ScreenProgress
			m.tearingDown = true
			m.message = "Unmounting in reverse order..."
			return m, tea.Batch(StartTeardownCmd(), m.spin.Tick)
		case 2: // About
			m.screen = screens.ScreenAbout
		case 3: // Exit
			m.message = FormatWarning("A session is active. Close it before quitting.")
		}

	case screens.ScreenDiskSelect:
		if m.scanning {
			return m, nil
		}
		if m.cursor < len(m.disks) {
			m.selectedDisk = m.cursor
			m.screen = screens.ScreenPartitionSelect
			m.cursor = 0
		} else {
			return m.returnToMenu(), nil
		}

	case screens.ScreenPartitionSelect:
		parts := m.currentPartitions()
		if m.cursor < len(parts) {
			p := parts[m.cursor]
			if !p.Mountable() {
				m.message = FormatWarning(fmt.Sprintf("%s has no mountable filesystem (%s)", p.Device, orUnknown(p.Fstype)))
				return m, nil
			}
			m.rootSel = recovery.RootSelection{Partition: p}
			if p.IsBtrfs() {
				m.resolving = true
				m.message = fmt.Sprintf("Reading subvolumes on %s...", p.Device)
				return m, ResolveSubvolumesCmd(p)
			}
			m.buildAuxOptions(nil)
			m.screen = screens.ScreenAuxSelect
			m.cursor = 0
		} else {
			m.screen = screens.ScreenDiskSelect
			m.choices = diskChoices(m.disks)
			m.cursor = 0
		}

	case screens.ScreenSubvolumeSelect:
		if m.cursor < len(m.subvolEntry) {
			sv := m.subvolEntry[m.cursor].sv
			m.rootSel.Subvolume = sv
			m.buildAuxOptions(sv)
			m.screen = screens.ScreenAuxSelect
			m.cursor = 0
		}

	case screens.ScreenAuxSelect:
		numControls := len(screens.AuxControlChoices)
		if m.cursor < numControls {
			switch m.cursor {
			case 0: // Continue with selection
				return m.buildPlanAndConfirm()
			case 1: // Back
				if m.rootSel.Partition.IsBtrfs() {
					m.screen = screens.ScreenSubvolumeSelect
				} else {
					m.screen = screens.ScreenPartitionSelect
				}
				m.cursor = 0
			}
		} else if i := m.cursor - numControls; i < len(m.auxOptions) {
			opt := &m.auxOptions[i]
			if opt.Target == "" && !opt.Selected {
				m.message = FormatWarning("Assign a target first (press 't')")
				return m, nil
			}
			opt.Selected = !opt.Selected
			m.message = ""
		}

	case screens.ScreenConfirm:
		switch m.cursor {
		case 0: // Yes
			m.screen = screens.ScreenProgress
			m.opStep = 0
			m.opTotal = len(m.plan)
			m.message = "Starting mount sequence..."
			m.confirmation = ""
			// StartMountCmd's first progress message arms the poller; Update
			// re-arms it until a terminal message arrives.
			return m, tea.Batch(
				StartMountCmd(m.stagingRoot, m.plan),
				m.spin.Tick,
			)
		case 1: // No
			m.plan = nil
			m.warnings = nil
			m.confirmation = ""
			return m.returnToMenu(), nil
		}

	case screens.ScreenAbout:
		return m.returnToMenu(), nil
	}

	return m, nil
}

// buildPlanAndConfirm validates the selections into an ordered plan and
// moves to the confirmation screen.
func (m Model) buildPlanAndConfirm() (tea.Model, tea.Cmd) {
	var aux []recovery.AuxSelection
	for _, opt := range m.auxOptions {
		if opt.Selected {
			aux = append(aux, recovery.AuxSelection{
				Partition: opt.Partition,
				Subvolume: opt.Subvolume,
				Target:    opt.Target,
			})
		}
	}

	m.stagingRoot = NewStagingRoot()
	plan, err := recovery.BuildPlan(m.stagingRoot, m.rootSel, aux)
	if err != nil {
		m.message = FormatError(err.Error())
		return m, nil
	}
	m.plan = plan

	// Hidden-content warnings only make sense once the root is mounted;
	// here the useful warning is a partition that is already mounted
	// somewhere else.
	m.warnings = nil
	checkMounted := func(p recovery.Partition) {
		if p.MountStateFor(m.stagingRoot) == recovery.StateMountedElsewhere {
			m.warnings = append(m.warnings, fmt.Sprintf("%s is already mounted at %s", p.Device, p.MountPoint))
		}
	}
	checkMounted(m.rootSel.Partition)
	for _, sel := range aux {
		if sel.Partition.Device != m.rootSel.Partition.Device {
			checkMounted(sel.Partition)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Root: %s", m.rootSel.Partition.Device)
	if m.rootSel.Subvolume != nil && !m.rootSel.Subvolume.TopLevel() {
		fmt.Fprintf(&b, " (subvol %s)", m.rootSel.Subvolume.Path)
	}
	b.WriteString("\n")
	for _, sel := range aux {
		fmt.Fprintf(&b, "%s → %s\n", sel.Target, sel.Partition.Device)
	}
	fmt.Fprintf(&b, "\nStaging root: %s\n%d mount steps\n\nMount and validate the system?", m.stagingRoot, len(plan))
	m.confirmation = b.String()

	m.screen = screens.ScreenConfirm
	m.cursor = 0
	return m, nil
}

// currentPartitions returns the partitions of the selected disk.
func (m Model) currentPartitions() []recovery.Partition {
	if m.selectedDisk >= len(m.disks) {
		return nil
	}
	return m.disks[m.selectedDisk].Partitions
}

// buildAuxOptions assembles the additional-mounts list: sibling
// subvolumes of a BTRFS root, then every other mountable partition
// across all disks, each with a suggested target. Saved preferences for
// this root filesystem override the heuristics and pre-select entries.
func (m *Model) buildAuxOptions(rootSubvol *recovery.Subvolume) {
	m.auxOptions = nil
	used := map[string]bool{"/": true}

	// Sibling subvolumes on the same BTRFS filesystem (e.g. @home next
	// to @).
	if rootSubvol != nil {
		for _, e := range m.subvolEntry {
			sv := e.sv
			if sv.ID == rootSubvol.ID || sv.TopLevel() {
				continue
			}
			target := recovery.SuggestSubvolumeTarget(sv.Path)
			if target == "" || target == "/" || used[target] {
				continue
			}
			used[target] = true
			m.auxOptions = append(m.auxOptions, auxOption{
				Partition: m.rootSel.Partition,
				Subvolume: sv,
				Target:    target,
			})
		}
	}

	// Other mountable partitions across all disks.
	for _, d := range m.disks {
		for _, p := range d.Partitions {
			if p.Device == m.rootSel.Partition.Device || !p.Mountable() {
				continue
			}
			target := recovery.SuggestPartitionTarget(p, used)
			if target == "/" {
				target = "" // a second root candidate needs an explicit target
			}
			if target != "" {
				used[target] = true
			}
			m.auxOptions = append(m.auxOptions, auxOption{Partition: p, Target: target})
		}
	}

	// Saved choices for this root filesystem win over heuristics.
	for _, saved := range m.prefs.RememberedAuxMounts(m.rootSel.Partition.UUID) {
		for i := range m.auxOptions {
			opt := &m.auxOptions[i]
			if opt.Partition.UUID != saved.PartitionUUID {
				continue
			}
			if (opt.Subvolume == nil) != (saved.Subvolume == "") {
				continue
			}
			if opt.Subvolume != nil && opt.Subvolume.Path != saved.Subvolume {
				continue
			}
			opt.Target = saved.Target
			opt.Selected = true
		}
	}
}

// cycleAuxTarget rotates the highlighted option's target through the
// standard candidates, skipping targets already taken by other options.
func (m *Model) cycleAuxTarget() {
	i := m.cursor - len(screens.AuxControlChoices)
	if i < 0 || i >= len(m.auxOptions) {
		return
	}
	opt := &m.auxOptions[i]

	taken := map[string]bool{}
	for j, other := range m.auxOptions {
		if j != i && other.Target != "" {
			taken[other.Target] = true
		}
	}

	start := -1
	for j, t := range auxTargetCycle {
		if t == opt.Target {
			start = j
			break
		}
	}
	for step := 1; step <= len(auxTargetCycle); step++ {
		t := auxTargetCycle[(start+step)%len(auxTargetCycle)]
		if !taken[t] {
			opt.Target = t
			return
		}
	}
}

// rememberAuxChoices persists the selections that just mounted, keyed by
// the root filesystem UUID. Best effort; a save failure never interrupts
// the session.
func (m *Model) rememberAuxChoices() {
	var saved []SavedAuxMount
	for _, opt := range m.auxOptions {
		if !opt.Selected {
			continue
		}
		s := SavedAuxMount{PartitionUUID: opt.Partition.UUID, Target: opt.Target}
		if opt.Subvolume != nil {
			s.Subvolume = opt.Subvolume.Path
		}
		saved = append(saved, s)
	}
	m.prefs.RememberAuxMounts(m.rootSel.Partition.UUID, saved)
	m.prefs.Save()
}

// flattenSubvolumes walks the hierarchy depth-first into an indented
// list for the picker.
func flattenSubvolumes(root *recovery.Subvolume) []subvolEntry {
	var out []subvolEntry
	var walk func(sv *recovery.Subvolume, depth int)
	walk = func(sv *recovery.Subvolume, depth int) {
		out = append(out, subvolEntry{sv: sv, depth: depth})
		for _, c := range sv.Children {
			walk(c, depth+1)
		}
	}
	walk(root, 0)
	return out
}

// defaultSubvolumeCursor places the picker cursor on the filesystem's
// default subvolume, falling back to the first entry.
func defaultSubvolumeCursor(entries []subvolEntry) int {
	for i, e := range entries {
		if e.sv.Default {
			return i
		}
	}
	return 0
}

// diskChoices formats the disk list for the selection screen.
func diskChoices(disks []recovery.Disk) []string {
	choices := make([]string, len(disks)+1)
	for i, d := range disks {
		desc := d.Device + " (" + d.Size
		if d.Model != "" {
			desc += ", " + d.Model
		}
		desc += ", " + d.Kind.String() + ")"
		choices[i] = FormatDisk(desc)
	}
	choices[len(disks)] = "⬅️ Back"
	return choices
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// View implements tea.Model.View() and delegates to per-screen render
// functions.
func (m Model) View() string {
	switch m.screen {
	case screens.ScreenMain:
		return m.renderMainMenu()
	case screens.ScreenDiskSelect:
		return m.renderDiskSelect()
	case screens.ScreenPartitionSelect:
		return m.renderPartitionSelect()
	case screens.ScreenSubvolumeSelect:
		return m.renderSubvolumeSelect()
	case screens.ScreenAuxSelect:
		return m.renderAuxSelect()
	case screens.ScreenConfirm:
		return m.renderConfirmation()
	case screens.ScreenProgress:
		return m.renderProgress()
	case screens.ScreenSession:
		return m.renderSession()
	case screens.ScreenAbout:
		return m.renderAbout()
	case screens.ScreenError:
		return m.renderError()
	case screens.ScreenComplete:
		return m.renderComplete()
	default:
		return "Unknown screen"
	}
}
