// Package internal provides the asynchronous operation layer between the TUI and the recovery engine.
//
// This module implements:
//   - Engine wiring (scanner, resolver, session registry, shell launcher)
//   - Background mount execution with step-by-step progress tracking
//   - Session teardown and chroot shell supervision
//   - Filesystem usage and host information lookups for display
//
// Blocking engine calls never run on the UI thread: each is wrapped in a
// Bubble Tea command that runs on a worker and reports back as a typed
// message. Mount progress is shared through package-level state polled
// by CheckMountProgress, so the progress screen stays live while the
// worker grinds through the plan.
package internal

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"

	"rescue/internal/recovery"
	"rescue/internal/state"
)

// Engine singletons, wired once by InitEngine before the TUI starts.
var (
	engineRegistry *recovery.Registry
	engineScanner  *recovery.Scanner
	engineResolver *recovery.Resolver
	engineRunner   recovery.CommandRunner
	shellLauncher  *recovery.ShellLauncher

	stagingBase string    // parent directory for per-session staging roots
	logSink     io.Writer = io.Discard
	logFile     *os.File
)

// InitEngine wires the recovery engine with real system backends.
// stagingRoot is the parent directory under which each session mounts;
// terminal optionally pins a terminal emulator for the chroot shell.
func InitEngine(stagingRoot, terminal string) {
	logPath := getLogFilePath()
	if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
		fmt.Fprintf(f, "\n=== RESCUE STARTED: %s ===\n", time.Now().Format(time.RFC3339))
		logSink = f
		logFile = f
	}

	stagingBase = stagingRoot
	engineRunner = recovery.NewCommandRunner()
	engineScanner = recovery.NewScanner()
	engineResolver = recovery.NewResolver()
	engineRegistry = recovery.NewRegistry(logSink)
	shellLauncher = recovery.NewShellLauncher(terminal)
}

// CloseEngine flushes and closes the session log.
func CloseEngine() {
	if logFile != nil {
		logFile.Close()
	}
}

// ActiveSession returns the live recovery session, or nil.
func ActiveSession() *recovery.Session {
	if engineRegistry == nil {
		return nil
	}
	return engineRegistry.Active()
}

// NewStagingRoot returns a fresh per-session staging directory path
// under the configured base. A short unique suffix keeps a stuck
// previous tree from colliding with a new session.
func NewStagingRoot() string {
	return filepath.Join(stagingBase, uuid.NewString()[:8])
}

// ScanDisksCmd enumerates block devices on a worker.
func ScanDisksCmd() tea.Cmd {
	return recovery.ScanCmd(engineScanner)
}

// ResolveSubvolumesCmd resolves a BTRFS partition's subvolume hierarchy
// on a worker.
func ResolveSubvolumesCmd(part recovery.Partition) tea.Cmd {
	return recovery.ResolveCmd(engineResolver, part)
}

// OpenPartitionEditorCmd launches the external partition editor and
// reports when it exits.
func OpenPartitionEditorCmd() tea.Cmd {
	return recovery.PartitionEditorCmd(engineRunner, exec.LookPath)
}

// Mount progress state shared between the mount worker and the polling
// command. All access goes through opMu.
var (
	opMu        sync.Mutex
	opStep      int    // 1-based index of the step being applied
	opTotal     int    // total steps in the plan
	opMessage   string // human-readable description of the current step
	opDone      bool   // worker finished (successfully or not)
	opErr       error  // terminal error, nil on success
	opCanceling bool   // operator requested cancellation
	opCancel    context.CancelFunc
	opWarnings  []string // advisory notes collected while mounting
)

// resetOperationState clears the shared progress state before a new
// mount worker starts.
func resetOperationState() {
	opMu.Lock()
	defer opMu.Unlock()
	opStep = 0
	opTotal = 0
	opMessage = ""
	opDone = false
	opErr = nil
	opCanceling = false
	opCancel = nil
	opWarnings = nil
}

// StartMountCmd creates the session for the given plan and starts the
// mount worker. Returns the first progress message; the model chains
// CheckMountProgress to follow the worker.
func StartMountCmd(stagingRoot string, plan []recovery.MountStep) tea.Cmd {
	return func() tea.Msg {
		resetOperationState()

		session, err := engineRegistry.Begin(stagingRoot, plan)
		if err != nil {
			return state.MountProgressMsg{Done: true, Err: err}
		}

		session.OnStep = func(index, total int, step recovery.MountStep) {
			// An auxiliary target directory exists once the root is
			// mounted, so the hidden-content check is accurate exactly
			// here, before the step is applied.
			warnings := recovery.PlanWarnings([]recovery.MountStep{step}, dirNotEmpty)

			opMu.Lock()
			opStep = index + 1
			opTotal = total
			opMessage = fmt.Sprintf("Mounting %s at %s", step.Source, step.Target)
			opWarnings = append(opWarnings, warnings...)
			opMu.Unlock()
		}

		ctx, cancel := context.WithCancel(context.Background())
		opMu.Lock()
		opCancel = cancel
		opMu.Unlock()

		go func() {
			err := session.Mount(ctx)
			opMu.Lock()
			opDone = true
			opErr = err
			opMu.Unlock()
		}()

		return state.MountProgressMsg{Step: 0, Total: len(plan), Message: "Preparing mount plan..."}
	}
}

// CheckMountProgress polls the mount worker's shared state and delivers
// a progress message every 200 ms until the worker reports done.
func CheckMountProgress() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		opMu.Lock()
		defer opMu.Unlock()

		if opDone {
			if opErr != nil && opCanceling {
				return state.MountProgressMsg{Done: true, Err: fmt.Errorf("mount canceled by operator")}
			}
			return state.MountProgressMsg{
				Step:     opTotal,
				Total:    opTotal,
				Done:     true,
				Err:      opErr,
				Warnings: append([]string(nil), opWarnings...),
			}
		}
		if opCanceling {
			return state.MountProgressMsg{Step: opStep, Total: opTotal, Message: "Canceling, rolling back mounted steps..."}
		}
		return state.MountProgressMsg{Step: opStep, Total: opTotal, Message: opMessage}
	})
}

// CancelMount asks the running mount worker to stop. The worker rolls
// back every applied step before reporting done.
func CancelMount() {
	opMu.Lock()
	defer opMu.Unlock()
	opCanceling = true
	if opCancel != nil {
		opCancel()
	}
}

// AbandonFailedSession releases the registry slot of a failed session
// whose rollback completed, so the operator can start over.
func AbandonFailedSession() {
	if s := ActiveSession(); s != nil {
		s.Abandon()
	}
}

// StartTeardownCmd unmounts the active session's tree on a worker and
// reports the result. Runs as a single blocking command; the spinner
// keeps the screen alive meanwhile.
func StartTeardownCmd() tea.Cmd {
	return func() tea.Msg {
		session := ActiveSession()
		if session == nil {
			return state.TeardownDoneMsg{Clean: true}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		report := session.Teardown(ctx)

		msg := state.TeardownDoneMsg{Clean: report.Clean, Err: report.Err()}
		for _, f := range report.Failed {
			msg.Stuck = append(msg.Stuck, f.Path)
		}
		return msg
	}
}

// LaunchShellCmd opens the chroot shell in a terminal emulator and
// blocks until the terminal exits. The session is held in ShellRunning
// for the duration, which blocks teardown.
func LaunchShellCmd() tea.Cmd {
	return func() tea.Msg {
		session := ActiveSession()
		if session == nil {
			return state.ShellClosedMsg{Err: fmt.Errorf("no active session")}
		}

		cmd, err := shellLauncher.Launch(session.StagingRoot)
		if err != nil {
			return state.ShellClosedMsg{Err: err}
		}
		if err := session.AttachShell(cmd); err != nil {
			cmd.Process.Kill()
			return state.ShellClosedMsg{Err: err}
		}

		fmt.Fprintf(logSink, "[%s] chroot shell opened in %s\n", time.Now().Format(time.RFC3339), cmd.Path)
		err = cmd.Wait()
		session.ShellExited()
		fmt.Fprintf(logSink, "[%s] chroot shell closed\n", time.Now().Format(time.RFC3339))

		// Any exit code is acceptable; the operator may have exited the
		// shell with a failing command.
		_ = err
		return state.ShellClosedMsg{}
	}
}

// InterruptShell asks the active session's shell process to terminate.
// LaunchShellCmd's worker observes the exit and delivers ShellClosedMsg
// as usual, so teardown can follow.
func InterruptShell() {
	if session := ActiveSession(); session != nil {
		session.InterruptShell()
	}
}

// SessionUsageCmd samples filesystem usage of the mounted system for the
// session screen summary.
func SessionUsageCmd() tea.Cmd {
	return func() tea.Msg {
		session := ActiveSession()
		if session == nil {
			return state.UsageMsg{Err: fmt.Errorf("no active session")}
		}
		usage, err := disk.Usage(session.StagingRoot)
		if err != nil {
			return state.UsageMsg{Err: err}
		}
		return state.UsageMsg{Total: usage.Total, Used: usage.Used}
	}
}

// HostInfoLine returns a one-line description of the live environment
// for the About screen.
func HostInfoLine() string {
	info, err := host.Info()
	if err != nil {
		return "host information unavailable"
	}
	return fmt.Sprintf("%s · %s %s · kernel %s", info.Hostname, info.Platform, info.PlatformVersion, info.KernelVersion)
}

// LogFilePath exposes the active log location for display.
func LogFilePath() string {
	return getLogFilePath()
}
