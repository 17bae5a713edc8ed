// Package recovery implements the recovery session engine.
// This module owns the session lifecycle. A RecoverySession is the
// single owning entity for a mount tree: it applies a plan step by step,
// exposes the ready staging root, supervises the interactive shell, and
// hands the applied steps to the coordinator for teardown. At most one
// session exists at a time; the Registry guards creation.
package recovery

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionState tracks where a session is in its lifecycle.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionMounting
	SessionReady
	SessionShellRunning
	SessionUnmounting
	SessionClosed
	SessionFailed
)

// String returns the state name used in logs and conflict errors.
func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionMounting:
		return "mounting"
	case SessionReady:
		return "ready"
	case SessionShellRunning:
		return "shell running"
	case SessionUnmounting:
		return "unmounting"
	case SessionClosed:
		return "closed"
	default:
		return "failed"
	}
}

// essentialPaths are checked after the root mount to confirm the staging
// tree holds an installed Linux system. At least minEssentialPaths must
// exist, plus one executable shell.
var essentialPaths = []string{
	"bin", "usr/bin", "lib", "usr/lib",
	"etc/fstab", "etc/passwd", "etc/shadow",
}

const minEssentialPaths = 3

var shellCandidates = []string{"bin/bash", "usr/bin/bash", "bin/sh", "usr/bin/sh"}

// Session is one recovery session and the exclusive owner of the staging
// root directory tree beneath it.
type Session struct {
	ID          string
	StagingRoot string

	mu       sync.Mutex
	state    SessionState
	plan     []MountStep
	applied  []MountStep // append-only while mounting, consumed in reverse on teardown
	shell    *exec.Cmd
	registry *Registry

	run         CommandRunner
	coordinator *Coordinator
	log         io.Writer

	// OnStep, when set, is called before each mount step is applied.
	// The UI uses it for progress display.
	OnStep func(index, total int, step MountStep)
}

// Registry holds zero or one live session. Session creation is a guarded
// operation, never an ambient global flag.
type Registry struct {
	mu     sync.Mutex
	active *Session

	// Backends given to sessions; overridable for tests.
	Run         CommandRunner
	Coordinator *Coordinator
	Log         io.Writer
}

// NewRegistry returns a Registry producing sessions that execute real
// system commands and log to sink (nil for no logging).
func NewRegistry(sink io.Writer) *Registry {
	if sink == nil {
		sink = io.Discard
	}
	return &Registry{
		Run:         NewCommandRunner(),
		Coordinator: NewCoordinator(),
		Log:         sink,
	}
}

// Begin creates the one active session for the given plan. It fails with
// *SessionConflictError while another session is live, leaving that
// session untouched.
func (r *Registry) Begin(stagingRoot string, plan []MountStep) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return nil, &SessionConflictError{ActiveID: r.active.ID, State: r.active.State()}
	}
	if len(plan) == 0 {
		return nil, fmt.Errorf("empty mount plan")
	}

	s := &Session{
		ID:          uuid.NewString(),
		StagingRoot: stagingRoot,
		state:       SessionIdle,
		plan:        plan,
		registry:    r,
		run:         r.Run,
		coordinator: r.Coordinator,
		log:         r.Log,
	}
	r.active = s
	return s, nil
}

// Active returns the live session, or nil.
func (r *Registry) Active() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// release detaches a closed or failed-and-torn-down session.
func (r *Registry) release(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == s {
		r.active = nil
	}
}

// State returns the session's current state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AppliedSteps returns a copy of the steps applied so far, in
// application order.
func (s *Session) AppliedSteps() []MountStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MountStep(nil), s.applied...)
}

// Mount applies the plan strictly in order. On any step failure, or on
// context cancellation between steps, every already-applied step is
// rolled back before the error is surfaced, so the caller never sees a
// half-mounted tree. After the device mounts succeed, the staging tree
// is validated to look like an installed Linux system and the live
// resolv.conf is propagated for DNS inside the chroot.
func (s *Session) Mount(ctx context.Context) error {
	s.mu.Lock()
	if s.state != SessionIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("cannot mount from state %q", state)
	}
	s.state = SessionMounting
	plan := s.plan
	s.mu.Unlock()

	fmt.Fprintf(s.log, "[%s] session %s: mounting %d steps under %s\n",
		timestamp(), s.ID, len(plan), s.StagingRoot)

	for i, step := range plan {
		if s.OnStep != nil {
			s.OnStep(i, len(plan), step)
		}
		if err := ctx.Err(); err != nil {
			return s.failMount(fmt.Errorf("canceled before step %d: %w", i+1, err))
		}
		if err := applyMountStep(ctx, s.run, step); err != nil {
			return s.failMount(err)
		}
		s.mu.Lock()
		s.applied = append(s.applied, step)
		s.mu.Unlock()
		fmt.Fprintf(s.log, "[%s] session %s: mounted %s at %s\n", timestamp(), s.ID, step.Source, step.Target)
	}

	if err := s.validateMountedSystem(); err != nil {
		return s.failMount(err)
	}
	s.propagateResolvConf()

	s.mu.Lock()
	s.state = SessionReady
	s.mu.Unlock()
	fmt.Fprintf(s.log, "[%s] session %s: ready\n", timestamp(), s.ID)
	return nil
}

// failMount rolls back the applied steps, marks the session failed, and
// returns the original error.
func (s *Session) failMount(cause error) error {
	fmt.Fprintf(s.log, "[%s] session %s: mount failed, rolling back: %v\n", timestamp(), s.ID, cause)

	s.mu.Lock()
	applied := append([]MountStep(nil), s.applied...)
	s.mu.Unlock()

	report := s.coordinator.Teardown(context.Background(), s.StagingRoot, applied)
	for _, f := range report.Failed {
		fmt.Fprintf(s.log, "[%s] session %s: rollback left %s mounted: %v\n", timestamp(), s.ID, f.Path, f.Reason)
	}

	s.mu.Lock()
	if report.Clean {
		s.applied = nil
	}
	s.state = SessionFailed
	s.mu.Unlock()
	return cause
}

// validateMountedSystem confirms the staging root contains an installed
// Linux system: enough essential paths and at least one executable shell.
func (s *Session) validateMountedSystem() error {
	found := 0
	for _, p := range essentialPaths {
		if _, err := os.Stat(filepath.Join(s.StagingRoot, p)); err == nil {
			found++
		}
	}
	if found < minEssentialPaths {
		return fmt.Errorf("mounted tree does not look like a Linux system (%d of %d essential paths present)", found, len(essentialPaths))
	}
	if ChrootShell(s.StagingRoot) == "" {
		return fmt.Errorf("mounted tree contains no usable shell")
	}
	return nil
}

// propagateResolvConf copies the live environment's resolv.conf into the
// staging tree so the chroot has working DNS. Best effort: a failure is
// logged, never fatal.
func (s *Session) propagateResolvConf() {
	etc := filepath.Join(s.StagingRoot, "etc")
	if _, err := os.Stat(etc); err != nil {
		return
	}
	data, err := os.ReadFile("/etc/resolv.conf")
	if err != nil {
		return
	}
	if err := os.WriteFile(filepath.Join(etc, "resolv.conf"), data, 0o644); err != nil {
		fmt.Fprintf(s.log, "[%s] session %s: resolv.conf copy failed: %v\n", timestamp(), s.ID, err)
	}
}

// AttachShell records the running interactive shell process and moves
// the session to ShellRunning. ShellExited undoes it when the process
// terminates; any exit code is accepted.
func (s *Session) AttachShell(cmd *exec.Cmd) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionReady {
		return fmt.Errorf("cannot launch a shell from state %q", s.state)
	}
	s.state = SessionShellRunning
	s.shell = cmd
	fmt.Fprintf(s.log, "[%s] session %s: shell attached (pid %d)\n", timestamp(), s.ID, cmd.Process.Pid)
	return nil
}

// ShellExited returns the session to Ready after the shell terminates.
func (s *Session) ShellExited() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionShellRunning {
		s.state = SessionReady
	}
	s.shell = nil
	fmt.Fprintf(s.log, "[%s] session %s: shell exited\n", timestamp(), s.ID)
}

// InterruptShell asks a running shell process to terminate. Used when
// the operator cancels during ShellRunning; teardown still waits for
// ShellExited before proceeding.
func (s *Session) InterruptShell() {
	s.mu.Lock()
	shell := s.shell
	s.mu.Unlock()
	if shell != nil && shell.Process != nil {
		shell.Process.Signal(os.Interrupt)
	}
}

// Teardown reverses every applied step and closes the session. It always
// attempts a full unmount, including when called after a failure whose
// rollback already ran (an idempotent no-op in that case). The staging
// root directory itself is removed only once the coordinator confirms
// zero mounts remain beneath it.
func (s *Session) Teardown(ctx context.Context) *TeardownReport {
	s.mu.Lock()
	if s.state == SessionShellRunning {
		s.mu.Unlock()
		report := &TeardownReport{}
		report.Failed = append(report.Failed, &UnmountError{
			Path:   s.StagingRoot,
			Reason: fmt.Errorf("interactive shell still running"),
		})
		return report
	}
	if s.state == SessionClosed {
		s.mu.Unlock()
		return &TeardownReport{Clean: true}
	}
	s.state = SessionUnmounting
	applied := append([]MountStep(nil), s.applied...)
	s.mu.Unlock()

	fmt.Fprintf(s.log, "[%s] session %s: tearing down %d applied steps\n", timestamp(), s.ID, len(applied))
	report := s.coordinator.Teardown(ctx, s.StagingRoot, applied)

	s.mu.Lock()
	if report.Clean {
		s.applied = nil
		s.state = SessionClosed
	} else {
		s.state = SessionFailed
	}
	s.mu.Unlock()

	if report.Clean {
		os.Remove(s.StagingRoot) // only the now-empty staging directory
		s.registry.release(s)
		fmt.Fprintf(s.log, "[%s] session %s: closed clean\n", timestamp(), s.ID)
	} else {
		for _, f := range report.Failed {
			fmt.Fprintf(s.log, "[%s] session %s: %s left mounted: %v\n", timestamp(), s.ID, f.Path, f.Reason)
		}
	}
	return report
}

// Abandon releases the registry slot of a failed session whose mounts
// are already gone, letting the operator start over.
func (s *Session) Abandon() {
	s.mu.Lock()
	state := s.state
	applied := len(s.applied)
	s.mu.Unlock()
	if state == SessionFailed && applied == 0 {
		s.registry.release(s)
	}
}

func timestamp() string {
	return time.Now().Format(time.RFC3339)
}
