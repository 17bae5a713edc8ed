package recovery

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// makeLinuxTree builds a staging directory that passes the
// mounted-system validation.
func makeLinuxTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, dir := range []string{"bin", "usr/bin", "lib", "usr/lib", "etc"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	for _, file := range []string{"etc/fstab", "etc/passwd"} {
		if err := os.WriteFile(filepath.Join(root, file), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "bin/bash"), []byte("#!"), 0o755); err != nil {
		t.Fatal(err)
	}
	return root
}

func testRegistry(fs *fakeSystem) *Registry {
	return &Registry{
		Run:         fs.runner(),
		Coordinator: NewCoordinatorWith(fs.runner(), fs.table(), DefaultRetryPolicy),
		Log:         io.Discard,
	}
}

func planFor(t *testing.T, root string) []MountStep {
	t.Helper()
	steps, err := BuildPlan(root,
		RootSelection{Partition: Partition{Device: "/dev/sda2", Fstype: "ext4"}},
		[]AuxSelection{{Partition: Partition{Device: "/dev/sda3", Fstype: "ext4"}, Target: "/home"}})
	if err != nil {
		t.Fatal(err)
	}
	return steps
}

func TestSessionMountThenTeardown(t *testing.T) {
	fs := newFakeSystem()
	root := makeLinuxTree(t)
	reg := testRegistry(fs)

	s, err := reg.Begin(root, planFor(t, root))
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := s.Mount(context.Background()); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if s.State() != SessionReady {
		t.Fatalf("state = %v, want ready", s.State())
	}
	if got := len(s.AppliedSteps()); got != 6 {
		t.Fatalf("applied %d steps, want 6", got)
	}

	report := s.Teardown(context.Background())
	if err := report.Err(); err != nil {
		t.Fatalf("Teardown: %v", err)
	}
	if s.State() != SessionClosed {
		t.Errorf("state = %v, want closed", s.State())
	}

	// Round-trip closure: nothing remains mounted under the staging root.
	remaining, _ := mountsUnder(fs.table(), root)
	if len(remaining) != 0 {
		t.Errorf("mounts remain after teardown: %+v", remaining)
	}
	// The registry slot is free again.
	if reg.Active() != nil {
		t.Errorf("registry still holds a session after close")
	}
}

func TestSessionMountFailureRollsBack(t *testing.T) {
	fs := newFakeSystem()
	root := makeLinuxTree(t)
	plan := planFor(t, root)

	// Fail the third step (/proc bind): steps 1..2 must be unmounted,
	// steps after the failure never attempted.
	fs.failMountTarget = plan[2].Target

	reg := testRegistry(fs)
	s, err := reg.Begin(root, plan)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	err = s.Mount(context.Background())
	var merr *MountError
	if !errors.As(err, &merr) {
		t.Fatalf("got %T (%v), want *MountError", err, err)
	}
	if s.State() != SessionFailed {
		t.Errorf("state = %v, want failed", s.State())
	}

	if calls := fs.callsMatching(plan[3].Target); len(calls) != 0 {
		t.Errorf("step after the failure was attempted: %v", calls)
	}
	remaining, _ := mountsUnder(fs.table(), root)
	if len(remaining) != 0 {
		t.Errorf("rollback left mounts: %+v", remaining)
	}

	// Teardown from the already-rolled-back failed state is a no-op.
	report := s.Teardown(context.Background())
	if err := report.Err(); err != nil {
		t.Fatalf("teardown after rollback: %v", err)
	}
}

func TestSessionValidationFailureRollsBack(t *testing.T) {
	fs := newFakeSystem()
	root := t.TempDir() // empty: not a Linux tree
	reg := testRegistry(fs)

	s, err := reg.Begin(root, planFor(t, root))
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := s.Mount(context.Background()); err == nil {
		t.Fatalf("expected validation failure for an empty tree")
	}
	if s.State() != SessionFailed {
		t.Errorf("state = %v, want failed", s.State())
	}
	remaining, _ := mountsUnder(fs.table(), root)
	if len(remaining) != 0 {
		t.Errorf("rollback left mounts: %+v", remaining)
	}
}

func TestSecondSessionIsRejected(t *testing.T) {
	fs := newFakeSystem()
	root := makeLinuxTree(t)
	reg := testRegistry(fs)

	first, err := reg.Begin(root, planFor(t, root))
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := first.Mount(context.Background()); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	_, err = reg.Begin(root, planFor(t, root))
	var cerr *SessionConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("got %T (%v), want *SessionConflictError", err, err)
	}
	if cerr.ActiveID != first.ID {
		t.Errorf("conflict names session %s, want %s", cerr.ActiveID, first.ID)
	}
	// The first session is untouched.
	if first.State() != SessionReady {
		t.Errorf("first session state = %v, want ready", first.State())
	}
	if got := len(first.AppliedSteps()); got != 6 {
		t.Errorf("first session applied steps changed: %d", got)
	}
}

func TestSessionTeardownTwice(t *testing.T) {
	fs := newFakeSystem()
	root := makeLinuxTree(t)
	reg := testRegistry(fs)

	s, _ := reg.Begin(root, planFor(t, root))
	if err := s.Mount(context.Background()); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if err := s.Teardown(context.Background()).Err(); err != nil {
		t.Fatalf("first teardown: %v", err)
	}
	if err := s.Teardown(context.Background()).Err(); err != nil {
		t.Fatalf("second teardown must be a clean no-op, got %v", err)
	}
}

func TestSessionShellInterruptThenTeardown(t *testing.T) {
	fs := newFakeSystem()
	root := makeLinuxTree(t)
	reg := testRegistry(fs)

	s, err := reg.Begin(root, planFor(t, root))
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := s.Mount(context.Background()); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	// Stand in for the terminal process hosting the chroot shell.
	shell := exec.Command("sleep", "60")
	if err := shell.Start(); err != nil {
		t.Fatalf("start shell stand-in: %v", err)
	}
	if err := s.AttachShell(shell); err != nil {
		t.Fatalf("AttachShell: %v", err)
	}

	// Teardown is refused while the shell runs.
	report := s.Teardown(context.Background())
	if report.Err() == nil {
		t.Fatalf("teardown with a running shell must fail")
	}
	if s.State() != SessionShellRunning {
		t.Fatalf("state = %v, want shell-running after refused teardown", s.State())
	}

	// Operator cancels: the shell is signaled, observed to exit, and only
	// then does teardown proceed.
	s.InterruptShell()
	if err := shell.Wait(); err == nil {
		t.Fatalf("shell stand-in should have died from the signal")
	}
	s.ShellExited()
	if s.State() != SessionReady {
		t.Fatalf("state = %v, want ready after shell exit", s.State())
	}

	if err := s.Teardown(context.Background()).Err(); err != nil {
		t.Fatalf("teardown after interrupt: %v", err)
	}
	if s.State() != SessionClosed {
		t.Errorf("state = %v, want closed", s.State())
	}
	remaining, _ := mountsUnder(fs.table(), root)
	if len(remaining) != 0 {
		t.Errorf("mounts remain after teardown: %+v", remaining)
	}
}

func TestSessionCancelDuringMount(t *testing.T) {
	fs := newFakeSystem()
	root := makeLinuxTree(t)
	reg := testRegistry(fs)

	s, err := reg.Begin(root, planFor(t, root))
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	applied := 0
	s.OnStep = func(index, total int, step MountStep) {
		applied++
		if index == 2 {
			cancel() // operator cancels mid-plan
		}
	}

	if err := s.Mount(ctx); err == nil {
		t.Fatalf("expected cancellation error")
	}
	if s.State() != SessionFailed {
		t.Errorf("state = %v, want failed", s.State())
	}
	remaining, _ := mountsUnder(fs.table(), root)
	if len(remaining) != 0 {
		t.Errorf("cancellation left mounts: %+v", remaining)
	}
}
