// Package recovery implements the recovery session engine.
// This module reverses applied mount plans. Unmounting runs strictly in
// reverse application order because the pseudo-filesystem binds nested
// under the root must be released before the root mount can go. Busy
// mountpoints are retried a bounded number of times with backoff, then
// detached lazily so the call site is never blocked indefinitely.
package recovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// RetryPolicy bounds the unmount retry loop for busy mountpoints.
type RetryPolicy struct {
	Attempts int           // normal unmount attempts before the lazy fallback
	Backoff  time.Duration // pause between attempts
}

// DefaultRetryPolicy covers transient holders such as a just-exited
// shell's lingering working directory.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Backoff: 500 * time.Millisecond}

// TeardownReport is the result of reversing a mount plan.
type TeardownReport struct {
	Released []string        // targets successfully unmounted this run
	Skipped  []string        // targets that were already unmounted
	Failed   []*UnmountError // mountpoints left for manual attention
	Clean    bool            // true when nothing remains mounted under the staging root
}

// Err returns the first failure, or nil for a fully clean teardown.
func (r *TeardownReport) Err() error {
	if len(r.Failed) > 0 {
		return r.Failed[0]
	}
	if !r.Clean {
		return fmt.Errorf("mounts remain under the staging root after teardown")
	}
	return nil
}

// Coordinator releases applied mount steps.
type Coordinator struct {
	run    CommandRunner
	mounts MountTable
	policy RetryPolicy
	sleep  func(time.Duration)
	sync   func()
}

// NewCoordinator returns a Coordinator backed by the real umount binary
// and /proc/mounts, using the default retry policy.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		run:    NewCommandRunner(),
		mounts: procMounts,
		policy: DefaultRetryPolicy,
		sleep:  time.Sleep,
		sync:   func() { unix.Sync() },
	}
}

// NewCoordinatorWith returns a Coordinator with injected backends.
// Used by tests.
func NewCoordinatorWith(run CommandRunner, mounts MountTable, policy RetryPolicy) *Coordinator {
	return &Coordinator{
		run:    run,
		mounts: mounts,
		policy: policy,
		sleep:  func(time.Duration) {},
		sync:   func() {},
	}
}

// Teardown unmounts the applied steps in reverse order and verifies that
// no mount remains under stagingRoot. Already-released targets are
// skipped, which makes repeated teardown calls idempotent. Individual
// failures never abort the sequence: every remaining step still gets its
// chance, and the report collects what is left.
func (c *Coordinator) Teardown(ctx context.Context, stagingRoot string, applied []MountStep) *TeardownReport {
	report := &TeardownReport{}

	// Flush pending writes before releasing anything.
	c.sync()

	for i := len(applied) - 1; i >= 0; i-- {
		target := applied[i].Target
		if !isMounted(c.mounts, target) {
			report.Skipped = append(report.Skipped, target)
			continue
		}
		if err := c.release(ctx, target); err != nil {
			report.Failed = append(report.Failed, err)
			continue
		}
		report.Released = append(report.Released, target)
	}

	// The post-check is the authoritative "clean" signal other
	// components rely on.
	remaining, err := mountsUnder(c.mounts, stagingRoot)
	report.Clean = err == nil && len(remaining) == 0 && len(report.Failed) == 0
	return report
}

// release unmounts a single target: normal attempts with backoff while
// the mount is busy, then one lazy detach. Returns an *UnmountError only
// when even the fallback fails.
func (c *Coordinator) release(ctx context.Context, target string) *UnmountError {
	var lastErr error
	for attempt := 0; attempt < c.policy.Attempts; attempt++ {
		if attempt > 0 {
			c.sleep(c.policy.Backoff)
		}
		_, err := c.run.Run(ctx, "umount", target)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isBusyError(err) {
			break
		}
	}

	// Lazy detach: the mountpoint leaves the namespace immediately and
	// the kernel releases it once the last holder is gone.
	if _, err := c.run.Run(ctx, "umount", "-l", target); err != nil {
		return &UnmountError{Path: target, Reason: fmt.Errorf("lazy unmount failed after %v", lastErr)}
	}
	return nil
}

// isBusyError recognizes the "target is busy" family of umount failures.
// umount exits with status 32 and mentions busy in its diagnostics.
func isBusyError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "busy") || strings.Contains(msg, "exit status 32")
}
