// Package recovery implements the recovery session engine.
// This module executes individual mount steps. Step ordering and
// rollback policy live in the session; this is the thin, typed layer
// over the mount binary.
package recovery

import (
	"context"
	"fmt"
	"os"
)

// applyMountStep creates the step's target directory if needed and
// performs the mount. Errors are returned as *MountError.
func applyMountStep(ctx context.Context, run CommandRunner, step MountStep) error {
	if err := os.MkdirAll(step.Target, 0o755); err != nil {
		return &MountError{Step: step, Reason: fmt.Errorf("create mountpoint: %w", err)}
	}

	args := mountArgs(step)
	if _, err := run.Run(ctx, "mount", args...); err != nil {
		return &MountError{Step: step, Reason: err}
	}
	return nil
}

// mountArgs builds the argument list for one step.
func mountArgs(step MountStep) []string {
	var args []string
	if step.Bind {
		args = append(args, "--bind")
	}
	if step.Fstype != "" {
		args = append(args, "-t", step.Fstype)
	}
	if step.Options != "" {
		args = append(args, "-o", step.Options)
	}
	return append(args, step.Source, step.Target)
}
