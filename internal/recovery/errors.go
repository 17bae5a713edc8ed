// Package recovery implements the recovery session engine: disk and
// partition discovery, BTRFS subvolume resolution, mount planning, the
// chroot session lifecycle, and teardown coordination.
// This module defines the error taxonomy shared by all engine components.
package recovery

import "fmt"

// DiscoveryError reports that block device enumeration failed.
// Recoverable: the operator can retry the scan.
type DiscoveryError struct {
	Op  string // operation that failed (e.g., "lsblk")
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("device discovery failed (%s): %v", e.Op, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// SubvolumeDiscoveryError reports that BTRFS subvolume metadata could not
// be read or parsed for a partition. The selection is rejected; no partial
// hierarchy is ever returned alongside this error.
type SubvolumeDiscoveryError struct {
	Device string
	Err    error
}

func (e *SubvolumeDiscoveryError) Error() string {
	return fmt.Sprintf("subvolume discovery failed on %s: %v", e.Device, e.Err)
}

func (e *SubvolumeDiscoveryError) Unwrap() error { return e.Err }

// MountError reports that a single plan step failed to apply. By the time
// the caller sees this error the session has already rolled back every
// previously applied step.
type MountError struct {
	Step   MountStep
	Reason error
}

func (e *MountError) Error() string {
	return fmt.Sprintf("mount %s at %s failed: %v", e.Step.Source, e.Step.Target, e.Reason)
}

func (e *MountError) Unwrap() error { return e.Reason }

// UnmountError reports a mountpoint that could not be released even after
// retries and the lazy-unmount fallback. It is surfaced to the operator
// but never crashes the process; the path is left flagged for manual
// attention.
type UnmountError struct {
	Path   string
	Reason error
}

func (e *UnmountError) Error() string {
	return fmt.Sprintf("unmount of %s failed: %v", e.Path, e.Reason)
}

func (e *UnmountError) Unwrap() error { return e.Reason }

// SessionConflictError reports an attempt to start a recovery session
// while another is still active. The existing session is left untouched.
type SessionConflictError struct {
	ActiveID string
	State    SessionState
}

func (e *SessionConflictError) Error() string {
	return fmt.Sprintf("a recovery session is already active (id %s, state %s)", e.ActiveID, e.State)
}
