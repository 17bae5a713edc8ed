// Package recovery implements the recovery session engine.
// This module exposes the engine's blocking operations as Bubble Tea
// commands so the UI thread stays responsive: each command runs on a
// worker and reports completion back to the controller as a typed
// message.
package recovery

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// DisksScanned reports the result of a device scan.
type DisksScanned struct {
	Disks []Disk
	Err   error // *DiscoveryError on failure
}

// SubvolumesResolved reports the result of resolving one BTRFS
// partition's hierarchy.
type SubvolumesResolved struct {
	Partition Partition
	Root      *Subvolume
	Err       error // *SubvolumeDiscoveryError on failure
}

// PartitionEditorClosed reports that the external disk management tool
// exited. Any previously scanned partition state is stale afterward; the
// controller rescans before reuse.
type PartitionEditorClosed struct {
	Err error
}

const commandTimeout = 30 * time.Second

// ScanCmd enumerates disks on a worker and posts DisksScanned.
func ScanCmd(s *Scanner) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		disks, err := s.Scan(ctx)
		return DisksScanned{Disks: disks, Err: err}
	}
}

// ResolveCmd resolves a BTRFS partition's subvolumes on a worker and
// posts SubvolumesResolved.
func ResolveCmd(r *Resolver, part Partition) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		root, err := r.Resolve(ctx, part)
		return SubvolumesResolved{Partition: part, Root: root, Err: err}
	}
}

// partitionEditors is the launch preference for external partition
// editing tools.
var partitionEditors = []string{"gparted", "partitionmanager", "gnome-disks"}

// PartitionEditorCmd launches the first available disk management tool
// and waits for it to exit, then posts PartitionEditorClosed.
func PartitionEditorCmd(run CommandRunner, lookPath func(string) (string, error)) tea.Cmd {
	return func() tea.Msg {
		for _, editor := range partitionEditors {
			if _, err := lookPath(editor); err != nil {
				continue
			}
			_, err := run.Run(context.Background(), editor)
			return PartitionEditorClosed{Err: err}
		}
		return PartitionEditorClosed{Err: &DiscoveryError{Op: "partition editor", Err: errNoEditor}}
	}
}

var errNoEditor = errNotFound("no partition editor installed (tried gparted, partitionmanager, gnome-disks)")

type errNotFound string

func (e errNotFound) Error() string { return string(e) }
