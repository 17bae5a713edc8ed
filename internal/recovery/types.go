// Package recovery implements the recovery session engine.
// This module defines the core data model: disks, partitions, subvolumes,
// and the lsblk JSON structures they are decoded from.
package recovery

import "strings"

// MediaKind classifies the bus/media type of a disk.
type MediaKind int

const (
	MediaFixed     MediaKind = iota // internal SATA/NVMe storage
	MediaRemovable                  // USB and other hotplug media
	MediaVirtual                    // virtio, Xen, and other VM disks
)

// String returns a short human-readable media kind label.
func (k MediaKind) String() string {
	switch k {
	case MediaRemovable:
		return "removable"
	case MediaVirtual:
		return "virtual"
	default:
		return "fixed"
	}
}

// Disk describes one block device discovered by a scan. Disks are built
// fresh on every scan, never persisted, and immutable once constructed.
type Disk struct {
	Device     string // device node path (e.g., "/dev/sda")
	Size       string // human-readable size from lsblk (e.g., "476.9G")
	Model      string // hardware model string, may be empty
	Kind       MediaKind
	Partitions []Partition
}

// Partition describes one partition of a Disk.
type Partition struct {
	Device     string // device node path (e.g., "/dev/sda2")
	Size       string
	Fstype     string // filesystem type as reported by lsblk, "" if unknown
	Label      string
	UUID       string
	MountPoint string // current mountpoint, "" if unmounted
}

// Mountable reports whether the partition's filesystem can be mounted as
// part of a recovery session. Unknown filesystems remain visible in the
// UI but are not selectable.
func (p Partition) Mountable() bool {
	switch strings.ToLower(p.Fstype) {
	case "ext4", "ext3", "ext2", "xfs", "btrfs", "f2fs",
		"vfat", "fat32", "fat16", "ntfs", "exfat", "jfs", "reiserfs":
		return true
	}
	return false
}

// IsBtrfs reports whether the partition carries a BTRFS filesystem and
// therefore needs subvolume resolution before it can be planned.
func (p Partition) IsBtrfs() bool {
	return strings.EqualFold(p.Fstype, "btrfs")
}

// EFICandidate reports whether the partition looks like an EFI system
// partition (vfat family).
func (p Partition) EFICandidate() bool {
	switch strings.ToLower(p.Fstype) {
	case "vfat", "fat32", "fat16", "fat":
		return true
	}
	return false
}

// MountState describes how a partition relates to the active session's
// mount tree.
type MountState int

const (
	StateUnmounted MountState = iota
	StateMountedElsewhere
	StateMountedBySession
)

// MountStateFor classifies the partition's current mount against the
// given staging root.
func (p Partition) MountStateFor(stagingRoot string) MountState {
	if p.MountPoint == "" {
		return StateUnmounted
	}
	if stagingRoot != "" && (p.MountPoint == stagingRoot || strings.HasPrefix(p.MountPoint, stagingRoot+"/")) {
		return StateMountedBySession
	}
	return StateMountedElsewhere
}

// TopLevelSubvolumeID is the implicit top level of every BTRFS
// filesystem. The resolver roots its hierarchy here.
const TopLevelSubvolumeID = 5

// Subvolume is one node of a BTRFS subvolume forest. The hierarchy is
// rooted at the filesystem top level (id 5), whose Path is "".
type Subvolume struct {
	ID       int
	ParentID int    // 0 for the top level itself
	Path     string // path relative to the filesystem top level
	Default  bool   // true if this is the filesystem's default subvolume
	Children []*Subvolume
}

// Name returns the final path element of the subvolume, or "(top level)"
// for the root.
func (s *Subvolume) Name() string {
	if s.ID == TopLevelSubvolumeID {
		return "(top level)"
	}
	if i := strings.LastIndex(s.Path, "/"); i >= 0 {
		return s.Path[i+1:]
	}
	return s.Path
}

// TopLevel reports whether this node is the implicit top level.
func (s *Subvolume) TopLevel() bool { return s.ID == TopLevelSubvolumeID }

// Walk visits the subvolume and all descendants depth-first.
func (s *Subvolume) Walk(fn func(*Subvolume)) {
	fn(s)
	for _, c := range s.Children {
		c.Walk(fn)
	}
}

// lsblkDevice mirrors one entry of lsblk JSON output.
type lsblkDevice struct {
	Name       string        `json:"name"`
	Path       string        `json:"path"`
	Size       string        `json:"size"`
	Type       string        `json:"type"`
	Fstype     string        `json:"fstype"`
	Label      string        `json:"label"`
	UUID       string        `json:"uuid"`
	Model      string        `json:"model"`
	MountPoint string        `json:"mountpoint"`
	Hotplug    bool          `json:"hotplug"`
	Children   []lsblkDevice `json:"children"`
}

// lsblkOutput mirrors the root JSON object produced by lsblk -J.
type lsblkOutput struct {
	BlockDevices []lsblkDevice `json:"blockdevices"`
}

// devicePath returns the node path, falling back to /dev/<name> for
// lsblk builds without the PATH column.
func (d lsblkDevice) devicePath() string {
	if d.Path != "" {
		return d.Path
	}
	return "/dev/" + d.Name
}
