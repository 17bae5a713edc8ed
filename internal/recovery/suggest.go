// Package recovery implements the recovery session engine.
// This module suggests mount targets for partitions and subvolumes so
// the UI can pre-select sensible auxiliary mounts. Suggestions are
// heuristics only; the operator always has the final word.
package recovery

import (
	"path"
	"strings"
)

// subvolumeTargets maps conventional BTRFS subvolume names to the mount
// targets distributions use them for.
var subvolumeTargets = map[string]string{
	"@":     "/",
	"@root": "/",
	"@home": "/home",
	"@var":  "/var",
	"@tmp":  "/tmp",
	"@opt":  "/opt",
	"@srv":  "/srv",
	"@usr":  "/usr",
	"@boot": "/boot",
	"root":  "/",
	"home":  "/home",
	"var":   "/var",
	"tmp":   "/tmp",
}

// SuggestSubvolumeTarget returns the conventional mount target for a
// subvolume path, or "" when the name suggests nothing. Nested paths
// are matched by their final element so "@/home" still maps to /home,
// while snapshot trees suggest nothing.
func SuggestSubvolumeTarget(subvolPath string) string {
	if target, ok := subvolumeTargets[subvolPath]; ok {
		return target
	}
	base := strings.ToLower(path.Base(subvolPath))
	if target, ok := subvolumeTargets[base]; ok {
		return target
	}
	return ""
}

// SuggestPartitionTarget proposes a mount target for a partition based
// on filesystem type, label, and any current mountpoint. The used set
// tracks targets already suggested for sibling partitions so no target
// is proposed twice; callers add each accepted suggestion to it.
// Returns "" when nothing sensible can be proposed.
func SuggestPartitionTarget(p Partition, used map[string]bool) string {
	propose := func(target string) string {
		if target != "" && !used[target] {
			return target
		}
		return ""
	}

	if p.EFICandidate() {
		return propose("/boot/efi")
	}

	if p.IsBtrfs() {
		// The subvolume picker refines this; at the partition level a
		// BTRFS filesystem is a root candidate.
		return propose("/")
	}

	switch strings.ToLower(p.Fstype) {
	case "ext2", "ext3", "ext4", "xfs", "jfs", "reiserfs", "f2fs":
	default:
		return ""
	}

	label := strings.ToLower(p.Label)
	switch {
	case strings.Contains(label, "root") || strings.Contains(label, "system"):
		return propose("/")
	case strings.Contains(label, "home"):
		return propose("/home")
	case strings.Contains(label, "boot") && !strings.Contains(label, "efi"):
		return propose("/boot")
	}

	switch p.MountPoint {
	case "/", "/home", "/boot":
		return propose(p.MountPoint)
	}

	// Priority assignment for unlabeled Linux filesystems.
	if t := propose("/"); t != "" {
		return t
	}
	if t := propose("/home"); t != "" {
		return t
	}
	return ""
}
