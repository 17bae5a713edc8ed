// Package recovery implements the recovery session engine.
// This module handles block device discovery and enumeration using lsblk.
package recovery

import (
	"context"
	"encoding/json"
	"strings"
)

// liveMediaMounts are the mountpoints live distributions use for the
// boot medium. The medium is identified by the mount source found here,
// never by a fixed device-name allowlist, because device naming is not
// stable across hardware and virtualization backends.
var liveMediaMounts = []string{
	"/run/live/medium",
	"/run/archiso/bootmnt",
	"/run/initramfs/live",
	"/run/miso/bootmnt",
	"/cdrom",
}

// Scanner enumerates block devices and partitions. Scanning is
// side-effect-free: it only issues read-only metadata queries.
type Scanner struct {
	run    CommandRunner
	mounts MountTable
}

// NewScanner returns a Scanner backed by the real lsblk binary and
// /proc/mounts.
func NewScanner() *Scanner {
	return &Scanner{run: NewCommandRunner(), mounts: procMounts}
}

// NewScannerWith returns a Scanner with injected command and mount-table
// backends. Used by tests.
func NewScannerWith(run CommandRunner, mounts MountTable) *Scanner {
	return &Scanner{run: run, mounts: mounts}
}

// Scan enumerates all disks and their partitions, excluding loop and ram
// devices and the live medium the rescue environment itself booted from.
// Partitions with unrecognized filesystems are still listed so the
// operator retains full visibility; Partition.Mountable gates selection.
func (s *Scanner) Scan(ctx context.Context) ([]Disk, error) {
	devices, err := s.enumerate(ctx)
	if err != nil {
		return nil, err
	}

	liveDevice := s.liveMediumDevice()

	disks := make([]Disk, 0, len(devices))
	for _, dev := range devices {
		if dev.Type != "disk" {
			continue
		}
		if isPseudoDevice(dev.Name) {
			continue
		}
		if liveDevice != "" && diskContains(dev, liveDevice) {
			continue
		}

		disk := Disk{
			Device: dev.devicePath(),
			Size:   dev.Size,
			Model:  strings.TrimSpace(dev.Model),
			Kind:   classifyMedia(dev),
		}
		for _, child := range dev.Children {
			if child.Type != "part" {
				continue
			}
			disk.Partitions = append(disk.Partitions, Partition{
				Device:     child.devicePath(),
				Size:       child.Size,
				Fstype:     child.Fstype,
				Label:      child.Label,
				UUID:       child.UUID,
				MountPoint: child.MountPoint,
			})
		}
		disks = append(disks, disk)
	}

	return disks, nil
}

// enumerate queries lsblk for the device tree. JSON output is preferred;
// when the installed lsblk predates -J or emits output we cannot parse,
// the raw list format is queried instead and the disk/partition
// hierarchy rebuilt from line order.
func (s *Scanner) enumerate(ctx context.Context) ([]lsblkDevice, error) {
	out, err := s.run.Run(ctx, "lsblk",
		"-J", "-o", "NAME,PATH,SIZE,TYPE,FSTYPE,LABEL,UUID,MODEL,MOUNTPOINT,HOTPLUG")
	if err == nil {
		var listing lsblkOutput
		jsonErr := json.Unmarshal(out, &listing)
		if jsonErr == nil {
			return listing.BlockDevices, nil
		}
		err = jsonErr
	}

	raw, rawErr := s.run.Run(ctx, "lsblk",
		"-rnp", "-o", "NAME,SIZE,TYPE,FSTYPE,LABEL,UUID,MOUNTPOINT,HOTPLUG")
	if rawErr != nil {
		return nil, &DiscoveryError{Op: "lsblk", Err: err}
	}
	return parseRawListing(string(raw)), nil
}

// parseRawListing decodes `lsblk -rnp` output. Raw format is one device
// per line with space-separated columns, empty columns preserved and
// unsafe characters hex-escaped, so a plain split is reliable. lsblk
// lists each partition immediately after its parent disk.
func parseRawListing(out string) []lsblkDevice {
	var devices []lsblkDevice
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.Split(line, " ")
		field := func(i int) string {
			if i < len(cols) {
				return unescapeRawField(cols[i])
			}
			return ""
		}
		dev := lsblkDevice{
			Path:       field(0),
			Size:       field(1),
			Type:       field(2),
			Fstype:     field(3),
			Label:      field(4),
			UUID:       field(5),
			MountPoint: field(6),
			Hotplug:    field(7) == "1",
		}
		dev.Name = strings.TrimPrefix(dev.Path, "/dev/")
		switch dev.Type {
		case "disk":
			devices = append(devices, dev)
		case "part":
			if len(devices) > 0 {
				parent := &devices[len(devices)-1]
				parent.Children = append(parent.Children, dev)
			}
		}
	}
	return devices
}

// unescapeRawField reverses the \xNN escaping lsblk raw output applies
// to spaces and other shell-unsafe bytes.
func unescapeRawField(s string) string {
	if !strings.Contains(s, `\x`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) && s[i+1] == 'x' {
			hi, okHi := unhex(s[i+2])
			lo, okLo := unhex(s[i+3])
			if okHi && okLo {
				b.WriteByte(hi<<4 | lo)
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// liveMediumDevice returns the device node backing the running live
// medium, or "" when none is identifiable (e.g., netboot or a sandboxed
// test environment).
func (s *Scanner) liveMediumDevice() string {
	entries, err := s.mounts()
	if err != nil {
		return ""
	}
	for _, e := range entries {
		for _, live := range liveMediaMounts {
			if e.Target == live && strings.HasPrefix(e.Source, "/dev/") {
				return e.Source
			}
		}
	}
	return ""
}

// diskContains reports whether the disk or any of its partitions is the
// given device node.
func diskContains(dev lsblkDevice, device string) bool {
	if dev.devicePath() == device {
		return true
	}
	for _, child := range dev.Children {
		if diskContains(child, device) {
			return true
		}
	}
	return false
}

// isPseudoDevice filters loop, ram, and zram devices that lsblk may
// still report as disks.
func isPseudoDevice(name string) bool {
	return strings.HasPrefix(name, "loop") ||
		strings.HasPrefix(name, "ram") ||
		strings.HasPrefix(name, "zram")
}

// classifyMedia derives the media kind from lsblk attributes: hotplug
// devices are removable, virtio/Xen naming indicates a VM disk,
// everything else is fixed storage.
func classifyMedia(dev lsblkDevice) MediaKind {
	if dev.Hotplug {
		return MediaRemovable
	}
	if strings.HasPrefix(dev.Name, "vd") || strings.HasPrefix(dev.Name, "xvd") {
		return MediaVirtual
	}
	return MediaFixed
}
