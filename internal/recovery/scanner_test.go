package recovery

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

const scanFixture = `{
  "blockdevices": [
    {
      "name": "sda", "path": "/dev/sda", "size": "476.9G", "type": "disk",
      "model": "Samsung SSD 980", "hotplug": false,
      "children": [
        {"name": "sda1", "path": "/dev/sda1", "size": "512M", "type": "part", "fstype": "vfat", "label": "EFI", "uuid": "AAAA-0001"},
        {"name": "sda2", "path": "/dev/sda2", "size": "476.4G", "type": "part", "fstype": "btrfs", "label": "system", "uuid": "uuid-sda2"}
      ]
    },
    {
      "name": "sdb", "path": "/dev/sdb", "size": "14.9G", "type": "disk",
      "model": "USB Flash", "hotplug": true,
      "children": [
        {"name": "sdb1", "path": "/dev/sdb1", "size": "14.9G", "type": "part", "fstype": "iso9660", "label": "LIVE", "uuid": "uuid-sdb1", "mountpoint": "/run/live/medium"}
      ]
    },
    {
      "name": "vda", "path": "/dev/vda", "size": "20G", "type": "disk",
      "children": [
        {"name": "vda1", "path": "/dev/vda1", "size": "20G", "type": "part", "fstype": "ext4", "uuid": "uuid-vda1"},
        {"name": "vda2", "path": "/dev/vda2", "size": "1G", "type": "part", "fstype": "crypto_LUKS", "uuid": "uuid-vda2"}
      ]
    },
    {"name": "loop0", "path": "/dev/loop0", "size": "2.1G", "type": "loop"},
    {"name": "zram0", "path": "/dev/zram0", "size": "4G", "type": "disk"}
  ]
}`

func TestScanEnumeratesDisks(t *testing.T) {
	fs := newFakeSystem()
	fs.lsblkJSON = scanFixture
	fs.premount("/dev/sdb1", "/run/live/medium")

	scanner := NewScannerWith(fs.runner(), fs.table())
	disks, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	// sdb carries the live medium, loop0 is not a disk, zram0 is a
	// pseudo device: only sda and vda remain.
	if len(disks) != 2 {
		t.Fatalf("got %d disks, want 2: %+v", len(disks), disks)
	}

	sda := disks[0]
	if sda.Device != "/dev/sda" || sda.Model != "Samsung SSD 980" || sda.Kind != MediaFixed {
		t.Errorf("unexpected sda: %+v", sda)
	}
	if len(sda.Partitions) != 2 {
		t.Fatalf("sda: got %d partitions, want 2", len(sda.Partitions))
	}
	if !sda.Partitions[0].EFICandidate() {
		t.Errorf("sda1 should be an EFI candidate")
	}
	if !sda.Partitions[1].IsBtrfs() {
		t.Errorf("sda2 should be btrfs")
	}

	vda := disks[1]
	if vda.Kind != MediaVirtual {
		t.Errorf("vda kind = %v, want MediaVirtual", vda.Kind)
	}
	// Unrecognized filesystems stay visible but non-selectable.
	luks := vda.Partitions[1]
	if luks.Mountable() {
		t.Errorf("crypto_LUKS partition must not be mountable")
	}
}

// scanRawFixture is `lsblk -rnp` output: one device per line, columns
// NAME SIZE TYPE FSTYPE LABEL UUID MOUNTPOINT HOTPLUG, empty columns
// preserved, spaces hex-escaped.
const scanRawFixture = "/dev/sda 476.9G disk     0\n" +
	"/dev/sda1 512M part vfat EFI AAAA-0001  0\n" +
	"/dev/sda2 476.4G part btrfs Old\\x20Data uuid-sda2  0\n" +
	"/dev/sdb 14.9G disk     1\n" +
	"/dev/sdb1 14.9G part ext4  uuid-sdb1 /mnt/data 1\n"

func assertRawScan(t *testing.T, disks []Disk) {
	t.Helper()
	if len(disks) != 2 {
		t.Fatalf("got %d disks, want 2: %+v", len(disks), disks)
	}

	sda := disks[0]
	if sda.Device != "/dev/sda" || sda.Kind != MediaFixed {
		t.Errorf("unexpected sda: %+v", sda)
	}
	if len(sda.Partitions) != 2 {
		t.Fatalf("sda: got %d partitions, want 2", len(sda.Partitions))
	}
	if got := sda.Partitions[1].Label; got != "Old Data" {
		t.Errorf("sda2 label = %q, want %q", got, "Old Data")
	}
	if !sda.Partitions[1].IsBtrfs() {
		t.Errorf("sda2 should be btrfs")
	}

	sdb := disks[1]
	if sdb.Kind != MediaRemovable {
		t.Errorf("sdb kind = %v, want MediaRemovable", sdb.Kind)
	}
	if len(sdb.Partitions) != 1 || sdb.Partitions[0].MountPoint != "/mnt/data" {
		t.Errorf("unexpected sdb partitions: %+v", sdb.Partitions)
	}
}

func TestScanTextFallbackWhenJSONUnavailable(t *testing.T) {
	run := RunnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if len(args) > 0 && args[0] == "-J" {
			return nil, fmt.Errorf("lsblk: invalid option -- 'J'")
		}
		return []byte(scanRawFixture), nil
	})
	scanner := NewScannerWith(run, func() ([]mountEntry, error) { return nil, nil })

	disks, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	assertRawScan(t, disks)
}

func TestScanTextFallbackOnUnparsableJSON(t *testing.T) {
	run := RunnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if len(args) > 0 && args[0] == "-J" {
			return []byte("lsblk from util-linux 2.20.1\n"), nil
		}
		return []byte(scanRawFixture), nil
	})
	scanner := NewScannerWith(run, func() ([]mountEntry, error) { return nil, nil })

	disks, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	assertRawScan(t, disks)
}

func TestScanFailureIsDiscoveryError(t *testing.T) {
	run := RunnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, fmt.Errorf("lsblk: not permitted")
	})
	scanner := NewScannerWith(run, func() ([]mountEntry, error) { return nil, nil })

	_, err := scanner.Scan(context.Background())
	var derr *DiscoveryError
	if !errors.As(err, &derr) {
		t.Fatalf("got %T (%v), want *DiscoveryError", err, err)
	}
}

func TestScanKeepsLiveDiskWhenMediumUnidentifiable(t *testing.T) {
	fs := newFakeSystem()
	fs.lsblkJSON = scanFixture
	// No live marker mounted: nothing to exclude by source.

	scanner := NewScannerWith(fs.runner(), fs.table())
	disks, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(disks) != 3 {
		t.Fatalf("got %d disks, want 3 when no live medium is identifiable", len(disks))
	}
}

func TestMountStateFor(t *testing.T) {
	tests := []struct {
		name       string
		mountPoint string
		want       MountState
	}{
		{"unmounted", "", StateUnmounted},
		{"elsewhere", "/mnt/data", StateMountedElsewhere},
		{"session root", "/run/rescue/root", StateMountedBySession},
		{"under session root", "/run/rescue/root/home", StateMountedBySession},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Partition{MountPoint: tt.mountPoint}
			if got := p.MountStateFor("/run/rescue/root"); got != tt.want {
				t.Errorf("MountStateFor = %v, want %v", got, tt.want)
			}
		})
	}
}
