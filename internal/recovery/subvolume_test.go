package recovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func btrfsPartition() Partition {
	return Partition{Device: "/dev/sda2", Fstype: "btrfs", UUID: "uuid-sda2"}
}

func TestResolveBuildsHierarchy(t *testing.T) {
	fs := newFakeSystem()
	fs.subvolList = "ID 256 gen 119 parent 5 top level 5 path @\n" +
		"ID 257 gen 119 parent 5 top level 5 path @home\n" +
		"ID 260 gen 120 parent 256 top level 256 path @/.snapshots\n"
	fs.subvolDefault = "ID 256 gen 119 top level 5 path @"

	r := NewResolverWith(fs.runner(), t.TempDir())
	root, err := r.Resolve(context.Background(), btrfsPartition())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if !root.TopLevel() {
		t.Fatalf("hierarchy root is %d, want top level", root.ID)
	}
	if len(root.Children) != 2 {
		t.Fatalf("root has %d children, want 2", len(root.Children))
	}
	at := root.Children[0]
	if at.Path != "@" || !at.Default {
		t.Errorf("first child = %+v, want default @", at)
	}
	if len(at.Children) != 1 || at.Children[0].Path != "@/.snapshots" {
		t.Errorf("@ children = %+v, want @/.snapshots", at.Children)
	}

	// The transient mount must be released.
	if got := fs.callsMatching("umount"); len(got) == 0 {
		t.Errorf("transient mount was never released")
	}
}

func TestResolveZeroSubvolumes(t *testing.T) {
	fs := newFakeSystem()
	fs.subvolList = ""
	fs.subvolDefault = "ID 5 gen 7 top level 5 path <FS_TREE>"

	r := NewResolverWith(fs.runner(), t.TempDir())
	root, err := r.Resolve(context.Background(), btrfsPartition())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(root.Children) != 0 {
		t.Errorf("got %d children, want none", len(root.Children))
	}
	if !root.Default {
		t.Errorf("top level should be the default subvolume")
	}
}

func TestResolveMalformedMetadata(t *testing.T) {
	tests := []struct {
		name string
		list string
	}{
		{"unknown parent", "ID 256 gen 1 parent 999 top level 5 path @\n"},
		{"duplicate id", "ID 256 gen 1 parent 5 top level 5 path @\nID 256 gen 1 parent 5 top level 5 path @dup\n"},
		{"parent cycle", "ID 256 gen 1 parent 257 top level 5 path a\nID 257 gen 1 parent 256 top level 5 path b\n"},
		{"garbled line", "ID x gen parent path\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newFakeSystem()
			fs.subvolList = tt.list
			fs.subvolDefault = "ID 5 gen 1 top level 5 path <FS_TREE>"

			r := NewResolverWith(fs.runner(), t.TempDir())
			_, err := r.Resolve(context.Background(), btrfsPartition())
			var serr *SubvolumeDiscoveryError
			if !errors.As(err, &serr) {
				t.Fatalf("got %T (%v), want *SubvolumeDiscoveryError", err, err)
			}
			// Resolution must still release the transient mount.
			if got := fs.callsMatching("umount"); len(got) == 0 {
				t.Errorf("transient mount was never released on the error path")
			}
		})
	}
}

func TestResolveMountFailure(t *testing.T) {
	run := RunnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if name == "mount" {
			return nil, fmt.Errorf("mount: no such device")
		}
		t.Errorf("unexpected command %s after failed mount", name)
		return nil, nil
	})

	r := NewResolverWith(run, t.TempDir())
	_, err := r.Resolve(context.Background(), btrfsPartition())
	var serr *SubvolumeDiscoveryError
	if !errors.As(err, &serr) {
		t.Fatalf("got %T (%v), want *SubvolumeDiscoveryError", err, err)
	}
}

func TestResolveRejectsNonBtrfs(t *testing.T) {
	r := NewResolverWith(newFakeSystem().runner(), t.TempDir())
	_, err := r.Resolve(context.Background(), Partition{Device: "/dev/sda3", Fstype: "ext4"})
	if err == nil || !strings.Contains(err.Error(), "not a btrfs") {
		t.Fatalf("got %v, want not-a-btrfs error", err)
	}
}

func TestParseDefaultSubvolume(t *testing.T) {
	id, ok := parseDefaultSubvolume("ID 256 gen 119 top level 5 path @")
	if !ok || id != 256 {
		t.Errorf("got (%d, %v), want (256, true)", id, ok)
	}
	if _, ok := parseDefaultSubvolume("no id here"); ok {
		t.Errorf("expected parse failure")
	}
}
