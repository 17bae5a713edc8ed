package recovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// fakeSystem scripts external commands and tracks a simulated mount
// table, so engine tests run without a real block device.
type fakeSystem struct {
	mu      sync.Mutex
	mounted map[string]string // target -> source
	calls   []string          // every command line issued, in order

	// lsblkJSON is returned for lsblk invocations.
	lsblkJSON string
	// subvolList and subvolDefault are returned for the btrfs commands.
	subvolList    string
	subvolDefault string

	// failMountTarget makes the mount of that target fail.
	failMountTarget string
	// busyTargets maps a target to the number of umount attempts that
	// report busy before succeeding.
	busyTargets map[string]int
	// stuckTargets always fail to unmount, even lazily.
	stuckTargets map[string]bool
}

func newFakeSystem() *fakeSystem {
	return &fakeSystem{
		mounted:      map[string]string{},
		busyTargets:  map[string]int{},
		stuckTargets: map[string]bool{},
	}
}

func (f *fakeSystem) runner() CommandRunner {
	return RunnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.calls = append(f.calls, name+" "+strings.Join(args, " "))

		switch name {
		case "lsblk":
			return []byte(f.lsblkJSON), nil
		case "btrfs":
			if len(args) >= 2 && args[1] == "list" {
				return []byte(f.subvolList), nil
			}
			return []byte(f.subvolDefault), nil
		case "mount":
			target := args[len(args)-1]
			source := args[len(args)-2]
			if target == f.failMountTarget {
				return nil, fmt.Errorf("mount: %s: wrong fs type, bad option, bad superblock", target)
			}
			f.mounted[target] = source
			return nil, nil
		case "umount":
			lazy := len(args) == 2 && args[0] == "-l"
			target := args[len(args)-1]
			if f.stuckTargets[target] {
				return nil, fmt.Errorf("umount: %s: target is busy", target)
			}
			if !lazy && f.busyTargets[target] > 0 {
				f.busyTargets[target]--
				return nil, fmt.Errorf("umount: %s: target is busy (exit status 32)", target)
			}
			delete(f.mounted, target)
			return nil, nil
		}
		return nil, fmt.Errorf("unexpected command %s", name)
	})
}

func (f *fakeSystem) table() MountTable {
	return func() ([]mountEntry, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var entries []mountEntry
		for target, source := range f.mounted {
			entries = append(entries, mountEntry{Source: source, Target: target})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Target < entries[j].Target })
		return entries, nil
	}
}

// premount seeds the simulated mount table.
func (f *fakeSystem) premount(source, target string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mounted[target] = source
}

// callsMatching returns the issued command lines containing the
// substring, in order.
func (f *fakeSystem) callsMatching(substr string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if strings.Contains(c, substr) {
			out = append(out, c)
		}
	}
	return out
}
