// Package recovery implements the recovery session engine.
// This module resolves the subvolume hierarchy of a BTRFS partition.
// Resolution needs a transient read-only mount of the partition at a
// scratch point; the resolver owns that mount and guarantees it is
// released before returning, on both success and failure paths.
package recovery

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Resolver enumerates BTRFS subvolumes and reconstructs their
// parent/child hierarchy.
type Resolver struct {
	run    CommandRunner
	tmpDir string // parent directory for scratch mountpoints
}

// NewResolver returns a Resolver backed by the real mount and btrfs
// binaries.
func NewResolver() *Resolver {
	return &Resolver{run: NewCommandRunner(), tmpDir: os.TempDir()}
}

// NewResolverWith returns a Resolver with an injected command backend.
// Used by tests.
func NewResolverWith(run CommandRunner, tmpDir string) *Resolver {
	return &Resolver{run: run, tmpDir: tmpDir}
}

// Resolve mounts the partition at a scratch point, lists its subvolumes,
// and returns the hierarchy rooted at the filesystem top level (id 5).
// A filesystem with zero subvolumes yields a hierarchy containing only
// the root. On any failure the result is nil and a
// *SubvolumeDiscoveryError, never a partially built tree.
func (r *Resolver) Resolve(ctx context.Context, part Partition) (*Subvolume, error) {
	if !part.IsBtrfs() {
		return nil, &SubvolumeDiscoveryError{Device: part.Device, Err: fmt.Errorf("not a btrfs filesystem: %q", part.Fstype)}
	}

	scratch, err := os.MkdirTemp(r.tmpDir, "rescue-subvol-*")
	if err != nil {
		return nil, &SubvolumeDiscoveryError{Device: part.Device, Err: err}
	}
	defer os.Remove(scratch)

	if _, err := r.run.Run(ctx, "mount", "-t", "btrfs", "-o", "ro,subvolid=5", part.Device, scratch); err != nil {
		return nil, &SubvolumeDiscoveryError{Device: part.Device, Err: err}
	}
	defer func() {
		// Release the transient mount; fall back to a detach if busy.
		if _, err := r.run.Run(context.Background(), "umount", scratch); err != nil {
			r.run.Run(context.Background(), "umount", "-l", scratch)
		}
	}()

	listOut, err := r.run.Run(ctx, "btrfs", "subvolume", "list", "-p", scratch)
	if err != nil {
		return nil, &SubvolumeDiscoveryError{Device: part.Device, Err: err}
	}

	defaultID := TopLevelSubvolumeID
	if out, err := r.run.Run(ctx, "btrfs", "subvolume", "get-default", scratch); err == nil {
		if id, ok := parseDefaultSubvolume(string(out)); ok {
			defaultID = id
		}
	}

	root, err := buildSubvolumeForest(string(listOut), defaultID)
	if err != nil {
		return nil, &SubvolumeDiscoveryError{Device: part.Device, Err: err}
	}
	return root, nil
}

// parseSubvolumeList parses `btrfs subvolume list -p` output lines of the
// form "ID 256 gen 119 parent 5 top level 5 path @home".
func parseSubvolumeList(out string) ([]*Subvolume, error) {
	var subvols []*Subvolume
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		id, parent, path := 0, 0, ""
		for i := 0; i < len(fields)-1; i++ {
			switch fields[i] {
			case "ID":
				v, err := strconv.Atoi(fields[i+1])
				if err != nil {
					return nil, fmt.Errorf("malformed subvolume id in %q", line)
				}
				id = v
			case "parent":
				v, err := strconv.Atoi(fields[i+1])
				if err != nil {
					return nil, fmt.Errorf("malformed parent id in %q", line)
				}
				parent = v
			case "path":
				// Path is the final field; join in case it contains spaces.
				path = strings.Join(fields[i+1:], " ")
			}
		}
		if id == 0 || parent == 0 || path == "" {
			return nil, fmt.Errorf("malformed subvolume entry %q", line)
		}
		subvols = append(subvols, &Subvolume{ID: id, ParentID: parent, Path: path})
	}
	return subvols, nil
}

// parseDefaultSubvolume extracts the subvolume id from
// `btrfs subvolume get-default` output ("ID 256 gen 119 top level 5 path @").
func parseDefaultSubvolume(out string) (int, bool) {
	fields := strings.Fields(out)
	for i := 0; i < len(fields)-1; i++ {
		if fields[i] == "ID" {
			if id, err := strconv.Atoi(fields[i+1]); err == nil {
				return id, true
			}
			return 0, false
		}
	}
	return 0, false
}

// buildSubvolumeForest links parsed subvolumes into a tree rooted at the
// implicit top level. Malformed metadata (unknown parents, duplicate ids,
// parent cycles) yields an error rather than a partial or non-terminating
// result.
func buildSubvolumeForest(listOut string, defaultID int) (*Subvolume, error) {
	subvols, err := parseSubvolumeList(listOut)
	if err != nil {
		return nil, err
	}

	root := &Subvolume{ID: TopLevelSubvolumeID, Default: defaultID == TopLevelSubvolumeID}
	nodes := map[int]*Subvolume{TopLevelSubvolumeID: root}
	for _, sv := range subvols {
		if _, dup := nodes[sv.ID]; dup {
			return nil, fmt.Errorf("duplicate subvolume id %d", sv.ID)
		}
		sv.Default = sv.ID == defaultID
		nodes[sv.ID] = sv
	}
	for _, sv := range subvols {
		parent, ok := nodes[sv.ParentID]
		if !ok {
			return nil, fmt.Errorf("subvolume %d references unknown parent %d", sv.ID, sv.ParentID)
		}
		if parent == sv {
			return nil, fmt.Errorf("subvolume %d is its own parent", sv.ID)
		}
		parent.Children = append(parent.Children, sv)
	}

	// A parent cycle leaves nodes unreachable from the root; reject the
	// hierarchy rather than returning a partial forest.
	reachable := 0
	root.Walk(func(*Subvolume) { reachable++ })
	if reachable != len(nodes) {
		return nil, fmt.Errorf("subvolume hierarchy contains a cycle (%d of %d nodes reachable)", reachable, len(nodes))
	}

	sortSubvolumes(root)
	return root, nil
}

// sortSubvolumes orders children by path for stable display.
func sortSubvolumes(s *Subvolume) {
	sort.Slice(s.Children, func(i, j int) bool {
		return s.Children[i].Path < s.Children[j].Path
	})
	for _, c := range s.Children {
		sortSubvolumes(c)
	}
}
