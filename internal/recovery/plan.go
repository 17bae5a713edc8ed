// Package recovery implements the recovery session engine.
// This module computes the ordered mount plan for a session. The planner
// never mutates storage: it produces an explicit list of steps that the
// session executes and the coordinator later reverses.
package recovery

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// StepKind tags the role of a mount step within a plan.
type StepKind int

const (
	StepRoot       StepKind = iota // the installed system's root filesystem
	StepAuxiliary                  // /home, /boot, /boot/efi and similar
	StepBindPseudo                 // kernel pseudo-filesystem bind mounts
)

// String returns a short kind label for logs and step listings.
func (k StepKind) String() string {
	switch k {
	case StepRoot:
		return "root"
	case StepAuxiliary:
		return "auxiliary"
	default:
		return "bind"
	}
}

// MountStep is one ordered unit of mount work. Target is always an
// absolute path under the session staging root; the target directory is
// created on demand immediately before the mount call.
type MountStep struct {
	Kind    StepKind
	Source  string // device path or, for binds, the live path to attach
	Target  string
	Fstype  string // explicit -t value, "" for autodetection
	Options string // -o value, e.g. "subvol=@"; "" for none
	Bind    bool   // true for --bind mounts
}

// RootSelection names the partition (and, for BTRFS, the subvolume) to
// mount as the recovered system's root.
type RootSelection struct {
	Partition Partition
	Subvolume *Subvolume // nil for non-BTRFS roots or the top level
}

// AuxSelection names an additional partition or subvolume to mount at a
// path inside the recovered root, e.g. a separate /home.
type AuxSelection struct {
	Partition Partition
	Subvolume *Subvolume // nil unless a specific BTRFS subvolume is meant
	Target    string     // absolute path inside the root tree, e.g. "/home"
}

// pseudoMounts are the kernel views an interactive chroot shell depends
// on, in their fixed mount order.
var pseudoMounts = []struct {
	source string
	target string
}{
	{"/proc", "proc"},
	{"/dev", "dev"},
	{"/dev/pts", "dev/pts"},
	{"/sys", "sys"},
}

// BuildPlan computes the totally ordered mount sequence for one session:
// the root step first, auxiliary steps ordered ancestors-before-
// descendants, and the pseudo-filesystem binds last. It validates the
// selections but touches nothing on disk.
func BuildPlan(stagingRoot string, root RootSelection, aux []AuxSelection) ([]MountStep, error) {
	if stagingRoot == "" || !strings.HasPrefix(stagingRoot, "/") {
		return nil, fmt.Errorf("staging root must be an absolute path, got %q", stagingRoot)
	}
	if root.Partition.Device == "" {
		return nil, fmt.Errorf("no root partition selected")
	}
	if !root.Partition.Mountable() {
		return nil, fmt.Errorf("partition %s has no mountable filesystem (%q)", root.Partition.Device, root.Partition.Fstype)
	}

	steps := []MountStep{rootStep(stagingRoot, root)}

	auxSteps, err := auxiliarySteps(stagingRoot, root, aux)
	if err != nil {
		return nil, err
	}
	steps = append(steps, auxSteps...)

	for _, pm := range pseudoMounts {
		steps = append(steps, MountStep{
			Kind:   StepBindPseudo,
			Source: pm.source,
			Target: path.Join(stagingRoot, pm.target),
			Bind:   true,
		})
	}

	return steps, nil
}

func rootStep(stagingRoot string, root RootSelection) MountStep {
	step := MountStep{
		Kind:   StepRoot,
		Source: root.Partition.Device,
		Target: stagingRoot,
	}
	if root.Subvolume != nil && !root.Subvolume.TopLevel() {
		step.Fstype = "btrfs"
		step.Options = "subvol=" + root.Subvolume.Path
	}
	return step
}

func auxiliarySteps(stagingRoot string, root RootSelection, aux []AuxSelection) ([]MountStep, error) {
	var steps []MountStep
	seenTargets := map[string]string{} // cleaned target -> source device

	for _, sel := range aux {
		if sel.Partition.Device == "" {
			return nil, fmt.Errorf("auxiliary selection for %q names no partition", sel.Target)
		}
		if !sel.Partition.Mountable() {
			return nil, fmt.Errorf("partition %s has no mountable filesystem (%q)", sel.Partition.Device, sel.Partition.Fstype)
		}
		target := path.Clean(sel.Target)
		if !strings.HasPrefix(target, "/") || target == "/" {
			return nil, fmt.Errorf("auxiliary target %q must be an absolute path inside the root tree", sel.Target)
		}
		if prev, dup := seenTargets[target]; dup {
			return nil, fmt.Errorf("target %s selected twice (%s and %s)", target, prev, sel.Partition.Device)
		}
		seenTargets[target] = sel.Partition.Device

		// A partition already serving as the session root may not be
		// reused for a different role, except to mount one of its own
		// subvolumes elsewhere (e.g. @home next to @).
		if sel.Partition.Device == root.Partition.Device && sel.Subvolume == nil {
			return nil, fmt.Errorf("partition %s is already the root selection", sel.Partition.Device)
		}

		step := MountStep{
			Kind:   StepAuxiliary,
			Source: sel.Partition.Device,
			Target: path.Join(stagingRoot, target),
		}
		if sel.Subvolume != nil && !sel.Subvolume.TopLevel() {
			step.Fstype = "btrfs"
			step.Options = "subvol=" + sel.Subvolume.Path
		}
		steps = append(steps, step)
	}

	// Ancestors before descendants so /boot is in place before
	// /boot/efi. Equal depths keep selection order (stable sort).
	sort.SliceStable(steps, func(i, j int) bool {
		return pathDepth(steps[i].Target) < pathDepth(steps[j].Target)
	})

	// An ancestor target with a different source device would shadow a
	// later descendant mount; with depth ordering this only remains
	// possible through duplicate-device selections already rejected
	// above, but keep the invariant checked explicitly.
	for i, outer := range steps {
		for _, inner := range steps[i+1:] {
			if strings.HasPrefix(outer.Target, inner.Target+"/") {
				return nil, fmt.Errorf("step %s would be shadowed by later mount at %s", outer.Target, inner.Target)
			}
		}
	}

	return steps, nil
}

func pathDepth(p string) int {
	return strings.Count(path.Clean(p), "/")
}

// PlanWarnings returns advisory notes about a plan that do not prevent
// execution, currently only non-empty auxiliary targets that an
// auxiliary mount will shadow. The confirm screen shows these before the
// operator commits.
func PlanWarnings(steps []MountStep, dirNotEmpty func(string) bool) []string {
	var warnings []string
	for _, step := range steps {
		if step.Kind == StepAuxiliary && dirNotEmpty != nil && dirNotEmpty(step.Target) {
			warnings = append(warnings, fmt.Sprintf("%s is not empty; its contents will be hidden by the %s mount", step.Target, step.Source))
		}
	}
	return warnings
}
