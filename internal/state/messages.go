package state

// MountProgressMsg reports progress of the mount (or teardown) worker.
// Step counts are 1-based for display; Total is 0 while the plan size is
// not yet known.
type MountProgressMsg struct {
	Step     int
	Total    int
	Message  string
	Done     bool
	Err      error
	Warnings []string // advisory notes (e.g. hidden pre-existing content)
}

// ShellClosedMsg reports that the chroot terminal process exited.
type ShellClosedMsg struct {
	Err error
}

// TeardownDoneMsg reports the result of a session teardown. Stuck lists
// the mountpoints that survived every unmount attempt.
type TeardownDoneMsg struct {
	Clean bool
	Stuck []string
	Err   error
}

// UsageMsg carries filesystem usage figures for the mounted system,
// shown on the session screen.
type UsageMsg struct {
	Total uint64
	Used  uint64
	Err   error
}
