// Package internal provides version information and build metadata for the Rescue application.
//
// This module centralizes all version-related constants and provides formatted strings
// for consistent display across the application. To update the version, change
// the AppVersion constant - all other version strings follow automatically.
package internal

// Application metadata constants.
const (
	// AppName is the official name of the application
	AppName = "Rescue"

	// AppVersion follows semantic versioning (major.minor.patch)
	AppVersion = "0.9.4"

	// AppDesc is the tagline/description used in UI and documentation
	AppDesc = "Live-Environment System Recovery"
)

// GetVersionString returns just the version number for programmatic use.
// Example: "0.9.4"
func GetVersionString() string {
	return AppVersion
}

// GetFullVersionString returns the application name with version for display.
// Example: "Rescue v0.9.4"
func GetFullVersionString() string {
	return AppName + " v" + AppVersion
}

// GetAppTitle returns the complete application title including description.
// Used for window titles and main application headers.
func GetAppTitle() string {
	return AppName + " v" + AppVersion + " - " + AppDesc
}

// GetSubtitle returns a compact version string for UI footers.
func GetSubtitle() string {
	return "v" + AppVersion + " · mount, chroot and repair an installed system"
}

// GetAboutText returns the standard about text for help screens.
func GetAboutText() string {
	return AppName + ` mounts an installed Linux system from a live
environment, opens a chroot shell inside it for repairs, and releases
every mount in reverse order when the session closes.

Supports BTRFS subvolume layouts (@, @home and friends), separate
/home, /boot and EFI partitions, and rollback of partially mounted
sessions.`
}
