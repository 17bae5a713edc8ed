// Package main implements the entry point and system initialization for Rescue.
//
// This package handles:
//   - Privilege elevation and root access verification
//   - Single instance checking to prevent concurrent sessions from two processes
//   - System dependency validation (lsblk, mount, chroot, btrfs, etc.)
//   - Signal handling for clean shutdown
//   - TUI initialization and execution
//
// The application requires root privileges for mounting partitions and
// entering a chroot. When not running as root, it automatically
// re-executes itself with sudo.
package main

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"rescue/internal"

	tea "github.com/charmbracelet/bubbletea"
	flag "github.com/spf13/pflag"
)

// lockFilePath defines the location of the singleton instance lock file.
// Two rescue processes mounting the same partitions would corrupt each
// other's teardown.
const lockFilePath = "/tmp/rescue.lock"

// checkSingleInstance verifies that no other rescue process is currently running.
// It checks for the existence of a lock file and validates that the PID is still active.
// Stale lock files are automatically cleaned up if the process no longer exists.
func checkSingleInstance() error {
	if _, err := os.Stat(lockFilePath); err == nil {
		lockContent, readErr := os.ReadFile(lockFilePath)
		if readErr == nil {
			pid := strings.TrimSpace(string(lockContent))
			if pid != "" {
				if pidInt, err := strconv.Atoi(pid); err == nil {
					if process, err := os.FindProcess(pidInt); err == nil {
						// Signal 0 checks for existence without touching the process
						if err := process.Signal(syscall.Signal(0)); err == nil {
							return fmt.Errorf("another rescue process is already running (PID: %s)", pid)
						}
					}
				}
			}
		}
		// Stale lock file, remove it
		os.Remove(lockFilePath)
	}
	return nil
}

// createInstanceLock creates a lock file containing the current process ID.
func createInstanceLock() error {
	pid := fmt.Sprintf("%d", os.Getpid())
	return os.WriteFile(lockFilePath, []byte(pid), 0644)
}

// removeInstanceLock deletes the singleton lock file to allow new instances.
func removeInstanceLock() {
	os.Remove(lockFilePath)
}

func main() {
	showVersion := flag.BoolP("version", "v", false, "print version and exit")
	stagingRoot := flag.String("staging-root", "/run/rescue", "parent directory for session mount trees")
	terminal := flag.String("terminal", "", "terminal emulator for the chroot shell (auto-detected when empty)")
	logFile := flag.String("log-file", "", "override the session log location")
	asciiOnly := flag.Bool("ascii", false, "plain ASCII output for limited terminals")
	flag.Parse()

	if *showVersion {
		fmt.Println(internal.GetFullVersionString())
		return
	}
	if *logFile != "" {
		internal.SetLogFilePath(*logFile)
	}
	if *asciiOnly {
		internal.ForceASCII()
	}

	// Check if we need to elevate to root
	if os.Geteuid() != 0 {
		if err := elevateToRoot(); err != nil {
			fmt.Printf("❌ Failed to elevate privileges: %v\n", err)
			os.Exit(1)
		}
		// elevateToRoot() re-execs this program with sudo, so we never reach here
		return
	}

	runAsRoot(*stagingRoot, *terminal)
}

// elevateToRoot handles privilege escalation by re-executing the program with sudo.
// Only shows messages if there's an error - silent success for better UX.
func elevateToRoot() error {
	execPath, err := os.Executable()
	if err != nil {
		fmt.Println("❌ Failed to get executable path")
		return fmt.Errorf("failed to get executable path: %v", err)
	}

	if !checkProgramExists("sudo") {
		fmt.Println("❌ sudo is required but not available")
		return fmt.Errorf("sudo is required but not available")
	}

	// Re-run this program with sudo, preserving all arguments
	args := append([]string{execPath}, os.Args[1:]...)
	cmd := exec.Command("sudo", args...)

	// Connect stdio so user can enter password if needed
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err = cmd.Run()
	if err != nil {
		fmt.Println("🔒 Rescue requires administrator privileges")
		fmt.Println("📋 Needed for: mounting partitions, chroot, unmounting")
		fmt.Println("❌ Failed to obtain sudo access")
		return fmt.Errorf("sudo execution failed: %v", err)
	}

	// Exit with the same code as the child process
	if exitError, ok := err.(*exec.ExitError); ok {
		os.Exit(exitError.ExitCode())
	}

	os.Exit(0)
	return nil // Never reached
}

// runAsRoot contains the main program logic when running with root privileges.
// It handles singleton checking, dependency validation, signal handling, and TUI initialization.
func runAsRoot(stagingRoot, terminal string) {
	if err := checkSingleInstance(); err != nil {
		fmt.Println("⚠️  " + err.Error())
		fmt.Println()
		fmt.Println("Another rescue process is already running. A second one could")
		fmt.Println("unmount trees the first still depends on.")
		fmt.Println()
		fmt.Println("💡 If you are sure none is running, remove the lock file:")
		fmt.Println("   sudo rm " + lockFilePath)
		fmt.Println()
		os.Exit(1)
	}

	if err := createInstanceLock(); err != nil {
		fmt.Printf("❌ Failed to create instance lock: %v\n", err)
		os.Exit(1)
	}
	defer removeInstanceLock()

	if err := checkSystemDependencies(); err != nil {
		fmt.Printf("❌ Dependency check failed: %v\n", err)
		fmt.Println()
		fmt.Println("💡 Install missing dependencies and try again.")
		os.Exit(1)
	}

	prefs := internal.LoadPreferences()
	if terminal == "" {
		terminal = prefs.PreferredTerminal
	}
	internal.InitEngine(stagingRoot, terminal)
	defer internal.CloseEngine()

	// Set up signal handling for clean exit
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		removeInstanceLock() // Clean up on signal
		os.Exit(1)
	}()

	m := internal.InitialModel(prefs)
	p := tea.NewProgram(m, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		log.Fatal(err)
	}
}

// hasSudoAccess checks if the current user has effective root privileges.
func hasSudoAccess() bool {
	if os.Geteuid() == 0 {
		return true
	}

	// Check if we can access a root-only file
	if err := syscall.Access("/etc/shadow", 4); err == nil { // R_OK = 4
		return true
	}

	return false
}

// checkSystemDependencies validates that all required system programs are available.
// It checks for critical programs (lsblk, mount, umount, chroot) and optional ones,
// providing installation instructions for missing dependencies.
func checkSystemDependencies() error {
	requiredPrograms := []struct {
		name     string
		purpose  string
		critical bool
	}{
		// Disk and partition discovery
		{"lsblk", "disk and partition discovery", true},

		// Mount plan execution and teardown
		{"mount", "mounting partitions", true},
		{"umount", "unmounting partitions", true},

		// Chroot session
		{"chroot", "entering the recovered system", true},

		// BTRFS subvolume discovery
		{"btrfs", "BTRFS subvolume discovery", true},

		// Sudo access validation
		{"sudo", "privilege escalation", true},

		// External partition editing
		{"gparted", "graphical partition editing", false},
	}

	missing := []string{}
	warnings := []string{}

	for _, prog := range requiredPrograms {
		if !checkProgramExists(prog.name) {
			if prog.critical {
				missing = append(missing, fmt.Sprintf("%s (%s)", prog.name, prog.purpose))
			} else {
				warnings = append(warnings, fmt.Sprintf("%s (%s)", prog.name, prog.purpose))
			}
		}
	}

	if len(warnings) > 0 {
		fmt.Println("⚠️  Optional programs missing (functionality may be limited):")
		for _, warning := range warnings {
			fmt.Printf("   • %s\n", warning)
		}
		fmt.Println()
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing critical programs:\n%s\n\n🔧 Installation commands:\n%s",
			formatMissingList(missing),
			getInstallCommands(missing))
	}

	return checkSpecialRequirements()
}

// Check if a program exists in PATH
func checkProgramExists(program string) bool {
	_, err := exec.LookPath(program)
	return err == nil
}

// Format the missing programs list
func formatMissingList(missing []string) string {
	result := ""
	for _, prog := range missing {
		result += fmt.Sprintf("   • %s\n", prog)
	}
	return result
}

// Get installation commands for missing programs
func getInstallCommands(missing []string) string {
	needsUtilLinux := false
	needsBtrfs := false
	needsCoreutils := false

	for _, prog := range missing {
		if strings.Contains(prog, "lsblk") || strings.Contains(prog, "mount") {
			needsUtilLinux = true
		}
		if strings.Contains(prog, "btrfs") {
			needsBtrfs = true
		}
		if strings.Contains(prog, "chroot") {
			needsCoreutils = true
		}
	}

	debianPkgs := []string{}
	archPkgs := []string{}
	if needsUtilLinux {
		debianPkgs = append(debianPkgs, "util-linux")
		archPkgs = append(archPkgs, "util-linux")
	}
	if needsBtrfs {
		debianPkgs = append(debianPkgs, "btrfs-progs")
		archPkgs = append(archPkgs, "btrfs-progs")
	}
	if needsCoreutils {
		debianPkgs = append(debianPkgs, "coreutils")
		archPkgs = append(archPkgs, "coreutils")
	}

	commands := []string{}
	if len(debianPkgs) > 0 {
		commands = append(commands, fmt.Sprintf("   Debian/Ubuntu: sudo apt install %s", strings.Join(debianPkgs, " ")))
	}
	if len(archPkgs) > 0 {
		commands = append(commands, fmt.Sprintf("   Arch Linux:    sudo pacman -S %s", strings.Join(archPkgs, " ")))
	}

	return strings.Join(commands, "\n")
}

// Check special requirements beyond just program existence
func checkSpecialRequirements() error {
	if !hasSudoAccess() {
		return fmt.Errorf("sudo access required but not available\n" +
			"💡 Run 'sudo -v' to authenticate or add your user to sudoers")
	}

	// The scanner and unmount coordinator both read the mount table
	if _, err := os.Stat("/proc/mounts"); err != nil {
		return fmt.Errorf("/proc/mounts not accessible - this is unusual and may indicate a problem")
	}

	if _, err := os.Stat("/sys/block"); err != nil {
		return fmt.Errorf("/sys/block not accessible - device detection may fail")
	}

	return nil
}
