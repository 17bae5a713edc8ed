// Package internal provides configuration management and persistent storage for user preferences.
//
// This module handles:
//   - Remembering auxiliary mount choices per recovered root filesystem
//   - Preferred terminal emulator persistence
//   - Configuration file management with atomic writes
//
// Preferences are keyed by the root partition's filesystem UUID so the
// same machine recovered twice pre-selects the same auxiliary mounts,
// while a different installation starts clean.
package internal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Preferences represents persistent configuration saved between runs.
type Preferences struct {
	// Metadata
	Version     string    `json:"version"`      // Config format version for migration
	LastUpdated time.Time `json:"last_updated"` // When this config was last saved

	// PreferredTerminal pins a terminal emulator for the chroot shell;
	// empty means pick by desktop environment.
	PreferredTerminal string `json:"preferred_terminal,omitempty"`

	// AuxMounts remembers auxiliary selections per root filesystem UUID.
	AuxMounts map[string][]SavedAuxMount `json:"aux_mounts,omitempty"`
}

// SavedAuxMount is one remembered auxiliary mount choice.
type SavedAuxMount struct {
	PartitionUUID string `json:"partition_uuid"`      // filesystem UUID of the auxiliary partition
	Subvolume     string `json:"subvolume,omitempty"` // BTRFS subvolume path, "" for whole partition
	Target        string `json:"target"`              // mount target inside the root tree, e.g. "/home"
}

// getConfigDir returns the configuration directory for the invoking user.
// Uses XDG layout: ~/.config/rescue/
func getConfigDir() (string, error) {
	homeDir, err := effectiveHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %v", err)
	}

	configDir := filepath.Join(homeDir, ".config", "rescue")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %v", err)
	}

	return configDir, nil
}

func getPreferencesPath() (string, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "preferences.json"), nil
}

// LoadPreferences restores saved preferences, returning an empty set for
// first-time use or when the file cannot be parsed.
func LoadPreferences() *Preferences {
	empty := &Preferences{
		Version:   "1.0",
		AuxMounts: make(map[string][]SavedAuxMount),
	}

	configPath, err := getPreferencesPath()
	if err != nil {
		return empty
	}

	jsonData, err := os.ReadFile(configPath)
	if err != nil {
		return empty
	}

	var prefs Preferences
	if err := json.Unmarshal(jsonData, &prefs); err != nil {
		return empty
	}
	if prefs.AuxMounts == nil {
		prefs.AuxMounts = make(map[string][]SavedAuxMount)
	}
	return &prefs
}

// Save persists the preferences to disk atomically (write to temp file,
// then rename).
func (p *Preferences) Save() error {
	configPath, err := getPreferencesPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %v", err)
	}

	p.Version = "1.0"
	p.LastUpdated = time.Now()

	jsonData, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %v", err)
	}

	tempPath := configPath + ".tmp"
	if err := os.WriteFile(tempPath, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write temp config file: %v", err)
	}

	if err := os.Rename(tempPath, configPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename config file: %v", err)
	}

	return nil
}

// RememberAuxMounts stores the auxiliary choices made for a root
// filesystem, replacing any earlier entry for the same UUID.
func (p *Preferences) RememberAuxMounts(rootUUID string, mounts []SavedAuxMount) {
	if rootUUID == "" {
		return
	}
	p.AuxMounts[rootUUID] = mounts
}

// RememberedAuxMounts returns the saved auxiliary choices for a root
// filesystem, or nil when none were saved.
func (p *Preferences) RememberedAuxMounts(rootUUID string) []SavedAuxMount {
	if rootUUID == "" {
		return nil
	}
	return p.AuxMounts[rootUUID]
}
