package screens

// Menu choice constants for different screens
var (
	// MainMenuChoices defines the main menu options in the correct order,
	// shown while no recovery session is active.
	MainMenuChoices = []string{
		"🚀 Start Recovery Session",
		"🔧 Open Partition Editor",
		"🔄 Rescan Disks",
		"ℹ️ About",
		"❌ Exit",
	}

	// SessionMenuChoices defines the options shown while a session holds
	// a mounted tree.
	SessionMenuChoices = []string{
		"💻 Open Chroot Shell",
		"📤 Close Session (unmount all)",
		"ℹ️ About",
		"❌ Exit",
	}

	// ConfirmationChoices defines standard yes/no choices
	ConfirmationChoices = []string{
		"✅ Yes, Continue",
		"❌ No, Cancel",
	}

	// AuxControlChoices defines the control options shown above the
	// auxiliary mount list
	AuxControlChoices = []string{
		"✅ Continue with selection",
		"⬅️ Back",
	}
)

// GetMenuChoices returns the appropriate menu choices for a given screen
func GetMenuChoices(screen Screen, sessionActive bool) []string {
	switch screen {
	case ScreenMain:
		return MainMenuChoices
	case ScreenSession:
		return SessionMenuChoices
	case ScreenConfirm:
		return ConfirmationChoices
	case ScreenAuxSelect:
		return AuxControlChoices
	default:
		if sessionActive {
			return SessionMenuChoices
		}
		return []string{}
	}
}
