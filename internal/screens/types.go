package screens

// Screen represents the different screens/views in the application
type Screen int

// Screen constants define all possible screens in the application
const (
	ScreenMain Screen = iota
	ScreenDiskSelect
	ScreenPartitionSelect
	ScreenSubvolumeSelect
	ScreenAuxSelect
	ScreenConfirm
	ScreenProgress
	ScreenSession
	ScreenAbout
	ScreenError
	ScreenComplete
)

// String returns the string representation of a screen
func (s Screen) String() string {
	switch s {
	case ScreenMain:
		return "Main Menu"
	case ScreenDiskSelect:
		return "Disk Selection"
	case ScreenPartitionSelect:
		return "Root Partition Selection"
	case ScreenSubvolumeSelect:
		return "Subvolume Selection"
	case ScreenAuxSelect:
		return "Additional Mounts"
	case ScreenConfirm:
		return "Confirmation"
	case ScreenProgress:
		return "Progress"
	case ScreenSession:
		return "Recovery Session"
	case ScreenAbout:
		return "About"
	case ScreenError:
		return "Error"
	case ScreenComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}
