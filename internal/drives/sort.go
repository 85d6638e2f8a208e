package drives

import (
	"slices"

	"github.com/drivepi/drivepi-go/internal/api"
)

// State is the display tier of a drive.
type State int

// Tiers in display order.
const (
	Shared State = iota
	Mounted
	Unmounted
)

func (s State) String() string {
	switch s {
	case Shared:
		return "shared"
	case Mounted:
		return "mounted"
	case Unmounted:
		return "unmounted"
	default:
		return "unknown"
	}
}

// StateOf classifies a drive relative to the host's mount root.
func StateOf(d *api.DriveItem, mountRoot string) State {
	switch {
	case d.IsShared(mountRoot):
		return Shared
	case d.IsMounted():
		return Mounted
	default:
		return Unmounted
	}
}

// Sort orders drives shared first, then mounted, then unmounted. Drives in
// the same tier keep the server's order. The input is not modified.
func Sort(list []api.DriveItem, mountRoot string) []api.DriveItem {
	sorted := slices.Clone(list)
	slices.SortStableFunc(sorted, func(a, b api.DriveItem) int {
		return int(StateOf(&a, mountRoot)) - int(StateOf(&b, mountRoot))
	})

	return sorted
}
