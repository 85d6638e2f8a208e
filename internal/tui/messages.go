package tui

import (
	"github.com/drivepi/drivepi-go/internal/browser"
	"github.com/drivepi/drivepi-go/internal/drives"
)

type drivesLoadedMsg struct {
	snap drives.Snapshot
	err  error
}

type actionDoneMsg struct {
	action drives.Action
	uuid   string
	snap   drives.Snapshot
	err    error
}

type listingMsg struct {
	key     browser.Key
	listing browser.Listing
	err     error
}

// sessionEndedMsg is sent when the session loses its token.
type sessionEndedMsg struct{}
