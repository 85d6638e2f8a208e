package api

import "strings"

// CheckResponse is the body of GET auth.
type CheckResponse struct {
	Valid bool `json:"valid"`
	// ExpiryTime is milliseconds since the Unix epoch, nil when the token
	// is not valid.
	ExpiryTime *int64 `json:"expiry_time"`
}

// LoginRequest is the body of POST auth.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is the body returned by POST auth.
type AuthResponse struct {
	Token      string `json:"token"`
	ExpiryTime int64  `json:"expiry_time"`
}

// DrivesResponse is the body of GET drives.
type DrivesResponse struct {
	Drives    []DriveItem `json:"drives"`
	MountRoot string      `json:"mount_root"`
}

// DriveItem is a block device partition exposed by the host.
type DriveItem struct {
	UUID  string  `json:"uuid"`  // filesystem UUID
	Name  string  `json:"name"`  // device name, e.g. sda1
	Label string  `json:"label"` // filesystem label, e.g. "My Drive"
	Path  string  `json:"path"`  // device node, e.g. /dev/sda1
	Mount *string `json:"mount"` // nil when not mounted
	Size  *string `json:"size"`
	Used  *string `json:"used"`
	Mode  string  `json:"mode"`
}

// IsMounted reports whether the drive has a mount point.
func (d *DriveItem) IsMounted() bool {
	return d.Mount != nil
}

// IsShared reports whether the drive is mounted under mountRoot.
func (d *DriveItem) IsShared(mountRoot string) bool {
	return d.Mount != nil && strings.HasPrefix(*d.Mount, mountRoot)
}

// MountPoint returns the mount path or "" when unmounted.
func (d *DriveItem) MountPoint() string {
	if d.Mount == nil {
		return ""
	}

	return *d.Mount
}

// DisplayName returns the label, falling back to the device name for
// unlabeled filesystems.
func (d *DriveItem) DisplayName() string {
	if d.Label != "" {
		return d.Label
	}

	return d.Name
}

// DriveActionRequest is the body of POST/PUT/DELETE drives.
type DriveActionRequest struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// ListRequest is the body of POST files.
type ListRequest struct {
	Path      string `json:"path"`
	DrivePath string `json:"drive_path"`
}

// FilesResponse is the body returned by POST files.
type FilesResponse struct {
	Files   []DriveFile   `json:"files"`
	Folders []DriveFolder `json:"folders"`
}

// DriveFile is a regular file in a listing.
type DriveFile struct {
	Name        string `json:"name"`
	Size        uint64 `json:"size"`
	Permissions uint32 `json:"permissions"`
}

// DriveFolder is a directory in a listing.
type DriveFolder struct {
	Name        string `json:"name"`
	Permissions uint32 `json:"permissions"`
}
