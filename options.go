package dokan

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// MountFlags are the driver option bits.
type MountFlags uint32

const (
	MountDebug            MountFlags = 1
	MountStderr           MountFlags = 2
	MountAltStream        MountFlags = 4
	MountWriteProtect     MountFlags = 8
	MountNetwork          MountFlags = 16
	MountRemovable        MountFlags = 32
	MountManager          MountFlags = 64
	MountCurrentSession   MountFlags = 128
	MountFileLockUserMode MountFlags = 256
)

var mountFlagNames = map[string]MountFlags{
	"debug":              MountDebug,
	"stderr":             MountStderr,
	"alt_stream":         MountAltStream,
	"write_protect":      MountWriteProtect,
	"network":            MountNetwork,
	"removable":          MountRemovable,
	"mount_manager":      MountManager,
	"current_session":    MountCurrentSession,
	"filelock_user_mode": MountFileLockUserMode,
}

// ParseMountFlags converts flag names, as they appear in
// the configuration file, into the flag bits.
func ParseMountFlags(names []string) (MountFlags, error) {
	var result MountFlags
	for _, name := range names {
		flag, ok := mountFlagNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return 0, errors.Errorf("unknown mount flag %q", name)
		}
		result |= flag
	}
	return result, nil
}

// MountOptions is the resolved set of mount parameters.
type MountOptions struct {
	MountPoint     string
	VolumeLabel    string
	FileSystemName string
	SerialNumber   uint32
	ReadOnly       bool
	CaseSensitive  bool
	ThreadCount    int
	Timeout        time.Duration
	Flags          MountFlags
}

// Option customizes a mount.
type Option func(*MountOptions)

// VolumeLabel sets the label shown by the shell.
func VolumeLabel(value string) Option {
	return func(o *MountOptions) {
		o.VolumeLabel = value
	}
}

// FileSystemName sets the file system's type for display.
func FileSystemName(value string) Option {
	return func(o *MountOptions) {
		o.FileSystemName = value
	}
}

// SerialNumber sets the volume serial number.
func SerialNumber(value uint32) Option {
	return func(o *MountOptions) {
		o.SerialNumber = value
	}
}

// ReadOnly mounts the volume write protected. It also
// sets MountWriteProtect for the driver.
func ReadOnly(value bool) Option {
	return func(o *MountOptions) {
		o.ReadOnly = value
		if value {
			o.Flags |= MountWriteProtect
		} else {
			o.Flags &^= MountWriteProtect
		}
	}
}

// CaseSensitive is used to indicate whether the underlying
// filesystem can distinguish names by case. It is false by
// default, which is what most Windows programs expect.
func CaseSensitive(value bool) Option {
	return func(o *MountOptions) {
		o.CaseSensitive = value
	}
}

// ThreadCount sets the number of driver worker threads.
// Zero lets the driver decide.
func ThreadCount(value int) Option {
	return func(o *MountOptions) {
		o.ThreadCount = value
	}
}

// Timeout sets the deadline after which the driver aborts
// a callback unless the timeout is reset.
func Timeout(value time.Duration) Option {
	return func(o *MountOptions) {
		o.Timeout = value
	}
}

// Flags adds raw driver flags.
func Flags(value MountFlags) Option {
	return func(o *MountOptions) {
		o.Flags |= value
	}
}

// Options is used to aggregate a bundle of options.
func Options(opts ...Option) Option {
	return func(o *MountOptions) {
		for _, opt := range opts {
			opt(o)
		}
	}
}

func newMountOptions(mountPoint string) *MountOptions {
	return &MountOptions{
		MountPoint:     mountPoint,
		VolumeLabel:    "Dokan Volume",
		FileSystemName: "NTFS",
		Timeout:        30 * time.Second,
	}
}

// NewMountOptions resolves the options against the
// defaults and validates the mount point.
func NewMountOptions(mountPoint string, opts ...Option) (*MountOptions, error) {
	option := newMountOptions(mountPoint)
	Options(opts...)(option)
	normalized, err := NormalizeMountPoint(option.MountPoint)
	if err != nil {
		return nil, err
	}
	option.MountPoint = normalized
	if option.ThreadCount < 0 {
		return nil, errors.Errorf("invalid thread count %d", option.ThreadCount)
	}
	if option.Timeout < 0 {
		return nil, errors.Errorf("invalid timeout %s", option.Timeout)
	}
	return option, nil
}

// IsDriveLetter reports whether the mount point names a
// drive, in one of the forms `X`, `X:` or `X:\`.
func IsDriveLetter(mountPoint string) bool {
	switch len(mountPoint) {
	case 1:
	case 2:
		if mountPoint[1] != ':' {
			return false
		}
	case 3:
		if mountPoint[1] != ':' || (mountPoint[2] != '\\' && mountPoint[2] != '/') {
			return false
		}
	default:
		return false
	}
	c := mountPoint[0] | 0x20
	return c >= 'a' && c <= 'z'
}

// NormalizeMountPoint validates the mount point. Drive
// letters are returned in the `X:\` form, and directories
// must be absolute.
func NormalizeMountPoint(mountPoint string) (string, error) {
	if mountPoint == "" {
		return "", errors.New("empty mount point")
	}
	if IsDriveLetter(mountPoint) {
		return strings.ToUpper(mountPoint[:1]) + `:\`, nil
	}
	if strings.HasPrefix(mountPoint, "/") || filepath.IsAbs(mountPoint) {
		return filepath.Clean(mountPoint), nil
	}
	if len(mountPoint) > 3 && IsDriveLetter(mountPoint[:3]) {
		return mountPoint, nil
	}
	return "", errors.Errorf("invalid mount point %q", mountPoint)
}

// Mount is a volume served by a host.
type Mount interface {
	// Unmount stops serving the volume. The host must
	// deliver Unmounted before Unmount returns.
	Unmount() error

	// Done is closed once the volume is no longer served,
	// whether Unmount was called or the OS removed it.
	Done() <-chan struct{}
}

// Host delivers driver callbacks to Operations.
//
// The native driver binding and the FUSE adapter are both
// hosts. The bridge never depends on a particular one.
type Host interface {
	Mount(ctx context.Context, ops Operations, opts *MountOptions) (Mount, error)
}

// MountWith resolves the options and mounts ops with host.
func MountWith(
	ctx context.Context, host Host, ops Operations,
	mountPoint string, opts ...Option,
) (Mount, error) {
	if host == nil {
		return nil, errors.New("invalid nil host parameter")
	}
	if ops == nil {
		return nil, errors.New("invalid nil ops parameter")
	}
	option, err := NewMountOptions(mountPoint, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "resolve mount options")
	}
	m, err := host.Mount(ctx, ops, option)
	if err != nil {
		return nil, errors.Wrapf(err, "mount %q", option.MountPoint)
	}
	return m, nil
}
