package dokanfs

import (
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/log"
	"github.com/godokan/go-dokan/metadata"
	"github.com/godokan/go-dokan/metrics"
	"github.com/godokan/go-dokan/pathkey"
)

const (
	defaultVolumeLabel    = "Dokan Volume"
	defaultFileSystemName = "NTFS"

	// maxVolumeLabel is the longest label NTFS accepts.
	maxVolumeLabel = 32

	// gib is the unit of the fallback disk space.
	gib = uint64(1) << 30

	defaultKeepInterval = 10 * time.Second
)

// defaultDiskSpace is reported when the backend cannot tell
// its capacity. Pretending there is room lets operations be
// attempted and fail on their own.
var defaultDiskSpace = dokan.DiskSpace{
	FreeBytesAvailable:     100 * gib,
	TotalNumberOfBytes:     200 * gib,
	TotalNumberOfFreeBytes: 100 * gib,
}

type newOption struct {
	resolver     *pathkey.Resolver
	log          log.Log
	metrics      metrics.Metrics
	volume       dokan.VolumeInformation
	readOnly     bool
	readOnlyMode metadata.ReadOnlyMode
	resetter     dokan.TimeoutResetter
	keepInterval time.Duration
	freeSpace    dokan.DiskSpace
}

// NewOption is the optional option used to initialize
// the dispatcher.
type NewOption func(*newOption) error

func wrapOption(name string, rerr *error) {
	if *rerr != nil {
		*rerr = errors.Wrapf(*rerr, "apply %s", name)
	}
}

// WithResolver overrides the path resolver. By default the
// resolver follows the case sensitivity of the backend.
func WithResolver(resolver *pathkey.Resolver) NewOption {
	return func(option *newOption) (rerr error) {
		defer wrapOption("WithResolver", &rerr)
		if resolver == nil {
			return errors.New("invalid nil resolver")
		}
		option.resolver = resolver
		return nil
	}
}

// WithLog sets the logger, which is log.NoLog by default.
func WithLog(l log.Log) NewOption {
	return func(option *newOption) error {
		if l == nil {
			l = log.NoLog{}
		}
		option.log = l
		return nil
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Metrics) NewOption {
	return func(option *newOption) error {
		if m == nil {
			m = metrics.Noop()
		}
		option.metrics = m
		return nil
	}
}

// WithVolume sets what GetVolumeInformation reports.
// Empty strings keep the defaults.
func WithVolume(label string, serial uint32, fsName string) NewOption {
	return func(option *newOption) (rerr error) {
		defer wrapOption("WithVolume", &rerr)
		if utf8.RuneCountInString(label) > maxVolumeLabel {
			return errors.Errorf("label %q longer than %d", label, maxVolumeLabel)
		}
		if label != "" {
			option.volume.VolumeName = label
		}
		if fsName != "" {
			option.volume.FileSystemName = fsName
		}
		option.volume.SerialNumber = serial
		return nil
	}
}

// WithReadOnly refuses every request that would modify the
// volume.
func WithReadOnly(value bool) NewOption {
	return func(option *newOption) error {
		option.readOnly = value
		return nil
	}
}

// WithAttribReadOnlyTransMode controls how the read-only
// attribute is derived from the permission bits of the
// backend. See metadata.ReadOnlyMode.
func WithAttribReadOnlyTransMode(mode metadata.ReadOnlyMode) NewOption {
	return func(option *newOption) (rerr error) {
		defer wrapOption("WithAttribReadOnlyTransMode", &rerr)
		if !mode.Valid() {
			return errors.Errorf("invalid mode %d", uint8(mode))
		}
		option.readOnlyMode = mode
		return nil
	}
}

// WithTimeoutKeeper makes long callbacks reset the driver
// timeout every interval until they return.
func WithTimeoutKeeper(resetter dokan.TimeoutResetter, interval time.Duration) NewOption {
	return func(option *newOption) (rerr error) {
		defer wrapOption("WithTimeoutKeeper", &rerr)
		if interval < 0 {
			return errors.Errorf("invalid interval %s", interval)
		}
		if interval == 0 {
			interval = defaultKeepInterval
		}
		option.resetter = resetter
		option.keepInterval = interval
		return nil
	}
}

// WithFreeSpace overrides the disk space reported for
// backends that do not implement backend.SpaceReporter.
func WithFreeSpace(space dokan.DiskSpace) NewOption {
	return func(option *newOption) (rerr error) {
		defer wrapOption("WithFreeSpace", &rerr)
		if space.TotalNumberOfFreeBytes > space.TotalNumberOfBytes ||
			space.FreeBytesAvailable > space.TotalNumberOfFreeBytes {
			return errors.Errorf("free space exceeds total %d", space.TotalNumberOfBytes)
		}
		option.freeSpace = space
		return nil
	}
}
