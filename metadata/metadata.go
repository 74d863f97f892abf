// Package metadata converts between the backend's view of
// an entry and the file information the driver expects.
package metadata

import (
	"fmt"
	"io/fs"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/backend"
	"github.com/godokan/go-dokan/filetime"
)

// ReadOnlyMode controls how the FILE_ATTRIBUTE_READONLY
// flag of a file is derived from its permission bits.
//
// The flag is never reported for directories. It is only a
// hint for the driver: no permission check is performed by
// the bridge, that is the duty of the backend.
//
// The default value is ReadOnlyWindows.
type ReadOnlyMode uint8

const (
	// ReadOnlyWindows marks a file read-only when its mode
	// has no owner write bit, the way the os package does
	// on Windows.
	ReadOnlyWindows ReadOnlyMode = iota

	// ReadOnlyBypass never reports the flag.
	ReadOnlyBypass

	// ReadOnlyAlways always reports the flag.
	ReadOnlyAlways

	// ReadOnlyPOSIX marks a file read-only only when
	// neither the file nor its parent directory has the
	// owner write bit, since on POSIX systems a writable
	// directory allows replacing the file.
	ReadOnlyPOSIX

	numReadOnlyModes
)

var readOnlyModeNames = [numReadOnlyModes]string{
	ReadOnlyWindows: "windows",
	ReadOnlyBypass:  "bypass",
	ReadOnlyAlways:  "always",
	ReadOnlyPOSIX:   "posix",
}

func (m ReadOnlyMode) Valid() bool {
	return m < numReadOnlyModes
}

func (m ReadOnlyMode) String() string {
	if !m.Valid() {
		return fmt.Sprintf("ReadOnlyMode(%d)", uint8(m))
	}
	return readOnlyModeNames[m]
}

// NeedParent reports whether the mode inspects the parent
// directory.
func (m ReadOnlyMode) NeedParent() bool {
	return m == ReadOnlyPOSIX
}

// ParseReadOnlyMode parses the lower-case mode names.
func ParseReadOnlyMode(s string) (ReadOnlyMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ReadOnlyWindows, nil
	}
	for i, name := range readOnlyModeNames {
		if name == s {
			return ReadOnlyMode(i), nil
		}
	}
	return 0, errors.Errorf("unknown read-only mode %q", s)
}

// Mapper carries the volume wide settings of the mapping.
type Mapper struct {
	ReadOnly     ReadOnlyMode
	VolumeSerial uint32
}

func writable(mode fs.FileMode) bool {
	return mode.Perm()&0o200 != 0
}

func (m Mapper) readOnlyBit(self backend.Stat, parent *backend.Stat) dokan.FileAttribute {
	switch m.ReadOnly {
	case ReadOnlyBypass:
		return 0
	case ReadOnlyAlways:
		return dokan.FILE_ATTRIBUTE_READONLY
	case ReadOnlyPOSIX:
		parentWritable := parent != nil && writable(parent.Mode)
		if writable(self.Mode) || parentWritable {
			return 0
		}
		return dokan.FILE_ATTRIBUTE_READONLY
	default:
		if writable(self.Mode) {
			return 0
		}
		return dokan.FILE_ATTRIBUTE_READONLY
	}
}

// Attributes derives the attribute flags of an entry.
func (m Mapper) Attributes(self backend.Stat, parent *backend.Stat) dokan.FileAttribute {
	var attributes dokan.FileAttribute
	if self.IsDir() {
		attributes |= dokan.FILE_ATTRIBUTE_DIRECTORY
	} else {
		attributes |= m.readOnlyBit(self, parent)
	}
	if attributes == 0 {
		attributes = dokan.FILE_ATTRIBUTE_NORMAL
	}
	return attributes
}

func fileSize(stat backend.Stat) uint64 {
	if stat.IsDir() || stat.Size < 0 {
		return 0
	}
	return uint64(stat.Size)
}

// ToDriver converts a backend stat into file information.
// Times the backend does not know stay zero, which the
// driver reads as unavailable. A missing creation or access
// time falls back to the modification time.
func (m Mapper) ToDriver(self backend.Stat, parent *backend.Stat) dokan.FileInformation {
	write := filetime.Timestamp(self.ModTime)
	access := filetime.Timestamp(self.AccessTime)
	if access == 0 {
		access = write
	}
	creation := filetime.Timestamp(self.CreateTime)
	if creation == 0 {
		creation = write
	}
	links := self.Links
	if links == 0 {
		links = 1
	}
	return dokan.FileInformation{
		FileAttributes:     m.Attributes(self, parent),
		CreationTime:       creation,
		LastAccessTime:     access,
		LastWriteTime:      write,
		VolumeSerialNumber: m.VolumeSerial,
		FileSize:           fileSize(self),
		NumberOfLinks:      links,
		FileIndex:          self.Index,
	}
}

// ToFindData converts a backend stat into an enumeration
// entry. The name is taken verbatim from the stat.
func (m Mapper) ToFindData(self backend.Stat, parent *backend.Stat) dokan.FindData {
	info := m.ToDriver(self, parent)
	return dokan.FindData{
		FileAttributes: info.FileAttributes,
		CreationTime:   info.CreationTime,
		LastAccessTime: info.LastAccessTime,
		LastWriteTime:  info.LastWriteTime,
		FileSize:       info.FileSize,
		FileName:       self.Name,
	}
}

// Patch is a partial update of an entry. Nil fields are
// left untouched.
type Patch struct {
	Attributes     *dokan.FileAttribute
	Size           *uint64
	CreationTime   *time.Time
	LastAccessTime *time.Time
	LastWriteTime  *time.Time
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Attributes == nil && p.Size == nil &&
		p.CreationTime == nil && p.LastAccessTime == nil &&
		p.LastWriteTime == nil
}

// timeOf decodes a FILETIME of a set request. Zero means
// "do not change", as does all ones, which asks to stop
// updating the time for the handle.
func timeOf(ft uint64) *time.Time {
	if ft == 0 || ft == math.MaxUint64 {
		return nil
	}
	t := filetime.Time(ft)
	return &t
}

// FromDriver extracts the populated fields of a file
// information as a patch.
func FromDriver(info dokan.FileInformation) Patch {
	var p Patch
	if info.FileAttributes != 0 {
		attributes := info.FileAttributes
		p.Attributes = &attributes
	}
	if info.FileSize != 0 {
		size := info.FileSize
		p.Size = &size
	}
	p.CreationTime = timeOf(info.CreationTime)
	p.LastAccessTime = timeOf(info.LastAccessTime)
	p.LastWriteTime = timeOf(info.LastWriteTime)
	return p
}

// AttributesPatch builds the patch of a set-attributes
// request.
func AttributesPatch(attributes dokan.FileAttribute) Patch {
	return FromDriver(dokan.FileInformation{FileAttributes: attributes})
}

// TimesPatch builds the patch of a set-times request.
func TimesPatch(creation, lastAccess, lastWrite uint64) Patch {
	return FromDriver(dokan.FileInformation{
		CreationTime:   creation,
		LastAccessTime: lastAccess,
		LastWriteTime:  lastWrite,
	})
}

// Mode returns the permission bits after applying the
// read-only attribute of the patch.
func (p Patch) Mode(mode fs.FileMode) fs.FileMode {
	if p.Attributes == nil {
		return mode
	}
	attributes := *p.Attributes
	if attributes&dokan.FILE_ATTRIBUTE_DIRECTORY != 0 {
		mode |= fs.ModeDir
	}
	if mode.IsDir() {
		return mode
	}
	if attributes&dokan.FILE_ATTRIBUTE_READONLY != 0 {
		return mode &^ 0o222
	}
	if !writable(mode) {
		mode |= 0o200
	}
	return mode
}

// Apply returns stat updated by the patch.
func (p Patch) Apply(stat backend.Stat) backend.Stat {
	stat.Mode = p.Mode(stat.Mode)
	if p.Size != nil && !stat.IsDir() {
		stat.Size = int64(min(*p.Size, math.MaxInt64))
	}
	if p.CreationTime != nil {
		stat.CreateTime = *p.CreationTime
	}
	if p.LastAccessTime != nil {
		stat.AccessTime = *p.LastAccessTime
	}
	if p.LastWriteTime != nil {
		stat.ModTime = *p.LastWriteTime
	}
	return stat
}
