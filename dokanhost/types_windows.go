//go:build windows && (amd64 || arm64)

package dokanhost

const (
	// minimumVersion is the oldest library version the
	// structures below match.
	minimumVersion = 200

	volumeSecurityDescriptorMaxSize = 1024 * 16

	// optionCaseSensitive is the DOKAN_OPTION_CASE_SENSITIVE
	// bit, which has no counterpart among the mount flags.
	optionCaseSensitive = 512

	infinite = 0xFFFFFFFF
)

// dokanOptions is the layout of DOKAN_OPTIONS.
type dokanOptions struct {
	Version                        uint16
	SingleThread                   uint8
	Options                        uint32
	GlobalContext                  uint64
	MountPoint                     *uint16
	UNCName                        *uint16
	Timeout                        uint32
	AllocationUnitSize             uint32
	SectorSize                     uint32
	VolumeSecurityDescriptorLength uint32
	VolumeSecurityDescriptor       [volumeSecurityDescriptorMaxSize]byte
}

// dokanFileInfo is the layout of DOKAN_FILE_INFO.
type dokanFileInfo struct {
	Context           uint64
	DokanContext      uint64
	DokanOptions      *dokanOptions
	ProcessingContext uintptr
	ProcessID         uint32
	IsDirectory       uint8
	DeleteOnClose     uint8
	PagingIO          uint8
	SynchronousIO     uint8
	Nocache           uint8
	WriteToEndOfFile  uint8
}

// dokanOperations is the layout of DOKAN_OPERATIONS. Every
// field is a callback address, and zero leaves the request
// to the library default.
type dokanOperations struct {
	ZwCreateFile         uintptr
	Cleanup              uintptr
	CloseFile            uintptr
	ReadFile             uintptr
	WriteFile            uintptr
	FlushFileBuffers     uintptr
	GetFileInformation   uintptr
	FindFiles            uintptr
	FindFilesWithPattern uintptr
	SetFileAttributes    uintptr
	SetFileTime          uintptr
	DeleteFile           uintptr
	DeleteDirectory      uintptr
	MoveFile             uintptr
	SetEndOfFile         uintptr
	SetAllocationSize    uintptr
	LockFile             uintptr
	UnlockFile           uintptr
	GetDiskFreeSpace     uintptr
	GetVolumeInformation uintptr
	Mounted              uintptr
	Unmounted            uintptr
	GetFileSecurity      uintptr
	SetFileSecurity      uintptr
	FindStreams          uintptr
}

func boolByte(value bool) uint8 {
	if value {
		return 1
	}
	return 0
}
