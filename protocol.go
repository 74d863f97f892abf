package dokan

// CreateDisposition is the action to take on a create
// request depending on whether the file exists.
type CreateDisposition uint32

const (
	FILE_SUPERSEDE    CreateDisposition = 0
	FILE_OPEN         CreateDisposition = 1
	FILE_CREATE       CreateDisposition = 2
	FILE_OPEN_IF      CreateDisposition = 3
	FILE_OVERWRITE    CreateDisposition = 4
	FILE_OVERWRITE_IF CreateDisposition = 5
)

// Valid reports whether the disposition is a known one.
func (d CreateDisposition) Valid() bool {
	return d <= FILE_OVERWRITE_IF
}

// MayCreate reports whether the disposition creates the
// file when it is missing.
func (d CreateDisposition) MayCreate() bool {
	switch d {
	case FILE_SUPERSEDE, FILE_CREATE, FILE_OPEN_IF, FILE_OVERWRITE_IF:
		return true
	}
	return false
}

// Truncates reports whether an existing file loses its
// content under the disposition.
func (d CreateDisposition) Truncates() bool {
	switch d {
	case FILE_SUPERSEDE, FILE_OVERWRITE, FILE_OVERWRITE_IF:
		return true
	}
	return false
}

// CreateOptions are the option bits of a create request.
type CreateOptions uint32

const (
	FILE_DIRECTORY_FILE            CreateOptions = 0x00000001
	FILE_WRITE_THROUGH             CreateOptions = 0x00000002
	FILE_SEQUENTIAL_ONLY           CreateOptions = 0x00000004
	FILE_NO_INTERMEDIATE_BUFFERING CreateOptions = 0x00000008
	FILE_SYNCHRONOUS_IO_ALERT      CreateOptions = 0x00000010
	FILE_SYNCHRONOUS_IO_NONALERT   CreateOptions = 0x00000020
	FILE_NON_DIRECTORY_FILE        CreateOptions = 0x00000040
	FILE_RANDOM_ACCESS             CreateOptions = 0x00000800
	FILE_DELETE_ON_CLOSE           CreateOptions = 0x00001000
	FILE_OPEN_BY_FILE_ID           CreateOptions = 0x00002000
	FILE_OPEN_FOR_BACKUP_INTENT    CreateOptions = 0x00004000
	FILE_OPEN_REPARSE_POINT        CreateOptions = 0x00200000
)

// AccessMask is the desired access of a create request.
type AccessMask uint32

const (
	FILE_READ_DATA        AccessMask = 0x00000001
	FILE_WRITE_DATA       AccessMask = 0x00000002
	FILE_APPEND_DATA      AccessMask = 0x00000004
	FILE_READ_EA          AccessMask = 0x00000008
	FILE_WRITE_EA         AccessMask = 0x00000010
	FILE_EXECUTE          AccessMask = 0x00000020
	FILE_READ_ATTRIBUTES  AccessMask = 0x00000080
	FILE_WRITE_ATTRIBUTES AccessMask = 0x00000100
	DELETE                AccessMask = 0x00010000
	READ_CONTROL          AccessMask = 0x00020000
	WRITE_DAC             AccessMask = 0x00040000
	WRITE_OWNER           AccessMask = 0x00080000
	SYNCHRONIZE           AccessMask = 0x00100000
	GENERIC_ALL           AccessMask = 0x10000000
	GENERIC_EXECUTE       AccessMask = 0x20000000
	GENERIC_WRITE         AccessMask = 0x40000000
	GENERIC_READ          AccessMask = 0x80000000

	// dataAccess is the set of bits that touches the data
	// stream. A request carrying none of them is treated
	// as a metadata or directory open.
	dataAccess = FILE_READ_DATA | FILE_WRITE_DATA |
		FILE_APPEND_DATA | FILE_EXECUTE |
		GENERIC_READ | GENERIC_WRITE | GENERIC_EXECUTE | GENERIC_ALL

	writeAccess = FILE_WRITE_DATA | FILE_APPEND_DATA |
		FILE_WRITE_ATTRIBUTES | FILE_WRITE_EA | DELETE |
		GENERIC_WRITE | GENERIC_ALL

	readAccess = FILE_READ_DATA | GENERIC_READ | GENERIC_ALL | GENERIC_EXECUTE | FILE_EXECUTE
)

// TouchesData reports whether the mask requests data access.
func (m AccessMask) TouchesData() bool {
	return m&dataAccess != 0
}

// Reads reports whether the data stream may be read.
func (m AccessMask) Reads() bool {
	return m&readAccess != 0
}

// Writes reports whether the mask may modify the entry.
func (m AccessMask) Writes() bool {
	return m&writeAccess != 0
}

// FileAttribute is the attribute bit set of a file.
type FileAttribute uint32

const (
	FILE_ATTRIBUTE_READONLY  FileAttribute = 0x00000001
	FILE_ATTRIBUTE_HIDDEN    FileAttribute = 0x00000002
	FILE_ATTRIBUTE_SYSTEM    FileAttribute = 0x00000004
	FILE_ATTRIBUTE_DIRECTORY FileAttribute = 0x00000010
	FILE_ATTRIBUTE_ARCHIVE   FileAttribute = 0x00000020
	FILE_ATTRIBUTE_NORMAL    FileAttribute = 0x00000080
	FILE_ATTRIBUTE_TEMPORARY FileAttribute = 0x00000100
)

// FileSystemFlags are reported by GetVolumeInformation.
type FileSystemFlags uint32

const (
	FILE_CASE_SENSITIVE_SEARCH    FileSystemFlags = 0x00000001
	FILE_CASE_PRESERVED_NAMES     FileSystemFlags = 0x00000002
	FILE_UNICODE_ON_DISK          FileSystemFlags = 0x00000004
	FILE_PERSISTENT_ACLS          FileSystemFlags = 0x00000008
	FILE_SUPPORTS_REMOTE_STORAGE  FileSystemFlags = 0x00000100
	FILE_READ_ONLY_VOLUME         FileSystemFlags = 0x00080000
	FILE_SUPPORTS_OPEN_BY_FILE_ID FileSystemFlags = 0x01000000
)

// MaxComponentLength is the longest name component the
// volume accepts.
const MaxComponentLength = 255

// FileInfo is the per-request context block the driver
// hands to every callback.
//
// Context holds the handle id assigned by the bridge on
// create, and is echoed back by the driver on every later
// callback for the same open.
type FileInfo struct {
	Context          uint64
	ProcessID        uint32
	IsDirectory      bool
	DeleteOnClose    bool
	PagingIO         bool
	SynchronousIO    bool
	Nocache          bool
	WriteToEndOfFile bool
}

// CreateRequest carries the parameters of ZwCreateFile.
type CreateRequest struct {
	DesiredAccess     AccessMask
	FileAttributes    FileAttribute
	ShareAccess       uint32
	CreateDisposition CreateDisposition
	CreateOptions     CreateOptions
}

// CreateResult is returned by a successful create.
type CreateResult struct {
	Handle      uint64
	Created     bool
	IsDirectory bool
}

// FileInformation is the fixed-layout attribute block of
// GetFileInformation. Time fields are FILETIME values, and
// zero means the time is not available.
type FileInformation struct {
	FileAttributes     FileAttribute
	CreationTime       uint64
	LastAccessTime     uint64
	LastWriteTime      uint64
	VolumeSerialNumber uint32
	FileSize           uint64
	NumberOfLinks      uint32
	FileIndex          uint64
}

// FindData is one entry produced by directory enumeration.
type FindData struct {
	FileAttributes    FileAttribute
	CreationTime      uint64
	LastAccessTime    uint64
	LastWriteTime     uint64
	FileSize          uint64
	FileName          string
	AlternateFileName string
}

// FillFindData receives enumerated entries. Returning false
// means the driver buffer is full and enumeration should
// pause at the current entry.
type FillFindData func(*FindData) bool

// VolumeInformation is returned by GetVolumeInformation.
type VolumeInformation struct {
	VolumeName         string
	SerialNumber       uint32
	MaxComponentLength uint32
	FileSystemFlags    FileSystemFlags
	FileSystemName     string
}

// DiskSpace is returned by GetDiskFreeSpace.
type DiskSpace struct {
	FreeBytesAvailable     uint64
	TotalNumberOfBytes     uint64
	TotalNumberOfFreeBytes uint64
}
