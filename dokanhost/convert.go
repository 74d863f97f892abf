package dokanhost

import (
	"unicode/utf16"

	dokan "github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/filetime"
)

const maxPath = 260

// nativeFiletime is the layout of FILETIME.
type nativeFiletime struct {
	LowDateTime  uint32
	HighDateTime uint32
}

// findData is the layout of WIN32_FIND_DATAW.
type findData struct {
	FileAttributes    uint32
	CreationTime      nativeFiletime
	LastAccessTime    nativeFiletime
	LastWriteTime     nativeFiletime
	FileSizeHigh      uint32
	FileSizeLow       uint32
	Reserved0         uint32
	Reserved1         uint32
	FileName          [maxPath]uint16
	AlternateFileName [14]uint16
}

// byHandleInformation is the layout of
// BY_HANDLE_FILE_INFORMATION.
type byHandleInformation struct {
	FileAttributes     uint32
	CreationTime       nativeFiletime
	LastAccessTime     nativeFiletime
	LastWriteTime      nativeFiletime
	VolumeSerialNumber uint32
	FileSizeHigh       uint32
	FileSizeLow        uint32
	NumberOfLinks      uint32
	FileIndexHigh      uint32
	FileIndexLow       uint32
}

func toFiletime(ft uint64) nativeFiletime {
	low, high := filetime.Split(ft)
	return nativeFiletime{LowDateTime: low, HighDateTime: high}
}

// fromFiletime reads an optional FILETIME argument. A nil
// pointer and the special values -1 and -2, which only
// toggle automatic updates, all mean "leave untouched".
func fromFiletime(ft *nativeFiletime) uint64 {
	if ft == nil || ft.HighDateTime == 0xFFFFFFFF {
		return 0
	}
	return filetime.Join(ft.LowDateTime, ft.HighDateTime)
}

func split64(value uint64) (low, high uint32) {
	return uint32(value), uint32(value >> 32)
}

// putUTF16 writes s NUL terminated into buf, truncating it
// to fit, and reports whether it fit entirely.
func putUTF16(buf []uint16, s string) bool {
	if len(buf) == 0 {
		return false
	}
	encoded := utf16.Encode([]rune(s))
	fit := len(encoded) < len(buf)
	if !fit {
		encoded = encoded[:len(buf)-1]
	}
	n := copy(buf, encoded)
	buf[n] = 0
	return fit
}

func encodeInformation(info *dokan.FileInformation, out *byHandleInformation) {
	out.FileAttributes = uint32(info.FileAttributes)
	out.CreationTime = toFiletime(info.CreationTime)
	out.LastAccessTime = toFiletime(info.LastAccessTime)
	out.LastWriteTime = toFiletime(info.LastWriteTime)
	out.VolumeSerialNumber = info.VolumeSerialNumber
	out.FileSizeLow, out.FileSizeHigh = split64(info.FileSize)
	out.NumberOfLinks = info.NumberOfLinks
	out.FileIndexLow, out.FileIndexHigh = split64(info.FileIndex)
}

// encodeFindData fills out from fd. Entries whose name does
// not fit MAX_PATH are rejected.
func encodeFindData(fd *dokan.FindData, out *findData) bool {
	*out = findData{}
	if !putUTF16(out.FileName[:], fd.FileName) {
		return false
	}
	putUTF16(out.AlternateFileName[:], fd.AlternateFileName)
	out.FileAttributes = uint32(fd.FileAttributes)
	out.CreationTime = toFiletime(fd.CreationTime)
	out.LastAccessTime = toFiletime(fd.LastAccessTime)
	out.LastWriteTime = toFiletime(fd.LastWriteTime)
	out.FileSizeLow, out.FileSizeHigh = split64(fd.FileSize)
	return true
}

// createStatus is the status answered to ZwCreateFile. The
// library expects STATUS_OBJECT_NAME_COLLISION when a
// disposition that may create found the entry existing, so
// that the caller learns the file was opened.
func createStatus(
	disposition dokan.CreateDisposition,
	result dokan.CreateResult, status dokan.StatusCode,
) dokan.NTStatus {
	if status != dokan.Success {
		return status.NTStatus()
	}
	if !result.Created && disposition != dokan.FILE_CREATE && disposition.MayCreate() {
		return dokan.STATUS_OBJECT_NAME_COLLISION
	}
	return dokan.STATUS_SUCCESS
}

// libraryErrors are the return codes of
// DokanCreateFileSystem.
var libraryErrors = map[int32]string{
	-1: "general error",
	-2: "bad drive letter",
	-3: "cannot install the driver",
	-4: "the driver failed to start",
	-5: "cannot assign the drive letter",
	-6: "bad mount point",
	-7: "incompatible library version",
}

func libraryError(code int32) string {
	if msg, ok := libraryErrors[code]; ok {
		return msg
	}
	return "unknown error"
}
