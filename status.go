package dokan

import (
	"fmt"
)

// NTStatus is the status value returned to the driver.
//
// The type implements error so that a callback may return
// a precise status through an error chain, in the way the
// windows.NTStatus type does.
type NTStatus uint32

const (
	STATUS_SUCCESS                NTStatus = 0x00000000
	STATUS_BUFFER_OVERFLOW        NTStatus = 0x80000005
	STATUS_NOT_IMPLEMENTED        NTStatus = 0xC0000002
	STATUS_INVALID_HANDLE         NTStatus = 0xC0000008
	STATUS_INVALID_PARAMETER      NTStatus = 0xC000000D
	STATUS_END_OF_FILE            NTStatus = 0xC0000011
	STATUS_ACCESS_DENIED          NTStatus = 0xC0000022
	STATUS_NOT_LOCKED             NTStatus = 0xC000002A
	STATUS_OBJECT_NAME_INVALID    NTStatus = 0xC0000033
	STATUS_OBJECT_NAME_NOT_FOUND  NTStatus = 0xC0000034
	STATUS_OBJECT_NAME_COLLISION  NTStatus = 0xC0000035
	STATUS_OBJECT_PATH_NOT_FOUND  NTStatus = 0xC000003A
	STATUS_SHARING_VIOLATION      NTStatus = 0xC0000043
	STATUS_LOCK_NOT_GRANTED       NTStatus = 0xC0000055
	STATUS_DISK_FULL              NTStatus = 0xC000007F
	STATUS_FILE_IS_A_DIRECTORY    NTStatus = 0xC00000BA
	STATUS_NOT_SUPPORTED          NTStatus = 0xC00000BB
	STATUS_INTERNAL_ERROR         NTStatus = 0xC00000E5
	STATUS_DIRECTORY_NOT_EMPTY    NTStatus = 0xC0000101
	STATUS_NOT_A_DIRECTORY        NTStatus = 0xC0000103
	STATUS_MEDIA_WRITE_PROTECTED  NTStatus = 0xC00000A2
	STATUS_OBJECT_NAME_EXISTS     NTStatus = 0x40000000
	STATUS_CANCELLED              NTStatus = 0xC0000120
	STATUS_INSUFFICIENT_RESOURCES NTStatus = 0xC000009A
)

var ntStatusNames = map[NTStatus]string{
	STATUS_SUCCESS:                "STATUS_SUCCESS",
	STATUS_BUFFER_OVERFLOW:        "STATUS_BUFFER_OVERFLOW",
	STATUS_NOT_IMPLEMENTED:        "STATUS_NOT_IMPLEMENTED",
	STATUS_INVALID_HANDLE:         "STATUS_INVALID_HANDLE",
	STATUS_INVALID_PARAMETER:      "STATUS_INVALID_PARAMETER",
	STATUS_END_OF_FILE:            "STATUS_END_OF_FILE",
	STATUS_ACCESS_DENIED:          "STATUS_ACCESS_DENIED",
	STATUS_NOT_LOCKED:             "STATUS_NOT_LOCKED",
	STATUS_OBJECT_NAME_INVALID:    "STATUS_OBJECT_NAME_INVALID",
	STATUS_OBJECT_NAME_NOT_FOUND:  "STATUS_OBJECT_NAME_NOT_FOUND",
	STATUS_OBJECT_NAME_COLLISION:  "STATUS_OBJECT_NAME_COLLISION",
	STATUS_OBJECT_PATH_NOT_FOUND:  "STATUS_OBJECT_PATH_NOT_FOUND",
	STATUS_SHARING_VIOLATION:      "STATUS_SHARING_VIOLATION",
	STATUS_LOCK_NOT_GRANTED:       "STATUS_LOCK_NOT_GRANTED",
	STATUS_DISK_FULL:              "STATUS_DISK_FULL",
	STATUS_FILE_IS_A_DIRECTORY:    "STATUS_FILE_IS_A_DIRECTORY",
	STATUS_NOT_SUPPORTED:          "STATUS_NOT_SUPPORTED",
	STATUS_INTERNAL_ERROR:         "STATUS_INTERNAL_ERROR",
	STATUS_DIRECTORY_NOT_EMPTY:    "STATUS_DIRECTORY_NOT_EMPTY",
	STATUS_NOT_A_DIRECTORY:        "STATUS_NOT_A_DIRECTORY",
	STATUS_MEDIA_WRITE_PROTECTED:  "STATUS_MEDIA_WRITE_PROTECTED",
	STATUS_OBJECT_NAME_EXISTS:     "STATUS_OBJECT_NAME_EXISTS",
	STATUS_CANCELLED:              "STATUS_CANCELLED",
	STATUS_INSUFFICIENT_RESOURCES: "STATUS_INSUFFICIENT_RESOURCES",
}

func (s NTStatus) String() string {
	if name, ok := ntStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("NTSTATUS(0x%08X)", uint32(s))
}

func (s NTStatus) Error() string {
	return s.String()
}

// StatusCode is the result vocabulary of every callback
// served by the bridge.
//
// A StatusCode is always one of the enumerated values, and
// each of them maps to exactly one NTStatus. Returning a
// value outside the enumeration is prevented by NTStatus,
// which folds unknown codes into STATUS_INTERNAL_ERROR.
type StatusCode uint8

const (
	Success StatusCode = iota
	NotFound
	AlreadyExists
	AccessDenied
	InvalidHandle
	DirectoryNotEmpty
	NotADirectory
	IsADirectory
	DiskFull
	Unsupported
	InternalError

	// InvalidPath reports a name rejected by the path
	// resolver before any backend call.
	InvalidPath

	// InvalidParameter reports a malformed request, such
	// as an unknown create disposition.
	InvalidParameter

	// SharingViolation reports an entry that is busy in
	// a way that forbids the request, such as renaming
	// over a path that other handles hold open.
	SharingViolation

	// PathNotFound reports a missing parent directory.
	PathNotFound

	numStatusCodes
)

var statusCodeTable = [numStatusCodes]struct {
	name   string
	status NTStatus
}{
	Success:           {"Success", STATUS_SUCCESS},
	NotFound:          {"NotFound", STATUS_OBJECT_NAME_NOT_FOUND},
	AlreadyExists:     {"AlreadyExists", STATUS_OBJECT_NAME_COLLISION},
	AccessDenied:      {"AccessDenied", STATUS_ACCESS_DENIED},
	InvalidHandle:     {"InvalidHandle", STATUS_INVALID_HANDLE},
	DirectoryNotEmpty: {"DirectoryNotEmpty", STATUS_DIRECTORY_NOT_EMPTY},
	NotADirectory:     {"NotADirectory", STATUS_NOT_A_DIRECTORY},
	IsADirectory:      {"IsADirectory", STATUS_FILE_IS_A_DIRECTORY},
	DiskFull:          {"DiskFull", STATUS_DISK_FULL},
	Unsupported:       {"Unsupported", STATUS_NOT_SUPPORTED},
	InternalError:     {"InternalError", STATUS_INTERNAL_ERROR},
	InvalidPath:       {"InvalidPath", STATUS_OBJECT_NAME_INVALID},
	InvalidParameter:  {"InvalidParameter", STATUS_INVALID_PARAMETER},
	SharingViolation:  {"SharingViolation", STATUS_SHARING_VIOLATION},
	PathNotFound:      {"PathNotFound", STATUS_OBJECT_PATH_NOT_FOUND},
}

// Valid reports whether the code is one of the enumerated
// values.
func (c StatusCode) Valid() bool {
	return c < numStatusCodes
}

func (c StatusCode) String() string {
	if !c.Valid() {
		return fmt.Sprintf("StatusCode(%d)", uint8(c))
	}
	return statusCodeTable[c].name
}

// Error makes a StatusCode usable as an error, so that a
// helper deep inside the bridge can pin the final status.
// Success is not meant to be returned as an error.
func (c StatusCode) Error() string {
	return c.String()
}

// NTStatus returns the driver status for the code.
func (c StatusCode) NTStatus() NTStatus {
	if !c.Valid() {
		return STATUS_INTERNAL_ERROR
	}
	return statusCodeTable[c].status
}

// StatusCodeFromNTStatus is the reverse of NTStatus. The
// statuses without a direct counterpart are folded into
// the closest code, and unknown failures are reported as
// InternalError.
func StatusCodeFromNTStatus(s NTStatus) StatusCode {
	for code := StatusCode(0); code < numStatusCodes; code++ {
		if statusCodeTable[code].status == s {
			return code
		}
	}
	switch s {
	case STATUS_OBJECT_NAME_EXISTS:
		return AlreadyExists
	case STATUS_NOT_IMPLEMENTED:
		return Unsupported
	case STATUS_MEDIA_WRITE_PROTECTED, STATUS_LOCK_NOT_GRANTED:
		return AccessDenied
	case STATUS_INSUFFICIENT_RESOURCES:
		return DiskFull
	}
	return InternalError
}
