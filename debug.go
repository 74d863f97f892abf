package dokan

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/godokan/go-dokan/filetime"
)

// DebugStruct is the interface to signify that the struct
// has internal fields, which can be serialized by the
// Fields method.
//
// Please notice that the Fields method can return nil, and
// the caller must handle that.
type DebugStruct interface {
	Fields() map[string]any
}

// JoinDebugStructFields with comma, ordered by field name.
func JoinDebugStructFields(s DebugStruct) string {
	m := s.Fields()
	if m == nil {
		return ""
	}
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	fields := make([]string, 0, len(keys))
	for _, key := range keys {
		fields = append(fields, fmt.Sprintf("%s: %v", key, m[key]))
	}
	return strings.Join(fields, ", ")
}

type flagName struct {
	flag uint32
	name string
}

func formatFlags(value uint32, names []flagName) string {
	var flags []string
	for _, item := range names {
		if value&item.flag == item.flag && item.flag != 0 {
			flags = append(flags, item.name)
			value &^= item.flag
		}
	}
	if value != 0 {
		flags = append(flags, fmt.Sprintf("0x%x", value))
	}
	if len(flags) == 0 {
		return "0"
	}
	return strings.Join(flags, "|")
}

// DebugCreateDisposition is the format wrapper for
// debugging the create disposition.
type DebugCreateDisposition CreateDisposition

var dispositionNames = [...]string{
	FILE_SUPERSEDE:    "SUPERSEDE",
	FILE_OPEN:         "OPEN",
	FILE_CREATE:       "CREATE",
	FILE_OPEN_IF:      "OPEN_IF",
	FILE_OVERWRITE:    "OVERWRITE",
	FILE_OVERWRITE_IF: "OVERWRITE_IF",
}

func (d DebugCreateDisposition) String() string {
	if CreateDisposition(d).Valid() {
		return dispositionNames[d]
	}
	return fmt.Sprintf("0x%x", uint32(d))
}

// DebugCreateOptions is the format wrapper for debugging
// `createOptions` flags.
type DebugCreateOptions CreateOptions

var createOptionsNames = []flagName{
	{uint32(FILE_DIRECTORY_FILE), "DIRECTORY_FILE"},
	{uint32(FILE_WRITE_THROUGH), "WRITE_THROUGH"},
	{uint32(FILE_SEQUENTIAL_ONLY), "SEQUENTIAL_ONLY"},
	{uint32(FILE_NO_INTERMEDIATE_BUFFERING), "NO_INTERMEDIATE_BUFFERING"},
	{uint32(FILE_SYNCHRONOUS_IO_ALERT), "SYNCHRONOUS_IO_ALERT"},
	{uint32(FILE_SYNCHRONOUS_IO_NONALERT), "SYNCHRONOUS_IO_NONALERT"},
	{uint32(FILE_NON_DIRECTORY_FILE), "NON_DIRECTORY_FILE"},
	{uint32(FILE_RANDOM_ACCESS), "RANDOM_ACCESS"},
	{uint32(FILE_DELETE_ON_CLOSE), "DELETE_ON_CLOSE"},
	{uint32(FILE_OPEN_BY_FILE_ID), "OPEN_BY_FILE_ID"},
	{uint32(FILE_OPEN_FOR_BACKUP_INTENT), "OPEN_FOR_BACKUP_INTENT"},
	{uint32(FILE_OPEN_REPARSE_POINT), "OPEN_REPARSE_POINT"},
}

func (d DebugCreateOptions) String() string {
	return formatFlags(uint32(d), createOptionsNames)
}

// DebugAccessMask is the format wrapper for debugging
// `desiredAccess` flags.
type DebugAccessMask AccessMask

var accessMaskNames = []flagName{
	{uint32(GENERIC_ALL), "GENERIC_ALL"},
	{uint32(GENERIC_READ), "GENERIC_READ"},
	{uint32(GENERIC_WRITE), "GENERIC_WRITE"},
	{uint32(GENERIC_EXECUTE), "GENERIC_EXECUTE"},
	{uint32(DELETE), "DELETE"},
	{uint32(FILE_READ_DATA), "READ_DATA|LIST_DIRECTORY"},
	{uint32(FILE_READ_ATTRIBUTES), "READ_ATTRIBUTES"},
	{uint32(FILE_READ_EA), "READ_EA"},
	{uint32(READ_CONTROL), "READ_CONTROL"},
	{uint32(FILE_WRITE_DATA), "WRITE_DATA|ADD_FILE"},
	{uint32(FILE_WRITE_ATTRIBUTES), "WRITE_ATTRIBUTES"},
	{uint32(FILE_WRITE_EA), "WRITE_EA"},
	{uint32(FILE_APPEND_DATA), "APPEND_DATA|ADD_SUBDIRECTORY"},
	{uint32(WRITE_DAC), "WRITE_DAC"},
	{uint32(WRITE_OWNER), "WRITE_OWNER"},
	{uint32(SYNCHRONIZE), "SYNCHRONIZE"},
	{uint32(FILE_EXECUTE), "EXECUTE|TRAVERSE"},
}

func (d DebugAccessMask) String() string {
	return formatFlags(uint32(d), accessMaskNames)
}

// DebugFileAttributes is the format wrapper for debugging
// `fileAttributes` flags.
type DebugFileAttributes FileAttribute

var fileAttributesNames = []flagName{
	{uint32(FILE_ATTRIBUTE_READONLY), "READONLY"},
	{uint32(FILE_ATTRIBUTE_HIDDEN), "HIDDEN"},
	{uint32(FILE_ATTRIBUTE_SYSTEM), "SYSTEM"},
	{uint32(FILE_ATTRIBUTE_DIRECTORY), "DIRECTORY"},
	{uint32(FILE_ATTRIBUTE_ARCHIVE), "ARCHIVE"},
	{uint32(FILE_ATTRIBUTE_NORMAL), "NORMAL"},
	{uint32(FILE_ATTRIBUTE_TEMPORARY), "TEMPORARY"},
}

func (d DebugFileAttributes) String() string {
	return formatFlags(uint32(d), fileAttributesNames)
}

// DebugFiletime is the format wrapper for debugging
// FILETIME values.
type DebugFiletime uint64

func (d DebugFiletime) String() string {
	if d == 0 {
		return "FILETIME(unavailable)"
	}
	return fmt.Sprintf(
		"FILETIME(%d, %q)", uint64(d),
		filetime.Time(uint64(d)).UTC().Format(time.RFC3339),
	)
}

// DebugFileInfo is the format wrapper for debugging the
// per-request *FileInfo block.
type DebugFileInfo struct {
	*FileInfo
}

func (d DebugFileInfo) Fields() map[string]any {
	info := d.FileInfo
	if info == nil {
		return nil
	}
	return map[string]any{
		"Context":          info.Context,
		"ProcessID":        info.ProcessID,
		"IsDirectory":      info.IsDirectory,
		"DeleteOnClose":    info.DeleteOnClose,
		"PagingIO":         info.PagingIO,
		"WriteToEndOfFile": info.WriteToEndOfFile,
	}
}

func (d DebugFileInfo) String() string {
	if d.FileInfo == nil {
		return "(*FileInfo)(nil)"
	}
	return "&FileInfo{ " + JoinDebugStructFields(d) + " }"
}

// DebugCreateRequest is the format wrapper for debugging
// *CreateRequest.
type DebugCreateRequest struct {
	*CreateRequest
}

func (d DebugCreateRequest) Fields() map[string]any {
	req := d.CreateRequest
	if req == nil {
		return nil
	}
	return map[string]any{
		"DesiredAccess":     DebugAccessMask(req.DesiredAccess),
		"FileAttributes":    DebugFileAttributes(req.FileAttributes),
		"ShareAccess":       req.ShareAccess,
		"CreateDisposition": DebugCreateDisposition(req.CreateDisposition),
		"CreateOptions":     DebugCreateOptions(req.CreateOptions),
	}
}

func (d DebugCreateRequest) String() string {
	if d.CreateRequest == nil {
		return "(*CreateRequest)(nil)"
	}
	return "&CreateRequest{ " + JoinDebugStructFields(d) + " }"
}

// DebugFileInformation is the format wrapper for debugging
// *FileInformation.
type DebugFileInformation struct {
	*FileInformation
}

func (d DebugFileInformation) Fields() map[string]any {
	info := d.FileInformation
	if info == nil {
		return nil
	}
	return map[string]any{
		"FileAttributes":     DebugFileAttributes(info.FileAttributes),
		"CreationTime":       DebugFiletime(info.CreationTime),
		"LastAccessTime":     DebugFiletime(info.LastAccessTime),
		"LastWriteTime":      DebugFiletime(info.LastWriteTime),
		"VolumeSerialNumber": info.VolumeSerialNumber,
		"FileSize":           info.FileSize,
		"NumberOfLinks":      info.NumberOfLinks,
		"FileIndex":          info.FileIndex,
	}
}

func (d DebugFileInformation) String() string {
	if d.FileInformation == nil {
		return "(*FileInformation)(nil)"
	}
	return "&FileInformation{ " + JoinDebugStructFields(d) + " }"
}

// DebugVolumeInformation is the format wrapper for
// debugging *VolumeInformation.
type DebugVolumeInformation struct {
	*VolumeInformation
}

func (d DebugVolumeInformation) Fields() map[string]any {
	info := d.VolumeInformation
	if info == nil {
		return nil
	}
	return map[string]any{
		"VolumeName":         info.VolumeName,
		"SerialNumber":       info.SerialNumber,
		"MaxComponentLength": info.MaxComponentLength,
		"FileSystemFlags":    fmt.Sprintf("0x%x", uint32(info.FileSystemFlags)),
		"FileSystemName":     info.FileSystemName,
	}
}

func (d DebugVolumeInformation) String() string {
	if d.VolumeInformation == nil {
		return "(*VolumeInformation)(nil)"
	}
	return "&VolumeInformation{ " + JoinDebugStructFields(d) + " }"
}
