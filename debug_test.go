package dokan

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/godokan/go-dokan/filetime"
)

func TestDebugFlags(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("0", DebugFileAttributes(0).String())
	assert.Equal("READONLY|DIRECTORY",
		DebugFileAttributes(FILE_ATTRIBUTE_DIRECTORY|FILE_ATTRIBUTE_READONLY).String())
	assert.Equal("NORMAL|0x10000", DebugFileAttributes(0x10080).String())
	assert.Equal("DIRECTORY_FILE|DELETE_ON_CLOSE",
		DebugCreateOptions(FILE_DIRECTORY_FILE|FILE_DELETE_ON_CLOSE).String())
	assert.Equal("GENERIC_READ|SYNCHRONIZE",
		DebugAccessMask(GENERIC_READ|SYNCHRONIZE).String())
	assert.Equal("OPEN_IF", DebugCreateDisposition(FILE_OPEN_IF).String())
	assert.Equal("0x9", DebugCreateDisposition(9).String())
}

func TestDebugStructs(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("(*FileInfo)(nil)", DebugFileInfo{}.String())
	assert.Nil(DebugFileInfo{}.Fields())

	info := &FileInfo{Context: 100, IsDirectory: true}
	assert.Equal(
		"&FileInfo{ Context: 100, DeleteOnClose: false, IsDirectory: true, "+
			"PagingIO: false, ProcessID: 0, WriteToEndOfFile: false }",
		DebugFileInfo{info}.String())

	fileInfo := &FileInformation{
		FileAttributes: FILE_ATTRIBUTE_NORMAL,
		LastWriteTime:  filetime.UnixEpoch,
		FileSize:       5,
	}
	fields := DebugFileInformation{fileInfo}.Fields()
	assert.Equal("FILETIME(unavailable)", fields["CreationTime"].(DebugFiletime).String())
	assert.Contains(fields["LastWriteTime"].(DebugFiletime).String(), "1970-01-01T00:00:00Z")
	assert.Equal(uint64(5), fields["FileSize"])
}
