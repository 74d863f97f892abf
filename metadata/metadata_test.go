package metadata

import (
	"io/fs"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/backend"
	"github.com/godokan/go-dokan/filetime"
)

var (
	modTime    = time.Date(2023, 3, 4, 5, 6, 7, 800, time.UTC)
	accessTime = modTime.Add(time.Minute)
	createTime = modTime.Add(-time.Hour)
)

func sampleFile(mode fs.FileMode) backend.Stat {
	return backend.Stat{
		Name:       "file.txt",
		Size:       1234,
		Mode:       mode,
		ModTime:    modTime,
		AccessTime: accessTime,
		CreateTime: createTime,
		Links:      2,
		Index:      42,
	}
}

func TestToDriver(t *testing.T) {
	assert := assert.New(t)
	m := Mapper{VolumeSerial: 0x19831116}

	info := m.ToDriver(sampleFile(0o644), nil)
	assert.Equal(dokan.FILE_ATTRIBUTE_NORMAL, info.FileAttributes)
	assert.Equal(uint64(1234), info.FileSize)
	assert.Equal(filetime.Timestamp(modTime), info.LastWriteTime)
	assert.Equal(filetime.Timestamp(accessTime), info.LastAccessTime)
	assert.Equal(filetime.Timestamp(createTime), info.CreationTime)
	assert.Equal(uint32(0x19831116), info.VolumeSerialNumber)
	assert.Equal(uint32(2), info.NumberOfLinks)
	assert.Equal(uint64(42), info.FileIndex)

	dir := backend.Stat{Name: "d", Size: 4096, Mode: fs.ModeDir | 0o555}
	info = m.ToDriver(dir, nil)
	assert.Equal(dokan.FILE_ATTRIBUTE_DIRECTORY, info.FileAttributes)
	assert.Equal(uint64(0), info.FileSize)
	assert.Equal(uint64(0), info.LastWriteTime)
	assert.Equal(uint64(0), info.CreationTime)
	assert.Equal(uint32(1), info.NumberOfLinks)

	// Missing times fall back to the modification time.
	partial := backend.Stat{Name: "p", Mode: 0o644, ModTime: modTime}
	info = m.ToDriver(partial, nil)
	assert.Equal(info.LastWriteTime, info.CreationTime)
	assert.Equal(info.LastWriteTime, info.LastAccessTime)

	find := m.ToFindData(sampleFile(0o444), nil)
	assert.Equal("file.txt", find.FileName)
	assert.Equal(dokan.FILE_ATTRIBUTE_READONLY, find.FileAttributes)
	assert.Equal(uint64(1234), find.FileSize)
}

func TestReadOnlyModes(t *testing.T) {
	assert := assert.New(t)
	writableDir := &backend.Stat{Mode: fs.ModeDir | 0o755}
	lockedDir := &backend.Stat{Mode: fs.ModeDir | 0o555}

	for _, c := range []struct {
		mode   ReadOnlyMode
		self   fs.FileMode
		parent *backend.Stat
		want   dokan.FileAttribute
	}{
		{ReadOnlyWindows, 0o644, nil, dokan.FILE_ATTRIBUTE_NORMAL},
		{ReadOnlyWindows, 0o444, nil, dokan.FILE_ATTRIBUTE_READONLY},
		{ReadOnlyBypass, 0o444, nil, dokan.FILE_ATTRIBUTE_NORMAL},
		{ReadOnlyAlways, 0o644, nil, dokan.FILE_ATTRIBUTE_READONLY},
		{ReadOnlyPOSIX, 0o444, writableDir, dokan.FILE_ATTRIBUTE_NORMAL},
		{ReadOnlyPOSIX, 0o444, lockedDir, dokan.FILE_ATTRIBUTE_READONLY},
		{ReadOnlyPOSIX, 0o444, nil, dokan.FILE_ATTRIBUTE_READONLY},
		{ReadOnlyPOSIX, 0o644, lockedDir, dokan.FILE_ATTRIBUTE_NORMAL},
		{ReadOnlyAlways, fs.ModeDir | 0o755, nil, dokan.FILE_ATTRIBUTE_DIRECTORY},
	} {
		m := Mapper{ReadOnly: c.mode}
		got := m.Attributes(backend.Stat{Mode: c.self}, c.parent)
		assert.Equal(c.want, got, "%s %v", c.mode, c.self)
	}
	assert.True(ReadOnlyPOSIX.NeedParent())
	assert.False(ReadOnlyWindows.NeedParent())
}

func TestParseReadOnlyMode(t *testing.T) {
	assert := assert.New(t)
	for _, mode := range []ReadOnlyMode{
		ReadOnlyWindows, ReadOnlyBypass, ReadOnlyAlways, ReadOnlyPOSIX,
	} {
		parsed, err := ParseReadOnlyMode(mode.String())
		assert.NoError(err)
		assert.Equal(mode, parsed)
	}
	parsed, err := ParseReadOnlyMode(" POSIX ")
	assert.NoError(err)
	assert.Equal(ReadOnlyPOSIX, parsed)
	parsed, err = ParseReadOnlyMode("")
	assert.NoError(err)
	assert.Equal(ReadOnlyWindows, parsed)
	_, err = ParseReadOnlyMode("sometimes")
	assert.Error(err)
	assert.False(ReadOnlyMode(9).Valid())
	assert.Equal("ReadOnlyMode(9)", ReadOnlyMode(9).String())
}

func TestRoundTrip(t *testing.T) {
	assert := assert.New(t)
	m := Mapper{}

	for _, stat := range []backend.Stat{
		sampleFile(0o644),
		sampleFile(0o444),
		{Name: "d", Mode: fs.ModeDir | 0o755, ModTime: modTime, AccessTime: accessTime, CreateTime: createTime},
		{Name: "empty", Mode: 0o600},
	} {
		restored := FromDriver(m.ToDriver(stat, nil)).Apply(backend.Stat{Name: stat.Name})
		assert.Equal(stat.IsDir(), restored.IsDir(), stat.Name)
		assert.Equal(writable(stat.Mode) || stat.IsDir(), writable(restored.Mode) || restored.IsDir(), stat.Name)
		if !stat.IsDir() {
			assert.Equal(stat.Size, restored.Size, stat.Name)
		}
		// FILETIME keeps 100ns ticks.
		for _, pair := range [][2]time.Time{
			{stat.ModTime, restored.ModTime},
			{stat.AccessTime, restored.AccessTime},
			{stat.CreateTime, restored.CreateTime},
		} {
			if pair[0].IsZero() {
				continue
			}
			assert.True(pair[0].Truncate(100).Equal(pair[1]), "%v != %v", pair[0], pair[1])
		}
	}
}

func TestPatch(t *testing.T) {
	assert := assert.New(t)

	assert.True(FromDriver(dokan.FileInformation{}).Empty())
	assert.True(TimesPatch(0, math.MaxUint64, 0).Empty())

	p := AttributesPatch(dokan.FILE_ATTRIBUTE_READONLY)
	assert.False(p.Empty())
	assert.Equal(fs.FileMode(0o444), p.Mode(0o644))
	assert.Equal(fs.ModeDir|0o755, p.Mode(fs.ModeDir|0o755))

	p = AttributesPatch(dokan.FILE_ATTRIBUTE_NORMAL)
	assert.Equal(fs.FileMode(0o644), p.Mode(0o444|0o200))
	assert.Equal(fs.FileMode(0o600), p.Mode(0o400))

	when := filetime.Timestamp(modTime)
	p = TimesPatch(0, 0, when)
	assert.Nil(p.CreationTime)
	assert.Nil(p.LastAccessTime)
	if assert.NotNil(p.LastWriteTime) {
		assert.True(modTime.Truncate(100).Equal(*p.LastWriteTime))
	}
	stat := p.Apply(backend.Stat{Mode: 0o644, AccessTime: accessTime})
	assert.Equal(accessTime, stat.AccessTime)
	assert.Equal(fs.FileMode(0o644), stat.Mode)
}
