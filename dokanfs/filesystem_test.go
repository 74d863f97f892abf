package dokanfs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/backend"
	"github.com/godokan/go-dokan/filetime"
	"github.com/godokan/go-dokan/handletable"
	"github.com/godokan/go-dokan/log"
	"github.com/godokan/go-dokan/memfs"
	"github.com/godokan/go-dokan/metadata"
)

var ctx = context.Background()

const rw = dokan.GENERIC_READ | dokan.GENERIC_WRITE

type Assert struct {
	*assert.Assertions
	t     *testing.T
	fs    *FileSystem
	inner backend.FileSystem
}

func newAssert(t *testing.T, opts ...NewOption) *Assert {
	return newAssertWith(t, memfs.New(), opts...)
}

func newAssertWith(t *testing.T, inner backend.FileSystem, opts ...NewOption) *Assert {
	fs, err := New(inner, opts...)
	require.NoError(t, err)
	return &Assert{
		Assertions: assert.New(t),
		t:          t,
		fs:         fs,
		inner:      inner,
	}
}

func (a *Assert) create(
	name string, disposition dokan.CreateDisposition,
	options dokan.CreateOptions, access dokan.AccessMask,
) (*dokan.FileInfo, dokan.CreateResult, dokan.StatusCode) {
	info := &dokan.FileInfo{}
	result, status := a.fs.CreateFile(ctx, name, &dokan.CreateRequest{
		DesiredAccess:     access,
		CreateDisposition: disposition,
		CreateOptions:     options,
	}, info)
	return info, result, status
}

// Status returns the status of a create, closing the
// handle if it was opened.
func (a *Assert) Status(
	name string, disposition dokan.CreateDisposition,
	options dokan.CreateOptions, access dokan.AccessMask,
) dokan.StatusCode {
	info, _, status := a.create(name, disposition, options, access)
	if status == dokan.Success {
		a.Close(name, info)
	}
	return status
}

func (a *Assert) Open(
	name string, disposition dokan.CreateDisposition,
	options dokan.CreateOptions, access dokan.AccessMask,
) *dokan.FileInfo {
	info, _, status := a.create(name, disposition, options, access)
	require.Equal(a.t, dokan.Success, status, "create %s", name)
	return info
}

func (a *Assert) Close(name string, info *dokan.FileInfo) {
	a.fs.Cleanup(ctx, name, info)
	a.fs.CloseFile(ctx, name, info)
}

// Delete requests the deletion of the file of info, with
// the flag the driver sets before calling DeleteFile.
func (a *Assert) Delete(name string, info *dokan.FileInfo) dokan.StatusCode {
	info.DeleteOnClose = true
	return a.fs.DeleteFile(ctx, name, info)
}

func (a *Assert) DeleteDir(name string, info *dokan.FileInfo) dokan.StatusCode {
	info.DeleteOnClose = true
	return a.fs.DeleteDirectory(ctx, name, info)
}

func (a *Assert) Mkdir(name string) {
	info := a.Open(name, dokan.FILE_CREATE, dokan.FILE_DIRECTORY_FILE, dokan.FILE_READ_ATTRIBUTES)
	a.True(info.IsDirectory)
	a.Close(name, info)
}

func (a *Assert) WriteFile(name, content string) {
	info := a.Open(name, dokan.FILE_OVERWRITE_IF, 0, rw)
	defer a.Close(name, info)
	n, status := a.fs.WriteFile(ctx, name, []byte(content), 0, info)
	a.Equal(dokan.Success, status)
	a.Equal(len(content), n)
}

func (a *Assert) Read(name string, info *dokan.FileInfo) string {
	buf := make([]byte, 4096)
	n, status := a.fs.ReadFile(ctx, name, buf, 0, info)
	a.Equal(dokan.Success, status)
	return string(buf[:n])
}

func (a *Assert) ReadFile(name string) string {
	info := a.Open(name, dokan.FILE_OPEN, 0, dokan.GENERIC_READ)
	defer a.Close(name, info)
	return a.Read(name, info)
}

func (a *Assert) Exists(name string) bool {
	ok, err := a.inner.Exists(name)
	a.NoError(err)
	return ok
}

// wrapFS hides the optional capabilities of the files of a
// backend, and can make them slow or report a stale size.
type wrapFS struct {
	backend.FileSystem
	stale bool
	delay time.Duration
}

func (w *wrapFS) Open(name string, flag int) (backend.File, error) {
	f, err := w.FileSystem.Open(name, flag)
	if err != nil {
		return nil, err
	}
	return wrapFile{File: f, fs: w}, nil
}

type wrapFile struct {
	backend.File
	fs *wrapFS
}

func (f wrapFile) Stat() (backend.Stat, error) {
	stat, err := f.File.Stat()
	if f.fs.stale {
		stat.Size = 0
	}
	return stat, err
}

func (f wrapFile) ReadAt(p []byte, off int64) (int, error) {
	time.Sleep(f.fs.delay)
	return f.File.ReadAt(p, off)
}

func TestCreateWriteRead(t *testing.T) {
	a := newAssert(t)

	info, result, status := a.create(`\a.txt`, dokan.FILE_CREATE, 0, rw)
	require.Equal(t, dokan.Success, status)
	a.True(result.Created)
	a.False(info.IsDirectory)
	a.Equal(result.Handle, info.Context)
	a.GreaterOrEqual(info.Context, handletable.MinimumHandle)
	n, status := a.fs.WriteFile(ctx, `\a.txt`, []byte("hello"), 0, info)
	a.Equal(dokan.Success, status)
	a.Equal(5, n)
	a.Close(`\a.txt`, info)

	info = a.Open(`\a.txt`, dokan.FILE_OPEN, 0, dokan.GENERIC_READ)
	defer a.Close(`\a.txt`, info)
	buf := make([]byte, 5)
	n, status = a.fs.ReadFile(ctx, `\a.txt`, buf, 0, info)
	a.Equal(dokan.Success, status)
	a.Equal(5, n)
	a.Equal("hello", string(buf))

	n, status = a.fs.ReadFile(ctx, `\a.txt`, buf, 5, info)
	a.Equal(dokan.Success, status)
	a.Equal(0, n)
	n, status = a.fs.ReadFile(ctx, `\a.txt`, buf, 3, info)
	a.Equal(dokan.Success, status)
	a.Equal(2, n)

	_, status = a.fs.WriteFile(ctx, `\a.txt`, []byte("x"), 0, info)
	a.Equal(dokan.AccessDenied, status)
	_, status = a.fs.ReadFile(ctx, `\a.txt`, buf, -1, info)
	a.Equal(dokan.InvalidParameter, status)
	a.Equal(dokan.Success, a.fs.FlushFileBuffers(ctx, `\a.txt`, info))
}

func TestOpenMissing(t *testing.T) {
	a := newAssert(t)
	before := a.fs.handles.Len()
	info, _, status := a.create(`\missing.txt`, dokan.FILE_OPEN, 0, dokan.GENERIC_READ)
	a.Equal(dokan.NotFound, status)
	a.Equal(uint64(0), info.Context)
	a.Equal(before, a.fs.handles.Len())
	a.False(a.Exists("/missing.txt"))
}

func TestCreateDispositions(t *testing.T) {
	a := newAssert(t)
	a.WriteFile(`\f`, "content")
	a.Mkdir(`\d`)
	stat, err := a.inner.Stat("/d")
	a.NoError(err)
	a.True(stat.IsDir())

	a.Equal(dokan.AlreadyExists, a.Status(`\f`, dokan.FILE_CREATE, 0, rw))
	a.Equal(dokan.AlreadyExists, a.Status(`\d`, dokan.FILE_CREATE, dokan.FILE_DIRECTORY_FILE, 0))
	a.Equal(dokan.NotFound, a.Status(`\missing`, dokan.FILE_OVERWRITE, 0, rw))
	a.Equal(dokan.InvalidParameter, a.Status(`\f`, dokan.CreateDisposition(9), 0, rw))
	a.Equal(dokan.InvalidParameter, a.Status(`\f`, dokan.FILE_OPEN,
		dokan.FILE_DIRECTORY_FILE|dokan.FILE_NON_DIRECTORY_FILE, rw))
	a.Equal(dokan.InvalidParameter, a.Status(`\d`, dokan.FILE_OVERWRITE, 0, rw))
	a.Equal(dokan.InvalidParameter, a.Status(`\e`, dokan.FILE_OVERWRITE_IF, dokan.FILE_DIRECTORY_FILE, 0))
	a.Equal(dokan.PathNotFound, a.Status(`\nope\f`, dokan.FILE_CREATE, 0, rw))
	a.Equal(dokan.PathNotFound, a.Status(`\f\child`, dokan.FILE_CREATE, 0, rw))
	a.Equal(dokan.IsADirectory, a.Status(`\d`, dokan.FILE_OPEN, dokan.FILE_NON_DIRECTORY_FILE, rw))
	a.Equal(dokan.NotADirectory, a.Status(`\f`, dokan.FILE_OPEN, dokan.FILE_DIRECTORY_FILE, 0))
	a.Equal(dokan.InvalidPath, a.Status(`\a|b`, dokan.FILE_OPEN_IF, 0, rw))
	a.Equal(dokan.InvalidPath, a.Status(`\`+strings.Repeat("n", 256), dokan.FILE_OPEN_IF, 0, rw))
	a.Equal(0, a.fs.handles.Len())

	func() {
		info, result, status := a.create(`\new`, dokan.FILE_OPEN_IF, 0, rw)
		require.Equal(t, dokan.Success, status)
		a.True(result.Created)
		a.Close(`\new`, info)
		info, result, status = a.create(`\new`, dokan.FILE_OPEN_IF, 0, rw)
		require.Equal(t, dokan.Success, status)
		a.False(result.Created)
		a.Close(`\new`, info)
	}()

	func() {
		info, result, status := a.create(`\f`, dokan.FILE_OVERWRITE_IF, 0, dokan.GENERIC_WRITE)
		require.Equal(t, dokan.Success, status)
		a.False(result.Created)
		a.Close(`\f`, info)
		stat, err := a.inner.Stat("/f")
		a.NoError(err)
		a.Equal(int64(0), stat.Size)
	}()

	func() {
		info := a.Open(`\d`, dokan.FILE_OPEN, 0, dokan.FILE_READ_ATTRIBUTES)
		defer a.Close(`\d`, info)
		a.True(info.IsDirectory)
		_, status := a.fs.ReadFile(ctx, `\d`, make([]byte, 1), 0, info)
		a.Equal(dokan.IsADirectory, status)
	}()

	func() {
		info := &dokan.FileInfo{IsDirectory: true}
		result, status := a.fs.CreateFile(ctx, `\e`, &dokan.CreateRequest{
			CreateDisposition: dokan.FILE_OPEN_IF,
		}, info)
		require.Equal(t, dokan.Success, status)
		defer a.Close(`\e`, info)
		a.True(result.Created)
		a.True(result.IsDirectory)
		stat, err := a.inner.Stat("/e")
		a.NoError(err)
		a.True(stat.IsDir())
	}()

	func() {
		_, status := a.fs.CreateFile(ctx, `\f`, nil, &dokan.FileInfo{})
		a.Equal(dokan.InvalidParameter, status)
	}()
}

func TestCancelledCreate(t *testing.T) {
	a := newAssert(t)
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	info := &dokan.FileInfo{}
	_, status := a.fs.CreateFile(cctx, `\f`, &dokan.CreateRequest{
		DesiredAccess:     rw,
		CreateDisposition: dokan.FILE_CREATE,
	}, info)
	a.Equal(dokan.InternalError, status)
	a.Equal(uint64(0), info.Context)
	a.Equal(0, a.fs.handles.Len())
	a.False(a.Exists("/f"))
}

func TestHandleLifecycle(t *testing.T) {
	a := newAssert(t)
	a.WriteFile(`\f`, "x")
	info := a.Open(`\f`, dokan.FILE_OPEN, 0, dokan.GENERIC_READ)
	stale := *info

	a.fs.Cleanup(ctx, `\f`, info)
	_, status := a.fs.ReadFile(ctx, `\f`, make([]byte, 1), 0, info)
	a.Equal(dokan.InternalError, status)
	_, status = a.fs.GetFileInformation(ctx, `\f`, info)
	a.Equal(dokan.InternalError, status)
	a.fs.Cleanup(ctx, `\f`, info)

	a.fs.CloseFile(ctx, `\f`, info)
	a.Equal(uint64(0), info.Context)
	a.Equal(0, a.fs.handles.Len())
	_, status = a.fs.ReadFile(ctx, `\f`, make([]byte, 1), 0, &stale)
	a.Equal(dokan.InvalidHandle, status)
	a.Equal(dokan.InvalidHandle, a.fs.FlushFileBuffers(ctx, `\f`, &stale))
	a.fs.CloseFile(ctx, `\f`, &stale)
	a.fs.Cleanup(ctx, `\f`, &stale)
	a.fs.CloseFile(ctx, `\f`, nil)

	// A close without cleanup still cleans up.
	info = a.Open(`\f`, dokan.FILE_OPEN, dokan.FILE_DELETE_ON_CLOSE, rw)
	a.fs.CloseFile(ctx, `\f`, info)
	a.False(a.Exists("/f"))
}

func TestPagingAfterCleanup(t *testing.T) {
	a := newAssert(t)
	a.WriteFile(`\f`, "hello")
	info := a.Open(`\f`, dokan.FILE_OPEN, 0, rw)
	a.fs.Cleanup(ctx, `\f`, info)

	_, status := a.fs.WriteFile(ctx, `\f`, []byte("HE"), 0, info)
	a.Equal(dokan.InternalError, status)

	// The lazy writer flushes through the cleaned handle.
	info.PagingIO = true
	n, status := a.fs.WriteFile(ctx, `\f`, []byte("HE"), 0, info)
	a.Equal(dokan.Success, status)
	a.Equal(2, n)
	a.Equal("HEllo", a.Read(`\f`, info))
	info.PagingIO = false
	_, status = a.fs.ReadFile(ctx, `\f`, make([]byte, 1), 0, info)
	a.Equal(dokan.InternalError, status)
	a.fs.CloseFile(ctx, `\f`, info)
	a.Equal("HEllo", a.ReadFile(`\f`))
	a.Equal(0, a.fs.handles.Len())

	// Nothing is left to page once the entry is deleted.
	info = a.Open(`\f`, dokan.FILE_OPEN, dokan.FILE_DELETE_ON_CLOSE, rw)
	a.fs.Cleanup(ctx, `\f`, info)
	a.False(a.Exists("/f"))
	info.PagingIO = true
	_, status = a.fs.ReadFile(ctx, `\f`, make([]byte, 1), 0, info)
	a.NotEqual(dokan.Success, status)
	a.fs.CloseFile(ctx, `\f`, info)
}

func TestFileInformation(t *testing.T) {
	a := newAssert(t)
	a.WriteFile(`\f`, "hello")
	a.Mkdir(`\d`)

	info := a.Open(`\f`, dokan.FILE_OPEN, 0, rw)
	defer a.Close(`\f`, info)
	fi, status := a.fs.GetFileInformation(ctx, `\f`, info)
	a.Equal(dokan.Success, status)
	a.Equal(uint64(5), fi.FileSize)
	a.Equal(dokan.FILE_ATTRIBUTE_NORMAL, fi.FileAttributes)
	a.Equal(uint32(1), fi.NumberOfLinks)
	a.NotZero(fi.LastWriteTime)

	dir := a.Open(`\d`, dokan.FILE_OPEN, 0, 0)
	defer a.Close(`\d`, dir)
	fi, status = a.fs.GetFileInformation(ctx, `\d`, dir)
	a.Equal(dokan.Success, status)
	a.Equal(dokan.FILE_ATTRIBUTE_DIRECTORY, fi.FileAttributes)

	func() {
		// Attributes and times.
		a.Equal(dokan.Success, a.fs.SetFileAttributes(ctx, `\f`, dokan.FILE_ATTRIBUTE_READONLY, info))
		fi, _ := a.fs.GetFileInformation(ctx, `\f`, info)
		a.NotZero(fi.FileAttributes & dokan.FILE_ATTRIBUTE_READONLY)
		a.Equal(dokan.Success, a.fs.SetFileAttributes(ctx, `\f`, dokan.FILE_ATTRIBUTE_NORMAL, info))
		fi, _ = a.fs.GetFileInformation(ctx, `\f`, info)
		a.Zero(fi.FileAttributes & dokan.FILE_ATTRIBUTE_READONLY)
		a.Equal(dokan.Success, a.fs.SetFileAttributes(ctx, `\f`, 0, info))

		when := time.Date(2020, 2, 3, 4, 5, 6, 0, time.UTC)
		stamp := filetime.Timestamp(when)
		a.Equal(dokan.Success, a.fs.SetFileTime(ctx, `\f`, 0, 0, stamp, info))
		fi, _ = a.fs.GetFileInformation(ctx, `\f`, info)
		a.Equal(stamp, fi.LastWriteTime)
		stat, err := a.inner.Stat("/f")
		a.NoError(err)
		a.True(stat.ModTime.Equal(when))
		a.Equal(dokan.Success, a.fs.SetFileTime(ctx, `\f`, stamp, 0, 0, info))
	}()

	func() {
		// A deleted entry reports not found.
		other := a.Open(`\g`, dokan.FILE_CREATE, 0, rw)
		defer a.Close(`\g`, other)
		a.NoError(a.inner.Remove("/g"))
		a.Equal(dokan.NotFound, a.Delete(`\g`, other))
	}()
}

func TestSizeWritten(t *testing.T) {
	a := newAssertWith(t, &wrapFS{FileSystem: memfs.New(), stale: true})
	info := a.Open(`\f`, dokan.FILE_CREATE, 0, rw)
	defer a.Close(`\f`, info)

	n, status := a.fs.WriteFile(ctx, `\f`, []byte("hello"), 0, info)
	a.Equal(dokan.Success, status)
	a.Equal(5, n)
	fi, status := a.fs.GetFileInformation(ctx, `\f`, info)
	a.Equal(dokan.Success, status)
	a.Equal(uint64(5), fi.FileSize)

	a.Equal(dokan.Success, a.fs.SetEndOfFile(ctx, `\f`, 2, info))
	fi, _ = a.fs.GetFileInformation(ctx, `\f`, info)
	a.Equal(uint64(2), fi.FileSize)
	a.Equal(dokan.InvalidParameter, a.fs.SetEndOfFile(ctx, `\f`, -1, info))
}

func TestWriteModes(t *testing.T) {
	for _, wrap := range []bool{false, true} {
		t.Run(fmt.Sprintf("wrap=%v", wrap), func(t *testing.T) {
			var inner backend.FileSystem = memfs.New()
			if wrap {
				inner = &wrapFS{FileSystem: inner}
			}
			a := newAssertWith(t, inner)
			a.WriteFile(`\f`, "abc")

			info := a.Open(`\f`, dokan.FILE_OPEN, 0, rw)
			info.WriteToEndOfFile = true
			n, status := a.fs.WriteFile(ctx, `\f`, []byte("de"), 0, info)
			a.Equal(dokan.Success, status)
			a.Equal(2, n)
			a.Equal("abcde", a.Read(`\f`, info))

			info.WriteToEndOfFile = false
			info.PagingIO = true
			n, status = a.fs.WriteFile(ctx, `\f`, []byte("XYZ"), 4, info)
			a.Equal(dokan.Success, status)
			a.Equal(1, n)
			n, status = a.fs.WriteFile(ctx, `\f`, []byte("XYZ"), 10, info)
			a.Equal(dokan.Success, status)
			a.Equal(0, n)
			a.Equal("abcdX", a.Read(`\f`, info))

			info.PagingIO = false
			n, status = a.fs.WriteFile(ctx, `\f`, []byte("!"), 7, info)
			a.Equal(dokan.Success, status)
			a.Equal(1, n)
			a.Equal("abcdX\x00\x00!", a.Read(`\f`, info))

			a.Equal(dokan.Success, a.fs.SetAllocationSize(ctx, `\f`, 100, info))
			a.Equal("abcdX\x00\x00!", a.Read(`\f`, info))
			a.Equal(dokan.Success, a.fs.SetAllocationSize(ctx, `\f`, 3, info))
			a.Equal("abc", a.Read(`\f`, info))
			a.Close(`\f`, info)

			appender := a.Open(`\f`, dokan.FILE_OPEN, 0, dokan.FILE_APPEND_DATA)
			defer a.Close(`\f`, appender)
			_, status = a.fs.WriteFile(ctx, `\f`, []byte("x"), 0, appender)
			a.Equal(dokan.AccessDenied, status)
			appender.WriteToEndOfFile = true
			_, status = a.fs.WriteFile(ctx, `\f`, []byte("x"), 0, appender)
			a.Equal(dokan.Success, status)
			a.Equal("abcx", a.ReadFile(`\f`))
		})
	}
}

func TestReadOnly(t *testing.T) {
	inner := memfs.New()
	f, err := inner.Create("/f")
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("data"), 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	a := newAssertWith(t, inner, WithReadOnly(true))
	a.Equal(dokan.AccessDenied, a.Status(`\g`, dokan.FILE_CREATE, 0, rw))
	a.Equal(dokan.AccessDenied, a.Status(`\g`, dokan.FILE_OPEN_IF, 0, dokan.GENERIC_READ))
	a.Equal(dokan.AccessDenied, a.Status(`\f`, dokan.FILE_OPEN, 0, dokan.GENERIC_WRITE))
	a.Equal(dokan.AccessDenied, a.Status(`\f`, dokan.FILE_OVERWRITE_IF, 0, dokan.GENERIC_READ))
	a.Equal(dokan.AccessDenied, a.Status(`\f`, dokan.FILE_OPEN, dokan.FILE_DELETE_ON_CLOSE, dokan.GENERIC_READ))
	a.Equal(dokan.Success, a.Status(`\f`, dokan.FILE_OPEN_IF, 0, dokan.GENERIC_READ))
	a.Equal("data", a.ReadFile(`\f`))

	info := a.Open(`\f`, dokan.FILE_OPEN, 0, dokan.GENERIC_READ)
	a.Equal(dokan.AccessDenied, a.Delete(`\f`, info))
	a.Equal(dokan.AccessDenied, a.fs.SetFileTime(ctx, `\f`, 0, 1, 1, info))
	a.Equal(dokan.AccessDenied, a.fs.SetFileAttributes(ctx, `\f`, dokan.FILE_ATTRIBUTE_READONLY, info))
	a.Equal(dokan.AccessDenied, a.fs.MoveFile(ctx, `\f`, `\g`, true, info))
	info.DeleteOnClose = true
	a.Close(`\f`, info)
	a.True(a.Exists("/f"))

	volume, status := a.fs.GetVolumeInformation(ctx)
	a.Equal(dokan.Success, status)
	a.NotZero(volume.FileSystemFlags & dokan.FILE_READ_ONLY_VOLUME)
}

func TestVolume(t *testing.T) {
	func() {
		a := newAssert(t)
		volume, status := a.fs.GetVolumeInformation(ctx)
		a.Equal(dokan.Success, status)
		a.Equal("Dokan Volume", volume.VolumeName)
		a.Equal("NTFS", volume.FileSystemName)
		a.Equal(uint32(255), volume.MaxComponentLength)
		a.NotZero(volume.FileSystemFlags & dokan.FILE_CASE_SENSITIVE_SEARCH)
		a.NotZero(volume.FileSystemFlags & dokan.FILE_CASE_PRESERVED_NAMES)
		a.Zero(volume.FileSystemFlags & dokan.FILE_READ_ONLY_VOLUME)

		space, status := a.fs.GetDiskFreeSpace(ctx)
		a.Equal(dokan.Success, status)
		a.Equal(uint64(200)<<30, space.TotalNumberOfBytes)
		a.Equal(uint64(100)<<30, space.TotalNumberOfFreeBytes)
		a.Equal(uint64(100)<<30, space.FreeBytesAvailable)
	}()

	func() {
		inner := memfs.New(memfs.WithCapacity(1000), memfs.WithCaseInsensitive(true))
		a := newAssertWith(t, inner, WithVolume("Data", 42, ""))
		volume, _ := a.fs.GetVolumeInformation(ctx)
		a.Equal("Data", volume.VolumeName)
		a.Equal("NTFS", volume.FileSystemName)
		a.Equal(uint32(42), volume.SerialNumber)
		a.Zero(volume.FileSystemFlags & dokan.FILE_CASE_SENSITIVE_SEARCH)

		a.WriteFile(`\f`, "0123456789")
		space, status := a.fs.GetDiskFreeSpace(ctx)
		a.Equal(dokan.Success, status)
		a.Equal(uint64(1000), space.TotalNumberOfBytes)
		a.Equal(uint64(990), space.TotalNumberOfFreeBytes)

		info := a.Open(`\F`, dokan.FILE_OPEN, 0, dokan.GENERIC_READ)
		defer a.Close(`\F`, info)
		fi, _ := a.fs.GetFileInformation(ctx, `\F`, info)
		a.Equal(uint32(42), fi.VolumeSerialNumber)
	}()

	func() {
		a := newAssert(t, WithFreeSpace(dokan.DiskSpace{
			FreeBytesAvailable:     1,
			TotalNumberOfBytes:     3,
			TotalNumberOfFreeBytes: 2,
		}))
		space, _ := a.fs.GetDiskFreeSpace(ctx)
		a.Equal(uint64(3), space.TotalNumberOfBytes)
	}()
}

func TestNewOptions(t *testing.T) {
	assert := assert.New(t)
	_, err := New(nil)
	assert.Error(err)
	_, err = New(memfs.New(), WithVolume(strings.Repeat("x", 33), 0, ""))
	assert.ErrorContains(err, "WithVolume")
	_, err = New(memfs.New(), WithFreeSpace(dokan.DiskSpace{TotalNumberOfFreeBytes: 2}))
	assert.Error(err)
	_, err = New(memfs.New(), WithAttribReadOnlyTransMode(metadata.ReadOnlyMode(99)))
	assert.ErrorContains(err, "WithAttribReadOnlyTransMode")
	_, err = New(memfs.New(), WithResolver(nil))
	assert.Error(err)
	_, err = New(memfs.New(), WithTimeoutKeeper(nil, -time.Second))
	assert.Error(err)
	fs, err := New(memfs.New(),
		WithLog(nil), WithMetrics(nil),
		WithAttribReadOnlyTransMode(metadata.ReadOnlyPOSIX),
	)
	assert.NoError(err)
	assert.NotNil(fs)
}

func TestMountLifecycle(t *testing.T) {
	a := newAssert(t)
	a.WriteFile(`\keep`, "k")
	a.WriteFile(`\gone`, "g")

	a.Equal(dokan.Success, a.fs.Mounted(ctx, `M:\`))
	a.Equal(`M:\`, a.fs.MountPoint())
	keep := a.Open(`\keep`, dokan.FILE_OPEN, 0, dokan.GENERIC_READ)
	gone := a.Open(`\gone`, dokan.FILE_OPEN, dokan.FILE_DELETE_ON_CLOSE, rw)
	root := a.Open(`\`, dokan.FILE_OPEN, 0, 0)
	a.True(root.IsDirectory)
	a.Equal(3, a.fs.handles.Len())

	a.Equal(dokan.Success, a.fs.Unmounted(ctx))
	a.Equal(0, a.fs.handles.Len())
	a.Equal("", a.fs.MountPoint())
	a.True(a.Exists("/keep"))
	a.False(a.Exists("/gone"))
	a.fs.CloseFile(ctx, `\keep`, keep)
	a.fs.CloseFile(ctx, `\gone`, gone)
}

type resetter struct {
	mtx   sync.Mutex
	count int
}

func (r *resetter) ResetTimeout(info *dokan.FileInfo) bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.count++
	return true
}

func (r *resetter) Count() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.count
}

func TestTimeoutKeeper(t *testing.T) {
	keeper := &resetter{}
	inner := &wrapFS{FileSystem: memfs.New(), delay: 50 * time.Millisecond}
	a := newAssertWith(t, inner, WithTimeoutKeeper(keeper, 5*time.Millisecond))
	a.WriteFile(`\f`, "slow")

	info := a.Open(`\f`, dokan.FILE_OPEN, 0, dokan.GENERIC_READ)
	defer a.Close(`\f`, info)
	a.Equal("slow", a.Read(`\f`, info))
	count := keeper.Count()
	a.Greater(count, 0)
	time.Sleep(20 * time.Millisecond)
	a.Equal(count, keeper.Count())
}

type recorder struct {
	mtx     sync.Mutex
	calls   map[string][]dokan.StatusCode
	bytes   map[string]int
	handles int
}

func (r *recorder) RecordCallStart(op string) {}

func (r *recorder) RecordCall(op string, status dokan.StatusCode, duration time.Duration) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.calls[op] = append(r.calls[op], status)
}

func (r *recorder) RecordBytes(direction string, bytes int) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.bytes[direction] += bytes
}

func (r *recorder) SetOpenHandles(count int) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.handles = count
}

type captureLog struct {
	mtx      sync.Mutex
	calls    []string
	messages map[log.Topics][]string
}

func (l *captureLog) Enabled(log.Topics) bool { return true }

func (l *captureLog) Call(name string, args log.M) string {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.calls = append(l.calls, name)
	return name
}

func (l *captureLog) Return(name, cookie string, rets log.M) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.calls = append(l.calls, fmt.Sprintf("%s=%v", name, rets["status"]))
}

func (l *captureLog) Log(topics log.Topics, msg string) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.messages[topics] = append(l.messages[topics], msg)
}

func (l *captureLog) Logf(topics log.Topics, msg string, args ...any) {
	l.Log(topics, fmt.Sprintf(msg, args...))
}

func TestObservability(t *testing.T) {
	metrics := &recorder{
		calls: make(map[string][]dokan.StatusCode),
		bytes: make(map[string]int),
	}
	logger := &captureLog{messages: make(map[log.Topics][]string)}
	a := newAssert(t, WithMetrics(metrics), WithLog(logger))

	a.WriteFile(`\f`, "hello")
	a.Equal("hello", a.ReadFile(`\f`))
	a.Equal(dokan.NotFound, a.Status(`\g`, dokan.FILE_OPEN, 0, rw))
	info := a.Open(`\f`, dokan.FILE_OPEN, 0, rw)
	a.fs.Cleanup(ctx, `\f`, info)
	_, status := a.fs.ReadFile(ctx, `\f`, make([]byte, 1), 0, info)
	a.Equal(dokan.InternalError, status)
	a.fs.CloseFile(ctx, `\f`, info)

	metrics.mtx.Lock()
	a.Equal([]dokan.StatusCode{
		dokan.Success, dokan.Success, dokan.NotFound, dokan.Success,
	}, metrics.calls["CreateFile"])
	a.Equal(5, metrics.bytes["write"])
	a.Equal(5, metrics.bytes["read"])
	a.Equal(0, metrics.handles)
	metrics.mtx.Unlock()

	logger.mtx.Lock()
	defer logger.mtx.Unlock()
	a.Contains(logger.calls, "CreateFile=NotFound")
	a.Contains(logger.calls, "ReadFile=InternalError")
	if a.Len(logger.messages[log.TopicError], 1) {
		a.Contains(logger.messages[log.TopicError][0], "read on handle")
	}
	a.NotEmpty(logger.messages[log.TopicVerdict])
}

func TestConcurrentHandles(t *testing.T) {
	a := newAssert(t)
	var wg sync.WaitGroup
	ids := make([]uint64, 32)
	for i := range ids {
		wg.Go(func() {
			name := fmt.Sprintf(`\f%d`, i)
			info, _, status := a.create(name, dokan.FILE_CREATE, 0, rw)
			if !a.Equal(dokan.Success, status) {
				return
			}
			ids[i] = info.Context
			data := []byte(name)
			n, status := a.fs.WriteFile(ctx, name, data, 0, info)
			a.Equal(dokan.Success, status)
			a.Equal(len(data), n)
			buf := make([]byte, len(data))
			_, status = a.fs.ReadFile(ctx, name, buf, 0, info)
			a.Equal(dokan.Success, status)
			a.Equal(data, buf)
			a.Close(name, info)
		})
	}
	wg.Wait()
	seen := make(map[uint64]bool)
	for _, id := range ids {
		a.False(seen[id])
		seen[id] = true
	}
	a.Equal(0, a.fs.handles.Len())

	entries, err := a.inner.List("/")
	a.NoError(err)
	a.Len(entries, len(ids))
}
