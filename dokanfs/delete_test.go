package dokanfs

import (
	"testing"

	"github.com/godokan/go-dokan"
)

func TestDeleteDirectory(t *testing.T) {
	a := newAssert(t)
	a.Mkdir(`\d`)
	a.WriteFile(`\d\f`, "x")

	dir := a.Open(`\d`, dokan.FILE_OPEN, dokan.FILE_DIRECTORY_FILE, dokan.DELETE)
	a.Equal(dokan.DirectoryNotEmpty, a.DeleteDir(`\d`, dir))

	file := a.Open(`\d\f`, dokan.FILE_OPEN, 0, dokan.DELETE)
	a.Equal(dokan.Success, a.Delete(`\d\f`, file))
	a.Equal(dokan.Success, a.Delete(`\d\f`, file))

	// Only pending delete children remain.
	a.Equal(dokan.Success, a.DeleteDir(`\d`, dir))
	a.Equal(dokan.AccessDenied, a.Status(`\d\f`, dokan.FILE_OPEN, 0, dokan.GENERIC_READ))
	a.Equal(dokan.AccessDenied, a.Status(`\d\g`, dokan.FILE_CREATE, 0, rw))
	a.Equal(dokan.AccessDenied, a.Status(`\d`, dokan.FILE_OPEN, 0, 0))
	a.True(a.Exists("/d/f"))

	a.Close(`\d\f`, file)
	a.False(a.Exists("/d/f"))
	a.True(a.Exists("/d"))
	a.Close(`\d`, dir)
	a.False(a.Exists("/d"))

	// The name is free again.
	a.Mkdir(`\d`)
	a.True(a.Exists("/d"))
}

func TestDeleteEmptyDirectory(t *testing.T) {
	a := newAssert(t)
	a.Mkdir(`\e`)
	dir := a.Open(`\e`, dokan.FILE_OPEN, 0, dokan.DELETE)
	a.Equal(dokan.Success, a.DeleteDir(`\e`, dir))
	a.fs.Cleanup(ctx, `\e`, dir)
	a.False(a.Exists("/e"))
	a.fs.CloseFile(ctx, `\e`, dir)

	root := a.Open(`\`, dokan.FILE_OPEN, 0, dokan.DELETE)
	defer a.Close(`\`, root)
	a.Equal(dokan.AccessDenied, a.DeleteDir(`\`, root))
}

func TestDeleteKinds(t *testing.T) {
	a := newAssert(t)
	a.Mkdir(`\d`)
	a.WriteFile(`\f`, "x")

	dir := a.Open(`\d`, dokan.FILE_OPEN, 0, dokan.DELETE)
	defer a.Close(`\d`, dir)
	a.Equal(dokan.AccessDenied, a.Delete(`\d`, dir))

	file := a.Open(`\f`, dokan.FILE_OPEN, 0, dokan.DELETE)
	defer a.Close(`\f`, file)
	a.Equal(dokan.NotADirectory, a.DeleteDir(`\f`, file))
	a.True(a.Exists("/d"))
	a.True(a.Exists("/f"))
}

func TestDeleteOnClose(t *testing.T) {
	a := newAssert(t)

	func() {
		info := a.Open(`\tmp`, dokan.FILE_CREATE, dokan.FILE_DELETE_ON_CLOSE, rw)
		a.True(a.Exists("/tmp"))
		a.Equal(dokan.AccessDenied, a.Status(`\tmp`, dokan.FILE_OPEN, 0, dokan.GENERIC_READ))
		a.Close(`\tmp`, info)
		a.False(a.Exists("/tmp"))
	}()

	func() {
		a.WriteFile(`\g`, "x")
		info := a.Open(`\g`, dokan.FILE_OPEN, 0, rw)
		info.DeleteOnClose = true
		a.fs.Cleanup(ctx, `\g`, info)
		a.False(a.Exists("/g"))
		a.fs.CloseFile(ctx, `\g`, info)
	}()

	func() {
		// A directory with live children is refused up front.
		a.Mkdir(`\d`)
		a.WriteFile(`\d\f`, "x")
		a.Equal(dokan.DirectoryNotEmpty,
			a.Status(`\d`, dokan.FILE_OPEN, dokan.FILE_DELETE_ON_CLOSE, dokan.DELETE))
		a.True(a.Exists("/d"))
	}()

	func() {
		// The deletion waits for the last handle marking it,
		// and other handles keep reading meanwhile.
		a.WriteFile(`\h`, "hello")
		reader := a.Open(`\h`, dokan.FILE_OPEN, 0, dokan.GENERIC_READ)
		deleter := a.Open(`\h`, dokan.FILE_OPEN, 0, dokan.DELETE)
		a.Equal(dokan.Success, a.Delete(`\h`, deleter))
		a.Equal("hello", a.Read(`\h`, reader))
		a.Close(`\h`, deleter)
		a.False(a.Exists("/h"))
		a.Close(`\h`, reader)
	}()
}

func TestMoveFile(t *testing.T) {
	a := newAssert(t)
	a.WriteFile(`\a.txt`, "a")
	a.WriteFile(`\b.txt`, "b")
	a.Mkdir(`\d`)

	info := a.Open(`\a.txt`, dokan.FILE_OPEN, 0, rw|dokan.DELETE)
	other := a.Open(`\a.txt`, dokan.FILE_OPEN, 0, dokan.GENERIC_READ)
	defer a.Close(`\a.txt`, other)

	a.Equal(dokan.AlreadyExists, a.fs.MoveFile(ctx, `\a.txt`, `\b.txt`, false, info))
	a.True(a.Exists("/a.txt"))
	a.Equal("b", a.ReadFile(`\b.txt`))

	a.Equal(dokan.PathNotFound, a.fs.MoveFile(ctx, `\a.txt`, `\c\b.txt`, false, info))
	a.Equal(dokan.AccessDenied, a.fs.MoveFile(ctx, `\a.txt`, `\d`, true, info))
	a.Equal(dokan.InvalidPath, a.fs.MoveFile(ctx, `\a.txt`, `\b|c`, true, info))
	a.Equal(dokan.Success, a.fs.MoveFile(ctx, `\a.txt`, `\a.txt`, false, info))

	a.Equal(dokan.Success, a.fs.MoveFile(ctx, `\a.txt`, `\b.txt`, true, info))
	a.False(a.Exists("/a.txt"))
	a.Equal("a", a.ReadFile(`\b.txt`))

	// Every handle of the entry follows it.
	handle, err := a.fs.handles.Lookup(other.Context)
	a.NoError(err)
	a.Equal("/b.txt", handle.node.Path())
	fi, status := a.fs.GetFileInformation(ctx, `\b.txt`, other)
	a.Equal(dokan.Success, status)
	a.Equal(uint64(1), fi.FileSize)
	a.Equal(dokan.Success, a.Delete(`\b.txt`, info))
	a.Close(`\b.txt`, info)
	a.False(a.Exists("/b.txt"))
}

func TestMoveDirectory(t *testing.T) {
	a := newAssert(t)
	a.Mkdir(`\d`)
	a.WriteFile(`\d\f`, "x")

	file := a.Open(`\d\f`, dokan.FILE_OPEN, 0, dokan.GENERIC_READ)
	defer a.Close(`\e\f`, file)
	dir := a.Open(`\d`, dokan.FILE_OPEN, 0, dokan.DELETE)
	a.Equal(dokan.Success, a.fs.MoveFile(ctx, `\d`, `\e`, false, dir))
	a.Close(`\e`, dir)

	a.False(a.Exists("/d"))
	a.Equal("x", a.ReadFile(`\e\f`))
	fi, status := a.fs.GetFileInformation(ctx, `\e\f`, file)
	a.Equal(dokan.Success, status)
	a.Equal(uint64(1), fi.FileSize)

	root := a.Open(`\`, dokan.FILE_OPEN, 0, dokan.DELETE)
	defer a.Close(`\`, root)
	a.Equal(dokan.AccessDenied, a.fs.MoveFile(ctx, `\`, `\r`, false, root))
}

func TestMovePendingDelete(t *testing.T) {
	a := newAssert(t)
	a.WriteFile(`\a`, "a")
	a.WriteFile(`\b`, "b")

	deleter := a.Open(`\b`, dokan.FILE_OPEN, 0, dokan.DELETE)
	a.Equal(dokan.Success, a.Delete(`\b`, deleter))
	info := a.Open(`\a`, dokan.FILE_OPEN, 0, dokan.DELETE)
	defer a.Close(`\a`, info)
	a.Equal(dokan.AccessDenied, a.fs.MoveFile(ctx, `\a`, `\b`, true, info))
	a.Close(`\b`, deleter)
	a.Equal(dokan.Success, a.fs.MoveFile(ctx, `\a`, `\b`, false, info))
	a.Equal("a", a.ReadFile(`\b`))
}

func TestUndelete(t *testing.T) {
	a := newAssert(t)

	func() {
		a.WriteFile(`\keep`, "kept")
		info := a.Open(`\keep`, dokan.FILE_OPEN, 0, dokan.DELETE)
		a.Equal(dokan.Success, a.Delete(`\keep`, info))
		a.Equal(dokan.AccessDenied, a.Status(`\keep`, dokan.FILE_OPEN, 0, dokan.GENERIC_READ))

		// The driver cancels with the flag cleared.
		info.DeleteOnClose = false
		a.Equal(dokan.Success, a.fs.DeleteFile(ctx, `\keep`, info))
		a.Equal(dokan.Success, a.Status(`\keep`, dokan.FILE_OPEN, 0, dokan.GENERIC_READ))
		a.Close(`\keep`, info)
		a.True(a.Exists("/keep"))
		a.Equal("kept", a.ReadFile(`\keep`))
	}()

	func() {
		a.Mkdir(`\d`)
		dir := a.Open(`\d`, dokan.FILE_OPEN, dokan.FILE_DIRECTORY_FILE, dokan.DELETE)
		a.Equal(dokan.Success, a.DeleteDir(`\d`, dir))
		dir.DeleteOnClose = false
		a.Equal(dokan.Success, a.fs.DeleteDirectory(ctx, `\d`, dir))
		a.Close(`\d`, dir)
		a.True(a.Exists("/d"))
		a.WriteFile(`\d\f`, "x")
	}()

	func() {
		// A cleanup without the flag keeps the entry even
		// though the mark was never cancelled.
		a.WriteFile(`\g`, "g")
		info := a.Open(`\g`, dokan.FILE_OPEN, 0, dokan.DELETE)
		a.Equal(dokan.Success, a.Delete(`\g`, info))
		info.DeleteOnClose = false
		a.fs.Cleanup(ctx, `\g`, info)
		a.True(a.Exists("/g"))
		a.Equal(dokan.Success, a.Status(`\g`, dokan.FILE_OPEN, 0, dokan.GENERIC_READ))
		a.fs.CloseFile(ctx, `\g`, info)
		a.True(a.Exists("/g"))
	}()

	func() {
		// A refused request keeps the earlier decision.
		dir := a.Open(`\d`, dokan.FILE_OPEN, dokan.FILE_DIRECTORY_FILE, dokan.DELETE)
		a.Equal(dokan.DirectoryNotEmpty, a.DeleteDir(`\d`, dir))
		a.False(dir.DeleteOnClose)
		a.Close(`\d`, dir)
		a.True(a.Exists("/d/f"))
	}()
}
