// Package backendtest is the conformance suite every
// backend.FileSystem implementation runs in its tests.
package backendtest

import (
	"io"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godokan/go-dokan/backend"
	"github.com/godokan/go-dokan/fserr"
)

// Factory creates a fresh, empty file system for one test.
type Factory func(t *testing.T) backend.FileSystem

type Assert struct {
	*assert.Assertions
	require *require.Assertions
}

func (a *Assert) Kind(kind fserr.Kind, err error) {
	a.Error(err)
	a.Equal(kind, fserr.KindOf(err), "%+v", err)
}

func (a *Assert) WriteFile(fs backend.FileSystem, name, content string) {
	f, err := fs.Create(name)
	a.require.NoError(err)
	defer func() { a.NoError(f.Close()) }()
	n, err := f.WriteAt([]byte(content), 0)
	a.require.NoError(err)
	a.require.Equal(len(content), n)
}

func (a *Assert) ReadFile(fs backend.FileSystem, name string) string {
	f, err := fs.Open(name, 0)
	a.require.NoError(err)
	defer func() { a.NoError(f.Close()) }()
	stat, err := f.Stat()
	a.require.NoError(err)
	buf := make([]byte, stat.Size)
	n, err := f.ReadAt(buf, 0)
	if err != io.EOF {
		a.require.NoError(err)
	}
	return string(buf[:n])
}

func (a *Assert) Names(fs backend.FileSystem, dir string) []string {
	entries, err := fs.List(dir)
	a.require.NoError(err)
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name)
	}
	sort.Strings(names)
	return names
}

// Run executes the conformance suite against the backends
// created by factory.
func Run(t *testing.T, factory Factory) {
	cases := []struct {
		name string
		run  func(a *Assert, fs backend.FileSystem)
	}{
		{"Root", testRoot},
		{"CreateWriteRead", testCreateWriteRead},
		{"OpenFlags", testOpenFlags},
		{"Truncate", testTruncate},
		{"Directories", testDirectories},
		{"Remove", testRemove},
		{"Rename", testRename},
		{"RenameDirectory", testRenameDirectory},
		{"Capabilities", testCapabilities},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			a := &Assert{
				Assertions: assert.New(t),
				require:    require.New(t),
			}
			c.run(a, factory(t))
		})
	}
}

func testRoot(a *Assert, fs backend.FileSystem) {
	stat, err := fs.Stat("/")
	a.require.NoError(err)
	a.True(stat.IsDir())
	exists, err := fs.Exists("/")
	a.NoError(err)
	a.True(exists)
	a.Empty(a.Names(fs, "/"))
	a.Error(fs.RemoveDir("/"))
}

func testCreateWriteRead(a *Assert, fs backend.FileSystem) {
	a.WriteFile(fs, "/a.txt", "hello")
	a.Equal("hello", a.ReadFile(fs, "/a.txt"))

	stat, err := fs.Stat("/a.txt")
	a.require.NoError(err)
	a.Equal("a.txt", stat.Name)
	a.Equal(int64(5), stat.Size)
	a.False(stat.IsDir())

	f, err := fs.Open("/a.txt", os.O_RDWR)
	a.require.NoError(err)
	defer func() { a.NoError(f.Close()) }()

	buf := make([]byte, 10)
	n, err := f.ReadAt(buf, 1)
	a.Equal(4, n)
	if err != nil {
		a.Equal(io.EOF, err)
	}
	n, err = f.ReadAt(buf, 5)
	a.Equal(0, n)
	a.Equal(io.EOF, err)

	// Writes past the end extend with zeros.
	n, err = f.WriteAt([]byte("!"), 7)
	a.NoError(err)
	a.Equal(1, n)
	a.NoError(f.Sync())
	stat, err = f.Stat()
	a.NoError(err)
	a.Equal(int64(8), stat.Size)
	n, err = f.ReadAt(buf[:8], 0)
	a.Equal(8, n)
	if err != nil {
		a.Equal(io.EOF, err)
	}
	a.Equal("hello\x00\x00!", string(buf[:8]))
}

func testOpenFlags(a *Assert, fs backend.FileSystem) {
	_, err := fs.Open("/missing.txt", os.O_RDWR)
	a.Kind(fserr.KindNotFound, err)
	exists, err := fs.Exists("/missing.txt")
	a.NoError(err)
	a.False(exists)
	_, err = fs.Stat("/missing.txt")
	a.Kind(fserr.KindNotFound, err)

	f, err := fs.Open("/new.txt", os.O_RDWR|os.O_CREATE|os.O_EXCL)
	a.require.NoError(err)
	a.NoError(f.Close())
	_, err = fs.Open("/new.txt", os.O_RDWR|os.O_CREATE|os.O_EXCL)
	a.Kind(fserr.KindExists, err)

	a.WriteFile(fs, "/new.txt", "content")
	f, err = fs.Open("/new.txt", os.O_RDWR|os.O_TRUNC)
	a.require.NoError(err)
	a.NoError(f.Close())
	a.Equal("", a.ReadFile(fs, "/new.txt"))

	_, err = fs.Open("/nodir/file", os.O_RDWR|os.O_CREATE)
	a.Kind(fserr.KindNotFound, err)

	a.require.NoError(fs.Mkdir("/dir"))
	_, err = fs.Open("/dir", os.O_RDWR)
	a.Kind(fserr.KindIsDir, err)
}

func testTruncate(a *Assert, fs backend.FileSystem) {
	a.WriteFile(fs, "/t.bin", "0123456789")
	f, err := fs.Open("/t.bin", os.O_RDWR)
	a.require.NoError(err)
	a.NoError(f.Truncate(4))
	stat, err := f.Stat()
	a.NoError(err)
	a.Equal(int64(4), stat.Size)
	a.NoError(f.Truncate(6))
	a.NoError(f.Close())
	a.Equal("0123\x00\x00", a.ReadFile(fs, "/t.bin"))
}

func testDirectories(a *Assert, fs backend.FileSystem) {
	a.require.NoError(fs.Mkdir("/d"))
	a.Kind(fserr.KindExists, fs.Mkdir("/d"))
	a.Kind(fserr.KindNotFound, fs.Mkdir("/none/sub"))
	a.require.NoError(fs.Mkdir("/d/sub"))
	a.WriteFile(fs, "/d/y", "y")
	a.WriteFile(fs, "/d/x", "xx")

	a.Equal([]string{"sub", "x", "y"}, a.Names(fs, "/d"))
	entries, err := fs.List("/d")
	a.require.NoError(err)
	for _, entry := range entries {
		switch entry.Name {
		case "sub":
			a.True(entry.IsDir())
		case "x":
			a.Equal(int64(2), entry.Size)
		}
	}

	stat, err := fs.Stat("/d")
	a.require.NoError(err)
	a.True(stat.IsDir())
	a.Equal("d", stat.Name)

	_, err = fs.List("/d/x")
	a.Kind(fserr.KindNotDir, err)
	_, err = fs.List("/nowhere")
	a.Kind(fserr.KindNotFound, err)
}

func testRemove(a *Assert, fs backend.FileSystem) {
	a.require.NoError(fs.Mkdir("/d"))
	a.WriteFile(fs, "/d/f", "f")

	a.Kind(fserr.KindNotEmpty, fs.RemoveDir("/d"))
	a.Error(fs.Remove("/d"))
	a.Error(fs.RemoveDir("/d/f"))
	a.Kind(fserr.KindNotFound, fs.Remove("/d/missing"))

	a.NoError(fs.Remove("/d/f"))
	exists, err := fs.Exists("/d/f")
	a.NoError(err)
	a.False(exists)
	a.NoError(fs.RemoveDir("/d"))
	exists, err = fs.Exists("/d")
	a.NoError(err)
	a.False(exists)
}

func testRename(a *Assert, fs backend.FileSystem) {
	a.WriteFile(fs, "/a.txt", "a")
	a.WriteFile(fs, "/b.txt", "b")

	a.NoError(fs.Rename("/a.txt", "/c.txt"))
	exists, err := fs.Exists("/a.txt")
	a.NoError(err)
	a.False(exists)
	a.Equal("a", a.ReadFile(fs, "/c.txt"))

	a.NoError(fs.Rename("/c.txt", "/b.txt"))
	a.Equal("a", a.ReadFile(fs, "/b.txt"))
	a.Equal([]string{"b.txt"}, a.Names(fs, "/"))

	a.Kind(fserr.KindNotFound, fs.Rename("/missing", "/x"))
}

func testRenameDirectory(a *Assert, fs backend.FileSystem) {
	a.require.NoError(fs.Mkdir("/src"))
	a.require.NoError(fs.Mkdir("/src/inner"))
	a.WriteFile(fs, "/src/inner/f", "deep")
	a.require.NoError(fs.Mkdir("/dst"))

	a.NoError(fs.Rename("/src", "/dst/moved"))
	a.Equal("deep", a.ReadFile(fs, "/dst/moved/inner/f"))
	exists, err := fs.Exists("/src")
	a.NoError(err)
	a.False(exists)
	a.Equal([]string{"inner"}, a.Names(fs, "/dst/moved"))
}

func testCapabilities(a *Assert, fs backend.FileSystem) {
	a.WriteFile(fs, "/cap", "data")
	if timer, ok := fs.(backend.Timer); ok {
		when := time.Date(2020, 5, 17, 10, 30, 0, 0, time.UTC)
		a.NoError(timer.Chtimes("/cap", when, when))
		stat, err := fs.Stat("/cap")
		a.NoError(err)
		a.True(stat.ModTime.Equal(when), "%v != %v", stat.ModTime, when)
	}
	if reporter, ok := fs.(backend.SpaceReporter); ok {
		space, err := reporter.DiskSpace()
		if fserr.KindOf(err) != fserr.KindUnsupported {
			a.NoError(err)
			a.LessOrEqual(space.Free, space.Total)
		}
	}
}
