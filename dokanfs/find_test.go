package dokanfs

import (
	"testing"

	"github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/memfs"
	"github.com/godokan/go-dokan/pathkey"
)

// collect returns a fill function accepting up to limit
// entries into names.
func collect(names *[]string, limit int) dokan.FillFindData {
	count := 0
	return func(data *dokan.FindData) bool {
		if count == limit {
			return false
		}
		count++
		*names = append(*names, data.FileName)
		return true
	}
}

func (a *Assert) Find(name, pattern string, info *dokan.FileInfo) []string {
	var names []string
	status := a.fs.FindFilesWithPattern(ctx, name, pattern, info, collect(&names, -1))
	a.Equal(dokan.Success, status)
	return names
}

func TestFindFiles(t *testing.T) {
	a := newAssert(t)
	a.Mkdir(`\d`)
	for _, name := range []string{"c.txt", "a.txt", "b.txt", "x.log"} {
		a.WriteFile(`\d\`+name, name)
	}
	a.Mkdir(`\d\sub`)

	info := a.Open(`\d`, dokan.FILE_OPEN, dokan.FILE_DIRECTORY_FILE, dokan.FILE_READ_ATTRIBUTES)
	defer a.Close(`\d`, info)

	func() {
		// The enumeration resumes where the buffer filled.
		var names []string
		a.Equal(dokan.Success, a.fs.FindFiles(ctx, `\d`, info, collect(&names, 2)))
		a.Equal([]string{"a.txt", "b.txt"}, names)
		a.Equal(dokan.Success, a.fs.FindFiles(ctx, `\d`, info, collect(&names, 10)))
		a.Equal([]string{"a.txt", "b.txt", "c.txt", "sub", "x.log"}, names)
	}()

	a.Equal([]string{"a.txt", "b.txt", "c.txt", "sub", "x.log"}, a.Find(`\d`, "*", info))
	a.Equal([]string{"x.log"}, a.Find(`\d`, "*.log", info))
	a.Equal([]string{"a.txt", "b.txt", "c.txt"}, a.Find(`\d`, "?.txt", info))
	a.Empty(a.Find(`\d`, "?.TXT", info))

	func() {
		var attributes []dokan.FileAttribute
		var sizes []uint64
		status := a.fs.FindFiles(ctx, `\d`, info, func(data *dokan.FindData) bool {
			attributes = append(attributes, data.FileAttributes)
			sizes = append(sizes, data.FileSize)
			return true
		})
		a.Equal(dokan.Success, status)
		a.Equal(dokan.FILE_ATTRIBUTE_DIRECTORY, attributes[3])
		a.Equal(dokan.FILE_ATTRIBUTE_NORMAL, attributes[0])
		a.Equal([]uint64{5, 5, 5, 0, 5}, sizes)
	}()

	func() {
		// Entries pending delete are hidden.
		deleter := a.Open(`\d\a.txt`, dokan.FILE_OPEN, 0, dokan.DELETE)
		a.Equal(dokan.Success, a.Delete(`\d\a.txt`, deleter))
		a.Equal([]string{"b.txt", "c.txt", "sub", "x.log"}, a.Find(`\d`, "*", info))
		a.Close(`\d\a.txt`, deleter)
		a.Equal([]string{"b.txt", "c.txt", "sub", "x.log"}, a.Find(`\d`, "*", info))
	}()

	func() {
		file := a.Open(`\d\b.txt`, dokan.FILE_OPEN, 0, dokan.GENERIC_READ)
		defer a.Close(`\d\b.txt`, file)
		status := a.fs.FindFiles(ctx, `\d\b.txt`, file, collect(new([]string), -1))
		a.Equal(dokan.NotADirectory, status)
		a.Equal(dokan.InvalidParameter, a.fs.FindFiles(ctx, `\d`, info, nil))
	}()
}

func TestFindFilesCaseInsensitive(t *testing.T) {
	a := newAssertWith(t, memfs.New(memfs.WithCaseInsensitive(true)))
	a.WriteFile(`\Readme.MD`, "x")
	a.WriteFile(`\notes.txt`, "x")
	root := a.Open(`\`, dokan.FILE_OPEN, 0, 0)
	defer a.Close(`\`, root)
	a.Equal([]string{"Readme.MD"}, a.Find(`\`, "*.md", root))
	a.Equal([]string{"Readme.MD", "notes.txt"}, a.Find(`\`, "*", root))
}

func TestFindFilesSafety(t *testing.T) {
	inner := memfs.New()
	for _, name := range []string{"/a__colon__b", "/autorun.inf"} {
		f, err := inner.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		f.Close()
	}
	a := newAssertWith(t, inner, WithResolver(pathkey.NewResolver(pathkey.WithSafety(true, false))))
	root := a.Open(`\`, dokan.FILE_OPEN, 0, 0)
	defer a.Close(`\`, root)
	a.Equal([]string{"a:b", "_autorun.inf"}, a.Find(`\`, "*", root))
	a.Equal("", a.ReadFile(`\_autorun.inf`))

	a.WriteFile(`\c:d`, "x")
	a.True(a.Exists("/c__colon__d"))
	a.Equal("x", a.ReadFile(`\c:d`))
}
