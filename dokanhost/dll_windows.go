//go:build windows && (amd64 || arm64)

package dokanhost

import (
	"path/filepath"
	"sync"
	"syscall"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

const dllName = "dokan2.dll"

// DLLPath returns the path of the library installed with
// the driver.
func DLLPath() (string, error) {
	dir, err := windows.GetSystemDirectory()
	if err != nil {
		return "", errors.Wrap(err, "dokan find installation")
	}
	return filepath.Join(dir, dllName), nil
}

func loadSignedDLL(dllPath string) (*syscall.DLL, error) {
	absDLLPath, err := filepath.Abs(dllPath)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve path %q", dllPath)
	}
	dllPath = absDLLPath

	u16Path, err := syscall.UTF16PtrFromString(dllPath)
	if err != nil {
		return nil, errors.Wrapf(err, "encode path %q", dllPath)
	}

	fh, err := windows.CreateFile(
		u16Path,
		windows.FILE_GENERIC_READ,
		// Forbid other process from WRITE|DELETE.
		windows.FILE_SHARE_READ,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_OPEN_REPARSE_POINT|windows.FILE_NON_DIRECTORY_FILE,
		windows.Handle(0),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "open file %q", dllPath)
	}
	defer windows.CloseHandle(fh)

	var fileInfo windows.WinTrustFileInfo
	fileInfo.Size = uint32(unsafe.Sizeof(fileInfo))
	fileInfo.File = fh

	var trustData windows.WinTrustData
	trustData.Size = uint32(unsafe.Sizeof(trustData))
	trustData.UIChoice = windows.WTD_UI_NONE
	trustData.RevocationChecks = windows.WTD_REVOKE_WHOLECHAIN
	trustData.StateAction = windows.WTD_STATEACTION_VERIFY
	trustData.FileOrCatalogOrBlobOrSgnrOrCert = unsafe.Pointer(&fileInfo)
	trustData.UnionChoice = windows.WTD_CHOICE_FILE

	err = windows.WinVerifyTrustEx(
		windows.InvalidHWND,
		&windows.WINTRUST_ACTION_GENERIC_VERIFY_V2,
		&trustData,
	)
	defer func() {
		trustData.StateAction = windows.WTD_STATEACTION_CLOSE
		_ = windows.WinVerifyTrustEx(
			windows.InvalidHWND,
			&windows.WINTRUST_ACTION_GENERIC_VERIFY_V2,
			&trustData,
		)
	}()
	if err != nil {
		return nil, errors.Wrapf(err, "verify signature %q", dllPath)
	}

	hdll, err := windows.LoadLibraryEx(
		dllPath, windows.Handle(0),
		windows.LOAD_LIBRARY_SEARCH_SYSTEM32|windows.LOAD_LIBRARY_SEARCH_DLL_LOAD_DIR,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "load library %q", dllPath)
	}
	return &syscall.DLL{
		Name:   dllPath,
		Handle: syscall.Handle(hdll),
	}, nil
}

// dllProc wraps a procedure of the library. The library
// reports failures through return values, so Call only
// fails when the library cannot be loaded.
type dllProc struct {
	name string
	proc *syscall.Proc
}

func (p *dllProc) Call(args ...uintptr) (uintptr, error) {
	if err := tryLoad(); err != nil {
		return 0, err
	}
	res1, _, _ := p.proc.Call(args...)
	return res1, nil
}

var (
	dokanDLL     *syscall.DLL
	procRegistry []*dllProc
)

// registerProc registers a procedure to be resolved when
// the library is loaded. Must only be called from init.
func registerProc(name string, target *dllProc) {
	target.name = name
	procRegistry = append(procRegistry, target)
}

func initDokan() error {
	if dokanDLL == nil {
		path, err := DLLPath()
		if err != nil {
			return err
		}
		dll, err := loadSignedDLL(path)
		if err != nil {
			return err
		}
		dokanDLL = dll
	}
	for _, item := range procRegistry {
		proc, err := dokanDLL.FindProc(item.name)
		if err != nil {
			return errors.Wrapf(err, "dokan cannot find proc %q", item.name)
		}
		item.proc = proc
	}
	// DokanInit must precede every other call, once per
	// process.
	_, _, _ = dokanInit.proc.Call()
	return nil
}

var (
	tryLoadOnce sync.Once
	tryLoadErr  error
)

// tryLoad loads the library once. The error is
// persistent.
func tryLoad() error {
	tryLoadOnce.Do(func() {
		tryLoadErr = initDokan()
	})
	return tryLoadErr
}

// LoadWithDLL resolves the symbols in the given library
// instead of the installed one. It must be called before
// the first mount.
func LoadWithDLL(dll *syscall.DLL) error {
	dokanDLL = dll
	return tryLoad()
}

// Load loads the installed library and resolves its
// symbols immediately.
func Load() error {
	return tryLoad()
}
