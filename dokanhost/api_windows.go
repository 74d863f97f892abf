//go:build windows && (amd64 || arm64)

package dokanhost

import (
	"runtime"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

var (
	dokanInit                    dllProc
	dokanCreateFileSystem        dllProc
	dokanWaitForFileSystemClosed dllProc
	dokanCloseHandle             dllProc
	dokanRemoveMountPoint        dllProc
	dokanResetTimeout            dllProc
	dokanVersion                 dllProc
	dokanDriverVersion           dllProc
)

func init() {
	registerProc("DokanInit", &dokanInit)
	registerProc("DokanCreateFileSystem", &dokanCreateFileSystem)
	registerProc("DokanWaitForFileSystemClosed", &dokanWaitForFileSystemClosed)
	registerProc("DokanCloseHandle", &dokanCloseHandle)
	registerProc("DokanRemoveMountPoint", &dokanRemoveMountPoint)
	registerProc("DokanResetTimeout", &dokanResetTimeout)
	registerProc("DokanVersion", &dokanVersion)
	registerProc("DokanDriverVersion", &dokanDriverVersion)
}

// Version returns the versions of the library and of the
// driver, such as 200 for 2.0.0.
func Version() (library, driver uint32, err error) {
	lib, err := dokanVersion.Call()
	if err != nil {
		return 0, 0, errors.Wrap(err, "DokanVersion")
	}
	drv, err := dokanDriverVersion.Call()
	if err != nil {
		return 0, 0, errors.Wrap(err, "DokanDriverVersion")
	}
	return uint32(lib), uint32(drv), nil
}

// createFileSystem starts serving the volume without
// blocking, and returns the instance handle.
func createFileSystem(options *dokanOptions, operations *dokanOperations) (uintptr, error) {
	var handle uintptr
	code, err := dokanCreateFileSystem.Call(
		uintptr(unsafe.Pointer(options)),
		uintptr(unsafe.Pointer(operations)),
		uintptr(unsafe.Pointer(&handle)),
	)
	runtime.KeepAlive(options)
	runtime.KeepAlive(operations)
	if err != nil {
		return 0, errors.Wrap(err, "DokanCreateFileSystem")
	}
	if status := int32(code); status != 0 {
		return 0, errors.Errorf("DokanCreateFileSystem: %s (%d)", libraryError(status), status)
	}
	return handle, nil
}

// waitClosed blocks until the instance is unmounted.
func waitClosed(handle uintptr) error {
	_, err := dokanWaitForFileSystemClosed.Call(handle, infinite)
	return errors.Wrap(err, "DokanWaitForFileSystemClosed")
}

func closeHandle(handle uintptr) error {
	_, err := dokanCloseHandle.Call(handle)
	return errors.Wrap(err, "DokanCloseHandle")
}

func removeMountPoint(mountPoint string) error {
	u16, err := windows.UTF16PtrFromString(mountPoint)
	if err != nil {
		return errors.Wrapf(err, "string %q convert utf16", mountPoint)
	}
	ok, err := dokanRemoveMountPoint.Call(uintptr(unsafe.Pointer(u16)))
	runtime.KeepAlive(u16)
	if err != nil {
		return errors.Wrap(err, "DokanRemoveMountPoint")
	}
	if ok == 0 {
		return errors.Errorf("DokanRemoveMountPoint %q failed", mountPoint)
	}
	return nil
}

func resetTimeout(timeoutMillis uint32, info *dokanFileInfo) bool {
	ok, err := dokanResetTimeout.Call(uintptr(timeoutMillis), uintptr(unsafe.Pointer(info)))
	return err == nil && ok != 0
}
