//go:build windows && (amd64 || arm64)

package dokanhost

import (
	"context"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/windows"

	dokan "github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/dokanfs"
	"github.com/godokan/go-dokan/log"
	"github.com/godokan/go-dokan/memfs"
)

func TestNewOptions(t *testing.T) {
	assert := assert.New(t)
	h := &Host{}
	in := &instance{id: 42, timeout: 30000}
	opts, err := dokan.NewMountOptions("M",
		dokan.ReadOnly(true),
		dokan.CaseSensitive(true),
		dokan.ThreadCount(1),
		dokan.Flags(dokan.MountRemovable))
	require.NoError(t, err)

	native, err := h.newOptions(in, opts)
	require.NoError(t, err)
	assert.Equal(uint16(minimumVersion), native.Version)
	assert.Equal(uint8(1), native.SingleThread)
	assert.Equal(uint64(42), native.GlobalContext)
	assert.Equal(uint32(30000), native.Timeout)
	assert.Equal(uint32(allocationUnitSize), native.AllocationUnitSize)
	assert.Equal(uint32(dokan.MountRemovable|dokan.MountWriteProtect)|optionCaseSensitive, native.Options)
	assert.Equal(`M:\`, windows.UTF16PtrToString(native.MountPoint))

	opts, err = dokan.NewMountOptions(`C:\mnt\volume`)
	require.NoError(t, err)
	native, err = h.newOptions(in, opts)
	require.NoError(t, err)
	assert.Zero(native.SingleThread)
	assert.Zero(native.Options & optionCaseSensitive)
}

// register makes the file info resolve to a fresh volume
// over an in-memory backend.
func register(t *testing.T, native *dokanFileInfo) *instance {
	ops, err := dokanfs.New(memfs.New())
	require.NoError(t, err)
	in := &instance{
		id:      nextInstance.Add(1),
		ops:     ops,
		ctx:     context.Background(),
		log:     log.NoLog{},
		timeout: uint32(time.Minute.Milliseconds()),
		done:    make(chan struct{}),
	}
	instances.Store(in.id, in)
	t.Cleanup(func() { instances.Delete(in.id) })
	native.DokanOptions = &dokanOptions{GlobalContext: in.id}
	return in
}

func TestDispatch(t *testing.T) {
	assert := assert.New(t)
	var native dokanFileInfo
	infoAddr := uintptr(unsafe.Pointer(&native))
	assert.Equal(uintptr(ntStatusNoRef), dispatch(infoAddr, nil))

	in := register(t, &native)
	status := dispatch(infoAddr, func(in *instance, info *dokan.FileInfo) dokan.NTStatus {
		req := &dokan.CreateRequest{
			DesiredAccess:     dokan.GENERIC_READ | dokan.GENERIC_WRITE,
			CreateDisposition: dokan.FILE_CREATE,
			CreateOptions:     dokan.FILE_DIRECTORY_FILE,
		}
		result, status := in.ops.CreateFile(in.ctx, `\dir`, req, info)
		info.IsDirectory = result.IsDirectory
		return createStatus(req.CreateDisposition, result, status)
	})
	assert.Equal(uintptr(dokan.STATUS_SUCCESS), status)
	assert.NotZero(native.Context)
	assert.Equal(uint8(1), native.IsDirectory)

	status = dispatch(infoAddr, func(in *instance, info *dokan.FileInfo) dokan.NTStatus {
		assert.Equal(native.Context, info.Context)
		assert.True(info.IsDirectory)
		_, ok := fileInfos.Load(info)
		assert.True(ok)
		return in.ops.DeleteDirectory(in.ctx, `\dir`, info).NTStatus()
	})
	assert.Equal(uintptr(dokan.STATUS_SUCCESS), status)

	status = dispatch(infoAddr, func(in *instance, info *dokan.FileInfo) dokan.NTStatus {
		in.ops.Cleanup(in.ctx, `\dir`, info)
		in.ops.CloseFile(in.ctx, `\dir`, info)
		return dokan.STATUS_SUCCESS
	})
	assert.Equal(uintptr(dokan.STATUS_SUCCESS), status)

	status = dispatch(infoAddr, func(in *instance, info *dokan.FileInfo) dokan.NTStatus {
		panic("broken")
	})
	assert.Equal(uintptr(dokan.STATUS_INTERNAL_ERROR), status)

	// The copy is forgotten once the callback returns.
	assert.False((&Host{}).ResetTimeout(&dokan.FileInfo{}))
	assert.Equal(dokan.Success, in.unmounted())
	assert.Equal(dokan.Success, in.unmounted())
}
