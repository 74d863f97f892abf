//go:build windows && (amd64 || arm64)

package dokanhost

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"

	dokan "github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/log"
)

const (
	allocationUnitSize = 4096
	sectorSize         = 512
)

// Host mounts volumes through dokan2.dll.
type Host struct {
	// Log receives the failures that cannot be answered to
	// a caller, such as a panic inside a callback.
	Log log.Log
}

var (
	_ dokan.Host            = (*Host)(nil)
	_ dokan.TimeoutResetter = (*Host)(nil)
)

func (h *Host) log() log.Log {
	if h.Log == nil {
		return log.NoLog{}
	}
	return h.Log
}

var nextInstance atomic.Uint64

// instance is one mounted volume. It holds the native
// structures for as long as the library may read them.
type instance struct {
	id         uint64
	ops        dokan.Operations
	ctx        context.Context
	log        log.Log
	mountPoint string
	timeout    uint32

	options    *dokanOptions
	operations *dokanOperations
	handle     uintptr

	unmountOnce   sync.Once
	unmountedOnce sync.Once
	unmountedErr  dokan.StatusCode
	done          chan struct{}
	err           error
}

func (h *Host) newOptions(in *instance, opts *dokan.MountOptions) (*dokanOptions, error) {
	mountPoint, err := windows.UTF16PtrFromString(opts.MountPoint)
	if err != nil {
		return nil, errors.Wrap(err, "encode mount point")
	}
	flags := uint32(opts.Flags)
	if opts.ReadOnly {
		flags |= uint32(dokan.MountWriteProtect)
	}
	if opts.CaseSensitive {
		flags |= optionCaseSensitive
	}
	return &dokanOptions{
		Version:            minimumVersion,
		SingleThread:       boolByte(opts.ThreadCount == 1),
		Options:            flags,
		GlobalContext:      in.id,
		MountPoint:         mountPoint,
		Timeout:            in.timeout,
		AllocationUnitSize: allocationUnitSize,
		SectorSize:         sectorSize,
	}, nil
}

// Mount serves ops at the drive letter or directory named
// by the options. It returns once the library has created
// the volume.
func (h *Host) Mount(
	ctx context.Context, ops dokan.Operations, opts *dokan.MountOptions,
) (dokan.Mount, error) {
	if opts == nil {
		return nil, errors.New("invalid nil options parameter")
	}
	library, _, err := Version()
	if err != nil {
		return nil, err
	}
	if library < minimumVersion {
		return nil, errors.Errorf("dokan library version %d is older than %d", library, minimumVersion)
	}
	in := &instance{
		id:         nextInstance.Add(1),
		ops:        ops,
		ctx:        context.WithoutCancel(ctx),
		log:        h.log(),
		mountPoint: opts.MountPoint,
		timeout:    uint32(opts.Timeout.Milliseconds()),
		operations: newOperations(),
		done:       make(chan struct{}),
	}
	options, err := h.newOptions(in, opts)
	if err != nil {
		return nil, err
	}
	in.options = options
	instances.Store(in.id, in)
	handle, err := createFileSystem(in.options, in.operations)
	if err != nil {
		instances.Delete(in.id)
		return nil, err
	}
	in.handle = handle
	go in.wait()
	return in, nil
}

// unmounted delivers Unmounted once, whether the library
// reports it or the wait ends first.
func (in *instance) unmounted() dokan.StatusCode {
	in.unmountedOnce.Do(func() {
		in.unmountedErr = in.ops.Unmounted(in.ctx)
	})
	return in.unmountedErr
}

func (in *instance) wait() {
	defer close(in.done)
	if err := waitClosed(in.handle); err != nil {
		in.log.Logf(log.TopicError, "wait for %q: %v", in.mountPoint, err)
		in.err = err
	}
	if status := in.unmounted(); status != dokan.Success {
		in.log.Logf(log.TopicError, "unmounted %q: %v", in.mountPoint, status)
	}
	if err := closeHandle(in.handle); err != nil && in.err == nil {
		in.err = err
	}
	instances.Delete(in.id)
}

// Unmount removes the mount point and waits until the
// volume is closed.
func (in *instance) Unmount() error {
	in.unmountOnce.Do(func() {
		select {
		case <-in.done:
			return
		default:
		}
		if err := removeMountPoint(in.mountPoint); err != nil {
			in.log.Logf(log.TopicError, "remove %q: %v", in.mountPoint, err)
		}
	})
	<-in.done
	return in.err
}

func (in *instance) Done() <-chan struct{} {
	return in.done
}

// ResetTimeout extends the deadline of the callback that
// received info. It fails once the callback has returned.
func (h *Host) ResetTimeout(info *dokan.FileInfo) bool {
	value, ok := fileInfos.Load(info)
	if !ok {
		return false
	}
	ref := value.(fileInfoRef)
	return resetTimeout(ref.timeout, ref.native)
}
