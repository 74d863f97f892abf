package dokanfs

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/backend"
	"github.com/godokan/go-dokan/fserr"
	"github.com/godokan/go-dokan/handletable"
	"github.com/godokan/go-dokan/log"
	"github.com/godokan/go-dokan/metadata"
	"github.com/godokan/go-dokan/metrics"
	"github.com/godokan/go-dokan/pathkey"
	"github.com/godokan/go-dokan/pathtree"
)

// FileSystem implements dokan.Operations over a backend.
type FileSystem struct {
	inner    backend.FileSystem
	resolver *pathkey.Resolver
	tree     *pathtree.Tree
	handles  *handletable.Table[*openFile]
	mapper   metadata.Mapper
	log      log.Log
	metrics  metrics.Metrics

	volume       dokan.VolumeInformation
	readOnly     bool
	freeSpace    dokan.DiskSpace
	resetter     dokan.TimeoutResetter
	keepInterval time.Duration

	mountMtx   sync.Mutex
	mountPoint string
}

var _ dokan.Operations = (*FileSystem)(nil)

// New creates the dispatcher with the provided backend and
// a variadic array of options.
func New(fs backend.FileSystem, opts ...NewOption) (*FileSystem, error) {
	if fs == nil {
		return nil, errors.New("invalid nil backend parameter")
	}
	option := newOption{
		log:     log.NoLog{},
		metrics: metrics.Noop(),
		volume: dokan.VolumeInformation{
			VolumeName:     defaultVolumeLabel,
			FileSystemName: defaultFileSystemName,
		},
		freeSpace: defaultDiskSpace,
	}
	for _, opt := range opts {
		if err := opt(&option); err != nil {
			return nil, err
		}
	}
	if option.resolver == nil {
		option.resolver = pathkey.NewResolver(
			pathkey.WithCaseInsensitive(backend.IsCaseInsensitive(fs)),
		)
	}
	return &FileSystem{
		inner:    fs,
		resolver: option.resolver,
		tree:     pathtree.New(),
		handles:  handletable.New[*openFile](),
		mapper: metadata.Mapper{
			ReadOnly:     option.readOnlyMode,
			VolumeSerial: option.volume.SerialNumber,
		},
		log:          option.log,
		metrics:      option.metrics,
		volume:       option.volume,
		readOnly:     option.readOnly,
		freeSpace:    option.freeSpace,
		resetter:     option.resetter,
		keepInterval: option.keepInterval,
	}, nil
}

// trace opens the log span and the metrics timer of a
// callback. The returned function must be called with the
// final status.
func (fs *FileSystem) trace(
	op string, args func() log.M,
) func(status dokan.StatusCode, rets func() log.M) {
	record := log.Span(fs.log, op, args)
	timer := metrics.Timer(fs.metrics, op)
	return func(status dokan.StatusCode, rets func() log.M) {
		timer(status)
		record(func() log.M {
			result := log.M{}
			if rets != nil {
				result = rets()
			}
			result["status"] = status
			return result
		})
	}
}

// verdict translates the error of a callback, logging it
// on the way. Internal errors are always worth a look, the
// rest is part of normal operation.
func (fs *FileSystem) verdict(op, name string, err error) dokan.StatusCode {
	if err == nil {
		return dokan.Success
	}
	status := fserr.Translate(err)
	if status == dokan.InternalError {
		if fs.log.Enabled(log.TopicError) {
			fs.log.Logf(log.TopicError, "%s %q: %+v", op, name, err)
		}
	} else if fs.log.Enabled(log.TopicVerdict) {
		fs.log.Logf(log.TopicVerdict, "%s %q: %s: %v", op, name, status, err)
	}
	return status
}

func (fs *FileSystem) load(info *dokan.FileInfo) (*openFile, error) {
	if info == nil {
		return nil, &fserr.HandleError{}
	}
	return fs.handles.Lookup(info.Context)
}

func (fs *FileSystem) updateOpenHandles() {
	fs.metrics.SetOpenHandles(fs.handles.Len())
}

// denyReadOnly fails when the volume is mounted read-only.
func (fs *FileSystem) denyReadOnly(op, name string) error {
	if fs.readOnly {
		return errors.Wrapf(dokan.AccessDenied, "%s %q on read-only volume", op, name)
	}
	return nil
}

// parentStat returns the stat of the parent directory when
// the read-only mapping needs it, and nil otherwise.
func (fs *FileSystem) parentStat(name string) (*backend.Stat, error) {
	if !fs.mapper.ReadOnly.NeedParent() || name == "/" {
		return nil, nil
	}
	dir, _ := backend.Split(name)
	stat, err := fs.inner.Stat(dir)
	if err != nil {
		return nil, err
	}
	return &stat, nil
}

func (fs *FileSystem) Mounted(ctx context.Context, mountPoint string) (status dokan.StatusCode) {
	end := fs.trace("Mounted", func() log.M {
		return log.M{"mountPoint": mountPoint}
	})
	defer func() { end(status, nil) }()
	fs.mountMtx.Lock()
	defer fs.mountMtx.Unlock()
	fs.mountPoint = mountPoint
	if fs.log.Enabled(log.TopicVerdict) {
		fs.log.Logf(log.TopicVerdict, "mounted at %q", mountPoint)
	}
	return dokan.Success
}

// MountPoint returns where the volume was last mounted.
func (fs *FileSystem) MountPoint() string {
	fs.mountMtx.Lock()
	defer fs.mountMtx.Unlock()
	return fs.mountPoint
}

// Unmounted cleans up and releases every handle the driver
// left open.
func (fs *FileSystem) Unmounted(ctx context.Context) (status dokan.StatusCode) {
	end := fs.trace("Unmounted", nil)
	defer func() { end(status, nil) }()
	handles := fs.handles.Drain()
	for _, handle := range handles {
		fs.closeHandle(handle, nil)
	}
	fs.updateOpenHandles()
	fs.mountMtx.Lock()
	defer fs.mountMtx.Unlock()
	if fs.log.Enabled(log.TopicVerdict) {
		fs.log.Logf(log.TopicVerdict,
			"unmounted from %q, released %d handles", fs.mountPoint, len(handles))
	}
	fs.mountPoint = ""
	return dokan.Success
}

func (fs *FileSystem) GetDiskFreeSpace(ctx context.Context) (space dokan.DiskSpace, status dokan.StatusCode) {
	end := fs.trace("GetDiskFreeSpace", nil)
	defer func() {
		end(status, func() log.M {
			return log.M{"space": space}
		})
	}()
	reporter, ok := fs.inner.(backend.SpaceReporter)
	if !ok {
		return fs.freeSpace, dokan.Success
	}
	result, err := reporter.DiskSpace()
	if fserr.KindOf(err) == fserr.KindUnsupported {
		return fs.freeSpace, dokan.Success
	}
	if err != nil {
		return dokan.DiskSpace{}, fs.verdict("GetDiskFreeSpace", "", err)
	}
	return dokan.DiskSpace{
		FreeBytesAvailable:     result.Available,
		TotalNumberOfBytes:     result.Total,
		TotalNumberOfFreeBytes: result.Free,
	}, dokan.Success
}

func (fs *FileSystem) GetVolumeInformation(ctx context.Context) (info dokan.VolumeInformation, status dokan.StatusCode) {
	end := fs.trace("GetVolumeInformation", nil)
	defer func() {
		end(status, func() log.M {
			return log.M{"info": dokan.DebugVolumeInformation{VolumeInformation: &info}}
		})
	}()
	info = fs.volume
	info.MaxComponentLength = uint32(fs.resolver.MaxComponentLength())
	info.FileSystemFlags = dokan.FILE_CASE_PRESERVED_NAMES |
		dokan.FILE_UNICODE_ON_DISK |
		dokan.FILE_PERSISTENT_ACLS |
		dokan.FILE_SUPPORTS_REMOTE_STORAGE
	if fs.resolver.CaseSensitive() {
		info.FileSystemFlags |= dokan.FILE_CASE_SENSITIVE_SEARCH
	}
	if fs.readOnly {
		info.FileSystemFlags |= dokan.FILE_READ_ONLY_VOLUME
	}
	return info, dokan.Success
}
