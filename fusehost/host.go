//go:build linux || darwin || freebsd

package fusehost

import (
	"context"
	"sync"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
	"github.com/pkg/errors"

	dokan "github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/log"
)

// Host mounts volumes through the FUSE kernel module.
type Host struct {
	// AllowOther lets users other than the owner of the
	// process access the volume.
	AllowOther bool

	// Log receives the failures that cannot be answered to
	// a caller, such as a Serve loop ending with an error.
	Log log.Log
}

var _ dokan.Host = (*Host)(nil)

func (h *Host) log() log.Log {
	if h.Log == nil {
		return log.NoLog{}
	}
	return h.Log
}

func mountOptions(h *Host, opts *dokan.MountOptions) []fuse.MountOption {
	options := []fuse.MountOption{
		fuse.FSName(opts.VolumeLabel),
		fuse.Subtype(opts.FileSystemName),
	}
	if opts.ReadOnly || opts.Flags&dokan.MountWriteProtect != 0 {
		options = append(options, fuse.ReadOnly())
	}
	if h.AllowOther {
		options = append(options, fuse.AllowOther())
	}
	return options
}

// Mount serves ops at the directory named by the options.
// Drive letters cannot be mounted through FUSE.
func (h *Host) Mount(
	ctx context.Context, ops dokan.Operations, opts *dokan.MountOptions,
) (dokan.Mount, error) {
	if opts == nil {
		return nil, errors.New("invalid nil options parameter")
	}
	if dokan.IsDriveLetter(opts.MountPoint) {
		return nil, errors.Errorf("drive letter %q needs the dokan driver", opts.MountPoint)
	}
	conn, err := fuse.Mount(opts.MountPoint, mountOptions(h, opts)...)
	if err != nil {
		return nil, errors.Wrap(err, "mount fuse")
	}
	ctx = context.WithoutCancel(ctx)
	if status := ops.Mounted(ctx, opts.MountPoint); status != dokan.Success {
		_ = fuse.Unmount(opts.MountPoint)
		_ = conn.Close()
		return nil, errors.Wrap(status, "mounted callback")
	}
	m := &mount{
		dir:  opts.MountPoint,
		ops:  ops,
		ctx:  ctx,
		log:  h.log(),
		conn: conn,
		done: make(chan struct{}),
	}
	go m.serve(newVolume(ops))
	return m, nil
}

type mount struct {
	dir  string
	ops  dokan.Operations
	ctx  context.Context
	log  log.Log
	conn *fuse.Conn

	once     sync.Once
	done     chan struct{}
	serveErr error
}

func (m *mount) serve(v *volume) {
	defer close(m.done)
	err := fusefs.Serve(m.conn, v)
	if err != nil {
		m.log.Logf(log.TopicError, "serve %s: %v", m.dir, err)
		m.serveErr = errors.Wrap(err, "serve fuse")
	}
	if err := m.conn.Close(); err != nil {
		m.log.Logf(log.TopicError, "close %s: %v", m.dir, err)
	}
	if status := m.ops.Unmounted(m.ctx); status != dokan.Success {
		m.log.Logf(log.TopicError, "unmounted callback: %v", status)
	}
}

// Unmount detaches the directory and waits for the serve
// loop, which delivers Unmounted, to exit.
func (m *mount) Unmount() error {
	var err error
	m.once.Do(func() {
		select {
		case <-m.done:
			return
		default:
		}
		err = fuse.Unmount(m.dir)
		if err != nil {
			err = errors.Wrap(err, "unmount fuse")
		}
	})
	if err != nil {
		return err
	}
	<-m.done
	return m.serveErr
}

func (m *mount) Done() <-chan struct{} {
	return m.done
}
