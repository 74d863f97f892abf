//go:build linux || darwin || freebsd

package fusehost

import (
	"context"
	"sync"
	"time"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	dokan "github.com/godokan/go-dokan"
)

// node is a file or directory known to the kernel.
type node struct {
	vol *volume

	mu      sync.Mutex
	name    string
	handles []*handle
}

var (
	_ fusefs.Node               = (*node)(nil)
	_ fusefs.NodeStringLookuper = (*node)(nil)
	_ fusefs.NodeOpener         = (*node)(nil)
	_ fusefs.NodeCreater        = (*node)(nil)
	_ fusefs.NodeMkdirer        = (*node)(nil)
	_ fusefs.NodeRemover        = (*node)(nil)
	_ fusefs.NodeRenamer        = (*node)(nil)
	_ fusefs.NodeSetattrer      = (*node)(nil)
	_ fusefs.NodeFsyncer        = (*node)(nil)
	_ fusefs.NodeForgetter      = (*node)(nil)
)

func (n *node) path() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.name
}

func (n *node) attach(h *handle) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handles = append(n.handles, h)
}

func (n *node) detach(h *handle) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, other := range n.handles {
		if other == h {
			n.handles = append(n.handles[:i], n.handles[i+1:]...)
			return
		}
	}
}

// writer returns an open handle that may modify the data.
func (n *node) writer() *handle {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, h := range n.handles {
		if h.writable {
			return h
		}
	}
	return nil
}

func (n *node) Attr(ctx context.Context, attr *fuse.Attr) error {
	return n.vol.with(ctx, n.path(), statRequest(), func(s *session) dokan.StatusCode {
		info, status := s.ops.GetFileInformation(ctx, n.path(), &s.info)
		if status == dokan.Success {
			fillAttr(&info, attr)
		}
		return status
	})
}

func (n *node) Lookup(ctx context.Context, name string) (fusefs.Node, error) {
	child := childName(n.path(), name)
	err := n.vol.with(ctx, child, statRequest(), func(*session) dokan.StatusCode {
		return dokan.Success
	})
	if err != nil {
		return nil, err
	}
	return n.vol.node(child), nil
}

func (n *node) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fusefs.Handle, error) {
	creq := createRequest(req.Flags, req.Dir)
	s, _, err := n.vol.open(ctx, n.path(), creq)
	if err != nil {
		return nil, err
	}
	h := &handle{node: n, session: s, writable: creq.DesiredAccess.Writes()}
	n.attach(h)
	return h, nil
}

func (n *node) Create(
	ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse,
) (fusefs.Node, fusefs.Handle, error) {
	child := childName(n.path(), req.Name)
	creq := createRequest(req.Flags|fuse.OpenCreate, false)
	creq.FileAttributes = readOnlyAttribute(0, req.Mode)
	s, _, err := n.vol.open(ctx, child, creq)
	if err != nil {
		return nil, nil, err
	}
	c := n.vol.node(child)
	h := &handle{node: c, session: s, writable: creq.DesiredAccess.Writes()}
	c.attach(h)
	return c, h, nil
}

func (n *node) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fusefs.Node, error) {
	child := childName(n.path(), req.Name)
	creq := dokan.CreateRequest{
		DesiredAccess:     dokan.FILE_READ_ATTRIBUTES,
		FileAttributes:    readOnlyAttribute(dokan.FILE_ATTRIBUTE_DIRECTORY, req.Mode),
		ShareAccess:       shareAll,
		CreateDisposition: dokan.FILE_CREATE,
		CreateOptions:     dokan.FILE_DIRECTORY_FILE,
	}
	err := n.vol.with(ctx, child, creq, func(*session) dokan.StatusCode {
		return dokan.Success
	})
	if err != nil {
		return nil, err
	}
	return n.vol.node(child), nil
}

// Remove marks the entry and lets the cleanup of the open
// delete it, the way the driver deletes on close.
func (n *node) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	child := childName(n.path(), req.Name)
	creq := dokan.CreateRequest{
		DesiredAccess:     dokan.DELETE,
		ShareAccess:       shareAll,
		CreateDisposition: dokan.FILE_OPEN,
		CreateOptions:     dokan.FILE_NON_DIRECTORY_FILE,
	}
	if req.Dir {
		creq.CreateOptions = dokan.FILE_DIRECTORY_FILE
	}
	err := n.vol.with(ctx, child, creq, func(s *session) dokan.StatusCode {
		s.info.DeleteOnClose = true
		if req.Dir {
			return s.ops.DeleteDirectory(ctx, child, &s.info)
		}
		return s.ops.DeleteFile(ctx, child, &s.info)
	})
	if err != nil {
		return err
	}
	n.vol.removed(child)
	return nil
}

// Rename replaces an existing target, as rename(2) does.
func (n *node) Rename(ctx context.Context, req *fuse.RenameRequest, newDir fusefs.Node) error {
	dir, ok := newDir.(*node)
	if !ok {
		return statusError(dokan.InternalError)
	}
	from := childName(n.path(), req.OldName)
	to := childName(dir.path(), req.NewName)
	creq := dokan.CreateRequest{
		DesiredAccess:     dokan.DELETE,
		ShareAccess:       shareAll,
		CreateDisposition: dokan.FILE_OPEN,
	}
	s, _, err := n.vol.open(ctx, from, creq)
	if err != nil {
		return err
	}
	status := s.ops.MoveFile(ctx, from, to, true, &s.info)
	if status != dokan.Success {
		s.close(ctx, from)
		return statusError(status)
	}
	s.close(ctx, to)
	n.vol.removed(to)
	n.vol.moved(from, to)
	return nil
}

func (n *node) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	name := n.path()
	if req.Valid.Size() {
		if err := n.truncate(ctx, name, int64(req.Size)); err != nil {
			return err
		}
	}
	if req.Valid.Atime() || req.Valid.Mtime() || req.Valid.AtimeNow() || req.Valid.MtimeNow() {
		now := time.Now()
		atime := fileTime(req.Valid.Atime(), req.Atime)
		if req.Valid.AtimeNow() {
			atime = fileTime(true, now)
		}
		mtime := fileTime(req.Valid.Mtime(), req.Mtime)
		if req.Valid.MtimeNow() {
			mtime = fileTime(true, now)
		}
		creq := statRequest()
		creq.DesiredAccess |= dokan.FILE_WRITE_ATTRIBUTES
		err := n.vol.with(ctx, name, creq, func(s *session) dokan.StatusCode {
			return s.ops.SetFileTime(ctx, name, 0, atime, mtime, &s.info)
		})
		if err != nil {
			return err
		}
	}
	if req.Valid.Mode() {
		creq := statRequest()
		creq.DesiredAccess |= dokan.FILE_WRITE_ATTRIBUTES
		err := n.vol.with(ctx, name, creq, func(s *session) dokan.StatusCode {
			info, status := s.ops.GetFileInformation(ctx, name, &s.info)
			if status != dokan.Success {
				return status
			}
			return s.ops.SetFileAttributes(ctx, name,
				readOnlyAttribute(info.FileAttributes, req.Mode), &s.info)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// truncate goes through an open writer when there is one,
// so that the size change is not lost when it is flushed.
func (n *node) truncate(ctx context.Context, name string, size int64) error {
	if h := n.writer(); h != nil {
		return statusError(h.ops.SetEndOfFile(ctx, name, size, &h.info))
	}
	creq := dokan.CreateRequest{
		DesiredAccess:     dokan.GENERIC_WRITE,
		ShareAccess:       shareAll,
		CreateDisposition: dokan.FILE_OPEN,
		CreateOptions:     dokan.FILE_NON_DIRECTORY_FILE,
	}
	return n.vol.with(ctx, name, creq, func(s *session) dokan.StatusCode {
		return s.ops.SetEndOfFile(ctx, name, size, &s.info)
	})
}

func (n *node) Fsync(ctx context.Context, req *fuse.FsyncRequest) error {
	h := n.writer()
	if h == nil {
		return nil
	}
	return statusError(h.ops.FlushFileBuffers(ctx, n.path(), &h.info))
}

func (n *node) Forget() {
	n.vol.forget(n)
}

// handle is an open file or directory.
type handle struct {
	*session
	node     *node
	writable bool
}

var (
	_ fusefs.Handle             = (*handle)(nil)
	_ fusefs.HandleReader       = (*handle)(nil)
	_ fusefs.HandleWriter       = (*handle)(nil)
	_ fusefs.HandleFlusher      = (*handle)(nil)
	_ fusefs.HandleReleaser     = (*handle)(nil)
	_ fusefs.HandleReadDirAller = (*handle)(nil)
)

func (h *handle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	buf := make([]byte, req.Size)
	n, status := h.ops.ReadFile(ctx, h.node.path(), buf, req.Offset, &h.info)
	if status != dokan.Success {
		return statusError(status)
	}
	resp.Data = buf[:n]
	return nil
}

func (h *handle) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	n, status := h.ops.WriteFile(ctx, h.node.path(), req.Data, req.Offset, &h.info)
	if status != dokan.Success {
		return statusError(status)
	}
	resp.Size = n
	return nil
}

func (h *handle) Flush(ctx context.Context, req *fuse.FlushRequest) error {
	if !h.writable {
		return nil
	}
	return statusError(h.ops.FlushFileBuffers(ctx, h.node.path(), &h.info))
}

func (h *handle) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	h.node.detach(h)
	h.close(ctx, h.node.path())
	return nil
}

func (h *handle) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	dir := h.node.path()
	var dirents []fuse.Dirent
	status := h.ops.FindFiles(ctx, dir, &h.info, func(fd *dokan.FindData) bool {
		if fd.FileName == "." || fd.FileName == ".." {
			return true
		}
		dirents = append(dirents, fuse.Dirent{
			Inode: fusefs.GenerateDynamicInode(1, childName(dir, fd.FileName)),
			Name:  fd.FileName,
			Type:  direntType(fd.FileAttributes),
		})
		return true
	})
	if status != dokan.Success {
		return nil, statusError(status)
	}
	return dirents, nil
}
