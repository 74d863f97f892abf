//go:build linux || darwin || freebsd

package fusehost

import (
	"context"
	"strings"
	"sync"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	dokan "github.com/godokan/go-dokan"
)

// volume is the FUSE file system over a set of operations.
// The kernel identifies entries by node, while the
// operations identify them by name, so the volume keeps the
// live nodes by name and repoints them on rename.
type volume struct {
	ops dokan.Operations

	mu    sync.Mutex
	nodes map[string]*node
}

var (
	_ fusefs.FS         = (*volume)(nil)
	_ fusefs.FSStatfser = (*volume)(nil)
)

func newVolume(ops dokan.Operations) *volume {
	v := &volume{ops: ops, nodes: make(map[string]*node)}
	v.nodes[`\`] = &node{vol: v, name: `\`}
	return v
}

func (v *volume) Root() (fusefs.Node, error) {
	return v.node(`\`), nil
}

// node returns the live node of name, creating it when the
// kernel has none.
func (v *volume) node(name string) *node {
	v.mu.Lock()
	defer v.mu.Unlock()
	n, ok := v.nodes[name]
	if !ok {
		n = &node{vol: v, name: name}
		v.nodes[name] = n
	}
	return n
}

func (v *volume) forget(n *node) {
	v.mu.Lock()
	defer v.mu.Unlock()
	n.mu.Lock()
	name := n.name
	n.mu.Unlock()
	if name != `\` && v.nodes[name] == n {
		delete(v.nodes, name)
	}
}

// moved repoints the node of from and its descendants.
func (v *volume) moved(from, to string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	prefix := from + `\`
	renamed := make(map[string]*node)
	for name, n := range v.nodes {
		var target string
		switch {
		case name == from:
			target = to
		case strings.HasPrefix(name, prefix):
			target = to + name[len(from):]
		default:
			continue
		}
		delete(v.nodes, name)
		n.mu.Lock()
		n.name = target
		n.mu.Unlock()
		renamed[target] = n
	}
	for name, n := range renamed {
		v.nodes[name] = n
	}
}

// removed drops the node of a deleted entry.
func (v *volume) removed(name string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.nodes, name)
}

func (v *volume) Statfs(ctx context.Context, req *fuse.StatfsRequest, resp *fuse.StatfsResponse) error {
	space, status := v.ops.GetDiskFreeSpace(ctx)
	if status != dokan.Success {
		return statusError(status)
	}
	volInfo, status := v.ops.GetVolumeInformation(ctx)
	if status != dokan.Success {
		return statusError(status)
	}
	resp.Bsize = blockSize
	resp.Frsize = blockSize
	resp.Blocks = space.TotalNumberOfBytes / blockSize
	resp.Bfree = space.TotalNumberOfFreeBytes / blockSize
	resp.Bavail = space.FreeBytesAvailable / blockSize
	resp.Namelen = volInfo.MaxComponentLength
	return nil
}

// childName joins a component to the name of a directory.
func childName(dir, name string) string {
	if dir == `\` {
		return `\` + name
	}
	return dir + `\` + name
}

// session is one open of an entry, from CreateFile to
// CloseFile.
type session struct {
	ops  dokan.Operations
	info dokan.FileInfo
}

func (v *volume) open(
	ctx context.Context, name string, req dokan.CreateRequest,
) (*session, dokan.CreateResult, error) {
	s := &session{ops: v.ops}
	s.info.IsDirectory = req.CreateOptions&dokan.FILE_DIRECTORY_FILE != 0
	s.info.SynchronousIO = true
	result, status := v.ops.CreateFile(ctx, name, &req, &s.info)
	if status != dokan.Success {
		return nil, result, statusError(status)
	}
	s.info.IsDirectory = result.IsDirectory
	return s, result, nil
}

// close issues Cleanup and CloseFile.
func (s *session) close(ctx context.Context, name string) {
	s.ops.Cleanup(ctx, name, &s.info)
	s.ops.CloseFile(ctx, name, &s.info)
}

// with opens name, runs fn and closes the entry again.
func (v *volume) with(
	ctx context.Context, name string, req dokan.CreateRequest,
	fn func(*session) dokan.StatusCode,
) error {
	s, _, err := v.open(ctx, name, req)
	if err != nil {
		return err
	}
	status := fn(s)
	s.close(ctx, name)
	return statusError(status)
}

// createRequest maps the flags of open(2).
func createRequest(flags fuse.OpenFlags, dir bool) dokan.CreateRequest {
	req := dokan.CreateRequest{
		ShareAccess:       shareAll,
		CreateDisposition: dokan.FILE_OPEN,
		CreateOptions:     dokan.FILE_NON_DIRECTORY_FILE,
	}
	if dir {
		req.DesiredAccess = dokan.FILE_READ_DATA
		req.CreateOptions = dokan.FILE_DIRECTORY_FILE
		return req
	}
	switch {
	case flags.IsWriteOnly():
		req.DesiredAccess = dokan.GENERIC_WRITE
	case flags.IsReadWrite():
		req.DesiredAccess = dokan.GENERIC_READ | dokan.GENERIC_WRITE
	default:
		req.DesiredAccess = dokan.GENERIC_READ
	}
	if flags&fuse.OpenAppend != 0 && !flags.IsReadOnly() {
		req.DesiredAccess &^= dokan.GENERIC_WRITE
		req.DesiredAccess |= dokan.FILE_APPEND_DATA
	}
	switch {
	case flags&fuse.OpenCreate != 0 && flags&fuse.OpenExclusive != 0:
		req.CreateDisposition = dokan.FILE_CREATE
	case flags&fuse.OpenCreate != 0 && flags&fuse.OpenTruncate != 0:
		req.CreateDisposition = dokan.FILE_OVERWRITE_IF
	case flags&fuse.OpenCreate != 0:
		req.CreateDisposition = dokan.FILE_OPEN_IF
	case flags&fuse.OpenTruncate != 0:
		req.CreateDisposition = dokan.FILE_OVERWRITE
	}
	return req
}

// shareAll lets concurrent opens read, write and delete.
const shareAll = 0x7

func statRequest() dokan.CreateRequest {
	return dokan.CreateRequest{
		DesiredAccess:     dokan.FILE_READ_ATTRIBUTES,
		ShareAccess:       shareAll,
		CreateDisposition: dokan.FILE_OPEN,
	}
}
