package dokanfs

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/backend"
	"github.com/godokan/go-dokan/fserr"
	"github.com/godokan/go-dokan/log"
	"github.com/godokan/go-dokan/pathtree"
)

type handleState uint8

const (
	stateOpen handleState = iota
	stateCleaned
	stateClosed
)

func (s handleState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateCleaned:
		return "cleaned"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// openFile is the context behind a handle id.
//
// The mutex guards the state, the file, the delete mark
// and the held ranges. Data operations hold it shared, so
// that reads and writes of one handle may proceed in
// parallel, while cleanup, rename, delete marking and range
// locking hold it exclusively.
type openFile struct {
	id    uint64
	node  *pathtree.Node
	file  backend.File
	isDir bool
	flags int
	mtx   sync.RWMutex
	state handleState

	// marked is whether this handle holds a delete mark
	// on its node.
	marked bool

	// ranges are the byte ranges the handle locked. The
	// node arbitrates them against the other handles.
	ranges []pathtree.Range

	// sizeWritten is the furthest byte written through the
	// handle, reported even when the backend lags behind.
	sizeWritten atomic.Int64

	dirMtx sync.Mutex
	dir    *dirEnum
}

// path returns the current path of the handle, failing when
// the entry was deleted or replaced.
func (handle *openFile) path(op string) (string, error) {
	name := handle.node.Path()
	if name == "" {
		return "", fserr.NotFound(op, handle.node.Fold())
	}
	return name, nil
}

func (handle *openFile) appendOnly() bool {
	return handle.flags&os.O_APPEND != 0
}

func (handle *openFile) stateError(op string) error {
	return &fserr.StateError{
		Op:     op,
		Handle: handle.id,
		State:  handle.state.String(),
	}
}

// lockChecked holds the handle shared, failing unless the
// handle is still open.
func (handle *openFile) lockChecked(op string) error {
	handle.mtx.RLock()
	valid := false
	defer func() {
		if !valid {
			handle.mtx.RUnlock()
		}
	}()
	if handle.state != stateOpen {
		return handle.stateError(op)
	}
	valid = true
	return nil
}

func (handle *openFile) unlockChecked() {
	handle.mtx.RUnlock()
}

// lockExclusive is lockChecked holding the handle
// exclusively.
func (handle *openFile) lockExclusive(op string) error {
	handle.mtx.Lock()
	if handle.state != stateOpen {
		err := handle.stateError(op)
		handle.mtx.Unlock()
		return err
	}
	return nil
}

func (handle *openFile) unlockExclusive() {
	handle.mtx.Unlock()
}

// lockPaging holds a cleaned handle shared for paging I/O,
// which the driver issues after Cleanup to flush cached and
// mapped pages. The backend file is reopened on first use
// and closed again by CloseFile.
func (fs *FileSystem) lockPaging(handle *openFile, op string) error {
	handle.mtx.Lock()
	if handle.state != stateCleaned || handle.isDir {
		err := handle.stateError(op)
		handle.mtx.Unlock()
		return err
	}
	if handle.file == nil {
		name, err := handle.path(op)
		if err == nil {
			handle.file, err = fs.inner.Open(name, handle.flags&^os.O_APPEND)
		}
		if err != nil {
			handle.mtx.Unlock()
			return err
		}
	}
	handle.mtx.Unlock()

	handle.mtx.RLock()
	if handle.state != stateCleaned || handle.file == nil {
		err := handle.stateError(op)
		handle.mtx.RUnlock()
		return err
	}
	return nil
}

// markDelete puts the delete mark of the handle. Marking
// twice is a no-op. Must hold the handle exclusively.
func (handle *openFile) markDelete() {
	if !handle.marked {
		handle.node.MarkDelete()
		handle.marked = true
	}
}

func (handle *openFile) unmarkDelete() {
	if handle.marked {
		handle.node.UnmarkDelete()
		handle.marked = false
	}
}

// recordWrite raises the size-written mark to end.
func (handle *openFile) recordWrite(end int64) {
	for {
		current := handle.sizeWritten.Load()
		if end <= current ||
			handle.sizeWritten.CompareAndSwap(current, end) {
			return
		}
	}
}

// closeFile syncs and closes the backend file of the
// handle. Must hold the handle exclusively.
func (fs *FileSystem) closeFile(handle *openFile) {
	if handle.file == nil {
		return
	}
	if !handle.isDir {
		if err := handle.file.Sync(); err != nil {
			fs.logError("sync", handle, err)
		}
	}
	if err := handle.file.Close(); err != nil {
		fs.logError("close", handle, err)
	}
	handle.file = nil
}

// cleanupLocked closes the backend file and removes the
// entry when deleteOnClose is set. The delete mark of the
// handle only keeps new opens out, the driver decides the
// removal. Failures are logged, since the driver has no way
// to receive them. Must hold the handle exclusively.
func (fs *FileSystem) cleanupLocked(handle *openFile, deleteOnClose bool) {
	if handle.state != stateOpen {
		return
	}
	handle.state = stateCleaned
	handle.node.UnlockAll(handle.id)
	handle.ranges = nil
	if deleteOnClose && fs.readOnly {
		deleteOnClose = false
	}
	fs.closeFile(handle)
	defer handle.unmarkDelete()
	if !deleteOnClose {
		return
	}
	name := handle.node.Path()
	if name == "" {
		// Already removed through another handle.
		return
	}
	var err error
	if handle.isDir {
		err = fs.inner.RemoveDir(name)
	} else {
		err = fs.inner.Remove(name)
	}
	if err != nil {
		fs.logError("remove", handle, err)
		return
	}
	handle.node.Exile()
	if fs.log.Enabled(log.TopicVerdict) {
		fs.log.Logf(log.TopicVerdict, "handle %d removed %q", handle.id, name)
	}
}

// closeHandle cleans up the handle if it was not, and drops
// its resources. Without info, as on unmount, the delete
// mark of the handle decides the removal. The handle must
// already be released from the table.
func (fs *FileSystem) closeHandle(handle *openFile, info *dokan.FileInfo) {
	handle.mtx.Lock()
	defer handle.mtx.Unlock()
	if handle.state == stateClosed {
		return
	}
	deleteOnClose := handle.marked
	if info != nil {
		deleteOnClose = info.DeleteOnClose
	}
	fs.cleanupLocked(handle, deleteOnClose)
	// Paging I/O may have reopened the file after cleanup.
	fs.closeFile(handle)
	handle.state = stateClosed
	handle.dirMtx.Lock()
	handle.dir = nil
	handle.dirMtx.Unlock()
	handle.node.Free()
}

func (fs *FileSystem) logError(op string, handle *openFile, err error) {
	if fs.log.Enabled(log.TopicError) {
		fs.log.Logf(log.TopicError, "%s on handle %d (%s): %+v",
			op, handle.id, handle.node.Path(), err)
	}
}
