package dokanfs

import (
	"sync"
	"time"

	"github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/log"
)

// keeper resets the driver timeout of one callback.
type keeper struct {
	fs      *FileSystem
	info    *dokan.FileInfo
	mtx     sync.Mutex
	timer   *time.Timer
	stopped bool
}

// keep arms the timeout keeper for a callback, returning
// the function that disarms it. Callbacks finishing within
// one interval never reach the driver.
func (fs *FileSystem) keep(info *dokan.FileInfo) func() {
	if fs.resetter == nil || info == nil {
		return func() {}
	}
	k := &keeper{fs: fs, info: info}
	k.mtx.Lock()
	defer k.mtx.Unlock()
	k.timer = time.AfterFunc(fs.keepInterval, k.fire)
	return k.stop
}

func (k *keeper) fire() {
	k.mtx.Lock()
	defer k.mtx.Unlock()
	if k.stopped {
		return
	}
	if !k.fs.resetter.ResetTimeout(k.info) {
		if k.fs.log.Enabled(log.TopicError) {
			k.fs.log.Logf(log.TopicError,
				"reset timeout of handle %d failed", k.info.Context)
		}
		return
	}
	k.timer.Reset(k.fs.keepInterval)
}

// stop disarms the keeper. ResetTimeout is never called
// after stop returns.
func (k *keeper) stop() {
	k.mtx.Lock()
	defer k.mtx.Unlock()
	k.stopped = true
	k.timer.Stop()
}
