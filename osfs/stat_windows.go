package osfs

import (
	"io/fs"
	"syscall"
	"time"

	"github.com/godokan/go-dokan/backend"
)

func platformStat(info fs.FileInfo, stat *backend.Stat) {
	data, ok := info.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return
	}
	stat.AccessTime = time.Unix(0, data.LastAccessTime.Nanoseconds())
	stat.CreateTime = time.Unix(0, data.CreationTime.Nanoseconds())
}
