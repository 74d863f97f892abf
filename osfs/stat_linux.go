package osfs

import (
	"io/fs"
	"syscall"
	"time"

	"github.com/godokan/go-dokan/backend"
)

func platformStat(info fs.FileInfo, stat *backend.Stat) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	stat.AccessTime = time.Unix(st.Atim.Unix())
	stat.Links = uint32(st.Nlink)
	stat.Index = st.Ino
}
