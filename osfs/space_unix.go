//go:build unix

package osfs

import (
	"golang.org/x/sys/unix"

	"github.com/godokan/go-dokan/backend"
)

func diskSpace(dir string) (backend.Space, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return backend.Space{}, err
	}
	bsize := uint64(st.Bsize)
	return backend.Space{
		Total:     uint64(st.Blocks) * bsize,
		Free:      uint64(st.Bfree) * bsize,
		Available: uint64(st.Bavail) * bsize,
	}, nil
}
