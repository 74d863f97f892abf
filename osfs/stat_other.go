//go:build !linux && !windows

package osfs

import (
	"io/fs"

	"github.com/godokan/go-dokan/backend"
)

func platformStat(info fs.FileInfo, stat *backend.Stat) {}
