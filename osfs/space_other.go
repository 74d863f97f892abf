//go:build !unix && !windows

package osfs

import (
	"github.com/godokan/go-dokan/backend"
	"github.com/godokan/go-dokan/fserr"
)

func diskSpace(dir string) (backend.Space, error) {
	return backend.Space{}, fserr.Unsupported("diskspace")
}
