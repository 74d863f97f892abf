package osfs

import (
	"golang.org/x/sys/windows"

	"github.com/godokan/go-dokan/backend"
)

func diskSpace(dir string) (backend.Space, error) {
	path, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return backend.Space{}, err
	}
	var available, total, free uint64
	if err := windows.GetDiskFreeSpaceEx(path, &available, &total, &free); err != nil {
		return backend.Space{}, err
	}
	return backend.Space{
		Total:     total,
		Free:      free,
		Available: available,
	}, nil
}
