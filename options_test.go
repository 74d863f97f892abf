package dokan

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeMountPoint(t *testing.T) {
	assert := assert.New(t)

	for _, input := range []string{"m", "M:", `m:\`, "M:/"} {
		mountPoint, err := NormalizeMountPoint(input)
		assert.NoError(err, input)
		assert.Equal(`M:\`, mountPoint)
	}

	mountPoint, err := NormalizeMountPoint("/mnt/dokan/")
	assert.NoError(err)
	assert.Equal("/mnt/dokan", mountPoint)

	mountPoint, err = NormalizeMountPoint(`C:\mount\here`)
	assert.NoError(err)
	assert.Equal(`C:\mount\here`, mountPoint)

	for _, input := range []string{"", "relative/dir", "1:", "MM", `M:x`} {
		_, err := NormalizeMountPoint(input)
		assert.Error(err, input)
	}
}

func TestNewMountOptions(t *testing.T) {
	assert := assert.New(t)

	opts, err := NewMountOptions("x")
	assert.NoError(err)
	assert.Equal(`X:\`, opts.MountPoint)
	assert.Equal("Dokan Volume", opts.VolumeLabel)
	assert.Equal("NTFS", opts.FileSystemName)
	assert.Equal(30*time.Second, opts.Timeout)
	assert.False(opts.ReadOnly)

	opts, err = NewMountOptions("/mnt", Options(
		VolumeLabel("data"),
		ReadOnly(true),
		CaseSensitive(true),
		ThreadCount(4),
		Flags(MountRemovable),
	))
	assert.NoError(err)
	assert.Equal("data", opts.VolumeLabel)
	assert.True(opts.ReadOnly)
	assert.True(opts.CaseSensitive)
	assert.Equal(4, opts.ThreadCount)
	assert.Equal(MountWriteProtect|MountRemovable, opts.Flags)

	_, err = NewMountOptions("/mnt", ThreadCount(-1))
	assert.Error(err)
}

func TestParseMountFlags(t *testing.T) {
	assert := assert.New(t)

	flags, err := ParseMountFlags([]string{"debug", " Removable ", "filelock_user_mode"})
	assert.NoError(err)
	assert.Equal(MountDebug|MountRemovable|MountFileLockUserMode, flags)

	_, err = ParseMountFlags([]string{"turbo"})
	assert.Error(err)
}

type recordingHost struct {
	opts *MountOptions
	err  error
}

func (h *recordingHost) Mount(
	ctx context.Context, ops Operations, opts *MountOptions,
) (Mount, error) {
	h.opts = opts
	return nil, h.err
}

func TestMountWith(t *testing.T) {
	assert := assert.New(t)

	host := &recordingHost{}
	_, err := MountWith(context.Background(), host, nil, "X:")
	assert.Error(err)
	assert.Nil(host.opts)

	_, err = MountWith(context.Background(), nil, nil, "X:")
	assert.Error(err)

	host.err = errors.New("driver not installed")
	var ops Operations
	_, err = MountWith(context.Background(), host, ops, "X:")
	assert.Error(err)
}
