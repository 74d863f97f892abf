package s3fs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/godokan/go-dokan/backend"
	"github.com/godokan/go-dokan/fserr"
)

func newBody(data []byte) io.ReadSeeker {
	return bytes.NewReader(data)
}

// file is an open object. Until the first modification it
// reads with ranged requests; afterwards it holds the whole
// content until flushed.
type file struct {
	fs       *FileSystem
	writable bool

	mu      sync.Mutex
	name    string
	key     string
	size    int64
	modTime time.Time
	data    []byte
	loaded  bool
	dirty   bool
	closed  bool
	removed bool
}

var (
	_ backend.File              = (*file)(nil)
	_ backend.Appender          = (*file)(nil)
	_ backend.ConstrainedWriter = (*file)(nil)
)

func (f *file) stat() backend.Stat {
	_, base := backend.Split(f.name)
	return fileStat(base, f.size, f.modTime)
}

func (f *file) Stat() (backend.Stat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loaded {
		return f.stat(), nil
	}
	ctx, cancel := f.fs.context()
	defer cancel()
	head, err := f.fs.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(f.fs.bucket),
		Key:    aws.String(f.key),
	})
	if err != nil {
		return backend.Stat{}, wrap("stat", f.name, err)
	}
	f.size = aws.ToInt64(head.ContentLength)
	f.modTime = aws.ToTime(head.LastModified)
	return f.stat(), nil
}

func (f *file) get(ctx context.Context, op string, input *s3.GetObjectInput) (io.ReadCloser, error) {
	input.Bucket = aws.String(f.fs.bucket)
	input.Key = aws.String(f.key)
	out, err := f.fs.client.GetObject(ctx, input)
	if err != nil {
		return nil, wrap(op, f.name, err)
	}
	return out.Body, nil
}

// load fetches the whole content.
func (f *file) load(ctx context.Context, op string) error {
	if f.loaded {
		return nil
	}
	body, err := f.get(ctx, op, &s3.GetObjectInput{})
	if err != nil {
		return err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return fserr.Backend(op, f.name, err)
	}
	f.data = data
	f.size = int64(len(data))
	f.loaded = true
	return nil
}

func (f *file) ReadAt(p []byte, off int64) (int, error) {
	const op = "read"
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removed {
		return 0, fserr.NotFound(op, f.name)
	}
	if f.loaded {
		if off >= int64(len(f.data)) {
			return 0, io.EOF
		}
		n := copy(p, f.data[off:])
		if n < len(p) {
			return n, io.EOF
		}
		return n, nil
	}
	if off >= f.size || len(p) == 0 {
		return 0, io.EOF
	}
	end := min(off+int64(len(p)), f.size)
	ctx, cancel := f.fs.context()
	defer cancel()
	body, err := f.get(ctx, op, &s3.GetObjectInput{
		Range: aws.String(fmt.Sprintf("bytes=%d-%d", off, end-1)),
	})
	if err != nil {
		return 0, err
	}
	defer body.Close()
	n, err := io.ReadFull(body, p[:end-off])
	switch {
	case err == io.ErrUnexpectedEOF || err == io.EOF:
		return n, io.EOF
	case err != nil:
		return n, fserr.Backend(op, f.name, err)
	case n < len(p):
		return n, io.EOF
	}
	return n, nil
}

// modify loads the content and applies fn to it.
func (f *file) modify(op string, fn func() (int, error)) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.writable {
		return 0, fserr.Permission(op, f.name)
	}
	ctx, cancel := f.fs.context()
	defer cancel()
	if err := f.load(ctx, op); err != nil {
		return 0, err
	}
	n, err := fn()
	f.size = int64(len(f.data))
	f.modTime = time.Now()
	f.dirty = true
	return n, err
}

func (f *file) resize(size int64) {
	if size <= int64(len(f.data)) {
		f.data = f.data[:size]
		return
	}
	f.data = append(f.data, make([]byte, size-int64(len(f.data)))...)
}

func (f *file) WriteAt(p []byte, off int64) (int, error) {
	return f.modify("write", func() (int, error) {
		if end := off + int64(len(p)); end > int64(len(f.data)) {
			f.resize(end)
		}
		return copy(f.data[off:], p), nil
	})
}

func (f *file) Append(p []byte) (int, error) {
	return f.modify("append", func() (int, error) {
		f.data = append(f.data, p...)
		return len(p), nil
	})
}

func (f *file) ConstrainedWriteAt(p []byte, off int64) (int, error) {
	return f.modify("write", func() (int, error) {
		if off >= int64(len(f.data)) {
			return 0, nil
		}
		return copy(f.data[off:], p), nil
	})
}

func (f *file) Truncate(size int64) error {
	_, err := f.modify("truncate", func() (int, error) {
		f.resize(size)
		return 0, nil
	})
	return err
}

// flush uploads pending modifications. f.mu is held.
func (f *file) flush(ctx context.Context) error {
	if !f.dirty || f.closed || f.removed {
		return nil
	}
	if err := f.fs.put(ctx, "sync", f.name, f.key, f.data); err != nil {
		return err
	}
	f.dirty = false
	return nil
}

func (f *file) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ctx, cancel := f.fs.context()
	defer cancel()
	return f.flush(ctx)
}

func (f *file) Close() error {
	err := func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		ctx, cancel := f.fs.context()
		defer cancel()
		err := f.flush(ctx)
		f.closed = true
		f.data = nil
		return err
	}()
	f.fs.release(f)
	return err
}
