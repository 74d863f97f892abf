// Package s3fs stores a file system in an S3 bucket.
//
// A file "/a/b" is the object "<prefix>a/b". A directory is
// a zero length marker object "<prefix>a/", or merely the
// common prefix of the objects below it. Open files buffer
// their content and upload it again on Sync and Close, so
// writes of one handle become visible to others only then.
package s3fs

import (
	"context"
	"io/fs"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"

	"github.com/godokan/go-dokan/backend"
	"github.com/godokan/go-dokan/fserr"
)

const (
	filePerm = 0o666
	dirPerm  = 0o777
)

type option struct {
	prefix   string
	pageSize int32
	timeout  time.Duration
}

// Option configures a FileSystem.
type Option func(*option)

// WithPrefix stores the tree below a key prefix of the
// bucket instead of its top level.
func WithPrefix(prefix string) Option {
	return func(o *option) {
		o.prefix = prefix
	}
}

// WithPageSize limits the keys fetched per list request.
func WithPageSize(keys int32) Option {
	return func(o *option) {
		o.pageSize = keys
	}
}

// WithTimeout bounds each request to the store.
func WithTimeout(timeout time.Duration) Option {
	return func(o *option) {
		o.timeout = timeout
	}
}

// FileSystem is a backend.FileSystem over an S3 bucket.
type FileSystem struct {
	ctx      context.Context
	client   Client
	bucket   string
	prefix   string
	pageSize int32
	timeout  time.Duration

	mu   sync.Mutex
	open map[*file]struct{}
}

var _ backend.FileSystem = (*FileSystem)(nil)

// New checks that bucket is reachable and returns a file
// system stored in it. Requests derive from ctx.
func New(ctx context.Context, client Client, bucket string, opts ...Option) (*FileSystem, error) {
	option := &option{
		pageSize: 1000,
		timeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(option)
	}
	if bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	prefix := strings.Trim(option.prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	f := &FileSystem{
		ctx:      ctx,
		client:   client,
		bucket:   bucket,
		prefix:   prefix,
		pageSize: option.pageSize,
		timeout:  option.timeout,
		open:     make(map[*file]struct{}),
	}
	ctx, cancel := f.context()
	defer cancel()
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	}); err != nil {
		return nil, errors.Wrapf(err, "access bucket %q", bucket)
	}
	return f, nil
}

func (f *FileSystem) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(f.ctx, f.timeout)
}

// key returns the object key of a file.
func (f *FileSystem) key(name string) string {
	return f.prefix + strings.TrimPrefix(name, "/")
}

// dirKey returns the marker key of a directory, which is
// also the prefix of its children.
func (f *FileSystem) dirKey(name string) string {
	if name == "/" {
		return f.prefix
	}
	return f.key(name) + "/"
}

// isNotFound reports whether err is a missing object.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

func wrap(op, name string, err error) error {
	if isNotFound(err) {
		return fserr.NotFound(op, name)
	}
	return fserr.Backend(op, name, err)
}

func fileStat(name string, size int64, modTime time.Time) backend.Stat {
	return backend.Stat{
		Name:    name,
		Size:    size,
		Mode:    filePerm,
		ModTime: modTime,
	}
}

func dirStat(name string, modTime time.Time) backend.Stat {
	return backend.Stat{
		Name:    name,
		Mode:    fs.ModeDir | dirPerm,
		ModTime: modTime,
	}
}

func (f *FileSystem) stat(ctx context.Context, op, name string) (backend.Stat, error) {
	if name == "/" {
		return dirStat("/", time.Time{}), nil
	}
	_, base := backend.Split(name)
	head, err := f.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(f.key(name)),
	})
	if err == nil {
		return fileStat(base, aws.ToInt64(head.ContentLength), aws.ToTime(head.LastModified)), nil
	}
	if !isNotFound(err) {
		return backend.Stat{}, wrap(op, name, err)
	}
	head, err = f.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(f.dirKey(name)),
	})
	if err == nil {
		return dirStat(base, aws.ToTime(head.LastModified)), nil
	}
	if !isNotFound(err) {
		return backend.Stat{}, wrap(op, name, err)
	}
	// A directory without marker still has children.
	list, err := f.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(f.bucket),
		Prefix:  aws.String(f.dirKey(name)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return backend.Stat{}, wrap(op, name, err)
	}
	if len(list.Contents) == 0 {
		return backend.Stat{}, fserr.NotFound(op, name)
	}
	return dirStat(base, time.Time{}), nil
}

// checkParent verifies that the parent of name is a
// directory.
func (f *FileSystem) checkParent(ctx context.Context, op, name string) error {
	dir, _ := backend.Split(name)
	stat, err := f.stat(ctx, op, dir)
	if err != nil {
		return err
	}
	if !stat.IsDir() {
		return fserr.NotDir(op, dir)
	}
	return nil
}

func (f *FileSystem) put(ctx context.Context, op, name, key string, data []byte) error {
	_, err := f.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(f.bucket),
		Key:           aws.String(key),
		Body:          newBody(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	return wrap(op, name, err)
}

func (f *FileSystem) delete(ctx context.Context, op, name, key string) error {
	_, err := f.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	return wrap(op, name, err)
}

func (f *FileSystem) Open(name string, flag int) (backend.File, error) {
	const op = "open"
	ctx, cancel := f.context()
	defer cancel()
	stat, err := f.stat(ctx, op, name)
	switch {
	case err == nil && stat.IsDir():
		return nil, fserr.IsDir(op, name)
	case err == nil && flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0:
		return nil, fserr.Exists(op, name)
	case err == nil && flag&os.O_TRUNC != 0:
		if err := f.put(ctx, op, name, f.key(name), nil); err != nil {
			return nil, err
		}
		stat.Size = 0
		stat.ModTime = time.Now()
	case err == nil:
	case fserr.IsNotFound(err) && flag&os.O_CREATE != 0:
		if err := f.checkParent(ctx, op, name); err != nil {
			return nil, err
		}
		if err := f.put(ctx, op, name, f.key(name), nil); err != nil {
			return nil, err
		}
		_, base := backend.Split(name)
		stat = fileStat(base, 0, time.Now())
	default:
		return nil, err
	}
	file := &file{
		fs:       f,
		name:     name,
		key:      f.key(name),
		writable: flag&(os.O_WRONLY|os.O_RDWR) != 0,
		size:     stat.Size,
		modTime:  stat.ModTime,
	}
	f.mu.Lock()
	f.open[file] = struct{}{}
	f.mu.Unlock()
	return file, nil
}

func (f *FileSystem) Create(name string) (backend.File, error) {
	return f.Open(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC)
}

func (f *FileSystem) Mkdir(name string) error {
	const op = "mkdir"
	ctx, cancel := f.context()
	defer cancel()
	_, err := f.stat(ctx, op, name)
	if err == nil {
		return fserr.Exists(op, name)
	}
	if !fserr.IsNotFound(err) {
		return err
	}
	if err := f.checkParent(ctx, op, name); err != nil {
		return err
	}
	return f.put(ctx, op, name, f.dirKey(name), nil)
}

func (f *FileSystem) Stat(name string) (backend.Stat, error) {
	ctx, cancel := f.context()
	defer cancel()
	return f.stat(ctx, "stat", name)
}

func (f *FileSystem) Exists(name string) (bool, error) {
	return backend.StatExists(f, name)
}

func (f *FileSystem) List(name string) ([]backend.Stat, error) {
	const op = "list"
	ctx, cancel := f.context()
	defer cancel()
	stat, err := f.stat(ctx, op, name)
	if err != nil {
		return nil, err
	}
	if !stat.IsDir() {
		return nil, fserr.NotDir(op, name)
	}
	prefix := f.dirKey(name)
	paginator := s3.NewListObjectsV2Paginator(f.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(f.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
		MaxKeys:   aws.Int32(f.pageSize),
	})
	var result []backend.Stat
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrap(op, name, err)
		}
		for _, object := range page.Contents {
			key := aws.ToString(object.Key)
			if key == prefix {
				continue
			}
			result = append(result, fileStat(
				strings.TrimPrefix(key, prefix),
				aws.ToInt64(object.Size),
				aws.ToTime(object.LastModified),
			))
		}
		for _, common := range page.CommonPrefixes {
			base := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(common.Prefix), prefix), "/")
			if base == "" {
				continue
			}
			result = append(result, dirStat(base, time.Time{}))
		}
	}
	return result, nil
}

// keys returns every key below prefix.
func (f *FileSystem) keys(ctx context.Context, op, name, prefix string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(f.client, &s3.ListObjectsV2Input{
		Bucket:  aws.String(f.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(f.pageSize),
	})
	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrap(op, name, err)
		}
		for _, object := range page.Contents {
			keys = append(keys, aws.ToString(object.Key))
		}
	}
	return keys, nil
}

func (f *FileSystem) Remove(name string) error {
	const op = "remove"
	ctx, cancel := f.context()
	defer cancel()
	stat, err := f.stat(ctx, op, name)
	if err != nil {
		return err
	}
	if stat.IsDir() {
		return fserr.IsDir(op, name)
	}
	if err := f.delete(ctx, op, name, f.key(name)); err != nil {
		return err
	}
	// Open files must not bring the object back.
	for _, file := range f.affected(f.key(name), "") {
		file.mu.Lock()
		file.removed = true
		file.mu.Unlock()
	}
	return nil
}

func (f *FileSystem) RemoveDir(name string) error {
	const op = "rmdir"
	if name == "/" {
		return fserr.Permission(op, name)
	}
	ctx, cancel := f.context()
	defer cancel()
	stat, err := f.stat(ctx, op, name)
	if err != nil {
		return err
	}
	if !stat.IsDir() {
		return fserr.NotDir(op, name)
	}
	list, err := f.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(f.bucket),
		Prefix:  aws.String(f.dirKey(name)),
		MaxKeys: aws.Int32(2),
	})
	if err != nil {
		return wrap(op, name, err)
	}
	for _, object := range list.Contents {
		if aws.ToString(object.Key) != f.dirKey(name) {
			return fserr.NotEmpty(op, name)
		}
	}
	return f.delete(ctx, op, name, f.dirKey(name))
}

// copySource returns the escaped "bucket/key" CopyObject
// expects.
func copySource(bucket, key string) string {
	segments := strings.Split(bucket+"/"+key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

func (f *FileSystem) move(ctx context.Context, op, name, from, to string) error {
	if _, err := f.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(f.bucket),
		Key:        aws.String(to),
		CopySource: aws.String(copySource(f.bucket, from)),
	}); err != nil {
		return wrap(op, name, err)
	}
	return f.delete(ctx, op, name, from)
}

// affected returns the open files stored at key or below
// the directory prefix.
func (f *FileSystem) affected(key, prefix string) []*file {
	f.mu.Lock()
	defer f.mu.Unlock()
	var files []*file
	for file := range f.open {
		if file.key == key || (prefix != "" && strings.HasPrefix(file.key, prefix)) {
			files = append(files, file)
		}
	}
	return files
}

// Rename copies the objects and deletes the originals. It
// is not atomic: a failure midway leaves both trees
// partially populated. Open files follow the move.
func (f *FileSystem) Rename(oldName, newName string) error {
	const op = "rename"
	if oldName == "/" || newName == "/" {
		return fserr.Permission(op, oldName)
	}
	ctx, cancel := f.context()
	defer cancel()
	source, err := f.stat(ctx, op, oldName)
	if err != nil {
		return err
	}
	if source.IsDir() && backend.IsAncestor(oldName, newName) {
		return fserr.New(fserr.KindInvalid, op, newName)
	}
	if err := f.checkParent(ctx, op, newName); err != nil {
		return err
	}
	target, err := f.stat(ctx, op, newName)
	switch {
	case err == nil && target.IsDir():
		return fserr.IsDir(op, newName)
	case err == nil && source.IsDir():
		return fserr.NotDir(op, newName)
	case err != nil && !fserr.IsNotFound(err):
		return err
	}

	oldPrefix := ""
	if source.IsDir() {
		oldPrefix = f.dirKey(oldName)
	}
	files := f.affected(f.key(oldName), oldPrefix)
	for _, file := range files {
		file.mu.Lock()
		defer file.mu.Unlock()
		if err := file.flush(ctx); err != nil {
			return err
		}
	}

	if !source.IsDir() {
		if err := f.move(ctx, op, oldName, f.key(oldName), f.key(newName)); err != nil {
			return err
		}
	} else {
		keys, err := f.keys(ctx, op, oldName, oldPrefix)
		if err != nil {
			return err
		}
		newPrefix := f.dirKey(newName)
		for _, key := range keys {
			if err := f.move(ctx, op, oldName, key, newPrefix+strings.TrimPrefix(key, oldPrefix)); err != nil {
				return err
			}
		}
		if len(keys) == 0 {
			// An implicit directory vanished meanwhile.
			return fserr.NotFound(op, oldName)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, file := range files {
		if file.key == f.key(oldName) {
			file.name, file.key = newName, f.key(newName)
			continue
		}
		rest := strings.TrimPrefix(file.key, oldPrefix)
		file.name = path.Join(newName, rest)
		file.key = f.dirKey(newName) + rest
	}
	return nil
}

func (f *FileSystem) release(file *file) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.open, file)
}
