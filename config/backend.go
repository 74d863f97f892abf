package config

import (
	"context"
	"io/fs"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/godokan/go-dokan/backend"
	"github.com/godokan/go-dokan/badgerfs"
	"github.com/godokan/go-dokan/log"
	"github.com/godokan/go-dokan/memfs"
	"github.com/godokan/go-dokan/osfs"
	"github.com/godokan/go-dokan/s3fs"
)

// MemoryOptions is the "backend.memory" section.
type MemoryOptions struct {
	CaseInsensitive bool   `mapstructure:"case_insensitive"`
	Capacity        uint64 `mapstructure:"capacity_bytes"`
}

// OSOptions is the "backend.os" section.
type OSOptions struct {
	Dir string `mapstructure:"dir" validate:"required"`

	// CaseInsensitive defaults to the convention of the
	// host.
	CaseInsensitive *bool `mapstructure:"case_insensitive"`

	FilePerm uint32 `mapstructure:"file_perm" validate:"lte=511"`
	DirPerm  uint32 `mapstructure:"dir_perm" validate:"lte=511"`
}

// BadgerOptions is the "backend.badger" section.
type BadgerOptions struct {
	Dir        string `mapstructure:"dir" validate:"required_without=InMemory"`
	InMemory   bool   `mapstructure:"in_memory"`
	SyncWrites bool   `mapstructure:"sync_writes"`
	Capacity   uint64 `mapstructure:"capacity_bytes"`
}

// S3Options is the "backend.s3" section.
type S3Options struct {
	s3fs.ClientConfig `mapstructure:",squash"`

	Bucket    string        `mapstructure:"bucket" validate:"required"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	PageSize  int32         `mapstructure:"page_size" validate:"gte=0,lte=1000"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// decodeOptions decodes a backend section into out and
// validates it. Unknown keys are rejected.
func decodeOptions(section string, input map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return errors.Wrapf(err, "backend.%s", section)
	}
	if err := decoder.Decode(input); err != nil {
		return errors.Wrapf(err, "backend.%s", section)
	}
	if err := validate.Struct(out); err != nil {
		return errors.Wrapf(formatValidationError(err), "backend.%s", section)
	}
	return nil
}

// decodeBackend decodes the section of the selected type
// into one of the option structs.
func decodeBackend(cfg BackendConfig) (any, error) {
	switch cfg.Type {
	case "memory":
		var options MemoryOptions
		return &options, decodeOptions(cfg.Type, cfg.Memory, &options)
	case "os":
		var options OSOptions
		return &options, decodeOptions(cfg.Type, cfg.OS, &options)
	case "badger":
		var options BadgerOptions
		return &options, decodeOptions(cfg.Type, cfg.Badger, &options)
	case "s3":
		var options S3Options
		return &options, decodeOptions(cfg.Type, cfg.S3, &options)
	}
	return nil, errors.Errorf("unknown backend type %q", cfg.Type)
}

// Backend is an opened backend and the function releasing
// it. FileSystem is kept unwrapped so that its optional
// capabilities stay visible.
type Backend struct {
	FileSystem backend.FileSystem
	close      func() error
}

// Close releases the backend.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// OpenBackend creates the backend the configuration
// selects. Messages of the storage engines go to l.
func OpenBackend(ctx context.Context, cfg BackendConfig, l log.Log) (*Backend, error) {
	decoded, err := decodeBackend(cfg)
	if err != nil {
		return nil, err
	}
	switch options := decoded.(type) {
	case *MemoryOptions:
		var opts []memfs.Option
		opts = append(opts, memfs.WithCaseInsensitive(options.CaseInsensitive))
		if options.Capacity > 0 {
			opts = append(opts, memfs.WithCapacity(options.Capacity))
		}
		return &Backend{FileSystem: memfs.New(opts...)}, nil

	case *OSOptions:
		var opts []osfs.Option
		if options.CaseInsensitive != nil {
			opts = append(opts, osfs.WithCaseInsensitive(*options.CaseInsensitive))
		}
		if options.FilePerm != 0 || options.DirPerm != 0 {
			filePerm, dirPerm := fs.FileMode(0o666), fs.FileMode(0o777)
			if options.FilePerm != 0 {
				filePerm = fs.FileMode(options.FilePerm)
			}
			if options.DirPerm != 0 {
				dirPerm = fs.FileMode(options.DirPerm)
			}
			opts = append(opts, osfs.WithPerm(filePerm, dirPerm))
		}
		store, err := osfs.New(options.Dir, opts...)
		if err != nil {
			return nil, errors.Wrap(err, "open os backend")
		}
		return &Backend{FileSystem: store, close: store.Close}, nil

	case *BadgerOptions:
		opts := []badgerfs.Option{
			badgerfs.WithSyncWrites(options.SyncWrites),
			badgerfs.WithLog(l),
		}
		if options.InMemory {
			opts = append(opts, badgerfs.WithInMemory())
		}
		if options.Capacity > 0 {
			opts = append(opts, badgerfs.WithCapacity(options.Capacity))
		}
		store, err := badgerfs.Open(options.Dir, opts...)
		if err != nil {
			return nil, errors.Wrap(err, "open badger backend")
		}
		return &Backend{FileSystem: store, close: store.Close}, nil

	case *S3Options:
		client, err := s3fs.NewClient(ctx, options.ClientConfig)
		if err != nil {
			return nil, errors.Wrap(err, "create s3 client")
		}
		opts := []s3fs.Option{s3fs.WithPrefix(options.KeyPrefix)}
		if options.PageSize > 0 {
			opts = append(opts, s3fs.WithPageSize(options.PageSize))
		}
		if options.Timeout > 0 {
			opts = append(opts, s3fs.WithTimeout(options.Timeout))
		}
		store, err := s3fs.New(ctx, client, options.Bucket, opts...)
		if err != nil {
			return nil, errors.Wrap(err, "open s3 backend")
		}
		return &Backend{FileSystem: store}, nil
	}
	return nil, errors.Errorf("unknown backend type %q", cfg.Type)
}
