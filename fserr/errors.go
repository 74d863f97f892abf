// Package fserr holds the error taxonomy of the bridge and
// translates errors into the driver's status vocabulary.
//
// Errors raised by the bridge itself are PathError (bad
// names), HandleError (unknown or stale handle ids) and
// StateError (an operation that the handle's lifecycle
// state forbids, which indicates a bridge bug). Failures of
// the backend are classified by Kind, either explicitly
// through New or implicitly from the errno and io/fs
// sentinels they carry.
package fserr

import (
	stderrors "errors"
	"fmt"
	"io/fs"

	"github.com/pkg/errors"
)

// Kind classifies a failure independently of where it
// was raised.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindNotFound
	KindExists
	KindPermission
	KindNotEmpty
	KindIsDir
	KindNotDir
	KindNoSpace
	KindUnsupported
	KindInvalid
	KindBusy
)

var kindNames = [...]string{
	KindUnknown:     "unknown",
	KindNotFound:    "not found",
	KindExists:      "already exists",
	KindPermission:  "permission denied",
	KindNotEmpty:    "directory not empty",
	KindIsDir:       "is a directory",
	KindNotDir:      "not a directory",
	KindNoSpace:     "no space left",
	KindUnsupported: "unsupported",
	KindInvalid:     "invalid argument",
	KindBusy:        "resource busy",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Error is a classified failure of an operation on a path.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Path == "" {
		return e.Op + ": " + msg
	}
	return e.Op + " " + e.Path + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, fs.ErrNotExist) and friends hold
// for classified errors, so backends may use either style.
func (e *Error) Is(target error) bool {
	switch target {
	case fs.ErrNotExist:
		return e.Kind == KindNotFound
	case fs.ErrExist:
		return e.Kind == KindExists
	case fs.ErrPermission:
		return e.Kind == KindPermission
	case stderrors.ErrUnsupported:
		return e.Kind == KindUnsupported
	case fs.ErrInvalid:
		return e.Kind == KindInvalid
	}
	return false
}

// New creates a classified error.
func New(kind Kind, op, path string) error {
	return &Error{Kind: kind, Op: op, Path: path}
}

func NotFound(op, path string) error   { return New(KindNotFound, op, path) }
func Exists(op, path string) error     { return New(KindExists, op, path) }
func Permission(op, path string) error { return New(KindPermission, op, path) }
func NotEmpty(op, path string) error   { return New(KindNotEmpty, op, path) }
func IsDir(op, path string) error      { return New(KindIsDir, op, path) }
func NotDir(op, path string) error     { return New(KindNotDir, op, path) }
func NoSpace(op, path string) error    { return New(KindNoSpace, op, path) }
func Unsupported(op string) error      { return New(KindUnsupported, op, "") }
func Busy(op, path string) error       { return New(KindBusy, op, path) }

// PathError reports a name rejected before reaching the
// backend, because it is malformed or too long.
type PathError struct {
	Path   string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("invalid path %q: %s", e.Path, e.Reason)
}

// ErrInvalidHandle matches every HandleError.
var ErrInvalidHandle = errors.New("invalid handle")

// HandleError reports an unknown or released handle id.
type HandleError struct {
	Handle uint64
}

func (e *HandleError) Error() string {
	return fmt.Sprintf("invalid handle %d", e.Handle)
}

func (e *HandleError) Is(target error) bool {
	return target == ErrInvalidHandle
}

// StateError reports an operation forbidden by the handle
// lifecycle, such as a write after cleanup.
type StateError struct {
	Op     string
	Handle uint64
	State  string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s on handle %d in state %s", e.Op, e.Handle, e.State)
}

// BackendError wraps an opaque backend failure with the
// operation and the path that caused it.
type BackendError struct {
	Op   string
	Path string
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Backend wraps err as a BackendError, returning nil for a
// nil err.
func Backend(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Op: op, Path: path, Err: err}
}

// KindOf extracts the classification of err. Errors that
// cannot be classified return KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if kind, ok := kindFromErrno(err); ok {
		return kind
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return KindNotFound
	case errors.Is(err, fs.ErrExist):
		return KindExists
	case errors.Is(err, fs.ErrPermission):
		return KindPermission
	case errors.Is(err, stderrors.ErrUnsupported):
		return KindUnsupported
	case errors.Is(err, fs.ErrInvalid):
		return KindInvalid
	}
	return KindUnknown
}

// IsNotFound is a shorthand of KindOf(err) == KindNotFound.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}
