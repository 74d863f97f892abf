// Package dokan defines the callback contract between a
// user-mode filesystem driver of the Dokan family and the
// Go program serving it.
//
// The package itself is portable and holds no native code.
// It carries the vocabulary the driver speaks: NTSTATUS
// values, create dispositions, access masks, file attributes,
// volume flags and the fixed-layout information blocks. The
// `Operations` interface lists every callback the driver may
// issue, and the `Host` interface is where a native binding
// (or the FUSE adapter in package fusehost) plugs in to
// deliver those callbacks.
//
// The actual bridge from an abstract filesystem to the
// callbacks lives in package dokanfs.
package dokan
