// Package fusehost serves dokan.Operations through FUSE, so
// that a bridge can be mounted and exercised on hosts where
// the Dokan driver is not available.
//
// Every FUSE request is translated into the sequence of
// callbacks the Dokan driver would issue for the same system
// call: a CreateFile, the request itself, then Cleanup and
// CloseFile once the kernel releases the open. Names are
// handed over in the driver form, rooted at `\` with
// backslash separators.
package fusehost
