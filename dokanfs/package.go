// Package dokanfs serves a backend.FileSystem through the
// driver callbacks of dokan.Operations.
//
// Every open issued by the driver gets its own handle,
// carrying a freshly opened backend file, and the handle id
// is what the driver echoes back in FileInfo.Context. Paths
// open through any handle are registered in a pathtree, so
// that a deletion pending on one handle is seen by every
// other caller, and byte-range locks taken on one handle are
// arbitrated against every other handle of the same file.
//
// Deletion is two phased, as the driver expects: DeleteFile
// and DeleteDirectory only check and mark, and the entry is
// removed from the backend when the marking handle is
// cleaned up.
package dokanfs
