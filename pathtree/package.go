// Package pathtree is the registry of the paths held open
// by the dispatcher.
//
// Every open handle retains the node of its path. The node
// outlives renames, since a rename relocates it under the
// new parent, and deletions, since a committed delete moves
// it to the exile pseudo root. State that belongs to the
// path rather than to one handle lives on the node: the
// pending-delete marks and the byte-range locks.
//
// The tree mirrors the paths in their folded form, so that
// case-insensitive volumes share a node for every spelling
// of a name.
package pathtree
