package pathtree

import (
	"math"
	"path"
	"runtime"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/godokan/go-dokan/pathkey"
)

// ErrConflict is returned when a byte range is already
// locked by another owner.
var ErrConflict = errors.New("range locked by another owner")

// Range is a locked byte range [Start, End) and its owner.
type Range struct {
	Owner uint64
	Start uint64
	End   uint64
}

func (r Range) overlaps(start, end uint64) bool {
	return r.Start < end && start < r.End
}

// node is a single entry of the tree.
//
// Every operation of the node must hold the mutex of the
// tree, except those on ranges, which hold rangeMtx only.
// A node is kept alive by the references of its handles
// and of its children.
type node struct {
	rc       uint64
	name     string
	display  string
	parent   *node
	children map[string]*node
	exile    bool

	deleters int

	rangeMtx sync.Mutex
	ranges   []Range
}

var childMapPool = &sync.Pool{
	New: func() any {
		return make(map[string]*node)
	},
}

// Tree is the registry. The zero value is not usable, call
// New instead.
type Tree struct {
	mtx  sync.Mutex
	root *node
}

// New creates an empty tree.
func New() *Tree {
	return &Tree{root: &node{}}
}

func components(p string) []string {
	p = path.Clean("/" + p)
	if p == "/" {
		return nil
	}
	return strings.Split(p[1:], "/")
}

func (n *node) retain() {
	if n.rc == math.MaxUint64 {
		panic("too many references")
	}
	n.rc++
}

// free drops one reference and prunes the node from its
// parent once nothing holds it.
func (n *node) free() {
	if n == nil {
		return
	}
	n.rc--
	if n.rc == 0 && n.parent != nil {
		n.detach()
	}
}

// detach unlinks the node from its parent, releasing the
// reference the link held on the parent.
func (n *node) detach() {
	parent := n.parent
	delete(parent.children, n.name)
	if len(parent.children) == 0 {
		childMapPool.Put(parent.children)
		parent.children = nil
	}
	n.parent = nil
	parent.free()
}

// attach links the node as the child name of parent.
func (n *node) attach(parent *node, name, display string) {
	if parent.children == nil {
		parent.children = childMapPool.Get().(map[string]*node)
	}
	parent.children[name] = n
	parent.retain()
	n.parent = parent
	n.name = name
	n.display = display
	n.exile = false
}

// allocRetain gets or creates the node of the components,
// and retains it.
func (t *Tree) allocRetain(folds, names []string) *node {
	n := t.root
	for i, name := range folds {
		child, ok := n.children[name]
		if !ok {
			display := name
			if i < len(names) {
				display = names[i]
			}
			child = &node{}
			child.attach(n, name, display)
		}
		n = child
	}
	n.retain()
	return n
}

// lookup finds an existing node without creating it.
func (t *Tree) lookup(folds []string) *node {
	n := t.root
	for _, name := range folds {
		child, ok := n.children[name]
		if !ok {
			return nil
		}
		n = child
	}
	return n
}

func (n *node) isExile() bool {
	if n == nil {
		return false
	}
	if n.exile {
		return true
	}
	if n.parent == nil {
		return false
	}
	if n.parent.isExile() {
		n.exile = true
		return true
	}
	return false
}

func (n *node) hasAncestor(a *node) bool {
	for p := n; p != nil; p = p.parent {
		if p == a {
			return true
		}
	}
	return false
}

func (n *node) slashPath(fold bool) string {
	if n.parent == nil {
		return "/"
	}
	name := n.display
	if fold {
		name = n.name
	}
	return path.Join(n.parent.slashPath(fold), name)
}

// pendingDelete checks the node and all its ancestors.
func (n *node) pendingDelete() bool {
	for p := n; p != nil; p = p.parent {
		if p.deleters > 0 {
			return true
		}
	}
	return false
}

// Acquire retains the node of key, creating it when the
// path was not open yet.
func (t *Tree) Acquire(key pathkey.Key) *Node {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	n := t.allocRetain(components(key.Fold), components(key.Path))
	return t.createNode(n)
}

// PendingDelete reports whether the path or one of its
// ancestors is marked for deletion by an open handle.
func (t *Tree) PendingDelete(key pathkey.Key) bool {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	n := t.root
	if n.deleters > 0 {
		return true
	}
	for _, name := range components(key.Fold) {
		child, ok := n.children[name]
		if !ok {
			return false
		}
		if child.deleters > 0 {
			return true
		}
		n = child
	}
	return false
}

// Move relocates the node of from, if any, to the path of
// to, so that handles open on from follow the entry. A node
// already registered at to is exiled, the entry it named
// having been replaced.
func (t *Tree) Move(from, to pathkey.Key) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	src := t.lookup(components(from.Fold))
	if src == nil || src.parent == nil {
		return
	}
	toFolds, toNames := components(to.Fold), components(to.Path)
	if len(toFolds) == 0 {
		return
	}
	dir := t.allocRetain(toFolds[:len(toFolds)-1], toNames[:len(toNames)-1])
	defer dir.free()
	if dir.hasAncestor(src) {
		// Moving an entry below itself.
		return
	}
	name := toFolds[len(toFolds)-1]
	if dst, ok := dir.children[name]; ok {
		if dst == src {
			// Case-only rename.
			src.display = toNames[len(toNames)-1]
			return
		}
		dst.retain()
		dst.detach()
		dst.exile = true
		dst.free()
	}
	src.retain()
	src.detach()
	src.attach(dir, name, toNames[len(toNames)-1])
	src.free()
}

// nodeRef is the shared part of the exported handles.
type nodeRef struct {
	tree *Tree
	node *node
}

// Node is one retained reference to a path. It must be
// released with Free.
type Node struct {
	nodeRef
	once sync.Once
}

// createNode wraps a reference the caller already holds.
func (t *Tree) createNode(n *node) *Node {
	result := &Node{
		nodeRef: nodeRef{tree: t, node: n},
	}
	runtime.SetFinalizer(result, func(n *Node) {
		n.Free()
	})
	return result
}

// Free drops the reference. Freeing twice is a no-op.
func (n *Node) Free() {
	runtime.SetFinalizer(n, nil)
	n.once.Do(func() {
		n.tree.mtx.Lock()
		defer n.tree.mtx.Unlock()
		n.node.free()
	})
}

// Retain returns a new reference to the same node, which
// must be freed separately.
func (n *nodeRef) Retain() *Node {
	n.tree.mtx.Lock()
	defer n.tree.mtx.Unlock()
	n.node.retain()
	return n.tree.createNode(n.node)
}

// Path returns the current case-preserving path of the
// node, or "" when the entry was deleted.
func (n *nodeRef) Path() string {
	n.tree.mtx.Lock()
	defer n.tree.mtx.Unlock()
	if n.node.isExile() {
		return ""
	}
	return n.node.slashPath(false)
}

// Fold returns the current folded path, or "" when the
// entry was deleted.
func (n *nodeRef) Fold() string {
	n.tree.mtx.Lock()
	defer n.tree.mtx.Unlock()
	if n.node.isExile() {
		return ""
	}
	return n.node.slashPath(true)
}

// IsExile reports whether the entry was deleted or replaced.
func (n *nodeRef) IsExile() bool {
	n.tree.mtx.Lock()
	defer n.tree.mtx.Unlock()
	return n.node.isExile()
}

// CurrentRefs returns the reference count of the node.
func (n *nodeRef) CurrentRefs() uint64 {
	n.tree.mtx.Lock()
	defer n.tree.mtx.Unlock()
	return n.node.rc
}

// Same reports whether both references name one node.
func (n *nodeRef) Same(other *Node) bool {
	return other != nil && n.node == other.node
}

// MarkDelete adds a pending-delete mark. Every mark must be
// balanced by UnmarkDelete or Exile.
func (n *nodeRef) MarkDelete() {
	n.tree.mtx.Lock()
	defer n.tree.mtx.Unlock()
	n.node.deleters++
}

// UnmarkDelete removes a pending-delete mark.
func (n *nodeRef) UnmarkDelete() {
	n.tree.mtx.Lock()
	defer n.tree.mtx.Unlock()
	if n.node.deleters <= 0 {
		if n.node.isExile() {
			// Exile already dropped the marks.
			return
		}
		panic("unbalanced delete mark")
	}
	n.node.deleters--
}

// PendingDelete reports whether the node or an ancestor is
// marked for deletion.
func (n *nodeRef) PendingDelete() bool {
	n.tree.mtx.Lock()
	defer n.tree.mtx.Unlock()
	return n.node.pendingDelete()
}

// Exile detaches the node from the tree after its entry was
// removed. The delete marks are dropped, handles still open
// on the node keep their locks until they are closed.
func (n *nodeRef) Exile() {
	n.tree.mtx.Lock()
	defer n.tree.mtx.Unlock()
	n.node.deleters = 0
	if n.node.parent == nil || n.node.exile {
		return
	}
	n.node.retain()
	n.node.detach()
	n.node.exile = true
	n.node.free()
}

func (n *node) conflict(owner, start, end uint64) error {
	for _, r := range n.ranges {
		if r.Owner != owner && r.overlaps(start, end) {
			return errors.Wrapf(ErrConflict,
				"range [%d, %d) held by %d", r.Start, r.End, r.Owner)
		}
	}
	return nil
}

func rangeEnd(start, length uint64) uint64 {
	if length > math.MaxUint64-start {
		return math.MaxUint64
	}
	return start + length
}

// Lock records the range for owner. A range that overlaps
// one held by another owner fails with ErrConflict. Ranges
// of length zero never conflict and are not recorded.
func (n *nodeRef) Lock(owner, start, length uint64) error {
	if length == 0 {
		return nil
	}
	end := rangeEnd(start, length)
	n.node.rangeMtx.Lock()
	defer n.node.rangeMtx.Unlock()
	if err := n.node.conflict(owner, start, end); err != nil {
		return err
	}
	n.node.ranges = append(n.node.ranges, Range{
		Owner: owner, Start: start, End: end,
	})
	return nil
}

// Check fails with ErrConflict when the range overlaps one
// held by another owner, without recording anything.
func (n *nodeRef) Check(owner, start, length uint64) error {
	if length == 0 {
		return nil
	}
	end := rangeEnd(start, length)
	n.node.rangeMtx.Lock()
	defer n.node.rangeMtx.Unlock()
	return n.node.conflict(owner, start, end)
}

// Unlock removes the range previously locked by owner with
// the same bounds. Unlocking a range that is not held is a
// no-op.
func (n *nodeRef) Unlock(owner, start, length uint64) bool {
	end := rangeEnd(start, length)
	n.node.rangeMtx.Lock()
	defer n.node.rangeMtx.Unlock()
	for i, r := range n.node.ranges {
		if r.Owner == owner && r.Start == start && r.End == end {
			n.node.ranges = append(n.node.ranges[:i], n.node.ranges[i+1:]...)
			return true
		}
	}
	return false
}

// UnlockAll drops every range of owner.
func (n *nodeRef) UnlockAll(owner uint64) {
	n.node.rangeMtx.Lock()
	defer n.node.rangeMtx.Unlock()
	kept := n.node.ranges[:0]
	for _, r := range n.node.ranges {
		if r.Owner != owner {
			kept = append(kept, r)
		}
	}
	for i := len(kept); i < len(n.node.ranges); i++ {
		n.node.ranges[i] = Range{}
	}
	n.node.ranges = kept
}

// Ranges returns a copy of the ranges held on the node.
func (n *nodeRef) Ranges() []Range {
	n.node.rangeMtx.Lock()
	defer n.node.rangeMtx.Unlock()
	return append([]Range(nil), n.node.ranges...)
}
