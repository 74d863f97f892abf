package badgerfs

// The store keeps three namespaces, all keyed by the clean
// slash path of the entry:
//
//	m:<path>              entry metadata (JSON)
//	d:<path>              file content
//	c:<dir>\x00<name>     child marker, for listing dir
//
// The NUL separator keeps the children of a directory apart
// from the children of its subdirectories under a prefix
// scan. The sequence under seq:index numbers the entries.
const (
	prefixMeta  = "m:"
	prefixData  = "d:"
	prefixChild = "c:"

	keyIndex = "seq:index"
)

func keyMeta(name string) []byte {
	return []byte(prefixMeta + name)
}

func keyData(name string) []byte {
	return []byte(prefixData + name)
}

func keyChild(dir, base string) []byte {
	return []byte(prefixChild + dir + "\x00" + base)
}

func keyChildPrefix(dir string) []byte {
	return []byte(prefixChild + dir + "\x00")
}

// subtree returns the prefix of the descendants of dir in
// the namespace, which for the root is every key of it.
func subtree(prefix, dir string) string {
	if dir == "/" {
		return prefix + "/"
	}
	return prefix + dir + "/"
}
