package pathkey

import (
	"strings"
)

const (
	colonEscape   = "__colon__"
	autorunPrefix = "autorun."
	autorunHidden = "_autorun."
)

// encodeName maps a driver-visible name to the backend name.
//
// The backend never receives a colon, and a driver-visible
// `_autorun.*` in the volume root addresses the backend's
// `autorun.*`, so the real autorun file is never exposed
// under the name Windows looks for.
func (r *Resolver) encodeName(name string, inRoot bool) string {
	name = strings.ReplaceAll(name, ":", colonEscape)
	if inRoot && !r.allowAutorun &&
		strings.HasPrefix(strings.ToLower(name), autorunHidden) {
		name = name[1:]
	}
	return name
}

// decodeName is the reverse of encodeName.
func (r *Resolver) decodeName(name string, inRoot bool) string {
	name = strings.ReplaceAll(name, colonEscape, ":")
	if inRoot && !r.allowAutorun &&
		strings.HasPrefix(strings.ToLower(name), autorunPrefix) {
		name = "_" + name
	}
	return name
}

func (r *Resolver) encodePath(p string) string {
	if p == "/" {
		return p
	}
	parts := strings.Split(p[1:], "/")
	for i, part := range parts {
		parts[i] = r.encodeName(part, i == 0)
	}
	return "/" + strings.Join(parts, "/")
}

// EncodeName exposes the driver to backend name mapping of
// a safety resolver. Other resolvers return name unchanged.
func (r *Resolver) EncodeName(name string, inRoot bool) string {
	if !r.safety {
		return name
	}
	return r.encodeName(name, inRoot)
}
