// Package pathkey resolves the paths issued by the driver
// into the canonical keys used to address the backend.
//
// The driver speaks backslash separated paths, possibly
// with a volume prefix. A resolved Key always is a clean
// slash path anchored at "/", and two driver paths that
// differ only in separator style (or in case, when the
// resolver is case-insensitive) resolve to equal Fold keys.
package pathkey

import (
	"path"
	"strings"
	"unicode/utf8"

	"github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/fserr"
)

// Key is a resolved path.
type Key struct {
	// Path is the cleaned slash path in the case the caller
	// supplied. It is the name passed to the backend.
	Path string

	// Fold is the identity of the path. It equals Path for
	// case-sensitive resolvers, and is case-folded
	// otherwise.
	Fold string
}

// Root is the key of the volume root.
var Root = Key{Path: "/", Fold: "/"}

// IsRoot reports whether the key addresses the volume root.
func (k Key) IsRoot() bool {
	return k.Path == "/"
}

// Base returns the last component, or "/" for the root.
func (k Key) Base() string {
	return path.Base(k.Path)
}

func (k Key) String() string {
	return k.Path
}

type option struct {
	caseInsensitive bool
	maxComponent    int
	safety          bool
	allowAutorun    bool
}

// Option customizes a Resolver.
type Option func(*option)

// WithCaseInsensitive makes names that differ only in case
// resolve to the same key. The backend must then accept
// lookups in any case.
func WithCaseInsensitive(value bool) Option {
	return func(o *option) {
		o.caseInsensitive = value
	}
}

// WithMaxComponentLength overrides the limit of a single
// name component, counted in characters.
func WithMaxComponentLength(value int) Option {
	return func(o *option) {
		o.maxComponent = value
	}
}

// WithSafety enables the Win32 safety name mapping. See
// EncodeName and DecodeName.
func WithSafety(value, allowAutorun bool) Option {
	return func(o *option) {
		o.safety = value
		o.allowAutorun = allowAutorun
	}
}

// Resolver normalizes and validates driver paths. It holds
// no mutable state and is safe for concurrent use.
type Resolver struct {
	option
}

// NewResolver creates a case-sensitive resolver limited to
// dokan.MaxComponentLength, unless overridden.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		option: option{
			maxComponent: dokan.MaxComponentLength,
		},
	}
	for _, opt := range opts {
		opt(&r.option)
	}
	if r.maxComponent <= 0 {
		r.maxComponent = dokan.MaxComponentLength
	}
	return r
}

// CaseSensitive reports whether the resolver distinguishes
// names by case.
func (r *Resolver) CaseSensitive() bool {
	return !r.caseInsensitive
}

// MaxComponentLength returns the longest accepted name.
func (r *Resolver) MaxComponentLength() int {
	return r.maxComponent
}

// stripVolume drops a `X:` drive prefix or a `\\server\share`
// UNC prefix.
func stripVolume(p string) string {
	if len(p) >= 2 && p[1] == ':' {
		c := p[0] | 0x20
		if c >= 'a' && c <= 'z' {
			return p[2:]
		}
	}
	if strings.HasPrefix(p, "//") {
		rest := p[2:]
		parts := strings.SplitN(rest, "/", 3)
		if len(parts) == 3 {
			return "/" + parts[2]
		}
		return "/"
	}
	return p
}

// checkName validates a single component.
func (r *Resolver) checkName(raw, name string) error {
	if utf8.RuneCountInString(name) > r.maxComponent {
		return &fserr.PathError{Path: raw, Reason: "name component too long"}
	}
	if !utf8.ValidString(name) {
		return &fserr.PathError{Path: raw, Reason: "invalid encoding"}
	}
	for _, c := range name {
		if c < 0x20 {
			return &fserr.PathError{Path: raw, Reason: "control character in name"}
		}
		switch c {
		case '<', '>', '"', '|', '?', '*':
			return &fserr.PathError{Path: raw, Reason: "reserved character in name"}
		case ':':
			if !r.safety {
				return &fserr.PathError{Path: raw, Reason: "stream names are not supported"}
			}
		}
	}
	return nil
}

// Resolve converts a raw driver path into a Key.
func (r *Resolver) Resolve(raw string) (Key, error) {
	if strings.IndexByte(raw, 0) >= 0 {
		return Key{}, &fserr.PathError{Path: raw, Reason: "control character in name"}
	}
	p := strings.ReplaceAll(raw, `\`, "/")
	p = stripVolume(p)
	p = path.Clean("/" + p)
	if p != "/" {
		for _, name := range strings.Split(p[1:], "/") {
			if err := r.checkName(raw, name); err != nil {
				return Key{}, err
			}
		}
	}
	if r.safety {
		p = r.encodePath(p)
	}
	return r.keyOf(p), nil
}

// Join resolves name as a child of dir. The name must be a
// single component.
func (r *Resolver) Join(dir Key, name string) (Key, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) {
		return Key{}, &fserr.PathError{Path: name, Reason: "not a single name"}
	}
	if err := r.checkName(name, name); err != nil {
		return Key{}, err
	}
	if r.safety {
		name = r.encodeName(name, dir.IsRoot())
	}
	return r.keyOf(path.Join(dir.Path, name)), nil
}

// KeyOf builds the key of a path that is already clean,
// such as one returned by the backend.
func (r *Resolver) KeyOf(p string) Key {
	return r.keyOf(path.Clean("/" + p))
}

func (r *Resolver) keyOf(p string) Key {
	return Key{Path: p, Fold: r.Fold(p)}
}

// Fold returns the identity form of a name or path.
func (r *Resolver) Fold(p string) string {
	if !r.caseInsensitive {
		return p
	}
	return foldCase(p)
}

// Equal compares two names under the resolver's case policy.
func (r *Resolver) Equal(a, b string) bool {
	if !r.caseInsensitive {
		return a == b
	}
	return strings.EqualFold(a, b)
}

// DecodeName converts a name returned by the backend into
// the name shown to the driver.
func (r *Resolver) DecodeName(name string, inRoot bool) string {
	if !r.safety {
		return name
	}
	return r.decodeName(name, inRoot)
}

func foldCase(s string) string {
	// strings.ToUpper is not a simple fold for every
	// script, but it is what NTFS upcase tables do.
	return strings.ToUpper(s)
}
