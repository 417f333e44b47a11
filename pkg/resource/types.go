package resource

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Type classifies a resource as a file or a directory.
type Type int

const (
	// TypeFile is a leaf resource carrying bytes.
	TypeFile Type = iota
	// TypeDirectory is a container of other resources.
	TypeDirectory
)

func (t Type) String() string {
	switch t {
	case TypeFile:
		return "FILE"
	case TypeDirectory:
		return "DIRECTORY"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Reserved attribute keys that take part in identity hashing.
const (
	// AttrOriginalPath overrides the path component of Hash.
	AttrOriginalPath = "original-path"
	// AttrExternalHash carries a fingerprint computed outside this process.
	AttrExternalHash = "external-hash"
)

// Credential is an opaque authentication descriptor attached to a resource.
//
// Backends inspect the concrete type they understand (see CredentialAware)
// and ignore the rest.
type Credential interface {
	// Kind names the credential family, e.g. "password" or "access-key".
	Kind() string
}

// UserPassword is a username/password credential.
type UserPassword struct {
	User     string
	Password string
}

func (UserPassword) Kind() string { return "password" }

// PrivateKey is an SSH-style key credential.
type PrivateKey struct {
	User       string
	PEM        []byte
	Passphrase string
}

func (PrivateKey) Kind() string { return "private-key" }

// AccessKey is an object-store access key pair.
type AccessKey struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

func (AccessKey) Kind() string { return "access-key" }

// Attributes is an insertion-ordered string map. Instances are never
// modified after construction; the with/without helpers return copies.
// A nil *Attributes is a valid empty set.
type Attributes struct {
	keys   []string
	values map[string]string
}

// NewAttributes builds an attribute set from alternating key/value pairs.
// A trailing key without a value is ignored.
func NewAttributes(kv ...string) *Attributes {
	var a *Attributes
	for i := 0; i+1 < len(kv); i += 2 {
		a = a.with(kv[i], kv[i+1])
	}
	return a
}

// Get returns the value stored under key.
func (a *Attributes) Get(key string) (string, bool) {
	if a == nil {
		return "", false
	}
	v, ok := a.values[key]
	return v, ok
}

// Len returns the number of attributes.
func (a *Attributes) Len() int {
	if a == nil {
		return 0
	}
	return len(a.keys)
}

// Keys returns the keys in insertion order.
func (a *Attributes) Keys() []string {
	if a == nil {
		return nil
	}
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

// Range calls fn for each pair in insertion order until fn returns false.
func (a *Attributes) Range(fn func(key, value string) bool) {
	if a == nil {
		return
	}
	for _, k := range a.keys {
		if !fn(k, a.values[k]) {
			return
		}
	}
}

func (a *Attributes) clone(extra int) *Attributes {
	out := &Attributes{
		keys:   make([]string, 0, a.Len()+extra),
		values: make(map[string]string, a.Len()+extra),
	}
	if a != nil {
		out.keys = append(out.keys, a.keys...)
		for k, v := range a.values {
			out.values[k] = v
		}
	}
	return out
}

func (a *Attributes) with(key, value string) *Attributes {
	out := a.clone(1)
	if _, exists := out.values[key]; !exists {
		out.keys = append(out.keys, key)
	}
	out.values[key] = value
	return out
}

func (a *Attributes) without(key string) *Attributes {
	if _, ok := a.Get(key); !ok {
		return a
	}
	out := a.clone(0)
	delete(out.values, key)
	for i, k := range out.keys {
		if k == key {
			out.keys = append(out.keys[:i], out.keys[i+1:]...)
			break
		}
	}
	return out
}

// union returns a copy of a extended with every pair of b. Values from b win.
func (a *Attributes) union(b *Attributes) *Attributes {
	if b.Len() == 0 {
		return a
	}
	out := a.clone(b.Len())
	b.Range(func(k, v string) bool {
		if _, exists := out.values[k]; !exists {
			out.keys = append(out.keys, k)
		}
		out.values[k] = v
		return true
	})
	return out
}

// typeCell holds the lazily reconciled type of one resource instance.
type typeCell struct {
	once     sync.Once
	resolved atomic.Int32
}

func newTypeCell() *typeCell {
	c := &typeCell{}
	c.resolved.Store(-1)
	return c
}

func (c *typeCell) peek() (Type, bool) {
	v := c.resolved.Load()
	if v < 0 {
		return 0, false
	}
	return Type(v), true
}

// lazyString caches a successfully computed string. Failures are not cached.
type lazyString struct {
	mu   sync.Mutex
	done bool
	val  string
}

func (l *lazyString) get(compute func() (string, error)) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done {
		return l.val, nil
	}
	v, err := compute()
	if err != nil {
		return "", err
	}
	l.val = v
	l.done = true
	return v, nil
}
