package resource

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"github.com/zeebo/blake3"
)

// DefaultMimeType is reported when neither the extension nor the content
// identify the resource.
const DefaultMimeType = "application/octet-stream"

// DirectoryMimeType is reported for directories.
const DirectoryMimeType = "inode/directory"

// sniffLimit bounds how much content is read for MIME detection.
const sniffLimit = 3072

// Hash returns a hex encoded BLAKE3 fingerprint of the resource identity.
//
// The fingerprint combines the backend implementation, the scheme and
// authority (omitted for local-file-like backends), the original-path
// attribute or else the file name, and the external-hash attribute. When
// neither identity attribute is present the full URI is folded in as well.
// Backends holding raw bytes fold their content instead of the URI.
//
// The value is computed once per instance; every With* copy recomputes it.
func (r *Resource) Hash(ctx context.Context) (string, error) {
	return r.hash.get(func() (string, error) {
		return r.computeHash(ctx)
	})
}

func (r *Resource) computeHash(_ context.Context) (string, error) {
	h := blake3.New()
	write := func(s string) {
		_, _ = io.WriteString(h, s)
		_, _ = h.Write([]byte{0})
	}

	write(fmt.Sprintf("%T", r.backend))

	if _, local := r.backend.(LocalPather); !local {
		write(r.uri.Scheme)
		write(r.uri.Host)
	}

	originalPath, hasPath := r.attrs.Get(AttrOriginalPath)
	if hasPath {
		write(originalPath)
	} else {
		write(identifier(r.FileName()))
	}

	externalHash, hasExternal := r.attrs.Get(AttrExternalHash)
	if hasExternal {
		write(externalHash)
	}

	contentFolded := false
	if hasher, ok := r.backend.(ContentHasher); ok {
		contentFolded = hasher.HashContent(r, h)
	}

	if !hasPath && !hasExternal && !contentFolded {
		write(r.URI().String())
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// identifier normalizes a file name into an identifier: lower case, with
// every rune that is not a letter or digit replaced by '_'.
func identifier(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, c := range strings.ToLower(name) {
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			b.WriteRune(c)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// MimeType returns the MIME type: the explicit override if set, otherwise
// the extension based type, otherwise the type sniffed from the first bytes
// of the raw content. The detected value is cached for this instance.
func (r *Resource) MimeType(ctx context.Context) (string, error) {
	if r.mimeOverride != "" {
		return r.mimeOverride, nil
	}
	return r.mime.get(func() (string, error) {
		return r.detectMimeType(ctx)
	})
}

func (r *Resource) detectMimeType(ctx context.Context) (string, error) {
	if r.Type(ctx) == TypeDirectory {
		return DirectoryMimeType, nil
	}

	name := r.FileName()
	if r.fragment != "" {
		name = path.Base(r.fragment)
	}
	if ext := path.Ext(name); ext != "" {
		if t := mime.TypeByExtension(ext); t != "" {
			return t, nil
		}
	}

	exists, err := r.Exists(ctx)
	if err != nil || !exists {
		return DefaultMimeType, nil
	}

	rc, err := r.Reader(ctx, true)
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	mt, err := mimetype.DetectReader(io.LimitReader(rc, sniffLimit))
	if err != nil {
		return "", Wrap("mime", r.String(), err)
	}
	return mt.String(), nil
}
