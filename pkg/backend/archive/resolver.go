package archive

import (
	"context"
	"net/url"
	"path"

	"github.com/marmos91/dittores/pkg/pipeline"
	"github.com/marmos91/dittores/pkg/resource"
)

// Resolver wraps URIs whose path crosses an archive file. It is a filter:
// the archive file itself is located by the pipeline that invoked it, so
// archives work on every backend.
type Resolver struct {
	priority int
	formats  map[Format]bool
}

// NewResolver creates the archive resolver. With no formats every known
// format is recognised.
func NewResolver(priority int, formats ...Format) *Resolver {
	enabled := make(map[Format]bool)
	if len(formats) == 0 {
		for f := FormatZip; f <= FormatLZ4; f++ {
			enabled[f] = true
		}
	}
	for _, f := range formats {
		enabled[f] = true
	}
	return &Resolver{priority: priority, formats: enabled}
}

func (r *Resolver) Name() string  { return "archive" }
func (r *Resolver) Priority() int { return r.priority }

func (r *Resolver) Supports(u *url.URL) bool {
	_, _, f := splitArchivePath(u.Path)
	return r.formats[f]
}

// Resolve locates the archive file through the pipeline and returns the
// archive root or the entry below it. A URI fragment names an entry too:
// "file:/a.zip#dir/b.txt" is "file:/a.zip/dir/b.txt".
func (r *Resolver) Resolve(ctx context.Context, u *url.URL, typ resource.Type) (*resource.Resource, error) {
	archivePath, entry, format := splitArchivePath(u.Path)
	if !r.formats[format] {
		return nil, nil
	}
	if u.Fragment != "" {
		entry = cleanEntry(path.Join(entry, u.Fragment))
	}

	p, ok := pipeline.FromContext(ctx)
	if !ok {
		return nil, resource.Configf("archive resolver used outside a pipeline")
	}

	src := *u
	src.Path = archivePath
	src.RawPath = ""
	src.Fragment = ""
	src.RawFragment = ""

	// For an entry URI the nested call lands back here and returns the
	// archive root. For the archive URI itself this resolver is skipped and
	// the nested call returns the raw file.
	under, err := p.ResolveURL(ctx, &src, pipeline.AsType(resource.TypeDirectory))
	if err != nil {
		return nil, err
	}

	root := under
	if _, wrapped := under.Backend().(*Backend); !wrapped {
		root = Open(under.WithType(resource.TypeFile), format)
	}
	if entry == "" {
		return root, nil
	}
	return root.Descendant(ctx, entry, typ)
}
