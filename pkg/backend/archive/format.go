package archive

import (
	"fmt"
	"path"
	"strings"

	"github.com/marmos91/dittores/pkg/processor"
)

// Format identifies an archive layout by file extension.
type Format int

const (
	FormatNone Format = iota
	FormatZip
	FormatTar
	FormatTarGz
	FormatSevenZip

	// Single-stream formats hold exactly one entry: the file name without
	// its compression extension.
	FormatGzip
	FormatBzip2
	FormatZstd
	FormatLZ4
)

// Longer extensions first so ".tar.gz" wins over ".gz".
var extensions = []struct {
	ext    string
	format Format
}{
	{".tar.gz", FormatTarGz},
	{".tgz", FormatTarGz},
	{".tar", FormatTar},
	{".zip", FormatZip},
	{".jar", FormatZip},
	{".7z", FormatSevenZip},
	{".gz", FormatGzip},
	{".bz2", FormatBzip2},
	{".zst", FormatZstd},
	{".lz4", FormatLZ4},
}

func (f Format) String() string {
	switch f {
	case FormatNone:
		return "none"
	case FormatZip:
		return "zip"
	case FormatTar:
		return "tar"
	case FormatTarGz:
		return "tar.gz"
	case FormatSevenZip:
		return "7z"
	case FormatGzip:
		return "gzip"
	case FormatBzip2:
		return "bzip2"
	case FormatZstd:
		return "zstd"
	case FormatLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", f)
	}
}

// ParseFormat parses a format name as printed by String.
func ParseFormat(name string) (Format, error) {
	for f := FormatZip; f <= FormatLZ4; f++ {
		if f.String() == name {
			return f, nil
		}
	}
	return FormatNone, fmt.Errorf("unknown archive format: %q", name)
}

// Detect returns the format implied by the extension of name.
func Detect(name string) Format {
	f, _ := detect(name)
	return f
}

func detect(name string) (Format, string) {
	lower := strings.ToLower(path.Base(name))
	for _, e := range extensions {
		if strings.HasSuffix(lower, e.ext) && len(lower) > len(e.ext) {
			return e.format, e.ext
		}
	}
	return FormatNone, ""
}

// singleEntryName is the name of the only entry of a single-stream archive.
func singleEntryName(name string) string {
	_, ext := detect(name)
	base := path.Base(name)
	return base[:len(base)-len(ext)]
}

func (f Format) singleStream() bool {
	return f >= FormatGzip
}

func (f Format) codec() processor.Codec {
	switch f {
	case FormatGzip:
		return processor.CodecGzip
	case FormatBzip2:
		return processor.CodecBzip2
	case FormatZstd:
		return processor.CodecZstd
	case FormatLZ4:
		return processor.CodecLZ4
	default:
		return processor.CodecNone
	}
}

// splitArchivePath returns the path of the first element carrying an
// archive extension and the entry path below it.
func splitArchivePath(p string) (archivePath, entry string, format Format) {
	p = path.Clean("/" + p)
	elems := strings.Split(strings.TrimPrefix(p, "/"), "/")
	for i, elem := range elems {
		if f := Detect(elem); f != FormatNone {
			return "/" + strings.Join(elems[:i+1], "/"), strings.Join(elems[i+1:], "/"), f
		}
	}
	return "", "", FormatNone
}
