package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/dittores/pkg/backend/archive"
	"github.com/marmos91/dittores/pkg/config"
	"github.com/marmos91/dittores/pkg/pipeline"
	"github.com/marmos91/dittores/pkg/resource"
	"github.com/spf13/pflag"
)

type command struct {
	usage   string
	summary string

	// args is the exact number of positional arguments, -1 for any
	args int

	// standalone commands run without loading the config or a pipeline
	standalone bool

	flags func(*pflag.FlagSet)
	run   func(ctx context.Context, a *app, flags *pflag.FlagSet, args []string) error
}

var commands = map[string]*command{
	"cat": {
		usage:   "[--raw] <uri>",
		summary: "print the content of a resource",
		args:    1,
		flags: func(f *pflag.FlagSet) {
			f.Bool("raw", false, "skip stream processors (e.g. decompression)")
		},
		run: runCat,
	},
	"ls": {
		usage:   "[-l] <uri>",
		summary: "list the children of a directory",
		args:    1,
		flags: func(f *pflag.FlagSet) {
			f.BoolP("long", "l", false, "show type, size and modification time")
		},
		run: runList,
	},
	"tree": {
		usage:   "[--depth N] <uri>",
		summary: "print the tree below a directory",
		args:    1,
		flags: func(f *pflag.FlagSet) {
			f.IntP("depth", "d", 0, "maximum depth (0 for unlimited)")
		},
		run: runTree,
	},
	"cp": {
		usage:   "[--depth N] <src-uri> <dst-uri>",
		summary: "copy a file or directory tree between any two URIs",
		args:    2,
		flags: func(f *pflag.FlagSet) {
			f.IntP("depth", "d", 0, "maximum directory depth to copy (0 for unlimited)")
		},
		run: runCopy,
	},
	"stat": {
		usage:   "<uri>",
		summary: "show the properties of a resource",
		args:    1,
		run:     runStat,
	},
	"hash": {
		usage:   "<uri>",
		summary: "print the content fingerprint of a resource",
		args:    1,
		run:     runHash,
	},
	"rm": {
		usage:   "[--contents] <uri>",
		summary: "delete a resource (directories recursively)",
		args:    1,
		flags: func(f *pflag.FlagSet) {
			f.Bool("contents", false, "empty a directory instead of deleting it")
		},
		run: runRemove,
	},
	"write": {
		usage:   "<uri>",
		summary: "write standard input to a resource, creating parents",
		args:    1,
		run:     runWrite,
	},
	"pack": {
		usage:   "[--format zip|tar|tar.gz] <src-uri> <dst-uri>",
		summary: "pack a directory into an archive",
		args:    2,
		flags: func(f *pflag.FlagSet) {
			f.String("format", "", "archive format (default: from the destination extension)")
		},
		run: runPack,
	},
	"init": {
		usage:      "[--force] [--path FILE]",
		summary:    "write a default configuration file",
		args:       0,
		standalone: true,
		flags: func(f *pflag.FlagSet) {
			f.Bool("force", false, "overwrite an existing file")
			f.String("path", "", "destination (default: "+config.GetDefaultConfigPath()+")")
		},
		run: runInit,
	},
}

func runCat(ctx context.Context, a *app, flags *pflag.FlagSet, args []string) error {
	raw, _ := flags.GetBool("raw")

	r, err := a.mustExist(ctx, args[0])
	if err != nil {
		return err
	}
	reader, err := r.Reader(ctx, raw)
	if err != nil {
		return err
	}
	defer reader.Close()

	_, err = io.Copy(a.stdout, reader)
	return err
}

func runList(ctx context.Context, a *app, flags *pflag.FlagSet, args []string) error {
	long, _ := flags.GetBool("long")

	dir, err := a.mustExist(ctx, args[0], pipeline.AsType(resource.TypeDirectory))
	if err != nil {
		return err
	}
	children, err := dir.List(ctx)
	if err != nil {
		return err
	}

	for _, child := range children {
		name := displayName(ctx, child)
		if !long {
			fmt.Fprintln(a.stdout, name)
			continue
		}

		size := "-"
		if child.Type(ctx) == resource.TypeFile {
			if n, err := child.Length(ctx); err == nil {
				size = humanize.Bytes(uint64(n))
			}
		}
		modified := "-"
		if t, err := child.LastModified(ctx); err == nil && !t.IsZero() {
			modified = humanize.Time(t)
		}
		fmt.Fprintf(a.stdout, "%-9s %10s  %-16s %s\n", child.Type(ctx), size, modified, name)
	}
	return nil
}

func runTree(ctx context.Context, a *app, flags *pflag.FlagSet, args []string) error {
	depth, _ := flags.GetInt("depth")

	root, err := a.mustExist(ctx, args[0], pipeline.AsType(resource.TypeDirectory))
	if err != nil {
		return err
	}

	fmt.Fprintln(a.stdout, root)
	var files, dirs int
	complete, err := root.Walk(ctx, func(ctx context.Context, r *resource.Resource, level int) (bool, error) {
		if r.Type(ctx) == resource.TypeDirectory {
			dirs++
		} else {
			files++
		}
		fmt.Fprintf(a.stdout, "%s%s\n", strings.Repeat("  ", level), displayName(ctx, r))
		return true, nil
	}, depth)
	if err != nil {
		return err
	}

	summary := fmt.Sprintf("%d directories, %d files", dirs, files)
	if !complete {
		summary += " (truncated at depth " + fmt.Sprint(depth) + ")"
	}
	fmt.Fprintln(a.stdout, summary)
	return nil
}

func runCopy(ctx context.Context, a *app, flags *pflag.FlagSet, args []string) error {
	depth, _ := flags.GetInt("depth")

	src, err := a.mustExist(ctx, args[0])
	if err != nil {
		return err
	}
	dst, err := a.resolve(ctx, args[1], pipeline.AsType(src.Type(ctx)))
	if err != nil {
		return err
	}

	start := time.Now()
	var copied *resource.Resource
	err = resource.Retry(ctx, a.cfg.Retry.Attempts, a.cfg.Retry.MaxDelay, func() error {
		var err error
		copied, err = dst.CopyFrom(ctx, src, depth)
		return err
	})
	if err != nil {
		return err
	}

	if copied.Type(ctx) == resource.TypeFile {
		if n, err := copied.Length(ctx); err == nil {
			fmt.Fprintf(a.stdout, "%s -> %s (%s in %s)\n", src, copied, humanize.Bytes(uint64(n)), time.Since(start).Round(time.Millisecond))
			return nil
		}
	}
	fmt.Fprintf(a.stdout, "%s -> %s\n", src, copied)
	return nil
}

func runStat(ctx context.Context, a *app, _ *pflag.FlagSet, args []string) error {
	r, err := a.resolve(ctx, args[0])
	if err != nil {
		return err
	}

	exists, err := r.Exists(ctx)
	if err != nil {
		return err
	}

	w := a.stdout
	fmt.Fprintf(w, "URI:       %s\n", r)
	fmt.Fprintf(w, "Name:      %s\n", r.Name())
	fmt.Fprintf(w, "Exists:    %t\n", exists)
	if !exists {
		return nil
	}

	fmt.Fprintf(w, "Type:      %s\n", r.Type(ctx))
	if n, err := r.Length(ctx); err == nil {
		fmt.Fprintf(w, "Size:      %s (%d bytes)\n", humanize.Bytes(uint64(n)), n)
	}
	if t, err := r.LastModified(ctx); err == nil && !t.IsZero() {
		fmt.Fprintf(w, "Modified:  %s (%s)\n", t.Format(time.RFC3339), humanize.Time(t))
	}
	if r.Type(ctx) == resource.TypeFile {
		if mime, err := r.MimeType(ctx); err == nil {
			fmt.Fprintf(w, "MIME type: %s\n", mime)
		}
	}
	return nil
}

func runHash(ctx context.Context, a *app, _ *pflag.FlagSet, args []string) error {
	r, err := a.mustExist(ctx, args[0])
	if err != nil {
		return err
	}
	sum, err := r.Hash(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%s  %s\n", sum, r)
	return nil
}

func runRemove(ctx context.Context, a *app, flags *pflag.FlagSet, args []string) error {
	contents, _ := flags.GetBool("contents")

	r, err := a.mustExist(ctx, args[0])
	if err != nil {
		return err
	}
	if contents {
		return r.Empty(ctx)
	}
	return r.Delete(ctx)
}

func runWrite(ctx context.Context, a *app, _ *pflag.FlagSet, args []string) error {
	r, err := a.resolve(ctx, args[0])
	if err != nil {
		return err
	}
	if err := r.CreateParents(ctx); err != nil {
		return err
	}

	w, err := r.Writer(ctx)
	if err != nil {
		return err
	}
	n, err := io.Copy(w, a.stdin)
	if err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%s: wrote %s\n", r, humanize.Bytes(uint64(n)))
	return nil
}

func runPack(ctx context.Context, a *app, flags *pflag.FlagSet, args []string) error {
	formatName, _ := flags.GetString("format")

	format := archive.Detect(args[1])
	if formatName != "" {
		f, err := archive.ParseFormat(formatName)
		if err != nil {
			return err
		}
		format = f
	}

	src, err := a.mustExist(ctx, args[0], pipeline.AsType(resource.TypeDirectory))
	if err != nil {
		return err
	}
	dst, err := a.resolve(ctx, args[1])
	if err != nil {
		return err
	}
	if err := archive.Pack(ctx, dst, src, format); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%s -> %s (%s)\n", src, dst, format)
	return nil
}

func runInit(_ context.Context, a *app, flags *pflag.FlagSet, _ []string) error {
	force, _ := flags.GetBool("force")
	path, _ := flags.GetString("path")

	if path == "" {
		p, err := config.InitConfig(force)
		if err != nil {
			return err
		}
		path = p
	} else if err := config.InitConfigToPath(path, force); err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Configuration written to %s\n", path)
	return nil
}

// displayName is the file name of r with a trailing slash for directories.
func displayName(ctx context.Context, r *resource.Resource) string {
	name := r.FileName()
	if r.Type(ctx) == resource.TypeDirectory && !strings.HasSuffix(name, "/") {
		name += "/"
	}
	return name
}
