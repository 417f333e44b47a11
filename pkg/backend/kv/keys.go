package kv

import (
	"path"
	"strings"
)

// Database Key Namespace Design
// ==============================
//
// Each engine root holds the files of one kv: tree. Keys are derived from
// the normalized resource path so lookups need no index and listing a
// directory is a prefix scan.
//
// Key Namespace Prefixes:
//
// Data Type      Prefix   Key Format          Value Type
// =======================================================================
// File Record    "r:"     r:<clean path>      [len int32][mtime int64][payload]
//
// Directories have no record. A directory exists when it is the root or
// when at least one record key lies below it:
//
//	r:/docs/a.txt       -> /docs is a directory
//	r:/docs/img/b.png   -> /docs/img is a directory
//
// Listing /docs scans ["r:/docs/", "r:/docs/\xff") and folds every key to
// its first path element after the prefix.

const (
	// prefixRecord is the key prefix for file records
	prefixRecord = "r:"
)

// cleanPath normalizes p into a rooted, slash separated path.
func cleanPath(p string) string {
	return path.Clean("/" + p)
}

// keyRecord generates the key for the file record at p.
//
// Format: "r:<clean path>"
// Example: "r:/docs/a.txt"
func keyRecord(p string) []byte {
	return []byte(prefixRecord + cleanPath(p))
}

// keyChildPrefix generates the prefix for range scanning the subtree of p.
//
// Format: "r:<clean path>/" (or "r:/" for the root)
func keyChildPrefix(p string) []byte {
	p = cleanPath(p)
	if p == "/" {
		return []byte(prefixRecord + "/")
	}
	return []byte(prefixRecord + p + "/")
}

// childOf splits a record key found under prefix into the name of the
// immediate child and whether that child is a directory.
func childOf(key, prefix []byte) (name string, dir bool) {
	rest := strings.TrimPrefix(string(key), string(prefix))
	name, _, dir = strings.Cut(rest, "/")
	return name, dir
}
