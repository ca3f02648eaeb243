package server

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// formatEntry renders one LIST line in a fixed ls -l like layout:
//
//	drw-rw-rw- 1 anonymous anonymous 4096 Mar 7 09:05 src/
//
// Owner and group are always "anonymous", and the permission triplet only
// distinguishes read-only from writable entries.
func formatEntry(info fs.FileInfo) string {
	kind := "-"
	suffix := ""
	if info.IsDir() {
		kind = "d"
		suffix = "/"
	}

	perms := "rw-rw-rw-"
	if info.Mode().Perm()&0o222 == 0 {
		perms = "r--r--r--"
	}

	mtime := info.ModTime()
	return fmt.Sprintf("%s%s 1 anonymous anonymous %d %s %d %02d:%02d %s%s\r\n",
		kind, perms,
		info.Size(),
		mtime.Format("Jan"), mtime.Day(),
		mtime.Hour(), mtime.Minute(),
		info.Name(), suffix,
	)
}

// buildListing formats real, a canonical path inside the sandbox. A
// directory yields one line per readable entry; a file yields its own line.
// Paths equal to hidden are left out.
func buildListing(real, hidden string) ([]byte, error) {
	info, err := os.Stat(real)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if real == hidden {
			return nil, nil
		}
		return []byte(formatEntry(info)), nil
	}

	entries, err := os.ReadDir(real)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	for _, entry := range entries {
		full := filepath.Join(real, entry.Name())
		if full == hidden {
			continue
		}
		// Symlinks are followed; broken ones are skipped.
		fi, err := os.Stat(full)
		if err != nil {
			continue
		}
		b.WriteString(formatEntry(listedInfo{fi, entry.Name()}))
	}
	return []byte(b.String()), nil
}

// listedInfo keeps the directory entry name when the stat followed a symlink.
type listedInfo struct {
	fs.FileInfo
	name string
}

func (l listedInfo) Name() string { return l.name }
