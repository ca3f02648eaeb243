package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// sandbox maps client-visible virtual paths onto the server root.
//
// Security model:
//   - Every client path is joined to the session's working directory (or to
//     the virtual root for absolute paths), then to the real root, and
//     canonicalized with filepath.EvalSymlinks.
//   - A canonical path that is not the root or below it is rejected with
//     os.ErrPermission. This holds for ".." sequences and for symlinks
//     pointing outside the root.
//   - File operations additionally go through an os.Root handle, so a
//     symlink swapped in after the check still cannot escape the jail.
type sandbox struct {
	rootPath   string // canonical absolute path of the server root
	rootHandle *os.Root
}

// canonicalRoot validates rootPath and returns its canonical form.
func canonicalRoot(rootPath string) (string, error) {
	info, err := os.Stat(rootPath)
	if err != nil {
		return "", fmt.Errorf("root path validation failed: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("root path is not a directory: %s", rootPath)
	}
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve root path: %w", err)
	}
	// Canonicalize the root path to ensure we can safely compare it later
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("failed to resolve root path: %w", err)
	}
	return abs, nil
}

// openSandbox opens a jail on an already canonical root path.
func openSandbox(rootPath string) (*sandbox, error) {
	root, err := os.OpenRoot(rootPath)
	if err != nil {
		return nil, err
	}
	return &sandbox{rootPath: rootPath, rootHandle: root}, nil
}

// Close releases the root directory handle.
func (sb *sandbox) Close() error {
	return sb.rootHandle.Close()
}

// joinVirtual joins a client path onto the working directory without
// cleaning it. Absolute client paths replace the working directory.
func joinVirtual(cwd, p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	if p == "" {
		return cwd
	}
	return strings.TrimSuffix(cwd, "/") + "/" + p
}

// hasParentComponent reports whether p contains a literal ".." element.
func hasParentComponent(p string) bool {
	for _, part := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == filepath.Separator }) {
		if part == ".." {
			return true
		}
	}
	return false
}

// contains reports whether the canonical path real lies within the root.
func (sb *sandbox) contains(real string) bool {
	if real == sb.rootPath {
		return true
	}
	prefix := sb.rootPath
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(real, prefix)
}

// resolve returns the canonical real path for a client path.
//
// It returns os.ErrNotExist when the path cannot be canonicalized and
// os.ErrPermission when it resolves outside the root.
func (sb *sandbox) resolve(cwd, p string) (string, error) {
	rel := strings.TrimLeft(joinVirtual(cwd, p), "/")

	full := sb.rootPath
	if rel != "" {
		// Not filepath.Join: ".." must be evaluated against the real tree
		// after symlinks, not lexically.
		full = strings.TrimSuffix(sb.rootPath, string(filepath.Separator)) +
			string(filepath.Separator) + filepath.FromSlash(rel)
	}

	real, err := filepath.EvalSymlinks(full)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return "", os.ErrPermission
		}
		// Any other failure means the path does not exist in a usable form.
		return "", os.ErrNotExist
	}
	if !sb.contains(real) {
		return "", os.ErrPermission
	}
	return real, nil
}

// resolveNew resolves the parent directory of a path that may not exist yet
// and returns it together with the final element.
func (sb *sandbox) resolveNew(cwd, p string) (parent, name string, err error) {
	v := strings.TrimRight(joinVirtual(cwd, p), "/")
	dir, name := path.Split(v)
	if name == "" || name == "." || name == ".." {
		return "", "", os.ErrInvalid
	}
	if dir == "" {
		dir = "/"
	}

	parent, err = sb.resolve("/", dir)
	if err != nil {
		return "", "", err
	}
	info, err := os.Stat(parent)
	if err != nil || !info.IsDir() {
		return "", "", os.ErrNotExist
	}
	return parent, name, nil
}

// rel converts a canonical real path into a path relative to the root
// handle, as os.Root expects.
func (sb *sandbox) rel(real string) (string, error) {
	if !sb.contains(real) {
		return "", os.ErrPermission
	}
	r, err := filepath.Rel(sb.rootPath, real)
	if err != nil {
		return "", os.ErrPermission
	}
	return r, nil
}

// virtual converts a canonical real path into the client-visible path.
// The result always starts with "/".
func (sb *sandbox) virtual(real string) (string, error) {
	r, err := sb.rel(real)
	if err != nil {
		return "", err
	}
	if r == "." {
		return "/", nil
	}
	return "/" + filepath.ToSlash(r), nil
}
