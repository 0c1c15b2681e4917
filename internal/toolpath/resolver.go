// Package toolpath resolves external executables from an explicit search path.
package toolpath

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// Resolver locates external executables, searching configured directories
// before the process PATH. It never modifies the process environment;
// child processes receive the extended search path through Env.
type Resolver struct {
	mu      sync.RWMutex
	dirs    []string
	environ func() []string
}

// New creates a resolver that prefers the given directories. Empty
// entries and duplicates are dropped.
func New(dirs ...string) *Resolver {
	r := &Resolver{environ: os.Environ}
	r.SetDirs(dirs...)
	return r
}

// SetDirs replaces the preferred directories.
func (r *Resolver) SetDirs(dirs ...string) {
	cleaned := make([]string, 0, len(dirs))
	seen := map[string]struct{}{}
	for _, dir := range dirs {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		dir = filepath.Clean(dir)
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		cleaned = append(cleaned, dir)
	}

	r.mu.Lock()
	r.dirs = cleaned
	r.mu.Unlock()
}

// Dirs returns the preferred directories.
func (r *Resolver) Dirs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.dirs...)
}

// LookPath resolves name against the preferred directories, then PATH.
// Names containing a path separator are checked directly.
func (r *Resolver) LookPath(name string) (string, error) {
	if strings.ContainsAny(name, `/\`) {
		return exec.LookPath(name)
	}
	for _, dir := range r.Dirs() {
		if path, err := exec.LookPath(filepath.Join(dir, name)); err == nil {
			return path, nil
		}
	}
	return exec.LookPath(name)
}

// SearchPath returns the PATH value child processes should see.
func (r *Resolver) SearchPath() string {
	current := lookupPath(r.environ())
	entries := r.Dirs()
	for _, entry := range filepath.SplitList(current) {
		if entry == "" || containsPath(entries, entry) {
			continue
		}
		entries = append(entries, entry)
	}
	return strings.Join(entries, string(os.PathListSeparator))
}

// Env returns the process environment with PATH replaced by SearchPath.
func (r *Resolver) Env() []string {
	base := r.environ()
	search := r.SearchPath()

	env := make([]string, 0, len(base)+1)
	key := "PATH"
	for _, kv := range base {
		if isPathEntry(kv) {
			key = kv[:strings.IndexByte(kv, '=')]
			continue
		}
		env = append(env, kv)
	}
	return append(env, key+"="+search)
}

func lookupPath(environ []string) string {
	for _, kv := range environ {
		if isPathEntry(kv) {
			return kv[strings.IndexByte(kv, '=')+1:]
		}
	}
	return ""
}

// isPathEntry matches PATH=... case-insensitively, since Windows uses Path.
func isPathEntry(kv string) bool {
	return len(kv) >= 5 && strings.EqualFold(kv[:5], "PATH=")
}

func containsPath(list []string, path string) bool {
	clean := filepath.Clean(path)
	for _, entry := range list {
		if filepath.Clean(entry) == clean {
			return true
		}
	}
	return false
}

// NewForTests creates a resolver with an injected environment.
func NewForTests(environ func() []string, dirs ...string) *Resolver {
	r := &Resolver{environ: environ}
	r.SetDirs(dirs...)
	return r
}
