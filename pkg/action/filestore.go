package action

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/nstogner/forge/pkg/domain"
)

// FileStore is the in-memory file set of one execution run. Writes are
// last-write-wins. It is not safe for concurrent use.
type FileStore struct {
	files map[string]string
	order []string
	dirs  map[string]struct{}
}

// NewFileStore creates an empty store.
func NewFileStore() *FileStore {
	return &FileStore{
		files: make(map[string]string),
		dirs:  make(map[string]struct{}),
	}
}

// CleanPath normalizes a relative file path. Leading slashes are dropped;
// empty paths and paths escaping the root are rejected.
func CleanPath(p string) (string, error) {
	p = strings.TrimLeft(strings.TrimSpace(p), "/")
	if p == "" {
		return "", fmt.Errorf("empty file path")
	}
	c := path.Clean(p)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", fmt.Errorf("file path %q escapes the workspace", p)
	}
	return c, nil
}

// Write stores content at p, recording every implied parent directory. It
// returns the normalized path.
func (s *FileStore) Write(p, content string) (string, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return "", err
	}
	if _, ok := s.files[clean]; !ok {
		s.order = append(s.order, clean)
	}
	s.files[clean] = content
	for dir := path.Dir(clean); dir != "." && dir != "/"; dir = path.Dir(dir) {
		s.dirs[dir] = struct{}{}
	}
	return clean, nil
}

// Read returns the content stored at p.
func (s *FileStore) Read(p string) (string, bool) {
	clean, err := CleanPath(p)
	if err != nil {
		return "", false
	}
	c, ok := s.files[clean]
	return c, ok
}

// ReadAll returns a copy of the path to content mapping.
func (s *FileStore) ReadAll() map[string]string {
	out := make(map[string]string, len(s.files))
	for k, v := range s.files {
		out[k] = v
	}
	return out
}

// Files lists the files in first-write order.
func (s *FileStore) Files() []domain.VirtualFile {
	out := make([]domain.VirtualFile, 0, len(s.order))
	for _, p := range s.order {
		out = append(out, domain.VirtualFile{Path: p, Content: s.files[p]})
	}
	return out
}

// Dirs lists the implied directories, sorted.
func (s *FileStore) Dirs() []string {
	out := make([]string, 0, len(s.dirs))
	for d := range s.dirs {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func (s *FileStore) Len() int { return len(s.files) }
