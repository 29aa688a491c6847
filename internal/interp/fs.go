package interp

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// File is an open file as seen by fopen/fprintf/fclose
type File interface {
	io.Writer
	io.Closer
}

// FileSystem opens files on behalf of the interpreted program
type FileSystem interface {
	Open(path, mode string) (File, error)
}

// OSFileSystem opens real files relative to Dir
type OSFileSystem struct {
	Dir string
}

func (fs OSFileSystem) Open(path, mode string) (File, error) {
	flags, err := openFlags(mode)
	if err != nil {
		return nil, err
	}
	if !filepath.IsAbs(path) && fs.Dir != "" {
		path = filepath.Join(fs.Dir, path)
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "fopen %s", path)
	}
	return f, nil
}

// openFlags maps a C fopen mode onto os.OpenFile flags
func openFlags(mode string) (int, error) {
	switch mode {
	case "r", "rb":
		return os.O_RDONLY, nil
	case "r+", "rb+", "r+b":
		return os.O_RDWR, nil
	case "w", "wb":
		return os.O_WRONLY | os.O_CREATE | os.O_TRUNC, nil
	case "w+", "wb+", "w+b":
		return os.O_RDWR | os.O_CREATE | os.O_TRUNC, nil
	case "a", "ab":
		return os.O_WRONLY | os.O_CREATE | os.O_APPEND, nil
	case "a+", "ab+", "a+b":
		return os.O_RDWR | os.O_CREATE | os.O_APPEND, nil
	}
	return 0, errors.Errorf("unsupported fopen mode %q", mode)
}

// MemoryFileSystem keeps files in memory. Paths listed in Unavailable
// cannot be opened.
type MemoryFileSystem struct {
	Unavailable map[string]bool

	mu    sync.Mutex
	files map[string]*bytes.Buffer
	open  map[string]int
}

// NewMemoryFileSystem creates an empty in-memory file system
func NewMemoryFileSystem() *MemoryFileSystem {
	return &MemoryFileSystem{
		Unavailable: make(map[string]bool),
		files:       make(map[string]*bytes.Buffer),
		open:        make(map[string]int),
	}
}

func (fs *MemoryFileSystem) Open(path, mode string) (File, error) {
	flags, err := openFlags(mode)
	if err != nil {
		return nil, err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.Unavailable[path] {
		return nil, errors.Errorf("fopen %s: permission denied", path)
	}
	buf, exists := fs.files[path]
	switch {
	case !exists && flags&os.O_CREATE == 0:
		return nil, errors.Errorf("fopen %s: no such file", path)
	case !exists:
		buf = &bytes.Buffer{}
		fs.files[path] = buf
	case flags&os.O_TRUNC != 0:
		buf.Reset()
	}
	fs.open[path]++
	return &memoryFile{fs: fs, path: path, buf: buf, writable: flags&(os.O_WRONLY|os.O_RDWR) != 0}, nil
}

// Contents returns what was written to path
func (fs *MemoryFileSystem) Contents(path string) string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if buf, ok := fs.files[path]; ok {
		return buf.String()
	}
	return ""
}

// Exists reports whether path was ever created
func (fs *MemoryFileSystem) Exists(path string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, ok := fs.files[path]
	return ok
}

// OpenCount returns how many handles on path are still open
func (fs *MemoryFileSystem) OpenCount(path string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.open[path]
}

// Paths lists the files in name order
func (fs *MemoryFileSystem) Paths() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	paths := make([]string, 0, len(fs.files))
	for path := range fs.files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

type memoryFile struct {
	fs       *MemoryFileSystem
	path     string
	buf      *bytes.Buffer
	writable bool
	closed   bool
}

func (f *memoryFile) Write(p []byte) (int, error) {
	if f.closed {
		return 0, errors.Errorf("write to closed file %s", f.path)
	}
	if !f.writable {
		return 0, errors.Errorf("file %s is not open for writing", f.path)
	}
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	return f.buf.Write(p)
}

func (f *memoryFile) Close() error {
	if f.closed {
		return errors.Errorf("file %s closed twice", f.path)
	}
	f.closed = true
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	f.fs.open[f.path]--
	return nil
}
