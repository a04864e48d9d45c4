package classpath

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Source is one class path entry: a directory, an archive or a single
// class file.
type Source interface {
	// Find returns the bytes of the class with the given internal name. It
	// returns an error matching fs.ErrNotExist if the source has no such
	// class.
	Find(name string) ([]byte, error)
	// Walk calls fn for every class file in the source, including those in
	// archives nested inside it. entry names the file within the source.
	Walk(fn func(entry string, data []byte) error) error
	Close() error
	String() string
}

// Open returns the source for path: a directory, a .jar or .zip archive,
// or a .class file.
func Open(p string) (Source, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("open class path entry: %w", err)
	}
	if info.IsDir() {
		log.Debugf("opened directory %s", p)
		return NewFSSource(p, os.DirFS(p)), nil
	}
	switch strings.ToLower(filepath.Ext(p)) {
	case ".jar", ".zip":
		r, err := zip.OpenReader(p)
		if err != nil {
			return nil, fmt.Errorf("open archive %s: %w", p, err)
		}
		log.Debugf("opened archive %s with %d entries", p, len(r.File))
		return &fsSource{name: p, fsys: r, closer: r}, nil
	case ".class":
		return &fileSource{path: p}, nil
	}
	return nil, fmt.Errorf("open class path entry: %s is not a directory, archive or class file", p)
}

// NewFSSource serves classes from fsys, with paths relative to its root.
func NewFSSource(name string, fsys fs.FS) Source {
	return &fsSource{name: name, fsys: fsys}
}

type fsSource struct {
	name   string
	fsys   fs.FS
	closer io.Closer
}

func (s *fsSource) String() string { return s.name }

func (s *fsSource) Find(name string) ([]byte, error) {
	return fs.ReadFile(s.fsys, name+".class")
}

func (s *fsSource) Walk(fn func(entry string, data []byte) error) error {
	return walkFS(s.fsys, s.name, fn)
}

func (s *fsSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func walkFS(fsys fs.FS, prefix string, fn func(entry string, data []byte) error) error {
	return fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(path.Ext(p)) {
		case ".class":
			data, err := fs.ReadFile(fsys, p)
			if err != nil {
				return err
			}
			return fn(prefix+"!"+p, data)
		case ".jar":
			data, err := fs.ReadFile(fsys, p)
			if err != nil {
				return err
			}
			return walkNestedJar(prefix+"!"+p, data, fn)
		}
		return nil
	})
}

func walkNestedJar(name string, data []byte, fn func(entry string, data []byte) error) error {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("open nested archive %s: %w", name, err)
	}
	return walkFS(r, name, fn)
}

// fileSource is a single class file given on the command line.
type fileSource struct {
	path string
}

func (s *fileSource) String() string { return s.path }

func (s *fileSource) Find(name string) ([]byte, error) {
	base := strings.TrimSuffix(filepath.Base(s.path), ".class")
	if name != base && !strings.HasSuffix(name, "/"+base) {
		return nil, fs.ErrNotExist
	}
	return os.ReadFile(s.path)
}

func (s *fileSource) Walk(fn func(entry string, data []byte) error) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	return fn(s.path, data)
}

func (s *fileSource) Close() error { return nil }

// isNotFound reports whether err means a source has no such class.
func isNotFound(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
