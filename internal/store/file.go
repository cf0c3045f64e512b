package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

type fileDoc struct {
	Segments map[int]int `yaml:"segments"`
}

// File stores lengths in a YAML document. Every put rewrites the whole
// document through a temp file and a rename.
type File struct {
	mu   sync.Mutex
	path string
	doc  fileDoc
}

func OpenFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("store: file path is empty")
	}
	f := &File{path: path, doc: fileDoc{Segments: map[int]int{}}}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &f.doc); err != nil {
		return nil, fmt.Errorf("store: parse %s: %w", path, err)
	}
	if f.doc.Segments == nil {
		f.doc.Segments = map[int]int{}
	}
	return f, nil
}

func (f *File) Path() string { return f.path }

func (f *File) SegmentLength(index int) (int, error) {
	if err := checkIndex(index); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doc.Segments[index], nil
}

func (f *File) PutSegmentLength(index, length int) error {
	if err := checkIndex(index); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.doc.Segments[index]
	f.doc.Segments[index] = length
	if err := f.flush(); err != nil {
		if had {
			f.doc.Segments[index] = prev
		} else {
			delete(f.doc.Segments, index)
		}
		return err
	}
	return nil
}

func (f *File) flush() error {
	b, err := yaml.Marshal(&f.doc)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("store: write %s: %w", f.path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("store: write %s: %w", f.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: write %s: %w", f.path, err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("store: write %s: %w", f.path, err)
	}
	return nil
}
