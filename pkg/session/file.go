package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// FileBackend stores all keys in a single YAML document. Writes replace the
// file atomically so a crash never leaves a truncated file behind.
type FileBackend struct {
	path string
	mu   sync.Mutex
}

var _ Backend = &FileBackend{}

type fileDocument struct {
	Values map[string]string `yaml:"values"`
}

func NewFileBackend(path string) (*FileBackend, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("file session backend: empty path")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "file session backend: create dir")
		}
	}
	return &FileBackend{path: path}, nil
}

func (f *FileBackend) Path() string {
	return f.path
}

func (f *FileBackend) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.readLocked()
	if err != nil {
		return "", false, err
	}
	v, ok := doc.Values[key]
	return v, ok, nil
}

func (f *FileBackend) Set(_ context.Context, key string, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.readLocked()
	if err != nil {
		// an unreadable file is replaced rather than blocking new sessions
		doc = fileDocument{Values: map[string]string{}}
	}
	doc.Values[key] = value
	return f.writeLocked(doc)
}

func (f *FileBackend) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.readLocked()
	if err != nil {
		return err
	}
	if _, ok := doc.Values[key]; !ok {
		return nil
	}
	delete(doc.Values, key)
	return f.writeLocked(doc)
}

func (f *FileBackend) Close() error {
	return nil
}

func (f *FileBackend) readLocked() (fileDocument, error) {
	doc := fileDocument{Values: map[string]string{}}
	b, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return doc, errors.Wrap(err, "file session backend: read")
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return fileDocument{Values: map[string]string{}}, errors.Wrap(err, "file session backend: decode")
	}
	if doc.Values == nil {
		doc.Values = map[string]string{}
	}
	return doc, nil
}

func (f *FileBackend) writeLocked(doc fileDocument) error {
	b, err := yaml.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "file session backend: encode")
	}
	if err := renameio.WriteFile(f.path, b, 0o600); err != nil {
		return errors.Wrap(err, "file session backend: write")
	}
	return nil
}
