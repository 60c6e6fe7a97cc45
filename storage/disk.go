package storage

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore implements Store. Each key is a file name relative to the store's
// directory, and each value is that file's entire content.
type DiskStore struct {
	dir string
}

func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{dir: dir}
}

func (s *DiskStore) Put(key string, value []byte) (err error) {
	valpath, err := s.pathFor(key)
	if err != nil {
		return err
	}
	err = ioutil.WriteFile(valpath, value, 0600)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("could not write %q: %w", valpath, err)
	}
	if err = os.MkdirAll(filepath.Dir(valpath), 0700); err != nil {
		return fmt.Errorf("could not make dir for %q: %w", valpath, err)
	}
	if err = ioutil.WriteFile(valpath, value, 0600); err != nil {
		return fmt.Errorf("could not write %q: %w", valpath, err)
	}
	return nil
}

func (s *DiskStore) Get(key string) (value []byte, err error) {
	valpath, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}
	value, err = ioutil.ReadFile(valpath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("could not read %q: %w", valpath, err)
	}
	return value, nil
}

// Keys are confined to the store directory.
func (s *DiskStore) pathFor(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || clean == ".." || filepath.IsAbs(clean) || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: invalid key", key)
	}
	return filepath.Join(s.dir, clean), nil
}
