// Package storage contains the default [domain.Storage] implementation, used
// by the persistence layer to keep datafiles consistent across crashes.
package storage

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/vinicius-lino-figueiredo/godm/domain"
)

var (
	osSpecificEnsureDir = func(o osOps, dir string, mode os.FileMode) error {
		return o.MkdirAll(dir, mode)
	}
	osSpecificSync = func(f *os.File, isDir bool) error {
		return f.Sync()
	}
)

// Storage implements [domain.Storage].
type Storage struct {
	os osOps
}

// NewStorage returns a new implementation of [domain.Storage].
func NewStorage() domain.Storage {
	return &Storage{os: &osImpl{}}
}

// Exists implements [domain.Storage].
func (s *Storage) Exists(filename string) (bool, error) {
	_, err := s.os.Stat(filename)
	if err == nil {
		return true, nil
	}
	if s.os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Remove implements [domain.Storage].
func (s *Storage) Remove(filename string) error {
	err := s.os.Remove(filename)
	if err != nil && !s.os.IsNotExist(err) {
		return err
	}
	return nil
}

// AppendFile implements [domain.Storage].
func (s *Storage) AppendFile(filename string, mode os.FileMode, data []byte) (int, error) {
	f, err := s.os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, mode)
	if err != nil {
		return 0, err
	}
	n, err := f.Write(data)
	if err != nil {
		f.Close()
		return n, err
	}
	return n, f.Close()
}

// ReadFileStream implements [domain.Storage].
func (s *Storage) ReadFileStream(filename string, mode os.FileMode) (io.ReadCloser, error) {
	return s.os.OpenFile(filename, os.O_RDONLY|os.O_CREATE, mode)
}

// EnsureParentDirectoryExists implements [domain.Storage].
func (s *Storage) EnsureParentDirectoryExists(filename string, mode os.FileMode) error {
	dir := filepath.Dir(filename)
	return osSpecificEnsureDir(s.os, dir, mode)
}

// CrashSafeWriteFileLines implements [domain.Storage]. The lines are written
// to a temporary file which then replaces the original one.
func (s *Storage) CrashSafeWriteFileLines(filename string, lines [][]byte, dirMode os.FileMode, fileMode os.FileMode) error {
	tempFilename := filename + "~"

	if err := s.flushToStorage(filepath.Dir(filename), true, dirMode); err != nil {
		return err
	}

	exists, err := s.Exists(filename)
	if err != nil {
		return err
	}
	if exists {
		if err := s.flushToStorage(filename, false, fileMode); err != nil {
			return err
		}
	}

	if err := s.writeFileLines(tempFilename, lines, fileMode); err != nil {
		return err
	}
	if err := s.flushToStorage(tempFilename, false, fileMode); err != nil {
		return err
	}
	if err := s.os.Rename(tempFilename, filename); err != nil {
		return err
	}
	return s.flushToStorage(filepath.Dir(filename), true, dirMode)
}

// EnsureDatafileIntegrity implements [domain.Storage]. If a crash happened
// after the temporary file was written but before the rename, the temporary
// file is promoted.
func (s *Storage) EnsureDatafileIntegrity(filename string, mode os.FileMode) error {
	tempFilename := filename + "~"

	exists, err := s.Exists(filename)
	if err != nil || exists {
		return err
	}

	tempExists, err := s.Exists(tempFilename)
	if err != nil {
		return err
	}
	if !tempExists {
		return s.os.WriteFile(filename, nil, mode)
	}
	return s.os.Rename(tempFilename, filename)
}

func (s *Storage) writeFileLines(filename string, lines [][]byte, mode os.FileMode) error {
	f, err := s.os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, line := range lines {
		if _, err := w.Write(line); err != nil {
			return errors.Join(err, f.Close())
		}
		if err := w.WriteByte('\n'); err != nil {
			return errors.Join(err, f.Close())
		}
	}
	if err := w.Flush(); err != nil {
		return errors.Join(err, f.Close())
	}
	return f.Close()
}

func (s *Storage) flushToStorage(filename string, isDir bool, mode os.FileMode) error {
	flags := os.O_RDWR
	if isDir {
		flags = os.O_RDONLY
	}
	f, err := s.os.OpenFile(filename, flags, mode)
	if err != nil {
		return err
	}
	if err := osSpecificSync(f, isDir); err != nil {
		return errors.Join(err, f.Close())
	}
	return f.Close()
}
