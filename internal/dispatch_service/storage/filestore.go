// Package storage provides the document blob store backing the dispatch
// engine. Documents live in two areas on disk: "processed" (written by the
// upstream payroll segmenter) and "sent" (terminal area for delivered
// documents).
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rhdigital/docdispatch/internal/dispatch_service/domain"
)

type Area string

const (
	AreaProcessed Area = "processed"
	AreaSent      Area = "sent"
)

// FileStore is the contract the dispatch engine consumes. Move must be
// atomic: it either relocates the file or fails cleanly with the source
// untouched.
type FileStore interface {
	List(ctx context.Context, area Area) ([]domain.DocumentFile, error)
	Stat(ctx context.Context, area Area, filename string) (domain.DocumentFile, error)
	Fetch(ctx context.Context, area Area, filename string) ([]byte, error)
	Move(ctx context.Context, filename string, from, to Area) error
	Delete(ctx context.Context, area Area, filename string) error
}

// DirStore implements FileStore over local directories. Relocation is an
// os.Rename guarded by a per-filename mutex, so no two jobs (even across
// runs) relocate the same filename concurrently.
type DirStore struct {
	dirs   map[Area]string
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewDirStore(processedDir, sentDir string, logger *slog.Logger) (*DirStore, error) {
	dirs := map[Area]string{AreaProcessed: processedDir, AreaSent: sentDir}
	for area, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s area %q: %w", area, dir, err)
		}
	}
	return &DirStore{
		dirs:   dirs,
		logger: logger.With("component", "filestore"),
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

func (s *DirStore) List(ctx context.Context, area Area) ([]domain.DocumentFile, error) {
	dir, err := s.dir(area)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s area: %w", area, err)
	}
	files := make([]domain.DocumentFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Entry vanished between ReadDir and Stat; skip it.
			continue
		}
		files = append(files, domain.DocumentFile{
			Filename:    entry.Name(),
			SizeBytes:   info.Size(),
			ProcessedAt: info.ModTime(),
		})
	}
	return files, nil
}

func (s *DirStore) Stat(ctx context.Context, area Area, filename string) (domain.DocumentFile, error) {
	path, err := s.path(area, filename)
	if err != nil {
		return domain.DocumentFile{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.DocumentFile{}, domain.ErrFileNotFound
		}
		return domain.DocumentFile{}, err
	}
	return domain.DocumentFile{
		Filename:    filename,
		SizeBytes:   info.Size(),
		ProcessedAt: info.ModTime(),
	}, nil
}

func (s *DirStore) Fetch(ctx context.Context, area Area, filename string) ([]byte, error) {
	path, err := s.path(area, filename)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrFileNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *DirStore) Move(ctx context.Context, filename string, from, to Area) error {
	src, err := s.path(from, filename)
	if err != nil {
		return err
	}
	dst, err := s.path(to, filename)
	if err != nil {
		return err
	}

	lock := s.fileLock(filename)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.ErrFileNotFound
		}
		return err
	}
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("destination already holds %q in %s area", filename, to)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to move %q from %s to %s: %w", filename, from, to, err)
	}
	s.logger.Debug("document relocated", "filename", filename, "from", string(from), "to", string(to))
	return nil
}

func (s *DirStore) Delete(ctx context.Context, area Area, filename string) error {
	path, err := s.path(area, filename)
	if err != nil {
		return err
	}
	lock := s.fileLock(filename)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.ErrFileNotFound
		}
		return err
	}
	s.logger.Info("document deleted", "filename", filename, "area", string(area))
	return nil
}

func (s *DirStore) dir(area Area) (string, error) {
	dir, ok := s.dirs[area]
	if !ok {
		return "", fmt.Errorf("unknown document area %q", area)
	}
	return dir, nil
}

func (s *DirStore) path(area Area, filename string) (string, error) {
	dir, err := s.dir(area)
	if err != nil {
		return "", err
	}
	// Filenames come from API callers; keep them inside the area.
	if filename == "" || filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		return "", fmt.Errorf("invalid document filename %q", filename)
	}
	return filepath.Join(dir, filename), nil
}

// fileLock returns the mutex guarding filename. Locks are never released from
// the map; the set is bounded by the number of distinct documents seen.
func (s *DirStore) fileLock(filename string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[filename]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[filename] = lock
	}
	return lock
}
