package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// FileStore keeps the registry as a JSON array in a single file.
// Writes go to a temporary file that is renamed over the original.
type FileStore struct {
	path string
	mu   sync.RWMutex
	now  func() time.Time
	rev  atomic.Uint64
}

// OpenFile opens the registry at path, creating an empty one if needed.
func OpenFile(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating registry directory: %w", err)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
			return nil, fmt.Errorf("creating registry file: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("checking registry file: %w", err)
	}
	return &FileStore{path: path, now: time.Now}, nil
}

// Revision increases after every successful write.
func (f *FileStore) Revision() uint64 {
	return f.rev.Load()
}

// Path returns the registry file location.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) load() ([]Student, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("reading registry: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var students []Student
	if err := json.Unmarshal(data, &students); err != nil {
		return nil, fmt.Errorf("parsing registry %s: %w", f.path, err)
	}
	return students, nil
}

func (f *FileStore) save(students []Student) error {
	if students == nil {
		students = []Student{}
	}
	data, err := json.MarshalIndent(students, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".students-*.json")
	if err != nil {
		return fmt.Errorf("creating temp registry: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp registry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp registry: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replacing registry: %w", err)
	}
	f.rev.Add(1)
	return nil
}

// List returns every student in file order.
func (f *FileStore) List(ctx context.Context) ([]Student, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.load()
}

// Get returns the student with id, or nil if absent.
func (f *FileStore) Get(ctx context.Context, id string) (*Student, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	students, err := f.load()
	if err != nil {
		return nil, err
	}
	for i := range students {
		if students[i].StudentID == id {
			return &students[i], nil
		}
	}
	return nil, nil
}

// Upsert replaces any record with the same id and appends s at the end.
func (f *FileStore) Upsert(ctx context.Context, s Student) error {
	if err := s.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	students, err := f.load()
	if err != nil {
		return err
	}
	now := f.now().UTC()
	filtered := students[:0]
	for _, existing := range students {
		if existing.StudentID == s.StudentID {
			if s.CreatedAt.IsZero() {
				s.CreatedAt = existing.CreatedAt
			}
			continue
		}
		filtered = append(filtered, existing)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	return f.save(append(filtered, s.Clone()))
}

// Delete removes the student with id.
func (f *FileStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	students, err := f.load()
	if err != nil {
		return err
	}
	for i := range students {
		if students[i].StudentID == id {
			return f.save(append(students[:i], students[i+1:]...))
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// DecrementBalance subtracts amount from the balance, never going below zero.
func (f *FileStore) DecrementBalance(ctx context.Context, id string, amount float64) (*Student, error) {
	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}
	return f.update(id, func(s *Student) { s.Balance = Debit(s.Balance, amount) })
}

// Credit adds amount to the balance.
func (f *FileStore) Credit(ctx context.Context, id string, amount float64) (*Student, error) {
	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}
	return f.update(id, func(s *Student) { s.Balance += amount })
}

func (f *FileStore) update(id string, apply func(*Student)) (*Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	students, err := f.load()
	if err != nil {
		return nil, err
	}
	for i := range students {
		if students[i].StudentID != id {
			continue
		}
		apply(&students[i])
		students[i].UpdatedAt = f.now().UTC()
		if err := f.save(students); err != nil {
			return nil, err
		}
		updated := students[i].Clone()
		return &updated, nil
	}
	return nil, nil
}

// Close is a no-op; every operation opens and closes the file itself.
func (f *FileStore) Close() error {
	return nil
}
