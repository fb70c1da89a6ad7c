// Package mock provides an in-memory registry for tests.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/kozaktomas/cantine/internal/registry"
)

// Registry is an in-memory implementation of registry.Repository.
type Registry struct {
	mu       sync.RWMutex
	students []registry.Student

	// Error injection
	ListError      error
	GetError       error
	UpsertError    error
	DeleteError    error
	DecrementError error
	CreditError    error

	// Call counters
	DecrementCalls int
	UpsertCalls    int
}

// NewRegistry creates a registry pre-filled with students, in order.
func NewRegistry(students ...registry.Student) *Registry {
	r := &Registry{}
	for _, s := range students {
		r.students = append(r.students, s.Clone())
	}
	return r
}

func (r *Registry) indexOf(id string) int {
	for i := range r.students {
		if r.students[i].StudentID == id {
			return i
		}
	}
	return -1
}

// List returns a copy of every student in order.
func (r *Registry) List(ctx context.Context) ([]registry.Student, error) {
	if r.ListError != nil {
		return nil, r.ListError
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]registry.Student, len(r.students))
	for i, s := range r.students {
		out[i] = s.Clone()
	}
	return out, nil
}

// Get returns a copy of the student, or nil if absent.
func (r *Registry) Get(ctx context.Context, id string) (*registry.Student, error) {
	if r.GetError != nil {
		return nil, r.GetError
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOf(id); i >= 0 {
		s := r.students[i].Clone()
		return &s, nil
	}
	return nil, nil
}

// Upsert replaces or appends the student.
func (r *Registry) Upsert(ctx context.Context, s registry.Student) error {
	if r.UpsertError != nil {
		return r.UpsertError
	}
	if err := s.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.UpsertCalls++
	if i := r.indexOf(s.StudentID); i >= 0 {
		r.students = append(r.students[:i], r.students[i+1:]...)
	}
	r.students = append(r.students, s.Clone())
	return nil
}

// Delete removes the student.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if r.DeleteError != nil {
		return r.DeleteError
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", registry.ErrNotFound, id)
	}
	r.students = append(r.students[:i], r.students[i+1:]...)
	return nil
}

// DecrementBalance subtracts amount, clamping at zero.
func (r *Registry) DecrementBalance(ctx context.Context, id string, amount float64) (*registry.Student, error) {
	if r.DecrementError != nil {
		return nil, r.DecrementError
	}
	if err := registry.ValidateAmount(amount); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.DecrementCalls++
	i := r.indexOf(id)
	if i < 0 {
		return nil, nil
	}
	r.students[i].Balance = registry.Debit(r.students[i].Balance, amount)
	s := r.students[i].Clone()
	return &s, nil
}

// Credit adds amount to the balance.
func (r *Registry) Credit(ctx context.Context, id string, amount float64) (*registry.Student, error) {
	if r.CreditError != nil {
		return nil, r.CreditError
	}
	if err := registry.ValidateAmount(amount); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(id)
	if i < 0 {
		return nil, nil
	}
	r.students[i].Balance += amount
	s := r.students[i].Clone()
	return &s, nil
}

// Close is a no-op.
func (r *Registry) Close() error {
	return nil
}

// Balance returns the current balance of id, or -1 if absent.
func (r *Registry) Balance(id string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOf(id); i >= 0 {
		return r.students[i].Balance
	}
	return -1
}
