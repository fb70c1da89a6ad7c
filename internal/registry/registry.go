// Package registry stores students, their prepaid balance and their enrolled
// face descriptor. Every backend gives all-or-nothing reads and writes.
package registry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kozaktomas/cantine/internal/face"
)

var (
	// ErrNotFound is returned when a student id is not registered.
	ErrNotFound = errors.New("student not found")
	// ErrInvalidStudent is returned for records that cannot be stored.
	ErrInvalidStudent = errors.New("invalid student")
	// ErrInvalidAmount is returned for negative or non-finite balance changes.
	ErrInvalidAmount = errors.New("invalid amount")
)

// Student is one registry record. An empty FaceEncoding marks an unenrolled student.
type Student struct {
	StudentID    string          `json:"student_id"`
	FirstName    string          `json:"first_name"`
	LastName     string          `json:"last_name"`
	Balance      float64         `json:"balance"`
	ImagePath    string          `json:"image_path"`
	FaceEncoding face.Descriptor `json:"face_encoding"`
	CreatedAt    time.Time       `json:"created_at,omitzero"`
	UpdatedAt    time.Time       `json:"updated_at,omitzero"`
}

// DisplayName returns "First Last".
func (s *Student) DisplayName() string {
	return s.FirstName + " " + s.LastName
}

// Enrolled reports whether the student has a face descriptor.
func (s *Student) Enrolled() bool {
	return len(s.FaceEncoding) > 0
}

// Clone returns a deep copy so callers never share descriptor storage.
func (s Student) Clone() Student {
	s.FaceEncoding = s.FaceEncoding.Clone()
	return s
}

// Validate checks the fields every backend relies on.
func (s *Student) Validate() error {
	if s.StudentID == "" {
		return fmt.Errorf("%w: student_id is required", ErrInvalidStudent)
	}
	if s.Balance < 0 || !finite(s.Balance) {
		return fmt.Errorf("%w: balance %v is negative or not finite", ErrInvalidStudent, s.Balance)
	}
	return nil
}

// Reader provides snapshot reads of the registry.
type Reader interface {
	// List returns every student in registry order.
	List(ctx context.Context) ([]Student, error)
	// Get returns the student with id, or nil if absent.
	Get(ctx context.Context, id string) (*Student, error)
}

// Writer provides atomic registry mutations.
type Writer interface {
	// Upsert inserts or replaces a student; a replaced record moves to the end of the order.
	Upsert(ctx context.Context, s Student) error
	// Delete removes a student, returning ErrNotFound if absent.
	Delete(ctx context.Context, id string) error
	// DecrementBalance subtracts amount, clamping at zero. Returns nil if id is absent.
	DecrementBalance(ctx context.Context, id string, amount float64) (*Student, error)
	// Credit adds amount to the balance. Returns nil if id is absent.
	Credit(ctx context.Context, id string, amount float64) (*Student, error)
}

// Versioned is implemented by backends that count their own writes, so caches
// can notice changes made outside the student service.
type Versioned interface {
	Revision() uint64
}

// Repository is a complete registry backend.
type Repository interface {
	Reader
	Writer
	Close() error
}

// ValidateAmount rejects negative, NaN and infinite balance changes.
func ValidateAmount(amount float64) error {
	if amount < 0 || !finite(amount) {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Debit returns balance-amount clamped at zero.
func Debit(balance, amount float64) float64 {
	return max(0, balance-amount)
}
