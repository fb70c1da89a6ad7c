package mariadb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/cantine/internal/face"
	"github.com/kozaktomas/cantine/internal/registry"
)

const studentColumns = `student_id, first_name, last_name, balance, image_path, face_encoding, created_at, updated_at`

// StudentRepository implements registry.Repository on MariaDB.
type StudentRepository struct {
	pool *Pool
	now  func() time.Time
}

// NewStudentRepository creates a repository on an open pool.
func NewStudentRepository(pool *Pool) *StudentRepository {
	return &StudentRepository{pool: pool, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(row rowScanner) (*registry.Student, error) {
	var s registry.Student
	var enc sql.NullString
	if err := row.Scan(&s.StudentID, &s.FirstName, &s.LastName, &s.Balance, &s.ImagePath, &enc, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if enc.Valid && enc.String != "" {
		var d face.Descriptor
		if err := json.Unmarshal([]byte(enc.String), &d); err != nil {
			return nil, fmt.Errorf("decoding face encoding of %s: %w", s.StudentID, err)
		}
		s.FaceEncoding = d
	}
	return &s, nil
}

func encodingArg(d face.Descriptor) (any, error) {
	if len(d) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encoding face descriptor: %w", err)
	}
	return string(data), nil
}

// List returns every student in insertion order.
func (r *StudentRepository) List(ctx context.Context) ([]registry.Student, error) {
	rows, err := r.pool.db.QueryContext(ctx, `SELECT `+studentColumns+` FROM students ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var students []registry.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return students, nil
}

// Get returns the student with id, or nil if absent.
func (r *StudentRepository) Get(ctx context.Context, id string) (*registry.Student, error) {
	row := r.pool.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE student_id = ?`, id)
	s, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	return s, nil
}

// Upsert replaces the student inside a transaction. REPLACE assigns a new
// position, so a replaced record moves to the end.
func (r *StudentRepository) Upsert(ctx context.Context, s registry.Student) error {
	if err := s.Validate(); err != nil {
		return err
	}
	enc, err := encodingArg(s.FaceEncoding)
	if err != nil {
		return err
	}

	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	now := r.now().UTC()
	createdAt := now
	err = tx.QueryRowContext(ctx, `SELECT created_at FROM students WHERE student_id = ? FOR UPDATE`, s.StudentID).Scan(&createdAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("lock student: %w", err)
	}

	_, err = tx.ExecContext(ctx, `REPLACE INTO students (`+studentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.StudentID, s.FirstName, s.LastName, s.Balance, s.ImagePath, enc, createdAt, now)
	if err != nil {
		return fmt.Errorf("replace student: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// Delete removes the student with id.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.pool.db.ExecContext(ctx, `DELETE FROM students WHERE student_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", registry.ErrNotFound, id)
	}
	return nil
}

// DecrementBalance subtracts amount, clamping at zero.
func (r *StudentRepository) DecrementBalance(ctx context.Context, id string, amount float64) (*registry.Student, error) {
	if err := registry.ValidateAmount(amount); err != nil {
		return nil, err
	}
	return r.updateBalance(ctx, `GREATEST(balance - ?, 0)`, id, amount)
}

// Credit adds amount to the balance.
func (r *StudentRepository) Credit(ctx context.Context, id string, amount float64) (*registry.Student, error) {
	if err := registry.ValidateAmount(amount); err != nil {
		return nil, err
	}
	return r.updateBalance(ctx, `balance + ?`, id, amount)
}

// updateBalance applies expr and reads the record back in one transaction.
func (r *StudentRepository) updateBalance(ctx context.Context, expr, id string, amount float64) (*registry.Student, error) {
	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin balance update: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE students SET balance = `+expr+`, updated_at = ? WHERE student_id = ?`,
		amount, r.now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}
	// MySQL reports changed rows, so a zero debit on an empty balance also yields 0.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM students WHERE student_id = ?)`, id).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check student: %w", err)
		}
		if !exists {
			return nil, nil
		}
	}

	s, err := scanStudent(tx.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE student_id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("read updated student: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit balance update: %w", err)
	}
	return s, nil
}

// Close closes the underlying pool.
func (r *StudentRepository) Close() error {
	return r.pool.Close()
}
