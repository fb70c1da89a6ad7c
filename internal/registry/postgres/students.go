// Package postgres stores the student registry in PostgreSQL, with face
// descriptors in a pgvector column.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/cantine/internal/face"
	"github.com/kozaktomas/cantine/internal/registry"
	"github.com/pgvector/pgvector-go"
)

const studentColumns = `student_id, first_name, last_name, balance, image_path, face_encoding, created_at, updated_at`

// StudentRepository implements registry.Repository on PostgreSQL.
type StudentRepository struct {
	pool *Pool
}

// NewStudentRepository creates a repository on an open pool.
func NewStudentRepository(pool *Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(row rowScanner) (*registry.Student, error) {
	var s registry.Student
	var enc *pgvector.Vector
	if err := row.Scan(&s.StudentID, &s.FirstName, &s.LastName, &s.Balance, &s.ImagePath, &enc, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if enc != nil {
		s.FaceEncoding = face.DescriptorFromFloat32(enc.Slice())
	}
	return &s, nil
}

// encodingArg returns a NULL for unenrolled students.
func encodingArg(d face.Descriptor) any {
	if len(d) == 0 {
		return nil
	}
	return pgvector.NewVector(d.Float32())
}

// List returns every student in insertion order.
func (r *StudentRepository) List(ctx context.Context) ([]registry.Student, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+studentColumns+` FROM students ORDER BY position`)
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
	s, err := scanStudent(r.pool.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE student_id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	return s, nil
}

// Upsert inserts or replaces a student. A replaced record takes a new position at the end.
func (r *StudentRepository) Upsert(ctx context.Context, s registry.Student) error {
	if err := s.Validate(); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO students (student_id, first_name, last_name, balance, image_path, face_encoding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (student_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			balance = EXCLUDED.balance,
			image_path = EXCLUDED.image_path,
			face_encoding = EXCLUDED.face_encoding,
			position = nextval(pg_get_serial_sequence('students', 'position')),
			updated_at = NOW()
	`, s.StudentID, s.FirstName, s.LastName, s.Balance, s.ImagePath, encodingArg(s.FaceEncoding))
	if err != nil {
		return fmt.Errorf("upsert student: %w", err)
	}
	return nil
}

// Delete removes the student with id.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.pool.Exec(ctx, `DELETE FROM students WHERE student_id = $1`, id)
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

// DecrementBalance subtracts amount in a single statement, clamping at zero.
func (r *StudentRepository) DecrementBalance(ctx context.Context, id string, amount float64) (*registry.Student, error) {
	if err := registry.ValidateAmount(amount); err != nil {
		return nil, err
	}
	return r.updateBalance(ctx, `GREATEST(balance - $2, 0)`, id, amount)
}

// Credit adds amount to the balance.
func (r *StudentRepository) Credit(ctx context.Context, id string, amount float64) (*registry.Student, error) {
	if err := registry.ValidateAmount(amount); err != nil {
		return nil, err
	}
	return r.updateBalance(ctx, `balance + $2`, id, amount)
}

func (r *StudentRepository) updateBalance(ctx context.Context, expr, id string, amount float64) (*registry.Student, error) {
	query := `UPDATE students SET balance = ` + expr + `, updated_at = NOW()
		WHERE student_id = $1 RETURNING ` + studentColumns
	s, err := scanStudent(r.pool.QueryRow(ctx, query, id, amount))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}
	return s, nil
}

// Close closes the underlying pool.
func (r *StudentRepository) Close() error {
	return r.pool.Close()
}
