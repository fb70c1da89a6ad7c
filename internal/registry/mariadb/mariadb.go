// Package mariadb stores the student registry in MariaDB or MySQL, with face
// descriptors serialized as JSON arrays.
package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new MariaDB connection pool. Time values are always parsed.
func NewPool(dsn string) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MariaDB DSN: %w", err)
	}
	cfg.ParseTime = true

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS students (
	position      BIGINT NOT NULL AUTO_INCREMENT UNIQUE,
	student_id    VARCHAR(64) NOT NULL PRIMARY KEY,
	first_name    VARCHAR(255) NOT NULL DEFAULT '',
	last_name     VARCHAR(255) NOT NULL DEFAULT '',
	balance       DOUBLE NOT NULL DEFAULT 0,
	image_path    VARCHAR(1024) NOT NULL DEFAULT '',
	face_encoding LONGTEXT NULL,
	created_at    DATETIME(6) NOT NULL,
	updated_at    DATETIME(6) NOT NULL
) DEFAULT CHARSET = utf8mb4`

// EnsureSchema creates the students table if it does not exist.
func (p *Pool) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating students table: %w", err)
	}
	return nil
}

// Open connects to MariaDB, creates the schema and returns the student repository.
func Open(ctx context.Context, dsn string) (*StudentRepository, error) {
	pool, err := NewPool(dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return NewStudentRepository(pool), nil
}
