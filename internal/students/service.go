// Package students implements enrollment, recognition and balance operations
// on top of a registry backend.
package students

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/kozaktomas/cantine/internal/constants"
	"github.com/kozaktomas/cantine/internal/face"
	"github.com/kozaktomas/cantine/internal/matcher"
	"github.com/kozaktomas/cantine/internal/registry"
)

// Registration holds the operator-entered fields of a new student.
type Registration struct {
	StudentID string  `json:"student_id"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Balance   float64 `json:"balance"`
}

// Service wires the registry, the encoder and the matcher together.
type Service struct {
	repo      registry.Repository
	encoder   *face.Encoder
	matcher   *matcher.Matcher
	imagesDir string
	logger    *slog.Logger
}

const pendingPrefix = ".pending-"

// Options configures a Service.
type Options struct {
	ImagesDir string // enrollment photos are copied here; empty keeps the original path
	Logger    *slog.Logger
}

// NewService creates a student service.
func NewService(repo registry.Repository, encoder *face.Encoder, m *matcher.Matcher, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		encoder:   encoder,
		matcher:   m,
		imagesDir: opts.ImagesDir,
		logger:    opts.Logger,
	}
}

// Encoder returns the descriptor encoder used for enrollment.
func (s *Service) Encoder() *face.Encoder {
	return s.encoder
}

func (r *Registration) normalize() error {
	r.StudentID = strings.TrimSpace(r.StudentID)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	if r.StudentID == "" {
		r.StudentID = uuid.NewString()
	}
	if !plainName(r.StudentID) {
		return fmt.Errorf("%w: student_id %q must not contain path separators", registry.ErrInvalidStudent, r.StudentID)
	}
	if r.Balance < 0 || math.IsNaN(r.Balance) || math.IsInf(r.Balance, 0) {
		return fmt.Errorf("%w: balance %v is negative or not finite", registry.ErrInvalidStudent, r.Balance)
	}
	return nil
}

// plainName reports whether id can be used as a file name inside the images
// directory without escaping it.
func plainName(id string) bool {
	return id != "." && id != ".." && !strings.ContainsAny(id, "/\\\x00") && filepath.Base(id) == id
}

// Register enrolls a student from the photo at imagePath. Nothing is written
// when no face is found or the image cannot be read.
func (s *Service) Register(ctx context.Context, reg Registration, imagePath string) (*registry.Student, error) {
	if err := reg.normalize(); err != nil {
		return nil, err
	}
	desc, err := s.encoder.EncodeImage(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to enroll %s: %w", reg.StudentID, err)
	}

	stored, pending := imagePath, ""
	if s.imagesDir != "" {
		stored, pending, err = s.copyImage(reg.StudentID, imagePath)
		if err != nil {
			return nil, err
		}
	}
	return s.save(ctx, reg, desc, stored, pending)
}

// RegisterFromFrame enrolls a student from a captured frame and stores the
// frame as <id>.jpg in the images directory.
func (s *Service) RegisterFromFrame(ctx context.Context, reg Registration, frame image.Image) (*registry.Student, error) {
	if err := reg.normalize(); err != nil {
		return nil, err
	}
	desc, _, err := s.encoder.EncodeFrame(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to enroll %s: %w", reg.StudentID, err)
	}

	var stored, pending string
	if s.imagesDir != "" {
		stored, pending, err = s.writeFrame(reg.StudentID, frame)
		if err != nil {
			return nil, err
		}
	}
	return s.save(ctx, reg, desc, stored, pending)
}

// save upserts the student. A staged photo at pending replaces imagePath only
// once the record is stored and is discarded otherwise.
func (s *Service) save(ctx context.Context, reg Registration, desc face.Descriptor, imagePath, pending string) (*registry.Student, error) {
	student := registry.Student{
		StudentID:    reg.StudentID,
		FirstName:    reg.FirstName,
		LastName:     reg.LastName,
		Balance:      reg.Balance,
		ImagePath:    imagePath,
		FaceEncoding: desc,
	}
	if err := s.repo.Upsert(ctx, student); err != nil {
		s.discard(pending)
		return nil, fmt.Errorf("failed to save student %s: %w", reg.StudentID, err)
	}
	if pending != "" {
		if err := os.Rename(pending, imagePath); err != nil {
			s.logger.Warn("failed to store student photo", "path", imagePath, "error", err)
			s.discard(pending)
		}
	}
	s.matcher.Invalidate()
	s.logger.Info("student enrolled", "student_id", student.StudentID, "name", student.DisplayName())

	saved, err := s.repo.Get(ctx, student.StudentID)
	if err != nil || saved == nil {
		return &student, nil
	}
	return saved, nil
}

// copyImage stages src as a temporary file in the images directory and
// returns the final photo path along with the staged file. The staged path is
// empty when src already is the final photo.
func (s *Service) copyImage(id, src string) (string, string, error) {
	ext := strings.ToLower(filepath.Ext(src))
	if ext == "" {
		ext = ".jpg"
	}
	dst := filepath.Join(s.imagesDir, id+ext)

	if abs, err := filepath.Abs(src); err == nil {
		if absDst, err := filepath.Abs(dst); err == nil && abs == absDst {
			return dst, "", nil
		}
	}

	in, err := os.Open(src)
	if err != nil {
		return "", "", fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	pending, err := s.stage(ext, func(w io.Writer) error {
		if _, err := io.Copy(w, in); err != nil {
			return fmt.Errorf("copying %s: %w", src, err)
		}
		return nil
	})
	if err != nil {
		return "", "", err
	}
	return dst, pending, nil
}

func (s *Service) writeFrame(id string, frame image.Image) (string, string, error) {
	pending, err := s.stage(".jpg", func(w io.Writer) error {
		return face.EncodeJPEG(w, frame, 95)
	})
	if err != nil {
		return "", "", err
	}
	return filepath.Join(s.imagesDir, id+".jpg"), pending, nil
}

func (s *Service) stage(ext string, write func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(s.imagesDir, 0o755); err != nil {
		return "", fmt.Errorf("creating images directory: %w", err)
	}
	out, err := os.CreateTemp(s.imagesDir, pendingPrefix+"*"+ext)
	if err != nil {
		return "", fmt.Errorf("staging photo: %w", err)
	}
	name := out.Name()
	if err := write(out); err != nil {
		out.Close()
		s.discard(name)
		return "", err
	}
	if err := out.Chmod(constants.ImageFilePerm); err != nil {
		out.Close()
		s.discard(name)
		return "", fmt.Errorf("staging photo: %w", err)
	}
	if err := out.Close(); err != nil {
		s.discard(name)
		return "", fmt.Errorf("closing %s: %w", name, err)
	}
	return name, nil
}

func (s *Service) discard(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to remove staged photo", "path", path, "error", err)
	}
}

// Match returns the student recognized from query, or nil.
func (s *Service) Match(ctx context.Context, query face.Descriptor, tolerance float64) (*matcher.Match, error) {
	return s.matcher.Match(ctx, query, tolerance)
}

// MatchFrame encodes the first face in frame and matches it. The region is
// returned even when nobody matches.
func (s *Service) MatchFrame(ctx context.Context, frame image.Image, tolerance float64) (*matcher.Match, face.Region, error) {
	desc, region, err := s.encoder.EncodeFrame(frame)
	if err != nil {
		return nil, face.Region{}, err
	}
	m, err := s.matcher.Match(ctx, desc, tolerance)
	return m, region, err
}

// Debit subtracts amount from the balance, clamping at zero. Returns nil if
// the student no longer exists.
func (s *Service) Debit(ctx context.Context, id string, amount float64) (*registry.Student, error) {
	updated, err := s.repo.DecrementBalance(ctx, id, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to debit %s: %w", id, err)
	}
	s.matcher.Invalidate()
	return updated, nil
}

// TopUp credits amount to the balance.
func (s *Service) TopUp(ctx context.Context, id string, amount float64) (*registry.Student, error) {
	updated, err := s.repo.Credit(ctx, id, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to top up %s: %w", id, err)
	}
	if updated == nil {
		return nil, fmt.Errorf("%w: %s", registry.ErrNotFound, id)
	}
	s.matcher.Invalidate()
	s.logger.Info("balance topped up", "student_id", id, "amount", amount, "balance", updated.Balance)
	return updated, nil
}

// Remove deletes a student and its stored photo.
func (s *Service) Remove(ctx context.Context, id string) error {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.matcher.Invalidate()

	if existing != nil && s.ownsImage(existing.ImagePath) {
		if err := os.Remove(existing.ImagePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove student photo", "path", existing.ImagePath, "error", err)
		}
	}
	s.logger.Info("student removed", "student_id", id)
	return nil
}

func (s *Service) ownsImage(path string) bool {
	if s.imagesDir == "" || path == "" {
		return false
	}
	rel, err := filepath.Rel(s.imagesDir, path)
	return err == nil && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}

// Get returns a student or ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*registry.Student, error) {
	st, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("%w: %s", registry.ErrNotFound, id)
	}
	return st, nil
}

// List returns students in registry order, filtered by an accent-insensitive
// name or id query when query is not empty.
func (s *Service) List(ctx context.Context, query string) ([]registry.Student, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return registry.Filter(all, query), nil
}
