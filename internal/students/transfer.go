package students

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/kozaktomas/cantine/internal/registry"
)

// ImportOptions controls Import.
type ImportOptions struct {
	// Reencode computes descriptors for records that have an image but no encoding.
	Reencode bool
	// BaseDir resolves relative image paths; defaults to the working directory.
	BaseDir string
	// OnRecord is called after each record is processed.
	OnRecord func(id string, err error)
}

// ImportReport summarizes an import.
type ImportReport struct {
	Total     int      `json:"total"`
	Imported  int      `json:"imported"`
	Reencoded int      `json:"reencoded"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
}

// Import upserts every record of a students.json array, in file order.
// Unparseable input is rejected before anything is written.
func (s *Service) Import(ctx context.Context, r io.Reader, opts ImportOptions) (*ImportReport, error) {
	var records []registry.Student
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to parse registry export: %w", err)
	}

	report := &ImportReport{Total: len(records)}
	defer s.matcher.Invalidate()

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		err := s.importOne(ctx, &rec, opts, report)
		if err != nil {
			report.Skipped++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", rec.StudentID, err))
			s.logger.Warn("skipping student during import", "student_id", rec.StudentID, "error", err)
		} else {
			report.Imported++
		}
		if opts.OnRecord != nil {
			opts.OnRecord(rec.StudentID, err)
		}
	}

	s.logger.Info("import finished",
		"total", report.Total, "imported", report.Imported, "reencoded", report.Reencoded, "skipped", report.Skipped)
	return report, nil
}

func (s *Service) importOne(ctx context.Context, rec *registry.Student, opts ImportOptions, report *ImportReport) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	reencoded := false
	if opts.Reencode && !rec.Enrolled() && rec.ImagePath != "" {
		path := rec.ImagePath
		if !filepath.IsAbs(path) && opts.BaseDir != "" {
			path = filepath.Join(opts.BaseDir, path)
		}
		desc, err := s.encoder.EncodeImage(path)
		if err != nil {
			return err
		}
		rec.FaceEncoding = desc
		reencoded = true
	}
	if err := s.repo.Upsert(ctx, *rec); err != nil {
		return err
	}
	if reencoded {
		report.Reencoded++
	}
	return nil
}

// Export writes the whole registry as an indented JSON array.
func (s *Service) Export(ctx context.Context, w io.Writer) (int, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return 0, err
	}
	if all == nil {
		all = []registry.Student{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(all); err != nil {
		return 0, fmt.Errorf("failed to write export: %w", err)
	}
	return len(all), nil
}
