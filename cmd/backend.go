package cmd

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"

	"github.com/kozaktomas/cantine/internal/access"
	"github.com/kozaktomas/cantine/internal/camera"
	"github.com/kozaktomas/cantine/internal/camera/opencv"
	"github.com/kozaktomas/cantine/internal/camera/v4l2"
	"github.com/kozaktomas/cantine/internal/config"
	"github.com/kozaktomas/cantine/internal/face"
	"github.com/kozaktomas/cantine/internal/face/cascade"
	"github.com/kozaktomas/cantine/internal/matcher"
	"github.com/kozaktomas/cantine/internal/registry"
	"github.com/kozaktomas/cantine/internal/registry/mariadb"
	"github.com/kozaktomas/cantine/internal/registry/postgres"
	"github.com/kozaktomas/cantine/internal/students"
	"github.com/kozaktomas/cantine/internal/web/handlers"
)

var errNoDetector = errors.New("face detector not loaded for this command")

// app holds the services shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	repo     registry.Repository
	students *students.Service
	matcher  *matcher.Matcher
	detector io.Closer // nil unless the cascade was loaded
}

// openApp loads the configuration and opens the registry. The Haar cascade is
// only loaded when withDetector is set, so bookkeeping commands work without it.
func openApp(ctx context.Context, withDetector bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	repo, err := openRegistry(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, repo: repo}

	var detector face.Detector = face.DetectorFunc(func(*image.Gray) ([]face.Region, error) {
		return nil, errNoDetector
	})
	if withDetector {
		cd, err := cascade.New(cfg.Detector.CascadePath, face.DetectorParams{
			ScaleFactor:  cfg.Detector.ScaleFactor,
			MinNeighbors: cfg.Detector.MinNeighbors,
			MinSize:      cfg.Detector.MinFaceSize,
			MaxSize:      cfg.Detector.MaxFaceSize,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("loading face detector: %w", err)
		}
		detector, a.detector = cd, cd
	}

	enc, err := face.NewEncoder(detector, face.EncoderOptions{
		Width:         cfg.Encoder.Width,
		Height:        cfg.Encoder.Height,
		Interpolation: cfg.Encoder.Interpolation,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating encoder: %w", err)
	}

	a.matcher, err = newMatcher(cfg, repo, logger, enc.Size())
	if err != nil {
		a.Close()
		return nil, err
	}

	a.students = students.NewService(repo, enc, a.matcher, students.Options{
		ImagesDir: cfg.Registry.ImagesDir,
		Logger:    logger,
	})
	return a, nil
}

// Close releases the face detector and the registry.
func (a *app) Close() {
	if a.detector != nil {
		if err := a.detector.Close(); err != nil {
			a.logger.Warn("closing face detector", "error", err)
		}
		a.detector = nil
	}
	if err := a.repo.Close(); err != nil {
		a.logger.Warn("closing registry", "error", err)
	}
}

func openRegistry(ctx context.Context, cfg *config.Config) (registry.Repository, error) {
	switch cfg.Registry.Backend {
	case "postgres":
		repo, err := postgres.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("opening postgres registry: %w", err)
		}
		return repo, nil
	case "mariadb":
		repo, err := mariadb.Open(ctx, cfg.MariaDB.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening mariadb registry: %w", err)
		}
		return repo, nil
	default:
		repo, err := registry.OpenFile(cfg.Registry.Path)
		if err != nil {
			return nil, fmt.Errorf("opening registry file: %w", err)
		}
		return repo, nil
	}
}

func newMatcher(cfg *config.Config, repo registry.Reader, logger *slog.Logger, dims int) (*matcher.Matcher, error) {
	strategy, err := matcher.ParseStrategy(cfg.Matcher.Strategy)
	if err != nil {
		return nil, err
	}
	kind, err := matcher.ParseIndexKind(cfg.Matcher.Index)
	if err != nil {
		return nil, err
	}
	store := matcher.NewStore(repo, matcher.StoreOptions{
		TTL:        cfg.Matcher.SnapshotTTL(),
		Kind:       kind,
		Dims:       dims,
		Candidates: cfg.Matcher.HNSWCandidates,
		Logger:     logger,
	})
	return matcher.New(store, strategy, logger), nil
}

// cameraSource describes the configured capture device.
func (a *app) cameraSource() camera.Source {
	c := a.cfg.Camera
	return camera.Source{
		Driver:        c.Driver,
		Index:         c.Index,
		Device:        c.Device,
		Width:         c.Width,
		Height:        c.Height,
		FallbackImage: c.FallbackImage,
	}
}

// cameraOpener picks the device driver. With a fallback image configured, a
// camera that fails to open is replaced by the still image.
func (a *app) cameraOpener() camera.Opener {
	var primary camera.Opener
	switch a.cfg.Camera.Driver {
	case "still":
		return camera.StillOpener
	case "v4l2":
		primary = v4l2.Opener
	default:
		primary = opencv.Opener
	}
	if a.cfg.Camera.FallbackImage != "" {
		return camera.WithFallback(primary)
	}
	return primary
}

// captureFunc takes one enrollment snapshot after the configured warm-up.
func (a *app) captureFunc() handlers.CaptureFunc {
	opener, src, warmUp := a.cameraOpener(), a.cameraSource(), a.cfg.Camera.Warmup()
	return func(ctx context.Context) <-chan camera.CaptureResult {
		return camera.Capture(ctx, opener, src, warmUp)
	}
}

// accessManager builds sessions that each own a fresh camera handle.
func (a *app) accessManager() (*access.Manager, error) {
	sessCfg, err := access.NewConfig(a.cfg)
	if err != nil {
		return nil, err
	}
	opener, src := a.cameraOpener(), a.cameraSource()
	return access.NewManager(func() (*access.Session, error) {
		handle := camera.NewHandle(opener, a.logger)
		return access.NewSession(sessCfg, handle, src, a.students.Encoder(), a.students, access.Options{Logger: a.logger}), nil
	}), nil
}
