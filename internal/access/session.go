// Package access runs the turnstile recognition loop: read a frame, detect and
// encode every face, match it, and debit recognized students at most once per
// cooldown window.
package access

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/cantine/internal/camera"
	"github.com/kozaktomas/cantine/internal/config"
	"github.com/kozaktomas/cantine/internal/constants"
	"github.com/kozaktomas/cantine/internal/face"
	"github.com/kozaktomas/cantine/internal/matcher"
	"github.com/kozaktomas/cantine/internal/registry"
)

var (
	// ErrSessionStopped is returned by operations on a stopped session.
	ErrSessionStopped = errors.New("session stopped")
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrNoFrame is returned by Preview before the first processed frame.
	ErrNoFrame = errors.New("no frame yet")
)

// State is the loop phase reported by Session.State.
type State string

const (
	StateIdle              State = "idle"
	StateDetecting         State = "detecting"
	StatePerFaceEvaluation State = "evaluating"
	StateCooldown          State = "cooldown"
)

// Policy decides what happens when a recognized student cannot pay the full amount.
type Policy string

const (
	// PolicyDeny refuses access without debiting when balance < debit amount.
	PolicyDeny Policy = "deny"
	// PolicyDebit always debits (clamping at zero) and reports insufficient when nothing is left.
	PolicyDebit Policy = "debit"
)

// ParsePolicy validates a policy name. Empty means deny.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyDeny:
		return PolicyDeny, nil
	case PolicyDebit:
		return PolicyDebit, nil
	default:
		return "", fmt.Errorf("unknown insufficient balance policy %q", s)
	}
}

// Decision is the per-face outcome of a tick.
type Decision string

const (
	DecisionGranted            Decision = "granted"
	DecisionInsufficient       Decision = "insufficient"
	DecisionDeniedInsufficient Decision = "denied_insufficient"
	DecisionRecognized         Decision = "recognized" // within cooldown, no debit
	DecisionUnrecognized       Decision = "unrecognized"
	DecisionError              Decision = "error"
)

// Config holds the loop tunables.
type Config struct {
	TickInterval   time.Duration
	Cooldown       time.Duration
	Idle           time.Duration
	DebitAmount    float64
	Tolerance      float64
	Policy         Policy
	PreviewQuality int
}

// NewConfig extracts the loop tunables from the application config.
func NewConfig(cfg *config.Config) (Config, error) {
	policy, err := ParsePolicy(cfg.Access.InsufficientPolicy)
	if err != nil {
		return Config{}, err
	}
	return Config{
		TickInterval:   cfg.Access.TickInterval(),
		Cooldown:       cfg.Access.Cooldown(),
		Idle:           cfg.Access.Idle(),
		DebitAmount:    cfg.Access.DebitAmount,
		Tolerance:      cfg.Matcher.StreamTolerance,
		Policy:         policy,
		PreviewQuality: cfg.Access.PreviewQuality,
	}, nil
}

// Identity is the recognized student as shown to the operator.
type Identity struct {
	StudentID string  `json:"student_id"`
	Name      string  `json:"name"`
	Balance   float64 `json:"balance"`
	Distance  float64 `json:"distance"`
}

// FaceResult is what happened to one detected face.
type FaceResult struct {
	Region   face.Region `json:"region"`
	Identity *Identity   `json:"identity,omitempty"`
	Decision Decision    `json:"decision"`
}

// FrameResult summarizes one tick.
type FrameResult struct {
	Seq       uint64       `json:"seq"`
	At        time.Time    `json:"at"`
	Faces     []FaceResult `json:"faces"`
	Status    string       `json:"status"`
	LastEvent string       `json:"last_event"`
	Err       error        `json:"-"`
}

// Students is the part of the student service the loop needs.
type Students interface {
	Match(ctx context.Context, query face.Descriptor, tolerance float64) (*matcher.Match, error)
	Debit(ctx context.Context, id string, amount float64) (*registry.Student, error)
	Get(ctx context.Context, id string) (*registry.Student, error)
}

// Options carries optional collaborators.
type Options struct {
	Logger *slog.Logger
	Now    func() time.Time
}

// Snapshot is the externally visible session state.
type Snapshot struct {
	ID        string    `json:"id"`
	State     State     `json:"state"`
	Status    string    `json:"status"`
	LastEvent string    `json:"last_event"`
	Frames    uint64    `json:"frames"`
	Debits    int       `json:"debits"`
	StartedAt time.Time `json:"started_at"`
	Running   bool      `json:"running"`
	Camera    string    `json:"camera"`
}

// Session owns one camera for the duration of a turnstile run.
type Session struct {
	EventBroadcaster

	id       string
	cfg      Config
	handle   *camera.Handle
	source   camera.Source
	encoder  *face.Encoder
	students Students
	logger   *slog.Logger
	now      func() time.Time

	tickMu sync.Mutex // serializes ticks

	mu           sync.RWMutex
	state        State
	status       string
	lastEvent    string
	lastDecision time.Time
	lastFaceSeen time.Time
	seq          uint64
	debits       int
	preview      *image.RGBA
	sentStatus   string
	startedAt    time.Time
	started      bool

	stopped atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSession creates an idle session. The camera is opened by Start.
func NewSession(cfg Config, handle *camera.Handle, src camera.Source, encoder *face.Encoder, students Students, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 50 * time.Millisecond
	}
	if cfg.PreviewQuality <= 0 {
		cfg.PreviewQuality = constants.DefaultPreviewQuality
	}
	id := uuid.NewString()
	return &Session{
		id:        id,
		cfg:       cfg,
		handle:    handle,
		source:    src,
		encoder:   encoder,
		students:  students,
		logger:    opts.Logger.With("session", id),
		now:       opts.Now,
		state:     StateIdle,
		status:    StatusWaiting,
		lastEvent: NoEventYet,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Start opens the camera and runs the tick loop in the background until Stop.
// A camera that cannot be opened yields camera.ErrCameraUnavailable.
func (s *Session) Start(ctx context.Context) error {
	if s.stopped.Load() {
		return ErrSessionStopped
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.startedAt = s.now()
	s.mu.Unlock()

	if err := s.handle.Open(ctx, s.source); err != nil {
		s.logger.Error("failed to start access session", "error", err)
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Run(runCtx)
	}()

	s.logger.Info("access session started",
		"camera", s.source.String(), "tick", s.cfg.TickInterval, "cooldown", s.cfg.Cooldown, "policy", string(s.cfg.Policy))
	return nil
}

// Run ticks every TickInterval until ctx is done or the session is stopped.
func (s *Session) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		if s.stopped.Load() {
			return
		}
		s.Tick(ctx, s.now())

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop ends the loop, waits for the running tick and releases the camera.
// Calling Stop more than once is a no-op.
func (s *Session) Stop() error {
	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	// Wait for a Tick invoked outside Run.
	s.tickMu.Lock()
	err := s.handle.Release()
	s.tickMu.Unlock()

	s.mu.Lock()
	s.state = StateIdle
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.EventBroadcaster.Close(Event{Type: EventStopped, Message: "session stopped", Data: snap})
	s.logger.Info("access session stopped", "frames", snap.Frames, "debits", snap.Debits)
	return err
}

// Stopped reports whether Stop has been called.
func (s *Session) Stopped() bool {
	return s.stopped.Load()
}

// Tick processes one frame at time now.
func (s *Session) Tick(ctx context.Context, now time.Time) FrameResult {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	if s.stopped.Load() {
		return FrameResult{At: now, Err: ErrSessionStopped}
	}

	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.state = StateDetecting
	s.mu.Unlock()

	frame, err := s.handle.Read(ctx)
	if err != nil {
		s.logger.Warn("camera read failed", "error", err)
		s.setStatus(StatusCameraError)
		s.finishTick(now)
		s.SendEvent(Event{Type: EventError, Message: StatusCameraError})
		return s.result(seq, now, nil, err)
	}

	encoded, err := s.encoder.EncodeAll(frame)
	if err != nil {
		s.logger.Warn("face encoding failed", "error", err)
		s.setStatus(StatusDetectionError)
		s.finishTick(now)
		s.SendEvent(Event{Type: EventError, Message: StatusDetectionError})
		return s.result(seq, now, nil, err)
	}

	var faces []FaceResult
	if len(encoded) == 0 {
		s.mu.Lock()
		if now.Sub(s.lastFaceSeen) > s.cfg.Idle {
			s.status = StatusWaiting
		}
		s.mu.Unlock()
	} else {
		s.mu.Lock()
		s.lastFaceSeen = now
		s.state = StatePerFaceEvaluation
		s.mu.Unlock()

		faces = make([]FaceResult, 0, len(encoded))
		for _, enc := range encoded {
			faces = append(faces, s.evaluate(ctx, now, enc))
		}
	}

	s.storePreview(frame, faces)
	s.finishTick(now)
	return s.result(seq, now, faces, nil)
}

func (s *Session) evaluate(ctx context.Context, now time.Time, enc face.Encoded) FaceResult {
	res := FaceResult{Region: enc.Region, Decision: DecisionUnrecognized}

	m, err := s.students.Match(ctx, enc.Descriptor, s.cfg.Tolerance)
	if err != nil {
		s.logger.Warn("matching failed", "error", err)
		s.setStatus(StatusMatchError)
		s.SendEvent(Event{Type: EventError, Message: StatusMatchError})
		res.Decision = DecisionError
		return res
	}

	if m == nil {
		s.mu.Lock()
		if now.Sub(s.lastDecision) > s.cfg.Cooldown {
			s.status = StatusUnrecognized
		}
		s.mu.Unlock()
		return res
	}

	st := m.Student
	res.Identity = &Identity{
		StudentID: st.StudentID,
		Name:      st.DisplayName(),
		Balance:   st.Balance,
		Distance:  m.Distance,
	}

	s.mu.RLock()
	inCooldown := now.Sub(s.lastDecision) <= s.cfg.Cooldown
	s.mu.RUnlock()
	if inCooldown {
		res.Decision = DecisionRecognized
		s.setStatus(statusRecognized(res.Identity.Name, st.Balance))
		return res
	}

	res.Decision = s.decide(ctx, now, &st, res.Identity)
	return res
}

// decide applies the debit policy for a student recognized outside the cooldown window.
func (s *Session) decide(ctx context.Context, now time.Time, st *registry.Student, id *Identity) Decision {
	name := id.Name

	if s.cfg.Policy == PolicyDeny {
		current := st.Balance
		if fresh, err := s.students.Get(ctx, st.StudentID); err == nil && fresh != nil {
			current = fresh.Balance
		}
		if current < s.cfg.DebitAmount {
			id.Balance = current
			s.record(now, statusInsufficient(name, current), name, false)
			s.logger.Info("access denied, insufficient balance", "student_id", st.StudentID, "balance", current)
			s.SendEvent(Event{Type: EventDecision, Message: string(DecisionDeniedInsufficient), Data: id})
			return DecisionDeniedInsufficient
		}
	}

	updated, err := s.students.Debit(ctx, st.StudentID, s.cfg.DebitAmount)
	if err != nil {
		s.logger.Error("debit failed", "student_id", st.StudentID, "error", err)
		s.setStatus(statusRegistryError(name))
		return DecisionError
	}
	balance := st.Balance
	if updated != nil {
		balance = updated.Balance
	}
	id.Balance = balance

	decision := DecisionGranted
	status := statusGranted(name, balance)
	if s.cfg.Policy == PolicyDebit && balance <= 0 {
		decision = DecisionInsufficient
		status = statusInsufficient(name, 0)
	}
	s.record(now, status, name, true)
	s.logger.Info("access decision", "student_id", st.StudentID, "decision", string(decision),
		"balance", balance, "distance", id.Distance)
	s.SendEvent(Event{Type: EventDecision, Message: string(decision), Data: id})
	return decision
}

func (s *Session) record(now time.Time, status, name string, debited bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDecision = now
	s.status = status
	s.lastEvent = lastEvent(name, now.Format("15:04:05"))
	if debited {
		s.debits++
	}
}

func (s *Session) setStatus(status string) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *Session) finishTick(now time.Time) {
	s.mu.Lock()
	if !s.lastDecision.IsZero() && now.Sub(s.lastDecision) <= s.cfg.Cooldown {
		s.state = StateCooldown
	} else {
		s.state = StateIdle
	}
	changed := s.status != s.sentStatus
	s.sentStatus = s.status
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if changed {
		s.SendEvent(Event{Type: EventStatus, Message: snap.Status, Data: snap})
	}
}

func (s *Session) result(seq uint64, now time.Time, faces []FaceResult, err error) FrameResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return FrameResult{Seq: seq, At: now, Faces: faces, Status: s.status, LastEvent: s.lastEvent, Err: err}
}

func (s *Session) storePreview(frame image.Image, faces []FaceResult) {
	boxes := make([]face.Box, 0, len(faces))
	for _, f := range faces {
		box := face.Box{Region: f.Region, Label: constants.UnknownFaceLabel}
		if f.Identity != nil {
			box.Label = registry.RemoveDiacritics(f.Identity.Name)
			box.Recognized = true
		}
		boxes = append(boxes, box)
	}
	annotated := face.Annotate(frame, boxes)

	s.mu.Lock()
	s.preview = annotated
	s.mu.Unlock()
}

// Preview returns the last processed frame with face annotations as JPEG.
func (s *Session) Preview() ([]byte, error) {
	s.mu.RLock()
	img := s.preview
	s.mu.RUnlock()
	if img == nil {
		return nil, ErrNoFrame
	}
	var buf bytes.Buffer
	if err := face.EncodeJPEG(&buf, img, s.cfg.PreviewQuality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// State returns the current loop phase.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Status returns the operator status line.
func (s *Session) Status() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// LastEvent returns the last passage line.
func (s *Session) LastEvent() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastEvent
}

// Snapshot returns the externally visible state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ID:        s.id,
		State:     s.state,
		Status:    s.status,
		LastEvent: s.lastEvent,
		Frames:    s.seq,
		Debits:    s.debits,
		StartedAt: s.startedAt,
		Running:   s.started && !s.stopped.Load(),
		Camera:    s.source.String(),
	}
}

// Subscribe returns a channel of session events and a function that unsubscribes it.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := s.AddListener()
	return ch, func() { s.RemoveListener(ch) }
}
