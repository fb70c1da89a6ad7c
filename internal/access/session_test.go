package access

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kozaktomas/cantine/internal/camera"
	"github.com/kozaktomas/cantine/internal/face"
	"github.com/kozaktomas/cantine/internal/matcher"
	"github.com/kozaktomas/cantine/internal/registry"
	"github.com/kozaktomas/cantine/internal/registry/mock"
	"github.com/kozaktomas/cantine/internal/students"
)

var (
	t0         = time.Date(2024, 9, 2, 12, 0, 0, 0, time.UTC)
	faceRegion = face.Region{X: 8, Y: 8, Width: 32, Height: 32}
)

type fakeDevice struct {
	frame  image.Image
	fail   atomic.Bool
	closed atomic.Int32
}

func (d *fakeDevice) Read(ctx context.Context) (image.Image, error) {
	if d.fail.Load() {
		return nil, errors.New("device unplugged")
	}
	return d.frame, nil
}

func (d *fakeDevice) Close() error {
	d.closed.Add(1)
	return nil
}

type harness struct {
	reg      *mock.Registry
	device   *fakeDevice
	handle   *camera.Handle
	encoder  *face.Encoder
	sess     *Session
	faces     atomic.Bool
	detectErr atomic.Bool
	openFail  bool
}

func portrait() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := range 64 {
		for x := range 64 {
			img.SetGray(x, y, color.Gray{Y: uint8((x*7 + y*3) % 256)})
		}
	}
	return img
}

func newHarness(t *testing.T, cfg Config, enrolled ...registry.Student) *harness {
	t.Helper()
	h := &harness{device: &fakeDevice{frame: portrait()}}
	h.faces.Store(true)

	detector := face.DetectorFunc(func(*image.Gray) ([]face.Region, error) {
		if h.detectErr.Load() {
			return nil, errors.New("cascade failure")
		}
		if h.faces.Load() {
			return []face.Region{faceRegion}, nil
		}
		return nil, nil
	})
	enc, err := face.NewEncoder(detector, face.EncoderOptions{Width: 16, Height: 16})
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	h.encoder = enc

	desc, err := enc.Encode(portrait(), faceRegion)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for i := range enrolled {
		enrolled[i].FaceEncoding = desc
	}
	h.reg = mock.NewRegistry(enrolled...)

	m := matcher.New(matcher.NewStore(h.reg, matcher.StoreOptions{}), matcher.StrategyNearest, nil)
	svc := students.NewService(h.reg, enc, m, students.Options{})

	h.handle = camera.NewHandle(camera.OpenerFunc(func(ctx context.Context, src camera.Source) (camera.Device, error) {
		if h.openFail {
			return nil, errors.New("no device")
		}
		return h.device, nil
	}), nil)

	if cfg.Tolerance == 0 {
		cfg.Tolerance = 15
	}
	h.sess = NewSession(cfg, h.handle, camera.Source{Driver: "opencv"}, enc, svc, Options{Now: func() time.Time { return t0 }})
	return h
}

// openCamera opens the handle without starting the background loop so ticks
// can be driven manually.
func (h *harness) openCamera(t *testing.T) {
	t.Helper()
	if err := h.handle.Open(context.Background(), camera.Source{Driver: "opencv"}); err != nil {
		t.Fatalf("Open: %v", err)
	}
}

func defaultConfig(policy Policy) Config {
	return Config{
		TickInterval: 50 * time.Millisecond,
		Cooldown:     3 * time.Second,
		Idle:         2 * time.Second,
		DebitAmount:  1,
		Policy:       policy,
	}
}

func zoe(balance float64) registry.Student {
	return registry.Student{StudentID: "E001", FirstName: "Zoé", LastName: "Martin", Balance: balance}
}

func tickAt(k int) time.Time {
	return t0.Add(time.Duration(k-1) * 50 * time.Millisecond)
}

func TestCooldownDebitsOncePerWindow(t *testing.T) {
	h := newHarness(t, defaultConfig(PolicyDebit), zoe(100))
	h.openCamera(t)
	ctx := context.Background()

	for k := 1; k <= 10; k++ {
		h.sess.Tick(ctx, tickAt(k))
	}
	if h.reg.DecrementCalls != 1 {
		t.Fatalf("expected 1 debit after 10 ticks, got %d", h.reg.DecrementCalls)
	}

	for k := 11; k <= 61; k++ {
		h.sess.Tick(ctx, tickAt(k))
	}
	if h.reg.DecrementCalls != 1 {
		t.Fatalf("expected still 1 debit at exactly 3s, got %d", h.reg.DecrementCalls)
	}

	res := h.sess.Tick(ctx, tickAt(62))
	if h.reg.DecrementCalls != 2 {
		t.Fatalf("expected 2nd debit once the window elapsed, got %d", h.reg.DecrementCalls)
	}
	if res.Faces[0].Decision != DecisionGranted {
		t.Errorf("expected granted, got %s", res.Faces[0].Decision)
	}
	if h.reg.Balance("E001") != 98 {
		t.Errorf("expected balance 98, got %v", h.reg.Balance("E001"))
	}
}

func TestTickStatusMessages(t *testing.T) {
	h := newHarness(t, defaultConfig(PolicyDeny), zoe(10))
	h.openCamera(t)
	ctx := context.Background()

	res := h.sess.Tick(ctx, tickAt(1))
	if res.Status != "✓ Accès autorisé : Zoé Martin | Solde : 9.00 €" {
		t.Errorf("unexpected status %q", res.Status)
	}
	if res.LastEvent != "Dernier passage : Zoé Martin à 12:00:00" {
		t.Errorf("unexpected last event %q", res.LastEvent)
	}
	if len(res.Faces) != 1 || res.Faces[0].Identity == nil || res.Faces[0].Identity.Balance != 9 {
		t.Fatalf("unexpected faces %+v", res.Faces)
	}
	if h.sess.State() != StateCooldown {
		t.Errorf("expected cooldown state, got %s", h.sess.State())
	}

	res = h.sess.Tick(ctx, tickAt(2))
	if res.Faces[0].Decision != DecisionRecognized {
		t.Errorf("expected recognized during cooldown, got %s", res.Faces[0].Decision)
	}
	if res.Status != "Reconnu : Zoé Martin | Solde : 9.00 €" {
		t.Errorf("unexpected status %q", res.Status)
	}
}

func TestDebitPolicyClampsAtZero(t *testing.T) {
	h := newHarness(t, defaultConfig(PolicyDebit), zoe(0.5))
	h.openCamera(t)

	res := h.sess.Tick(context.Background(), tickAt(1))
	if res.Faces[0].Decision != DecisionInsufficient {
		t.Errorf("expected insufficient, got %s", res.Faces[0].Decision)
	}
	if res.Status != "⚠ Solde insuffisant : Zoé Martin (0.00 €)" {
		t.Errorf("unexpected status %q", res.Status)
	}
	if h.reg.Balance("E001") != 0 {
		t.Errorf("expected balance clamped to 0, got %v", h.reg.Balance("E001"))
	}
}

func TestDenyPolicyDoesNotDebit(t *testing.T) {
	h := newHarness(t, defaultConfig(PolicyDeny), zoe(0.5))
	h.openCamera(t)
	ctx := context.Background()

	res := h.sess.Tick(ctx, tickAt(1))
	if res.Faces[0].Decision != DecisionDeniedInsufficient {
		t.Errorf("expected denied_insufficient, got %s", res.Faces[0].Decision)
	}
	if h.reg.DecrementCalls != 0 {
		t.Errorf("expected no debit, got %d", h.reg.DecrementCalls)
	}
	if h.reg.Balance("E001") != 0.5 {
		t.Errorf("expected balance untouched, got %v", h.reg.Balance("E001"))
	}
	if res.Status != "⚠ Solde insuffisant : Zoé Martin (0.50 €)" {
		t.Errorf("unexpected status %q", res.Status)
	}

	res = h.sess.Tick(ctx, tickAt(2))
	if res.Faces[0].Decision != DecisionRecognized {
		t.Errorf("expected recognized within cooldown, got %s", res.Faces[0].Decision)
	}
}

func TestUnrecognizedFace(t *testing.T) {
	h := newHarness(t, defaultConfig(PolicyDeny))
	h.openCamera(t)

	res := h.sess.Tick(context.Background(), tickAt(1))
	if len(res.Faces) != 1 || res.Faces[0].Decision != DecisionUnrecognized || res.Faces[0].Identity != nil {
		t.Fatalf("unexpected faces %+v", res.Faces)
	}
	if res.Status != StatusUnrecognized {
		t.Errorf("unexpected status %q", res.Status)
	}
	if res.LastEvent != NoEventYet {
		t.Errorf("unexpected last event %q", res.LastEvent)
	}
}

func TestUnrecognizedKeepsGrantedMessageDuringCooldown(t *testing.T) {
	h := newHarness(t, defaultConfig(PolicyDeny), zoe(10))
	h.openCamera(t)
	ctx := context.Background()

	granted := h.sess.Tick(ctx, tickAt(1)).Status
	h.reg.Delete(ctx, "E001")

	res := h.sess.Tick(ctx, tickAt(2))
	if res.Faces[0].Decision != DecisionUnrecognized {
		t.Fatalf("expected unrecognized, got %s", res.Faces[0].Decision)
	}
	if res.Status != granted {
		t.Errorf("expected granted message kept, got %q", res.Status)
	}

	res = h.sess.Tick(ctx, t0.Add(3100*time.Millisecond))
	if res.Status != StatusUnrecognized {
		t.Errorf("expected unrecognized after cooldown, got %q", res.Status)
	}
}

func TestIdleRevertsToWaiting(t *testing.T) {
	h := newHarness(t, defaultConfig(PolicyDeny), zoe(10))
	h.openCamera(t)
	ctx := context.Background()

	h.sess.Tick(ctx, t0)
	h.faces.Store(false)

	res := h.sess.Tick(ctx, t0.Add(time.Second))
	if res.Status == StatusWaiting {
		t.Error("status reverted before the idle threshold")
	}
	if len(res.Faces) != 0 {
		t.Errorf("expected no faces, got %d", len(res.Faces))
	}

	res = h.sess.Tick(ctx, t0.Add(2100*time.Millisecond))
	if res.Status != StatusWaiting {
		t.Errorf("expected waiting message, got %q", res.Status)
	}
}

func TestCameraReadFailureKeepsLoopAlive(t *testing.T) {
	h := newHarness(t, defaultConfig(PolicyDeny), zoe(10))
	h.openCamera(t)
	ctx := context.Background()

	h.device.fail.Store(true)
	res := h.sess.Tick(ctx, tickAt(1))
	if res.Err == nil {
		t.Fatal("expected read error")
	}
	if res.Status != StatusCameraError {
		t.Errorf("unexpected status %q", res.Status)
	}

	h.device.fail.Store(false)
	res = h.sess.Tick(ctx, tickAt(2))
	if res.Err != nil || res.Faces[0].Decision != DecisionGranted {
		t.Errorf("expected recovery on next tick, got %+v", res)
	}
	if res.Seq != 2 {
		t.Errorf("expected seq 2, got %d", res.Seq)
	}
}

func hasErrorEvent(events <-chan Event, message string) bool {
	for {
		select {
		case ev := <-events:
			if ev.Type == EventError && ev.Message == message {
				return true
			}
		default:
			return false
		}
	}
}

func TestDetectionFailureSurfacesStatus(t *testing.T) {
	h := newHarness(t, defaultConfig(PolicyDeny), zoe(10))
	h.openCamera(t)
	ctx := context.Background()
	events, unsubscribe := h.sess.Subscribe()
	defer unsubscribe()

	h.detectErr.Store(true)
	res := h.sess.Tick(ctx, tickAt(1))
	if res.Err == nil {
		t.Fatal("expected detection error")
	}
	if res.Status != StatusDetectionError {
		t.Errorf("unexpected status %q", res.Status)
	}
	if !hasErrorEvent(events, StatusDetectionError) {
		t.Error("expected an error event for the detection failure")
	}

	h.detectErr.Store(false)
	res = h.sess.Tick(ctx, tickAt(2))
	if res.Err != nil || res.Faces[0].Decision != DecisionGranted {
		t.Errorf("expected recovery on next tick, got %+v", res)
	}
}

func TestMatchFailureSurfacesStatus(t *testing.T) {
	h := newHarness(t, defaultConfig(PolicyDeny), zoe(10))
	h.openCamera(t)
	ctx := context.Background()

	granted := h.sess.Tick(ctx, tickAt(1)).Status
	events, unsubscribe := h.sess.Subscribe()
	defer unsubscribe()

	h.reg.ListError = errors.New("registry offline")
	res := h.sess.Tick(ctx, tickAt(70))
	if len(res.Faces) != 1 || res.Faces[0].Decision != DecisionError {
		t.Fatalf("expected error decision, got %+v", res.Faces)
	}
	if res.Status != StatusMatchError || res.Status == granted {
		t.Errorf("unexpected status %q", res.Status)
	}
	if !hasErrorEvent(events, StatusMatchError) {
		t.Error("expected an error event for the match failure")
	}
	if h.reg.DecrementCalls != 0 {
		t.Errorf("expected no debit, got %d", h.reg.DecrementCalls)
	}
}

func TestStartCameraUnavailable(t *testing.T) {
	h := newHarness(t, defaultConfig(PolicyDeny))
	h.openFail = true

	err := h.sess.Start(context.Background())
	if !errors.Is(err, camera.ErrCameraUnavailable) {
		t.Fatalf("expected ErrCameraUnavailable, got %v", err)
	}
	if err := h.sess.Stop(); err != nil {
		t.Errorf("Stop after failed start: %v", err)
	}
}

func TestStopIsIdempotentAndReleasesOnce(t *testing.T) {
	cfg := defaultConfig(PolicyDeny)
	cfg.TickInterval = 5 * time.Millisecond
	h := newHarness(t, cfg, zoe(10))

	events, _ := h.sess.Subscribe()
	if err := h.sess.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := h.sess.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.sess.Snapshot().Frames < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.sess.Snapshot().Frames < 3 {
		t.Fatal("loop did not tick")
	}

	for range 3 {
		if err := h.sess.Stop(); err != nil {
			t.Fatalf("Stop failed: %v", err)
		}
	}
	if h.device.closed.Load() != 1 {
		t.Errorf("expected camera released exactly once, got %d", h.device.closed.Load())
	}
	if h.handle.State() != camera.StateClosed {
		t.Errorf("expected closed handle, got %s", h.handle.State())
	}

	frames := h.sess.Snapshot().Frames
	time.Sleep(30 * time.Millisecond)
	if h.sess.Snapshot().Frames != frames {
		t.Error("tick fired after Stop returned")
	}
	if res := h.sess.Tick(context.Background(), time.Now()); !errors.Is(res.Err, ErrSessionStopped) {
		t.Errorf("expected ErrSessionStopped, got %v", res.Err)
	}

	var sawDecision, sawStopped bool
	for ev := range events {
		switch ev.Type {
		case EventDecision:
			sawDecision = true
		case EventStopped:
			sawStopped = true
		}
	}
	if !sawDecision || !sawStopped {
		t.Errorf("expected decision and stopped events, got decision=%v stopped=%v", sawDecision, sawStopped)
	}
	if h.sess.Snapshot().Running {
		t.Error("expected session not running")
	}
}

func TestPreview(t *testing.T) {
	h := newHarness(t, defaultConfig(PolicyDeny), zoe(10))
	h.openCamera(t)

	if _, err := h.sess.Preview(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("expected ErrNoFrame, got %v", err)
	}
	h.sess.Tick(context.Background(), tickAt(1))
	data, err := h.sess.Preview()
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if !bytes.HasPrefix(data, []byte{0xFF, 0xD8}) {
		t.Error("preview is not a JPEG")
	}
}

func TestParsePolicy(t *testing.T) {
	if p, err := ParsePolicy(""); err != nil || p != PolicyDeny {
		t.Errorf("ParsePolicy(\"\") = %q, %v", p, err)
	}
	if p, err := ParsePolicy("debit"); err != nil || p != PolicyDebit {
		t.Errorf("ParsePolicy(debit) = %q, %v", p, err)
	}
	if _, err := ParsePolicy("free"); err == nil {
		t.Error("expected error")
	}
}

func TestManager(t *testing.T) {
	var built []*harness
	m := NewManager(func() (*Session, error) {
		h := newHarness(t, defaultConfig(PolicyDeny))
		built = append(built, h)
		return h.sess, nil
	})

	if _, err := m.Stop(); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
	first, err := m.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	second, err := m.Start(context.Background())
	if err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	if !first.Stopped() {
		t.Error("expected first session stopped when a new one starts")
	}
	if m.Current() != second {
		t.Error("expected second session current")
	}
	if _, err := m.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if m.Current() != nil {
		t.Error("expected no current session")
	}
	for i, h := range built {
		if h.device.closed.Load() != 1 {
			t.Errorf("session %d: camera closed %d times", i, h.device.closed.Load())
		}
	}
}
