package web

import (
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/cantine/internal/access"
	"github.com/kozaktomas/cantine/internal/config"
	"github.com/kozaktomas/cantine/internal/face"
	"github.com/kozaktomas/cantine/internal/matcher"
	"github.com/kozaktomas/cantine/internal/registry"
	"github.com/kozaktomas/cantine/internal/registry/mock"
	"github.com/kozaktomas/cantine/internal/students"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := mock.NewRegistry(registry.Student{StudentID: "E001", FirstName: "Anaïs", Balance: 3})
	enc, err := face.NewEncoder(face.DetectorFunc(func(*image.Gray) ([]face.Region, error) { return nil, nil }),
		face.EncoderOptions{Width: 16, Height: 16})
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	m := matcher.New(matcher.NewStore(reg, matcher.StoreOptions{}), matcher.StrategyNearest, nil)
	svc := students.NewService(reg, enc, m, students.Options{ImagesDir: t.TempDir()})

	cfg := config.Defaults()
	cfg.Web.AllowedOrigins = []string{"http://kiosk.lan"}
	return NewServer(cfg, Dependencies{
		Students: svc,
		Access: access.NewManager(func() (*access.Session, error) {
			return nil, access.ErrNoSession
		}),
	})
}

func TestServerRoutes(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		method   string
		path     string
		status   int
		contains string
	}{
		{"GET", "/api/v1/health", http.StatusOK, `"ok"`},
		{"GET", "/api/v1/config", http.StatusOK, `"strategy"`},
		{"GET", "/api/v1/students", http.StatusOK, `"E001"`},
		{"GET", "/api/v1/students/E001", http.StatusOK, `"Anaïs"`},
		{"GET", "/api/v1/students/E999", http.StatusNotFound, `"error"`},
		{"GET", "/api/v1/access", http.StatusOK, `"running":false`},
		{"GET", "/api/v1/access/preview.jpg", http.StatusNotFound, `"error"`},
		{"POST", "/api/v1/students/capture", http.StatusServiceUnavailable, "camera"},
		{"GET", "/", http.StatusOK, "<!DOCTYPE html>"},
		{"GET", "/kiosk/anything", http.StatusOK, "<!DOCTYPE html>"},
	}
	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			var body *strings.Reader
			if tc.method == "POST" {
				body = strings.NewReader(`{"student_id":"E002"}`)
			} else {
				body = strings.NewReader("")
			}
			recorder := httptest.NewRecorder()
			srv.Router().ServeHTTP(recorder, httptest.NewRequest(tc.method, tc.path, body))
			if recorder.Code != tc.status {
				t.Fatalf("expected status %d, got %d: %s", tc.status, recorder.Code, recorder.Body.String())
			}
			if !strings.Contains(recorder.Body.String(), tc.contains) {
				t.Errorf("expected body to contain %q, got %s", tc.contains, recorder.Body.String())
			}
		})
	}
}

func TestServerCORSAndHeaders(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	req.Header.Set("Origin", "http://kiosk.lan")
	recorder := httptest.NewRecorder()
	srv.Router().ServeHTTP(recorder, req)

	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "http://kiosk.lan" {
		t.Errorf("expected configured origin to be allowed, got %q", got)
	}
	if recorder.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
}

func TestServerStartFactoryError(t *testing.T) {
	srv := newTestServer(t)
	recorder := httptest.NewRecorder()
	srv.Router().ServeHTTP(recorder, httptest.NewRequest("POST", "/api/v1/access/start", nil))
	if recorder.Code != http.StatusNotFound {
		t.Errorf("expected 404 from failing factory, got %d", recorder.Code)
	}
}

func TestServerAddr(t *testing.T) {
	cfg := config.Defaults()
	cfg.Web.Host = "127.0.0.1"
	cfg.Web.Port = 8090
	srv := NewServer(cfg, Dependencies{})
	if srv.Addr() != "127.0.0.1:8090" {
		t.Errorf("unexpected addr %q", srv.Addr())
	}
}
