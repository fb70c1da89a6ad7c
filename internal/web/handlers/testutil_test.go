package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/cantine/internal/config"
	"github.com/kozaktomas/cantine/internal/face"
	"github.com/kozaktomas/cantine/internal/matcher"
	"github.com/kozaktomas/cantine/internal/registry/mock"
	"github.com/kozaktomas/cantine/internal/students"
)

var testRegion = face.Region{X: 8, Y: 8, Width: 32, Height: 32}

// testConfig returns the embedded defaults.
func testConfig() *config.Config {
	return config.Defaults()
}

// testPortrait builds a deterministic 64x64 gray image.
func testPortrait() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := range 64 {
		for x := range 64 {
			img.SetGray(x, y, color.Gray{Y: uint8((x*7 + y*3) % 256)})
		}
	}
	return img
}

// newTestStudents creates a student service over reg whose detector finds
// testRegion when withFace is true and nothing otherwise.
func newTestStudents(t *testing.T, reg *mock.Registry, withFace bool) *students.Service {
	t.Helper()
	detector := face.DetectorFunc(func(*image.Gray) ([]face.Region, error) {
		if withFace {
			return []face.Region{testRegion}, nil
		}
		return nil, nil
	})
	enc, err := face.NewEncoder(detector, face.EncoderOptions{Width: 16, Height: 16})
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	m := matcher.New(matcher.NewStore(reg, matcher.StoreOptions{}), matcher.StrategyNearest, nil)
	return students.NewService(reg, enc, m, students.Options{ImagesDir: t.TempDir()})
}

// testDescriptor is the descriptor newTestStudents produces for testPortrait.
func testDescriptor(t *testing.T) face.Descriptor {
	t.Helper()
	enc, err := face.NewEncoder(face.DetectorFunc(func(*image.Gray) ([]face.Region, error) { return nil, nil }),
		face.EncoderOptions{Width: 16, Height: 16})
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	d, err := enc.Encode(testPortrait(), testRegion)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return d
}

// multipartRequest builds a multipart POST with form fields and an optional photo.
func multipartRequest(t *testing.T, path string, fields map[string]string, photo []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if photo != nil {
		fw, err := mw.CreateFormFile("photo", "photo.png")
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write(photo)
	}
	mw.Close()

	req := httptest.NewRequest("POST", path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
