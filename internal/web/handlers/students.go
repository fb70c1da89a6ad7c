package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/cantine/internal/camera"
	"github.com/kozaktomas/cantine/internal/constants"
	"github.com/kozaktomas/cantine/internal/registry"
	"github.com/kozaktomas/cantine/internal/students"
)

// CaptureFunc grabs one frame from the enrollment camera.
type CaptureFunc func(ctx context.Context) <-chan camera.CaptureResult

// StudentsHandler handles student registry endpoints.
type StudentsHandler struct {
	students *students.Service
	capture  CaptureFunc
	busy     func() bool
}

// NewStudentsHandler creates a new students handler. busy reports whether the
// camera is held by a running access session.
func NewStudentsHandler(svc *students.Service, capture CaptureFunc, busy func() bool) *StudentsHandler {
	if busy == nil {
		busy = func() bool { return false }
	}
	return &StudentsHandler{students: svc, capture: capture, busy: busy}
}

// StudentResponse is a student without its raw descriptor.
type StudentResponse struct {
	StudentID      string    `json:"student_id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Balance        float64   `json:"balance"`
	ImagePath      string    `json:"image_path,omitempty"`
	Enrolled       bool      `json:"enrolled"`
	EncodingLength int       `json:"encoding_length"`
	CreatedAt      time.Time `json:"created_at,omitzero"`
	UpdatedAt      time.Time `json:"updated_at,omitzero"`
}

func toStudentResponse(s *registry.Student) StudentResponse {
	return StudentResponse{
		StudentID:      s.StudentID,
		FirstName:      s.FirstName,
		LastName:       s.LastName,
		Balance:        s.Balance,
		ImagePath:      s.ImagePath,
		Enrolled:       s.Enrolled(),
		EncodingLength: len(s.FaceEncoding),
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

// List returns students, optionally filtered by ?q=.
func (h *StudentsHandler) List(w http.ResponseWriter, r *http.Request) {
	all, err := h.students.List(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	out := make([]StudentResponse, 0, len(all))
	for i := range all {
		out = append(out, toStudentResponse(&all[i]))
	}
	respondJSON(w, http.StatusOK, out)
}

// Get returns one student.
func (h *StudentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	st, err := h.students.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toStudentResponse(st))
}

// saveUpload copies the multipart file into dir and returns its path.
func saveUpload(file multipart.File, header *multipart.FileHeader, dir string) (string, error) {
	path := filepath.Join(dir, filepath.Base(header.Filename))
	out, err := os.Create(path) //nolint:gosec // filename sanitized via filepath.Base
	if err != nil {
		return "", errors.New("failed to create temp file")
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		return "", errors.New("failed to save file")
	}
	if err := out.Close(); err != nil {
		return "", errors.New("failed to save file")
	}
	return path, nil
}

func registrationFromForm(r *http.Request) (students.Registration, error) {
	reg := students.Registration{
		StudentID: r.FormValue("student_id"),
		FirstName: r.FormValue("first_name"),
		LastName:  r.FormValue("last_name"),
	}
	if v := r.FormValue("balance"); v != "" {
		b, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return reg, fmt.Errorf("%w: balance %q is not a number", registry.ErrInvalidStudent, v)
		}
		reg.Balance = b
	}
	return reg, nil
}

// Create enrolls a student from a multipart upload with a "photo" file.
func (h *StudentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	reg, err := registrationFromForm(r)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	file, header, err := r.FormFile("photo")
	if err != nil {
		respondError(w, http.StatusBadRequest, "photo is required")
		return
	}
	defer file.Close()

	tempDir, err := os.MkdirTemp("", "cantine-enroll-*")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create temp directory")
		return
	}
	defer os.RemoveAll(tempDir)

	path, err := saveUpload(file, header, tempDir)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	st, err := h.students.Register(r.Context(), reg, path)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toStudentResponse(st))
}

// CaptureResponse is returned by Capture.
type CaptureResponse struct {
	Student  StudentResponse `json:"student"`
	Fallback bool            `json:"fallback"`
}

// Capture enrolls a student from a camera snapshot. The body is a JSON Registration.
func (h *StudentsHandler) Capture(w http.ResponseWriter, r *http.Request) {
	var reg students.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if h.capture == nil {
		respondError(w, http.StatusServiceUnavailable, "camera capture is not configured")
		return
	}
	if h.busy() {
		respondError(w, http.StatusConflict, "camera is in use by the access session")
		return
	}

	var res camera.CaptureResult
	select {
	case res = <-h.capture(r.Context()):
	case <-r.Context().Done():
		return
	}
	if res.Err != nil {
		respondDomainError(w, r, fmt.Errorf("%w: %w", camera.ErrCameraUnavailable, res.Err))
		return
	}

	st, err := h.students.RegisterFromFrame(r.Context(), reg, res.Frame)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, CaptureResponse{Student: toStudentResponse(st), Fallback: res.Fallback})
}

// Delete removes a student.
func (h *StudentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.students.Remove(r.Context(), id); err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "student_id": id})
}

// TopUpRequest is the body of TopUp.
type TopUpRequest struct {
	Amount float64 `json:"amount"`
}

// TopUp credits a student's balance.
func (h *StudentsHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	var req TopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Amount <= 0 {
		respondError(w, http.StatusBadRequest, "amount must be positive")
		return
	}
	st, err := h.students.TopUp(r.Context(), chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toStudentResponse(st))
}

// Export streams the registry as students.json.
func (h *StudentsHandler) Export(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="students.json"`)
	if _, err := h.students.Export(r.Context(), w); err != nil {
		slog.Error("export failed", "error", err)
	}
}

// Import upserts a students.json body. ?reencode=true computes missing descriptors.
func (h *StudentsHandler) Import(w http.ResponseWriter, r *http.Request) {
	reencode, _ := strconv.ParseBool(r.URL.Query().Get("reencode"))
	body := http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	report, err := h.students.Import(r.Context(), body, students.ImportOptions{Reencode: reencode})
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, report)
}
