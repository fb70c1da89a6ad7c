package handlers

import (
	"net/http"
	"strconv"

	"github.com/kozaktomas/cantine/internal/constants"
	"github.com/kozaktomas/cantine/internal/face"
	"github.com/kozaktomas/cantine/internal/students"
)

// MatchHandler identifies the student in an uploaded photo.
type MatchHandler struct {
	students  *students.Service
	tolerance float64
}

// NewMatchHandler creates a match handler using tolerance unless the request overrides it.
func NewMatchHandler(svc *students.Service, tolerance float64) *MatchHandler {
	return &MatchHandler{students: svc, tolerance: tolerance}
}

// MatchResponse describes the recognition outcome.
type MatchResponse struct {
	Matched  bool             `json:"matched"`
	Student  *StudentResponse `json:"student,omitempty"`
	Distance float64          `json:"distance,omitempty"`
	Region   face.Region      `json:"region"`
}

// Match handles a multipart upload with a "photo" file and optional "tolerance".
func (h *MatchHandler) Match(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	tolerance := h.tolerance
	if v := r.FormValue("tolerance"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || t <= 0 {
			respondError(w, http.StatusBadRequest, "invalid tolerance")
			return
		}
		tolerance = t
	}

	file, _, err := r.FormFile("photo")
	if err != nil {
		respondError(w, http.StatusBadRequest, "photo is required")
		return
	}
	defer file.Close()

	img, err := face.DecodeImage(file)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	m, region, err := h.students.MatchFrame(r.Context(), img, tolerance)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	resp := MatchResponse{Region: region}
	if m != nil {
		st := toStudentResponse(&m.Student)
		resp.Matched = true
		resp.Student = &st
		resp.Distance = m.Distance
	}
	respondJSON(w, http.StatusOK, resp)
}
