package handlers

import (
	"net/http"

	"github.com/kozaktomas/cantine/internal/config"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse is the non-secret part of the running configuration.
type ConfigResponse struct {
	Tolerance          float64 `json:"tolerance"`
	StreamTolerance    float64 `json:"stream_tolerance"`
	Strategy           string  `json:"strategy"`
	Index              string  `json:"index"`
	EncodingWidth      int     `json:"encoding_width"`
	EncodingHeight     int     `json:"encoding_height"`
	CooldownSeconds    float64 `json:"cooldown_seconds"`
	DebitAmount        float64 `json:"debit_amount"`
	InsufficientPolicy string  `json:"insufficient_policy"`
	TickIntervalMs     int     `json:"tick_interval_ms"`
	CameraDriver       string  `json:"camera_driver"`
	RegistryBackend    string  `json:"registry_backend"`
}

// Get returns the active tunables
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	c := h.config
	respondJSON(w, http.StatusOK, ConfigResponse{
		Tolerance:          c.Matcher.Tolerance,
		StreamTolerance:    c.Matcher.StreamTolerance,
		Strategy:           c.Matcher.Strategy,
		Index:              c.Matcher.Index,
		EncodingWidth:      c.Encoder.Width,
		EncodingHeight:     c.Encoder.Height,
		CooldownSeconds:    c.Access.CooldownSeconds,
		DebitAmount:        c.Access.DebitAmount,
		InsufficientPolicy: c.Access.InsufficientPolicy,
		TickIntervalMs:     c.Access.TickIntervalMs,
		CameraDriver:       c.Camera.Driver,
		RegistryBackend:    c.Registry.Backend,
	})
}
