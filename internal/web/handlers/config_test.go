package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConfigHandler_Get(t *testing.T) {
	cfg := testConfig()
	cfg.Matcher.Strategy = "first"
	handler := NewConfigHandler(cfg)

	recorder := httptest.NewRecorder()
	handler.Get(recorder, httptest.NewRequest("GET", "/api/v1/config", nil))
	assertStatusCode(t, recorder, http.StatusOK)

	var result ConfigResponse
	parseJSONResponse(t, recorder, &result)
	if result.Tolerance != 0.6 || result.StreamTolerance != 15 {
		t.Errorf("unexpected tolerances %v / %v", result.Tolerance, result.StreamTolerance)
	}
	if result.Strategy != "first" {
		t.Errorf("expected strategy 'first', got '%s'", result.Strategy)
	}
	if result.EncodingWidth != 100 || result.EncodingHeight != 100 {
		t.Errorf("unexpected encoding size %dx%d", result.EncodingWidth, result.EncodingHeight)
	}
	if result.CooldownSeconds != 3 || result.DebitAmount != 1 {
		t.Errorf("unexpected access tunables %+v", result)
	}
}
