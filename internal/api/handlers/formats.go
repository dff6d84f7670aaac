// formats.go — справочные эндпоинты: форматы, целевые форматы, возможности движка.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/converter-module/internal/api/errors"
	"github.com/bigkaa/goartstore/converter-module/internal/convert"
	"github.com/bigkaa/goartstore/converter-module/internal/domain/format"
)

// FormatsHandler — обработчик справочных эндпоинтов.
type FormatsHandler struct {
	engine *convert.Engine
}

// NewFormatsHandler создаёт обработчик справочных эндпоинтов.
func NewFormatsHandler(engine *convert.Engine) *FormatsHandler {
	return &FormatsHandler{engine: engine}
}

// targetsResponse — тело ответа GET /api/v1/formats/{ext}/targets.
type targetsResponse struct {
	Extension string          `json:"extension"`
	Category  format.Category `json:"category,omitempty"`
	Targets   []string        `json:"targets"`
}

// capabilitiesResponse — тело ответа GET /api/v1/capabilities.
type capabilitiesResponse struct {
	Capabilities       convert.Capabilities `json:"capabilities"`
	Available          []string             `json:"available"`
	LegacyCopyFallback bool                 `json:"legacy_copy_fallback"`
}

// List обрабатывает GET /api/v1/formats.
func (h *FormatsHandler) List(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, format.Supported())
}

// Get обрабатывает GET /api/v1/formats/{ext}.
func (h *FormatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	info := format.Describe(chi.URLParam(r, "ext"))
	if !info.Supported {
		apierrors.NotFound(w, info.Error)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Targets обрабатывает GET /api/v1/formats/{ext}/targets.
// Список учитывает возможности, обнаруженные при старте.
func (h *FormatsHandler) Targets(w http.ResponseWriter, r *http.Request) {
	info := format.Describe(chi.URLParam(r, "ext"))
	if !info.Supported {
		apierrors.NotFound(w, info.Error)
		return
	}

	targets := h.engine.Targets(info.Extension)
	if targets == nil {
		targets = []string{}
	}
	writeJSON(w, http.StatusOK, targetsResponse{
		Extension: info.Extension,
		Category:  info.Category,
		Targets:   targets,
	})
}

// Capabilities обрабатывает GET /api/v1/capabilities.
func (h *FormatsHandler) Capabilities(w http.ResponseWriter, _ *http.Request) {
	caps := h.engine.Capabilities()
	writeJSON(w, http.StatusOK, capabilitiesResponse{
		Capabilities:       caps,
		Available:          caps.List(),
		LegacyCopyFallback: h.engine.LegacyCopyFallback(),
	})
}
