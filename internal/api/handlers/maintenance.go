// maintenance.go — обработчик POST /api/v1/maintenance/sweep.
// Делегирует внеочередной цикл очистки в Sweeper.
package handlers

import (
	"context"
	"net/http"

	"github.com/bigkaa/goartstore/converter-module/internal/domain/format"
	"github.com/bigkaa/goartstore/converter-module/internal/service"
)

// SweepRunner — интерфейс для запуска цикла очистки.
// Позволяет тестировать handler без полного Sweeper.
type SweepRunner interface {
	RunOnce(ctx context.Context) *service.SweepResult
}

// MaintenanceHandler — обработчик endpoints обслуживания.
type MaintenanceHandler struct {
	sweeper SweepRunner
}

// NewMaintenanceHandler создаёт обработчик maintenance endpoints.
func NewMaintenanceHandler(sweeper SweepRunner) *MaintenanceHandler {
	return &MaintenanceHandler{sweeper: sweeper}
}

// sweepResponse — тело ответа POST /api/v1/maintenance/sweep.
type sweepResponse struct {
	Scanned        int    `json:"scanned"`
	Deleted        int    `json:"deleted"`
	Errors         int    `json:"errors"`
	FreedBytes     int64  `json:"freed_bytes"`
	FreedFormatted string `json:"freed_formatted"`
	DurationMs     int64  `json:"duration_ms"`
}

// Sweep обрабатывает POST /api/v1/maintenance/sweep.
// Цикл выполняется синхронно и сериализуется с фоновым циклом внутри Sweeper.
func (h *MaintenanceHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	result := h.sweeper.RunOnce(r.Context())
	writeJSON(w, http.StatusOK, sweepResponse{
		Scanned:        result.Scanned,
		Deleted:        result.Deleted,
		Errors:         result.Errors,
		FreedBytes:     result.FreedBytes,
		FreedFormatted: format.FormatSize(result.FreedBytes),
		DurationMs:     result.Duration.Milliseconds(),
	})
}
