// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/bigkaa/goartstore/converter-module/internal/config"
	"github.com/bigkaa/goartstore/converter-module/internal/convert"
	"github.com/bigkaa/goartstore/converter-module/internal/storage/filestore"
)

const (
	statusOK   = "ok"
	statusFail = "fail"
)

// healthCheckFile — имя пробного файла проверки записи.
const healthCheckFile = ".health_check"

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	serviceID string
	// areas — области хранения для проверки записи, по имени
	areas  map[string]*filestore.FileStore
	engine *convert.Engine
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(serviceID string, incoming, converted *filestore.FileStore, engine *convert.Engine) *HealthHandler {
	return &HealthHandler{
		serviceID: serviceID,
		areas: map[string]*filestore.FileStore{
			"incoming":  incoming,
			"converted": converted,
		},
		engine: engine,
	}
}

// checkResult — результат отдельной проверки готовности.
type checkResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     statusOK,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"version":    config.Version,
		"service_id": h.serviceID,
	})
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет доступность обеих областей на запись. Набор возможностей
// движка сообщается справочно и на готовность не влияет.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	overallStatus := statusOK
	httpStatus := http.StatusOK

	checks := make(map[string]checkResult, len(h.areas))
	for name, store := range h.areas {
		check := checkWritable(store)
		if check.Status != statusOK {
			overallStatus = statusFail
			httpStatus = http.StatusServiceUnavailable
		}
		checks[name] = check
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":       overallStatus,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"version":      config.Version,
		"service_id":   h.serviceID,
		"checks":       checks,
		"capabilities": h.engine.Capabilities().List(),
	})
}

// checkWritable проверяет, что в директорию области можно записать файл.
func checkWritable(store *filestore.FileStore) checkResult {
	testFile := filepath.Join(store.Dir(), healthCheckFile)
	if err := afero.WriteFile(store.Fs(), testFile, []byte(statusOK), 0o600); err != nil {
		return checkResult{
			Status:  statusFail,
			Message: "Директория недоступна для записи: " + err.Error(),
		}
	}
	_ = store.Fs().Remove(testFile)
	return checkResult{Status: statusOK}
}
