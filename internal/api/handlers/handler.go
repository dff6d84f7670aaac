// Пакет handlers — HTTP-обработчики Converter Module.
// Каждая группа эндпоинтов реализована отдельным типом; Handlers
// объединяет их для регистрации маршрутов в server.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/bigkaa/goartstore/converter-module/internal/api/openapi"
)

// Handlers — набор обработчиков всех групп эндпоинтов.
type Handlers struct {
	Health      *HealthHandler
	Formats     *FormatsHandler
	Conversions *ConversionsHandler
	Files       *FilesHandler
	Maintenance *MaintenanceHandler
}

// OpenAPISpec обрабатывает GET /api/v1/openapi.yaml.
func OpenAPISpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapi.Spec())
}

// writeJSON вспомогательная функция для записи JSON-ответа.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
