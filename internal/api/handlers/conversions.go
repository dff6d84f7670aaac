// conversions.go — обработчики валидации и конвертации файлов входной области.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/bigkaa/goartstore/converter-module/internal/api/errors"
	"github.com/bigkaa/goartstore/converter-module/internal/convert"
	"github.com/bigkaa/goartstore/converter-module/internal/service"
	"github.com/bigkaa/goartstore/converter-module/internal/storage/filestore"
	"github.com/bigkaa/goartstore/converter-module/internal/validator"
)

// ConversionsHandler — обработчик эндпоинтов /api/v1/validations и /api/v1/conversions.
type ConversionsHandler struct {
	svc       *service.ConversionService
	validator *validator.Validator
	incoming  *filestore.FileStore
	logger    *slog.Logger
}

// NewConversionsHandler создаёт обработчик конвертаций.
func NewConversionsHandler(
	svc *service.ConversionService,
	v *validator.Validator,
	incoming *filestore.FileStore,
	logger *slog.Logger,
) *ConversionsHandler {
	return &ConversionsHandler{
		svc:       svc,
		validator: v,
		incoming:  incoming,
		logger:    logger.With(slog.String("component", "conversions_handler")),
	}
}

// validationRequest — тело POST /api/v1/validations.
type validationRequest struct {
	FileName     string `json:"file_name"`
	OriginalName string `json:"original_name"`
}

// conversionRequest — тело POST /api/v1/conversions.
type conversionRequest struct {
	FileName      string `json:"file_name"`
	OriginalName  string `json:"original_name"`
	TargetFormat  string `json:"target_format"`
	ImageQuality  int    `json:"image_quality"`
	MaxDimension  int    `json:"max_dimension"`
	PDFResolution int    `json:"pdf_resolution"`
}

// Validate обрабатывает POST /api/v1/validations.
// Проверяет файл входной области без конвертации и без удаления.
// Отказ валидации — это результат, а не ошибка: ответ всегда 200.
func (h *ConversionsHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "invalid JSON body: "+err.Error())
		return
	}
	// SanitizeName никогда не возвращает пустую строку, поэтому проверяем до очистки.
	if strings.TrimSpace(req.FileName) == "" {
		apierrors.ValidationError(w, "file_name is required")
		return
	}
	name := filestore.SanitizeName(req.FileName)
	declared := req.OriginalName
	if declared == "" {
		declared = filestore.OriginalName(name)
	}

	outcome := h.validator.Validate(h.incoming.Path(name), declared)
	writeJSON(w, http.StatusOK, outcome)
}

// Create обрабатывает POST /api/v1/conversions.
// Синхронно выполняет валидацию и конвертацию; входной файл удаляется
// в любом исходе. Неудачное задание также доступно через GET.
func (h *ConversionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req conversionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "invalid JSON body: "+err.Error())
		return
	}

	job, convErr := h.svc.Convert(r.Context(), service.ConvertParams{
		FileName:     req.FileName,
		OriginalName: req.OriginalName,
		TargetFormat: req.TargetFormat,
		Options: convert.Options{
			ImageQuality:  req.ImageQuality,
			MaxDimension:  req.MaxDimension,
			PDFResolution: req.PDFResolution,
		},
	})
	if convErr != nil {
		h.logger.Debug("Конвертация отклонена",
			slog.String("file_name", req.FileName),
			slog.String("code", convErr.Code),
			slog.String("error", convErr.Message),
		)
		apierrors.WriteKindError(w, convErr.StatusCode, convErr.Code, convErr.Kind, convErr.Message)
		return
	}

	writeJSON(w, http.StatusCreated, job)
}

// Get обрабатывает GET /api/v1/conversions/{id}.
func (h *ConversionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		apierrors.ValidationError(w, "invalid conversion id: "+err.Error())
		return
	}

	job, ok := h.svc.Jobs().Get(id.String())
	if !ok {
		apierrors.NotFound(w, "conversion "+id.String()+" not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}
