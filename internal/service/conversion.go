// Пакет service — бизнес-логика Converter Module.
// conversion.go — конвейер конвертации: валидация → конвертация →
// удаление входного файла → регистрация задания.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/goartstore/converter-module/internal/api/errors"
	"github.com/bigkaa/goartstore/converter-module/internal/convert"
	"github.com/bigkaa/goartstore/converter-module/internal/domain/format"
	"github.com/bigkaa/goartstore/converter-module/internal/storage/filestore"
	"github.com/bigkaa/goartstore/converter-module/internal/validator"
)

// Prometheus метрики конвертации
var (
	conversionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cm_conversions_total",
		Help: "Общее количество конвертаций",
	}, []string{"source", "target", "status"})

	conversionDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cm_conversion_duration_seconds",
		Help:    "Длительность конвертации в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"target"})

	validationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cm_validation_failures_total",
		Help: "Общее количество отказов валидации",
	}, []string{"reason"})
)

// ConvertParams — параметры запроса конвертации.
type ConvertParams struct {
	// FileName — имя файла во входной области
	FileName string
	// OriginalName — имя, объявленное клиентом (по умолчанию выводится из FileName)
	OriginalName string
	// TargetFormat — целевое расширение
	TargetFormat string
	// Options — параметры качества (нулевые поля — значения по умолчанию)
	Options convert.Options
}

// ConversionError — ошибка конвейера с HTTP-кодом.
type ConversionError struct {
	StatusCode int
	Code       string
	Kind       string
	Message    string
	// Job — задание, зарегистрированное для неудачной конвертации (может быть nil)
	Job *Job
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ConversionService — конвейер конвертации файлов входной области.
type ConversionService struct {
	incoming  *filestore.FileStore
	converted *filestore.FileStore
	validator *validator.Validator
	engine    *convert.Engine
	jobs      *JobRegistry
	logger    *slog.Logger
	now       func() time.Time
}

// NewConversionService создаёт конвейер конвертации.
func NewConversionService(
	incoming *filestore.FileStore,
	converted *filestore.FileStore,
	v *validator.Validator,
	engine *convert.Engine,
	jobs *JobRegistry,
	logger *slog.Logger,
) *ConversionService {
	return &ConversionService{
		incoming:  incoming,
		converted: converted,
		validator: v,
		engine:    engine,
		jobs:      jobs,
		logger:    logger.With(slog.String("component", "conversion_service")),
		now:       time.Now,
	}
}

// Jobs возвращает реестр заданий.
func (s *ConversionService) Jobs() *JobRegistry {
	return s.jobs
}

// Convert выполняет конвертацию файла входной области.
//
// Поток:
//  1. Проверка параметров
//  2. Валидация входного файла (существование, формат, размер, имя)
//  3. Конвертация в converted-область
//  4. Удаление входного файла (в любом исходе после шага 1)
//  5. Регистрация задания
func (s *ConversionService) Convert(ctx context.Context, params ConvertParams) (*Job, *ConversionError) {
	target := format.Normalize(params.TargetFormat)
	if params.FileName == "" {
		return nil, &ConversionError{
			StatusCode: http.StatusBadRequest,
			Code:       apierrors.CodeValidationError,
			Message:    "file_name is required",
		}
	}
	if target == "" {
		return nil, &ConversionError{
			StatusCode: http.StatusBadRequest,
			Code:       apierrors.CodeValidationError,
			Message:    "target_format is required",
		}
	}

	storageName := filestore.SanitizeName(params.FileName)
	originalName := params.OriginalName
	if originalName == "" {
		originalName = filestore.OriginalName(storageName)
	}
	inputPath := s.incoming.Path(storageName)

	// Входной файл удаляется при любом исходе
	defer s.removeInput(storageName)

	outcome := s.validator.Validate(inputPath, originalName)
	if !outcome.Valid {
		validationFailuresTotal.WithLabelValues(string(outcome.Reason)).Inc()
		s.logger.Warn("Файл не прошёл валидацию",
			slog.String("file", storageName),
			slog.String("reason", string(outcome.Reason)),
			slog.String("error", outcome.Error),
		)
		return nil, validationError(outcome)
	}

	id := jobID(storageName)
	outputName := filestore.OutputName(id, originalName, target)
	start := s.now()

	result := s.engine.Convert(ctx, convert.Request{
		InputPath:   inputPath,
		OutputPath:  s.converted.Path(outputName),
		SourceExt:   outcome.Extension,
		TargetExt:   target,
		DisplayName: originalName,
	}, params.Options)

	job := &Job{
		ID:           id,
		OriginalName: originalName,
		SourceFormat: outcome.Extension,
		TargetFormat: target,
		InputSize:    outcome.FileSize,
		Rule:         result.Rule,
		CreatedAt:    start.UTC(),
		DurationMs:   result.Duration.Milliseconds(),
	}
	conversionDurationSeconds.WithLabelValues(target).Observe(result.Duration.Seconds())

	if !result.OK() {
		job.Status = JobFailed
		job.ErrorKind = string(result.Failure.Kind)
		job.Error = result.Failure.Reason
		s.jobs.Put(job)
		conversionsTotal.WithLabelValues(outcome.Extension, target, string(JobFailed)).Inc()

		return nil, &ConversionError{
			StatusCode: failureStatus(result.Failure.Kind),
			Code:       failureCode(result.Failure.Kind),
			Kind:       string(result.Failure.Kind),
			Message:    result.Failure.Reason,
			Job:        job,
		}
	}

	job.Status = JobCompleted
	job.OutputName = outputName
	if size, err := s.converted.Size(outputName); err == nil {
		job.OutputSize = size
		job.OutputSizeFormatted = humanize.IBytes(uint64(size))
	}
	job.DownloadURL = "/api/v1/files/" + outputName
	s.jobs.Put(job)
	conversionsTotal.WithLabelValues(outcome.Extension, target, string(JobCompleted)).Inc()

	s.logger.Info("Файл сконвертирован",
		slog.String("job_id", id),
		slog.String("original", originalName),
		slog.String("target", target),
		slog.String("rule", result.Rule),
		slog.String("input_size", humanize.IBytes(uint64(outcome.FileSize))),
		slog.String("output_size", job.OutputSizeFormatted),
		slog.Duration("duration", result.Duration),
	)

	return job, nil
}

// removeInput удаляет входной файл; ошибка только логируется.
func (s *ConversionService) removeInput(name string) {
	if _, err := s.incoming.Delete(name); err != nil {
		s.logger.Warn("Не удалось удалить входной файл",
			slog.String("file", name),
			slog.String("error", err.Error()),
		)
	}
}

// jobID берёт UUID-префикс имени входного файла или генерирует новый.
func jobID(storageName string) string {
	if i := strings.IndexByte(storageName, '_'); i == 36 {
		if id, err := uuid.Parse(storageName[:i]); err == nil {
			return id.String()
		}
	}
	return uuid.New().String()
}

// validationError преобразует отказ валидатора в ошибку API.
func validationError(o validator.Outcome) *ConversionError {
	e := &ConversionError{Kind: string(o.Reason), Message: o.Error}
	switch o.Reason {
	case validator.ReasonNotFound:
		e.StatusCode, e.Code = http.StatusNotFound, apierrors.CodeNotFound
	case validator.ReasonUnsupportedFormat:
		e.StatusCode, e.Code = http.StatusBadRequest, apierrors.CodeUnsupportedFormat
	case validator.ReasonTooLarge:
		e.StatusCode, e.Code = http.StatusRequestEntityTooLarge, apierrors.CodeFileTooLarge
	default:
		e.StatusCode, e.Code = http.StatusBadRequest, apierrors.CodeValidationError
	}
	return e
}

func failureStatus(kind convert.Kind) int {
	switch kind {
	case convert.KindUnsupported:
		return http.StatusBadRequest
	case convert.KindInternal, convert.KindIO:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

func failureCode(kind convert.Kind) string {
	switch kind {
	case convert.KindUnsupported:
		return apierrors.CodeUnsupportedFormat
	case convert.KindInternal, convert.KindIO:
		return apierrors.CodeInternalError
	default:
		return apierrors.CodeConversionFailed
	}
}
