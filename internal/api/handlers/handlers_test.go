package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/bigkaa/goartstore/converter-module/internal/api/errors"
	"github.com/bigkaa/goartstore/converter-module/internal/convert"
	"github.com/bigkaa/goartstore/converter-module/internal/service"
	"github.com/bigkaa/goartstore/converter-module/internal/storage/filestore"
	"github.com/bigkaa/goartstore/converter-module/internal/validator"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testEnv — окружение обработчиков поверх afero.MemMapFs.
type testEnv struct {
	fs        afero.Fs
	incoming  *filestore.FileStore
	converted *filestore.FileStore
	router    chi.Router
	sweeper   *fakeSweeper
}

// fakeSweeper — заглушка SweepRunner.
type fakeSweeper struct {
	calls  int
	result service.SweepResult
}

func (f *fakeSweeper) RunOnce(context.Context) *service.SweepResult {
	f.calls++
	res := f.result
	return &res
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fs := afero.NewMemMapFs()
	incoming, err := filestore.New(fs, "/data/uploads")
	require.NoError(t, err)
	converted, err := filestore.New(fs, "/data/converted")
	require.NoError(t, err)

	engine := convert.NewEngine(fs, convert.Config{}, testLogger())
	v := validator.New(fs)
	svc := service.NewConversionService(incoming, converted, v, engine,
		service.NewJobRegistry(10, time.Hour), testLogger())
	sweeper := &fakeSweeper{}

	h := Handlers{
		Health:      NewHealthHandler("converter-test", incoming, converted, engine),
		Formats:     NewFormatsHandler(engine),
		Conversions: NewConversionsHandler(svc, v, incoming, testLogger()),
		Files:       NewFilesHandler(converted, testLogger()),
		Maintenance: NewMaintenanceHandler(sweeper),
	}

	r := chi.NewRouter()
	r.Get("/health/live", h.Health.HealthLive)
	r.Get("/health/ready", h.Health.HealthReady)
	r.Get("/api/v1/openapi.yaml", OpenAPISpec)
	r.Get("/api/v1/formats", h.Formats.List)
	r.Get("/api/v1/formats/{ext}", h.Formats.Get)
	r.Get("/api/v1/formats/{ext}/targets", h.Formats.Targets)
	r.Get("/api/v1/capabilities", h.Formats.Capabilities)
	r.Post("/api/v1/validations", h.Conversions.Validate)
	r.Post("/api/v1/conversions", h.Conversions.Create)
	r.Get("/api/v1/conversions/{id}", h.Conversions.Get)
	r.Get("/api/v1/files/{name}", h.Files.Download)
	r.Post("/api/v1/maintenance/sweep", h.Maintenance.Sweep)

	return &testEnv{fs: fs, incoming: incoming, converted: converted, router: r, sweeper: sweeper}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) save(t *testing.T, name, content string) string {
	t.Helper()
	res, err := e.incoming.Save(strings.NewReader(content), name)
	require.NoError(t, err)
	return res.Name
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "тело: %s", rec.Body.String())
	return out
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Kind    string `json:"kind"`
	} `json:"error"`
}

func TestHealthLive(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health/live", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "converter-test", body["service_id"])
}

func TestHealthReady(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status       string                 `json:"status"`
		Checks       map[string]checkResult `json:"checks"`
		Capabilities []string               `json:"capabilities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "ok", body.Checks["incoming"].Status)
	assert.Equal(t, "ok", body.Checks["converted"].Status)
	assert.Contains(t, body.Capabilities, "image")

	exists, err := afero.Exists(env.fs, "/data/uploads/"+healthCheckFile)
	require.NoError(t, err)
	assert.False(t, exists, "пробный файл удаляется")
}

func TestHealthReady_ReadOnly(t *testing.T) {
	env := newTestEnv(t)
	ro := afero.NewReadOnlyFs(env.fs)
	incoming, err := filestore.New(ro, "/data/uploads")
	require.NoError(t, err)

	h := NewHealthHandler("converter-test", incoming, env.converted,
		convert.NewEngine(env.fs, convert.Config{}, testLogger()))
	rec := httptest.NewRecorder()
	h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"fail"`)
}

func TestOpenAPISpec(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/openapi.yaml", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "openapi: 3.0.3")
}

func TestFormats_List(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/formats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string][]string](t, rec)
	assert.Contains(t, body["image_formats"], "png")
	assert.Contains(t, body["all_formats"], "csv")
}

func TestFormats_Get(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/formats/PNG", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, true, body["supported"])
	assert.Equal(t, "png", body["extension"])
	assert.Equal(t, "image", body["category"])
	assert.Equal(t, "100.00 MB", body["max_size_formatted"])

	rec = env.do(t, http.MethodGet, "/api/v1/formats/xyz", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	env404 := decodeBody[errorEnvelope](t, rec)
	assert.Equal(t, apierrors.CodeNotFound, env404.Error.Code)
	assert.Equal(t, "format .xyz is not supported", env404.Error.Message)
}

func TestFormats_Targets(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/formats/csv/targets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[targetsResponse](t, rec)
	assert.Equal(t, "csv", body.Extension)
	assert.Contains(t, body.Targets, "json")
	assert.NotContains(t, body.Targets, "csv", "конвертация в тот же формат не предлагается")

	rec = env.do(t, http.MethodGet, "/api/v1/formats/mp3/targets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[targetsResponse](t, rec).Targets)

	rec = env.do(t, http.MethodGet, "/api/v1/formats/xyz/targets", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCapabilities(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/capabilities", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[capabilitiesResponse](t, rec)
	assert.True(t, body.Capabilities.Has(convert.CapImage))
	assert.Contains(t, body.Available, string(convert.CapPDFWrite))
	assert.False(t, body.LegacyCopyFallback)
}

func TestValidate(t *testing.T) {
	env := newTestEnv(t)
	name := env.save(t, "report.csv", "a,b\n1,2\n")

	rec := env.do(t, http.MethodPost, "/api/v1/validations", validationRequest{FileName: name})
	require.Equal(t, http.StatusOK, rec.Code)
	outcome := decodeBody[validator.Outcome](t, rec)
	assert.True(t, outcome.Valid)
	assert.Equal(t, "csv", outcome.Extension)
	assert.True(t, env.incoming.Exists(name), "валидация не удаляет файл")

	rec = env.do(t, http.MethodPost, "/api/v1/validations", validationRequest{FileName: "missing.csv"})
	require.Equal(t, http.StatusOK, rec.Code)
	outcome = decodeBody[validator.Outcome](t, rec)
	assert.False(t, outcome.Valid)
	assert.Equal(t, validator.ReasonNotFound, outcome.Reason)

}

func TestValidate_FileNameRequired(t *testing.T) {
	env := newTestEnv(t)

	for _, fileName := range []string{"", "   "} {
		rec := env.do(t, http.MethodPost, "/api/v1/validations", validationRequest{FileName: fileName})
		require.Equal(t, http.StatusBadRequest, rec.Code, "file_name=%q", fileName)
		body := decodeBody[errorEnvelope](t, rec)
		assert.Equal(t, apierrors.CodeValidationError, body.Error.Code)
		assert.Equal(t, "file_name is required", body.Error.Message)
	}
}

func TestConversions_CreateAndGet(t *testing.T) {
	env := newTestEnv(t)
	name := env.save(t, "notes.md", "# Заметки\n\nтекст")

	rec := env.do(t, http.MethodPost, "/api/v1/conversions", conversionRequest{
		FileName:     name,
		TargetFormat: "html",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	job := decodeBody[service.Job](t, rec)
	assert.Equal(t, service.JobCompleted, job.Status)
	assert.Equal(t, "notes.md", job.OriginalName)
	assert.Equal(t, "/api/v1/files/"+job.OutputName, job.DownloadURL)
	assert.False(t, env.incoming.Exists(name))

	rec = env.do(t, http.MethodGet, "/api/v1/conversions/"+job.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, job.OutputName, decodeBody[service.Job](t, rec).OutputName)
}

func TestConversions_CreateFailures(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		req    func() conversionRequest
		status int
		code   string
	}{
		{
			name:   "нет файла",
			req:    func() conversionRequest { return conversionRequest{FileName: "absent.csv", TargetFormat: "json"} },
			status: http.StatusNotFound,
			code:   apierrors.CodeNotFound,
		},
		{
			name:   "без целевого формата",
			req:    func() conversionRequest { return conversionRequest{FileName: "absent.csv"} },
			status: http.StatusBadRequest,
			code:   apierrors.CodeValidationError,
		},
		{
			name: "неподдерживаемая пара",
			req: func() conversionRequest {
				return conversionRequest{FileName: env.save(t, "song.mp3", "ID3"), TargetFormat: "pdf"}
			},
			status: http.StatusBadRequest,
			code:   apierrors.CodeUnsupportedFormat,
		},
		{
			name: "повреждённый JSON",
			req: func() conversionRequest {
				return conversionRequest{FileName: env.save(t, "broken.json", "{not json"), TargetFormat: "csv"}
			},
			status: http.StatusUnprocessableEntity,
			code:   apierrors.CodeConversionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/conversions", tt.req())
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decodeBody[errorEnvelope](t, rec).Error.Code)
		})
	}
}

func TestConversions_CreateInvalidJSON(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversions", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConversions_Get(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/conversions/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/conversions/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFiles_Download(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.NewString()
	name := filestore.OutputName(id, "отчёт.csv", "json")
	_, err := env.converted.SaveAs(strings.NewReader(`{"a":1}`), id, name)
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/v1/files/"+name, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"a":1}`, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Disposition"), "attachment;"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "json")

	rec = env.do(t, http.MethodGet, "/api/v1/files/"+name+"?inline=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Disposition"), "inline;"))

	rec = env.do(t, http.MethodGet, "/api/v1/files/"+name+"?inline=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFiles_DownloadNotFound(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, afero.WriteFile(env.fs, "/data/converted/.hidden", []byte("x"), 0o640))

	for _, name := range []string{"missing.json", ".hidden", "partial.json.tmp"} {
		rec := env.do(t, http.MethodGet, "/api/v1/files/"+name, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, name)
	}
}

func TestMaintenance_Sweep(t *testing.T) {
	env := newTestEnv(t)
	env.sweeper.result = service.SweepResult{
		Scanned:    5,
		Deleted:    2,
		FreedBytes: 2048,
		Duration:   1500 * time.Millisecond,
	}

	rec := env.do(t, http.MethodPost, "/api/v1/maintenance/sweep", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[sweepResponse](t, rec)
	assert.Equal(t, 5, body.Scanned)
	assert.Equal(t, 2, body.Deleted)
	assert.Equal(t, int64(2048), body.FreedBytes)
	assert.Equal(t, "2.00 KB", body.FreedFormatted)
	assert.Equal(t, int64(1500), body.DurationMs)
	assert.Equal(t, 1, env.sweeper.calls)
}
