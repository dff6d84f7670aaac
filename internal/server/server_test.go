package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/goartstore/converter-module/internal/api/handlers"
	"github.com/bigkaa/goartstore/converter-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/converter-module/internal/api/openapi"
	"github.com/bigkaa/goartstore/converter-module/internal/convert"
	"github.com/bigkaa/goartstore/converter-module/internal/service"
	"github.com/bigkaa/goartstore/converter-module/internal/storage/filestore"
	"github.com/bigkaa/goartstore/converter-module/internal/validator"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestHandlers собирает обработчики поверх afero.MemMapFs.
func newTestHandlers(t *testing.T) (handlers.Handlers, *filestore.FileStore) {
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
	sweeper := service.NewSweeper([]service.Area{
		{Name: "incoming", Store: incoming},
		{Name: "converted", Store: converted},
	}, time.Hour, 24*time.Hour, testLogger())

	return handlers.Handlers{
		Health:      handlers.NewHealthHandler("converter-test", incoming, converted, engine),
		Formats:     handlers.NewFormatsHandler(engine),
		Conversions: handlers.NewConversionsHandler(svc, v, incoming, testLogger()),
		Files:       handlers.NewFilesHandler(converted, testLogger()),
		Maintenance: handlers.NewMaintenanceHandler(sweeper),
	}, incoming
}

func newTestValidator(t *testing.T) func(http.Handler) http.Handler {
	t.Helper()
	doc, err := openapi.Load(context.Background())
	require.NoError(t, err)
	mw, err := middleware.RequestValidator(doc)
	require.NoError(t, err)
	return mw
}

func serve(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Probes(t *testing.T) {
	h, _ := newTestHandlers(t)
	router := NewRouter(testLogger(), h, Options{})

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health/live", "").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health/ready", "").Code)

	rec := serve(router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cm_http_requests_total")
}

func TestRouter_UnknownRoute(t *testing.T) {
	h, _ := newTestHandlers(t)
	router := NewRouter(testLogger(), h, Options{Validator: newTestValidator(t)})

	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/api/v1/nothing", "").Code)
}

func TestRouter_RequestValidation(t *testing.T) {
	h, incoming := newTestHandlers(t)
	router := NewRouter(testLogger(), h, Options{Validator: newTestValidator(t)})

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "нет target_format", body: `{"file_name":"a.csv"}`, status: http.StatusBadRequest},
		{name: "качество вне диапазона", body: `{"file_name":"a.csv","target_format":"json","image_quality":0}`, status: http.StatusBadRequest},
		{name: "тип поля", body: `{"file_name":5,"target_format":"json"}`, status: http.StatusBadRequest},
		{name: "файла нет", body: `{"file_name":"a.csv","target_format":"json"}`, status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(router, http.MethodPost, "/api/v1/conversions", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	res, err := incoming.Save(strings.NewReader("a,b\n1,2\n"), "a.csv")
	require.NoError(t, err)
	rec := serve(router, http.MethodPost, "/api/v1/conversions",
		`{"file_name":"`+res.Name+`","target_format":"json"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var job service.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, service.JobCompleted, job.Status)

	rec = serve(router, http.MethodGet, "/api/v1/files/"+job.OutputName, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_MaintenanceAuth(t *testing.T) {
	h, _ := newTestHandlers(t)

	open := NewRouter(testLogger(), h, Options{})
	assert.Equal(t, http.StatusOK, serve(open, http.MethodPost, "/api/v1/maintenance/sweep", "").Code)

	kf, err := keyfunc.NewJWKSetJSON(json.RawMessage(`{"keys":[]}`))
	require.NoError(t, err)
	auth := middleware.NewJWTAuthWithKeyfunc(kf, 5*time.Second, testLogger())

	protected := NewRouter(testLogger(), h, Options{Auth: auth})
	assert.Equal(t, http.StatusUnauthorized, serve(protected, http.MethodPost, "/api/v1/maintenance/sweep", "").Code)
	assert.Equal(t, http.StatusOK, serve(protected, http.MethodGet, "/api/v1/formats", "").Code,
		"справочные эндпоинты не требуют токена")
}
