package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/bigkaa/goartstore/converter-module/internal/api/errors"
	"github.com/bigkaa/goartstore/converter-module/internal/api/openapi"
)

func newTestValidator(t *testing.T) http.Handler {
	t.Helper()
	doc, err := openapi.Load(context.Background())
	require.NoError(t, err)
	mw, err := RequestValidator(doc)
	require.NoError(t, err)
	return mw(okHandler())
}

func TestRequestValidator(t *testing.T) {
	h := newTestValidator(t)

	tests := []struct {
		name    string
		method  string
		path    string
		body    string
		status  int
		message string
	}{
		{
			name:   "корректное тело",
			method: http.MethodPost,
			path:   "/api/v1/conversions",
			body:   `{"file_name":"a.csv","target_format":"json","pdf_resolution":150}`,
			status: http.StatusOK,
		},
		{
			name:    "нет обязательного поля",
			method:  http.MethodPost,
			path:    "/api/v1/conversions",
			body:    `{"file_name":"a.csv"}`,
			status:  http.StatusBadRequest,
			message: "invalid request body",
		},
		{
			name:    "значение вне диапазона",
			method:  http.MethodPost,
			path:    "/api/v1/conversions",
			body:    `{"file_name":"a.csv","target_format":"png","pdf_resolution":5000}`,
			status:  http.StatusBadRequest,
			message: "invalid request body",
		},
		{
			name:    "неверный query-параметр",
			method:  http.MethodGet,
			path:    "/api/v1/files/x.json?inline=maybe",
			status:  http.StatusBadRequest,
			message: `invalid parameter "inline"`,
		},
		{
			name:   "путь вне контракта",
			method: http.MethodGet,
			path:   "/metrics",
			status: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.message == "" {
				return
			}
			var body struct {
				Error struct {
					Code    string `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, apierrors.CodeValidationError, body.Error.Code)
			assert.Contains(t, body.Error.Message, tt.message)
		})
	}
}
