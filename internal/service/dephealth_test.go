package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDephealth(t *testing.T, url string) *DephealthService {
	t.Helper()
	ds, err := NewDephealthService(DephealthConfig{
		Name:          "test-cm",
		Group:         "converter-module",
		DepName:       "admin-jwks",
		URL:           url,
		CheckInterval: time.Second,
		Registerer:    prometheus.NewRegistry(),
	}, testLogger())
	require.NoError(t, err, "ошибка создания DephealthService")
	return ds
}

// jwksHealth ищет запись admin-jwks в Health().
func jwksHealth(ds *DephealthService) (healthy, found bool) {
	for key, val := range ds.Health() {
		if strings.HasPrefix(key, "admin-jwks:") {
			return val, true
		}
	}
	return false, false
}

func TestNewDephealthService_RequiresURL(t *testing.T) {
	_, err := NewDephealthService(DephealthConfig{Name: "cm", Group: "g", DepName: "d"}, testLogger())
	assert.Error(t, err)
}

func TestDephealthService_Healthy(t *testing.T) {
	mock := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"keys":[]}`))
	}))
	defer mock.Close()

	ds := newTestDephealth(t, mock.URL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, ds.Start(ctx))
	defer ds.Stop()

	assert.Eventually(t, func() bool {
		healthy, found := jwksHealth(ds)
		return found && healthy
	}, 5*time.Second, 100*time.Millisecond)
}

func TestDephealthService_Unhealthy(t *testing.T) {
	mock := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer mock.Close()

	ds := newTestDephealth(t, mock.URL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, ds.Start(ctx))
	defer ds.Stop()

	// Первая проверка выполняется после старта, ждём с запасом
	time.Sleep(3 * time.Second)
	healthy, found := jwksHealth(ds)
	require.True(t, found, "нет записи admin-jwks в Health()")
	assert.False(t, healthy, "сервер отвечает 500")
}
