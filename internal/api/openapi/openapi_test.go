package openapi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	doc, err := Load(context.Background())
	require.NoError(t, err)

	for _, path := range []string{
		"/health/ready",
		"/api/v1/formats/{ext}/targets",
		"/api/v1/conversions",
		"/api/v1/conversions/{id}",
		"/api/v1/files/{name}",
		"/api/v1/maintenance/sweep",
	} {
		assert.NotNil(t, doc.Paths.Value(path), path)
	}

	sweep := doc.Paths.Value("/api/v1/maintenance/sweep").Post
	require.NotNil(t, sweep)
	require.NotNil(t, sweep.Security)
	assert.Contains(t, (*sweep.Security)[0], "bearerAuth")
}

func TestSpec(t *testing.T) {
	assert.Contains(t, string(Spec()), "title: Converter Module API")
}
