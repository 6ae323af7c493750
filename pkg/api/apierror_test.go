package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lattice-run/agentgw/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteKind_SetsStatusAndBody(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteKind(w, api.KindUnknownTool, "no such tool")

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body api.Error
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, api.KindUnknownTool, body.Detail.Kind)
	assert.Equal(t, "no such tool", body.Detail.Message)
	assert.Empty(t, body.Detail.Details)
}

func TestWriteValidation_CarriesTokenTriples(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteValidation(w, []api.ValidationError{
		{Token: "ERR_REQUIRED", Pointer: "/path", Message: "path is required"},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body api.Error
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, api.KindSchemaValidationFailed, body.Detail.Kind)
	require.Len(t, body.Detail.Details, 1)
	assert.Equal(t, "ERR_REQUIRED", body.Detail.Details[0].Token)
	assert.Equal(t, "/path", body.Detail.Details[0].Pointer)
}

func TestWriteKind_RateLimitedMapsTo429(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteKind(w, api.KindRateLimited, "slow down")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestWriteKind_ServiceUnavailableMapsTo503(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteKind(w, api.KindServiceUnavailable, "incident")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
