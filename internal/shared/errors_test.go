package shared

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesSentinelByCode(t *testing.T) {
	err := fmt.Errorf("metrics: resolve: %w", MetricNotFound([]string{"bogus"}))

	assert.True(t, errors.Is(err, ErrMetricNotFound))
	assert.False(t, errors.Is(err, ErrUnsupportedMetric))

	appErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, appErr.Status)
	assert.Equal(t, []string{"bogus"}, appErr.Details["missing"])
	assert.True(t, IsClientError(err))
}

func TestInfrastructureErrorsAreNotClientErrors(t *testing.T) {
	assert.False(t, IsClientError(errors.New("connection reset")))
	_, ok := AsError(nil)
	assert.False(t, ok)
}

func TestInvalidPayloadCarriesFields(t *testing.T) {
	err := InvalidPayload(map[string]string{"filters[0].op": "oneof"})
	assert.Equal(t, CodeInvalidPayload, err.Code)
	assert.Equal(t, http.StatusBadRequest, err.Status)
	assert.Contains(t, err.Error(), "INVALID_PAYLOAD")
}
